package registry

import (
	"errors"

	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/activities"
	"github.com/Kocoro-lab/deepresearch/internal/constants"
	"github.com/Kocoro-lab/deepresearch/internal/workflows"
)

// ResearchRegistry registers the deep research workflow and the activities
// backing it under their stable names.
type ResearchRegistry struct {
	activities *activities.ResearchActivities
	logger     *zap.Logger
}

var _ Registry = (*ResearchRegistry)(nil)

// NewResearchRegistry creates a new registry instance
func NewResearchRegistry(acts *activities.ResearchActivities, logger *zap.Logger) *ResearchRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchRegistry{activities: acts, logger: logger}
}

// RegisterWorkflows registers DeepResearchWorkflow by its constant name so
// clients never depend on the Go function name.
func (r *ResearchRegistry) RegisterWorkflows(w worker.WorkflowRegistry) error {
	w.RegisterWorkflowWithOptions(workflows.DeepResearchWorkflow, workflow.RegisterOptions{
		Name: constants.DeepResearchWorkflow,
	})
	r.logger.Info("Registered workflows", zap.String("workflow", constants.DeepResearchWorkflow))
	return nil
}

// RegisterActivities registers the session activities.
func (r *ResearchRegistry) RegisterActivities(w worker.ActivityRegistry) error {
	if r.activities == nil {
		return errors.New("research activities are not configured")
	}
	r.activities.Register(w)
	r.logger.Info("Registered activities",
		zap.Strings("activities", []string{
			constants.InitSessionActivity,
			constants.ScopeSessionActivity,
			constants.AnswerSessionActivity,
			constants.SuperviseRoundActivity,
			constants.CompileReportActivity,
			constants.EmitProgressActivity,
		}),
	)
	return nil
}
