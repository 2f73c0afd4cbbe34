package workflows

import (
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/Kocoro-lab/deepresearch/internal/constants"
)

// NewReplayer returns a replayer with every workflow the worker registers,
// under the same names. Replaying an exported history against it fails on
// any non-deterministic change.
func NewReplayer() worker.WorkflowReplayer {
	r := worker.NewWorkflowReplayer()
	r.RegisterWorkflowWithOptions(DeepResearchWorkflow, workflow.RegisterOptions{Name: constants.DeepResearchWorkflow})
	return r
}
