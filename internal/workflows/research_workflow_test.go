package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/Kocoro-lab/deepresearch/internal/activities"
	"github.com/Kocoro-lab/deepresearch/internal/constants"
	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/research"
)

type ResearchWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	env     *testsuite.TestWorkflowEnvironment
	emitted []activities.EmitProgressInput
}

func TestResearchWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(ResearchWorkflowTestSuite))
}

func (s *ResearchWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.emitted = nil

	acts := activities.NewResearchActivities(nil, research.NewMemoryStore(), nil, nil)
	acts.Register(s.env)
	s.env.RegisterWorkflow(DeepResearchWorkflow)

	s.env.OnActivity(constants.EmitProgressActivity, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.EmitProgressInput) error {
			s.emitted = append(s.emitted, in)
			return nil
		}).Maybe()
}

func (s *ResearchWorkflowTestSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func (s *ResearchWorkflowTestSuite) queryStatus() SessionStatus {
	v, err := s.env.QueryWorkflow(constants.QueryStatus)
	s.Require().NoError(err)
	var st SessionStatus
	s.Require().NoError(v.Get(&st))
	return st
}

func (s *ResearchWorkflowTestSuite) expectRounds(n int) {
	for i := 1; i < n; i++ {
		s.env.OnActivity(constants.SuperviseRoundActivity, mock.Anything, mock.Anything).
			Return(activities.RoundResult{Iterations: i, Notes: i}, nil).Once()
	}
	s.env.OnActivity(constants.SuperviseRoundActivity, mock.Anything, mock.Anything).
		Return(activities.RoundResult{Done: true, Iterations: n, Notes: n - 1}, nil).Once()
}

func (s *ResearchWorkflowTestSuite) TestBriefSkipsScoping() {
	s.env.OnActivity(constants.InitSessionActivity, mock.Anything, mock.Anything).
		Return(activities.SessionSnapshot{Status: research.StatusRunning, HasBrief: true}, nil).Once()
	s.expectRounds(3)
	s.env.OnActivity(constants.CompileReportActivity, mock.Anything, mock.Anything).
		Return(activities.ReportResult{Report: "# Report", Iterations: 3, Notes: 2}, nil).Once()

	s.env.ExecuteWorkflow(DeepResearchWorkflow, ResearchInput{
		Brief: &research.Brief{Text: "Compare solar and wind", Depth: research.DepthModerate},
	})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var res ResearchResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal(research.StatusDone, res.Status)
	s.Equal("# Report", res.Report)
	s.Equal(3, res.Iterations)
	s.NotEmpty(res.SessionID)
	s.env.AssertNotCalled(s.T(), constants.ScopeSessionActivity, mock.Anything, mock.Anything)

	st := s.queryStatus()
	s.Equal(PhaseDone, st.Phase)
	s.Equal(research.StatusDone, st.Status)
}

func (s *ResearchWorkflowTestSuite) TestClarificationRoundTrip() {
	s.env.OnActivity(constants.InitSessionActivity, mock.Anything, mock.Anything).
		Return(activities.SessionSnapshot{Status: research.StatusRunning}, nil).Once()
	s.env.OnActivity(constants.ScopeSessionActivity, mock.Anything, mock.Anything).
		Return(activities.SessionSnapshot{
			Status:              research.StatusAwaitingInput,
			Question:            "Which region?",
			ClarificationRounds: 1,
		}, nil).Once()
	s.env.OnActivity(constants.AnswerSessionActivity, mock.Anything, mock.MatchedBy(func(in activities.AnswerInput) bool {
		return in.Answer == "Europe"
	})).Return(activities.SessionSnapshot{Status: research.StatusRunning, ClarificationRounds: 1}, nil).Once()
	s.env.OnActivity(constants.ScopeSessionActivity, mock.Anything, mock.Anything).
		Return(activities.SessionSnapshot{Status: research.StatusRunning, HasBrief: true, ClarificationRounds: 1}, nil).Once()
	s.expectRounds(1)
	s.env.OnActivity(constants.CompileReportActivity, mock.Anything, mock.Anything).
		Return(activities.ReportResult{Report: "done", Iterations: 1}, nil).Once()

	s.env.RegisterDelayedCallback(func() {
		st := s.queryStatus()
		s.Equal(PhaseAwaitingInput, st.Phase)
		s.Equal(research.StatusAwaitingInput, st.Status)
		s.Equal("Which region?", st.Question)
		s.env.SignalWorkflow(constants.SignalAnswer, AnswerSignal{Answer: "   "})
	}, time.Minute)
	s.env.RegisterDelayedCallback(func() {
		s.Equal(PhaseAwaitingInput, s.queryStatus().Phase)
		s.env.SignalWorkflow(constants.SignalAnswer, AnswerSignal{Answer: "Europe", AnsweredBy: "alice"})
	}, 2*time.Minute)

	s.env.ExecuteWorkflow(DeepResearchWorkflow, ResearchInput{
		Messages: []llm.Message{llm.User("Research energy prices")},
	})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var res ResearchResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal(research.StatusDone, res.Status)
	s.Equal("done", res.Report)

	var resumed bool
	for _, ev := range s.emitted {
		if ev.Type == research.EventStatus && ev.AgentID == "workflow" {
			resumed = true
		}
	}
	s.True(resumed)
}

func (s *ResearchWorkflowTestSuite) TestAnswerTimeoutLeavesSessionSuspended() {
	s.env.OnActivity(constants.InitSessionActivity, mock.Anything, mock.Anything).
		Return(activities.SessionSnapshot{Status: research.StatusRunning}, nil).Once()
	s.env.OnActivity(constants.ScopeSessionActivity, mock.Anything, mock.Anything).
		Return(activities.SessionSnapshot{Status: research.StatusAwaitingInput, Question: "Scope?", ClarificationRounds: 1}, nil).Once()

	s.env.ExecuteWorkflow(DeepResearchWorkflow, ResearchInput{
		Messages:      []llm.Message{llm.User("vague")},
		AnswerTimeout: time.Hour,
	})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var res ResearchResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal(research.StatusAwaitingInput, res.Status)
	s.Equal("Scope?", res.Question)
	s.Empty(res.Report)
}

func (s *ResearchWorkflowTestSuite) TestSuperviseFailureEmitsError() {
	s.env.OnActivity(constants.InitSessionActivity, mock.Anything, mock.Anything).
		Return(activities.SessionSnapshot{Status: research.StatusRunning, HasBrief: true}, nil).Once()
	s.env.OnActivity(constants.SuperviseRoundActivity, mock.Anything, mock.Anything).
		Return(activities.RoundResult{}, temporal.NewNonRetryableApplicationError("no brief", activities.ErrTypeEmptyBrief, errors.New("no brief"))).Once()

	s.env.ExecuteWorkflow(DeepResearchWorkflow, ResearchInput{
		Brief: &research.Brief{Text: "x", Depth: research.DepthShallow},
	})

	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	var appErr *temporal.ApplicationError
	s.Require().True(errors.As(err, &appErr))
	s.Equal(activities.ErrTypeEmptyBrief, appErr.Type())

	st := s.queryStatus()
	s.Equal(PhaseFailed, st.Phase)
	s.NotEmpty(st.Error)
	s.Require().NotEmpty(s.emitted)
	s.Equal(research.EventError, s.emitted[len(s.emitted)-1].Type)
}

func TestResearchInputDefaults(t *testing.T) {
	in := ResearchInput{}.withDefaults()
	require.Equal(t, DefaultActivityTimeout, in.ActivityTimeout)
	require.Equal(t, DefaultHeartbeatTimeout, in.HeartbeatTimeout)
	require.Equal(t, DefaultAnswerTimeout, in.AnswerTimeout)

	forever := ResearchInput{AnswerTimeout: -1}.withDefaults()
	require.Equal(t, time.Duration(-1), forever.AnswerTimeout)
}
