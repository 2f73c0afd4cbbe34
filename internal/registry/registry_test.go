package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/deepresearch/internal/config"
	"github.com/Kocoro-lab/deepresearch/internal/constants"
	"github.com/Kocoro-lab/deepresearch/internal/llm/llmtest"
	"github.com/Kocoro-lab/deepresearch/internal/research"
	"github.com/Kocoro-lab/deepresearch/internal/workflows"
)

type RegistryTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	components *Components
	client     *llmtest.Client
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (s *RegistryTestSuite) SetupTest() {
	cfg, err := config.FromMap(map[string]interface{}{
		"database": map[string]interface{}{
			"driver":           "sqlite3",
			"database":         filepath.Join(s.T().TempDir(), "reports.db"),
			"max_connections":  1,
			"idle_connections": 1,
		},
	})
	s.Require().NoError(err)

	s.client = llmtest.New(llmtest.Router(map[string]llmtest.HandlerFunc{
		"supervisor": llmtest.Sequence(llmtest.Reply(llmtest.Text("Nothing further to research."))),
		"report":     llmtest.Sequence(llmtest.Reply(llmtest.Text("# Wind vs solar\n\nBoth are cheap."))),
	}))

	s.components, err = Build(context.Background(), cfg, BuildOptions{InMemory: true, LLM: s.client}, zaptest.NewLogger(s.T()))
	s.Require().NoError(err)
}

func (s *RegistryTestSuite) TearDownTest() {
	s.NoError(s.components.Close())
}

func (s *RegistryTestSuite) TestBuildWiresOptionalParts() {
	c := s.components
	s.NotNil(c.Pipeline)
	s.NotNil(c.Streams)
	s.NotNil(c.DB)
	s.NotNil(c.Reports)
	s.Nil(c.Redis)
	s.Nil(c.Knowledge)
	s.IsType(&research.MemoryStore{}, c.Store)
	s.Equal(research.DefaultLimits(), c.Pipeline.Limits())
}

func (s *RegistryTestSuite) TestWorkflowRunsAgainstRealActivities() {
	env := s.NewTestWorkflowEnvironment()
	reg := NewResearchRegistry(s.components.NewActivities(), zaptest.NewLogger(s.T()))
	s.Require().NoError(reg.RegisterWorkflows(env))
	s.Require().NoError(reg.RegisterActivities(env))

	brief, err := research.NewBrief("Compare wind and solar costs", nil, "shallow")
	s.Require().NoError(err)
	env.ExecuteWorkflow(constants.DeepResearchWorkflow, workflows.ResearchInput{Brief: brief})

	s.True(env.IsWorkflowCompleted())
	s.Require().NoError(env.GetWorkflowError())
	var res workflows.ResearchResult
	s.Require().NoError(env.GetWorkflowResult(&res))
	s.Equal(research.StatusDone, res.Status)
	s.Contains(res.Report, "Wind vs solar")

	rec, err := s.components.Reports.Get(context.Background(), res.SessionID)
	s.Require().NoError(err)
	s.Equal(res.Report, rec.Report)

	replay := s.components.Streams.ReplaySince(res.SessionID, 0)
	s.Require().NotEmpty(replay)
	s.Equal(research.EventReport, replay[len(replay)-1].Type)
}

func TestRegisterActivitiesRequiresActivities(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	require.Error(t, NewResearchRegistry(nil, nil).RegisterActivities(env))
}

func TestNewLLMClientValidates(t *testing.T) {
	_, err := NewLLMClient(config.LLMConfig{Provider: config.ProviderAnthropic, Model: "m"}, zaptest.NewLogger(t))
	require.Error(t, err)

	_, err = NewLLMClient(config.LLMConfig{Provider: "bogus", Model: "m", APIKey: "k"}, zaptest.NewLogger(t))
	require.Error(t, err)

	c, err := NewLLMClient(config.LLMConfig{Provider: config.ProviderOpenAI, Model: "gpt-4.1", APIKey: "k", RequestsPerMinute: 60, Burst: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, "gpt-4.1", c.Model())
}
