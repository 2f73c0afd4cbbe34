package httpapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/mocks"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/deepresearch/internal/auth"
	"github.com/Kocoro-lab/deepresearch/internal/constants"
	"github.com/Kocoro-lab/deepresearch/internal/research"
	"github.com/Kocoro-lab/deepresearch/internal/workflows"
)

// statusValue is a query result carrying a fixed status.
type statusValue workflows.SessionStatus

var _ converter.EncodedValue = statusValue{}

func (statusValue) HasValue() bool { return true }

func (v statusValue) Get(valuePtr interface{}) error {
	out, ok := valuePtr.(*workflows.SessionStatus)
	if !ok {
		return fmt.Errorf("unexpected query target %T", valuePtr)
	}
	*out = workflows.SessionStatus(v)
	return nil
}

type sessionsFixture struct {
	client *mocks.Client
	jwt    *auth.JWTManager
	mux    *http.ServeMux
}

func newSessionsFixture(t *testing.T) *sessionsFixture {
	t.Helper()
	jm, err := auth.NewJWTManager("secret", "", time.Hour)
	require.NoError(t, err)
	c := &mocks.Client{}
	mux := http.NewServeMux()
	NewSessionsHandler(c, "q", workflows.ResearchInput{AnswerTimeout: time.Hour}, zaptest.NewLogger(t)).
		RegisterRoutes(mux, auth.NewMiddleware(jm, false, nil))
	return &sessionsFixture{client: c, jwt: jm, mux: mux}
}

func (f *sessionsFixture) do(t *testing.T, method, target, body string, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()
	tok, err := f.jwt.Issue("alice", scopes, 0)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestAnswerForwardsSignal(t *testing.T) {
	f := newSessionsFixture(t)
	f.client.On("QueryWorkflow", mock.Anything, "wf-1", "", constants.QueryStatus).
		Return(statusValue(workflows.SessionStatus{
			SessionID: "wf-1",
			Phase:     workflows.PhaseAwaitingInput,
			Status:    research.StatusAwaitingInput,
			Question:  "Which region?",
		}), nil).Once()
	f.client.On("SignalWorkflow", mock.Anything, "wf-1", "", constants.SignalAnswer,
		workflows.AnswerSignal{Answer: "Europe", AnsweredBy: "alice"}).Return(nil).Once()

	rec := f.do(t, http.MethodPost, "/sessions/wf-1/answer", `{"answer":"Europe"}`, auth.ScopeSessionsAnswer)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Which region?")
	f.client.AssertExpectations(t)
}

func TestAnswerRejectsWhenNotAwaiting(t *testing.T) {
	f := newSessionsFixture(t)
	f.client.On("QueryWorkflow", mock.Anything, "wf-2", "", constants.QueryStatus).
		Return(statusValue(workflows.SessionStatus{Phase: workflows.PhaseResearching, Status: research.StatusRunning}), nil).Once()

	rec := f.do(t, http.MethodPost, "/sessions/wf-2/answer", `{"answer":"late"}`, auth.ScopeSessionsAnswer)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), research.ErrNotAwaitingInput.Error())
	f.client.AssertNotCalled(t, "SignalWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswerValidation(t *testing.T) {
	f := newSessionsFixture(t)

	rec := f.do(t, http.MethodPost, "/sessions/wf/answer", `{"answer":"  "}`, auth.ScopeSessionsAnswer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/sessions/wf/answer", `{"answer":"x","extra":1}`, auth.ScopeSessionsAnswer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/sessions/wf/answer", `{"answer":"x"}`, auth.ScopeSessionsRead)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f.client.On("QueryWorkflow", mock.Anything, "gone", "", constants.QueryStatus).
		Return(nil, serviceerror.NewNotFound("workflow not found")).Once()
	rec = f.do(t, http.MethodPost, "/sessions/gone/answer", `{"answer":"x"}`, auth.ScopeSessionsAnswer)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	f := newSessionsFixture(t)
	f.client.On("QueryWorkflow", mock.Anything, "wf-3", "", constants.QueryStatus).
		Return(statusValue(workflows.SessionStatus{SessionID: "wf-3", Phase: workflows.PhaseDone, Status: research.StatusDone, Iterations: 4}), nil).Once()

	rec := f.do(t, http.MethodGet, "/sessions/wf-3", "", auth.ScopeSessionsRead)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phase":"done"`)
	assert.Contains(t, rec.Body.String(), `"iterations":4`)
}

func TestStartWorkflow(t *testing.T) {
	f := newSessionsFixture(t)
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("wf-new")
	run.On("GetRunID").Return("run-1")
	f.client.On("ExecuteWorkflow", mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool { return o.ID == "wf-new" && o.TaskQueue == "q" }),
		constants.DeepResearchWorkflow,
		mock.MatchedBy(func(in workflows.ResearchInput) bool {
			return len(in.Messages) == 1 && in.Messages[0].Content == "EV adoption" && in.AnswerTimeout == time.Hour
		}),
	).Return(run, nil).Once()

	rec := f.do(t, http.MethodPost, "/sessions", `{"workflow_id":"wf-new","query":"EV adoption"}`, auth.ScopeSessionsWrite)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"run_id":"run-1"`)
	f.client.AssertExpectations(t)

	rec = f.do(t, http.MethodPost, "/sessions", `{}`, auth.ScopeSessionsWrite)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/sessions", `{"brief":{"text":"  "}}`, auth.ScopeSessionsWrite)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartWorkflowAlreadyStarted(t *testing.T) {
	f := newSessionsFixture(t)
	f.client.On("ExecuteWorkflow", mock.Anything, mock.Anything, constants.DeepResearchWorkflow, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("exists", "", "")).Once()

	rec := f.do(t, http.MethodPost, "/sessions", `{"workflow_id":"dup","query":"q"}`, auth.ScopeSessionsWrite)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
