package constants

// Activity names used for workflow registration and execution.
const (
	InitSessionActivity    = "InitSession"
	ScopeSessionActivity   = "ScopeSession"
	AnswerSessionActivity  = "AnswerSession"
	SuperviseRoundActivity = "SuperviseRound"
	CompileReportActivity  = "CompileReport"
	EmitProgressActivity   = "EmitProgress"
)

// Workflow, signal and query names shared by the worker, the HTTP API and
// researchctl.
const (
	DeepResearchWorkflow = "DeepResearchWorkflow"

	// SignalAnswer carries the user's reply to a clarifying question.
	SignalAnswer = "answer_v1"
	// QueryStatus returns the workflow's current SessionStatus.
	QueryStatus = "status_v1"

	DefaultTaskQueue = "deep-research"
)
