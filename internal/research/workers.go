package research

import (
	"context"
	"fmt"
)

// WorkerID identifies one dispatch within a session.
type WorkerID struct {
	SessionID string
	Round     int
	Index     int
}

func (w WorkerID) String() string {
	return fmt.Sprintf("%s/r%d/%d", w.SessionID, w.Round, w.Index)
}

// Researcher investigates a single topic.
type Researcher interface {
	Name() string
	Research(ctx context.Context, topic string) (Findings, error)
}

// Analyst answers a task by running code.
type Analyst interface {
	Name() string
	Analyze(ctx context.Context, task string) (string, error)
}

// WorkerFactory builds a fresh worker for every dispatch. Workers are
// discarded after they return.
type WorkerFactory interface {
	NewResearcher(id WorkerID) Researcher
	NewAnalyst(id WorkerID) Analyst
}
