package registry

import (
	"go.temporal.io/sdk/worker"
)

// WorkflowRegistrar defines the interface for registering workflows
type WorkflowRegistrar interface {
	RegisterWorkflows(w worker.WorkflowRegistry) error
}

// ActivityRegistrar defines the interface for registering activities
type ActivityRegistrar interface {
	RegisterActivities(w worker.ActivityRegistry) error
}

// Registry combines both workflow and activity registration
type Registry interface {
	WorkflowRegistrar
	ActivityRegistrar
}
