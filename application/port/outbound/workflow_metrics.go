package outbound

import "time"

// WorkflowMetrics records workflow outcomes. Implementations must be safe for concurrent use.
type WorkflowMetrics interface {
	ObserveOperation(operation, outcome string, duration time.Duration)
	ObserveCleanup(deleted, failed int)
}
