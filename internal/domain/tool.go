package domain

// InvocationState tracks a tool call through the dispatcher.
type InvocationState string

const (
	StateReceived   InvocationState = "received"
	StateValidating InvocationState = "validating"
	StateExecuting  InvocationState = "executing"
	StateLogging    InvocationState = "logging"
	StateCompleted  InvocationState = "completed"
	StateFailed     InvocationState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s InvocationState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
