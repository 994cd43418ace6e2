package engine

import "fmt"

// Request statuses.
const (
	StatusRequestPending   = "pending"
	StatusRequestAssigning = "assigning"
	StatusRequestClosed    = "closed"
)

// Mission statuses.
const (
	StatusMissionPending    = "pending"
	StatusMissionInProgress = "in_progress"
	StatusMissionSucceeded  = "succeeded"
	StatusMissionFailed     = "failed"
	StatusMissionCanceled   = "canceled"
)

// ValidationError reports a missing or malformed field for the requested
// transition. Caller error, maps to 400.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// InvalidTransitionError reports a status pair not reachable from the
// current status. Caller error, maps to 409.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition %s -> %s", e.Entity, e.From, e.To)
}

// InvariantViolationError reports broken internal consistency, such as an
// assigning request without an assignment in charge. Indicates a prior bug,
// not caller error.
type InvariantViolationError struct {
	Msg string
}

func (e InvariantViolationError) Error() string { return e.Msg }
