package live

import "fmt"

// ConnectionError indicates the transport failed to open or dropped.
// Recoverable: the caller may reconnect. Also surfaced on the bus as a
// ConnectionFailed or ConnectionLost event so UI can observe status
// without catching errors.
type ConnectionError struct {
	LearnerID string
	Op        string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("live %s for learner %s: %v", e.Op, e.LearnerID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// InvalidStateError indicates an operation was called in a session state
// that does not permit it. Rejected synchronously, never queued.
type InvalidStateError struct {
	Op     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("live %s: invalid in state %s", e.Op, e.Status)
}
