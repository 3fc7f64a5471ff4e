package gcal

import (
	"errors"
	"fmt"
)

// ErrEventNotFound marks a 404 from the remote API. A RemoteError returned
// by Get/Update/Delete wraps it, so callers can use errors.Is.
var ErrEventNotFound = errors.New("event not found")

// ValidationError marks a malformed remote event payload (missing id,
// updated, or start). Batch callers skip the item and continue.
type ValidationError struct {
	EventID string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("invalid remote event %s: %s %s", e.EventID, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid remote event: %s %s", e.Field, e.Reason)
}

// RemoteError marks a failed call to the remote calendar API. StatusCode is
// zero for transport-level failures (timeouts, connection errors).
type RemoteError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gcal %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gcal %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure is worth retrying: transport
// errors, throttling, and server-side failures qualify.
func (e *RemoteError) Temporary() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}
