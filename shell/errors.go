package shell

import "fmt"

// DiscoveryError is returned when the driver cannot search for instruments
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string { return "searching for instruments: " + e.Err.Error() }

// Unwrap returns the driver error
func (e *DiscoveryError) Unwrap() error { return e.Err }

// ResolutionError is returned when a chosen instrument has no resource name,
// e.g. because it was unplugged after the search
type ResolutionError struct {
	Index int
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving instrument %d: %v", e.Index+1, e.Err)
}

// Unwrap returns the driver error
func (e *ResolutionError) Unwrap() error { return e.Err }

// SessionError is returned when a session cannot be opened or closed
type SessionError struct {
	Op       string
	Resource string
	Err      error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s session to %q: %v", e.Op, e.Resource, e.Err)
}

// Unwrap returns the driver error
func (e *SessionError) Unwrap() error { return e.Err }

// CommandError is returned when a menu command fails.  Code is the driver
// status code of the failure, 0 if it had none.
type CommandError struct {
	Command string
	Code    int
	Err     error
}

func (e *CommandError) Error() string { return e.Command + ": " + e.Err.Error() }

// Unwrap returns the driver error
func (e *CommandError) Unwrap() error { return e.Err }
