package common

import "fmt"

// --------------------------------------------------------------------------
// Wire Errors
// --------------------------------------------------------------------------

// Error name constants, shared between server and client.
const (
	ErrNameLockingTimeout = "LockingTimeout" // lockingTimeout elapsed before acquisition
	ErrNameConnectionLost = "ConnectionLost" // socket closed while an RPC was pending
	ErrNameUnknownLock    = "UnknownLock"    // lock id released, expired, or never issued
	ErrNameNotOwner       = "NotOwner"       // extend/release by a connection that does not own the lock
	ErrNameInvalidRequest = "InvalidRequest" // malformed parameters or unknown method
)

// Error is the wire representation of a failed call. It is carried in the
// response's error field and doubles as the error value surfaced to callers
// of the client API.
type Error struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// NewError creates a new wire error with a formatted message.
func NewError(name string, format string, args ...any) *Error {
	return &Error{Name: name, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Is matches two wire errors by name, so that
// errors.Is(err, common.ErrLockingTimeout) works regardless of message text.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Name == e.Name
}

// Sentinel values for errors.Is matching.
var (
	ErrLockingTimeout = &Error{Name: ErrNameLockingTimeout}
	ErrConnectionLost = &Error{Name: ErrNameConnectionLost}
	ErrUnknownLock    = &Error{Name: ErrNameUnknownLock}
	ErrNotOwner       = &Error{Name: ErrNameNotOwner}
	ErrInvalidRequest = &Error{Name: ErrNameInvalidRequest}
)
