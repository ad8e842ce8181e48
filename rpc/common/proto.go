package common

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// --------------------------------------------------------------------------
// Durations
// --------------------------------------------------------------------------

// Seconds is a duration expressed in (possibly fractional) seconds.
// All durations on the wire use this representation.
type Seconds float64

// Duration converts the wire representation to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// DurationSeconds converts a time.Duration to the wire representation.
func DurationSeconds(d time.Duration) Seconds {
	return Seconds(d.Seconds())
}

// --------------------------------------------------------------------------
// Methods
// --------------------------------------------------------------------------

// Method identifies one of the RPC operations offered by the lock server.
type Method string

const (
	MethodLock        Method = "lock"         // Acquire a lock on one or more resources
	MethodExtendLock  Method = "extend-lock"  // Reset the deadline of a held lock
	MethodReleaseLock Method = "release-lock" // Release a held lock
)

// Valid reports whether m names a known RPC method.
func (m Method) Valid() bool {
	switch m {
	case MethodLock, MethodExtendLock, MethodReleaseLock:
		return true
	default:
		return false
	}
}

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Request is a single RPC call. The id is chosen by the caller and echoed
// verbatim in the response; it may be a JSON string or number.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method Method          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response is the completion of a single RPC call. Exactly one of Result
// and Error is set.
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// NumericID renders a client-assigned correlation counter as a wire id.
func NumericID(n uint64) json.RawMessage {
	return json.RawMessage(strconv.FormatUint(n, 10))
}

// --------------------------------------------------------------------------
// Method Parameters
// --------------------------------------------------------------------------

// LockOptions carries the timing options of a lock request.
type LockOptions struct {
	// TTL is how long the lock survives without an extension.
	TTL Seconds `json:"ttl"`
	// LockingTimeout bounds how long the acquisition may wait in the queues.
	LockingTimeout Seconds `json:"lockingTimeout"`
}

// LockParams is the parameter list of a "lock" request.
// On the wire it is the positional array [resources, options].
type LockParams struct {
	Resources []string
	Options   LockOptions
}

// MarshalJSON implements the json.Marshaler interface for LockParams.
func (p LockParams) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Resources, p.Options})
}

// UnmarshalJSON implements the json.Unmarshaler interface for LockParams.
func (p *LockParams) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 2 {
		return fmt.Errorf("lock params: expected [resources, options], got %d elements", len(parts))
	}
	if err := json.Unmarshal(parts[0], &p.Resources); err != nil {
		return fmt.Errorf("lock params: invalid resources: %v", err)
	}
	if err := json.Unmarshal(parts[1], &p.Options); err != nil {
		return fmt.Errorf("lock params: invalid options: %v", err)
	}
	return nil
}

// ExtendLockParams is the parameter list of an "extend-lock" request.
// On the wire it is [lockId] or [lockId, ttl].
type ExtendLockParams struct {
	LockID string
	// TTL of zero means "re-arm with the ttl given at acquire".
	TTL Seconds
}

// MarshalJSON implements the json.Marshaler interface for ExtendLockParams.
func (p ExtendLockParams) MarshalJSON() ([]byte, error) {
	if p.TTL > 0 {
		return json.Marshal([]any{p.LockID, p.TTL})
	}
	return json.Marshal([]any{p.LockID})
}

// UnmarshalJSON implements the json.Unmarshaler interface for ExtendLockParams.
func (p *ExtendLockParams) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) < 1 || len(parts) > 2 {
		return fmt.Errorf("extend-lock params: expected [lockId] or [lockId, ttl], got %d elements", len(parts))
	}
	if err := json.Unmarshal(parts[0], &p.LockID); err != nil {
		return fmt.Errorf("extend-lock params: invalid lock id: %v", err)
	}
	p.TTL = 0
	if len(parts) == 2 {
		if err := json.Unmarshal(parts[1], &p.TTL); err != nil {
			return fmt.Errorf("extend-lock params: invalid ttl: %v", err)
		}
	}
	return nil
}

// ReleaseLockParams is the parameter list of a "release-lock" request.
// On the wire it is [lockId].
type ReleaseLockParams struct {
	LockID string
}

// MarshalJSON implements the json.Marshaler interface for ReleaseLockParams.
func (p ReleaseLockParams) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.LockID})
}

// UnmarshalJSON implements the json.Unmarshaler interface for ReleaseLockParams.
func (p *ReleaseLockParams) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 1 {
		return fmt.Errorf("release-lock params: expected [lockId], got %d elements", len(parts))
	}
	if err := json.Unmarshal(parts[0], &p.LockID); err != nil {
		return fmt.Errorf("release-lock params: invalid lock id: %v", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewLockRequest creates a new lock request
func NewLockRequest(id json.RawMessage, resources []string, opts LockOptions) (*Request, error) {
	params, err := json.Marshal(LockParams{Resources: resources, Options: opts})
	if err != nil {
		return nil, err
	}
	return &Request{ID: id, Method: MethodLock, Params: params}, nil
}

// NewExtendLockRequest creates a new extend-lock request
func NewExtendLockRequest(id json.RawMessage, lockID string, ttl Seconds) (*Request, error) {
	params, err := json.Marshal(ExtendLockParams{LockID: lockID, TTL: ttl})
	if err != nil {
		return nil, err
	}
	return &Request{ID: id, Method: MethodExtendLock, Params: params}, nil
}

// NewReleaseLockRequest creates a new release-lock request
func NewReleaseLockRequest(id json.RawMessage, lockID string) (*Request, error) {
	params, err := json.Marshal(ReleaseLockParams{LockID: lockID})
	if err != nil {
		return nil, err
	}
	return &Request{ID: id, Method: MethodReleaseLock, Params: params}, nil
}

// NewResultResponse creates a new success response with the given result value
func NewResultResponse(id json.RawMessage, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{ID: id, Result: raw}, nil
}

// NewErrorResponse creates a new error response
func NewErrorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{ID: id, Error: err}
}
