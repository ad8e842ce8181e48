package common

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// TestSecondsConversion tests the duration conversions including fractions
func TestSecondsConversion(t *testing.T) {
	tests := []struct {
		seconds Seconds
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{0.5, 500 * time.Millisecond},
		{1.5, 1500 * time.Millisecond},
		{60, time.Minute},
	}

	for _, tt := range tests {
		if got := tt.seconds.Duration(); got != tt.want {
			t.Errorf("Seconds(%v).Duration() = %v, want %v", tt.seconds, got, tt.want)
		}
		if got := DurationSeconds(tt.want); got != tt.seconds {
			t.Errorf("DurationSeconds(%v) = %v, want %v", tt.want, got, tt.seconds)
		}
	}
}

// TestLockRequestWireShape tests that a lock request marshals to the
// positional protocol shape
func TestLockRequestWireShape(t *testing.T) {
	req, err := NewLockRequest(NumericID(7), []string{"a", "b"}, LockOptions{TTL: 10, LockingTimeout: 1.5})
	if err != nil {
		t.Fatalf("NewLockRequest failed: %v", err)
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	want := `{"id":7,"method":"lock","params":[["a","b"],{"ttl":10,"lockingTimeout":1.5}]}`
	if string(data) != want {
		t.Errorf("wire shape\n got %s\nwant %s", data, want)
	}
}

// TestLockParamsRoundTrip tests decoding of the positional lock params
func TestLockParamsRoundTrip(t *testing.T) {
	var p LockParams
	if err := json.Unmarshal([]byte(`[["x"],{"ttl":2,"lockingTimeout":5}]`), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(p.Resources) != 1 || p.Resources[0] != "x" {
		t.Errorf("resources = %v, want [x]", p.Resources)
	}
	if p.Options.TTL != 2 || p.Options.LockingTimeout != 5 {
		t.Errorf("options = %+v, want ttl 2, lockingTimeout 5", p.Options)
	}

	// Malformed shapes are rejected
	for _, bad := range []string{`[]`, `[["x"]]`, `[{"ttl":1},["x"]]`, `"nope"`} {
		if err := json.Unmarshal([]byte(bad), &p); err == nil {
			t.Errorf("unmarshal of %s succeeded, want error", bad)
		}
	}
}

// TestExtendLockParamsOptionalTTL tests the one- and two-element forms
func TestExtendLockParamsOptionalTTL(t *testing.T) {
	// Without ttl
	data, err := json.Marshal(ExtendLockParams{LockID: "id-1"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `["id-1"]` {
		t.Errorf("wire shape %s, want [\"id-1\"]", data)
	}

	// With ttl
	data, err = json.Marshal(ExtendLockParams{LockID: "id-1", TTL: 2.5})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `["id-1",2.5]` {
		t.Errorf("wire shape %s, want [\"id-1\",2.5]", data)
	}

	var p ExtendLockParams
	if err := json.Unmarshal([]byte(`["id-2"]`), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if p.LockID != "id-2" || p.TTL != 0 {
		t.Errorf("got %+v, want lock id-2 without ttl", p)
	}

	if err := json.Unmarshal([]byte(`["id-2",3]`), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if p.LockID != "id-2" || p.TTL != 3 {
		t.Errorf("got %+v, want lock id-2 with ttl 3", p)
	}
}

// TestResponseWireShape tests result and error responses
func TestResponseWireShape(t *testing.T) {
	resp, err := NewResultResponse(NumericID(1), "lock-id")
	if err != nil {
		t.Fatalf("NewResultResponse failed: %v", err)
	}
	data, _ := json.Marshal(resp)
	if string(data) != `{"id":1,"result":"lock-id"}` {
		t.Errorf("result wire shape: %s", data)
	}

	resp = NewErrorResponse(json.RawMessage(`"abc"`), NewError(ErrNameNotOwner, "lock is owned by another connection"))
	data, _ = json.Marshal(resp)
	want := `{"id":"abc","error":{"name":"NotOwner","message":"lock is owned by another connection"}}`
	if string(data) != want {
		t.Errorf("error wire shape\n got %s\nwant %s", data, want)
	}
}

// TestIDEchoedVerbatim tests that string and numeric ids survive decoding
func TestIDEchoedVerbatim(t *testing.T) {
	for _, id := range []string{`42`, `"req-1"`} {
		var req Request
		if err := json.Unmarshal([]byte(`{"id":`+id+`,"method":"lock","params":[[],{}]}`), &req); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if string(req.ID) != id {
			t.Errorf("id = %s, want %s", req.ID, id)
		}
	}
}

// TestErrorMatching tests errors.Is matching by name
func TestErrorMatching(t *testing.T) {
	err := NewError(ErrNameLockingTimeout, "after 1.5s")

	if !errors.Is(err, ErrLockingTimeout) {
		t.Error("error does not match its sentinel")
	}
	if errors.Is(err, ErrNotOwner) {
		t.Error("error matches a foreign sentinel")
	}
	if err.Error() != "LockingTimeout: after 1.5s" {
		t.Errorf("Error() = %q", err.Error())
	}
}

// TestMethodValid tests method name validation
func TestMethodValid(t *testing.T) {
	for _, m := range []Method{MethodLock, MethodExtendLock, MethodReleaseLock} {
		if !m.Valid() {
			t.Errorf("%q should be valid", m)
		}
	}
	if Method("unlock").Valid() {
		t.Error("unknown method reported as valid")
	}
}
