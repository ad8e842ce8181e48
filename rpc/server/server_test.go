package server

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/makeflow/ordered-lock/rpc/common"
	"github.com/makeflow/ordered-lock/rpc/serializer"
	"github.com/makeflow/ordered-lock/rpc/transport/unix"
)

// startServer starts a lock server on a unix socket and returns a raw
// connection to it. Frames are written by hand so these tests pin the wire
// format down independent of the client implementation.
func startServer(t *testing.T) net.Conn {
	t.Helper()
	endpoint := filepath.Join(t.TempDir(), "olock.sock")

	srv := NewRPCServer(
		common.ServerConfig{
			Transport: common.ServerTransportConfig{Endpoint: endpoint},
			LogLevel:  "error",
		},
		unix.NewUnixServerTransport(),
		serializer.NewJSONSerializer(),
	)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.Dial("unix", endpoint)
		if err == nil {
			t.Cleanup(func() { conn.Close() })
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// send writes one length-prefixed frame
func send(t *testing.T, conn net.Conn, payload string) {
	t.Helper()
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := conn.Write(append(header, payload...)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// receive reads one length-prefixed frame and decodes the response
func receive(t *testing.T, conn net.Conn) common.Response {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		t.Fatalf("read header failed: %v", err)
	}
	payload := make([]byte, binary.BigEndian.Uint32(header))
	if _, err := io.ReadFull(conn, payload); err != nil {
		t.Fatalf("read payload failed: %v", err)
	}

	var resp common.Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.Fatalf("malformed response %s: %v", payload, err)
	}
	return resp
}

// TestWireLockReleaseRoundTrip tests the raw protocol: a lock request is
// answered with a string lock id under the echoed id, release with null
func TestWireLockReleaseRoundTrip(t *testing.T) {
	conn := startServer(t)

	send(t, conn, `{"id":"req-1","method":"lock","params":[["a","b"],{"ttl":5,"lockingTimeout":5}]}`)
	resp := receive(t, conn)

	if string(resp.ID) != `"req-1"` {
		t.Errorf("id echoed as %s, want \"req-1\"", resp.ID)
	}
	if resp.Error != nil {
		t.Fatalf("lock failed: %v", resp.Error)
	}
	var lockID string
	if err := json.Unmarshal(resp.Result, &lockID); err != nil || lockID == "" {
		t.Fatalf("result %s is not a lock id", resp.Result)
	}

	params, _ := json.Marshal([]any{lockID})
	send(t, conn, `{"id":2,"method":"release-lock","params":`+string(params)+`}`)
	resp = receive(t, conn)

	if string(resp.ID) != `2` {
		t.Errorf("id echoed as %s, want 2", resp.ID)
	}
	if resp.Error != nil {
		t.Fatalf("release failed: %v", resp.Error)
	}
	if string(resp.Result) != `null` {
		t.Errorf("release result %s, want null", resp.Result)
	}
}

// TestWireExtendWithoutTTL tests the single-element extend-lock params form
func TestWireExtendWithoutTTL(t *testing.T) {
	conn := startServer(t)

	send(t, conn, `{"id":1,"method":"lock","params":[["r"],{"ttl":5,"lockingTimeout":5}]}`)
	resp := receive(t, conn)
	if resp.Error != nil {
		t.Fatalf("lock failed: %v", resp.Error)
	}
	var lockID string
	_ = json.Unmarshal(resp.Result, &lockID)

	params, _ := json.Marshal([]any{lockID})
	send(t, conn, `{"id":2,"method":"extend-lock","params":`+string(params)+`}`)
	resp = receive(t, conn)
	if resp.Error != nil {
		t.Errorf("extend without ttl failed: %v", resp.Error)
	}
}

// TestWireErrors tests the error responses of the protocol
func TestWireErrors(t *testing.T) {
	conn := startServer(t)

	tests := []struct {
		name     string
		request  string
		wantName string
	}{
		{
			"unknown method",
			`{"id":1,"method":"unlock","params":[]}`,
			common.ErrNameInvalidRequest,
		},
		{
			"empty resources",
			`{"id":2,"method":"lock","params":[[],{"ttl":5,"lockingTimeout":5}]}`,
			common.ErrNameInvalidRequest,
		},
		{
			"non-positive ttl",
			`{"id":3,"method":"lock","params":[["a"],{"ttl":0,"lockingTimeout":5}]}`,
			common.ErrNameInvalidRequest,
		},
		{
			"malformed params",
			`{"id":4,"method":"lock","params":{"not":"an array"}}`,
			common.ErrNameInvalidRequest,
		},
		{
			"unknown lock id",
			`{"id":5,"method":"release-lock","params":["nope"]}`,
			common.ErrNameUnknownLock,
		},
	}

	for _, tt := range tests {
		send(t, conn, tt.request)
		resp := receive(t, conn)
		if resp.Error == nil {
			t.Errorf("%s: got result %s, want %s error", tt.name, resp.Result, tt.wantName)
			continue
		}
		if !errors.Is(resp.Error, &common.Error{Name: tt.wantName}) {
			t.Errorf("%s: got error %s, want %s", tt.name, resp.Error.Name, tt.wantName)
		}
	}
}

// TestWireQueuedResponsesInterleave tests that a blocked lock call does not
// stall later calls on the same connection
func TestWireQueuedResponsesInterleave(t *testing.T) {
	conn := startServer(t)

	// Hold a
	send(t, conn, `{"id":1,"method":"lock","params":[["a"],{"ttl":10,"lockingTimeout":10}]}`)
	resp := receive(t, conn)
	if resp.Error != nil {
		t.Fatalf("lock failed: %v", resp.Error)
	}

	// Queue a second connection behind it, then issue another call on the
	// first connection; its response must arrive while the lock call of the
	// second connection is still pending
	conn2 := startSecondConn(t, conn)
	send(t, conn2, `{"id":"waiting","method":"lock","params":[["a"],{"ttl":10,"lockingTimeout":10}]}`)

	time.Sleep(50 * time.Millisecond)
	send(t, conn, `{"id":3,"method":"lock","params":[["b"],{"ttl":10,"lockingTimeout":10}]}`)
	resp = receive(t, conn)
	if string(resp.ID) != `3` || resp.Error != nil {
		t.Fatalf("free lock call stalled behind the queued one: id %s, err %v", resp.ID, resp.Error)
	}
}

// startSecondConn dials another connection to the same server
func startSecondConn(t *testing.T, conn net.Conn) net.Conn {
	t.Helper()
	c, err := net.Dial("unix", conn.RemoteAddr().String())
	if err != nil {
		t.Fatalf("second dial failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
