package client

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/makeflow/ordered-lock/rpc/common"
	"github.com/makeflow/ordered-lock/rpc/serializer"
	"github.com/makeflow/ordered-lock/rpc/server"
	"github.com/makeflow/ordered-lock/rpc/transport/unix"
)

// --------------------------------------------------------------------------
// Test fixtures
// --------------------------------------------------------------------------

// startTestServer starts a lock server on a unix socket and returns its
// endpoint
func startTestServer(t *testing.T) string {
	t.Helper()
	endpoint := filepath.Join(t.TempDir(), "olock.sock")

	srv := server.NewRPCServer(
		common.ServerConfig{
			Transport: common.ServerTransportConfig{Endpoint: endpoint},
			LogLevel:  "error",
		},
		unix.NewUnixServerTransport(),
		serializer.NewJSONSerializer(),
	)
	go func() {
		if err := srv.Serve(); err != nil {
			t.Errorf("server failed: %v", err)
		}
	}()
	t.Cleanup(func() { _ = srv.Shutdown() })

	// Wait until the socket accepts connections
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.Dial("unix", endpoint)
		if err == nil {
			conn.Close()
			return endpoint
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// newTestSession connects a session to the given endpoint
func newTestSession(t *testing.T, endpoint string) *Session {
	t.Helper()
	s := NewSession(
		common.ClientConfig{
			Endpoint:      endpoint,
			TimeoutSecond: 5,
			Reconnect: common.ReconnectConfig{
				InitialInterval: 0.01,
				MaxInterval:     0.05,
			},
			Lock: common.LockConfig{
				TTL:            10,
				LockingTimeout: 10,
			},
		},
		unix.NewUnixClientTransport(),
		serializer.NewJSONSerializer(),
	)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

// TestLockRoundTrip tests acquire and release of a single resource
func TestLockRoundTrip(t *testing.T) {
	endpoint := startTestServer(t)
	s := newTestSession(t, endpoint)
	ctx := testCtx(t)

	id, err := s.Lock1(ctx, "a", nil)
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if id == "" {
		t.Fatal("empty lock id")
	}

	if err := s.ReleaseLock(ctx, id); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	// The id is accepted by exactly one release
	if err := s.ReleaseLock(ctx, id); !errors.Is(err, common.ErrUnknownLock) {
		t.Errorf("second release: got %v, want UnknownLock", err)
	}
}

// TestFIFOAcrossClients tests that two clients contending for one resource
// are served in arrival order
func TestFIFOAcrossClients(t *testing.T) {
	endpoint := startTestServer(t)
	c1 := newTestSession(t, endpoint)
	c2 := newTestSession(t, endpoint)
	ctx := testCtx(t)

	id1, err := c1.Lock1(ctx, "a", nil)
	if err != nil {
		t.Fatalf("first lock failed: %v", err)
	}

	type lockResult struct {
		id  string
		err error
	}
	ch := make(chan lockResult, 1)
	go func() {
		id, err := c2.Lock1(ctx, "a", nil)
		ch <- lockResult{id, err}
	}()

	// The second client is queued, not granted
	select {
	case r := <-ch:
		t.Fatalf("second lock completed early with (%q, %v)", r.id, r.err)
	case <-time.After(200 * time.Millisecond):
	}

	if err := c1.ReleaseLock(ctx, id1); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("second lock failed: %v", r.err)
		}
		if r.id == id1 {
			t.Error("lock id reused across grants")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second lock not granted after release")
	}
}

// TestLockingTimeout tests that a queued acquisition fails with
// LockingTimeout while the holder keeps its lock
func TestLockingTimeout(t *testing.T) {
	endpoint := startTestServer(t)
	c1 := newTestSession(t, endpoint)
	c2 := newTestSession(t, endpoint)
	ctx := testCtx(t)

	id1, err := c1.Lock1(ctx, "a", nil)
	if err != nil {
		t.Fatalf("first lock failed: %v", err)
	}

	start := time.Now()
	_, err = c2.Lock1(ctx, "a", &LockOptions{LockingTimeout: 150 * time.Millisecond})
	if !errors.Is(err, common.ErrLockingTimeout) {
		t.Fatalf("got %v, want LockingTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond || elapsed > 2*time.Second {
		t.Errorf("timeout after %v, want about 150ms", elapsed)
	}

	// The holder is unaffected
	if err := c1.ExtendLock(ctx, id1, 0); err != nil {
		t.Errorf("holder lost its lock: %v", err)
	}
}

// TestOpposingOrderNoDeadlock tests that multi-resource acquisitions naming
// the same resources in opposite order both complete
func TestOpposingOrderNoDeadlock(t *testing.T) {
	endpoint := startTestServer(t)
	c1 := newTestSession(t, endpoint)
	c2 := newTestSession(t, endpoint)
	ctx := testCtx(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, pair := range [][]string{{"a", "b"}, {"b", "a"}} {
		i, pair := i, pair
		sess := []*Session{c1, c2}[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = sess.WithLock(ctx, pair, func(ctx context.Context, _ ExtendFunc) error {
				time.Sleep(50 * time.Millisecond)
				return nil
			}, nil)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("client %d failed: %v", i+1, err)
		}
	}
}

// TestWithLockAutoExtend tests that the auto-extender keeps a short-ttl lock
// held past its ttl while the handler runs, and that the lock is released
// when the handler returns
func TestWithLockAutoExtend(t *testing.T) {
	endpoint := startTestServer(t)
	c1 := newTestSession(t, endpoint)
	c2 := newTestSession(t, endpoint)
	ctx := testCtx(t)

	handlerDone := make(chan struct{})
	lockErr := make(chan error, 1)
	go func() {
		lockErr <- c1.WithLock1(ctx, "x", func(ctx context.Context, _ ExtendFunc) error {
			defer close(handlerDone)
			time.Sleep(700 * time.Millisecond) // sleeps past several ttls
			return nil
		}, &LockOptions{
			TTL:            200 * time.Millisecond,
			LockingTimeout: time.Second,
			ExtendSchedule: 0.5,
			Extends:        ExtendCount(10),
		})
	}()

	// A contender with a timeout shorter than the handler fails
	_, err := c2.Lock1(ctx, "x", &LockOptions{LockingTimeout: 400 * time.Millisecond})
	if !errors.Is(err, common.ErrLockingTimeout) {
		t.Fatalf("contender got %v, want LockingTimeout", err)
	}

	<-handlerDone
	if err := <-lockErr; err != nil {
		t.Fatalf("WithLock failed: %v", err)
	}

	// After the handler returns the lock is released and the resource free
	if _, err := c2.Lock1(ctx, "x", &LockOptions{LockingTimeout: 2 * time.Second}); err != nil {
		t.Fatalf("resource not released after handler: %v", err)
	}
}

// TestWithLockReleasesOnHandlerError tests that the handler error is
// propagated and the lock still released
func TestWithLockReleasesOnHandlerError(t *testing.T) {
	endpoint := startTestServer(t)
	c1 := newTestSession(t, endpoint)
	c2 := newTestSession(t, endpoint)
	ctx := testCtx(t)

	handlerErr := errors.New("handler failed")
	err := c1.WithLock1(ctx, "r", func(ctx context.Context, _ ExtendFunc) error {
		return handlerErr
	}, nil)
	if !errors.Is(err, handlerErr) {
		t.Fatalf("got %v, want the handler error", err)
	}

	if _, err := c2.Lock1(ctx, "r", &LockOptions{LockingTimeout: 2 * time.Second}); err != nil {
		t.Fatalf("resource not released after failing handler: %v", err)
	}
}

// TestDisconnectReleases tests that closing a client's connection frees its
// locks without waiting for any ttl
func TestDisconnectReleases(t *testing.T) {
	endpoint := startTestServer(t)
	c1 := newTestSession(t, endpoint)
	c2 := newTestSession(t, endpoint)
	ctx := testCtx(t)

	if _, err := c1.Lock1(ctx, "r", &LockOptions{TTL: time.Hour}); err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	type lockResult struct {
		id  string
		err error
	}
	ch := make(chan lockResult, 1)
	go func() {
		id, err := c2.Lock1(ctx, "r", &LockOptions{LockingTimeout: 30 * time.Second})
		ch <- lockResult{id, err}
	}()
	time.Sleep(100 * time.Millisecond)

	// Drop c1's connection
	c1.Close()

	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("waiter failed: %v", r.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("resource not reclaimed after disconnect")
	}
}

// TestTTLExpiryAcrossClients tests that a never-extended lock becomes
// acquirable within its ttl
func TestTTLExpiryAcrossClients(t *testing.T) {
	endpoint := startTestServer(t)
	c1 := newTestSession(t, endpoint)
	c2 := newTestSession(t, endpoint)
	ctx := testCtx(t)

	if _, err := c1.Lock1(ctx, "r", &LockOptions{TTL: 200 * time.Millisecond}); err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	start := time.Now()
	if _, err := c2.Lock1(ctx, "r", &LockOptions{LockingTimeout: 5 * time.Second}); err != nil {
		t.Fatalf("waiter failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("waiter granted after %v, before the ttl", elapsed)
	}
}

// TestOwnerIsolation tests that extend and release by a non-owner fail with
// NotOwner and do not affect the lock
func TestOwnerIsolation(t *testing.T) {
	endpoint := startTestServer(t)
	c1 := newTestSession(t, endpoint)
	c2 := newTestSession(t, endpoint)
	ctx := testCtx(t)

	id, err := c1.Lock1(ctx, "a", nil)
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	if err := c2.ReleaseLock(ctx, id); !errors.Is(err, common.ErrNotOwner) {
		t.Errorf("foreign release: got %v, want NotOwner", err)
	}
	if err := c2.ExtendLock(ctx, id, 0); !errors.Is(err, common.ErrNotOwner) {
		t.Errorf("foreign extend: got %v, want NotOwner", err)
	}

	// The owner's lock is untouched
	if err := c1.ReleaseLock(ctx, id); err != nil {
		t.Errorf("owner release failed: %v", err)
	}
}

// TestInvalidRequests tests server side validation
func TestInvalidRequests(t *testing.T) {
	endpoint := startTestServer(t)
	s := newTestSession(t, endpoint)
	ctx := testCtx(t)

	if _, err := s.Lock(ctx, []string{}, nil); !errors.Is(err, common.ErrInvalidRequest) {
		t.Errorf("empty resources: got %v, want InvalidRequest", err)
	}
	if err := s.ExtendLock(ctx, "no-such-lock", 0); !errors.Is(err, common.ErrUnknownLock) {
		t.Errorf("unknown extend: got %v, want UnknownLock", err)
	}
}

// TestReconnectAfterServerStart tests that a session dialing a dead endpoint
// backs off and connects once the server appears
func TestReconnectAfterServerStart(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "olock.sock")

	lc := &logCollector{}
	s := newTestSession(t, endpoint)
	s.HandleLog(lc.collect)

	// Let a few attempts fail
	deadline := time.Now().Add(5 * time.Second)
	for len(lc.byType(LogConnectError)) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("no connect errors recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Bring the server up at that endpoint
	srv := server.NewRPCServer(
		common.ServerConfig{
			Transport: common.ServerTransportConfig{Endpoint: endpoint},
			LogLevel:  "error",
		},
		unix.NewUnixServerTransport(),
		serializer.NewJSONSerializer(),
	)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	// The session recovers and calls succeed
	ctx := testCtx(t)
	id, err := s.Lock1(ctx, "a", nil)
	if err != nil {
		t.Fatalf("lock after reconnect failed: %v", err)
	}
	if err := s.ReleaseLock(ctx, id); err != nil {
		t.Fatalf("release after reconnect failed: %v", err)
	}

	if len(lc.byType(LogConnectDelay)) == 0 {
		t.Error("no connect-delay entries recorded")
	}
	if len(lc.byType(LogConnected)) == 0 {
		t.Error("no connected entry recorded")
	}
}

// TestConcurrentCallsInterleave tests multiple in-flight calls on one
// connection correlated by id
func TestConcurrentCallsInterleave(t *testing.T) {
	endpoint := startTestServer(t)
	s := newTestSession(t, endpoint)
	ctx := testCtx(t)

	const n = 16
	ids := make([]string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Lock(ctx, []string{"res-" + string(rune('a'+i))}, nil)
			if err != nil {
				t.Errorf("lock %d failed: %v", i, err)
				return
			}
			ids[i] = id
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, id := range ids {
		if id == "" {
			continue
		}
		if seen[id] {
			t.Errorf("duplicate lock id at %d", i)
		}
		seen[id] = true
		if err := s.ReleaseLock(ctx, id); err != nil {
			t.Errorf("release %d failed: %v", i, err)
		}
	}
}
