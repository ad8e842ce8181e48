package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/makeflow/ordered-lock/rpc/common"
)

// ExtendFunc resets the held lock's deadline to now + ttl. A zero ttl
// re-arms with the ttl given at acquire.
type ExtendFunc func(ctx context.Context, ttl time.Duration) error

// Handler is the critical section run by WithLock. The extend function
// forwards to extend-lock for the held lock. The handler must tolerate lock
// loss: an auto-extend failure stops the extender but does not interrupt it.
type Handler func(ctx context.Context, extend ExtendFunc) error

// LockOptions override the session's lock defaults for a single call. Zero
// fields fall back to the configured defaults.
type LockOptions struct {
	// TTL is how long the lock survives without an extension
	TTL time.Duration

	// LockingTimeout bounds how long the acquisition may wait
	LockingTimeout time.Duration

	// ExtendSchedule is the fraction of the ttl after which the auto-extender
	// wakes up
	ExtendSchedule float64

	// Extends decides whether the auto-extender issues another extension.
	// Nil disables auto-extending.
	Extends ExtendPolicy
}

// --------------------------------------------------------------------------
// Lock API
// --------------------------------------------------------------------------

// Lock acquires a lock on the given resources and returns its id. The call
// waits for a connection, then for the lock, bounded by the locking timeout.
func (s *Session) Lock(ctx context.Context, resources []string, opts *LockOptions) (string, error) {
	_, lockID, _, err := s.acquire(ctx, resources, opts)
	return lockID, err
}

// Lock1 is Lock for a single resource id.
func (s *Session) Lock1(ctx context.Context, resource string, opts *LockOptions) (string, error) {
	return s.Lock(ctx, []string{resource}, opts)
}

// ExtendLock resets a held lock's deadline to now + ttl. A zero ttl re-arms
// with the ttl given at acquire.
func (s *Session) ExtendLock(ctx context.Context, lockID string, ttl time.Duration) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	_, err = c.Call(callCtx, common.MethodExtendLock, common.ExtendLockParams{
		LockID: lockID,
		TTL:    common.DurationSeconds(ttl),
	})
	return err
}

// ReleaseLock releases a held lock.
func (s *Session) ReleaseLock(ctx context.Context, lockID string) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	_, err = c.Call(callCtx, common.MethodReleaseLock, common.ReleaseLockParams{LockID: lockID})
	return err
}

// WithLock acquires a lock, runs the handler, and releases the lock when the
// handler returns. If an extend policy is configured, a background extender
// keeps the lock alive for the duration of the handler. Release failures are
// reported to the log stream only: the handler result is the outcome that
// matters, and the server reclaims the lock at its ttl regardless.
func (s *Session) WithLock(ctx context.Context, resources []string, handler Handler, opts *LockOptions) error {
	c, lockID, resolved, err := s.acquire(ctx, resources, opts)
	if err != nil {
		return err
	}

	// Release after the extender has stopped (deferred calls run in reverse)
	defer s.releaseHeld(c, lockID)

	if resolved.policy != nil {
		ext := newExtender(s, c, lockID, resolved.interval, resolved.policy)
		go ext.run()
		defer ext.stop()
	}

	extend := func(ctx context.Context, ttl time.Duration) error {
		callCtx, cancel := s.callContext(ctx)
		defer cancel()
		_, err := c.Call(callCtx, common.MethodExtendLock, common.ExtendLockParams{
			LockID: lockID,
			TTL:    common.DurationSeconds(ttl),
		})
		return err
	}

	return handler(ctx, extend)
}

// WithLock1 is WithLock for a single resource id.
func (s *Session) WithLock1(ctx context.Context, resource string, handler Handler, opts *LockOptions) error {
	return s.WithLock(ctx, []string{resource}, handler, opts)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// resolvedOptions are the lock options after applying the session defaults
type resolvedOptions struct {
	ttl            time.Duration
	lockingTimeout time.Duration
	interval       time.Duration // auto-extender wake interval
	policy         ExtendPolicy
}

// resolveOptions merges per-call options into the session's lock defaults
func (s *Session) resolveOptions(opts *LockOptions) resolvedOptions {
	r := resolvedOptions{
		ttl:            s.config.Lock.TTL.Duration(),
		lockingTimeout: s.config.Lock.LockingTimeout.Duration(),
	}

	schedule := s.config.Lock.ExtendSchedule
	if opts != nil {
		if opts.TTL > 0 {
			r.ttl = opts.TTL
		}
		if opts.LockingTimeout > 0 {
			r.lockingTimeout = opts.LockingTimeout
		}
		if opts.ExtendSchedule > 0 {
			schedule = opts.ExtendSchedule
		}
		r.policy = opts.Extends
	}
	if schedule <= 0 || schedule >= 1 {
		schedule = common.DefaultExtendSchedule
	}

	r.interval = time.Duration(float64(r.ttl) * schedule)
	return r
}

// acquire issues the lock call and returns the connection it was made on;
// extends and the release of this lock have to use the same connection.
func (s *Session) acquire(ctx context.Context, resources []string, opts *LockOptions) (*Conn, string, resolvedOptions, error) {
	resolved := s.resolveOptions(opts)

	c, err := s.conn(ctx)
	if err != nil {
		return nil, "", resolved, err
	}

	// The server answers within the locking timeout; bound the wait to that
	// plus the configured call timeout
	callCtx := ctx
	if s.config.TimeoutSecond > 0 {
		slack := time.Duration(s.config.TimeoutSecond) * time.Second
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, resolved.lockingTimeout+slack)
		defer cancel()
	}

	result, err := c.Call(callCtx, common.MethodLock, common.LockParams{
		Resources: resources,
		Options: common.LockOptions{
			TTL:            common.DurationSeconds(resolved.ttl),
			LockingTimeout: common.DurationSeconds(resolved.lockingTimeout),
		},
	})
	if err != nil {
		return nil, "", resolved, err
	}

	var lockID string
	if err := json.Unmarshal(result, &lockID); err != nil {
		return nil, "", resolved, fmt.Errorf("malformed lock result: %v", err)
	}
	return c, lockID, resolved, nil
}

// releaseHeld releases a lock in a WithLock cleanup path. Errors only go to
// the log stream. A dead connection means the server has reclaimed the lock
// already, so nothing is sent in that case.
func (s *Session) releaseHeld(c *Conn, lockID string) {
	select {
	case <-c.Done():
		return
	default:
	}

	callCtx, cancel := s.callContext(context.Background())
	defer cancel()

	if _, err := c.Call(callCtx, common.MethodReleaseLock, common.ReleaseLockParams{LockID: lockID}); err != nil {
		s.emitLog(LogEntry{Type: LogReleaseLockError, Err: err, LockID: lockID})
	}
}

// callContext bounds a single call by the configured timeout
func (s *Session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.TimeoutSecond > 0 {
		return context.WithTimeout(ctx, time.Duration(s.config.TimeoutSecond)*time.Second)
	}
	return context.WithCancel(ctx)
}
