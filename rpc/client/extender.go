package client

import (
	"context"
	"sync"
	"time"

	"github.com/makeflow/ordered-lock/rpc/common"
)

// ExtendPolicy decides whether the auto-extender issues another extension.
// It receives the attempt counter starting at zero and returns the ttl for
// the next extension and whether to extend at all. A ttl of zero means "the
// ttl given at acquire"; a negative ttl stops the extender like ok == false.
type ExtendPolicy func(attempt int) (ttl time.Duration, ok bool)

// ExtendCount permits up to n extensions, each with the acquire ttl.
func ExtendCount(n int) ExtendPolicy {
	return func(attempt int) (time.Duration, bool) {
		return 0, attempt < n
	}
}

// ExtendForever extends with the acquire ttl until the handler completes.
func ExtendForever() ExtendPolicy {
	return func(int) (time.Duration, bool) {
		return 0, true
	}
}

// extender is the background task keeping a lock alive while a WithLock
// handler runs. It wakes every interval, consults the policy and issues an
// extend on the connection the lock was acquired on. An extend failure is
// reported to the log stream and stops the extender; the handler keeps
// running and is responsible for tolerating lock loss.
type extender struct {
	session  *Session
	conn     *Conn
	lockID   string
	interval time.Duration
	policy   ExtendPolicy

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func newExtender(s *Session, c *Conn, lockID string, interval time.Duration, policy ExtendPolicy) *extender {
	return &extender{
		session:  s,
		conn:     c,
		lockID:   lockID,
		interval: interval,
		policy:   policy,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// run is the extender loop. The cancellation flag is checked before and
// after every sleep so that no trailing extend is issued once the handler
// has completed.
func (e *extender) run() {
	defer close(e.done)

	for attempt := 0; ; attempt++ {
		select {
		case <-e.stopCh:
			return
		default:
		}

		timer := time.NewTimer(e.interval)
		select {
		case <-e.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		select {
		case <-e.stopCh:
			return
		default:
		}

		ttl, ok := e.policy(attempt)
		if !ok || ttl < 0 {
			return
		}

		if err := e.extend(ttl); err != nil {
			e.session.emitLog(LogEntry{Type: LogExtendLockError, Err: err, LockID: e.lockID})
			return
		}
	}
}

// stop cancels the extender and waits for its termination.
func (e *extender) stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	<-e.done
}

// extend issues one extend-lock call, bounded by the wake interval so a
// stalled call cannot pile up behind the next tick.
func (e *extender) extend(ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.interval)
	defer cancel()

	_, err := e.conn.Call(ctx, common.MethodExtendLock, common.ExtendLockParams{
		LockID: e.lockID,
		TTL:    common.DurationSeconds(ttl),
	})
	return err
}
