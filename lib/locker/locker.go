package locker

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("locker")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// ReplyFunc delivers the outcome of an acquisition: a lock id on success, or
// one of this package's sentinel errors. It is invoked exactly once, outside
// the manager's critical section.
type ReplyFunc func(lockID string, err error)

// Owner identifies the party (typically one server connection) on whose
// behalf locks are acquired. Closing the owner releases everything it holds.
type Owner struct {
	name    string
	held    map[string]*lock
	waiting map[*lock]struct{}
	closed  bool
}

// Name returns the display name given to NewOwner.
func (o *Owner) Name() string { return o.name }

// lockState tracks the lifecycle of an acquisition. The released state is
// terminal; ids are never reused.
type lockState uint8

const (
	stateWaiting  lockState = iota // enqueued, not yet at the head of all queues
	stateHeld                      // holding all its resources
	stateReleased                  // released, expired, timed out, or cancelled
)

// lock is one acquisition, from enqueue to release. While waiting the timer
// is the locking-timeout timer; once held it is the ttl expiry timer.
type lock struct {
	id        string   // assigned at promotion
	resources []string // deduped, first-occurrence order
	sorted    []string // deduped, ascending; queue enqueue/advance order
	owner     *Owner
	ttl       time.Duration // ttl given at acquire; the extend default
	expiresAt time.Time
	state     lockState
	timer     *time.Timer
	reply     ReplyFunc
}

// completion is a reply captured inside the critical section and fired after
// leaving it, so that no network write happens under the mutex.
type completion struct {
	reply ReplyFunc
	id    string
	err   error
}

// Manager is the single source of truth for which resource is held by which
// lock. Every mutation runs under one mutex, so acquire, release, extend,
// expiry and owner shutdown take effect atomically in a total order.
type Manager struct {
	mu     sync.Mutex
	queues map[string][]*lock // per-resource FIFO; the head is held or next in line
	held   map[string]*lock   // held locks by id
}

// NewManager creates an empty lock manager.
func NewManager() *Manager {
	return &Manager{
		queues: make(map[string][]*lock),
		held:   make(map[string]*lock),
	}
}

// NewOwner registers a new lock owner. The name is only used in logs.
func (m *Manager) NewOwner(name string) *Owner {
	return &Owner{
		name:    name,
		held:    make(map[string]*lock),
		waiting: make(map[*lock]struct{}),
	}
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

// Acquire enqueues an acquisition for the given resources and replies with a
// lock id once the acquisition is at the head of every queue it joined.
//
// Resources are deduplicated preserving first occurrence and enqueued in
// ascending order, which keeps independent multi-resource requests from
// waiting on each other in a cycle. If lockingTimeout elapses first, reply
// receives ErrLockingTimeout; if the owner closes first, ErrCancelled.
func (m *Manager) Acquire(owner *Owner, resources []string, ttl, lockingTimeout time.Duration, reply ReplyFunc) {
	res := dedupe(resources)
	if len(res) == 0 {
		reply("", ErrInvalidResources)
		return
	}
	for _, r := range res {
		if r == "" {
			reply("", ErrInvalidResources)
			return
		}
	}
	if ttl <= 0 {
		reply("", ErrInvalidTTL)
		return
	}

	sorted := append([]string(nil), res...)
	sort.Strings(sorted)

	lk := &lock{
		resources: res,
		sorted:    sorted,
		owner:     owner,
		ttl:       ttl,
		state:     stateWaiting,
		reply:     reply,
	}

	m.mu.Lock()

	if owner.closed {
		m.mu.Unlock()
		reply("", ErrCancelled)
		return
	}

	owner.waiting[lk] = struct{}{}
	for _, r := range sorted {
		m.queues[r] = append(m.queues[r], lk)
	}
	metricsWaiting.Inc()

	var comps []completion
	switch {
	case m.eligible(lk):
		comps = append(comps, m.promote(lk))
	case lockingTimeout > 0:
		lk.timer = time.AfterFunc(lockingTimeout, func() { m.timeout(lk) })
	default:
		// No waiting allowed and the resources are busy
		comps = append(comps, m.removeWaiting(lk, ErrLockingTimeout))
		metricsTimedOut.Inc()
	}

	m.mu.Unlock()
	fire(comps)
}

// Release releases a held lock and promotes newly eligible waiters.
func (m *Manager) Release(owner *Owner, lockID string) error {
	m.mu.Lock()

	lk, ok := m.held[lockID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownLock
	}
	if lk.owner != owner {
		m.mu.Unlock()
		return ErrNotOwner
	}

	freed := m.removeHeld(lk)
	comps := m.advance(freed)

	m.mu.Unlock()
	metricsReleased.Inc()
	Logger.Debugf("released lock %s for %s", lockID, owner.name)
	fire(comps)
	return nil
}

// Extend resets a held lock's deadline to now + ttl. A ttl of zero re-arms
// with the ttl given at acquire. The extend ttl does not replace that default.
func (m *Manager) Extend(owner *Owner, lockID string, ttl time.Duration) error {
	if ttl < 0 {
		return ErrInvalidTTL
	}

	m.mu.Lock()

	lk, ok := m.held[lockID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownLock
	}
	if lk.owner != owner {
		m.mu.Unlock()
		return ErrNotOwner
	}

	if ttl == 0 {
		ttl = lk.ttl
	}
	lk.expiresAt = time.Now().Add(ttl)
	lk.timer.Stop()
	lk.timer = time.AfterFunc(ttl, func() { m.expire(lk) })

	m.mu.Unlock()
	metricsExtended.Inc()
	Logger.Debugf("extended lock %s for %s by %v", lockID, owner.name, ttl)
	return nil
}

// ReleaseOwner cancels the owner's waiting acquisitions and releases its held
// locks. The manager is quiescent with respect to the owner when it returns;
// later Acquire calls on the same owner reply with ErrCancelled.
func (m *Manager) ReleaseOwner(owner *Owner) {
	m.mu.Lock()

	if owner.closed {
		m.mu.Unlock()
		return
	}
	owner.closed = true

	var comps []completion
	freedSet := make(map[string]struct{})

	for lk := range owner.waiting {
		comps = append(comps, m.removeWaiting(lk, ErrCancelled))
		metricsCancelled.Inc()
		for _, r := range lk.sorted {
			freedSet[r] = struct{}{}
		}
	}
	for _, lk := range heldLocks(owner) {
		for _, r := range m.removeHeld(lk) {
			freedSet[r] = struct{}{}
		}
		metricsExpired.Inc()
	}

	freed := make([]string, 0, len(freedSet))
	for r := range freedSet {
		freed = append(freed, r)
	}
	sort.Strings(freed)
	comps = append(comps, m.advance(freed)...)

	m.mu.Unlock()
	Logger.Infof("released all locks of %s", owner.name)
	fire(comps)
}

// --------------------------------------------------------------------------
// Timer callbacks
// --------------------------------------------------------------------------

// timeout fires when a waiting acquisition's locking timeout elapses. A
// firing that lost the race against promotion is a no-op.
func (m *Manager) timeout(lk *lock) {
	m.mu.Lock()
	if lk.state != stateWaiting {
		m.mu.Unlock()
		return
	}

	comps := []completion{m.removeWaiting(lk, ErrLockingTimeout)}
	comps = append(comps, m.advance(lk.sorted)...)

	m.mu.Unlock()
	metricsTimedOut.Inc()
	Logger.Debugf("acquisition of %v by %s timed out", lk.resources, lk.owner.name)
	fire(comps)
}

// expire fires when a held lock's ttl elapses. A firing that lost the race
// against release or extend is a no-op: release leaves the terminal state,
// extend moves expiresAt into the future.
func (m *Manager) expire(lk *lock) {
	m.mu.Lock()
	if lk.state != stateHeld || time.Now().Before(lk.expiresAt) {
		m.mu.Unlock()
		return
	}

	freed := m.removeHeld(lk)
	comps := m.advance(freed)

	m.mu.Unlock()
	metricsExpired.Inc()
	Logger.Infof("lock %s of %s expired (resources %v)", lk.id, lk.owner.name, lk.resources)
	fire(comps)
}

// --------------------------------------------------------------------------
// Internal state transitions (callers hold m.mu)
// --------------------------------------------------------------------------

// eligible reports whether lk is at the head of every one of its queues.
func (m *Manager) eligible(lk *lock) bool {
	for _, r := range lk.sorted {
		q := m.queues[r]
		if len(q) == 0 || q[0] != lk {
			return false
		}
	}
	return true
}

// promote transitions a waiting acquisition to a held lock: assigns the id,
// arms the expiry timer and indexes the lock under its owner.
func (m *Manager) promote(lk *lock) completion {
	if lk.timer != nil {
		lk.timer.Stop()
	}

	lk.id = uuid.NewString()
	lk.state = stateHeld
	lk.expiresAt = time.Now().Add(lk.ttl)
	lk.timer = time.AfterFunc(lk.ttl, func() { m.expire(lk) })

	m.held[lk.id] = lk
	lk.owner.held[lk.id] = lk
	delete(lk.owner.waiting, lk)

	metricsWaiting.Dec()
	metricsHeld.Inc()
	metricsAcquired.Inc()
	Logger.Debugf("granted lock %s on %v to %s", lk.id, lk.resources, lk.owner.name)

	c := completion{reply: lk.reply, id: lk.id}
	lk.reply = nil
	return c
}

// removeWaiting takes a waiting acquisition out of every queue it joined and
// captures its failure reply.
func (m *Manager) removeWaiting(lk *lock, cause error) completion {
	if lk.timer != nil {
		lk.timer.Stop()
	}
	lk.state = stateReleased
	m.dequeue(lk)
	delete(lk.owner.waiting, lk)
	metricsWaiting.Dec()

	c := completion{reply: lk.reply, err: cause}
	lk.reply = nil
	return c
}

// removeHeld takes a held lock out of the indexes and returns the resources
// it freed. The lock sits at the head of each of its queues.
func (m *Manager) removeHeld(lk *lock) []string {
	lk.state = stateReleased
	lk.timer.Stop()
	delete(m.held, lk.id)
	delete(lk.owner.held, lk.id)
	m.dequeue(lk)
	metricsHeld.Dec()
	return lk.sorted
}

// dequeue removes lk from every queue it joined, dropping empty queues.
func (m *Manager) dequeue(lk *lock) {
	for _, r := range lk.sorted {
		q := m.queues[r]
		for i, e := range q {
			if e == lk {
				q = append(q[:i], q[i+1:]...)
				break
			}
		}
		if len(q) == 0 {
			delete(m.queues, r)
		} else {
			m.queues[r] = q
		}
	}
}

// advance re-examines the freed resources in ascending order and promotes
// every new head whose entire resource set is now head-of-queue. The order
// makes the promotion schedule deterministic.
func (m *Manager) advance(freed []string) []completion {
	var comps []completion
	for _, r := range freed {
		q := m.queues[r]
		if len(q) == 0 {
			continue
		}
		h := q[0]
		if h.state == stateWaiting && m.eligible(h) {
			comps = append(comps, m.promote(h))
		}
	}
	return comps
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// fire delivers captured completions. Runs outside the critical section.
func fire(comps []completion) {
	for _, c := range comps {
		if c.reply != nil {
			c.reply(c.id, c.err)
		}
	}
}

// dedupe removes duplicate resource ids preserving first occurrence.
func dedupe(resources []string) []string {
	seen := make(map[string]struct{}, len(resources))
	out := make([]string, 0, len(resources))
	for _, r := range resources {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// heldLocks snapshots an owner's held locks so they can be removed while
// iterating.
func heldLocks(owner *Owner) []*lock {
	locks := make([]*lock, 0, len(owner.held))
	for _, lk := range owner.held {
		locks = append(locks, lk)
	}
	return locks
}
