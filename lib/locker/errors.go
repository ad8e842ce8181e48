package locker

import "errors"

var (
	// ErrInvalidResources indicates an acquisition with an empty resource set.
	ErrInvalidResources = errors.New("locker: resource set is empty")

	// ErrInvalidTTL indicates a non-positive ttl.
	ErrInvalidTTL = errors.New("locker: ttl must be positive")

	// ErrLockingTimeout indicates the locking timeout elapsed before the
	// acquisition reached the head of all its queues.
	ErrLockingTimeout = errors.New("locker: locking timeout elapsed")

	// ErrCancelled indicates the owning connection closed while the
	// acquisition was still waiting. No response is sent for it.
	ErrCancelled = errors.New("locker: acquisition cancelled")

	// ErrUnknownLock indicates the lock id does not exist: released, expired,
	// or never issued.
	ErrUnknownLock = errors.New("locker: unknown lock")

	// ErrNotOwner indicates an operation on a lock held by another owner.
	ErrNotOwner = errors.New("locker: not the lock owner")
)
