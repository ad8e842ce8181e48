// Package locker implements the server side lock manager: per-resource FIFO
// wait queues, multi-resource atomic acquisition, ttl based expiry and
// per-owner bookkeeping so that a disconnecting client releases everything
// it holds.
//
// Core Functionality:
//   - Acquisition of one or more resources in strict arrival order
//   - Locking timeouts bounding how long an acquisition may wait
//   - Automatic expiry of held locks whose owner stops extending them
//   - Extension of a held lock's deadline
//   - Owner shutdown releasing all held locks and cancelling all waiters
//
// Implementation Approach:
//
//	Every acquisition is appended to the tail of each requested resource's
//	queue, always walking the resources in ascending order. An acquisition
//	is granted the moment it is at the head of all of its queues. Because
//	any two acquisitions that share resources are appended in the same
//	canonical order, one of them is strictly earlier in every shared queue;
//	cyclic waits between multi-resource acquisitions therefore cannot form.
//
//	When a lock leaves its queues (release, expiry, timeout, cancellation),
//	the freed resources are re-examined in ascending order and every new
//	head whose entire resource set is now head-of-queue is granted. The
//	fixed order makes the promotion schedule deterministic and reproducible.
//
// Thread Safety:
//
//	All mutations run under a single mutex, so operations take effect
//	atomically in a total order consistent with their arrival order. Timers
//	fire into the same mutex and spurious firings are guarded by the
//	terminal released state. No reply callback and no I/O runs inside the
//	critical section; completions are captured inside and fired after
//	leaving it.
package locker
