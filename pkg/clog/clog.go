// Package clog implements the commit log (spec.md §2.1, §4.1): the
// authoritative per-transaction status map consulted by the visibility
// oracle. Modeled after the teacher's TransactionRegistry, but tracking
// final status instead of just liveness, since MVCC visibility needs to
// distinguish committed from aborted, not merely in-progress from gone.
package clog

import "sync"

// Status is the final (or pending) disposition of a transaction.
type Status uint8

const (
	// InProgress is also the default for any tx_id never observed — CLOG
	// lookup must be conservative (spec.md §4.1).
	InProgress Status = iota
	Committed
	Aborted
)

func (s Status) String() string {
	switch s {
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "in-progress"
	}
}

// CLog is the transaction-id -> status map. Construct it with New; the zero
// value has no map to record statuses in.
type CLog struct {
	mu     sync.RWMutex
	status map[uint64]Status
}

func New() *CLog {
	return &CLog{status: make(map[uint64]Status)}
}

// Status returns the recorded status for txID, defaulting to InProgress for
// any id not yet seen (covers both "not yet begun" and "began but not yet
// flipped", both of which must be treated as not-committed by the oracle).
func (c *CLog) Status(txID uint64) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.status[txID]; ok {
		return s
	}
	return InProgress
}

// MarkInProgress registers txID explicitly, mainly so Status() calls during
// recovery can distinguish "known in-progress" from "never seen" when
// inspecting the map for diagnostics. Functionally equivalent to the
// default.
func (c *CLog) MarkInProgress(txID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[txID] = InProgress
}

// MarkCommitted flips txID to committed. Callers must have already made the
// transaction's WAL COMMIT record durable (spec.md §4.1 ordering invariant)
// before calling this.
func (c *CLog) MarkCommitted(txID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[txID] = Committed
}

// MarkAborted flips txID to aborted.
func (c *CLog) MarkAborted(txID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[txID] = Aborted
}

// IsCommitted is a convenience predicate used throughout the visibility
// oracle.
func (c *CLog) IsCommitted(txID uint64) bool { return c.Status(txID) == Committed }

// IsAborted is a convenience predicate used by recovery and rollback.
func (c *CLog) IsAborted(txID uint64) bool { return c.Status(txID) == Aborted }
