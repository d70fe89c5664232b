package migrate

import (
	"sync"
	"sync/atomic"
)

// SharedState is the process-global record for a single engine run: atomic
// progress counters, a cancellation flag, and the one-shot totals published
// by the counter and read by the monitor.
type SharedState struct {
	cancelled atomic.Bool

	observed  atomic.Uint64
	received  atomic.Uint64
	stored    atomic.Uint64
	committed atomic.Uint64
	failed    atomic.Uint64

	totalsMu       sync.Mutex
	totalCount     uint64
	totalSet       bool
	remainingCount uint64
	remainingSet   bool
}

// NewSharedState returns a freshly initialized, unshared SharedState.
func NewSharedState() *SharedState {
	return &SharedState{}
}

// IsCancelled is a lock-free read of the cancellation flag.
func (s *SharedState) IsCancelled() bool { return s.cancelled.Load() }

// Cancel sets the cancellation flag. Idempotent.
func (s *SharedState) Cancel() { s.cancelled.Store(true) }

// CheckCancellation returns ErrCancelled if the flag is set, nil otherwise.
// Every worker calls this at the end of each item it processes.
func (s *SharedState) CheckCancellation() error {
	if s.cancelled.Load() {
		return ErrCancelled
	}
	return nil
}

func (s *SharedState) AddObserved(n uint64)  { s.observed.Add(n) }
func (s *SharedState) AddReceived(n uint64)  { s.received.Add(n) }
func (s *SharedState) AddStored(n uint64)    { s.stored.Add(n) }
func (s *SharedState) AddCommitted(n uint64) { s.committed.Add(n) }
func (s *SharedState) AddFailed(n uint64)    { s.failed.Add(n) }

func (s *SharedState) Observed() uint64  { return s.observed.Load() }
func (s *SharedState) Received() uint64  { return s.received.Load() }
func (s *SharedState) Stored() uint64    { return s.stored.Load() }
func (s *SharedState) Committed() uint64 { return s.committed.Load() }
func (s *SharedState) Failed() uint64    { return s.failed.Load() }

// SetTotalCount publishes the total row count exactly once; subsequent calls
// are no-ops, matching the "write-once" semantics of the source optional.
func (s *SharedState) SetTotalCount(n uint64) {
	s.totalsMu.Lock()
	defer s.totalsMu.Unlock()
	if !s.totalSet {
		s.totalCount = n
		s.totalSet = true
	}
}

// SetRemainingCount publishes the remaining row count exactly once.
func (s *SharedState) SetRemainingCount(n uint64) {
	s.totalsMu.Lock()
	defer s.totalsMu.Unlock()
	if !s.remainingSet {
		s.remainingCount = n
		s.remainingSet = true
	}
}

// TotalCount returns the published total and whether it has been set yet.
func (s *SharedState) TotalCount() (uint64, bool) {
	s.totalsMu.Lock()
	defer s.totalsMu.Unlock()
	return s.totalCount, s.totalSet
}

// RemainingCount returns the published remaining count and whether it has
// been set yet.
func (s *SharedState) RemainingCount() (uint64, bool) {
	s.totalsMu.Lock()
	defer s.totalsMu.Unlock()
	return s.remainingCount, s.remainingSet
}
