package callrequest

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory repository for tests and early development.
//
// It provides the same atomicity contract as the Postgres partial unique
// index: FindOrCreatePending is a single critical section, so concurrent
// upserts for one pair can never leave two pending rows behind.
type MemoryRepo struct {
	mu       sync.Mutex
	requests []CallRequest
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) FindOrCreatePending(ctx context.Context, req CallRequest) (CallRequest, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.requests {
		if existing.PairA == req.PairA && existing.PairB == req.PairB && existing.State == StatePending {
			return existing, false, nil
		}
	}
	r.requests = append(r.requests, req)
	return req, true, nil
}

func (r *MemoryRepo) CancelPendingByInitiator(ctx context.Context, pairA, pairB, initiator, reason string, respondedAt time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for i := range r.requests {
		cur := &r.requests[i]
		if cur.PairA != pairA || cur.PairB != pairB || cur.State != StatePending || cur.Initiator != initiator {
			continue
		}
		at := respondedAt
		cur.State = StateCancelled
		cur.Reason = reason
		cur.RespondedAt = &at
		n++
	}
	return n, nil
}

func (r *MemoryRepo) ClosePendingFromInitiator(ctx context.Context, pairA, pairB, initiator string, newState State, reason string, respondedAt time.Time) (CallRequest, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.requests {
		cur := &r.requests[i]
		if cur.PairA != pairA || cur.PairB != pairB || cur.State != StatePending || cur.Initiator != initiator {
			continue
		}
		at := respondedAt
		cur.State = newState
		cur.Reason = reason
		cur.RespondedAt = &at
		return *cur, true, nil
	}
	return CallRequest{}, false, nil
}

func (r *MemoryRepo) LastByPair(ctx context.Context, pairA, pairB string) (CallRequest, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Scan in insertion order; the latest requestedAt wins, insertion
	// order breaks ties.
	var (
		out   CallRequest
		found bool
	)
	for _, cur := range r.requests {
		if cur.PairA != pairA || cur.PairB != pairB {
			continue
		}
		if !found || !cur.RequestedAt.Before(out.RequestedAt) {
			out = cur
			found = true
		}
	}
	return out, found, nil
}

func (r *MemoryRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]CallRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]CallRequest, 0)
	for _, cur := range r.requests {
		if cur.State != StatePending || !cur.RequestedAt.Before(olderThan) {
			continue
		}
		out = append(out, cur)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// PendingCount reports pending rows for a pair; test helper.
func (r *MemoryRepo) PendingCount(pairA, pairB string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for _, cur := range r.requests {
		if cur.PairA == pairA && cur.PairB == pairB && cur.State == StatePending {
			n++
		}
	}
	return n
}
