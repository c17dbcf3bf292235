package callrequest

import (
	"context"
	"errors"
	"time"

	"musicmatch-platform/internal/pairkey"

	"github.com/google/uuid"
)

// Repository is the persistence contract for call requests.
//
// Correctness note: multiple service instances may race to create the first
// pending request for a pair. FindOrCreatePending must therefore be atomic
// in storage (partial unique index, conditional transaction, or equivalent);
// an in-process lock is not sufficient. The service never does an unguarded
// read-then-write around pending creation.
type Repository interface {
	// FindOrCreatePending atomically returns the existing pending request
	// for the pair, or inserts req as the new pending request. The bool
	// reports whether a new row was created.
	FindOrCreatePending(ctx context.Context, req CallRequest) (CallRequest, bool, error)

	// CancelPendingByInitiator moves pending rows for the pair whose
	// initiator matches to cancelled, stamping reason and respondedAt.
	// Returns the number of rows transitioned.
	CancelPendingByInitiator(ctx context.Context, pairA, pairB, initiator, reason string, respondedAt time.Time) (int, error)

	// ClosePendingFromInitiator transitions the pending request for the
	// pair whose initiator matches to newState. The bool is false when no
	// such pending row exists.
	ClosePendingFromInitiator(ctx context.Context, pairA, pairB, initiator string, newState State, reason string, respondedAt time.Time) (CallRequest, bool, error)

	// LastByPair returns the most recently created request for the pair
	// regardless of state (by requestedAt, insertion order as tiebreak).
	LastByPair(ctx context.Context, pairA, pairB string) (CallRequest, bool, error)

	// ListStalePending returns pending requests created before olderThan,
	// oldest first, up to limit. Used by the expiry sweeper.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]CallRequest, error)
}

var (
	// ErrInvalidArgument covers malformed identifiers (empty strings).
	ErrInvalidArgument = errors.New("callrequest: invalid argument")
	// ErrSelfPair rejects a user calling themselves.
	ErrSelfPair = errors.New("callrequest: cannot request a call with yourself")
)

// Service is the pairwise call-request state machine.
//
// Expected absence (nothing pending to accept/reject/cancel) is modeled as
// a false bool, never an error: losing the race to a peer's cancel is a
// routine outcome of concurrent UI interactions, not a fault.
type Service struct {
	repo Repository

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// UpsertOutgoingRequest creates the pending request from fromUser to toUser,
// or returns the existing pending request for the pair unchanged, regardless
// of which side calls it. Concurrent callers racing to create the first
// request both observe the same single pending row.
func (s *Service) UpsertOutgoingRequest(ctx context.Context, fromUser, toUser string) (CallRequest, error) {
	if fromUser == "" || toUser == "" {
		return CallRequest{}, ErrInvalidArgument
	}
	if fromUser == toUser {
		return CallRequest{}, ErrSelfPair
	}

	a, b := pairkey.Canonical(fromUser, toUser)
	req := CallRequest{
		ID:          uuid.NewString(),
		PairA:       a,
		PairB:       b,
		Initiator:   fromUser,
		State:       StatePending,
		RoomID:      pairkey.RoomID(a, b),
		RequestedAt: s.clock().UTC(),
	}

	out, _, err := s.repo.FindOrCreatePending(ctx, req)
	if err != nil {
		return CallRequest{}, err
	}
	return out, nil
}

// CancelOutgoingRequest cancels pending requests for the pair that fromUser
// initiated. Silent no-op when nothing matches.
func (s *Service) CancelOutgoingRequest(ctx context.Context, fromUser, toUser string) error {
	if fromUser == "" || toUser == "" {
		return ErrInvalidArgument
	}
	if fromUser == toUser {
		return ErrSelfPair
	}

	a, b := pairkey.Canonical(fromUser, toUser)
	_, err := s.repo.CancelPendingByInitiator(ctx, a, b, fromUser, ReasonCancelledBySender, s.clock().UTC())
	return err
}

// AcceptIncomingRequest accepts the pending request that peer initiated
// toward me. A user cannot accept their own outgoing request. The bool is
// false when no matching pending request exists.
func (s *Service) AcceptIncomingRequest(ctx context.Context, me, peer string) (CallRequest, bool, error) {
	return s.respond(ctx, me, peer, StateAccepted, "")
}

// RejectIncomingRequest is symmetric to accept but transitions to rejected.
// An empty reason defaults to declined_by_target.
func (s *Service) RejectIncomingRequest(ctx context.Context, me, peer, reason string) (CallRequest, bool, error) {
	if reason == "" {
		reason = ReasonDeclinedByTarget
	}
	return s.respond(ctx, me, peer, StateRejected, reason)
}

func (s *Service) respond(ctx context.Context, me, peer string, newState State, reason string) (CallRequest, bool, error) {
	if me == "" || peer == "" {
		return CallRequest{}, false, ErrInvalidArgument
	}
	if me == peer {
		return CallRequest{}, false, ErrSelfPair
	}

	a, b := pairkey.Canonical(me, peer)
	// Filtering on initiator == peer is what forbids self-accepting:
	// only the request the other side opened is eligible.
	return s.repo.ClosePendingFromInitiator(ctx, a, b, peer, newState, reason, s.clock().UTC())
}

// LastRequestBetween returns the most recently created request between the
// two users regardless of state, for call-history display. The bool is
// false when the pair has no history.
func (s *Service) LastRequestBetween(ctx context.Context, u1, u2 string) (CallRequest, bool, error) {
	if u1 == "" || u2 == "" {
		return CallRequest{}, false, ErrInvalidArgument
	}

	a, b := pairkey.Canonical(u1, u2)
	return s.repo.LastByPair(ctx, a, b)
}

// ExpireStalePending cancels pending requests older than ttl via the public
// cancel operation. Expiry is sweep policy, not state-machine contract; a
// pending request otherwise lives until a peer responds or the sender
// cancels. Returns how many requests were swept.
func (s *Service) ExpireStalePending(ctx context.Context, ttl time.Duration, limit int) (int, error) {
	if ttl <= 0 || limit <= 0 {
		return 0, ErrInvalidArgument
	}

	cutoff := s.clock().UTC().Add(-ttl)
	stale, err := s.repo.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	var swept int
	for _, r := range stale {
		peer := r.Peer(r.Initiator)
		if peer == "" {
			continue
		}
		if err := s.CancelOutgoingRequest(ctx, r.Initiator, peer); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}
