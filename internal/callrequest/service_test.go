package callrequest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"musicmatch-platform/internal/pairkey"
)

func newTestService() (*Service, *MemoryRepo) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	return svc, repo
}

func TestUpsertOutgoingRequest_CreatesPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req, err := svc.UpsertOutgoingRequest(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if req.State != StatePending {
		t.Fatalf("expected pending, got %q", req.State)
	}
	if req.PairA != "alice" || req.PairB != "bob" {
		t.Fatalf("pair not canonical: (%s,%s)", req.PairA, req.PairB)
	}
	if req.Initiator != "alice" {
		t.Fatalf("expected initiator alice, got %s", req.Initiator)
	}
	if req.RoomID != pairkey.RoomID("alice", "bob") {
		t.Fatalf("room id not derived from pair")
	}
	if req.RespondedAt != nil {
		t.Fatalf("responded_at must be unset on creation")
	}
}

func TestUpsertOutgoingRequest_IdempotentFromEitherSide(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	first, err := svc.UpsertOutgoingRequest(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	// The other side opening the call UI must not create a second row.
	second, err := svc.UpsertOutgoingRequest(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same pending request, got %s and %s", first.ID, second.ID)
	}
	if second.Initiator != "alice" {
		t.Fatalf("initiator must be preserved, got %s", second.Initiator)
	}
	if n := repo.PendingCount("alice", "bob"); n != 1 {
		t.Fatalf("expected 1 pending row, got %d", n)
	}
}

func TestUpsertOutgoingRequest_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.UpsertOutgoingRequest(ctx, "alice", "alice"); !errors.Is(err, ErrSelfPair) {
		t.Fatalf("expected ErrSelfPair, got %v", err)
	}
	if _, err := svc.UpsertOutgoingRequest(ctx, "", "bob"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := svc.UpsertOutgoingRequest(ctx, "alice", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestUpsertOutgoingRequest_SinglePendingUnderConcurrency(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	const racers = 32
	results := make([]CallRequest, racers)
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			from, to := "alice", "bob"
			if i%2 == 1 {
				from, to = "bob", "alice"
			}
			req, err := svc.UpsertOutgoingRequest(ctx, from, to)
			if err != nil {
				t.Errorf("racer %d: %v", i, err)
				return
			}
			results[i] = req
		}(i)
	}
	wg.Wait()

	if n := repo.PendingCount("alice", "bob"); n != 1 {
		t.Fatalf("single-pending invariant violated: %d pending rows", n)
	}
	for i := 1; i < racers; i++ {
		if results[i].ID != results[0].ID {
			t.Fatalf("racers observed different requests: %s vs %s", results[0].ID, results[i].ID)
		}
	}
}

func TestAcceptIncomingRequest_RequiresPeerInitiator(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.UpsertOutgoingRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// Alice cannot accept her own outgoing request.
	if _, ok, err := svc.AcceptIncomingRequest(ctx, "alice", "bob"); err != nil || ok {
		t.Fatalf("self-accept must be absent, ok=%v err=%v", ok, err)
	}

	got, ok, err := svc.AcceptIncomingRequest(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ok {
		t.Fatalf("expected accept to succeed")
	}
	if got.State != StateAccepted {
		t.Fatalf("expected accepted, got %q", got.State)
	}
	if got.RoomID != pairkey.RoomID("alice", "bob") {
		t.Fatalf("room id lost on transition")
	}
	if got.RespondedAt == nil {
		t.Fatalf("responded_at must be stamped")
	}
}

func TestRejectIncomingRequest_DefaultReason(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.UpsertOutgoingRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	got, ok, err := svc.RejectIncomingRequest(ctx, "bob", "alice", "")
	if err != nil || !ok {
		t.Fatalf("expected reject to succeed, ok=%v err=%v", ok, err)
	}
	if got.State != StateRejected {
		t.Fatalf("expected rejected, got %q", got.State)
	}
	if got.Reason != ReasonDeclinedByTarget {
		t.Fatalf("expected default reason, got %q", got.Reason)
	}
}

func TestRejectIncomingRequest_CustomReason(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.UpsertOutgoingRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got, ok, err := svc.RejectIncomingRequest(ctx, "bob", "alice", "busy right now")
	if err != nil || !ok {
		t.Fatalf("expected reject to succeed, ok=%v err=%v", ok, err)
	}
	if got.Reason != "busy right now" {
		t.Fatalf("custom reason lost, got %q", got.Reason)
	}
}

func TestAcceptIncomingRequest_AbsentWhenNothingPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, ok, err := svc.AcceptIncomingRequest(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("absence must not be an error, got %v", err)
	}
	if ok {
		t.Fatalf("expected absent result")
	}
}

func TestCancelOutgoingRequest_NoOpWithoutPending(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	if err := svc.CancelOutgoingRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("cancel without pending must be a silent no-op, got %v", err)
	}
	if n := repo.PendingCount("alice", "bob"); n != 0 {
		t.Fatalf("cancel created rows: %d", n)
	}
}

func TestCancelOutgoingRequest_OnlyCancelsOwnRequest(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	if _, err := svc.UpsertOutgoingRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// Bob is not the initiator; his cancel must leave the request alone.
	if err := svc.CancelOutgoingRequest(ctx, "bob", "alice"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n := repo.PendingCount("alice", "bob"); n != 1 {
		t.Fatalf("peer cancel touched the initiator's request")
	}

	if err := svc.CancelOutgoingRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	last, ok, err := svc.LastRequestBetween(ctx, "alice", "bob")
	if err != nil || !ok {
		t.Fatalf("expected history, ok=%v err=%v", ok, err)
	}
	if last.State != StateCancelled || last.Reason != ReasonCancelledBySender {
		t.Fatalf("expected cancelled_by_sender, got %+v", last)
	}
}

func TestFreshPendingAllowedAfterTerminalState(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	first, err := svc.UpsertOutgoingRequest(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, ok, err := svc.RejectIncomingRequest(ctx, "bob", "alice", ""); err != nil || !ok {
		t.Fatalf("expected reject to succeed")
	}

	second, err := svc.UpsertOutgoingRequest(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("expected new pending after terminal state, got %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("expected a fresh request, got the terminal one")
	}
	if second.RoomID != first.RoomID {
		t.Fatalf("room id must be stable across request lifecycles: %s vs %s", first.RoomID, second.RoomID)
	}
	if n := repo.PendingCount("alice", "bob"); n != 1 {
		t.Fatalf("expected 1 pending row, got %d", n)
	}
}

func TestLastRequestBetween(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, ok, err := svc.LastRequestBetween(ctx, "alice", "bob"); err != nil || ok {
		t.Fatalf("no history must be absent, ok=%v err=%v", ok, err)
	}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	svc.clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	if _, err := svc.UpsertOutgoingRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.CancelOutgoingRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	second, err := svc.UpsertOutgoingRequest(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	last, ok, err := svc.LastRequestBetween(ctx, "bob", "alice")
	if err != nil || !ok {
		t.Fatalf("expected history, ok=%v err=%v", ok, err)
	}
	if last.ID != second.ID {
		t.Fatalf("expected the newest request, got %s", last.ID)
	}
}

func TestExpireStalePending(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return base }

	if _, err := svc.UpsertOutgoingRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := svc.UpsertOutgoingRequest(ctx, "carol", "dave"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// Advance the clock past the TTL for both requests.
	svc.clock = func() time.Time { return base.Add(5 * time.Minute) }

	swept, err := svc.ExpireStalePending(ctx, time.Minute, 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if swept != 2 {
		t.Fatalf("expected 2 swept, got %d", swept)
	}
	if n := repo.PendingCount("alice", "bob"); n != 0 {
		t.Fatalf("stale request survived the sweep")
	}

	last, ok, _ := svc.LastRequestBetween(ctx, "alice", "bob")
	if !ok || last.State != StateCancelled {
		t.Fatalf("expected cancelled, got %+v", last)
	}
}
