package callrequest

import "time"

// CallRequest is one request lifecycle between two users.
//
// Invariants:
// - PairA <= PairB (canonical pair order).
// - Initiator equals PairA or PairB.
// - At most one row with State == pending exists per (PairA, PairB);
//   the storage layer enforces this with an atomic insert-if-no-pending
//   (e.g., a partial unique index scoped to the pending state).
// - RoomID is a pure function of the pair, identical across every request
//   ever created between the same two users.
// - Rows are never physically deleted by this core; retention is an
//   external concern.
type CallRequest struct {
	ID string `json:"id" db:"id"`

	PairA string `json:"pair_a" db:"pair_a"`
	PairB string `json:"pair_b" db:"pair_b"`

	// Initiator is the user who created the request.
	Initiator string `json:"initiator" db:"initiator"`

	State State `json:"state" db:"state"`

	// RoomID is the deterministic call-channel id; reconnects after a
	// dropped call reuse it.
	RoomID string `json:"room_id" db:"room_id"`

	// Reason optionally explains a rejection or cancellation.
	Reason string `json:"reason,omitempty" db:"reason"`

	RequestedAt time.Time  `json:"requested_at" db:"requested_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty" db:"responded_at"`
}

// State is the request lifecycle state. pending is the only non-terminal
// state; there are no transitions out of a terminal state, but a fresh
// pending row may be created for the same pair afterward.
type State string

const (
	StatePending   State = "pending"
	StateAccepted  State = "accepted"
	StateRejected  State = "rejected"
	StateCancelled State = "cancelled"
)

// Default transition reasons.
const (
	ReasonCancelledBySender = "cancelled_by_sender"
	ReasonDeclinedByTarget  = "declined_by_target"
)

// Peer returns the other member of the pair, or "" if userID is not a member.
func (r CallRequest) Peer(userID string) string {
	switch userID {
	case r.PairA:
		return r.PairB
	case r.PairB:
		return r.PairA
	default:
		return ""
	}
}
