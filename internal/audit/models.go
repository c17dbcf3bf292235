package audit

import "time"

// Event is an immutable, append-only audit log record for call-request
// lifecycle activity.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor and ip capture are best-effort; do not block call flows on audit
//   failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	// ActorRole may include hidden roles.
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress should capture the original client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers (optional, depending on the event type).
	PairA  string `json:"pair_a,omitempty" db:"pair_a"`
	PairB  string `json:"pair_b,omitempty" db:"pair_b"`
	RoomID string `json:"room_id,omitempty" db:"room_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallRequested EventType = "call_requested"
	EventTypeCallAccepted  EventType = "call_accepted"
	EventTypeCallRejected  EventType = "call_rejected"
	EventTypeCallCancelled EventType = "call_cancelled"
)
