package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to end users.
// - Callers should treat audit logging as best-effort; a failed append
//   must never fail the call-request operation it describes.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ActorUserID == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCallTransition records one call-request lifecycle transition.
func (s *Service) LogCallTransition(ctx context.Context, typ EventType, actorUserID, actorRole, ip, pairA, pairB, roomID, message string) error {
	return s.Append(ctx, Event{
		Type:        typ,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		PairA:       pairA,
		PairB:       pairB,
		RoomID:      roomID,
		Message:     message,
	})
}
