// Package presence is the read side of the "who is nearby" feed: pre-resolved
// coordinates with freshness timestamps per user. The geospatial index that
// produces them lives elsewhere; the matchmaking core only consumes snapshots.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"musicmatch-platform/internal/geo"

	"github.com/redis/go-redis/v9"
)

// Snapshot is one user's last known location and when it was reported.
type Snapshot struct {
	Coord     geo.Coordinate `json:"coord"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Source supplies coordinate snapshots per user.
type Source interface {
	// Get returns the snapshot for a user. The bool is false when no fresh
	// location is known; that is not an error.
	Get(ctx context.Context, userID string) (Snapshot, bool, error)
}

// MemorySource is an in-memory source for tests and early development.
type MemorySource struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
}

func NewMemorySource() *MemorySource {
	return &MemorySource{snapshots: map[string]Snapshot{}}
}

func (s *MemorySource) Put(userID string, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[userID] = snap
}

func (s *MemorySource) Get(ctx context.Context, userID string) (Snapshot, bool, error) {
	if userID == "" {
		return Snapshot{}, false, errors.New("presence: user_id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[userID]
	return snap, ok, nil
}

// RedisSource reads snapshots written by the presence ingest path.
//
// Key layout: presence:<user_id> -> Snapshot JSON. The write TTL doubles as
// the freshness window: an expired key reads as "no location known".
type RedisSource struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSource(rdb *redis.Client, ttl time.Duration) *RedisSource {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisSource{rdb: rdb, ttl: ttl}
}

func presenceKey(userID string) string { return "presence:" + userID }

func (s *RedisSource) Get(ctx context.Context, userID string) (Snapshot, bool, error) {
	if userID == "" {
		return Snapshot{}, false, errors.New("presence: user_id required")
	}
	raw, err := s.rdb.Get(ctx, presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// Put records a snapshot; used by the ingest worker and tests.
func (s *RedisSource) Put(ctx context.Context, userID string, snap Snapshot) error {
	if userID == "" {
		return errors.New("presence: user_id required")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, presenceKey(userID), raw, s.ttl).Err()
}
