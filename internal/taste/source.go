package taste

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Source supplies taste vectors per user.
//
// The matchmaking core never computes genre weights from raw play history;
// the profile pipeline owns that and this interface only reads its output.
type Source interface {
	// Get returns the vector for a user. The bool is false when the user
	// has no taste profile yet; that is not an error.
	Get(ctx context.Context, userID string) (Vector, bool, error)
}

// MemorySource is a simple in-memory source for tests and early development.
type MemorySource struct {
	mu      sync.Mutex
	vectors map[string]Vector
}

func NewMemorySource() *MemorySource {
	return &MemorySource{vectors: map[string]Vector{}}
}

func (s *MemorySource) Put(userID string, v Vector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[userID] = v
}

func (s *MemorySource) Get(ctx context.Context, userID string) (Vector, bool, error) {
	if userID == "" {
		return Vector{}, false, errors.New("taste: user_id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vectors[userID]
	return v, ok, nil
}

// RedisSource reads JSON-encoded vectors written by the profile pipeline.
//
// Key layout: taste:<user_id> -> Vector JSON, refreshed upstream with a TTL.
// A missing key means the user has no profile yet (degrade, don't fail).
type RedisSource struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSource(rdb *redis.Client, ttl time.Duration) *RedisSource {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisSource{rdb: rdb, ttl: ttl}
}

func tasteKey(userID string) string { return "taste:" + userID }

func (s *RedisSource) Get(ctx context.Context, userID string) (Vector, bool, error) {
	if userID == "" {
		return Vector{}, false, errors.New("taste: user_id required")
	}
	raw, err := s.rdb.Get(ctx, tasteKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Vector{}, false, nil
	}
	if err != nil {
		return Vector{}, false, err
	}
	var v Vector
	if err := json.Unmarshal(raw, &v); err != nil {
		return Vector{}, false, err
	}
	return v, true, nil
}

// Put stores a vector; used by the profile refresh job and tests.
func (s *RedisSource) Put(ctx context.Context, userID string, v Vector) error {
	if userID == "" {
		return errors.New("taste: user_id required")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, tasteKey(userID), raw, s.ttl).Err()
}
