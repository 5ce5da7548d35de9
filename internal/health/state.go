// Package health implements the probe loop and shared failover state
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fuaadabdullah/inference-gateway/internal/storage"
	"github.com/fuaadabdullah/inference-gateway/pkg/types"
	"github.com/fuaadabdullah/inference-gateway/pkg/utils"
)

// StateStore publishes the failover record to a location every dispatcher
// replica can read. Exactly one monitor writes; all request handlers read.
type StateStore interface {
	Publish(ctx context.Context, state types.HealthState) error
	Load(ctx context.Context) (types.HealthState, bool, error)
}

// RedisStateStore keeps the record in Redis under a single key with a short
// TTL, so a crashed monitor cannot leave stale state claiming health.
type RedisStateStore struct {
	redis *storage.RedisClient
	key   string
	ttl   time.Duration
}

// NewRedisStateStore creates a Redis-backed state store
func NewRedisStateStore(redis *storage.RedisClient, key string, ttl time.Duration) *RedisStateStore {
	if key == "" {
		key = "gateway:health_state"
	}
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &RedisStateStore{redis: redis, key: key, ttl: ttl}
}

// Publish writes the state record with its expiry
func (s *RedisStateStore) Publish(ctx context.Context, state types.HealthState) error {
	return s.redis.Set(ctx, s.key, state, s.ttl)
}

// Load reads the state record; found=false when absent or expired
func (s *RedisStateStore) Load(ctx context.Context) (types.HealthState, bool, error) {
	var state types.HealthState
	err := s.redis.Get(ctx, s.key, &state)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.HealthState{}, false, nil
		}
		return types.HealthState{}, false, err
	}
	return state, true, nil
}

// MemoryStateStore is a single-process store for tests and Redis-less runs
type MemoryStateStore struct {
	mutex sync.RWMutex
	state types.HealthState
	set   bool
}

// NewMemoryStateStore creates an in-memory state store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

// Publish stores the state in process memory
func (s *MemoryStateStore) Publish(_ context.Context, state types.HealthState) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.state = state
	s.set = true
	return nil
}

// Load returns the stored state
func (s *MemoryStateStore) Load(_ context.Context) (types.HealthState, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state, s.set, nil
}

// Reader exposes the current failover state to request handlers. Store
// failures degrade to "failover inactive" so a flaky state store cannot
// take the primary path down by itself.
type Reader struct {
	store  StateStore
	logger *utils.Logger
}

// NewReader creates a state reader for dispatcher instances
func NewReader(store StateStore, logger *utils.Logger) *Reader {
	return &Reader{store: store, logger: logger}
}

// Current returns the published health state. An absent or unreadable
// record reports as healthy with failover inactive.
func (r *Reader) Current(ctx context.Context) types.HealthState {
	state, found, err := r.store.Load(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to read health state, assuming failover inactive")
		return types.HealthState{PrimaryHealthy: true}
	}
	if !found {
		return types.HealthState{PrimaryHealthy: true}
	}
	return state
}
