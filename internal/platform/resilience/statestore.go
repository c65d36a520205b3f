package resilience

import (
	"context"
	"time"

	"github.com/linkflow-ai/workflow-engine/internal/platform/cache"
)

// PersistedState is the cross-process-visible slice of a circuit breaker's
// state, for circuits shared across engine instances.
type PersistedState struct {
	State           State     `json:"state"`
	Failures        int       `json:"failures"`
	Successes       int       `json:"successes"`
	LastFailureTime time.Time `json:"last_failure_time"`
	LastStateChange time.Time `json:"last_state_change"`
}

// StateStore persists circuit breaker state outside the process. The
// default is in-process only (CircuitBreakerRegistry's map in
// circuit_breaker.go); a Redis-backed
// implementation lets multiple engine instances share circuit state for
// the same circuit_id.
type StateStore interface {
	Load(ctx context.Context, circuitID string) (PersistedState, bool, error)
	Save(ctx context.Context, circuitID string, state PersistedState) error
}

// RedisStateStore backs StateStore with the engine's shared Redis cache.
type RedisStateStore struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewRedisStateStore wraps an already-connected RedisCache.
func NewRedisStateStore(c *cache.RedisCache, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStateStore{cache: c, ttl: ttl}
}

func (s *RedisStateStore) Load(ctx context.Context, circuitID string) (PersistedState, bool, error) {
	var st PersistedState
	err := s.cache.Get(ctx, "circuit:"+circuitID, &st)
	if err == cache.ErrCacheMiss {
		return PersistedState{}, false, nil
	}
	if err != nil {
		return PersistedState{}, false, err
	}
	return st, true, nil
}

func (s *RedisStateStore) Save(ctx context.Context, circuitID string, state PersistedState) error {
	return s.cache.Set(ctx, "circuit:"+circuitID, state, s.ttl)
}
