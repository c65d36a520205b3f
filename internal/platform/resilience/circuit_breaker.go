// Package resilience implements the circuit breaker state machine backing
// the Circuit Breaker control-flow node. State is process-wide by default,
// keyed by circuit_id; an optional StateStore (Redis) makes it shared
// across engine instances running the same workflow.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)


// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the state of the circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	mu              sync.RWMutex
	name            string
	state           State
	failures        int
	successes       int
	lastFailureTime time.Time
	lastStateChange time.Time

	// Configuration
	maxFailures     int
	timeout         time.Duration
	halfOpenSuccess int

	// Callbacks
	onStateChange func(name string, from, to State)

	// store persists state across processes when the same circuit_id is
	// shared by more than one engine instance. Nil means in-process only.
	store StateStore
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Name            string
	MaxFailures     int
	Timeout         time.Duration
	HalfOpenSuccess int
	OnStateChange   func(name string, from, to State)
	Store           StateStore
}


// DefaultCircuitBreakerConfig returns default configuration
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:            name,
		MaxFailures:     5,
		Timeout:         30 * time.Second,
		HalfOpenSuccess: 3,
	}
}

// NewCircuitBreaker creates a new circuit breaker. If config.Store is set
// and already holds persisted state for this name, that state seeds the
// breaker instead of starting Closed.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:            config.Name,
		state:           StateClosed,
		maxFailures:     config.MaxFailures,
		timeout:         config.Timeout,
		halfOpenSuccess: config.HalfOpenSuccess,
		onStateChange:   config.OnStateChange,
		store:           config.Store,
		lastStateChange: time.Now(),
	}

	if cb.store != nil {
		if st, ok, err := cb.store.Load(context.Background(), cb.name); err == nil && ok {
			cb.state = st.State
			cb.failures = st.Failures
			cb.successes = st.Successes
			cb.lastFailureTime = st.LastFailureTime
			cb.lastStateChange = st.LastStateChange
		}
	}

	return cb
}

func (cb *CircuitBreaker) persist() {
	if cb.store == nil {
		return
	}
	snapshot := PersistedState{
		State:           cb.state,
		Failures:        cb.failures,
		Successes:       cb.successes,
		LastFailureTime: cb.lastFailureTime,
		LastStateChange: cb.lastStateChange,
	}
	go func() {
		_ = cb.store.Save(context.Background(), cb.name, snapshot)
	}()
}


// Execute runs the given function with circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.canExecute() {
		return ErrCircuitOpen
	}

	// Execute the function
	err := fn()

	// Record the result
	cb.recordResult(err)

	return err
}

// ExecuteWithFallback runs the function with a fallback on circuit open
func (cb *CircuitBreaker) ExecuteWithFallback(ctx context.Context, fn func() error, fallback func() error) error {
	if !cb.canExecute() {
		return fallback()
	}

	err := fn()
	cb.recordResult(err)

	if err != nil && cb.State() == StateOpen {
		return fallback()
	}

	return err
}

// canExecute checks if a request can be executed
func (cb *CircuitBreaker) canExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		// Check if timeout has passed
		if time.Since(cb.lastFailureTime) > cb.timeout {
			cb.transitionTo(StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// recordResult records the result of an execution
func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	stateBefore := cb.state
	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
	if cb.state == stateBefore {
		cb.persist()
	}
}


// onFailure handles a failed execution
func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailureTime = time.Now()
	cb.successes = 0

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	}
}

// onSuccess handles a successful execution
func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.halfOpenSuccess {
			cb.transitionTo(StateClosed)
		}
	}
}

// transitionTo changes the state of the circuit breaker
func (cb *CircuitBreaker) transitionTo(newState State) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = time.Now()

	// Reset counters on state change
	if newState == StateClosed {
		cb.failures = 0
		cb.successes = 0
	} else if newState == StateHalfOpen {
		cb.successes = 0
	}

	// Call the callback if set
	if cb.onStateChange != nil {
		go cb.onStateChange(cb.name, oldState, newState)
	}

	cb.persist()
}


// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Failures returns the current failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(StateClosed)
}

// CircuitBreakerRegistry manages multiple circuit breakers
type CircuitBreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
}

// NewCircuitBreakerRegistry creates a new registry
func NewCircuitBreakerRegistry(defaultConfig CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		config:   defaultConfig,
	}
}

// Get returns the circuit breaker for the given name, creating one if needed
func (r *CircuitBreakerRegistry) Get(name string) *CircuitBreaker {
	return r.GetOrCreate(name, r.config)
}

// GetOrCreate returns the circuit breaker for name, creating it with the
// given per-call config (Name is set to name and Store is taken from the
// registry's default, regardless of config) if one doesn't already exist. Once a circuit_id has a
// breaker, later calls with different thresholds reuse the existing one --
// the circuit's policy is fixed by whichever node first brought it into
// existence (persistent counters visible across runs for a given circuit id).
func (r *CircuitBreakerRegistry) GetOrCreate(name string, config CircuitBreakerConfig) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()

	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, ok = r.breakers[name]; ok {
		return cb
	}

	config.Name = name
	config.Store = r.config.Store
	cb = NewCircuitBreaker(config)
	r.breakers[name] = cb

	return cb
}

// GetAll returns all registered circuit breakers
func (r *CircuitBreakerRegistry) GetAll() map[string]*CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*CircuitBreaker, len(r.breakers))
	for k, v := range r.breakers {
		result[k] = v
	}
	return result
}

// Stats returns statistics for all circuit breakers
func (r *CircuitBreakerRegistry) Stats() map[string]CircuitBreakerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]CircuitBreakerStats, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = CircuitBreakerStats{
			Name:     name,
			State:    cb.State().String(),
			Failures: cb.Failures(),
		}
	}
	return stats
}

// CircuitBreakerStats holds statistics for a circuit breaker
type CircuitBreakerStats struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// RetryWithCircuitBreaker retries an operation with circuit breaker protection
func RetryWithCircuitBreaker(
	ctx context.Context,
	cb *CircuitBreaker,
	maxRetries int,
	backoff time.Duration,
	fn func() error,
) error {
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := cb.Execute(ctx, fn)
		if err == nil {
			return nil
		}

		lastErr = err

		// Don't retry if circuit is open
		if errors.Is(err, ErrCircuitOpen) {
			return err
		}

		// Wait before retrying
		if i < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff * time.Duration(i+1)):
			}
		}
	}

	return lastErr
}
