package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tair/heat-service/internal/heat/domain"
	"github.com/tair/heat-service/pkg/logger"
)

// CircuitState represents the state of a circuit breaker
type CircuitState string

const (
	StateClosed   CircuitState = "closed"    // Normal operation
	StateOpen     CircuitState = "open"      // Failing fast
	StateHalfOpen CircuitState = "half-open" // Probing whether the store recovered
)

// halfOpenSuccesses is how many trial calls must pass before the breaker closes.
// It also caps the trial calls in flight while half-open.
const halfOpenSuccesses = 3

// CircuitBreaker trips after consecutive store faults and fails fast while open
type CircuitBreaker struct {
	name            string
	maxFailures     int
	cooldown        time.Duration
	state           CircuitState
	failures        int
	successCount    int
	trials          int
	lastStateChange time.Time
	now             func() time.Time
	mu              sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:            name,
		maxFailures:     maxFailures,
		cooldown:        cooldown,
		state:           StateClosed,
		lastStateChange: time.Now(),
		now:             time.Now,
	}
}

// allow reports whether a call may proceed, moving open -> half-open after the
// cooldown. trial is true when the call holds one of the half-open trial slots
// and must be handed back to record or release.
func (cb *CircuitBreaker) allow() (ok, trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.lastStateChange) > cb.cooldown {
		cb.state = StateHalfOpen
		cb.successCount = 0
		cb.trials = 0
		logger.Logger.Info().
			Str("circuit", cb.name).
			Msg("Circuit breaker transitioning to half-open")
	}

	switch cb.state {
	case StateOpen:
		return false, false
	case StateHalfOpen:
		if cb.trials >= halfOpenSuccesses {
			return false, false
		}
		cb.trials++
		return true, true
	}
	return true, false
}

// release hands back a trial slot without judging the store
func (cb *CircuitBreaker) release(trial bool) {
	if !trial {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.releaseTrial()
}

func (cb *CircuitBreaker) releaseTrial() {
	if cb.trials > 0 {
		cb.trials--
	}
}

// record feeds a call result into the breaker. Only store faults count as failures.
func (cb *CircuitBreaker) record(err error, trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.releaseTrial()
	}
	if isStoreFault(err) {
		cb.onFailure()
		return
	}
	cb.onSuccess()
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.trials = 0
		cb.lastStateChange = cb.now()
		logger.Logger.Warn().
			Str("circuit", cb.name).
			Msg("Circuit breaker reopened after half-open failure")
	} else if cb.state == StateClosed && cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		cb.lastStateChange = cb.now()
		logger.Logger.Error().
			Str("circuit", cb.name).
			Int("failures", cb.failures).
			Int("threshold", cb.maxFailures).
			Msg("Circuit breaker opened")
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= halfOpenSuccesses {
			cb.state = StateClosed
			cb.failures = 0
			cb.successCount = 0
			cb.trials = 0
			cb.lastStateChange = cb.now()
			logger.Logger.Info().
				Str("circuit", cb.name).
				Msg("Circuit breaker closed after successful recovery")
		}
	case StateClosed:
		cb.failures = 0
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func isStoreFault(err error) bool {
	return errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, domain.ErrTimeout)
}

// BreakerStore wraps a domain.Store with a circuit breaker. While the breaker
// is open every call fails with ErrStoreUnavailable without reaching the store.
// A call whose own context ended is not held against the store.
type BreakerStore struct {
	next domain.Store
	cb   *CircuitBreaker
}

// NewBreakerStore creates a new store decorator with a circuit breaker
func NewBreakerStore(next domain.Store, cb *CircuitBreaker) *BreakerStore {
	return &BreakerStore{next: next, cb: cb}
}

func (s *BreakerStore) call(ctx context.Context, fn func() error) error {
	ok, trial := s.cb.allow()
	if !ok {
		return fmt.Errorf("%w: circuit breaker is open for %s", domain.ErrStoreUnavailable, s.cb.name)
	}
	err := fn()
	if ctx.Err() != nil {
		s.cb.release(trial)
		return err
	}
	s.cb.record(err, trial)
	return err
}

func (s *BreakerStore) GetItem(ctx context.Context, itemID string) (item *domain.Item, err error) {
	err = s.call(ctx, func() error {
		item, err = s.next.GetItem(ctx, itemID)
		return err
	})
	return item, err
}

func (s *BreakerStore) GetFavorite(ctx context.Context, userID, itemID string) (fav *domain.Favorite, err error) {
	err = s.call(ctx, func() error {
		fav, err = s.next.GetFavorite(ctx, userID, itemID)
		return err
	})
	return fav, err
}

func (s *BreakerStore) ListFavorites(ctx context.Context, userID string, limit int) (favorites []domain.Favorite, err error) {
	err = s.call(ctx, func() error {
		favorites, err = s.next.ListFavorites(ctx, userID, limit)
		return err
	})
	return favorites, err
}

func (s *BreakerStore) QueryItems(ctx context.Context, q domain.ItemQuery) (items []domain.Item, err error) {
	err = s.call(ctx, func() error {
		items, err = s.next.QueryItems(ctx, q)
		return err
	})
	return items, err
}

func (s *BreakerStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.call(ctx, func() error {
		return s.next.RunTransaction(ctx, fn)
	})
}

func (s *BreakerStore) UpsertCatalogItem(ctx context.Context, item *domain.Item) error {
	return s.call(ctx, func() error {
		return s.next.UpsertCatalogItem(ctx, item)
	})
}

func (s *BreakerStore) Ping(ctx context.Context) error {
	return s.call(ctx, func() error {
		return s.next.Ping(ctx)
	})
}
