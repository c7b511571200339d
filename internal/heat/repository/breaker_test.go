package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/heat-service/internal/heat/domain"
)

// flakyStore fails every call with err until err is cleared
type flakyStore struct {
	domain.Store
	err   error
	calls int
}

func (s *flakyStore) Ping(context.Context) error {
	s.calls++
	return s.err
}

func (s *flakyStore) GetItem(context.Context, string) (*domain.Item, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return nil, domain.ErrNotFound
}

func TestBreakerStore_OpensAndRecovers(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("store", 2, time.Second)
	cb.now = func() time.Time { return now }

	inner := &flakyStore{err: domain.ErrStoreUnavailable}
	s := NewBreakerStore(inner, cb)

	assert.ErrorIs(t, s.Ping(ctx), domain.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Ping(ctx), domain.ErrStoreUnavailable)
	assert.Equal(t, StateOpen, cb.State())

	// Open: the store is not reached
	assert.ErrorIs(t, s.Ping(ctx), domain.ErrStoreUnavailable)
	assert.Equal(t, 2, inner.calls)

	inner.err = nil
	now = now.Add(2 * time.Second)
	for i := 0; i < halfOpenSuccesses; i++ {
		require.NoError(t, s.Ping(ctx))
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerStore_HalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	cb := NewCircuitBreaker("store", 1, time.Second)
	cb.now = func() time.Time { return now }
	s := NewBreakerStore(&flakyStore{err: domain.ErrTimeout}, cb)

	assert.Error(t, s.Ping(ctx))
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	assert.ErrorIs(t, s.Ping(ctx), domain.ErrTimeout)
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreakerStore_DomainErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker("store", 1, time.Minute)
	s := NewBreakerStore(&flakyStore{}, cb)

	for i := 0; i < 5; i++ {
		_, err := s.GetItem(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerStore_CallerDeadlineDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker("store", 5, 30*time.Second)
	s := NewBreakerStore(NewMemoryStore(), cb)

	expired, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	for i := 0; i < 10; i++ {
		_, err := s.GetItem(expired, "m1")
		assert.ErrorIs(t, err, domain.ErrTimeout)
	}
	assert.Equal(t, StateClosed, cb.State())

	_, err := s.GetItem(context.Background(), "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBreakerStore_StoreTimeoutWithLiveCallerTrips(t *testing.T) {
	cb := NewCircuitBreaker("store", 2, time.Minute)
	s := NewBreakerStore(&flakyStore{err: domain.ErrTimeout}, cb)

	assert.ErrorIs(t, s.Ping(context.Background()), domain.ErrTimeout)
	assert.ErrorIs(t, s.Ping(context.Background()), domain.ErrTimeout)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenCapsTrialCalls(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("store", 1, time.Second)
	cb.now = func() time.Time { return now }

	cb.record(domain.ErrStoreUnavailable, false)
	require.Equal(t, StateOpen, cb.State())
	now = now.Add(2 * time.Second)

	for i := 0; i < halfOpenSuccesses; i++ {
		ok, trial := cb.allow()
		require.True(t, ok)
		require.True(t, trial)
	}
	ok, _ := cb.allow()
	assert.False(t, ok, "trial calls beyond the cap are rejected while half-open")

	cb.release(true)
	ok, trial := cb.allow()
	assert.True(t, ok)
	assert.True(t, trial)
	assert.Equal(t, StateHalfOpen, cb.State())
}
