package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tair/heat-service/internal/heat/domain"
)

// DefaultMaxAttempts is the transaction attempt budget when none is configured
const DefaultMaxAttempts = 5

const retryBaseDelay = 5 * time.Millisecond

const (
	resultCommitted  = "committed"
	resultContention = "contention"
	resultError      = "error"
)

var (
	transactionAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heat_store_transaction_attempts",
			Help:    "Number of attempts a store transaction needed before it finished",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 13},
		},
		[]string{"result"},
	)

	transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heat_store_transactions_total",
			Help: "Total number of store transactions by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(transactionAttempts)
	prometheus.MustRegister(transactionsTotal)
}

func observeTransaction(attempts int, result string) {
	transactionAttempts.WithLabelValues(result).Observe(float64(attempts))
	transactionsTotal.WithLabelValues(result).Inc()
}

// waitRetry sleeps a jittered, linearly growing delay before the next attempt
func waitRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(attempt) * retryBaseDelay
	delay += time.Duration(rand.Int64N(int64(retryBaseDelay)))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return contextError(ctx.Err())
	case <-timer.C:
		return nil
	}
}

// contextError maps an expired deadline to ErrTimeout; cancellation passes through
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return err
}
