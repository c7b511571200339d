package command

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tair/heat-service/internal/heat/domain"
)

var (
	toggleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heat_toggle_total",
			Help: "Total number of favorite toggles by outcome",
		},
		[]string{"outcome"},
	)

	catalogUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heat_catalog_upserts_total",
			Help: "Total number of catalog item upserts by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(toggleTotal)
	prometheus.MustRegister(catalogUpsertsTotal)
}

// outcomeLabel maps an error to a low-cardinality metric label
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, domain.ErrContention):
		return "contention"
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
