package repository

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/tair/heat-service/internal/heat/domain"
)

// PostgreSQL error codes the store reacts to
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
	pqQueryCanceled        = "57014"
	pqClassSyntaxOrAccess  = "42"
)

var domainErrors = []error{
	domain.ErrUnauthenticated,
	domain.ErrInvalidArgument,
	domain.ErrNotFound,
	domain.ErrContention,
	domain.ErrTimeout,
	domain.ErrStoreUnavailable,
	domain.ErrQueryUnsupported,
	domain.ErrConflict,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classifyError turns a driver or ORM error into one of the domain error kinds
func classifyError(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return contextError(err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pqSerializationFailure,
			pqErr.Code == pqDeadlockDetected,
			pqErr.Code == pqUniqueViolation:
			return fmt.Errorf("%w: %s (%s)", domain.ErrConflict, pqErr.Message, pqErr.Code)
		case pqErr.Code == pqQueryCanceled:
			return fmt.Errorf("%w: %s", domain.ErrTimeout, pqErr.Message)
		case pqErr.Code.Class() == pqClassSyntaxOrAccess:
			return fmt.Errorf("%w: %s (%s)", domain.ErrQueryUnsupported, pqErr.Message, pqErr.Code)
		}
		return fmt.Errorf("%w: %s (%s)", domain.ErrStoreUnavailable, pqErr.Message, pqErr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

// classifyQueryError is classifyError with query details attached to unsupported queries
func classifyQueryError(err error, q domain.ItemQuery) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == pqClassSyntaxOrAccess {
		return &domain.QueryUnsupportedError{
			Collection: "items",
			Filter:     q.DescribeFilter(),
			OrderBy:    q.DescribeOrder(),
			Reason:     fmt.Sprintf("%s (%s)", pqErr.Message, pqErr.Code),
		}
	}
	return classifyError(err)
}

// validateOrderField rejects order fields the items collection cannot sort by
func validateOrderField(q domain.ItemQuery) error {
	switch q.OrderBy {
	case domain.FieldPopularity, domain.FieldHeatCount:
		return nil
	}
	return &domain.QueryUnsupportedError{
		Collection: "items",
		Filter:     q.DescribeFilter(),
		OrderBy:    q.DescribeOrder(),
		Reason:     fmt.Sprintf("unknown order field %q", q.OrderBy),
	}
}
