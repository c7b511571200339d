package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated  = errors.New("authentication required")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrContention       = errors.New("transaction contention: retry budget exhausted")
	ErrTimeout          = errors.New("deadline exceeded")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrQueryUnsupported = errors.New("query unsupported by store")

	// ErrConflict is raised by a transaction whose read set changed before commit.
	// RunTransaction retries on it and never returns it to callers.
	ErrConflict = errors.New("transaction conflict")
)

// QueryUnsupportedError describes a filter/order combination the store cannot execute
type QueryUnsupportedError struct {
	Collection string
	Filter     string
	OrderBy    string
	Reason     string
}

func (e *QueryUnsupportedError) Error() string {
	filter := e.Filter
	if filter == "" {
		filter = "none"
	}
	return fmt.Sprintf("query unsupported on %s (filter=%s, order_by=%s): %s",
		e.Collection, filter, e.OrderBy, e.Reason)
}

// Is makes errors.Is(err, ErrQueryUnsupported) match
func (e *QueryUnsupportedError) Is(target error) bool {
	return target == ErrQueryUnsupported
}

// DescribeFilter renders the query predicate for diagnostics.
func (q ItemQuery) DescribeFilter() string {
	if q.Trending == nil {
		return ""
	}
	return fmt.Sprintf("trending == %t", *q.Trending)
}

// DescribeOrder renders the query ordering for diagnostics.
func (q ItemQuery) DescribeOrder() string {
	if q.Descending {
		return q.OrderBy + " desc"
	}
	return q.OrderBy + " asc"
}
