package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/tair/heat-service/internal/heat/domain"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "record not found", err: gorm.ErrRecordNotFound, want: domain.ErrNotFound},
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, want: domain.ErrConflict},
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, want: domain.ErrConflict},
		{name: "unique violation", err: fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), want: domain.ErrConflict},
		{name: "statement timeout", err: &pq.Error{Code: "57014"}, want: domain.ErrTimeout},
		{name: "undefined column", err: &pq.Error{Code: "42703"}, want: domain.ErrQueryUnsupported},
		{name: "connection failure", err: &pq.Error{Code: "08006"}, want: domain.ErrStoreUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: domain.ErrTimeout},
		{name: "network timeout", err: timeoutError{}, want: domain.ErrTimeout},
		{name: "unknown", err: errors.New("socket closed"), want: domain.ErrStoreUnavailable},
		{name: "already classified", err: domain.ErrContention, want: domain.ErrContention},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyError(tt.err), tt.want)
		})
	}

	assert.NoError(t, classifyError(nil))
	assert.ErrorIs(t, classifyError(context.Canceled), context.Canceled)
}

func TestClassifyQueryError(t *testing.T) {
	yes := true
	q := domain.ItemQuery{Trending: &yes, OrderBy: domain.FieldPopularity, Descending: true}

	err := classifyQueryError(&pq.Error{Code: "42P01", Message: `relation "items" does not exist`}, q)
	var detail *domain.QueryUnsupportedError
	assert.ErrorAs(t, err, &detail)
	assert.Equal(t, "trending == true", detail.Filter)
	assert.Contains(t, detail.Reason, "42P01")

	assert.ErrorIs(t, classifyQueryError(&pq.Error{Code: "08006"}, q), domain.ErrStoreUnavailable)
}
