package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMapsWrappedErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      Code
		status    int
		retryable bool
	}{
		{"validation", NewValidationError("base_price", "must be positive"), CodeValidation, http.StatusBadRequest, false},
		{"not found", &NotFoundError{Entity: "quotation", ID: "x"}, CodeNotFound, http.StatusNotFound, false},
		{"transition", fmt.Errorf("send: %w", ErrInvalidStateTransition), CodeInvalidStateTransition, http.StatusConflict, false},
		{"promotion", &PromotionNotApplicableError{PromotionID: 9}, CodePromotionNotApplicable, http.StatusUnprocessableEntity, false},
		{"expired", ErrExpiredQuotation, CodeExpiredQuotation, http.StatusGone, false},
		{"conflict", fmt.Errorf("update: %w", ErrConcurrencyConflict), CodeConcurrencyConflict, http.StatusConflict, true},
		{"catalog", &CatalogUnavailableError{Catalog: "promotions", Err: context.DeadlineExceeded}, CodeCatalogUnavailable, http.StatusServiceUnavailable, true},
		{"idempotency", ErrIdempotencyConflict, CodeIdempotency, http.StatusConflict, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta, ok := Classify(tc.err)
			require.True(t, ok)
			assert.Equal(t, tc.code, meta.Code)
			assert.Equal(t, tc.status, meta.HTTPStatus)
			assert.Equal(t, tc.retryable, meta.Retryable)
		})
	}
}

func TestClassifyUnknownIsInternal(t *testing.T) {
	meta, ok := Classify(errors.New("boom"))
	assert.False(t, ok)
	assert.Equal(t, CodeInternal, meta.Code)
	assert.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
}

func TestCatalogUnavailableKeepsCause(t *testing.T) {
	err := &CatalogUnavailableError{Catalog: "vehicles", Err: context.DeadlineExceeded}
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "vehicles")
}

func TestValidationErrorMessage(t *testing.T) {
	assert.Equal(t, "validation failed: valid_until must be in the future", NewValidationError("valid_until", "must be in the future").Error())
	assert.Equal(t, "validation failed: bad input", NewValidationError("", "bad input").Error())
}

func TestPaginationNormalizes(t *testing.T) {
	p := NewPagination(0, 0, 45)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(3, 500, 250)
	assert.Equal(t, 100, p.PerPage)
	assert.Equal(t, 200, p.Offset())
}
