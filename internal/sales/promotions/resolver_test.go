package promotions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/dealerquote/internal/shared"
)

// ============================================================================
// STUB CATALOG
// ============================================================================

type stubCatalog struct {
	promotions map[int64][]Promotion
	err        error
	delay      time.Duration
	calls      int
}

func (s *stubCatalog) ListByDealer(ctx context.Context, dealerID int64) ([]Promotion, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.promotions[dealerID], nil
}

var asOf = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func promo(id int64, status Status, start, end time.Time, models ...int64) Promotion {
	return Promotion{
		ID:                 id,
		DealerID:           7,
		Name:               "promo",
		DiscountRate:       decimal.RequireFromString("0.05"),
		StartDate:          start,
		EndDate:            end,
		ApplicableModelIDs: models,
		Status:             status,
	}
}

// ============================================================================
// ELIGIBILITY
// ============================================================================

func TestEligibleFiltersByStatusWindowAndModel(t *testing.T) {
	june1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	june30 := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	catalog := &stubCatalog{promotions: map[int64][]Promotion{
		7: {
			promo(5, StatusActive, june1, june30),          // all models
			promo(2, StatusActive, june1, june30, 11, 12),  // covers model 11
			promo(3, StatusActive, june1, june30, 99),      // other model
			promo(4, StatusInactive, june1, june30),        // inactive
			promo(6, StatusUpcoming, june1, june30),        // not yet active
			promo(7, StatusActive, june1, june1.AddDate(0, 0, 3)), // window closed
			promo(1, StatusActive, asOf, asOf),             // inclusive bounds
		},
	}}
	resolver := NewResolver(catalog, time.Second)

	got, err := resolver.Eligible(context.Background(), 7, 11, asOf)
	require.NoError(t, err)

	ids := make([]int64, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []int64{1, 2, 5}, ids)
}

func TestEligibleEmptyCatalog(t *testing.T) {
	resolver := NewResolver(&stubCatalog{}, time.Second)
	got, err := resolver.Eligible(context.Background(), 1, 1, asOf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEligibleWrapsCatalogFailure(t *testing.T) {
	cause := errors.New("connection refused")
	resolver := NewResolver(&stubCatalog{err: cause}, time.Second)

	_, err := resolver.Eligible(context.Background(), 7, 11, asOf)
	require.ErrorIs(t, err, shared.ErrCatalogUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestEligibleTimeoutIsCatalogUnavailable(t *testing.T) {
	resolver := NewResolver(&stubCatalog{delay: time.Second}, 20*time.Millisecond)

	_, err := resolver.Eligible(context.Background(), 7, 11, asOf)
	require.ErrorIs(t, err, shared.ErrCatalogUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ============================================================================
// SELECTION
// ============================================================================

func TestSelectApplicablePreservesRequestOrder(t *testing.T) {
	eligible := []Promotion{{ID: 1}, {ID: 2}, {ID: 3}}

	got, err := SelectApplicable(eligible, []int64{3, 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)

	none, err := SelectApplicable(eligible, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSelectApplicableRejectsIneligible(t *testing.T) {
	_, err := SelectApplicable([]Promotion{{ID: 1}}, []int64{1, 8})
	require.ErrorIs(t, err, shared.ErrPromotionNotApplicable)

	var pErr *shared.PromotionNotApplicableError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, int64(8), pErr.PromotionID)
}

func TestSelectApplicableRejectsDuplicates(t *testing.T) {
	_, err := SelectApplicable([]Promotion{{ID: 1}}, []int64{1, 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}
