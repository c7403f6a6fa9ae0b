package promotions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEligibleRequest(target, dealerID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("dealerID", dealerID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestEligibleHandlerReturnsPromotions(t *testing.T) {
	june1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	catalog := &stubCatalog{promotions: map[int64][]Promotion{
		7: {promo(2, StatusActive, june1, june1.AddDate(0, 1, 0))},
	}}
	h := NewHandler(nil, NewResolver(catalog, time.Second))

	rr := httptest.NewRecorder()
	h.Eligible(rr, newEligibleRequest("/api/v1/dealers/7/promotions/eligible?model_id=11&as_of=2025-06-15T00:00:00Z", "7"))

	require.Equal(t, http.StatusOK, rr.Code)
	var body eligibleResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body.DealerID)
	require.Len(t, body.Promotions, 1)
	assert.Equal(t, int64(2), body.Promotions[0].ID)
	assert.Equal(t, "0.05", body.Promotions[0].DiscountRate.String())
}

func TestEligibleHandlerValidatesQuery(t *testing.T) {
	h := NewHandler(nil, NewResolver(&stubCatalog{}, time.Second))

	rr := httptest.NewRecorder()
	h.Eligible(rr, newEligibleRequest("/api/v1/dealers/7/promotions/eligible", "7"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.Eligible(rr, newEligibleRequest("/api/v1/dealers/x/promotions/eligible?model_id=1", "x"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.Eligible(rr, newEligibleRequest("/api/v1/dealers/7/promotions/eligible?model_id=1&as_of=yesterday", "7"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEligibleHandlerCatalogDown(t *testing.T) {
	h := NewHandler(nil, NewResolver(&stubCatalog{err: errors.New("down")}, time.Second))

	rr := httptest.NewRecorder()
	h.Eligible(rr, newEligibleRequest("/api/v1/dealers/7/promotions/eligible?model_id=1", "7"))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"retryable":true`)
}
