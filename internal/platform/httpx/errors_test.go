package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/dealerquote/internal/shared"
)

type extendedErr struct{}

func (extendedErr) Error() string { return "cannot send from DRAFT" }
func (extendedErr) Unwrap() error { return shared.ErrInvalidStateTransition }
func (extendedErr) ProblemExtensions() map[string]any {
	return map[string]any{"allowed_events": []string{"calculate", "cancel"}}
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	return p
}

func TestRespondErrorMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   shared.Code
	}{
		{shared.NewValidationError("valid_until", "must be in the future"), http.StatusBadRequest, shared.CodeValidation},
		{fmt.Errorf("get: %w", shared.ErrNotFound), http.StatusNotFound, shared.CodeNotFound},
		{shared.ErrExpiredQuotation, http.StatusGone, shared.CodeExpiredQuotation},
		{shared.ErrConcurrencyConflict, http.StatusConflict, shared.CodeConcurrencyConflict},
		{&shared.CatalogUnavailableError{Catalog: "promotions", Err: errors.New("dial tcp")}, http.StatusServiceUnavailable, shared.CodeCatalogUnavailable},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.status, rr.Code)
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		p := decodeProblem(t, rr)
		assert.Equal(t, string(tc.code), p.Code)
		assert.Equal(t, tc.status, p.Status)
	}
}

func TestRespondErrorIncludesExtensions(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, extendedErr{})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), `"allowed_events":["calculate","cancel"]`)

	rr = httptest.NewRecorder()
	RespondError(rr, &shared.PromotionNotApplicableError{PromotionID: 42})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), `"promotion_id":42`)
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "password")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	err := DecodeJSON(req, &target)
	require.ErrorIs(t, err, ErrMalformedBody)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	require.ErrorIs(t, DecodeJSON(req, &target), ErrMalformedBody)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "ok", target.Name)
}
