package quotations

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/dealerquote/internal/platform/httpx"
	"github.com/odyssey-erp/dealerquote/internal/shared"
)

// IdempotencyHeader carries the client supplied key for create requests.
const IdempotencyHeader = "Idempotency-Key"

const idempotencyModule = "quotations.create"

// IdempotencyGuard rejects replays of a create request.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency IdempotencyGuard
}

func NewHandler(logger *slog.Logger, service *Service, idempotency IdempotencyGuard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, idempotency: idempotency}
}

type listResponse struct {
	Data       []QuotationWithDetails `json:"data"`
	Pagination shared.Pagination      `json:"pagination"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := ListQuotationsRequest{}

	var err error
	if req.DealerID, err = parseOptionalID(query.Get("dealer_id"), "dealer_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.CustomerID, err = parseOptionalID(query.Get("customer_id"), "customer_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.StaffID, err = parseOptionalID(query.Get("staff_id"), "staff_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if status := strings.ToUpper(query.Get("status")); status != "" {
		s := QuotationStatus(status)
		req.Status = &s
	}
	if req.CreatedFrom, err = parseOptionalTime(query.Get("created_from"), "created_from", false); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.CreatedTo, err = parseOptionalTime(query.Get("created_to"), "created_to", true); err != nil {
		httpx.RespondError(w, err)
		return
	}

	page, _ := strconv.Atoi(query.Get("page"))
	perPage, _ := strconv.Atoi(query.Get("per_page"))
	page, perPage = shared.NormalizePage(page, perPage)
	paging := shared.Pagination{Page: page, PerPage: perPage}
	req.Limit = perPage
	req.Offset = paging.Offset()

	rows, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondError(w, "list quotations failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: rows, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quotationID(w, r)
	if !ok {
		return
	}
	quotation, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get quotation failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quotation)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quotationID(w, r)
	if !ok {
		return
	}
	events, err := h.service.History(r.Context(), id)
	if err != nil {
		h.respondError(w, "quotation history failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": events})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			h.respondError(w, "idempotency check failed", err)
			return
		}
	}

	quotation, err := h.service.Create(r.Context(), req)
	if err != nil {
		if key != "" && h.idempotency != nil {
			if delErr := h.idempotency.Delete(r.Context(), key); delErr != nil {
				h.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		h.respondError(w, "create quotation failed", err)
		return
	}
	w.Header().Set("Location", "/api/v1/quotations/"+quotation.ID.String())
	httpx.JSON(w, http.StatusCreated, quotation)
}

func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quotationID(w, r)
	if !ok {
		return
	}
	var req CalculateQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.ID = id
	h.respondMutation(w, "calculate quotation failed")(h.service.Calculate(r.Context(), req))
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quotationID(w, r)
	if !ok {
		return
	}
	var req SendQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.ID = id
	h.respondMutation(w, "send quotation failed")(h.service.Send(r.Context(), req))
}

func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quotationID(w, r)
	if !ok {
		return
	}
	var req RespondQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.ID = id
	h.respondMutation(w, "record customer response failed")(h.service.RecordCustomerResponse(r.Context(), req))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quotationID(w, r)
	if !ok {
		return
	}
	var req CancelQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.ID = id
	h.respondMutation(w, "cancel quotation failed")(h.service.Cancel(r.Context(), req))
}

func (h *Handler) respondMutation(w http.ResponseWriter, msg string) func(*Quotation, error) {
	return func(q *Quotation, err error) {
		if err != nil {
			h.respondError(w, msg, err)
			return
		}
		httpx.JSON(w, http.StatusOK, q)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, msg string, err error) {
	if _, known := shared.Classify(err); known {
		h.logger.Info(msg, slog.Any("error", err))
	} else {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) quotationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("id", "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalID(raw, field string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, shared.NewValidationError(field, "must be a positive integer")
	}
	return &v, nil
}

// parseOptionalTime accepts RFC3339 or a plain date. A plain date used as an
// upper bound covers the whole day.
func parseOptionalTime(raw, field string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, shared.NewValidationError(field, "must be RFC3339 or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
