package promotions

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/dealerquote/internal/platform/httpx"
	"github.com/odyssey-erp/dealerquote/internal/shared"
)

type eligibilityResolver interface {
	Eligible(ctx context.Context, dealerID, modelID int64, asOf time.Time) ([]Promotion, error)
}

// Handler exposes the eligible promotion lookup used when building a quotation.
type Handler struct {
	logger   *slog.Logger
	resolver eligibilityResolver
	now      func() time.Time
}

func NewHandler(logger *slog.Logger, resolver eligibilityResolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, resolver: resolver, now: time.Now}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dealers/{dealerID}/promotions/eligible", h.Eligible)
}

type eligibleResponse struct {
	DealerID   int64       `json:"dealer_id"`
	ModelID    int64       `json:"model_id"`
	AsOf       time.Time   `json:"as_of"`
	Promotions []Promotion `json:"promotions"`
}

func (h *Handler) Eligible(w http.ResponseWriter, r *http.Request) {
	dealerID, err := strconv.ParseInt(chi.URLParam(r, "dealerID"), 10, 64)
	if err != nil || dealerID <= 0 {
		httpx.RespondError(w, shared.NewValidationError("dealer_id", "must be a positive integer"))
		return
	}
	modelID, err := strconv.ParseInt(r.URL.Query().Get("model_id"), 10, 64)
	if err != nil || modelID <= 0 {
		httpx.RespondError(w, shared.NewValidationError("model_id", "must be a positive integer"))
		return
	}
	asOf := h.now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("as_of", "must be RFC3339"))
			return
		}
	}

	promos, err := h.resolver.Eligible(r.Context(), dealerID, modelID, asOf)
	if err != nil {
		h.logger.Warn("resolve eligible promotions", slog.Int64("dealer_id", dealerID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, eligibleResponse{DealerID: dealerID, ModelID: modelID, AsOf: asOf, Promotions: promos})
}
