package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/dealerquote/internal/shared"
)

// extender is implemented by errors that carry extra problem fields.
type extender interface {
	ProblemExtensions() map[string]any
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrMalformedBody) {
		writeProblem(w, ProblemDetail{
			Title:  "Malformed Request",
			Status: http.StatusBadRequest,
			Detail: err.Error(),
			Code:   string(shared.CodeValidation),
		})
		return
	}

	meta, known := shared.Classify(err)
	problem := ProblemDetail{
		Title:     meta.Title,
		Status:    meta.HTTPStatus,
		Code:      string(meta.Code),
		Retryable: meta.Retryable,
	}
	if !known {
		writeProblem(w, problem)
		return
	}
	problem.Detail = err.Error()

	extra := map[string]any{}
	var vErr *shared.ValidationError
	if errors.As(err, &vErr) && vErr.Field != "" {
		extra["field"] = vErr.Field
	}
	var pErr *shared.PromotionNotApplicableError
	if errors.As(err, &pErr) {
		extra["promotion_id"] = pErr.PromotionID
	}
	var ext extender
	if errors.As(err, &ext) {
		for k, v := range ext.ProblemExtensions() {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		problem.Extra = extra
	}
	writeProblem(w, problem)
}
