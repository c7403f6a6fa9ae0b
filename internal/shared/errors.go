package shared

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStateTransition indicates an event not allowed from the current status.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrPromotionNotApplicable indicates a requested promotion outside the eligible set.
	ErrPromotionNotApplicable = errors.New("promotion not applicable")
	// ErrExpiredQuotation indicates a customer response after valid_until.
	ErrExpiredQuotation = errors.New("quotation expired")
	// ErrConcurrencyConflict indicates a stale version on write.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrCatalogUnavailable indicates a collaborator lookup failed or timed out.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)

// Code is the machine readable error code exposed to API clients.
type Code string

const (
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeNotFound               Code = "NOT_FOUND"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodePromotionNotApplicable Code = "PROMOTION_NOT_APPLICABLE"
	CodeExpiredQuotation       Code = "QUOTATION_EXPIRED"
	CodeConcurrencyConflict    Code = "CONCURRENCY_CONFLICT"
	CodeCatalogUnavailable     Code = "CATALOG_UNAVAILABLE"
	CodeIdempotency            Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal               Code = "INTERNAL_ERROR"
)

// Metadata describes how an error kind surfaces to callers.
type Metadata struct {
	Code       Code
	HTTPStatus int
	Title      string
	Retryable  bool
}

var kinds = []struct {
	target error
	meta   Metadata
}{
	{ErrValidation, Metadata{CodeValidation, http.StatusBadRequest, "Validation Failed", false}},
	{ErrNotFound, Metadata{CodeNotFound, http.StatusNotFound, "Not Found", false}},
	{ErrInvalidStateTransition, Metadata{CodeInvalidStateTransition, http.StatusConflict, "Invalid State Transition", false}},
	{ErrPromotionNotApplicable, Metadata{CodePromotionNotApplicable, http.StatusUnprocessableEntity, "Promotion Not Applicable", false}},
	{ErrExpiredQuotation, Metadata{CodeExpiredQuotation, http.StatusGone, "Quotation Expired", false}},
	{ErrConcurrencyConflict, Metadata{CodeConcurrencyConflict, http.StatusConflict, "Concurrency Conflict", true}},
	{ErrCatalogUnavailable, Metadata{CodeCatalogUnavailable, http.StatusServiceUnavailable, "Catalog Unavailable", true}},
	{ErrIdempotencyConflict, Metadata{CodeIdempotency, http.StatusConflict, "Duplicate Request", false}},
}

var internalMetadata = Metadata{CodeInternal, http.StatusInternalServerError, "Internal Error", false}

// Classify resolves the metadata of the first known error kind wrapped by err.
// The boolean is false for unclassified errors.
func Classify(err error) (Metadata, bool) {
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k.meta, true
		}
	}
	return internalMetadata, false
}

// ValidationError reports an invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s %s", e.Entity, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// PromotionNotApplicableError carries the offending promotion id.
type PromotionNotApplicableError struct {
	PromotionID int64
}

func (e *PromotionNotApplicableError) Error() string {
	return fmt.Sprintf("%s: promotion %d", ErrPromotionNotApplicable, e.PromotionID)
}

func (e *PromotionNotApplicableError) Unwrap() error { return ErrPromotionNotApplicable }

// CatalogUnavailableError wraps the failing collaborator call.
type CatalogUnavailableError struct {
	Catalog string
	Err     error
}

func (e *CatalogUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCatalogUnavailable, e.Catalog, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *CatalogUnavailableError) Unwrap() []error {
	return []error{ErrCatalogUnavailable, e.Err}
}
