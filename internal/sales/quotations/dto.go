package quotations

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealerquote/internal/shared"
)

type CreateQuotationRequest struct {
	DealerID   int64 `json:"dealer_id" validate:"required,gt=0"`
	CustomerID int64 `json:"customer_id" validate:"required,gt=0"`
	StaffID    int64 `json:"staff_id" validate:"required,gt=0"`
	ModelID    int64 `json:"model_id" validate:"required,gt=0"`
	VariantID  int64 `json:"variant_id" validate:"required,gt=0"`
	// BasePrice is optional; when present it must match the catalog price.
	BasePrice *decimal.Decimal `json:"base_price,omitempty"`
}

type CalculateQuotationRequest struct {
	ID                     uuid.UUID       `json:"-"`
	PromotionIDs           []int64         `json:"promotion_ids" validate:"omitempty,max=20,dive,gt=0"`
	AdditionalDiscountRate decimal.Decimal `json:"additional_discount_rate"`
	ExpectedVersion        int64           `json:"expected_version" validate:"required,gt=0"`
	ActorID                int64           `json:"actor_id" validate:"required,gt=0"`
}

type SendQuotationRequest struct {
	ID              uuid.UUID `json:"-"`
	ValidUntil      time.Time `json:"valid_until" validate:"required"`
	TermsConditions *string   `json:"terms_conditions,omitempty" validate:"omitempty,max=4000"`
	ExpectedVersion int64     `json:"expected_version" validate:"required,gt=0"`
	ActorID         int64     `json:"actor_id" validate:"required,gt=0"`
}

type RespondQuotationRequest struct {
	ID              uuid.UUID `json:"-"`
	Accepted        *bool     `json:"accepted" validate:"required"`
	CustomerNote    *string   `json:"customer_note,omitempty" validate:"omitempty,max=2000"`
	ExpectedVersion int64     `json:"expected_version" validate:"required,gt=0"`
	ActorID         int64     `json:"actor_id" validate:"required,gt=0"`
}

type CancelQuotationRequest struct {
	ID              uuid.UUID `json:"-"`
	Reason          *string   `json:"reason,omitempty" validate:"omitempty,max=1000"`
	ExpectedVersion int64     `json:"expected_version" validate:"required,gt=0"`
	ActorID         int64     `json:"actor_id" validate:"required,gt=0"`
}

type ListQuotationsRequest struct {
	DealerID    *int64
	CustomerID  *int64
	StaffID     *int64
	Status      *QuotationStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	// AsOf is the instant used to classify overdue SENT rows as EXPIRED.
	AsOf   time.Time
	Limit  int
	Offset int
}

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// validateRequest converts the first validator failure into a ValidationError.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return shared.NewValidationError(fe.Field(), describeTag(fe))
	}
	return shared.NewValidationError("", err.Error())
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
