package quotations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type QuotationStatus string

const (
	QuotationStatusDraft      QuotationStatus = "DRAFT"
	QuotationStatusCalculated QuotationStatus = "CALCULATED"
	QuotationStatusSent       QuotationStatus = "SENT"
	QuotationStatusAccepted   QuotationStatus = "ACCEPTED"
	QuotationStatusRejected   QuotationStatus = "REJECTED"
	QuotationStatusExpired    QuotationStatus = "EXPIRED"
	QuotationStatusCancelled  QuotationStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s QuotationStatus) Valid() bool {
	switch s {
	case QuotationStatusDraft, QuotationStatusCalculated, QuotationStatusSent,
		QuotationStatusAccepted, QuotationStatusRejected, QuotationStatusExpired, QuotationStatusCancelled:
		return true
	}
	return false
}

// AppliedPromotion is the promotion snapshot frozen at calculation time.
type AppliedPromotion struct {
	PromotionID  int64           `json:"promotion_id"`
	Name         string          `json:"name"`
	DiscountRate decimal.Decimal `json:"discount_rate"`
}

type Quotation struct {
	ID         uuid.UUID       `json:"id"`
	DocNumber  string          `json:"doc_number"`
	DealerID   int64           `json:"dealer_id"`
	CustomerID int64           `json:"customer_id"`
	StaffID    int64           `json:"staff_id"`
	ModelID    int64           `json:"model_id"`
	VariantID  int64           `json:"variant_id"`
	BasePrice  decimal.Decimal `json:"base_price"`

	AppliedPromotions      []AppliedPromotion `json:"applied_promotions"`
	AdditionalDiscountRate decimal.Decimal    `json:"additional_discount_rate"`
	PromotionDiscount      decimal.Decimal    `json:"promotion_discount"`
	AdditionalDiscount     decimal.Decimal    `json:"additional_discount"`
	DiscountAmount         decimal.Decimal    `json:"discount_amount"`
	FinalPrice             decimal.Decimal    `json:"final_price"`

	Status          QuotationStatus `json:"status"`
	ValidUntil      *time.Time      `json:"valid_until,omitempty"`
	TermsConditions *string         `json:"terms_conditions,omitempty"`
	CustomerNote    *string         `json:"customer_note,omitempty"`
	CancelReason    *string         `json:"cancel_reason,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	CalculatedAt *time.Time `json:"calculated_at,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	RespondedAt  *time.Time `json:"responded_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	ExpiredAt    *time.Time `json:"expired_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Version      int64      `json:"version"`
}

// PromotionIDs lists applied promotion ids in application order.
func (q *Quotation) PromotionIDs() []int64 {
	ids := make([]int64, 0, len(q.AppliedPromotions))
	for _, p := range q.AppliedPromotions {
		ids = append(ids, p.PromotionID)
	}
	return ids
}

// QuotationWithDetails decorates a quotation with directory names for listings.
type QuotationWithDetails struct {
	Quotation
	CustomerName string `json:"customer_name,omitempty"`
	VariantName  string `json:"variant_name,omitempty"`
}

// StatusEvent is one entry of the quotation status history.
type StatusEvent struct {
	ID          int64           `json:"id"`
	QuotationID uuid.UUID       `json:"quotation_id"`
	FromStatus  QuotationStatus `json:"from_status,omitempty"`
	ToStatus    QuotationStatus `json:"to_status"`
	Event       Event           `json:"event"`
	ActorID     int64           `json:"actor_id,omitempty"`
	Version     int64           `json:"version"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
