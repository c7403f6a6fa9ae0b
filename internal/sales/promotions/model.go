package promotions

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusUpcoming Status = "UPCOMING"
	StatusActive   Status = "ACTIVE"
	StatusExpired  Status = "EXPIRED"
	StatusInactive Status = "INACTIVE"
)

// Promotion is a dealer-scoped discount maintained outside this service.
type Promotion struct {
	ID                 int64           `json:"id"`
	DealerID           int64           `json:"dealer_id"`
	Name               string          `json:"name"`
	DiscountRate       decimal.Decimal `json:"discount_rate"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            time.Time       `json:"end_date"`
	ApplicableModelIDs []int64         `json:"applicable_model_ids"`
	Status             Status          `json:"status"`
}

// AppliesTo reports whether the promotion covers modelID. An empty model
// list covers every model.
func (p Promotion) AppliesTo(modelID int64) bool {
	return len(p.ApplicableModelIDs) == 0 || slices.Contains(p.ApplicableModelIDs, modelID)
}

// ActiveAt reports whether the promotion is ACTIVE and asOf falls inside its
// inclusive date window.
func (p Promotion) ActiveAt(asOf time.Time) bool {
	if p.Status != StatusActive {
		return false
	}
	return !asOf.Before(p.StartDate) && !asOf.After(p.EndDate)
}
