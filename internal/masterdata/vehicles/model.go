package vehicles

import (
	"time"

	"github.com/shopspring/decimal"
)

// Variant is a sellable trim of a vehicle model with its current list price.
type Variant struct {
	ID        int64           `json:"id"`
	ModelID   int64           `json:"model_id"`
	ModelName string          `json:"model_name"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	IsActive  bool            `json:"is_active"`
	UpdatedAt time.Time       `json:"updated_at"`
}
