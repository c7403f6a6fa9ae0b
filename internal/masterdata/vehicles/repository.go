package vehicles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("record not found")
)

type Repository interface {
	GetVariant(ctx context.Context, modelID, variantID int64) (*Variant, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db dbtx
}

func NewRepository(db dbtx) Repository {
	return &repository{db: db}
}

// GetVariant loads a variant only when it belongs to modelID.
func (r *repository) GetVariant(ctx context.Context, modelID, variantID int64) (*Variant, error) {
	var v Variant
	var price string
	err := r.db.QueryRow(ctx, `
		SELECT v.id, v.model_id, m.name, v.name, v.price::text, v.is_active AND m.is_active, v.updated_at
		FROM vehicle_variants v
		JOIN vehicle_models m ON m.id = v.model_id
		WHERE v.id = $1 AND v.model_id = $2
	`, variantID, modelID).Scan(&v.ID, &v.ModelID, &v.ModelName, &v.Name, &price, &v.IsActive, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if v.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("variant %d: parse price: %w", v.ID, err)
	}
	return &v, nil
}
