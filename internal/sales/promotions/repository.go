package promotions

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository reads promotions from PostgreSQL.
type Repository struct {
	db dbtx
}

// NewRepository wires the repository to a pool or transaction.
func NewRepository(db dbtx) *Repository {
	return &Repository{db: db}
}

// ListByDealer returns every promotion owned by the dealer regardless of status.
func (r *Repository) ListByDealer(ctx context.Context, dealerID int64) ([]Promotion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, dealer_id, name, discount_rate::text, start_date, end_date,
		       COALESCE(applicable_model_ids, '{}'::bigint[]), status
		FROM promotions
		WHERE dealer_id = $1
		ORDER BY id
	`, dealerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Promotion
	for rows.Next() {
		var p Promotion
		var rate string
		var start, end pgtype.Timestamptz
		if err := rows.Scan(&p.ID, &p.DealerID, &p.Name, &rate, &start, &end, &p.ApplicableModelIDs, &p.Status); err != nil {
			return nil, err
		}
		p.DiscountRate, err = decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("promotion %d: parse discount_rate: %w", p.ID, err)
		}
		if start.Valid {
			p.StartDate = start.Time
		}
		if end.Valid {
			p.EndDate = end.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
