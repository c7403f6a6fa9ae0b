package customers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repository is the read-only customer directory.
type Repository interface {
	Get(ctx context.Context, id int64) (*Customer, error)
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

func (r *repository) Get(ctx context.Context, id int64) (*Customer, error) {
	var c Customer
	var email, phone pgtype.Text
	err := r.db.QueryRow(ctx, `
		SELECT id, code, name, email, phone, is_active, created_at, updated_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Code, &c.Name, &email, &phone, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if email.Valid {
		c.Email = &email.String
	}
	if phone.Valid {
		c.Phone = &phone.String
	}
	return &c, nil
}
