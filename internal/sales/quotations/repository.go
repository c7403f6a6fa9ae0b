package quotations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealerquote/internal/platform/db"
	"github.com/odyssey-erp/dealerquote/internal/shared"
)

var (
	ErrNotFound = errors.New("record not found")
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id uuid.UUID) (*Quotation, error)
	List(ctx context.Context, req ListQuotationsRequest) ([]QuotationWithDetails, int, error)
	Create(ctx context.Context, quotation Quotation) error
	// Update writes the mutable fields of quotation when the stored version
	// equals expectedVersion, otherwise it fails with ErrConcurrencyConflict.
	Update(ctx context.Context, quotation Quotation, expectedVersion int64) error
	AppendEvent(ctx context.Context, event StatusEvent) error
	History(ctx context.Context, id uuid.UUID) ([]StatusEvent, error)
	ListExpirable(ctx context.Context, asOf time.Time, limit int) ([]Quotation, error)
	GenerateNumber(ctx context.Context, dealerID int64, date time.Time) (string, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{
		db:   pool,
		pool: pool,
	}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if _, inTx := r.db.(pgx.Tx); inTx {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const quotationColumns = `
	q.id::text, q.doc_number, q.dealer_id, q.customer_id, q.staff_id, q.model_id, q.variant_id,
	q.base_price::text, q.applied_promotions, q.additional_discount_rate::text,
	q.promotion_discount::text, q.additional_discount::text, q.discount_amount::text, q.final_price::text,
	q.status, q.valid_until, q.terms_conditions, q.customer_note, q.cancel_reason,
	q.created_at, q.calculated_at, q.sent_at, q.responded_at, q.cancelled_at, q.expired_at,
	q.updated_at, q.version`

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Quotation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations q WHERE q.id = $1::uuid`, id.String())
	q, err := scanQuotation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return q, nil
}

func (r *repository) List(ctx context.Context, req ListQuotationsRequest) ([]QuotationWithDetails, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	add := func(format string, v interface{}) {
		conditions = append(conditions, fmt.Sprintf(format, argPos))
		args = append(args, v)
		argPos++
	}

	if req.DealerID != nil {
		add("q.dealer_id = $%d", *req.DealerID)
	}
	if req.CustomerID != nil {
		add("q.customer_id = $%d", *req.CustomerID)
	}
	if req.StaffID != nil {
		add("q.staff_id = $%d", *req.StaffID)
	}
	if req.CreatedFrom != nil {
		add("q.created_at >= $%d", *req.CreatedFrom)
	}
	if req.CreatedTo != nil {
		add("q.created_at <= $%d", *req.CreatedTo)
	}
	if req.Status != nil {
		switch *req.Status {
		case QuotationStatusExpired:
			add("(q.status = 'EXPIRED' OR (q.status = 'SENT' AND q.valid_until < $%d))", req.AsOf)
		case QuotationStatusSent:
			add("(q.status = 'SENT' AND (q.valid_until IS NULL OR q.valid_until >= $%d))", req.AsOf)
		default:
			add("q.status = $%d", string(*req.Status))
		}
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM quotations q %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
		SELECT %s, COALESCE(c.name, ''), COALESCE(v.name, '')
		FROM quotations q
		LEFT JOIN customers c ON c.id = q.customer_id
		LEFT JOIN vehicle_variants v ON v.id = q.variant_id
		%s
		ORDER BY q.created_at DESC, q.doc_number DESC
		LIMIT $%d OFFSET $%d
	`, quotationColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]QuotationWithDetails, 0)
	for rows.Next() {
		var d QuotationWithDetails
		q, err := scanQuotation(rows, &d.CustomerName, &d.VariantName)
		if err != nil {
			return nil, 0, err
		}
		d.Quotation = *q
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, q Quotation) error {
	applied, err := json.Marshal(q.AppliedPromotions)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO quotations (
			id, doc_number, dealer_id, customer_id, staff_id, model_id, variant_id,
			base_price, applied_promotions, additional_discount_rate,
			promotion_discount, additional_discount, discount_amount, final_price,
			status, created_at, updated_at, version
		) VALUES (
			$1::uuid, $2, $3, $4, $5, $6, $7,
			$8::numeric, $9, $10::numeric,
			$11::numeric, $12::numeric, $13::numeric, $14::numeric,
			$15, $16, $17, $18
		)`,
		q.ID.String(), q.DocNumber, q.DealerID, q.CustomerID, q.StaffID, q.ModelID, q.VariantID,
		q.BasePrice.String(), applied, q.AdditionalDiscountRate.String(),
		q.PromotionDiscount.String(), q.AdditionalDiscount.String(), q.DiscountAmount.String(), q.FinalPrice.String(),
		string(q.Status), q.CreatedAt, q.UpdatedAt, q.Version,
	)
	return err
}

// Update never touches identity columns or base_price.
func (r *repository) Update(ctx context.Context, q Quotation, expectedVersion int64) error {
	applied, err := json.Marshal(q.AppliedPromotions)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE quotations SET
			applied_promotions = $3,
			additional_discount_rate = $4::numeric,
			promotion_discount = $5::numeric,
			additional_discount = $6::numeric,
			discount_amount = $7::numeric,
			final_price = $8::numeric,
			status = $9,
			valid_until = $10,
			terms_conditions = $11,
			customer_note = $12,
			cancel_reason = $13,
			calculated_at = $14,
			sent_at = $15,
			responded_at = $16,
			cancelled_at = $17,
			expired_at = $18,
			updated_at = $19,
			version = version + 1
		WHERE id = $1::uuid AND version = $2`,
		q.ID.String(), expectedVersion,
		applied, q.AdditionalDiscountRate.String(),
		q.PromotionDiscount.String(), q.AdditionalDiscount.String(), q.DiscountAmount.String(), q.FinalPrice.String(),
		string(q.Status), q.ValidUntil, q.TermsConditions, q.CustomerNote, q.CancelReason,
		q.CalculatedAt, q.SentAt, q.RespondedAt, q.CancelledAt, q.ExpiredAt, q.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %s changed since version %d", shared.ErrConcurrencyConflict, q.ID, expectedVersion)
	}
	return nil
}

func (r *repository) AppendEvent(ctx context.Context, ev StatusEvent) error {
	var from *string
	if ev.FromStatus != "" {
		s := string(ev.FromStatus)
		from = &s
	}
	var actor *int64
	if ev.ActorID > 0 {
		actor = &ev.ActorID
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO quotation_events (quotation_id, from_status, to_status, event, actor_id, version, occurred_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)`,
		ev.QuotationID.String(), from, string(ev.ToStatus), string(ev.Event), actor, ev.Version, ev.OccurredAt,
	)
	return err
}

func (r *repository) History(ctx context.Context, id uuid.UUID) ([]StatusEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, from_status, to_status, event, actor_id, version, occurred_at
		FROM quotation_events
		WHERE quotation_id = $1::uuid
		ORDER BY version, id`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]StatusEvent, 0)
	for rows.Next() {
		ev := StatusEvent{QuotationID: id}
		var from pgtype.Text
		var actor pgtype.Int8
		if err := rows.Scan(&ev.ID, &from, &ev.ToStatus, &ev.Event, &actor, &ev.Version, &ev.OccurredAt); err != nil {
			return nil, err
		}
		if from.Valid {
			ev.FromStatus = QuotationStatus(from.String)
		}
		if actor.Valid {
			ev.ActorID = actor.Int64
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *repository) ListExpirable(ctx context.Context, asOf time.Time, limit int) ([]Quotation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+quotationColumns+`
		FROM quotations q
		WHERE q.status = 'SENT' AND q.valid_until < $1
		ORDER BY q.valid_until
		LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Quotation, 0)
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func (r *repository) GenerateNumber(ctx context.Context, dealerID int64, date time.Time) (string, error) {
	// QUO-{DEALER}-{YYYYMM}-{SEQ}
	var seq int64
	period := date.Format("200601")
	err := r.db.QueryRow(ctx, `
		INSERT INTO document_sequences (dealer_id, doc_type, period, seq)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (dealer_id, doc_type, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, dealerID, "QUO", period).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("QUO-%d-%s-%05d", dealerID, period, seq), nil
}

func scanQuotation(row pgx.Row, extra ...any) (*Quotation, error) {
	var (
		q                                                         Quotation
		id                                                        string
		basePrice, additionalRate, promoDisc, addDisc, disc, final string
		applied                                                   []byte
		validUntil, calculatedAt, sentAt, respondedAt             pgtype.Timestamptz
		cancelledAt, expiredAt                                    pgtype.Timestamptz
		terms, note, cancelReason                                 pgtype.Text
	)
	dest := []any{
		&id, &q.DocNumber, &q.DealerID, &q.CustomerID, &q.StaffID, &q.ModelID, &q.VariantID,
		&basePrice, &applied, &additionalRate,
		&promoDisc, &addDisc, &disc, &final,
		&q.Status, &validUntil, &terms, &note, &cancelReason,
		&q.CreatedAt, &calculatedAt, &sentAt, &respondedAt, &cancelledAt, &expiredAt,
		&q.UpdatedAt, &q.Version,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	var err error
	if q.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse quotation id: %w", err)
	}
	amounts := []struct {
		raw    string
		target *decimal.Decimal
	}{
		{basePrice, &q.BasePrice},
		{additionalRate, &q.AdditionalDiscountRate},
		{promoDisc, &q.PromotionDiscount},
		{addDisc, &q.AdditionalDiscount},
		{disc, &q.DiscountAmount},
		{final, &q.FinalPrice},
	}
	for _, a := range amounts {
		if *a.target, err = decimal.NewFromString(a.raw); err != nil {
			return nil, fmt.Errorf("quotation %s: parse amount %q: %w", id, a.raw, err)
		}
	}
	q.AppliedPromotions = []AppliedPromotion{}
	if len(applied) > 0 {
		if err := json.Unmarshal(applied, &q.AppliedPromotions); err != nil {
			return nil, fmt.Errorf("quotation %s: decode applied_promotions: %w", id, err)
		}
	}

	q.ValidUntil = timePtr(validUntil)
	q.CalculatedAt = timePtr(calculatedAt)
	q.SentAt = timePtr(sentAt)
	q.RespondedAt = timePtr(respondedAt)
	q.CancelledAt = timePtr(cancelledAt)
	q.ExpiredAt = timePtr(expiredAt)
	q.TermsConditions = textPtr(terms)
	q.CustomerNote = textPtr(note)
	q.CancelReason = textPtr(cancelReason)
	return &q, nil
}

func timePtr(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func textPtr(v pgtype.Text) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
