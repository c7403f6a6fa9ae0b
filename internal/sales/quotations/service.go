package quotations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/dealerquote/internal/masterdata/vehicles"
	"github.com/odyssey-erp/dealerquote/internal/sales/customers"
	"github.com/odyssey-erp/dealerquote/internal/sales/pricing"
	"github.com/odyssey-erp/dealerquote/internal/sales/promotions"
	"github.com/odyssey-erp/dealerquote/internal/shared"
)

const defaultLookupTimeout = 3 * time.Second

// CustomerDirectory resolves customers referenced by a quotation.
type CustomerDirectory interface {
	Get(ctx context.Context, id int64) (*customers.Customer, error)
}

// VehicleCatalog resolves a model variant and its live price.
type VehicleCatalog interface {
	Variant(ctx context.Context, modelID, variantID int64) (*vehicles.Variant, error)
}

// PromotionResolver returns the promotions eligible for a dealer and model.
type PromotionResolver interface {
	Eligible(ctx context.Context, dealerID, modelID int64, asOf time.Time) ([]promotions.Promotion, error)
}

// Notifier is told about quotations handed to the customer.
type Notifier interface {
	QuotationSent(ctx context.Context, q *Quotation) error
}

// TransitionObserver records lifecycle outcomes.
type TransitionObserver interface {
	ObserveTransition(event, outcome string)
}

// ServiceConfig collects Service dependencies.
type ServiceConfig struct {
	Repository    Repository
	Customers     CustomerDirectory
	Vehicles      VehicleCatalog
	Promotions    PromotionResolver
	Calculator    *pricing.Calculator
	Notifier      Notifier
	Metrics       TransitionObserver
	Logger        *slog.Logger
	LookupTimeout time.Duration
	Clock         func() time.Time
}

type Service struct {
	repo          Repository
	customers     CustomerDirectory
	vehicles      VehicleCatalog
	promotions    PromotionResolver
	calculator    *pricing.Calculator
	notifier      Notifier
	metrics       TransitionObserver
	logger        *slog.Logger
	lookupTimeout time.Duration
	clock         func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:          cfg.Repository,
		customers:     cfg.Customers,
		vehicles:      cfg.Vehicles,
		promotions:    cfg.Promotions,
		calculator:    cfg.Calculator,
		notifier:      cfg.Notifier,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		lookupTimeout: cfg.LookupTimeout,
		clock:         cfg.Clock,
	}
	if s.calculator == nil {
		s.calculator = pricing.NewCalculator(pricing.DefaultScale)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.lookupTimeout <= 0 {
		s.lookupTimeout = defaultLookupTimeout
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) Create(ctx context.Context, req CreateQuotationRequest) (*Quotation, error) {
	if err := validateRequest(req); err != nil {
		s.observe(EventCreate, err)
		return nil, err
	}
	if req.BasePrice != nil && !req.BasePrice.IsPositive() {
		err := shared.NewValidationError("base_price", "must be greater than zero")
		s.observe(EventCreate, err)
		return nil, err
	}

	variant, err := s.lookupReferences(ctx, req)
	if err != nil {
		s.observe(EventCreate, err)
		return nil, err
	}
	if req.BasePrice != nil && !req.BasePrice.Equal(variant.Price) {
		err := shared.NewValidationError("base_price", fmt.Sprintf("does not match current catalog price %s", variant.Price.String()))
		s.observe(EventCreate, err)
		return nil, err
	}

	now := s.now()
	quotation := Quotation{
		ID:                     uuid.New(),
		DealerID:               req.DealerID,
		CustomerID:             req.CustomerID,
		StaffID:                req.StaffID,
		ModelID:                req.ModelID,
		VariantID:              req.VariantID,
		BasePrice:              variant.Price,
		AppliedPromotions:      []AppliedPromotion{},
		AdditionalDiscountRate: decimal.Zero,
		PromotionDiscount:      decimal.Zero,
		AdditionalDiscount:     decimal.Zero,
		DiscountAmount:         decimal.Zero,
		FinalPrice:             variant.Price,
		Status:                 QuotationStatusDraft,
		CreatedAt:              now,
		UpdatedAt:              now,
		Version:                1,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		docNumber, err := repo.GenerateNumber(ctx, req.DealerID, now)
		if err != nil {
			return fmt.Errorf("generate doc number: %w", err)
		}
		quotation.DocNumber = docNumber
		if err := repo.Create(ctx, quotation); err != nil {
			return fmt.Errorf("create quotation: %w", err)
		}
		return repo.AppendEvent(ctx, StatusEvent{
			QuotationID: quotation.ID,
			ToStatus:    QuotationStatusDraft,
			Event:       EventCreate,
			ActorID:     req.StaffID,
			Version:     quotation.Version,
			OccurredAt:  now,
		})
	})
	s.observe(EventCreate, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("quotation created",
		slog.String("quotation_id", quotation.ID.String()),
		slog.String("doc_number", quotation.DocNumber),
		slog.Int64("dealer_id", quotation.DealerID),
		slog.String("base_price", quotation.BasePrice.String()),
	)
	return &quotation, nil
}

// lookupReferences checks the customer and variant concurrently.
func (s *Service) lookupReferences(ctx context.Context, req CreateQuotationRequest) (*vehicles.Variant, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	var variant *vehicles.Variant
	g, gctx := errgroup.WithContext(lookupCtx)
	g.Go(func() error {
		customer, err := s.customers.Get(gctx, req.CustomerID)
		if err != nil {
			if errors.Is(err, customers.ErrNotFound) {
				return &shared.NotFoundError{Entity: "customer", ID: fmt.Sprint(req.CustomerID)}
			}
			return &shared.CatalogUnavailableError{Catalog: "customers", Err: err}
		}
		if !customer.IsActive {
			return shared.NewValidationError("customer_id", "refers to an inactive customer")
		}
		return nil
	})
	g.Go(func() error {
		v, err := s.vehicles.Variant(gctx, req.ModelID, req.VariantID)
		if err != nil {
			if errors.Is(err, vehicles.ErrNotFound) {
				return &shared.NotFoundError{Entity: "variant", ID: fmt.Sprintf("%d/%d", req.ModelID, req.VariantID)}
			}
			return &shared.CatalogUnavailableError{Catalog: "vehicles", Err: err}
		}
		if !v.IsActive {
			return shared.NewValidationError("variant_id", "refers to a discontinued variant")
		}
		if !v.Price.IsPositive() {
			return shared.NewValidationError("base_price", "catalog price must be greater than zero")
		}
		variant = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return variant, nil
}

func (s *Service) Calculate(ctx context.Context, req CalculateQuotationRequest) (*Quotation, error) {
	if err := validateRequest(req); err != nil {
		s.observe(EventCalculate, err)
		return nil, err
	}
	if err := pricing.ValidateAdditionalRate(req.AdditionalDiscountRate); err != nil {
		s.observe(EventCalculate, err)
		return nil, err
	}

	return s.mutate(ctx, req.ID, req.ExpectedVersion, req.ActorID, EventCalculate, func(ctx context.Context, q *Quotation, now time.Time) error {
		eligible, err := s.promotions.Eligible(ctx, q.DealerID, q.ModelID, now)
		if err != nil {
			return err
		}
		selected, err := promotions.SelectApplicable(eligible, req.PromotionIDs)
		if err != nil {
			return err
		}

		applied := make([]AppliedPromotion, 0, len(selected))
		rates := make([]decimal.Decimal, 0, len(selected))
		for _, p := range selected {
			applied = append(applied, AppliedPromotion{PromotionID: p.ID, Name: p.Name, DiscountRate: p.DiscountRate})
			rates = append(rates, p.DiscountRate)
		}

		breakdown, err := s.calculator.Calculate(q.BasePrice, rates, req.AdditionalDiscountRate)
		if err != nil {
			return err
		}
		if breakdown.Capped {
			s.logger.Warn("quotation discount capped at base price",
				slog.String("quotation_id", q.ID.String()),
				slog.String("base_price", q.BasePrice.String()),
			)
		}

		q.AppliedPromotions = applied
		q.AdditionalDiscountRate = req.AdditionalDiscountRate
		q.PromotionDiscount = breakdown.PromotionDiscount
		q.AdditionalDiscount = breakdown.AdditionalDiscount
		q.DiscountAmount = breakdown.TotalDiscount
		q.FinalPrice = breakdown.FinalPrice
		q.CalculatedAt = &now
		return nil
	})
}

func (s *Service) Send(ctx context.Context, req SendQuotationRequest) (*Quotation, error) {
	if err := validateRequest(req); err != nil {
		s.observe(EventSend, err)
		return nil, err
	}
	if !req.ValidUntil.After(s.now()) {
		err := shared.NewValidationError("valid_until", "must be in the future")
		s.observe(EventSend, err)
		return nil, err
	}

	updated, err := s.mutate(ctx, req.ID, req.ExpectedVersion, req.ActorID, EventSend, func(_ context.Context, q *Quotation, now time.Time) error {
		validUntil := req.ValidUntil.UTC()
		q.ValidUntil = &validUntil
		q.TermsConditions = req.TermsConditions
		q.SentAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.QuotationSent(ctx, updated); err != nil {
			s.logger.Warn("quotation sent notification failed",
				slog.String("quotation_id", updated.ID.String()),
				slog.Any("error", err),
			)
		}
	}
	return updated, nil
}

func (s *Service) RecordCustomerResponse(ctx context.Context, req RespondQuotationRequest) (*Quotation, error) {
	event := EventReject
	if req.Accepted != nil && *req.Accepted {
		event = EventAccept
	}
	if err := validateRequest(req); err != nil {
		s.observe(event, err)
		return nil, err
	}

	return s.mutate(ctx, req.ID, req.ExpectedVersion, req.ActorID, event, func(_ context.Context, q *Quotation, now time.Time) error {
		q.CustomerNote = req.CustomerNote
		q.RespondedAt = &now
		return nil
	})
}

func (s *Service) Cancel(ctx context.Context, req CancelQuotationRequest) (*Quotation, error) {
	if err := validateRequest(req); err != nil {
		s.observe(EventCancel, err)
		return nil, err
	}

	return s.mutate(ctx, req.ID, req.ExpectedVersion, req.ActorID, EventCancel, func(_ context.Context, q *Quotation, now time.Time) error {
		q.CancelReason = req.Reason
		q.CancelledAt = &now
		return nil
	})
}

// Get returns the quotation as seen now. Overdue SENT quotations are reported
// as EXPIRED without touching storage.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Quotation, error) {
	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return Project(q, s.now()), nil
}

func (s *Service) List(ctx context.Context, req ListQuotationsRequest) ([]QuotationWithDetails, int, error) {
	if req.Status != nil && !req.Status.Valid() {
		return nil, 0, shared.NewValidationError("status", fmt.Sprintf("unknown status %q", *req.Status))
	}
	if req.CreatedFrom != nil && req.CreatedTo != nil && req.CreatedTo.Before(*req.CreatedFrom) {
		return nil, 0, shared.NewValidationError("created_to", "must not be before created_from")
	}
	now := s.now()
	if req.AsOf.IsZero() {
		req.AsOf = now
	}

	rows, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("list quotations: %w", err)
	}
	for i := range rows {
		rows[i].Quotation = *Project(&rows[i].Quotation, req.AsOf)
	}
	return rows, total, nil
}

// History returns the persisted status changes of a quotation, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]StatusEvent, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("quotation history: %w", err)
	}
	return events, nil
}

// ExpireOverdue persists EXPIRED for up to limit overdue SENT quotations.
// Rows that changed concurrently are skipped.
func (s *Service) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	now := s.now()
	overdue, err := s.repo.ListExpirable(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list expirable quotations: %w", err)
	}
	expired := 0
	for i := range overdue {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		if _, err := s.persistExpiry(ctx, &overdue[i], now, 0); err != nil {
			if errors.Is(err, shared.ErrConcurrencyConflict) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

type mutation func(ctx context.Context, q *Quotation, now time.Time) error

// mutate loads the quotation, materialises a pending expiry, checks the
// caller's version and the transition, applies fn to a copy and persists it
// together with a history entry.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, expectedVersion, actorID int64, event Event, fn mutation) (result *Quotation, err error) {
	defer func() { s.observe(event, err) }()

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if IsOverdue(current, now) {
		if _, err := s.persistExpiry(ctx, current, now, actorID); err != nil && !errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, err
		}
		if event == EventAccept || event == EventReject {
			return nil, fmt.Errorf("%w: valid until %s", shared.ErrExpiredQuotation, formatValidUntil(current.ValidUntil))
		}
		return nil, &TransitionError{From: QuotationStatusExpired, Event: event, Allowed: AllowedEvents(QuotationStatusExpired)}
	}
	// A stored EXPIRED record answers replies the same way the lazy path does,
	// whatever version the caller last saw.
	if current.Status == QuotationStatusExpired && (event == EventAccept || event == EventReject) {
		return nil, fmt.Errorf("%w: valid until %s", shared.ErrExpiredQuotation, formatValidUntil(current.ValidUntil))
	}

	if current.Version != expectedVersion {
		return nil, fmt.Errorf("%w: quotation %s is at version %d, expected %d", shared.ErrConcurrencyConflict, id, current.Version, expectedVersion)
	}

	to, err := Next(current.Status, event)
	if err != nil {
		return nil, err
	}

	updated := *current
	if err := fn(ctx, &updated, now); err != nil {
		return nil, err
	}
	updated.Status = to
	updated.UpdatedAt = now
	updated.Version = current.Version + 1

	if err := s.persist(ctx, current, &updated, event, actorID, now); err != nil {
		return nil, err
	}

	s.logger.Info("quotation transition",
		slog.String("quotation_id", id.String()),
		slog.String("event", string(event)),
		slog.String("from", string(current.Status)),
		slog.String("to", string(to)),
		slog.Int64("version", updated.Version),
	)
	return &updated, nil
}

func (s *Service) persistExpiry(ctx context.Context, current *Quotation, now time.Time, actorID int64) (*Quotation, error) {
	to, err := Next(current.Status, EventExpire)
	if err != nil {
		return nil, err
	}
	updated := *current
	updated.Status = to
	updated.ExpiredAt = &now
	updated.UpdatedAt = now
	updated.Version = current.Version + 1
	if err := s.persist(ctx, current, &updated, EventExpire, actorID, now); err != nil {
		s.observe(EventExpire, err)
		return nil, err
	}
	s.observe(EventExpire, nil)
	s.logger.Info("quotation expired",
		slog.String("quotation_id", current.ID.String()),
		slog.Int64("version", updated.Version),
	)
	return &updated, nil
}

func (s *Service) persist(ctx context.Context, current, updated *Quotation, event Event, actorID int64, now time.Time) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Update(ctx, *updated, current.Version); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, StatusEvent{
			QuotationID: updated.ID,
			FromStatus:  current.Status,
			ToStatus:    updated.Status,
			Event:       event,
			ActorID:     actorID,
			Version:     updated.Version,
			OccurredAt:  now,
		})
	})
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Quotation, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &shared.NotFoundError{Entity: "quotation", ID: id.String()}
		}
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	return q, nil
}

func (s *Service) observe(event Event, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		meta, _ := shared.Classify(err)
		outcome = string(meta.Code)
	}
	s.metrics.ObserveTransition(string(event), outcome)
}

func formatValidUntil(t *time.Time) string {
	if t == nil {
		return "unset"
	}
	return t.Format(time.RFC3339)
}
