// Package promotions resolves which dealer promotions may be applied to a
// quotation.
package promotions

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/dealerquote/internal/shared"
)

// DefaultLookupTimeout bounds a single catalog lookup.
const DefaultLookupTimeout = 3 * time.Second

// Catalog is the read-only promotion source.
type Catalog interface {
	ListByDealer(ctx context.Context, dealerID int64) ([]Promotion, error)
}

// Resolver filters a dealer catalog down to the promotions eligible for a model.
type Resolver struct {
	catalog Catalog
	timeout time.Duration
}

// NewResolver constructs a Resolver. A non-positive timeout uses DefaultLookupTimeout.
func NewResolver(catalog Catalog, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Resolver{catalog: catalog, timeout: timeout}
}

// Eligible returns ACTIVE promotions of the dealer whose window contains asOf
// and which cover modelID, ordered by id.
func (r *Resolver) Eligible(ctx context.Context, dealerID, modelID int64, asOf time.Time) ([]Promotion, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	all, err := r.catalog.ListByDealer(lookupCtx, dealerID)
	if err == nil {
		err = lookupCtx.Err()
	}
	if err != nil {
		return nil, &shared.CatalogUnavailableError{Catalog: "promotions", Err: err}
	}

	eligible := make([]Promotion, 0, len(all))
	for _, p := range all {
		if p.DealerID != 0 && p.DealerID != dealerID {
			continue
		}
		if p.ActiveAt(asOf) && p.AppliesTo(modelID) {
			eligible = append(eligible, p)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })
	return eligible, nil
}

// SelectApplicable picks the requested promotions out of the eligible set,
// preserving request order.
func SelectApplicable(eligible []Promotion, requestedIDs []int64) ([]Promotion, error) {
	byID := make(map[int64]Promotion, len(eligible))
	for _, p := range eligible {
		byID[p.ID] = p
	}
	seen := make(map[int64]struct{}, len(requestedIDs))
	selected := make([]Promotion, 0, len(requestedIDs))
	for _, id := range requestedIDs {
		if _, dup := seen[id]; dup {
			return nil, shared.NewValidationError("promotion_ids", fmt.Sprintf("contains duplicate id %d", id))
		}
		seen[id] = struct{}{}
		p, ok := byID[id]
		if !ok {
			return nil, &shared.PromotionNotApplicableError{PromotionID: id}
		}
		selected = append(selected, p)
	}
	return selected, nil
}
