package fetch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mmynk/cantina/internal/models"
)

// validator is implemented by every record type in models.
type validator interface {
	Validate() error
}

// Store reads typed entity snapshots through a Fetcher.
type Store struct {
	fetcher Fetcher
}

// NewStore returns a Store reading through f. Wrap f in a Batcher when
// membership filters may be large.
func NewStore(f Fetcher) *Store {
	return &Store{fetcher: f}
}

// Guardians reads every guardian, ordered by first name and then id.
func (s *Store) Guardians(ctx context.Context) ([]models.Guardian, error) {
	return fetchAs[models.Guardian](ctx, s.fetcher, Guardians, Query{Order: "nome.asc,id.asc"})
}

// Relations reads the complete relation collection, every level included.
// Ordering by id keeps relation indexing deterministic across runs.
func (s *Store) Relations(ctx context.Context) ([]models.Relation, error) {
	return fetchAs[models.Relation](ctx, s.fetcher, Relations, Query{Order: "id.asc"})
}

// Dependents reads the dependents with the given ids.
func (s *Store) Dependents(ctx context.Context, ids []string) ([]models.Dependent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return fetchAs[models.Dependent](ctx, s.fetcher, Dependents, Query{
		Filters: []Filter{In("id", ids)},
	})
}

// UnpaidPurchases reads the unpaid purchases of the given dependents.
func (s *Store) UnpaidPurchases(ctx context.Context, dependentIDs []string) ([]models.Purchase, error) {
	if len(dependentIDs) == 0 {
		return nil, nil
	}
	return fetchAs[models.Purchase](ctx, s.fetcher, Purchases, Query{
		Filters: []Filter{
			In("aluno_id", dependentIDs),
			Eq("status", "false"),
		},
	})
}

// Products reads the whole product catalog.
func (s *Store) Products(ctx context.Context) ([]models.Product, error) {
	return fetchAs[models.Product](ctx, s.fetcher, Products, Query{})
}

// LineItems reads the line items of the given purchases.
func (s *Store) LineItems(ctx context.Context, purchaseIDs []string) ([]models.LineItem, error) {
	if len(purchaseIDs) == 0 {
		return nil, nil
	}
	return fetchAs[models.LineItem](ctx, s.fetcher, LineItems, Query{
		Filters: []Filter{In("compra_id", purchaseIDs)},
	})
}

// fetchAs reads a collection and decodes every record into T, validating
// each one. Any decode or validation failure rejects the whole response.
func fetchAs[T any, PT interface {
	*T
	validator
}](ctx context.Context, f Fetcher, collection Collection, q Query) ([]T, error) {
	raws, err := f.Fetch(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	return Decode[T, PT](collection, raws)
}

// Decode converts raw records into T, validating each one.
func Decode[T any, PT interface {
	*T
	validator
}](collection Collection, raws []json.RawMessage) ([]T, error) {
	out := make([]T, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal(raw, PT(&out[i])); err != nil {
			return nil, &MalformedResponseError{
				Collection: collection,
				Reason:     fmt.Sprintf("record %d does not decode", i),
				Err:        err,
			}
		}
		if err := PT(&out[i]).Validate(); err != nil {
			return nil, &MalformedResponseError{
				Collection: collection,
				Reason:     fmt.Sprintf("record %d is invalid", i),
				Err:        err,
			}
		}
	}
	return out, nil
}
