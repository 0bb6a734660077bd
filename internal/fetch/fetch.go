// Package fetch defines how the engine reads entity collections from the
// remote store, independent of the transport behind it.
package fetch

import (
	"context"
	"encoding/json"
	"strings"
)

// Collection names a remote entity collection.
type Collection string

const (
	Guardians  Collection = "responsaveis"
	Dependents Collection = "alunos"
	Relations  Collection = "relacao"
	Purchases  Collection = "compras"
	Products   Collection = "produtos"
	LineItems  Collection = "produtos_comprados"
)

// AllCollections lists every collection the engine reads.
var AllCollections = []Collection{Guardians, Dependents, Relations, Purchases, Products, LineItems}

// keyColumns are the columns that identify one record of each collection.
var keyColumns = map[Collection][]string{
	LineItems: {"compra_id", "produto_id"},
}

// KeyColumns returns the columns that identify one record of collection.
func (c Collection) KeyColumns() []string {
	if cols, ok := keyColumns[c]; ok {
		return cols
	}
	return []string{"id"}
}

// StableOrder extends order with the key columns of collection that it does
// not already sort by, so consecutive pages of the result never overlap or
// skip rows.
func StableOrder(collection Collection, order string) string {
	terms := splitOrder(order)
	present := make(map[string]bool, len(terms))
	for _, term := range terms {
		field, _, _ := strings.Cut(term, ".")
		present[field] = true
	}
	for _, col := range collection.KeyColumns() {
		if !present[col] {
			terms = append(terms, col+".asc")
		}
	}
	return strings.Join(terms, ",")
}

// splitOrder splits "a.asc,b.desc" into its terms, dropping blanks.
func splitOrder(order string) []string {
	var terms []string
	for _, term := range strings.Split(order, ",") {
		if term = strings.TrimSpace(term); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

// Op is a filter operator.
type Op string

const (
	OpEq Op = "eq"
	OpIn Op = "in"
)

// Filter constrains one field, either to a single value (OpEq) or to a set
// of values (OpIn).
type Filter struct {
	Field  string
	Op     Op
	Values []string
}

// Eq returns an equality filter.
func Eq(field, value string) Filter {
	return Filter{Field: field, Op: OpEq, Values: []string{value}}
}

// In returns a membership filter.
func In(field string, values []string) Filter {
	return Filter{Field: field, Op: OpIn, Values: values}
}

// Query describes one logical read of a collection. The zero Query reads the
// whole collection.
type Query struct {
	// Select restricts the returned columns (comma separated). Empty means all.
	Select string

	// Filters are combined with AND. At most one may be a membership filter.
	Filters []Filter

	// Order is a comma-separated list of "field.asc" or "field.desc" terms.
	// Empty leaves order unspecified.
	Order string
}

// membership returns the index of the membership filter, or -1.
func (q Query) membership() (int, error) {
	idx := -1
	for i, f := range q.Filters {
		if f.Op != OpIn {
			continue
		}
		if idx >= 0 {
			return -1, ErrMultipleMembership
		}
		idx = i
	}
	return idx, nil
}

// withValues returns a copy of q whose filter i holds values.
func (q Query) withValues(i int, values []string) Query {
	filters := make([]Filter, len(q.Filters))
	copy(filters, q.Filters)
	filters[i] = Filter{Field: filters[i].Field, Op: filters[i].Op, Values: values}
	q.Filters = filters
	return q
}

// Fetcher reads records of a collection. Each record is one JSON object.
//
// Implementations return *TransportError when the store cannot be reached,
// times out or answers with a non-2xx status, and *MalformedResponseError when
// the payload is not a JSON array of objects. Fetchers never retry.
type Fetcher interface {
	Fetch(ctx context.Context, collection Collection, q Query) ([]json.RawMessage, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, collection Collection, q Query) ([]json.RawMessage, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, collection Collection, q Query) ([]json.RawMessage, error) {
	return f(ctx, collection, q)
}
