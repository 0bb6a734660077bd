package calculator

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cantina/internal/models"
)

// PurchaseOrder compares two purchases for sorting, like cmp.Compare.
type PurchaseOrder func(a, b models.Purchase) int

// NewestFirst orders purchases by creation time, most recent first, with the
// purchase id as tie-break. Purchases without a timestamp sort last.
func NewestFirst(a, b models.Purchase) int {
	if c := b.CreatedAt.Compare(a.CreatedAt.Time); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// OldestFirst orders purchases by creation time, oldest first.
func OldestFirst(a, b models.Purchase) int {
	if c := a.CreatedAt.Compare(b.CreatedAt.Time); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Aggregator builds debt records from entity snapshots.
type Aggregator struct {
	order  PurchaseOrder
	logger *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithPurchaseOrder sets the order of purchases under each dependent.
func WithPurchaseOrder(order PurchaseOrder) AggregatorOption {
	return func(a *Aggregator) {
		a.order = order
	}
}

// WithAggregatorLogger sets the logger used for integrity warnings.
func WithAggregatorLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator returns an Aggregator ordering purchases NewestFirst.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{order: NewestFirst, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result is the output of one aggregation.
type Result struct {
	Records  []models.DebtRecord
	Warnings []DataIntegrityWarning
}

// TotalOwed sums TotalOwed over all records.
func (r Result) TotalOwed() decimal.Decimal {
	total := decimal.Zero
	for _, rec := range r.Records {
		total = total.Add(rec.TotalOwed)
	}
	return total
}

// Aggregate joins guardians, their dependents at the index level, unpaid
// purchases and the catalog into one DebtRecord per guardian who is owed
// anything.
//
// Algorithm:
//   - Partition purchases by dependent, keeping only unpaid ones
//   - For each guardian with relations at the level, walk its dependents;
//     a dependent with unpaid purchases becomes a DependentDebt whose total
//     is the decimal sum of those purchases
//   - A guardian is emitted only with at least one DependentDebt; its total
//     is the sum of the dependent totals
//
// Guardians and dependents missing from the snapshots, unknown products and
// repeated purchase ids produce warnings instead of failing the run. Build
// the index WithKnownGuardians so a relation to a missing guardian cannot
// take a dependent away from a known one.
func (a *Aggregator) Aggregate(
	guardians []models.Guardian,
	dependents []models.Dependent,
	relations *RelationIndex,
	purchases []models.Purchase,
	catalog *CatalogIndex,
) Result {
	var result Result
	warn := func(w DataIntegrityWarning) {
		logWarning(a.logger, w)
		result.Warnings = append(result.Warnings, w)
	}

	// Unpaid purchases per dependent
	unpaid := make(map[string][]models.Purchase)
	seenPurchase := make(map[string]bool, len(purchases))
	for _, p := range purchases {
		if p.Paid {
			continue
		}
		if seenPurchase[p.ID] {
			warn(DataIntegrityWarning{Kind: DuplicatePurchase, EntityID: p.ID, Detail: "purchase read more than once; counted once"})
			continue
		}
		seenPurchase[p.ID] = true
		unpaid[p.DependentID] = append(unpaid[p.DependentID], p)
	}

	dependentByID := make(map[string]models.Dependent, len(dependents))
	for _, d := range dependents {
		dependentByID[d.ID] = d
	}

	seenGuardian := make(map[string]bool, len(guardians))
	for _, g := range guardians {
		if seenGuardian[g.ID] {
			continue
		}
		seenGuardian[g.ID] = true
		if !relations.HasGuardian(g.ID) {
			continue
		}

		record := models.DebtRecord{Guardian: g, TotalOwed: decimal.Zero}
		for _, dependentID := range relations.DependentsOf(g.ID) {
			dependent, ok := dependentByID[dependentID]
			if !ok {
				relation, _ := relations.RelationFor(dependentID)
				warn(DataIntegrityWarning{
					Kind:     MissingDependent,
					EntityID: dependentID,
					Detail:   fmt.Sprintf("relation %s of guardian %s points to an unknown dependent", relation.ID, g.ID),
				})
				continue
			}

			owed, ok := unpaid[dependentID]
			if !ok {
				continue
			}

			node := a.dependentDebt(dependent, owed, relations, catalog, warn)
			record.Dependents = append(record.Dependents, node)
			record.TotalOwed = record.TotalOwed.Add(node.TotalOwed)
		}

		if len(record.Dependents) > 0 {
			result.Records = append(result.Records, record)
		}
	}

	for _, guardianID := range relations.Guardians() {
		if seenGuardian[guardianID] {
			continue
		}
		warn(DataIntegrityWarning{
			Kind:     MissingGuardian,
			EntityID: guardianID,
			Detail: fmt.Sprintf("guardian of %d dependent(s) not in snapshot; their purchases are not billed",
				len(relations.DependentsOf(guardianID))),
		})
	}

	return result
}

func (a *Aggregator) dependentDebt(
	dependent models.Dependent,
	purchases []models.Purchase,
	relations *RelationIndex,
	catalog *CatalogIndex,
	warn func(DataIntegrityWarning),
) models.DependentDebt {
	sorted := slices.Clone(purchases)
	slices.SortStableFunc(sorted, a.order)

	relation, _ := relations.RelationFor(dependent.ID)
	node := models.DependentDebt{
		Dependent: dependent,
		Relation:  relation,
		TotalOwed: decimal.Zero,
		Purchases: make([]models.PurchaseDebt, 0, len(sorted)),
	}

	for _, p := range sorted {
		for _, line := range catalog.Lines(p.ID) {
			if !line.Resolved() {
				warn(DataIntegrityWarning{
					Kind:     UnresolvedProduct,
					EntityID: p.ID,
					Detail:   fmt.Sprintf("product %s not in catalog", line.ProductID),
				})
			}
		}

		node.Purchases = append(node.Purchases, models.PurchaseDebt{
			Purchase:    p,
			Description: catalog.Describe(p),
			Value:       p.Value,
		})
		node.TotalOwed = node.TotalOwed.Add(p.Value)
	}

	return node
}
