package calculator

import (
	"fmt"
	"log/slog"
)

// WarningKind classifies a data-integrity problem.
type WarningKind string

const (
	// DuplicateRelation: the same guardian-dependent pair appears more than
	// once at the billing level.
	DuplicateRelation WarningKind = "duplicate_relation"

	// ConflictingGuardian: a dependent is linked at the billing level to more
	// than one guardian.
	ConflictingGuardian WarningKind = "conflicting_guardian"

	// MissingDependent: a relation points to a dependent absent from the
	// dependent snapshot.
	MissingDependent WarningKind = "missing_dependent"

	// MissingGuardian: a relation points to a guardian absent from the
	// guardian snapshot.
	MissingGuardian WarningKind = "missing_guardian"

	// UnresolvedProduct: a line item references a product not in the catalog.
	UnresolvedProduct WarningKind = "unresolved_product"

	// InvalidQuantity: a line item has a quantity below one.
	InvalidQuantity WarningKind = "invalid_quantity"

	// DuplicatePurchase: the same purchase id was read more than once.
	DuplicatePurchase WarningKind = "duplicate_purchase"
)

// DataIntegrityWarning describes a problem in the source data that was
// tolerated: the affected item is skipped or rendered with a placeholder and
// the run carries on.
type DataIntegrityWarning struct {
	Kind WarningKind

	// EntityID identifies the offending record (relation, guardian,
	// dependent, purchase).
	EntityID string

	Detail string
}

func (w DataIntegrityWarning) Error() string {
	return fmt.Sprintf("%s %s: %s", w.Kind, w.EntityID, w.Detail)
}

func logWarning(logger *slog.Logger, w DataIntegrityWarning) {
	logger.Warn("Data integrity warning",
		"kind", string(w.Kind),
		"entity_id", w.EntityID,
		"detail", w.Detail,
	)
}
