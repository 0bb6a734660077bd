package models

import "github.com/shopspring/decimal"

// DebtRecord is the aggregated debt of one guardian. It is only produced for
// guardians with at least one dependent who owes something.
type DebtRecord struct {
	// Guardian is the billed party.
	Guardian Guardian

	// TotalOwed is the sum of TotalOwed over Dependents, exact to the cent.
	TotalOwed decimal.Decimal

	// Dependents lists each dependent with unpaid purchases, in relation order.
	Dependents []DependentDebt
}

// DependentCount returns the number of dependents with debt.
func (r DebtRecord) DependentCount() int {
	return len(r.Dependents)
}

// PurchaseCount returns the number of unpaid purchases across all dependents.
func (r DebtRecord) PurchaseCount() int {
	n := 0
	for _, d := range r.Dependents {
		n += len(d.Purchases)
	}
	return n
}

// DependentDebt is the debt of one dependent under a guardian.
type DependentDebt struct {
	Dependent Dependent

	// Relation is the billing edge that put this dependent under the guardian.
	Relation Relation

	// TotalOwed is the sum of Value over Purchases.
	TotalOwed decimal.Decimal

	// Purchases are the unpaid purchases, in the aggregator's purchase order.
	Purchases []PurchaseDebt
}

// PurchaseDebt is one unpaid purchase with its resolved description.
type PurchaseDebt struct {
	Purchase    Purchase
	Description string
	Value       decimal.Decimal
}
