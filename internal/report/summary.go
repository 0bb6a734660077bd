// Package report renders debt records for people: per-guardian summaries,
// CSV exports and a console listing.
package report

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cantina/internal/models"
)

// PurchaseLine is one unpaid purchase as shown to a guardian.
type PurchaseLine struct {
	Date        time.Time       `json:"date"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description"`
}

// DependentSummary is the debt of one dependent.
type DependentSummary struct {
	Name      string          `json:"name"`
	TotalOwed decimal.Decimal `json:"total_owed"`
	Purchases []PurchaseLine  `json:"purchases"`
}

// GuardianSummary is what billing needs to know about one guardian.
type GuardianSummary struct {
	GuardianID     string             `json:"guardian_id,omitempty"`
	Name           string             `json:"name"`
	Contact        string             `json:"contact"`
	TotalOwed      decimal.Decimal    `json:"total_owed"`
	DependentCount int                `json:"dependent_count"`
	Dependents     []DependentSummary `json:"dependents"`
}

// Summarize flattens debt records into summaries, keeping record, dependent
// and purchase order.
func Summarize(records []models.DebtRecord) []GuardianSummary {
	out := make([]GuardianSummary, 0, len(records))
	for _, rec := range records {
		s := GuardianSummary{
			GuardianID:     rec.Guardian.ID,
			Name:           rec.Guardian.FullName(),
			Contact:        FormatContact(rec.Guardian.Contact),
			TotalOwed:      rec.TotalOwed,
			DependentCount: rec.DependentCount(),
			Dependents:     make([]DependentSummary, 0, len(rec.Dependents)),
		}
		for _, d := range rec.Dependents {
			ds := DependentSummary{
				Name:      d.Dependent.FullName(),
				TotalOwed: d.TotalOwed,
				Purchases: make([]PurchaseLine, 0, len(d.Purchases)),
			}
			for _, p := range d.Purchases {
				ds.Purchases = append(ds.Purchases, PurchaseLine{
					Date:        p.Purchase.CreatedAt.Time,
					Value:       p.Value,
					Description: p.Description,
				})
			}
			s.Dependents = append(s.Dependents, ds)
		}
		out = append(out, s)
	}
	return out
}

// Total sums TotalOwed over summaries.
func Total(summaries []GuardianSummary) decimal.Decimal {
	total := decimal.Zero
	for _, s := range summaries {
		total = total.Add(s.TotalOwed)
	}
	return total
}
