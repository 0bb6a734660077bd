package models

import "github.com/shopspring/decimal"

// Purchase is a priced canteen transaction attributed to a dependent.
// Only unpaid purchases count as debt.
type Purchase struct {
	// ID is the opaque identifier of the purchase.
	ID string `json:"id"`

	// DependentID is the student who made the purchase.
	DependentID string `json:"aluno_id"`

	// Value is the amount charged. Never negative.
	Value decimal.Decimal `json:"value"`

	// Paid reports whether the purchase has been settled.
	Paid bool `json:"status"`

	// Note is the free-text description typed at the till. Legacy purchases
	// without line items rely on it for their description.
	Note *string `json:"observacoes,omitempty"`

	// PaymentLink is the payment URL sent to the guardian, if one exists.
	PaymentLink *string `json:"link,omitempty"`

	// CreatedAt is when the purchase was recorded.
	CreatedAt Timestamp `json:"created_at"`
}

// NoteText returns the note, or "" when none was recorded.
func (p Purchase) NoteText() string {
	if p.Note == nil {
		return ""
	}
	return *p.Note
}

// Validate checks the fields the engine relies on.
func (p Purchase) Validate() error {
	switch {
	case p.ID == "":
		return &FieldError{Record: "purchase", Field: "id", Reason: "missing"}
	case p.DependentID == "":
		return &FieldError{Record: "purchase", Field: "aluno_id", Reason: "missing"}
	case p.Value.IsNegative():
		return &FieldError{Record: "purchase", Field: "value", Reason: "negative " + p.Value.String()}
	}
	return nil
}
