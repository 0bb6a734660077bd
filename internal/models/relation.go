package models

// BillingLevel is the relation level that makes a guardian the billed party
// for a dependent. Other levels exist (secondary contacts, pickup only) but
// never contribute to billing.
const BillingLevel = 1

// Relation links a guardian to a dependent.
type Relation struct {
	// ID is the opaque identifier of the edge.
	ID string `json:"id"`

	// GuardianID is the guardian side of the edge.
	GuardianID string `json:"responsavel_id"`

	// DependentID is the dependent side of the edge.
	DependentID string `json:"aluno_id"`

	// Level classifies the relation. Only BillingLevel is billed.
	Level int `json:"nivel"`
}

// Validate checks the fields the engine relies on.
func (r Relation) Validate() error {
	switch {
	case r.GuardianID == "":
		return &FieldError{Record: "relation", Field: "responsavel_id", Reason: "missing"}
	case r.DependentID == "":
		return &FieldError{Record: "relation", Field: "aluno_id", Reason: "missing"}
	}
	return nil
}
