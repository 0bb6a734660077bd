package models

import "strings"

// Guardian represents a responsible party who can be billed for the
// purchases of their dependents.
type Guardian struct {
	// ID is the opaque identifier assigned by the remote store.
	ID string `json:"id"`

	// FirstName is the guardian's given name.
	FirstName string `json:"nome"`

	// LastName is the guardian's family name.
	LastName string `json:"sobrenome"`

	// Contact is the raw contact string as stored (usually a phone number
	// typed by hand). Use report.FormatContact to normalise it for output.
	Contact string `json:"contato"`

	// CreatedAt is when the guardian was registered.
	CreatedAt Timestamp `json:"created_at"`
}

// FullName returns first and last name joined by a single space.
func (g Guardian) FullName() string {
	return joinName(g.FirstName, g.LastName)
}

// Validate checks the fields the engine relies on.
func (g Guardian) Validate() error {
	if g.ID == "" {
		return &FieldError{Record: "guardian", Field: "id", Reason: "missing"}
	}
	return nil
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
