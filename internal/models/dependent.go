package models

// Dependent represents a student whose canteen purchases are billed to a
// guardian.
type Dependent struct {
	// ID is the opaque identifier assigned by the remote store.
	ID string `json:"id"`

	// FirstName is the student's given name.
	FirstName string `json:"nome"`

	// LastName is the student's family name.
	LastName string `json:"sobrenome"`

	// SchoolID references the student's school, if known.
	SchoolID *string `json:"escola_id,omitempty"`

	// GradeID references the student's class/grade, if known.
	GradeID *string `json:"turma_id,omitempty"`

	// PhotoURL references the student's photo, if one was uploaded.
	PhotoURL *string `json:"foto,omitempty"`
}

// FullName returns first and last name joined by a single space.
func (d Dependent) FullName() string {
	return joinName(d.FirstName, d.LastName)
}

// Validate checks the fields the engine relies on.
func (d Dependent) Validate() error {
	if d.ID == "" {
		return &FieldError{Record: "dependent", Field: "id", Reason: "missing"}
	}
	return nil
}
