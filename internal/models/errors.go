package models

import "fmt"

// FieldError reports a record that violates the expected schema.
type FieldError struct {
	Record string
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %q %s", e.Record, e.Field, e.Reason)
}
