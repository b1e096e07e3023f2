package storage

import "fmt"

// IntegrityError reports a referential-integrity violation found while
// re-adding a foreign key after a bulk load. It is distinct from generic load
// failures because a dangling reference means resolution produced a bad key,
// not that the database hiccuped.
type IntegrityError struct {
	Constraint string
	Table      string
	Column     string
	Err        error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation adding constraint %s on %s.%s: %v",
		e.Constraint, e.Table, e.Column, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }
