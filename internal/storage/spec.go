// The spec types live here so the star-schema and backend packages can both
// import them without circular deps.
package storage

// TableSpec is a backend-neutral table description. Backends translate the
// generic column types (bigint, text, double, timestamp, serial identity
// keys) into their own dialect when creating tables.
type TableSpec struct {
	Name        string
	PrimaryKey  *PrimaryKeySpec
	Columns     []ColumnSpec
	Constraints []ConstraintSpec
}

// PrimaryKeySpec describes the table's surrogate key column. Type "identity"
// asks the backend for its auto-incrementing integer key (serial, IDENTITY,
// AUTOINCREMENT); type "bigint" makes the caller supply the key value, which
// the pre-populated date dimension needs.
type PrimaryKeySpec struct {
	Name string
	Type string // "identity" | "bigint"
}

type ColumnSpec struct {
	Name     string
	Type     string // "bigint" | "text" | "double" | "timestamp"
	Nullable bool
}

// ConstraintSpec declares a table-level constraint created with the table.
type ConstraintSpec struct {
	Kind    string // "unique"
	Columns []string
}

// ForeignKeySpec is one referential-integrity constraint on the fact table.
// The set of these is declarative and owned by the schema package; the
// constraint manager drops and re-adds exactly this list, never introspecting
// live schema state.
type ForeignKeySpec struct {
	Name      string
	Table     string
	Column    string
	RefTable  string
	RefColumn string
}
