package config

import "fmt"

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding with a JSON-ish path to the field.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// ValidatePipeline checks a decoded pipeline config for structural problems.
// It returns all findings rather than stopping at the first, so operators
// can fix a config in one pass. Errors make the config unusable; warnings
// flag suspicious but runnable settings.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityError, path, fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf(format, a...)})
	}

	if p.Source.Kind != "file" {
		errf("source.kind", "must be %q, got %q", "file", p.Source.Kind)
	}
	if p.Source.File == nil || p.Source.File.Path == "" {
		errf("source.file.path", "is required")
	}

	if p.Parser.Kind != "csv" {
		errf("parser.kind", "must be %q, got %q", "csv", p.Parser.Kind)
	}
	if enc := p.Parser.Options.String("encoding", "latin1"); enc != "latin1" && enc != "utf-8" {
		errf("parser.options.encoding", "unsupported encoding %q (latin1 or utf-8)", enc)
	}

	switch p.Storage.Kind {
	case "postgres", "mssql", "sqlite":
	case "":
		errf("storage.kind", "is required")
	default:
		errf("storage.kind", "unsupported backend %q", p.Storage.Kind)
	}
	if p.Storage.DB.DSN == "" {
		errf("storage.db.dsn", "is required")
	}

	if p.Runtime.BatchSize < 0 {
		errf("runtime.batch_size", "must be >= 0")
	}
	if p.Runtime.DimensionWorkers < 0 {
		errf("runtime.dimension_workers", "must be >= 0")
	}
	if p.Runtime.DimensionWorkers > 18 {
		warnf("runtime.dimension_workers", "%d exceeds the number of dimensions; extra workers idle", p.Runtime.DimensionWorkers)
	}
	if p.Job == "" {
		warnf("job", "is empty; metrics fall back to the default job name")
	}

	return issues
}
