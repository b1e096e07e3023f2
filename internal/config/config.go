// Package config defines the JSON pipeline configuration for the GTD
// warehouse loader and small helpers for reading loosely-typed options.
package config

// Pipeline is the top-level configuration decoded from the -config JSON file.
type Pipeline struct {
	Job     string  `json:"job"`
	Source  Source  `json:"source"`
	Parser  Parser  `json:"parser"`
	Storage Storage `json:"storage"`
	Runtime Runtime `json:"runtime"`
}

type Source struct {
	Kind string      `json:"kind"`
	File *FileSource `json:"file,omitempty"`
}

type FileSource struct {
	Path string `json:"path"`
}

type Parser struct {
	Kind    string  `json:"kind"`
	Options Options `json:"options"`
}

type Storage struct {
	// Backend kind: "postgres" | "mssql" | "sqlite"
	Kind string `json:"kind"`
	DB   DB     `json:"db"`
}

type DB struct {
	// DSN may reference environment variables with ${VAR} syntax.
	DSN string `json:"dsn"`
}

// Runtime controls pipeline execution behavior.
type Runtime struct {
	BatchSize     int `json:"batch_size"`
	ChannelBuffer int `json:"channel_buffer"`

	// DimensionWorkers bounds the number of dimension loads running
	// concurrently. The loads target disjoint tables and read the same
	// immutable extraction snapshot, so any value >= 1 is safe.
	DimensionWorkers int `json:"dimension_workers"`

	// FailFast stops the run at the first failed step. When false the run
	// is best-effort: every step is attempted and reported independently,
	// except the fact load, which is skipped if any dimension load failed.
	FailFast bool `json:"fail_fast"`

	// DebugTimings enables per-batch timing logs for the load stages.
	DebugTimings bool `json:"debug_timings"`
}
