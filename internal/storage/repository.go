package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config is the minimal configuration needed to create a repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is the backend-agnostic warehouse interface the pipeline loads
// through. Each backend implements the idempotent-insert semantics in its own
// idiomatic way (Postgres ON CONFLICT, SQLite OR IGNORE, SQL Server
// anti-join).
type Repository interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// EnsureTables creates the given tables if they do not exist, including
	// declared unique constraints. It never alters existing tables.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// InsertDimensionRows inserts only rows whose natural key (the
	// keyColumns subset of columns) is not already present. Existing rows
	// are never updated, so surrogate keys stay stable across runs. The
	// whole call is one transaction; it returns the number actually
	// inserted.
	InsertDimensionRows(ctx context.Context, table string, columns []string, rows [][]any, keyColumns []string) (int64, error)

	// SelectSurrogateKeys loads the full natural-key -> surrogate-key map
	// for a dimension. Composite natural keys are encoded with CompositeKey
	// over the keyColumns order.
	SelectSurrogateKeys(ctx context.Context, table string, keyColumns []string, valueColumn string) (map[string]int64, error)

	// InsertFactRows inserts rows whose dedupeColumns values are not already
	// present. Atomic per call; returns the number inserted.
	InsertFactRows(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error)

	// DropForeignKeys removes the listed constraints if present.
	// AddForeignKeys re-adds them; a dangling reference surfaces as an
	// *IntegrityError rather than a generic failure.
	DropForeignKeys(ctx context.Context, fks []ForeignKeySpec) error
	AddForeignKeys(ctx context.Context, fks []ForeignKeySpec) error

	// Truncate empties the listed tables in order and resets their
	// surrogate-key counters. Callers list the fact table first.
	Truncate(ctx context.Context, tables []string) error

	// RecordOperation appends one operation-log row. Implementations must
	// swallow their own errors; a log write never fails the caller.
	RecordOperation(ctx context.Context, action, message string, at time.Time)
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
// Call it from an init() function in the backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. Intentional, to fail fast on ambiguous
//     backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - If cfg.Kind is empty or not registered.
//   - Whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing storage.kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
