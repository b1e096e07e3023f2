package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gtdetl/internal/storage"
)

// Repo implements storage.Repository for Postgres.
//
// Idempotent inserts use INSERT ... ON CONFLICT (...) DO NOTHING against the
// dimension's unique natural key (or the fact table's primary key), so reruns
// and duplicate candidates in the same batch never violate constraints.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a Postgres-backed Repo and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTables creates the given tables if missing. Existing tables are left
// untouched; this method is safe to run on every invocation.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertDimensionRows inserts candidates whose natural key is absent, one
// transaction for the whole dimension. Chunked to keep parameter counts
// reasonable.
func (r *Repo) InsertDimensionRows(
	ctx context.Context,
	table string,
	columns []string,
	rows [][]any,
	keyColumns []string,
) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if table == "" || len(columns) == 0 || len(keyColumns) == 0 {
		return 0, fmt.Errorf("InsertDimensionRows: table, columns and keyColumns are required")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("InsertDimensionRows: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var total int64
	for _, part := range chunkRows(rows, len(columns)) {
		sql, args := buildInsertSQL(table, columns, part, keyColumns)
		cmd, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return 0, fmt.Errorf("InsertDimensionRows: insert into %s: %w", table, err)
		}
		total += cmd.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("InsertDimensionRows: commit: %w", err)
	}
	return total, nil
}

// SelectSurrogateKeys loads the full natural-key -> surrogate-key map for a
// dimension. Composite keys are encoded with storage.CompositeKey in
// keyColumns order, matching what resolution computes from source values.
func (r *Repo) SelectSurrogateKeys(
	ctx context.Context,
	table string,
	keyColumns []string,
	valueColumn string,
) (map[string]int64, error) {
	if table == "" || len(keyColumns) == 0 || valueColumn == "" {
		return nil, fmt.Errorf("SelectSurrogateKeys: table, keyColumns and valueColumn are required")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	for _, c := range keyColumns {
		b.WriteString(pgIdent(c))
		b.WriteString(", ")
	}
	b.WriteString(pgIdent(valueColumn))
	b.WriteString(" FROM ")
	b.WriteString(pgIdent(table))

	rows, err := r.pool.Query(ctx, b.String())
	if err != nil {
		return nil, fmt.Errorf("SelectSurrogateKeys: query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		keyVals := make([]any, len(keyColumns))
		dests := make([]any, 0, len(keyColumns)+1)
		for i := range keyVals {
			dests = append(dests, &keyVals[i])
		}
		var id int64
		dests = append(dests, &id)
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("SelectSurrogateKeys: scan %s: %w", table, err)
		}
		out[storage.CompositeKey(keyVals...)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SelectSurrogateKeys: rows %s: %w", table, err)
	}
	return out, nil
}

// InsertFactRows inserts fact rows whose dedupe columns are absent. One
// transaction per call; reruns insert zero rows.
func (r *Repo) InsertFactRows(
	ctx context.Context,
	table string,
	columns []string,
	rows [][]any,
	dedupeColumns []string,
) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if table == "" || len(columns) == 0 {
		return 0, fmt.Errorf("InsertFactRows: table and columns are required")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("InsertFactRows: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var total int64
	for _, part := range chunkRows(rows, len(columns)) {
		sql, args := buildInsertSQL(table, columns, part, dedupeColumns)
		cmd, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return 0, fmt.Errorf("InsertFactRows: insert into %s: %w", table, err)
		}
		total += cmd.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("InsertFactRows: commit: %w", err)
	}
	return total, nil
}

// DropForeignKeys removes the listed constraints. Missing constraints are
// fine (IF EXISTS), so this is idempotent across partial prior runs.
func (r *Repo) DropForeignKeys(ctx context.Context, fks []storage.ForeignKeySpec) error {
	for _, fk := range fks {
		sql := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s",
			pgIdent(fk.Table), pgIdent(fk.Name))
		if _, err := r.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("DropForeignKeys: %s: %w", fk.Name, err)
		}
	}
	return nil
}

// AddForeignKeys re-adds the listed constraints. A foreign-key violation
// (dangling reference left by the load) surfaces as *storage.IntegrityError.
func (r *Repo) AddForeignKeys(ctx context.Context, fks []storage.ForeignKeySpec) error {
	for _, fk := range fks {
		sql := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			pgIdent(fk.Table), pgIdent(fk.Name), pgIdent(fk.Column),
			pgIdent(fk.RefTable), pgIdent(fk.RefColumn))
		if _, err := r.pool.Exec(ctx, sql); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return &storage.IntegrityError{
					Constraint: fk.Name,
					Table:      fk.Table,
					Column:     fk.Column,
					Err:        err,
				}
			}
			return fmt.Errorf("AddForeignKeys: %s: %w", fk.Name, err)
		}
	}
	return nil
}

// Truncate empties the listed tables in one statement and restarts their
// identity sequences, so a full reset also resets surrogate-key counters.
func (r *Repo) Truncate(ctx context.Context, tables []string) error {
	if len(tables) == 0 {
		return nil
	}
	idents := make([]string, len(tables))
	for i, t := range tables {
		idents[i] = pgIdent(t)
	}
	sql := "TRUNCATE TABLE " + strings.Join(idents, ", ") + " RESTART IDENTITY"
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("Truncate: %w", err)
	}
	return nil
}

// RecordOperation appends one operation-log row. Failures are swallowed; a
// log write must never fail the caller.
func (r *Repo) RecordOperation(ctx context.Context, action, message string, at time.Time) {
	sql := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES ($1, $2, $3)",
		pgIdent("OperationLog"), pgIdent("Action"), pgIdent("Message"), pgIdent("LoggedAt"))
	_, _ = r.pool.Exec(ctx, sql, action, message, at)
}

/* ---------- SQL builders ---------- */

// maxParams keeps each statement well below driver parameter limits.
const maxParams = 2000

// chunkRows splits rows so each chunk binds at most maxParams parameters.
func chunkRows(rows [][]any, cols int) [][][]any {
	per := maxParams / cols
	if per < 1 {
		per = 1
	}
	var out [][][]any
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

// buildInsertSQL constructs a single multi-row INSERT and its args.
//
// It is pure and deterministic so conflict behavior and placeholder numbering
// can be unit tested without a database. conflictColumns, when non-empty,
// append ON CONFLICT (...) DO NOTHING.
func buildInsertSQL(table string, columns []string, rows [][]any, conflictColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	if len(conflictColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, c := range conflictColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(") DO NOTHING")
	}

	return b.String(), args
}

// buildCreateTableSQL renders CREATE TABLE IF NOT EXISTS for a spec.
func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("postgres: table name is empty")
	}

	cols := make([]string, 0, len(t.Columns)+2)
	if pk := t.PrimaryKey; pk != nil {
		typ, err := pgPrimaryKeyType(pk.Type)
		if err != nil {
			return "", fmt.Errorf("postgres: table %s: %w", t.Name, err)
		}
		cols = append(cols, fmt.Sprintf("%s %s PRIMARY KEY", pgIdent(pk.Name), typ))
	}
	for _, c := range t.Columns {
		typ, err := pgColumnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("postgres: table %s column %s: %w", t.Name, c.Name, err)
		}
		def := pgIdent(c.Name) + " " + typ
		if !c.Nullable {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	for _, c := range t.Constraints {
		if c.Kind != "unique" {
			return "", fmt.Errorf("postgres: table %s: unsupported constraint kind %q", t.Name, c.Kind)
		}
		parts := make([]string, len(c.Columns))
		for i, col := range c.Columns {
			parts[i] = pgIdent(col)
		}
		cols = append(cols, "UNIQUE ("+strings.Join(parts, ", ")+")")
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);",
		pgIdent(t.Name), strings.Join(cols, ", ")), nil
}

func pgPrimaryKeyType(kind string) (string, error) {
	switch kind {
	case "identity":
		return "BIGSERIAL", nil
	case "bigint":
		return "BIGINT", nil
	case "text":
		return "TEXT", nil
	default:
		return "", fmt.Errorf("unsupported primary key type %q", kind)
	}
}

func pgColumnType(kind string) (string, error) {
	switch kind {
	case "bigint":
		return "BIGINT", nil
	case "text":
		return "TEXT", nil
	case "double":
		return "DOUBLE PRECISION", nil
	case "timestamp":
		return "TIMESTAMPTZ", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", kind)
	}
}

// pgIdent returns a double-quoted identifier, escaping embedded quotes.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
