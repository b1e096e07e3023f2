package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"gtdetl/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - Idempotent inserts use INSERT OR IGNORE, which relies on the UNIQUE/PK
//     constraints declared at table creation rather than an explicit conflict
//     target.
//   - SQLite has no ALTER TABLE ... ADD CONSTRAINT. DropForeignKeys is a
//     no-op and AddForeignKeys validates the declarative constraint list with
//     anti-join queries, so dangling references still fail loudly.
//   - Timestamps are stored as RFC3339Nano strings for reliable round-trip
//     behavior and easy debugging.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// Concurrent writers on one file just contend; serialize in the pool.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertDimensionRows inserts candidates whose natural key is absent.
//
// keyColumns is not referenced in SQL: OR IGNORE relies on the UNIQUE
// constraint the table was created with covering exactly those columns.
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
	return r.insertIgnore(ctx, table, columns, rows)
}

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
	// dedupeColumns must be covered by the PK/UNIQUE constraints; OR IGNORE
	// handles the rest.
	return r.insertIgnore(ctx, table, columns, rows)
}

func (r *Repo) insertIgnore(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, part := range chunkRows(rows, len(columns)) {
		q, args := buildInsertOrIgnoreSQL(table, columns, part)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("sqlite: insert into %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("sqlite: rows affected %s: %w", table, err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit %s: %w", table, err)
	}
	return total, nil
}

func (r *Repo) SelectSurrogateKeys(
	ctx context.Context,
	table string,
	keyColumns []string,
	valueColumn string,
) (map[string]int64, error) {
	if table == "" || len(keyColumns) == 0 || valueColumn == "" {
		return nil, fmt.Errorf("SelectSurrogateKeys: table, keyColumns and valueColumn are required")
	}

	cols := make([]string, 0, len(keyColumns)+1)
	for _, c := range keyColumns {
		cols = append(cols, sqlIdent(c))
	}
	cols = append(cols, sqlIdent(valueColumn))
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), sqlIdent(table))

	rows, err := r.db.QueryContext(ctx, q)
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

// DropForeignKeys is a no-op: SQLite cannot add or drop foreign keys on an
// existing table, and this repo creates tables without FK clauses so bulk
// loads are never constraint-checked per row.
func (r *Repo) DropForeignKeys(ctx context.Context, fks []storage.ForeignKeySpec) error {
	return nil
}

// AddForeignKeys validates each declared constraint with an anti-join count
// of dangling references. A non-zero count surfaces as *storage.IntegrityError,
// matching the other backends' failure mode for a bad key left by the load.
func (r *Repo) AddForeignKeys(ctx context.Context, fks []storage.ForeignKeySpec) error {
	for _, fk := range fks {
		q := buildDanglingCountSQL(fk)
		var n int64
		if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return fmt.Errorf("AddForeignKeys: %s: %w", fk.Name, err)
		}
		if n > 0 {
			return &storage.IntegrityError{
				Constraint: fk.Name,
				Table:      fk.Table,
				Column:     fk.Column,
				Err:        fmt.Errorf("%d dangling reference(s)", n),
			}
		}
	}
	return nil
}

// Truncate empties tables in the given order and resets their AUTOINCREMENT
// counters via sqlite_sequence.
func (r *Repo) Truncate(ctx context.Context, tables []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Truncate: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+sqlIdent(t)); err != nil {
			return fmt.Errorf("Truncate: %s: %w", t, err)
		}
		// No sqlite_sequence row exists until an AUTOINCREMENT table has
		// seen an insert; ignore the miss.
		_, _ = tx.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = ?", t)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Truncate: commit: %w", err)
	}
	return nil
}

func (r *Repo) RecordOperation(ctx context.Context, action, message string, at time.Time) {
	q := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?)",
		sqlIdent("OperationLog"), sqlIdent("Action"), sqlIdent("Message"), sqlIdent("LoggedAt"))
	_, _ = r.db.ExecContext(ctx, q, action, message, formatSQLiteTime(at))
}

/* ---------- SQL builders ---------- */

const maxParams = 2000

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

func buildInsertOrIgnoreSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, bindValue(row[j]))
		}
		b.WriteString(")")
	}
	return b.String(), args
}

func buildDanglingCountSQL(fk storage.ForeignKeySpec) string {
	return fmt.Sprintf(
		"SELECT COUNT(*) FROM %s f LEFT JOIN %s d ON f.%s = d.%s WHERE f.%s IS NOT NULL AND d.%s IS NULL",
		sqlIdent(fk.Table), sqlIdent(fk.RefTable),
		sqlIdent(fk.Column), sqlIdent(fk.RefColumn),
		sqlIdent(fk.Column), sqlIdent(fk.RefColumn),
	)
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("sqlite: table name is empty")
	}

	cols := make([]string, 0, len(t.Columns)+2)
	if pk := t.PrimaryKey; pk != nil {
		switch pk.Type {
		case "identity":
			cols = append(cols, sqlIdent(pk.Name)+" INTEGER PRIMARY KEY AUTOINCREMENT")
		case "bigint":
			cols = append(cols, sqlIdent(pk.Name)+" INTEGER PRIMARY KEY")
		case "text":
			cols = append(cols, sqlIdent(pk.Name)+" TEXT PRIMARY KEY")
		default:
			return "", fmt.Errorf("sqlite: table %s: unsupported primary key type %q", t.Name, pk.Type)
		}
	}
	for _, c := range t.Columns {
		typ, err := sqliteColumnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("sqlite: table %s column %s: %w", t.Name, c.Name, err)
		}
		def := sqlIdent(c.Name) + " " + typ
		if !c.Nullable {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	for _, c := range t.Constraints {
		if c.Kind != "unique" {
			return "", fmt.Errorf("sqlite: table %s: unsupported constraint kind %q", t.Name, c.Kind)
		}
		parts := make([]string, len(c.Columns))
		for i, col := range c.Columns {
			parts[i] = sqlIdent(col)
		}
		cols = append(cols, "UNIQUE ("+strings.Join(parts, ", ")+")")
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);",
		sqlIdent(t.Name), strings.Join(cols, ", ")), nil
}

func sqliteColumnType(kind string) (string, error) {
	switch kind {
	case "bigint":
		return "INTEGER", nil
	case "text":
		return "TEXT", nil
	case "double":
		return "REAL", nil
	case "timestamp":
		// stored as RFC3339Nano text, see bindValue
		return "TEXT", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", kind)
	}
}

// bindValue converts Go values the driver handles poorly. time.Time becomes
// RFC3339Nano text so timestamp columns round-trip as strings.
func bindValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return formatSQLiteTime(t)
	}
	return v
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
