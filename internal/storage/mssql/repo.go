package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mssqldb "github.com/microsoft/go-mssqldb"

	"gtdetl/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Implementation details:
//   - Avoids MERGE. Idempotent inserts use INSERT ... SELECT over a VALUES
//     derived table with a NOT EXISTS anti-join on the natural/dedupe key.
//   - Chunks statements to stay well within SQL Server's 2100 parameter
//     limit.
//   - DDL guards use OBJECT_ID(N'...', N'U') IS NULL checks; SQL Server has
//     no CREATE TABLE IF NOT EXISTS.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New constructs a Repo using the "sqlserver" driver and validates
// connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Conservative defaults for ETL-style bursty loads.
	db.SetMaxOpenConns(64)
	db.SetMaxIdleConns(64)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

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
	return r.insertNotExists(ctx, table, columns, rows, keyColumns)
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
	if table == "" || len(columns) == 0 || len(dedupeColumns) == 0 {
		return 0, fmt.Errorf("InsertFactRows: table, columns and dedupeColumns are required")
	}
	return r.insertNotExists(ctx, table, columns, rows, dedupeColumns)
}

func (r *Repo) insertNotExists(
	ctx context.Context,
	table string,
	columns []string,
	rows [][]any,
	dedupeColumns []string,
) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, part := range chunkRows(rows, len(columns)) {
		q, args := buildInsertNotExistsSQL(table, columns, part, dedupeColumns)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("mssql: insert into %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("mssql: rows affected %s: %w", table, err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit %s: %w", table, err)
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
		cols = append(cols, mssqlIdent(c))
	}
	cols = append(cols, mssqlIdent(valueColumn))
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), mssqlTableIdent(table))

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

func (r *Repo) DropForeignKeys(ctx context.Context, fks []storage.ForeignKeySpec) error {
	for _, fk := range fks {
		q := fmt.Sprintf(
			"IF OBJECT_ID(N'%s', N'F') IS NOT NULL ALTER TABLE %s DROP CONSTRAINT %s",
			fk.Name, mssqlTableIdent(fk.Table), mssqlIdent(fk.Name))
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("DropForeignKeys: %s: %w", fk.Name, err)
		}
	}
	return nil
}

// AddForeignKeys re-adds the declared constraints. SQL Server reports a
// violated FK check as error 547; that case surfaces as
// *storage.IntegrityError.
func (r *Repo) AddForeignKeys(ctx context.Context, fks []storage.ForeignKeySpec) error {
	for _, fk := range fks {
		q := fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			mssqlTableIdent(fk.Table), mssqlIdent(fk.Name), mssqlIdent(fk.Column),
			mssqlTableIdent(fk.RefTable), mssqlIdent(fk.RefColumn))
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			var sqlErr mssqldb.Error
			if errors.As(err, &sqlErr) && sqlErr.Number == 547 {
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

// Truncate empties tables in the given order. DELETE rather than TRUNCATE:
// SQL Server refuses TRUNCATE on tables referenced by a foreign key even
// when the referencing table is empty. Identity counters are reseeded so a
// reset also restarts surrogate keys.
func (r *Repo) Truncate(ctx context.Context, tables []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Truncate: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+mssqlTableIdent(t)); err != nil {
			return fmt.Errorf("Truncate: %s: %w", t, err)
		}
		// Reseed only tables that actually have an identity column.
		reseed := fmt.Sprintf(
			"IF OBJECTPROPERTY(OBJECT_ID(N'%s'), 'TableHasIdentity') = 1 DBCC CHECKIDENT (N'%s', RESEED, 0)",
			t, t)
		if _, err := tx.ExecContext(ctx, reseed); err != nil {
			return fmt.Errorf("Truncate: reseed %s: %w", t, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Truncate: commit: %w", err)
	}
	return nil
}

func (r *Repo) RecordOperation(ctx context.Context, action, message string, at time.Time) {
	q := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (@p1, @p2, @p3)",
		mssqlTableIdent("OperationLog"), mssqlIdent("Action"), mssqlIdent("Message"), mssqlIdent("LoggedAt"))
	_, _ = r.db.ExecContext(ctx, q, action, message, at)
}

/* ---------- SQL builders ---------- */

// SQL Server has a hard limit of 2100 parameters. Stay comfortably below.
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

// buildInsertNotExistsSQL constructs one INSERT...SELECT...WHERE NOT EXISTS
// for a chunk of rows: incoming rows materialize as a derived table v via
// VALUES, and only rows without a match on dedupeColumns are inserted.
//
// The returned SQL is deterministic for a given input; split out for
// testability without a database.
func buildInsertNotExistsSQL(table string, columns []string, rows [][]any, dedupeColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("v.")
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(" FROM (VALUES ")

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
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(") AS v(")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" t WHERE ")
	for i, dc := range dedupeColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("t.")
		b.WriteString(mssqlIdent(dc))
		b.WriteString(" = v.")
		b.WriteString(mssqlIdent(dc))
	}
	b.WriteString(")")

	return b.String(), args
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}

	cols := make([]string, 0, len(t.Columns)+2)
	if pk := t.PrimaryKey; pk != nil {
		typ, err := mssqlPrimaryKeyType(pk.Type)
		if err != nil {
			return "", fmt.Errorf("mssql: table %s: %w", t.Name, err)
		}
		cols = append(cols, fmt.Sprintf("%s %s PRIMARY KEY", mssqlIdent(pk.Name), typ))
	}
	for _, c := range t.Columns {
		typ, err := mssqlColumnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("mssql: table %s column %s: %w", t.Name, c.Name, err)
		}
		def := mssqlIdent(c.Name) + " " + typ
		if c.Nullable {
			def += " NULL"
		} else {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	for _, c := range t.Constraints {
		if c.Kind != "unique" {
			return "", fmt.Errorf("mssql: table %s: unsupported constraint kind %q", t.Name, c.Kind)
		}
		parts := make([]string, len(c.Columns))
		for i, col := range c.Columns {
			parts[i] = mssqlIdent(col)
		}
		cols = append(cols, "UNIQUE ("+strings.Join(parts, ", ")+")")
	}

	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s);",
		t.Name, mssqlTableIdent(t.Name), strings.Join(cols, ", ")), nil
}

func mssqlPrimaryKeyType(kind string) (string, error) {
	switch kind {
	case "identity":
		return "BIGINT IDENTITY(1,1)", nil
	case "bigint":
		return "BIGINT", nil
	case "text":
		// NVARCHAR(450) keeps the key indexable within the 900-byte limit.
		return "NVARCHAR(450)", nil
	default:
		return "", fmt.Errorf("unsupported primary key type %q", kind)
	}
}

func mssqlColumnType(kind string) (string, error) {
	switch kind {
	case "bigint":
		return "BIGINT", nil
	case "text":
		// NVARCHAR(200) keeps the widest composite unique key (location:
		// two text columns plus four numerics, 832 bytes) inside the
		// 1700-byte nonclustered index cap.
		return "NVARCHAR(200)", nil
	case "double":
		return "FLOAT", nil
	case "timestamp":
		return "DATETIME2", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", kind)
	}
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified
// names, e.g. "dbo.DimCountry" -> [dbo].[DimCountry].
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
