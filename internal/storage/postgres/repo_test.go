package postgres

import (
	"strings"
	"testing"

	"gtdetl/internal/storage"
)

func TestBuildInsertSQLPlaceholders(t *testing.T) {
	sql, args := buildInsertSQL(
		"DimCountry",
		[]string{"GTDCountryCode", "CountryName"},
		[][]any{{int64(45), "Colombia"}, {int64(217), "United States"}},
		[]string{"GTDCountryCode"},
	)

	want := `INSERT INTO "DimCountry" ("GTDCountryCode", "CountryName") VALUES ($1, $2), ($3, $4) ON CONFLICT ("GTDCountryCode") DO NOTHING`
	if sql != want {
		t.Errorf("sql =\n%s\nwant\n%s", sql, want)
	}
	if len(args) != 4 || args[0] != int64(45) || args[3] != "United States" {
		t.Errorf("args = %v", args)
	}
}

func TestBuildInsertSQLNoConflictClause(t *testing.T) {
	sql, _ := buildInsertSQL("t", []string{"a"}, [][]any{{1}}, nil)
	if strings.Contains(sql, "ON CONFLICT") {
		t.Errorf("unexpected conflict clause: %s", sql)
	}
}

func TestBuildCreateTableSQL(t *testing.T) {
	sql, err := buildCreateTableSQL(storage.TableSpec{
		Name:       "DimCountry",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "CountryKey", Type: "identity"},
		Columns: []storage.ColumnSpec{
			{Name: "GTDCountryCode", Type: "bigint"},
			{Name: "CountryName", Type: "text"},
		},
		Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{"GTDCountryCode"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, frag := range []string{
		"CREATE TABLE IF NOT EXISTS",
		`"CountryKey" BIGSERIAL PRIMARY KEY`,
		`"GTDCountryCode" BIGINT NOT NULL`,
		`UNIQUE ("GTDCountryCode")`,
	} {
		if !strings.Contains(sql, frag) {
			t.Errorf("DDL missing %q:\n%s", frag, sql)
		}
	}
}

func TestBuildCreateTableSQLNullable(t *testing.T) {
	sql, err := buildCreateTableSQL(storage.TableSpec{
		Name:       "Fact_Terror_Events",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "EventID", Type: "text"},
		Columns: []storage.ColumnSpec{
			{Name: "DateKey", Type: "bigint"},
			{Name: "CountryKey", Type: "bigint", Nullable: true},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sql, `"DateKey" BIGINT NOT NULL`) {
		t.Errorf("DateKey should be NOT NULL:\n%s", sql)
	}
	if strings.Contains(sql, `"CountryKey" BIGINT NOT NULL`) {
		t.Errorf("CountryKey should be nullable:\n%s", sql)
	}
}

func TestBuildCreateTableSQLRejectsUnknownType(t *testing.T) {
	_, err := buildCreateTableSQL(storage.TableSpec{
		Name:    "t",
		Columns: []storage.ColumnSpec{{Name: "a", Type: "json"}},
	})
	if err == nil {
		t.Fatal("want error for unsupported column type")
	}
}

func TestChunkRowsRespectsParamBudget(t *testing.T) {
	rows := make([][]any, 5000)
	for i := range rows {
		rows[i] = []any{1, 2, 3}
	}
	chunks := chunkRows(rows, 3)
	total := 0
	for _, c := range chunks {
		if len(c)*3 > maxParams {
			t.Fatalf("chunk binds %d params", len(c)*3)
		}
		total += len(c)
	}
	if total != 5000 {
		t.Fatalf("chunks cover %d rows, want 5000", total)
	}
}

func TestPgIdent(t *testing.T) {
	if got := pgIdent(`we"ird`); got != `"we""ird"` {
		t.Errorf("pgIdent = %s", got)
	}
}
