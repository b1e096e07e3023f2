package star

import (
	"testing"

	"gtdetl/internal/gtd"
)

func TestSchemaShape(t *testing.T) {
	if len(Dimensions) != 17 {
		t.Fatalf("extractable dimensions = %d, want 17 (18 minus DimDate)", len(Dimensions))
	}
	seen := map[string]bool{}
	for _, d := range Dimensions {
		if seen[d.Table] {
			t.Errorf("duplicate dimension table %s", d.Table)
		}
		seen[d.Table] = true
		if len(d.Columns) != len(d.Types) {
			t.Errorf("%s: %d columns vs %d types", d.Table, len(d.Columns), len(d.Types))
		}
		for _, nk := range d.NaturalKey {
			found := false
			for _, c := range d.Columns {
				if c == nk {
					found = true
				}
			}
			if !found {
				t.Errorf("%s: natural key column %q not in Columns", d.Table, nk)
			}
		}
	}
}

func TestFactColumnsShape(t *testing.T) {
	cols := FactColumns()
	// EventID + DateKey + LocationKey + 16 FKs + 6 measures.
	if len(cols) != 25 {
		t.Fatalf("fact columns = %d, want 25", len(cols))
	}
	if cols[0] != "EventID" || cols[1] != "DateKey" || cols[2] != "LocationKey" {
		t.Fatalf("fact columns start %v", cols[:3])
	}
}

func TestForeignKeysCoverEveryDimension(t *testing.T) {
	fks := ForeignKeys()
	if len(fks) != 18 {
		t.Fatalf("foreign keys = %d, want 18", len(fks))
	}
	names := map[string]bool{}
	for _, fk := range fks {
		if fk.Table != FactTable {
			t.Errorf("%s: constraint not on the fact table", fk.Name)
		}
		if names[fk.Name] {
			t.Errorf("duplicate constraint name %s", fk.Name)
		}
		names[fk.Name] = true
	}
}

func TestTruncateOrderFactFirst(t *testing.T) {
	order := TruncateOrder()
	if order[0] != FactTable {
		t.Fatalf("truncate order starts with %s, want the fact table", order[0])
	}
	if len(order) != 19 {
		t.Fatalf("truncate order covers %d tables, want 19", len(order))
	}
}

func TestLocationTupleSentinels(t *testing.T) {
	got := LocationTuple(&gtd.Record{EventID: "1"})
	want := []any{UnknownPlace, UnknownPlace, UnknownCode, UnknownCode, UnknownLatLong, UnknownLatLong}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tuple = %v, want %v", got, want)
		}
	}
}
