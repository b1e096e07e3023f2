package gtd

import (
	"strings"
	"testing"

	"gtdetl/internal/transformer"
)

// rowOf builds a pooled row aligned to Columns from a sparse field map.
func rowOf(t *testing.T, fields map[string]string) *transformer.Row {
	t.Helper()
	row := transformer.GetRow(len(Columns))
	ix := make(map[string]int, len(Columns))
	for i, c := range Columns {
		ix[c] = i
	}
	for k, v := range fields {
		i, ok := ix[k]
		if !ok {
			t.Fatalf("unknown column %q", k)
		}
		row.V[i] = v
	}
	return row
}

func TestParseRowBasics(t *testing.T) {
	row := rowOf(t, map[string]string{
		"event_id":         "200109110004",
		"year":             "2001",
		"month":            "9",
		"day":              "11",
		"country_code":     "217",
		"country_name":     "United States",
		"latitude":         "40.697",
		"longitude":        "-73.93",
		"success":          "1",
		"num_killed":       "1384.0",
		"group_name":       "unknown",
		"attack_type_code": "3",
	})
	defer row.Free()

	r, err := ParseRow(row)
	if err != nil {
		t.Fatal(err)
	}
	if r.EventID != "200109110004" {
		t.Errorf("EventID = %q", r.EventID)
	}
	if r.Year == nil || *r.Year != 2001 || r.Month == nil || *r.Month != 9 {
		t.Errorf("date parts = %v/%v", r.Year, r.Month)
	}
	if r.CountryName == nil || *r.CountryName != "United States" {
		t.Errorf("CountryName = %v", r.CountryName)
	}
	if r.Latitude == nil || *r.Latitude != 40.697 {
		t.Errorf("Latitude = %v", r.Latitude)
	}
	// float-formatted count coerces to an integer
	if r.NumKilled == nil || *r.NumKilled != 1384 {
		t.Errorf("NumKilled = %v", r.NumKilled)
	}
	// placeholder token nulls the group name
	if r.GroupName != nil {
		t.Errorf("GroupName = %v, want nil", *r.GroupName)
	}
	if r.RegionCode != nil || r.City != nil {
		t.Error("absent fields should be nil")
	}
}

func TestParseRowPlaceholderTokens(t *testing.T) {
	for _, tok := range []string{"Unknown", "NOT APPLICABLE", "unk", "NaN", "<NA>", "none"} {
		row := rowOf(t, map[string]string{"event_id": "1", "city": tok})
		r, err := ParseRow(row)
		row.Free()
		if err != nil {
			t.Fatalf("token %q: %v", tok, err)
		}
		if r.City != nil {
			t.Errorf("token %q: City = %q, want nil", tok, *r.City)
		}
	}
}

func TestParseRowMissingEventID(t *testing.T) {
	row := rowOf(t, map[string]string{"year": "2001"})
	defer row.Free()
	if _, err := ParseRow(row); err == nil || !strings.Contains(err.Error(), "event id") {
		t.Fatalf("err = %v, want missing event id", err)
	}
}

func TestParseRowBadNumbers(t *testing.T) {
	row := rowOf(t, map[string]string{"event_id": "1", "num_killed": "several"})
	defer row.Free()
	if _, err := ParseRow(row); err == nil {
		t.Fatal("want error for non-numeric count")
	}

	row2 := rowOf(t, map[string]string{"event_id": "1", "num_killed": "1.5"})
	defer row2.Free()
	if _, err := ParseRow(row2); err == nil {
		t.Fatal("want error for fractional count")
	}
}

func TestDefaultHeaderMapTargetsAreCanonical(t *testing.T) {
	canon := make(map[string]struct{}, len(Columns))
	for _, c := range Columns {
		canon[c] = struct{}{}
	}
	for raw, target := range DefaultHeaderMap {
		if _, ok := canon[target]; !ok {
			t.Errorf("header map %q -> %q: target not in Columns", raw, target)
		}
	}
}
