package star

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gtdetl/internal/gtd"
	"gtdetl/internal/storage"
)

// keysFor builds the natural-key -> surrogate maps the way the pipeline
// would after loading: extract from the records, then number members in
// sorted-key order starting at 1.
func keysFor(records ...*gtd.Record) map[string]map[string]int64 {
	e := NewExtractor()
	for _, r := range records {
		e.Observe(r)
	}
	keys := make(map[string]map[string]int64)
	for _, d := range Dimensions {
		m := make(map[string]int64)
		for i, row := range e.Rows(d.Table) {
			vals := make([]any, len(d.NaturalKey))
			for j, col := range d.NaturalKey {
				for ci, c := range d.Columns {
					if c == col {
						vals[j] = row[ci]
					}
				}
			}
			m[storage.CompositeKey(vals...)] = int64(i + 1)
		}
		keys[d.Table] = m
	}
	return keys
}

func colIndex(t *testing.T, name string) int {
	t.Helper()
	for i, c := range FactColumns() {
		if c == name {
			return i
		}
	}
	t.Fatalf("no fact column %q", name)
	return -1
}

func TestResolverBasics(t *testing.T) {
	rec := record("200109110004", func(r *gtd.Record) {
		r.Year, r.Month, r.Day = i64(2001), i64(9), i64(11)
		r.CountryCode, r.CountryName = i64(217), str("United States")
		r.Success, r.Suicide = i64(1), i64(1)
		r.NumKilled = i64(1384)
	})

	rv := NewResolver(keysFor(rec))
	rv.Observe(rec)
	rows, invalid, err := rv.Facts()
	require.NoError(t, err)
	require.EqualValues(t, 0, invalid)
	require.Len(t, rows, 1)

	row := rows[0]
	require.Equal(t, "200109110004", row[colIndex(t, "EventID")])
	require.Equal(t, int64(20010911), row[colIndex(t, "DateKey")])
	require.Equal(t, int64(1), row[colIndex(t, "LocationKey")])
	require.Equal(t, int64(1), row[colIndex(t, "CountryKey")])
	require.Equal(t, int64(1), row[colIndex(t, "SuccessKey")])
	require.Nil(t, row[colIndex(t, "RegionKey")], "unresolved code yields NULL FK")
	require.Nil(t, row[colIndex(t, "PerpGroupKey")])
	require.Equal(t, int64(1384), row[colIndex(t, "NumKilled")])
	require.Nil(t, row[colIndex(t, "NumWounded")])
}

func TestResolverExcludesInvalidDates(t *testing.T) {
	bad := record("1", func(r *gtd.Record) {
		r.Year, r.Month, r.Day = i64(2001), i64(2), i64(30)
	})
	worse := record("2", func(r *gtd.Record) {
		r.Year, r.Month, r.Day = i64(2001), i64(13), i64(1)
	})
	good := record("3", func(r *gtd.Record) {
		r.Year, r.Month, r.Day = i64(2001), i64(2), i64(28)
	})

	rv := NewResolver(keysFor(bad, worse, good))
	rv.Observe(bad)
	rv.Observe(worse)
	rv.Observe(good)

	rows, invalid, err := rv.Facts()
	require.NoError(t, err)
	require.EqualValues(t, 2, invalid)
	require.Len(t, rows, 1)
	require.Equal(t, "3", rows[0][0])
}

func TestResolverCollapsesDuplicateEventIDs(t *testing.T) {
	a := record("7", func(r *gtd.Record) {
		r.Year, r.Month, r.Day = i64(1999), i64(1), i64(2)
		r.NumKilled = i64(4)
	})
	b := record("7", func(r *gtd.Record) {
		r.Year, r.Month, r.Day = i64(1999), i64(1), i64(1)
		r.NumKilled = i64(9)
	})

	run := func(first, second *gtd.Record) []any {
		rv := NewResolver(keysFor(a, b))
		rv.Observe(first)
		rv.Observe(second)
		require.EqualValues(t, 1, rv.Duplicates())
		rows, _, err := rv.Facts()
		require.NoError(t, err)
		require.Len(t, rows, 1)
		return rows[0]
	}

	// The same record must win regardless of physical encounter order.
	require.Equal(t, run(a, b), run(b, a))
}

func TestResolverNullLocationResolves(t *testing.T) {
	rec := record("1", func(r *gtd.Record) {
		r.Year, r.Month, r.Day = i64(2001), i64(1), i64(1)
		// no city, no coordinates: the all-sentinel location member
	})
	rv := NewResolver(keysFor(rec))
	rv.Observe(rec)
	rows, _, err := rv.Facts()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0][colIndex(t, "LocationKey")])
}

func TestResolverMissingLocationIsError(t *testing.T) {
	rec := record("1", func(r *gtd.Record) {
		r.Year, r.Month, r.Day = i64(2001), i64(1), i64(1)
	})
	rv := NewResolver(map[string]map[string]int64{}) // no prewarmed keys at all
	rv.Observe(rec)
	_, _, err := rv.Facts()
	require.Error(t, err)
}
