package star

import (
	"fmt"
	"sort"

	"gtdetl/internal/gtd"
	"gtdetl/internal/storage"
)

// Resolver turns source records into resolved fact rows: exactly one
// candidate per distinct event id, every dimension FK resolved through the
// same natural keys extraction derived.
//
// Duplicate event ids are collapsed deterministically: the record with the
// smallest canonical field encoding wins, independent of the order records
// were physically encountered.
type Resolver struct {
	keys map[string]map[string]int64 // table -> natural key -> surrogate

	winners map[string]*gtd.Record // event id -> winning record
	encs    map[string]string      // event id -> winner's canonical encoding

	duplicates int64
}

// NewResolver takes the prewarmed natural-key -> surrogate-key maps for every
// dimension, as loaded after the dimension loads completed.
func NewResolver(keys map[string]map[string]int64) *Resolver {
	return &Resolver{
		keys:    keys,
		winners: make(map[string]*gtd.Record),
		encs:    make(map[string]string),
	}
}

// Observe registers one source record as a fact candidate.
func (rv *Resolver) Observe(r *gtd.Record) {
	enc := encodeRecord(r)
	if cur, seen := rv.encs[r.EventID]; seen {
		rv.duplicates++
		if enc < cur {
			rv.winners[r.EventID] = r
			rv.encs[r.EventID] = enc
		}
		return
	}
	rv.winners[r.EventID] = r
	rv.encs[r.EventID] = enc
}

// Duplicates reports how many observed records lost the one-row-per-event
// collapse.
func (rv *Resolver) Duplicates() int64 { return rv.duplicates }

// Facts materializes the resolved fact rows in FactColumns order, sorted by
// event id. Records whose year/month/day do not form a valid calendar date
// are excluded entirely and counted in invalidDates. Every other failed
// dimension resolution yields a NULL FK; the row survives with partial
// dimensionality. A missing location member is an error: extraction inserts
// a member for every observed tuple, so a miss means the key maps are stale
// or a dimension load silently failed.
func (rv *Resolver) Facts() (rows [][]any, invalidDates int64, err error) {
	ids := make([]string, 0, len(rv.winners))
	for id := range rv.winners {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows = make([][]any, 0, len(ids))
	for _, id := range ids {
		r := rv.winners[id]

		if r.Year == nil || r.Month == nil || r.Day == nil ||
			!gtd.ValidDate(int(*r.Year), int(*r.Month), int(*r.Day)) {
			invalidDates++
			continue
		}
		dateKey := gtd.DateKey(int(*r.Year), int(*r.Month), int(*r.Day))

		locKey, ok := rv.lookup(DimLocation, storage.CompositeKey(LocationTuple(r)...))
		if !ok {
			return nil, invalidDates, fmt.Errorf("event %s: no location member for its tuple", id)
		}

		row := []any{r.EventID, dateKey, locKey}
		for _, src := range codedSources {
			code, _ := src.get(r)
			row = append(row, rv.nullableKey(src.table, code))
		}
		if r.GroupName != nil {
			row = append(row, rv.nullableLookup(DimPerpGroup, storage.NormalizeKey(*r.GroupName)))
		} else {
			row = append(row, nil)
		}
		for _, src := range flagSources {
			code, _, ok := src.flag.Map(src.get(r))
			if !ok {
				row = append(row, nil)
				continue
			}
			row = append(row, rv.nullableLookup(src.table, storage.NormalizeKey(code)))
		}

		for _, m := range []*int64{
			r.NumKilled, r.NumUSKilled, r.NumTerroristsKilled,
			r.NumWounded, r.NumUSWounded, r.NumTerroristsWounded,
		} {
			if m != nil {
				row = append(row, *m)
			} else {
				row = append(row, nil)
			}
		}

		rows = append(rows, row)
	}
	return rows, invalidDates, nil
}

func (rv *Resolver) lookup(table, key string) (int64, bool) {
	dim := rv.keys[table]
	if dim == nil {
		return 0, false
	}
	sk, ok := dim[key]
	return sk, ok
}

func (rv *Resolver) nullableLookup(table, key string) any {
	if sk, ok := rv.lookup(table, key); ok {
		return sk
	}
	return nil
}

func (rv *Resolver) nullableKey(table string, code *int64) any {
	if code == nil {
		return nil
	}
	return rv.nullableLookup(table, storage.NormalizeKey(*code))
}

// encodeRecord produces a total order over records with the same event id.
// Field order follows gtd.Columns so the encoding is stable across versions
// of the scan.
func encodeRecord(r *gtd.Record) string {
	return storage.CompositeKey(
		r.EventID,
		pi(r.Year), pi(r.Month), pi(r.Day),
		pi(r.CountryCode), ps(r.CountryName),
		pi(r.RegionCode), ps(r.RegionName),
		ps(r.ProvState), ps(r.City), pf(r.Latitude), pf(r.Longitude),
		pi(r.AttackTypeCode), ps(r.AttackTypeName),
		pi(r.TargetTypeCode), ps(r.TargetTypeName),
		pi(r.TargetSubtypeCode), ps(r.TargetSubtypeName),
		pi(r.WeaponTypeCode), ps(r.WeaponTypeName),
		pi(r.WeaponSubtypeCode), ps(r.WeaponSubtypeName),
		ps(r.GroupName),
		pi(r.Success), pi(r.Suicide), pi(r.PropertyDamage), pi(r.Hostage),
		pi(r.DoubtTerrorism), pi(r.Multiple), pi(r.Extended),
		pi(r.NumKilled), pi(r.NumUSKilled), pi(r.NumTerroristsKilled),
		pi(r.NumWounded), pi(r.NumUSWounded), pi(r.NumTerroristsWounded),
	)
}

func pi(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func ps(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func pf(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
