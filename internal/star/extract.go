package star

import (
	"sort"

	"gtdetl/internal/gtd"
	"gtdetl/internal/storage"
)

// codedSources binds each simple coded dimension to its record fields and
// the placeholder substituted when the code arrives without label text.
var codedSources = []struct {
	table       string
	placeholder string
	get         func(*gtd.Record) (*int64, *string)
}{
	{DimCountry, "Country Not Given", func(r *gtd.Record) (*int64, *string) { return r.CountryCode, r.CountryName }},
	{DimRegion, "Region Not Given", func(r *gtd.Record) (*int64, *string) { return r.RegionCode, r.RegionName }},
	{DimAttackType, "Attack Type Not Given", func(r *gtd.Record) (*int64, *string) { return r.AttackTypeCode, r.AttackTypeName }},
	{DimTargetType, "Target Type Not Given", func(r *gtd.Record) (*int64, *string) { return r.TargetTypeCode, r.TargetTypeName }},
	{DimTargetSubtype, "Target Subtype Not Given", func(r *gtd.Record) (*int64, *string) { return r.TargetSubtypeCode, r.TargetSubtypeName }},
	{DimWeaponType, "Weapon Type Not Given", func(r *gtd.Record) (*int64, *string) { return r.WeaponTypeCode, r.WeaponTypeName }},
	{DimWeaponSubtype, "Weapon Subtype Not Given", func(r *gtd.Record) (*int64, *string) { return r.WeaponSubtypeCode, r.WeaponSubtypeName }},
}

// flagSources binds each flag dimension to its domain and record field.
// DimAttackSuccess reads the same raw flag as DimSuccess; it is conformed as
// its own lookup dimension.
var flagSources = []struct {
	table string
	flag  gtd.Flag
	get   func(*gtd.Record) *int64
}{
	{DimSuccess, gtd.Success, func(r *gtd.Record) *int64 { return r.Success }},
	{DimSuicide, gtd.Suicide, func(r *gtd.Record) *int64 { return r.Suicide }},
	{DimPropertyDamage, gtd.PropertyDamage, func(r *gtd.Record) *int64 { return r.PropertyDamage }},
	{DimHostage, gtd.Hostage, func(r *gtd.Record) *int64 { return r.Hostage }},
	{DimDoubtTerrorism, gtd.DoubtTerrorism, func(r *gtd.Record) *int64 { return r.DoubtTerrorism }},
	{DimMultiple, gtd.Multiple, func(r *gtd.Record) *int64 { return r.Multiple }},
	{DimExtended, gtd.Extended, func(r *gtd.Record) *int64 { return r.Extended }},
	{DimAttackSuccess, gtd.AttackSuccess, func(r *gtd.Record) *int64 { return r.Success }},
}

type dimAccum struct {
	rows map[string][]any // natural key -> attribute row
}

func (a *dimAccum) put(key string, row []any) {
	if _, seen := a.rows[key]; !seen {
		a.rows[key] = row
	}
}

// putLabeled keeps the lexicographically smallest label when the same code
// arrives with differing text, so extraction order never changes the winner.
func (a *dimAccum) putLabeled(key string, row []any, label string) {
	prev, seen := a.rows[key]
	if !seen || label < prev[1].(string) {
		a.rows[key] = row
	}
}

// Extractor derives the deduplicated dimension member sets from one
// streaming scan of the source. Observe is called once per record; Rows
// yields a dimension's members in deterministic order. Not safe for
// concurrent Observe calls; the scan is single-threaded.
type Extractor struct {
	dims        map[string]*dimAccum
	outOfDomain map[string]int64
}

func NewExtractor() *Extractor {
	e := &Extractor{
		dims:        make(map[string]*dimAccum, len(Dimensions)),
		outOfDomain: make(map[string]int64),
	}
	for _, d := range Dimensions {
		e.dims[d.Table] = &dimAccum{rows: make(map[string][]any)}
	}
	return e
}

// Observe feeds one source record into every dimension accumulator.
//
// Rows with a null code contribute nothing to that coded dimension; null
// flags contribute via sentinel remapping where the flag defines one. Flag
// codes outside the fixed domain are excluded and counted.
func (e *Extractor) Observe(r *gtd.Record) {
	for _, src := range codedSources {
		code, label := src.get(r)
		if code == nil {
			continue
		}
		text := src.placeholder
		if label != nil {
			text = *label
		}
		e.dims[src.table].putLabeled(storage.NormalizeKey(*code), []any{*code, text}, text)
	}

	for _, src := range flagSources {
		raw := src.get(r)
		code, label, ok := src.flag.Map(raw)
		if !ok {
			if raw != nil {
				e.outOfDomain[src.table]++
			}
			continue
		}
		e.dims[src.table].put(storage.NormalizeKey(code), []any{code, label})
	}

	if r.GroupName != nil {
		e.dims[DimPerpGroup].put(storage.NormalizeKey(*r.GroupName), []any{*r.GroupName})
	}

	loc := LocationTuple(r)
	e.dims[DimLocation].put(storage.CompositeKey(loc...), loc)
}

// Rows returns a dimension's extracted members sorted by natural key, so
// insert order (and therefore surrogate assignment on a fresh database) is
// reproducible.
func (e *Extractor) Rows(table string) [][]any {
	a := e.dims[table]
	if a == nil {
		return nil
	}
	keys := make([]string, 0, len(a.rows))
	for k := range a.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]any, len(keys))
	for i, k := range keys {
		rows[i] = a.rows[k]
	}
	return rows
}

// OutOfDomain reports, per flag dimension, how many records carried a code
// outside the fixed domain and were excluded.
func (e *Extractor) OutOfDomain() map[string]int64 {
	return e.outOfDomain
}
