// Package gtd holds the source-domain vocabulary of the Global Terrorism
// Database extract: the canonical record shape, the raw-header mapping, and
// the sentinel/label rules for its coded fields.
package gtd

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gtdetl/internal/transformer"
)

// Columns is the canonical field order every parsed row is aligned to.
// Parser output, Record fields, and the extraction scans all index by it.
var Columns = []string{
	"event_id",
	"year", "month", "day",
	"country_code", "country_name",
	"region_code", "region_name",
	"provstate", "city", "latitude", "longitude",
	"attack_type_code", "attack_type_name",
	"target_type_code", "target_type_name",
	"target_subtype_code", "target_subtype_name",
	"weapon_type_code", "weapon_type_name",
	"weapon_subtype_code", "weapon_subtype_name",
	"group_name",
	"success", "suicide", "property_damage", "hostage",
	"doubt_terrorism", "multiple", "extended",
	"num_killed", "num_us_killed", "num_terrorists_killed",
	"num_wounded", "num_us_wounded", "num_terrorists_wounded",
}

// DefaultHeaderMap maps the raw GTD export column names onto Columns.
// Overridable per-source via the parser's header_map option.
var DefaultHeaderMap = map[string]string{
	"eventid":        "event_id",
	"iyear":          "year",
	"imonth":         "month",
	"iday":           "day",
	"country":        "country_code",
	"country_txt":    "country_name",
	"region":         "region_code",
	"region_txt":     "region_name",
	"attacktype1":    "attack_type_code",
	"attacktype1_txt": "attack_type_name",
	"targtype1":      "target_type_code",
	"targtype1_txt":  "target_type_name",
	"targsubtype1":   "target_subtype_code",
	"targsubtype1_txt": "target_subtype_name",
	"weaptype1":      "weapon_type_code",
	"weaptype1_txt":  "weapon_type_name",
	"weapsubtype1":   "weapon_subtype_code",
	"weapsubtype1_txt": "weapon_subtype_name",
	"gname":          "group_name",
	"property":       "property_damage",
	"ishostkid":      "hostage",
	"doubtterr":      "doubt_terrorism",
	"nkill":          "num_killed",
	"nkillus":        "num_us_killed",
	"nkillter":       "num_terrorists_killed",
	"nwound":         "num_wounded",
	"nwoundus":       "num_us_wounded",
	"nwoundte":       "num_terrorists_wounded",
}

// placeholderTokens are source strings that mean "no value". The upstream
// cleaning writes them in varying case for both text and numeric columns.
var placeholderTokens = map[string]struct{}{
	"unknown":        {},
	"not applicable": {},
	"unk":            {},
	"none":           {},
	"nan":            {},
	"<na>":           {},
}

// Record is one parsed source event. Pointer fields are nil where the source
// had no usable value. Records are never mutated after ParseRow returns.
type Record struct {
	EventID string

	Year  *int64
	Month *int64
	Day   *int64

	CountryCode *int64
	CountryName *string
	RegionCode  *int64
	RegionName  *string

	ProvState *string
	City      *string
	Latitude  *float64
	Longitude *float64

	AttackTypeCode    *int64
	AttackTypeName    *string
	TargetTypeCode    *int64
	TargetTypeName    *string
	TargetSubtypeCode *int64
	TargetSubtypeName *string
	WeaponTypeCode    *int64
	WeaponTypeName    *string
	WeaponSubtypeCode *int64
	WeaponSubtypeName *string

	GroupName *string

	Success        *int64
	Suicide        *int64
	PropertyDamage *int64
	Hostage        *int64
	DoubtTerrorism *int64
	Multiple       *int64
	Extended       *int64

	NumKilled            *int64
	NumUSKilled          *int64
	NumTerroristsKilled  *int64
	NumWounded           *int64
	NumUSWounded         *int64
	NumTerroristsWounded *int64

	Line int
}

// ParseRow converts a pooled row aligned to Columns into a Record. The row is
// not freed; ownership stays with the caller. A row without an event id is
// rejected, every other field degrades to nil on absence.
func ParseRow(row *transformer.Row) (*Record, error) {
	if len(row.V) != len(Columns) {
		return nil, fmt.Errorf("row has %d cells, want %d", len(row.V), len(Columns))
	}

	c := cells(row.V)

	id := c.text(0)
	if id == nil {
		return nil, fmt.Errorf("line %d: missing event id", row.Line)
	}

	r := &Record{EventID: *id, Line: row.Line}
	var err error

	intFields := []struct {
		ix  int
		dst **int64
	}{
		{1, &r.Year}, {2, &r.Month}, {3, &r.Day},
		{4, &r.CountryCode}, {6, &r.RegionCode},
		{12, &r.AttackTypeCode}, {14, &r.TargetTypeCode}, {16, &r.TargetSubtypeCode},
		{18, &r.WeaponTypeCode}, {20, &r.WeaponSubtypeCode},
		{23, &r.Success}, {24, &r.Suicide}, {25, &r.PropertyDamage},
		{26, &r.Hostage}, {27, &r.DoubtTerrorism}, {28, &r.Multiple}, {29, &r.Extended},
		{30, &r.NumKilled}, {31, &r.NumUSKilled}, {32, &r.NumTerroristsKilled},
		{33, &r.NumWounded}, {34, &r.NumUSWounded}, {35, &r.NumTerroristsWounded},
	}
	for _, f := range intFields {
		if *f.dst, err = c.integer(f.ix); err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", row.Line, Columns[f.ix], err)
		}
	}

	textFields := []struct {
		ix  int
		dst **string
	}{
		{5, &r.CountryName}, {7, &r.RegionName},
		{8, &r.ProvState}, {9, &r.City},
		{13, &r.AttackTypeName}, {15, &r.TargetTypeName}, {17, &r.TargetSubtypeName},
		{19, &r.WeaponTypeName}, {21, &r.WeaponSubtypeName},
		{22, &r.GroupName},
	}
	for _, f := range textFields {
		*f.dst = c.text(f.ix)
	}

	if r.Latitude, err = c.float(10); err != nil {
		return nil, fmt.Errorf("line %d: latitude: %w", row.Line, err)
	}
	if r.Longitude, err = c.float(11); err != nil {
		return nil, fmt.Errorf("line %d: longitude: %w", row.Line, err)
	}

	return r, nil
}

type cells []any

// raw returns the trimmed string at ix, or "" when the cell is nil or a
// placeholder token.
func (c cells) raw(ix int) string {
	v := c[ix]
	if v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	if _, hit := placeholderTokens[strings.ToLower(s)]; hit {
		return ""
	}
	return s
}

func (c cells) text(ix int) *string {
	s := c.raw(ix)
	if s == "" {
		return nil
	}
	return &s
}

// integer parses an int64, tolerating float-formatted integers ("1.0") that
// the upstream pandas cleaning emits for nullable count columns.
func (c cells) integer(ix int) (*int64, error) {
	s := c.raw(ix)
	if s == "" {
		return nil, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse integer %q: %w", s, err)
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("parse integer %q: fractional value", s)
	}
	n := int64(f)
	return &n, nil
}

func (c cells) float(ix int) (*float64, error) {
	s := c.raw(ix)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse float %q: %w", s, err)
	}
	return &f, nil
}
