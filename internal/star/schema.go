// Package star declares the warehouse star schema and the conformance logic
// that derives dimension members and resolved fact rows from source records.
package star

import (
	"gtdetl/internal/gtd"
	"gtdetl/internal/storage"
)

// Table names.
const (
	FactTable = "Fact_Terror_Events"
	LogTable  = "OperationLog"

	DimDate           = "DimDate"
	DimCountry        = "DimCountry"
	DimRegion         = "DimRegion"
	DimAttackType     = "DimAttackType"
	DimTargetType     = "DimTargetType"
	DimTargetSubtype  = "DimTargetSubtype"
	DimWeaponType     = "DimWeaponType"
	DimWeaponSubtype  = "DimWeaponSubtype"
	DimPerpGroup      = "DimPerpGroup"
	DimLocation       = "DimLocation"
	DimSuccess        = "DimSuccess"
	DimSuicide        = "DimSuicide"
	DimPropertyDamage = "DimPropertyDamage"
	DimHostage        = "DimHostage"
	DimDoubtTerrorism = "DimDoubtTerrorism"
	DimMultiple       = "DimMultiple"
	DimExtended       = "DimExtended"
	DimAttackSuccess  = "DimAttackSuccess"
)

// Dimension describes one dimension table: its surrogate key, its attribute
// columns in insert order, the natural-key subset distinctness and fact
// resolution both join on, and the fact table's FK column.
type Dimension struct {
	Table      string
	Key        string
	Columns    []string
	Types      []string
	NaturalKey []string
	FactColumn string
}

func codedDim(table, key, codeCol, nameCol, factCol string) Dimension {
	return Dimension{
		Table:      table,
		Key:        key,
		Columns:    []string{codeCol, nameCol},
		Types:      []string{"bigint", "text"},
		NaturalKey: []string{codeCol},
		FactColumn: factCol,
	}
}

func flagDim(table, key, codeCol, factCol string) Dimension {
	return Dimension{
		Table:      table,
		Key:        key,
		Columns:    []string{codeCol, "Description"},
		Types:      []string{"bigint", "text"},
		NaturalKey: []string{codeCol},
		FactColumn: factCol,
	}
}

// Dimensions lists every extractable dimension (all but DimDate, which is
// pre-populated) in load order.
var Dimensions = []Dimension{
	codedDim(DimCountry, "CountryKey", "GTDCountryCode", "CountryName", "CountryKey"),
	codedDim(DimRegion, "RegionKey", "GTDRegionCode", "RegionName", "RegionKey"),
	codedDim(DimAttackType, "AttackTypeKey", "GTDAttackTypeCode", "AttackTypeName", "AttackTypeKey"),
	codedDim(DimTargetType, "TargetTypeKey", "GTDTargetTypeCode", "TargetTypeName", "TargetTypeKey"),
	codedDim(DimTargetSubtype, "TargetSubtypeKey", "GTDTargetSubtypeCode", "TargetSubtypeName", "TargetSubtypeKey"),
	codedDim(DimWeaponType, "WeaponTypeKey", "GTDWeaponTypeCode", "WeaponTypeName", "WeaponTypeKey"),
	codedDim(DimWeaponSubtype, "WeaponSubtypeKey", "GTDWeaponSubtypeCode", "WeaponSubtypeName", "WeaponSubtypeKey"),
	{
		Table:      DimPerpGroup,
		Key:        "PerpGroupKey",
		Columns:    []string{"GroupName"},
		Types:      []string{"text"},
		NaturalKey: []string{"GroupName"},
		FactColumn: "PerpGroupKey",
	},
	{
		Table:      DimLocation,
		Key:        "LocationKey",
		Columns:    []string{"City", "ProvState", "GTDCountryCode", "GTDRegionCode", "Latitude", "Longitude"},
		Types:      []string{"text", "text", "bigint", "bigint", "double", "double"},
		NaturalKey: []string{"City", "ProvState", "GTDCountryCode", "GTDRegionCode", "Latitude", "Longitude"},
		FactColumn: "LocationKey",
	},
	flagDim(DimSuccess, "SuccessKey", "IsSuccessful", "SuccessKey"),
	flagDim(DimSuicide, "SuicideKey", "IsSuicide", "SuicideKey"),
	flagDim(DimPropertyDamage, "PropertyDamageKey", "PropertyDamageCode", "PropertyDamageKey"),
	flagDim(DimHostage, "HostageKey", "HostageCode", "HostageKey"),
	flagDim(DimDoubtTerrorism, "DoubtTerrorismKey", "DoubtCode", "DoubtTerrorismKey"),
	flagDim(DimMultiple, "MultipleKey", "MultipleCode", "MultipleKey"),
	flagDim(DimExtended, "ExtendedKey", "IsExtended", "ExtendedKey"),
	flagDim(DimAttackSuccess, "AttackSuccessKey", "AttackSuccessCode", "AttackSuccessKey"),
}

// DimensionByTable returns the Dimension for a table name, or nil.
func DimensionByTable(table string) *Dimension {
	for i := range Dimensions {
		if Dimensions[i].Table == table {
			return &Dimensions[i]
		}
	}
	return nil
}

// DateColumns is the DimDate attribute order used by SeedDates.
var DateColumns = []string{"FullDate", "Year", "Month", "Day", "Quarter", "MonthName", "DayOfWeek"}

// MeasureColumns are the fact table's nullable measures, in Columns order.
var MeasureColumns = []string{
	"NumKilled", "NumUSKilled", "NumTerroristsKilled",
	"NumWounded", "NumUSWounded", "NumTerroristsWounded",
}

// FactColumns is the fact insert order: event id, date and location keys
// (never null), one nullable FK per remaining dimension, then measures.
func FactColumns() []string {
	cols := []string{"EventID", "DateKey", "LocationKey"}
	for _, d := range Dimensions {
		if d.Table == DimLocation {
			continue
		}
		cols = append(cols, d.FactColumn)
	}
	return append(cols, MeasureColumns...)
}

// Tables returns the create-if-missing spec for the whole schema, dimensions
// before the fact table so references resolve on a fresh database.
func Tables() []storage.TableSpec {
	specs := make([]storage.TableSpec, 0, len(Dimensions)+3)

	specs = append(specs, storage.TableSpec{
		Name:       DimDate,
		PrimaryKey: &storage.PrimaryKeySpec{Name: "DateKey", Type: "bigint"},
		Columns: []storage.ColumnSpec{
			{Name: "FullDate", Type: "timestamp"},
			{Name: "Year", Type: "bigint"},
			{Name: "Month", Type: "bigint"},
			{Name: "Day", Type: "bigint"},
			{Name: "Quarter", Type: "bigint"},
			{Name: "MonthName", Type: "text"},
			{Name: "DayOfWeek", Type: "text"},
		},
	})

	for _, d := range Dimensions {
		spec := storage.TableSpec{
			Name:       d.Table,
			PrimaryKey: &storage.PrimaryKeySpec{Name: d.Key, Type: "identity"},
			Constraints: []storage.ConstraintSpec{
				{Kind: "unique", Columns: d.NaturalKey},
			},
		}
		for i, c := range d.Columns {
			spec.Columns = append(spec.Columns, storage.ColumnSpec{Name: c, Type: d.Types[i]})
		}
		specs = append(specs, spec)
	}

	fact := storage.TableSpec{
		Name:       FactTable,
		PrimaryKey: &storage.PrimaryKeySpec{Name: "EventID", Type: "text"},
		Columns: []storage.ColumnSpec{
			{Name: "DateKey", Type: "bigint"},
			{Name: "LocationKey", Type: "bigint"},
		},
	}
	for _, d := range Dimensions {
		if d.Table == DimLocation {
			continue
		}
		fact.Columns = append(fact.Columns, storage.ColumnSpec{Name: d.FactColumn, Type: "bigint", Nullable: true})
	}
	for _, m := range MeasureColumns {
		fact.Columns = append(fact.Columns, storage.ColumnSpec{Name: m, Type: "bigint", Nullable: true})
	}
	specs = append(specs, fact)

	specs = append(specs, storage.TableSpec{
		Name:       LogTable,
		PrimaryKey: &storage.PrimaryKeySpec{Name: "LogKey", Type: "identity"},
		Columns: []storage.ColumnSpec{
			{Name: "Action", Type: "text"},
			{Name: "Message", Type: "text"},
			{Name: "LoggedAt", Type: "timestamp"},
		},
	})

	return specs
}

// ForeignKeys is the declarative constraint list the constraint manager
// drops and re-adds around the bulk-load window. One constraint per fact FK;
// the manager never introspects live schema state.
func ForeignKeys() []storage.ForeignKeySpec {
	fks := []storage.ForeignKeySpec{{
		Name:      "FK_Fact_Terror_Events_DateKey",
		Table:     FactTable,
		Column:    "DateKey",
		RefTable:  DimDate,
		RefColumn: "DateKey",
	}}
	for _, d := range Dimensions {
		fks = append(fks, storage.ForeignKeySpec{
			Name:      "FK_Fact_Terror_Events_" + d.FactColumn,
			Table:     FactTable,
			Column:    d.FactColumn,
			RefTable:  d.Table,
			RefColumn: d.Key,
		})
	}
	return fks
}

// TruncateOrder lists every warehouse table fact-first, the order a full
// reset must empty them in.
func TruncateOrder() []string {
	tables := []string{FactTable}
	for _, d := range Dimensions {
		tables = append(tables, d.Table)
	}
	return append(tables, DimDate)
}

// Location sentinels. NULL city, province, codes, and coordinates are stored
// as these values so the composite unique key never contains NULL and two
// coordinate-less rows conflate to one member.
const (
	UnknownPlace   = "Unknown"
	UnknownCode    = int64(0)
	UnknownLatLong = float64(-999)
)

// LocationTuple coerces a record's location attributes to the stored,
// null-free form, in DimLocation column order. Extraction and resolution
// both key on exactly this tuple.
func LocationTuple(r *gtd.Record) []any {
	city, prov := UnknownPlace, UnknownPlace
	if r.City != nil {
		city = *r.City
	}
	if r.ProvState != nil {
		prov = *r.ProvState
	}
	country, region := UnknownCode, UnknownCode
	if r.CountryCode != nil {
		country = *r.CountryCode
	}
	if r.RegionCode != nil {
		region = *r.RegionCode
	}
	lat, long := UnknownLatLong, UnknownLatLong
	if r.Latitude != nil {
		lat = *r.Latitude
	}
	if r.Longitude != nil {
		long = *r.Longitude
	}
	return []any{city, prov, country, region, lat, long}
}
