package gtd

import "time"

// Flag describes one coded flag field: its fixed label domain and, where the
// source distinguishes "no data" from "explicit unknown", the sentinel code
// substituted for NULL before lookup.
type Flag struct {
	Labels   map[int64]string
	NullCode int64
	MapsNull bool
}

// Map resolves a raw flag value to its normalized code and label. A nil value
// maps to the flag's null sentinel when one is defined and is otherwise
// rejected. Codes outside the fixed domain are rejected too, never silently
// relabeled; callers count them.
func (f Flag) Map(v *int64) (code int64, label string, ok bool) {
	if v == nil {
		if !f.MapsNull {
			return 0, "", false
		}
		code = f.NullCode
	} else {
		code = *v
	}
	label, ok = f.Labels[code]
	return code, label, ok
}

// Domain returns the flag's full code domain in ascending order, the member
// set every flag dimension is conformed over.
func (f Flag) Domain() []int64 {
	codes := make([]int64, 0, len(f.Labels))
	for c := range f.Labels {
		codes = append(codes, c)
	}
	for i := 1; i < len(codes); i++ {
		for j := i; j > 0 && codes[j] < codes[j-1]; j-- {
			codes[j], codes[j-1] = codes[j-1], codes[j]
		}
	}
	return codes
}

// HostageNoData is substituted for a NULL hostage flag so "no data" stays a
// distinct dimension member from the source's explicit -9 "unknown".
const HostageNoData = -8

var (
	Success = Flag{Labels: map[int64]string{
		1: "Successful",
		0: "Unsuccessful",
	}}

	Suicide = Flag{Labels: map[int64]string{
		1: "Suicide Attack",
		0: "Not A Suicide Attack",
	}}

	PropertyDamage = Flag{Labels: map[int64]string{
		1:  "Property Damage",
		0:  "No Property Damage",
		-9: "Unknown",
	}}

	Hostage = Flag{
		Labels: map[int64]string{
			1:             "Hostages Taken",
			0:             "No Hostages Taken",
			-9:            "Unknown",
			HostageNoData: "No Data",
		},
		NullCode: HostageNoData,
		MapsNull: true,
	}

	DoubtTerrorism = Flag{Labels: map[int64]string{
		1:  "Doubt Terrorism Proper",
		0:  "No Doubt",
		-9: "Unknown",
	}}

	Multiple = Flag{Labels: map[int64]string{
		1:  "Part Of Multiple Incidents",
		0:  "Single Incident",
		-1: "Unknown",
	}}

	Extended = Flag{Labels: map[int64]string{
		1: "Extended Incident",
		0: "Not Extended",
	}}

	// AttackSuccess reads the same raw success flag as Success but conforms
	// it as its own lookup dimension for attack-level reporting.
	AttackSuccess = Flag{Labels: map[int64]string{
		1: "Attack Successful",
		0: "Attack Unsuccessful",
	}}
)

// Date dimension coverage. Every valid calendar day in this range has a
// pre-assigned key, independent of what dates occur in source data.
const (
	MinYear = 1900
	MaxYear = 2100
)

// DateKey encodes a calendar date as y*10000 + m*100 + d.
func DateKey(year, month, day int) int64 {
	return int64(year)*10000 + int64(month)*100 + int64(day)
}

// ValidDate reports whether year/month/day form a real calendar date inside
// the covered range. Month 13 or February 30 fail here; so does day 0, which
// the source uses when the day is unrecorded.
func ValidDate(year, month, day int) bool {
	if year < MinYear || year > MaxYear || month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}
