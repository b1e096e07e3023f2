package star

import (
	"time"

	"gtdetl/internal/gtd"
)

// DateRows yields DimDate rows for every calendar day in the covered range,
// in DateKey order, each row led by the caller-supplied DateKey and followed
// by DateColumns. The range is fixed and independent of source data, so every
// valid event date already has a key before any fact resolves.
//
// The full range is ~73k rows; yield streams them so backends can insert in
// chunks without materializing the set.
func DateRows(yield func(row []any) error) error {
	start := time.Date(gtd.MinYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(gtd.MaxYear, time.December, 31, 0, 0, 0, 0, time.UTC)

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		y, m, day := d.Year(), int(d.Month()), d.Day()
		row := []any{
			gtd.DateKey(y, m, day),
			d,
			int64(y),
			int64(m),
			int64(day),
			int64((m-1)/3 + 1),
			d.Month().String(),
			d.Weekday().String(),
		}
		if err := yield(row); err != nil {
			return err
		}
	}
	return nil
}
