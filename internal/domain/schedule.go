package domain

import (
	"fmt"
	"time"
)

// DayStart returns midnight of the given local date in loc.
func DayStart(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// DayBounds returns the UTC half-open interval covering the local calendar day
// containing t.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	lt := t.In(loc)
	start := DayStart(lt.Year(), lt.Month(), lt.Day(), loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

// Materialize produces the ordered UTC instants of medication doses on the
// local calendar day that contains date (interpreted in loc).
//
// An inactive medication, or one whose pause outlasts the start of that day,
// yields an empty sequence. In period mode the configuration must carry
// exactly doses_per_day periods.
func Materialize(med *Medication, date time.Time, loc *time.Location) ([]time.Time, error) {
	ld := date.In(loc)
	dayStart := DayStart(ld.Year(), ld.Month(), ld.Day(), loc)

	if !med.IsActive {
		return nil, nil
	}
	if med.PausedUntil != nil && med.PausedUntil.After(dayStart) {
		return nil, nil
	}
	if err := med.Validate(); err != nil {
		return nil, fmt.Errorf("%w: medication %d", err, med.ID)
	}

	out := make([]time.Time, 0, len(med.Times))
	for _, ts := range med.Times {
		h, m, err := ParseHHMM(ts)
		if err != nil {
			return nil, fmt.Errorf("%w: medication %d time %q", ErrConfiguration, med.ID, ts)
		}
		// time.Date resolves DST gaps and overlaps for the location.
		out = append(out, time.Date(ld.Year(), ld.Month(), ld.Day(), h, m, 0, 0, loc).UTC())
	}
	return out, nil
}
