package domain

import "time"

// Schedule modes.
const (
	ScheduleExact  = "exact"  // explicit HH:MM times
	SchedulePeriod = "period" // named periods of day mapped to fixed times
)

// Period is a named time-of-day bucket with its representative clock time.
type Period struct {
	Key  string
	Time string // HH:MM
}

// Periods is the fixed period-to-time mapping backing the /add presets.
var Periods = []Period{
	{Key: "morning", Time: "08:00"},
	{Key: "lunch", Time: "13:00"},
	{Key: "day", Time: "16:00"},
	{Key: "evening", Time: "20:00"},
	{Key: "night", Time: "22:30"},
}

// PeriodByKey returns the preset for key, or nil.
func PeriodByKey(key string) *Period {
	for i := range Periods {
		if Periods[i].Key == key {
			return &Periods[i]
		}
	}
	return nil
}

// Medication is one course owned by a user. Times always holds resolved HH:MM
// strings; in period mode Periods records which bucket each time came from.
type Medication struct {
	ID           int64
	UserID       int64
	Name         string
	Times        []string
	ScheduleMode string
	Periods      []string
	DosesPerDay  int
	PillsPerDose int
	StockTotal   *int // nil when stock tracking is off for this medication
	LowStockWarn bool // low_stock_notified: one-shot flag per depletion cycle
	IsActive     bool
	PausedUntil  *time.Time // UTC; course auto-resumes after this instant
	CreatedAt    time.Time  // UTC
}

// Validate checks the dosing configuration invariants.
func (m *Medication) Validate() error {
	if m.Name == "" || len(m.Times) == 0 {
		return ErrConfiguration
	}
	if m.DosesPerDay != len(m.Times) {
		return ErrConfiguration
	}
	if m.ScheduleMode == SchedulePeriod && len(m.Periods) != m.DosesPerDay {
		return ErrConfiguration
	}
	return nil
}

// PausedAt reports whether the medication is paused at the given instant.
func (m *Medication) PausedAt(t time.Time) bool {
	if m.IsActive {
		return false
	}
	if m.PausedUntil == nil {
		return true
	}
	return t.Before(*m.PausedUntil)
}
