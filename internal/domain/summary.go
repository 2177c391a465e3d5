package domain

import "time"

// MedReport aggregates one medication's intake outcomes for a local day.
type MedReport struct {
	Name    string
	Taken   int
	Missed  int // scheduled in the past, untaken, reminders no longer active
	Pending int // scheduled later than now
}

func (r MedReport) Total() int { return r.Taken + r.Missed + r.Pending }

// DayReport is a user's per-medication summary for one local calendar day.
type DayReport struct {
	Date time.Time // local day being summarized
	Meds []MedReport
}

// HasData reports whether any medication had doses scheduled that day.
func (r DayReport) HasData() bool {
	for _, m := range r.Meds {
		if m.Total() > 0 {
			return true
		}
	}
	return false
}

// BuildMedReport classifies one medication's intakes of a day as of now.
// An untaken past dose counts as missed regardless of whether a reminder is
// still armed; the snooze loop past the summary hour cannot resurrect the day.
func BuildMedReport(name string, intakes []Intake, now time.Time) MedReport {
	rep := MedReport{Name: name}
	for _, in := range intakes {
		switch {
		case in.Taken:
			rep.Taken++
		case in.ScheduledAt.After(now):
			rep.Pending++
		default:
			rep.Missed++
		}
	}
	return rep
}

// SummaryDue reports whether the user's daily summary should fire at localNow:
// the local wall clock has passed hour and the local date has not been
// summarized yet.
func SummaryDue(u *User, localNow time.Time, hour int) bool {
	if localNow.Hour() < hour {
		return false
	}
	if u.LastSummaryDate == nil {
		return true
	}
	ly, lm, ld := u.LastSummaryDate.Date()
	y, m, d := localNow.Date()
	return ly != y || lm != m || ld != d
}
