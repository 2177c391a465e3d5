package domain

import "time"

// Intake is one concrete scheduled dose instant for a medication. At most one
// row exists per (medication, scheduled instant); once Taken flips to true it
// never reverts.
type Intake struct {
	ID             int64
	MedicationID   int64
	ScheduledAt    time.Time // UTC
	Taken          bool
	TakenAt        *time.Time
	ReminderSent   bool
	NextReminderAt *time.Time // UTC; nil when no reminder is armed
	LastReminderAt *time.Time
	ReminderCount  int
	Paused         bool // reminders_paused: per-instance silence
}

// Terminal reports whether no further reminders may fire for this instance.
func (i *Intake) Terminal() bool {
	return i.Taken || i.Paused
}

// FirstReminderAt computes the initial reminder instant for a dose: lead
// minutes before the scheduled instant, clamped to now so freshly materialized
// past-due doses fire on the next tick instead of in the past.
func FirstReminderAt(scheduledAt, now time.Time, lead time.Duration) time.Time {
	at := scheduledAt.Add(-lead)
	if at.Before(now) {
		return now
	}
	return at
}
