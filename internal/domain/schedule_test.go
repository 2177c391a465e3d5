package domain

import (
	"errors"
	"testing"
	"time"
)

// helper: build a time in given tz and return its UTC
func mustLocalUTC(t *testing.T, tz string, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return time.Date(y, m, d, hh, mm, 0, 0, loc).UTC()
}

func mustLoc(t *testing.T, tz string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return loc
}

func TestMaterialize_ExactMode(t *testing.T) {
	loc := mustLoc(t, "Europe/Moscow")
	med := &Medication{
		Name:         "Aspirin",
		Times:        []string{"08:00", "14:00", "20:00"},
		ScheduleMode: ScheduleExact,
		DosesPerDay:  3,
		IsActive:     true,
	}
	date := time.Date(2025, time.May, 5, 12, 0, 0, 0, loc)

	got, err := Materialize(med, date, loc)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 instants, got %d", len(got))
	}
	want := mustLocalUTC(t, "Europe/Moscow", 2025, time.May, 5, 14, 0)
	if !got[1].Equal(want) {
		t.Fatalf("want %v, got %v", want, got[1])
	}
	if got[0].Location() != time.UTC {
		t.Fatalf("instants must be UTC, got %v", got[0].Location())
	}
}

func TestMaterialize_DSTSpringForward(t *testing.T) {
	// 2025-03-09 in New York: clocks jump 02:00 -> 03:00. A 08:30 dose still
	// lands on local 08:30, one hour closer to UTC than the day before.
	loc := mustLoc(t, "America/New_York")
	med := &Medication{
		Name:         "Vitamin D",
		Times:        []string{"08:30"},
		ScheduleMode: ScheduleExact,
		DosesPerDay:  1,
		IsActive:     true,
	}

	before, err := Materialize(med, time.Date(2025, time.March, 8, 0, 0, 0, 0, loc), loc)
	if err != nil {
		t.Fatalf("materialize before: %v", err)
	}
	after, err := Materialize(med, time.Date(2025, time.March, 9, 0, 0, 0, 0, loc), loc)
	if err != nil {
		t.Fatalf("materialize after: %v", err)
	}

	if got := after[0].In(loc).Format("15:04"); got != "08:30" {
		t.Fatalf("want local 08:30, got %s", got)
	}
	// 23h wall-clock day: the UTC gap between equal local times shrinks.
	if gap := after[0].Sub(before[0]); gap != 23*time.Hour {
		t.Fatalf("want 23h gap across spring forward, got %v", gap)
	}
}

func TestMaterialize_InactiveYieldsNothing(t *testing.T) {
	loc := mustLoc(t, "Europe/Moscow")
	med := &Medication{
		Name:         "Aspirin",
		Times:        []string{"08:00"},
		ScheduleMode: ScheduleExact,
		DosesPerDay:  1,
		IsActive:     false,
	}
	got, err := Materialize(med, time.Date(2025, time.May, 5, 0, 0, 0, 0, loc), loc)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("inactive med must yield no instants, got %d", len(got))
	}
}

func TestMaterialize_PausedUntilCoversDay(t *testing.T) {
	loc := mustLoc(t, "Europe/Moscow")
	until := mustLocalUTC(t, "Europe/Moscow", 2025, time.May, 10, 0, 0)
	med := &Medication{
		Name:         "Aspirin",
		Times:        []string{"08:00"},
		ScheduleMode: ScheduleExact,
		DosesPerDay:  1,
		IsActive:     true,
		PausedUntil:  &until,
	}

	got, err := Materialize(med, time.Date(2025, time.May, 7, 0, 0, 0, 0, loc), loc)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("paused day must yield no instants, got %d", len(got))
	}

	got, err = Materialize(med, time.Date(2025, time.May, 10, 0, 0, 0, 0, loc), loc)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("pause elapsed, want 1 instant, got %d", len(got))
	}
}

func TestMaterialize_PeriodCountMismatch(t *testing.T) {
	loc := mustLoc(t, "Europe/Moscow")
	med := &Medication{
		Name:         "Aspirin",
		Times:        []string{"08:00", "20:00"},
		ScheduleMode: SchedulePeriod,
		Periods:      []string{"morning"},
		DosesPerDay:  2,
		IsActive:     true,
	}
	_, err := Materialize(med, time.Date(2025, time.May, 5, 0, 0, 0, 0, loc), loc)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
}

func TestFirstReminderAt_LeadBeforeDose(t *testing.T) {
	now := mustLocalUTC(t, "UTC", 2025, time.May, 5, 7, 0)
	dose := mustLocalUTC(t, "UTC", 2025, time.May, 5, 8, 0)

	got := FirstReminderAt(dose, now, 10*time.Minute)
	want := dose.Add(-10 * time.Minute)
	if !got.Equal(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestFirstReminderAt_PastDoseClampsToNow(t *testing.T) {
	// Materialized at 07:50 with a dose at 07:30: remind immediately, not in
	// the past.
	now := mustLocalUTC(t, "UTC", 2025, time.May, 5, 7, 50)
	dose := mustLocalUTC(t, "UTC", 2025, time.May, 5, 7, 30)

	got := FirstReminderAt(dose, now, 10*time.Minute)
	if !got.Equal(now) {
		t.Fatalf("want clamp to now %v, got %v", now, got)
	}
}

func TestDayBounds_HalfOpenInterval(t *testing.T) {
	loc := mustLoc(t, "Europe/Moscow")
	at := time.Date(2025, time.May, 5, 15, 30, 0, 0, loc)

	from, to := DayBounds(at, loc)
	if want := mustLocalUTC(t, "Europe/Moscow", 2025, time.May, 5, 0, 0); !from.Equal(want) {
		t.Fatalf("from: want %v, got %v", want, from)
	}
	if want := mustLocalUTC(t, "Europe/Moscow", 2025, time.May, 6, 0, 0); !to.Equal(want) {
		t.Fatalf("to: want %v, got %v", want, to)
	}
}
