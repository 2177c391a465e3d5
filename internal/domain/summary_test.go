package domain

import (
	"testing"
	"time"
)

func TestBuildMedReport_Classification(t *testing.T) {
	now := time.Date(2025, time.May, 5, 18, 0, 0, 0, time.UTC)
	taken := now.Add(-2 * time.Hour)
	intakes := []Intake{
		{ScheduledAt: now.Add(-10 * time.Hour), Taken: true, TakenAt: &taken},
		{ScheduledAt: now.Add(-4 * time.Hour)},               // past, untaken
		{ScheduledAt: now.Add(-1 * time.Hour), Paused: true}, // silenced still counts as missed
		{ScheduledAt: now.Add(3 * time.Hour)},                // later today
	}

	rep := BuildMedReport("Aspirin", intakes, now)
	if rep.Taken != 1 || rep.Missed != 2 || rep.Pending != 1 {
		t.Fatalf("want 1/2/1, got %d/%d/%d", rep.Taken, rep.Missed, rep.Pending)
	}
	if rep.Total() != 4 {
		t.Fatalf("want total 4, got %d", rep.Total())
	}
}

func TestDayReport_HasData(t *testing.T) {
	var rep DayReport
	if rep.HasData() {
		t.Fatal("empty report must have no data")
	}
	rep.Meds = append(rep.Meds, MedReport{Name: "Aspirin"})
	if rep.HasData() {
		t.Fatal("zero-dose medication is not data")
	}
	rep.Meds = append(rep.Meds, MedReport{Name: "Iron", Pending: 1})
	if !rep.HasData() {
		t.Fatal("pending dose is data")
	}
}

func TestSummaryDue(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Moscow")
	evening := time.Date(2025, time.May, 5, 21, 5, 0, 0, loc)
	morning := time.Date(2025, time.May, 5, 9, 0, 0, 0, loc)

	u := &User{}
	if SummaryDue(u, morning, 21) {
		t.Fatal("not due before the summary hour")
	}
	if !SummaryDue(u, evening, 21) {
		t.Fatal("due after the summary hour with no prior summary")
	}

	sameDay := time.Date(2025, time.May, 5, 0, 0, 0, 0, time.UTC)
	u.LastSummaryDate = &sameDay
	if SummaryDue(u, evening, 21) {
		t.Fatal("already summarized today")
	}

	prevDay := time.Date(2025, time.May, 4, 0, 0, 0, 0, time.UTC)
	u.LastSummaryDate = &prevDay
	if !SummaryDue(u, evening, 21) {
		t.Fatal("yesterday's mark must not block today")
	}
}
