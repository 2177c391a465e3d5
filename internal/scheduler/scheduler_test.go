package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/AndreyMartjushev/takingPills/internal/domain"
	"github.com/AndreyMartjushev/takingPills/internal/store"
)

type ensureCall struct {
	medID       int64
	scheduledAt time.Time
	reminderAt  time.Time
}

type noteCall struct {
	intakeID int64
	at       time.Time
	next     *time.Time
}

// fakeRepo is an in-memory store.Repo good enough to drive the engine. With
// ledger set, ListDueIntakes evaluates the real store's due predicate against
// mutable rows instead of returning the static due slice.
type fakeRepo struct {
	users     []domain.User
	active    []store.MedWithUser
	resumable []store.MedWithUser
	due       []store.DueIntake
	ledger    []*store.DueIntake
	meds      map[int64][]domain.Medication // userID -> meds
	intakes   map[int64][]domain.Intake     // medID -> intakes

	ensured      []ensureCall
	noted        []noteCall
	disarmed     []int64
	cleared      []int64
	activated    []int64
	summaryMarks map[int64]time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		meds:         make(map[int64][]domain.Medication),
		intakes:      make(map[int64][]domain.Intake),
		summaryMarks: make(map[int64]time.Time),
	}
}

func (f *fakeRepo) GetOrCreateUser(ctx context.Context, telegramID int64, firstName, defaultTZ string, defaultRemindMin int) (*domain.User, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeRepo) GetUserByTelegram(ctx context.Context, telegramID int64) (*domain.User, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeRepo) ListUsers(ctx context.Context) ([]domain.User, error)                  { return f.users, nil }
func (f *fakeRepo) UpdateUserTimezone(ctx context.Context, userID int64, tz string) error { return nil }
func (f *fakeRepo) UpdateUserLanguage(ctx context.Context, userID int64, lang string) error {
	return nil
}
func (f *fakeRepo) UpdateUserRemindBefore(ctx context.Context, userID int64, minutes int) error {
	return nil
}
func (f *fakeRepo) SetLastSummaryDate(ctx context.Context, userID int64, day time.Time) error {
	f.summaryMarks[userID] = day
	for i := range f.users {
		if f.users[i].ID == userID {
			d := day
			f.users[i].LastSummaryDate = &d
		}
	}
	return nil
}

func (f *fakeRepo) AddMedication(ctx context.Context, med *domain.Medication) error { return nil }
func (f *fakeRepo) GetMedication(ctx context.Context, id int64) (*domain.Medication, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeRepo) ListMedications(ctx context.Context, userID int64, includeInactive bool) ([]domain.Medication, error) {
	return f.meds[userID], nil
}
func (f *fakeRepo) ListActiveMedications(ctx context.Context) ([]store.MedWithUser, error) {
	return f.active, nil
}
func (f *fakeRepo) ListResumable(ctx context.Context, now time.Time) ([]store.MedWithUser, error) {
	return f.resumable, nil
}
func (f *fakeRepo) UpdateMedicationSchedule(ctx context.Context, medID int64, times []string, mode string, periods []string, dosesPerDay int) error {
	return nil
}
func (f *fakeRepo) SetMedicationActive(ctx context.Context, medID, userID int64, active bool, pausedUntil *time.Time) error {
	f.activated = append(f.activated, medID)
	return nil
}
func (f *fakeRepo) DeleteMedication(ctx context.Context, medID, userID int64) error { return nil }
func (f *fakeRepo) SetStock(ctx context.Context, medID int64, pills, lowStockDays int) error {
	return nil
}

func (f *fakeRepo) EnsureIntake(ctx context.Context, medID int64, scheduledAt, nextReminderAt time.Time) (*domain.Intake, error) {
	f.ensured = append(f.ensured, ensureCall{medID, scheduledAt, nextReminderAt})
	return &domain.Intake{MedicationID: medID, ScheduledAt: scheduledAt}, nil
}
func (f *fakeRepo) GetIntake(ctx context.Context, id int64) (*domain.Intake, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeRepo) ListIntakesForRange(ctx context.Context, medID int64, from, to time.Time) ([]domain.Intake, error) {
	var out []domain.Intake
	for _, in := range f.intakes[medID] {
		if !in.ScheduledAt.Before(from) && in.ScheduledAt.Before(to) {
			out = append(out, in)
		}
	}
	return out, nil
}
func (f *fakeRepo) ListDueIntakes(ctx context.Context, now time.Time, limit int) ([]store.DueIntake, error) {
	if f.ledger == nil {
		return f.due, nil
	}
	var out []store.DueIntake
	for _, d := range f.ledger {
		in := d.Intake
		if in.Taken || in.Paused || !d.Med.IsActive {
			continue
		}
		armed := in.NextReminderAt != nil && !in.NextReminderAt.After(now)
		lead := time.Duration(d.User.RemindBeforeMin) * time.Minute
		fresh := in.NextReminderAt == nil && !in.ReminderSent &&
			!in.ScheduledAt.Add(-lead).After(now)
		if armed || fresh {
			out = append(out, *d)
		}
	}
	return out, nil
}
func (f *fakeRepo) MarkIntakeTaken(ctx context.Context, intakeID int64, at time.Time, lowStockDays int) (store.TakeResult, error) {
	return store.TakeResult{}, nil
}
func (f *fakeRepo) SnoozeIntake(ctx context.Context, intakeID int64, until time.Time) error {
	return nil
}
func (f *fakeRepo) SilenceIntake(ctx context.Context, intakeID int64) error { return nil }
func (f *fakeRepo) NoteReminderSent(ctx context.Context, intakeID int64, at time.Time, next *time.Time) error {
	f.noted = append(f.noted, noteCall{intakeID, at, next})
	for _, d := range f.ledger {
		if d.Intake.ID == intakeID {
			d.Intake.ReminderSent = true
			d.Intake.LastReminderAt = &at
			d.Intake.ReminderCount++
			d.Intake.NextReminderAt = next
		}
	}
	return nil
}

// DisarmReminder mirrors the store: the deadline is cleared and reminder_sent
// is set so the row cannot re-qualify through the never-reminded branch.
func (f *fakeRepo) DisarmReminder(ctx context.Context, intakeID int64) error {
	f.disarmed = append(f.disarmed, intakeID)
	for _, d := range f.ledger {
		if d.Intake.ID == intakeID {
			d.Intake.NextReminderAt = nil
			d.Intake.ReminderSent = true
		}
	}
	return nil
}
func (f *fakeRepo) ClearFutureIntakes(ctx context.Context, medID int64, from time.Time) error {
	f.cleared = append(f.cleared, medID)
	return nil
}
func (f *fakeRepo) Close() {}

type fakeSender struct {
	reminderErr error

	reminders []int64 // intake IDs
	summaries []int64 // user IDs
	resumed   []int64 // med IDs
	alerts    []string
}

func (s *fakeSender) SendReminder(u *domain.User, med *domain.Medication, in *domain.Intake) error {
	if s.reminderErr != nil {
		return s.reminderErr
	}
	s.reminders = append(s.reminders, in.ID)
	return nil
}
func (s *fakeSender) SendSummary(u *domain.User, report domain.DayReport) error {
	s.summaries = append(s.summaries, u.ID)
	return nil
}
func (s *fakeSender) SendResumed(u *domain.User, med *domain.Medication) error {
	s.resumed = append(s.resumed, med.ID)
	return nil
}
func (s *fakeSender) SendAlert(text string) { s.alerts = append(s.alerts, text) }

func newTestEngine(repo *fakeRepo, sender *fakeSender, now time.Time, opts Options) *Engine {
	if opts.SnoozeStep == 0 {
		opts.SnoozeStep = 15 * time.Minute
	}
	if opts.DefaultTZ == "" {
		opts.DefaultTZ = "UTC"
	}
	e := New(repo, zap.NewNop(), sender, opts)
	e.now = func() time.Time { return now }
	return e
}

func dueIntake(intakeID int64, count int) store.DueIntake {
	return store.DueIntake{
		Intake: domain.Intake{ID: intakeID, MedicationID: 10, ReminderCount: count},
		Med:    domain.Medication{ID: 10, Name: "Aspirin"},
		User:   domain.User{ID: 1, TelegramID: 100},
	}
}

func TestDispatch_SendsAndArmsNextReminder(t *testing.T) {
	now := time.Date(2025, time.May, 5, 8, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	repo.due = []store.DueIntake{dueIntake(42, 0)}
	sender := &fakeSender{}
	e := newTestEngine(repo, sender, now, Options{MaxReminders: 5})

	e.dispatch(context.Background(), now)

	if len(sender.reminders) != 1 || sender.reminders[0] != 42 {
		t.Fatalf("want reminder for intake 42, got %v", sender.reminders)
	}
	if len(repo.noted) != 1 {
		t.Fatalf("want 1 bookkeeping write, got %d", len(repo.noted))
	}
	n := repo.noted[0]
	if n.next == nil || !n.next.Equal(now.Add(15*time.Minute)) {
		t.Fatalf("want next reminder at now+15m, got %v", n.next)
	}
}

func TestDispatch_LastAllowedReminderArmsNothing(t *testing.T) {
	now := time.Date(2025, time.May, 5, 8, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	repo.due = []store.DueIntake{dueIntake(42, 4)}
	sender := &fakeSender{}
	e := newTestEngine(repo, sender, now, Options{MaxReminders: 5})

	e.dispatch(context.Background(), now)

	if len(sender.reminders) != 1 {
		t.Fatalf("fifth reminder must still send, got %d", len(sender.reminders))
	}
	if len(repo.noted) != 1 || repo.noted[0].next != nil {
		t.Fatalf("after the last allowed reminder nothing must be armed, got %+v", repo.noted)
	}
}

func TestDispatch_CapExhaustedDisarms(t *testing.T) {
	now := time.Date(2025, time.May, 5, 8, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	repo.due = []store.DueIntake{dueIntake(42, 5)}
	sender := &fakeSender{}
	e := newTestEngine(repo, sender, now, Options{MaxReminders: 5})

	e.dispatch(context.Background(), now)

	if len(sender.reminders) != 0 {
		t.Fatalf("exhausted intake must not send, got %d", len(sender.reminders))
	}
	if len(repo.disarmed) != 1 || repo.disarmed[0] != 42 {
		t.Fatalf("want intake 42 disarmed, got %v", repo.disarmed)
	}
}

func TestDispatch_UnboundedWhenCapIsZero(t *testing.T) {
	now := time.Date(2025, time.May, 5, 8, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	repo.due = []store.DueIntake{dueIntake(42, 99)}
	sender := &fakeSender{}
	e := newTestEngine(repo, sender, now, Options{MaxReminders: 0})

	e.dispatch(context.Background(), now)

	if len(sender.reminders) != 1 {
		t.Fatalf("uncapped intake must send, got %d", len(sender.reminders))
	}
	if repo.noted[0].next == nil {
		t.Fatal("uncapped intake must re-arm")
	}
}

func TestDispatch_TransientFailureLeavesStateUntouched(t *testing.T) {
	now := time.Date(2025, time.May, 5, 8, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	repo.due = []store.DueIntake{dueIntake(42, 0)}
	sender := &fakeSender{
		reminderErr: fmt.Errorf("%w: api timeout", domain.ErrDeliveryTransient),
	}
	e := newTestEngine(repo, sender, now, Options{MaxReminders: 5})

	e.dispatch(context.Background(), now)

	if len(repo.noted) != 0 {
		t.Fatalf("failed send must not be recorded, got %+v", repo.noted)
	}
	if len(repo.disarmed) != 0 {
		t.Fatalf("transient failure must not disarm, got %v", repo.disarmed)
	}
}

func TestDispatch_FatalFailureDisarmsAndAlerts(t *testing.T) {
	now := time.Date(2025, time.May, 5, 8, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	repo.due = []store.DueIntake{dueIntake(42, 0)}
	sender := &fakeSender{
		reminderErr: fmt.Errorf("%w: bot blocked by user", domain.ErrDeliveryFatal),
	}
	e := newTestEngine(repo, sender, now, Options{MaxReminders: 5})

	e.dispatch(context.Background(), now)

	if len(repo.disarmed) != 1 || repo.disarmed[0] != 42 {
		t.Fatalf("want intake 42 disarmed, got %v", repo.disarmed)
	}
	if len(sender.alerts) != 1 {
		t.Fatalf("want 1 operator alert, got %d", len(sender.alerts))
	}
	if len(repo.noted) != 0 {
		t.Fatalf("fatal failure must not record a send, got %+v", repo.noted)
	}
}

func TestDispatch_FatalFailureAlertsExactlyOnce(t *testing.T) {
	// A blocked user whose dose was never successfully reminded: after the
	// disarm the row must not re-qualify on subsequent ticks, or every poll
	// interval produces another alert.
	now := time.Date(2025, time.May, 5, 8, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	repo.ledger = []*store.DueIntake{{
		Intake: domain.Intake{ID: 42, MedicationID: 10, ScheduledAt: now},
		Med:    domain.Medication{ID: 10, Name: "Aspirin", IsActive: true},
		User:   domain.User{ID: 1, TelegramID: 100, RemindBeforeMin: 10},
	}}
	sender := &fakeSender{
		reminderErr: fmt.Errorf("%w: bot blocked by user", domain.ErrDeliveryFatal),
	}
	e := newTestEngine(repo, sender, now, Options{MaxReminders: 5})

	for i := 0; i < 3; i++ {
		e.dispatch(context.Background(), now.Add(time.Duration(i)*time.Minute))
	}

	if len(sender.alerts) != 1 {
		t.Fatalf("want exactly 1 alert across 3 ticks, got %d", len(sender.alerts))
	}
	if len(repo.disarmed) != 1 {
		t.Fatalf("want exactly 1 disarm, got %d", len(repo.disarmed))
	}

	due, _ := repo.ListDueIntakes(context.Background(), now.Add(time.Hour), 100)
	if len(due) != 0 {
		t.Fatalf("disarmed intake must never fall due again, got %d", len(due))
	}
}

func TestEnsureScheduled_MaterializesTodayAndTomorrow(t *testing.T) {
	now := time.Date(2025, time.May, 5, 7, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	repo.active = []store.MedWithUser{{
		Med: domain.Medication{
			ID: 10, UserID: 1, Name: "Aspirin",
			Times: []string{"08:00", "20:00"}, ScheduleMode: domain.ScheduleExact,
			DosesPerDay: 2, IsActive: true,
		},
		User: domain.User{ID: 1, TZ: "UTC", RemindBeforeMin: 10},
	}}
	e := newTestEngine(repo, &fakeSender{}, now, Options{})

	e.ensureScheduled(context.Background(), now)

	if len(repo.ensured) != 4 {
		t.Fatalf("want 4 materialized intakes, got %d", len(repo.ensured))
	}
	first := repo.ensured[0]
	wantSched := time.Date(2025, time.May, 5, 8, 0, 0, 0, time.UTC)
	if !first.scheduledAt.Equal(wantSched) {
		t.Fatalf("want first dose at %v, got %v", wantSched, first.scheduledAt)
	}
	if !first.reminderAt.Equal(wantSched.Add(-10 * time.Minute)) {
		t.Fatalf("want reminder 10m before the dose, got %v", first.reminderAt)
	}
}

func TestResumeDue_ReactivatesAndRebuilds(t *testing.T) {
	now := time.Date(2025, time.May, 5, 8, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	repo.resumable = []store.MedWithUser{{
		Med:  domain.Medication{ID: 10, UserID: 1, Name: "Aspirin"},
		User: domain.User{ID: 1, TelegramID: 100},
	}}
	sender := &fakeSender{}
	e := newTestEngine(repo, sender, now, Options{})

	e.resumeDue(context.Background(), now)

	if len(repo.activated) != 1 || repo.activated[0] != 10 {
		t.Fatalf("want medication 10 reactivated, got %v", repo.activated)
	}
	if len(repo.cleared) != 1 || repo.cleared[0] != 10 {
		t.Fatalf("want stale intakes cleared for medication 10, got %v", repo.cleared)
	}
	if len(sender.resumed) != 1 {
		t.Fatalf("want resume notification, got %d", len(sender.resumed))
	}
}

func TestSendSummaries_OncePerUserPerDay(t *testing.T) {
	// 21:30 UTC, summary hour 21.
	now := time.Date(2025, time.May, 5, 21, 30, 0, 0, time.UTC)
	repo := newFakeRepo()
	repo.users = []domain.User{{ID: 1, TelegramID: 100, TZ: "UTC"}}
	repo.meds[1] = []domain.Medication{{ID: 10, UserID: 1, Name: "Aspirin", IsActive: true}}
	repo.intakes[10] = []domain.Intake{
		{ID: 1, MedicationID: 10, ScheduledAt: time.Date(2025, time.May, 5, 8, 0, 0, 0, time.UTC), Taken: true},
		{ID: 2, MedicationID: 10, ScheduledAt: time.Date(2025, time.May, 5, 20, 0, 0, 0, time.UTC)},
	}
	sender := &fakeSender{}
	e := newTestEngine(repo, sender, now, Options{SummaryHour: 21})

	e.sendSummaries(context.Background(), now)
	if len(sender.summaries) != 1 {
		t.Fatalf("want 1 summary, got %d", len(sender.summaries))
	}
	if _, ok := repo.summaryMarks[1]; !ok {
		t.Fatal("summary date must be persisted after a successful send")
	}

	// Next tick the same evening must not repeat the summary.
	e.sendSummaries(context.Background(), now.Add(time.Minute))
	if len(sender.summaries) != 1 {
		t.Fatalf("summary repeated, got %d sends", len(sender.summaries))
	}
}

func TestSendSummaries_BeforeHourDoesNothing(t *testing.T) {
	now := time.Date(2025, time.May, 5, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	repo.users = []domain.User{{ID: 1, TZ: "UTC"}}
	sender := &fakeSender{}
	e := newTestEngine(repo, sender, now, Options{SummaryHour: 21})

	e.sendSummaries(context.Background(), now)
	if len(sender.summaries) != 0 {
		t.Fatalf("summary before the hour, got %d sends", len(sender.summaries))
	}
}
