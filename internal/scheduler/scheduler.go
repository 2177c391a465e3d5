package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AndreyMartjushev/takingPills/internal/domain"
	"github.com/AndreyMartjushev/takingPills/internal/metrics"
	"github.com/AndreyMartjushev/takingPills/internal/store"
)

// Sender delivers outbound notifications. telegram.Router implements it.
// Send errors wrap domain.ErrDeliveryTransient or domain.ErrDeliveryFatal.
type Sender interface {
	SendReminder(user *domain.User, med *domain.Medication, intake *domain.Intake) error
	SendSummary(user *domain.User, report domain.DayReport) error
	SendResumed(user *domain.User, med *domain.Medication) error
	SendAlert(text string)
}

// Options tunes engine behavior; zero values fall back to defaults.
type Options struct {
	PollInterval time.Duration
	SnoozeStep   time.Duration
	MaxReminders int // re-fires per intake before the engine gives up; 0 = unbounded
	SummaryHour  int
	DefaultTZ    string
}

// Engine drives the reminder and summary lifecycle with a single polling
// loop: resume elapsed pauses, materialize upcoming intakes, dispatch due
// reminders, close out user days.
type Engine struct {
	repo   store.Repo
	log    *zap.Logger
	sender Sender
	opts   Options

	now func() time.Time // swapped in tests
}

func New(repo store.Repo, log *zap.Logger, sender Sender, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}
	if opts.SnoozeStep <= 0 {
		opts.SnoozeStep = 15 * time.Minute
	}
	return &Engine{
		repo:   repo,
		log:    log,
		sender: sender,
		opts:   opts,
		now:    time.Now,
	}
}

// Run executes ticks until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("scheduler stopping")
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick performs one scheduling cycle. Each stage tolerates failures of the
// others; a broken tick is retried wholesale on the next one.
func (e *Engine) tick(ctx context.Context) {
	now := e.now().UTC()
	e.resumeDue(ctx, now)
	e.ensureScheduled(ctx, now)
	e.dispatch(ctx, now)
	e.sendSummaries(ctx, now)
}

// resumeDue reactivates medications whose pause has elapsed and drops their
// stale future intakes so the schedule re-materializes fresh.
func (e *Engine) resumeDue(ctx context.Context, now time.Time) {
	meds, err := e.repo.ListResumable(ctx, now)
	if err != nil {
		e.log.Error("ListResumable failed", zap.Error(err))
		return
	}
	for _, mu := range meds {
		if err := e.repo.SetMedicationActive(ctx, mu.Med.ID, mu.User.ID, true, nil); err != nil {
			e.log.Error("auto-resume failed", zap.Error(err), zap.Int64("medID", mu.Med.ID))
			continue
		}
		if err := e.repo.ClearFutureIntakes(ctx, mu.Med.ID, now); err != nil {
			e.log.Error("clear future intakes failed", zap.Error(err), zap.Int64("medID", mu.Med.ID))
		}
		if err := e.sender.SendResumed(&mu.User, &mu.Med); err != nil {
			e.log.Warn("resume notification failed", zap.Error(err), zap.Int64("medID", mu.Med.ID))
		}
		e.log.Info("medication auto-resumed",
			zap.Int64("medID", mu.Med.ID), zap.Int64("userID", mu.User.ID))
	}
}

// ensureScheduled materializes intake rows for today and tomorrow in each
// user's timezone. The upsert keyed on (medication, scheduled instant) makes
// repeated materialization idempotent.
func (e *Engine) ensureScheduled(ctx context.Context, now time.Time) {
	meds, err := e.repo.ListActiveMedications(ctx)
	if err != nil {
		e.log.Error("ListActiveMedications failed", zap.Error(err))
		return
	}
	for _, mu := range meds {
		loc := mu.User.Zone(e.opts.DefaultTZ)
		lead := mu.User.RemindBefore()

		for offset := 0; offset < 2; offset++ {
			date := now.In(loc).AddDate(0, 0, offset)
			instants, err := domain.Materialize(&mu.Med, date, loc)
			if err != nil {
				// Broken dosing configuration; the owner fixes it via /meds.
				e.log.Warn("materialize failed", zap.Error(err), zap.Int64("medID", mu.Med.ID))
				break
			}
			for _, at := range instants {
				first := domain.FirstReminderAt(at, now, lead)
				if _, err := e.repo.EnsureIntake(ctx, mu.Med.ID, at, first); err != nil {
					e.log.Error("EnsureIntake failed", zap.Error(err),
						zap.Int64("medID", mu.Med.ID), zap.Time("scheduledAt", at))
				}
			}
		}
	}
}

// dispatch sends reminders for due intakes. Ledger bookkeeping is written only
// after a successful send; a transient failure leaves the row untouched so the
// same deadline is retried next tick. No row lock is held across a send.
func (e *Engine) dispatch(ctx context.Context, now time.Time) {
	due, err := e.repo.ListDueIntakes(ctx, now, 100)
	if err != nil {
		e.log.Error("ListDueIntakes failed", zap.Error(err))
		return
	}
	for _, d := range due {
		if e.opts.MaxReminders > 0 && d.Intake.ReminderCount >= e.opts.MaxReminders {
			if err := e.repo.DisarmReminder(ctx, d.Intake.ID); err != nil {
				e.log.Error("DisarmReminder failed", zap.Error(err), zap.Int64("intakeID", d.Intake.ID))
			}
			e.log.Warn("reminder cap reached, giving up on intake",
				zap.Int64("intakeID", d.Intake.ID), zap.Int64("userID", d.User.ID))
			continue
		}

		if err := e.sender.SendReminder(&d.User, &d.Med, &d.Intake); err != nil {
			metrics.RecordReminderFailed()
			if errors.Is(err, domain.ErrDeliveryFatal) {
				// The recipient is gone for good; stop retrying, keep the
				// intake pending for manual resolution.
				if derr := e.repo.DisarmReminder(ctx, d.Intake.ID); derr != nil {
					e.log.Error("DisarmReminder failed", zap.Error(derr), zap.Int64("intakeID", d.Intake.ID))
				}
				e.sender.SendAlert(deliveryAlert(&d))
				e.log.Error("reminder undeliverable", zap.Error(err),
					zap.Int64("intakeID", d.Intake.ID), zap.Int64("userID", d.User.ID))
			} else {
				e.log.Warn("reminder send failed, will retry", zap.Error(err),
					zap.Int64("intakeID", d.Intake.ID))
			}
			continue
		}
		metrics.RecordReminderSent()

		var next *time.Time
		if e.opts.MaxReminders == 0 || d.Intake.ReminderCount+1 < e.opts.MaxReminders {
			n := now.Add(e.opts.SnoozeStep)
			next = &n
		}
		if err := e.repo.NoteReminderSent(ctx, d.Intake.ID, now, next); err != nil {
			e.log.Error("NoteReminderSent failed", zap.Error(err), zap.Int64("intakeID", d.Intake.ID))
		}
	}
}

// sendSummaries closes out the local day for users whose summary hour has
// passed. Marking last_summary_date only after a successful send keeps the
// job idempotent per (user, date) and retryable across restarts.
func (e *Engine) sendSummaries(ctx context.Context, now time.Time) {
	users, err := e.repo.ListUsers(ctx)
	if err != nil {
		e.log.Error("ListUsers failed", zap.Error(err))
		return
	}
	for i := range users {
		u := &users[i]
		loc := u.Zone(e.opts.DefaultTZ)
		localNow := now.In(loc)
		if !domain.SummaryDue(u, localNow, e.opts.SummaryHour) {
			continue
		}

		report, err := BuildDayReport(ctx, e.repo, u, localNow, loc)
		if err != nil {
			e.log.Error("summary build failed", zap.Error(err), zap.Int64("userID", u.ID))
			continue
		}
		if !report.HasData() {
			continue
		}

		if err := e.sender.SendSummary(u, report); err != nil {
			e.log.Warn("summary send failed, will retry", zap.Error(err), zap.Int64("userID", u.ID))
			continue
		}

		missed := 0
		for _, m := range report.Meds {
			missed += m.Missed
		}
		metrics.RecordMissed(missed)

		day := domain.DayStart(localNow.Year(), localNow.Month(), localNow.Day(), time.UTC)
		if err := e.repo.SetLastSummaryDate(ctx, u.ID, day); err != nil {
			e.log.Error("SetLastSummaryDate failed", zap.Error(err), zap.Int64("userID", u.ID))
		}
	}
}

// BuildDayReport aggregates a user's intake outcomes for the local day
// containing localNow. Shared with the on-demand /daily command.
func BuildDayReport(ctx context.Context, repo store.Repo, u *domain.User, localNow time.Time, loc *time.Location) (domain.DayReport, error) {
	report := domain.DayReport{Date: localNow}
	meds, err := repo.ListMedications(ctx, u.ID, false)
	if err != nil {
		return report, err
	}

	from, to := domain.DayBounds(localNow, loc)
	nowUTC := localNow.UTC()
	for _, med := range meds {
		intakes, err := repo.ListIntakesForRange(ctx, med.ID, from, to)
		if err != nil {
			return report, err
		}
		if len(intakes) == 0 {
			continue
		}
		report.Meds = append(report.Meds, domain.BuildMedReport(med.Name, intakes, nowUTC))
	}
	return report, nil
}

func deliveryAlert(d *store.DueIntake) string {
	return fmt.Sprintf("reminder undeliverable: user=%d medication=%d intake=%d",
		d.User.TelegramID, d.Med.ID, d.Intake.ID)
}
