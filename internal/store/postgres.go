package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AndreyMartjushev/takingPills/internal/domain"
)

const (
	userCols   = `id, telegram_id, COALESCE(first_name, ''), timezone, language, remind_before_minutes, last_summary_date, created_at`
	medCols    = `id, user_id, name, times, schedule_mode, COALESCE(periods, '{}'), doses_per_day, pills_per_dose, stock_total, low_stock_notified, is_active, paused_until, created_at`
	intakeCols = `id, medication_id, scheduled_at, taken, taken_at, reminder_sent, next_reminder_at, last_reminder_at, reminder_count, reminders_paused`
)

// Postgres implements Repo on a pgx connection pool.
type Postgres struct{ pool *pgxpool.Pool }

// Open connects to PostgreSQL with the given pool bounds, verifies the
// connection and applies pending migrations.
func Open(ctx context.Context, dsn string, minConns, maxConns int) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MinConns = int32(minConns)
	poolCfg.MaxConns = int32(maxConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying pool.
func (p *Postgres) Close() { p.pool.Close() }

// Health checks the database connection.
func (p *Postgres) Health(ctx context.Context) error { return p.pool.Ping(ctx) }

type scanner interface{ Scan(dest ...any) error }

func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.TelegramID, &u.FirstName, &u.TZ, &u.Language,
		&u.RemindBeforeMin, &u.LastSummaryDate, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanMedication(row scanner) (*domain.Medication, error) {
	var m domain.Medication
	err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Times, &m.ScheduleMode,
		&m.Periods, &m.DosesPerDay, &m.PillsPerDose, &m.StockTotal,
		&m.LowStockWarn, &m.IsActive, &m.PausedUntil, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanIntake(row scanner) (*domain.Intake, error) {
	var in domain.Intake
	err := row.Scan(&in.ID, &in.MedicationID, &in.ScheduledAt, &in.Taken,
		&in.TakenAt, &in.ReminderSent, &in.NextReminderAt, &in.LastReminderAt,
		&in.ReminderCount, &in.Paused)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", domain.ErrNotFound, what, id)
	}
	return err
}

// --- Users ---

// GetOrCreateUser returns the user for telegramID, creating a row with the
// configured defaults on first contact.
func (p *Postgres) GetOrCreateUser(ctx context.Context, telegramID int64, firstName, defaultTZ string, defaultRemindMin int) (*domain.User, error) {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (telegram_id, first_name, timezone, remind_before_minutes)
		VALUES ($1, NULLIF($2, ''), $3, $4)
		ON CONFLICT (telegram_id) DO NOTHING`,
		telegramID, firstName, defaultTZ, defaultRemindMin)
	if err != nil {
		return nil, err
	}
	return p.GetUserByTelegram(ctx, telegramID)
}

func (p *Postgres) GetUserByTelegram(ctx context.Context, telegramID int64) (*domain.User, error) {
	u, err := scanUser(p.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE telegram_id = $1`, telegramID))
	if err != nil {
		return nil, notFound(err, "user tg", telegramID)
	}
	return u, nil
}

func (p *Postgres) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+userCols+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

func (p *Postgres) UpdateUserTimezone(ctx context.Context, userID int64, tz string) error {
	_, err := p.pool.Exec(ctx, `UPDATE users SET timezone = $2 WHERE id = $1`, userID, tz)
	return err
}

func (p *Postgres) UpdateUserLanguage(ctx context.Context, userID int64, lang string) error {
	_, err := p.pool.Exec(ctx, `UPDATE users SET language = $2 WHERE id = $1`, userID, lang)
	return err
}

func (p *Postgres) UpdateUserRemindBefore(ctx context.Context, userID int64, minutes int) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE users SET remind_before_minutes = LEAST(180, GREATEST(1, $2::int)) WHERE id = $1`,
		userID, minutes)
	return err
}

func (p *Postgres) SetLastSummaryDate(ctx context.Context, userID int64, day time.Time) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE users SET last_summary_date = $2 WHERE id = $1`, userID, day)
	return err
}

// --- Medications ---

func (p *Postgres) AddMedication(ctx context.Context, med *domain.Medication) error {
	return p.pool.QueryRow(ctx, `
		INSERT INTO medications (user_id, name, times, schedule_mode, periods,
		                         doses_per_day, pills_per_dose, stock_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		med.UserID, med.Name, med.Times, med.ScheduleMode, med.Periods,
		med.DosesPerDay, med.PillsPerDose, med.StockTotal,
	).Scan(&med.ID, &med.CreatedAt)
}

func (p *Postgres) GetMedication(ctx context.Context, id int64) (*domain.Medication, error) {
	m, err := scanMedication(p.pool.QueryRow(ctx,
		`SELECT `+medCols+` FROM medications WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "medication", id)
	}
	return m, nil
}

func (p *Postgres) ListMedications(ctx context.Context, userID int64, includeInactive bool) ([]domain.Medication, error) {
	q := `SELECT ` + medCols + ` FROM medications WHERE user_id = $1`
	if !includeInactive {
		q += ` AND is_active`
	}
	q += ` ORDER BY id`

	rows, err := p.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *m)
	}
	return res, rows.Err()
}

func (p *Postgres) listMedsWithUsers(ctx context.Context, cond string, args ...any) ([]MedWithUser, error) {
	q := `
		SELECT m.id, m.user_id, m.name, m.times, m.schedule_mode, COALESCE(m.periods, '{}'),
		       m.doses_per_day, m.pills_per_dose, m.stock_total, m.low_stock_notified,
		       m.is_active, m.paused_until, m.created_at,
		       u.id, u.telegram_id, COALESCE(u.first_name, ''), u.timezone, u.language,
		       u.remind_before_minutes, u.last_summary_date, u.created_at
		FROM medications m
		JOIN users u ON u.id = m.user_id
		WHERE ` + cond + `
		ORDER BY m.id`

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []MedWithUser
	for rows.Next() {
		var mu MedWithUser
		err := rows.Scan(
			&mu.Med.ID, &mu.Med.UserID, &mu.Med.Name, &mu.Med.Times, &mu.Med.ScheduleMode,
			&mu.Med.Periods, &mu.Med.DosesPerDay, &mu.Med.PillsPerDose, &mu.Med.StockTotal,
			&mu.Med.LowStockWarn, &mu.Med.IsActive, &mu.Med.PausedUntil, &mu.Med.CreatedAt,
			&mu.User.ID, &mu.User.TelegramID, &mu.User.FirstName, &mu.User.TZ, &mu.User.Language,
			&mu.User.RemindBeforeMin, &mu.User.LastSummaryDate, &mu.User.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		res = append(res, mu)
	}
	return res, rows.Err()
}

func (p *Postgres) ListActiveMedications(ctx context.Context) ([]MedWithUser, error) {
	return p.listMedsWithUsers(ctx, `m.is_active`)
}

// ListResumable returns paused medications whose pause has elapsed.
func (p *Postgres) ListResumable(ctx context.Context, now time.Time) ([]MedWithUser, error) {
	return p.listMedsWithUsers(ctx,
		`NOT m.is_active AND m.paused_until IS NOT NULL AND m.paused_until <= $1`, now.UTC())
}

func (p *Postgres) UpdateMedicationSchedule(ctx context.Context, medID int64, times []string, mode string, periods []string, dosesPerDay int) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE medications
		   SET times = $2, schedule_mode = $3, periods = $4, doses_per_day = $5
		 WHERE id = $1`,
		medID, times, mode, periods, dosesPerDay)
	return err
}

func (p *Postgres) SetMedicationActive(ctx context.Context, medID, userID int64, active bool, pausedUntil *time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE medications
		   SET is_active = $3, paused_until = $4
		 WHERE id = $1 AND user_id = $2`,
		medID, userID, active, pausedUntil)
	return err
}

func (p *Postgres) DeleteMedication(ctx context.Context, medID, userID int64) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM medications WHERE id = $1 AND user_id = $2`, medID, userID)
	return err
}

// SetStock records the remaining pill count. Restocking above the low-stock
// threshold re-arms the one-shot depletion notification.
func (p *Postgres) SetStock(ctx context.Context, medID int64, pills, lowStockDays int) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE medications
		   SET stock_total = $2,
		       low_stock_notified = CASE
		           WHEN $2 > GREATEST(doses_per_day, 1) * GREATEST(pills_per_dose, 1) * $3
		           THEN FALSE
		           ELSE low_stock_notified
		       END
		 WHERE id = $1`,
		medID, pills, lowStockDays)
	return err
}

// --- Intake ledger ---

// EnsureIntake materializes one (medication, scheduled instant) row. The
// uniqueness constraint makes duplicate materialization a no-op: a conflicting
// insert is treated as success and the existing row is returned. A virgin row
// (never reminded, not armed) gets its reminder deadline refreshed so edits to
// user lead time take effect.
func (p *Postgres) EnsureIntake(ctx context.Context, medID int64, scheduledAt, nextReminderAt time.Time) (*domain.Intake, error) {
	in, err := scanIntake(p.pool.QueryRow(ctx, `
		INSERT INTO intakes (medication_id, scheduled_at, next_reminder_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (medication_id, scheduled_at) DO NOTHING
		RETURNING `+intakeCols,
		medID, scheduledAt.UTC(), nextReminderAt.UTC()))
	if err == nil {
		return in, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	in, err = scanIntake(p.pool.QueryRow(ctx, `
		SELECT `+intakeCols+` FROM intakes
		WHERE medication_id = $1 AND scheduled_at = $2`,
		medID, scheduledAt.UTC()))
	if err != nil {
		return nil, notFound(err, "intake for medication", medID)
	}
	if !in.Terminal() && !in.ReminderSent && in.NextReminderAt == nil {
		next := nextReminderAt.UTC()
		if _, err := p.pool.Exec(ctx,
			`UPDATE intakes SET next_reminder_at = $2 WHERE id = $1`, in.ID, next); err != nil {
			return nil, err
		}
		in.NextReminderAt = &next
	}
	return in, nil
}

func (p *Postgres) GetIntake(ctx context.Context, id int64) (*domain.Intake, error) {
	in, err := scanIntake(p.pool.QueryRow(ctx,
		`SELECT `+intakeCols+` FROM intakes WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "intake", id)
	}
	return in, nil
}

func (p *Postgres) ListIntakesForRange(ctx context.Context, medID int64, from, to time.Time) ([]domain.Intake, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+intakeCols+` FROM intakes
		WHERE medication_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at`,
		medID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Intake
	for rows.Next() {
		in, err := scanIntake(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *in)
	}
	return res, rows.Err()
}

// ListDueIntakes returns untaken, unpaused intakes of active medications whose
// reminder deadline has passed. A row that was never reminded and has no armed
// deadline falls due once the user's lead window opens.
func (p *Postgres) ListDueIntakes(ctx context.Context, now time.Time, limit int) ([]DueIntake, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT i.id, i.medication_id, i.scheduled_at, i.taken, i.taken_at, i.reminder_sent,
		       i.next_reminder_at, i.last_reminder_at, i.reminder_count, i.reminders_paused,
		       m.id, m.user_id, m.name, m.times, m.schedule_mode, COALESCE(m.periods, '{}'),
		       m.doses_per_day, m.pills_per_dose, m.stock_total, m.low_stock_notified,
		       m.is_active, m.paused_until, m.created_at,
		       u.id, u.telegram_id, COALESCE(u.first_name, ''), u.timezone, u.language,
		       u.remind_before_minutes, u.last_summary_date, u.created_at
		FROM intakes i
		JOIN medications m ON m.id = i.medication_id
		JOIN users u ON u.id = m.user_id
		WHERE NOT i.taken
		  AND NOT i.reminders_paused
		  AND m.is_active
		  AND (
		        (i.next_reminder_at IS NOT NULL AND i.next_reminder_at <= $1)
		     OR (i.next_reminder_at IS NULL AND NOT i.reminder_sent
		         AND i.scheduled_at - make_interval(mins => u.remind_before_minutes) <= $1)
		  )
		ORDER BY i.scheduled_at
		LIMIT $2`,
		now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []DueIntake
	for rows.Next() {
		var d DueIntake
		err := rows.Scan(
			&d.Intake.ID, &d.Intake.MedicationID, &d.Intake.ScheduledAt, &d.Intake.Taken,
			&d.Intake.TakenAt, &d.Intake.ReminderSent, &d.Intake.NextReminderAt,
			&d.Intake.LastReminderAt, &d.Intake.ReminderCount, &d.Intake.Paused,
			&d.Med.ID, &d.Med.UserID, &d.Med.Name, &d.Med.Times, &d.Med.ScheduleMode,
			&d.Med.Periods, &d.Med.DosesPerDay, &d.Med.PillsPerDose, &d.Med.StockTotal,
			&d.Med.LowStockWarn, &d.Med.IsActive, &d.Med.PausedUntil, &d.Med.CreatedAt,
			&d.User.ID, &d.User.TelegramID, &d.User.FirstName, &d.User.TZ, &d.User.Language,
			&d.User.RemindBeforeMin, &d.User.LastSummaryDate, &d.User.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// MarkIntakeTaken flips an intake to taken and decrements the medication's
// stock in one transaction. Taken is monotonic: a redundant call returns
// domain.ErrAlreadyTaken and changes nothing.
func (p *Postgres) MarkIntakeTaken(ctx context.Context, intakeID int64, at time.Time, lowStockDays int) (TakeResult, error) {
	var res TakeResult

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE intakes
		   SET taken = TRUE, taken_at = $2, next_reminder_at = NULL
		 WHERE id = $1 AND NOT taken`,
		intakeID, at.UTC())
	if err != nil {
		return res, err
	}
	if tag.RowsAffected() == 0 {
		var taken bool
		err := tx.QueryRow(ctx, `SELECT taken FROM intakes WHERE id = $1`, intakeID).Scan(&taken)
		if err != nil {
			return res, notFound(err, "intake", intakeID)
		}
		return res, fmt.Errorf("%w: intake %d", domain.ErrAlreadyTaken, intakeID)
	}

	var med domain.Medication
	err = tx.QueryRow(ctx, `
		SELECT m.id, m.doses_per_day, m.pills_per_dose, m.stock_total, m.low_stock_notified
		FROM medications m
		JOIN intakes i ON i.medication_id = m.id
		WHERE i.id = $1
		FOR UPDATE OF m`,
		intakeID).Scan(&med.ID, &med.DosesPerDay, &med.PillsPerDose, &med.StockTotal, &med.LowStockWarn)
	if err != nil {
		return res, err
	}

	if med.StockTotal != nil {
		prev := *med.StockTotal
		next := domain.ApplyDose(prev, med.PillsPerDose)
		threshold := domain.LowStockThreshold(&med, lowStockDays)
		crossed := domain.CrossedLowStock(prev, next, threshold, med.LowStockWarn)

		_, err = tx.Exec(ctx, `
			UPDATE medications
			   SET stock_total = $2, low_stock_notified = low_stock_notified OR $3
			 WHERE id = $1`,
			med.ID, next, crossed)
		if err != nil {
			return res, err
		}
		res.NewStock = &next
		res.LowStock = crossed
	}

	if err := tx.Commit(ctx); err != nil {
		return TakeResult{}, err
	}
	return res, nil
}

// SnoozeIntake re-arms the reminder deadline. Returns domain.ErrNotFound when
// the intake is missing or already taken.
func (p *Postgres) SnoozeIntake(ctx context.Context, intakeID int64, until time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE intakes
		   SET next_reminder_at = $2, reminders_paused = FALSE
		 WHERE id = $1 AND NOT taken`,
		intakeID, until.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: intake %d", domain.ErrNotFound, intakeID)
	}
	return nil
}

// SilenceIntake suppresses further reminders for one instance without marking
// it taken. Returns domain.ErrNotFound when the intake is missing or already
// taken.
func (p *Postgres) SilenceIntake(ctx context.Context, intakeID int64) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE intakes
		   SET reminders_paused = TRUE, next_reminder_at = NULL
		 WHERE id = $1 AND NOT taken`,
		intakeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: intake %d", domain.ErrNotFound, intakeID)
	}
	return nil
}

// NoteReminderSent records a delivered reminder and arms the next deadline
// (nil disarms: cap reached or terminal delivery failure).
func (p *Postgres) NoteReminderSent(ctx context.Context, intakeID int64, at time.Time, next *time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE intakes
		   SET reminder_sent = TRUE,
		       last_reminder_at = $2,
		       next_reminder_at = $3,
		       reminder_count = reminder_count + 1
		 WHERE id = $1 AND NOT taken`,
		intakeID, at.UTC(), next)
	return err
}

// DisarmReminder permanently stops reminders for an intake while leaving it
// pending. Setting reminder_sent keeps the row out of the never-reminded
// branch of the due query, so a disarmed intake can never fall due again.
func (p *Postgres) DisarmReminder(ctx context.Context, intakeID int64) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE intakes SET next_reminder_at = NULL, reminder_sent = TRUE WHERE id = $1`,
		intakeID)
	return err
}

// ClearFutureIntakes drops untaken rows from a given instant on; used when a
// schedule changes or a course resumes so stale instants are re-materialized.
func (p *Postgres) ClearFutureIntakes(ctx context.Context, medID int64, from time.Time) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM intakes
		 WHERE medication_id = $1 AND scheduled_at >= $2 AND NOT taken`,
		medID, from.UTC())
	return err
}
