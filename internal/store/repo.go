package store

import (
	"context"
	"time"

	"github.com/AndreyMartjushev/takingPills/internal/domain"
)

// DueIntake is an intake joined with its medication and owning user, as
// returned by the due-reminder query.
type DueIntake struct {
	Intake domain.Intake
	Med    domain.Medication
	User   domain.User
}

// MedWithUser pairs a medication with its owner for background jobs.
type MedWithUser struct {
	Med  domain.Medication
	User domain.User
}

// TakeResult reports the stock outcome of marking an intake taken.
type TakeResult struct {
	NewStock *int // nil when the medication does not track stock
	LowStock bool // the decrement crossed the low-stock threshold
}

// Repo defines storage operations for users, medications and the intake
// ledger. All instants are stored and returned in UTC.
type Repo interface {
	// Users.
	GetOrCreateUser(ctx context.Context, telegramID int64, firstName, defaultTZ string, defaultRemindMin int) (*domain.User, error)
	GetUserByTelegram(ctx context.Context, telegramID int64) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUserTimezone(ctx context.Context, userID int64, tz string) error
	UpdateUserLanguage(ctx context.Context, userID int64, lang string) error
	UpdateUserRemindBefore(ctx context.Context, userID int64, minutes int) error
	SetLastSummaryDate(ctx context.Context, userID int64, day time.Time) error

	// Medications.
	AddMedication(ctx context.Context, med *domain.Medication) error
	GetMedication(ctx context.Context, id int64) (*domain.Medication, error)
	ListMedications(ctx context.Context, userID int64, includeInactive bool) ([]domain.Medication, error)
	ListActiveMedications(ctx context.Context) ([]MedWithUser, error)
	ListResumable(ctx context.Context, now time.Time) ([]MedWithUser, error)
	UpdateMedicationSchedule(ctx context.Context, medID int64, times []string, mode string, periods []string, dosesPerDay int) error
	SetMedicationActive(ctx context.Context, medID, userID int64, active bool, pausedUntil *time.Time) error
	DeleteMedication(ctx context.Context, medID, userID int64) error
	SetStock(ctx context.Context, medID int64, pills, lowStockDays int) error

	// Intake ledger.
	EnsureIntake(ctx context.Context, medID int64, scheduledAt, nextReminderAt time.Time) (*domain.Intake, error)
	GetIntake(ctx context.Context, id int64) (*domain.Intake, error)
	ListIntakesForRange(ctx context.Context, medID int64, from, to time.Time) ([]domain.Intake, error)
	ListDueIntakes(ctx context.Context, now time.Time, limit int) ([]DueIntake, error)
	MarkIntakeTaken(ctx context.Context, intakeID int64, at time.Time, lowStockDays int) (TakeResult, error)
	SnoozeIntake(ctx context.Context, intakeID int64, until time.Time) error
	SilenceIntake(ctx context.Context, intakeID int64) error
	NoteReminderSent(ctx context.Context, intakeID int64, at time.Time, next *time.Time) error
	DisarmReminder(ctx context.Context, intakeID int64) error
	ClearFutureIntakes(ctx context.Context, medID int64, from time.Time) error

	Close()
}
