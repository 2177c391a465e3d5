package domain

import "time"

// User holds per-chat identity and reminder preferences.
type User struct {
	ID              int64
	TelegramID      int64
	FirstName       string
	TZ              string
	Language        string // "ru" | "en"
	RemindBeforeMin int
	LastSummaryDate *time.Time // local calendar day already summarized, date only
	CreatedAt       time.Time  // UTC
}

// RemindBefore returns the user's reminder lead time clamped to 1..180 minutes.
func (u *User) RemindBefore() time.Duration {
	m := u.RemindBeforeMin
	if m < 1 {
		m = 1
	}
	if m > 180 {
		m = 180
	}
	return time.Duration(m) * time.Minute
}

// Zone resolves the user's timezone, falling back to fallback and then UTC.
func (u *User) Zone(fallback string) *time.Location {
	if loc, err := time.LoadLocation(u.TZ); err == nil && u.TZ != "" {
		return loc
	}
	if loc, err := time.LoadLocation(fallback); err == nil {
		return loc
	}
	return time.UTC
}

// Lang returns a supported interface language code, defaulting to Russian.
func (u *User) Lang() string {
	if u.Language == "en" {
		return "en"
	}
	return "ru"
}
