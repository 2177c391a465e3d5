package domain

import "errors"

var (
	// ErrConfiguration means a medication's dosing configuration is internally
	// inconsistent (for example doses_per_day disagrees with the times list).
	// Surfaced to the user who configured it, never fatal to the process.
	ErrConfiguration = errors.New("inconsistent medication configuration")

	// ErrAlreadyTaken is returned by a redundant mark-taken. Callers report it
	// as a no-op.
	ErrAlreadyTaken = errors.New("intake already taken")

	// ErrNotFound is returned for lookups of missing users, medications or
	// intakes.
	ErrNotFound = errors.New("not found")

	// ErrDeliveryTransient marks a notification send that failed for a
	// recoverable reason; the engine retries on the next tick.
	ErrDeliveryTransient = errors.New("transient delivery failure")

	// ErrDeliveryFatal marks a permanently unreachable recipient (the user
	// blocked the bot). Surfaced to the alert channel, never retried.
	ErrDeliveryFatal = errors.New("recipient unreachable")
)
