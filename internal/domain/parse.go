package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidTime = errors.New("invalid time of day")

// ParseHHMM parses strict "HH:MM" into hour and minute.
func ParseHHMM(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return h, m, nil
}

// NormalizeTimeInput accepts the forgiving formats users type for a dose time
// ("8:30", "08.30", "0830", "830", "8") and returns canonical "HH:MM".
func NormalizeTimeInput(raw string) (string, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	clean = strings.ReplaceAll(clean, ".", ":")
	if !strings.Contains(clean, ":") && isAllDigits(clean) {
		switch len(clean) {
		case 4:
			clean = clean[:2] + ":" + clean[2:]
		case 3:
			clean = "0" + clean[:1] + ":" + clean[1:]
		case 1, 2:
			clean = clean + ":00"
		}
	}
	h, m, err := ParseHHMM(clean)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// ValidateTZ checks that tz is a valid IANA location and returns its canonical
// name.
func ValidateTZ(tz string) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", err
	}
	return loc.String(), nil
}

// LocalClock formats t as HH:MM in loc.
func LocalClock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}

// LocalStamp formats t as "DD.MM HH:MM" in loc; "-" for nil.
func LocalStamp(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format("02.01 15:04")
}
