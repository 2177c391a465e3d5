package domain

import (
	"errors"
	"testing"
)

func TestNormalizeTimeInput_ForgivingFormats(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"08:30", "08:30"},
		{"8:30", "08:30"},
		{"08.30", "08:30"},
		{"0830", "08:30"},
		{"830", "08:30"},
		{"8", "08:00"},
		{"23:59", "23:59"},
		{" 14 : 00 ", "14:00"},
	}
	for _, c := range cases {
		got, err := NormalizeTimeInput(c.in)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("%q: want %q, got %q", c.in, c.want, got)
		}
	}
}

func TestNormalizeTimeInput_Rejects(t *testing.T) {
	for _, in := range []string{"", "25:00", "12:60", "abc", "8:3a", "12345"} {
		if _, err := NormalizeTimeInput(in); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("%q: want ErrInvalidTime, got %v", in, err)
		}
	}
}

func TestValidateTZ(t *testing.T) {
	if _, err := ValidateTZ("Europe/Moscow"); err != nil {
		t.Fatalf("valid tz rejected: %v", err)
	}
	if _, err := ValidateTZ("Mars/Olympus"); err == nil {
		t.Fatal("invalid tz accepted")
	}
}

func TestUserRemindBefore_Clamped(t *testing.T) {
	for _, c := range []struct {
		minutes int
		wantMin int
	}{
		{0, 1},
		{-5, 1},
		{10, 10},
		{500, 180},
	} {
		u := &User{RemindBeforeMin: c.minutes}
		if got := int(u.RemindBefore().Minutes()); got != c.wantMin {
			t.Fatalf("minutes=%d: want %d, got %d", c.minutes, c.wantMin, got)
		}
	}
}
