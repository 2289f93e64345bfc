package utils

import (
	"testing"
	"time"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{"user@example.com", "first.last+tag@sub.example.co"}
	invalid := []string{"", "user", "user@", "@example.com", "user@example"}
	for _, email := range valid {
		if !IsValidEmail(email) {
			t.Fatalf("IsValidEmail(%q) expected true", email)
		}
	}
	for _, email := range invalid {
		if IsValidEmail(email) {
			t.Fatalf("IsValidEmail(%q) expected false", email)
		}
	}
}

func TestNormalizePhoneNumber_E164(t *testing.T) {
	got, err := NormalizePhoneNumber("(415) 555-2671", "US")
	if err != nil {
		t.Fatalf("NormalizePhoneNumber error: %v", err)
	}
	if got != "+14155552671" {
		t.Fatalf("expected +14155552671, got %s", got)
	}
	if _, err := NormalizePhoneNumber("12", "US"); err == nil {
		t.Fatalf("expected an error for a too-short number")
	}
}

func TestGetMonthRange_CoversWholeCalendarMonth(t *testing.T) {
	start, end := GetMonthRange(time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC))
	if !start.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected the month to start on Feb 1, got %s", start)
	}
	if !end.Equal(time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("expected the month to end on Feb 28 23:59:59, got %s", end)
	}
}
