package domain

import (
	"errors"
	"testing"
	"time"
)

// TestParseTimestamp tests the default layout set.
func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		raw      string
		expected time.Time
	}{
		{"2010-06-15T00:00:00Z", time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"2010-06-15T12:30:00+00:00", time.Date(2010, 6, 15, 12, 30, 0, 0, time.UTC)},
		{"2010-06-15 12:30:00", time.Date(2010, 6, 15, 12, 30, 0, 0, time.UTC)},
		{"2010-06-15", time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"06/15/2010", time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"6/15/2010", time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC)},
		{" 2010-06-15 ", time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		result, err := ParseTimestamp(tt.raw)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): unexpected error: %v", tt.raw, err)
			continue
		}
		if !result.Equal(tt.expected) {
			t.Errorf("ParseTimestamp(%q): expected %v, got %v", tt.raw, tt.expected, result)
		}
		if result.Location() != time.UTC {
			t.Errorf("ParseTimestamp(%q): expected UTC, got %v", tt.raw, result.Location())
		}
	}
}

// TestParseTimestamp_Errors verifies malformed values come back as ParseError.
func TestParseTimestamp_Errors(t *testing.T) {
	for _, raw := range []string{"", "June 15 2010", "15/06/2010 25:00", "not a date"} {
		_, err := ParseTimestamp(raw)
		if err == nil {
			t.Errorf("ParseTimestamp(%q): expected error, got nil", raw)
			continue
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("ParseTimestamp(%q): expected *ParseError, got %T", raw, err)
		}
	}
}

// TestParseTimestamp_ExplicitLayout verifies explicit layouts replace the
// default set rather than extending it.
func TestParseTimestamp_ExplicitLayout(t *testing.T) {
	result, err := ParseTimestamp("15.06.2010", "02.01.2006")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, result)
	}

	if _, err := ParseTimestamp("2010-06-15", "02.01.2006"); err == nil {
		t.Errorf("expected error when layout excludes ISO dates, got nil")
	}
}
