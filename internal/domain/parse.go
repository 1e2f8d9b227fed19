package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTimeLayouts are tried in order when no explicit layout is supplied.
// Layouts without a zone are interpreted as UTC.
var DefaultTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
}

// ParseError reports a malformed value in a single record. Loaders count
// these and skip the record; they never abort a batch.
type ParseError struct {
	Field string
	Value string
	Line  int
	Err   error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: bad %s value %q: %v", e.Line, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("bad %s value %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseTimestamp parses a timestamp against the given layouts, or against
// DefaultTimeLayouts when none are supplied. The result is always UTC.
func ParseTimestamp(raw string, layouts ...string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &ParseError{Field: "time", Value: raw, Err: fmt.Errorf("empty timestamp")}
	}
	if len(layouts) == 0 {
		layouts = DefaultTimeLayouts
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ParseError{Field: "time", Value: s, Err: fmt.Errorf("no layout matched (tried %d)", len(layouts))}
}
