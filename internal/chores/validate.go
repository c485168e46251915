package chores

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError reports user-correctable bad input. It never indicates a
// fault in stored data.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// weekOrder fixes the canonical ordering of weekday codes.
var weekOrder = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title", "must not be empty")
	}
	return title, nil
}

// validateClock checks an HH:MM 24-hour display time. An empty value falls
// back to the end-of-day default.
func validateClock(clock string) (string, error) {
	if clock == "" {
		return "23:59", nil
	}
	if _, err := time.Parse("15:04", clock); err != nil {
		return "", invalid("time", "%q is not HH:MM 24-hour", clock)
	}
	return clock, nil
}

// validateDueDate checks a YYYY-MM-DD calendar date and rejects dates
// before today. The same rule applies on create and on edit.
func validateDueDate(date, today string) (string, error) {
	if date == "" {
		return "", invalid("date", "one-time tasks require a due date")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", invalid("date", "%q is not YYYY-MM-DD", date)
	}
	if date < today {
		return "", invalid("date", "must be today or in the future")
	}
	return date, nil
}

// validateDays normalizes a weekday set: codes must be from Mon..Sun, the
// set must be non-empty, duplicates collapse, and the result is in week
// order.
func validateDays(days []string) ([]string, error) {
	if len(days) == 0 {
		return nil, invalid("days", "recurring tasks require at least one weekday")
	}
	seen := make(map[string]bool, len(days))
	for _, d := range days {
		ok := false
		for _, w := range weekOrder {
			if d == w {
				ok = true
				break
			}
		}
		if !ok {
			return nil, invalid("days", "%q is not one of %s", d, strings.Join(weekOrder, ", "))
		}
		seen[d] = true
	}
	out := make([]string, 0, len(seen))
	for _, w := range weekOrder {
		if seen[w] {
			out = append(out, w)
		}
	}
	return out, nil
}
