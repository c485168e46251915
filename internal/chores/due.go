package chores

import (
	"github.com/kessl/chored/internal/storage"
)

// The two predicates below answer different questions and must not be
// conflated: IsDueToday drives the all-tasks overview (overdue or already
// resolved items still show up for context), NeedsAction drives the
// reminder/nudge list (only items still waiting on someone).
//
// Both take the calendar day as YYYY-MM-DD and the weekday as a Mon..Sun
// code; ISO date strings compare correctly as plain strings.

// IsDueToday reports whether the task's schedule applies to the given day,
// regardless of completion state.
//
// A one-time task is due on its due date, and stays due past it until some
// completion lands on or after the due date. A completion at >= dueDate
// resolves it even when marked days late.
func IsDueToday(t storage.Task, today, weekday string) bool {
	switch t.Kind {
	case storage.KindDaily:
		return true
	case storage.KindRecurring:
		return containsDay(t.Days, weekday)
	case storage.KindOneTime:
		if t.DueDate == "" {
			return false
		}
		if t.DueDate == today {
			return true
		}
		if t.DueDate > today {
			return false
		}
		return !resolvedSince(t.Completions, t.DueDate)
	}
	return false
}

// NeedsAction reports whether the task should appear on the actionable
// list for the given day.
//
// Daily and recurring tasks are actionable until marked done for that
// specific day. A one-time task is actionable as long as it has never been
// completed at all; removing its only completion makes it actionable
// again. Unknown kinds are never actionable; callers surface those as
// integrity warnings.
func NeedsAction(t storage.Task, today, weekday string) bool {
	switch t.Kind {
	case storage.KindDaily:
		return !completedOn(t.Completions, today)
	case storage.KindRecurring:
		return containsDay(t.Days, weekday) && !completedOn(t.Completions, today)
	case storage.KindOneTime:
		return len(t.Completions) == 0
	}
	return false
}

// KnownKind reports whether kind is one of the supported task kinds.
func KnownKind(kind string) bool {
	switch kind {
	case storage.KindOneTime, storage.KindRecurring, storage.KindDaily:
		return true
	}
	return false
}

func containsDay(days []string, weekday string) bool {
	for _, d := range days {
		if d == weekday {
			return true
		}
	}
	return false
}

func completedOn(completions []string, day string) bool {
	for _, c := range completions {
		if c == day {
			return true
		}
	}
	return false
}

func resolvedSince(completions []string, dueDate string) bool {
	for _, c := range completions {
		if c >= dueDate {
			return true
		}
	}
	return false
}
