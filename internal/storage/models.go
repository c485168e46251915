package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Task kinds.
const (
	KindOneTime   = "one-time"
	KindRecurring = "recurring"
	KindDaily     = "daily"
)

// History statuses.
const (
	StatusCompleted  = "completed"
	StatusIncomplete = "incomplete"
	StatusDeleted    = "deleted"
)

// User is a household member. Name doubles as the identifier.
type User struct {
	Name           string
	ContactAddress string // chat/delivery address; empty until first contact
	CreatedAt      time.Time
}

// Task is a chore owned by exactly one user.
//
// DueDate is set only for one-time tasks, Days only for recurring ones.
// Completions holds the calendar days (YYYY-MM-DD) the task was marked
// done; each day appears at most once.
type Task struct {
	ID            string
	Owner         string
	Title         string
	Kind          string
	ScheduledTime string   // HH:MM display hint, never gates due logic
	DueDate       string   // YYYY-MM-DD, one-time only
	Days          []string // weekday codes Mon..Sun, recurring only
	Completions   []string // YYYY-MM-DD, ascending
	CreatedAt     time.Time
}

// HistoryEntry records a completion, un-completion, sweep miss, or
// deletion. Entries outlive the task and user they reference.
//
// Day is the calendar day (YYYY-MM-DD) the entry belongs to, in the zone
// the action happened in. Timestamp is normalized to UTC on write, so
// its date part is not a substitute for Day.
type HistoryEntry struct {
	ID        int64
	TaskID    string
	Title     string // snapshot at write time
	Status    string
	Timestamp time.Time
	Day       string
	Actor     string
}
