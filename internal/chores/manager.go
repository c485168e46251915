package chores

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kessl/chored/internal/storage"
)

// Filter selects which of a user's tasks a listing returns.
type Filter string

const (
	FilterAll        Filter = "all"
	FilterActionable Filter = "actionable"
	FilterDueToday   Filter = "dueToday"
)

// ParseFilter maps a caller-supplied filter string to a Filter. Empty means
// all.
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterActionable:
		return FilterActionable, nil
	case FilterDueToday:
		return FilterDueToday, nil
	}
	return "", invalid("filter", "%q is not one of all, actionable, dueToday", s)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// TaskEdits carries optional field changes for EditTask. Zero values leave
// the stored field untouched; fields that don't match the task's kind are
// ignored rather than rejected.
type TaskEdits struct {
	Title         string
	ScheduledTime string
	DueDate       string
	Days          []string
}

// Manager orchestrates all task lifecycle operations against the store.
//
// A single mutex serializes every mutation end to end (read, decide, write
// task and history), so two household members acting at once cannot lose
// each other's updates. The store's own transactions cover the individual
// writes; the mutex covers the read-modify-write span.
type Manager struct {
	store  *storage.Store
	clock  Clock
	logger *slog.Logger

	mu sync.Mutex
}

// NewManager creates a Manager using wall-clock time.
func NewManager(store *storage.Store) *Manager {
	return NewManagerWithClock(store, realClock{})
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store *storage.Store, clock Clock) *Manager {
	return &Manager{
		store:  store,
		clock:  clock,
		logger: slog.Default(),
	}
}

// civil splits an instant into the calendar day and weekday code the due
// evaluator works with.
func civil(now time.Time) (day, weekday string) {
	return now.Format("2006-01-02"), now.Weekday().String()[:3]
}

// --- Users ---

// AddUser registers a household member, or refreshes their contact address
// if they already exist and the address changed.
func (m *Manager) AddUser(name, contactAddress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		return invalid("user", "name must not be empty")
	}
	return m.store.UpsertUser(storage.User{
		Name:           name,
		ContactAddress: contactAddress,
		CreatedAt:      m.clock.Now(),
	})
}

// DeleteUser removes a member and all their tasks. History stays.
func (m *Manager) DeleteUser(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.DeleteUser(name)
}

func (m *Manager) ListUsers() ([]storage.User, error) {
	return m.store.ListUsers()
}

// ContactAddress returns the stored contact address for a member; empty if
// they never supplied one.
func (m *Manager) ContactAddress(name string) (string, error) {
	u, err := m.store.GetUser(name)
	if err != nil {
		return "", err
	}
	return u.ContactAddress, nil
}

// --- Task lifecycle ---

// CreateTask validates and persists a new task for owner, returning it with
// its generated id and empty completion set.
func (m *Manager) CreateTask(owner, title, kind, scheduledTime, dueDate string, days []string) (storage.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.store.GetUser(owner); err != nil {
		return storage.Task{}, fmt.Errorf("looking up owner %q: %w", owner, err)
	}

	title, err := validateTitle(title)
	if err != nil {
		return storage.Task{}, err
	}
	if !KnownKind(kind) {
		return storage.Task{}, invalid("kind", "%q is not one of one-time, recurring, daily", kind)
	}
	scheduledTime, err = validateClock(scheduledTime)
	if err != nil {
		return storage.Task{}, err
	}

	now := m.clock.Now()
	today, _ := civil(now)

	task := storage.Task{
		ID:            uuid.New().String(),
		Owner:         owner,
		Title:         title,
		Kind:          kind,
		ScheduledTime: scheduledTime,
		CreatedAt:     now,
	}

	switch kind {
	case storage.KindOneTime:
		task.DueDate, err = validateDueDate(dueDate, today)
		if err != nil {
			return storage.Task{}, err
		}
	case storage.KindRecurring:
		task.Days, err = validateDays(days)
		if err != nil {
			return storage.Task{}, err
		}
	}

	if err := m.store.SaveTask(task); err != nil {
		return storage.Task{}, fmt.Errorf("saving task: %w", err)
	}
	return task, nil
}

// EditTask applies the supplied edits to an existing task. Edits that don't
// fit the task's kind (days on a one-time task, a due date on a recurring
// one) are silently skipped; validation failures leave the task unchanged.
func (m *Manager) EditTask(owner, taskID string, edits TaskEdits) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.store.GetTask(owner, taskID)
	if err != nil {
		return err
	}

	if edits.Title != "" {
		task.Title, err = validateTitle(edits.Title)
		if err != nil {
			return err
		}
	}
	if edits.ScheduledTime != "" {
		task.ScheduledTime, err = validateClock(edits.ScheduledTime)
		if err != nil {
			return err
		}
	}
	today, _ := civil(m.clock.Now())
	if edits.DueDate != "" && task.Kind == storage.KindOneTime {
		task.DueDate, err = validateDueDate(edits.DueDate, today)
		if err != nil {
			return err
		}
	}
	if len(edits.Days) > 0 && task.Kind == storage.KindRecurring {
		task.Days, err = validateDays(edits.Days)
		if err != nil {
			return err
		}
	}

	return m.store.SaveTask(task)
}

// ToggleCompletion flips today's completion mark for the task and returns
// the resulting status, "completed" or "incomplete". Every call writes one
// history entry attributed to actor (any household member may act on
// another's task; an empty actor defaults to the owner).
//
// Toggle is deliberately not idempotent: two calls flip twice. Use
// CompleteTask for the set-once behavior.
func (m *Manager) ToggleCompletion(owner, taskID, actor string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.store.GetTask(owner, taskID)
	if err != nil {
		return "", err
	}
	if actor == "" {
		actor = owner
	}

	now := m.clock.Now()
	today, _ := civil(now)

	var status string
	if completedOn(task.Completions, today) {
		if _, err := m.store.RemoveCompletion(taskID, today); err != nil {
			return "", fmt.Errorf("removing completion: %w", err)
		}
		status = storage.StatusIncomplete
	} else {
		if _, err := m.store.AddCompletion(taskID, today); err != nil {
			return "", fmt.Errorf("adding completion: %w", err)
		}
		status = storage.StatusCompleted
	}

	if err := m.appendHistory(task, status, actor, now); err != nil {
		return "", err
	}
	return status, nil
}

// CompleteTask marks today done unless it already is. Unlike
// ToggleCompletion this is idempotent: a repeat call is a no-op and writes
// no history.
func (m *Manager) CompleteTask(owner, taskID, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.store.GetTask(owner, taskID)
	if err != nil {
		return err
	}
	if actor == "" {
		actor = owner
	}

	now := m.clock.Now()
	today, _ := civil(now)

	added, err := m.store.AddCompletion(taskID, today)
	if err != nil {
		return fmt.Errorf("adding completion: %w", err)
	}
	if !added {
		return nil
	}
	return m.appendHistory(task, storage.StatusCompleted, actor, now)
}

// DeleteTask removes the task and records a "deleted" history entry
// carrying the task's last known title.
func (m *Manager) DeleteTask(owner, taskID, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.store.GetTask(owner, taskID)
	if err != nil {
		return err
	}
	if actor == "" {
		actor = owner
	}

	if err := m.store.DeleteTask(owner, taskID); err != nil {
		return err
	}
	return m.appendHistory(task, storage.StatusDeleted, actor, m.clock.Now())
}

// appendHistory stamps the entry with the same calendar day the due
// evaluation used, so day-scoped lookups agree with the sweep regardless
// of the daemon's zone.
func (m *Manager) appendHistory(task storage.Task, status, actor string, now time.Time) error {
	day, _ := civil(now)
	err := m.store.AppendHistory(storage.HistoryEntry{
		TaskID:    task.ID,
		Title:     task.Title,
		Status:    status,
		Timestamp: now,
		Day:       day,
		Actor:     actor,
	})
	if err != nil {
		return fmt.Errorf("logging history: %w", err)
	}
	return nil
}

// --- Listings ---

// UserTasks returns owner's tasks through the given filter. Tasks with a
// malformed kind are logged as integrity faults and treated as inert: they
// still show up under FilterAll but never as due or actionable.
func (m *Manager) UserTasks(owner string, filter Filter) ([]storage.Task, error) {
	if _, err := m.store.GetUser(owner); err != nil {
		return nil, fmt.Errorf("looking up user %q: %w", owner, err)
	}
	tasks, err := m.store.ListTasks(owner)
	if err != nil {
		return nil, err
	}

	today, weekday := civil(m.clock.Now())

	var out []storage.Task
	for _, t := range tasks {
		if !KnownKind(t.Kind) {
			m.warnIntegrity(t)
			if filter == FilterAll {
				out = append(out, t)
			}
			continue
		}
		switch filter {
		case FilterActionable:
			if NeedsAction(t, today, weekday) {
				out = append(out, t)
			}
		case FilterDueToday:
			if IsDueToday(t, today, weekday) {
				out = append(out, t)
			}
		default:
			out = append(out, t)
		}
	}
	return out, nil
}

// HouseholdTasks returns actionable tasks of every member except exclude —
// the "what can I nudge someone about" view.
func (m *Manager) HouseholdTasks(exclude string) ([]storage.Task, error) {
	users, err := m.store.ListUsers()
	if err != nil {
		return nil, err
	}

	today, weekday := civil(m.clock.Now())

	var out []storage.Task
	for _, u := range users {
		if u.Name == exclude {
			continue
		}
		tasks, err := m.store.ListTasks(u.Name)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			if !KnownKind(t.Kind) {
				m.warnIntegrity(t)
				continue
			}
			if NeedsAction(t, today, weekday) {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// TaskByID looks a task up across all owners.
func (m *Manager) TaskByID(id string) (storage.Task, error) {
	return m.store.FindTask(id)
}

// History returns recent history entries, newest first. Limit defaults to
// 50 and is capped at 500.
func (m *Manager) History(limit, offset int) ([]storage.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return m.store.ListHistory(limit, offset)
}

// --- Sweep ---

// SweepIncomplete records an "incomplete" history entry for every task that
// is due as of now and not completed for that day, at most once per task
// per day. Re-running on the same day appends nothing new, so the daily
// sweep is safe to retry. Returns the number of entries written.
func (m *Manager) SweepIncomplete(now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, err := m.store.ListUsers()
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}

	today, weekday := civil(now)
	logged := 0

	for _, u := range users {
		tasks, err := m.store.ListTasks(u.Name)
		if err != nil {
			return logged, fmt.Errorf("listing tasks for %q: %w", u.Name, err)
		}
		for _, t := range tasks {
			if !KnownKind(t.Kind) {
				m.warnIntegrity(t)
				continue
			}
			if !IsDueToday(t, today, weekday) || completedOn(t.Completions, today) {
				continue
			}
			seen, err := m.store.HasHistoryEntryOn(t.ID, storage.StatusIncomplete, today)
			if err != nil {
				return logged, fmt.Errorf("checking history for task %s: %w", t.ID, err)
			}
			if seen {
				continue
			}
			if err := m.appendHistory(t, storage.StatusIncomplete, u.Name, now); err != nil {
				return logged, err
			}
			logged++
		}
	}
	return logged, nil
}

func (m *Manager) warnIntegrity(t storage.Task) {
	m.logger.Warn("stored task has unknown kind, treating as inert",
		"task_id", t.ID, "owner", t.Owner, "kind", t.Kind)
}
