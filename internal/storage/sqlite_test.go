package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustUser(t *testing.T, s *Store, name string) {
	t.Helper()
	if err := s.UpsertUser(User{Name: name}); err != nil {
		t.Fatalf("UpsertUser(%q): %v", name, err)
	}
}

func mustTask(t *testing.T, s *Store, task Task) {
	t.Helper()
	if err := s.SaveTask(task); err != nil {
		t.Fatalf("SaveTask(%q): %v", task.ID, err)
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestUpsertUserKeepsExistingContact(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertUser(User{Name: "alice", ContactAddress: "chat:42"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	// Empty contact on re-contact must not wipe the stored one.
	if err := s.UpsertUser(User{Name: "alice"}); err != nil {
		t.Fatalf("UpsertUser (repeat): %v", err)
	}
	u, err := s.GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.ContactAddress != "chat:42" {
		t.Errorf("contact address = %q, want chat:42", u.ContactAddress)
	}

	// A changed non-empty contact is updated in place.
	if err := s.UpsertUser(User{Name: "alice", ContactAddress: "chat:99"}); err != nil {
		t.Fatalf("UpsertUser (update): %v", err)
	}
	u, err = s.GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.ContactAddress != "chat:99" {
		t.Errorf("contact address = %q, want chat:99", u.ContactAddress)
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetUser("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser(nobody) = %v, want ErrNotFound", err)
	}
}

func TestTaskRoundTrip(t *testing.T) {
	s := openTestStore(t)
	mustUser(t, s, "bob")

	task := Task{
		ID:            "t1",
		Owner:         "bob",
		Title:         "Take out trash",
		Kind:          KindRecurring,
		ScheduledTime: "18:00",
		Days:          []string{"Mon", "Thu"},
	}
	mustTask(t, s, task)

	got, err := s.GetTask("bob", "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != task.Title || got.Kind != task.Kind || got.ScheduledTime != task.ScheduledTime {
		t.Errorf("task fields changed in round trip: %+v", got)
	}
	if len(got.Days) != 2 || got.Days[0] != "Mon" || got.Days[1] != "Thu" {
		t.Errorf("days = %v, want [Mon Thu]", got.Days)
	}
	if len(got.Completions) != 0 {
		t.Errorf("new task has completions: %v", got.Completions)
	}
	if got.DueDate != "" {
		t.Errorf("recurring task has due date %q", got.DueDate)
	}
}

func TestSaveTaskReplacesByID(t *testing.T) {
	s := openTestStore(t)
	mustUser(t, s, "bob")
	mustTask(t, s, Task{ID: "t1", Owner: "bob", Title: "Dishes", Kind: KindDaily, ScheduledTime: "20:00"})

	mustTask(t, s, Task{ID: "t1", Owner: "bob", Title: "Dishes + counters", Kind: KindDaily, ScheduledTime: "21:00"})

	tasks, err := s.ListTasks("bob")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	if tasks[0].Title != "Dishes + counters" || tasks[0].ScheduledTime != "21:00" {
		t.Errorf("task not replaced: %+v", tasks[0])
	}
}

func TestCompletionsUniquePerDay(t *testing.T) {
	s := openTestStore(t)
	mustUser(t, s, "bob")
	mustTask(t, s, Task{ID: "t1", Owner: "bob", Title: "Dishes", Kind: KindDaily, ScheduledTime: "23:59"})

	added, err := s.AddCompletion("t1", "2025-06-02")
	if err != nil {
		t.Fatalf("AddCompletion: %v", err)
	}
	if !added {
		t.Error("first AddCompletion returned false")
	}

	added, err = s.AddCompletion("t1", "2025-06-02")
	if err != nil {
		t.Fatalf("AddCompletion (repeat): %v", err)
	}
	if added {
		t.Error("second AddCompletion for same day returned true")
	}

	task, err := s.GetTask("bob", "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if len(task.Completions) != 1 {
		t.Errorf("completions = %v, want exactly one entry", task.Completions)
	}

	removed, err := s.RemoveCompletion("t1", "2025-06-02")
	if err != nil {
		t.Fatalf("RemoveCompletion: %v", err)
	}
	if !removed {
		t.Error("RemoveCompletion returned false for existing mark")
	}
	removed, err = s.RemoveCompletion("t1", "2025-06-02")
	if err != nil {
		t.Fatalf("RemoveCompletion (repeat): %v", err)
	}
	if removed {
		t.Error("RemoveCompletion returned true for missing mark")
	}
}

func TestDeleteUserCascades(t *testing.T) {
	s := openTestStore(t)
	mustUser(t, s, "carol")
	mustTask(t, s, Task{ID: "t1", Owner: "carol", Title: "Water plants", Kind: KindDaily, ScheduledTime: "09:00"})
	if _, err := s.AddCompletion("t1", "2025-06-02"); err != nil {
		t.Fatalf("AddCompletion: %v", err)
	}

	if err := s.DeleteUser("carol"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	if _, err := s.FindTask("t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindTask after user delete = %v, want ErrNotFound", err)
	}
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM completions WHERE task_id = 't1'`).Scan(&count); err != nil {
		t.Fatalf("counting completions: %v", err)
	}
	if count != 0 {
		t.Errorf("%d completion rows survived user delete", count)
	}
}

func TestDeleteTaskNotFound(t *testing.T) {
	s := openTestStore(t)
	mustUser(t, s, "bob")
	if err := s.DeleteTask("bob", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteTask = %v, want ErrNotFound", err)
	}
}

func TestHistorySurvivesTaskDeletion(t *testing.T) {
	s := openTestStore(t)
	mustUser(t, s, "bob")
	mustTask(t, s, Task{ID: "t1", Owner: "bob", Title: "Vacuum", Kind: KindDaily, ScheduledTime: "23:59"})

	if err := s.AppendHistory(HistoryEntry{TaskID: "t1", Title: "Vacuum", Status: StatusCompleted, Actor: "bob"}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if err := s.DeleteTask("bob", "t1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := s.DeleteUser("bob"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	entries, err := s.ListHistory(10, 0)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d history entries, want 1", len(entries))
	}
	if entries[0].Title != "Vacuum" || entries[0].Status != StatusCompleted {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
}

func TestHistoryPrunedOnWrite(t *testing.T) {
	s := openTestStore(t)

	old := HistoryEntry{
		TaskID:    "t1",
		Title:     "Old chore",
		Status:    StatusIncomplete,
		Timestamp: time.Now().Add(-20 * 24 * time.Hour),
		Actor:     "bob",
	}
	if err := s.AppendHistory(old); err != nil {
		t.Fatalf("AppendHistory (old): %v", err)
	}

	// The stale entry is only removed once a later write triggers pruning.
	fresh := HistoryEntry{TaskID: "t2", Title: "Fresh chore", Status: StatusCompleted, Actor: "bob"}
	if err := s.AppendHistory(fresh); err != nil {
		t.Fatalf("AppendHistory (fresh): %v", err)
	}

	entries, err := s.ListHistory(10, 0)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries after prune, want 1", len(entries))
	}
	if entries[0].TaskID != "t2" {
		t.Errorf("surviving entry = %+v, want the fresh one", entries[0])
	}
}

func TestHistoryListedNewestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i, status := range []string{StatusCompleted, StatusIncomplete, StatusDeleted} {
		e := HistoryEntry{TaskID: "t1", Title: "Chore", Status: status, Timestamp: base.Add(time.Duration(i) * time.Minute), Actor: "bob"}
		if err := s.AppendHistory(e); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}

	entries, err := s.ListHistory(2, 0)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (limit)", len(entries))
	}
	if entries[0].Status != StatusDeleted || entries[1].Status != StatusIncomplete {
		t.Errorf("entries not newest-first: %v, %v", entries[0].Status, entries[1].Status)
	}

	rest, err := s.ListHistory(2, 2)
	if err != nil {
		t.Fatalf("ListHistory (offset): %v", err)
	}
	if len(rest) != 1 || rest[0].Status != StatusCompleted {
		t.Errorf("offset page wrong: %+v", rest)
	}
}

func TestHasHistoryEntryOn(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	day := now.Format("2006-01-02")
	if err := s.AppendHistory(HistoryEntry{TaskID: "t1", Title: "Chore", Status: StatusIncomplete, Timestamp: now, Actor: "bob"}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	ok, err := s.HasHistoryEntryOn("t1", StatusIncomplete, day)
	if err != nil {
		t.Fatalf("HasHistoryEntryOn: %v", err)
	}
	if !ok {
		t.Error("expected entry for today")
	}

	ok, err = s.HasHistoryEntryOn("t1", StatusCompleted, day)
	if err != nil {
		t.Fatalf("HasHistoryEntryOn: %v", err)
	}
	if ok {
		t.Error("found completed entry that was never written")
	}

	ok, err = s.HasHistoryEntryOn("t1", StatusIncomplete, "1999-01-01")
	if err != nil {
		t.Fatalf("HasHistoryEntryOn: %v", err)
	}
	if ok {
		t.Error("found entry on a day with no writes")
	}
}

// An entry written early morning east of UTC lands on the previous UTC
// date; day lookups must follow the entry's own calendar day, not the
// normalized timestamp.
func TestHasHistoryEntryOnAheadOfUTC(t *testing.T) {
	s := openTestStore(t)

	ts := time.Date(2025, 6, 2, 7, 0, 0, 0, time.FixedZone("UTC+10", 10*60*60))
	if err := s.AppendHistory(HistoryEntry{TaskID: "t1", Title: "Chore", Status: StatusIncomplete, Timestamp: ts, Actor: "bob"}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	ok, err := s.HasHistoryEntryOn("t1", StatusIncomplete, "2025-06-02")
	if err != nil {
		t.Fatalf("HasHistoryEntryOn: %v", err)
	}
	if !ok {
		t.Error("no entry found for the local day it was written on")
	}

	// The UTC date (June 1st, 21:00) is not the entry's day.
	ok, err = s.HasHistoryEntryOn("t1", StatusIncomplete, "2025-06-01")
	if err != nil {
		t.Fatalf("HasHistoryEntryOn: %v", err)
	}
	if ok {
		t.Error("entry attributed to the UTC date instead of its local day")
	}

	entries, err := s.ListHistory(10, 0)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 1 || entries[0].Day != "2025-06-02" {
		t.Errorf("stored day = %+v, want one entry on 2025-06-02", entries)
	}
}
