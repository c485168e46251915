package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultHistoryRetention = 14 * 24 * time.Hour

// Store wraps a SQLite database holding users, tasks, completions, and the
// activity history. All mutations run in their own transaction, and the
// connection pool is capped at one connection, so writers are serialized by
// the database itself rather than by callers remembering to lock files.
type Store struct {
	db        *sql.DB
	retention time.Duration
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "chored.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	// Deleting a user must cascade to its tasks and their completions.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, retention: defaultHistoryRetention}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetHistoryRetention overrides the rolling window after which history
// entries are pruned. Values <= 0 keep the default of 14 days.
func (s *Store) SetHistoryRetention(d time.Duration) {
	if d > 0 {
		s.retention = d
	}
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Users ---

// UpsertUser inserts the user if new. For an existing user a non-empty,
// changed contact address is updated in place; everything else is kept.
func (s *Store) UpsertUser(u User) error {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO users (name, contact_address, created_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET contact_address = excluded.contact_address
		WHERE excluded.contact_address != '' AND excluded.contact_address != users.contact_address`,
		u.Name, u.ContactAddress, createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetUser(name string) (User, error) {
	var u User
	var createdAt string
	err := s.db.QueryRow(`SELECT name, contact_address, created_at FROM users WHERE name = ?`, name).
		Scan(&u.Name, &u.ContactAddress, &createdAt)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return User{}, fmt.Errorf("parsing created_at: %w", err)
	}
	u.CreatedAt = t
	return u, nil
}

func (s *Store) ListUsers() ([]User, error) {
	rows, err := s.db.Query(`SELECT name, contact_address, created_at FROM users ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var createdAt string
		if err := rows.Scan(&u.Name, &u.ContactAddress, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		u.CreatedAt = t
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes a user; their tasks and completions cascade away.
func (s *Store) DeleteUser(name string) error {
	res, err := s.db.Exec(`DELETE FROM users WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Tasks ---

// SaveTask inserts or replaces a task row by id. Completion marks are
// managed separately via AddCompletion/RemoveCompletion and are untouched.
func (s *Store) SaveTask(t Task) error {
	daysJSON, err := encodeDays(t.Days)
	if err != nil {
		return err
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.db.Exec(`
		INSERT INTO tasks (id, owner, title, kind, scheduled_time, due_date, days, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			kind = excluded.kind,
			scheduled_time = excluded.scheduled_time,
			due_date = excluded.due_date,
			days = excluded.days`,
		t.ID, t.Owner, t.Title, t.Kind, t.ScheduledTime,
		nullable(t.DueDate), daysJSON, createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetTask returns the task with the given id owned by owner.
func (s *Store) GetTask(owner, id string) (Task, error) {
	t, err := s.scanTask(`SELECT id, owner, title, kind, scheduled_time, due_date, days, created_at
		FROM tasks WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return Task{}, err
	}
	if err := s.loadCompletions(&t); err != nil {
		return Task{}, err
	}
	return t, nil
}

// FindTask returns the task with the given id regardless of owner.
func (s *Store) FindTask(id string) (Task, error) {
	t, err := s.scanTask(`SELECT id, owner, title, kind, scheduled_time, due_date, days, created_at
		FROM tasks WHERE id = ?`, id)
	if err != nil {
		return Task{}, err
	}
	if err := s.loadCompletions(&t); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *Store) scanTask(query string, args ...any) (Task, error) {
	var t Task
	var dueDate, days sql.NullString
	var createdAt string
	err := s.db.QueryRow(query, args...).Scan(
		&t.ID, &t.Owner, &t.Title, &t.Kind, &t.ScheduledTime, &dueDate, &days, &createdAt,
	)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	return finishTask(t, dueDate, days, createdAt)
}

// ListTasks returns all tasks owned by owner in creation order, with
// completions attached.
func (s *Store) ListTasks(owner string) ([]Task, error) {
	rows, err := s.db.Query(`SELECT id, owner, title, kind, scheduled_time, due_date, days, created_at
		FROM tasks WHERE owner = ? ORDER BY created_at ASC, id ASC`, owner)
	if err != nil {
		return nil, err
	}

	// Collect rows before issuing completion queries: the pool is capped at
	// one connection, so a nested query would block behind the open cursor.
	var tasks []Task
	for rows.Next() {
		var t Task
		var dueDate, days sql.NullString
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Owner, &t.Title, &t.Kind, &t.ScheduledTime, &dueDate, &days, &createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		t, err := finishTask(t, dueDate, days, createdAt)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range tasks {
		if err := s.loadCompletions(&tasks[i]); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// DeleteTask removes a task (and, via cascade, its completions).
func (s *Store) DeleteTask(owner, id string) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Completions ---

// AddCompletion marks day done for the task. Returns false if the mark
// already existed; the (task_id, day) primary key makes doubles impossible.
func (s *Store) AddCompletion(taskID, day string) (bool, error) {
	res, err := s.db.Exec(`INSERT OR IGNORE INTO completions (task_id, day) VALUES (?, ?)`, taskID, day)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveCompletion clears the done mark for day. Returns false if there was
// no mark to remove.
func (s *Store) RemoveCompletion(taskID, day string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM completions WHERE task_id = ? AND day = ?`, taskID, day)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) loadCompletions(t *Task) error {
	rows, err := s.db.Query(`SELECT day FROM completions WHERE task_id = ? ORDER BY day ASC`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return err
		}
		t.Completions = append(t.Completions, day)
	}
	return rows.Err()
}

// --- History ---

// AppendHistory writes one entry and, in the same transaction, prunes
// entries older than the retention window. Pruning is lazy: it only happens
// on writes.
func (s *Store) AppendHistory(e HistoryEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	// Day follows the timestamp's own zone when the caller didn't pick one.
	day := e.Day
	if day == "" {
		day = ts.Format("2006-01-02")
	}
	cutoff := ts.Add(-s.retention)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning history transaction: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM history WHERE timestamp < ?`, cutoff.UTC().Format(time.RFC3339)); err != nil {
		tx.Rollback()
		return fmt.Errorf("pruning history: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO history (task_id, title, status, timestamp, day, actor) VALUES (?, ?, ?, ?, ?, ?)`,
		e.TaskID, e.Title, e.Status, ts.UTC().Format(time.RFC3339), day, e.Actor,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("appending history: %w", err)
	}

	return tx.Commit()
}

// ListHistory returns entries newest first.
func (s *Store) ListHistory(limit, offset int) ([]HistoryEntry, error) {
	rows, err := s.db.Query(`SELECT id, task_id, title, status, timestamp, day, actor
		FROM history ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Title, &e.Status, &ts, &e.Day, &e.Actor); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		e.Timestamp = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HasHistoryEntryOn reports whether an entry with the given status exists
// for the task on the given calendar day (YYYY-MM-DD). Used by the sweep to
// stay idempotent across re-runs. The comparison is against the stored day
// column, not the UTC timestamp, so it holds in any daemon zone.
func (s *Store) HasHistoryEntryOn(taskID, status, day string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM history
		WHERE task_id = ? AND status = ? AND day = ?`,
		taskID, status, day,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// --- helpers ---

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func encodeDays(days []string) (any, error) {
	if len(days) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(days)
	if err != nil {
		return nil, fmt.Errorf("encoding days: %w", err)
	}
	return string(b), nil
}

func finishTask(t Task, dueDate, days sql.NullString, createdAt string) (Task, error) {
	if dueDate.Valid {
		t.DueDate = dueDate.String
	}
	if days.Valid && days.String != "" {
		if err := json.Unmarshal([]byte(days.String), &t.Days); err != nil {
			return Task{}, fmt.Errorf("decoding days for task %s: %w", t.ID, err)
		}
	}
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Task{}, fmt.Errorf("parsing created_at for task %s: %w", t.ID, err)
	}
	t.CreatedAt = ts
	return t, nil
}
