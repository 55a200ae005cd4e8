package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deskmail/deskmail/internal/mail"
)

// Store provides database operations for the locally kept task list,
// calendar and tool-call audit log.
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store with the given database path
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs database migrations
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			due_date DATETIME,
			complete INTEGER NOT NULL DEFAULT 0,
			reminder_at DATETIME,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_subject ON tasks(subject)`,

		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			start_at DATETIME NOT NULL,
			end_at DATETIME NOT NULL,
			location TEXT,
			all_day INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_start ON appointments(start_at)`,

		`CREATE TABLE IF NOT EXISTS tool_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			arguments TEXT,
			result TEXT,
			error TEXT,
			duration_ms INTEGER,
			called_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// SaveTask inserts or replaces a task
func (s *Store) SaveTask(ctx context.Context, task *mail.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tasks (id, subject, due_date, complete, reminder_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, task.ID, task.Subject, utcPtr(task.DueDate), task.Complete, utcPtr(task.ReminderAt), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID. It returns nil when no task matches.
func (s *Store) GetTask(ctx context.Context, id string) (*mail.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject, due_date, complete, reminder_at FROM tasks WHERE id = ?
	`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks matching the filter, oldest due date first
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]*mail.Task, error) {
	var conditions []string
	var args []interface{}

	if filter.Subject != nil {
		conditions = append(conditions, "subject = ?")
		args = append(args, *filter.Subject)
	}
	if filter.IncompleteOnly {
		conditions = append(conditions, "complete = 0")
	}

	query := `SELECT id, subject, due_date, complete, reminder_at FROM tasks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*mail.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (*mail.Task, error) {
	var task mail.Task
	var due, reminder sql.NullTime
	if err := row.Scan(&task.ID, &task.Subject, &due, &task.Complete, &reminder); err != nil {
		return nil, err
	}
	if due.Valid {
		task.DueDate = &due.Time
	}
	if reminder.Valid {
		task.ReminderAt = &reminder.Time
		task.ReminderSet = true
	}
	return &task, nil
}

// CompleteTask marks a task complete. It reports whether a row changed.
func (s *Store) CompleteTask(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET complete = 1 WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to complete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// SaveAppointment inserts or replaces a calendar entry
func (s *Store) SaveAppointment(ctx context.Context, appt *mail.Appointment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO appointments (id, subject, start_at, end_at, location, all_day)
		VALUES (?, ?, ?, ?, ?, ?)
	`, appt.ID, appt.Subject, appt.Start.UTC(), appt.End.UTC(), appt.Location, appt.AllDay)
	if err != nil {
		return fmt.Errorf("failed to save appointment: %w", err)
	}
	return nil
}

// GetAppointment retrieves a calendar entry by ID. It returns nil when none matches.
func (s *Store) GetAppointment(ctx context.Context, id string) (*mail.Appointment, error) {
	var a mail.Appointment
	var location sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, subject, start_at, end_at, location, all_day FROM appointments WHERE id = ?
	`, id).Scan(&a.ID, &a.Subject, &a.Start, &a.End, &location, &a.AllDay)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	a.Location = location.String
	return &a, nil
}

// ListAppointments returns every calendar entry ordered by start time
func (s *Store) ListAppointments(ctx context.Context) ([]*mail.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, start_at, end_at, location, all_day
		FROM appointments ORDER BY start_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	var appts []*mail.Appointment
	for rows.Next() {
		var a mail.Appointment
		var location sql.NullString
		if err := rows.Scan(&a.ID, &a.Subject, &a.Start, &a.End, &location, &a.AllDay); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		a.Location = location.String
		appts = append(appts, &a)
	}
	return appts, rows.Err()
}

// SaveToolCall stores a tool call record
func (s *Store) SaveToolCall(ctx context.Context, call *ToolCall) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_calls (session_id, tool_name, arguments, result, error, duration_ms, called_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, call.SessionID, call.ToolName, string(call.Arguments), call.Result, call.Error, call.Duration, call.CalledAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save tool call: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	call.ID = id

	return nil
}

// GetToolCalls returns all tool calls of a session
func (s *Store) GetToolCalls(ctx context.Context, sessionID string) ([]*ToolCall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, tool_name, arguments, result, error, duration_ms, called_at
		FROM tool_calls WHERE session_id = ? ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tool calls: %w", err)
	}
	defer rows.Close()

	var calls []*ToolCall
	for rows.Next() {
		var call ToolCall
		var args, result, errText sql.NullString
		if err := rows.Scan(
			&call.ID, &call.SessionID, &call.ToolName, &args, &result,
			&errText, &call.Duration, &call.CalledAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		if args.Valid {
			call.Arguments = json.RawMessage(args.String)
		}
		call.Result = result.String
		call.Error = errText.String
		calls = append(calls, &call)
	}

	return calls, rows.Err()
}

// GetStats returns tool call statistics
func (s *Store) GetStats(ctx context.Context) (*ToolCallStats, error) {
	var stats ToolCallStats

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tool_calls`).Scan(&stats.TotalCalls)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tool_calls WHERE error != ''`).Scan(&stats.FailedCalls)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

func utcPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
