package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"assistant/internal/model"
	logx "assistant/pkg/logx"
)

//go:embed migrations.sql
var migrations string

// timeLayout is fixed width so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const taskColumns = `id, title, description, due_date, priority, recurrence, reminder_offset, created_at, completed, last_reminded_at`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 2 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", p, err)
		}
	}

	st := &sqliteStore{db: db, log: log}
	if _, err := db.Exec(migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(title, description, due_date, priority, recurrence, reminder_offset, created_at, completed, last_reminded_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		t.Title, nullString(t.Description), nullTime(t.DueDate), nullInt(t.Priority), nullString(t.Recurrence),
		nullInt(t.ReminderOffset), formatTime(t.CreatedAt), boolInt(t.Completed), nullTime(t.LastRemindedAt),
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Task{}, err
	}
	return s.GetTask(ctx, id)
}

func (s *sqliteStore) GetTask(ctx context.Context, id int64) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) UpdateTask(ctx context.Context, t model.Task) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, due_date = ?, priority = ?, recurrence = ?, reminder_offset = ?, completed = ?
		 WHERE id = ?`,
		t.Title, nullString(t.Description), nullTime(t.DueDate), nullInt(t.Priority), nullString(t.Recurrence),
		nullInt(t.ReminderOffset), boolInt(t.Completed), t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	return checkRowsAffected(res)
}

func (s *sqliteStore) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return checkRowsAffected(res)
}

func (s *sqliteStore) ListTasks(ctx context.Context, f TaskFilter) ([]model.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks`
	if !f.IncludeCompleted {
		q += ` WHERE completed = 0`
	}
	q += ` ORDER BY completed ASC, due_date IS NULL, due_date ASC, priority DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]model.Task, 0, 16)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetTaskCompleted(ctx context.Context, id int64, completed bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET completed = ? WHERE id = ?`, boolInt(completed), id)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	return checkRowsAffected(res)
}

func (s *sqliteStore) MarkTaskReminded(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET last_reminded_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark task %d reminded: %w", id, err)
	}
	return checkRowsAffected(res)
}

func (s *sqliteStore) CreateNote(ctx context.Context, n model.Note) (model.Note, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notes(title, content, created_at) VALUES(?,?,?)`,
		n.Title, n.Content, formatTime(n.CreatedAt),
	)
	if err != nil {
		return model.Note{}, fmt.Errorf("insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Note{}, err
	}
	return s.GetNote(ctx, id)
}

func (s *sqliteStore) GetNote(ctx context.Context, id int64) (model.Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, content, created_at FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Note{}, ErrNotFound
	}
	return n, err
}

func (s *sqliteStore) DeleteNote(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete note %d: %w", id, err)
	}
	return checkRowsAffected(res)
}

func (s *sqliteStore) ListNotes(ctx context.Context, limit int) ([]model.Note, error) {
	q := `SELECT id, title, content, created_at FROM notes ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	out := make([]model.Note, 0, 16)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (model.Task, error) {
	var (
		t                       model.Task
		desc, due, rec, created sql.NullString
		lastReminded            sql.NullString
		prio, offset            sql.NullInt64
		completed               int64
	)
	if err := sc.Scan(&t.ID, &t.Title, &desc, &due, &prio, &rec, &offset, &created, &completed, &lastReminded); err != nil {
		return model.Task{}, err
	}
	var err error
	if t.DueDate, err = parseNullTime(due); err != nil {
		return model.Task{}, err
	}
	if t.LastRemindedAt, err = parseNullTime(lastReminded); err != nil {
		return model.Task{}, err
	}
	if c, err := parseNullTime(created); err != nil {
		return model.Task{}, err
	} else if c != nil {
		t.CreatedAt = *c
	}
	if desc.Valid {
		t.Description = &desc.String
	}
	if rec.Valid {
		t.Recurrence = &rec.String
	}
	if prio.Valid {
		v := int(prio.Int64)
		t.Priority = &v
	}
	if offset.Valid {
		v := int(offset.Int64)
		t.ReminderOffset = &v
	}
	t.Completed = completed != 0
	return t, nil
}

func scanNote(sc scanner) (model.Note, error) {
	var (
		n       model.Note
		created string
	)
	if err := sc.Scan(&n.ID, &n.Title, &n.Content, &created); err != nil {
		return model.Note{}, err
	}
	c, err := time.Parse(timeLayout, created)
	if err != nil {
		return model.Note{}, fmt.Errorf("note %d created_at: %w", n.ID, err)
	}
	n.CreatedAt = c
	return n, nil
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse time %q: %w", v.String, err)
	}
	return &t, nil
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
