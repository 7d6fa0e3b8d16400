package storage

import (
	"context"
	"errors"
	"time"

	"assistant/internal/model"
)

var (
	ErrNotFound = errors.New("storage: record not found")
	ErrClosed   = errors.New("storage: closed")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "memory": in-process SQLite database, lost on exit
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	IncludeCompleted bool
}

// Store is the persistence API used by the reminder core, the HTTP surface
// and the CLI.
type Store interface {
	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	GetTask(ctx context.Context, id int64) (model.Task, error)
	// UpdateTask writes the user editable fields. last_reminded_at is
	// left alone.
	UpdateTask(ctx context.Context, t model.Task) error
	DeleteTask(ctx context.Context, id int64) error
	// ListTasks orders by completed, due date (nulls last), priority desc.
	ListTasks(ctx context.Context, f TaskFilter) ([]model.Task, error)
	SetTaskCompleted(ctx context.Context, id int64, completed bool) error
	// MarkTaskReminded writes only last_reminded_at.
	MarkTaskReminded(ctx context.Context, id int64, at time.Time) error

	CreateNote(ctx context.Context, n model.Note) (model.Note, error)
	GetNote(ctx context.Context, id int64) (model.Note, error)
	DeleteNote(ctx context.Context, id int64) error
	// ListNotes returns newest first. limit <= 0 means all.
	ListNotes(ctx context.Context, limit int) ([]model.Note, error)

	Close() error
}
