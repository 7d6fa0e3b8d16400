// Package export dumps every note and task as one JSON document.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"assistant/internal/model"
	"assistant/internal/storage"
)

// Source is the read surface the export needs. storage.Store satisfies it.
type Source interface {
	ListTasks(ctx context.Context, f storage.TaskFilter) ([]model.Task, error)
	ListNotes(ctx context.Context, limit int) ([]model.Note, error)
}

type Document struct {
	Notes []model.Note `json:"notes"`
	Tasks []model.Task `json:"tasks"`
}

// Collect reads all notes and all tasks, completed ones included.
func Collect(ctx context.Context, src Source) (Document, error) {
	notes, err := src.ListNotes(ctx, 0)
	if err != nil {
		return Document{}, fmt.Errorf("export: list notes: %w", err)
	}
	tasks, err := src.ListTasks(ctx, storage.TaskFilter{IncludeCompleted: true})
	if err != nil {
		return Document{}, fmt.Errorf("export: list tasks: %w", err)
	}
	if notes == nil {
		notes = []model.Note{}
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return Document{Notes: notes, Tasks: tasks}, nil
}

// Write encodes the document to w with two-space indentation.
func Write(ctx context.Context, src Source, w io.Writer) (Document, error) {
	doc, err := Collect(ctx, src)
	if err != nil {
		return Document{}, err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return Document{}, fmt.Errorf("export: encode: %w", err)
	}
	return doc, nil
}
