package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"assistant/internal/model"
	logx "assistant/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "db", "assistant.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func ptr[T any](v T) *T { return &v }

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	due := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	created, err := st.CreateTask(ctx, model.Task{
		Title:          "write report",
		Description:    ptr("quarterly"),
		DueDate:        &due,
		Priority:       ptr(2),
		Recurrence:     ptr("weekly"),
		ReminderOffset: ptr(15),
	})
	if err != nil {
		t.Fatalf("CreateTask error: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("CreateTask did not assign an id")
	}
	if created.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set")
	}

	got, err := st.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTask error: %v", err)
	}
	if got.Title != "write report" || *got.Description != "quarterly" || *got.Priority != 2 ||
		*got.Recurrence != "weekly" || *got.ReminderOffset != 15 || !got.DueDate.Equal(due) {
		t.Fatalf("GetTask = %+v", got)
	}
	if got.LastRemindedAt != nil || got.Completed {
		t.Fatalf("fresh task has reminder state: %+v", got)
	}

	at := time.Date(2025, 5, 1, 9, 45, 0, 0, time.UTC)
	if err := st.MarkTaskReminded(ctx, got.ID, at); err != nil {
		t.Fatalf("MarkTaskReminded error: %v", err)
	}

	// A CRUD update must not clobber the dispatcher's column.
	got.Title = "write final report"
	got.Description = nil
	if err := st.UpdateTask(ctx, got); err != nil {
		t.Fatalf("UpdateTask error: %v", err)
	}
	got, _ = st.GetTask(ctx, got.ID)
	if got.Title != "write final report" || got.Description != nil {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.LastRemindedAt == nil || !got.LastRemindedAt.Equal(at) {
		t.Fatalf("LastRemindedAt = %v, want %v", got.LastRemindedAt, at)
	}

	if err := st.SetTaskCompleted(ctx, got.ID, true); err != nil {
		t.Fatalf("SetTaskCompleted error: %v", err)
	}
	open, _ := st.ListTasks(ctx, TaskFilter{})
	if len(open) != 0 {
		t.Fatalf("ListTasks(open) = %d tasks, want 0", len(open))
	}
	all, _ := st.ListTasks(ctx, TaskFilter{IncludeCompleted: true})
	if len(all) != 1 {
		t.Fatalf("ListTasks(all) = %d tasks, want 1", len(all))
	}

	if err := st.DeleteTask(ctx, got.ID); err != nil {
		t.Fatalf("DeleteTask error: %v", err)
	}
	if _, err := st.GetTask(ctx, got.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetTask after delete error = %v, want ErrNotFound", err)
	}
	if err := st.DeleteTask(ctx, got.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second DeleteTask error = %v, want ErrNotFound", err)
	}
	if err := st.MarkTaskReminded(ctx, got.ID, at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkTaskReminded on deleted task error = %v, want ErrNotFound", err)
	}
}

func TestListTasksOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	mk := func(title string, due *time.Time, prio *int) {
		if _, err := st.CreateTask(ctx, model.Task{Title: title, DueDate: due, Priority: prio}); err != nil {
			t.Fatal(err)
		}
	}
	mk("no due", nil, ptr(9))
	mk("later", ptr(base.Add(48*time.Hour)), nil)
	mk("sooner low", ptr(base.Add(time.Hour)), ptr(1))
	mk("sooner high", ptr(base.Add(time.Hour)), ptr(5))
	mk("sub-second", ptr(base.Add(time.Hour+500*time.Millisecond)), nil)

	tasks, err := st.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"sooner high", "sooner low", "sub-second", "later", "no due"}
	if len(tasks) != len(want) {
		t.Fatalf("ListTasks = %d tasks, want %d", len(tasks), len(want))
	}
	for i, w := range want {
		if tasks[i].Title != w {
			t.Fatalf("tasks[%d] = %q, want %q", i, tasks[i].Title, w)
		}
	}
}

func TestNotes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := Open(Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(memory) error: %v", err)
	}
	defer st.Close()

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"first", "second", "third"} {
		if _, err := st.CreateNote(ctx, model.Note{Title: title, Content: "c", CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatal(err)
		}
	}
	notes, err := st.ListNotes(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 2 || notes[0].Title != "third" || notes[1].Title != "second" {
		t.Fatalf("ListNotes(2) = %+v", notes)
	}
	if err := st.DeleteNote(ctx, notes[0].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetNote(ctx, notes[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetNote after delete error = %v, want ErrNotFound", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
