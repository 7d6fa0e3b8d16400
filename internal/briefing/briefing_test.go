package briefing

import (
	"context"
	"errors"
	"testing"
	"time"

	"assistant/internal/model"
	"assistant/internal/storage"
)

type fakeSource struct {
	tasks    []model.Task
	notes    []model.Note
	err      error
	gotLimit int
}

func (f *fakeSource) ListTasks(ctx context.Context, _ storage.TaskFilter) ([]model.Task, error) {
	return f.tasks, f.err
}

func (f *fakeSource) ListNotes(ctx context.Context, limit int) ([]model.Note, error) {
	f.gotLimit = limit
	return f.notes, nil
}

func ptr[T any](v T) *T { return &v }

func task(id int64, due *time.Time, prio *int) model.Task {
	return model.Task{ID: id, Title: "t", DueDate: due, Priority: prio}
}

func ids(ts []model.Task) []int64 {
	out := make([]int64, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuildWindows(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)
	day := func(d, h int) *time.Time {
		v := time.Date(2025, 3, d, h, 0, 0, 0, time.UTC)
		return &v
	}
	done := task(9, day(10, 12), ptr(1))
	done.Completed = true

	src := &fakeSource{
		tasks: []model.Task{
			task(1, day(9, 23), nil),    // overdue
			task(2, day(10, 0), ptr(3)), // today, start inclusive
			task(3, day(10, 23), nil),   // today
			task(4, day(14, 8), ptr(1)), // upcoming
			task(5, day(11, 0), ptr(2)), // upcoming, end of today inclusive
			task(6, day(18, 0), ptr(1)), // beyond 7 days
			task(7, nil, ptr(1)),        // no due date
			done,
		},
		notes: []model.Note{{ID: 1, Title: "n"}},
	}

	b, err := Build(context.Background(), src, now, Config{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !b.Timestamp.Equal(now) {
		t.Fatalf("Timestamp = %v, want %v", b.Timestamp, now)
	}
	if got, want := ids(b.Overdue), []int64{1}; !equalIDs(got, want) {
		t.Fatalf("Overdue = %v, want %v", got, want)
	}
	if got, want := ids(b.DueToday), []int64{2, 3}; !equalIDs(got, want) {
		t.Fatalf("DueToday = %v, want %v", got, want)
	}
	if got, want := ids(b.Upcoming), []int64{5, 4}; !equalIDs(got, want) {
		t.Fatalf("Upcoming = %v, want %v", got, want)
	}
	if got, want := ids(b.Priorities), []int64{4, 5, 2}; !equalIDs(got, want) {
		t.Fatalf("Priorities = %v, want %v", got, want)
	}
	if src.gotLimit != 5 {
		t.Fatalf("notes limit = %d, want 5", src.gotLimit)
	}
	if len(b.LatestNotes) != 1 {
		t.Fatalf("LatestNotes = %d, want 1", len(b.LatestNotes))
	}
}

func TestBuildUpcomingDaysAndPriorityCap(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	var tasks []model.Task
	for i := 1; i <= 7; i++ {
		due := now.Add(time.Duration(i) * time.Hour)
		tasks = append(tasks, task(int64(i), &due, ptr(10-i)))
	}
	far := time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)
	tasks = append(tasks, task(99, &far, ptr(0)))

	b, err := Build(context.Background(), &fakeSource{tasks: tasks}, now, Config{UpcomingDays: 2})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(b.Upcoming) != 0 {
		t.Fatalf("Upcoming = %v, want empty with a 2 day window", ids(b.Upcoming))
	}
	if got, want := ids(b.Priorities), []int64{7, 6, 5, 4, 3}; !equalIDs(got, want) {
		t.Fatalf("Priorities = %v, want %v", got, want)
	}
	if b.LatestNotes == nil || b.Overdue == nil {
		t.Fatal("empty sections should encode as [] not null")
	}
}

func TestBuildError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	_, err := Build(context.Background(), &fakeSource{err: boom}, time.Now(), Config{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}
