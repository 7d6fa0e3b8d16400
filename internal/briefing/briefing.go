// Package briefing builds the daily overview: what is due today, what is
// late, what is coming up, and the latest notes.
package briefing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"assistant/internal/model"
	"assistant/internal/storage"
)

const (
	latestNotes   = 5
	maxPriorities = 5

	DefaultUpcomingDays = 7
)

// Source is the read surface the briefing needs. storage.Store satisfies it.
type Source interface {
	ListTasks(ctx context.Context, f storage.TaskFilter) ([]model.Task, error)
	ListNotes(ctx context.Context, limit int) ([]model.Note, error)
}

type Config struct {
	// UpcomingDays is the width of the window after today. <= 0 means 7.
	UpcomingDays int
}

type Briefing struct {
	Timestamp   time.Time    `json:"timestamp"`
	DueToday    []model.Task `json:"due_today"`
	Overdue     []model.Task `json:"overdue"`
	Upcoming    []model.Task `json:"upcoming"`
	LatestNotes []model.Note `json:"latest_notes"`
	Priorities  []model.Task `json:"priorities"`
}

// Build computes the briefing for the UTC day containing now. Completed
// tasks and tasks without a due date never appear.
func Build(ctx context.Context, src Source, now time.Time, cfg Config) (Briefing, error) {
	days := cfg.UpcomingDays
	if days <= 0 {
		days = DefaultUpcomingDays
	}
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	horizon := end.AddDate(0, 0, days)

	tasks, err := src.ListTasks(ctx, storage.TaskFilter{})
	if err != nil {
		return Briefing{}, fmt.Errorf("briefing: list tasks: %w", err)
	}
	notes, err := src.ListNotes(ctx, latestNotes)
	if err != nil {
		return Briefing{}, fmt.Errorf("briefing: list notes: %w", err)
	}

	b := Briefing{
		Timestamp:   now,
		DueToday:    []model.Task{},
		Overdue:     []model.Task{},
		Upcoming:    []model.Task{},
		LatestNotes: notes,
		Priorities:  []model.Task{},
	}
	if b.LatestNotes == nil {
		b.LatestNotes = []model.Note{}
	}
	for _, t := range tasks {
		if t.Completed || t.DueDate == nil {
			continue
		}
		due := t.DueDate.UTC()
		switch {
		case due.Before(start):
			b.Overdue = append(b.Overdue, t)
		case due.Before(end):
			b.DueToday = append(b.DueToday, t)
		case due.Before(horizon):
			b.Upcoming = append(b.Upcoming, t)
		}
	}
	sort.SliceStable(b.Upcoming, func(i, j int) bool {
		return b.Upcoming[i].DueDate.Before(*b.Upcoming[j].DueDate)
	})

	for _, t := range append(append([]model.Task(nil), b.DueToday...), b.Upcoming...) {
		if t.Priority != nil {
			b.Priorities = append(b.Priorities, t)
		}
	}
	// Lower number first.
	sort.SliceStable(b.Priorities, func(i, j int) bool {
		return *b.Priorities[i].Priority < *b.Priorities[j].Priority
	})
	if len(b.Priorities) > maxPriorities {
		b.Priorities = b.Priorities[:maxPriorities]
	}
	return b, nil
}
