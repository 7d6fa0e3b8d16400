// Package model holds the persisted entities shared by the store, the
// reminder core and the HTTP surface.
package model

import (
	"math"
	"strings"
	"time"
)

// Task is a to-do item that may carry a due date, a recurrence and a
// reminder offset.
type Task struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    *string    `json:"description"`
	DueDate        *time.Time `json:"due_date"`
	Priority       *int       `json:"priority"`
	Recurrence     *string    `json:"recurrence"`
	ReminderOffset *int       `json:"reminder_offset"`
	CreatedAt      time.Time  `json:"created_at"`
	Completed      bool       `json:"completed"`
	LastRemindedAt *time.Time `json:"last_reminded_at"`
}

// RecurrenceExpr returns the trimmed recurrence or "".
func (t Task) RecurrenceExpr() string {
	if t.Recurrence == nil {
		return ""
	}
	return strings.TrimSpace(*t.Recurrence)
}

// maxOffsetMinutes is the largest offset that fits in a time.Duration.
const maxOffsetMinutes = int64(math.MaxInt64 / int64(time.Minute))

// Offset returns the reminder offset before the due date. A negative
// offset moves the reminder after the due date. ok is false when the
// offset does not fit in a time.Duration.
func (t Task) Offset() (d time.Duration, ok bool) {
	if t.ReminderOffset == nil {
		return 0, true
	}
	m := int64(*t.ReminderOffset)
	if m > maxOffsetMinutes || m < -maxOffsetMinutes {
		return 0, false
	}
	return time.Duration(m) * time.Minute, true
}

// RemindAt returns the due date minus the reminder offset. ok is false
// without a due date or when the offset is out of range.
func (t Task) RemindAt() (time.Time, bool) {
	if t.DueDate == nil {
		return time.Time{}, false
	}
	off, ok := t.Offset()
	if !ok {
		return time.Time{}, false
	}
	return t.DueDate.Add(-off), true
}

// Note is a free-form text record.
type Note struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTask is the create payload for a task.
type NewTask struct {
	Title          string     `json:"title"`
	Description    *string    `json:"description"`
	DueDate        *time.Time `json:"due_date"`
	Priority       *int       `json:"priority"`
	Recurrence     *string    `json:"recurrence"`
	ReminderOffset *int       `json:"reminder_offset"`
}

// Task builds the entity to persist.
func (n NewTask) Task(now time.Time) Task {
	return Task{
		Title:          strings.TrimSpace(n.Title),
		Description:    n.Description,
		DueDate:        utcPtr(n.DueDate),
		Priority:       n.Priority,
		Recurrence:     n.Recurrence,
		ReminderOffset: n.ReminderOffset,
		CreatedAt:      now.UTC(),
	}
}

// TaskPatch is a partial update. Nil fields are left untouched; a Clear*
// flag resets the nullable field to nil.
type TaskPatch struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	DueDate        *time.Time `json:"due_date"`
	Priority       *int       `json:"priority"`
	Recurrence     *string    `json:"recurrence"`
	ReminderOffset *int       `json:"reminder_offset"`
	Completed      *bool      `json:"completed"`

	ClearDescription    bool `json:"-"`
	ClearDueDate        bool `json:"-"`
	ClearPriority       bool `json:"-"`
	ClearRecurrence     bool `json:"-"`
	ClearReminderOffset bool `json:"-"`
}

// Apply mutates t in place. last_reminded_at is never touched here.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	switch {
	case p.ClearDescription:
		t.Description = nil
	case p.Description != nil:
		t.Description = p.Description
	}
	switch {
	case p.ClearDueDate:
		t.DueDate = nil
	case p.DueDate != nil:
		t.DueDate = utcPtr(p.DueDate)
	}
	switch {
	case p.ClearPriority:
		t.Priority = nil
	case p.Priority != nil:
		t.Priority = p.Priority
	}
	switch {
	case p.ClearRecurrence:
		t.Recurrence = nil
	case p.Recurrence != nil:
		t.Recurrence = p.Recurrence
	}
	switch {
	case p.ClearReminderOffset:
		t.ReminderOffset = nil
	case p.ReminderOffset != nil:
		t.ReminderOffset = p.ReminderOffset
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
}

// Reminder is the derived view of a pending task reminder. It is never
// persisted.
type Reminder struct {
	TaskID     int64     `json:"task_id"`
	RunAt      time.Time `json:"run_at"`
	Recurrence string    `json:"recurrence,omitempty"`
}

// ETA is the time left until RunAt, clamped at zero.
func (r Reminder) ETA(now time.Time) time.Duration {
	d := r.RunAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
