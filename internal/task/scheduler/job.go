package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"assistant/internal/recurrence"
)

type Kind int

const (
	KindTaskOnce Kind = iota + 1
	KindTaskRecurring
	KindNotePing
)

func (k Kind) String() string {
	switch k {
	case KindTaskOnce:
		return "task_once"
	case KindTaskRecurring:
		return "task_recurring"
	case KindNotePing:
		return "note_ping"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func TaskOnceKey(taskID int64) string      { return fmt.Sprintf("task-%d-once", taskID) }
func TaskRecurringKey(taskID int64) string { return fmt.Sprintf("task-%d-recurring", taskID) }

// NotePingKey includes the fire time so one note can carry several pings.
func NotePingKey(noteID int64, at time.Time) string {
	return fmt.Sprintf("note-%d-%d", noteID, at.Unix())
}

// Payload is what the handler needs to re-fetch state at fire time.
type Payload struct {
	TaskID int64  `json:"task_id,omitempty"`
	NoteID int64  `json:"note_id,omitempty"`
	Title  string `json:"title,omitempty"`
	Body   string `json:"body,omitempty"`
}

// Job is one schedulable unit.
//
// One-shot kinds fire at At. KindTaskRecurring fires at every occurrence
// of Schedule; the registry keeps At set to the next planned occurrence.
// A Schedule without a Location runs in the registry's configured zone.
type Job struct {
	Key      string
	Kind     Kind
	At       time.Time
	Schedule recurrence.Schedule
	Payload  Payload
}

func (j Job) Recurring() bool { return j.Kind == KindTaskRecurring }

var (
	ErrInvalidJob = errors.New("scheduler: invalid job")
	ErrNoNextRun  = errors.New("scheduler: schedule has no upcoming occurrence")
)

func (j Job) validate() error {
	if strings.TrimSpace(j.Key) == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidJob)
	}
	switch j.Kind {
	case KindTaskOnce, KindNotePing:
		if j.At.IsZero() {
			return fmt.Errorf("%w: %s has no fire time", ErrInvalidJob, j.Key)
		}
	case KindTaskRecurring:
	default:
		return fmt.Errorf("%w: %s has unknown kind %d", ErrInvalidJob, j.Key, j.Kind)
	}
	return nil
}

// Handler runs a fired job. A returned error goes to the engine's retry
// policy.
type Handler interface {
	Fire(ctx context.Context, job Job) error
}

type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Fire(ctx context.Context, job Job) error { return f(ctx, job) }
