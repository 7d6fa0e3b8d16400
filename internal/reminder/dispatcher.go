package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"assistant/internal/model"
	"assistant/internal/notifier"
	"assistant/internal/storage"
	"assistant/internal/task/engine"
	"assistant/internal/task/scheduler"
	logx "assistant/pkg/logx"
)

// Store is the slice of the record store the dispatcher needs.
type Store interface {
	GetTask(ctx context.Context, id int64) (model.Task, error)
	GetNote(ctx context.Context, id int64) (model.Note, error)
	MarkTaskReminded(ctx context.Context, id int64, at time.Time) error
}

type Notifier interface {
	Notify(ctx context.Context, n notifier.Notification) error
}

// Dispatcher is the scheduler handler for every job kind.
type Dispatcher struct {
	store  Store
	notify Notifier
	log    logx.Logger
	now    func() time.Time
}

func NewDispatcher(store Store, notify Notifier, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{store: store, notify: notify, log: log, now: time.Now}
}

func (d *Dispatcher) Fire(ctx context.Context, job scheduler.Job) error {
	switch job.Kind {
	case scheduler.KindTaskOnce, scheduler.KindTaskRecurring:
		return d.fireTask(ctx, job)
	case scheduler.KindNotePing:
		return d.fireNote(ctx, job)
	default:
		return engine.NoRetry(fmt.Errorf("unknown job kind %d for %s", job.Kind, job.Key))
	}
}

func (d *Dispatcher) fireTask(ctx context.Context, job scheduler.Job) error {
	id := job.Payload.TaskID
	log := d.log.With(logx.String("job", job.Key), logx.Int64("task_id", id))

	task, err := d.store.GetTask(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("task not found for notification")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load task %d: %w", id, err)
	}
	if task.Completed {
		log.Debug("task completed; reminder skipped")
		return nil
	}

	body := ""
	if task.Description != nil {
		body = *task.Description
	}
	d.send(ctx, log, notifier.Notification{Title: "Task reminder: " + task.Title, Body: body, Key: job.Key + "@" + job.At.UTC().Format(time.RFC3339)})

	if err := d.store.MarkTaskReminded(ctx, id, d.now().UTC()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn("task deleted before reminder was recorded")
			return nil
		}
		return fmt.Errorf("mark task %d reminded: %w", id, err)
	}
	return nil
}

func (d *Dispatcher) fireNote(ctx context.Context, job scheduler.Job) error {
	id := job.Payload.NoteID
	log := d.log.With(logx.String("job", job.Key), logx.Int64("note_id", id))

	note, err := d.store.GetNote(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("note not found for notification")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load note %d: %w", id, err)
	}
	d.send(ctx, log, notifier.Notification{Title: fmt.Sprintf("Reminder from note '%s'", note.Title), Body: note.Content, Key: job.Key})
	return nil
}

// send never fails the job; the sink side has its own retries.
func (d *Dispatcher) send(ctx context.Context, log logx.Logger, n notifier.Notification) {
	if d.notify == nil {
		log.Warn("no notifier configured", logx.String("title", n.Title))
		return
	}
	if err := d.notify.Notify(ctx, n); err != nil {
		log.Warn("notify failed", logx.String("title", n.Title), logx.Err(err))
	}
}

var _ scheduler.Handler = (*Dispatcher)(nil)
