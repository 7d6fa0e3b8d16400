package reminder

import (
	"context"
	"strings"
	"sync"
	"time"

	"assistant/internal/model"
	"assistant/internal/storage"
	"assistant/internal/task/scheduler"
	logx "assistant/pkg/logx"
)

// Registry is the job registry surface. *scheduler.Service satisfies it.
type Registry interface {
	Upsert(job scheduler.Job) error
	Cancel(key string) bool
	CancelNote(noteID int64) int
	Snapshot() scheduler.Snapshot
}

// TaskLister feeds the startup recovery pass.
type TaskLister interface {
	ListTasks(ctx context.Context, f storage.TaskFilter) ([]model.Task, error)
}

type Config struct {
	// NotePrefix marks notes that may carry a reminder. Matched
	// case-insensitively against the start of the title.
	NotePrefix string
}

const DefaultNotePrefix = "remind"

// Service keeps the registry consistent with task and note edits.
type Service struct {
	reg Registry
	res *Resolver
	log logx.Logger
	now func() time.Time

	mu     sync.Mutex
	prefix string
}

func NewService(reg Registry, res *Resolver, cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if res == nil {
		res = NewResolver(log)
	}
	s := &Service{reg: reg, res: res, log: log, now: time.Now}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	p := strings.ToLower(strings.TrimSpace(cfg.NotePrefix))
	if p == "" {
		p = DefaultNotePrefix
	}
	s.mu.Lock()
	s.prefix = p
	s.mu.Unlock()
}

// SyncTask drops both jobs of the task and schedules whatever the resolver
// decides now. Calling it repeatedly leaves at most one job.
func (s *Service) SyncTask(t model.Task) Decision {
	s.CancelTask(t.ID)

	d := s.res.ResolveTask(t, s.now())
	payload := scheduler.Payload{TaskID: t.ID, Title: t.Title}
	var job scheduler.Job
	switch d.Kind {
	case DecisionOnce:
		job = scheduler.Job{Key: scheduler.TaskOnceKey(t.ID), Kind: scheduler.KindTaskOnce, At: d.At, Payload: payload}
	case DecisionRecurring:
		job = scheduler.Job{Key: scheduler.TaskRecurringKey(t.ID), Kind: scheduler.KindTaskRecurring, Schedule: d.Schedule, Payload: payload}
	default:
		return d
	}
	if err := s.reg.Upsert(job); err != nil {
		s.log.Warn("task reminder not scheduled", logx.Int64("task_id", t.ID), logx.String("trigger", d.Kind.String()), logx.Err(err))
		return Decision{}
	}
	s.log.Info("task reminder scheduled", logx.Int64("task_id", t.ID), logx.String("trigger", d.Kind.String()), logx.String("key", job.Key))
	return d
}

// CancelTask removes both jobs of the task. It reports whether any existed.
func (s *Service) CancelTask(id int64) bool {
	once := s.reg.Cancel(scheduler.TaskOnceKey(id))
	rec := s.reg.Cancel(scheduler.TaskRecurringKey(id))
	return once || rec
}

// ScheduleNotePing schedules a ping for the time found in the note
// content. It reports whether a job was registered.
func (s *Service) ScheduleNotePing(n model.Note) bool {
	d, ok := s.res.ResolveNote(n, s.now())
	if !ok {
		return false
	}
	job := scheduler.Job{
		Key:     scheduler.NotePingKey(n.ID, d.At),
		Kind:    scheduler.KindNotePing,
		At:      d.At,
		Payload: scheduler.Payload{NoteID: n.ID, Title: n.Title, Body: n.Content},
	}
	if err := s.reg.Upsert(job); err != nil {
		s.log.Warn("note reminder not scheduled", logx.Int64("note_id", n.ID), logx.Err(err))
		return false
	}
	s.log.Info("note reminder scheduled", logx.Int64("note_id", n.ID), logx.Time("at", d.At))
	return true
}

// OnNoteCreated schedules a ping when the title follows the reminder
// naming convention.
func (s *Service) OnNoteCreated(n model.Note) bool {
	s.mu.Lock()
	prefix := s.prefix
	s.mu.Unlock()
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(n.Title)), prefix) {
		return false
	}
	return s.ScheduleNotePing(n)
}

// OnNoteDeleted drops every ping of the note.
func (s *Service) OnNoteDeleted(id int64) int {
	return s.reg.CancelNote(id)
}

// Recover rebuilds task jobs from the store after a restart. Pending note
// pings are not recovered.
func (s *Service) Recover(ctx context.Context, store TaskLister) (int, error) {
	tasks, err := store.ListTasks(ctx, storage.TaskFilter{})
	if err != nil {
		return 0, err
	}
	scheduled := 0
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return scheduled, err
		}
		if s.SyncTask(t).Kind != DecisionNone {
			scheduled++
		}
	}
	s.log.Info("reminders recovered", logx.Int("tasks", len(tasks)), logx.Int("scheduled", scheduled))
	return scheduled, nil
}

// Reminders lists pending task reminders ordered by fire time.
func (s *Service) Reminders() []model.Reminder {
	snap := s.reg.Snapshot()
	out := make([]model.Reminder, 0, len(snap.Jobs))
	for _, j := range snap.Jobs {
		if j.Kind != scheduler.KindTaskOnce && j.Kind != scheduler.KindTaskRecurring {
			continue
		}
		out = append(out, model.Reminder{TaskID: j.Payload.TaskID, RunAt: j.At, Recurrence: j.Expr})
	}
	return out
}
