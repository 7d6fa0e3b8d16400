package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"assistant/internal/eventbus"
	rtsup "assistant/internal/runtime/supervisor"
	"assistant/internal/task/engine"
	logx "assistant/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

// Config controls the registry.
type Config struct {
	Enabled bool
	// Location is the zone for schedules that carry none. Nil means UTC.
	Location *time.Location
	// JobTimeout bounds one handler run. 0 uses the engine default.
	JobTimeout time.Duration
}

// Executor runs fired jobs off the registry loop. *engine.Service
// satisfies it.
type Executor interface {
	Enqueue(t engine.Task) error
}

type entry struct {
	job Job
	gen uint64
}

// Service is the job registry. It is safe for concurrent use.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	exec    Executor
	handler Handler
	now     func() time.Time

	jobs map[string]*entry
	pq   fireQueue
	seq  uint64

	wake chan struct{}
	sup  *rtsup.Supervisor

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

// Event is the payload of reminder.* bus events.
type Event struct {
	Key  string    `json:"key"`
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`
}

// Entry is a read-only view of a live job.
type Entry struct {
	Key     string    `json:"key"`
	Kind    Kind      `json:"kind"`
	At      time.Time `json:"at"`
	Expr    string    `json:"recurrence,omitempty"`
	Payload Payload   `json:"payload"`
}

type Snapshot struct {
	Enabled  bool    `json:"enabled"`
	Running  bool    `json:"running"`
	Timezone string  `json:"timezone"`
	Jobs     []Entry `json:"jobs"`
}

func New(cfg Config, exec Executor, handler Handler, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:         cfg,
		log:         log,
		bus:         bus,
		exec:        exec,
		handler:     handler,
		now:         time.Now,
		jobs:        map[string]*entry{},
		wake:        make(chan struct{}, 1),
		lastEnqWarn: map[string]time.Time{},
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) locationLocked() *time.Location {
	if s.cfg.Location == nil {
		return time.UTC
	}
	return s.cfg.Location
}

// planLocked returns the next occurrence of a recurring job after ref.
func (s *Service) planLocked(j Job, ref time.Time) (time.Time, bool) {
	sched := j.Schedule
	if sched.Location == nil {
		sched = sched.In(s.locationLocked())
	}
	return sched.Next(ref)
}

// Upsert adds the job or atomically replaces the job with the same key.
// A replaced job can no longer fire. The error reports an unusable job;
// nothing is registered in that case.
func (s *Service) Upsert(j Job) error {
	if err := j.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if j.Recurring() {
		next, ok := s.planLocked(j, s.now())
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrNoNextRun, j.Schedule.Expr())
		}
		j.At = next
	}
	s.seq++
	s.jobs[j.Key] = &entry{job: j, gen: s.seq}
	heap.Push(&s.pq, item{at: j.At, key: j.Key, gen: s.seq})
	s.mu.Unlock()

	s.log.Debug("job planned", logx.String("key", j.Key), logx.String("kind", j.Kind.String()), logx.Time("at", j.At))
	eventbus.Publish(s.bus, eventbus.ReminderPlanned, Event{Key: j.Key, Kind: j.Kind, At: j.At})
	s.signal()
	return nil
}

// Cancel removes the job. It reports whether a job was registered.
func (s *Service) Cancel(key string) bool {
	s.mu.Lock()
	e, ok := s.jobs[key]
	if ok {
		delete(s.jobs, key)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.log.Debug("job cancelled", logx.String("key", key))
	eventbus.Publish(s.bus, eventbus.ReminderCancelled, Event{Key: key, Kind: e.job.Kind, At: e.job.At})
	return true
}

// CancelNote removes every ping of the note and returns how many.
func (s *Service) CancelNote(noteID int64) int {
	s.mu.Lock()
	var keys []string
	for k, e := range s.jobs {
		if e.job.Kind == KindNotePing && e.job.Payload.NoteID == noteID {
			keys = append(keys, k)
		}
	}
	s.mu.Unlock()

	n := 0
	for _, k := range keys {
		if s.Cancel(k) {
			n++
		}
	}
	return n
}

func (s *Service) Get(key string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[key]
	if !ok {
		return Job{}, false
	}
	return e.job, true
}

func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Snapshot lists live jobs ordered by next fire time.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Running:  s.sup != nil,
		Timezone: s.locationLocked().String(),
		Jobs:     make([]Entry, 0, len(s.jobs)),
	}
	for _, e := range s.jobs {
		en := Entry{Key: e.job.Key, Kind: e.job.Kind, At: e.job.At, Payload: e.job.Payload}
		if e.job.Recurring() {
			en.Expr = e.job.Schedule.Expr()
		}
		snap.Jobs = append(snap.Jobs, en)
	}
	s.mu.Unlock()

	sort.Slice(snap.Jobs, func(i, j int) bool {
		if !snap.Jobs[i].At.Equal(snap.Jobs[j].At) {
			return snap.Jobs[i].At.Before(snap.Jobs[j].At)
		}
		return snap.Jobs[i].Key < snap.Jobs[j].Key
	})
	return snap
}

// Apply swaps the config. When the zone changes, recurring jobs without
// an explicit zone are re-planned in the new one.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldLoc := s.locationLocked()
	s.cfg = cfg
	newLoc := s.locationLocked()
	replanned := 0
	if oldLoc.String() != newLoc.String() {
		replanned = s.replanLocked(s.now(), func(j Job) bool { return j.Recurring() && j.Schedule.Location == nil })
	}
	s.mu.Unlock()

	if replanned > 0 {
		s.log.Info("recurring jobs re-planned", logx.String("tz", newLoc.String()), logx.Int("jobs", replanned))
		s.signal()
	}
}

// replanLocked moves matching recurring jobs to their next occurrence
// after ref under a fresh generation.
func (s *Service) replanLocked(ref time.Time, match func(Job) bool) int {
	n := 0
	for key, e := range s.jobs {
		if !match(e.job) {
			continue
		}
		next, ok := s.planLocked(e.job, ref)
		if !ok {
			delete(s.jobs, key)
			continue
		}
		s.seq++
		e.job.At = next
		e.gen = s.seq
		heap.Push(&s.pq, item{at: next, key: key, gen: e.gen})
		n++
	}
	return n
}

// Start launches the registry loop. Jobs registered earlier are kept;
// recurring ones whose planned time already passed move to their next
// occurrence.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.sup != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	now := s.now()
	s.replanLocked(now, func(j Job) bool { return j.Recurring() && !j.At.After(now) })
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	sup := s.sup
	n := len(s.jobs)
	tz := s.locationLocked().String()
	s.mu.Unlock()

	sup.GoRestart("loop", s.loop)
	s.log.Info("scheduler started", logx.String("tz", tz), logx.Int("jobs", n))
}

// Stop ends the loop and discards pending jobs.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil {
		s.log.Warn("scheduler stop", logx.Err(err))
	}

	s.mu.Lock()
	dropped := len(s.jobs)
	s.jobs = map[string]*entry{}
	s.pq = nil
	s.mu.Unlock()
	s.log.Info("scheduler stopped", logx.Int("discarded", dropped))
}

func (s *Service) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) loop(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		now := s.now()
		s.mu.Lock()
		due := s.popDueLocked(now)
		next, pending := s.peekLocked()
		s.mu.Unlock()

		for _, j := range due {
			s.dispatch(j)
		}

		var fire <-chan time.Time
		if pending {
			timer.Reset(max(next.Sub(s.now()), 0))
			fire = timer.C
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
			timer.Stop()
		case <-fire:
		}
	}
}

// peekLocked returns the earliest live fire time, pruning stale items.
func (s *Service) peekLocked() (time.Time, bool) {
	if s.pq.Len() > 2*len(s.jobs)+64 {
		s.compactLocked()
	}
	for s.pq.Len() > 0 {
		top := s.pq[0]
		if s.liveLocked(top) != nil {
			return top.at, true
		}
		heap.Pop(&s.pq)
	}
	return time.Time{}, false
}

func (s *Service) compactLocked() {
	live := s.pq[:0]
	for _, it := range s.pq {
		if s.liveLocked(it) != nil {
			live = append(live, it)
		}
	}
	s.pq = live
	heap.Init(&s.pq)
}

func (s *Service) liveLocked(it item) *entry {
	e, ok := s.jobs[it.key]
	if !ok || e.gen != it.gen {
		return nil
	}
	return e
}

// popDueLocked removes every item due at or before now. One-shot jobs leave
// the registry before dispatch; recurring jobs are re-planned from the
// later of their planned time and now, so missed occurrences coalesce.
func (s *Service) popDueLocked(now time.Time) []Job {
	var due []Job
	for s.pq.Len() > 0 && !s.pq[0].at.After(now) {
		it := heap.Pop(&s.pq).(item)
		e := s.liveLocked(it)
		if e == nil {
			continue
		}
		fired := e.job
		if !fired.Recurring() {
			delete(s.jobs, it.key)
			due = append(due, fired)
			continue
		}
		ref := it.at
		if now.After(ref) {
			ref = now
		}
		next, ok := s.planLocked(fired, ref)
		if ok {
			e.job.At = next
			heap.Push(&s.pq, item{at: next, key: it.key, gen: e.gen})
		} else {
			delete(s.jobs, it.key)
			s.log.Warn("recurring job has no further occurrence", logx.String("key", it.key))
		}
		due = append(due, fired)
	}
	return due
}

func (s *Service) dispatch(j Job) {
	s.mu.Lock()
	exec, h, timeout := s.exec, s.handler, s.cfg.JobTimeout
	s.mu.Unlock()

	eventbus.Publish(s.bus, eventbus.ReminderFired, Event{Key: j.Key, Kind: j.Kind, At: j.At})
	if exec == nil || h == nil {
		s.log.Warn("job fired without executor", logx.String("key", j.Key))
		return
	}
	err := exec.Enqueue(engine.Task{
		Name:    "reminder." + j.Key,
		Timeout: timeout,
		Run:     func(ctx context.Context) error { return h.Fire(ctx, j) },
	})
	s.reportEnqueueError(j.Key, err)
}

func (s *Service) reportEnqueueError(key string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, engine.ErrStopping) || errors.Is(err, engine.ErrStopped) {
		s.log.Debug("job dropped during shutdown", logx.String("key", key), logx.Err(err))
		return
	}
	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[key]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[key] = now
	if len(s.lastEnqWarn) > 1024 {
		for k, t := range s.lastEnqWarn {
			if now.Sub(t) >= enqueueWarnThrottle {
				delete(s.lastEnqWarn, k)
			}
		}
	}
	s.enqMu.Unlock()
	s.log.Warn("job failed to enqueue", logx.String("key", key), logx.Err(err))
}
