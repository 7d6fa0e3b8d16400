package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"assistant/internal/eventbus"
	rtsup "assistant/internal/runtime/supervisor"
	logx "assistant/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
	ErrNoSinks   = errors.New("notifier has no sinks")
)

const (
	sendTimeout = 10 * time.Second
	historySize = 300
)

// delivery is one notification bound for one sink.
type delivery struct {
	n    Notification
	sink Sink
	key  string
}

// Service is an async pipeline: queue, worker pool, rate limit, retry and
// dedup. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus

	cfg     Config
	sinks   []Sink
	limiter *rate.Limiter
	dedup   *expirable.LRU[string, struct{}]

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan delivery
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, sinks ...Sink) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, bus: bus, sinks: sinks}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Supervisor returns the worker supervisor, nil when not running.
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// SetSinks replaces the delivery targets. Queued deliveries keep their sink.
func (s *Service) SetSinks(sinks ...Sink) {
	s.mu.Lock()
	s.sinks = append([]Sink(nil), sinks...)
	s.mu.Unlock()
}

func (s *Service) Sinks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.sinks))
	for _, sk := range s.sinks {
		names = append(names, sk.Name())
	}
	return names
}

// Apply swaps rate, retry and dedup knobs live. Pool shape changes take
// effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	prev := s.cfg
	s.cfg = cfg
	// Token bucket: burst equals the per-second rate.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)

	switch {
	case cfg.DedupWindow == 0:
		s.dedup = nil
	case s.dedup == nil || prev.DedupWindow != cfg.DedupWindow || prev.DedupMaxEntries != cfg.DedupMaxEntries:
		s.dedup = expirable.NewLRU[string, struct{}](cfg.DedupMaxEntries, nil, cfg.DedupWindow)
	}
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan delivery, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	sup, q, workers := s.sup, s.queue, s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return nil
		})
	}
	s.log.Info("notifier started", logx.Int("workers", workers), logx.Any("sinks", s.Sinks()))
}

// Stop closes intake and drains the queue until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// In-flight Notify calls finish before the queue closes.
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue, s.sup, s.stopDone = nil, nil, nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
		s.log.Info("notifier stopped")
	case <-ctx.Done():
		sup.Cancel()
		s.log.Warn("notifier drain timed out", logx.Err(ctx.Err()))
	}
}

// Notify queues n for every sink. A notification identical to one seen
// within the dedup window is dropped silently.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	if len(s.sinks) == 0 {
		s.mu.Unlock()
		return ErrNoSinks
	}
	q, sinks, dedup := s.queue, s.sinks, s.dedup
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	key := dedupKey(n)
	ev := NotificationEvent{Key: key, Title: n.Title, At: time.Now()}
	if dedup != nil {
		if dedup.Contains(key) {
			eventbus.Publish(s.bus, eventbus.NotifyDeduped, ev)
			s.log.Debug("notification deduplicated", logx.String("key", key), logx.String("title", n.Title))
			return nil
		}
		dedup.Add(key, struct{}{})
	}

	var dropped int
	for _, sk := range sinks {
		select {
		case q <- delivery{n: n, sink: sk, key: key}:
		default:
			dropped++
			ev.Sink, ev.Error = sk.Name(), ErrQueueFull.Error()
			eventbus.Publish(s.bus, eventbus.NotifyFailed, ev)
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %d of %d deliveries dropped", ErrQueueFull, dropped, len(sinks))
	}
	return nil
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, d)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, d delivery) {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	name := d.sink.Name()
	maxAttempts := 1 + cfg.RetryMax
	var err error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		if err = lim.Wait(ctx); err != nil {
			break
		}
		callCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err = d.sink.Send(callCtx, d.n)
		cancel()
		if err == nil {
			break
		}
		s.log.Debug("notify send failed", logx.String("sink", name), logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))
		if attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			err = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}

	it := HistoryItem{At: time.Now(), Sink: name, Title: d.n.Title, Attempts: attempt}
	ev := NotificationEvent{Sink: name, Key: d.key, Title: d.n.Title, At: it.At}
	if err != nil {
		it.Error, ev.Error = err.Error(), err.Error()
		s.log.Warn("notification delivery failed", logx.String("sink", name), logx.String("title", d.n.Title), logx.Err(err), logx.Int("attempts", attempt))
		eventbus.Publish(s.bus, eventbus.NotifyFailed, ev)
	} else {
		eventbus.Publish(s.bus, eventbus.NotifySent, ev)
	}
	s.appendHistory(it)
}

// retryDelay doubles from RetryBase up to RetryMaxDelay.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			return cfg.RetryMaxDelay
		}
	}
	return d
}

func dedupKey(n Notification) string {
	if n.Key != "" {
		return n.Key
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(n.Title))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(n.Body))
	return fmt.Sprintf("%x", h.Sum64())
}
