package notifier

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"assistant/internal/eventbus"
	logx "assistant/pkg/logx"
)

type recordingSink struct {
	name  string
	fails int // fail this many sends before succeeding

	mu   sync.Mutex
	sent []Notification
	hits int
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Send(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
	if r.hits <= r.fails {
		return errors.New("sink down")
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		Workers:       2,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
		DedupWindow:   time.Minute,
	}
}

func startService(t *testing.T, cfg Config, bus eventbus.Bus, sinks ...Sink) *Service {
	t.Helper()
	s := New(cfg, logx.Nop(), bus, sinks...)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFanOutIsolatesFailingSink(t *testing.T) {
	t.Parallel()
	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", fails: 100}
	s := startService(t, testConfig(), nil, bad, good)

	if err := s.Notify(context.Background(), Notification{Title: "Task reminder: a"}); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	waitFor(t, func() bool { return good.count() == 1 })
	waitFor(t, func() bool { return len(s.Snapshot()) == 2 })

	for _, h := range s.Snapshot() {
		if h.Sink == "bad" && (h.Error == "" || h.Attempts != 3) {
			t.Fatalf("bad sink history = %+v, want 3 failed attempts", h)
		}
	}
}

func TestRetryRecovers(t *testing.T) {
	t.Parallel()
	flaky := &recordingSink{name: "flaky", fails: 1}
	s := startService(t, testConfig(), nil, flaky)

	_ = s.Notify(context.Background(), Notification{Title: "t", Body: "b"})
	waitFor(t, func() bool { return flaky.count() == 1 })
}

func TestDedupWindow(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8, eventbus.NotifyDeduped)
	defer unsub()
	sink := &recordingSink{name: "rec"}
	s := startService(t, testConfig(), bus, sink)

	n := Notification{Title: "same", Body: "body"}
	_ = s.Notify(context.Background(), n)
	_ = s.Notify(context.Background(), n)
	_ = s.Notify(context.Background(), Notification{Title: "same", Body: "other"})

	waitFor(t, func() bool { return sink.count() == 2 })
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("no dedup event")
	}
}

func TestDedupDisabled(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.DedupWindow = 0
	sink := &recordingSink{name: "rec"}
	s := startService(t, cfg, nil, sink)

	for i := 0; i < 3; i++ {
		_ = s.Notify(context.Background(), Notification{Title: "same"})
	}
	waitFor(t, func() bool { return sink.count() == 3 })
}

func TestNotifyStates(t *testing.T) {
	t.Parallel()
	disabled := New(Config{}, logx.Nop(), nil, &recordingSink{name: "x"})
	if err := disabled.Notify(context.Background(), Notification{Title: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled Notify error = %v, want ErrDisabled", err)
	}
	idle := New(testConfig(), logx.Nop(), nil, &recordingSink{name: "x"})
	if err := idle.Notify(context.Background(), Notification{Title: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("idle Notify error = %v, want ErrStopped", err)
	}
	empty := startService(t, testConfig(), nil)
	if err := empty.Notify(context.Background(), Notification{Title: "x"}); !errors.Is(err, ErrNoSinks) {
		t.Fatalf("no-sink Notify error = %v, want ErrNoSinks", err)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.DedupWindow = 0
	sink := &recordingSink{name: "rec"}
	s := New(cfg, logx.Nop(), nil, sink)
	s.Start(context.Background())
	for i := 0; i < 10; i++ {
		_ = s.Notify(context.Background(), Notification{Title: "n"})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if got := sink.count(); got != 10 {
		t.Fatalf("delivered %d, want 10", got)
	}
	if err := s.Notify(context.Background(), Notification{Title: "late"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Notify after Stop error = %v, want ErrStopped", err)
	}
}

func TestConsoleSink(t *testing.T) {
	t.Parallel()
	var out, logs bytes.Buffer
	c := NewConsoleSink(&out, logx.NewWriter(&logs, "info"))
	if err := c.Send(context.Background(), Notification{Title: "Task reminder: x", Body: "desc"}); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "🔔 Task reminder: x: desc\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if !strings.Contains(logs.String(), "[NOTIFY] Task reminder: x - desc") {
		t.Fatalf("log = %q", logs.String())
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: 300 * time.Millisecond}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{8, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := retryDelay(cfg, tt.attempt); got != tt.want {
			t.Fatalf("retryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
