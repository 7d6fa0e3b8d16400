// Package httpapi is the REST surface over the record store. Every write
// that can change a reminder goes through the reminder hooks after the
// store commit.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"assistant/internal/eventbus"
	"assistant/internal/model"
	"assistant/internal/reminder"
	rtsup "assistant/internal/runtime/supervisor"
	"assistant/internal/storage"
	"assistant/internal/task/engine"
	logx "assistant/pkg/logx"
)

// Reminders is the hook surface the handlers call after a write.
// *reminder.Service satisfies it.
type Reminders interface {
	SyncTask(t model.Task) reminder.Decision
	CancelTask(id int64) bool
	OnNoteCreated(n model.Note) bool
	OnNoteDeleted(id int64) int
	Reminders() []model.Reminder
}

// JobCounter reports live registry size for /health.
type JobCounter interface {
	Len() int
}

// EngineStats reports execution engine counters for /health.
type EngineStats interface {
	Snapshot() engine.Snapshot
}

type Config struct {
	Addr         string
	Mode         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Pprof        bool
	UpcomingDays int
}

// Deps is the dependency bag passed to New. Jobs, Engine and Bus are
// optional.
type Deps struct {
	Store     storage.Store
	Reminders Reminders
	Jobs      JobCounter
	Engine    EngineStats
	Bus       eventbus.Bus
}

type Server struct {
	log  logx.Logger
	cfg  Config
	deps Deps
	gin  *gin.Engine
	now  func() time.Time

	upcomingDays atomic.Int64

	mu       sync.Mutex
	srv      *http.Server
	ln       net.Listener
	sup      *rtsup.Supervisor
	stopDone chan struct{}
}

func New(cfg Config, deps Deps, log logx.Logger) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("httpapi: store is required")
	}
	if deps.Reminders == nil {
		return nil, errors.New("httpapi: reminders is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	mode := strings.TrimSpace(cfg.Mode)
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	s := &Server{
		log:  log,
		cfg:  cfg,
		deps: deps,
		gin:  gin.New(),
		now:  time.Now,
	}
	s.SetUpcomingDays(cfg.UpcomingDays)
	s.mapHandlers()
	return s, nil
}

// Handler exposes the router, mostly for httptest.
func (s *Server) Handler() http.Handler { return s.gin }

// SetUpcomingDays changes the briefing window live.
func (s *Server) SetUpcomingDays(n int) { s.upcomingDays.Store(int64(n)) }

// Addr returns the bound listener address, "" when not serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start binds the listener synchronously so a bad address fails the caller,
// then serves in the background until Stop or ctx cancellation.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.sup != nil {
		s.mu.Unlock()
		return nil
	}
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:8000"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	srv := &http.Server{
		Handler:           s.gin,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	sup := rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.srv, s.ln, s.sup = srv, ln, sup
	s.mu.Unlock()

	sup.Go("http.serve", func(c context.Context) error {
		err := srv.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) || c.Err() != nil {
			return nil
		}
		return err
	})
	sup.Go0("http.shutdown", func(c context.Context) {
		<-c.Done()
		// Bounded; Stop does the graceful shutdown with the caller's deadline.
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(sctx)
		cancel()
	})
	s.log.Info("http server started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof))
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.sup == nil {
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
	srv, sup := s.srv, s.sup
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = srv.Shutdown(ctx)
		_ = srv.Close()
		sup.Cancel()
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.srv, s.ln, s.sup, s.stopDone = nil, nil, nil, nil
		s.mu.Unlock()
		s.log.Info("http server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}
