package httpapi

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"assistant/internal/briefing"
)

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) health(c *gin.Context) {
	h := gin.H{"status": "ok", "time": s.now().UTC()}
	if s.deps.Jobs != nil {
		h["jobs"] = s.deps.Jobs.Len()
	}
	if s.deps.Engine != nil {
		es := s.deps.Engine.Snapshot()
		h["engine"] = gin.H{
			"running":   es.Running,
			"workers":   es.Workers,
			"queue_len": es.QueueLen,
			"in_flight": es.InFlight,
			"completed": es.Completed,
			"failed":    es.Failed,
			"dropped":   es.Dropped,
		}
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) briefingToday(c *gin.Context) {
	b, err := briefing.Build(c.Request.Context(), s.deps.Store, s.now(), briefing.Config{
		UpcomingDays: int(s.upcomingDays.Load()),
	})
	if err != nil {
		s.fail(c, err, "")
		return
	}
	c.JSON(http.StatusOK, b)
}

type reminderResp struct {
	TaskID     int64     `json:"task_id"`
	RunAt      time.Time `json:"run_at"`
	Recurrence string    `json:"recurrence,omitempty"`
	ETASeconds int64     `json:"eta_seconds"`
}

func (s *Server) listReminders(c *gin.Context) {
	now := s.now()
	rs := s.deps.Reminders.Reminders()
	out := make([]reminderResp, 0, len(rs))
	for _, r := range rs {
		out = append(out, reminderResp{
			TaskID:     r.TaskID,
			RunAt:      r.RunAt,
			Recurrence: r.Recurrence,
			ETASeconds: int64(r.ETA(now) / time.Second),
		})
	}
	c.JSON(http.StatusOK, out)
}

// events streams bus events as server-sent events. ?types=reminder,job
// narrows by type prefix.
func (s *Server) events(c *gin.Context) {
	var prefixes []string
	for _, p := range strings.Split(c.Query("types"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	ch, unsub := s.deps.Bus.Subscribe(64, prefixes...)
	defer unsub()

	ctx := c.Request.Context()
	c.SSEvent("ready", gin.H{"time": s.now().UTC()})
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		}
	})
}
