package httpapi

import (
	"net/http/pprof"
	"time"

	"github.com/gin-gonic/gin"

	logx "assistant/pkg/logx"
)

func (s *Server) mapHandlers() {
	s.gin.Use(gin.Recovery(), s.accessLog())

	s.gin.GET("/", s.root)
	s.gin.GET("/health", s.health)

	notes := s.gin.Group("/notes")
	{
		notes.GET("", s.listNotes)
		notes.POST("", s.createNote)
		notes.GET("/:id", s.getNote)
		notes.DELETE("/:id", s.deleteNote)
	}

	tasks := s.gin.Group("/tasks")
	{
		tasks.GET("", s.listTasks)
		tasks.POST("", s.createTask)
		tasks.GET("/:id", s.getTask)
		tasks.PATCH("/:id", s.updateTask)
		tasks.POST("/:id/complete", s.completeTask)
		tasks.DELETE("/:id", s.deleteTask)
	}

	s.gin.GET("/briefing/today", s.briefingToday)
	s.gin.GET("/reminders", s.listReminders)
	if s.deps.Bus != nil {
		s.gin.GET("/events", s.events)
	}

	if s.cfg.Pprof {
		dbg := s.gin.Group("/debug/pprof")
		dbg.GET("/", gin.WrapF(pprof.Index))
		dbg.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		dbg.GET("/profile", gin.WrapF(pprof.Profile))
		dbg.GET("/symbol", gin.WrapF(pprof.Symbol))
		dbg.POST("/symbol", gin.WrapF(pprof.Symbol))
		dbg.GET("/trace", gin.WrapF(pprof.Trace))
		dbg.GET("/:profile", func(c *gin.Context) {
			pprof.Handler(c.Param("profile")).ServeHTTP(c.Writer, c.Request)
		})
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", status),
			logx.Duration("took", time.Since(start)),
		}
		if status >= 500 {
			s.log.Warn("http request failed", fields...)
			return
		}
		s.log.Debug("http request", fields...)
	}
}
