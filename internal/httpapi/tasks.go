package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"assistant/internal/model"
	"assistant/internal/storage"
	logx "assistant/pkg/logx"
)

const taskNotFound = "Task not found"

func (s *Server) listTasks(c *gin.Context) {
	var f storage.TaskFilter
	if raw := c.Query("include_completed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			abort(c, http.StatusBadRequest, "include_completed must be a boolean")
			return
		}
		f.IncludeCompleted = v
	}
	tasks, err := s.deps.Store.ListTasks(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err, "")
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) createTask(c *gin.Context) {
	var req createTaskReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	now := s.now()
	nt, err := req.toNewTask(now)
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	task, err := s.deps.Store.CreateTask(c.Request.Context(), nt.Task(now))
	if err != nil {
		s.fail(c, err, "")
		return
	}
	s.sync(task)
	c.JSON(http.StatusCreated, task)
}

func (s *Server) getTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	task, err := s.deps.Store.GetTask(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err, taskNotFound)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) updateTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abort(c, http.StatusBadRequest, "cannot read body")
		return
	}
	patch, err := decodePatch(body, s.now())
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	task, err := s.deps.Store.GetTask(ctx, id)
	if err != nil {
		s.fail(c, err, taskNotFound)
		return
	}
	patch.Apply(&task)
	if err := s.deps.Store.UpdateTask(ctx, task); err != nil {
		s.fail(c, err, taskNotFound)
		return
	}
	// Re-read so last_reminded_at reflects any concurrent firing.
	if fresh, err := s.deps.Store.GetTask(ctx, id); err == nil {
		task = fresh
	}
	s.sync(task)
	c.JSON(http.StatusOK, task)
}

func (s *Server) completeTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := s.deps.Store.SetTaskCompleted(ctx, id, true); err != nil {
		s.fail(c, err, taskNotFound)
		return
	}
	s.deps.Reminders.CancelTask(id)
	task, err := s.deps.Store.GetTask(ctx, id)
	if err != nil {
		s.fail(c, err, taskNotFound)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) deleteTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.deps.Store.DeleteTask(c.Request.Context(), id); err != nil {
		s.fail(c, err, taskNotFound)
		return
	}
	s.deps.Reminders.CancelTask(id)
	c.Status(http.StatusNoContent)
}

func (s *Server) sync(t model.Task) {
	d := s.deps.Reminders.SyncTask(t)
	s.log.Debug("task reminder synced", logx.Int64("task_id", t.ID), logx.String("decision", d.Kind.String()))
}
