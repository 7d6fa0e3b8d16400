package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"assistant/internal/model"
)

type createNoteReq struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content"`
}

func (s *Server) listNotes(c *gin.Context) {
	notes, err := s.deps.Store.ListNotes(c.Request.Context(), 0)
	if err != nil {
		s.fail(c, err, "")
		return
	}
	if notes == nil {
		notes = []model.Note{}
	}
	c.JSON(http.StatusOK, notes)
}

func (s *Server) createNote(c *gin.Context) {
	var req createNoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		abort(c, http.StatusBadRequest, "title is required")
		return
	}
	note, err := s.deps.Store.CreateNote(c.Request.Context(), model.Note{
		Title:     title,
		Content:   req.Content,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		s.fail(c, err, "")
		return
	}
	s.deps.Reminders.OnNoteCreated(note)
	c.JSON(http.StatusCreated, note)
}

func (s *Server) getNote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	note, err := s.deps.Store.GetNote(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err, "Note not found")
		return
	}
	c.JSON(http.StatusOK, note)
}

func (s *Server) deleteNote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.deps.Store.DeleteNote(c.Request.Context(), id); err != nil {
		s.fail(c, err, "Note not found")
		return
	}
	s.deps.Reminders.OnNoteDeleted(id)
	c.Status(http.StatusNoContent)
}
