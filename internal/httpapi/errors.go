package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"assistant/internal/storage"
	logx "assistant/pkg/logx"
)

type errorResp struct {
	Detail string `json:"detail"`
}

func abort(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, errorResp{Detail: detail})
}

// fail maps store errors to a response. notFound is the detail used for
// storage.ErrNotFound.
func (s *Server) fail(c *gin.Context, err error, notFound string) {
	if errors.Is(err, storage.ErrNotFound) {
		abort(c, http.StatusNotFound, notFound)
		return
	}
	s.log.Error("http handler error", logx.String("path", c.FullPath()), logx.Err(err))
	abort(c, http.StatusInternalServerError, "internal server error")
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abort(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
