package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/easyfix/easyfix-go/internal/audit"
	apperrors "github.com/easyfix/easyfix-go/internal/errors"
	"github.com/easyfix/easyfix-go/internal/models"
	"github.com/easyfix/easyfix-go/internal/textproc"
)

// handleSearch runs the primary flow: preprocess the query, search the
// graph, respond, and append an audit record on a detached goroutine. The
// audit write never delays or fails the response. Only completed searches
// are audited; a failed graph query leaves no record.
func (s *Server) handleSearch(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindingError(c, err)
		return
	}

	start := time.Now()
	processed := textproc.Preprocess(req.Query)

	results, err := s.graph.Search(c.Request.Context(), processed.Terms, req.Limit)
	if err != nil {
		renderError(c, err)
		return
	}

	s.recordSearch(c, processed, len(results), time.Since(start))

	c.JSON(http.StatusOK, models.SearchResponse{
		Query:   req.Query,
		Terms:   processed.Terms,
		Count:   len(results),
		Results: results,
	})
}

// recordSearch fires the audit write without holding up the response.
// The request context is detached so the write survives the response
// being sent; failures are logged and swallowed.
func (s *Server) recordSearch(c *gin.Context, processed textproc.Preprocessed, count int, took time.Duration) {
	if s.recorder == nil {
		return
	}

	uid := ""
	if info := authInfo(c); info != nil {
		uid = info.UID
	}
	rec := audit.Record{
		UserUID:     uid,
		Query:       processed.Original,
		Terms:       processed.Terms,
		ResultCount: count,
		TookMS:      took.Milliseconds(),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.cfg.Audit.Timeout)
	go func() {
		defer cancel()
		if err := s.recorder.Append(ctx, rec); err != nil {
			s.logger.Warn("audit write failed", "user", uid, "error", err)
		}
	}()
}

func (s *Server) handleGetBug(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		renderError(c, apperrors.Validation("bug id is required"))
		return
	}

	detail, err := s.graph.GetBug(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) handleListTopics(c *gin.Context) {
	limit := intQuery(c, "limit", 0)
	offset := intQuery(c, "offset", 0)

	topics, err := s.graph.ListTopics(c.Request.Context(), limit, offset)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(topics),
		"topics": topics,
	})
}

func (s *Server) handleDeveloperTopics(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		renderError(c, apperrors.Validation("developer id is required"))
		return
	}

	out, err := s.graph.DeveloperTopics(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
