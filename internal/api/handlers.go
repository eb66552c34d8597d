package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qepting91/tagstream/internal/coordinator"
	"github.com/qepting91/tagstream/internal/domain"
)

const maxBodySize = 64 << 10 // 64KB

type hashtagRequest struct {
	Hashtag   string `json:"hashtag"`
	ResetFeed bool   `json:"resetFeed"`
}

type hashtagsRequest struct {
	Hashtags  []string `json:"hashtags"`
	ResetFeed bool     `json:"resetFeed"`
}

type resetRequest struct {
	ResetFeed bool `json:"resetFeed"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.feed.Status())
}

func (s *Server) handleStart(c *gin.Context) {
	err := s.feed.Start()
	switch {
	case errors.Is(err, domain.ErrNoHashtags):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	case errors.Is(err, domain.ErrAlreadyActive):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
		return
	case err != nil:
		s.log.Error("start polling", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Search polling started",
		"hashtags": s.feed.Hashtags(),
	})
}

func (s *Server) handleStop(c *gin.Context) {
	s.feed.Stop()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Search polling stopped"})
}

func (s *Server) handleGetHashtags(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"hashtags": s.feed.Hashtags()})
}

func (s *Server) handleAddHashtag(c *gin.Context) {
	var req hashtagRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Hashtag == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Hashtag is required"})
		return
	}

	change, err := s.feed.AddHashtag(c.Request.Context(), req.Hashtag, req.ResetFeed)
	if err != nil {
		s.hashtagError(c, err, req.Hashtag)
		return
	}
	c.JSON(http.StatusOK, hashtagResponse(change))
}

func (s *Server) handleRemoveHashtag(c *gin.Context) {
	var req hashtagRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Hashtag == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Hashtag is required"})
		return
	}

	change, err := s.feed.RemoveHashtag(c.Request.Context(), req.Hashtag, req.ResetFeed)
	if err != nil {
		s.hashtagError(c, err, req.Hashtag)
		return
	}
	c.JSON(http.StatusOK, hashtagResponse(change))
}

func (s *Server) handleUpdateHashtags(c *gin.Context) {
	var req hashtagsRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Hashtags == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Hashtags must be an array"})
		return
	}

	change, err := s.feed.SetHashtags(c.Request.Context(), req.Hashtags, req.ResetFeed)
	if err != nil {
		s.hashtagError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, hashtagResponse(change))
}

func (s *Server) handleResetHashtags(c *gin.Context) {
	var req resetRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	change, err := s.feed.ResetHashtags(c.Request.Context(), req.ResetFeed)
	if err != nil {
		s.hashtagError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, hashtagResponse(change))
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"settings": s.feed.Settings()})
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var patch domain.SettingsPatch
	if !bindJSON(c, &patch) {
		return
	}
	settings, err := s.feed.UpdateSettings(c.Request.Context(), patch)
	if err != nil {
		s.log.Error("update settings", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": settings})
}

func (s *Server) handleResetSettings(c *gin.Context) {
	settings, err := s.feed.ResetSettings(c.Request.Context())
	if err != nil {
		s.log.Error("reset settings", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": settings})
}

func (s *Server) handleBackfill(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(coordinator.DefaultBackfill)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	posts, err := s.feed.Backfill(c.Request.Context(), limit)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, domain.ErrNoHashtags):
			status = http.StatusBadRequest
		case domain.Classify(err) == domain.ClassThrottled:
			status = http.StatusTooManyRequests
		}
		s.log.Warn("backfill failed", "err", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

func (s *Server) hashtagError(c *gin.Context, err error, hashtag string) {
	body := gin.H{"success": false, "error": err.Error()}
	if hashtag != "" {
		body["hashtag"] = hashtag
	}
	switch {
	case errors.Is(err, coordinator.ErrHashtagNotFound):
		c.JSON(http.StatusNotFound, body)
	case errors.Is(err, domain.ErrInvalidHashtag), errors.Is(err, domain.ErrNoHashtags):
		c.JSON(http.StatusBadRequest, body)
	default:
		s.log.Error("hashtag update", "err", err)
		c.JSON(http.StatusInternalServerError, body)
	}
}

func hashtagResponse(change coordinator.HashtagChange) gin.H {
	resp := gin.H{
		"success":   true,
		"hashtags":  change.Hashtags,
		"feedReset": change.FeedReset,
		"restarted": change.Restarted,
	}
	if change.Hashtag != "" {
		resp["hashtag"] = change.Hashtag
	}
	return resp
}

// bindJSON decodes a size-limited body and answers 400 itself on failure.
func bindJSON(c *gin.Context, v any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}
