// Package api is the HTTP surface: polling control, hashtag and settings
// management, backfill, the live stream endpoint and the dashboard.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qepting91/tagstream/internal/coordinator"
	"github.com/qepting91/tagstream/internal/domain"
)

// Feed is the coordinator surface the handlers drive.
type Feed interface {
	Start() error
	Stop()
	Status() coordinator.Status
	Settings() domain.FeedSettings
	UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.FeedSettings, error)
	ResetSettings(ctx context.Context) (domain.FeedSettings, error)
	Hashtags() []string
	AddHashtag(ctx context.Context, tag string, resetFeed bool) (coordinator.HashtagChange, error)
	RemoveHashtag(ctx context.Context, tag string, resetFeed bool) (coordinator.HashtagChange, error)
	SetHashtags(ctx context.Context, tags []string, resetFeed bool) (coordinator.HashtagChange, error)
	ResetHashtags(ctx context.Context, resetFeed bool) (coordinator.HashtagChange, error)
	Backfill(ctx context.Context, n int) ([]domain.CanonicalPost, error)
}

type Server struct {
	feed      Feed
	stream    http.Handler
	dashboard http.Handler
	log       *slog.Logger
	router    *gin.Engine
}

// NewServer wires the routes. stream and dashboard may be nil, in which case
// their routes are not registered.
func NewServer(feed Feed, stream, dashboard http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		feed:      feed,
		stream:    stream,
		dashboard: dashboard,
		log:       logger,
		router:    router,
	}

	router.GET("/health", s.handleHealth)
	if dashboard != nil {
		router.GET("/dashboard", gin.WrapH(dashboard))
	}

	api := router.Group("/api")
	{
		if stream != nil {
			api.GET("/stream", gin.WrapH(stream))
		}
		api.GET("/stream/status", s.handleStatus)
		api.POST("/stream/start", s.handleStart)
		api.POST("/stream/stop", s.handleStop)

		api.GET("/hashtags", s.handleGetHashtags)
		api.POST("/hashtags/add", s.handleAddHashtag)
		api.POST("/hashtags/remove", s.handleRemoveHashtag)
		api.POST("/hashtags/update", s.handleUpdateHashtags)
		api.POST("/hashtags/reset", s.handleResetHashtags)

		api.GET("/settings", s.handleGetSettings)
		api.POST("/settings/update", s.handleUpdateSettings)
		api.POST("/settings/reset", s.handleResetSettings)

		api.GET("/posts/backfill", s.handleBackfill)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}
