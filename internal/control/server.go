package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"FeedBot/internal/config"
	"FeedBot/internal/domain"
	"FeedBot/internal/usecase"
)

// ErrAlreadyRunning means the control address is taken, most likely by
// another instance.
var ErrAlreadyRunning = errors.New("already running")

// ManualSweeper runs a sweep on demand.
type ManualSweeper interface {
	RunManual(ctx context.Context, channelIDs ...string) (domain.SweepReport, error)
}

// ChannelLookup finds a configured channel.
type ChannelLookup func(id string) (config.ChannelConfig, bool)

// StatsFunc reports seen-state sizes for the health endpoint.
type StatsFunc func() (urls, checkpoints int)

// Deps wires the control server.
type Deps struct {
	Sweeper  ManualSweeper
	Channels ChannelLookup
	Stats    StatsFunc
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server exposes the manual sweep trigger over HTTP.
type Server struct {
	sweeper  ManualSweeper
	channels ChannelLookup
	stats    StatsFunc
	logger   *slog.Logger
	started  time.Time
	router   *gin.Engine
}

// SweepRequest asks for a manual sweep of one channel on behalf of a user.
type SweepRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
	UserID    int64  `json:"user_id"`
}

// SourceStatus is one source line of a sweep response.
type SourceStatus struct {
	Kind     domain.SourceKind `json:"kind"`
	Target   string            `json:"target"`
	Author   string            `json:"author,omitempty"`
	Articles int               `json:"articles"`
	Error    string            `json:"error,omitempty"`
}

// SweepResponse reports how a manual sweep went.
type SweepResponse struct {
	SweepID      string         `json:"sweep_id"`
	OK           bool           `json:"ok"`
	Sources      []SourceStatus `json:"sources"`
	PersistError string         `json:"persist_error,omitempty"`
	NotifyError  string         `json:"notify_error,omitempty"`
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		sweeper:  deps.Sweeper,
		channels: deps.Channels,
		stats:    deps.Stats,
		logger:   logger,
		started:  time.Now(),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.POST("/sweep", s.handleSweep)
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	s.router = router

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// TryListen binds the control address. A bind failure is reported as
// ErrAlreadyRunning.
func TryListen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAlreadyRunning, addr, err)
	}
	return ln, nil
}

// Serve handles requests on ln until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control api listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control api shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleSweep(c *gin.Context) {
	var req SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	channel, ok := s.channels(req.ChannelID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel is not configured"})
		return
	}
	if !channel.Allows(req.UserID) {
		s.logger.Warn("manual sweep denied", "channel", req.ChannelID, "user", req.UserID)
		c.JSON(http.StatusForbidden, gin.H{"error": "user may not trigger a sweep in this channel"})
		return
	}

	report, err := s.sweeper.RunManual(c.Request.Context(), channel.ID)
	switch {
	case errors.Is(err, usecase.ErrUnknownChannel):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	resp := toResponse(report)
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusBadGateway
	}
	c.JSON(status, resp)
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if s.stats != nil {
		urls, checkpoints := s.stats()
		body["seen_urls"] = urls
		body["checkpoints"] = checkpoints
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("control request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func toResponse(report domain.SweepReport) SweepResponse {
	resp := SweepResponse{SweepID: report.ID, OK: report.OK(), Sources: []SourceStatus{}}
	for _, ch := range report.Channels {
		for _, src := range ch.Sources {
			status := SourceStatus{
				Kind:     src.Kind,
				Target:   src.Target,
				Author:   src.Author,
				Articles: len(src.Articles),
			}
			if src.Err != nil {
				status.Error = src.Err.Error()
			}
			resp.Sources = append(resp.Sources, status)
		}
		if ch.PersistErr != nil {
			resp.PersistError = ch.PersistErr.Error()
		}
		if ch.NotifyErr != nil {
			resp.NotifyError = ch.NotifyErr.Error()
		}
	}
	return resp
}
