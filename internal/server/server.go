// Package server exposes the JSON-over-HTTP control surface: scheduling
// triggers, pause/resume, state snapshots, and prometheus metrics. It
// carries no authentication; it is meant to sit behind the control
// plane, not on the open network.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/oviniciusramosp/claude-pm/internal/orchestrator"
	"github.com/oviniciusramosp/claude-pm/internal/task"
)

// Server is the HTTP control surface over one orchestrator.
type Server struct {
	echo   *echo.Echo
	orch   *orchestrator.Orchestrator
	store  task.Store
	logger *zap.Logger
	port   int
}

// New creates a server. registry receives the orchestrator metrics
// exposed on /metrics; pass the same registry whose Metrics was handed
// to the orchestrator.
func New(orch *orchestrator.Orchestrator, store task.Store, registry *prometheus.Registry, port int, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		orch:   orch,
		store:  store,
		logger: logger,
		port:   port,
	}

	api := e.Group("/api")
	api.POST("/schedule", s.handleSchedule)
	api.POST("/pause", s.handlePause)
	api.POST("/unpause", s.handleUnpause)
	api.POST("/resume", s.handleResume)
	api.GET("/state", s.handleState)
	api.GET("/tasks", s.handleTasks)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return s
}

// Handler returns the HTTP handler, for tests driving the routes
// without a listener.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(fmt.Sprintf(":%d", s.port))
	}()

	s.logger.Info("control surface listening", zap.Int("port", s.port))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type scheduleRequest struct {
	Reason string            `json:"reason"`
	Mode   orchestrator.Mode `json:"mode,omitempty"`
}

func (s *Server) handleSchedule(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}
	if req.Mode != "" && req.Mode != orchestrator.ModeTask && req.Mode != orchestrator.ModeEpic {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid mode")
	}
	s.orch.Schedule(req.Reason, req.Mode)
	return c.JSON(http.StatusAccepted, s.orch.Snapshot())
}

func (s *Server) handlePause(c echo.Context) error {
	s.orch.Pause()
	return c.JSON(http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleUnpause(c echo.Context) error {
	s.orch.Unpause()
	return c.JSON(http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleResume(c echo.Context) error {
	s.orch.Resume()
	return c.JSON(http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleTasks(c echo.Context) error {
	tasks, err := s.store.ListTasks()
	if err != nil {
		s.logger.Error("failed to list tasks", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list tasks")
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	return c.JSON(http.StatusOK, tasks)
}
