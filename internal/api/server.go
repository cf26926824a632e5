// Package api exposes the status and control HTTP surface: health,
// latest decisions, local journal, prometheus metrics and the proctor's
// manual exam-mode override.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adityasharma0903/CCTVattendance/internal/backend"
	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/datastore"
	"github.com/adityasharma0903/CCTVattendance/internal/engine"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
	"github.com/adityasharma0903/CCTVattendance/internal/observability"
)

const defaultJournalLimit = 50

// DecisionSource provides the latest completed decision per camera.
type DecisionSource interface {
	LatestDecisions() map[string]engine.Decision
}

// ModeController manages local camera mode overrides. Flushing the
// schedule cache on a change makes the new mode's window resolve on the
// next cycle instead of after cache expiry.
type ModeController interface {
	SetModeOverride(cameraID string, mode backend.CameraMode)
	ClearModeOverride(cameraID string)
	ModeOverrides() map[string]backend.CameraMode
	FlushScheduleCache()
}

// JournalReader reads the local decision journal.
type JournalReader interface {
	RecentMarks(ctx context.Context, limit int) ([]datastore.Mark, error)
	RecentViolations(ctx context.Context, limit int) ([]datastore.Violation, error)
}

// Server is the echo-based status server.
type Server struct {
	echo      *echo.Echo
	address   string
	decisions DecisionSource
	modes     ModeController
	journal   JournalReader
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewServer builds the server and its routes. journal and metrics may
// be nil; their routes then answer 404 and an empty registry.
func NewServer(settings *conf.HTTPSettings, decisions DecisionSource, modes ModeController, journal JournalReader, metrics *observability.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		address:   settings.Address,
		decisions: decisions,
		modes:     modes,
		journal:   journal,
		metrics:   metrics,
		logger:    logging.ForService("api"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/decisions", s.allDecisions)
	v1.GET("/decisions/:camera", s.cameraDecision)
	v1.POST("/cameras/:camera/mode", s.setMode)
	v1.GET("/overrides", s.overrides)
	if s.journal != nil {
		v1.GET("/journal/marks", s.journalMarks)
		v1.GET("/journal/violations", s.journalViolations)
	}

	if registry := s.metrics.Registry(); registry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("status server listening", "address", s.address)
	err := s.echo.Start(s.address)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) allDecisions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.decisions.LatestDecisions())
}

func (s *Server) cameraDecision(c echo.Context) error {
	cameraID := c.Param("camera")
	d, found := s.decisions.LatestDecisions()[cameraID]
	if !found {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "no decision for camera " + cameraID,
		})
	}
	return c.JSON(http.StatusOK, d)
}

type modeRequest struct {
	Mode string `json:"mode"` // EXAM, NORMAL or AUTO
}

// setMode forces a camera mode locally. AUTO clears the override and
// returns control to the backend.
func (s *Server) setMode(c echo.Context) error {
	cameraID := c.Param("camera")

	var req modeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}

	switch strings.ToUpper(req.Mode) {
	case string(backend.ModeExam):
		s.modes.SetModeOverride(cameraID, backend.ModeExam)
	case string(backend.ModeNormal):
		s.modes.SetModeOverride(cameraID, backend.ModeNormal)
	case "AUTO":
		s.modes.ClearModeOverride(cameraID)
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "mode must be EXAM, NORMAL or AUTO",
		})
	}

	s.modes.FlushScheduleCache()
	s.logger.Info("camera mode override changed",
		"camera_id", cameraID, "mode", strings.ToUpper(req.Mode))
	return c.JSON(http.StatusOK, map[string]string{
		"camera_id": cameraID,
		"mode":      strings.ToUpper(req.Mode),
	})
}

func (s *Server) overrides(c echo.Context) error {
	return c.JSON(http.StatusOK, s.modes.ModeOverrides())
}

func (s *Server) journalMarks(c echo.Context) error {
	marks, err := s.journal.RecentMarks(c.Request().Context(), queryLimit(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, marks)
}

func (s *Server) journalViolations(c echo.Context) error {
	violations, err := s.journal.RecentViolations(c.Request().Context(), queryLimit(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, violations)
}

func queryLimit(c echo.Context) int {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		return defaultJournalLimit
	}
	return limit
}
