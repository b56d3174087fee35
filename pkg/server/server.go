// Package server exposes stored simulation summaries and their diffs over
// a JSON API.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gatling-report/pkg/batch"
	"gatling-report/pkg/diff"
	"gatling-report/pkg/parser"
	"gatling-report/pkg/source"
)

const Version = "1.0.0"

// APIHandler serves the summaries held by a batch manager
type APIHandler struct {
	manager *batch.Manager
	logger  zerolog.Logger
	began   time.Time
}

// NewRouter wires every route on a fresh gin engine
func NewRouter(manager *batch.Manager, logger zerolog.Logger) *gin.Engine {
	h := &APIHandler{
		manager: manager,
		logger:  logger,
		began:   time.Now(),
	}

	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())

	router.GET("/health", h.HealthCheck)
	router.GET("/simulations", h.ListSimulations)
	router.GET("/simulations/:id", h.GetSimulation)
	router.POST("/simulations", h.ParseSimulation)
	router.GET("/diff", h.Diff)

	return router
}

// Server is the HTTP API listener
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

func New(addr string, manager *batch.Manager, logger zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(manager, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// ListenAndServe blocks until Shutdown; a closed server is not an error
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting API server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(began)).
			Msg("request served")
	}
}

func (h *APIHandler) fail(c *gin.Context, status int, kind string, err error, id string) {
	c.JSON(status, ErrorResponse{
		Error:     kind,
		Message:   err.Error(),
		Timestamp: time.Now(),
		ID:        id,
	})
}

// HealthCheck implements the health check endpoint
func (h *APIHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    int(time.Since(h.began).Seconds()),
		Version:   Version,
	})
}

// ListSimulations lists stored summaries
func (h *APIHandler) ListSimulations(c *gin.Context) {
	infos, err := h.manager.List()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "internal_error", err, "")
		return
	}
	c.JSON(http.StatusOK, SimulationListResponse{
		Simulations: infos,
		Total:       len(infos),
	})
}

// GetSimulation returns one stored summary
func (h *APIHandler) GetSimulation(c *gin.Context) {
	id := c.Param("id")
	summary, err := h.manager.Get(id)
	if err != nil {
		status, kind := lookupStatus(err)
		h.fail(c, status, kind, err, id)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ParseSimulation parses a log, stores its summary and returns it
func (h *APIHandler) ParseSimulation(c *gin.Context) {
	var request ParseRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid_request", err, request.ID)
		return
	}

	out := h.manager.Parse(c.Request.Context(), request.Path, request.ID)
	if out.Err != nil {
		status, kind := parseStatus(out.Err)
		h.logger.Warn().Err(out.Err).Str("path", request.Path).Msg("parse request failed")
		h.fail(c, status, kind, out.Err, request.ID)
		return
	}

	c.JSON(http.StatusCreated, ParseResponse{
		ID:        out.ID,
		Path:      out.Path,
		Variant:   out.Result.Variant,
		Counters:  out.Result.Counters,
		ElapsedMs: out.Elapsed.Milliseconds(),
		Summary:   out.Result.Summary,
	})
}

// Diff compares two stored summaries
func (h *APIHandler) Diff(c *gin.Context) {
	refID, chID := c.Query("reference"), c.Query("challenger")
	if refID == "" || chID == "" {
		h.fail(c, http.StatusBadRequest, "invalid_request",
			errors.New("reference and challenger query parameters are required"), "")
		return
	}

	reference, err := h.manager.Get(refID)
	if err != nil {
		status, kind := lookupStatus(err)
		h.fail(c, status, kind, err, refID)
		return
	}
	challenger, err := h.manager.Get(chID)
	if err != nil {
		status, kind := lookupStatus(err)
		h.fail(c, status, kind, err, chID)
		return
	}

	c.JSON(http.StatusOK, diff.Compare(*reference, *challenger))
}

func lookupStatus(err error) (int, string) {
	switch {
	case errors.Is(err, batch.ErrNotFound):
		return http.StatusNotFound, "simulation_not_found"
	case errors.Is(err, batch.ErrInvalidID):
		return http.StatusBadRequest, "invalid_id"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func parseStatus(err error) (int, string) {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound, "file_not_found"
	case errors.Is(err, batch.ErrInvalidID), errors.Is(err, source.ErrInvalidURL):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, source.ErrNoObjectClient):
		return http.StatusBadRequest, "object_store_disabled"
	case errors.Is(err, parser.ErrFormatUnrecognized), errors.Is(err, parser.ErrUnsupportedVersion):
		return http.StatusUnprocessableEntity, "unsupported_format"
	case errors.Is(err, parser.ErrMalformedRecord), errors.Is(err, parser.ErrTruncatedStream):
		return http.StatusUnprocessableEntity, "malformed_log"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
