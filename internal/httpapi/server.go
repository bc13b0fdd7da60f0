// Package httpapi serves bookings and stored resume analyses over a local REST API.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/rbright/rehearse/internal/apperr"
	"github.com/rbright/rehearse/internal/booking"
	"github.com/rbright/rehearse/internal/logging"
	"github.com/rbright/rehearse/internal/resume"
	"github.com/rbright/rehearse/internal/store"
	"github.com/rbright/rehearse/internal/validation"
	"github.com/rbright/rehearse/internal/version"
)

// Config wires the API server.
type Config struct {
	Addr           string
	AllowedOrigins []string
	Bookings       *booking.Service
	Resumes        *resume.Service
	Store          store.Store
	Validator      *validation.Validator
	Logger         *slog.Logger
}

// Server is the echo-backed local API.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Kind    string            `json:"kind,omitempty"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	v := cfg.Validator
	if v == nil {
		v = validation.New()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = v
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, values middleware.RequestLoggerValues) error {
			logger.Info("http request",
				"method", values.Method,
				"uri", values.URI,
				"status", values.Status,
				"latency_ms", values.Latency.Milliseconds(),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	h := &handlers{bookings: cfg.Bookings, resumes: cfg.Resumes, store: cfg.Store}
	e.GET("/healthz", h.health)
	api := e.Group("/api")
	api.GET("/bookings", h.listBookings)
	api.POST("/bookings", h.createBooking)
	api.GET("/bookings/:id", h.getBooking)
	api.DELETE("/bookings/:id", h.deleteBooking)
	api.GET("/analyses", h.listAnalyses)

	return &Server{echo: e, addr: cfg.Addr, logger: logger}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.addr)
		errCh <- s.echo.Start(s.addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

type handlers struct {
	bookings *booking.Service
	resumes  *resume.Service
	store    store.Store
}

func (h *handlers) health(c echo.Context) error {
	status := map[string]string{"status": "ok", "version": version.String()}
	if h.store != nil {
		if err := h.store.Ping(c.Request().Context()); err != nil {
			status["status"] = "degraded"
			status["store"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, status)
		}
	}
	return c.JSON(http.StatusOK, status)
}

func (h *handlers) listBookings(c echo.Context) error {
	bookings, err := h.bookings.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bookings)
}

func (h *handlers) createBooking(c echo.Context) error {
	var req booking.Request
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	created, err := h.bookings.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *handlers) getBooking(c echo.Context) error {
	b, err := h.bookings.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *handlers) deleteBooking(c echo.Context) error {
	if err := h.bookings.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) listAnalyses(c echo.Context) error {
	records, err := h.resumes.History(c.Request().Context())
	if err != nil {
		return err
	}
	if records == nil {
		records = []resume.Record{}
	}
	return c.JSON(http.StatusOK, records)
}

func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := toResponse(err)
		if status >= http.StatusInternalServerError {
			logger.Error("http request failed", "uri", c.Request().RequestURI, "error", err)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error("write error response", "error", writeErr)
		}
	}
}

func toResponse(err error) (int, errorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, errorBody{Message: msg}
	}

	if errors.Is(err, booking.ErrNotFound) {
		return http.StatusNotFound, errorBody{Message: err.Error()}
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		body := errorBody{Kind: string(ae.Kind), Message: ae.Message, Details: ae.Details}
		switch ae.Kind {
		case apperr.KindValidation:
			return http.StatusBadRequest, body
		case apperr.KindNetwork, apperr.KindUpload:
			return http.StatusBadGateway, body
		default:
			return http.StatusInternalServerError, body
		}
	}

	return http.StatusInternalServerError, errorBody{Message: "Internal server error"}
}
