package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/example/appointment-scheduler/internal/civiltime"
)

// RouterConfig wires the handlers behind the versioned API group. Nil
// handlers leave their routes unregistered.
type RouterConfig struct {
	Bookings      *BookingHandler
	Appointments  *AppointmentHandler
	Authenticator Authenticator
	Logger        *slog.Logger
}

// NewRouter builds the echo instance serving the scheduling API.
func NewRouter(cfg RouterConfig) *echo.Echo {
	logger := defaultLogger(cfg.Logger)
	responder := newResponder(logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			_ = responder.writeJSON(c, httpErr.Code, errorResponse{Message: localizedStatusMessage(httpErr.Code)})
			return
		}
		_ = responder.handleServiceError(c, err)
	}

	e.Use(RequestLogger(logger))
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api/v1")
	if cfg.Authenticator != nil {
		api.Use(RequireIdentity(cfg.Authenticator, logger))
	}

	if h := cfg.Bookings; h != nil {
		api.POST("/series/preview", h.PreviewSeries)
		api.POST("/series", h.CreateSeries)
		api.POST("/appointments", h.CreateAppointments)
	}

	if h := cfg.Appointments; h != nil {
		api.GET("/appointments", h.List)
		api.GET("/appointments/calendar.ics", h.Calendar)
		api.POST("/appointments/confirm", h.ConfirmBatch)
		api.GET("/appointments/:id", h.Get)
		api.PATCH("/appointments/:id", h.Update)
		api.DELETE("/appointments/:id", h.Delete)
		api.POST("/appointments/:id/status", h.Transition)
		api.POST("/appointments/:id/client-confirmation", h.ClientConfirmation)
	}

	return e
}

// zoneOrUTC keeps handlers usable when no resolver is configured.
func zoneOrUTC(zones civiltime.ZoneResolver) civiltime.ZoneResolver {
	if zones == nil {
		return civiltime.FixedZone(nil)
	}
	return zones
}
