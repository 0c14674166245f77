package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/civiltime"
)

type bookingService interface {
	PreviewSeries(ctx context.Context, req application.SeriesRequest) (application.SeriesPreview, error)
	CreateSeries(ctx context.Context, req application.SeriesRequest) (application.CreateSeriesResponse, error)
	CreateSingleOrCoScheduled(ctx context.Context, req application.CoScheduledRequest) (application.CreateSeriesResponse, error)
}

// BookingHandler serves series previews and batch creation.
type BookingHandler struct {
	service   bookingService
	zones     civiltime.ZoneResolver
	responder responder
}

func NewBookingHandler(service bookingService, zones civiltime.ZoneResolver, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{service: service, zones: zoneOrUTC(zones), responder: newResponder(logger)}
}

// PreviewSeries classifies every occurrence without booking anything.
func (h *BookingHandler) PreviewSeries(c echo.Context) error {
	principal, req, err := h.bindSeries(c)
	if err != nil {
		return err
	}
	if req == nil {
		return nil
	}

	preview, err := h.service.PreviewSeries(c.Request().Context(), *req)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	handlerLogger(c.Request().Context(), h.responder.logger, "BookingHandler", "PreviewSeries").
		DebugContext(c.Request().Context(), "series previewed", "tenant_id", principal.TenantID, "occurrences", preview.TotalOccurrences)
	return h.responder.writeJSON(c, http.StatusOK, toPreviewDTO(preview))
}

// CreateSeries books a recurring series.
func (h *BookingHandler) CreateSeries(c echo.Context) error {
	principal, req, err := h.bindSeries(c)
	if err != nil {
		return err
	}
	if req == nil {
		return nil
	}

	resp, err := h.service.CreateSeries(c.Request().Context(), *req)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	status := http.StatusCreated
	if req.Options.PreviewOnly {
		status = http.StatusOK
	}
	return h.responder.writeJSON(c, status, toSeriesResponse(resp, h.zones.Location(principal.TenantID)))
}

// CreateAppointments books one service, or several back to back.
func (h *BookingHandler) CreateAppointments(c echo.Context) error {
	principal, _ := PrincipalFromContext(c.Request().Context())

	var body appointmentsRequest
	if err := c.Bind(&body); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	if err := c.Validate(&body); err != nil {
		return h.responder.handleServiceError(c, err)
	}

	loc := h.zones.Location(principal.TenantID)
	req, err := body.toRequest(principal, loc)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}

	resp, err := h.service.CreateSingleOrCoScheduled(c.Request().Context(), req)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	status := http.StatusCreated
	if req.Options.PreviewOnly {
		status = http.StatusOK
	}
	return h.responder.writeJSON(c, status, toSeriesResponse(resp, loc))
}

// bindSeries decodes a series body. A nil request with a nil error means
// the response has already been written.
func (h *BookingHandler) bindSeries(c echo.Context) (application.Principal, *application.SeriesRequest, error) {
	principal, _ := PrincipalFromContext(c.Request().Context())

	var body seriesRequest
	if err := c.Bind(&body); err != nil {
		return principal, nil, h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	if err := c.Validate(&body); err != nil {
		return principal, nil, h.responder.handleServiceError(c, err)
	}

	req, err := body.toRequest(principal, h.zones.Location(principal.TenantID))
	if err != nil {
		return principal, nil, h.responder.handleServiceError(c, err)
	}
	return principal, &req, nil
}
