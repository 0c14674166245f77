package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/civiltime"
)

type appointmentService interface {
	GetAppointment(ctx context.Context, principal application.Principal, id string) (appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, params application.UpdateAppointmentParams) (appointment.Appointment, []application.ConflictWarning, error)
	TransitionStatus(ctx context.Context, params application.TransitionParams) (appointment.Appointment, error)
	SetClientConfirmation(ctx context.Context, params application.ClientConfirmationParams) (appointment.Appointment, error)
	ConfirmBatch(ctx context.Context, principal application.Principal, ids []string) (application.ConfirmBatchResult, error)
	DeleteAppointment(ctx context.Context, principal application.Principal, id string) error
	QueryAppointments(ctx context.Context, params application.QueryParams) (application.QueryResult, error)
}

type calendarExporter interface {
	Export(ctx context.Context, params application.QueryParams) (string, error)
}

// AppointmentHandler serves reads, updates and lifecycle changes of booked appointments.
type AppointmentHandler struct {
	service   appointmentService
	calendar  calendarExporter
	zones     civiltime.ZoneResolver
	responder responder
}

func NewAppointmentHandler(service appointmentService, calendar calendarExporter, zones civiltime.ZoneResolver, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{service: service, calendar: calendar, zones: zoneOrUTC(zones), responder: newResponder(logger)}
}

func (h *AppointmentHandler) List(c echo.Context) error {
	principal, _ := PrincipalFromContext(c.Request().Context())
	params, err := h.queryParams(c, principal)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}

	result, err := h.service.QueryAppointments(c.Request().Context(), params)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}

	loc := h.zones.Location(principal.TenantID)
	return h.responder.writeJSON(c, http.StatusOK, listAppointmentsResponse{
		Appointments: toAppointmentDTOs(result.Appointments, loc),
		Warnings:     toWarningDTOs(result.Warnings),
	})
}

// Calendar renders the same selection as List as an iCalendar document.
func (h *AppointmentHandler) Calendar(c echo.Context) error {
	if h.calendar == nil {
		return h.responder.writeError(c, http.StatusNotFound, nil)
	}
	principal, _ := PrincipalFromContext(c.Request().Context())
	params, err := h.queryParams(c, principal)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}

	doc, err := h.calendar.Export(c.Request().Context(), params)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	handlerLogger(c.Request().Context(), h.responder.logger, "AppointmentHandler", "Calendar").
		DebugContext(c.Request().Context(), "calendar exported", "bytes", len(doc))
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="appointments.ics"`)
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", []byte(doc))
}

func (h *AppointmentHandler) Get(c echo.Context) error {
	principal, id, ok := h.target(c)
	if !ok {
		return h.responder.writeError(c, http.StatusBadRequest, errInvalidAppointmentID)
	}

	appt, err := h.service.GetAppointment(c.Request().Context(), principal, id)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.renderAppointment(c, principal, appt, nil, http.StatusOK)
}

func (h *AppointmentHandler) Update(c echo.Context) error {
	principal, id, ok := h.target(c)
	if !ok {
		return h.responder.writeError(c, http.StatusBadRequest, errInvalidAppointmentID)
	}

	var body patchRequest
	if err := c.Bind(&body); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	patch, err := body.toPatch(h.zones.Location(principal.TenantID))
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}

	appt, warnings, err := h.service.UpdateAppointment(c.Request().Context(), application.UpdateAppointmentParams{
		Principal:     principal,
		AppointmentID: id,
		Patch:         patch,
	})
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.renderAppointment(c, principal, appt, warnings, http.StatusOK)
}

func (h *AppointmentHandler) Delete(c echo.Context) error {
	principal, id, ok := h.target(c)
	if !ok {
		return h.responder.writeError(c, http.StatusBadRequest, errInvalidAppointmentID)
	}

	if err := h.service.DeleteAppointment(c.Request().Context(), principal, id); err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusNoContent, nil)
}

// Transition moves the appointment to the status in the body.
func (h *AppointmentHandler) Transition(c echo.Context) error {
	principal, id, ok := h.target(c)
	if !ok {
		return h.responder.writeError(c, http.StatusBadRequest, errInvalidAppointmentID)
	}

	var body statusRequest
	if err := c.Bind(&body); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	if err := c.Validate(&body); err != nil {
		return h.responder.handleServiceError(c, err)
	}

	appt, err := h.service.TransitionStatus(c.Request().Context(), application.TransitionParams{
		Principal:     principal,
		AppointmentID: id,
		Target:        appointment.Status(strings.ToLower(strings.TrimSpace(body.Status))),
	})
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.renderAppointment(c, principal, appt, nil, http.StatusOK)
}

func (h *AppointmentHandler) ClientConfirmation(c echo.Context) error {
	principal, id, ok := h.target(c)
	if !ok {
		return h.responder.writeError(c, http.StatusBadRequest, errInvalidAppointmentID)
	}

	var body clientConfirmationRequest
	if err := c.Bind(&body); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}

	appt, err := h.service.SetClientConfirmation(c.Request().Context(), application.ClientConfirmationParams{
		Principal:     principal,
		AppointmentID: id,
		Confirmed:     body.Confirmed,
	})
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.renderAppointment(c, principal, appt, nil, http.StatusOK)
}

func (h *AppointmentHandler) ConfirmBatch(c echo.Context) error {
	principal, _ := PrincipalFromContext(c.Request().Context())

	var body confirmBatchRequest
	if err := c.Bind(&body); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	if err := c.Validate(&body); err != nil {
		return h.responder.handleServiceError(c, err)
	}

	result, err := h.service.ConfirmBatch(c.Request().Context(), principal, body.IDs)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	handlerLogger(c.Request().Context(), h.responder.logger, "AppointmentHandler", "ConfirmBatch").
		DebugContext(c.Request().Context(), "batch confirmation finished",
			"confirmed", len(result.Confirmed),
			"already_confirmed", len(result.AlreadyConfirmed),
			"failed", len(result.Failed),
		)
	return h.responder.writeJSON(c, http.StatusOK, toConfirmBatchResponse(result))
}

func (h *AppointmentHandler) target(c echo.Context) (application.Principal, string, bool) {
	principal, _ := PrincipalFromContext(c.Request().Context())
	id := strings.TrimSpace(c.Param("id"))
	return principal, id, id != ""
}

func (h *AppointmentHandler) queryParams(c echo.Context, principal application.Principal) (application.QueryParams, error) {
	times := newWireTimes(h.zones.Location(principal.TenantID))
	start, end := c.QueryParam("start"), c.QueryParam("end")
	if strings.TrimSpace(start) == "" {
		times.fail("start", "is required")
	}
	if strings.TrimSpace(end) == "" {
		times.fail("end", "is required")
	}
	params := application.QueryParams{
		Principal:  principal,
		RangeStart: times.timestamp("start", start),
		RangeEnd:   times.timestamp("end", end),
		EmployeeID: strings.TrimSpace(c.QueryParam("employee_id")),
	}
	return params, times.err()
}

func (h *AppointmentHandler) renderAppointment(c echo.Context, principal application.Principal, appt appointment.Appointment, warnings []application.ConflictWarning, status int) error {
	return h.responder.writeJSON(c, status, appointmentResponse{
		Appointment: toAppointmentDTO(appt, h.zones.Location(principal.TenantID)),
		Warnings:    toWarningDTOs(warnings),
	})
}
