// Package http exposes the scheduling API over echo.
//
// Every route below /api/v1 requires the X-Tenant-ID and X-User-ID headers
// plus an "Authorization: Bearer <api key>" header. Civil times on the wire
// use the layout 2006-01-02T15:04:05 in the tenant's zone.
//
//   - POST /api/v1/series/preview: classifies every occurrence of a series
//     without booking. Body is `seriesRequest` from dto.go.
//   - POST /api/v1/series: books a recurring series. Responds 201 with
//     `seriesResponse`, or 200 when options.preview_only is set.
//   - POST /api/v1/appointments: books one service, or several services back
//     to back for the same client. Body is `appointmentsRequest`.
//   - GET /api/v1/appointments?start=&end=&employee_id=: lists appointments
//     starting in [start, end) with overlap warnings.
//   - GET /api/v1/appointments/calendar.ics?start=&end=: the same selection as
//     an iCalendar document.
//   - GET, PATCH, DELETE /api/v1/appointments/{id}: reads, partially updates
//     (`patchRequest`) and deletes one appointment.
//   - POST /api/v1/appointments/{id}/status: lifecycle transition. Body
//     {"status"}.
//   - POST /api/v1/appointments/{id}/client-confirmation: body {"confirmed"}.
//   - POST /api/v1/appointments/confirm: batch confirmation. Body {"ids"}.
//   - GET /healthz: liveness.
//
// Errors are returned as `errorResponse` with localized messages: 400 for
// undecodable bodies, 401 for missing or rejected credentials, 403 for
// operations the principal may not perform, 404, 409 for invalid lifecycle
// transitions and 422 for validation failures.
package http
