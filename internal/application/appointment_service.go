package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/availability"
	"github.com/example/appointment-scheduler/internal/civiltime"
	"github.com/example/appointment-scheduler/internal/persistence"
)

// AppointmentService reads, updates and moves existing appointments through
// their lifecycle.
type AppointmentService struct {
	appointments AppointmentStore
	catalog      ServiceCatalog
	now          func() time.Time
	logger       *slog.Logger
	warnings     *warningCache
}

// NewAppointmentService constructs the service with the provided dependencies.
func NewAppointmentService(appointments AppointmentStore, catalog ServiceCatalog, now func() time.Time) *AppointmentService {
	return NewAppointmentServiceWithLogger(appointments, catalog, now, nil)
}

// NewAppointmentServiceWithLogger constructs the service with a specified logger.
func NewAppointmentServiceWithLogger(appointments AppointmentStore, catalog ServiceCatalog, now func() time.Time, logger *slog.Logger) *AppointmentService {
	if now == nil {
		now = time.Now
	}
	return &AppointmentService{
		appointments: appointments,
		catalog:      catalog,
		now:          now,
		logger:       defaultLogger(logger),
		warnings:     newWarningCache(30*time.Second, 128, now),
	}
}

func (s *AppointmentService) loggerWith(ctx context.Context, operation Operation, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AppointmentService", string(operation), attrs...)
}

// GetAppointment returns one appointment visible to the principal.
func (s *AppointmentService) GetAppointment(ctx context.Context, principal Principal, id string) (appt appointment.Appointment, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}
	if !principal.Allows(OpGet) {
		err = ErrUnauthorized
		return
	}
	return s.load(ctx, principal, id)
}

// UpdateAppointment applies a partial update and reports overlaps of the
// resulting time range with other appointments of the same employee.
func (s *AppointmentService) UpdateAppointment(ctx context.Context, params UpdateAppointmentParams) (appt appointment.Appointment, warnings []ConflictWarning, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}

	logger := s.loggerWith(ctx, OpUpdate,
		"principal_id", params.Principal.UserID,
		"appointment_id", params.AppointmentID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update appointment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("warnings", len(warnings)).InfoContext(ctx, "appointment updated")
	}()

	if !params.Principal.Allows(OpUpdate) {
		err = ErrUnauthorized
		return
	}

	var existing appointment.Appointment
	existing, err = s.load(ctx, params.Principal, params.AppointmentID)
	if err != nil {
		return
	}

	var updated appointment.Appointment
	updated, err = s.applyPatch(ctx, params.Principal, existing, params.Patch)
	if err != nil {
		return
	}
	updated.UpdatedAt = s.now()

	if !updated.Status.IsCancelled() {
		warnings, err = s.detectConflicts(ctx, updated)
		if err != nil {
			return
		}
	}

	appt, err = s.appointments.UpdateAppointment(ctx, updated)
	if err != nil {
		err = mapStoreError("update appointment", err)
		return
	}
	s.warnings.Invalidate(appt.TenantID)
	return
}

func (s *AppointmentService) applyPatch(ctx context.Context, principal Principal, existing appointment.Appointment, patch AppointmentPatch) (appointment.Appointment, error) {
	updated := existing.Clone()
	vErr := &ValidationError{}

	if patch.ClientID != nil {
		if id := strings.TrimSpace(*patch.ClientID); id == "" {
			vErr.add("client_id", "client is required")
		} else if id != existing.Client.ID {
			updated.Client = appointment.RefTo[appointment.Client](id)
		}
	}
	if patch.EmployeeID != nil {
		id := strings.TrimSpace(*patch.EmployeeID)
		switch {
		case id == "":
			vErr.add("employee_id", "employee is required")
		case !principal.CanAccessEmployee(id):
			return appointment.Appointment{}, ErrUnauthorized
		case id != existing.Employee.ID:
			updated.Employee = appointment.RefTo[appointment.Employee](id)
		}
	}
	if patch.Start != nil {
		updated.Start = *patch.Start
	}
	if patch.End != nil {
		updated.End = *patch.End
	}
	if !updated.End.After(updated.Start) {
		vErr.add("end", "end must be after start")
	}
	timeChanged := !updated.Start.Equal(existing.Start) || !updated.End.Equal(existing.End) || updated.Employee.ID != existing.Employee.ID
	if timeChanged && existing.Status.IsCancelled() {
		vErr.add("start", "a cancelled appointment cannot be rescheduled")
	}

	if patch.AdvancePayment != nil {
		if patch.AdvancePayment.IsNegative() {
			vErr.add("advance_payment", "advance payment must not be negative")
		} else {
			updated.AdvancePayment = *patch.AdvancePayment
		}
	}
	switch {
	case patch.ClearCustomPrice:
		updated.CustomPrice = nil
	case patch.CustomPrice != nil:
		if patch.CustomPrice.IsNegative() {
			vErr.add("custom_price", "custom price must not be negative")
		} else {
			price := *patch.CustomPrice
			updated.CustomPrice = &price
		}
	}
	if patch.AdditionalItems != nil {
		items := append([]appointment.AdditionalItem(nil), (*patch.AdditionalItems)...)
		for _, item := range items {
			if strings.TrimSpace(item.Name) == "" || item.Price.IsNegative() {
				vErr.add("additional_items", "items need a name and a non-negative price")
				break
			}
		}
		updated.AdditionalItems = items
	}
	if patch.Notes != nil {
		updated.Notes = *patch.Notes
	}

	if patch.Status != nil && *patch.Status != existing.Status {
		op := OpConfirm
		if patch.Status.IsCancelled() {
			op = OpCancel
		}
		if !principal.Allows(op) {
			return appointment.Appointment{}, ErrUnauthorized
		}
		status, err := existing.Status.Transition(*patch.Status)
		if err != nil {
			return appointment.Appointment{}, err
		}
		updated.Status = status
	}

	if vErr.HasErrors() {
		return appointment.Appointment{}, vErr
	}

	if patch.ServiceID != nil {
		id := strings.TrimSpace(*patch.ServiceID)
		if id == "" {
			vErr.add("service_id", "service is required")
			return appointment.Appointment{}, vErr
		}
		if id != existing.Service.ID || existing.Service.Expanded == nil {
			svc, err := s.resolveService(ctx, existing.TenantID, id)
			if err != nil {
				return appointment.Appointment{}, err
			}
			updated.Service = appointment.Expand(svc.ID, svc)
		}
	}
	return updated, nil
}

func (s *AppointmentService) resolveService(ctx context.Context, tenantID, id string) (appointment.Service, error) {
	if s.catalog == nil {
		return appointment.Service{}, fmt.Errorf("service catalog not configured")
	}
	services, err := s.catalog.Services(ctx, tenantID, []string{id})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			vErr := &ValidationError{}
			vErr.add("service_id", "service not found")
			return appointment.Service{}, vErr
		}
		return appointment.Service{}, err
	}
	if len(services) != 1 {
		return appointment.Service{}, fmt.Errorf("service catalog returned %d records for 1 ID", len(services))
	}
	return services[0], nil
}

func (s *AppointmentService) detectConflicts(ctx context.Context, appt appointment.Appointment) ([]ConflictWarning, error) {
	day := civiltime.StartOfDay(appt.Start)
	existing, err := s.appointments.QueryAppointments(ctx, persistence.AppointmentFilter{
		TenantID:   appt.TenantID,
		EmployeeID: appt.Employee.ID,
		RangeStart: day.AddDate(0, 0, -1),
		RangeEnd:   civiltime.StartOfDay(appt.End).AddDate(0, 0, 1),
	})
	if err != nil {
		return nil, mapStoreError("query appointments", err)
	}

	ids := availability.DetectConflicts(toBookings(existing), availability.Candidate{
		ID:         appt.ID,
		EmployeeID: appt.Employee.ID,
		Start:      appt.Start,
		End:        appt.End,
	})
	var warnings []ConflictWarning
	for _, id := range ids {
		warnings = append(warnings, ConflictWarning{AppointmentID: appt.ID, ConflictsWith: id, EmployeeID: appt.Employee.ID})
	}
	return warnings, nil
}

// TransitionStatus moves an appointment to target through the lifecycle.
func (s *AppointmentService) TransitionStatus(ctx context.Context, params TransitionParams) (appt appointment.Appointment, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}

	op := OpConfirm
	if params.Target.IsCancelled() {
		op = OpCancel
	}
	logger := s.loggerWith(ctx, op,
		"principal_id", params.Principal.UserID,
		"appointment_id", params.AppointmentID,
		"target_status", string(params.Target),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change appointment status", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "appointment status changed")
	}()

	if !params.Target.Valid() {
		vErr := &ValidationError{}
		vErr.add("status", "unknown status")
		err = vErr
		return
	}
	if !params.Principal.Allows(op) {
		err = ErrUnauthorized
		return
	}

	var existing appointment.Appointment
	existing, err = s.load(ctx, params.Principal, params.AppointmentID)
	if err != nil {
		return
	}
	appt, err = s.transition(ctx, existing, params.Target)
	return
}

// CancelAppointment moves an appointment into one of the cancellation states.
func (s *AppointmentService) CancelAppointment(ctx context.Context, principal Principal, id string, variant appointment.Status) (appointment.Appointment, error) {
	if variant == "" {
		variant = appointment.StatusCancelled
	}
	if !variant.IsCancelled() {
		vErr := &ValidationError{}
		vErr.add("status", "not a cancellation status")
		return appointment.Appointment{}, vErr
	}
	return s.TransitionStatus(ctx, TransitionParams{Principal: principal, AppointmentID: id, Target: variant})
}

func (s *AppointmentService) transition(ctx context.Context, existing appointment.Appointment, target appointment.Status) (appointment.Appointment, error) {
	status, err := existing.Status.Transition(target)
	if err != nil {
		return appointment.Appointment{}, err
	}
	updated := existing.Clone()
	updated.Status = status
	updated.UpdatedAt = s.now()

	persisted, err := s.appointments.UpdateAppointment(ctx, updated)
	if err != nil {
		return appointment.Appointment{}, mapStoreError("update appointment", err)
	}
	s.warnings.Invalidate(persisted.TenantID)
	return persisted, nil
}

// SetClientConfirmation records or clears the client's acknowledgment. The
// original timestamp is kept when the flag is already set.
func (s *AppointmentService) SetClientConfirmation(ctx context.Context, params ClientConfirmationParams) (appt appointment.Appointment, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}

	logger := s.loggerWith(ctx, OpClientConfirmation,
		"principal_id", params.Principal.UserID,
		"appointment_id", params.AppointmentID,
		"confirmed", params.Confirmed,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to set client confirmation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "client confirmation recorded")
	}()

	if !params.Principal.Allows(OpClientConfirmation) {
		err = ErrUnauthorized
		return
	}

	var existing appointment.Appointment
	existing, err = s.load(ctx, params.Principal, params.AppointmentID)
	if err != nil {
		return
	}
	if existing.Status.IsCancelled() {
		vErr := &ValidationError{}
		vErr.add("status", "a cancelled appointment cannot be confirmed by the client")
		err = vErr
		return
	}
	if existing.ClientConfirmed == params.Confirmed {
		appt = existing
		return
	}

	updated := existing.Clone()
	updated.ClientConfirmed = params.Confirmed
	updated.ClientConfirmedAt = nil
	if params.Confirmed {
		at := s.now()
		updated.ClientConfirmedAt = &at
	}
	updated.UpdatedAt = s.now()

	appt, err = s.appointments.UpdateAppointment(ctx, updated)
	if err != nil {
		err = mapStoreError("update appointment", err)
	}
	return
}

// ConfirmBatch confirms each ID independently and reports the outcome per ID.
// Only request-level problems fail the call.
func (s *AppointmentService) ConfirmBatch(ctx context.Context, principal Principal, ids []string) (result ConfirmBatchResult, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}

	logger := s.loggerWith(ctx, OpConfirmBatch,
		"principal_id", principal.UserID,
		"requested", len(ids),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to confirm appointments", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"confirmed", len(result.Confirmed),
			"already_confirmed", len(result.AlreadyConfirmed),
			"failed", len(result.Failed),
		).InfoContext(ctx, "appointments confirmed")
	}()

	if !principal.Allows(OpConfirmBatch) {
		err = ErrUnauthorized
		return
	}
	if len(ids) == 0 {
		vErr := &ValidationError{}
		vErr.add("ids", "at least one appointment ID is required")
		err = vErr
		return
	}

	result = ConfirmBatchResult{Confirmed: []string{}, AlreadyConfirmed: []string{}, Failed: []ConfirmFailure{}}
	for _, id := range ids {
		existing, loadErr := s.load(ctx, principal, id)
		if loadErr != nil {
			result.Failed = append(result.Failed, ConfirmFailure{ID: id, Reason: ErrorKind(loadErr), Message: loadErr.Error()})
			continue
		}
		if existing.Status == appointment.StatusConfirmed {
			result.AlreadyConfirmed = append(result.AlreadyConfirmed, id)
			continue
		}
		if _, tErr := s.transition(ctx, existing, appointment.StatusConfirmed); tErr != nil {
			result.Failed = append(result.Failed, ConfirmFailure{ID: id, Reason: ErrorKind(tErr), Message: tErr.Error()})
			continue
		}
		result.Confirmed = append(result.Confirmed, id)
	}
	return
}

// DeleteAppointment removes an appointment permanently.
func (s *AppointmentService) DeleteAppointment(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("AppointmentService is nil")
	}

	logger := s.loggerWith(ctx, OpDelete,
		"principal_id", principal.UserID,
		"appointment_id", id,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete appointment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "appointment deleted")
	}()

	if !principal.Allows(OpDelete) {
		return ErrUnauthorized
	}
	if s.appointments == nil {
		return fmt.Errorf("appointment store not configured")
	}
	if err = s.appointments.DeleteAppointment(ctx, principal.TenantID, id); err != nil {
		return mapStoreError("delete appointment", err)
	}
	s.warnings.Invalidate(principal.TenantID)
	return nil
}

// QueryAppointments lists the appointments visible to the principal that
// start in [RangeStart, RangeEnd), with overlap warnings among them.
func (s *AppointmentService) QueryAppointments(ctx context.Context, params QueryParams) (result QueryResult, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}

	logger := s.loggerWith(ctx, OpQuery,
		"principal_id", params.Principal.UserID,
		"tenant_id", params.Principal.TenantID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to query appointments", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("count", len(result.Appointments), "warnings", len(result.Warnings)).InfoContext(ctx, "appointments queried")
	}()

	if !params.Principal.Allows(OpQuery) {
		err = ErrUnauthorized
		return
	}
	if !params.RangeStart.IsZero() && !params.RangeEnd.IsZero() && !params.RangeEnd.After(params.RangeStart) {
		vErr := &ValidationError{}
		vErr.add("end", "range end must be after range start")
		err = vErr
		return
	}

	var filter persistence.AppointmentFilter
	filter, err = ScopeFilter(params.Principal, params.RangeStart, params.RangeEnd)
	if err != nil {
		return
	}
	if params.EmployeeID != "" {
		if !params.Principal.CanAccessEmployee(params.EmployeeID) {
			err = ErrUnauthorized
			return
		}
		filter.EmployeeID = params.EmployeeID
	}
	if s.appointments == nil {
		err = fmt.Errorf("appointment store not configured")
		return
	}

	var list []appointment.Appointment
	list, err = s.appointments.QueryAppointments(ctx, filter)
	if err != nil {
		err = mapStoreError("query appointments", err)
		return
	}
	result.Appointments = list

	key := buildWarningCacheKey(filter, list)
	if cached, ok := s.warnings.Get(filter.TenantID, key); ok {
		result.Warnings = cached
		return
	}
	result.Warnings = overlapWarnings(list)
	s.warnings.Store(filter.TenantID, key, result.Warnings)
	return
}

// ScopeFilter builds the store filter for what principal may see in
// [start, end). Principals without a view-all grant only see their own
// employee's appointments.
func ScopeFilter(principal Principal, start, end time.Time) (persistence.AppointmentFilter, error) {
	if principal.TenantID == "" {
		return persistence.AppointmentFilter{}, ErrUnauthorized
	}
	filter := persistence.AppointmentFilter{
		TenantID:   principal.TenantID,
		RangeStart: start,
		RangeEnd:   end,
	}
	if principal.IsAdmin || principal.CanViewAll {
		return filter, nil
	}
	if principal.EmployeeID == "" {
		return persistence.AppointmentFilter{}, ErrUnauthorized
	}
	filter.EmployeeID = principal.EmployeeID
	return filter, nil
}

func overlapWarnings(list []appointment.Appointment) []ConflictWarning {
	bookings := toBookings(list)
	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].Start.Before(bookings[j].Start)
	})
	employees := make(map[string]string, len(bookings))
	for _, b := range bookings {
		employees[b.ID] = b.EmployeeID
	}
	var warnings []ConflictWarning
	for _, pair := range availability.DetectOverlaps(bookings) {
		warnings = append(warnings, ConflictWarning{AppointmentID: pair.First, ConflictsWith: pair.Second, EmployeeID: employees[pair.First]})
	}
	return warnings
}

// load fetches an appointment and enforces the principal's employee scope.
func (s *AppointmentService) load(ctx context.Context, principal Principal, id string) (appointment.Appointment, error) {
	if s.appointments == nil {
		return appointment.Appointment{}, fmt.Errorf("appointment store not configured")
	}
	if strings.TrimSpace(id) == "" {
		vErr := &ValidationError{}
		vErr.add("id", "appointment ID is required")
		return appointment.Appointment{}, vErr
	}
	appt, err := s.appointments.GetAppointment(ctx, principal.TenantID, id)
	if err != nil {
		return appointment.Appointment{}, mapStoreError("get appointment", err)
	}
	if !principal.CanAccessEmployee(appt.Employee.ID) {
		return appointment.Appointment{}, ErrUnauthorized
	}
	return appt, nil
}
