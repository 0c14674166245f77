package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/availability"
	"github.com/example/appointment-scheduler/internal/civiltime"
	"github.com/example/appointment-scheduler/internal/persistence"
	"github.com/example/appointment-scheduler/internal/recurrence"
)

// BookingService expands booking requests into occurrences, classifies them
// and persists the ones the request's options allow.
type BookingService struct {
	appointments AppointmentStore
	hours        HoursProvider
	catalog      ServiceCatalog
	notifier     Notifier
	engine       *recurrence.Engine
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewBookingService wires dependencies for booking operations.
func NewBookingService(appointments AppointmentStore, hours HoursProvider, catalog ServiceCatalog, notifier Notifier, engine *recurrence.Engine, idGenerator func() string, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(appointments, hours, catalog, notifier, engine, idGenerator, now, nil)
}

// NewBookingServiceWithLogger wires dependencies with a specified logger.
func NewBookingServiceWithLogger(appointments AppointmentStore, hours HoursProvider, catalog ServiceCatalog, notifier Notifier, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BookingService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if engine == nil {
		engine = recurrence.NewEngine(0)
	}
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		appointments: appointments,
		hours:        hours,
		catalog:      catalog,
		notifier:     notifier,
		engine:       engine,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

type plannedOccurrence struct {
	service appointment.Service
	start   time.Time
	end     time.Time
}

type bookingPlan struct {
	tenantID    string
	clientID    string
	employeeID  string
	occurrences []plannedOccurrence
	hours       availability.Config
	pattern     *recurrence.Pattern
	// pricingOnFirst attaches advance payment, custom price and items to the
	// first occurrence only.
	pricingOnFirst  bool
	advancePayment  decimal.Decimal
	customPrice     *decimal.Decimal
	additionalItems []appointment.AdditionalItem
	notes           string
}

// PreviewSeries classifies every occurrence of the request without persisting.
func (s *BookingService) PreviewSeries(ctx context.Context, req SeriesRequest) (preview SeriesPreview, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, string(OpPreviewSeries),
		"principal_id", req.Principal.UserID,
		"tenant_id", req.Principal.TenantID,
		"employee_id", req.EmployeeID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to preview series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"total_occurrences", preview.TotalOccurrences,
			"available_count", preview.AvailableCount,
		).InfoContext(ctx, "series previewed")
	}()

	if !req.Principal.Allows(OpPreviewSeries) {
		err = ErrUnauthorized
		return
	}

	var plan bookingPlan
	plan, err = s.planSeries(ctx, req)
	if err != nil {
		return
	}
	preview, err = s.preview(ctx, plan)
	return
}

// CreateSeries persists every occurrence of the request that the options
// allow and reports the rest as skipped. Per-occurrence failures never fail
// the call.
func (s *BookingService) CreateSeries(ctx context.Context, req SeriesRequest) (resp CreateSeriesResponse, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, string(OpCreateSeries),
		"principal_id", req.Principal.UserID,
		"tenant_id", req.Principal.TenantID,
		"employee_id", req.EmployeeID,
		"preview_only", req.Options.PreviewOnly,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"series_id", resp.SeriesID,
			"total_occurrences", resp.TotalOccurrences,
			"created", resp.CreatedCount,
			"skipped", len(resp.Skipped),
		).InfoContext(ctx, "series created")
	}()

	op := OpCreateSeries
	if req.Options.PreviewOnly {
		op = OpPreviewSeries
	}
	if !req.Principal.Allows(op) {
		err = ErrUnauthorized
		return
	}

	var plan bookingPlan
	plan, err = s.planSeries(ctx, req)
	if err != nil {
		return
	}

	if req.Options.PreviewOnly {
		var preview SeriesPreview
		preview, err = s.preview(ctx, plan)
		if err != nil {
			return
		}
		resp.Preview = &preview
		return
	}

	if s.appointments == nil {
		err = fmt.Errorf("appointment store not configured")
		return
	}

	resp = s.runBatch(ctx, logger, plan, req.Options, s.idGenerator(), true)
	return
}

// CreateSingleOrCoScheduled books one or more services back to back from the
// requested start. Several services share one series ID; a single service
// produces a standalone appointment.
func (s *BookingService) CreateSingleOrCoScheduled(ctx context.Context, req CoScheduledRequest) (resp CreateSeriesResponse, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, string(OpCreateAppointments),
		"principal_id", req.Principal.UserID,
		"tenant_id", req.Principal.TenantID,
		"employee_id", req.EmployeeID,
		"services", len(req.ServiceIDs),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create appointments", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"series_id", resp.SeriesID,
			"created", resp.CreatedCount,
			"skipped", len(resp.Skipped),
		).InfoContext(ctx, "appointments created")
	}()

	op := OpCreateAppointments
	if req.Options.PreviewOnly {
		op = OpPreviewSeries
	}
	if !req.Principal.Allows(op) {
		err = ErrUnauthorized
		return
	}

	var plan bookingPlan
	plan, err = s.planCoScheduled(ctx, req)
	if err != nil {
		return
	}

	if req.Options.PreviewOnly {
		var preview SeriesPreview
		preview, err = s.preview(ctx, plan)
		if err != nil {
			return
		}
		resp.Preview = &preview
		return
	}

	if s.appointments == nil {
		err = fmt.Errorf("appointment store not configured")
		return
	}

	seriesID := ""
	if len(plan.occurrences) > 1 {
		seriesID = s.idGenerator()
	}
	resp = s.runBatch(ctx, logger, plan, req.Options, seriesID, seriesID != "")
	return
}

func (s *BookingService) planSeries(ctx context.Context, req SeriesRequest) (bookingPlan, error) {
	vErr := &ValidationError{}
	validateBookingCore(req.ClientID, req.EmployeeID, req.Start, req.AdvancePayment, req.CustomPrice, req.AdditionalItems, vErr)
	if strings.TrimSpace(req.ServiceID) == "" {
		vErr.add("service_id", "service is required")
	}
	if req.End != nil && !req.End.After(req.Start) {
		vErr.add("end", "end must be after start")
	}
	if err := req.Pattern.Validate(); err != nil {
		vErr.add("pattern", err.Error())
	}
	if vErr.HasErrors() {
		return bookingPlan{}, vErr
	}

	tenantID := req.Principal.TenantID
	services, err := s.resolveServices(ctx, tenantID, []string{req.ServiceID})
	if err != nil {
		return bookingPlan{}, err
	}
	svc := services[0]

	duration := svc.Duration
	if req.End != nil {
		duration = req.End.Sub(req.Start)
	}
	if duration <= 0 {
		vErr.add("end", "appointment duration must be positive")
		return bookingPlan{}, vErr
	}

	occurrences, err := s.engine.Expand(req.Start, req.Start.Add(duration), req.Pattern)
	if err != nil {
		var overflow *recurrence.OverflowError
		if errors.As(err, &overflow) {
			return bookingPlan{}, err
		}
		vErr.add("pattern", err.Error())
		return bookingPlan{}, vErr
	}

	hours, err := s.operatingHours(ctx, tenantID, req.EmployeeID)
	if err != nil {
		return bookingPlan{}, err
	}

	plan := bookingPlan{
		tenantID:        tenantID,
		clientID:        strings.TrimSpace(req.ClientID),
		employeeID:      strings.TrimSpace(req.EmployeeID),
		hours:           hours,
		advancePayment:  req.AdvancePayment,
		customPrice:     req.CustomPrice,
		additionalItems: req.AdditionalItems,
		notes:           req.Notes,
	}
	if req.Pattern.IsRecurring() {
		pattern := req.Pattern
		pattern.Weekdays = recurrence.NormalizeWeekdays(pattern.Weekdays)
		plan.pattern = &pattern
	}
	for _, occ := range occurrences {
		plan.occurrences = append(plan.occurrences, plannedOccurrence{service: svc, start: occ.Start, end: occ.End})
	}
	return plan, nil
}

func (s *BookingService) planCoScheduled(ctx context.Context, req CoScheduledRequest) (bookingPlan, error) {
	vErr := &ValidationError{}
	validateBookingCore(req.ClientID, req.EmployeeID, req.Start, req.AdvancePayment, req.CustomPrice, req.AdditionalItems, vErr)
	if len(req.ServiceIDs) == 0 {
		vErr.add("service_ids", "at least one service is required")
	}
	for _, id := range req.ServiceIDs {
		if strings.TrimSpace(id) == "" {
			vErr.add("service_ids", "service IDs must not be blank")
			break
		}
	}
	if req.End != nil {
		switch {
		case len(req.ServiceIDs) > 1:
			vErr.add("end", "an explicit end is only allowed for a single service")
		case !req.End.After(req.Start):
			vErr.add("end", "end must be after start")
		}
	}
	if vErr.HasErrors() {
		return bookingPlan{}, vErr
	}

	tenantID := req.Principal.TenantID
	services, err := s.resolveServices(ctx, tenantID, req.ServiceIDs)
	if err != nil {
		return bookingPlan{}, err
	}

	hours, err := s.operatingHours(ctx, tenantID, req.EmployeeID)
	if err != nil {
		return bookingPlan{}, err
	}

	plan := bookingPlan{
		tenantID:        tenantID,
		clientID:        strings.TrimSpace(req.ClientID),
		employeeID:      strings.TrimSpace(req.EmployeeID),
		hours:           hours,
		pricingOnFirst:  true,
		advancePayment:  req.AdvancePayment,
		customPrice:     req.CustomPrice,
		additionalItems: req.AdditionalItems,
		notes:           req.Notes,
	}

	cursor := req.Start
	for _, svc := range services {
		duration := svc.Duration
		if req.End != nil {
			duration = req.End.Sub(req.Start)
		}
		if duration <= 0 {
			vErr.add("service_ids", fmt.Sprintf("service %s has no duration", svc.ID))
			return bookingPlan{}, vErr
		}
		plan.occurrences = append(plan.occurrences, plannedOccurrence{service: svc, start: cursor, end: cursor.Add(duration)})
		cursor = cursor.Add(duration)
	}
	return plan, nil
}

func validateBookingCore(clientID, employeeID string, start time.Time, advance decimal.Decimal, custom *decimal.Decimal, items []appointment.AdditionalItem, vErr *ValidationError) {
	if strings.TrimSpace(clientID) == "" {
		vErr.add("client_id", "client is required")
	}
	if strings.TrimSpace(employeeID) == "" {
		vErr.add("employee_id", "employee is required")
	}
	if start.IsZero() {
		vErr.add("start", "start is required")
	}
	if advance.IsNegative() {
		vErr.add("advance_payment", "advance payment must not be negative")
	}
	if custom != nil && custom.IsNegative() {
		vErr.add("custom_price", "custom price must not be negative")
	}
	for _, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			vErr.add("additional_items", "item name is required")
			break
		}
		if item.Price.IsNegative() {
			vErr.add("additional_items", "item price must not be negative")
			break
		}
	}
}

// resolveServices returns the catalog records for ids in request order.
func (s *BookingService) resolveServices(ctx context.Context, tenantID string, ids []string) ([]appointment.Service, error) {
	if s.catalog == nil {
		return nil, fmt.Errorf("service catalog not configured")
	}
	services, err := s.catalog.Services(ctx, tenantID, ids)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			vErr := &ValidationError{}
			field := "service_id"
			if len(ids) > 1 {
				field = "service_ids"
			}
			vErr.add(field, "service not found")
			return nil, vErr
		}
		return nil, err
	}
	if len(services) != len(ids) {
		return nil, fmt.Errorf("service catalog returned %d records for %d IDs", len(services), len(ids))
	}
	return services, nil
}

func (s *BookingService) operatingHours(ctx context.Context, tenantID, employeeID string) (availability.Config, error) {
	if s.hours == nil {
		return availability.Config{}, nil
	}
	cfg, err := s.hours.OperatingHours(ctx, tenantID, employeeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			vErr := &ValidationError{}
			vErr.add("employee_id", "employee not found")
			return availability.Config{}, vErr
		}
		return availability.Config{}, fmt.Errorf("load operating hours: %w", err)
	}
	return cfg, nil
}

// preview classifies the plan against one snapshot of the employee's bookings.
func (s *BookingService) preview(ctx context.Context, plan bookingPlan) (SeriesPreview, error) {
	out := SeriesPreview{
		TotalOccurrences: len(plan.occurrences),
		Occurrences:      make([]OccurrencePreview, 0, len(plan.occurrences)),
	}
	if len(plan.occurrences) == 0 {
		return out, nil
	}

	first := plan.occurrences[0]
	last := plan.occurrences[len(plan.occurrences)-1]
	booked, err := s.bookings(ctx, plan.tenantID, plan.employeeID,
		civiltime.StartOfDay(first.start).AddDate(0, 0, -1),
		civiltime.StartOfDay(last.end).AddDate(0, 0, 1),
	)
	if err != nil {
		return SeriesPreview{}, err
	}

	for _, occ := range plan.occurrences {
		res := availability.Check(plan.candidate(occ), plan.hours, booked)
		if res.Status == availability.StatusAvailable {
			out.AvailableCount++
		}
		out.Occurrences = append(out.Occurrences, OccurrencePreview{
			Start:         occ.start,
			End:           occ.end,
			Status:        res.Status,
			Reason:        res.Reason,
			ConflictsWith: res.ConflictsWith,
		})
	}
	return out, nil
}

// runBatch walks the plan in order, re-checking each occurrence against a
// fresh read of the employee's bookings before persisting it.
func (s *BookingService) runBatch(ctx context.Context, logger *slog.Logger, plan bookingPlan, opts CreateSeriesOptions, seriesID string, numbered bool) CreateSeriesResponse {
	resp := CreateSeriesResponse{
		SeriesID:         seriesID,
		TotalOccurrences: len(plan.occurrences),
		Created:          []CreatedOccurrence{},
		Skipped:          []SkippedOccurrence{},
	}

	number := 0
	for i, occ := range plan.occurrences {
		if err := ctx.Err(); err != nil {
			for _, rest := range plan.occurrences[i:] {
				resp.Skipped = append(resp.Skipped, SkippedOccurrence{
					Start:   rest.start,
					End:     rest.end,
					Reason:  SkipCancelled,
					Message: err.Error(),
				})
			}
			logger.WarnContext(ctx, "batch interrupted", "remaining", len(plan.occurrences)-i, "error", err)
			break
		}

		booked, err := s.bookings(ctx, plan.tenantID, plan.employeeID,
			civiltime.StartOfDay(occ.start).AddDate(0, 0, -1),
			civiltime.StartOfDay(occ.end).AddDate(0, 0, 1),
		)
		if err != nil {
			resp.Skipped = append(resp.Skipped, SkippedOccurrence{
				Start:   occ.start,
				End:     occ.end,
				Reason:  SkipStorageError,
				Message: err.Error(),
			})
			continue
		}

		res := availability.Check(plan.candidate(occ), plan.hours, booked)
		skip := SkippedOccurrence{Start: occ.start, End: occ.end, Status: res.Status, Message: res.Reason}
		switch res.Status {
		case availability.StatusError:
			skip.Reason = SkipError
			resp.Skipped = append(resp.Skipped, skip)
			continue
		case availability.StatusNoWork:
			if opts.OmitIfNoWork {
				skip.Reason = SkipNoWork
				resp.Skipped = append(resp.Skipped, skip)
				continue
			}
			// Booking outside working time is allowed here; overlapping is not
			// unless overbooking is.
			if len(res.ConflictsWith) > 0 && opts.blocksConflicts() {
				skip.Reason = SkipConflict
				skip.Message = fmt.Sprintf("%s; overlaps %d existing appointment(s)", res.Reason, len(res.ConflictsWith))
				resp.Skipped = append(resp.Skipped, skip)
				continue
			}
		case availability.StatusConflict:
			if opts.blocksConflicts() {
				skip.Reason = SkipConflict
				resp.Skipped = append(resp.Skipped, skip)
				continue
			}
		}

		occurrenceNumber := 0
		if numbered {
			number++
			occurrenceNumber = number
		}
		appt := s.buildAppointment(plan, i, occ, seriesID, occurrenceNumber)

		created, err := s.appointments.CreateAppointment(ctx, appt)
		if err != nil {
			err = mapStoreError("create appointment", err)
			if errors.Is(err, persistence.ErrSlotTaken) {
				skip.Status = availability.StatusConflict
			}
			skip.Reason = SkipStorageError
			skip.Message = err.Error()
			skip.OccurrenceNumber = occurrenceNumber
			resp.Skipped = append(resp.Skipped, skip)
			logger.WarnContext(ctx, "occurrence not persisted",
				"start", civiltime.ToWire(occ.start),
				"occurrence_number", occurrenceNumber,
				"error", err,
				"error_kind", ErrorKind(err),
			)
			continue
		}

		resp.Created = append(resp.Created, CreatedOccurrence{
			ID:               created.ID,
			ServiceID:        occ.service.ID,
			Start:            created.Start,
			End:              created.End,
			OccurrenceNumber: created.OccurrenceNumber,
		})
		resp.Appointments = append(resp.Appointments, created)
	}

	resp.CreatedCount = len(resp.Created)
	resp.Summary = Summary{
		Total:   resp.TotalOccurrences,
		Created: resp.CreatedCount,
		Skipped: len(resp.Skipped),
	}

	s.notify(ctx, logger, plan.tenantID, resp.Appointments, opts)
	return resp
}

func (s *BookingService) buildAppointment(plan bookingPlan, index int, occ plannedOccurrence, seriesID string, number int) appointment.Appointment {
	now := s.now()
	appt := appointment.Appointment{
		ID:                s.idGenerator(),
		TenantID:          plan.tenantID,
		Client:            appointment.RefTo[appointment.Client](plan.clientID),
		Employee:          appointment.RefTo[appointment.Employee](plan.employeeID),
		Service:           appointment.Expand(occ.service.ID, occ.service),
		Start:             occ.start,
		End:               occ.end,
		Status:            appointment.StatusPending,
		Notes:             plan.notes,
		SeriesID:          seriesID,
		OccurrenceNumber:  number,
		RecurrencePattern: plan.pattern,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if !plan.pricingOnFirst || index == 0 {
		appt.AdvancePayment = plan.advancePayment
		appt.CustomPrice = plan.customPrice
		appt.AdditionalItems = plan.additionalItems
	}
	return appt.Clone()
}

func (s *BookingService) notify(ctx context.Context, logger *slog.Logger, tenantID string, created []appointment.Appointment, opts CreateSeriesOptions) {
	if opts.SkipNotification || len(created) == 0 {
		return
	}
	targets := created[:1]
	if opts.NotifyAllAppointments {
		targets = created
	}
	if err := s.notifier.NotifyAppointments(ctx, tenantID, targets); err != nil {
		logger.WarnContext(ctx, "failed to dispatch notification", "error", err, "appointments", len(targets))
	}
}

// bookings reads the employee's appointments starting in [from, to).
func (s *BookingService) bookings(ctx context.Context, tenantID, employeeID string, from, to time.Time) ([]availability.Booking, error) {
	if s.appointments == nil {
		return nil, nil
	}
	existing, err := s.appointments.QueryAppointments(ctx, persistence.AppointmentFilter{
		TenantID:   tenantID,
		EmployeeID: employeeID,
		RangeStart: from,
		RangeEnd:   to,
	})
	if err != nil {
		return nil, mapStoreError("query appointments", err)
	}
	return toBookings(existing), nil
}

func (p bookingPlan) candidate(occ plannedOccurrence) availability.Candidate {
	return availability.Candidate{EmployeeID: p.employeeID, Start: occ.start, End: occ.end}
}

func toBookings(appointments []appointment.Appointment) []availability.Booking {
	out := make([]availability.Booking, 0, len(appointments))
	for _, a := range appointments {
		out = append(out, availability.Booking{
			ID:         a.ID,
			EmployeeID: a.Employee.ID,
			Start:      a.Start,
			End:        a.End,
			Cancelled:  a.Status.IsCancelled(),
		})
	}
	return out
}
