package http

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/civiltime"
	"github.com/example/appointment-scheduler/internal/recurrence"
)

const (
	msgBadTimestamp = "must be formatted as 2006-01-02T15:04:05"
	msgBadDate      = "must be formatted as 2006-01-02"
)

// wireTimes parses civil wire values in one tenant location and collects
// every malformed field.
type wireTimes struct {
	loc  *time.Location
	errs map[string]string
}

func newWireTimes(loc *time.Location) *wireTimes {
	return &wireTimes{loc: loc}
}

func (w *wireTimes) fail(field, message string) {
	if w.errs == nil {
		w.errs = make(map[string]string)
	}
	w.errs[field] = message
}

func (w *wireTimes) timestamp(field, value string) time.Time {
	if strings.TrimSpace(value) == "" {
		return time.Time{}
	}
	ts, err := civiltime.FromWire(value, w.loc)
	if err != nil {
		w.fail(field, msgBadTimestamp)
	}
	return ts
}

func (w *wireTimes) optionalTimestamp(field, value string) *time.Time {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	ts := w.timestamp(field, value)
	return &ts
}

func (w *wireTimes) date(field, value string) time.Time {
	if strings.TrimSpace(value) == "" {
		return time.Time{}
	}
	ts, err := civiltime.FromWireDate(value, w.loc)
	if err != nil {
		w.fail(field, msgBadDate)
	}
	return ts
}

func (w *wireTimes) err() error {
	if len(w.errs) == 0 {
		return nil
	}
	return &application.ValidationError{FieldErrors: w.errs}
}

// ----------------------------- Requests -----------------------------

type patternDTO struct {
	Type          string `json:"type" validate:"omitempty,oneof=weekly none"`
	IntervalWeeks int    `json:"interval_weeks,omitempty" validate:"omitempty,min=1"`
	Weekdays      []int  `json:"weekdays,omitempty" validate:"omitempty,dive,min=0,max=6"`
	EndType       string `json:"end_type,omitempty" validate:"omitempty,oneof=date count"`
	EndDate       string `json:"end_date,omitempty"`
	Count         int    `json:"count,omitempty" validate:"omitempty,min=1"`
}

func (p patternDTO) toPattern(times *wireTimes) recurrence.Pattern {
	pattern := recurrence.Pattern{
		Type:          recurrence.Type(p.Type),
		IntervalWeeks: p.IntervalWeeks,
		EndType:       recurrence.EndType(p.EndType),
		EndDate:       times.date("pattern.end_date", p.EndDate),
		Count:         p.Count,
	}
	if pattern.Type == "" {
		pattern.Type = recurrence.TypeNone
	}
	for _, d := range p.Weekdays {
		pattern.Weekdays = append(pattern.Weekdays, time.Weekday(d))
	}
	return pattern
}

func toPatternDTO(p *recurrence.Pattern) *patternDTO {
	if p == nil {
		return nil
	}
	out := &patternDTO{
		Type:          string(p.Type),
		IntervalWeeks: p.IntervalWeeks,
		EndType:       string(p.EndType),
		EndDate:       civiltime.ToWireDate(p.EndDate),
		Count:         p.Count,
	}
	for _, d := range p.Weekdays {
		out.Weekdays = append(out.Weekdays, int(d))
	}
	return out
}

type optionsDTO struct {
	PreviewOnly           bool `json:"preview_only"`
	AllowOverbooking      bool `json:"allow_overbooking"`
	OmitIfNoWork          bool `json:"omit_if_no_work"`
	OmitIfConflict        bool `json:"omit_if_conflict"`
	SkipNotification      bool `json:"skip_notification"`
	NotifyAllAppointments bool `json:"notify_all_appointments"`
}

func (o optionsDTO) toOptions() application.CreateSeriesOptions {
	return application.CreateSeriesOptions(o)
}

type additionalItemDTO struct {
	Name  string          `json:"name" validate:"required"`
	Price decimal.Decimal `json:"price"`
}

func toAdditionalItems(items []additionalItemDTO) []appointment.AdditionalItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]appointment.AdditionalItem, 0, len(items))
	for _, item := range items {
		out = append(out, appointment.AdditionalItem{Name: strings.TrimSpace(item.Name), Price: item.Price})
	}
	return out
}

func toAdditionalItemDTOs(items []appointment.AdditionalItem) []additionalItemDTO {
	out := make([]additionalItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, additionalItemDTO{Name: item.Name, Price: item.Price})
	}
	return out
}

type seriesRequest struct {
	ClientID        string              `json:"client_id" validate:"required"`
	EmployeeID      string              `json:"employee_id" validate:"required"`
	ServiceID       string              `json:"service_id" validate:"required"`
	Start           string              `json:"start" validate:"required"`
	End             string              `json:"end"`
	AdvancePayment  decimal.Decimal     `json:"advance_payment"`
	CustomPrice     *decimal.Decimal    `json:"custom_price"`
	AdditionalItems []additionalItemDTO `json:"additional_items" validate:"omitempty,dive"`
	Notes           string              `json:"notes"`
	Pattern         patternDTO          `json:"pattern"`
	Options         optionsDTO          `json:"options"`
}

func (r seriesRequest) toRequest(principal application.Principal, loc *time.Location) (application.SeriesRequest, error) {
	times := newWireTimes(loc)
	req := application.SeriesRequest{
		Principal:       principal,
		ClientID:        strings.TrimSpace(r.ClientID),
		EmployeeID:      strings.TrimSpace(r.EmployeeID),
		ServiceID:       strings.TrimSpace(r.ServiceID),
		Start:           times.timestamp("start", r.Start),
		End:             times.optionalTimestamp("end", r.End),
		AdvancePayment:  r.AdvancePayment,
		CustomPrice:     r.CustomPrice,
		AdditionalItems: toAdditionalItems(r.AdditionalItems),
		Notes:           r.Notes,
		Pattern:         r.Pattern.toPattern(times),
		Options:         r.Options.toOptions(),
	}
	return req, times.err()
}

type appointmentsRequest struct {
	ClientID        string              `json:"client_id" validate:"required"`
	EmployeeID      string              `json:"employee_id" validate:"required"`
	ServiceIDs      []string            `json:"service_ids" validate:"required,min=1"`
	Start           string              `json:"start" validate:"required"`
	End             string              `json:"end"`
	AdvancePayment  decimal.Decimal     `json:"advance_payment"`
	CustomPrice     *decimal.Decimal    `json:"custom_price"`
	AdditionalItems []additionalItemDTO `json:"additional_items" validate:"omitempty,dive"`
	Notes           string              `json:"notes"`
	Options         optionsDTO          `json:"options"`
}

func (r appointmentsRequest) toRequest(principal application.Principal, loc *time.Location) (application.CoScheduledRequest, error) {
	times := newWireTimes(loc)
	ids := make([]string, 0, len(r.ServiceIDs))
	for _, id := range r.ServiceIDs {
		ids = append(ids, strings.TrimSpace(id))
	}
	req := application.CoScheduledRequest{
		Principal:       principal,
		ClientID:        strings.TrimSpace(r.ClientID),
		EmployeeID:      strings.TrimSpace(r.EmployeeID),
		ServiceIDs:      ids,
		Start:           times.timestamp("start", r.Start),
		End:             times.optionalTimestamp("end", r.End),
		AdvancePayment:  r.AdvancePayment,
		CustomPrice:     r.CustomPrice,
		AdditionalItems: toAdditionalItems(r.AdditionalItems),
		Notes:           r.Notes,
		Options:         r.Options.toOptions(),
	}
	return req, times.err()
}

type patchRequest struct {
	ClientID         *string              `json:"client_id"`
	EmployeeID       *string              `json:"employee_id"`
	ServiceID        *string              `json:"service_id"`
	Start            *string              `json:"start"`
	End              *string              `json:"end"`
	Status           *string              `json:"status"`
	AdvancePayment   *decimal.Decimal     `json:"advance_payment"`
	CustomPrice      *decimal.Decimal     `json:"custom_price"`
	ClearCustomPrice bool                 `json:"clear_custom_price"`
	AdditionalItems  *[]additionalItemDTO `json:"additional_items"`
	Notes            *string              `json:"notes"`
}

func (r patchRequest) toPatch(loc *time.Location) (application.AppointmentPatch, error) {
	times := newWireTimes(loc)
	patch := application.AppointmentPatch{
		ClientID:         trimmed(r.ClientID),
		EmployeeID:       trimmed(r.EmployeeID),
		ServiceID:        trimmed(r.ServiceID),
		AdvancePayment:   r.AdvancePayment,
		CustomPrice:      r.CustomPrice,
		ClearCustomPrice: r.ClearCustomPrice,
		Notes:            r.Notes,
	}
	if r.Start != nil {
		ts := times.timestamp("start", *r.Start)
		if strings.TrimSpace(*r.Start) == "" {
			times.fail("start", "start is required")
		}
		patch.Start = &ts
	}
	if r.End != nil {
		ts := times.timestamp("end", *r.End)
		if strings.TrimSpace(*r.End) == "" {
			times.fail("end", "end must be after start")
		}
		patch.End = &ts
	}
	if r.Status != nil {
		status, err := appointment.ParseStatus(*r.Status)
		if err != nil {
			times.fail("status", "unknown status")
		}
		patch.Status = &status
	}
	if r.AdditionalItems != nil {
		items := toAdditionalItems(*r.AdditionalItems)
		if items == nil {
			items = []appointment.AdditionalItem{}
		}
		patch.AdditionalItems = &items
	}
	return patch, times.err()
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type clientConfirmationRequest struct {
	Confirmed bool `json:"confirmed"`
}

type confirmBatchRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

// ----------------------------- Responses -----------------------------

type appointmentDTO struct {
	ID                string              `json:"id"`
	ClientID          string              `json:"client_id"`
	EmployeeID        string              `json:"employee_id"`
	ServiceID         string              `json:"service_id"`
	ServiceName       string              `json:"service_name,omitempty"`
	Start             string              `json:"start"`
	End               string              `json:"end"`
	Status            string              `json:"status"`
	ClientConfirmed   bool                `json:"client_confirmed"`
	ClientConfirmedAt string              `json:"client_confirmed_at,omitempty"`
	AdvancePayment    decimal.Decimal     `json:"advance_payment"`
	CustomPrice       *decimal.Decimal    `json:"custom_price,omitempty"`
	AdditionalItems   []additionalItemDTO `json:"additional_items"`
	TotalPrice        decimal.Decimal     `json:"total_price"`
	Notes             string              `json:"notes,omitempty"`
	SeriesID          string              `json:"series_id,omitempty"`
	OccurrenceNumber  int                 `json:"occurrence_number,omitempty"`
	RecurrencePattern *patternDTO         `json:"recurrence_pattern,omitempty"`
	CreatedAt         string              `json:"created_at"`
	UpdatedAt         string              `json:"updated_at"`
}

// toAppointmentDTO renders appointment times as they are and bookkeeping
// instants in the tenant location.
func toAppointmentDTO(a appointment.Appointment, loc *time.Location) appointmentDTO {
	dto := appointmentDTO{
		ID:                a.ID,
		ClientID:          a.Client.ID,
		EmployeeID:        a.Employee.ID,
		ServiceID:         a.Service.ID,
		Start:             civiltime.ToWire(a.Start),
		End:               civiltime.ToWire(a.End),
		Status:            string(a.Status),
		ClientConfirmed:   a.ClientConfirmed,
		AdvancePayment:    a.AdvancePayment,
		CustomPrice:       a.CustomPrice,
		AdditionalItems:   toAdditionalItemDTOs(a.AdditionalItems),
		TotalPrice:        a.TotalPrice(),
		Notes:             a.Notes,
		SeriesID:          a.SeriesID,
		OccurrenceNumber:  a.OccurrenceNumber,
		RecurrencePattern: toPatternDTO(a.RecurrencePattern),
		CreatedAt:         instant(a.CreatedAt, loc),
		UpdatedAt:         instant(a.UpdatedAt, loc),
	}
	if svc, ok := a.Service.Resolved(); ok {
		dto.ServiceName = svc.Name
	}
	if a.ClientConfirmedAt != nil {
		dto.ClientConfirmedAt = instant(*a.ClientConfirmedAt, loc)
	}
	return dto
}

func toAppointmentDTOs(list []appointment.Appointment, loc *time.Location) []appointmentDTO {
	out := make([]appointmentDTO, 0, len(list))
	for _, a := range list {
		out = append(out, toAppointmentDTO(a, loc))
	}
	return out
}

func instant(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return civiltime.ToWire(t.In(loc))
}

type conflictWarningDTO struct {
	AppointmentID string `json:"appointment_id"`
	ConflictsWith string `json:"conflicts_with"`
	EmployeeID    string `json:"employee_id,omitempty"`
}

func toWarningDTOs(warnings []application.ConflictWarning) []conflictWarningDTO {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]conflictWarningDTO, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, conflictWarningDTO(w))
	}
	return out
}

type occurrenceDTO struct {
	Start         string   `json:"start"`
	End           string   `json:"end"`
	Status        string   `json:"status"`
	Reason        string   `json:"reason,omitempty"`
	ConflictsWith []string `json:"conflicts_with,omitempty"`
}

type previewDTO struct {
	TotalOccurrences int             `json:"total_occurrences"`
	AvailableCount   int             `json:"available_count"`
	Occurrences      []occurrenceDTO `json:"occurrences"`
}

func toPreviewDTO(p application.SeriesPreview) previewDTO {
	out := previewDTO{
		TotalOccurrences: p.TotalOccurrences,
		AvailableCount:   p.AvailableCount,
		Occurrences:      make([]occurrenceDTO, 0, len(p.Occurrences)),
	}
	for _, o := range p.Occurrences {
		out.Occurrences = append(out.Occurrences, occurrenceDTO{
			Start:         civiltime.ToWire(o.Start),
			End:           civiltime.ToWire(o.End),
			Status:        string(o.Status),
			Reason:        o.Reason,
			ConflictsWith: o.ConflictsWith,
		})
	}
	return out
}

type createdDTO struct {
	ID               string `json:"id"`
	ServiceID        string `json:"service_id"`
	Start            string `json:"start"`
	End              string `json:"end"`
	OccurrenceNumber int    `json:"occurrence_number,omitempty"`
}

type skippedDTO struct {
	Start            string `json:"start"`
	End              string `json:"end"`
	Status           string `json:"status"`
	Reason           string `json:"reason"`
	Message          string `json:"message,omitempty"`
	OccurrenceNumber int    `json:"occurrence_number,omitempty"`
}

type summaryDTO struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

type seriesResponse struct {
	SeriesID         string           `json:"series_id,omitempty"`
	TotalOccurrences int              `json:"total_occurrences"`
	CreatedCount     int              `json:"created_count"`
	Created          []createdDTO     `json:"created"`
	Skipped          []skippedDTO     `json:"skipped"`
	Summary          summaryDTO       `json:"summary"`
	Preview          *previewDTO      `json:"preview,omitempty"`
	Appointments     []appointmentDTO `json:"appointments,omitempty"`
}

func toSeriesResponse(resp application.CreateSeriesResponse, loc *time.Location) seriesResponse {
	out := seriesResponse{
		SeriesID:         resp.SeriesID,
		TotalOccurrences: resp.TotalOccurrences,
		CreatedCount:     resp.CreatedCount,
		Created:          make([]createdDTO, 0, len(resp.Created)),
		Skipped:          make([]skippedDTO, 0, len(resp.Skipped)),
		Summary:          summaryDTO(resp.Summary),
	}
	for _, c := range resp.Created {
		out.Created = append(out.Created, createdDTO{
			ID:               c.ID,
			ServiceID:        c.ServiceID,
			Start:            civiltime.ToWire(c.Start),
			End:              civiltime.ToWire(c.End),
			OccurrenceNumber: c.OccurrenceNumber,
		})
	}
	for _, s := range resp.Skipped {
		out.Skipped = append(out.Skipped, skippedDTO{
			Start:            civiltime.ToWire(s.Start),
			End:              civiltime.ToWire(s.End),
			Status:           string(s.Status),
			Reason:           string(s.Reason),
			Message:          s.Message,
			OccurrenceNumber: s.OccurrenceNumber,
		})
	}
	if resp.Preview != nil {
		preview := toPreviewDTO(*resp.Preview)
		out.Preview = &preview
	}
	if len(resp.Appointments) > 0 {
		out.Appointments = toAppointmentDTOs(resp.Appointments, loc)
	}
	return out
}

type appointmentResponse struct {
	Appointment appointmentDTO       `json:"appointment"`
	Warnings    []conflictWarningDTO `json:"warnings,omitempty"`
}

type listAppointmentsResponse struct {
	Appointments []appointmentDTO     `json:"appointments"`
	Warnings     []conflictWarningDTO `json:"warnings,omitempty"`
}

type confirmFailureDTO struct {
	ID      string `json:"id"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

type confirmBatchResponse struct {
	Confirmed        []string            `json:"confirmed"`
	AlreadyConfirmed []string            `json:"already_confirmed"`
	Failed           []confirmFailureDTO `json:"failed"`
}

func toConfirmBatchResponse(r application.ConfirmBatchResult) confirmBatchResponse {
	out := confirmBatchResponse{
		Confirmed:        append([]string{}, r.Confirmed...),
		AlreadyConfirmed: append([]string{}, r.AlreadyConfirmed...),
		Failed:           make([]confirmFailureDTO, 0, len(r.Failed)),
	}
	for _, f := range r.Failed {
		out.Failed = append(out.Failed, confirmFailureDTO(f))
	}
	return out
}
