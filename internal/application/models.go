package application

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/availability"
	"github.com/example/appointment-scheduler/internal/recurrence"
)

// Principal is the caller on whose behalf an operation runs.
type Principal struct {
	TenantID   string
	UserID     string
	EmployeeID string
	CanViewAll bool
	CanCreate  bool
	CanConfirm bool
	CanCancel  bool
	IsAdmin    bool
}

// Operation names an application operation for permission checks and log labels.
type Operation string

const (
	OpPreviewSeries      Operation = "preview_series"
	OpCreateSeries       Operation = "create_series"
	OpCreateAppointments Operation = "create_appointments"
	OpQuery              Operation = "query_appointments"
	OpGet                Operation = "get_appointment"
	OpUpdate             Operation = "update_appointment"
	OpConfirm            Operation = "confirm_appointment"
	OpCancel             Operation = "cancel_appointment"
	OpClientConfirmation Operation = "client_confirmation"
	OpConfirmBatch       Operation = "confirm_batch"
	OpDelete             Operation = "delete_appointment"
)

// Allows reports whether the principal may run op.
func (p Principal) Allows(op Operation) bool {
	if p.TenantID == "" {
		return false
	}
	if p.IsAdmin {
		return true
	}
	switch op {
	case OpPreviewSeries, OpQuery, OpGet:
		return true
	case OpCreateSeries, OpCreateAppointments, OpUpdate:
		return p.CanCreate
	case OpConfirm, OpConfirmBatch, OpClientConfirmation:
		return p.CanConfirm
	case OpCancel:
		return p.CanCancel
	default:
		return false
	}
}

// CanAccessEmployee reports whether the principal may see the employee's appointments.
func (p Principal) CanAccessEmployee(employeeID string) bool {
	if p.IsAdmin || p.CanViewAll {
		return true
	}
	return p.EmployeeID != "" && p.EmployeeID == employeeID
}

// CreateSeriesOptions tunes how a batch handles unavailable occurrences.
type CreateSeriesOptions struct {
	PreviewOnly           bool
	AllowOverbooking      bool
	OmitIfNoWork          bool
	OmitIfConflict        bool
	SkipNotification      bool
	NotifyAllAppointments bool
}

// blocksConflicts reports whether an overlapping occurrence must be skipped.
func (o CreateSeriesOptions) blocksConflicts() bool {
	return o.OmitIfConflict || !o.AllowOverbooking
}

// SeriesRequest asks for a (possibly recurring) appointment of one service.
type SeriesRequest struct {
	Principal  Principal
	ClientID   string
	EmployeeID string
	ServiceID  string
	Start      time.Time
	// End overrides the service duration when set.
	End             *time.Time
	AdvancePayment  decimal.Decimal
	CustomPrice     *decimal.Decimal
	AdditionalItems []appointment.AdditionalItem
	Notes           string
	Pattern         recurrence.Pattern
	Options         CreateSeriesOptions
}

// CoScheduledRequest books one or more services back to back from Start.
type CoScheduledRequest struct {
	Principal       Principal
	ClientID        string
	EmployeeID      string
	ServiceIDs      []string
	Start           time.Time
	End             *time.Time
	AdvancePayment  decimal.Decimal
	CustomPrice     *decimal.Decimal
	AdditionalItems []appointment.AdditionalItem
	Notes           string
	Options         CreateSeriesOptions
}

// OccurrencePreview is the classification of one candidate occurrence.
type OccurrencePreview struct {
	Start         time.Time
	End           time.Time
	Status        availability.Status
	Reason        string
	ConflictsWith []string
}

// SeriesPreview classifies every occurrence of a request without persisting.
type SeriesPreview struct {
	TotalOccurrences int
	AvailableCount   int
	Occurrences      []OccurrencePreview
}

// CreatedOccurrence is an occurrence that was persisted.
type CreatedOccurrence struct {
	ID               string
	ServiceID        string
	Start            time.Time
	End              time.Time
	OccurrenceNumber int
}

// SkipReason is a stable code explaining why an occurrence was not created.
type SkipReason string

const (
	SkipNoWork       SkipReason = "no_work"
	SkipConflict     SkipReason = "conflict"
	SkipError        SkipReason = "error"
	SkipStorageError SkipReason = "storage_error"
	SkipCancelled    SkipReason = "cancelled"
)

// SkippedOccurrence is an occurrence that was not created.
type SkippedOccurrence struct {
	Start            time.Time
	End              time.Time
	Status           availability.Status
	Reason           SkipReason
	Message          string
	OccurrenceNumber int
}

// Summary totals a batch.
type Summary struct {
	Total   int
	Created int
	Skipped int
}

// CreateSeriesResponse reports the outcome of a batch. CreatedCount plus
// len(Skipped) always equals TotalOccurrences.
type CreateSeriesResponse struct {
	SeriesID         string
	TotalOccurrences int
	CreatedCount     int
	Created          []CreatedOccurrence
	Skipped          []SkippedOccurrence
	Summary          Summary
	// Preview is set instead of Created/Skipped for preview-only requests.
	Preview      *SeriesPreview
	Appointments []appointment.Appointment
}

// ConflictWarning reports an appointment overlapping others of the same employee.
type ConflictWarning struct {
	AppointmentID string
	ConflictsWith string
	EmployeeID    string
}

// AppointmentPatch holds the fields of a partial update. Nil means unchanged.
type AppointmentPatch struct {
	ClientID         *string
	EmployeeID       *string
	ServiceID        *string
	Start            *time.Time
	End              *time.Time
	Status           *appointment.Status
	AdvancePayment   *decimal.Decimal
	CustomPrice      *decimal.Decimal
	ClearCustomPrice bool
	AdditionalItems  *[]appointment.AdditionalItem
	Notes            *string
}

// UpdateAppointmentParams describes a partial update of one appointment.
type UpdateAppointmentParams struct {
	Principal     Principal
	AppointmentID string
	Patch         AppointmentPatch
}

// TransitionParams moves an appointment through the status lifecycle.
type TransitionParams struct {
	Principal     Principal
	AppointmentID string
	Target        appointment.Status
}

// ClientConfirmationParams sets or clears the client confirmation flag.
type ClientConfirmationParams struct {
	Principal     Principal
	AppointmentID string
	Confirmed     bool
}

// ConfirmFailure is one appointment a batch confirmation could not confirm.
type ConfirmFailure struct {
	ID      string
	Reason  string
	Message string
}

// ConfirmBatchResult reports every ID of a batch confirmation.
type ConfirmBatchResult struct {
	Confirmed        []string
	AlreadyConfirmed []string
	Failed           []ConfirmFailure
}

// QueryParams selects appointments starting in [RangeStart, RangeEnd).
type QueryParams struct {
	Principal  Principal
	RangeStart time.Time
	RangeEnd   time.Time
	// EmployeeID narrows the result for principals that may see every employee.
	EmployeeID string
}

// QueryResult holds the matching appointments and overlap warnings among them.
type QueryResult struct {
	Appointments []appointment.Appointment
	Warnings     []ConflictWarning
}
