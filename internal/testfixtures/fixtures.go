package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/availability"
)

const (
	// TenantID is the tenant every fixture belongs to unless overridden.
	TenantID = "tenant-1"
	// EmployeeID is the default employee of generated appointments.
	EmployeeID = "emp-1"
	// ClientID is the default client of generated appointments.
	ClientID = "client-1"
	// ServiceID is the default service of generated appointments.
	ServiceID = "svc-1"
)

var appointmentCounter uint64

// zone is a fixed +09:00 offset so tests do not depend on installed tzdata.
var zone = time.FixedZone("JST", 9*60*60)

// Zone returns the location tenant fixtures express civil times in.
func Zone() *time.Location {
	return zone
}

var referenceTime = time.Date(2024, time.March, 4, 9, 0, 0, 0, zone)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
// It is Monday 2024-03-04 09:00 in Zone.
func ReferenceTime() time.Time {
	return referenceTime
}

// At returns the civil time on the given March 2024 day in Zone.
func At(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, zone)
}

// ----------------------------- Catalog fixtures -----------------------------

// Service returns the default catalog service: 60 minutes at 50.00.
func Service() appointment.Service {
	return appointment.Service{
		ID:       ServiceID,
		Name:     "Consultation",
		Duration: time.Hour,
		Price:    decimal.RequireFromString("50.00"),
	}
}

// BusinessHours returns Monday to Saturday 09:00-18:00 with a 13:00-14:00 break.
func BusinessHours() availability.Config {
	return availability.Config{
		Business: &availability.Hours{
			Days: []time.Weekday{
				time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday,
			},
			Open:  availability.MustClock("09:00"),
			Close: availability.MustClock("18:00"),
			Breaks: []availability.Window{
				{Start: availability.MustClock("13:00"), End: availability.MustClock("14:00")},
			},
		},
	}
}

// ----------------------------- Appointment fixtures -----------------------------

// AppointmentFixture represents a deterministic appointment record.
type AppointmentFixture struct {
	ID               string
	TenantID         string
	ClientID         string
	EmployeeID       string
	ServiceID        string
	Start            time.Time
	End              time.Time
	Status           appointment.Status
	SeriesID         string
	OccurrenceNumber int
	Notes            string
	CreatedAt        time.Time
}

// AppointmentOption configures the generated appointment fixture.
type AppointmentOption func(*AppointmentFixture)

// NewAppointmentFixture returns a one hour pending appointment at the
// reference time with optional overrides.
func NewAppointmentFixture(opts ...AppointmentOption) AppointmentFixture {
	idx := atomic.AddUint64(&appointmentCounter, 1)
	fixture := AppointmentFixture{
		ID:         fmt.Sprintf("appt-%03d", idx),
		TenantID:   TenantID,
		ClientID:   ClientID,
		EmployeeID: EmployeeID,
		ServiceID:  ServiceID,
		Start:      referenceTime,
		End:        referenceTime.Add(time.Hour),
		Status:     appointment.StatusPending,
		CreatedAt:  referenceTime.Add(-24 * time.Hour).UTC(),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithAppointmentID overrides the generated appointment ID.
func WithAppointmentID(id string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.ID = id
	}
}

// WithAppointmentTenant overrides the tenant.
func WithAppointmentTenant(tenantID string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.TenantID = tenantID
	}
}

// WithAppointmentEmployee overrides the employee.
func WithAppointmentEmployee(employeeID string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.EmployeeID = employeeID
	}
}

// WithAppointmentWindow sets start and end.
func WithAppointmentWindow(start, end time.Time) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.Start = start
		f.End = end
	}
}

// WithAppointmentStatus overrides the status.
func WithAppointmentStatus(status appointment.Status) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.Status = status
	}
}

// WithAppointmentSeries places the fixture in a series.
func WithAppointmentSeries(seriesID string, occurrence int) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.SeriesID = seriesID
		f.OccurrenceNumber = occurrence
	}
}

// WithAppointmentNotes sets notes on the fixture.
func WithAppointmentNotes(notes string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.Notes = notes
	}
}

// Appointment returns the fixture as an appointment.Appointment value.
func (f AppointmentFixture) Appointment() appointment.Appointment {
	return appointment.Appointment{
		ID:               f.ID,
		TenantID:         f.TenantID,
		Client:           appointment.RefTo[appointment.Client](f.ClientID),
		Employee:         appointment.RefTo[appointment.Employee](f.EmployeeID),
		Service:          appointment.RefTo[appointment.Service](f.ServiceID),
		Start:            f.Start,
		End:              f.End,
		Status:           f.Status,
		AdvancePayment:   decimal.Zero,
		Notes:            f.Notes,
		SeriesID:         f.SeriesID,
		OccurrenceNumber: f.OccurrenceNumber,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.CreatedAt,
	}
}

// Booking returns the fixture as an availability.Booking.
func (f AppointmentFixture) Booking() availability.Booking {
	return availability.Booking{
		ID:         f.ID,
		EmployeeID: f.EmployeeID,
		Start:      f.Start,
		End:        f.End,
		Cancelled:  f.Status.IsCancelled(),
	}
}
