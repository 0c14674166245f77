package persistence

import (
	"context"
	"time"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/civiltime"
)

// AppointmentFilter narrows appointment queries. All fields are optional
// except TenantID. Appointments match when RangeStart <= Start < RangeEnd.
type AppointmentFilter struct {
	TenantID   string
	RangeStart time.Time
	RangeEnd   time.Time
	EmployeeID string
	SeriesID   string
}

// Matches applies the filter to an in-memory appointment.
func (f AppointmentFilter) Matches(a appointment.Appointment) bool {
	if a.TenantID != f.TenantID {
		return false
	}
	if f.EmployeeID != "" && a.Employee.ID != f.EmployeeID {
		return false
	}
	if f.SeriesID != "" && a.SeriesID != f.SeriesID {
		return false
	}
	start := civiltime.ToWire(a.Start)
	if !f.RangeStart.IsZero() && start < civiltime.ToWire(f.RangeStart) {
		return false
	}
	if !f.RangeEnd.IsZero() && start >= civiltime.ToWire(f.RangeEnd) {
		return false
	}
	return true
}

// AppointmentRepository stores appointments. Implementations return
// ErrNotFound for unknown IDs and never return appointments of other tenants.
type AppointmentRepository interface {
	CreateAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error)
	GetAppointment(ctx context.Context, tenantID, id string) (appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error)
	DeleteAppointment(ctx context.Context, tenantID, id string) error
	QueryAppointments(ctx context.Context, filter AppointmentFilter) ([]appointment.Appointment, error)
}
