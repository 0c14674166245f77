package application

import (
	"context"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/availability"
	"github.com/example/appointment-scheduler/internal/persistence"
)

// AppointmentStore persists appointments.
type AppointmentStore interface {
	CreateAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error)
	GetAppointment(ctx context.Context, tenantID, id string) (appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error)
	DeleteAppointment(ctx context.Context, tenantID, id string) error
	QueryAppointments(ctx context.Context, filter persistence.AppointmentFilter) ([]appointment.Appointment, error)
}

// HoursProvider supplies the working time that applies to an employee.
type HoursProvider interface {
	OperatingHours(ctx context.Context, tenantID, employeeID string) (availability.Config, error)
}

// ServiceCatalog resolves service records. Unknown IDs yield an error
// wrapping ErrNotFound.
type ServiceCatalog interface {
	Services(ctx context.Context, tenantID string, ids []string) ([]appointment.Service, error)
}

// Notifier announces newly created appointments.
type Notifier interface {
	NotifyAppointments(ctx context.Context, tenantID string, appointments []appointment.Appointment) error
}

type noopNotifier struct{}

func (noopNotifier) NotifyAppointments(context.Context, string, []appointment.Appointment) error {
	return nil
}
