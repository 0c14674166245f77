package testfixtures

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/availability"
	"github.com/example/appointment-scheduler/internal/recurrence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(referenceTime),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(referenceTime)
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// BookingServiceDeps captures dependencies for constructing a booking service.
type BookingServiceDeps struct {
	Appointments   application.AppointmentStore
	Hours          application.HoursProvider
	Catalog        application.ServiceCatalog
	Notifier       application.Notifier
	MaxOccurrences int
	IDGenerator    func() string
	Now            func() time.Time
	Logger         *slog.Logger
}

// NewBookingService builds a booking service using the supplied dependencies
// combined with the factory defaults. Hours and Catalog default to
// BusinessHours and Service.
func (f *ServiceFactory) NewBookingService(deps BookingServiceDeps) *application.BookingService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	hours := deps.Hours
	if hours == nil {
		hours = StaticHours{Config: BusinessHours()}
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = NewCatalog(Service())
	}
	return application.NewBookingServiceWithLogger(
		deps.Appointments,
		hours,
		catalog,
		deps.Notifier,
		recurrence.NewEngine(deps.MaxOccurrences),
		idGen,
		now,
		deps.Logger,
	)
}

// AppointmentServiceDeps captures dependencies for constructing an appointment service.
type AppointmentServiceDeps struct {
	Appointments application.AppointmentStore
	Catalog      application.ServiceCatalog
	Now          func() time.Time
	Logger       *slog.Logger
}

// NewAppointmentService builds an appointment service using the supplied dependencies.
func (f *ServiceFactory) NewAppointmentService(deps AppointmentServiceDeps) *application.AppointmentService {
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = NewCatalog(Service())
	}
	return application.NewAppointmentServiceWithLogger(deps.Appointments, catalog, now, deps.Logger)
}

// StaticHours returns the same working time for every employee.
type StaticHours struct {
	Config availability.Config
	Err    error
}

// OperatingHours implements application.HoursProvider.
func (h StaticHours) OperatingHours(ctx context.Context, tenantID, employeeID string) (availability.Config, error) {
	if h.Err != nil {
		return availability.Config{}, h.Err
	}
	return h.Config, nil
}

// Catalog is an in-memory service catalog.
type Catalog struct {
	services map[string]appointment.Service
}

// NewCatalog builds a catalog holding services.
func NewCatalog(services ...appointment.Service) *Catalog {
	c := &Catalog{services: make(map[string]appointment.Service, len(services))}
	for _, svc := range services {
		c.services[svc.ID] = svc
	}
	return c
}

// Services implements application.ServiceCatalog.
func (c *Catalog) Services(ctx context.Context, tenantID string, ids []string) ([]appointment.Service, error) {
	out := make([]appointment.Service, 0, len(ids))
	for _, id := range ids {
		svc, ok := c.services[id]
		if !ok {
			return nil, fmt.Errorf("service %s: %w", id, application.ErrNotFound)
		}
		out = append(out, svc)
	}
	return out, nil
}

// RecordingNotifier captures every notification it receives.
type RecordingNotifier struct {
	mu    sync.Mutex
	Calls [][]appointment.Appointment
	Err   error
}

// NotifyAppointments implements application.Notifier.
func (n *RecordingNotifier) NotifyAppointments(ctx context.Context, tenantID string, appointments []appointment.Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Calls = append(n.Calls, append([]appointment.Appointment(nil), appointments...))
	return n.Err
}

// Notified returns the IDs of every notified appointment in call order.
func (n *RecordingNotifier) Notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var ids []string
	for _, call := range n.Calls {
		for _, a := range call {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
