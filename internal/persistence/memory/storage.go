// Package memory provides an in-process appointment store used by tests and
// by deployments that do not need durable storage.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/persistence"
)

type key struct {
	tenantID string
	id       string
}

// Storage keeps appointments in a map guarded by a RWMutex. Records are cloned
// on the way in and out so callers never share state with the store.
type Storage struct {
	mu           sync.RWMutex
	appointments map[key]appointment.Appointment
}

// Open returns an empty Storage.
func Open() *Storage {
	return &Storage{appointments: make(map[key]appointment.Appointment)}
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// Migrate is a no-op.
func (s *Storage) Migrate(context.Context) error {
	return nil
}

// CreateAppointment stores a new appointment.
func (s *Storage) CreateAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return appointment.Appointment{}, err
	}
	if a.ID == "" || !a.End.After(a.Start) {
		return appointment.Appointment{}, persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{a.TenantID, a.ID}
	if _, ok := s.appointments[k]; ok {
		return appointment.Appointment{}, persistence.ErrDuplicate
	}
	s.appointments[k] = a.Clone()
	return a.Clone(), nil
}

// GetAppointment returns the appointment with the given ID.
func (s *Storage) GetAppointment(ctx context.Context, tenantID, id string) (appointment.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return appointment.Appointment{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appointments[key{tenantID, id}]
	if !ok {
		return appointment.Appointment{}, persistence.ErrNotFound
	}
	return a.Clone(), nil
}

// UpdateAppointment replaces an existing appointment.
func (s *Storage) UpdateAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return appointment.Appointment{}, err
	}
	if !a.End.After(a.Start) {
		return appointment.Appointment{}, persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{a.TenantID, a.ID}
	if _, ok := s.appointments[k]; !ok {
		return appointment.Appointment{}, persistence.ErrNotFound
	}
	s.appointments[k] = a.Clone()
	return a.Clone(), nil
}

// DeleteAppointment removes an appointment.
func (s *Storage) DeleteAppointment(ctx context.Context, tenantID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{tenantID, id}
	if _, ok := s.appointments[k]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.appointments, k)
	return nil
}

// QueryAppointments returns matching appointments ordered by start time, then ID.
func (s *Storage) QueryAppointments(ctx context.Context, filter persistence.AppointmentFilter) ([]appointment.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]appointment.Appointment, 0)
	for _, a := range s.appointments {
		if filter.Matches(a) {
			out = append(out, a.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

var _ persistence.AppointmentRepository = (*Storage)(nil)
