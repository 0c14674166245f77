// Package tenant loads per-tenant configuration: time zone, business hours,
// employee schedules, the service catalog and API users.
package tenant

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/availability"
)

// ErrUnknownTenant indicates a tenant ID that no source knows about.
var ErrUnknownTenant = errors.New("tenant: unknown tenant")

// Record is everything configured for one tenant.
type Record struct {
	ID             string           `yaml:"id" json:"id" validate:"required"`
	Name           string           `yaml:"name" json:"name"`
	Timezone       string           `yaml:"timezone" json:"timezone" validate:"required,timezone"`
	TelegramChatID int64            `yaml:"telegram_chat_id" json:"telegram_chat_id,omitempty"`
	BusinessHours  *HoursRecord     `yaml:"business_hours" json:"business_hours,omitempty"`
	Employees      []EmployeeRecord `yaml:"employees" json:"employees" validate:"dive"`
	Services       []ServiceRecord  `yaml:"services" json:"services" validate:"dive"`
	Clients        []ClientRecord   `yaml:"clients" json:"clients" validate:"dive"`
	Users          []UserRecord     `yaml:"users" json:"users" validate:"dive"`
}

// HoursRecord is the opening time of the business.
type HoursRecord struct {
	Days   []int          `yaml:"days" json:"days" validate:"required,min=1,dive,min=0,max=6"`
	Open   string         `yaml:"open" json:"open" validate:"required,clock"`
	Close  string         `yaml:"close" json:"close" validate:"required,clock"`
	Breaks []WindowRecord `yaml:"breaks" json:"breaks,omitempty" validate:"dive"`
}

// WindowRecord is an HH:MM range within a day.
type WindowRecord struct {
	Start string `yaml:"start" json:"start" validate:"required,clock"`
	End   string `yaml:"end" json:"end" validate:"required,clock"`
}

// EmployeeRecord describes a staff member. Schedule is keyed by lowercase
// English weekday name; without a schedule the employee works whenever the
// business is open.
type EmployeeRecord struct {
	ID             string                    `yaml:"id" json:"id" validate:"required"`
	Name           string                    `yaml:"name" json:"name"`
	TelegramChatID int64                     `yaml:"telegram_chat_id" json:"telegram_chat_id,omitempty"`
	Schedule       map[string][]WindowRecord `yaml:"schedule" json:"schedule,omitempty" validate:"dive,keys,weekday,endkeys,dive"`
}

// ServiceRecord is a catalog entry.
type ServiceRecord struct {
	ID              string `yaml:"id" json:"id" validate:"required"`
	Name            string `yaml:"name" json:"name" validate:"required"`
	DurationMinutes int    `yaml:"duration_minutes" json:"duration_minutes" validate:"required,min=1"`
	Price           string `yaml:"price" json:"price" validate:"required,numeric"`
}

// ClientRecord is a customer.
type ClientRecord struct {
	ID    string `yaml:"id" json:"id" validate:"required"`
	Name  string `yaml:"name" json:"name"`
	Phone string `yaml:"phone" json:"phone,omitempty"`
	Email string `yaml:"email" json:"email,omitempty" validate:"omitempty,email"`
}

// UserRecord is an API caller. KeyHash is an argon2id hash of the caller's key.
type UserRecord struct {
	ID         string `yaml:"id" json:"id" validate:"required"`
	KeyHash    string `yaml:"key_hash" json:"key_hash" validate:"required,startswith=$argon2id$"`
	EmployeeID string `yaml:"employee_id" json:"employee_id,omitempty"`
	CanViewAll bool   `yaml:"can_view_all" json:"can_view_all,omitempty"`
	CanCreate  bool   `yaml:"can_create" json:"can_create,omitempty"`
	CanConfirm bool   `yaml:"can_confirm" json:"can_confirm,omitempty"`
	CanCancel  bool   `yaml:"can_cancel" json:"can_cancel,omitempty"`
	IsAdmin    bool   `yaml:"is_admin" json:"is_admin,omitempty"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func unknownTenant(id string) error {
	return fmt.Errorf("%w %q: %w", ErrUnknownTenant, id, application.ErrNotFound)
}

// Location loads the tenant's time zone.
func (r Record) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: load time zone: %w", r.ID, err)
	}
	return loc, nil
}

// Employee returns the employee with id.
func (r Record) Employee(id string) (EmployeeRecord, error) {
	for _, e := range r.Employees {
		if e.ID == id {
			return e, nil
		}
	}
	return EmployeeRecord{}, fmt.Errorf("tenant %s: employee %q: %w", r.ID, id, application.ErrNotFound)
}

// User returns the API user with id.
func (r Record) User(id string) (UserRecord, error) {
	for _, u := range r.Users {
		if u.ID == id {
			return u, nil
		}
	}
	return UserRecord{}, fmt.Errorf("tenant %s: user %q: %w", r.ID, id, application.ErrNotFound)
}

// Client returns the client with id.
func (r Record) Client(id string) (appointment.Client, error) {
	for _, c := range r.Clients {
		if c.ID == id {
			return appointment.Client{ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email}, nil
		}
	}
	return appointment.Client{}, fmt.Errorf("tenant %s: client %q: %w", r.ID, id, application.ErrNotFound)
}

// Service returns the catalog entry with id.
func (r Record) Service(id string) (appointment.Service, error) {
	for _, s := range r.Services {
		if s.ID != id {
			continue
		}
		price, err := decimal.NewFromString(s.Price)
		if err != nil {
			return appointment.Service{}, fmt.Errorf("tenant %s: service %s price: %w", r.ID, s.ID, err)
		}
		return appointment.Service{
			ID:       s.ID,
			Name:     s.Name,
			Duration: time.Duration(s.DurationMinutes) * time.Minute,
			Price:    price,
		}, nil
	}
	return appointment.Service{}, fmt.Errorf("tenant %s: service %q: %w", r.ID, id, application.ErrNotFound)
}

// AvailabilityConfig returns the working time that applies to the employee.
func (r Record) AvailabilityConfig(employeeID string) (availability.Config, error) {
	employee, err := r.Employee(employeeID)
	if err != nil {
		return availability.Config{}, err
	}

	var cfg availability.Config
	if h := r.BusinessHours; h != nil {
		hours := &availability.Hours{}
		for _, d := range h.Days {
			hours.Days = append(hours.Days, time.Weekday(d))
		}
		if hours.Open, err = availability.ParseClock(h.Open); err != nil {
			return availability.Config{}, fmt.Errorf("tenant %s: open: %w", r.ID, err)
		}
		if hours.Close, err = availability.ParseClock(h.Close); err != nil {
			return availability.Config{}, fmt.Errorf("tenant %s: close: %w", r.ID, err)
		}
		if hours.Breaks, err = toWindows(h.Breaks); err != nil {
			return availability.Config{}, fmt.Errorf("tenant %s: breaks: %w", r.ID, err)
		}
		cfg.Business = hours
	}

	if len(employee.Schedule) > 0 {
		cfg.Employee = make(availability.WeeklySchedule, len(employee.Schedule))
		for name, windows := range employee.Schedule {
			day, ok := weekdays[strings.ToLower(name)]
			if !ok {
				return availability.Config{}, fmt.Errorf("tenant %s: employee %s: unknown weekday %q", r.ID, employee.ID, name)
			}
			converted, err := toWindows(windows)
			if err != nil {
				return availability.Config{}, fmt.Errorf("tenant %s: employee %s: %w", r.ID, employee.ID, err)
			}
			cfg.Employee[day] = converted
		}
	}
	return cfg, nil
}

func toWindows(records []WindowRecord) ([]availability.Window, error) {
	var out []availability.Window
	for _, w := range records {
		start, err := availability.ParseClock(w.Start)
		if err != nil {
			return nil, err
		}
		end, err := availability.ParseClock(w.End)
		if err != nil {
			return nil, err
		}
		window := availability.Window{Start: start, End: end}
		if !window.Valid() {
			return nil, fmt.Errorf("window %s-%s ends before it starts", w.Start, w.End)
		}
		out = append(out, window)
	}
	return out, nil
}
