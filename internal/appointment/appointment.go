// Package appointment holds the appointment record, its related catalog
// records and the status lifecycle.
package appointment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/appointment-scheduler/internal/recurrence"
)

// Ref is a relation to another record. ID is always set; Expanded is present
// only when the related record was loaded alongside.
type Ref[T any] struct {
	ID       string
	Expanded *T
}

// RefTo builds an unexpanded reference.
func RefTo[T any](id string) Ref[T] {
	return Ref[T]{ID: id}
}

// Expand builds a reference carrying the related record.
func Expand[T any](id string, record T) Ref[T] {
	return Ref[T]{ID: id, Expanded: &record}
}

// Resolved returns the expanded record, if any.
func (r Ref[T]) Resolved() (T, bool) {
	if r.Expanded == nil {
		var zero T
		return zero, false
	}
	return *r.Expanded, true
}

// Client is the customer an appointment is for.
type Client struct {
	ID    string
	Name  string
	Phone string
	Email string
}

// Employee is the staff member delivering the service.
type Employee struct {
	ID             string
	Name           string
	TelegramChatID int64
}

// Service is a catalog entry with a default duration and price.
type Service struct {
	ID       string
	Name     string
	Duration time.Duration
	Price    decimal.Decimal
}

// AdditionalItem is an extra charge on top of the service price.
type AdditionalItem struct {
	Name  string
	Price decimal.Decimal
}

// Appointment is a booked time slot. Start and End are wall-clock times in
// the tenant's location.
type Appointment struct {
	ID       string
	TenantID string

	Client   Ref[Client]
	Employee Ref[Employee]
	Service  Ref[Service]

	Start time.Time
	End   time.Time

	Status            Status
	ClientConfirmed   bool
	ClientConfirmedAt *time.Time

	AdvancePayment  decimal.Decimal
	CustomPrice     *decimal.Decimal
	AdditionalItems []AdditionalItem
	Notes           string

	SeriesID          string
	OccurrenceNumber  int
	RecurrencePattern *recurrence.Pattern

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalPrice is the custom price, or the resolved service price, plus every
// additional item. It is derived on each call.
func (a Appointment) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	if a.CustomPrice != nil {
		total = *a.CustomPrice
	} else if svc, ok := a.Service.Resolved(); ok {
		total = svc.Price
	}
	for _, item := range a.AdditionalItems {
		total = total.Add(item.Price)
	}
	return total
}

// Duration returns End - Start.
func (a Appointment) Duration() time.Duration {
	return a.End.Sub(a.Start)
}

// InSeries reports whether the appointment belongs to a series.
func (a Appointment) InSeries() bool {
	return a.SeriesID != ""
}

// Clone returns a deep copy.
func (a Appointment) Clone() Appointment {
	out := a
	if a.Client.Expanded != nil {
		c := *a.Client.Expanded
		out.Client.Expanded = &c
	}
	if a.Employee.Expanded != nil {
		e := *a.Employee.Expanded
		out.Employee.Expanded = &e
	}
	if a.Service.Expanded != nil {
		s := *a.Service.Expanded
		out.Service.Expanded = &s
	}
	if a.ClientConfirmedAt != nil {
		t := *a.ClientConfirmedAt
		out.ClientConfirmedAt = &t
	}
	if a.CustomPrice != nil {
		p := *a.CustomPrice
		out.CustomPrice = &p
	}
	if a.AdditionalItems != nil {
		out.AdditionalItems = append([]AdditionalItem(nil), a.AdditionalItems...)
	}
	if a.RecurrencePattern != nil {
		p := *a.RecurrencePattern
		p.Weekdays = append([]time.Weekday(nil), a.RecurrencePattern.Weekdays...)
		out.RecurrencePattern = &p
	}
	return out
}
