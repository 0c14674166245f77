package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/civiltime"
	"github.com/example/appointment-scheduler/internal/recurrence"
)

// AppointmentRecord is the storage form of an appointment. Instant fields
// that describe the booked slot are civil-time strings in the tenant's zone;
// bookkeeping timestamps are UTC RFC 3339.
type AppointmentRecord struct {
	ID                string
	TenantID          string
	ClientID          string
	EmployeeID        string
	ServiceID         string
	StartAt           string
	EndAt             string
	Status            string
	ClientConfirmed   bool
	ClientConfirmedAt string
	AdvancePayment    string
	CustomPrice       *string
	// Document holds the nested parts (items, pattern, resolved service) as JSON.
	Document         []byte
	Notes            string
	SeriesID         string
	OccurrenceNumber int
	CreatedAt        string
	UpdatedAt        string
}

type recordDocument struct {
	AdditionalItems []itemDocument   `json:"additional_items,omitempty"`
	Pattern         *patternDocument `json:"recurrence_pattern,omitempty"`
	Service         *serviceDocument `json:"service,omitempty"`
}

type itemDocument struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

type patternDocument struct {
	Type          string `json:"type"`
	IntervalWeeks int    `json:"interval_weeks,omitempty"`
	Weekdays      []int  `json:"weekdays,omitempty"`
	EndType       string `json:"end_type,omitempty"`
	EndDate       string `json:"end_date,omitempty"`
	Count         int    `json:"count,omitempty"`
}

type serviceDocument struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
}

// ToRecord converts an appointment into its storage form.
func ToRecord(a appointment.Appointment) (AppointmentRecord, error) {
	rec := AppointmentRecord{
		ID:               a.ID,
		TenantID:         a.TenantID,
		ClientID:         a.Client.ID,
		EmployeeID:       a.Employee.ID,
		ServiceID:        a.Service.ID,
		StartAt:          civiltime.ToWire(a.Start),
		EndAt:            civiltime.ToWire(a.End),
		Status:           string(a.Status),
		ClientConfirmed:  a.ClientConfirmed,
		AdvancePayment:   a.AdvancePayment.String(),
		Notes:            a.Notes,
		SeriesID:         a.SeriesID,
		OccurrenceNumber: a.OccurrenceNumber,
		CreatedAt:        formatInstant(a.CreatedAt),
		UpdatedAt:        formatInstant(a.UpdatedAt),
	}
	if a.ClientConfirmedAt != nil {
		rec.ClientConfirmedAt = formatInstant(*a.ClientConfirmedAt)
	}
	if a.CustomPrice != nil {
		price := a.CustomPrice.String()
		rec.CustomPrice = &price
	}

	doc := recordDocument{}
	for _, item := range a.AdditionalItems {
		doc.AdditionalItems = append(doc.AdditionalItems, itemDocument{Name: item.Name, Price: item.Price.String()})
	}
	if p := a.RecurrencePattern; p != nil {
		pd := &patternDocument{
			Type:          string(p.Type),
			IntervalWeeks: p.IntervalWeeks,
			EndType:       string(p.EndType),
			Count:         p.Count,
		}
		for _, day := range p.Weekdays {
			pd.Weekdays = append(pd.Weekdays, int(day))
		}
		if !p.EndDate.IsZero() {
			pd.EndDate = civiltime.ToWireDate(p.EndDate)
		}
		doc.Pattern = pd
	}
	if svc, ok := a.Service.Resolved(); ok {
		doc.Service = &serviceDocument{
			Name:            svc.Name,
			DurationMinutes: int(svc.Duration / time.Minute),
			Price:           svc.Price.String(),
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return AppointmentRecord{}, fmt.Errorf("persistence: encode document: %w", err)
	}
	rec.Document = raw
	return rec, nil
}

// FromRecord converts a storage record back into an appointment, reading
// civil times in loc.
func FromRecord(rec AppointmentRecord, loc *time.Location) (appointment.Appointment, error) {
	start, err := civiltime.FromWire(rec.StartAt, loc)
	if err != nil {
		return appointment.Appointment{}, err
	}
	end, err := civiltime.FromWire(rec.EndAt, loc)
	if err != nil {
		return appointment.Appointment{}, err
	}

	a := appointment.Appointment{
		ID:               rec.ID,
		TenantID:         rec.TenantID,
		Client:           appointment.RefTo[appointment.Client](rec.ClientID),
		Employee:         appointment.RefTo[appointment.Employee](rec.EmployeeID),
		Service:          appointment.RefTo[appointment.Service](rec.ServiceID),
		Start:            start,
		End:              end,
		Status:           appointment.Status(rec.Status),
		ClientConfirmed:  rec.ClientConfirmed,
		Notes:            rec.Notes,
		SeriesID:         rec.SeriesID,
		OccurrenceNumber: rec.OccurrenceNumber,
		CreatedAt:        parseInstant(rec.CreatedAt),
		UpdatedAt:        parseInstant(rec.UpdatedAt),
	}
	if rec.ClientConfirmedAt != "" {
		ts := parseInstant(rec.ClientConfirmedAt)
		a.ClientConfirmedAt = &ts
	}
	if rec.AdvancePayment != "" {
		if a.AdvancePayment, err = decimal.NewFromString(rec.AdvancePayment); err != nil {
			return appointment.Appointment{}, fmt.Errorf("persistence: advance payment: %w", err)
		}
	}
	if rec.CustomPrice != nil {
		price, err := decimal.NewFromString(*rec.CustomPrice)
		if err != nil {
			return appointment.Appointment{}, fmt.Errorf("persistence: custom price: %w", err)
		}
		a.CustomPrice = &price
	}

	if len(rec.Document) == 0 {
		return a, nil
	}
	var doc recordDocument
	if err := json.Unmarshal(rec.Document, &doc); err != nil {
		return appointment.Appointment{}, fmt.Errorf("persistence: decode document: %w", err)
	}
	for _, item := range doc.AdditionalItems {
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			return appointment.Appointment{}, fmt.Errorf("persistence: item price: %w", err)
		}
		a.AdditionalItems = append(a.AdditionalItems, appointment.AdditionalItem{Name: item.Name, Price: price})
	}
	if pd := doc.Pattern; pd != nil {
		p := recurrence.Pattern{
			Type:          recurrence.Type(pd.Type),
			IntervalWeeks: pd.IntervalWeeks,
			EndType:       recurrence.EndType(pd.EndType),
			Count:         pd.Count,
		}
		for _, day := range pd.Weekdays {
			p.Weekdays = append(p.Weekdays, time.Weekday(day))
		}
		if pd.EndDate != "" {
			if p.EndDate, err = civiltime.FromWireDate(pd.EndDate, loc); err != nil {
				return appointment.Appointment{}, err
			}
		}
		a.RecurrencePattern = &p
	}
	if sd := doc.Service; sd != nil {
		price, err := decimal.NewFromString(sd.Price)
		if err != nil {
			return appointment.Appointment{}, fmt.Errorf("persistence: service price: %w", err)
		}
		a.Service = appointment.Expand(rec.ServiceID, appointment.Service{
			ID:       rec.ServiceID,
			Name:     sd.Name,
			Duration: time.Duration(sd.DurationMinutes) * time.Minute,
			Price:    price,
		})
	}
	return a, nil
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseInstant(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}
