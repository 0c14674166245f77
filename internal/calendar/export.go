// Package calendar renders appointments as an iCalendar feed.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/appointment"
)

const (
	propertySeriesID         ics.ComponentProperty = "X-SERIES-ID"
	propertyOccurrenceNumber ics.ComponentProperty = "X-OCCURRENCE-NUMBER"
	propertySeriesRRule      ics.ComponentProperty = "X-SERIES-RRULE"
	propertyAppointmentState ics.ComponentProperty = "X-APPOINTMENT-STATUS"
)

// Querier runs a scoped appointment query.
type Querier interface {
	QueryAppointments(ctx context.Context, params application.QueryParams) (application.QueryResult, error)
}

// Exporter builds ICS documents from the appointments a principal may see.
type Exporter struct {
	appointments Querier
	catalog      application.ServiceCatalog
	productID    string
	now          func() time.Time
	logger       *slog.Logger
}

// NewExporter builds an Exporter. The catalog is optional and only used to
// name services that the store returned unexpanded.
func NewExporter(appointments Querier, catalog application.ServiceCatalog, now func() time.Time, logger *slog.Logger) *Exporter {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		appointments: appointments,
		catalog:      catalog,
		productID:    "-//appointment-scheduler//calendar export//EN",
		now:          now,
		logger:       logger.With("component", "calendar_export"),
	}
}

// Export renders every appointment matching params. Each appointment is its
// own VEVENT; series members carry their series ID, occurrence number and
// the series rule as X- properties so clients do not expand them twice.
func (e *Exporter) Export(ctx context.Context, params application.QueryParams) (string, error) {
	result, err := e.appointments.QueryAppointments(ctx, params)
	if err != nil {
		return "", err
	}

	names := e.serviceNames(ctx, params.Principal.TenantID, result.Appointments)
	stamp := e.now().UTC()

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(e.productID)
	cal.SetXWRCalName("Appointments " + params.Principal.TenantID)

	for _, a := range result.Appointments {
		ev := cal.AddEvent(a.ID + "@" + a.TenantID)
		ev.SetDtStampTime(stamp)
		ev.SetCreatedTime(a.CreatedAt)
		ev.SetModifiedAt(a.UpdatedAt)
		ev.SetStartAt(a.Start)
		ev.SetEndAt(a.End)
		ev.SetSummary(summary(a, names))
		if desc := description(a); desc != "" {
			ev.SetDescription(desc)
		}
		ev.SetStatus(objectStatus(a.Status))
		ev.SetProperty(propertyAppointmentState, string(a.Status))

		if a.InSeries() {
			ev.SetProperty(propertySeriesID, a.SeriesID)
			if a.OccurrenceNumber > 0 {
				ev.SetProperty(propertyOccurrenceNumber, strconv.Itoa(a.OccurrenceNumber))
			}
			if a.RecurrencePattern != nil {
				if rule := a.RecurrencePattern.RRule(); rule != "" {
					ev.SetProperty(propertySeriesRRule, rule)
				}
			}
		}
	}

	e.logger.InfoContext(ctx, "calendar exported", "tenant_id", params.Principal.TenantID, "events", len(result.Appointments))
	return cal.Serialize(), nil
}

func (e *Exporter) serviceNames(ctx context.Context, tenantID string, appts []appointment.Appointment) map[string]string {
	names := make(map[string]string)
	var missing []string
	for _, a := range appts {
		if svc, ok := a.Service.Resolved(); ok {
			names[svc.ID] = svc.Name
			continue
		}
		if _, seen := names[a.Service.ID]; !seen && a.Service.ID != "" {
			names[a.Service.ID] = ""
			missing = append(missing, a.Service.ID)
		}
	}
	if len(missing) == 0 || e.catalog == nil {
		return names
	}

	services, err := e.catalog.Services(ctx, tenantID, missing)
	if err != nil {
		e.logger.WarnContext(ctx, "could not name services", "tenant_id", tenantID, "error", err)
		return names
	}
	for _, svc := range services {
		names[svc.ID] = svc.Name
	}
	return names
}

func summary(a appointment.Appointment, names map[string]string) string {
	title := names[a.Service.ID]
	if title == "" {
		title = a.Service.ID
	}
	if c, ok := a.Client.Resolved(); ok && c.Name != "" {
		return title + " - " + c.Name
	}
	return title
}

func description(a appointment.Appointment) string {
	var lines []string
	if a.Notes != "" {
		lines = append(lines, a.Notes)
	}
	lines = append(lines, "Employee: "+a.Employee.ID, "Client: "+a.Client.ID)
	if total := a.TotalPrice(); !total.IsZero() {
		lines = append(lines, "Total: "+total.StringFixed(2))
	}
	if a.InSeries() && a.OccurrenceNumber > 0 {
		lines = append(lines, fmt.Sprintf("Occurrence %d of series %s", a.OccurrenceNumber, a.SeriesID))
	}
	return strings.Join(lines, "\n")
}

func objectStatus(s appointment.Status) ics.ObjectStatus {
	switch {
	case s == appointment.StatusConfirmed:
		return ics.ObjectStatusConfirmed
	case s.IsCancelled():
		return ics.ObjectStatusCancelled
	default:
		return ics.ObjectStatusTentative
	}
}
