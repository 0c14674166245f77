// Package notify moves appointment notifications through an asynq queue and
// delivers them to Telegram.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/civiltime"
)

const (
	TypeAppointmentCreated  = "appointment:created"
	TypeAppointmentReminder = "appointment:reminder"

	// Queue is the asynq queue notification tasks are placed on.
	Queue = "notifications"
)

// Notice is the snapshot of one appointment carried in a task payload.
// Times are civil wire strings in the tenant's zone.
type Notice struct {
	AppointmentID    string `json:"appointment_id"`
	EmployeeID       string `json:"employee_id"`
	ClientID         string `json:"client_id"`
	ClientName       string `json:"client_name,omitempty"`
	ServiceID        string `json:"service_id"`
	ServiceName      string `json:"service_name,omitempty"`
	Start            string `json:"start"`
	End              string `json:"end"`
	SeriesID         string `json:"series_id,omitempty"`
	OccurrenceNumber int    `json:"occurrence_number,omitempty"`
	Recurring        bool   `json:"recurring,omitempty"`
}

// Payload is the body of both task types.
type Payload struct {
	TenantID string   `json:"tenant_id"`
	Notices  []Notice `json:"notices"`
}

// NoticeOf snapshots an appointment.
func NoticeOf(a appointment.Appointment) Notice {
	n := Notice{
		AppointmentID:    a.ID,
		EmployeeID:       a.Employee.ID,
		ClientID:         a.Client.ID,
		ServiceID:        a.Service.ID,
		Start:            civiltime.ToWire(a.Start),
		End:              civiltime.ToWire(a.End),
		SeriesID:         a.SeriesID,
		OccurrenceNumber: a.OccurrenceNumber,
		Recurring:        a.RecurrencePattern != nil,
	}
	if c, ok := a.Client.Resolved(); ok {
		n.ClientName = c.Name
	}
	if s, ok := a.Service.Resolved(); ok {
		n.ServiceName = s.Name
	}
	return n
}

// NewCreatedTask builds the task announcing newly booked appointments.
func NewCreatedTask(tenantID string, appts []appointment.Appointment) (*asynq.Task, error) {
	return newTask(TypeAppointmentCreated, tenantID, appts)
}

// NewReminderTask builds the task reminding about one upcoming appointment.
func NewReminderTask(tenantID string, appt appointment.Appointment) (*asynq.Task, error) {
	return newTask(TypeAppointmentReminder, tenantID, []appointment.Appointment{appt})
}

func newTask(typename, tenantID string, appts []appointment.Appointment) (*asynq.Task, error) {
	payload := Payload{TenantID: tenantID, Notices: make([]Notice, 0, len(appts))}
	for _, a := range appts {
		payload.Notices = append(payload.Notices, NoticeOf(a))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("notify: encode %s payload: %w", typename, err)
	}
	return asynq.NewTask(typename, data), nil
}
