package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/civiltime"
	"github.com/example/appointment-scheduler/internal/tenant"
)

// Directory resolves the tenant record notifications are addressed with.
type Directory interface {
	Tenant(ctx context.Context, id string) (tenant.Record, error)
}

// Handler processes notification tasks.
type Handler struct {
	directory Directory
	sender    Sender
	logger    *slog.Logger
}

// NewHandler builds a Handler. A nil sender logs messages instead.
func NewHandler(directory Directory, sender Sender, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	return &Handler{directory: directory, sender: sender, logger: logger.With("component", "notify_handler")}
}

// Register routes both notification task types to h.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.Handle(TypeAppointmentCreated, h)
	mux.Handle(TypeAppointmentReminder, h)
}

// ProcessTask implements asynq.Handler. Malformed payloads and unknown
// tenants are not retried.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload Payload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("notify: decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	logger := h.logger.With("task", t.Type(), "tenant_id", payload.TenantID)
	record, err := h.directory.Tenant(ctx, payload.TenantID)
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			logger.WarnContext(ctx, "dropping notification for unknown tenant", "error", err)
			return fmt.Errorf("notify: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("notify: load tenant: %w", err)
	}

	var errs []error
	for _, n := range payload.Notices {
		fillNames(record, &n)
		text := render(t.Type(), n)
		chats := recipients(record, n)
		if len(chats) == 0 {
			logger.InfoContext(ctx, "no recipients configured", "appointment_id", n.AppointmentID)
			continue
		}
		for _, chat := range chats {
			if err := h.sender.Send(ctx, chat, text); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.ErrorContext(ctx, "notification delivery failed", "error", err)
		return err
	}
	logger.InfoContext(ctx, "notification delivered", "notices", len(payload.Notices))
	return nil
}

func fillNames(record tenant.Record, n *Notice) {
	if n.ClientName == "" {
		if c, err := record.Client(n.ClientID); err == nil {
			n.ClientName = c.Name
		}
	}
	if n.ServiceName == "" {
		if s, err := record.Service(n.ServiceID); err == nil {
			n.ServiceName = s.Name
		}
	}
}

// recipients lists the employee's chat followed by the tenant's, without duplicates.
func recipients(record tenant.Record, n Notice) []int64 {
	var chats []int64
	if e, err := record.Employee(n.EmployeeID); err == nil && e.TelegramChatID != 0 {
		chats = append(chats, e.TelegramChatID)
	}
	if record.TelegramChatID != 0 && (len(chats) == 0 || chats[0] != record.TelegramChatID) {
		chats = append(chats, record.TelegramChatID)
	}
	return chats
}

func render(taskType string, n Notice) string {
	var b strings.Builder
	switch taskType {
	case TypeAppointmentReminder:
		b.WriteString("Reminder: ")
	default:
		b.WriteString("New appointment: ")
	}
	b.WriteString(orDefault(n.ServiceName, n.ServiceID))
	if name := orDefault(n.ClientName, n.ClientID); name != "" {
		b.WriteString(" for ")
		b.WriteString(name)
	}
	b.WriteString(", ")
	b.WriteString(displayTime(n.Start))
	if end := displayTime(n.End); len(end) > 11 {
		b.WriteString("-")
		b.WriteString(end[11:])
	}
	if n.SeriesID != "" && n.OccurrenceNumber > 0 {
		fmt.Fprintf(&b, " (#%d of series)", n.OccurrenceNumber)
	}
	return b.String()
}

func displayTime(wire string) string {
	ts, err := civiltime.FromWire(wire, nil)
	if err != nil {
		return wire
	}
	return ts.Format("2006-01-02 15:04")
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
