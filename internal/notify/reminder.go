package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/civiltime"
	"github.com/example/appointment-scheduler/internal/persistence"
)

// TenantDirectory lists tenants and their time zones.
type TenantDirectory interface {
	TenantIDs(ctx context.Context) ([]string, error)
	Location(tenantID string) *time.Location
}

// AppointmentReader is the query side of the appointment store.
type AppointmentReader interface {
	QueryAppointments(ctx context.Context, filter persistence.AppointmentFilter) ([]appointment.Appointment, error)
}

// ReminderScheduler enqueues one reminder task per active appointment that
// starts on the next calendar day of its tenant.
type ReminderScheduler struct {
	tenants      TenantDirectory
	appointments AppointmentReader
	client       Enqueuer
	now          func() time.Time
	retention    time.Duration
	logger       *slog.Logger
}

// NewReminderScheduler builds a ReminderScheduler.
func NewReminderScheduler(tenants TenantDirectory, appointments AppointmentReader, client Enqueuer, now func() time.Time, logger *slog.Logger) *ReminderScheduler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderScheduler{
		tenants:      tenants,
		appointments: appointments,
		client:       client,
		now:          now,
		retention:    48 * time.Hour,
		logger:       logger.With("component", "reminder_scheduler"),
	}
}

// RunResult counts what one pass did.
type RunResult struct {
	Enqueued  int
	Duplicate int
	Failed    int
}

// Run performs one pass over every tenant. A tenant whose appointments
// cannot be read is logged and skipped; the error of the last such tenant
// is returned alongside the counts.
func (r *ReminderScheduler) Run(ctx context.Context) (RunResult, error) {
	var result RunResult
	ids, err := r.tenants.TenantIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("notify: list tenants: %w", err)
	}

	var lastErr error
	for _, tenantID := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := r.runTenant(ctx, tenantID, &result); err != nil {
			r.logger.ErrorContext(ctx, "reminder pass failed", "tenant_id", tenantID, "error", err)
			lastErr = err
		}
	}

	r.logger.InfoContext(ctx, "reminder pass finished",
		"tenants", len(ids),
		"enqueued", result.Enqueued,
		"duplicate", result.Duplicate,
		"failed", result.Failed,
	)
	return result, lastErr
}

func (r *ReminderScheduler) runTenant(ctx context.Context, tenantID string, result *RunResult) error {
	loc := r.tenants.Location(tenantID)
	tomorrow := civiltime.StartOfDay(r.now().In(loc)).AddDate(0, 0, 1)

	appts, err := r.appointments.QueryAppointments(ctx, persistence.AppointmentFilter{
		TenantID:   tenantID,
		RangeStart: tomorrow,
		RangeEnd:   tomorrow.AddDate(0, 0, 1),
	})
	if err != nil {
		return fmt.Errorf("query appointments: %w", err)
	}

	for _, a := range appts {
		if a.Status.IsCancelled() {
			continue
		}
		task, err := NewReminderTask(tenantID, a)
		if err != nil {
			result.Failed++
			continue
		}
		_, err = r.client.EnqueueContext(ctx, task,
			asynq.Queue(Queue),
			asynq.TaskID(reminderTaskID(tenantID, a)),
			asynq.Retention(r.retention),
		)
		switch {
		case err == nil:
			result.Enqueued++
		case errors.Is(err, asynq.ErrTaskIDConflict):
			result.Duplicate++
		default:
			result.Failed++
			r.logger.WarnContext(ctx, "failed to enqueue reminder", "tenant_id", tenantID, "appointment_id", a.ID, "error", err)
		}
	}
	return nil
}

// reminderTaskID changes when the appointment moves, so a rescheduled
// appointment is reminded about again.
func reminderTaskID(tenantID string, a appointment.Appointment) string {
	return "reminder:" + tenantID + ":" + a.ID + ":" + civiltime.ToWire(a.Start)
}

// Schedule registers the pass on c under the given cron spec.
func (r *ReminderScheduler) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		if _, err := r.Run(ctx); err != nil {
			r.logger.ErrorContext(ctx, "scheduled reminder pass failed", "error", err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("notify: schedule reminders %q: %w", spec, err)
	}
	return id, nil
}
