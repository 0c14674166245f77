package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/example/appointment-scheduler/internal/appointment"
)

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueDispatcher implements application.Notifier by enqueueing one
// created-task per call.
type QueueDispatcher struct {
	client   Enqueuer
	maxRetry int
	timeout  time.Duration
	logger   *slog.Logger
}

// NewQueueDispatcher wraps an asynq client.
func NewQueueDispatcher(client Enqueuer, logger *slog.Logger) *QueueDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueDispatcher{
		client:   client,
		maxRetry: 5,
		timeout:  30 * time.Second,
		logger:   logger.With("component", "notify_dispatcher"),
	}
}

// NotifyAppointments enqueues a notification about appts.
func (d *QueueDispatcher) NotifyAppointments(ctx context.Context, tenantID string, appts []appointment.Appointment) error {
	if d == nil || d.client == nil {
		return errors.New("notify: dispatcher is nil")
	}
	if len(appts) == 0 {
		return nil
	}

	task, err := NewCreatedTask(tenantID, appts)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(Queue),
		asynq.MaxRetry(d.maxRetry),
		asynq.Timeout(d.timeout),
	)
	if err != nil {
		return fmt.Errorf("notify: enqueue %s: %w", task.Type(), err)
	}
	d.logger.InfoContext(ctx, "notification enqueued", "tenant_id", tenantID, "task_id", info.ID, "appointments", len(appts))
	return nil
}
