package scheduler

import (
	"context"
	"errors"
	"fmt"

	"sales_crm_backend/internal/email"
	"sales_crm_backend/internal/events"
	"sales_crm_backend/internal/notification/inapp"
	"sales_crm_backend/platform/apperr"
	"sales_crm_backend/platform/config"
	"sales_crm_backend/platform/logger"
	"sales_crm_backend/platform/metrics"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// NotificationReader loads the notification a reminder was scheduled for.
type NotificationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (inapp.Notification, error)
}

// ReminderHandler delivers due follow-up reminders. A reminder is skipped
// when its notification was deleted or already read.
type ReminderHandler struct {
	notifications NotificationReader
	sender        email.Sender
	bus           events.Bus
	log           *logger.Logger
}

func NewReminderHandler(notifications NotificationReader, sender email.Sender, bus events.Bus, log *logger.Logger) *ReminderHandler {
	return &ReminderHandler{
		notifications: notifications,
		sender:        sender,
		bus:           bus,
		log:           log,
	}
}

func (h *ReminderHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFollowUpReminderPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	notificationID, err := uuid.Parse(payload.NotificationID)
	if err != nil {
		return fmt.Errorf("invalid notification id: %w", asynq.SkipRetry)
	}

	n, err := h.notifications.GetByID(ctx, notificationID)
	if apperr.Is(err, apperr.KindNotFound) {
		h.skip(notificationID, "notification deleted")
		return nil
	}
	if err != nil {
		metrics.RemindersSent.WithLabelValues("failed").Inc()
		return err
	}
	if n.IsRead {
		h.skip(notificationID, "notification already read")
		return nil
	}
	if payload.RecipientEmail == "" {
		h.skip(notificationID, "no recipient email")
		return nil
	}

	reminder := email.FollowUpReminder{
		Title:   n.Title,
		Message: n.Message,
	}
	if n.LeadName != nil {
		reminder.LeadName = *n.LeadName
	}
	if n.ScheduledAt != nil {
		reminder.ScheduledAt = *n.ScheduledAt
	}

	if err := h.sender.SendFollowUpReminder(ctx, payload.RecipientEmail, reminder); err != nil {
		metrics.RemindersSent.WithLabelValues("failed").Inc()
		h.log.Error("follow-up reminder delivery failed", "error", err, "notification_id", notificationID.String())
		return err
	}
	metrics.RemindersSent.WithLabelValues("sent").Inc()

	if h.bus != nil {
		h.bus.Publish(ctx, events.FollowUpReminderSent{
			BaseEvent:      events.NewBaseEvent(),
			NotificationID: n.ID,
			UserID:         n.UserID,
			Channel:        "email",
		})
	}
	return nil
}

func (h *ReminderHandler) skip(id uuid.UUID, reason string) {
	metrics.RemindersSent.WithLabelValues("skipped").Inc()
	h.log.Info("follow-up reminder skipped", "notification_id", id.String(), "reason", reason)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, reminders *ReminderHandler, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Warn("scheduler task failed", "task", task.Type(), "error", err)
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskFollowUpReminder, reminders)

	return &Worker{
		server: server,
		mux:    mux,
		log:    log,
	}, nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start scheduler worker: %w", err)
	}
	w.log.Info("scheduler worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}
