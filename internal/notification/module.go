// Package notification wires in-app notifications to their per-user
// coordinators, the live SSE stream and follow-up reminders. It subscribes
// to follow-up events so the leads and scheduler sides never depend on it.
package notification

import (
	"context"
	"time"

	"sales_crm_backend/internal/events"
	apphttp "sales_crm_backend/internal/http"
	"sales_crm_backend/internal/notification/changefeed"
	"sales_crm_backend/internal/notification/coordinator"
	notifhandler "sales_crm_backend/internal/notification/handler"
	"sales_crm_backend/internal/notification/inapp"
	"sales_crm_backend/internal/notification/sse"
	"sales_crm_backend/platform/config"
	"sales_crm_backend/platform/logger"
	"sales_crm_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionIdleTTL = 2 * time.Minute

// ReminderScheduler enqueues the out-of-band reminder for a follow-up.
type ReminderScheduler interface {
	ScheduleFollowUpReminder(ctx context.Context, notificationID, userID uuid.UUID, recipientEmail string, runAt time.Time) error
}

// Module handles notification routes and event subscriptions.
type Module struct {
	cfg       config.NotificationConfig
	log       *logger.Logger
	feed      changefeed.Feed
	inApp     *inapp.Service
	stream    *sse.Service
	sessions  *coordinator.Registry
	handler   *notifhandler.HTTPHandler
	reminders ReminderScheduler
}

// New creates the notification module. feed may be nil, in which case
// coordinators only change on explicit refreshes and mutations.
func New(pool *pgxpool.Pool, feed changefeed.Feed, bus events.Bus, val *validator.Validator, cfg config.NotificationConfig, log *logger.Logger) *Module {
	svc := inapp.NewService(inapp.NewRepository(pool), log)
	if publisher, ok := feed.(inapp.ChangePublisher); ok {
		svc.SetPublisher(publisher)
	}

	m := &Module{
		cfg:    cfg,
		log:    log,
		feed:   feed,
		inApp:  svc,
		stream: sse.New(log),
	}
	m.sessions = coordinator.NewRegistry(m.newCoordinator, sessionIdleTTL, log)
	m.handler = notifhandler.NewHTTPHandler(m.sessions, m.stream, svc, bus, val)
	return m
}

func (m *Module) newCoordinator() *coordinator.Coordinator {
	return coordinator.New(m.inApp, m.feed,
		coordinator.WithSink(streamSink{stream: m.stream}),
		coordinator.WithLogger(m.log),
		coordinator.WithErrorAdvisoryInterval(m.cfg.GetFetchErrorAdvisoryInterval()),
		coordinator.WithAlertWindow(m.cfg.GetFollowUpAlertWindow()),
		coordinator.WithBackoff(m.cfg.GetFeedReconnectInitial(), m.cfg.GetFeedReconnectMax()),
		coordinator.WithRollback(m.cfg.GetOptimisticRollback()),
	)
}

func (m *Module) Name() string { return "notification" }

// RegisterRoutes registers notification API routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/notifications"))
}

// SetReminderScheduler enables reminder tasks for scheduled follow-ups.
func (m *Module) SetReminderScheduler(s ReminderScheduler) { m.reminders = s }

// InAppService exposes the notification service for the reminder worker.
func (m *Module) InAppService() *inapp.Service { return m.inApp }

// Sessions exposes the per-user coordinator registry.
func (m *Module) Sessions() *coordinator.Registry { return m.sessions }

func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.FollowUpScheduled{}.EventName(), m)
	bus.Subscribe(events.FollowUpReminderSent{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.FollowUpScheduled:
		return m.handleFollowUpScheduled(ctx, e)
	case events.FollowUpReminderSent:
		m.stream.Publish(e.UserID, sse.Event{
			Type:    sse.EventReminderSent,
			Message: "Follow-up reminder sent",
			Data:    e,
		})
		return nil
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleFollowUpScheduled(ctx context.Context, e events.FollowUpScheduled) error {
	if m.reminders == nil {
		return nil
	}
	if err := m.reminders.ScheduleFollowUpReminder(ctx, e.NotificationID, e.UserID, e.RecipientEmail, e.ScheduledAt); err != nil {
		m.log.Error("failed to schedule follow-up reminder", "error", err, "notification_id", e.NotificationID.String())
		return err
	}
	m.log.Info("follow-up reminder scheduled", "notification_id", e.NotificationID.String(), "run_at", e.ScheduledAt)
	return nil
}

// Close ends every session and open stream.
func (m *Module) Close() {
	m.sessions.Close()
	m.stream.Close()
}

// streamSink forwards coordinator output to the user's SSE streams.
type streamSink struct {
	stream *sse.Service
}

func (s streamSink) StateChanged(userID uuid.UUID, state coordinator.State) {
	s.stream.Publish(userID, sse.Event{Type: sse.EventNotifications, Data: notifhandler.NewStateResponse(state)})
}

func (s streamSink) FollowUpDue(userID uuid.UUID, alert coordinator.Alert) {
	var leadID uuid.UUID
	if alert.LeadID != nil {
		leadID = *alert.LeadID
	}
	s.stream.Publish(userID, sse.Event{
		Type:    sse.EventFollowUpDue,
		LeadID:  leadID,
		Message: "Follow-up due soon: " + alert.Title,
		Data:    alert,
	})
}

func (s streamSink) FetchFailed(userID uuid.UUID, _ error) {
	s.stream.Publish(userID, sse.Event{
		Type:    sse.EventNotificationsError,
		Message: "Could not load notifications",
	})
}

var (
	_ apphttp.Module   = (*Module)(nil)
	_ coordinator.Sink = streamSink{}
)
