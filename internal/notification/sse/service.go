// Package sse provides Server-Sent Events support for real-time notifications.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"sales_crm_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different types of SSE events
type EventType string

const (
	EventNotifications      EventType = "notifications"
	EventFollowUpDue        EventType = "follow_up_due"
	EventNotificationsError EventType = "notifications_error"
	EventLeadUpdated        EventType = "lead_updated"
	EventReminderSent       EventType = "follow_up_reminder_sent"
)

const (
	clientBuffer      = 32
	heartbeatInterval = 25 * time.Second
)

// Event represents an SSE event payload
type Event struct {
	Type    EventType `json:"type"`
	LeadID  uuid.UUID `json:"leadId,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
}

type client struct {
	userID uuid.UUID
	events chan Event
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.events) })
}

// Service manages SSE connections and event broadcasting
type Service struct {
	log *logger.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID][]*client
}

func New(log *logger.Logger) *Service {
	return &Service{
		log:     log,
		clients: make(map[uuid.UUID][]*client),
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.userID] = append(s.clients[c.userID], c)
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.userID]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.userID] = append(clients[:i:i], clients[i+1:]...)
			break
		}
	}
	if len(s.clients[c.userID]) == 0 {
		delete(s.clients, c.userID)
	}
	c.close()
}

// Publish sends an event to every open stream of a user. A stream whose
// buffer is full misses the event.
func (s *Service) Publish(userID uuid.UUID, event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := s.clients[userID]
	for _, c := range clients {
		select {
		case c.events <- event:
		default:
			s.log.Warn("sse buffer full, dropping event", "user_id", userID.String(), "event", string(event.Type))
		}
	}
	if len(clients) > 0 {
		s.log.Debug("sse event published", "user_id", userID.String(), "event", string(event.Type), "clients", len(clients))
	}
}

// Connected reports whether the user has at least one open stream.
func (s *Service) Connected(userID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[userID]) > 0
}

// Stream serves one SSE connection until the client goes away. initial
// events are written right after the connected event.
func (s *Service) Stream(c *gin.Context, userID uuid.UUID, initial ...Event) {
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	cl := &client{
		userID: userID,
		events: make(chan Event, clientBuffer),
	}
	s.addClient(cl)
	defer s.removeClient(cl)

	c.SSEvent("connected", gin.H{"userId": userID})
	for _, event := range initial {
		writeEvent(c, event)
	}
	c.Writer.Flush()

	s.log.Info("sse client connected", "user_id", userID.String())

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			s.log.Info("sse client disconnected", "user_id", userID.String())
			return
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			c.Writer.Flush()
		case event, ok := <-cl.events:
			if !ok {
				return
			}
			writeEvent(c, event)
			c.Writer.Flush()
		}
	}
}

func writeEvent(c *gin.Context, event Event) {
	data, _ := json.Marshal(event)
	c.SSEvent(string(event.Type), string(data))
}

// Close ends every open stream.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, clients := range s.clients {
		for _, c := range clients {
			c.close()
		}
	}
	s.clients = make(map[uuid.UUID][]*client)
}
