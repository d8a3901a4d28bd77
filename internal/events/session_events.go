package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

type EventType string

const (
	EventSessionVerified         EventType = "session.verified"
	EventSectionStarted          EventType = "section.started"
	EventSectionCompleted        EventType = "section.completed"
	EventSessionCompleted        EventType = "session.completed"
	EventSessionAlreadySubmitted EventType = "session.already_submitted"
)

const eventSource = "candidate-session-service"

// SessionEvent is one lifecycle notification emitted by the engine.
// Payload carries event-specific fields such as section id, forced-finish
// flag or dropped-answer count.
type SessionEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Token     string                 `json:"token"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// NewSessionEvent builds an event with a fresh id and current timestamp.
func NewSessionEvent(eventType EventType, token string, payload map[string]interface{}) *SessionEvent {
	return &SessionEvent{
		ID:        watermill.NewUUID(),
		Type:      eventType,
		Token:     token,
		Source:    eventSource,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
