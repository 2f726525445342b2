package models

import (
	"time"

	"github.com/google/uuid"
)

// EngagementEventType identifies what happened in a conversation
type EngagementEventType string

const (
	EventSessionStarted EngagementEventType = "session_started"
	EventScamConfirmed  EngagementEventType = "scam_confirmed"
	EventScamClassified EngagementEventType = "scam_classified"
	EventRedFlagRaised  EngagementEventType = "red_flag_raised"
	EventReportEmitted  EngagementEventType = "report_emitted"
)

// EngagementEvent is published on the event bus and streamed to observers
type EngagementEvent struct {
	ID        uuid.UUID           `json:"id"`
	Type      EngagementEventType `json:"type"`
	SessionID string              `json:"sessionId"`
	Timestamp time.Time           `json:"timestamp"`
	Data      map[string]any      `json:"data,omitempty"`
}

// NewEngagementEvent stamps a new event with an ID and the current time
func NewEngagementEvent(eventType EngagementEventType, sessionID string, data map[string]any) *EngagementEvent {
	return &EngagementEvent{
		ID:        uuid.New(),
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
