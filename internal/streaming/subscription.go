package streaming

import (
	"slices"

	"honeypot-lab/internal/domain/models"
)

// Subscription narrows the events a subscriber receives.
// Empty fields match everything.
type Subscription struct {
	Types     []models.EngagementEventType `json:"types,omitempty"`
	SessionID string                       `json:"sessionId,omitempty"`
}

// Matches checks whether an event passes the subscription filter
func (s *Subscription) Matches(event *models.EngagementEvent) bool {
	if s == nil {
		return true
	}
	if len(s.Types) > 0 && !slices.Contains(s.Types, event.Type) {
		return false
	}
	if s.SessionID != "" && s.SessionID != event.SessionID {
		return false
	}
	return true
}
