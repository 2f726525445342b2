package streaming

import (
	"context"

	"honeypot-lab/internal/domain/models"
)

// EventBusPublisher fans engagement events out to the bus and the WebSocket hub.
// As a report observer it announces finished deliveries.
type EventBusPublisher struct {
	eventBus *EventBus
	wsHub    *WebSocketHub
}

// NewEventBusPublisher creates a new publisher adapter. Either side may be nil.
func NewEventBusPublisher(eventBus *EventBus, wsHub *WebSocketHub) *EventBusPublisher {
	return &EventBusPublisher{
		eventBus: eventBus,
		wsHub:    wsHub,
	}
}

// PublishEngagement publishes an event to every attached sink
func (p *EventBusPublisher) PublishEngagement(ctx context.Context, event *models.EngagementEvent) error {
	if p.eventBus != nil {
		if err := p.eventBus.Publish(ctx, event); err != nil {
			return err
		}
	}

	if p.wsHub != nil {
		p.wsHub.BroadcastEvent(event)
	}

	return nil
}

// ObserveReport publishes report_emitted once a report's delivery has finished
func (p *EventBusPublisher) ObserveReport(ctx context.Context, record *models.ReportRecord) error {
	return p.PublishEngagement(ctx, ReportEmittedEvent(record))
}

// ReportEmittedEvent describes a finished delivery
func ReportEmittedEvent(record *models.ReportRecord) *models.EngagementEvent {
	data := map[string]any{
		"report_id":   record.ID.String(),
		"status":      record.Status,
		"attempts":    record.Attempts,
		"scam_type":   record.Report.ScamType,
		"confidence":  record.Report.ConfidenceLevel,
		"intel_items": record.Report.ExtractedIntelligence.Count(),
		"messages":    record.Report.TotalMessagesExchanged,
	}
	if record.LastError != "" {
		data["error"] = record.LastError
	}
	return models.NewEngagementEvent(models.EventReportEmitted, record.Report.SessionID, data)
}
