package handlers

import (
	"context"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services"
	"honeypot-lab/internal/streaming"
	"honeypot-lab/pkg/logger"
)

// Pinger is a dependency the readiness probe checks
type Pinger interface {
	Ping(ctx context.Context) error
}

// LatestReportReader looks up the last report emitted for a session
type LatestReportReader interface {
	LatestReport(ctx context.Context, sessionID string) (*models.ReportRecord, bool, error)
}

// ReportArchive lists archived reports for a session
type ReportArchive interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.ReportRecord, error)
}

// ReportCounter reports how many reports a session has emitted
type ReportCounter interface {
	ReportCount(ctx context.Context, sessionID string) (int64, error)
}

// ArchiveStatsProvider summarizes archived reports by delivery status
type ArchiveStatsProvider interface {
	StatusCounts(ctx context.Context) (map[models.DeliveryStatus]int64, error)
}

// DispatcherStatsProvider exposes callback delivery counters
type DispatcherStatsProvider interface {
	Stats() services.DispatcherStats
}

// Handlers holds all API handlers
type Handlers struct {
	Health    *HealthHandler
	Honeypot  *HoneypotHandler
	Sessions  *SessionsHandler
	Stats     *StatsHandler
	Streaming *StreamingHandler
}

// Dependencies holds dependencies for handlers. Optional infrastructure
// (Reports, Archive, EventBus, WSHub) may be nil when disabled.
type Dependencies struct {
	Engagement       *services.EngagementService
	Dispatcher       DispatcherStatsProvider
	Reports          LatestReportReader
	Archive          ReportArchive
	EventBus         *streaming.EventBus
	WSHub            *streaming.WebSocketHub
	Checks           map[string]Pinger
	MaxMessageLength int
	Version          string
	Logger           *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	store := deps.Engagement.Aggregator().Store()
	archiveStats, _ := deps.Archive.(ArchiveStatsProvider)
	return &Handlers{
		Health:    NewHealthHandler(deps.Checks, deps.Version, deps.Logger),
		Honeypot:  NewHoneypotHandler(deps.Engagement, deps.MaxMessageLength, deps.Logger),
		Sessions:  NewSessionsHandler(deps.Engagement.Aggregator(), deps.Reports, deps.Archive, deps.Logger),
		Stats:     NewStatsHandler(store, deps.Dispatcher, archiveStats, deps.EventBus, deps.WSHub, deps.Logger),
		Streaming: NewStreamingHandler(deps.WSHub, deps.Logger),
	}
}
