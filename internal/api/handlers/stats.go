package handlers

import (
	"net/http"
	"time"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services"
	"honeypot-lab/internal/streaming"
	"honeypot-lab/pkg/logger"
)

// StatsHandler reports in-process counters
type StatsHandler struct {
	store      *services.SessionStore
	dispatcher DispatcherStatsProvider
	archive    ArchiveStatsProvider
	eventBus   *streaming.EventBus
	wsHub      *streaming.WebSocketHub
	logger     *logger.Logger
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(store *services.SessionStore, dispatcher DispatcherStatsProvider, archive ArchiveStatsProvider, eventBus *streaming.EventBus, wsHub *streaming.WebSocketHub, log *logger.Logger) *StatsHandler {
	return &StatsHandler{
		store:      store,
		dispatcher: dispatcher,
		archive:    archive,
		eventBus:   eventBus,
		wsHub:      wsHub,
		logger:     log.WithComponent("stats"),
	}
}

// StatsResponse aggregates counters from every component
type StatsResponse struct {
	Sessions         services.SessionStoreStats      `json:"sessions"`
	Callbacks        *services.DispatcherStats       `json:"callbacks,omitempty"`
	Archive          map[models.DeliveryStatus]int64 `json:"archive,omitempty"`
	Events           *streaming.EventBusStats        `json:"events,omitempty"`
	WebSocketClients int                             `json:"websocketClients"`
	GeneratedAt      time.Time                       `json:"generatedAt"`
}

// Get handles GET /api/v1/stats
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Sessions:    h.store.Stats(),
		GeneratedAt: time.Now().UTC(),
	}
	if h.dispatcher != nil {
		s := h.dispatcher.Stats()
		resp.Callbacks = &s
	}
	if h.archive != nil {
		counts, err := h.archive.StatusCounts(r.Context())
		if err != nil {
			h.logger.Warn().Err(err).Msg("failed to count archived reports")
		} else {
			resp.Archive = counts
		}
	}
	if h.eventBus != nil {
		s := h.eventBus.Stats()
		resp.Events = &s
	}
	if h.wsHub != nil {
		resp.WebSocketClients = h.wsHub.ClientCount()
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}
