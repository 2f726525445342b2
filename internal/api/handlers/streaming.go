package handlers

import (
	"net/http"

	"honeypot-lab/internal/streaming"
	"honeypot-lab/pkg/logger"
)

// StreamingHandler serves the live engagement event feed
type StreamingHandler struct {
	wsHub  *streaming.WebSocketHub
	logger *logger.Logger
}

// NewStreamingHandler creates a new streaming handler
func NewStreamingHandler(wsHub *streaming.WebSocketHub, log *logger.Logger) *StreamingHandler {
	return &StreamingHandler{
		wsHub:  wsHub,
		logger: log.WithComponent("streaming-handler"),
	}
}

// HandleWebSocket handles GET /api/v1/events/ws
func (h *StreamingHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		writeError(w, http.StatusServiceUnavailable, "event streaming not available")
		return
	}

	h.logger.Debug().
		Str("remote_addr", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Msg("WebSocket connection request")

	h.wsHub.ServeWebSocket(w, r)
}
