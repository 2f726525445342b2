package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services"
	"honeypot-lab/pkg/logger"
)

// SessionsHandler exposes live session state and report history
type SessionsHandler struct {
	aggregator *services.SessionAggregator
	reports    LatestReportReader
	archive    ReportArchive
	logger     *logger.Logger
}

// NewSessionsHandler creates a new SessionsHandler
func NewSessionsHandler(agg *services.SessionAggregator, reports LatestReportReader, archive ReportArchive, log *logger.Logger) *SessionsHandler {
	return &SessionsHandler{
		aggregator: agg,
		reports:    reports,
		archive:    archive,
		logger:     log.WithComponent("sessions-handler"),
	}
}

// SessionListResponse lists live session IDs, most recently active last
type SessionListResponse struct {
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

// List handles GET /api/v1/sessions
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	ids := h.aggregator.Store().SessionIDs()
	writeJSON(w, http.StatusOK, SessionListResponse{Sessions: ids, Count: len(ids)})
}

// SessionResponse is a snapshot plus its derived report figures
type SessionResponse struct {
	*models.SessionSnapshot
	MessageCount int     `json:"messageCount"`
	Confidence   float64 `json:"confidence"`
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := h.aggregator.Snapshot(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		SessionSnapshot: snap,
		MessageCount:    snap.MessageCount(),
		Confidence:      models.CalculateConfidence(snap.MessageCount(), snap.Evidence.Count(), len(snap.RedFlags)),
	})
}

// Delete handles DELETE /api/v1/sessions/{id}
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.aggregator.Store().Remove(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	h.logger.Info().Str("session_id", id).Msg("session removed")
	w.WriteHeader(http.StatusNoContent)
}

// LatestReport handles GET /api/v1/sessions/{id}/report
func (h *SessionsHandler) LatestReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report cache not configured")
		return
	}

	id := services.NormalizeSessionID(chi.URLParam(r, "id"))
	rec, found, err := h.reports.LatestReport(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", id).Msg("failed to read latest report")
		writeError(w, http.StatusInternalServerError, "failed to read report")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no report emitted for session")
		return
	}

	if counter, ok := h.reports.(ReportCounter); ok {
		if n, err := counter.ReportCount(r.Context(), id); err == nil {
			w.Header().Set("X-Report-Count", strconv.FormatInt(n, 10))
		}
	}
	writeJSON(w, http.StatusOK, rec)
}

// ReportListResponse lists archived reports, newest first
type ReportListResponse struct {
	SessionID string                 `json:"sessionId"`
	Reports   []*models.ReportRecord `json:"reports"`
	Count     int                    `json:"count"`
}

// ListReports handles GET /api/v1/sessions/{id}/reports?limit=N
func (h *SessionsHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "report archive not configured")
		return
	}

	id := services.NormalizeSessionID(chi.URLParam(r, "id"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	records, err := h.archive.ListBySession(r.Context(), id, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", id).Msg("failed to list reports")
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if records == nil {
		records = []*models.ReportRecord{}
	}

	writeJSON(w, http.StatusOK, ReportListResponse{SessionID: id, Reports: records, Count: len(records)})
}
