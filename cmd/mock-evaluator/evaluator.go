package main

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

// receivedReport is a report as the evaluator stored it
type receivedReport struct {
	SessionID             string          `json:"sessionId"`
	ScamDetected          bool            `json:"scamDetected"`
	ExtractedIntelligence models.Evidence `json:"extractedIntelligence"`
	TotalMessages         int             `json:"totalMessagesExchanged"`
	AgentNotes            string          `json:"agentNotes"`
	Raw                   map[string]any  `json:"raw"`
	Submissions           int             `json:"submissions"`
	ReceivedAt            time.Time       `json:"receivedAt"`
}

// evaluator keeps the latest report per session
type evaluator struct {
	mu      sync.RWMutex
	reports map[string]*receivedReport

	// failFirst answers the first N submissions with 503 so callers exercise retries
	failFirst int64
	seen      atomic.Int64

	logger *logger.Logger
}

func newEvaluator(failFirst int, log *logger.Logger) *evaluator {
	return &evaluator{
		reports:   make(map[string]*receivedReport),
		failFirst: int64(failFirst),
		logger:    log.WithComponent("mock-evaluator"),
	}
}

func (e *evaluator) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", e.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/updateHoneyPotFinalResult", e.handleReport).Methods(http.MethodPost)
	r.HandleFunc("/reports", e.handleList).Methods(http.MethodGet)
	r.HandleFunc("/reports/{sessionId}", e.handleGet).Methods(http.MethodGet)
	return r
}

func (e *evaluator) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "healthy", "reports": e.count()})
}

func (e *evaluator) handleReport(w http.ResponseWriter, r *http.Request) {
	if n := e.seen.Add(1); n <= e.failFirst {
		e.logger.Info().Int64("submission", n).Msg("failing submission on purpose")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporarily unavailable"})
		return
	}

	var raw map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&raw); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	sessionID, _ := raw["sessionId"].(string)
	if sessionID == "" {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "sessionId is required"})
		return
	}

	rep := &receivedReport{
		SessionID:  sessionID,
		Raw:        raw,
		ReceivedAt: time.Now().UTC(),
	}
	rep.ScamDetected, _ = raw["scamDetected"].(bool)
	rep.AgentNotes, _ = raw["agentNotes"].(string)
	if n, ok := raw["totalMessagesExchanged"].(float64); ok {
		rep.TotalMessages = int(n)
	}
	intel, _ := raw["extractedIntelligence"].(map[string]any)
	rep.ExtractedIntelligence = models.EvidenceFromRaw(intel)

	e.mu.Lock()
	if prev, ok := e.reports[sessionID]; ok {
		rep.Submissions = prev.Submissions
	}
	rep.Submissions++
	e.reports[sessionID] = rep
	e.mu.Unlock()

	e.logger.Info().
		Str("session_id", sessionID).
		Int("messages", rep.TotalMessages).
		Str("evidence", rep.ExtractedIntelligence.String()).
		Msg("report received")

	respondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (e *evaluator) handleList(w http.ResponseWriter, r *http.Request) {
	e.mu.RLock()
	out := make([]*receivedReport, 0, len(e.reports))
	for _, rep := range e.reports {
		out = append(out, rep)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	respondJSON(w, http.StatusOK, map[string]any{"reports": out, "count": len(out)})
}

func (e *evaluator) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]

	e.mu.RLock()
	rep, ok := e.reports[id]
	e.mu.RUnlock()

	if !ok {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "no report for session"})
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (e *evaluator) count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.reports)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
