package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/api/handlers"
	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services"
	"honeypot-lab/pkg/logger"
)

const testAPIKey = "test-key"

type staticReplies struct{ reply string }

func (s staticReplies) Name() string { return "static" }

func (s staticReplies) GenerateReply(context.Context, string, string) (string, error) {
	return s.reply, nil
}

type acceptAll struct{}

func (acceptAll) Submit(*models.Report) bool { return true }

type fakeReports struct {
	rec *models.ReportRecord
	err error
}

func (f *fakeReports) LatestReport(_ context.Context, sessionID string) (*models.ReportRecord, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.rec == nil || f.rec.Report.SessionID != sessionID {
		return nil, false, nil
	}
	return f.rec, true, nil
}

func (f *fakeReports) ReportCount(_ context.Context, _ string) (int64, error) {
	return 3, nil
}

type fakeArchive struct {
	records   []*models.ReportRecord
	lastLimit int
}

func (f *fakeArchive) ListBySession(_ context.Context, _ string, limit int) ([]*models.ReportRecord, error) {
	f.lastLimit = limit
	return f.records, nil
}

func (f *fakeArchive) StatusCounts(_ context.Context) (map[models.DeliveryStatus]int64, error) {
	counts := make(map[models.DeliveryStatus]int64)
	for _, r := range f.records {
		counts[r.Status]++
	}
	return counts, nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	handler    http.Handler
	engagement *services.EngagementService
	reports    *fakeReports
	archive    *fakeArchive
}

func newTestServer(t *testing.T, checks map[string]handlers.Pinger) *testServer {
	t.Helper()
	log := logger.NewNop()

	cfg := config.Config{
		Auth:   config.AuthConfig{APIKey: testAPIKey},
		Server: config.ServerConfig{MaxMessageLength: 5000},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-API-Key"},
		},
	}

	lib := services.NewPatternLibrary()
	agg := services.NewSessionAggregator(
		services.NewSessionStore(services.SessionStoreConfig{MaxSessions: 100}, log),
		services.NewEvidenceExtractor(lib, log),
		lib,
		log,
	)
	engagement := services.NewEngagementService(services.EngagementDeps{
		Aggregator: agg,
		Detector:   services.NewScamDetector(lib),
		Policy:     services.ThresholdReport{MinMessages: 5, MaxMessages: 10},
		Replies:    staticReplies{reply: "Oh dear, which branch is this?"},
		Submitter:  acceptAll{},
	}, log)

	reports := &fakeReports{}
	archive := &fakeArchive{}
	h := handlers.NewHandlers(handlers.Dependencies{
		Engagement:       engagement,
		Reports:          reports,
		Archive:          archive,
		Checks:           checks,
		MaxMessageLength: cfg.Server.MaxMessageLength,
		Version:          "test",
		Logger:           log,
	})

	return &testServer{
		handler:    NewRouter(cfg, h, nil, log).Setup(),
		engagement: engagement,
		reports:    reports,
		archive:    archive,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("x-api-key", testAPIKey)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func turn(t *testing.T, sessionID, sender, text string, history int) string {
	t.Helper()
	hist := make([]map[string]any, history)
	for i := range hist {
		hist[i] = map[string]any{"sender": "scammer", "text": "earlier message", "timestamp": 1700000000000}
	}
	body, err := json.Marshal(map[string]any{
		"sessionId":           sessionID,
		"message":             map[string]any{"sender": sender, "text": text, "timestamp": "2026-01-21T10:15:30Z"},
		"conversationHistory": hist,
		"metadata":            map[string]any{"channel": "SMS", "language": "English", "locale": "IN"},
	})
	require.NoError(t, err)
	return string(body)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"active","service":"Agentic Honey-Pot API"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/health", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[handlers.HealthResponse](t, rec).Status)
}

func TestReady(t *testing.T) {
	s := newTestServer(t, map[string]handlers.Pinger{
		"redis": pingFunc(func(context.Context) error { return nil }),
	})
	rec := s.do(t, http.MethodGet, "/ready", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[handlers.HealthResponse](t, rec)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "healthy", resp.Checks["redis"])
	assert.Equal(t, "healthy", resp.Checks["sessions"])

	s = newTestServer(t, map[string]handlers.Pinger{
		"postgres": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	rec = s.do(t, http.MethodGet, "/ready", "", false)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp = decode[handlers.HealthResponse](t, rec)
	assert.Equal(t, "not ready", resp.Status)
	assert.Contains(t, resp.Checks["postgres"], "connection refused")
}

func TestHoneypotRequiresAPIKey(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/honeypot", turn(t, "s1", "scammer", "hello", 0), false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid API key"}`, rec.Body.String())
	assert.Equal(t, 0, s.engagement.Aggregator().Store().Len())
}

func TestHoneypotNeutralFirstTurn(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/honeypot", turn(t, "s1", "scammer", "Hi there, how are you doing?", 0), true)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[handlers.HoneypotResponse](t, rec)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, services.NeutralReply, resp.Reply)
}

func TestHoneypotEngagesScam(t *testing.T) {
	s := newTestServer(t, nil)

	body := turn(t, "  scam-1  ", "  SCAMMER ", "URGENT: your SBI account blocked. Share OTP now.", 0)
	rec := s.do(t, http.MethodPost, "/honeypot", body, true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Oh dear, which branch is this?", decode[handlers.HoneypotResponse](t, rec).Reply)

	agg := s.engagement.Aggregator()
	assert.True(t, agg.IsScamConfirmed("scam-1"))
	assert.Equal(t, models.ScamBankFraud, agg.ScamCategory("scam-1"))
	// the scammer turn plus the honeypot reply
	assert.Equal(t, 2, agg.MessageCount("scam-1"))
}

func TestHoneypotEngagesWithHistory(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/honeypot", turn(t, "s2", "scammer", "Are you still there?", 2), true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Oh dear, which branch is this?", decode[handlers.HoneypotResponse](t, rec).Reply)
}

func TestHoneypotValidation(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"blank text", turn(t, "s1", "scammer", "   ", 0), "message.text"},
		{"blank session", turn(t, "  ", "scammer", "hello", 0), "sessionId"},
		{"blank sender", turn(t, "s1", " ", "hello", 0), "message.sender"},
		{"too long", turn(t, "s1", "scammer", strings.Repeat("a", 5001), 0), "message.text"},
		{"missing message", `{"sessionId":"s1"}`, "message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/honeypot", tt.body, true)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

			resp := decode[handlers.ErrorResponse](t, rec)
			assert.Equal(t, "validation failed", resp.Error)
			fields := make([]string, len(resp.Details))
			for i, d := range resp.Details {
				fields[i] = d.Field
			}
			assert.Contains(t, fields, tt.field)
		})
	}

	rec := s.do(t, http.MethodPost, "/honeypot", `{"sessionId":`, true)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Invalid request body", decode[handlers.ErrorResponse](t, rec).Error)

	assert.Equal(t, 0, s.engagement.Aggregator().Store().Len())
}

func TestHoneypotAcceptsMaxLengthText(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/honeypot", turn(t, "s1", "scammer", strings.Repeat("ä", 5000), 0), true)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/sessions/nope", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.do(t, http.MethodPost, "/honeypot", turn(t, "live", "scammer", "Pay to cash@paytm urgently", 0), true)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[handlers.SessionListResponse](t, rec)
	assert.Equal(t, []string{"live"}, list.Sessions)
	assert.Equal(t, 1, list.Count)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions/live", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "live", snap["sessionId"])
	assert.EqualValues(t, 2, snap["messageCount"])

	rec = s.do(t, http.MethodDelete, "/api/v1/sessions/live", "", true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/v1/sessions/live", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLatestReport(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/sessions/s9/report", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.reports.rec = &models.ReportRecord{
		ID:        uuid.New(),
		Report:    models.Report{SessionID: "s9", ScamDetected: true, ScamType: models.ScamUPIFraud},
		Status:    models.DeliveryDelivered,
		Attempts:  1,
		CreatedAt: time.Now().UTC(),
	}
	rec = s.do(t, http.MethodGet, "/api/v1/sessions/s9/report", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-Report-Count"))
	got := decode[models.ReportRecord](t, rec)
	assert.Equal(t, s.reports.rec.ID, got.ID)
	assert.Equal(t, models.DeliveryDelivered, got.Status)

	s.reports.err = errors.New("redis timeout")
	rec = s.do(t, http.MethodGet, "/api/v1/sessions/s9/report", "", true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListReports(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/sessions/s1/reports", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[handlers.ReportListResponse](t, rec)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Empty(t, resp.Reports)
	assert.Equal(t, 0, s.archive.lastLimit)

	s.archive.records = []*models.ReportRecord{{ID: uuid.New(), Status: models.DeliveryFailed}}
	rec = s.do(t, http.MethodGet, "/api/v1/sessions/s1/reports?limit=20", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[handlers.ReportListResponse](t, rec).Count)
	assert.Equal(t, 20, s.archive.lastLimit)

	for _, bad := range []string{"0", "501", "many"} {
		rec = s.do(t, http.MethodGet, "/api/v1/sessions/s1/reports?limit="+bad, "", true)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodPost, "/honeypot", turn(t, "a", "scammer", "Your KYC will expire today", 0), true)

	rec := s.do(t, http.MethodGet, "/api/v1/stats", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[handlers.StatsResponse](t, rec)
	assert.Equal(t, 1, resp.Sessions.Active)
	assert.EqualValues(t, 1, resp.Sessions.Created)
	assert.Nil(t, resp.Callbacks)
	assert.Nil(t, resp.Events)
	assert.Empty(t, resp.Archive)

	s.archive.records = []*models.ReportRecord{
		{ID: uuid.New(), Status: models.DeliveryDelivered},
		{ID: uuid.New(), Status: models.DeliveryDelivered},
		{ID: uuid.New(), Status: models.DeliveryFailed},
	}
	rec = s.do(t, http.MethodGet, "/api/v1/stats", "", true)
	resp = decode[handlers.StatsResponse](t, rec)
	assert.EqualValues(t, 2, resp.Archive[models.DeliveryDelivered])
	assert.EqualValues(t, 1, resp.Archive[models.DeliveryFailed])
}

func TestEventStreamUnavailableWithoutHub(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/events/ws", "", true)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointIsPublic(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/metrics", "", false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("honeypot_")))
}
