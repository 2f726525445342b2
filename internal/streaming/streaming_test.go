package streaming

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

func TestSubscriptionMatches(t *testing.T) {
	event := models.NewEngagementEvent(models.EventRedFlagRaised, "s1", nil)

	tests := []struct {
		name string
		sub  *Subscription
		want bool
	}{
		{"nil matches all", nil, true},
		{"empty matches all", &Subscription{}, true},
		{"type hit", &Subscription{Types: []models.EngagementEventType{models.EventScamConfirmed, models.EventRedFlagRaised}}, true},
		{"type miss", &Subscription{Types: []models.EngagementEventType{models.EventReportEmitted}}, false},
		{"session hit", &Subscription{SessionID: "s1"}, true},
		{"session miss", &Subscription{SessionID: "s2"}, false},
		{"both must hold", &Subscription{SessionID: "s1", Types: []models.EngagementEventType{models.EventReportEmitted}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.Matches(event))
		})
	}
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "honeypot.report_emitted", SubjectFor("honeypot", models.EventReportEmitted))
}

func TestEventBusDeliversToMatchingSubscribers(t *testing.T) {
	bus := NewEventBus(nil, logger.NewNop())
	defer bus.Close()

	all, unsubAll := bus.Subscribe(nil)
	defer unsubAll()
	reports, unsubReports := bus.Subscribe(&Subscription{Types: []models.EngagementEventType{models.EventReportEmitted}})
	defer unsubReports()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, models.NewEngagementEvent(models.EventSessionStarted, "a", nil)))
	require.NoError(t, bus.PublishEngagement(ctx, models.NewEngagementEvent(models.EventReportEmitted, "a", nil)))

	assert.Equal(t, models.EventSessionStarted, (<-all).Type)
	assert.Equal(t, models.EventReportEmitted, (<-all).Type)
	assert.Equal(t, models.EventReportEmitted, (<-reports).Type)
	assert.Empty(t, reports)

	stats := bus.Stats()
	assert.Equal(t, 2, stats.Subscribers)
	assert.Equal(t, int64(2), stats.Published)
	assert.False(t, stats.NATSConnected)
}

func TestEventBusDropsForSlowSubscribers(t *testing.T) {
	bus := NewEventBus(nil, logger.NewNop())
	defer bus.Close()

	_, unsub := bus.Subscribe(nil)
	defer unsub()

	for range subscriberBuffer + 5 {
		_ = bus.Publish(context.Background(), models.NewEngagementEvent(models.EventSessionStarted, "x", nil))
	}
	assert.Equal(t, int64(5), bus.Stats().Dropped)
}

func TestEventBusUnsubscribeAndClose(t *testing.T) {
	bus := NewEventBus(nil, logger.NewNop())

	ch, unsub := bus.Subscribe(nil)
	unsub()
	unsub()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, bus.SubscriberCount())

	other, otherUnsub := bus.Subscribe(nil)
	bus.Close()
	_, open = <-other
	assert.False(t, open)
	otherUnsub()

	late, _ := bus.Subscribe(nil)
	_, open = <-late
	assert.False(t, open, "subscribing to a closed bus yields a closed channel")
	assert.NoError(t, bus.Publish(context.Background(), models.NewEngagementEvent(models.EventSessionStarted, "x", nil)))

	_, err := bus.SubscribeRemote(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNATSNotConnected)
}

func TestEventBusPublisherReportObserver(t *testing.T) {
	bus := NewEventBus(nil, logger.NewNop())
	defer bus.Close()
	ch, unsub := bus.Subscribe(nil)
	defer unsub()

	pub := NewEventBusPublisher(bus, nil)
	ev := models.NewEvidence()
	ev[models.EvidenceUPIIDs] = []string{"a@ybl"}
	record := &models.ReportRecord{
		ID:        uuid.New(),
		Status:    models.DeliveryFailed,
		Attempts:  3,
		LastError: "HTTP 503",
		Report: models.Report{
			SessionID:              "r1",
			ExtractedIntelligence:  ev,
			TotalMessagesExchanged: 8,
			ScamType:               models.ScamUPIFraud,
			ConfidenceLevel:        0.8,
		},
	}

	require.NoError(t, pub.ObserveReport(context.Background(), record))

	got := <-ch
	assert.Equal(t, models.EventReportEmitted, got.Type)
	assert.Equal(t, "r1", got.SessionID)
	assert.Equal(t, record.ID.String(), got.Data["report_id"])
	assert.Equal(t, 1, got.Data["intel_items"])
	assert.Equal(t, "HTTP 503", got.Data["error"])
}

func TestWebSocketHubStreamsFilteredEvents(t *testing.T) {
	hub := NewWebSocketHub(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(httptestHandler(hub))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?sessionId=watched"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	pub := NewEventBusPublisher(nil, hub)
	require.NoError(t, pub.PublishEngagement(ctx, models.NewEngagementEvent(models.EventSessionStarted, "other", nil)))
	require.NoError(t, pub.PublishEngagement(ctx, models.NewEngagementEvent(models.EventScamConfirmed, "watched", nil)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got models.EngagementEvent
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, models.EventScamConfirmed, got.Type)
	assert.Equal(t, "watched", got.SessionID)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func httptestHandler(hub *WebSocketHub) http.Handler {
	return http.HandlerFunc(hub.ServeWebSocket)
}
