package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/ai"
	"honeypot-lab/pkg/logger"
)

type fakeReplies struct {
	reply string
	err   error
	panic bool

	mu          sync.Mutex
	transcripts []string
}

func (f *fakeReplies) Name() string { return "fake" }

func (f *fakeReplies) GenerateReply(_ context.Context, _, transcript string) (string, error) {
	if f.panic {
		panic("generator exploded")
	}
	f.mu.Lock()
	f.transcripts = append(f.transcripts, transcript)
	f.mu.Unlock()
	return f.reply, f.err
}

type fakeSubmitter struct {
	mu      sync.Mutex
	reports []*models.Report
	accept  bool
}

func (f *fakeSubmitter) Submit(r *models.Report) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return f.accept
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.EngagementEvent
	err    error
}

func (f *fakePublisher) PublishEngagement(_ context.Context, e *models.EngagementEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func (f *fakePublisher) types() []models.EngagementEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.EngagementEventType, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

type engagementFixture struct {
	svc       *EngagementService
	replies   *fakeReplies
	submitter *fakeSubmitter
	events    *fakePublisher
}

func newEngagementFixture(policy ReportPolicy) *engagementFixture {
	log := logger.NewNop()
	lib := NewPatternLibrary()
	agg := NewSessionAggregator(NewSessionStore(SessionStoreConfig{MaxSessions: 100}, log), NewEvidenceExtractor(lib, log), lib, log)

	f := &engagementFixture{
		replies:   &fakeReplies{reply: "Oh no! Which branch are you calling from?"},
		submitter: &fakeSubmitter{accept: true},
		events:    &fakePublisher{},
	}
	f.svc = NewEngagementService(EngagementDeps{
		Aggregator: agg,
		Detector:   NewScamDetector(lib),
		Policy:     policy,
		Replies:    f.replies,
		Submitter:  f.submitter,
		Events:     f.events,
	}, log)
	return f
}

func TestHandleMessageNeutralOnFirstBenignTurn(t *testing.T) {
	f := newEngagementFixture(AlwaysReport{})

	res := f.svc.HandleMessage(context.Background(), InboundMessage{SessionID: "n", Sender: "scammer", Text: "Hi, how are you?"})

	assert.Equal(t, NeutralReply, res.Reply)
	assert.False(t, res.ScamDetected)
	assert.False(t, res.Engaged)
	assert.False(t, res.Reported)
	assert.Empty(t, f.replies.transcripts)
	assert.Empty(t, f.submitter.reports)
	assert.Equal(t, 1, f.svc.Aggregator().MessageCount("n"), "the turn is still recorded")
}

func TestHandleMessageEngagesOnScam(t *testing.T) {
	f := newEngagementFixture(ThresholdReport{MinMessages: 5, MaxMessages: 10})

	res := f.svc.HandleMessage(context.Background(), InboundMessage{
		SessionID: "e",
		Sender:    "scammer",
		Text:      "Your account 123456789 is blocked, pay to fraud@upi immediately",
	})

	assert.True(t, res.ScamDetected)
	assert.True(t, res.Engaged)
	assert.Equal(t, "Oh no! Which branch are you calling from?", res.Reply)
	assert.False(t, res.Reported, "threshold not reached")
	assert.Equal(t, models.ScamBankFraud, res.Outcome.ClassifiedAs)

	agg := f.svc.Aggregator()
	assert.True(t, agg.IsScamConfirmed("e"))
	assert.Equal(t, 2, agg.MessageCount("e"))
	assert.Equal(t,
		"scammer: Your account 123456789 is blocked, pay to fraud@upi immediately\nuser: Oh no! Which branch are you calling from?",
		agg.Transcript("e"))
	require.Len(t, f.replies.transcripts, 1)
	assert.Equal(t, "scammer: Your account 123456789 is blocked, pay to fraud@upi immediately", f.replies.transcripts[0])

	assert.Equal(t, []models.EngagementEventType{
		models.EventSessionStarted,
		models.EventScamClassified,
		models.EventRedFlagRaised,
		models.EventScamConfirmed,
	}, f.events.types())
}

func TestHandleMessageKeepsEngagingConfirmedSession(t *testing.T) {
	f := newEngagementFixture(ThresholdReport{MinMessages: 5, MaxMessages: 10})
	ctx := context.Background()

	f.svc.HandleMessage(ctx, InboundMessage{SessionID: "k", Sender: "scammer", Text: "urgent: verify your KYC"})
	res := f.svc.HandleMessage(ctx, InboundMessage{SessionID: "k", Sender: "scammer", Text: "ok"})

	assert.True(t, res.ScamDetected)
	assert.True(t, res.Engaged)

	confirmed := 0
	for _, typ := range f.events.types() {
		if typ == models.EventScamConfirmed {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed)
}

func TestHandleMessageEngagesWithHistory(t *testing.T) {
	f := newEngagementFixture(ThresholdReport{MinMessages: 5, MaxMessages: 10})

	res := f.svc.HandleMessage(context.Background(), InboundMessage{SessionID: "h", Sender: "scammer", Text: "hello again", PriorTurns: 2})

	assert.False(t, res.ScamDetected)
	assert.True(t, res.Engaged)
	assert.NotEqual(t, NeutralReply, res.Reply)
}

func TestHandleMessageSubmitsReport(t *testing.T) {
	f := newEngagementFixture(AlwaysReport{})

	res := f.svc.HandleMessage(context.Background(), InboundMessage{SessionID: "r", Sender: "scammer", Text: "Send money to cash@paytm now, urgent"})

	require.True(t, res.Reported)
	require.Len(t, f.submitter.reports, 1)
	report := f.submitter.reports[0]
	assert.Equal(t, "r", report.SessionID)
	assert.True(t, report.ScamDetected)
	assert.Equal(t, 2, report.TotalMessagesExchanged)
	assert.Equal(t, models.ScamUPIFraud, report.ScamType)
	assert.Equal(t, []string{"cash@paytm"}, report.ExtractedIntelligence[models.EvidenceUPIIDs])
}

func TestHandleMessageReportsFalseWhenQueueRejects(t *testing.T) {
	f := newEngagementFixture(AlwaysReport{})
	f.submitter.accept = false

	res := f.svc.HandleMessage(context.Background(), InboundMessage{SessionID: "q", Sender: "scammer", Text: "verify now or account blocked"})

	assert.False(t, res.Reported)
	assert.Len(t, f.submitter.reports, 1)
}

func TestHandleMessageFallsBackOnGeneratorError(t *testing.T) {
	f := newEngagementFixture(ThresholdReport{MinMessages: 5, MaxMessages: 10})
	f.replies.err = errors.New("quota exceeded")

	res := f.svc.HandleMessage(context.Background(), InboundMessage{SessionID: "g", Sender: "scammer", Text: "share OTP urgently"})

	assert.Equal(t, ai.ClarificationReply, res.Reply)
	assert.Equal(t, 2, f.svc.Aggregator().MessageCount("g"))
}

func TestHandleMessageRecoversFromPanic(t *testing.T) {
	f := newEngagementFixture(AlwaysReport{})
	f.replies.panic = true

	var res *EngagementResult
	require.NotPanics(t, func() {
		res = f.svc.HandleMessage(context.Background(), InboundMessage{SessionID: "p", Sender: "scammer", Text: "click here to claim your prize"})
	})
	assert.Equal(t, RecoveryReply, res.Reply)
	assert.Equal(t, "p", res.SessionID)
	assert.Empty(t, f.submitter.reports)
}

func TestHandleMessageIgnoresPublisherErrors(t *testing.T) {
	f := newEngagementFixture(ThresholdReport{MinMessages: 5, MaxMessages: 10})
	f.events.err = errors.New("bus down")

	res := f.svc.HandleMessage(context.Background(), InboundMessage{SessionID: "b", Sender: "scammer", Text: "account blocked"})

	assert.True(t, res.Engaged)
	assert.NotEmpty(t, f.events.types())
}

func TestHandleMessageDefaultSession(t *testing.T) {
	f := newEngagementFixture(AlwaysReport{})

	res := f.svc.HandleMessage(context.Background(), InboundMessage{Sender: "scammer", Text: "Hi"})

	assert.Equal(t, models.DefaultSessionID, res.SessionID)
	assert.Equal(t, 1, f.svc.Aggregator().MessageCount(models.DefaultSessionID))
}
