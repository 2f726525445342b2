package services

import (
	"context"
	"fmt"
	"strings"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/ai"
	"honeypot-lab/internal/metrics"
	"honeypot-lab/pkg/logger"
)

// Replies used outside the generated conversation
const (
	NeutralReply  = "Hello! How can I help you?"
	RecoveryReply = "I am having trouble understanding. Can you please explain again?"
)

// ReportSubmitter hands a report off for asynchronous delivery
type ReportSubmitter interface {
	Submit(report *models.Report) bool
}

// EventPublisher receives engagement events
type EventPublisher interface {
	PublishEngagement(ctx context.Context, event *models.EngagementEvent) error
}

// InboundMessage is one turn received from the counterparty channel
type InboundMessage struct {
	SessionID string
	Sender    string
	Text      string
	// PriorTurns is the length of the conversation history the caller sent along
	PriorTurns int
}

// EngagementResult is what the honeypot answers and what happened along the way
type EngagementResult struct {
	SessionID    string                `json:"sessionId"`
	Reply        string                `json:"reply"`
	ScamDetected bool                  `json:"scamDetected"`
	Engaged      bool                  `json:"engaged"`
	Reported     bool                  `json:"reported"`
	Outcome      models.MessageOutcome `json:"outcome"`
}

// EngagementService runs one conversational turn: aggregate, detect, reply,
// and decide whether to report.
type EngagementService struct {
	aggregator *SessionAggregator
	detector   *ScamDetector
	policy     ReportPolicy
	replies    ai.ReplyGenerator
	submitter  ReportSubmitter
	events     EventPublisher
	logger     *logger.Logger
}

// EngagementDeps wires an EngagementService. Events may be nil.
type EngagementDeps struct {
	Aggregator *SessionAggregator
	Detector   *ScamDetector
	Policy     ReportPolicy
	Replies    ai.ReplyGenerator
	Submitter  ReportSubmitter
	Events     EventPublisher
}

// NewEngagementService creates a new EngagementService
func NewEngagementService(deps EngagementDeps, log *logger.Logger) *EngagementService {
	return &EngagementService{
		aggregator: deps.Aggregator,
		detector:   deps.Detector,
		policy:     deps.Policy,
		replies:    deps.Replies,
		submitter:  deps.Submitter,
		events:     deps.Events,
		logger:     log.WithComponent("engagement"),
	}
}

// Aggregator exposes the session aggregator for read-only API use
func (s *EngagementService) Aggregator() *SessionAggregator {
	return s.aggregator
}

// HandleMessage processes one inbound turn and returns the honeypot's reply.
// It never fails: a panic anywhere in the flow is answered with a recovery reply.
func (s *EngagementService) HandleMessage(ctx context.Context, in InboundMessage) (result *EngagementResult) {
	id := NormalizeSessionID(in.SessionID)
	log := s.logger.WithSessionID(id)
	result = &EngagementResult{SessionID: id}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Err(fmt.Errorf("%v", r)).Msg("engagement flow panicked")
			result = &EngagementResult{SessionID: id, Reply: RecoveryReply}
		}
	}()

	outcome := s.aggregator.AddMessage(id, in.Sender, in.Text)
	result.Outcome = outcome
	s.recordOutcome(ctx, in.Sender, outcome)

	scam := s.detector.LooksLikeScam(in.Text)
	alreadyConfirmed := s.aggregator.IsScamConfirmed(id)
	if scam && !alreadyConfirmed {
		if s.aggregator.MarkScamConfirmed(id) {
			metrics.ScamsConfirmedTotal.Inc()
			s.publish(ctx, models.EventScamConfirmed, id, map[string]any{
				"matched_terms": s.detector.Matches(in.Text),
			})
			log.Info().Msg("scam confirmed")
		}
	}
	result.ScamDetected = scam || alreadyConfirmed

	if !scam && !alreadyConfirmed && in.PriorTurns <= 0 {
		result.Reply = NeutralReply
		return result
	}

	result.Engaged = true
	reply, err := s.replies.GenerateReply(ctx, id, s.aggregator.Transcript(id))
	if err != nil || strings.TrimSpace(reply) == "" {
		log.Warn().Err(err).Msg("reply generation failed")
		reply = ai.ClarificationReply
	}
	result.Reply = reply

	s.recordOutcome(ctx, models.SenderUser, s.aggregator.AddMessage(id, models.SenderUser, reply))

	snap, ok := s.aggregator.Snapshot(id)
	if !ok {
		// evicted between turns; nothing left to report
		return result
	}
	if s.policy.ShouldReport(snap.MessageCount(), snap.Evidence) {
		report := BuildReport(snap)
		result.Reported = s.submitter.Submit(report)
		log.Info().
			Int("messages", report.TotalMessagesExchanged).
			Str("scam_type", string(report.ScamType)).
			Float64("confidence", report.ConfidenceLevel).
			Bool("queued", result.Reported).
			Msg("report submitted")
	}

	return result
}

// recordOutcome turns an aggregation outcome into metrics and events
func (s *EngagementService) recordOutcome(ctx context.Context, sender string, outcome models.MessageOutcome) {
	if !outcome.Appended {
		return
	}

	role := models.SenderUser
	if IsCounterparty(sender) {
		role = models.SenderScammer
	}
	metrics.MessagesTotal.WithLabelValues(role).Inc()
	metrics.ActiveSessions.Set(float64(s.aggregator.Store().Len()))

	for cat, items := range outcome.NewEvidenceItems {
		if len(items) > 0 {
			metrics.EvidenceItemsTotal.WithLabelValues(string(cat)).Add(float64(len(items)))
		}
	}

	if outcome.Created {
		s.publish(ctx, models.EventSessionStarted, outcome.SessionID, nil)
	}
	if outcome.ClassifiedAs != "" {
		metrics.ScamsClassifiedTotal.WithLabelValues(string(outcome.ClassifiedAs)).Inc()
		s.publish(ctx, models.EventScamClassified, outcome.SessionID, map[string]any{
			"scam_type": outcome.ClassifiedAs,
		})
	}
	if len(outcome.NewRedFlags) > 0 {
		s.publish(ctx, models.EventRedFlagRaised, outcome.SessionID, map[string]any{
			"red_flags": outcome.NewRedFlags,
		})
	}
}

func (s *EngagementService) publish(ctx context.Context, eventType models.EngagementEventType, sessionID string, data map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEngagement(ctx, models.NewEngagementEvent(eventType, sessionID, data)); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("failed to publish engagement event")
	}
}
