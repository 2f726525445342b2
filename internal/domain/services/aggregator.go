package services

import (
	"strings"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

// SessionAggregator folds each conversation turn into its session: history,
// merged evidence, red flags and the first-match scam category.
type SessionAggregator struct {
	store     *SessionStore
	extractor *EvidenceExtractor
	patterns  *PatternLibrary
	logger    *logger.Logger
}

// NewSessionAggregator creates a new SessionAggregator
func NewSessionAggregator(store *SessionStore, extractor *EvidenceExtractor, patterns *PatternLibrary, log *logger.Logger) *SessionAggregator {
	return &SessionAggregator{
		store:     store,
		extractor: extractor,
		patterns:  patterns,
		logger:    log.WithComponent("session-aggregator"),
	}
}

// Store returns the underlying session store
func (a *SessionAggregator) Store() *SessionStore {
	return a.store
}

// IsCounterparty reports whether sender is the suspected fraudster
func IsCounterparty(sender string) bool {
	return strings.EqualFold(strings.TrimSpace(sender), models.SenderScammer)
}

// AddMessage records one turn. Blank text is ignored and does not create the
// session. Counterparty turns also raise red flags and, while the session is
// unclassified, assign the highest-priority matching scam category.
func (a *SessionAggregator) AddMessage(sessionID, sender, text string) models.MessageOutcome {
	id := NormalizeSessionID(sessionID)
	outcome := models.MessageOutcome{SessionID: id}

	if strings.TrimSpace(text) == "" {
		return outcome
	}

	// everything that depends only on the text is computed before locking
	incoming := a.extractor.Extract(text)
	counterparty := IsCounterparty(sender)
	var flagHits []models.RedFlag
	var category models.ScamCategory
	if counterparty {
		lower := strings.ToLower(text)
		flagHits = a.matchRedFlags(lower)
		category = a.classify(text, lower)
	}

	sess, created := a.store.acquire(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	now := a.store.now()
	sess.messages = append(sess.messages, models.Message{Sender: sender, Text: text, At: now})
	sess.lastActivityAt = now

	before := sess.evidence
	sess.evidence = models.MergeEvidence(before, incoming)

	for _, flag := range flagHits {
		if !sess.hasRedFlag(flag) {
			sess.redFlags = append(sess.redFlags, flag)
			outcome.NewRedFlags = append(outcome.NewRedFlags, flag)
		}
	}

	if category != "" && sess.scamCategory == "" {
		sess.scamCategory = category
		outcome.ClassifiedAs = category
	}

	outcome.Appended = true
	outcome.Created = created
	outcome.NewEvidenceItems = sess.evidence.Diff(before)
	outcome.MessageCount = len(sess.messages)

	a.logger.Debug().
		Str("session_id", id).
		Bool("counterparty", counterparty).
		Int("messages", outcome.MessageCount).
		Int("new_evidence", outcome.NewEvidenceItems.Count()).
		Msg("message aggregated")

	return outcome
}

func (a *SessionAggregator) matchRedFlags(lower string) []models.RedFlag {
	var hits []models.RedFlag
	for _, p := range a.patterns.redFlags {
		if containsAny(lower, p.Keywords) {
			hits = append(hits, p.Flag)
		}
	}
	return hits
}

// classify returns the first category in priority order that text triggers
func (a *SessionAggregator) classify(text, lower string) models.ScamCategory {
	for _, p := range a.patterns.categories {
		if containsAny(lower, p.Keywords) {
			return p.Category
		}
		if p.MatchAccountNumber && a.patterns.HasAccountNumber(text) {
			return p.Category
		}
	}
	return ""
}

// MarkScamConfirmed sets the session's scam flag, creating the session if
// needed. It reports whether the flag changed.
func (a *SessionAggregator) MarkScamConfirmed(sessionID string) bool {
	sess, _ := a.store.acquire(NormalizeSessionID(sessionID))
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.scamConfirmed {
		return false
	}
	sess.scamConfirmed = true
	return true
}

// Snapshot returns a consistent copy of the session
func (a *SessionAggregator) Snapshot(sessionID string) (*models.SessionSnapshot, bool) {
	return a.store.Snapshot(sessionID)
}

// view returns a snapshot, or an empty one when the session is unknown
func (a *SessionAggregator) view(sessionID string) *models.SessionSnapshot {
	snap, ok := a.store.Snapshot(sessionID)
	if !ok {
		return &models.SessionSnapshot{
			SessionID:    NormalizeSessionID(sessionID),
			Evidence:     models.NewEvidence(),
			ScamCategory: models.ScamGeneric,
			RedFlags:     []models.RedFlag{},
		}
	}
	return snap
}

// Transcript returns the history as "sender: text" lines
func (a *SessionAggregator) Transcript(sessionID string) string {
	return a.view(sessionID).Transcript()
}

// MessageCount returns the number of recorded turns
func (a *SessionAggregator) MessageCount(sessionID string) int {
	sess, ok := a.store.peek(NormalizeSessionID(sessionID))
	if !ok {
		return 0
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return len(sess.messages)
}

// Evidence returns a copy of the accumulated evidence
func (a *SessionAggregator) Evidence(sessionID string) models.Evidence {
	return a.view(sessionID).Evidence
}

// ElapsedSeconds returns whole seconds since the session was created
func (a *SessionAggregator) ElapsedSeconds(sessionID string) int {
	return a.view(sessionID).ElapsedSeconds
}

// ScamCategory returns the assigned category or generic_scam
func (a *SessionAggregator) ScamCategory(sessionID string) models.ScamCategory {
	return a.view(sessionID).ScamCategory
}

// RedFlags returns the raised flags in detection order
func (a *SessionAggregator) RedFlags(sessionID string) []models.RedFlag {
	return a.view(sessionID).RedFlags
}

// IsScamConfirmed reports whether the session was marked as a scam
func (a *SessionAggregator) IsScamConfirmed(sessionID string) bool {
	sess, ok := a.store.peek(NormalizeSessionID(sessionID))
	if !ok {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.scamConfirmed
}
