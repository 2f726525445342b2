package services

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

// SessionStoreConfig bounds the store
type SessionStoreConfig struct {
	// MaxSessions caps live sessions; the least recently active is evicted first
	MaxSessions int
	// IdleTTL evicts a session this long after its last mutation. Zero disables it.
	IdleTTL time.Duration
}

// EvictionHook is called with the ID of every session leaving the store.
// Hooks run while the store's cache lock is held and must not call back into the store.
type EvictionHook func(sessionID string)

// session is the mutable per-conversation state. All fields are guarded by mu.
type session struct {
	mu sync.Mutex

	id             string
	messages       []models.Message
	evidence       models.Evidence
	scamConfirmed  bool
	scamCategory   models.ScamCategory
	redFlags       []models.RedFlag
	createdAt      time.Time
	lastActivityAt time.Time
}

func newSession(id string, now time.Time) *session {
	return &session{
		id:             id,
		evidence:       models.NewEvidence(),
		createdAt:      now,
		lastActivityAt: now,
	}
}

func (s *session) hasRedFlag(flag models.RedFlag) bool {
	return slices.Contains(s.redFlags, flag)
}

// snapshot copies the session. Caller must hold s.mu.
func (s *session) snapshot(now time.Time) *models.SessionSnapshot {
	return &models.SessionSnapshot{
		SessionID:      s.id,
		Messages:       slices.Clone(s.messages),
		Evidence:       s.evidence.Clone(),
		ScamConfirmed:  s.scamConfirmed,
		ScamCategory:   categoryOrGeneric(s.scamCategory),
		RedFlags:       append([]models.RedFlag{}, s.redFlags...),
		CreatedAt:      s.createdAt,
		LastActivityAt: s.lastActivityAt,
		ElapsedSeconds: int(now.Sub(s.createdAt).Seconds()),
	}
}

func categoryOrGeneric(c models.ScamCategory) models.ScamCategory {
	if c == "" {
		return models.ScamGeneric
	}
	return c
}

// SessionStore exclusively owns the session map. Its lock covers only
// lookup and creation; each session serialises its own mutations.
type SessionStore struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *session]

	hooksMu sync.RWMutex
	hooks   []EvictionHook

	created atomic.Int64
	evicted atomic.Int64

	now    func() time.Time
	logger *logger.Logger
}

// SessionStoreStats is a point-in-time view of store activity
type SessionStoreStats struct {
	Active  int   `json:"active"`
	Created int64 `json:"created"`
	Evicted int64 `json:"evicted"`
}

// NewSessionStore creates a new SessionStore
func NewSessionStore(cfg SessionStoreConfig, log *logger.Logger) *SessionStore {
	s := &SessionStore{
		now:    time.Now,
		logger: log.WithComponent("session-store"),
	}
	s.sessions = expirable.NewLRU[string, *session](cfg.MaxSessions, s.onEvict, cfg.IdleTTL)
	return s
}

// OnEvict registers a hook for sessions leaving the store
func (s *SessionStore) OnEvict(hook EvictionHook) {
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, hook)
	s.hooksMu.Unlock()
}

func (s *SessionStore) onEvict(id string, _ *session) {
	s.evicted.Add(1)
	s.logger.Debug().Str("session_id", id).Msg("session evicted")

	s.hooksMu.RLock()
	defer s.hooksMu.RUnlock()
	for _, hook := range s.hooks {
		hook(id)
	}
}

// NormalizeSessionID trims the ID and maps an empty one to the default session
func NormalizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.DefaultSessionID
	}
	return id
}

// acquire returns the session for id, creating it if needed, and marks it as
// recently active.
func (s *SessionStore) acquire(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions.Get(id); ok {
		// re-adding refreshes the idle deadline
		s.sessions.Add(id, sess)
		return sess, false
	}

	// drop an expired entry the janitor has not reaped yet so hooks still fire
	s.sessions.Remove(id)

	sess := newSession(id, s.now())
	s.sessions.Add(id, sess)
	s.created.Add(1)
	return sess, true
}

// peek returns the session for id without creating it or touching recency
func (s *SessionStore) peek(id string) (*session, bool) {
	return s.sessions.Peek(id)
}

// Snapshot returns a copy of the session, or false if it does not exist
func (s *SessionStore) Snapshot(id string) (*models.SessionSnapshot, bool) {
	sess, ok := s.peek(NormalizeSessionID(id))
	if !ok {
		return nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshot(s.now()), true
}

// Remove drops a session. Eviction hooks run.
func (s *SessionStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Remove(NormalizeSessionID(id))
}

// SessionIDs lists live sessions from least to most recently active
func (s *SessionStore) SessionIDs() []string {
	return s.sessions.Keys()
}

// Len returns the number of live sessions
func (s *SessionStore) Len() int {
	return s.sessions.Len()
}

// Stats returns store counters
func (s *SessionStore) Stats() SessionStoreStats {
	return SessionStoreStats{
		Active:  s.sessions.Len(),
		Created: s.created.Load(),
		Evicted: s.evicted.Load(),
	}
}
