// Package ai produces the honeypot's own replies: a Gemini-backed victim
// persona with a rule-based fallback.
package ai

import (
	"context"
	"errors"
	"strings"

	"honeypot-lab/internal/metrics"
	"honeypot-lab/pkg/logger"
)

// Canned replies used when nothing better is available
const (
	GreetingReply      = "Hello? I got your message. What is this about? Can you tell me your name?"
	ClarificationReply = "I am confused. Can you explain again? What is your name and department?"
)

// ErrEmptyReply is returned by generators that produced only whitespace
var ErrEmptyReply = errors.New("empty reply")

// ReplyGenerator turns a conversation transcript into the next reply
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, sessionID, transcript string) (string, error)
	Name() string
}

// FallbackChain asks each generator in turn and returns the first non-empty reply
type FallbackChain struct {
	generators []ReplyGenerator
	logger     *logger.Logger
}

// NewFallbackChain creates a chain over generators, tried in order
func NewFallbackChain(log *logger.Logger, generators ...ReplyGenerator) *FallbackChain {
	return &FallbackChain{
		generators: generators,
		logger:     log.WithComponent("reply-chain"),
	}
}

func (c *FallbackChain) Name() string { return "chain" }

// GenerateReply never fails: an empty transcript gets the greeting and an
// exhausted chain gets the clarification reply.
func (c *FallbackChain) GenerateReply(ctx context.Context, sessionID, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		metrics.ReplyGenerationsTotal.WithLabelValues("greeting").Inc()
		return GreetingReply, nil
	}

	for _, g := range c.generators {
		reply, err := g.GenerateReply(ctx, sessionID, transcript)
		if err == nil {
			reply = strings.TrimSpace(reply)
		}
		if err == nil && reply != "" {
			metrics.ReplyGenerationsTotal.WithLabelValues(g.Name()).Inc()
			return reply, nil
		}
		if err == nil {
			err = ErrEmptyReply
		}
		c.logger.Warn().
			Err(err).
			Str("session_id", sessionID).
			Str("generator", g.Name()).
			Msg("reply generator failed, trying next")
	}

	metrics.ReplyGenerationsTotal.WithLabelValues("clarification").Inc()
	return ClarificationReply, nil
}

// lastLine returns the final line of a transcript
func lastLine(transcript string) string {
	transcript = strings.TrimRight(transcript, "\n")
	if i := strings.LastIndexByte(transcript, '\n'); i >= 0 {
		return transcript[i+1:]
	}
	return transcript
}
