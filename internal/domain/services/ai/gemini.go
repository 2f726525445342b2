package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"honeypot-lab/pkg/logger"
)

const personaPrompt = `You are role-playing the recipient of a message that is probably a scam.
Never reveal that you suspect a scam and never share real personal or financial details.

Persona: a 55-year-old retired school teacher in India. Worried, polite, not comfortable with technology,
protective of the family's savings.

In every reply:
- keep it to one or two short sentences in plain language
- sound anxious or confused, the way a real person would
- point out one warning sign you notice, such as urgency, a request for an OTP or PIN, an unfamiliar link,
  a threat to block the account, or a request to pay through UPI
- end with a question that asks for identifying details: their name, employee ID, department,
  direct phone number, official email, office address or a case reference number`

// ContentGenerator is the slice of the Gemini models API the responder needs
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig holds Gemini responder configuration
type GeminiConfig struct {
	APIKeys []string
	Model   string
	Timeout time.Duration
}

// GeminiResponder asks Gemini for a victim-persona reply, rotating through
// the configured API keys until one answers.
type GeminiResponder struct {
	clients []ContentGenerator
	model   string
	timeout time.Duration
	logger  *logger.Logger
}

// NewGeminiResponder creates one client per non-empty API key
func NewGeminiResponder(ctx context.Context, cfg GeminiConfig, log *logger.Logger) (*GeminiResponder, error) {
	var clients []ContentGenerator
	for i, key := range cfg.APIKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client for key %d: %w", i+1, err)
		}
		clients = append(clients, client.Models)
	}
	if len(clients) == 0 {
		return nil, errors.New("at least one Gemini API key is required")
	}
	return newGeminiResponder(clients, cfg, log), nil
}

func newGeminiResponder(clients []ContentGenerator, cfg GeminiConfig, log *logger.Logger) *GeminiResponder {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &GeminiResponder{
		clients: clients,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  log.WithComponent("gemini-responder"),
	}
}

func (g *GeminiResponder) Name() string { return "gemini" }

// GenerateReply returns the first non-empty answer across keys
func (g *GeminiResponder) GenerateReply(ctx context.Context, sessionID, transcript string) (string, error) {
	prompt := buildPrompt(transcript)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(personaPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.9),
		MaxOutputTokens:   200,
	}

	var errs []error
	for i, client := range g.clients {
		reply, err := g.ask(ctx, client, prompt, config)
		if err == nil && reply != "" {
			g.logger.Debug().Str("session_id", sessionID).Int("key", i+1).Msg("gemini reply generated")
			return reply, nil
		}
		if err == nil {
			err = ErrEmptyReply
		}
		g.logger.Warn().Err(err).Int("key", i+1).Msg("gemini key failed")
		errs = append(errs, fmt.Errorf("key %d: %w", i+1, err))
	}
	return "", errors.Join(errs...)
}

func (g *GeminiResponder) ask(ctx context.Context, client ContentGenerator, prompt string, config *genai.GenerateContentConfig) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := client.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", err
	}
	return cleanReply(resp.Text()), nil
}

func buildPrompt(transcript string) string {
	return "Conversation so far:\n" + transcript +
		"\n\nWrite your next reply as the worried recipient. One or two sentences, mention a warning sign, end with a question."
}

// cleanReply strips quotes and a speaker label the model sometimes adds
func cleanReply(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"user:", "User:", "Reply:", "reply:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	return strings.Trim(s, "\"")
}
