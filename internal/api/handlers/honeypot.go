package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"honeypot-lab/internal/domain/services"
	"honeypot-lab/pkg/logger"
)

const maxBodyBytes = 1 << 20

// HoneypotHandler serves the conversational endpoint the scam channel talks to
type HoneypotHandler struct {
	engagement       *services.EngagementService
	validate         *validator.Validate
	maxMessageLength int
	logger           *logger.Logger
}

// NewHoneypotHandler creates a new HoneypotHandler
func NewHoneypotHandler(engagement *services.EngagementService, maxMessageLength int, log *logger.Logger) *HoneypotHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return &HoneypotHandler{
		engagement:       engagement,
		validate:         v,
		maxMessageLength: maxMessageLength,
		logger:           log.WithComponent("honeypot-handler"),
	}
}

// ConversationMessage is one turn as the channel sends it
type ConversationMessage struct {
	Sender string `json:"sender" validate:"required"`
	Text   string `json:"text" validate:"required"`
	// Timestamp arrives as epoch millis, epoch seconds or an ISO string
	Timestamp any `json:"timestamp,omitempty"`
}

// ConversationMetadata describes the channel; it is accepted and logged only
type ConversationMetadata struct {
	Channel  string `json:"channel,omitempty"`
	Language string `json:"language,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

// HoneypotRequest is the body of POST /honeypot
type HoneypotRequest struct {
	SessionID           string                `json:"sessionId" validate:"required"`
	Message             *ConversationMessage  `json:"message" validate:"required"`
	ConversationHistory []ConversationMessage `json:"conversationHistory" validate:"dive"`
	Metadata            *ConversationMetadata `json:"metadata,omitempty"`
}

// HoneypotResponse is the body of every accepted request
type HoneypotResponse struct {
	Status string `json:"status"`
	Reply  string `json:"reply"`
}

// Engage handles POST /honeypot
func (h *HoneypotHandler) Engage(w http.ResponseWriter, r *http.Request) {
	var req HoneypotRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.logger.Debug().Err(err).Msg("invalid request body")
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	req.normalize()
	if details := h.check(&req); len(details) > 0 {
		h.logger.Debug().Int("violations", len(details)).Msg("request failed validation")
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "validation failed", Details: details})
		return
	}

	channel := ""
	if req.Metadata != nil {
		channel = req.Metadata.Channel
	}

	result := h.engagement.HandleMessage(r.Context(), services.InboundMessage{
		SessionID:  req.SessionID,
		Sender:     req.Message.Sender,
		Text:       req.Message.Text,
		PriorTurns: len(req.ConversationHistory),
	})

	h.logger.Info().
		Str("session_id", result.SessionID).
		Str("channel", channel).
		Bool("scam_detected", result.ScamDetected).
		Bool("engaged", result.Engaged).
		Bool("reported", result.Reported).
		Msg("honeypot turn handled")

	writeJSON(w, http.StatusOK, HoneypotResponse{Status: "success", Reply: result.Reply})
}

// normalize trims identifiers and text and lower-cases senders
func (req *HoneypotRequest) normalize() {
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.Message != nil {
		req.Message.normalize()
	}
	for i := range req.ConversationHistory {
		req.ConversationHistory[i].normalize()
	}
}

func (m *ConversationMessage) normalize() {
	m.Sender = strings.ToLower(strings.TrimSpace(m.Sender))
	m.Text = strings.TrimSpace(m.Text)
}

func (h *HoneypotHandler) check(req *HoneypotRequest) []FieldError {
	var details []FieldError

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []FieldError{{Field: "body", Message: err.Error()}}
		}
		for _, fe := range verrs {
			details = append(details, FieldError{
				Field:   fieldPath(fe.Namespace()),
				Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
			})
		}
	}

	tooLong := func(field, text string) {
		if utf8.RuneCountInString(text) > h.maxMessageLength {
			details = append(details, FieldError{
				Field:   field,
				Message: fmt.Sprintf("exceeds %d character limit", h.maxMessageLength),
			})
		}
	}
	if req.Message != nil {
		tooLong("message.text", req.Message.Text)
	}
	for i, m := range req.ConversationHistory {
		tooLong(fmt.Sprintf("conversationHistory[%d].text", i), m.Text)
	}

	return details
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
