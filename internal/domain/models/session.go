package models

import (
	"strings"
	"time"
)

// DefaultSessionID is used when a caller supplies an empty session ID
const DefaultSessionID = "default"

// Sender roles seen in a conversation
const (
	SenderScammer = "scammer"
	SenderUser    = "user"
)

// ScamCategory classifies a conversation by fraud type
type ScamCategory string

const (
	ScamBankFraud      ScamCategory = "bank_fraud"
	ScamUPIFraud       ScamCategory = "upi_fraud"
	ScamPhishing       ScamCategory = "phishing"
	ScamLottery        ScamCategory = "lottery_scam"
	ScamKYCFraud       ScamCategory = "kyc_fraud"
	ScamRefundFraud    ScamCategory = "refund_fraud"
	ScamInsuranceFraud ScamCategory = "insurance_fraud"
	// ScamGeneric is reported while no specific category has matched
	ScamGeneric ScamCategory = "generic_scam"
)

// RedFlag names a manipulation tactic observed in counterparty messages
type RedFlag string

const (
	RedFlagUrgency            RedFlag = "urgency_tactics"
	RedFlagCredentialRequest  RedFlag = "credential_request"
	RedFlagAccountThreats     RedFlag = "account_threats"
	RedFlagSuspiciousLinks    RedFlag = "suspicious_links"
	RedFlagPaymentRedirection RedFlag = "payment_redirection"
	RedFlagRewardLure         RedFlag = "reward_lure"
	RedFlagFakeVerification   RedFlag = "fake_verification"
)

// Message is one turn of a conversation
type Message struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// Line renders the message the way transcripts store it
func (m Message) Line() string {
	return m.Sender + ": " + m.Text
}

// SessionSnapshot is a consistent, read-only copy of one session
type SessionSnapshot struct {
	SessionID      string       `json:"sessionId"`
	Messages       []Message    `json:"messages"`
	Evidence       Evidence     `json:"evidence"`
	ScamConfirmed  bool         `json:"scamConfirmed"`
	ScamCategory   ScamCategory `json:"scamCategory"`
	RedFlags       []RedFlag    `json:"redFlags"`
	CreatedAt      time.Time    `json:"createdAt"`
	LastActivityAt time.Time    `json:"lastActivityAt"`
	ElapsedSeconds int          `json:"elapsedSeconds"`
}

// MessageCount returns the number of turns in the snapshot
func (s *SessionSnapshot) MessageCount() int {
	return len(s.Messages)
}

// Transcript joins the turns as "sender: text" lines
func (s *SessionSnapshot) Transcript() string {
	lines := make([]string, len(s.Messages))
	for i, m := range s.Messages {
		lines[i] = m.Line()
	}
	return strings.Join(lines, "\n")
}

// RedFlagStrings returns the red flags as plain strings, in detection order
func (s *SessionSnapshot) RedFlagStrings() []string {
	out := make([]string, len(s.RedFlags))
	for i, f := range s.RedFlags {
		out[i] = string(f)
	}
	return out
}

// MessageOutcome describes what a single AddMessage call changed
type MessageOutcome struct {
	SessionID string `json:"sessionId"`
	// Appended is false when the message was blank and ignored
	Appended         bool         `json:"appended"`
	Created          bool         `json:"created"`
	NewRedFlags      []RedFlag    `json:"newRedFlags,omitempty"`
	ClassifiedAs     ScamCategory `json:"classifiedAs,omitempty"`
	NewEvidenceItems Evidence     `json:"newEvidenceItems,omitempty"`
	MessageCount     int          `json:"messageCount"`
}
