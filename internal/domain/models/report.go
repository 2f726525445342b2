package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Report is the payload submitted to the external evaluator
type Report struct {
	SessionID                 string       `json:"sessionId"`
	ScamDetected              bool         `json:"scamDetected"`
	ExtractedIntelligence     Evidence     `json:"extractedIntelligence"`
	TotalMessagesExchanged    int          `json:"totalMessagesExchanged"`
	EngagementDurationSeconds int          `json:"engagementDurationSeconds"`
	AgentNotes                string       `json:"agentNotes"`
	ScamType                  ScamCategory `json:"scamType"`
	ConfidenceLevel           float64      `json:"confidenceLevel"`
}

// CalculateConfidence scores a report from conversation depth, evidence volume
// and red flag count. The result is rounded to two decimals, within [0.5, 0.99].
func CalculateConfidence(turns, items, flags int) float64 {
	turnBonus := math.Min(0.20, float64(turns)*0.025)
	intelBonus := math.Min(0.15, float64(items)*0.03)
	flagBonus := math.Min(0.14, float64(flags)*0.02)

	// format then parse rounds the exact binary value, halves to even
	score, _ := strconv.ParseFloat(strconv.FormatFloat(0.5+turnBonus+intelBonus+flagBonus, 'f', 2, 64), 64)
	return math.Min(0.99, score)
}

// AgentNotes renders the human-readable summary sent with a report
func AgentNotes(scamType ScamCategory, redFlags []string, items, turns int) string {
	flags := "suspicious behavior patterns"
	if len(redFlags) > 0 {
		flags = strings.Join(redFlags, ", ")
	}
	return fmt.Sprintf(
		"Scam type: %s. Red flags identified: %s. Successfully extracted %d intelligence items over %d conversation turns.",
		scamType, flags, items, turns,
	)
}

// DeliveryStatus is the outcome of sending a report to the evaluator
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliverySkipped   DeliveryStatus = "skipped"
)

// ReportRecord is an emitted report plus its delivery outcome, as archived
type ReportRecord struct {
	ID          uuid.UUID      `json:"id"`
	Report      Report         `json:"report"`
	Status      DeliveryStatus `json:"status"`
	Attempts    int            `json:"attempts"`
	StatusCode  int            `json:"statusCode,omitempty"`
	LastError   string         `json:"lastError,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	DeliveredAt *time.Time     `json:"deliveredAt,omitempty"`
}
