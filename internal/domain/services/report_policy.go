package services

import (
	"fmt"

	"honeypot-lab/internal/domain/models"
)

// Report policy names accepted by NewReportPolicy
const (
	ReportPolicyAlways    = "always"
	ReportPolicyThreshold = "threshold"
)

// ReportPolicy decides whether the accumulated findings should be sent to the
// evaluator. Implementations are pure.
type ReportPolicy interface {
	ShouldReport(messageCount int, evidence models.Evidence) bool
	Name() string
}

// AlwaysReport reports after every turn
type AlwaysReport struct{}

func (AlwaysReport) ShouldReport(int, models.Evidence) bool { return true }
func (AlwaysReport) Name() string                           { return ReportPolicyAlways }

// ThresholdReport waits for MinMessages turns, then reports as soon as any
// high-value evidence exists, and unconditionally from MaxMessages turns on.
type ThresholdReport struct {
	MinMessages int
	MaxMessages int
}

func (p ThresholdReport) ShouldReport(messageCount int, evidence models.Evidence) bool {
	if messageCount < p.MinMessages {
		return false
	}
	if evidence.HasHighValue() {
		return true
	}
	return messageCount >= p.MaxMessages
}

func (p ThresholdReport) Name() string { return ReportPolicyThreshold }

// NewReportPolicy builds a policy by name
func NewReportPolicy(name string, minMessages, maxMessages int) (ReportPolicy, error) {
	switch name {
	case ReportPolicyAlways:
		return AlwaysReport{}, nil
	case ReportPolicyThreshold, "":
		return ThresholdReport{MinMessages: minMessages, MaxMessages: maxMessages}, nil
	default:
		return nil, fmt.Errorf("unknown report policy %q", name)
	}
}
