package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/domain/models"
)

func TestThresholdReport(t *testing.T) {
	policy := ThresholdReport{MinMessages: 5, MaxMessages: 10}

	withUPI := models.NewEvidence()
	withUPI[models.EvidenceUPIIDs] = []string{"fraud@upi"}

	keywordsOnly := models.NewEvidence()
	keywordsOnly[models.EvidenceSuspiciousKeywords] = []string{"urgent", "verify"}
	keywordsOnly[models.EvidenceEmailAddresses] = []string{"a@b.com"}

	tests := []struct {
		name     string
		messages int
		evidence models.Evidence
		want     bool
	}{
		{"too early even with evidence", 3, withUPI, false},
		{"just below minimum", 4, withUPI, false},
		{"minimum with high value", 5, withUPI, true},
		{"past minimum with upi", 6, withUPI, true},
		{"low value only", 6, keywordsOnly, false},
		{"nothing yet", 9, models.NewEvidence(), false},
		{"maximum reached", 10, models.NewEvidence(), true},
		{"nil evidence at maximum", 12, nil, true},
		{"nil evidence below maximum", 7, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.ShouldReport(tt.messages, tt.evidence))
		})
	}
}

func TestAlwaysReport(t *testing.T) {
	var policy ReportPolicy = AlwaysReport{}
	assert.True(t, policy.ShouldReport(0, nil))
	assert.True(t, policy.ShouldReport(1, models.NewEvidence()))
	assert.Equal(t, ReportPolicyAlways, policy.Name())
}

func TestNewReportPolicy(t *testing.T) {
	p, err := NewReportPolicy("", 5, 10)
	require.NoError(t, err)
	assert.Equal(t, ThresholdReport{MinMessages: 5, MaxMessages: 10}, p)

	p, err = NewReportPolicy(ReportPolicyThreshold, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, ReportPolicyThreshold, p.Name())

	p, err = NewReportPolicy(ReportPolicyAlways, 0, 0)
	require.NoError(t, err)
	assert.IsType(t, AlwaysReport{}, p)

	_, err = NewReportPolicy("sometimes", 5, 10)
	assert.ErrorContains(t, err, "unknown report policy")
}
