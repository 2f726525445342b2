package services

import (
	"fmt"
	"strings"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

// EvidenceExtractor pulls structured intelligence out of free text
type EvidenceExtractor struct {
	patterns *PatternLibrary
	logger   *logger.Logger
}

// NewEvidenceExtractor creates a new EvidenceExtractor
func NewEvidenceExtractor(patterns *PatternLibrary, log *logger.Logger) *EvidenceExtractor {
	return &EvidenceExtractor{
		patterns: patterns,
		logger:   log.WithComponent("evidence-extractor"),
	}
}

// Extract returns the evidence found in text. Every category is present in
// the result. Structural matches are case-sensitive and kept verbatim,
// keyword hits are matched case-insensitively and reported in lower case.
// Extract never panics; on internal failure it logs and returns an empty bundle.
func (e *EvidenceExtractor) Extract(text string) (ev models.Evidence) {
	ev = models.NewEvidence()
	if strings.TrimSpace(text) == "" {
		return ev
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Err(fmt.Errorf("%v", r)).Msg("evidence extraction failed")
			ev = models.NewEvidence()
		}
	}()

	found := models.Evidence{}
	for _, p := range e.patterns.structural() {
		if matches := p.re.FindAllString(text, -1); len(matches) > 0 {
			found[p.category] = matches
		}
	}

	lower := strings.ToLower(text)
	for _, kw := range e.patterns.suspiciousKeywords {
		if strings.Contains(lower, kw) {
			found[models.EvidenceSuspiciousKeywords] = append(found[models.EvidenceSuspiciousKeywords], kw)
		}
	}

	// merging dedupes within the message as well
	return models.MergeEvidence(ev, found)
}

// Merge is the per-category set union of two bundles
func (e *EvidenceExtractor) Merge(existing, incoming models.Evidence) models.Evidence {
	return models.MergeEvidence(existing, incoming)
}
