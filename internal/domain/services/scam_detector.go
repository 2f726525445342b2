package services

import (
	"strings"
)

// ScamDetector is the cheap keyword gate that decides whether a message
// looks like an attempt at fraud. It holds no state.
type ScamDetector struct {
	keywords []string
}

// NewScamDetector creates a detector over the library's scam vocabulary
func NewScamDetector(patterns *PatternLibrary) *ScamDetector {
	return &ScamDetector{keywords: patterns.scamKeywords}
}

// LooksLikeScam reports whether any fraud-indicative term occurs in text
func (d *ScamDetector) LooksLikeScam(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	return containsAny(lower, d.keywords)
}

// Matches returns every vocabulary term found in text, in vocabulary order
func (d *ScamDetector) Matches(text string) []string {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return nil
	}
	var hits []string
	for _, kw := range d.keywords {
		if strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}
