package models

import (
	"fmt"
	"slices"
	"sort"
)

// EvidenceCategory names one kind of extracted intelligence
type EvidenceCategory string

const (
	EvidenceBankAccounts       EvidenceCategory = "bankAccounts"
	EvidenceUPIIDs             EvidenceCategory = "upiIds"
	EvidencePhishingLinks      EvidenceCategory = "phishingLinks"
	EvidencePhoneNumbers       EvidenceCategory = "phoneNumbers"
	EvidenceEmailAddresses     EvidenceCategory = "emailAddresses"
	EvidenceSuspiciousKeywords EvidenceCategory = "suspiciousKeywords"
)

// EvidenceCategories lists the extractor's categories in payload order
var EvidenceCategories = []EvidenceCategory{
	EvidenceBankAccounts,
	EvidenceUPIIDs,
	EvidencePhishingLinks,
	EvidencePhoneNumbers,
	EvidenceEmailAddresses,
	EvidenceSuspiciousKeywords,
}

// HighValueCategories are the categories whose presence justifies an early report
var HighValueCategories = []EvidenceCategory{
	EvidenceBankAccounts,
	EvidenceUPIIDs,
	EvidencePhishingLinks,
	EvidencePhoneNumbers,
}

// Evidence maps each category to a sorted set of distinct values.
// A nil or missing category is treated as empty everywhere.
type Evidence map[EvidenceCategory][]string

// NewEvidence returns a bundle with every known category present and empty
func NewEvidence() Evidence {
	ev := make(Evidence, len(EvidenceCategories))
	for _, c := range EvidenceCategories {
		ev[c] = []string{}
	}
	return ev
}

// MergeEvidence returns the per-category set union of a and b over the union
// of their keys. Neither input is modified.
func MergeEvidence(a, b Evidence) Evidence {
	out := NewEvidence()
	for _, src := range []Evidence{a, b} {
		for cat, values := range src {
			out[cat] = unionSorted(out[cat], values)
		}
	}
	return out
}

// Count returns the total number of items across all categories
func (e Evidence) Count() int {
	n := 0
	for _, values := range e {
		n += len(values)
	}
	return n
}

// HasHighValue reports whether any high-value category is non-empty
func (e Evidence) HasHighValue() bool {
	for _, c := range HighValueCategories {
		if len(e[c]) > 0 {
			return true
		}
	}
	return false
}

// Contains reports whether value was recorded under category
func (e Evidence) Contains(category EvidenceCategory, value string) bool {
	_, found := slices.BinarySearch(e[category], value)
	return found
}

// Clone returns a deep copy with every known category present
func (e Evidence) Clone() Evidence {
	return MergeEvidence(e, nil)
}

// Diff returns the items in e that are not in base, per category
func (e Evidence) Diff(base Evidence) Evidence {
	out := Evidence{}
	for cat, values := range e {
		for _, v := range values {
			if !base.Contains(cat, v) {
				out[cat] = append(out[cat], v)
			}
		}
	}
	return out
}

// EvidenceFromRaw coerces loosely typed JSON (as decoded into map[string]any)
// into an Evidence bundle. Non-list and non-string values are ignored, a bare
// string counts as a single item.
func EvidenceFromRaw(raw map[string]any) Evidence {
	out := NewEvidence()
	for key, value := range raw {
		var items []string
		switch v := value.(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					items = append(items, s)
				}
			}
		case []string:
			for _, s := range v {
				if s != "" {
					items = append(items, s)
				}
			}
		case string:
			if v != "" {
				items = []string{v}
			}
		}
		cat := EvidenceCategory(key)
		out[cat] = unionSorted(out[cat], items)
	}
	return out
}

// String renders a compact per-category count summary
func (e Evidence) String() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	s := ""
	for i, k := range keys {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%d", k, len(e[EvidenceCategory(k)]))
	}
	return s
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
