package services

import (
	"honeypot-lab/internal/domain/models"
)

// BuildReport assembles the evaluator payload from a session snapshot
func BuildReport(snap *models.SessionSnapshot) *models.Report {
	turns := snap.MessageCount()
	items := snap.Evidence.Count()
	flags := snap.RedFlagStrings()
	category := categoryOrGeneric(snap.ScamCategory)

	return &models.Report{
		SessionID:                 snap.SessionID,
		ScamDetected:              true,
		ExtractedIntelligence:     snap.Evidence.Clone(),
		TotalMessagesExchanged:    turns,
		EngagementDurationSeconds: snap.ElapsedSeconds,
		AgentNotes:                models.AgentNotes(category, flags, items, turns),
		ScamType:                  category,
		ConfidenceLevel:           models.CalculateConfidence(turns, items, len(flags)),
	}
}
