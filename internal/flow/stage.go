package flow

import "github.com/presentagent/present-agent/internal/models"

// Stage classifies what the handler should do with the next message. It is
// never persisted: it is recomputed from the session snapshot on every
// message, so the classification stays idempotent.
type Stage string

const (
	// StageGreeting is the first message of a session.
	StageGreeting Stage = "greeting"
	// StageGathering collects recipient and occasion context.
	StageGathering Stage = "gathering"
	// StageRecommending produces gift recommendations.
	StageRecommending Stage = "recommending"
)

// ComputeStage is a pure function of the session snapshot.
func ComputeStage(session *models.GiftSession, minTurns int) Stage {
	if session.TurnCount() == 0 {
		return StageGreeting
	}
	if HasEnoughContext(session, minTurns) {
		return StageRecommending
	}
	return StageGathering
}

// HasEnoughContext reports whether the session carries enough context to
// recommend: a known recipient, a known occasion, and at least minTurns
// prior turns. Budget is never required; its absence is handled downstream
// as "suggest a range".
func HasEnoughContext(session *models.GiftSession, minTurns int) bool {
	hasRecipient := session.Insights.RecipientType != "" ||
		session.RecipientName != "" || session.RelationshipType != ""
	hasOccasion := session.Insights.Occasion != "" || session.Occasion != ""
	return hasRecipient && hasOccasion && session.TurnCount() >= minTurns
}
