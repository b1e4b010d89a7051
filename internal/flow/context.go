package flow

import (
	"fmt"
	"strings"

	"github.com/presentagent/present-agent/internal/models"
)

// FormatTranscript renders the most recent window turns as alternating
// "User:"/"Assistant:" lines. Older turns stay in storage but are dropped
// from the prompt to stay within token limits.
func FormatTranscript(turns []models.Turn, window int) string {
	if len(turns) == 0 {
		return noConversationText
	}
	if window > 0 && len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	lines := make([]string, 0, len(turns)*2)
	for _, turn := range turns {
		lines = append(lines, "User: "+turn.UserMessage)
		lines = append(lines, "Assistant: "+turn.BotResponse)
	}
	return strings.Join(lines, "\n")
}

// FormatContextSummary joins the present insight fields in fixed order,
// followed by the transcript when one exists.
func FormatContextSummary(insights models.Insights, transcript string) string {
	var parts []string
	if insights.RecipientType != "" {
		parts = append(parts, "Recipient: "+insights.RecipientType)
	}
	if insights.Occasion != "" {
		parts = append(parts, "Occasion: "+insights.Occasion)
	}
	if len(insights.Interests) > 0 {
		parts = append(parts, "Interests: "+strings.Join(insights.Interests, ", "))
	}
	if insights.EmotionalContext != "" {
		parts = append(parts, "Emotional context: "+insights.EmotionalContext)
	}
	if transcript != "" && transcript != noConversationText {
		parts = append(parts, "Recent conversation:\n"+transcript)
	}
	if len(parts) == 0 {
		return limitedContextText
	}
	return strings.Join(parts, "\n")
}

// FormatBudget renders the budget constraint for prompting. Exactly one
// branch fires, in priority order: explicit range, max only, min only, free
// text hint, no budget at all.
func FormatBudget(budgetMin, budgetMax *int, budgetHints string) string {
	switch {
	case budgetMin != nil && budgetMax != nil:
		return fmt.Sprintf("$%d - $%d", *budgetMin, *budgetMax)
	case budgetMax != nil:
		return fmt.Sprintf("Under $%d", *budgetMax)
	case budgetMin != nil:
		return fmt.Sprintf("At least $%d", *budgetMin)
	case budgetHints != "":
		return "Budget hints: " + budgetHints
	default:
		return noBudgetDefaultText
	}
}
