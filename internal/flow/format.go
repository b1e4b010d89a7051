package flow

import (
	"fmt"
	"strings"

	"github.com/presentagent/present-agent/internal/models"
)

// FormatRecommendations renders at most limit records as a numbered list
// with a closing prompt. An empty list resolves to a clarifying question
// instead, never an empty message.
func FormatRecommendations(recs []models.Recommendation, limit int) string {
	if len(recs) == 0 {
		return ReplyEmptyRecommendations
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}

	var b strings.Builder
	b.WriteString("Here are some thoughtful gift ideas I found for you:\n\n")
	for i, rec := range recs {
		name := rec.Name
		if name == "" {
			name = "Gift idea"
		}
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, name)
		fmt.Fprintf(&b, "   %s\n", rec.Description)
		if rec.Reasoning != "" {
			fmt.Fprintf(&b, "   💡 Why this works: %s\n", rec.Reasoning)
		}
		if rec.EstimatedPrice != nil {
			fmt.Fprintf(&b, "   💰 Around $%d\n", *rec.EstimatedPrice)
		}
		b.WriteString("\n")
	}
	b.WriteString("Which of these resonates with you? Or would you like me to explore different directions? 🎁")
	return b.String()
}
