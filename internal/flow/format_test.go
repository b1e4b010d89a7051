package flow

import (
	"fmt"
	"strings"
	"testing"

	"github.com/presentagent/present-agent/internal/models"
)

func TestFormatRecommendationsEmpty(t *testing.T) {
	got := FormatRecommendations(nil, 3)
	if got != ReplyEmptyRecommendations {
		t.Errorf("expected clarifying fallback, got %q", got)
	}
}

func TestFormatRecommendationsCapsAtLimit(t *testing.T) {
	var recs []models.Recommendation
	for i := 1; i <= 5; i++ {
		recs = append(recs, models.Recommendation{
			Name:        fmt.Sprintf("Gift %d", i),
			Description: fmt.Sprintf("Description %d", i),
		})
	}
	got := FormatRecommendations(recs, 3)
	for i := 1; i <= 3; i++ {
		if !strings.Contains(got, fmt.Sprintf("%d. **Gift %d**", i, i)) {
			t.Errorf("expected numbered entry for gift %d", i)
		}
	}
	if strings.Contains(got, "Gift 4") || strings.Contains(got, "Gift 5") {
		t.Errorf("more than 3 recommendations rendered: %q", got)
	}
	if !strings.Contains(got, "Which of these resonates with you?") {
		t.Error("expected closing prompt")
	}
}

func TestFormatRecommendationsOptionalLines(t *testing.T) {
	price := 42
	recs := []models.Recommendation{
		{Name: "Tea sampler", Description: "A set of loose-leaf teas", Reasoning: "She loves tea", EstimatedPrice: &price},
		{Name: "Notebook", Description: "A plain notebook"},
	}
	got := FormatRecommendations(recs, 3)
	if !strings.Contains(got, "💡 Why this works: She loves tea") {
		t.Error("expected reasoning line for first recommendation")
	}
	if !strings.Contains(got, "💰 Around $42") {
		t.Error("expected price line for first recommendation")
	}
	// Second record has neither reasoning nor price.
	if strings.Count(got, "💡") != 1 || strings.Count(got, "💰") != 1 {
		t.Errorf("optional lines rendered for records without them: %q", got)
	}
}

func TestFormatRecommendationsBlankName(t *testing.T) {
	got := FormatRecommendations([]models.Recommendation{{Description: "mystery"}}, 3)
	if !strings.Contains(got, "**Gift idea**") {
		t.Errorf("expected placeholder name, got %q", got)
	}
}
