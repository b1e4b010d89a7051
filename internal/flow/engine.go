package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/presentagent/present-agent/internal/models"
)

const extractionSystemPrompt = `You are a thoughtful gift advisor AI. Your goal is to understand the gift recipient and occasion through natural conversation.

CONTEXT EXTRACTION: Analyze each message to extract:
- recipient_type: relationship (mom, friend, colleague, etc.)
- recipient_age_range: if mentioned or inferable
- occasion: birthday, anniversary, apology, holiday, etc.
- interests: hobbies, preferences, lifestyle
- personality_traits: outgoing, introverted, practical, creative, etc.
- budget_hints: any price mentions or budget clues
- emotional_context: celebration, apology, gratitude, etc.

RESPONSE STRATEGY: Ask ONE smart follow-up question that:
- Builds on what they just shared
- Gathers the most important missing information
- Feels natural and conversational
- Avoids overwhelming them

TONE: Warm, helpful, and genuinely interested in finding the perfect gift.`

const extractionUserPromptTemplate = `
Current conversation:
%s

Latest message: "%s"

Previous context extracted: %s

Extract new insights and provide a natural follow-up response that gathers one key piece of missing information.

Respond in JSON format:
{
    "extracted_insights": {
        "recipient_type": "string or null",
        "occasion": "string or null",
        "interests": ["list of interests"],
        "budget_hints": "string or null",
        "emotional_context": "string or null"
    },
    "response": "your follow-up question/response"
}`

const recommendationSystemPrompt = `You are an expert gift advisor with deep understanding of human relationships and thoughtful gift-giving.

Your task is to recommend 3-5 specific, thoughtful gifts based on the conversation context.

RECOMMENDATION CRITERIA:
- Thoughtful and personal (not generic)
- Appropriate for the relationship and occasion
- Match the recipient's interests and personality
- Consider the emotional context
- Respect budget constraints
- Explain WHY each gift works

AVOID:
- Generic gifts (gift cards, flowers, chocolate boxes)
- Items requiring extensive knowledge of specific preferences (clothing sizes, exact tech specs)
- Overly expensive items without clear value justification

For each recommendation, provide:
- name: Clear, specific gift name
- description: 1-2 sentence description
- reasoning: Why this gift matches the recipient and occasion
- estimated_price: Reasonable price estimate
- where_to_find: General guidance (online, local stores, specific retailers)`

const recommendationUserPromptTemplate = `
CONTEXT SUMMARY:
%s

BUDGET: %s

USER PREFERENCES: %s

Generate 3-5 thoughtful gift recommendations in JSON format:
{
    "recommendations": [
        {
            "name": "Specific gift name",
            "description": "Brief description",
            "reasoning": "Why this works for this person/occasion",
            "estimated_price": 25,
            "where_to_find": "Where to buy guidance"
        }
    ],
    "explanation": "Brief explanation of your approach"
}`

// extractionResult is the schema the extraction prompt asks the model for.
type extractionResult struct {
	ExtractedInsights models.Insights `json:"extracted_insights"`
	Response          string          `json:"response"`
}

// recommendationResult is the schema the recommendation prompt asks for.
type recommendationResult struct {
	Recommendations []models.Recommendation `json:"recommendations"`
	Explanation     string                  `json:"explanation"`
}

// FallbackRecommendation returns the single hardcoded record substituted
// when recommendation generation fails.
func FallbackRecommendation() models.Recommendation {
	price := 25
	return models.Recommendation{
		Name:           "Personalized photo book",
		Description:    "A custom photo book with shared memories",
		Reasoning:      "Personal and meaningful for any relationship",
		EstimatedPrice: &price,
		WhereToFind:    "Online photo services like Shutterfly",
	}
}

// Engine builds prompts, invokes the model, and validates its structured
// output. Both operations return values on every path: a model failure of
// any kind resolves to a documented fallback, never an error.
type Engine struct {
	gen Generator
	cfg Config
}

// NewEngine creates a recommendation engine with its dependencies.
func NewEngine(gen Generator, cfg Config) *Engine {
	return &Engine{gen: gen, cfg: cfg}
}

// ExtractContext asks the model to pull gift-giving insights out of the
// latest message and come back with one follow-up question. Any failure
// (transport, timeout, malformed output) yields empty insights and the
// fixed fallback question.
func (e *Engine) ExtractContext(ctx context.Context, message string, session *models.GiftSession, preferences map[string]string) (models.Insights, string) {
	transcript := FormatTranscript(session.Turns, e.cfg.TranscriptWindow)
	prior, err := json.Marshal(session.Insights)
	if err != nil {
		prior = []byte("{}")
	}
	userPrompt := fmt.Sprintf(extractionUserPromptTemplate, transcript, message, string(prior))

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ModelTimeout)
	defer cancel()

	raw, err := e.gen.GenerateWithParams(ctx, extractionSystemPrompt, userPrompt, e.cfg.ExtractionTemperature, e.cfg.ExtractionMaxTokens)
	if err != nil {
		slog.Error("Engine.ExtractContext: model call failed", "error", err, "sessionID", session.ID)
		return models.Insights{}, ReplyFallbackQuestion
	}

	var result extractionResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &result); err != nil {
		slog.Error("Engine.ExtractContext: response decode failed", "error", err, "sessionID", session.ID)
		return models.Insights{}, ReplyFallbackQuestion
	}
	slog.Info("Engine.ExtractContext: context extracted", "sessionID", session.ID, "hasRecipient", result.ExtractedInsights.RecipientType != "", "hasOccasion", result.ExtractedInsights.Occasion != "")
	return result.ExtractedInsights, result.Response
}

// GenerateRecommendations asks the model for 3-5 gift records. Any failure
// yields exactly one hardcoded fallback record and an explanation noting
// the processing error.
func (e *Engine) GenerateRecommendations(ctx context.Context, session *models.GiftSession, insights models.Insights, preferences map[string]string, budget string) ([]models.Recommendation, string) {
	transcript := FormatTranscript(session.Turns, e.cfg.TranscriptWindow)
	summary := FormatContextSummary(insights, transcript)
	prefs, err := json.Marshal(preferences)
	if err != nil {
		prefs = []byte("{}")
	}
	userPrompt := fmt.Sprintf(recommendationUserPromptTemplate, summary, budget, string(prefs))

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ModelTimeout)
	defer cancel()

	raw, err := e.gen.GenerateWithParams(ctx, recommendationSystemPrompt, userPrompt, e.cfg.RecommendationTemperature, e.cfg.RecommendationMaxTokens)
	if err != nil {
		slog.Error("Engine.GenerateRecommendations: model call failed", "error", err, "sessionID", session.ID)
		return []models.Recommendation{FallbackRecommendation()}, "Fallback recommendation due to processing error"
	}

	var result recommendationResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &result); err != nil {
		slog.Error("Engine.GenerateRecommendations: response decode failed", "error", err, "sessionID", session.ID)
		return []models.Recommendation{FallbackRecommendation()}, "Fallback recommendation due to processing error"
	}
	slog.Info("Engine.GenerateRecommendations: recommendations generated", "sessionID", session.ID, "count", len(result.Recommendations))
	return result.Recommendations, result.Explanation
}
