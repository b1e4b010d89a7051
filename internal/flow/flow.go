// Package flow implements the gift-advisor conversation core: the stage
// machine, insight accumulation, prompt construction, and response formatting
// around the GenAI client.
package flow

import (
	"context"
	"time"
)

// Generator defines the minimal text-generation interface the engine needs.
type Generator interface {
	GenerateWithParams(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int64) (string, error)
}

// Canned replies. These exact strings are part of the user-facing contract
// and are asserted in tests.
const (
	// ReplyGenericApology is the top-level guard when message processing fails.
	ReplyGenericApology = "I'm sorry, I'm having trouble understanding. Could you try rephrasing that? 🤖"
	// ReplyTechnicalDifficulty is returned when persistence fails mid-message.
	ReplyTechnicalDifficulty = "Sorry, I'm having technical difficulties. Please try again in a moment! 🤖"
	// ReplyFallbackQuestion is the extraction fallback follow-up question.
	ReplyFallbackQuestion = "That's helpful! Could you tell me a bit more about them - what do they enjoy doing in their free time?"
	// ReplyGatheringDefault is used when extraction yields no response text.
	ReplyGatheringDefault = "Could you tell me more about what you're looking for?"
	// ReplyRecommendationNudge is returned when the recommendation branch fails outright.
	ReplyRecommendationNudge = "I'm having trouble generating recommendations right now. Could you tell me a bit more about what you're looking for?"
	// ReplyEmptyRecommendations asks for more detail when no records came back.
	ReplyEmptyRecommendations = "I'm having trouble finding good matches. Could you give me a bit more detail about their interests?"
)

// Fixed formatter strings.
const (
	noConversationText  = "No previous conversation"
	limitedContextText  = "Limited context available"
	noBudgetDefaultText = "No specific budget mentioned - suggest range of options"
)

// Config carries the conversation core's tuning knobs. A value is built once
// in main and passed into the engine and handler constructors.
type Config struct {
	// ExtractionTemperature is the sampling temperature for context extraction.
	ExtractionTemperature float64
	// ExtractionMaxTokens caps extraction completion length.
	ExtractionMaxTokens int64
	// RecommendationTemperature is the sampling temperature for recommendations.
	RecommendationTemperature float64
	// RecommendationMaxTokens caps recommendation completion length.
	RecommendationMaxTokens int64
	// TranscriptWindow is how many recent turns enter the prompt.
	TranscriptWindow int
	// MinTurnsForReadiness is the turn floor before recommending.
	MinTurnsForReadiness int
	// DisplayLimit caps how many recommendations one reply renders.
	DisplayLimit int
	// ModelTimeout bounds each model call.
	ModelTimeout time.Duration
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		ExtractionTemperature:     0.7,
		ExtractionMaxTokens:       500,
		RecommendationTemperature: 0.8,
		RecommendationMaxTokens:   1000,
		TranscriptWindow:          5,
		MinTurnsForReadiness:      2,
		DisplayLimit:              3,
		ModelTimeout:              30 * time.Second,
	}
}
