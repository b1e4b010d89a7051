// Package models defines the core data structures for Present Agent.
//
// It includes the user and gift-session records shared across modules, the
// insight schema extracted by the AI layer, and incoming message events.
package models

import (
	"errors"
	"time"
)

// Platform identifies the messaging platform a user talks to us on.
type Platform string

const (
	// PlatformInstagram identifies users messaging via Instagram DMs.
	PlatformInstagram Platform = "instagram"
	// PlatformWhatsApp identifies users messaging via WhatsApp.
	PlatformWhatsApp Platform = "whatsapp"
)

// SessionStatus represents the lifecycle status of a gift session.
type SessionStatus string

const (
	// SessionStatusActive indicates the session is accepting new turns.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusCompleted indicates the session was closed with an outcome.
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusAbandoned indicates the session was closed without an outcome.
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// Validation constants for session outcomes.
const (
	// MinSatisfactionScore is the lowest allowed satisfaction rating.
	MinSatisfactionScore = 1
	// MaxSatisfactionScore is the highest allowed satisfaction rating.
	MaxSatisfactionScore = 5
)

// Error variables for better error handling and testability
var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrEmptyPlatformUserID = errors.New("platform user id cannot be empty")
	ErrEmptyMessage        = errors.New("message cannot be empty")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrInvalidSatisfaction = errors.New("satisfaction score must be between 1 and 5")
	ErrUserNotFound        = errors.New("user not found")
)

// IsValidPlatform checks if the given platform is supported.
func IsValidPlatform(p Platform) bool {
	switch p {
	case PlatformInstagram, PlatformWhatsApp:
		return true
	default:
		return false
	}
}

// IsValidSessionStatus checks if the given session status is known.
func IsValidSessionStatus(s SessionStatus) bool {
	switch s {
	case SessionStatusActive, SessionStatusCompleted, SessionStatusAbandoned:
		return true
	default:
		return false
	}
}

// User represents one person across all messaging platforms they reach us on.
// At most one platform identifier is set per supported platform.
type User struct {
	ID          string            `json:"id"`
	InstagramID string            `json:"instagram_id,omitempty"`
	WhatsAppID  string            `json:"whatsapp_id,omitempty"`
	Name        string            `json:"name,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`

	TotalConversations        int        `json:"total_conversations"`
	SuccessfulRecommendations int        `json:"successful_recommendations"`
	LastActive                *time.Time `json:"last_active,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlatformID returns the identifier for the given platform, or "" if unset.
func (u *User) PlatformID(p Platform) string {
	switch p {
	case PlatformInstagram:
		return u.InstagramID
	case PlatformWhatsApp:
		return u.WhatsAppID
	default:
		return ""
	}
}

// AddConversation increments the conversation counter and refreshes activity.
func (u *User) AddConversation() {
	u.TotalConversations++
	now := time.Now()
	u.LastActive = &now
}

// AddSuccessfulRecommendation increments the successful recommendation counter.
func (u *User) AddSuccessfulRecommendation() {
	u.SuccessfulRecommendations++
}

// Turn is one (user message, bot response) pair recorded in a session.
type Turn struct {
	Timestamp   time.Time `json:"timestamp"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
}

// Insights holds the facts extracted about a gift recipient across a session.
// Known fields are typed; anything else the extractor surfaces lands in Extra.
type Insights struct {
	RecipientType    string            `json:"recipient_type,omitempty"`
	Occasion         string            `json:"occasion,omitempty"`
	Interests        []string          `json:"interests,omitempty"`
	BudgetHints      string            `json:"budget_hints,omitempty"`
	EmotionalContext string            `json:"emotional_context,omitempty"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// Merge overwrites fields of i with any field present in update.
// Last write wins for every field, including Interests: a later turn that
// mentions a single interest replaces the full list rather than appending.
func (i *Insights) Merge(update Insights) {
	if update.RecipientType != "" {
		i.RecipientType = update.RecipientType
	}
	if update.Occasion != "" {
		i.Occasion = update.Occasion
	}
	if update.Interests != nil {
		i.Interests = update.Interests
	}
	if update.BudgetHints != "" {
		i.BudgetHints = update.BudgetHints
	}
	if update.EmotionalContext != "" {
		i.EmotionalContext = update.EmotionalContext
	}
	if len(update.Extra) > 0 {
		if i.Extra == nil {
			i.Extra = make(map[string]string, len(update.Extra))
		}
		for k, v := range update.Extra {
			i.Extra[k] = v
		}
	}
}

// IsEmpty reports whether no insight field carries a value.
func (i *Insights) IsEmpty() bool {
	return i.RecipientType == "" && i.Occasion == "" && len(i.Interests) == 0 &&
		i.BudgetHints == "" && i.EmotionalContext == "" && len(i.Extra) == 0
}

// Recommendation is one gift suggestion shown to a user. Records are
// immutable once stored and only ever appended to a session's history.
type Recommendation struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Reasoning      string `json:"reasoning,omitempty"`
	EstimatedPrice *int   `json:"estimated_price,omitempty"`
	WhereToFind    string `json:"where_to_find,omitempty"`
}

// GiftSession tracks one gift-seeking conversation thread for a user.
// At most one session per user has status "active" at any time.
type GiftSession struct {
	ID       string        `json:"id"`
	UserID   string        `json:"user_id"`
	Status   SessionStatus `json:"status"`
	Platform Platform      `json:"platform"`

	RecipientName    string `json:"recipient_name,omitempty"`
	RelationshipType string `json:"relationship_type,omitempty"`
	Occasion         string `json:"occasion,omitempty"`
	BudgetMin        *int   `json:"budget_min,omitempty"`
	BudgetMax        *int   `json:"budget_max,omitempty"`
	PrimaryEmotion   string `json:"primary_emotion,omitempty"`

	Turns           []Turn            `json:"turns,omitempty"`
	Insights        Insights          `json:"insights"`
	Constraints     map[string]string `json:"constraints,omitempty"`
	Recommendations []Recommendation  `json:"recommendations,omitempty"`

	FinalChoice       string `json:"final_choice,omitempty"`
	SatisfactionScore *int   `json:"satisfaction_score,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TurnCount returns the number of recorded turns.
func (s *GiftSession) TurnCount() int {
	return len(s.Turns)
}

// AddTurn appends a conversation turn to the session.
func (s *GiftSession) AddTurn(userMessage, botResponse string) {
	s.Turns = append(s.Turns, Turn{
		Timestamp:   time.Now(),
		UserMessage: userMessage,
		BotResponse: botResponse,
	})
}

// AddRecommendations appends recommendation records to the session history.
func (s *GiftSession) AddRecommendations(recs []Recommendation) {
	s.Recommendations = append(s.Recommendations, recs...)
}

// Complete marks the session as completed with an optional outcome.
// Completed is terminal; completing a non-active session is an error.
func (s *GiftSession) Complete(finalChoice string, satisfaction *int) error {
	if s.Status != SessionStatusActive {
		return ErrSessionNotActive
	}
	if satisfaction != nil && (*satisfaction < MinSatisfactionScore || *satisfaction > MaxSatisfactionScore) {
		return ErrInvalidSatisfaction
	}
	s.Status = SessionStatusCompleted
	now := time.Now()
	s.CompletedAt = &now
	if finalChoice != "" {
		s.FinalChoice = finalChoice
	}
	if satisfaction != nil {
		s.SatisfactionScore = satisfaction
	}
	return nil
}

// Abandon marks the session as abandoned. Abandoned is terminal.
func (s *GiftSession) Abandon() error {
	if s.Status != SessionStatusActive {
		return ErrSessionNotActive
	}
	s.Status = SessionStatusAbandoned
	now := time.Now()
	s.CompletedAt = &now
	return nil
}

// Response represents an incoming message event from a messaging transport.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// API Response types for consistent JSON responses

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates a successful API operation.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates a failed API operation.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
