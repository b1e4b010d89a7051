package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/presentagent/present-agent/internal/models"
	"github.com/presentagent/present-agent/internal/store"
)

// ConversationHandler drives one inbound message through the full pipeline:
// load or create the user and active session, classify the stage, delegate
// to the engine, append the turn, and persist.
type ConversationHandler struct {
	store  store.Store
	engine *Engine
	cfg    Config
}

// NewConversationHandler creates a handler with its dependencies.
func NewConversationHandler(st store.Store, engine *Engine, cfg Config) *ConversationHandler {
	slog.Debug("ConversationHandler.NewConversationHandler: creating handler", "minTurns", cfg.MinTurnsForReadiness, "displayLimit", cfg.DisplayLimit)
	return &ConversationHandler{store: st, engine: engine, cfg: cfg}
}

// ProcessMessage handles one inbound message and always returns a reply
// string, never an error. Failure paths resolve to canned apologies and are
// logged for operators.
func (h *ConversationHandler) ProcessMessage(ctx context.Context, platformUserID, message string, platform models.Platform) (reply string) {
	// Whatever goes wrong below, the caller gets a reply string back.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ConversationHandler.ProcessMessage: recovered", "panic", r, "platform", platform, "platformUserID", platformUserID)
			reply = ReplyGenericApology
		}
	}()

	if !models.IsValidPlatform(platform) {
		slog.Error("ConversationHandler.ProcessMessage: unsupported platform", "error", models.ErrUnsupportedPlatform, "platform", platform, "platformUserID", platformUserID)
		return ReplyGenericApology
	}
	if strings.TrimSpace(platformUserID) == "" {
		slog.Error("ConversationHandler.ProcessMessage: missing platform user id", "error", models.ErrEmptyPlatformUserID, "platform", platform)
		return ReplyGenericApology
	}
	if strings.TrimSpace(message) == "" {
		slog.Warn("ConversationHandler.ProcessMessage: empty message", "error", models.ErrEmptyMessage, "platform", platform, "platformUserID", platformUserID)
		return ReplyGenericApology
	}

	user, err := h.findOrCreateUser(platform, platformUserID)
	if err != nil {
		slog.Error("ConversationHandler.ProcessMessage: user lookup failed", "error", err, "platform", platform, "platformUserID", platformUserID)
		return ReplyTechnicalDifficulty
	}
	session, err := h.findOrCreateSession(user, platform)
	if err != nil {
		slog.Error("ConversationHandler.ProcessMessage: session lookup failed", "error", err, "userID", user.ID)
		return ReplyTechnicalDifficulty
	}

	user.AddConversation()

	reply = h.generateResponse(ctx, user, session, message)

	session.AddTurn(message, reply)
	if err := h.store.SaveConversation(user, session); err != nil {
		slog.Error("ConversationHandler.ProcessMessage: persist failed", "error", err, "userID", user.ID, "sessionID", session.ID)
		return ReplyTechnicalDifficulty
	}

	slog.Info("ConversationHandler.ProcessMessage: message processed", "userID", user.ID, "sessionID", session.ID, "platform", platform, "turns", session.TurnCount())
	return reply
}

func (h *ConversationHandler) findOrCreateUser(platform models.Platform, platformUserID string) (*models.User, error) {
	user, err := h.store.FindUserByPlatformID(platform, platformUserID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user = &models.User{}
	switch platform {
	case models.PlatformInstagram:
		user.InstagramID = platformUserID
	case models.PlatformWhatsApp:
		user.WhatsAppID = platformUserID
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedPlatform, platform)
	}
	if err := h.store.CreateUser(user); err != nil {
		return nil, err
	}
	slog.Info("ConversationHandler.findOrCreateUser: new user created", "userID", user.ID, "platform", platform)
	return user, nil
}

func (h *ConversationHandler) findOrCreateSession(user *models.User, platform models.Platform) (*models.GiftSession, error) {
	session, err := h.store.FindActiveSession(user.ID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session = &models.GiftSession{UserID: user.ID, Platform: platform}
	if err := h.store.CreateSession(session); err != nil {
		return nil, err
	}
	slog.Info("ConversationHandler.findOrCreateSession: new gift session created", "userID", user.ID, "sessionID", session.ID)
	return session, nil
}

func (h *ConversationHandler) generateResponse(ctx context.Context, user *models.User, session *models.GiftSession, message string) string {
	stage := ComputeStage(session, h.cfg.MinTurnsForReadiness)
	slog.Debug("ConversationHandler.generateResponse: stage computed", "sessionID", session.ID, "stage", stage, "turns", session.TurnCount())
	switch stage {
	case StageGreeting:
		return h.greet(user)
	case StageRecommending:
		return h.recommend(ctx, user, session)
	default:
		return h.gatherContext(ctx, user, session, message)
	}
}

func (h *ConversationHandler) greet(user *models.User) string {
	name := user.Name
	if name == "" {
		name = "there"
	}
	if user.TotalConversations > 1 {
		return fmt.Sprintf("Welcome back, %s! 👋 I'm here to help you find the perfect gift again. What's the occasion this time?", name)
	}
	return fmt.Sprintf("Hi %s! 👋 I'm your AI gift advisor. I help people find thoughtful, meaningful gifts by understanding the relationship and occasion.\n\nWho are you shopping for and what's the occasion? 🎁", name)
}

func (h *ConversationHandler) gatherContext(ctx context.Context, user *models.User, session *models.GiftSession, message string) string {
	insights, response := h.engine.ExtractContext(ctx, message, session, user.Preferences)
	if !insights.IsEmpty() {
		session.Insights.Merge(insights)
	}
	if response == "" {
		return ReplyGatheringDefault
	}
	return response
}

func (h *ConversationHandler) recommend(ctx context.Context, user *models.User, session *models.GiftSession) (reply string) {
	// The engine resolves model failures to a fallback value, so the only
	// way out of this branch without a reply is a programming error. Contain
	// it here so the user still gets a nudge instead of the global apology.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ConversationHandler.recommend: recovered", "panic", r, "sessionID", session.ID)
			reply = ReplyRecommendationNudge
		}
	}()

	budget := FormatBudget(session.BudgetMin, session.BudgetMax, session.Insights.BudgetHints)
	recs, explanation := h.engine.GenerateRecommendations(ctx, session, session.Insights, user.Preferences, budget)
	session.AddRecommendations(recs)
	slog.Debug("ConversationHandler.recommend: recommendations stored", "sessionID", session.ID, "count", len(recs), "explanation", explanation)
	return FormatRecommendations(recs, h.cfg.DisplayLimit)
}
