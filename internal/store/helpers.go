package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/presentagent/present-agent/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// encodeJSON marshals v into a string for a text column, or nil when v is
// the zero slice/map so the column stays NULL.
func encodeJSON(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON column: %w", err)
	}
	s := string(b)
	if s == "null" {
		return nil, nil
	}
	return s, nil
}

// decodeJSON unmarshals a nullable text column into out. NULL and empty
// strings leave out untouched.
func decodeJSON(col sql.NullString, out interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), out); err != nil {
		return fmt.Errorf("failed to unmarshal JSON column: %w", err)
	}
	return nil
}

const userColumns = `id, instagram_id, whatsapp_id, name, preferences, total_conversations, successful_recommendations, last_active, created_at, updated_at`

const sessionColumns = `id, user_id, status, platform, recipient_name, relationship_type, occasion, budget_min, budget_max, primary_emotion, turns, insights, user_constraints, recommendations, final_choice, satisfaction_score, created_at, updated_at, completed_at`

// scanUserRow scans a User from a single sql.Row.
func scanUserRow(row *sql.Row) (*models.User, error) {
	var u models.User
	var instagramID, whatsAppID, name, preferences sql.NullString
	var lastActive sql.NullTime
	err := row.Scan(
		&u.ID, &instagramID, &whatsAppID, &name, &preferences,
		&u.TotalConversations, &u.SuccessfulRecommendations, &lastActive,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.InstagramID = instagramID.String
	u.WhatsAppID = whatsAppID.String
	u.Name = name.String
	if lastActive.Valid {
		u.LastActive = &lastActive.Time
	}
	if err := decodeJSON(preferences, &u.Preferences); err != nil {
		return nil, fmt.Errorf("scan user %s: %w", u.ID, err)
	}
	return &u, nil
}

// scanSessionRow scans a GiftSession from a single sql.Row.
func scanSessionRow(row *sql.Row) (*models.GiftSession, error) {
	var s models.GiftSession
	var recipientName, relationshipType, occasion, primaryEmotion sql.NullString
	var turns, insights, constraints, recommendations, finalChoice sql.NullString
	var budgetMin, budgetMax, satisfaction sql.NullInt64
	var completedAt sql.NullTime
	err := row.Scan(
		&s.ID, &s.UserID, &s.Status, &s.Platform,
		&recipientName, &relationshipType, &occasion, &budgetMin, &budgetMax, &primaryEmotion,
		&turns, &insights, &constraints, &recommendations,
		&finalChoice, &satisfaction,
		&s.CreatedAt, &s.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	s.RecipientName = recipientName.String
	s.RelationshipType = relationshipType.String
	s.Occasion = occasion.String
	s.PrimaryEmotion = primaryEmotion.String
	s.FinalChoice = finalChoice.String
	if budgetMin.Valid {
		v := int(budgetMin.Int64)
		s.BudgetMin = &v
	}
	if budgetMax.Valid {
		v := int(budgetMax.Int64)
		s.BudgetMax = &v
	}
	if satisfaction.Valid {
		v := int(satisfaction.Int64)
		s.SatisfactionScore = &v
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	if err := decodeJSON(turns, &s.Turns); err != nil {
		return nil, fmt.Errorf("scan session %s: %w", s.ID, err)
	}
	if err := decodeJSON(insights, &s.Insights); err != nil {
		return nil, fmt.Errorf("scan session %s: %w", s.ID, err)
	}
	if err := decodeJSON(constraints, &s.Constraints); err != nil {
		return nil, fmt.Errorf("scan session %s: %w", s.ID, err)
	}
	if err := decodeJSON(recommendations, &s.Recommendations); err != nil {
		return nil, fmt.Errorf("scan session %s: %w", s.ID, err)
	}
	return &s, nil
}

// userWriteArgs builds the insert argument list matching userColumns.
func userWriteArgs(u *models.User) ([]interface{}, error) {
	prefs, err := encodeJSON(u.Preferences)
	if err != nil {
		return nil, err
	}
	var lastActive interface{}
	if u.LastActive != nil {
		lastActive = *u.LastActive
	}
	return []interface{}{
		u.ID, nilIfEmpty(u.InstagramID), nilIfEmpty(u.WhatsAppID), nilIfEmpty(u.Name), prefs,
		u.TotalConversations, u.SuccessfulRecommendations, lastActive,
		u.CreatedAt, u.UpdatedAt,
	}, nil
}

// sessionWriteArgs builds the insert argument list matching sessionColumns.
func sessionWriteArgs(s *models.GiftSession) ([]interface{}, error) {
	turns, err := encodeJSON(s.Turns)
	if err != nil {
		return nil, err
	}
	insights, err := encodeJSON(s.Insights)
	if err != nil {
		return nil, err
	}
	constraints, err := encodeJSON(s.Constraints)
	if err != nil {
		return nil, err
	}
	recommendations, err := encodeJSON(s.Recommendations)
	if err != nil {
		return nil, err
	}
	var budgetMin, budgetMax, satisfaction, completedAt interface{}
	if s.BudgetMin != nil {
		budgetMin = *s.BudgetMin
	}
	if s.BudgetMax != nil {
		budgetMax = *s.BudgetMax
	}
	if s.SatisfactionScore != nil {
		satisfaction = *s.SatisfactionScore
	}
	if s.CompletedAt != nil {
		completedAt = *s.CompletedAt
	}
	return []interface{}{
		s.ID, s.UserID, string(s.Status), string(s.Platform),
		nilIfEmpty(s.RecipientName), nilIfEmpty(s.RelationshipType), nilIfEmpty(s.Occasion),
		budgetMin, budgetMax, nilIfEmpty(s.PrimaryEmotion),
		turns, insights, constraints, recommendations,
		nilIfEmpty(s.FinalChoice), satisfaction,
		s.CreatedAt, s.UpdatedAt, completedAt,
	}, nil
}

// userUpdateArgs builds the argument list for the user update statement,
// ending with the id for the WHERE clause.
func userUpdateArgs(u *models.User) ([]interface{}, error) {
	prefs, err := encodeJSON(u.Preferences)
	if err != nil {
		return nil, err
	}
	var lastActive interface{}
	if u.LastActive != nil {
		lastActive = *u.LastActive
	}
	return []interface{}{
		nilIfEmpty(u.Name), prefs,
		u.TotalConversations, u.SuccessfulRecommendations, lastActive,
		u.UpdatedAt, u.ID,
	}, nil
}

// sessionUpdateArgs builds the argument list for the session update statement,
// ending with the id for the WHERE clause.
func sessionUpdateArgs(s *models.GiftSession) ([]interface{}, error) {
	turns, err := encodeJSON(s.Turns)
	if err != nil {
		return nil, err
	}
	insights, err := encodeJSON(s.Insights)
	if err != nil {
		return nil, err
	}
	constraints, err := encodeJSON(s.Constraints)
	if err != nil {
		return nil, err
	}
	recommendations, err := encodeJSON(s.Recommendations)
	if err != nil {
		return nil, err
	}
	var budgetMin, budgetMax, satisfaction, completedAt interface{}
	if s.BudgetMin != nil {
		budgetMin = *s.BudgetMin
	}
	if s.BudgetMax != nil {
		budgetMax = *s.BudgetMax
	}
	if s.SatisfactionScore != nil {
		satisfaction = *s.SatisfactionScore
	}
	if s.CompletedAt != nil {
		completedAt = *s.CompletedAt
	}
	return []interface{}{
		string(s.Status),
		nilIfEmpty(s.RecipientName), nilIfEmpty(s.RelationshipType), nilIfEmpty(s.Occasion),
		budgetMin, budgetMax, nilIfEmpty(s.PrimaryEmotion),
		turns, insights, constraints, recommendations,
		nilIfEmpty(s.FinalChoice), satisfaction,
		s.UpdatedAt, completedAt, s.ID,
	}, nil
}

// platformColumn maps a platform to the users column holding its id.
func platformColumn(p models.Platform) (string, error) {
	switch p {
	case models.PlatformInstagram:
		return "instagram_id", nil
	case models.PlatformWhatsApp:
		return "whatsapp_id", nil
	default:
		return "", fmt.Errorf("%w: %s", models.ErrUnsupportedPlatform, p)
	}
}
