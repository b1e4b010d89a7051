// Package store provides storage backends for Present Agent.
//
// This file implements a PostgreSQL-backed store for users and gift sessions.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/presentagent/present-agent/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// FindUserByPlatformID looks a user up by platform id; returns (nil, nil) on miss.
func (s *PostgresStore) FindUserByPlatformID(platform models.Platform, platformUserID string) (*models.User, error) {
	if platformUserID == "" {
		return nil, models.ErrEmptyPlatformUserID
	}
	column, err := platformColumn(platform)
	if err != nil {
		slog.Error("PostgresStore FindUserByPlatformID invalid platform", "error", err, "platform", platform)
		return nil, err
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	user, err := scanUserRow(s.db.QueryRow(query, platformUserID))
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore FindUserByPlatformID not found", "platform", platform, "platformUserID", platformUserID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindUserByPlatformID failed", "error", err, "platform", platform)
		return nil, fmt.Errorf("failed to query user by %s: %w", column, err)
	}
	slog.Debug("PostgresStore FindUserByPlatformID found", "userID", user.ID, "platform", platform)
	return user, nil
}

// CreateUser persists a new user, assigning an id if unset.
func (s *PostgresStore) CreateUser(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	args, err := userWriteArgs(user)
	if err != nil {
		slog.Error("PostgresStore CreateUser encode failed", "error", err, "userID", user.ID)
		return err
	}
	query := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := s.db.Exec(query, args...); err != nil {
		slog.Error("PostgresStore CreateUser failed", "error", err, "userID", user.ID)
		return fmt.Errorf("failed to insert user %s: %w", user.ID, err)
	}
	slog.Debug("PostgresStore CreateUser succeeded", "userID", user.ID)
	return nil
}

// GetUser returns a user by id; (nil, nil) on miss.
func (s *PostgresStore) GetUser(id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUserRow(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetUser not found", "userID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUser failed", "error", err, "userID", id)
		return nil, fmt.Errorf("failed to query user %s: %w", id, err)
	}
	return user, nil
}

// FindActiveSession returns the most recently created active session for a user.
func (s *PostgresStore) FindActiveSession(userID string) (*models.GiftSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM gift_sessions
		WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`
	session, err := scanSessionRow(s.db.QueryRow(query, userID, string(models.SessionStatusActive)))
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore FindActiveSession not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindActiveSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query active session for user %s: %w", userID, err)
	}
	slog.Debug("PostgresStore FindActiveSession found", "sessionID", session.ID, "userID", userID)
	return session, nil
}

// CreateSession persists a new session, assigning an id if unset.
func (s *PostgresStore) CreateSession(session *models.GiftSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusActive
	}
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now
	args, err := sessionWriteArgs(session)
	if err != nil {
		slog.Error("PostgresStore CreateSession encode failed", "error", err, "sessionID", session.ID)
		return err
	}
	query := `INSERT INTO gift_sessions (` + sessionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	if _, err := s.db.Exec(query, args...); err != nil {
		slog.Error("PostgresStore CreateSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}
	slog.Debug("PostgresStore CreateSession succeeded", "sessionID", session.ID, "userID", session.UserID)
	return nil
}

// GetSession returns a session by id; (nil, nil) on miss.
func (s *PostgresStore) GetSession(id string) (*models.GiftSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM gift_sessions WHERE id = $1`
	session, err := scanSessionRow(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "sessionID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to query session %s: %w", id, err)
	}
	return session, nil
}

const postgresUserUpdate = `UPDATE users SET name = $1, preferences = $2, total_conversations = $3,
	successful_recommendations = $4, last_active = $5, updated_at = $6 WHERE id = $7`

const postgresSessionUpdate = `UPDATE gift_sessions SET status = $1, recipient_name = $2, relationship_type = $3,
	occasion = $4, budget_min = $5, budget_max = $6, primary_emotion = $7, turns = $8, insights = $9,
	user_constraints = $10, recommendations = $11, final_choice = $12, satisfaction_score = $13,
	updated_at = $14, completed_at = $15 WHERE id = $16`

// SaveConversation commits user counters and session state in one transaction.
func (s *PostgresStore) SaveConversation(user *models.User, session *models.GiftSession) error {
	now := time.Now()
	user.UpdatedAt = now
	session.UpdatedAt = now

	userArgs, err := userUpdateArgs(user)
	if err != nil {
		slog.Error("PostgresStore SaveConversation encode user failed", "error", err, "userID", user.ID)
		return err
	}
	sessionArgs, err := sessionUpdateArgs(session)
	if err != nil {
		slog.Error("PostgresStore SaveConversation encode session failed", "error", err, "sessionID", session.ID)
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("PostgresStore SaveConversation begin failed", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(postgresUserUpdate, userArgs...); err != nil {
		slog.Error("PostgresStore SaveConversation user update failed", "error", err, "userID", user.ID)
		return fmt.Errorf("failed to update user %s: %w", user.ID, err)
	}
	if _, err := tx.Exec(postgresSessionUpdate, sessionArgs...); err != nil {
		slog.Error("PostgresStore SaveConversation session update failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore SaveConversation commit failed", "error", err)
		return fmt.Errorf("failed to commit conversation: %w", err)
	}
	slog.Debug("PostgresStore SaveConversation succeeded", "userID", user.ID, "sessionID", session.ID)
	return nil
}

// SaveSession persists session mutations.
func (s *PostgresStore) SaveSession(session *models.GiftSession) error {
	session.UpdatedAt = time.Now()
	args, err := sessionUpdateArgs(session)
	if err != nil {
		slog.Error("PostgresStore SaveSession encode failed", "error", err, "sessionID", session.ID)
		return err
	}
	if _, err := s.db.Exec(postgresSessionUpdate, args...); err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "sessionID", session.ID, "status", session.Status)
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
