// Package store provides storage backends for Present Agent.
//
// This file implements an SQLite-backed store for users and gift sessions.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/presentagent/present-agent/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// FindUserByPlatformID looks a user up by platform id; returns (nil, nil) on miss.
func (s *SQLiteStore) FindUserByPlatformID(platform models.Platform, platformUserID string) (*models.User, error) {
	if platformUserID == "" {
		return nil, models.ErrEmptyPlatformUserID
	}
	column, err := platformColumn(platform)
	if err != nil {
		slog.Error("SQLiteStore FindUserByPlatformID invalid platform", "error", err, "platform", platform)
		return nil, err
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`
	user, err := scanUserRow(s.db.QueryRow(query, platformUserID))
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore FindUserByPlatformID not found", "platform", platform, "platformUserID", platformUserID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindUserByPlatformID failed", "error", err, "platform", platform)
		return nil, fmt.Errorf("failed to query user by %s: %w", column, err)
	}
	slog.Debug("SQLiteStore FindUserByPlatformID found", "userID", user.ID, "platform", platform)
	return user, nil
}

// CreateUser persists a new user, assigning an id if unset.
func (s *SQLiteStore) CreateUser(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	args, err := userWriteArgs(user)
	if err != nil {
		slog.Error("SQLiteStore CreateUser encode failed", "error", err, "userID", user.ID)
		return err
	}
	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.Exec(query, args...); err != nil {
		slog.Error("SQLiteStore CreateUser failed", "error", err, "userID", user.ID)
		return fmt.Errorf("failed to insert user %s: %w", user.ID, err)
	}
	slog.Debug("SQLiteStore CreateUser succeeded", "userID", user.ID)
	return nil
}

// GetUser returns a user by id; (nil, nil) on miss.
func (s *SQLiteStore) GetUser(id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUserRow(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetUser not found", "userID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUser failed", "error", err, "userID", id)
		return nil, fmt.Errorf("failed to query user %s: %w", id, err)
	}
	return user, nil
}

// FindActiveSession returns the most recently created active session for a user.
func (s *SQLiteStore) FindActiveSession(userID string) (*models.GiftSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM gift_sessions
		WHERE user_id = ? AND status = ? ORDER BY created_at DESC LIMIT 1`
	session, err := scanSessionRow(s.db.QueryRow(query, userID, string(models.SessionStatusActive)))
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore FindActiveSession not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindActiveSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query active session for user %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore FindActiveSession found", "sessionID", session.ID, "userID", userID)
	return session, nil
}

// CreateSession persists a new session, assigning an id if unset.
func (s *SQLiteStore) CreateSession(session *models.GiftSession) error {
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
		slog.Error("SQLiteStore CreateSession encode failed", "error", err, "sessionID", session.ID)
		return err
	}
	query := `INSERT INTO gift_sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.Exec(query, args...); err != nil {
		slog.Error("SQLiteStore CreateSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}
	slog.Debug("SQLiteStore CreateSession succeeded", "sessionID", session.ID, "userID", session.UserID)
	return nil
}

// GetSession returns a session by id; (nil, nil) on miss.
func (s *SQLiteStore) GetSession(id string) (*models.GiftSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM gift_sessions WHERE id = ?`
	session, err := scanSessionRow(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "sessionID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to query session %s: %w", id, err)
	}
	return session, nil
}

const sqliteUserUpdate = `UPDATE users SET name = ?, preferences = ?, total_conversations = ?,
	successful_recommendations = ?, last_active = ?, updated_at = ? WHERE id = ?`

const sqliteSessionUpdate = `UPDATE gift_sessions SET status = ?, recipient_name = ?, relationship_type = ?,
	occasion = ?, budget_min = ?, budget_max = ?, primary_emotion = ?, turns = ?, insights = ?,
	user_constraints = ?, recommendations = ?, final_choice = ?, satisfaction_score = ?,
	updated_at = ?, completed_at = ? WHERE id = ?`

// SaveConversation commits user counters and session state in one transaction.
func (s *SQLiteStore) SaveConversation(user *models.User, session *models.GiftSession) error {
	now := time.Now()
	user.UpdatedAt = now
	session.UpdatedAt = now

	userArgs, err := userUpdateArgs(user)
	if err != nil {
		slog.Error("SQLiteStore SaveConversation encode user failed", "error", err, "userID", user.ID)
		return err
	}
	sessionArgs, err := sessionUpdateArgs(session)
	if err != nil {
		slog.Error("SQLiteStore SaveConversation encode session failed", "error", err, "sessionID", session.ID)
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore SaveConversation begin failed", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(sqliteUserUpdate, userArgs...); err != nil {
		slog.Error("SQLiteStore SaveConversation user update failed", "error", err, "userID", user.ID)
		return fmt.Errorf("failed to update user %s: %w", user.ID, err)
	}
	if _, err := tx.Exec(sqliteSessionUpdate, sessionArgs...); err != nil {
		slog.Error("SQLiteStore SaveConversation session update failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore SaveConversation commit failed", "error", err)
		return fmt.Errorf("failed to commit conversation: %w", err)
	}
	slog.Debug("SQLiteStore SaveConversation succeeded", "userID", user.ID, "sessionID", session.ID)
	return nil
}

// SaveSession persists session mutations.
func (s *SQLiteStore) SaveSession(session *models.GiftSession) error {
	session.UpdatedAt = time.Now()
	args, err := sessionUpdateArgs(session)
	if err != nil {
		slog.Error("SQLiteStore SaveSession encode failed", "error", err, "sessionID", session.ID)
		return err
	}
	if _, err := s.db.Exec(sqliteSessionUpdate, args...); err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "sessionID", session.ID, "status", session.Status)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
