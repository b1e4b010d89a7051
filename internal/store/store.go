// Package store provides storage backends for Present Agent.
//
// It includes SQLite and PostgreSQL backends for users and gift sessions,
// plus an in-memory store used in tests.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/presentagent/present-agent/internal/models"
)

// Store defines the persistence operations the conversation core depends on.
//
// Lookup misses return (nil, nil) rather than an error. FindActiveSession
// returns the most recently created active session; callers must not create
// a session while an active one exists.
type Store interface {
	// FindUserByPlatformID looks a user up by their platform-specific id.
	FindUserByPlatformID(platform models.Platform, platformUserID string) (*models.User, error)

	// CreateUser persists a new user, assigning an id if unset.
	CreateUser(user *models.User) error

	// GetUser returns a user by id.
	GetUser(id string) (*models.User, error)

	// FindActiveSession returns the most recently created active session for a user.
	FindActiveSession(userID string) (*models.GiftSession, error)

	// CreateSession persists a new session, assigning an id if unset.
	CreateSession(session *models.GiftSession) error

	// GetSession returns a session by id.
	GetSession(id string) (*models.GiftSession, error)

	// SaveConversation commits mutated user counters and the full session
	// state in one transaction. On failure nothing is persisted.
	SaveConversation(user *models.User, session *models.GiftSession) error

	// SaveSession persists session mutations (status, outcome fields).
	SaveSession(session *models.GiftSession) error

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite" based on its shape.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// CompleteSession closes a session with an optional final choice and
// satisfaction rating. A final choice also bumps the owner's
// successful-recommendation counter.
func CompleteSession(s Store, id, finalChoice string, satisfaction *int) error {
	session, err := s.GetSession(id)
	if err != nil {
		return err
	}
	if session == nil {
		return models.ErrSessionNotFound
	}
	if err := session.Complete(finalChoice, satisfaction); err != nil {
		return err
	}
	if finalChoice != "" {
		user, err := s.GetUser(session.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return models.ErrUserNotFound
		}
		user.AddSuccessfulRecommendation()
		return s.SaveConversation(user, session)
	}
	return s.SaveSession(session)
}

// AbandonSession closes a session without an outcome.
func AbandonSession(s Store, id string) error {
	session, err := s.GetSession(id)
	if err != nil {
		return err
	}
	if session == nil {
		return models.ErrSessionNotFound
	}
	if err := session.Abandon(); err != nil {
		return err
	}
	return s.SaveSession(session)
}

// InMemoryStore is a map-backed Store used in tests and for local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	sessions map[string]*models.GiftSession
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:    make(map[string]*models.User),
		sessions: make(map[string]*models.GiftSession),
	}
}

// FindUserByPlatformID looks a user up by platform id; returns (nil, nil) on miss.
// An empty id is rejected so it can never match a user whose identifier for
// some other platform is unset.
func (s *InMemoryStore) FindUserByPlatformID(platform models.Platform, platformUserID string) (*models.User, error) {
	if platformUserID == "" {
		return nil, models.ErrEmptyPlatformUserID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.PlatformID(platform) == platformUserID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// CreateUser stores a new user, assigning an id if unset.
func (s *InMemoryStore) CreateUser(user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// GetUser returns a user by id; (nil, nil) on miss.
func (s *InMemoryStore) GetUser(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// FindActiveSession returns the most recently created active session for a user.
func (s *InMemoryStore) FindActiveSession(userID string) (*models.GiftSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []*models.GiftSession
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Status == models.SessionStatusActive {
			active = append(active, sess)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.After(active[j].CreatedAt) })
	cp := *active[0]
	return &cp, nil
}

// CreateSession stores a new session, assigning an id if unset.
func (s *InMemoryStore) CreateSession(session *models.GiftSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusActive
	}
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

// GetSession returns a session by id; (nil, nil) on miss.
func (s *InMemoryStore) GetSession(id string) (*models.GiftSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

// SaveConversation commits user counters and session state together.
func (s *InMemoryStore) SaveConversation(user *models.User, session *models.GiftSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	user.UpdatedAt = now
	session.UpdatedAt = now
	uc := *user
	sc := *session
	s.users[user.ID] = &uc
	s.sessions[session.ID] = &sc
	return nil
}

// SaveSession persists session mutations.
func (s *InMemoryStore) SaveSession(session *models.GiftSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.UpdatedAt = time.Now()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
