package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Querier defines the database operations Store needs. Defined by the
// consumer so tests can substitute a mock for the pgx implementation.
type Querier interface {
	CreateSession(ctx context.Context, id uuid.UUID, userID, title string) (Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (Session, error)
	ListSessions(ctx context.Context, userID string, limit int32) ([]Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	InsertMessage(ctx context.Context, id, sessionID uuid.UUID, role Role, content string) (Message, error)
	RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int32) ([]Message, error)
	TouchSession(ctx context.Context, id uuid.UUID) error
}

// Store manages sessions and message history.
//
// Safe for concurrent use.
type Store struct {
	queries Querier
	logger  *slog.Logger
}

// NewStore creates a Store. logger may be nil.
func NewStore(querier Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{queries: querier, logger: logger}
}

// Create starts a new session for the given user. An empty title gets a
// default derived later from the first message.
func (s *Store) Create(ctx context.Context, userID, title string) (Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New conversation"
	}

	sess, err := s.queries.CreateSession(ctx, uuid.New(), userID, title)
	if err != nil {
		return Session{}, fmt.Errorf("creating session: %w", err)
	}
	s.logger.Info("session created", "session_id", sess.ID, "user_id", userID)
	return sess, nil
}

// Get fetches one session.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	return s.queries.GetSession(ctx, id)
}

// List returns a user's sessions, most recently active first.
func (s *Store) List(ctx context.Context, userID string, limit int32) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queries.ListSessions(ctx, userID, limit)
}

// Delete removes a session and its messages.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.queries.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.logger.Info("session deleted", "session_id", id)
	return nil
}

// Append stores a message at the end of the session and bumps the
// session's activity timestamp.
func (s *Store) Append(ctx context.Context, sessionID uuid.UUID, role Role, content string) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, ErrEmptyContent
	}
	if !role.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	msg, err := s.queries.InsertMessage(ctx, uuid.New(), sessionID, role, content)
	if err != nil {
		return Message{}, fmt.Errorf("appending message: %w", err)
	}
	if err := s.queries.TouchSession(ctx, sessionID); err != nil {
		// Activity timestamp drift is tolerable; the message is stored.
		s.logger.Warn("failed to touch session", "session_id", sessionID, "error", err)
	}
	return msg, nil
}

// History returns the last limit messages in chronological order.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID, limit int32) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queries.RecentMessages(ctx, sessionID, limit)
}
