package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx used by Queries, satisfied by *pgxpool.Pool
// and pgx.Tx alike.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries is the pgx-backed implementation of Querier.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries over the given connection or pool.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const createSession = `
INSERT INTO sessions (id, user_id, title)
VALUES ($1, $2, $3)
RETURNING id, user_id, title, created_at, updated_at
`

// CreateSession inserts a new session and returns the stored row.
func (q *Queries) CreateSession(ctx context.Context, id uuid.UUID, userID, title string) (Session, error) {
	var s Session
	err := q.db.QueryRow(ctx, createSession, id, userID, title).
		Scan(&s.ID, &s.UserID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

const getSession = `
SELECT id, user_id, title, created_at, updated_at
FROM sessions
WHERE id = $1
`

// GetSession fetches one session by ID.
func (q *Queries) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	var s Session
	err := q.db.QueryRow(ctx, getSession, id).
		Scan(&s.ID, &s.UserID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

const listSessions = `
SELECT id, user_id, title, created_at, updated_at
FROM sessions
WHERE user_id = $1
ORDER BY updated_at DESC
LIMIT $2
`

// ListSessions returns a user's sessions, most recently active first.
func (q *Queries) ListSessions(ctx context.Context, userID string, limit int32) ([]Session, error) {
	rows, err := q.db.Query(ctx, listSessions, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

const deleteSession = `DELETE FROM sessions WHERE id = $1`

// DeleteSession removes a session; messages cascade in the schema.
func (q *Queries) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, deleteSession, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

const insertMessage = `
INSERT INTO session_messages (id, session_id, role, content, sequence_number)
SELECT $1, $2, $3, $4,
       COALESCE(MAX(sequence_number), 0) + 1
FROM session_messages
WHERE session_id = $2
RETURNING id, session_id, role, content, sequence_number, created_at
`

// InsertMessage appends a message with the next sequence number.
func (q *Queries) InsertMessage(ctx context.Context, id, sessionID uuid.UUID, role Role, content string) (Message, error) {
	var m Message
	err := q.db.QueryRow(ctx, insertMessage, id, sessionID, string(role), content).
		Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.SequenceNumber, &m.CreatedAt)
	return m, err
}

const recentMessages = `
SELECT id, session_id, role, content, sequence_number, created_at
FROM (
    SELECT id, session_id, role, content, sequence_number, created_at
    FROM session_messages
    WHERE session_id = $1
    ORDER BY sequence_number DESC
    LIMIT $2
) recent
ORDER BY sequence_number ASC
`

// RecentMessages returns the last limit messages in chronological order.
func (q *Queries) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int32) ([]Message, error) {
	rows, err := q.db.Query(ctx, recentMessages, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

const touchSession = `UPDATE sessions SET updated_at = now() WHERE id = $1`

// TouchSession bumps a session's updated_at.
func (q *Queries) TouchSession(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, touchSession, id)
	return err
}
