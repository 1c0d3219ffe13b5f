// Package session persists chat sessions and their message history in
// PostgreSQL.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for session operations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyContent    = errors.New("message content is empty")
	ErrInvalidRole     = errors.New("invalid message role")
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Session is one conversation between a user and the assistant.
type Session struct {
	ID        uuid.UUID
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn of a session.
type Message struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Role           Role
	Content        string
	SequenceNumber int32
	CreatedAt      time.Time
}
