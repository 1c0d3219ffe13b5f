package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/havenmind/haven/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockQuerier records calls and returns scripted results.
type mockQuerier struct {
	created  []Session
	inserted []Message
	touched  []uuid.UUID
	history  []Message
	session  Session
	getErr   error
}

func (m *mockQuerier) CreateSession(_ context.Context, id uuid.UUID, userID, title string) (Session, error) {
	s := Session{ID: id, UserID: userID, Title: title}
	m.created = append(m.created, s)
	return s, nil
}

func (m *mockQuerier) GetSession(context.Context, uuid.UUID) (Session, error) {
	return m.session, m.getErr
}

func (m *mockQuerier) ListSessions(context.Context, string, int32) ([]Session, error) {
	return m.created, nil
}

func (m *mockQuerier) DeleteSession(context.Context, uuid.UUID) error { return nil }

func (m *mockQuerier) InsertMessage(_ context.Context, id, sessionID uuid.UUID, role Role, content string) (Message, error) {
	msg := Message{
		ID:             id,
		SessionID:      sessionID,
		Role:           role,
		Content:        content,
		SequenceNumber: int32(len(m.inserted) + 1),
	}
	m.inserted = append(m.inserted, msg)
	return msg, nil
}

func (m *mockQuerier) RecentMessages(context.Context, uuid.UUID, int32) ([]Message, error) {
	return m.history, nil
}

func (m *mockQuerier) TouchSession(_ context.Context, id uuid.UUID) error {
	m.touched = append(m.touched, id)
	return nil
}

func TestStoreCreate(t *testing.T) {
	q := &mockQuerier{}
	store := NewStore(q, log.NewNop())

	t.Run("with title", func(t *testing.T) {
		sess, err := store.Create(context.Background(), "user-1", "Sleep troubles")
		require.NoError(t, err)
		assert.Equal(t, "Sleep troubles", sess.Title)
		assert.Equal(t, "user-1", sess.UserID)
		assert.NotEqual(t, uuid.Nil, sess.ID)
	})

	t.Run("empty title gets default", func(t *testing.T) {
		sess, err := store.Create(context.Background(), "user-1", "   ")
		require.NoError(t, err)
		assert.Equal(t, "New conversation", sess.Title)
	})
}

func TestStoreAppend(t *testing.T) {
	q := &mockQuerier{}
	store := NewStore(q, log.NewNop())
	sessionID := uuid.New()

	msg, err := store.Append(context.Background(), sessionID, RoleUser, "hello")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, int32(1), msg.SequenceNumber)

	_, err = store.Append(context.Background(), sessionID, RoleAssistant, "hi there")
	require.NoError(t, err)

	require.Len(t, q.inserted, 2)
	assert.Equal(t, int32(2), q.inserted[1].SequenceNumber)
	assert.Len(t, q.touched, 2)
}

func TestStoreAppendValidation(t *testing.T) {
	store := NewStore(&mockQuerier{}, log.NewNop())
	sessionID := uuid.New()

	_, err := store.Append(context.Background(), sessionID, RoleUser, "  ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = store.Append(context.Background(), sessionID, Role("system"), "content")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestStoreGetNotFound(t *testing.T) {
	q := &mockQuerier{getErr: ErrSessionNotFound}
	store := NewStore(q, log.NewNop())

	_, err := store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStoreHistoryDefaultLimit(t *testing.T) {
	q := &mockQuerier{history: []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "second"},
	}}
	store := NewStore(q, log.NewNop())

	msgs, err := store.History(context.Background(), uuid.New(), 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("system").Valid())
	assert.False(t, Role("").Valid())
}
