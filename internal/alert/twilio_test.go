package alert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenmind/haven/internal/crisis"
	"github.com/havenmind/haven/internal/log"
)

func testPayload() Payload {
	return Payload{
		SessionID: "sess-1",
		MessageID: "msg-1",
		UserName:  "Alex",
		Location:  "Springfield",
		Reason:    "User is expressing suicidal thoughts or self-harm intent",
		Snippet:   "I want to end it all",
		Severity:  crisis.SeverityCritical,
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTwilioChannelSend(t *testing.T) {
	var gotPath, gotAuth string
	var gotForm map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		user, pass, _ := r.BasicAuth()
		gotAuth = user + ":" + pass
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"To":                  r.PostFormValue("To"),
			"MessagingServiceSid": r.PostFormValue("MessagingServiceSid"),
			"Body":                r.PostFormValue("Body"),
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	ch := NewTwilioChannel(TwilioConfig{
		AccountSID:          "AC123",
		AuthToken:           "secret",
		MessagingServiceSID: "MG456",
		To:                  "+15551234567",
		BaseURL:             srv.URL,
	}, log.NewNop())

	require.True(t, ch.Configured())
	require.NoError(t, ch.Send(context.Background(), testPayload()))

	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", gotPath)
	assert.Equal(t, "AC123:secret", gotAuth)
	assert.Equal(t, "+15551234567", gotForm["To"])
	assert.Equal(t, "MG456", gotForm["MessagingServiceSid"])
	assert.Contains(t, gotForm["Body"], "CRISIS ALERT [critical]")
	assert.Contains(t, gotForm["Body"], "User: Alex")
	assert.Contains(t, gotForm["Body"], "Location: Springfield")
	assert.Contains(t, gotForm["Body"], "Session: sess-1")
}

func TestTwilioChannelAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":20003,"message":"Authentication Error"}`))
	}))
	defer srv.Close()

	ch := NewTwilioChannel(TwilioConfig{
		AccountSID:          "AC123",
		AuthToken:           "wrong",
		MessagingServiceSID: "MG456",
		To:                  "+15551234567",
		BaseURL:             srv.URL,
	}, log.NewNop())

	err := ch.Send(context.Background(), testPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Authentication Error")
	assert.Contains(t, err.Error(), "20003")
}

func TestTwilioChannelNotConfigured(t *testing.T) {
	ch := NewTwilioChannel(TwilioConfig{}, log.NewNop())
	assert.False(t, ch.Configured())
	assert.ErrorIs(t, ch.Send(context.Background(), testPayload()), ErrNotConfigured)
}

func TestTwilioChannelContextCancelled(t *testing.T) {
	// The server never notices the client disconnect while the unread POST
	// body is pending, so r.Context() alone would block the handler (and
	// srv.Close) forever; unblock it on test teardown as well.
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-done:
		}
	}))
	defer srv.Close()
	defer close(done)

	ch := NewTwilioChannel(TwilioConfig{
		AccountSID:          "AC123",
		AuthToken:           "secret",
		MessagingServiceSID: "MG456",
		To:                  "+15551234567",
		BaseURL:             srv.URL,
	}, log.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := ch.Send(ctx, testPayload())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "context deadline exceeded") ||
		strings.Contains(err.Error(), "context canceled"))
}
