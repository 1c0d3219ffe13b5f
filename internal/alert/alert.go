// Package alert delivers crisis notifications to the support team.
//
// A Dispatcher walks an ordered list of channels (Twilio SMS first,
// Telegram as fallback) and stops at the first successful delivery.
// Dispatch is best-effort: channel failures are recorded and logged but
// never propagate to the chat request that triggered the alert.
package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/havenmind/haven/internal/crisis"
)

// ErrNotConfigured is returned by a channel missing required credentials.
var ErrNotConfigured = errors.New("alert channel not configured")

// Payload carries everything a responder needs to act on an alert.
type Payload struct {
	SessionID string
	MessageID string
	UserName  string
	Location  string
	Reason    string
	Snippet   string
	Severity  crisis.Severity
	Timestamp time.Time
}

// Channel is a single delivery mechanism for crisis alerts.
type Channel interface {
	// Name identifies the channel in logs, metrics and attempts.
	Name() string

	// Configured reports whether the channel has the credentials it
	// needs. Unconfigured channels are skipped, not errored.
	Configured() bool

	// Send delivers the alert. Implementations honor ctx cancellation.
	Send(ctx context.Context, p Payload) error
}

// Outcome is the result of one delivery attempt.
type Outcome string

// Outcome values, also used as metric labels.
const (
	OutcomeSent   Outcome = "sent"
	OutcomeFailed Outcome = "failed"
)

// Attempt records one delivery attempt against one channel.
type Attempt struct {
	Channel   string
	Outcome   Outcome
	Err       error
	Timestamp time.Time
}

// formatMessage renders the alert text shared by all channels.
func formatMessage(p Payload) string {
	userName := p.UserName
	if userName == "" {
		userName = "Anonymous"
	}
	location := p.Location
	if location == "" {
		location = "Unknown"
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CRISIS ALERT [%s]\n", p.Severity)
	fmt.Fprintf(&sb, "User: %s\n", userName)
	fmt.Fprintf(&sb, "Location: %s\n", location)
	fmt.Fprintf(&sb, "Session: %s\n", p.SessionID)
	fmt.Fprintf(&sb, "Reason: %s\n", p.Reason)
	if p.Snippet != "" {
		fmt.Fprintf(&sb, "Message: %q\n", truncate(p.Snippet, 200))
	}
	fmt.Fprintf(&sb, "Time: %s", ts.UTC().Format(time.RFC3339))
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
