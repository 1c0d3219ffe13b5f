package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/havenmind/haven/internal/metrics"
)

const (
	// maxDedupeEntries bounds the in-memory dedupe table.
	maxDedupeEntries = 4096

	// dedupeTTL is how long a dispatched alert suppresses duplicates.
	dedupeTTL = time.Hour
)

// Dispatcher fans a crisis alert out to its channels in order, stopping
// at the first successful delivery. Duplicate alerts for the same
// message are suppressed.
//
// Safe for concurrent use.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDispatcher creates a Dispatcher over the given channels, tried in
// slice order. timeout bounds a full dispatch across all channels;
// metrics may be nil.
func NewDispatcher(channels []Channel, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		channels: channels,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
		seen:     make(map[string]time.Time),
	}
}

// Dispatch delivers the alert and returns the attempts made, in order.
// A duplicate of an already-dispatched message returns nil without
// contacting any channel. When every channel fails the failure is
// logged at error level; the caller is not expected to retry.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) []Attempt {
	if !d.markDispatched(p.SessionID + "/" + p.MessageID) {
		d.logger.Debug("duplicate alert suppressed",
			"session_id", p.SessionID, "message_id", p.MessageID)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var attempts []Attempt
	delivered := false
	for _, ch := range d.channels {
		if !ch.Configured() {
			attempts = append(attempts, Attempt{
				Channel:   ch.Name(),
				Outcome:   OutcomeFailed,
				Err:       ErrNotConfigured,
				Timestamp: time.Now().UTC(),
			})
			d.recordAttempt(ch.Name(), OutcomeFailed)
			d.logger.Warn("alert channel skipped, not configured", "channel", ch.Name())
			continue
		}

		err := ch.Send(ctx, p)
		if err != nil {
			attempts = append(attempts, Attempt{
				Channel:   ch.Name(),
				Outcome:   OutcomeFailed,
				Err:       err,
				Timestamp: time.Now().UTC(),
			})
			d.recordAttempt(ch.Name(), OutcomeFailed)
			d.logger.Warn("alert channel failed, trying next",
				"channel", ch.Name(), "error", err)
			continue
		}

		attempts = append(attempts, Attempt{
			Channel:   ch.Name(),
			Outcome:   OutcomeSent,
			Timestamp: time.Now().UTC(),
		})
		d.recordAttempt(ch.Name(), OutcomeSent)
		d.logger.Info("crisis alert delivered",
			"channel", ch.Name(),
			"session_id", p.SessionID,
			"severity", p.Severity.String())
		delivered = true
		break
	}

	if !delivered {
		// Every channel failed. This is the worst case for a crisis
		// pipeline and must be loud in the logs for operators.
		d.logger.Error("crisis alert could not be delivered on any channel",
			"session_id", p.SessionID,
			"message_id", p.MessageID,
			"severity", p.Severity.String(),
			"channels", len(d.channels))
	}
	return attempts
}

// markDispatched records the alert key and reports whether it is new.
// Expired and overflow entries are pruned in place.
func (d *Dispatcher) markDispatched(key string) bool {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if ts, ok := d.seen[key]; ok && now.Sub(ts) < dedupeTTL {
		return false
	}

	if len(d.seen) >= maxDedupeEntries {
		for k, ts := range d.seen {
			if now.Sub(ts) >= dedupeTTL {
				delete(d.seen, k)
			}
		}
		// Still full means a burst of unique alerts within the TTL;
		// drop arbitrary entries rather than grow without bound.
		for k := range d.seen {
			if len(d.seen) < maxDedupeEntries {
				break
			}
			delete(d.seen, k)
		}
	}

	d.seen[key] = now
	return true
}

func (d *Dispatcher) recordAttempt(channel string, outcome Outcome) {
	if d.metrics != nil {
		d.metrics.AlertAttempts.WithLabelValues(channel, string(outcome)).Inc()
	}
}
