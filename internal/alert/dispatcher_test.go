package alert

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenmind/haven/internal/log"
	"github.com/havenmind/haven/internal/metrics"
)

// stubChannel is a scriptable Channel for dispatcher tests.
type stubChannel struct {
	name       string
	configured bool
	err        error
	sent       []Payload
}

func (s *stubChannel) Name() string     { return s.name }
func (s *stubChannel) Configured() bool { return s.configured }
func (s *stubChannel) Send(_ context.Context, p Payload) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, p)
	return nil
}

func TestDispatcherStopsAtFirstSuccess(t *testing.T) {
	primary := &stubChannel{name: "twilio_sms", configured: true}
	fallback := &stubChannel{name: "telegram", configured: true}
	d := NewDispatcher([]Channel{primary, fallback}, time.Second, nil, log.NewNop())

	attempts := d.Dispatch(context.Background(), testPayload())

	require.Len(t, attempts, 1)
	assert.Equal(t, "twilio_sms", attempts[0].Channel)
	assert.Equal(t, OutcomeSent, attempts[0].Outcome)
	assert.Len(t, primary.sent, 1)
	assert.Empty(t, fallback.sent)
}

func TestDispatcherFallsBackOnFailure(t *testing.T) {
	primary := &stubChannel{name: "twilio_sms", configured: true, err: errors.New("twilio returned 500")}
	fallback := &stubChannel{name: "telegram", configured: true}
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher([]Channel{primary, fallback}, time.Second, m, log.NewNop())

	attempts := d.Dispatch(context.Background(), testPayload())

	require.Len(t, attempts, 2)
	assert.Equal(t, OutcomeFailed, attempts[0].Outcome)
	assert.ErrorContains(t, attempts[0].Err, "twilio returned 500")
	assert.Equal(t, OutcomeSent, attempts[1].Outcome)
	assert.Len(t, fallback.sent, 1)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.AlertAttempts.WithLabelValues("twilio_sms", "failed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.AlertAttempts.WithLabelValues("telegram", "sent")))
}

func TestDispatcherSkipsUnconfiguredChannel(t *testing.T) {
	primary := &stubChannel{name: "twilio_sms", configured: false}
	fallback := &stubChannel{name: "telegram", configured: true}
	d := NewDispatcher([]Channel{primary, fallback}, time.Second, nil, log.NewNop())

	attempts := d.Dispatch(context.Background(), testPayload())

	require.Len(t, attempts, 2)
	assert.Equal(t, OutcomeFailed, attempts[0].Outcome)
	assert.ErrorIs(t, attempts[0].Err, ErrNotConfigured)
	assert.Equal(t, OutcomeSent, attempts[1].Outcome)
}

func TestDispatcherAllChannelsFail(t *testing.T) {
	primary := &stubChannel{name: "twilio_sms", configured: true, err: errors.New("boom")}
	fallback := &stubChannel{name: "telegram", configured: true, err: errors.New("also boom")}
	d := NewDispatcher([]Channel{primary, fallback}, time.Second, nil, log.NewNop())

	attempts := d.Dispatch(context.Background(), testPayload())

	require.Len(t, attempts, 2)
	for _, a := range attempts {
		assert.Equal(t, OutcomeFailed, a.Outcome)
	}
}

func TestDispatcherSuppressesDuplicates(t *testing.T) {
	ch := &stubChannel{name: "twilio_sms", configured: true}
	d := NewDispatcher([]Channel{ch}, time.Second, nil, log.NewNop())

	p := testPayload()
	require.Len(t, d.Dispatch(context.Background(), p), 1)
	assert.Nil(t, d.Dispatch(context.Background(), p))
	assert.Len(t, ch.sent, 1)

	// A different message in the same session is not a duplicate.
	p2 := p
	p2.MessageID = "msg-2"
	require.Len(t, d.Dispatch(context.Background(), p2), 1)
	assert.Len(t, ch.sent, 2)
}

func TestDispatcherDedupeTableBounded(t *testing.T) {
	ch := &stubChannel{name: "twilio_sms", configured: true}
	d := NewDispatcher([]Channel{ch}, time.Second, nil, log.NewNop())

	for i := 0; i < maxDedupeEntries+100; i++ {
		d.markDispatched("sess/" + strconv.Itoa(i))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	assert.LessOrEqual(t, len(d.seen), maxDedupeEntries+1)
}
