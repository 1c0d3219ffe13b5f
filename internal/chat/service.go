package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/havenmind/haven/internal/alert"
	"github.com/havenmind/haven/internal/crisis"
	"github.com/havenmind/haven/internal/session"
)

// Dispatcher delivers crisis alerts. Satisfied by *alert.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, p alert.Payload) []alert.Attempt
}

// Request is one user message in a session.
type Request struct {
	SessionID uuid.UUID
	UserID    string
	UserName  string
	Location  string
	Query     string
}

// Response is the service's reply.
type Response struct {
	Reply     string
	Rationale string
	Citations []Citation
}

// ServiceConfig tunes the service.
type ServiceConfig struct {
	// MaxHistory is how many prior messages feed the model.
	MaxHistory int32
}

// Service orchestrates one chat turn: crisis screening and answer
// generation run concurrently; a high-severity verdict replaces the
// generated reply with the fixed crisis response and dispatches an
// alert in the background.
type Service struct {
	pipeline   *Pipeline
	detector   *crisis.Detector
	dispatcher Dispatcher
	sessions   *session.Store
	maxHistory int32
	logger     *slog.Logger

	wg sync.WaitGroup
}

// NewService wires the chat service. dispatcher may be nil to disable
// alerting (tests, local development).
func NewService(pipeline *Pipeline, detector *crisis.Detector, dispatcher Dispatcher, sessions *session.Store, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 10
	}
	return &Service{
		pipeline:   pipeline,
		detector:   detector,
		dispatcher: dispatcher,
		sessions:   sessions,
		maxHistory: maxHistory,
		logger:     logger,
	}
}

// Respond handles one user message end to end.
//
// The crisis screen and the answer pipeline run concurrently; the
// screen's outcome decides which reply the user sees. Alert dispatch is
// fire-and-forget on a detached context so a cancelled request cannot
// abort a safety notification.
func (s *Service) Respond(ctx context.Context, req Request) (Response, error) {
	history, err := s.sessions.History(ctx, req.SessionID, s.maxHistory)
	if err != nil {
		return Response{}, fmt.Errorf("loading history: %w", err)
	}

	userMsg, err := s.sessions.Append(ctx, req.SessionID, session.RoleUser, req.Query)
	if err != nil {
		return Response{}, fmt.Errorf("storing message: %w", err)
	}

	type answerResult struct {
		answer Answer
		err    error
	}
	answerCh := make(chan answerResult, 1)
	go func() {
		a, err := s.pipeline.Answer(ctx, history, req.Query)
		answerCh <- answerResult{answer: a, err: err}
	}()

	verdict := s.detector.Evaluate(ctx, req.Query)

	var resp Response
	if verdict.Detected && verdict.Severity >= crisis.SeverityHigh {
		// The canned reply always wins over the generated one; drain the
		// pipeline result without using it.
		go func() { <-answerCh }()

		resp = Response{Reply: crisisReply, Rationale: verdict.Reason}
		s.dispatchAlert(req, userMsg.ID, verdict)
	} else {
		result := <-answerCh
		if result.err != nil {
			return Response{}, result.err
		}
		resp = Response{
			Reply:     result.answer.Reply,
			Rationale: result.answer.Rationale,
			Citations: result.answer.Citations,
		}
	}

	// Reply persistence is best-effort; the user already has the
	// response in hand.
	if _, err := s.sessions.Append(ctx, req.SessionID, session.RoleAssistant, resp.Reply); err != nil {
		s.logger.Warn("failed to store assistant reply",
			"session_id", req.SessionID, "error", err)
	}
	return resp, nil
}

// Ready reports whether semantic crisis scanning is online.
func (s *Service) Ready() bool {
	return s.detector.Ready()
}

// dispatchAlert sends the crisis alert in the background. The detached
// context survives the request; the dispatcher applies its own timeout.
func (s *Service) dispatchAlert(req Request, messageID uuid.UUID, verdict crisis.Verdict) {
	if s.dispatcher == nil {
		s.logger.Warn("crisis detected but no alert dispatcher configured",
			"session_id", req.SessionID)
		return
	}

	payload := alert.Payload{
		SessionID: req.SessionID.String(),
		MessageID: messageID.String(),
		UserName:  req.UserName,
		Location:  req.Location,
		Reason:    verdict.Reason,
		Snippet:   req.Query,
		Severity:  verdict.Severity,
		Timestamp: time.Now().UTC(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatcher.Dispatch(context.Background(), payload)
	}()
}

// Close waits for in-flight alert dispatches to finish.
func (s *Service) Close() {
	s.wg.Wait()
}
