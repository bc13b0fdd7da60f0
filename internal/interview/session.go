package interview

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/apperr"
	"github.com/rbright/rehearse/internal/logging"
	"github.com/rbright/rehearse/internal/report"
	"github.com/rbright/rehearse/internal/transcript"
)

var (
	ErrSessionEnded = errors.New("interview has ended")
	ErrTurnInFlight = errors.New("a request is already in flight for this interview")
)

// Exchanger is the remote half of a session.
type Exchanger interface {
	Turn(ctx context.Context, sessionID string, answer string) (string, error)
	End(ctx context.Context, sessionID string) (report.Feedback, error)
}

// Reply is the interviewer's answer to one submitted turn.
type Reply struct {
	Text  string
	Index int
}

// Session is the client-side state of one interview. Turns are strictly
// request/response; at most one remote call is in flight.
type Session struct {
	id       string
	exchange Exchanger
	log      *transcript.Log
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight bool
	ended    bool
	feedback *report.Feedback
}

// NewSession adopts an issued session id. A non-empty opening message is
// appended as the first interviewer utterance.
func NewSession(opening Opening, exchange Exchanger, log *transcript.Log, logger *slog.Logger) *Session {
	if log == nil {
		log = transcript.NewLog()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if strings.TrimSpace(opening.Message) != "" {
		log.Append(transcript.Utterance{Speaker: transcript.Interviewer, Text: opening.Message})
	}
	return &Session{
		id:       opening.SessionID,
		exchange: exchange,
		log:      log,
		logger:   logger.With("session_id", opening.SessionID),
	}
}

// Begin starts a remote interview and wraps it in a Session.
func (c *Client) Begin(ctx context.Context, req StartRequest, log *transcript.Log) (*Session, error) {
	opening, err := c.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return NewSession(opening, c, log, c.logger), nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Transcript() *transcript.Log {
	return s.log
}

func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Busy reports whether a turn or end call is outstanding.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Feedback returns the stored end-of-interview feedback, if any.
func (s *Session) Feedback() (report.Feedback, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feedback == nil {
		return report.Feedback{}, false
	}
	return *s.feedback, true
}

// SubmitTurn appends the answer optimistically, sends it, and appends the
// reply. On failure the candidate utterance is rolled back so the same text
// can be resubmitted.
func (s *Session) SubmitTurn(ctx context.Context, answer string) (Reply, error) {
	if strings.TrimSpace(answer) == "" {
		return Reply{}, apperr.Validation("Please provide an answer")
	}
	if err := s.acquire(); err != nil {
		return Reply{}, err
	}
	defer s.release()

	s.log.Append(transcript.Utterance{Speaker: transcript.Candidate, Text: answer})

	startedAt := time.Now()
	text, err := s.exchange.Turn(ctx, s.id, answer)
	if err != nil {
		rolledBack := s.log.RollbackLast(transcript.Candidate)
		s.logger.Error("interview turn failed",
			"error", err,
			"rolled_back", rolledBack,
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
		return Reply{}, apperr.Network("Failed to get interviewer response", err)
	}

	index := s.log.Append(transcript.Utterance{Speaker: transcript.Interviewer, Text: text})
	s.logger.Debug("interview turn complete",
		"answer_chars", len(answer),
		"reply_chars", len(text),
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)
	return Reply{Text: text, Index: index}, nil
}

// End requests final feedback. Success is terminal; repeated calls return the
// stored feedback without a network call. Failure leaves the session active.
func (s *Session) End(ctx context.Context) (report.Feedback, error) {
	s.mu.Lock()
	if s.ended && s.feedback != nil {
		feedback := *s.feedback
		s.mu.Unlock()
		return feedback, nil
	}
	if s.inFlight {
		s.mu.Unlock()
		return report.Feedback{}, ErrTurnInFlight
	}
	s.inFlight = true
	s.mu.Unlock()
	defer s.release()

	feedback, err := s.exchange.End(ctx, s.id)
	if err != nil {
		s.logger.Error("interview end failed", "error", err)
		return report.Feedback{}, apperr.Network("Failed to get final feedback", err)
	}

	s.mu.Lock()
	s.ended = true
	s.feedback = &feedback
	s.mu.Unlock()

	s.logger.Info("interview ended", "turns", s.log.Len())
	return feedback, nil
}

func (s *Session) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionEnded
	}
	if s.inFlight {
		return ErrTurnInFlight
	}
	s.inFlight = true
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}
