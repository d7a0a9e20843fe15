package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/studia-app/engine/internal/events"
)

// Status is the connection state of a live session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Config tunes live session behavior.
type Config struct {
	// ConnectTimeout bounds how long a connect attempt may hang before
	// it fails over to disconnected.
	ConnectTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{ConnectTimeout: 10 * time.Second}
}

// State is an observable copy of the session's runtime state.
type State struct {
	LearnerID          string
	LessonID           string
	Status             Status
	OutstandingActions []string
	LastProgress       int
}

// Session is the long-lived bidirectional channel for one learner and
// lesson. It carries lesson/progress/question traffic out and publishes
// struggle, mastery, gap and suggestion notifications inbound from the
// transport verbatim onto the event bus.
//
// The session never auto-retries: a dropped connection lands in
// disconnected and reconnection is caller-initiated, so a flaky backend
// cannot trigger silent background reconnect storms.
type Session struct {
	transport Transport
	bus       *events.Bus
	cfg       Config

	mu         sync.Mutex
	state      State
	conn       Conn
	askPending bool

	// sendMu serializes outbound writes: the Conn contract permits one
	// writer at a time, and the websocket implementation panics on
	// concurrent writes.
	sendMu sync.Mutex

	// gen identifies the current connection; a receive loop from a
	// superseded connection must not report failures for the new one.
	gen int
}

// NewSession creates a disconnected session over the given transport.
func NewSession(transport Transport, bus *events.Bus, cfg Config) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	return &Session{
		transport: transport,
		bus:       bus,
		cfg:       cfg,
		state:     State{Status: StatusDisconnected},
	}
}

// State returns a copy of the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.OutstandingActions = append([]string(nil), s.state.OutstandingActions...)
	return st
}

// Connect opens the transport for the learner. Valid from disconnected
// and connected (reconnect); a connect already in flight is rejected.
// The attempt is bounded by the configured timeout; on failure the
// session lands in disconnected and a ConnectionFailed event is
// published alongside the returned error.
func (s *Session) Connect(ctx context.Context, learnerID string) error {
	s.mu.Lock()
	if s.state.Status == StatusConnecting {
		s.mu.Unlock()
		return &InvalidStateError{Op: "connect", Status: StatusConnecting}
	}
	if s.conn != nil {
		// Reconnect: retire the old connection first.
		s.teardownLocked()
	}
	s.state.Status = StatusConnecting
	s.state.LearnerID = learnerID
	s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conn, err := s.transport.Open(dialCtx, learnerID)
	if err != nil {
		s.mu.Lock()
		s.state.Status = StatusDisconnected
		s.mu.Unlock()
		s.bus.Publish(events.ConnectionFailed{LearnerID: learnerID, Reason: err.Error()})
		return &ConnectionError{LearnerID: learnerID, Op: "connect", Err: err}
	}

	s.mu.Lock()
	s.conn = conn
	s.gen++
	gen := s.gen
	s.state.Status = StatusConnected
	lessonID := s.state.LessonID
	s.mu.Unlock()

	// Flush the buffered lesson now that the channel is up. A failure
	// here means the connect attempt never usefully completed, so it
	// reports as ConnectionFailed rather than a lost connection.
	if lessonID != "" {
		s.sendMu.Lock()
		err := conn.Send(Frame{Kind: FrameSetLesson, LessonID: lessonID})
		s.sendMu.Unlock()
		if err != nil {
			s.mu.Lock()
			if gen == s.gen {
				s.teardownLocked()
			}
			s.mu.Unlock()
			s.bus.Publish(events.ConnectionFailed{LearnerID: learnerID, Reason: err.Error()})
			return &ConnectionError{LearnerID: learnerID, Op: "connect", Err: err}
		}
	}

	go s.receiveLoop(conn, gen, learnerID)
	return nil
}

// SetCurrentLesson records the active lesson. Valid in any state: the
// lesson id is buffered and sent as soon as the session is connected.
func (s *Session) SetCurrentLesson(lessonID string) error {
	s.mu.Lock()
	s.state.LessonID = lessonID
	connected := s.state.Status == StatusConnected
	s.mu.Unlock()

	if !connected {
		return nil
	}
	return s.send(Frame{Kind: FrameSetLesson, LessonID: lessonID})
}

// ReportProgress sends the learner's progress percentage. Fire-and-forget
// with last-value-wins semantics; duplicate or out-of-order reports are
// idempotent. Rejected synchronously when not connected — no silent
// queueing, and LastProgress is left untouched.
func (s *Session) ReportProgress(percent int) error {
	s.mu.Lock()
	if s.state.Status != StatusConnected {
		status := s.state.Status
		s.mu.Unlock()
		return &InvalidStateError{Op: "reportProgress", Status: status}
	}
	s.mu.Unlock()

	if err := s.send(Frame{Kind: FrameProgress, Percent: percent}); err != nil {
		return err
	}

	s.mu.Lock()
	s.state.LastProgress = percent
	s.mu.Unlock()
	return nil
}

// AskQuestion sends a free-form question to the tutor. Non-blocking: the
// answer, if any, arrives later as a TutorAnswer event. One question may
// be in flight at a time; asking again before the answer arrives is
// rejected, since the transport carries no correlation ids to match
// concurrent answers to their askers.
func (s *Session) AskQuestion(text string) error {
	s.mu.Lock()
	if s.state.Status != StatusConnected {
		status := s.state.Status
		s.mu.Unlock()
		return &InvalidStateError{Op: "askQuestion", Status: status}
	}
	if s.askPending {
		s.mu.Unlock()
		return &InvalidStateError{Op: "askQuestion", Status: StatusConnected}
	}
	s.askPending = true
	s.mu.Unlock()

	if err := s.send(Frame{Kind: FrameQuestion, Text: text}); err != nil {
		s.mu.Lock()
		s.askPending = false
		s.mu.Unlock()
		return err
	}
	return nil
}

// Disconnect tears the session down. Valid from any state; outstanding
// suggested actions do not survive into the next connection.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

func (s *Session) teardownLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.gen++
	s.state.Status = StatusDisconnected
	s.state.OutstandingActions = nil
	s.askPending = false
}

// send writes one frame on the current connection. A failed send is a
// transport failure: the session drops to disconnected and the loss is
// reported once on the bus.
func (s *Session) send(f Frame) error {
	s.mu.Lock()
	conn := s.conn
	learnerID := s.state.LearnerID
	s.mu.Unlock()

	if conn == nil {
		return &InvalidStateError{Op: f.Kind, Status: StatusDisconnected}
	}

	s.sendMu.Lock()
	err := conn.Send(f)
	s.sendMu.Unlock()
	if err != nil {
		s.handleFailure(learnerID, err)
		return &ConnectionError{LearnerID: learnerID, Op: f.Kind, Err: err}
	}
	return nil
}

// handleFailure transitions to disconnected after a transport error and
// publishes ConnectionLost once. Later failures from the same dead
// connection (send and receive racing to report) are ignored.
func (s *Session) handleFailure(learnerID string, err error) {
	s.mu.Lock()
	if s.state.Status != StatusConnected {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.mu.Unlock()

	s.bus.Publish(events.ConnectionLost{LearnerID: learnerID, Reason: err.Error()})
}

// receiveLoop pumps inbound frames to the bus until the connection dies.
func (s *Session) receiveLoop(conn Conn, gen int, learnerID string) {
	for {
		f, err := conn.Receive()
		if err != nil {
			s.mu.Lock()
			stale := gen != s.gen
			s.mu.Unlock()
			if stale {
				// Superseded by Disconnect or a reconnect; this Close
				// is expected and not a connection loss.
				return
			}
			s.handleFailure(learnerID, err)
			return
		}
		s.handleInbound(f)
	}
}

// handleInbound publishes one inbound frame verbatim as its typed event,
// in the order received. Unknown kinds are dropped rather than guessed at.
func (s *Session) handleInbound(f Frame) {
	switch f.Kind {
	case FrameStruggle:
		s.bus.Publish(events.StruggleDetected{Concept: f.Concept})

	case FrameMastered:
		s.bus.Publish(events.ConceptMastered{Concept: f.Concept, Achievement: f.Achievement})

	case FrameGap:
		s.bus.Publish(events.GapDetected{Concept: f.Concept, Severity: f.Severity})

	case FrameQuizPerformance:
		if f.Rating == "excellent" {
			s.bus.Publish(events.QuizPerformanceExcellent{})
		} else {
			s.bus.Publish(events.QuizPerformancePoor{})
		}

	case FrameSuggestions:
		s.mu.Lock()
		s.state.OutstandingActions = append([]string(nil), f.Suggestions...)
		s.mu.Unlock()
		s.bus.Publish(events.SuggestedActions{Actions: append([]string(nil), f.Suggestions...)})

	case FrameAnswer:
		s.mu.Lock()
		s.askPending = false
		s.mu.Unlock()
		s.bus.Publish(events.TutorAnswer{Text: f.Text})
	}
}

// IsRetryable reports whether err is a connection error the caller may
// recover from by reconnecting.
func IsRetryable(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
