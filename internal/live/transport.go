package live

import "context"

// Frame kinds sent to the tutoring backend.
const (
	FrameSetLesson = "setLesson"
	FrameProgress  = "progress"
	FrameQuestion  = "question"
)

// Frame kinds received from the tutoring backend.
const (
	FrameStruggle        = "struggle"
	FrameMastered        = "mastered"
	FrameGap             = "gap"
	FrameQuizPerformance = "quizPerformance"
	FrameSuggestions     = "suggestions"
	FrameAnswer          = "answer"
)

// Frame is one JSON message on the live channel. Kind selects which
// payload fields are meaningful.
type Frame struct {
	Kind string `json:"kind"`

	LessonID    string   `json:"lesson_id,omitempty"`
	Percent     int      `json:"percent,omitempty"`
	Text        string   `json:"text,omitempty"`
	Concept     string   `json:"concept,omitempty"`
	Severity    string   `json:"severity,omitempty"`
	Achievement string   `json:"achievement,omitempty"`
	Rating      string   `json:"rating,omitempty"` // "poor" or "excellent"
	Suggestions []string `json:"suggestions,omitempty"`
}

// Conn is one open bidirectional channel to the tutoring backend.
type Conn interface {
	// Send writes a frame. Safe for use from one goroutine at a time.
	Send(Frame) error

	// Receive blocks until the next inbound frame or a transport error.
	Receive() (Frame, error)

	Close() error
}

// Transport opens persistent bidirectional message channels keyed by
// learner id.
type Transport interface {
	Open(ctx context.Context, learnerID string) (Conn, error)
}
