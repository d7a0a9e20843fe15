package events

// Kind identifies an event type on the bus.
type Kind string

const (
	KindGapDetected              Kind = "gap_detected"
	KindGapResolved              Kind = "gap_resolved"
	KindConceptMastered          Kind = "concept_mastered"
	KindConceptRusty             Kind = "concept_rusty"
	KindStruggleDetected         Kind = "struggle_detected"
	KindQuizPerformancePoor      Kind = "quiz_performance_poor"
	KindQuizPerformanceExcellent Kind = "quiz_performance_excellent"
	KindSuggestedActions         Kind = "suggested_actions"
	KindTutorAnswer              Kind = "tutor_answer"
	KindConnectionLost           Kind = "connection_lost"
	KindConnectionFailed         Kind = "connection_failed"
)

// Event is the interface implemented by all bus events.
// Each kind carries its own strongly-typed payload struct; consumers
// type-switch on the concrete type rather than digging through maps.
type Event interface {
	Kind() Kind
}

// GapDetected is published when a knowledge gap is first detected for a
// concept, or when an existing gap changes severity.
type GapDetected struct {
	Concept  string
	Severity string
}

func (GapDetected) Kind() Kind { return KindGapDetected }

// GapResolved is published when a concept's unresolved gap recovers.
type GapResolved struct {
	Concept string
}

func (GapResolved) Kind() Kind { return KindGapResolved }

// ConceptMastered is published when a concept's mastery level crosses the
// mastered threshold, or when the live transport reports an achievement.
type ConceptMastered struct {
	Concept     string
	Achievement string
}

func (ConceptMastered) Kind() Kind { return KindConceptMastered }

// ConceptRusty is published when a mastered concept misses its review
// window and is flagged for re-practice.
type ConceptRusty struct {
	Concept string
}

func (ConceptRusty) Kind() Kind { return KindConceptRusty }

// StruggleDetected is pushed by the live transport when the remote tutor
// believes the learner is struggling with a concept.
type StruggleDetected struct {
	Concept string
}

func (StruggleDetected) Kind() Kind { return KindStruggleDetected }

// QuizPerformancePoor is published when a submission scores at or below
// the poor threshold.
type QuizPerformancePoor struct {
	QuizID string
	Score  float64
}

func (QuizPerformancePoor) Kind() Kind { return KindQuizPerformancePoor }

// QuizPerformanceExcellent is published when a submission scores at or
// above the excellent threshold.
type QuizPerformanceExcellent struct {
	QuizID string
	Score  float64
}

func (QuizPerformanceExcellent) Kind() Kind { return KindQuizPerformanceExcellent }

// SuggestedActions carries tutor-suggested next steps from the live
// transport.
type SuggestedActions struct {
	Actions []string
}

func (SuggestedActions) Kind() Kind { return KindSuggestedActions }

// TutorAnswer is the asynchronous reply to a previously asked question.
type TutorAnswer struct {
	Text string
}

func (TutorAnswer) Kind() Kind { return KindTutorAnswer }

// ConnectionLost is published once when an established live connection
// drops.
type ConnectionLost struct {
	LearnerID string
	Reason    string
}

func (ConnectionLost) Kind() Kind { return KindConnectionLost }

// ConnectionFailed is published when a connection attempt does not reach
// the connected state.
type ConnectionFailed struct {
	LearnerID string
	Reason    string
}

func (ConnectionFailed) Kind() Kind { return KindConnectionFailed }
