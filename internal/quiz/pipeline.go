package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/studia-app/engine/internal/events"
	"github.com/studia-app/engine/internal/gaps"
	"github.com/studia-app/engine/internal/mastery"
	"github.com/studia-app/engine/internal/store"
)

// Grader is the external collaborator that scores free-response answers.
// A boolean verdict is the only contract surface; the prompt/response
// protocol behind it is out of the engine's scope.
type Grader interface {
	Grade(ctx context.Context, q Question, learnerAnswer string) (bool, error)
}

// GradingError marks a free-response question whose external grading
// failed. It is surfaced inside the Result, never as a submission failure.
type GradingError struct {
	QuestionID string
	Err        error
}

func (e *GradingError) Error() string {
	return fmt.Sprintf("grade question %s: %v", e.QuestionID, e.Err)
}

func (e *GradingError) Unwrap() error { return e.Err }

// ErrNilQuiz is returned when Submit is called without a quiz.
var ErrNilQuiz = errors.New("submit: nil quiz")

// PipelineConfig tunes grading side effects.
type PipelineConfig struct {
	// PoorBelow: scores at or below this publish QuizPerformancePoor.
	PoorBelow float64

	// ExcellentAt: scores at or above this publish QuizPerformanceExcellent.
	ExcellentAt float64
}

// DefaultPipelineConfig returns a PipelineConfig with sensible defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{PoorBelow: 0.4, ExcellentAt: 0.9}
}

// Pipeline grades quiz submissions. It is the only write path into the
// mastery store: every graded question records its outcome, then the gap
// detector evaluates the concept on exactly the state that update
// produced.
type Pipeline struct {
	mastery  *mastery.Store
	detector *gaps.Detector
	grader   Grader
	bus      *events.Bus
	audit    store.AuditRepo
	cfg      PipelineConfig

	// conceptLocks serializes record+evaluate per concept so concurrent
	// submissions cannot interleave a stale evaluation between another
	// submission's update and its evaluation.
	conceptLocks sync.Map // concept -> *sync.Mutex
}

// NewPipeline creates a grading pipeline. grader and audit may be nil:
// without a grader, free-response questions are marked ungraded; without
// an audit repo, updates are not journaled.
func NewPipeline(m *mastery.Store, d *gaps.Detector, grader Grader, bus *events.Bus, audit store.AuditRepo, cfg PipelineConfig) *Pipeline {
	if cfg.PoorBelow == 0 && cfg.ExcellentAt == 0 {
		cfg = DefaultPipelineConfig()
	}
	return &Pipeline{
		mastery:  m,
		detector: d,
		grader:   grader,
		bus:      bus,
		audit:    audit,
		cfg:      cfg,
	}
}

// Submit grades every answer, updates mastery, re-evaluates gaps and
// returns a consistent result: the Result is built only after all
// per-question updates and evaluations completed.
//
// Grading failures never fail the submission; the affected question is
// marked ungraded and contributes to the total but not the score. If the
// caller cancels mid-submission, updates already committed stay committed:
// mastery signal that landed is real signal even when the quiz as a whole
// was abandoned.
func (p *Pipeline) Submit(ctx context.Context, qz *Quiz, answers map[string]string) (*Result, error) {
	if qz == nil {
		return nil, ErrNilQuiz
	}

	result := &Result{QuizID: qz.ID}

	for _, q := range qz.Questions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		answer := answers[q.ID]
		qr := QuestionResult{QuestionID: q.ID, Concept: q.Concept, Answer: answer}

		if q.FreeResponse() {
			qr.Correct, qr.Ungraded, qr.GradeErr = p.gradeFree(ctx, q, answer)
		} else {
			qr.Correct = matchChoice(answer, q)
		}

		if !qr.Ungraded {
			change := p.apply(ctx, q, qr.Correct)
			if change != nil && (change.Action == gaps.ActionDetected || change.Action == gaps.ActionEscalated) {
				result.DetectedGaps = append(result.DetectedGaps, change.Gap)
			}
			if qr.Correct {
				result.CorrectCount++
			}
		}

		result.Questions = append(result.Questions, qr)
	}

	if total := len(result.Questions); total > 0 {
		result.Score = float64(result.CorrectCount) / float64(total)
	}

	p.publishExtremes(result)
	return result, nil
}

// gradeFree scores one free-response answer via the external grader.
func (p *Pipeline) gradeFree(ctx context.Context, q Question, answer string) (correct, ungraded bool, gradeErr error) {
	if p.grader == nil {
		return false, true, nil
	}
	verdict, err := p.grader.Grade(ctx, q, answer)
	if err != nil {
		// Recovered locally: the question is marked ungraded and the
		// submission proceeds; the typed error rides along in the result.
		return false, true, &GradingError{QuestionID: q.ID, Err: err}
	}
	return verdict, false, nil
}

// apply serializes the mastery update and gap evaluation for a concept.
func (p *Pipeline) apply(ctx context.Context, q Question, correct bool) *gaps.Change {
	mu, _ := p.conceptLocks.LoadOrStore(q.Concept, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	rec := p.mastery.Record(q.Concept, correct, q.Difficulty)

	if p.audit != nil {
		_ = p.audit.AppendMasteryEvent(ctx, store.MasteryEventData{
			Concept:    q.Concept,
			Correct:    correct,
			Difficulty: string(q.Difficulty),
			Level:      rec.Level,
		})
	}

	return p.detector.Evaluate(ctx, rec)
}

func (p *Pipeline) publishExtremes(r *Result) {
	if p.bus == nil || len(r.Questions) == 0 {
		return
	}
	switch {
	case r.Score <= p.cfg.PoorBelow:
		p.bus.Publish(events.QuizPerformancePoor{QuizID: r.QuizID, Score: r.Score})
	case r.Score >= p.cfg.ExcellentAt:
		p.bus.Publish(events.QuizPerformanceExcellent{QuizID: r.QuizID, Score: r.Score})
	}
}
