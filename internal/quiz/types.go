package quiz

import (
	"time"

	"github.com/studia-app/engine/internal/gaps"
	"github.com/studia-app/engine/internal/mastery"
)

// Question is one quiz question ready for display.
type Question struct {
	// ID uniquely identifies the question within the bank.
	ID string

	// Concept attributes the question to a concept for mastery scoring.
	Concept string

	// Prompt is the question text displayed to the learner.
	Prompt string

	// Options holds the ordered multiple-choice options. Empty for
	// free-response questions.
	Options []string

	// Answer is the canonical correct answer. For multiple choice it
	// matches one of Options.
	Answer string

	// Explanation is a brief worked solution shown after answering.
	Explanation string

	// Difficulty is the band this question is pitched at.
	Difficulty mastery.Difficulty
}

// FreeResponse reports whether the question has no fixed options and must
// be graded by the external grading collaborator.
func (q Question) FreeResponse() bool {
	return len(q.Options) == 0
}

// Lesson identifies the lesson being studied and the concepts it touches.
type Lesson struct {
	ID       string
	Concepts []string
}

// Quiz is an ordered set of questions. Immutable once created.
type Quiz struct {
	ID string

	// Questions are ordered most-severe-gap first for adaptive quizzes.
	Questions []Question

	// LessonID is the lesson this quiz was generated for.
	LessonID string

	// GapConcepts lists the gap concepts that triggered generation.
	// Empty for non-adaptive quizzes.
	GapConcepts []string

	// ReviewConcepts lists the due-for-review concepts this quiz probes.
	// Empty outside review quizzes.
	ReviewConcepts []string

	CreatedAt time.Time
}

// QuestionResult is the graded outcome for one question.
type QuestionResult struct {
	QuestionID string
	Concept    string
	Answer     string

	// Correct is the grading verdict. Always false when Ungraded.
	Correct bool

	// Ungraded marks a free-response question whose external grading
	// failed; it contributes to the total but never to the score.
	Ungraded bool

	// GradeErr holds the typed *GradingError when Ungraded was caused
	// by a grader failure (nil when no grader was configured).
	GradeErr error
}

// Result is the immutable outcome of one quiz submission, produced only
// after every per-question mastery update and gap evaluation completed.
type Result struct {
	QuizID    string
	Questions []QuestionResult

	CorrectCount int

	// Score is CorrectCount over the total question count.
	Score float64

	// DetectedGaps lists gaps this submission newly detected or
	// escalated, in question order.
	DetectedGaps []gaps.Gap
}
