package quiz

import (
	"time"

	"github.com/google/uuid"

	"github.com/studia-app/engine/internal/gaps"
	"github.com/studia-app/engine/internal/mastery"
)

// GeneratorConfig tunes adaptive quiz generation.
type GeneratorConfig struct {
	// MaxQuestions caps how many gap concepts one quiz targets.
	MaxQuestions int
}

// DefaultGeneratorConfig returns a GeneratorConfig with sensible defaults.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{MaxQuestions: 5}
}

// Generator builds small, targeted quizzes from the lesson's open gaps.
type Generator struct {
	bank     QuestionBank
	mastery  *mastery.Store
	detector *gaps.Detector
	cfg      GeneratorConfig
}

// NewGenerator creates an adaptive quiz generator.
func NewGenerator(bank QuestionBank, m *mastery.Store, d *gaps.Detector, cfg GeneratorConfig) *Generator {
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = DefaultGeneratorConfig().MaxQuestions
	}
	return &Generator{bank: bank, mastery: m, detector: d, cfg: cfg}
}

// Generate builds a quiz targeting the unresolved gaps among the lesson's
// concepts, most severe first, one question per gap concept up to the cap.
// Each question is drawn one difficulty band below the learner's apparent
// level for the concept, rebuilding confidence before retesting at level.
//
// Returns nil when no unresolved gap touches the lesson: the caller falls
// back to the lesson's authored quiz or simply continues. Concepts with no
// banked questions are skipped; a shorter quiz is returned rather than
// fabricated content.
func (g *Generator) Generate(lesson Lesson) *Quiz {
	touched := make(map[string]bool, len(lesson.Concepts))
	for _, c := range lesson.Concepts {
		touched[c] = true
	}

	var targeted []gaps.Gap
	for _, gap := range g.detector.Unresolved() {
		if touched[gap.Concept] {
			targeted = append(targeted, gap)
		}
	}
	if len(targeted) == 0 {
		return nil
	}
	if len(targeted) > g.cfg.MaxQuestions {
		targeted = targeted[:g.cfg.MaxQuestions]
	}

	used := make(map[string]bool)
	var (
		questions   []Question
		gapConcepts []string
	)
	for _, gap := range targeted {
		rec := g.mastery.Get(gap.Concept)
		difficulty := mastery.StepDown(rec.ApparentDifficulty())

		q, ok := g.bank.Pick(gap.Concept, difficulty, used)
		if !ok {
			continue
		}
		used[q.ID] = true
		questions = append(questions, q)
		gapConcepts = append(gapConcepts, gap.Concept)
	}
	if len(questions) == 0 {
		return nil
	}

	return &Quiz{
		ID:          uuid.NewString(),
		Questions:   questions,
		LessonID:    lesson.ID,
		GapConcepts: gapConcepts,
		CreatedAt:   time.Now().UTC(),
	}
}

// GenerateReview builds a retention-check quiz for concepts due for
// review. Unlike gap remediation, questions are drawn at the learner's
// apparent difficulty: a review probes whether mastery held, it does not
// rebuild confidence. Concepts with no banked questions are skipped;
// returns nil when nothing can be asked.
func (g *Generator) GenerateReview(concepts []string) *Quiz {
	if len(concepts) > g.cfg.MaxQuestions {
		concepts = concepts[:g.cfg.MaxQuestions]
	}

	used := make(map[string]bool)
	var (
		questions []Question
		reviewed  []string
	)
	for _, concept := range concepts {
		rec := g.mastery.Get(concept)

		q, ok := g.bank.Pick(concept, rec.ApparentDifficulty(), used)
		if !ok {
			continue
		}
		used[q.ID] = true
		questions = append(questions, q)
		reviewed = append(reviewed, concept)
	}
	if len(questions) == 0 {
		return nil
	}

	return &Quiz{
		ID:             uuid.NewString(),
		Questions:      questions,
		ReviewConcepts: reviewed,
		CreatedAt:      time.Now().UTC(),
	}
}
