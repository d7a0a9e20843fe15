package quiz

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studia-app/engine/internal/events"
	"github.com/studia-app/engine/internal/gaps"
	"github.com/studia-app/engine/internal/mastery"
)

type stubGrader struct {
	mu      sync.Mutex
	verdict bool
	err     error
	calls   int
}

func (g *stubGrader) Grade(_ context.Context, _ Question, _ string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.verdict, g.err
}

type pipeFixture struct {
	mastery  *mastery.Store
	detector *gaps.Detector
	bus      *events.Bus
	grader   *stubGrader
	pipeline *Pipeline
}

func newPipeFixture() *pipeFixture {
	bus := events.NewBus()
	m := mastery.NewStore(mastery.DefaultConfig(), nil)
	d := gaps.NewDetector(gaps.DefaultConfig(), bus, nil, nil)
	g := &stubGrader{verdict: true}
	return &pipeFixture{
		mastery:  m,
		detector: d,
		bus:      bus,
		grader:   g,
		pipeline: NewPipeline(m, d, g, bus, nil, DefaultPipelineConfig()),
	}
}

func mcQuestion(id, concept, answer string, difficulty mastery.Difficulty) Question {
	return Question{
		ID:         id,
		Concept:    concept,
		Prompt:     concept + "?",
		Options:    []string{answer, "wrong1", "wrong2", "wrong3"},
		Answer:     answer,
		Difficulty: difficulty,
	}
}

func TestPipeline_ScoreMatchesCorrectCount(t *testing.T) {
	f := newPipeFixture()
	qz := &Quiz{
		ID: "q1",
		Questions: []Question{
			mcQuestion("1", "a", "yes", mastery.DifficultyMedium),
			mcQuestion("2", "b", "yes", mastery.DifficultyMedium),
			mcQuestion("3", "c", "yes", mastery.DifficultyMedium),
			mcQuestion("4", "d", "yes", mastery.DifficultyMedium),
		},
	}

	result, err := f.pipeline.Submit(context.Background(), qz, map[string]string{
		"1": "yes",
		"2": "yes",
		"3": "wrong1",
		// question 4 unanswered.
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.CorrectCount)
	assert.Equal(t, float64(result.CorrectCount)/float64(len(qz.Questions)), result.Score)
	assert.Len(t, result.Questions, 4)
}

func TestPipeline_NilQuiz(t *testing.T) {
	f := newPipeFixture()
	_, err := f.pipeline.Submit(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrNilQuiz)
}

func TestPipeline_AllCorrectDrivesMasteryUp(t *testing.T) {
	f := newPipeFixture()
	before := f.mastery.Get("derivatives").Level

	qz := &Quiz{ID: "q1", Questions: []Question{
		mcQuestion("1", "derivatives", "yes", mastery.DifficultyMedium),
		mcQuestion("2", "derivatives", "yes", mastery.DifficultyMedium),
		mcQuestion("3", "derivatives", "yes", mastery.DifficultyMedium),
	}}

	result, err := f.pipeline.Submit(context.Background(), qz, map[string]string{
		"1": "yes", "2": "yes", "3": "yes",
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Score)

	after := f.mastery.Get("derivatives").Level
	assert.Greater(t, after, before, "mastery must climb on an all-correct quiz")
}

func TestPipeline_WrongAnswersDetectGaps(t *testing.T) {
	f := newPipeFixture()
	qz := &Quiz{ID: "q1", Questions: []Question{
		mcQuestion("1", "limits", "yes", mastery.DifficultyMedium),
	}}

	result, err := f.pipeline.Submit(context.Background(), qz, map[string]string{"1": "wrong1"})
	require.NoError(t, err)

	require.Len(t, result.DetectedGaps, 1)
	assert.Equal(t, "limits", result.DetectedGaps[0].Concept)
	assert.Equal(t, gaps.SeverityCritical, result.DetectedGaps[0].Severity)
}

func TestPipeline_RoundTripResolvesGap(t *testing.T) {
	f := newPipeFixture()

	// Open a critical gap.
	rec := f.mastery.Record("derivatives", false, mastery.DifficultyMedium)
	f.detector.Evaluate(context.Background(), rec)
	_, open := f.detector.UnresolvedFor("derivatives")
	require.True(t, open)

	// Submit correct answers until the level crosses recovery.
	for i := 0; i < 10; i++ {
		qz := &Quiz{ID: "q", Questions: []Question{
			mcQuestion("1", "derivatives", "yes", mastery.DifficultyMedium),
		}}
		_, err := f.pipeline.Submit(context.Background(), qz, map[string]string{"1": "yes"})
		require.NoError(t, err)
	}

	require.GreaterOrEqual(t, f.mastery.Get("derivatives").Level, 0.7)
	_, open = f.detector.UnresolvedFor("derivatives")
	assert.False(t, open, "gap must resolve once level crosses recovery")
}

func TestPipeline_GraderFailureMarksUngraded(t *testing.T) {
	f := newPipeFixture()
	f.grader.err = errors.New("model timeout")

	free := Question{ID: "1", Concept: "essays", Prompt: "Explain.", Answer: "", Difficulty: mastery.DifficultyMedium}
	qz := &Quiz{ID: "q1", Questions: []Question{
		free,
		mcQuestion("2", "essays", "yes", mastery.DifficultyMedium),
	}}

	result, err := f.pipeline.Submit(context.Background(), qz, map[string]string{
		"1": "because reasons", "2": "yes",
	})
	require.NoError(t, err, "grading failure must not fail the submission")

	require.Len(t, result.Questions, 2)
	assert.True(t, result.Questions[0].Ungraded)
	assert.False(t, result.Questions[0].Correct)

	var gerr *GradingError
	require.ErrorAs(t, result.Questions[0].GradeErr, &gerr)
	assert.Equal(t, "1", gerr.QuestionID)

	// The ungraded question contributes to the total but not the score.
	assert.Equal(t, 1, result.CorrectCount)
	assert.Equal(t, 0.5, result.Score)

	// Only the graded question updated mastery.
	assert.Equal(t, 1, f.mastery.Get("essays").Samples)
}

func TestPipeline_NoGraderMarksUngraded(t *testing.T) {
	f := newPipeFixture()
	f.pipeline = NewPipeline(f.mastery, f.detector, nil, f.bus, nil, DefaultPipelineConfig())

	qz := &Quiz{ID: "q1", Questions: []Question{
		{ID: "1", Concept: "essays", Prompt: "Explain.", Difficulty: mastery.DifficultyMedium},
	}}
	result, err := f.pipeline.Submit(context.Background(), qz, map[string]string{"1": "answer"})
	require.NoError(t, err)
	assert.True(t, result.Questions[0].Ungraded)
	assert.Nil(t, result.Questions[0].GradeErr)
}

func TestPipeline_FreeResponseGraded(t *testing.T) {
	f := newPipeFixture()
	f.grader.verdict = true

	qz := &Quiz{ID: "q1", Questions: []Question{
		{ID: "1", Concept: "essays", Prompt: "Explain.", Difficulty: mastery.DifficultyHard},
	}}
	result, err := f.pipeline.Submit(context.Background(), qz, map[string]string{"1": "a fine essay"})
	require.NoError(t, err)

	assert.True(t, result.Questions[0].Correct)
	assert.Equal(t, 1.0, result.Score)
	assert.Equal(t, 1, f.grader.calls)
}

func TestPipeline_PerformanceExtremeEvents(t *testing.T) {
	f := newPipeFixture()
	poorCh, cancelPoor := f.bus.Subscribe(events.KindQuizPerformancePoor)
	defer cancelPoor()
	excellentCh, cancelExcellent := f.bus.Subscribe(events.KindQuizPerformanceExcellent)
	defer cancelExcellent()

	allWrong := &Quiz{ID: "bad", Questions: []Question{
		mcQuestion("1", "a", "yes", mastery.DifficultyMedium),
		mcQuestion("2", "b", "yes", mastery.DifficultyMedium),
	}}
	_, err := f.pipeline.Submit(context.Background(), allWrong, nil)
	require.NoError(t, err)

	select {
	case ev := <-poorCh:
		assert.Equal(t, "bad", ev.(events.QuizPerformancePoor).QuizID)
	default:
		t.Fatal("expected QuizPerformancePoor event")
	}

	allRight := &Quiz{ID: "good", Questions: []Question{
		mcQuestion("3", "c", "yes", mastery.DifficultyMedium),
	}}
	_, err = f.pipeline.Submit(context.Background(), allRight, map[string]string{"3": "yes"})
	require.NoError(t, err)

	select {
	case ev := <-excellentCh:
		assert.Equal(t, "good", ev.(events.QuizPerformanceExcellent).QuizID)
	default:
		t.Fatal("expected QuizPerformanceExcellent event")
	}
}

func TestPipeline_ConcurrentSubmissionsStayConsistent(t *testing.T) {
	f := newPipeFixture()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				qz := &Quiz{ID: "q", Questions: []Question{
					mcQuestion("1", "shared", "yes", mastery.DifficultyMedium),
				}}
				answer := "yes"
				if (n+j)%2 == 0 {
					answer = "wrong1"
				}
				_, err := f.pipeline.Submit(context.Background(), qz, map[string]string{"1": answer})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	rec := f.mastery.Get("shared")
	assert.Equal(t, 8*50, rec.Samples)
	assert.GreaterOrEqual(t, rec.Level, 0.0)
	assert.LessOrEqual(t, rec.Level, 1.0)
}

func TestPipeline_DerivativesScenario(t *testing.T) {
	// Learner at mastery 0.2 on "derivatives" submits 3 correct answers
	// at medium difficulty with α=0.3: the level must end strictly above
	// 0.2 and the prior critical gap must resolve once level ≥ 0.7.
	f := newPipeFixture()

	var rec mastery.Record
	for f.mastery.Get("derivatives").Level < 0.19 {
		rec = f.mastery.Record("derivatives", true, mastery.DifficultyEasy)
	}
	rec = f.mastery.Record("derivatives", false, mastery.DifficultyHard)
	require.Less(t, rec.Level, 0.4)
	f.detector.Evaluate(context.Background(), rec)
	g, open := f.detector.UnresolvedFor("derivatives")
	require.True(t, open)
	require.Equal(t, gaps.SeverityCritical, g.Severity)

	start := f.mastery.Get("derivatives").Level
	qz := &Quiz{ID: "q", Questions: []Question{
		mcQuestion("1", "derivatives", "yes", mastery.DifficultyMedium),
		mcQuestion("2", "derivatives", "yes", mastery.DifficultyMedium),
		mcQuestion("3", "derivatives", "yes", mastery.DifficultyMedium),
	}}
	result, err := f.pipeline.Submit(context.Background(), qz, map[string]string{
		"1": "yes", "2": "yes", "3": "yes",
	})
	require.NoError(t, err)
	require.Equal(t, 1.0, result.Score)

	after := f.mastery.Get("derivatives")
	assert.Greater(t, after.Level, start)

	if after.Level >= 0.7 {
		_, stillOpen := f.detector.UnresolvedFor("derivatives")
		assert.False(t, stillOpen)
	} else {
		// Not yet recovered; the gap must at worst have downgraded.
		g, stillOpen := f.detector.UnresolvedFor("derivatives")
		if stillOpen {
			assert.NotEqual(t, gaps.SeverityCritical, g.Severity)
		}
	}
}
