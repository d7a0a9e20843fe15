package quiz

import (
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/studia-app/engine/internal/mastery"
)

// QuestionBank supplies authored questions by concept and difficulty.
type QuestionBank interface {
	// Pick returns a question for the concept at or near the requested
	// difficulty, excluding the given question ids. Returns false when
	// the bank has nothing usable for the concept: the caller skips the
	// concept rather than fabricating content.
	Pick(concept string, difficulty mastery.Difficulty, exclude map[string]bool) (Question, bool)
}

// Bank is an in-memory QuestionBank.
type Bank struct {
	mu        sync.RWMutex
	byConcept map[string][]Question
	rng       *rand.Rand
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{
		byConcept: make(map[string][]Question),
		rng:       rand.New(rand.NewSource(rand.Int63())),
	}
}

// Add registers a question, assigning an id if it has none.
func (b *Bank) Add(q Question) Question {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.byConcept[q.Concept] = append(b.byConcept[q.Concept], q)
	return q
}

// Pick selects a random question for the concept, preferring the exact
// difficulty and widening to adjacent bands when the bank has none there.
func (b *Bank) Pick(concept string, difficulty mastery.Difficulty, exclude map[string]bool) (Question, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pool := b.byConcept[concept]
	if len(pool) == 0 {
		return Question{}, false
	}

	for _, want := range fallbackOrder(difficulty) {
		candidates := make([]Question, 0, len(pool))
		for _, q := range pool {
			if q.Difficulty != want || exclude[q.ID] {
				continue
			}
			candidates = append(candidates, q)
		}
		if len(candidates) > 0 {
			return candidates[b.rng.Intn(len(candidates))], true
		}
	}
	return Question{}, false
}

// Size reports how many questions the bank holds for a concept.
func (b *Bank) Size(concept string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byConcept[concept])
}

// fallbackOrder lists difficulty bands to try, nearest first, easier
// before harder so a confidence-rebuilding pick never jumps up a band
// unless nothing else exists.
func fallbackOrder(d mastery.Difficulty) []mastery.Difficulty {
	switch d {
	case mastery.DifficultyHard:
		return []mastery.Difficulty{mastery.DifficultyHard, mastery.DifficultyMedium, mastery.DifficultyEasy}
	case mastery.DifficultyMedium:
		return []mastery.Difficulty{mastery.DifficultyMedium, mastery.DifficultyEasy, mastery.DifficultyHard}
	default:
		return []mastery.Difficulty{mastery.DifficultyEasy, mastery.DifficultyMedium, mastery.DifficultyHard}
	}
}
