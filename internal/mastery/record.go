package mastery

import "time"

// Difficulty is the difficulty band a question was answered at.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Record holds the mastery state for a single (learner, concept) pair.
// Level is only ever recomputed by Store.Record; consumers treat it as
// read-only.
type Record struct {
	// Concept is the concept identifier, unique within a learner.
	Concept string

	// Level is the continuous mastery score in [0,1].
	Level float64

	// Samples is the number of quiz answers contributing to Level.
	Samples int

	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time

	// Recent holds the outcomes of the most recent updates, oldest
	// first, bounded by the configured window.
	Recent []bool
}

// RecentIncorrect reports whether the n most recent updates were all
// incorrect. False when fewer than n updates have been recorded.
func (r Record) RecentIncorrect(n int) bool {
	if len(r.Recent) < n {
		return false
	}
	for _, correct := range r.Recent[len(r.Recent)-n:] {
		if correct {
			return false
		}
	}
	return true
}

// ApparentDifficulty maps the record's level to the difficulty band the
// learner appears to operate at.
func (r Record) ApparentDifficulty() Difficulty {
	switch {
	case r.Level >= 0.7:
		return DifficultyHard
	case r.Level >= 0.4:
		return DifficultyMedium
	default:
		return DifficultyEasy
	}
}

// StepDown returns the difficulty one band below d. Easy stays easy.
func StepDown(d Difficulty) Difficulty {
	switch d {
	case DifficultyHard:
		return DifficultyMedium
	default:
		return DifficultyEasy
	}
}
