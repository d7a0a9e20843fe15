package mastery

// Config holds the tuning parameters for mastery scoring.
type Config struct {
	// LearningRate is the EMA step size shared across all concepts.
	// A single constant favors responsiveness over per-concept
	// stability; it is an open tuning parameter, not fixed law.
	LearningRate float64

	// OutcomeWindow bounds the per-record recent-outcome history.
	OutcomeWindow int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LearningRate:  0.3,
		OutcomeWindow: 5,
	}
}

// difficultyWeight scales the learning rate by question difficulty.
// Harder correct answers move the level up faster; harder incorrect
// answers move it down less harshly, so a reasonable attempt at a hard
// question isn't punished like a miss on an easy one.
func difficultyWeight(d Difficulty, correct bool) float64 {
	if correct {
		switch d {
		case DifficultyHard:
			return 1.25
		case DifficultyEasy:
			return 0.8
		default:
			return 1.0
		}
	}
	switch d {
	case DifficultyHard:
		return 0.75
	case DifficultyEasy:
		return 1.2
	default:
		return 1.0
	}
}
