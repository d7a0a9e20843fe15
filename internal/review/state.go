package review

import "time"

// BaseIntervals is the expanding review schedule in days.
// Stage 0 = first review after the mastery milestone.
var BaseIntervals = []int{1, 3, 7, 14, 30, 60}

// GraduationHits is the number of consecutive correct reviews after which
// a concept graduates to the long maintenance interval.
const GraduationHits = 6

// GraduatedIntervalDays is the review interval for graduated concepts.
const GraduatedIntervalDays = 90

// State holds the review schedule for a single mastered concept.
type State struct {
	Concept         string    `json:"concept"`
	Stage           int       `json:"stage"`
	NextReview      time.Time `json:"next_review"`
	ConsecutiveHits int       `json:"consecutive_hits"`
	Graduated       bool      `json:"graduated"`
	Rusty           bool      `json:"rusty"`
	LastReview      time.Time `json:"last_review"`
}

// Due reports whether the concept is at or past its review date.
func (s *State) Due(now time.Time) bool {
	return !now.Before(s.NextReview)
}

// OverdueDays returns how many days past due the concept is, 0 if not due.
func (s *State) OverdueDays(now time.Time) float64 {
	if now.Before(s.NextReview) {
		return 0
	}
	return now.Sub(s.NextReview).Hours() / 24.0
}

// IntervalDays returns the current review interval in days.
func (s *State) IntervalDays() int {
	if s.Graduated {
		return GraduatedIntervalDays
	}
	if s.Stage >= len(BaseIntervals) {
		return BaseIntervals[len(BaseIntervals)-1]
	}
	return BaseIntervals[s.Stage]
}

// pastGrace reports whether the concept has exceeded its grace period
// (half the current interval past the review date) and should go rusty.
func (s *State) pastGrace(now time.Time) bool {
	if !s.Due(now) {
		return false
	}
	grace := time.Duration(float64(s.IntervalDays()) * 0.5 * 24 * float64(time.Hour))
	return now.After(s.NextReview.Add(grace))
}
