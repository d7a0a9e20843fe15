// Package review schedules spaced retention checks for mastered concepts.
// Each mastered concept moves through expanding review intervals; concepts
// left unreviewed past a grace period are flagged rusty.
package review

import (
	"sort"
	"sync"
	"time"

	"github.com/studia-app/engine/internal/store"
)

// Scheduler manages review schedules for mastered concepts.
// Safe for concurrent use.
type Scheduler struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewScheduler creates a scheduler, restoring schedules from the snapshot
// when one is given.
func NewScheduler(snap *store.ReviewSnapshotData) *Scheduler {
	s := &Scheduler{states: make(map[string]*State)}
	if snap == nil || snap.Reviews == nil {
		return s
	}
	for concept, rd := range snap.Reviews {
		next, err := time.Parse(time.RFC3339, rd.NextReview)
		if err != nil {
			continue
		}
		last, err := time.Parse(time.RFC3339, rd.LastReview)
		if err != nil {
			continue
		}
		s.states[concept] = &State{
			Concept:         rd.Concept,
			Stage:           rd.Stage,
			NextReview:      next,
			ConsecutiveHits: rd.ConsecutiveHits,
			Graduated:       rd.Graduated,
			Rusty:           rd.Rusty,
			LastReview:      last,
		}
	}
	return s
}

// Track starts the review schedule for a newly mastered concept. Concepts
// already tracked are left alone so re-crossing the mastery threshold does
// not reset an established schedule.
func (s *Scheduler) Track(concept string, masteredAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[concept]; ok {
		return
	}
	s.states[concept] = &State{
		Concept:    concept,
		NextReview: masteredAt.AddDate(0, 0, BaseIntervals[0]),
		LastReview: masteredAt,
	}
}

// Record updates the schedule after an answer on a tracked concept.
// A correct answer advances the stage and pushes the next review out; an
// incorrect one resets the hit streak. Answering correctly clears rust.
func (s *Scheduler) Record(concept string, correct bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[concept]
	if !ok {
		return
	}

	st.LastReview = now

	if !correct {
		st.ConsecutiveHits = 0
		return
	}

	st.ConsecutiveHits++
	if st.Rusty {
		// Recovery restarts the schedule from the shortest interval.
		st.Rusty = false
		st.Stage = 0
		st.Graduated = false
		st.NextReview = now.AddDate(0, 0, BaseIntervals[0])
		return
	}

	if !st.Graduated {
		st.Stage++
		if st.ConsecutiveHits >= GraduationHits {
			st.Graduated = true
		}
	}
	st.NextReview = now.AddDate(0, 0, st.IntervalDays())
}

// Due returns tracked concepts at or past their review date, most overdue
// first. Rusty concepts are included.
func (s *Scheduler) Due(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	type dueConcept struct {
		concept string
		overdue float64
	}
	var due []dueConcept
	for concept, st := range s.states {
		if st.Due(now) {
			due = append(due, dueConcept{concept: concept, overdue: st.OverdueDays(now)})
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].overdue != due[j].overdue {
			return due[i].overdue > due[j].overdue
		}
		return due[i].concept < due[j].concept
	})

	out := make([]string, len(due))
	for i, d := range due {
		out[i] = d.concept
	}
	return out
}

// DecayCheck flags concepts past their grace period as rusty and returns
// the concepts that transitioned on this call.
func (s *Scheduler) DecayCheck(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rusted []string
	for concept, st := range s.states {
		if !st.Rusty && st.pastGrace(now) {
			st.Rusty = true
			st.ConsecutiveHits = 0
			rusted = append(rusted, concept)
		}
	}
	sort.Strings(rusted)
	return rusted
}

// Tracked returns the review state for a concept.
func (s *Scheduler) Tracked(concept string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[concept]; ok {
		return *st, true
	}
	return State{}, false
}

// All returns every review state, sorted by concept.
func (s *Scheduler) All() []State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]State, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Concept < out[j].Concept })
	return out
}

// SnapshotData exports the schedules for persistence.
func (s *Scheduler) SnapshotData() *store.ReviewSnapshotData {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := &store.ReviewSnapshotData{
		Reviews: make(map[string]*store.ReviewStateData, len(s.states)),
	}
	for concept, st := range s.states {
		data.Reviews[concept] = &store.ReviewStateData{
			Concept:         st.Concept,
			Stage:           st.Stage,
			NextReview:      st.NextReview.Format(time.RFC3339),
			ConsecutiveHits: st.ConsecutiveHits,
			Graduated:       st.Graduated,
			Rusty:           st.Rusty,
			LastReview:      st.LastReview.Format(time.RFC3339),
		}
	}
	return data
}
