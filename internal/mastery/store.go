package mastery

import (
	"sync"
	"time"

	"github.com/studia-app/engine/internal/store"
)

// Store is the single owner of mastery truth for one learner. All other
// components read derived copies; the grading pipeline is the only write
// path.
//
// Concurrency: the map is guarded by mu; each record carries its own lock
// so updates to one concept never serialize against another learner
// activity on a different concept.
type Store struct {
	mu      sync.RWMutex
	records map[string]*entry
	cfg     Config
}

type entry struct {
	mu  sync.Mutex
	rec Record
}

// NewStore creates a mastery store, optionally loading state from a
// persisted snapshot.
func NewStore(cfg Config, snap *store.MasterySnapshotData) *Store {
	if cfg.LearningRate <= 0 || cfg.LearningRate > 1 {
		cfg.LearningRate = DefaultConfig().LearningRate
	}
	if cfg.OutcomeWindow <= 0 {
		cfg.OutcomeWindow = DefaultConfig().OutcomeWindow
	}

	s := &Store{
		records: make(map[string]*entry),
		cfg:     cfg,
	}
	if snap != nil {
		s.loadFromSnapshot(snap)
	}
	return s
}

func (s *Store) loadFromSnapshot(data *store.MasterySnapshotData) {
	if data == nil || data.Concepts == nil {
		return
	}
	for id, cd := range data.Concepts {
		rec := Record{
			Concept: id,
			Level:   clamp(cd.Level, 0, 1),
			Samples: cd.Samples,
			Recent:  append([]bool(nil), cd.Recent...),
		}
		if cd.UpdatedAt != "" {
			if t, err := time.Parse(time.RFC3339, cd.UpdatedAt); err == nil {
				rec.UpdatedAt = t
			}
		}
		s.records[id] = &entry{rec: rec}
	}
}

// Get returns a copy of the mastery record for a concept. Unseen concepts
// yield a zero-value record (level 0), never an error.
func (s *Store) Get(concept string) Record {
	s.mu.RLock()
	e, ok := s.records[concept]
	s.mu.RUnlock()
	if !ok {
		return Record{Concept: concept}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return copyRecord(e.rec)
}

// Record applies one answer outcome to a concept using the EMA update
// rule level' = level + α·w·(outcome − level), where outcome is 1 for
// correct and 0 for incorrect and w is the difficulty weight. The level
// is clamped to [0,1]. Returns a copy of the updated record so the caller
// can evaluate exactly the state this update produced.
func (s *Store) Record(concept string, correct bool, difficulty Difficulty) Record {
	e := s.getOrCreate(concept)

	e.mu.Lock()
	defer e.mu.Unlock()

	outcome := 0.0
	if correct {
		outcome = 1.0
	}

	alpha := s.cfg.LearningRate * difficultyWeight(difficulty, correct)
	e.rec.Level = clamp(e.rec.Level+alpha*(outcome-e.rec.Level), 0, 1)
	e.rec.Samples++
	e.rec.UpdatedAt = time.Now().UTC()

	e.rec.Recent = append(e.rec.Recent, correct)
	if len(e.rec.Recent) > s.cfg.OutcomeWindow {
		e.rec.Recent = e.rec.Recent[len(e.rec.Recent)-s.cfg.OutcomeWindow:]
	}

	return copyRecord(e.rec)
}

func (s *Store) getOrCreate(concept string) *entry {
	s.mu.RLock()
	e, ok := s.records[concept]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.records[concept]; ok {
		return e
	}
	e = &entry{rec: Record{Concept: concept}}
	s.records[concept] = e
	return e
}

// All returns copies of every known mastery record (for stats/UI).
func (s *Store) All() []Record {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, copyRecord(e.rec))
		e.mu.Unlock()
	}
	return out
}

// SnapshotData exports the current mastery state for persistence.
func (s *Store) SnapshotData() *store.MasterySnapshotData {
	data := &store.MasterySnapshotData{
		Concepts: make(map[string]*store.ConceptMasteryData),
	}
	for _, rec := range s.All() {
		cd := &store.ConceptMasteryData{
			Concept: rec.Concept,
			Level:   rec.Level,
			Samples: rec.Samples,
			Recent:  append([]bool(nil), rec.Recent...),
		}
		if !rec.UpdatedAt.IsZero() {
			cd.UpdatedAt = rec.UpdatedAt.Format(time.RFC3339)
		}
		data.Concepts[rec.Concept] = cd
	}
	return data
}

func copyRecord(r Record) Record {
	r.Recent = append([]bool(nil), r.Recent...)
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
