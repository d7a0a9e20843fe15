// Package engine wires the mastery tracker, gap detector, quiz machinery
// and live session into one per-learner facade.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/studia-app/engine/internal/events"
	"github.com/studia-app/engine/internal/gaps"
	"github.com/studia-app/engine/internal/live"
	"github.com/studia-app/engine/internal/mastery"
	"github.com/studia-app/engine/internal/quiz"
	"github.com/studia-app/engine/internal/review"
	"github.com/studia-app/engine/internal/store"
)

// snapshotKeep bounds how many snapshot rows survive a save.
const snapshotKeep = 10

// Config aggregates the tunables of every component.
type Config struct {
	Mastery   mastery.Config
	Gaps      gaps.Config
	Generator quiz.GeneratorConfig
	Pipeline  quiz.PipelineConfig
	Live      live.Config
}

// DefaultConfig returns the default tunables for every component.
func DefaultConfig() Config {
	return Config{
		Mastery:   mastery.DefaultConfig(),
		Gaps:      gaps.DefaultConfig(),
		Generator: quiz.DefaultGeneratorConfig(),
		Pipeline:  quiz.DefaultPipelineConfig(),
		Live:      live.DefaultConfig(),
	}
}

// Options carries the optional collaborators. Any of them may be nil: the
// engine runs in-memory without a Store, marks free-response questions
// ungraded without a Grader, and has no live session without a Transport.
type Options struct {
	Store     *store.Store
	Grader    quiz.Grader
	Transport live.Transport
}

// Engine is the per-learner orchestrator. All components share one event
// bus; callers observe the engine by subscribing to it.
type Engine struct {
	bus      *events.Bus
	mastery  *mastery.Store
	detector *gaps.Detector
	bank     *quiz.Bank
	gen      *quiz.Generator
	pipeline *quiz.Pipeline
	session  *live.Session
	reviews  *review.Scheduler

	masteredAt float64
	snapshots  store.SnapshotRepo
}

// New builds an Engine. When a Store is attached, the most recent snapshot
// is loaded so mastery and gap state survive restarts. The caller keeps
// ownership of the Store and closes it after the engine.
func New(ctx context.Context, cfg Config, opts Options) (*Engine, error) {
	bus := events.NewBus()

	var (
		snapRepo store.SnapshotRepo
		audit    store.AuditRepo
		snap     store.SnapshotData
	)
	if opts.Store != nil {
		snapRepo = opts.Store.SnapshotRepo()
		audit = opts.Store.AuditRepo()

		latest, err := snapRepo.Latest(ctx)
		if err != nil {
			return nil, fmt.Errorf("load latest snapshot: %w", err)
		}
		if latest != nil {
			snap = latest.Data
		}
	}

	masteryStore := mastery.NewStore(cfg.Mastery, snap.Mastery)
	detector := gaps.NewDetector(cfg.Gaps, bus, audit, snap.Gaps)
	bank := quiz.NewBank()

	masteredAt := cfg.Gaps.MasteredAt
	if masteredAt <= 0 {
		masteredAt = gaps.DefaultConfig().MasteredAt
	}

	e := &Engine{
		bus:        bus,
		mastery:    masteryStore,
		detector:   detector,
		bank:       bank,
		gen:        quiz.NewGenerator(bank, masteryStore, detector, cfg.Generator),
		pipeline:   quiz.NewPipeline(masteryStore, detector, opts.Grader, bus, audit, cfg.Pipeline),
		reviews:    review.NewScheduler(snap.Review),
		masteredAt: masteredAt,
		snapshots:  snapRepo,
	}

	if opts.Transport != nil {
		e.session = live.NewSession(opts.Transport, bus, cfg.Live)
	}

	return e, nil
}

// Events returns the engine's event bus.
func (e *Engine) Events() *events.Bus {
	return e.bus
}

// Bank returns the question bank so callers can seed questions.
func (e *Engine) Bank() *quiz.Bank {
	return e.bank
}

// Live returns the live tutoring session, or nil when the engine was
// built without a transport.
func (e *Engine) Live() *live.Session {
	return e.session
}

// MasteryLevel returns the current level for one concept in [0, 1].
// Unseen concepts report zero.
func (e *Engine) MasteryLevel(concept string) float64 {
	return e.mastery.Get(concept).Level
}

// MasteryRecords returns all tracked concept records.
func (e *Engine) MasteryRecords() []mastery.Record {
	return e.mastery.All()
}

// OpenGaps returns the unresolved gaps, worst severity first.
func (e *Engine) OpenGaps() []gaps.Gap {
	return e.detector.Unresolved()
}

// GapHistory returns all gaps ever detected, including resolved ones.
func (e *Engine) GapHistory() []gaps.Gap {
	return e.detector.History()
}

// GenerateQuiz builds an adaptive quiz for the lesson. Returns nil when
// no lesson concept has an unresolved gap with banked questions.
func (e *Engine) GenerateQuiz(lesson quiz.Lesson) *quiz.Quiz {
	return e.gen.Generate(lesson)
}

// SubmitQuiz grades the answers, applies mastery updates and gap
// evaluation, and returns the graded result. Concepts that cross the
// mastery threshold start a spaced review schedule; answers on already
// tracked concepts advance or reset it.
func (e *Engine) SubmitQuiz(ctx context.Context, qz *quiz.Quiz, answers map[string]string) (*quiz.Result, error) {
	result, err := e.pipeline.Submit(ctx, qz, answers)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, qr := range result.Questions {
		if qr.Ungraded {
			continue
		}
		e.reviews.Record(qr.Concept, qr.Correct, now)
		if e.mastery.Get(qr.Concept).Level >= e.masteredAt {
			e.reviews.Track(qr.Concept, now)
		}
	}
	return result, nil
}

// GenerateReviewQuiz builds a retention-check quiz from the concepts due
// for review. Returns nil when nothing is due or banked.
func (e *Engine) GenerateReviewQuiz(now time.Time) *quiz.Quiz {
	due := e.reviews.Due(now)
	if len(due) == 0 {
		return nil
	}
	return e.gen.GenerateReview(due)
}

// DueReviews returns the concepts at or past their review date, most
// overdue first.
func (e *Engine) DueReviews(now time.Time) []string {
	return e.reviews.Due(now)
}

// ReviewStates returns the spaced review schedule for every tracked concept.
func (e *Engine) ReviewStates() []review.State {
	return e.reviews.All()
}

// DecayCheck flags mastered concepts that missed their review window as
// rusty and publishes a ConceptRusty event for each. Meant to run at
// session start.
func (e *Engine) DecayCheck(now time.Time) []string {
	rusted := e.reviews.DecayCheck(now)
	for _, concept := range rusted {
		e.bus.Publish(events.ConceptRusty{Concept: concept})
	}
	return rusted
}

// SaveSnapshot persists the current mastery and gap state. No-op without
// an attached store.
func (e *Engine) SaveSnapshot(ctx context.Context) error {
	if e.snapshots == nil {
		return nil
	}

	data := store.SnapshotData{
		Mastery: e.mastery.SnapshotData(),
		Gaps:    e.detector.SnapshotData(),
		Review:  e.reviews.SnapshotData(),
	}
	if err := e.snapshots.Save(ctx, data); err != nil {
		return err
	}
	return e.snapshots.Prune(ctx, snapshotKeep)
}

// Close disconnects the live session and saves a final snapshot.
func (e *Engine) Close(ctx context.Context) error {
	if e.session != nil {
		e.session.Disconnect()
	}
	return e.SaveSnapshot(ctx)
}
