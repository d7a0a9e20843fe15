package gaps

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/studia-app/engine/internal/events"
	"github.com/studia-app/engine/internal/mastery"
	"github.com/studia-app/engine/internal/store"
)

// Detector derives knowledge gaps from mastery updates. It is called
// after every mastery store update and publishes GapDetected/GapResolved
// and ConceptMastered events exactly once per state transition: the
// detector tracks what it already emitted, so re-evaluating unchanged
// state produces no duplicate events.
type Detector struct {
	mu       sync.Mutex
	cfg      Config
	bus      *events.Bus
	audit    store.AuditRepo
	open     map[string]*Gap
	resolved []*Gap
	mastered map[string]bool
}

// NewDetector creates a detector publishing to bus. audit may be nil; when
// set, every gap transition is appended to the audit trail. snap restores
// a previously persisted gap history.
func NewDetector(cfg Config, bus *events.Bus, audit store.AuditRepo, snap *store.GapSnapshotData) *Detector {
	d := &Detector{
		cfg:      cfg,
		bus:      bus,
		audit:    audit,
		open:     make(map[string]*Gap),
		mastered: make(map[string]bool),
	}
	if snap != nil {
		d.loadFromSnapshot(snap)
	}
	return d
}

func (d *Detector) loadFromSnapshot(data *store.GapSnapshotData) {
	for _, gd := range data.Gaps {
		g := &Gap{
			Concept:  gd.Concept,
			Severity: Severity(gd.Severity),
			Resolved: gd.Resolved,
		}
		if t, err := time.Parse(time.RFC3339, gd.DetectedAt); err == nil {
			g.DetectedAt = t
		}
		if gd.ResolvedAt != "" {
			if t, err := time.Parse(time.RFC3339, gd.ResolvedAt); err == nil {
				g.ResolvedAt = t
			}
		}
		if g.Resolved {
			d.resolved = append(d.resolved, g)
		} else {
			// At most one unresolved gap per concept; last one wins.
			d.open[g.Concept] = g
		}
	}
}

// Evaluate inspects the record produced by a mastery update and
// transitions gap state for that concept. Returns the resulting Change,
// or nil when no state transition occurred.
func (d *Detector) Evaluate(ctx context.Context, rec mastery.Record) *Change {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.checkMilestone(rec)

	want, gapped := d.desiredSeverity(rec)
	existing := d.open[rec.Concept]

	switch {
	case gapped && existing == nil:
		g := &Gap{
			Concept:    rec.Concept,
			Severity:   want,
			DetectedAt: time.Now().UTC(),
		}
		d.open[rec.Concept] = g
		return d.transition(ctx, g, ActionDetected)

	case gapped && existing.Severity != want:
		action := ActionDowngraded
		if want.Worse(existing.Severity) {
			action = ActionEscalated
		}
		existing.Severity = want
		return d.transition(ctx, existing, action)

	case !gapped && existing != nil && rec.Level >= d.cfg.RecoverAt:
		existing.Resolved = true
		existing.ResolvedAt = time.Now().UTC()
		delete(d.open, rec.Concept)
		d.resolved = append(d.resolved, existing)
		return d.transition(ctx, existing, ActionResolved)
	}

	// Between thresholds, or severity unchanged: no state change, no event.
	return nil
}

// desiredSeverity maps a record to the gap severity it should carry, or
// false when the record sits outside the detection bands.
func (d *Detector) desiredSeverity(rec mastery.Record) (Severity, bool) {
	switch {
	case rec.Level < d.cfg.CriticalBelow:
		return SeverityCritical, true
	case rec.Level < d.cfg.MediumBelow && rec.RecentIncorrect(d.cfg.IncorrectRun):
		return SeverityMedium, true
	default:
		return "", false
	}
}

func (d *Detector) checkMilestone(rec mastery.Record) {
	if rec.Level >= d.cfg.MasteredAt {
		if !d.mastered[rec.Concept] {
			d.mastered[rec.Concept] = true
			d.bus.Publish(events.ConceptMastered{Concept: rec.Concept})
		}
		return
	}
	if rec.Level < d.cfg.RecoverAt {
		// Re-arm the milestone only after falling back below recovery,
		// so small dips around the mastered line don't re-fire it.
		d.mastered[rec.Concept] = false
	}
}

func (d *Detector) transition(ctx context.Context, g *Gap, action Action) *Change {
	if action == ActionResolved {
		d.bus.Publish(events.GapResolved{Concept: g.Concept})
	} else {
		d.bus.Publish(events.GapDetected{Concept: g.Concept, Severity: string(g.Severity)})
	}

	if d.audit != nil {
		// Audit append failure must not break scoring; the in-memory
		// trail remains authoritative for this session.
		_ = d.audit.AppendGapEvent(ctx, store.GapEventData{
			Concept:  g.Concept,
			Severity: string(g.Severity),
			Action:   string(action),
		})
	}

	return &Change{Gap: *g, Action: action}
}

// Unresolved returns copies of all unresolved gaps, most severe first,
// ties broken by detection time (oldest first).
func (d *Detector) Unresolved() []Gap {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Gap, 0, len(d.open))
	for _, g := range d.open {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity.Worse(out[j].Severity)
		}
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out
}

// UnresolvedFor returns the unresolved gap for a concept, if any.
func (d *Detector) UnresolvedFor(concept string) (Gap, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if g, ok := d.open[concept]; ok {
		return *g, true
	}
	return Gap{}, false
}

// History returns copies of every gap ever detected, resolved included.
func (d *Detector) History() []Gap {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Gap, 0, len(d.resolved)+len(d.open))
	for _, g := range d.resolved {
		out = append(out, *g)
	}
	for _, g := range d.open {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out
}

// SnapshotData exports the gap trail for persistence.
func (d *Detector) SnapshotData() *store.GapSnapshotData {
	data := &store.GapSnapshotData{}
	for _, g := range d.History() {
		gd := &store.GapData{
			Concept:    g.Concept,
			Severity:   string(g.Severity),
			DetectedAt: g.DetectedAt.Format(time.RFC3339),
			Resolved:   g.Resolved,
		}
		if g.Resolved {
			gd.ResolvedAt = g.ResolvedAt.Format(time.RFC3339)
		}
		data.Gaps = append(data.Gaps, gd)
	}
	return data
}
