package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditRepo appends and queries the append-only audit trail of mastery
// updates and gap transitions. Audit rows are never updated or deleted.
type AuditRepo interface {
	AppendMasteryEvent(ctx context.Context, data MasteryEventData) error
	AppendGapEvent(ctx context.Context, data GapEventData) error

	// RecentGapEvents returns up to limit gap events, newest first.
	RecentGapEvents(ctx context.Context, limit int) ([]GapEventData, error)

	// ConceptAccuracy returns the all-time fraction of correct mastery
	// updates for a concept and the number of contributing events.
	ConceptAccuracy(ctx context.Context, concept string) (float64, int, error)
}

type auditRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *auditRepo) AppendMasteryEvent(ctx context.Context, data MasteryEventData) error {
	seq, err := r.seq.Next(ctx)
	if err != nil {
		return err
	}

	ts := data.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	correct := 0
	if data.Correct {
		correct = 1
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO mastery_events (sequence, concept, correct, difficulty, level, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		seq, data.Concept, correct, data.Difficulty, data.Level, ts.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append mastery event: %w", err)
	}
	return nil
}

func (r *auditRepo) AppendGapEvent(ctx context.Context, data GapEventData) error {
	seq, err := r.seq.Next(ctx)
	if err != nil {
		return err
	}

	ts := data.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO gap_events (sequence, concept, severity, action, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		seq, data.Concept, data.Severity, data.Action, ts.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append gap event: %w", err)
	}
	return nil
}

func (r *auditRepo) RecentGapEvents(ctx context.Context, limit int) ([]GapEventData, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT sequence, concept, severity, action, created_at
		 FROM gap_events ORDER BY sequence DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query gap events: %w", err)
	}
	defer rows.Close()

	var out []GapEventData
	for rows.Next() {
		var (
			ev GapEventData
			ts string
		)
		if err := rows.Scan(&ev.Sequence, &ev.Concept, &ev.Severity, &ev.Action, &ts); err != nil {
			return nil, fmt.Errorf("scan gap event: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
			ev.Timestamp = t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *auditRepo) ConceptAccuracy(ctx context.Context, concept string) (float64, int, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(correct), 0), COUNT(*) FROM mastery_events WHERE concept = ?`,
		concept,
	)

	var (
		accuracy float64
		count    int
	)
	if err := row.Scan(&accuracy, &count); err != nil {
		return 0, 0, fmt.Errorf("query concept accuracy: %w", err)
	}
	return accuracy, count, nil
}
