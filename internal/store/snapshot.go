package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SnapshotRepo persists and loads engine state snapshots.
type SnapshotRepo interface {
	// Save writes a new snapshot row stamped with the current global sequence.
	Save(ctx context.Context, data SnapshotData) error

	// Latest returns the most recent snapshot, or nil if none exists.
	Latest(ctx context.Context) (*Snapshot, error)

	// Prune deletes all but the most recent keep snapshots.
	Prune(ctx context.Context, keep int) error
}

type snapshotRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *snapshotRepo) Save(ctx context.Context, data SnapshotData) error {
	seq, err := r.seq.Next(ctx)
	if err != nil {
		return err
	}

	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal snapshot data: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshots (sequence, timestamp, data) VALUES (?, ?, ?)`,
		seq, time.Now().UTC().Format(time.RFC3339Nano), string(b),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (r *snapshotRepo) Latest(ctx context.Context) (*Snapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT sequence, timestamp, data FROM snapshots ORDER BY id DESC LIMIT 1`,
	)

	var (
		seq     int64
		ts      string
		rawData string
	)
	if err := row.Scan(&seq, &ts, &rawData); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}

	timestamp, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot timestamp: %w", err)
	}

	var data SnapshotData
	if err := json.Unmarshal([]byte(rawData), &data); err != nil {
		// A snapshot that fails to decode is corrupted state, not a
		// missing one. Surfacing the error keeps the caller from
		// silently starting over at mastery zero.
		return nil, fmt.Errorf("decode snapshot data: %w", err)
	}

	return &Snapshot{Sequence: seq, Timestamp: timestamp, Data: data}, nil
}

func (r *snapshotRepo) Prune(ctx context.Context, keep int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY id DESC LIMIT ?
		)`, keep,
	)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}
