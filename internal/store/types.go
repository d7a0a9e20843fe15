package store

import "time"

// Snapshot is a point-in-time export of engine state.
type Snapshot struct {
	Sequence  int64
	Timestamp time.Time
	Data      SnapshotData
}

// SnapshotData is the serialized engine state stored in a snapshot row.
type SnapshotData struct {
	Mastery *MasterySnapshotData `json:"mastery,omitempty"`
	Gaps    *GapSnapshotData     `json:"gaps,omitempty"`
	Review  *ReviewSnapshotData  `json:"review,omitempty"`
}

// MasterySnapshotData holds per-concept mastery state for persistence.
type MasterySnapshotData struct {
	Concepts map[string]*ConceptMasteryData `json:"concepts"`
}

// ConceptMasteryData is the persisted form of one concept's mastery record.
type ConceptMasteryData struct {
	Concept   string  `json:"concept"`
	Level     float64 `json:"level"`
	Samples   int     `json:"samples"`
	UpdatedAt string  `json:"updated_at,omitempty"` // RFC3339
	Recent    []bool  `json:"recent,omitempty"`
}

// GapSnapshotData holds the full gap audit trail for persistence.
type GapSnapshotData struct {
	Gaps []*GapData `json:"gaps"`
}

// GapData is the persisted form of one knowledge gap, resolved or not.
type GapData struct {
	Concept    string `json:"concept"`
	Severity   string `json:"severity"`
	DetectedAt string `json:"detected_at"` // RFC3339
	Resolved   bool   `json:"resolved"`
	ResolvedAt string `json:"resolved_at,omitempty"` // RFC3339
}

// ReviewSnapshotData holds the spaced review schedule for persistence.
type ReviewSnapshotData struct {
	Reviews map[string]*ReviewStateData `json:"reviews"`
}

// ReviewStateData is the persisted form of one concept's review schedule.
type ReviewStateData struct {
	Concept         string `json:"concept"`
	Stage           int    `json:"stage"`
	NextReview      string `json:"next_review"` // RFC3339
	ConsecutiveHits int    `json:"consecutive_hits"`
	Graduated       bool   `json:"graduated"`
	Rusty           bool   `json:"rusty,omitempty"`
	LastReview      string `json:"last_review"` // RFC3339
}

// MasteryEventData is one append-only mastery update audit row.
type MasteryEventData struct {
	Sequence   int64
	Concept    string
	Correct    bool
	Difficulty string
	Level      float64
	Timestamp  time.Time
}

// GapEventData is one append-only gap transition audit row.
// Action is "detected", "escalated", "downgraded" or "resolved".
type GapEventData struct {
	Sequence  int64
	Concept   string
	Severity  string
	Action    string
	Timestamp time.Time
}
