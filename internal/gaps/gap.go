package gaps

import "time"

// Severity ranks how badly a concept needs intervention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityCritical Severity = "critical"
)

// rank orders severities for sorting; higher is worse.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Worse reports whether s is more severe than other.
func (s Severity) Worse(other Severity) bool {
	return s.rank() > other.rank()
}

// Gap is one knowledge gap for a concept. Gaps are never deleted; a
// recovered gap is marked resolved and retained as audit trail. At most
// one unresolved gap exists per concept.
type Gap struct {
	Concept    string
	Severity   Severity
	DetectedAt time.Time
	Resolved   bool
	ResolvedAt time.Time
}

// Action describes the state transition a detector evaluation produced.
type Action string

const (
	ActionDetected   Action = "detected"
	ActionEscalated  Action = "escalated"
	ActionDowngraded Action = "downgraded"
	ActionResolved   Action = "resolved"
)

// Change is the outcome of an evaluation that transitioned gap state.
type Change struct {
	Gap    Gap
	Action Action
}
