package gaps

// Config holds the detection and recovery thresholds. The recovery
// threshold sits deliberately above the detection band so a level
// oscillating around the detection edge cannot flap a gap open and
// closed (hysteresis). All values are open tuning parameters.
type Config struct {
	// CriticalBelow: levels under this produce a critical gap.
	CriticalBelow float64

	// MediumBelow: levels in [CriticalBelow, MediumBelow) produce a
	// medium gap when the recent updates were all incorrect.
	MediumBelow float64

	// RecoverAt: an unresolved gap resolves once the level reaches this.
	RecoverAt float64

	// MasteredAt: crossing this level emits a mastery milestone.
	MasteredAt float64

	// IncorrectRun is how many consecutive incorrect updates trigger
	// the medium band.
	IncorrectRun int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CriticalBelow: 0.4,
		MediumBelow:   0.6,
		RecoverAt:     0.7,
		MasteredAt:    0.9,
		IncorrectRun:  2,
	}
}
