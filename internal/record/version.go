package record

// Version constants stamped on persisted runs.
const (
	// HashVersion identifies the row hash algorithm. Bump it when the
	// hashed field set changes so stores can detect a re-baseline.
	HashVersion = "1"

	// EngineVersion is the historization engine version.
	EngineVersion = "0.1.0"
)
