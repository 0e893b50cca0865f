package check

// SignalDef describes a single signal a category classifies.
type SignalDef struct {
	// Key is the key used for the signal in Result.Data (e.g. "latencyMinutes").
	Key string

	// Label is a human-readable label for listings (e.g. "replication latency").
	Label string

	// Unit is the unit of measurement (e.g. "min", "%", "bool").
	Unit string
}

// Descriptor declares metadata about a check instance: its scope and the
// signals it classifies. Each check instance returns its own Descriptor via
// Check.Describe(), so configuration-dependent signal sets (e.g. the list of
// required services) are reflected.
type Descriptor struct {
	// Label is a human-readable name for the category.
	Label string

	// Scope says whether the category runs per target or once.
	Scope Scope

	// Signals lists the signals this check instance classifies.
	Signals []SignalDef
}
