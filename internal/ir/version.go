package ir

// Version constants for persisted snapshots and the engine.
const (
	// SchemaVersion is the snapshot schema version written into archives.
	SchemaVersion = "1"

	// EngineVersion is the formflow engine version.
	EngineVersion = "0.1.0"
)
