package ir

// Version constants for report schema and tool.
const (
	// IRVersion is the report schema version.
	IRVersion = "1"

	// ToolVersion is the conform release version.
	ToolVersion = "0.3.0"
)
