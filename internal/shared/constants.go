package shared

import "time"

// HTTP Client Configuration
const (
	DefaultHTTPTimeout     = 180 * time.Second
	DefaultDialTimeout     = 2 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Generation defaults
const (
	DefaultCopyStyle    = "professional/business"
	DefaultCodeLanguage = "python"
	DefaultVoice        = "alloy"
)

// Stream handling
const (
	// StreamReadChunkSize is the read size fed into the line assembler.
	StreamReadChunkSize = 4096

	// MaxMalformedStreak is how many consecutive unparseable data lines
	// are tolerated before the stream is failed hard. One bad line is
	// upstream noise; a long run of them is protocol drift.
	MaxMalformedStreak = 25
)

// Cache Configuration
const (
	VoiceCacheTTL = 30 * time.Minute
	VoiceCacheKey = "muse:v1:voices"
)
