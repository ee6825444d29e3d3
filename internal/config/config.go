// internal/config/config.go
package config

import (
	"os"
	"time"
)

// Gameplay defaults and clamps. Values a host submits through
// updateLobbySettings are clamped into these ranges.
const (
	DefaultRounds = 10
	MinRounds     = 1
	MaxRounds     = 50

	DefaultTimeLimitSec = 10
	MinTimeLimitSec     = 5
	MaxTimeLimitSec     = 60

	// MinPlayersToStart applies to public matchmaking lobbies; a private
	// host may start with fewer.
	MinPlayersToStart = 2

	// FuzzyThresholdDefault is the similarity score (0-100) at or above
	// which a non-exact answer is accepted.
	FuzzyThresholdDefault = 85
)

// Timing for the session registry and round scheduler.
const (
	// DisconnectGrace is how long a dropped session may reattach before
	// its lobby-leave path runs.
	DisconnectGrace = 5 * time.Second

	// HeartbeatInterval is how often ping events are pushed to every
	// open connection.
	HeartbeatInterval = 10 * time.Second

	// LivenessThreshold is how long a connection may stay silent before
	// it is forcibly treated as disconnected.
	LivenessThreshold = 35 * time.Second

	// Intermission is the pause between questionEnd and the next
	// questionStart.
	Intermission = 2 * time.Second

	// PreloadDelay is the pause between gamePreload and the first
	// questionStart, giving clients time to fetch the first asset.
	PreloadDelay = 1500 * time.Millisecond

	// AllAnsweredBeat is the short delay between the final answer of a
	// round arriving and the round actually ending, so the last
	// submitter sees their own result land.
	AllAnsweredBeat = 500 * time.Millisecond
)

// Port returns the listen port, from GEOGLE_PORT or "8080".
func Port() string {
	if p := os.Getenv("GEOGLE_PORT"); p != "" {
		return p
	}
	return "8080"
}

// DataDir returns the directory holding the reference data JSON files,
// from GEOGLE_DATA_DIR or "./data".
func DataDir() string {
	if d := os.Getenv("GEOGLE_DATA_DIR"); d != "" {
		return d
	}
	return "./data"
}

// LogLevel returns the configured log level name, from LOG_LEVEL or "info".
func LogLevel() string {
	if l := os.Getenv("LOG_LEVEL"); l != "" {
		return l
	}
	return "info"
}
