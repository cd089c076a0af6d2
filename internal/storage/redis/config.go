package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// GameTTL applies to the game record, its players, roster index and move log.
	// Every write refreshes it, so it is an idle timeout rather than a lifetime.
	GameTTL time.Duration
	// ConnectionTTL bounds socket connections, which carry no sliding expiry
	// of their own. Polling connections expire at their ExpiresAt instead.
	ConnectionTTL time.Duration
	// ExpiryGrace keeps a lapsed polling connection readable for this long
	// after its ExpiresAt. It must cover at least one reap interval.
	ExpiryGrace time.Duration

	// MaxMoves is how many moves are retained per game (0 keeps all)
	MaxMoves int64
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:           "redis://localhost:6379",
		PoolSize:      10,
		MinIdleConns:  2,
		GameTTL:       24 * time.Hour,
		ConnectionTTL: 24 * time.Hour,
		ExpiryGrace:   5 * time.Minute,
		MaxMoves:      1000,
	}
}
