package transfer

import "time"

// BackoffConfig defines retry backoff behavior between chunk attempts.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines per-session reliability tunables.
type Config struct {
	// MaxRetries bounds additional attempts for one chunk after a transient
	// transport failure. 0 disables retries.
	MaxRetries int
	Backoff    BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}
