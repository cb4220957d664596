package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// Delay returns the wait before reconnect attempt N (1-based).
func (p ReconnectPolicy) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return p.SettleDelay
	}
	return NextBackoffDelay(p.Backoff, attempt-1, rng)
}

// Allows reports whether attempt N is permitted.
func (p ReconnectPolicy) Allows(attempt int) bool {
	if p.MaxAttempts <= 0 {
		return true
	}
	return attempt <= p.MaxAttempts
}
