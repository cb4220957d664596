package session

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("session: invalid config")

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// ReconnectPolicy controls Link.Reconnect.
//
// SettleDelay is waited before the first attempt so the radio module can
// recover. Later attempts wait NextBackoffDelay(Backoff, attempt-1).
// MaxAttempts <= 0 retries until the context ends.
type ReconnectPolicy struct {
	SettleDelay time.Duration
	MaxAttempts int
	Backoff     BackoffConfig
}

// Config defines link timeouts and reconnect policy.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// ApprovalTimeout of zero waits for an ack or link loss indefinitely.
	ApprovalTimeout time.Duration
	Reconnect       ReconnectPolicy
}

// DefaultConfig matches the panel firmware: one reconnect attempt after a 1s settle.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:  10 * time.Second,
		ReadTimeout:     time.Second,
		WriteTimeout:    5 * time.Second,
		ApprovalTimeout: 0,
		Reconnect: ReconnectPolicy{
			SettleDelay: time.Second,
			MaxAttempts: 1,
			Backoff: BackoffConfig{
				InitialDelay: time.Second,
				Multiplier:   1.0,
				MaxDelay:     time.Second,
				Jitter:       false,
			},
		},
	}
}

// WithDefaults fills zero timeouts from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Reconnect.Backoff.InitialDelay <= 0 {
		c.Reconnect.Backoff.InitialDelay = def.Reconnect.Backoff.InitialDelay
	}
	if c.Reconnect.Backoff.Multiplier < 1.0 {
		c.Reconnect.Backoff.Multiplier = def.Reconnect.Backoff.Multiplier
	}
	return c
}

func (c Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect_timeout must be positive", ErrInvalidConfig)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: read_timeout must be positive", ErrInvalidConfig)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: write_timeout must be positive", ErrInvalidConfig)
	}
	if c.ApprovalTimeout < 0 {
		return fmt.Errorf("%w: approval_timeout must not be negative", ErrInvalidConfig)
	}
	if c.Reconnect.SettleDelay < 0 {
		return fmt.Errorf("%w: reconnect settle delay must not be negative", ErrInvalidConfig)
	}
	if c.Reconnect.Backoff.MaxDelay > 0 && c.Reconnect.Backoff.MaxDelay < c.Reconnect.Backoff.InitialDelay {
		return fmt.Errorf("%w: reconnect backoff max below initial delay", ErrInvalidConfig)
	}
	return nil
}
