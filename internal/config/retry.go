package config

import (
	"fmt"
	"time"
)

// RetryConfig shapes the adapter's backoff protocol (spec §4.1/§4.2).
type RetryConfig struct {
	MaxAttempts        int     `yaml:"max_attempts"`
	BaseDelayMS        int     `yaml:"base_delay_ms"`
	MaxDelayMS         int     `yaml:"max_delay_ms"`
	Multiplier         float64 `yaml:"multiplier"`
	RetryOnStatus      []int   `yaml:"retry_on_status"`
	RespectRetryAfter  bool    `yaml:"respect_retry_after"`
}

// DefaultRetryConfig mirrors the teacher's BackoffConfig defaults
// (internal/config/providers.go) adapted to the vendor contract in spec §6.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		BaseDelayMS:       250,
		MaxDelayMS:        30_000,
		Multiplier:        2.0,
		RetryOnStatus:     []int{429, 500, 502, 503, 504},
		RespectRetryAfter: true,
	}
}

func (r RetryConfig) Validate() error {
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", r.MaxAttempts)
	}
	if r.BaseDelayMS <= 0 {
		return fmt.Errorf("retry.base_delay must be positive, got %dms", r.BaseDelayMS)
	}
	if r.MaxDelayMS < r.BaseDelayMS {
		return fmt.Errorf("retry.max_delay (%dms) must be >= retry.base_delay (%dms)", r.MaxDelayMS, r.BaseDelayMS)
	}
	if r.Multiplier <= 1.0 {
		return fmt.Errorf("retry.multiplier must be > 1.0, got %f", r.Multiplier)
	}
	if len(r.RetryOnStatus) == 0 {
		return fmt.Errorf("retry.retry_on_status must not be empty")
	}
	return nil
}

func (r RetryConfig) BaseDelay() time.Duration { return time.Duration(r.BaseDelayMS) * time.Millisecond }
func (r RetryConfig) MaxDelay() time.Duration  { return time.Duration(r.MaxDelayMS) * time.Millisecond }

// IsRetryableStatus reports whether statusCode is in the configured
// retry-on set, mirroring the teacher's ProviderGuard.isRetryableStatus.
func (r RetryConfig) IsRetryableStatus(statusCode int) bool {
	for _, s := range r.RetryOnStatus {
		if s == statusCode {
			return true
		}
	}
	return false
}
