package resilience

import (
	"time"
)

// FromFetchConfig builds a RetryConfig from millisecond settings. Zero or
// negative values keep the defaults.
func FromFetchConfig(maxAttempts, baseDelayMs, maxDelayMs, jitterMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if baseDelayMs > 0 {
		cfg.InitialBackoff = time.Duration(baseDelayMs) * time.Millisecond
	}
	if maxDelayMs > 0 {
		cfg.MaxBackoff = time.Duration(maxDelayMs) * time.Millisecond
	}
	if jitterMs > 0 {
		cfg.JitterMax = time.Duration(jitterMs) * time.Millisecond
	}
	return cfg
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(failureThreshold, resetTimeoutMins int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutMins > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutMins) * time.Minute
	}
	return cfg
}
