package resilience

import "time"

// RetryFromConfig converts flat config values to a RetryConfig, keeping
// defaults for unset fields.
func RetryFromConfig(maxAttempts, baseDelayMs, maxDelayMs int, multiplier, jitter float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if baseDelayMs > 0 {
		cfg.BaseDelay = time.Duration(baseDelayMs) * time.Millisecond
	}
	if maxDelayMs > 0 {
		cfg.MaxDelay = time.Duration(maxDelayMs) * time.Millisecond
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	if jitter >= 0 {
		cfg.Jitter = jitter
	}
	return cfg
}

// CircuitFromConfig converts flat config values to a CircuitConfig.
func CircuitFromConfig(failureThreshold, cooldownSecs int) CircuitConfig {
	cfg := DefaultCircuitConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if cooldownSecs > 0 {
		cfg.Cooldown = time.Duration(cooldownSecs) * time.Second
	}
	return cfg
}
