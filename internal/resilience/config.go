package resilience

import (
	"time"
)

// FromPolicyConfig converts config values to a Policy that logs retries
// under the given service and operation names.
func FromPolicyConfig(maxAttempts int, delay time.Duration, service, operation string) Policy {
	p := Policy{MaxAttempts: 3, Delay: time.Second}
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if delay >= 0 {
		p.Delay = delay
	}
	p.OnRetry = RetryLogger(service, operation)
	return p
}

// FromBreakerConfig converts config values to a BreakerConfig.
func FromBreakerConfig(failureThreshold int, cooldown time.Duration) BreakerConfig {
	cfg := DefaultBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if cooldown > 0 {
		cfg.Cooldown = cooldown
	}
	return cfg
}
