package domain

import "time"

// CircuitBreaker tracks consecutive scenario failures and enforces a
// cooldown pause once the threshold is reached.
type CircuitBreaker struct {
	ConsecutiveFailures int
	MaxFailures         int
	CooldownDuration    time.Duration
	CooldownUntil       time.Time

	// Trips counts how many times the breaker opened since start.
	Trips int
}

// RecordFailure counts a failure. It returns true when this failure trips
// the breaker, in which case CooldownUntil is set from now.
func (cb *CircuitBreaker) RecordFailure(now time.Time) bool {
	cb.ConsecutiveFailures++
	if cb.MaxFailures > 0 && cb.ConsecutiveFailures >= cb.MaxFailures {
		cb.CooldownUntil = now.Add(cb.CooldownDuration)
		cb.Trips++
		return true
	}
	return false
}

// RecordSuccess resets the consecutive failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.ConsecutiveFailures = 0
}

// Reset closes the breaker after a cooldown.
func (cb *CircuitBreaker) Reset() {
	cb.ConsecutiveFailures = 0
	cb.CooldownUntil = time.Time{}
}
