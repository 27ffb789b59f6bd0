package crawler

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Default backoff steps; the wait grows linearly with the attempt number.
const (
	DefaultRateLimitStep = 30 * time.Second
	DefaultNetworkStep   = 5 * time.Second
)

// BackoffPolicy computes the wait before retrying a transient failure.
type BackoffPolicy struct {
	RateLimitStep time.Duration
	NetworkStep   time.Duration
}

// NewBackoffPolicy builds a policy, substituting defaults for zero steps.
func NewBackoffPolicy(rateLimitStep, networkStep time.Duration) BackoffPolicy {
	if rateLimitStep <= 0 {
		rateLimitStep = DefaultRateLimitStep
	}
	if networkStep <= 0 {
		networkStep = DefaultNetworkStep
	}
	return BackoffPolicy{RateLimitStep: rateLimitStep, NetworkStep: networkStep}
}

// ShouldRetry reports whether another attempt is allowed after outcome.
func (p BackoffPolicy) ShouldRetry(outcome FetchOutcome, attempt, maxAttempts int) bool {
	if outcome.Kind != OutcomeTransient {
		return false
	}
	if errors.Is(outcome.Err, context.Canceled) {
		return false
	}
	return attempt < maxAttempts
}

// Backoff returns the wait after the given 1-based attempt.
func (p BackoffPolicy) Backoff(outcome FetchOutcome, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	step := p.NetworkStep
	if outcome.Status == 429 {
		step = p.RateLimitStep
	}
	return step * time.Duration(attempt)
}

// DelayRange is a closed interval of randomized politeness delays.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Draw picks a uniformly distributed delay from the range.
func (d DelayRange) Draw(rng *rand.Rand) time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	span := int64(d.Max - d.Min)
	if rng == nil {
		return d.Min + time.Duration(rand.Int64N(span+1))
	}
	return d.Min + time.Duration(rng.Int64N(span+1))
}
