package orch

import (
	"fmt"
	"time"

	"github.com/johnbchron/openai-orch/backoff"
)

// Policies holds the configuration shared by all requests submitted through
// an Orchestrator: the global concurrency ceiling, the per-attempt timeout,
// the retry budget, and the backoff strategy between attempts.
//
// Policies are immutable once the Orchestrator is constructed.
type Policies struct {
	// MaxConcurrency is the maximum number of requests executing against
	// the remote API at any instant. Must be at least 1.
	MaxConcurrency int

	// AttemptTimeout is the deadline applied to each individual attempt.
	// Must be positive.
	AttemptTimeout time.Duration

	// MaxRetries is the number of retries after the initial attempt.
	// Zero means a request is attempted exactly once.
	MaxRetries int

	// Backoff computes the delay before each retry. If nil,
	// backoff.DefaultStrategy() is used.
	Backoff backoff.Strategy

	// RateLimit is the maximum sustained attempts per second across the
	// whole orchestrator. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// DefaultPolicies returns the default policy bundle: 10 concurrent
// requests, a 30 second attempt timeout, and 5 retries with exponential
// backoff from 1s capped at 10s.
func DefaultPolicies() Policies {
	return Policies{
		MaxConcurrency: 10,
		AttemptTimeout: 30 * time.Second,
		MaxRetries:     5,
		Backoff:        backoff.NewExponential(time.Second, 10*time.Second),
	}
}

// Validate checks the policy bundle for construction-time errors.
func (p Policies) Validate() error {
	if p.MaxConcurrency < 1 {
		return fmt.Errorf("%w: MaxConcurrency must be at least 1, got %d", ErrInvalidPolicy, p.MaxConcurrency)
	}
	if p.AttemptTimeout <= 0 {
		return fmt.Errorf("%w: AttemptTimeout must be positive, got %v", ErrInvalidPolicy, p.AttemptTimeout)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: MaxRetries must not be negative, got %d", ErrInvalidPolicy, p.MaxRetries)
	}
	if p.RateLimit < 0 {
		return fmt.Errorf("%w: RateLimit must not be negative, got %v", ErrInvalidPolicy, p.RateLimit)
	}
	return nil
}
