// Package backoff implements retry policies for transient failures, used
// by the bus adapter when (re)connecting to the broker.
package backoff

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	// ErrRetriesExhausted is returned when the maximum number of retries has been reached.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// RetryPolicy computes the wait interval before the next retry.
type RetryPolicy interface {
	// ComputeNextInterval returns the duration to wait before retry number
	// retryCount, or an error if no more retries should be attempted.
	ComputeNextInterval(retryCount int) (time.Duration, error)
}

// ConstantBackoffPolicy waits a fixed interval between retries.
type ConstantBackoffPolicy struct {
	// Interval is the constant interval between retries.
	Interval time.Duration
	// MaxRetries is the maximum number of retries. 0 means unlimited.
	MaxRetries int
}

// NewConstantBackoffPolicy creates a ConstantBackoffPolicy with the given interval.
func NewConstantBackoffPolicy(interval time.Duration) *ConstantBackoffPolicy {
	return &ConstantBackoffPolicy{Interval: interval}
}

// ComputeNextInterval implements RetryPolicy.
func (p *ConstantBackoffPolicy) ComputeNextInterval(retryCount int) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}
	return p.Interval, nil
}

// ExponentialBackoffPolicy doubles (by BackoffFactor) the interval after
// each retry, capped at MaxInterval.
type ExponentialBackoffPolicy struct {
	// InitialInterval is the interval before the first retry.
	InitialInterval time.Duration
	// BackoffFactor is the multiplier applied per retry.
	BackoffFactor float64
	// MaxInterval caps the computed interval.
	MaxInterval time.Duration
	// MaxRetries is the maximum number of retries. 0 means unlimited.
	MaxRetries int
}

// NewExponentialBackoffPolicy creates an ExponentialBackoffPolicy with defaults.
func NewExponentialBackoffPolicy(initialInterval time.Duration) *ExponentialBackoffPolicy {
	return &ExponentialBackoffPolicy{
		InitialInterval: initialInterval,
		BackoffFactor:   2.0,
		MaxInterval:     10 * time.Second,
	}
}

// ComputeNextInterval implements RetryPolicy.
func (p *ExponentialBackoffPolicy) ComputeNextInterval(retryCount int) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}
	interval := float64(p.InitialInterval) * math.Pow(p.BackoffFactor, float64(retryCount))
	if interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}
	return time.Duration(interval), nil
}

// Retry runs op until it succeeds, the policy is exhausted, or the context
// is canceled. When the policy is exhausted the last operation error is
// returned joined with ErrRetriesExhausted.
func Retry(ctx context.Context, op func(ctx context.Context) error, policy RetryPolicy) error {
	var retryCount int
	for {
		lastErr := op(ctx)
		if lastErr == nil {
			return nil
		}

		interval, err := policy.ComputeNextInterval(retryCount)
		if err != nil {
			return errors.Join(err, lastErr)
		}
		retryCount++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
