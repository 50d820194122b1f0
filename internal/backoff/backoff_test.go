package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantBackoffPolicy(t *testing.T) {
	t.Parallel()

	p := &ConstantBackoffPolicy{Interval: time.Second, MaxRetries: 2}

	interval, err := p.ComputeNextInterval(0)
	require.NoError(t, err)
	assert.Equal(t, time.Second, interval)

	interval, err = p.ComputeNextInterval(1)
	require.NoError(t, err)
	assert.Equal(t, time.Second, interval)

	_, err = p.ComputeNextInterval(2)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestExponentialBackoffPolicy(t *testing.T) {
	t.Parallel()

	p := NewExponentialBackoffPolicy(time.Second)

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{10, 10 * time.Second}, // capped at MaxInterval
	}
	for _, tc := range tests {
		interval, err := p.ComputeNextInterval(tc.retryCount)
		require.NoError(t, err)
		assert.Equal(t, tc.want, interval)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	var calls int
	err := Retry(context.Background(), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, &ConstantBackoffPolicy{Interval: time.Millisecond, MaxRetries: 5})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausted(t *testing.T) {
	t.Parallel()

	opErr := errors.New("broken")
	err := Retry(context.Background(), func(_ context.Context) error {
		return opErr
	}, &ConstantBackoffPolicy{Interval: time.Millisecond, MaxRetries: 2})

	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, opErr)
}

func TestRetryCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, func(_ context.Context) error {
		return errors.New("transient")
	}, NewConstantBackoffPolicy(time.Minute))

	assert.ErrorIs(t, err, context.Canceled)
}
