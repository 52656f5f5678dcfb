package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("%w: connection reset", ErrProviderUnavailable)
		}
		return nil
	}, IsTransient)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_PermanentErrorFailsImmediately(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		return fmt.Errorf("%w: bad bucket name", ErrInvalidConfiguration)
	}, IsTransient)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		return ErrProviderUnavailable
	}, IsTransient)

	require.Error(t, err)
	assert.Equal(t, 4, attempts) // initial try + 3 retries
	assert.Contains(t, err.Error(), "max retries")
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
}

func TestRetryWithBackoff_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, fastPolicy(), func() error {
		return ErrProviderUnavailable
	}, IsTransient)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrProviderUnavailable))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", ErrProviderUnavailable)))
	assert.True(t, IsTransient(errors.New("ThrottlingException: Rate exceeded")))
	assert.True(t, IsTransient(errors.New("dial tcp: i/o timeout")))
	assert.True(t, IsTransient(errors.New("503 Service Unavailable")))

	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(ErrInvalidConfiguration))
	assert.False(t, IsTransient(errors.New("AccessDenied: not authorized")))
}

func TestCalculateBackoff_CapsAtMax(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := calculateBackoff(attempt, time.Second, 5*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}
