package migrators

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyDo(t *testing.T) {
	t.Run("retries transient errors until success", func(t *testing.T) {
		calls := 0
		var notified []int
		err := fastRetry.Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return transient()
			}
			return nil
		}, func(err error, attempt int, wait time.Duration) {
			notified = append(notified, attempt)
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, notified)
	})

	t.Run("returns permanent errors at once", func(t *testing.T) {
		calls := 0
		err := fastRetry.Do(context.Background(), func() error {
			calls++
			return permanent()
		}, nil)
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		var retryErr *RetryError
		assert.False(t, errors.As(err, &retryErr))
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := fastRetry.Do(context.Background(), func() error {
			calls++
			return transient()
		}, nil)
		var retryErr *RetryError
		require.True(t, errors.As(err, &retryErr))
		assert.Equal(t, fastRetry.MaxAttempts, retryErr.Attempts)
		assert.Equal(t, fastRetry.MaxAttempts, calls)
	})

	t.Run("gives up after max duration", func(t *testing.T) {
		p := RetryPolicy{MaxDuration: 20 * time.Millisecond, MinDelay: 5 * time.Millisecond, MaxDelay: 5 * time.Millisecond}
		err := p.Do(context.Background(), func() error { return transient() }, nil)
		var retryErr *RetryError
		require.True(t, errors.As(err, &retryErr))
		assert.GreaterOrEqual(t, retryErr.Attempts, 2)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		p := RetryPolicy{MinDelay: time.Hour, MaxDelay: time.Hour}
		calls := 0
		err := p.Do(ctx, func() error {
			calls++
			cancel()
			return transient()
		}, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
