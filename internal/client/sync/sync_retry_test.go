package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/openmined/syncmirror/internal/remote"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Do(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	t.Run("gives up after all attempts", func(t *testing.T) {
		calls := 0
		err := noRetry.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on success", func(t *testing.T) {
		calls := 0
		err := noRetry.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			if calls < 2 {
				return boom
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("final errors are not retried", func(t *testing.T) {
		for _, final := range []error{remote.ErrUnauthorized, remote.ErrNotFound, context.Canceled} {
			calls := 0
			err := noRetry.Do(ctx, "op", func(ctx context.Context) error {
				calls++
				return fmt.Errorf("wrapped: %w", final)
			})
			assert.ErrorIs(t, err, final)
			assert.Equal(t, 1, calls, "retried %v", final)
		}
	})

	t.Run("canceled context stops waiting", func(t *testing.T) {
		slow := RetryPolicy{Name: "slow", Delays: []time.Duration{time.Hour}}
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := slow.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			cancel()
			return boom
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestRetryPolicy_Defaults(t *testing.T) {
	assert.Equal(t, 3, FolderRetryPolicy.Attempts())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, FolderRetryPolicy.Delays)
	assert.Equal(t, 3, TransferRetryPolicy.Attempts())
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, TransferRetryPolicy.Delays)
}
