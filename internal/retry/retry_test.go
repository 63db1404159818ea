package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillclose/backend/internal/domain"
)

func TestOnceRetriesTransientFailureOnce(t *testing.T) {
	calls := 0
	err := Once(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestOnceGivesUpAfterSecondFailure(t *testing.T) {
	calls := 0
	err := Once(context.Background(), func(context.Context) error {
		calls++
		return errors.New("connection reset")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestOnceDoesNotRetryValidationOrCancellation(t *testing.T) {
	calls := 0
	err := Once(context.Background(), func(context.Context) error {
		calls++
		return domain.ErrInvalidAmount
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls = 0
	_ = Once(ctx, func(ctx context.Context) error {
		calls++
		return ctx.Err()
	})
	assert.Equal(t, 1, calls)
}
