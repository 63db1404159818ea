package retry

import (
	"context"
	"errors"

	"tillclose/backend/internal/domain"
)

// Once runs fn and, when it fails with a transient error, runs it exactly one
// more time. Validation errors and context cancellation are returned as-is.
func Once(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || !Transient(ctx, err) {
		return err
	}
	return fn(ctx)
}

// Transient reports whether err is worth a second attempt.
func Transient(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !domain.IsValidation(err)
}
