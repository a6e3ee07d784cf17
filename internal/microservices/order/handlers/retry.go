package handlers

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/MySagra/mysagra-sub000/internal/domain"
)

const conflictAttempts = 3

var conflictBackoff = 25 * time.Millisecond

// retryConflict runs fn again while the store aborts it as a serialization
// conflict, up to conflictAttempts times in all. Each attempt is a fresh
// transaction; the aborted one left nothing behind. Any other error, or the
// last conflict, is returned as is.
func retryConflict[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	for attempt := 1; ; attempt++ {
		out, err := fn()
		if err == nil || !errors.Is(err, domain.ErrConflict) || attempt == conflictAttempts {
			return out, err
		}

		wait := conflictBackoff*time.Duration(attempt) + rand.N(conflictBackoff)
		requestLogger(ctx).Warn("conflict_retry", map[string]any{
			"op": op, "attempt": attempt, "wait_ms": wait.Milliseconds(),
		})
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return out, err
		case <-t.C:
		}
	}
}
