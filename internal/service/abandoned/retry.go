package abandoned

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"abandoned-tracker/internal/domain"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 100 * time.Millisecond
	retryJitterMax        = 100 * time.Millisecond
)

// withRetry runs op with exponential backoff plus random jitter. Transient
// store errors get another attempt; validation and not-found outcomes are
// returned immediately since repeating them cannot change the result.
func (s *Service) withRetry(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var verrs domain.ValidationErrors
		if errors.Is(err, domain.ErrNotFound) || errors.As(err, &verrs) {
			return err
		}
		if attempt == s.retryAttempts {
			break
		}

		delay := s.retryBaseDelay*time.Duration(1<<(attempt-1)) +
			time.Duration(rand.Int63n(int64(retryJitterMax)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
