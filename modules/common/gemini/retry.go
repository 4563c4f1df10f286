package gemini

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy - 429 에러 시 같은 호출을 재시도
type RetryPolicy struct {
	Attempts int           // total attempts, <=1 means no retry
	Delay    time.Duration // wait between attempts
}

// IsRateLimited reports whether err is a normalized 429 response.
func IsRateLimited(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.RateLimited()
}

// WithRateLimitRetry runs call until it succeeds, fails with anything other
// than a rate limit, or the attempts are exhausted. The last error is returned
// unchanged.
func WithRateLimitRetry[T any](ctx context.Context, policy RetryPolicy, log *zap.Logger, call func(context.Context) (T, error)) (T, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := call(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRateLimited(err) || attempt == attempts {
			break
		}

		log.Warn("Gemini rate limited, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", policy.Delay),
		)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(policy.Delay):
		}
	}
	return zero, lastErr
}
