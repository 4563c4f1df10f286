package gemini

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWithRateLimitRetry_RetriesOnlyRateLimits(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, Delay: time.Millisecond}

	calls := 0
	got, err := WithRateLimitRetry(context.Background(), policy, zap.NewNop(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &GatewayError{Code: 429, Message: "quota"}
		}
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)

	calls = 0
	boom := &GatewayError{Code: 500, Message: "boom"}
	_, err = WithRateLimitRetry(context.Background(), policy, zap.NewNop(), func(context.Context) (string, error) {
		calls++
		return "", boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestWithRateLimitRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := WithRateLimitRetry(context.Background(), RetryPolicy{Attempts: 2}, zap.NewNop(), func(context.Context) (int, error) {
		calls++
		return 0, &GatewayError{Status: "RESOURCE_EXHAUSTED"}
	})
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, 2, calls)
}
