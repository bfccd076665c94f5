package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceErrorMatchesByCategoryAndCode(t *testing.T) {
	sentinel := NewValidationError("DUPLICATE_PAN", "PAN already added")
	specific := NewValidationError("DUPLICATE_PAN", "PAN ABCDE1234F has already been added")

	assert.ErrorIs(t, fmt.Errorf("add failed: %w", specific), sentinel)
	assert.NotErrorIs(t, NewValidationError("INVALID_PAN", "bad"), sentinel)
	assert.Equal(t, ErrorCategoryValidation, CategoryOf(specific))
	assert.Equal(t, ErrorCategoryProcessing, CategoryOf(errors.New("plain")))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(NewStorageError("write", errors.New("disk"))))
	assert.False(t, IsRetryableError(NewValidationError("INVALID_PAN", "bad")))
	assert.True(t, IsRetryableError(context.DeadlineExceeded))
	assert.True(t, IsRetryableError(errors.New("dial tcp: connection refused")))
	assert.False(t, IsRetryableError(errors.New("permission denied")))
	assert.False(t, IsRetryableError(nil))
}

func TestRateLimiterSpacesRequests(t *testing.T) {
	limiter := NewHTTPRequestRateLimiter(30 * time.Millisecond)
	ctx := context.Background()

	started := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	require.NoError(t, limiter.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(started), 30*time.Millisecond)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, limiter.Wait(cancelled), context.Canceled)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, SleepContext(context.Background(), 0))
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}

func TestValidateAndApplyDefaults(t *testing.T) {
	cfg := &UnifiedConfiguration{
		Service: ServiceConfig{BaseURL: "https://api.example.test/"},
		Polling: PollingConfig{MaxRetries: -1},
	}
	cfg.ValidateAndApplyDefaults()

	assert.Equal(t, "https://api.example.test", cfg.Service.BaseURL)
	assert.Equal(t, DefaultPollMaxRetries, cfg.Polling.MaxRetries)
	assert.Equal(t, DefaultPollRetryInterval, cfg.Polling.RetryInterval)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestServiceMetrics(t *testing.T) {
	metrics := NewServiceMetrics("Test")
	metrics.RecordRequest(true, 10*time.Millisecond)
	metrics.RecordRequest(false, 30*time.Millisecond)
	metrics.IncrementCustomCounter("retries")
	metrics.IncrementCustomCounter("retries")

	snapshot := metrics.GetSnapshot()
	assert.Equal(t, int64(2), snapshot.TotalRequests)
	assert.Equal(t, 20*time.Millisecond, snapshot.AverageProcessingTime)
	assert.Equal(t, 50.0, metrics.GetSuccessRate())
	assert.Equal(t, int64(2), metrics.CustomCounter("retries"))
	assert.Equal(t, 30*time.Millisecond, snapshot.Performance.MaxProcessingTime)
}
