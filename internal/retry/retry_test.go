package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"esdtscan/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		BackoffFactor:   2.0,
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"network scan error", errors.NewScanError(errors.ErrorTypeNetwork, errors.SeverityMedium, "GATEWAY_UNAVAILABLE", "502"), true},
		{"rate limited", errors.NewScanError(errors.ErrorTypeRateLimit, errors.SeverityMedium, "GATEWAY_RATE_LIMITED", "429"), true},
		{"client error", errors.NewScanError(errors.ErrorTypeNetwork, errors.SeverityMedium, "GATEWAY_CLIENT_ERROR", "400"), false},
		{"not found", errors.NewScanError(errors.ErrorTypeNetwork, errors.SeverityLow, "TRANSACTION_NOT_FOUND", "404"), false},
		{"malformed receipt", errors.ErrMalformedReceipt, false},
		{"connection refused", stderrors.New("dial tcp: connection refused"), true},
		{"plain error", stderrors.New("bad input"), false},
		{"canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableError(tt.err))
		})
	}
}

func TestExecute_SucceedsAfterRetries(t *testing.T) {
	retrier := NewRetrier(fastConfig(3), nil)

	calls := 0
	err := retrier.Execute(context.Background(), "fetch", func() error {
		calls++
		if calls < 3 {
			return stderrors.New("service unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecute_GivesUp(t *testing.T) {
	retrier := NewRetrier(fastConfig(2), nil)

	calls := 0
	cause := errors.NewScanError(errors.ErrorTypeTimeout, errors.SeverityMedium, "GATEWAY_TIMEOUT", "timeout")
	err := retrier.Execute(context.Background(), "fetch", func() error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, stderrors.Is(err, cause))
}

func TestExecute_NotRetryable(t *testing.T) {
	retrier := NewRetrier(fastConfig(5), nil)

	calls := 0
	err := retrier.Execute(context.Background(), "fetch", func() error {
		calls++
		return errors.ErrMalformedReceipt
	})

	assert.Equal(t, 1, calls)
	assert.True(t, stderrors.Is(err, errors.ErrMalformedReceipt))
}

func TestExecute_ContextCanceled(t *testing.T) {
	retrier := NewRetrier(&RetryConfig{MaxAttempts: 5, InitialInterval: time.Hour, BackoffFactor: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retrier.Execute(ctx, "fetch", func() error {
		calls++
		cancel()
		return stderrors.New("connection reset")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_ReturnsResult(t *testing.T) {
	retrier := NewRetrier(fastConfig(3), nil)

	calls := 0
	result, err := Do(context.Background(), retrier, "fetch", func() (string, error) {
		calls++
		if calls == 1 {
			return "", stderrors.New("i/o timeout")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestCalculateDelay(t *testing.T) {
	retrier := NewRetrier(&RetryConfig{
		MaxAttempts:     5,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     300 * time.Millisecond,
		BackoffFactor:   2.0,
	}, nil)

	assert.Equal(t, 100*time.Millisecond, retrier.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, retrier.calculateDelay(2))
	assert.Equal(t, 300*time.Millisecond, retrier.calculateDelay(3))
}

func TestGatewayRetryConfig(t *testing.T) {
	config := GatewayRetryConfig(3, time.Second)
	assert.Equal(t, 4, config.MaxAttempts)
	assert.Equal(t, time.Second, config.InitialInterval)

	config = GatewayRetryConfig(-1, 0)
	assert.Equal(t, 1, config.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, config.InitialInterval)
}

func TestNewRetrier_ClampsAttempts(t *testing.T) {
	retrier := NewRetrier(&RetryConfig{MaxAttempts: 0}, nil)
	assert.Equal(t, 1, retrier.GetConfig().MaxAttempts)
}
