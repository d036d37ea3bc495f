package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/config"
)

func TestExecute_OpensAfterFailures(t *testing.T) {
	w := NewWrapper(FromSettings("test-open", config.CircuitBreakerConfig{
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	}))
	boom := errors.New("connection refused")

	for i := 0; i < 2; i++ {
		_, err := Execute(context.Background(), w, func() (int, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, w.State())

	calls := 0
	_, err := Execute(context.Background(), w, func() (int, error) {
		calls++
		return 1, nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Zero(t, calls)
}

func TestExecute_IsSuccessfulKeepsBreakerClosed(t *testing.T) {
	cfg := FromSettings("test-successful", config.CircuitBreakerConfig{FailureRatio: 0.5, MinRequests: 1})
	ignored := errors.New("remote rejected payload")
	cfg.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, ignored) }
	w := NewWrapper(cfg)

	for i := 0; i < 5; i++ {
		_, err := Execute(context.Background(), w, func() (struct{}, error) { return struct{}{}, ignored })
		assert.ErrorIs(t, err, ignored)
	}
	assert.Equal(t, gobreaker.StateClosed, w.State())
}

func TestExecute_ReturnsTypedResult(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-typed"))
	got, err := Execute(context.Background(), w, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestExecute_CancelledContext(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-cancel"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Execute(ctx, w, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, context.Canceled)
}
