package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	fail := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		require.Error(t, cb.Execute(context.Background(), fail))
	}
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(context.Background(), fail)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	fail := func(ctx context.Context) error { return errors.New("boom") }
	succeed := func(ctx context.Context) error { return nil }

	require.Error(t, cb.Execute(context.Background(), fail))
	require.Error(t, cb.Execute(context.Background(), fail))
	require.NoError(t, cb.Execute(context.Background(), succeed))
	require.Error(t, cb.Execute(context.Background(), fail))
	require.Error(t, cb.Execute(context.Background(), fail))

	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})
	cb.nowFunc = func() time.Time { return now }

	require.Error(t, cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	}))
	assert.Equal(t, CircuitOpen, cb.State())

	// Before the reset timeout, calls are rejected outright.
	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	assert.True(t, errors.Is(err, ErrCircuitOpen))

	// After the reset timeout a probe is allowed; success closes the circuit.
	now = now.Add(31 * time.Second)
	require.NoError(t, cb.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})
	cb.nowFunc = func() time.Time { return now }

	boom := func(ctx context.Context) error { return errors.New("boom") }
	require.Error(t, cb.Execute(context.Background(), boom))

	now = now.Add(31 * time.Second)
	require.Error(t, cb.Execute(context.Background(), boom))

	now = now.Add(time.Second)
	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	assert.True(t, errors.Is(err, ErrCircuitOpen), "failed probe must reopen the circuit")
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	cb.Reset()

	assert.Equal(t, []string{"closed->open", "open->closed"}, transitions)
}

func TestExecuteVal_PreservesValue(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	val, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (string, error) {
		return "verdict", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "verdict", val)
}

func TestExecuteVal_OpenCircuitReturnsZero(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	_, _ = ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})

	val, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Zero(t, val)
}
