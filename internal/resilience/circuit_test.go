package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingCall(ctx context.Context) error { return eris.New("oracle down") }

func succeedingCall(ctx context.Context) error { return nil }

func TestCircuitOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), failingCall)
		require.Error(t, err)
	}

	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(context.Background(), succeedingCall)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitSuccessResetsCounter(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	require.Error(t, cb.Execute(context.Background(), failingCall))
	require.Error(t, cb.Execute(context.Background(), failingCall))
	require.NoError(t, cb.Execute(context.Background(), succeedingCall))
	require.Error(t, cb.Execute(context.Background(), failingCall))
	require.Error(t, cb.Execute(context.Background(), failingCall))

	assert.Equal(t, CircuitClosed, cb.State(), "counter should have reset after the success")
}

func TestCircuitHalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})
	cb.nowFunc = func() time.Time { return now }

	require.Error(t, cb.Execute(context.Background(), failingCall))
	assert.Equal(t, CircuitOpen, cb.State())

	// Before the reset timeout, calls are rejected.
	err := cb.Execute(context.Background(), succeedingCall)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	// After the timeout, a probe is allowed and success closes the circuit.
	now = now.Add(31 * time.Second)
	require.NoError(t, cb.Execute(context.Background(), succeedingCall))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.nowFunc = func() time.Time { return now }

	require.Error(t, cb.Execute(context.Background(), failingCall))

	now = now.Add(11 * time.Second)
	require.Error(t, cb.Execute(context.Background(), failingCall))

	// The failed probe reopens the circuit immediately.
	err := cb.Execute(context.Background(), succeedingCall)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitShouldTripFilter(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       IsTransient,
	})

	// A contract error does not count toward the threshold.
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return NewContractError("classify", eris.New("bad json"))
	})
	require.Error(t, err)
	assert.Equal(t, CircuitClosed, cb.State())

	// A transport error does.
	err = cb.Execute(context.Background(), func(ctx context.Context) error {
		return NewTransportError(eris.New("503"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})

	require.Error(t, cb.Execute(context.Background(), failingCall))
	assert.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	require.NoError(t, cb.Execute(context.Background(), succeedingCall))
}

func TestExecuteValPreservesValue(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	val, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestExecuteValRejectedWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	require.Error(t, cb.Execute(context.Background(), failingCall))

	val, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (string, error) {
		return "should not run", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Empty(t, val)
}

func TestStateTransitionsCallback(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Second,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	require.Error(t, cb.Execute(context.Background(), failingCall))
	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Execute(context.Background(), succeedingCall))

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}
