package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("backend down")

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errDown
		})
	}
}

func succeed(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
}

func TestExecute_OpensAfterThreshold(t *testing.T) {
	cb := New("test", WithFailureThreshold(3))

	failN(cb, 2)
	assert.True(t, cb.IsClosed())

	failN(cb, 1)
	assert.True(t, cb.IsOpen())

	// Requests are rejected without touching the backend.
	called := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestExecute_HalfOpenRecovery(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(2),
		WithTimeout(10*time.Millisecond),
		WithMaxHalfOpenRequests(2),
	)

	failN(cb, 1)
	require.True(t, cb.IsOpen())

	time.Sleep(20 * time.Millisecond)

	// First probe after the timeout moves the breaker to half-open.
	require.NoError(t, succeed(cb))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, succeed(cb))
	assert.True(t, cb.IsClosed())
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(1),
		WithTimeout(10*time.Millisecond),
	)

	failN(cb, 1)
	require.True(t, cb.IsOpen())

	time.Sleep(20 * time.Millisecond)
	failN(cb, 1)
	assert.True(t, cb.IsOpen())
}

func TestExecute_HalfOpenLimitsProbes(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(5),
		WithTimeout(10*time.Millisecond),
		WithMaxHalfOpenRequests(1),
	)

	failN(cb, 1)
	time.Sleep(20 * time.Millisecond)

	// The timeout check admits one probe; the breaker stays half-open
	// because the success threshold is not reached.
	require.NoError(t, succeed(cb))
	require.Equal(t, StateHalfOpen, cb.State())

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrTooManyRequests)
}

func TestExecuteWithFallback(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))
	failN(cb, 1)
	require.True(t, cb.IsOpen())

	fallbackCalled := false
	err := cb.ExecuteWithFallback(context.Background(),
		func(ctx context.Context) error { return nil },
		func(err error) error {
			fallbackCalled = true
			return nil
		})

	require.NoError(t, err)
	assert.True(t, fallbackCalled)
}

func TestExecuteWithFallback_BackendErrorPassesThrough(t *testing.T) {
	cb := New("test", WithFailureThreshold(10))

	err := cb.ExecuteWithFallback(context.Background(),
		func(ctx context.Context) error { return errDown },
		func(err error) error { return nil })

	assert.ErrorIs(t, err, errDown)
}

func TestIsFailure_CustomClassifier(t *testing.T) {
	benign := errors.New("not found")
	cb := New("test",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool {
			return !errors.Is(err, benign)
		}),
	)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return benign })
	assert.True(t, cb.IsClosed(), "classified-benign errors must not trip the breaker")

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errDown })
	assert.True(t, cb.IsOpen())
}

func TestOnStateChange(t *testing.T) {
	type transition struct{ from, to State }
	var transitions []transition

	cb := New("store",
		WithFailureThreshold(1),
		WithOnStateChange(func(name string, from, to State) {
			assert.Equal(t, "store", name)
			transitions = append(transitions, transition{from, to})
		}),
	)

	failN(cb, 1)
	require.Equal(t, []transition{{StateClosed, StateOpen}}, transitions)
}

func TestCountsAndReset(t *testing.T) {
	cb := New("test", WithFailureThreshold(10))

	failN(cb, 2)
	require.NoError(t, succeed(cb))

	counts := cb.Counts()
	assert.Equal(t, 3, counts.Requests)
	assert.Equal(t, 2, counts.TotalFailures)
	assert.Equal(t, 1, counts.TotalSuccesses)
	assert.Equal(t, 1, counts.ConsecutiveSuccesses)
	assert.Zero(t, counts.ConsecutiveFailures)

	cb.Reset()
	assert.True(t, cb.IsClosed())
	assert.Zero(t, cb.Counts().Requests)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
