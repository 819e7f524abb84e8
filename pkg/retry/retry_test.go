package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOpts(extra ...Option) []Option {
	opts := []Option{
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(5 * time.Millisecond),
		WithJitter(0),
	}
	return append(opts, extra...)
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, fastOpts()...)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesRetryableError(t *testing.T) {
	transient := errors.New("timeout")
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(transient)
		}
		return nil
	}, fastOpts()...)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableErrorFailsFast(t *testing.T) {
	plain := errors.New("bad input")
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return plain
	}, fastOpts()...)

	assert.ErrorIs(t, err, plain)
	assert.Equal(t, 1, calls, "plain errors are not retried by default")
}

func TestDo_PermanentErrorStopsRetries(t *testing.T) {
	fatal := errors.New("constraint violation")
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(fatal)
	}, fastOpts(WithRetryIf(func(error) bool { return true }))...)

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustedAttemptsReturnsUnwrappedError(t *testing.T) {
	transient := errors.New("still down")
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(transient)
	}, fastOpts()...)

	assert.Equal(t, transient, err)
	assert.Equal(t, 3, calls)
}

func TestDo_CustomRetryIf(t *testing.T) {
	transient := errors.New("connection reset")
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return transient
	}, fastOpts(WithRetryIf(func(err error) bool {
		return err.Error() == "connection reset"
	}))...)

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, func(ctx context.Context) error {
		calls++
		return Retryable(errors.New("never runs"))
	}, fastOpts()...)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	_ = Do(context.Background(), func(ctx context.Context) error {
		return Retryable(errors.New("flaky"))
	}, fastOpts(WithOnRetry(func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}))...)

	// Callback fires before each retry, not before the first attempt.
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	got, err := DoWithData(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", Retryable(errors.New("not yet"))
		}
		return "payload", nil
	}, fastOpts()...)

	require.NoError(t, err)
	assert.Equal(t, "payload", got)
	assert.Equal(t, 2, calls)
}

func TestCalculateDelay_Backoff(t *testing.T) {
	r := New(
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(300*time.Millisecond),
		WithMultiplier(2.0),
		WithJitter(0),
	)

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(3), "capped at max delay")
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(10))
}

func TestRetryableAndPermanentWrappers(t *testing.T) {
	assert.Nil(t, Retryable(nil))
	assert.Nil(t, Permanent(nil))

	inner := errors.New("inner")
	assert.True(t, IsRetryable(Retryable(inner)))
	assert.False(t, IsRetryable(inner))
	assert.True(t, IsPermanent(Permanent(inner)))
	assert.ErrorIs(t, Retryable(inner), inner)
}
