package messaging

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

func quietBusConfig(async bool) InMemoryEventBusConfig {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = async
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func startedEvent() shared.Event {
	return shared.NewSessionStartedEvent("s1", "u1", "course-go")
}

func TestPublish_SyncDeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig(false))
	defer bus.Close()

	var sessionStarted, sessionEnded atomic.Int64
	require.NoError(t, bus.Subscribe(shared.EventSessionStarted, func(e shared.Event) error {
		sessionStarted.Add(1)
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventSessionEnded, func(e shared.Event) error {
		sessionEnded.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(startedEvent()))

	assert.Equal(t, int64(1), sessionStarted.Load())
	assert.Zero(t, sessionEnded.Load(), "handler for another type must not fire")
}

func TestPublish_AsyncDelivers(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig(true))
	defer bus.Close()

	var calls atomic.Int64
	require.NoError(t, bus.Subscribe(shared.EventSessionStarted, func(e shared.Event) error {
		calls.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(startedEvent()))
	require.NoError(t, bus.Publish(startedEvent()))

	assert.Eventually(t, func() bool {
		return calls.Load() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestSubscribeAll(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig(false))
	defer bus.Close()

	var seen atomic.Int64
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		seen.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(startedEvent()))
	require.NoError(t, bus.Publish(shared.NewCourseCompletedEvent("s1", "u1", "course-go")))

	assert.Equal(t, int64(2), seen.Load())
}

func TestPublish_NilHandlerAndEvent(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig(false))
	defer bus.Close()

	assert.Error(t, bus.Subscribe(shared.EventSessionStarted, nil))
	assert.Error(t, bus.SubscribeAll(nil))
	assert.Error(t, bus.Publish(nil))
}

func TestClose(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig(true))
	require.NoError(t, bus.Close())

	// Close is idempotent; the bus refuses further work.
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(startedEvent()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventSessionStarted, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestBusMetrics(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig(false))
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventSessionStarted, func(e shared.Event) error {
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventSessionStarted, func(e shared.Event) error {
		return errors.New("consumer down")
	}))

	require.NoError(t, bus.Publish(startedEvent()))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.InDelta(t, 0.5, snap.HandlerSuccessRate, 1e-9)
}
