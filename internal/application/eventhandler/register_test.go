package eventhandler

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/pkg/logger"
)

type recordingRegistrar struct {
	async map[shared.EventType][]string
	sync  map[shared.EventType][]string
}

func newRecordingRegistrar() *recordingRegistrar {
	return &recordingRegistrar{
		async: make(map[shared.EventType][]string),
		sync:  make(map[shared.EventType][]string),
	}
}

func (r *recordingRegistrar) Register(et shared.EventType, name string, h shared.EventHandler) error {
	r.async[et] = append(r.async[et], name)
	return nil
}

func (r *recordingRegistrar) RegisterSync(et shared.EventType, name string, h shared.EventHandler) error {
	r.sync[et] = append(r.sync[et], name)
	return nil
}

type countingProjector struct{ applied int }

func (p *countingProjector) Apply(event shared.Event) error {
	p.applied++
	return nil
}

func quietAudit() *SessionAuditHandler {
	return NewSessionAuditHandler(logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError}))
}

func TestRegisterAll(t *testing.T) {
	r := newRecordingRegistrar()
	require.NoError(t, RegisterAll(r, &countingProjector{}, quietAudit()))

	// The projection is synchronous so per-user event order is preserved.
	for _, et := range []shared.EventType{
		shared.EventSessionStarted,
		shared.EventSessionEnded,
		shared.EventMasteryUpdated,
		shared.EventReviewScheduled,
		shared.EventCourseCompleted,
	} {
		assert.Contains(t, r.sync[et], "learner_progress_view", et)
	}

	// The audit log is asynchronous.
	for _, et := range []shared.EventType{
		shared.EventSessionStarted,
		shared.EventSessionEnded,
		shared.EventCourseCompleted,
		shared.EventGraphLoaded,
	} {
		assert.Contains(t, r.async[et], "session_audit", et)
	}

	assert.NotContains(t, r.sync[shared.EventGraphLoaded], "learner_progress_view")
}

func TestSessionAuditHandler_NeverFails(t *testing.T) {
	audit := quietAudit()

	events := []shared.Event{
		shared.NewSessionStartedEvent("s1", "u1", "course-go"),
		shared.NewSessionEndedEvent("s1", "u1", "user_requested", 5*time.Minute, 7, 0.8, false),
		shared.NewSessionEndedEvent("s2", "u1", "shutdown", time.Minute, 2, 0.5, true),
		shared.NewCourseCompletedEvent("s1", "u1", "course-go"),
		shared.NewGraphLoadedEvent("course-go", 3, 12),
		shared.NewMasteryUpdatedEvent("u1", "kc-a", 0.3, 0.45, true),
	}
	for _, e := range events {
		assert.NoError(t, audit.Handle(e), e.EventType())
	}
}
