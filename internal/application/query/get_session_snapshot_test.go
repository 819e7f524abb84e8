package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyo-hub/lyo-session-engine/internal/application/engine"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/session"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

type fakeInspector struct {
	snap *engine.SessionSnapshot
	err  error
}

func (f *fakeInspector) Snapshot(ctx context.Context, sessionID string) (*engine.SessionSnapshot, error) {
	return f.snap, f.err
}

func TestGetSessionSnapshot_Validation(t *testing.T) {
	h := NewGetSessionSnapshotHandler(&fakeInspector{}, nil)

	_, err := h.Handle(context.Background(), GetSessionSnapshotQuery{})
	assert.True(t, shared.IsValidation(err))
}

func TestGetSessionSnapshot_LiveSession(t *testing.T) {
	snap := &engine.SessionSnapshot{}
	h := NewGetSessionSnapshotHandler(&fakeInspector{snap: snap}, nil)

	result, err := h.Handle(context.Background(), GetSessionSnapshotQuery{SessionID: "s1"})
	require.NoError(t, err)

	assert.True(t, result.Live)
	assert.Same(t, snap, result.Snapshot)
	assert.Nil(t, result.Summary)
}

func TestGetSessionSnapshot_EndedSessionFromArchive(t *testing.T) {
	archive := &memArchive{}
	require.NoError(t, archive.SaveSummary(context.Background(), &session.Summary{
		SessionID: "s1", UserID: "u1", CourseID: "course-go", Reason: "course_complete"}))

	h := NewGetSessionSnapshotHandler(&fakeInspector{err: shared.ErrSessionNotFound}, archive)

	result, err := h.Handle(context.Background(), GetSessionSnapshotQuery{SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)

	assert.False(t, result.Live)
	require.NotNil(t, result.Summary)
	assert.Equal(t, "course_complete", result.Summary.Reason)
}

func TestGetSessionSnapshot_NotFound(t *testing.T) {
	inspector := &fakeInspector{err: shared.ErrSessionNotFound}

	t.Run("no user id for archive lookup", func(t *testing.T) {
		h := NewGetSessionSnapshotHandler(inspector, &memArchive{})
		_, err := h.Handle(context.Background(), GetSessionSnapshotQuery{SessionID: "s1"})
		assert.ErrorIs(t, err, shared.ErrSessionNotFound)
	})

	t.Run("unknown in archive", func(t *testing.T) {
		h := NewGetSessionSnapshotHandler(inspector, &memArchive{})
		_, err := h.Handle(context.Background(), GetSessionSnapshotQuery{SessionID: "ghost", UserID: "u1"})
		assert.ErrorIs(t, err, shared.ErrSessionNotFound)
	})
}

func TestGetSessionSnapshot_EngineFailurePropagates(t *testing.T) {
	boom := errors.New("mailbox timeout")
	h := NewGetSessionSnapshotHandler(&fakeInspector{err: boom}, &memArchive{})

	_, err := h.Handle(context.Background(), GetSessionSnapshotQuery{SessionID: "s1", UserID: "u1"})
	assert.ErrorIs(t, err, boom)
}
