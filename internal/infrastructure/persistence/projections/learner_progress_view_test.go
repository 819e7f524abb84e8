package projections

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

func TestApply_SessionLifecycle(t *testing.T) {
	v := NewLearnerProgressView()

	require.NoError(t, v.Apply(shared.NewSessionStartedEvent("s1", "u1", "course-go")))
	require.NoError(t, v.Apply(shared.NewSessionEndedEvent(
		"s1", "u1", "user_requested", 5*time.Minute, 7, 0.8, false)))

	card, ok := v.Get("u1")
	require.True(t, ok)
	assert.Equal(t, 1, card.SessionsStarted)
	assert.Equal(t, 1, card.SessionsEnded)
	assert.Equal(t, "user_requested", card.LastSessionReason)
	assert.InDelta(t, 0.8, card.LastSessionAccuracy, 1e-9)
	assert.Equal(t, 7, card.TotalItemsSeen)
	assert.False(t, card.LastSessionUnsynced)
	assert.Empty(t, v.UnsyncedUsers())
}

func TestApply_UnsyncedSet(t *testing.T) {
	v := NewLearnerProgressView()

	require.NoError(t, v.Apply(shared.NewSessionEndedEvent(
		"s1", "u1", "shutdown", time.Minute, 2, 0.5, true)))
	assert.Equal(t, []string{"u1"}, v.UnsyncedUsers())

	card, ok := v.Get("u1")
	require.True(t, ok)
	assert.True(t, card.LastSessionUnsynced)

	// A clean session end clears the user from the unsynced set.
	require.NoError(t, v.Apply(shared.NewSessionEndedEvent(
		"s2", "u1", "user_requested", time.Minute, 3, 1.0, false)))
	assert.Empty(t, v.UnsyncedUsers())
}

func TestApply_MasteryAndReviews(t *testing.T) {
	v := NewLearnerProgressView()

	require.NoError(t, v.Apply(shared.NewMasteryUpdatedEvent("u1", "kc-loops", 0.3, 0.45, true)))
	require.NoError(t, v.Apply(shared.NewMasteryUpdatedEvent("u1", "kc-loops", 0.45, 0.41, false)))
	require.NoError(t, v.Apply(shared.NewMasteryUpdatedEvent("u1", "kc-funcs", 0.3, 0.42, true)))

	due := time.Now().Add(24 * time.Hour)
	require.NoError(t, v.Apply(shared.NewReviewScheduledEvent("u1", "alo-1", 1, due, false)))
	require.NoError(t, v.Apply(shared.NewReviewScheduledEvent("u1", "alo-1", 1, due, true)))

	card, ok := v.Get("u1")
	require.True(t, ok)
	assert.Equal(t, 3, card.SignalsTotal)
	assert.Equal(t, 2, card.SignalsCorrect)
	assert.InDelta(t, 0.41, card.Thetas["kc-loops"], 1e-9)
	assert.InDelta(t, 0.42, card.Thetas["kc-funcs"], 1e-9)
	assert.Equal(t, 2, card.ReviewsScheduled)
	assert.Equal(t, 1, card.ReviewLapses)
}

func TestApply_CourseCompletedIsDeduplicated(t *testing.T) {
	v := NewLearnerProgressView()

	require.NoError(t, v.Apply(shared.NewCourseCompletedEvent("s1", "u1", "course-go")))
	require.NoError(t, v.Apply(shared.NewCourseCompletedEvent("s2", "u1", "course-go")))
	require.NoError(t, v.Apply(shared.NewCourseCompletedEvent("s3", "u1", "course-sql")))

	card, ok := v.Get("u1")
	require.True(t, ok)
	assert.Equal(t, []string{"course-go", "course-sql"}, card.CoursesCompleted)
}

func TestApply_UnknownEventIsIgnored(t *testing.T) {
	v := NewLearnerProgressView()

	require.NoError(t, v.Apply(shared.NewGraphLoadedEvent("course-go", 3, 12)))
	assert.Zero(t, v.Len())
}

func TestVersionAdvances(t *testing.T) {
	v := NewLearnerProgressView()

	version, _ := v.Version()
	assert.Zero(t, version)

	require.NoError(t, v.Apply(shared.NewSessionStartedEvent("s1", "u1", "course-go")))
	require.NoError(t, v.Apply(shared.NewSessionStartedEvent("s2", "u2", "course-go")))

	version, lastUpdated := v.Version()
	assert.Equal(t, int64(2), version)
	assert.False(t, lastUpdated.IsZero())
}

func TestAll_SortedByUserID(t *testing.T) {
	v := NewLearnerProgressView()

	require.NoError(t, v.Apply(shared.NewSessionStartedEvent("s1", "u-b", "course-go")))
	require.NoError(t, v.Apply(shared.NewSessionStartedEvent("s2", "u-a", "course-go")))
	require.NoError(t, v.Apply(shared.NewSessionStartedEvent("s3", "u-c", "course-go")))

	cards := v.All()
	require.Len(t, cards, 3)
	assert.Equal(t, "u-a", cards[0].UserID)
	assert.Equal(t, "u-b", cards[1].UserID)
	assert.Equal(t, "u-c", cards[2].UserID)
}

func TestGet_ReturnsCopy(t *testing.T) {
	v := NewLearnerProgressView()
	require.NoError(t, v.Apply(shared.NewMasteryUpdatedEvent("u1", "kc-loops", 0.3, 0.45, true)))

	card, ok := v.Get("u1")
	require.True(t, ok)
	card.Thetas["kc-loops"] = 99

	fresh, ok := v.Get("u1")
	require.True(t, ok)
	assert.InDelta(t, 0.45, fresh.Thetas["kc-loops"], 1e-9)
}

func TestForget(t *testing.T) {
	v := NewLearnerProgressView()
	require.NoError(t, v.Apply(shared.NewSessionEndedEvent(
		"s1", "u1", "shutdown", time.Minute, 1, 0, true)))

	v.Forget("u1")

	_, ok := v.Get("u1")
	assert.False(t, ok)
	assert.Empty(t, v.UnsyncedUsers())
}
