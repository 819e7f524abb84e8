package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ──────────────────────────────────────────────────────────────────────────────
// Expire idle sessions
// ──────────────────────────────────────────────────────────────────────────────

type fakeExpirer struct {
	active  int
	expired int
}

func (f *fakeExpirer) ExpireIdle(ctx context.Context) int {
	f.active -= f.expired
	return f.expired
}

func (f *fakeExpirer) ActiveSessions() int { return f.active }

func TestExpireIdleSessionsJob(t *testing.T) {
	eng := &fakeExpirer{active: 5, expired: 2}
	job := NewExpireIdleSessionsJob(eng, quietLogger(), DefaultExpireIdleSessionsConfig())

	assert.Equal(t, "expire_idle_sessions", job.Name())
	assert.Nil(t, job.LastRunStats())

	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 5, stats.ActiveBefore)
	assert.Equal(t, 2, stats.ExpiredCount)
	assert.Equal(t, 3, stats.ActiveAfter)
	assert.False(t, stats.CompletedAt.Before(stats.StartedAt))
}

// ──────────────────────────────────────────────────────────────────────────────
// Due review digest
// ──────────────────────────────────────────────────────────────────────────────

type fakeDueCounter struct {
	counts map[string]int
	err    error
}

func (f *fakeDueCounter) DueCounts(ctx context.Context, now time.Time) (map[string]int, error) {
	return f.counts, f.err
}

func TestDueReviewDigestJob(t *testing.T) {
	counter := &fakeDueCounter{counts: map[string]int{
		"u1": 3,
		"u2": 70,
		"u3": 1,
	}}
	job := NewDueReviewDigestJob(counter, quietLogger(), DefaultDueReviewDigestConfig())

	assert.Equal(t, "due_review_digest", job.Name())
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.UsersWithDue)
	assert.Equal(t, 74, stats.TotalDueItems)
	assert.Equal(t, 70, stats.LargestBacklog)
}

func TestDueReviewDigestJob_CounterFailure(t *testing.T) {
	boom := errors.New("connection refused")
	job := NewDueReviewDigestJob(&fakeDueCounter{err: boom}, quietLogger(), DefaultDueReviewDigestConfig())

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, job.LastRunStats())
}

// ──────────────────────────────────────────────────────────────────────────────
// Warm course cache
// ──────────────────────────────────────────────────────────────────────────────

type fakeWarmer struct {
	loaded []string
	fail   map[string]error
}

func (f *fakeWarmer) Load(ctx context.Context, courseID string) (*skillgraph.SkillGraph, error) {
	if err := f.fail[courseID]; err != nil {
		return nil, err
	}
	f.loaded = append(f.loaded, courseID)
	return nil, nil
}

func TestWarmCourseCacheJob(t *testing.T) {
	warmer := &fakeWarmer{
		fail: map[string]error{"course-broken": errors.New("cycle detected")},
	}
	job := NewWarmCourseCacheJob(warmer,
		[]string{"course-go", "course-broken", "course-sql"},
		quietLogger(), DefaultWarmCourseCacheConfig())

	assert.Equal(t, "warm_course_cache", job.Name())
	require.NoError(t, job.Run(context.Background()), "one bad course must not fail the run")

	assert.Equal(t, []string{"course-go", "course-sql"}, warmer.loaded)

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Requested)
	assert.Equal(t, 2, stats.Warmed)
	assert.Equal(t, 1, stats.Failed)
}

func TestWarmCourseCacheJob_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := NewWarmCourseCacheJob(&fakeWarmer{}, []string{"course-go"}, quietLogger(), WarmCourseCacheConfig{})

	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
}
