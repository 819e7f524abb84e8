package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
)

// ══════════════════════════════════════════════════════════════════════════════
// WARM COURSE CACHE JOB
// ══════════════════════════════════════════════════════════════════════════════

// GraphWarmer is the slice of the graph loader this job needs.
type GraphWarmer interface {
	Load(ctx context.Context, courseID string) (*skillgraph.SkillGraph, error)
}

// WarmCourseCacheJob pre-loads the configured courses so the first session
// of the day never pays the catalog read and graph build. A course that
// fails validation is logged and skipped, the rest still warm.
type WarmCourseCacheJob struct {
	loader  GraphWarmer
	courses []string
	logger  *slog.Logger
	config  WarmCourseCacheConfig

	lastRunStats atomic.Value // *WarmCourseCacheStats
}

// WarmCourseCacheConfig contains configuration for the warm job.
type WarmCourseCacheConfig struct {
	// Timeout is the maximum duration for the whole run.
	Timeout time.Duration
}

// DefaultWarmCourseCacheConfig returns sensible defaults.
func DefaultWarmCourseCacheConfig() WarmCourseCacheConfig {
	return WarmCourseCacheConfig{
		Timeout: 5 * time.Minute,
	}
}

// WarmCourseCacheStats contains statistics from a warm run.
type WarmCourseCacheStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Requested   int
	Warmed      int
	Failed      int
}

// NewWarmCourseCacheJob creates the warm job for the given course list.
func NewWarmCourseCacheJob(loader GraphWarmer, courses []string, logger *slog.Logger, config WarmCourseCacheConfig) *WarmCourseCacheJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &WarmCourseCacheJob{
		loader:  loader,
		courses: courses,
		logger:  logger,
		config:  config,
	}
}

// Name returns the job name.
func (j *WarmCourseCacheJob) Name() string {
	return "warm_course_cache"
}

// Description returns a human-readable description.
func (j *WarmCourseCacheJob) Description() string {
	return "Pre-loads configured course graphs into the cache"
}

// Run executes the warm pass.
func (j *WarmCourseCacheJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &WarmCourseCacheStats{
		StartedAt: startedAt,
		Requested: len(j.courses),
	}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	for _, courseID := range j.courses {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := j.loader.Load(ctx, courseID); err != nil {
			stats.Failed++
			j.logger.Error("failed to warm course",
				"course_id", courseID,
				"error", err,
			)
			continue
		}
		stats.Warmed++
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("course cache warm completed",
		"requested", stats.Requested,
		"warmed", stats.Warmed,
		"failed", stats.Failed,
		"duration", stats.Duration.String(),
	)

	return nil
}

// LastRunStats returns statistics from the last warm run.
func (j *WarmCourseCacheJob) LastRunStats() *WarmCourseCacheStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*WarmCourseCacheStats)
}
