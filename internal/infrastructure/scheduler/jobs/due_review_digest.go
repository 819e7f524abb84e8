package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// DUE REVIEW DIGEST JOB
// ══════════════════════════════════════════════════════════════════════════════

// DueCounter reports how many review items are due per user. Implemented
// by the postgres review repository.
type DueCounter interface {
	DueCounts(ctx context.Context, now time.Time) (map[string]int, error)
}

// DueReviewDigestJob takes a daily census of due review items across all
// users. The digest drives operator dashboards and lets downstream
// consumers (reminder senders, analytics) act on the backlog without
// scanning the queue themselves.
type DueReviewDigestJob struct {
	reviews DueCounter
	logger  *slog.Logger
	config  DueReviewDigestConfig

	lastRunStats atomic.Value // *DueReviewDigestStats
}

// DueReviewDigestConfig contains configuration for the digest job.
type DueReviewDigestConfig struct {
	// Timeout is the maximum duration for the job.
	Timeout time.Duration

	// BacklogWarnThreshold logs a warning for users with at least this
	// many due items.
	BacklogWarnThreshold int
}

// DefaultDueReviewDigestConfig returns sensible defaults.
func DefaultDueReviewDigestConfig() DueReviewDigestConfig {
	return DueReviewDigestConfig{
		Timeout:              2 * time.Minute,
		BacklogWarnThreshold: 50,
	}
}

// DueReviewDigestStats contains statistics from a digest run.
type DueReviewDigestStats struct {
	StartedAt      time.Time
	CompletedAt    time.Time
	Duration       time.Duration
	UsersWithDue   int
	TotalDueItems  int
	LargestBacklog int
}

// NewDueReviewDigestJob creates the digest job.
func NewDueReviewDigestJob(reviews DueCounter, logger *slog.Logger, config DueReviewDigestConfig) *DueReviewDigestJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &DueReviewDigestJob{
		reviews: reviews,
		logger:  logger,
		config:  config,
	}
}

// Name returns the job name.
func (j *DueReviewDigestJob) Name() string {
	return "due_review_digest"
}

// Description returns a human-readable description.
func (j *DueReviewDigestJob) Description() string {
	return "Summarizes due review items across all users"
}

// Run executes the digest.
func (j *DueReviewDigestJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	counts, err := j.reviews.DueCounts(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to count due reviews: %w", err)
	}

	stats := &DueReviewDigestStats{
		StartedAt:    startedAt,
		UsersWithDue: len(counts),
	}

	for userID, n := range counts {
		stats.TotalDueItems += n
		if n > stats.LargestBacklog {
			stats.LargestBacklog = n
		}

		if j.config.BacklogWarnThreshold > 0 && n >= j.config.BacklogWarnThreshold {
			j.logger.Warn("large review backlog",
				"user_id", userID,
				"due_items", n,
			)
		}
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("due review digest completed",
		"users_with_due", stats.UsersWithDue,
		"total_due_items", stats.TotalDueItems,
		"largest_backlog", stats.LargestBacklog,
		"duration", stats.Duration.String(),
	)

	return nil
}

// LastRunStats returns statistics from the last digest run.
func (j *DueReviewDigestJob) LastRunStats() *DueReviewDigestStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*DueReviewDigestStats)
}
