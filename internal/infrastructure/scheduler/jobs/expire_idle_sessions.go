// Package jobs contains the background jobs of the session engine.
package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE IDLE SESSIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// IdleExpirer is the slice of the engine this job needs.
type IdleExpirer interface {
	// ExpireIdle force-ends sessions idle past the TTL and returns how
	// many were ended.
	ExpireIdle(ctx context.Context) int

	// ActiveSessions returns the number of live sessions.
	ActiveSessions() int
}

// ExpireIdleSessionsJob sweeps the engine for sessions whose last activity
// is older than the idle TTL and ends them with reason idle_timeout. The
// engine keeps live sessions in memory, so without this sweep an abandoned
// session would hold its goroutine and mailbox forever.
type ExpireIdleSessionsJob struct {
	engine IdleExpirer
	logger *slog.Logger
	config ExpireIdleSessionsConfig

	lastRunStats atomic.Value // *ExpireIdleSessionsStats
}

// ExpireIdleSessionsConfig contains configuration for the job.
type ExpireIdleSessionsConfig struct {
	// Timeout is the maximum duration for one sweep.
	Timeout time.Duration
}

// DefaultExpireIdleSessionsConfig returns sensible defaults.
func DefaultExpireIdleSessionsConfig() ExpireIdleSessionsConfig {
	return ExpireIdleSessionsConfig{
		Timeout: 1 * time.Minute,
	}
}

// ExpireIdleSessionsStats contains statistics from one sweep.
type ExpireIdleSessionsStats struct {
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
	ActiveBefore int
	ExpiredCount int
	ActiveAfter  int
}

// NewExpireIdleSessionsJob creates the job.
func NewExpireIdleSessionsJob(engine IdleExpirer, logger *slog.Logger, config ExpireIdleSessionsConfig) *ExpireIdleSessionsJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &ExpireIdleSessionsJob{
		engine: engine,
		logger: logger,
		config: config,
	}
}

// Name returns the job name.
func (j *ExpireIdleSessionsJob) Name() string {
	return "expire_idle_sessions"
}

// Description returns a human-readable description.
func (j *ExpireIdleSessionsJob) Description() string {
	return "Ends sessions that have been idle past the idle TTL"
}

// Run executes one sweep.
func (j *ExpireIdleSessionsJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	activeBefore := j.engine.ActiveSessions()
	expired := j.engine.ExpireIdle(ctx)

	stats := &ExpireIdleSessionsStats{
		StartedAt:    startedAt,
		CompletedAt:  time.Now(),
		ActiveBefore: activeBefore,
		ExpiredCount: expired,
		ActiveAfter:  j.engine.ActiveSessions(),
	}
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	if expired > 0 {
		j.logger.Info("expired idle sessions",
			"expired", expired,
			"active_before", activeBefore,
			"active_after", stats.ActiveAfter,
			"duration", stats.Duration.String(),
		)
	}

	return nil
}

// LastRunStats returns statistics from the last sweep.
func (j *ExpireIdleSessionsJob) LastRunStats() *ExpireIdleSessionsStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*ExpireIdleSessionsStats)
}
