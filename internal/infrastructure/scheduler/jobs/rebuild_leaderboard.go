package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// XPSource provides the authoritative cumulative XP per user, read from the
// stats store.
type XPSource interface {
	XPTotals(ctx context.Context) (map[string]int64, error)
}

// LeaderboardRebuilder replaces the leaderboard with authoritative scores.
type LeaderboardRebuilder interface {
	Rebuild(ctx context.Context, scores map[string]int64) error
}

// RebuildLeaderboardJob restores the Redis XP leaderboard from the stats
// store. The hot path keeps the sorted set current with deltas; this job
// recovers it after data loss and corrects any accumulated drift.
type RebuildLeaderboardJob struct {
	source    XPSource
	rebuilder LeaderboardRebuilder
	logger    *slog.Logger
	timeout   time.Duration
}

// NewRebuildLeaderboardJob creates a new rebuild leaderboard job.
func NewRebuildLeaderboardJob(
	source XPSource,
	rebuilder LeaderboardRebuilder,
	logger *slog.Logger,
	timeout time.Duration,
) *RebuildLeaderboardJob {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &RebuildLeaderboardJob{
		source:    source,
		rebuilder: rebuilder,
		logger:    logger,
		timeout:   timeout,
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string {
	return "rebuild_leaderboard"
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Restores the XP leaderboard from the authoritative stats store"
}

// Run executes the rebuild job.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	totals, err := j.source.XPTotals(ctx)
	if err != nil {
		return fmt.Errorf("failed to load xp totals: %w", err)
	}

	if err := j.rebuilder.Rebuild(ctx, totals); err != nil {
		return fmt.Errorf("failed to rebuild leaderboard: %w", err)
	}

	j.logger.Info("rebuild_leaderboard job completed",
		"users", len(totals),
		"duration", time.Since(startedAt).String(),
	)

	return nil
}
