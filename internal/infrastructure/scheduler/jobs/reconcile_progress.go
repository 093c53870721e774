// Package jobs contains the scheduled job implementations of the progress
// engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/articulearn/progress-engine/internal/domain/attempt"
	"github.com/articulearn/progress-engine/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE PROGRESS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileProgressJob cross-checks the running aggregate counters against
// the completion records and repairs any drift. The attempt path keeps the
// counters incrementally; this job is the scan-based safety net behind it.
type ReconcileProgressJob struct {
	attempts   attempt.Repository
	reconciler progress.Reconciler
	logger     *slog.Logger
	config     ReconcileProgressConfig

	lastStats atomic.Value // *ReconcileStats
}

// ReconcileProgressConfig contains configuration for the reconcile job.
type ReconcileProgressConfig struct {
	// Lookback selects users with attempt activity within this window.
	Lookback time.Duration

	// MaxUsers caps the number of users reconciled per run.
	MaxUsers int

	// Timeout bounds one run of the job.
	Timeout time.Duration
}

// DefaultReconcileProgressConfig returns sensible defaults.
func DefaultReconcileProgressConfig() ReconcileProgressConfig {
	return ReconcileProgressConfig{
		Lookback: 24 * time.Hour,
		MaxUsers: 5000,
		Timeout:  5 * time.Minute,
	}
}

// ReconcileStats contains statistics from a reconcile run.
type ReconcileStats struct {
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
	UsersChecked int
	RowsRepaired int
	UsersFailed  int
}

// NewReconcileProgressJob creates a new reconcile progress job.
func NewReconcileProgressJob(
	attempts attempt.Repository,
	reconciler progress.Reconciler,
	logger *slog.Logger,
	config ReconcileProgressConfig,
) *ReconcileProgressJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &ReconcileProgressJob{
		attempts:   attempts,
		reconciler: reconciler,
		logger:     logger,
		config:     config,
	}
}

// Name returns the job name.
func (j *ReconcileProgressJob) Name() string {
	return "reconcile_progress"
}

// Description returns a human-readable description.
func (j *ReconcileProgressJob) Description() string {
	return "Recounts completion records and repairs drifted progress aggregates"
}

// Run executes the reconcile job.
func (j *ReconcileProgressJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &ReconcileStats{StartedAt: startedAt}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	since := startedAt.Add(-j.config.Lookback)
	userIDs, err := j.attempts.ActiveUsersSince(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to list active users: %w", err)
	}

	if j.config.MaxUsers > 0 && len(userIDs) > j.config.MaxUsers {
		j.logger.Warn("capping reconcile batch",
			"active_users", len(userIDs),
			"max_users", j.config.MaxUsers,
		)
		userIDs = userIDs[:j.config.MaxUsers]
	}

	j.logger.Info("starting reconcile_progress job",
		"active_users", len(userIDs),
		"lookback", j.config.Lookback.String(),
	)

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}

		repaired, err := j.reconciler.ReconcileUser(ctx, userID)
		if err != nil {
			stats.UsersFailed++
			j.logger.Error("failed to reconcile user",
				"user_id", userID,
				"error", err,
			)
			continue
		}

		stats.UsersChecked++
		stats.RowsRepaired += repaired
		if repaired > 0 {
			j.logger.Warn("repaired drifted aggregates",
				"user_id", userID,
				"rows_repaired", repaired,
			)
		}
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastStats.Store(stats)

	j.logger.Info("reconcile_progress job completed",
		"duration", stats.Duration.String(),
		"users_checked", stats.UsersChecked,
		"rows_repaired", stats.RowsRepaired,
		"users_failed", stats.UsersFailed,
	)

	if stats.UsersFailed > 0 {
		return fmt.Errorf("reconcile completed with %d failed users", stats.UsersFailed)
	}

	return ctx.Err()
}

// LastStats returns statistics from the last run.
func (j *ReconcileProgressJob) LastStats() *ReconcileStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*ReconcileStats)
}
