// Package redis implements the Redis read-side of the progress engine.
package redis

import (
	"context"
	"errors"

	"github.com/articulearn/progress-engine/internal/domain/progress"
	"github.com/articulearn/progress-engine/internal/domain/stats"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotCache stores the freshest read models after each committed write
// and serves them to the read-through queries. It implements the command
// side's snapshot refresher and both query caches; misses are reported as a
// nil record, never an error.
type SnapshotCache struct {
	cache       *Cache
	leaderboard *LeaderboardCache
}

// NewSnapshotCache creates a new SnapshotCache. leaderboard may be nil when
// the leaderboard feature is disabled.
func NewSnapshotCache(cache *Cache, leaderboard *LeaderboardCache) *SnapshotCache {
	return &SnapshotCache{cache: cache, leaderboard: leaderboard}
}

// ─────────────────────────────────────────────────────────────────────────────
// User stats snapshots
// ─────────────────────────────────────────────────────────────────────────────

// GetUserStats returns the cached stats snapshot, or nil on a miss.
func (s *SnapshotCache) GetUserStats(ctx context.Context, userID string) (*stats.UserStats, error) {
	var record stats.UserStats
	err := s.cache.Get(ctx, StatsKey(userID), &record)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// RefreshUserStats stores a fresh stats snapshot.
func (s *SnapshotCache) RefreshUserStats(ctx context.Context, record *stats.UserStats) error {
	if record == nil {
		return nil
	}
	return s.cache.Set(ctx, StatsKey(record.UserID), record, TTLStatsSnapshot)
}

// ─────────────────────────────────────────────────────────────────────────────
// Course progress snapshots
// ─────────────────────────────────────────────────────────────────────────────

// GetCourseProgress returns the cached course aggregate, or nil on a miss.
func (s *SnapshotCache) GetCourseProgress(ctx context.Context, userID, courseID string) (*progress.CourseProgress, error) {
	var cp progress.CourseProgress
	err := s.cache.Get(ctx, ProgressKey(userID, courseID), &cp)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &cp, nil
}

// RefreshCourseProgress stores a fresh course aggregate snapshot.
func (s *SnapshotCache) RefreshCourseProgress(ctx context.Context, cp *progress.CourseProgress) error {
	if cp == nil {
		return nil
	}
	return s.cache.Set(ctx, ProgressKey(cp.UserID, cp.CourseID), cp, TTLProgressSnapshot)
}

// ─────────────────────────────────────────────────────────────────────────────
// Leaderboard forwarding
// ─────────────────────────────────────────────────────────────────────────────

// AddLeaderboardXP applies an XP delta to the leaderboard entry.
func (s *SnapshotCache) AddLeaderboardXP(ctx context.Context, userID string, delta, level int) error {
	if s.leaderboard == nil {
		return nil
	}
	return s.leaderboard.IncrementXP(ctx, userID, int64(delta), level)
}

// Ping reports whether the cache backend is reachable.
func (s *SnapshotCache) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

// Invalidate drops every snapshot of one user.
func (s *SnapshotCache) Invalidate(ctx context.Context, userID string, courseIDs ...string) error {
	keys := []string{StatsKey(userID)}
	for _, courseID := range courseIDs {
		keys = append(keys, ProgressKey(userID, courseID))
	}
	return s.cache.Delete(ctx, keys...)
}
