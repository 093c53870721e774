// Package redis implements the Redis read-side of the progress engine.
package redis

import (
	"context"
	"errors"

	"github.com/articulearn/progress-engine/internal/application/query"
	"github.com/articulearn/progress-engine/internal/domain/shared"
	"github.com/articulearn/progress-engine/internal/domain/stats"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// keyLeaderboardXP is the sorted set holding userID -> cumulative XP. Rank
// lookups are O(log N); range reads are O(log N + M).
const keyLeaderboardXP = PrefixLeaderboard + "xp"

// LeaderboardCache maintains the XP leaderboard on a Redis sorted set and
// implements query.LeaderboardSource. The set is motivational surface only;
// the rebuild job restores it from user_stats when lost.
type LeaderboardCache struct {
	cache *Cache
}

// NewLeaderboardCache creates a new LeaderboardCache.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

// ─────────────────────────────────────────────────────────────────────────────
// Write operations
// ─────────────────────────────────────────────────────────────────────────────

// IncrementXP applies an XP delta to one user's score. Deltas mirror the
// committed awards, so the score converges on the stored cumulative XP.
func (l *LeaderboardCache) IncrementXP(ctx context.Context, userID string, delta int64, _ int) error {
	if userID == "" {
		return ErrCacheKeyEmpty
	}

	return l.cache.Client().ZIncrBy(ctx, keyLeaderboardXP, float64(delta), userID).Err()
}

// SetXP overwrites one user's score with the authoritative value.
func (l *LeaderboardCache) SetXP(ctx context.Context, userID string, xp int64) error {
	if userID == "" {
		return ErrCacheKeyEmpty
	}

	return l.cache.Client().ZAdd(ctx, keyLeaderboardXP, redis.Z{
		Score:  float64(xp),
		Member: userID,
	}).Err()
}

// Rebuild atomically replaces the whole leaderboard with authoritative
// scores, used after data loss or drift.
func (l *LeaderboardCache) Rebuild(ctx context.Context, scores map[string]int64) error {
	pipe := l.cache.Client().TxPipeline()

	pipe.Del(ctx, keyLeaderboardXP)

	if len(scores) > 0 {
		members := make([]redis.Z, 0, len(scores))
		for userID, xp := range scores {
			if userID == "" {
				continue
			}
			members = append(members, redis.Z{Score: float64(xp), Member: userID})
		}
		pipe.ZAdd(ctx, keyLeaderboardXP, members...)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Remove deletes a user from the leaderboard.
func (l *LeaderboardCache) Remove(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrCacheKeyEmpty
	}

	return l.cache.Client().ZRem(ctx, keyLeaderboardXP, userID).Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Read operations (query.LeaderboardSource)
// ─────────────────────────────────────────────────────────────────────────────

// Top returns the highest-XP entries, best first. Levels are derived from XP
// at read time.
func (l *LeaderboardCache) Top(ctx context.Context, limit int) ([]query.LeaderboardEntry, error) {
	if limit <= 0 {
		return []query.LeaderboardEntry{}, nil
	}

	members, err := l.cache.Client().ZRevRangeWithScores(ctx, keyLeaderboardXP, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]query.LeaderboardEntry, 0, len(members))
	for i, m := range members {
		userID, ok := m.Member.(string)
		if !ok {
			continue
		}
		xp := int64(m.Score)
		entries = append(entries, query.LeaderboardEntry{
			Rank:   int64(i + 1),
			UserID: userID,
			XP:     xp,
			Level:  stats.LevelFromXP(int(xp)),
		})
	}

	return entries, nil
}

// Rank returns one user's entry, or a not-found error when the user is
// unranked.
func (l *LeaderboardCache) Rank(ctx context.Context, userID string) (*query.LeaderboardEntry, error) {
	if userID == "" {
		return nil, ErrCacheKeyEmpty
	}

	// ZRevRank is 0-based, highest score first.
	rank, err := l.cache.Client().ZRevRank(ctx, keyLeaderboardXP, userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.NewDomainError("leaderboard", "Rank", shared.ErrNotFound, "user not ranked")
		}
		return nil, err
	}

	score, err := l.cache.Client().ZScore(ctx, keyLeaderboardXP, userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.NewDomainError("leaderboard", "Rank", shared.ErrNotFound, "user not ranked")
		}
		return nil, err
	}

	xp := int64(score)
	return &query.LeaderboardEntry{
		Rank:   rank + 1,
		UserID: userID,
		XP:     xp,
		Level:  stats.LevelFromXP(int(xp)),
	}, nil
}

// Count returns the number of ranked users.
func (l *LeaderboardCache) Count(ctx context.Context) (int64, error) {
	return l.cache.Client().ZCard(ctx, keyLeaderboardXP).Result()
}
