package query

import (
	"context"

	"github.com/articulearn/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Reads the XP leaderboard maintained as a Redis sorted set. The leaderboard
// is a motivational surface, not a source of truth - it is rebuilt from
// user_stats when lost.
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	// Rank is the 1-based position.
	Rank int64 `json:"rank"`

	// UserID identifies the learner.
	UserID string `json:"user_id"`

	// XP is the cumulative experience.
	XP int64 `json:"xp"`

	// Level is derived from XP.
	Level int `json:"level"`
}

// LeaderboardSource provides ranked reads.
type LeaderboardSource interface {
	// Top returns the highest-XP entries, best first.
	Top(ctx context.Context, limit int) ([]LeaderboardEntry, error)

	// Rank returns one user's entry.
	// Returns shared.ErrNotFound-kinded error when the user is unranked.
	Rank(ctx context.Context, userID string) (*LeaderboardEntry, error)
}

// GetLeaderboardQuery contains the parameters of a leaderboard read.
type GetLeaderboardQuery struct {
	// Limit caps the number of entries (default 10, max 100).
	Limit int

	// UserID optionally requests the caller's own rank alongside the top.
	UserID string
}

// LeaderboardDTO is the assembled read model.
type LeaderboardDTO struct {
	Entries []LeaderboardEntry `json:"entries"`
	Me      *LeaderboardEntry  `json:"me,omitempty"`
}

// GetLeaderboardHandler handles the leaderboard query.
type GetLeaderboardHandler struct {
	source LeaderboardSource
}

// NewGetLeaderboardHandler creates the handler.
func NewGetLeaderboardHandler(source LeaderboardSource) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{source: source}
}

// Handle returns the top entries and, when requested, the caller's rank.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*LeaderboardDTO, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	entries, err := h.source.Top(ctx, limit)
	if err != nil {
		return nil, err
	}

	dto := &LeaderboardDTO{Entries: entries}

	if q.UserID != "" {
		me, err := h.source.Rank(ctx, q.UserID)
		if err != nil && !shared.IsNotFound(err) {
			return nil, err
		}
		dto.Me = me
	}

	return dto, nil
}
