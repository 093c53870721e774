package query

import (
	"context"

	"github.com/articulearn/progress-engine/internal/domain/shared"
	"github.com/articulearn/progress-engine/internal/domain/stats"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER STATS QUERY
// Returns XP, derived level with in-level progress, daily XP and streaks.
// ══════════════════════════════════════════════════════════════════════════════

// UserStatsCache is the optional read-through snapshot cache.
type UserStatsCache interface {
	// GetUserStats returns the cached snapshot, or nil on a miss.
	GetUserStats(ctx context.Context, userID string) (*stats.UserStats, error)

	// RefreshUserStats stores a fresh snapshot.
	RefreshUserStats(ctx context.Context, s *stats.UserStats) error
}

// GetUserStatsQuery contains the parameters of a stats read.
type GetUserStatsQuery struct {
	// UserID is the learner.
	UserID string

	// SkipCache forces a storage read.
	SkipCache bool
}

// UserStatsDTO is the assembled read model.
type UserStatsDTO struct {
	UserID        string              `json:"user_id"`
	XP            int                 `json:"xp"`
	XPToday       int                 `json:"xp_today"`
	Level         stats.LevelProgress `json:"level"`
	CurrentStreak int                 `json:"current_streak"`
	BestStreak    int                 `json:"best_streak"`
}

// GetUserStatsHandler handles the user stats query.
type GetUserStatsHandler struct {
	reader stats.Reader
	cache  UserStatsCache
}

// NewGetUserStatsHandler creates the handler. cache may be nil.
func NewGetUserStatsHandler(reader stats.Reader, cache UserStatsCache) *GetUserStatsHandler {
	return &GetUserStatsHandler{reader: reader, cache: cache}
}

// Handle returns the stats read model. The level is always derived from XP
// at read time - a stale cached level can never be served.
func (h *GetUserStatsHandler) Handle(ctx context.Context, q GetUserStatsQuery) (*UserStatsDTO, error) {
	if q.UserID == "" {
		return nil, shared.NewDomainError("stats", "GetUserStats", shared.ErrEmptyValue, "user_id is required")
	}

	var record *stats.UserStats

	if h.cache != nil && !q.SkipCache {
		if cached, err := h.cache.GetUserStats(ctx, q.UserID); err == nil && cached != nil {
			record = cached
		}
	}

	if record == nil {
		var err error
		record, err = h.reader.GetByUser(ctx, q.UserID)
		if err != nil {
			return nil, err
		}
		if h.cache != nil {
			_ = h.cache.RefreshUserStats(ctx, record)
		}
	}

	return &UserStatsDTO{
		UserID:        record.UserID,
		XP:            record.XP,
		XPToday:       record.XPToday,
		Level:         stats.ProgressForXP(record.XP),
		CurrentStreak: record.CurrentStreak,
		BestStreak:    record.BestStreak,
	}, nil
}
