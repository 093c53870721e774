package stats

import (
	"context"
	"time"

	"github.com/articulearn/progress-engine/internal/domain/shared"
	"github.com/articulearn/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER STATS ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// UserStats is the per-user experience record. XP is the single source of
// truth; Level is always recomputed from XP and never independently mutated.
type UserStats struct {
	// UserID is the learner this record belongs to.
	UserID string

	// XP is the cumulative experience points. Never negative.
	XP int

	// Level is the derived level, cached for read models but recomputed
	// from XP on every write.
	Level int

	// XPToday is the XP earned during the current UTC day.
	XPToday int

	// XPTodayDate is the UTC midnight of the day XPToday refers to.
	XPTodayDate time.Time

	// CurrentStreak is the number of consecutive UTC days with at least
	// one XP-earning completion.
	CurrentStreak int

	// BestStreak is the longest streak ever reached.
	BestStreak int

	// LastActivityAt is when the user last earned XP.
	LastActivityAt time.Time

	// CreatedAt / UpdatedAt are record timestamps.
	CreatedAt time.Time
	UpdatedAt time.Time

	// Version is the optimistic-concurrency token for storage writes.
	Version int
}

// NewUserStats creates an empty stats record for a user.
func NewUserStats(userID string, now time.Time) *UserStats {
	return &UserStats{
		UserID:      userID,
		XP:          0,
		Level:       0,
		XPToday:     0,
		XPTodayDate: timeutil.StartOfDay(now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// XPAward describes the outcome of applying an XP delta.
type XPAward struct {
	// Amount is the XP that was added.
	Amount int

	// NewXP is the cumulative XP after the award.
	NewXP int

	// OldLevel / NewLevel are the derived levels before and after.
	OldLevel int
	NewLevel int

	// LeveledUp reports whether NewLevel > OldLevel.
	LeveledUp bool

	// StreakChanged reports whether the daily streak value moved.
	StreakChanged bool
}

// ApplyXP adds a non-negative XP amount, recomputes the level and rolls the
// daily bucket and streak forward. Zero is a valid no-op award: it still
// counts as activity for the streak but changes no XP.
func (s *UserStats) ApplyXP(amount int, now time.Time) (XPAward, error) {
	if amount < 0 {
		return XPAward{}, shared.ErrNegativeAward
	}

	oldLevel := LevelFromXP(s.XP)

	s.rollDay(now)
	streakBefore := s.CurrentStreak
	s.advanceStreak(now)

	s.XP += amount
	s.XPToday += amount
	s.Level = LevelFromXP(s.XP)
	s.LastActivityAt = now
	s.UpdatedAt = now

	return XPAward{
		Amount:        amount,
		NewXP:         s.XP,
		OldLevel:      oldLevel,
		NewLevel:      s.Level,
		LeveledUp:     s.Level > oldLevel,
		StreakChanged: s.CurrentStreak != streakBefore,
	}, nil
}

// rollDay resets the daily XP bucket when the UTC day changed.
func (s *UserStats) rollDay(now time.Time) {
	day := timeutil.StartOfDay(now)
	if !day.Equal(s.XPTodayDate) {
		s.XPTodayDate = day
		s.XPToday = 0
	}
}

// advanceStreak updates the daily streak relative to the last activity day.
// Same day keeps the streak, yesterday extends it, anything older restarts
// at one.
func (s *UserStats) advanceStreak(now time.Time) {
	switch {
	case s.LastActivityAt.IsZero():
		s.CurrentStreak = 1
	case timeutil.SameDay(s.LastActivityAt, now):
		// Already counted today.
	case timeutil.IsYesterday(s.LastActivityAt, now):
		s.CurrentStreak++
	default:
		s.CurrentStreak = 1
	}

	if s.CurrentStreak > s.BestStreak {
		s.BestStreak = s.CurrentStreak
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Reader is the read-side access to user stats, used by queries. Writes go
// through the progress unit of work so they share the recomputation
// transaction.
type Reader interface {
	// GetByUser returns the stats of a user.
	// Returns ErrStatsNotFound if the user has no stats record yet.
	GetByUser(ctx context.Context, userID string) (*UserStats, error)
}
