package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/articulearn/progress-engine/internal/domain/shared"
)

func day(d int, hour int) time.Time {
	return time.Date(2026, time.March, d, hour, 0, 0, 0, time.UTC)
}

func TestNewUserStats(t *testing.T) {
	now := day(10, 15)
	s := NewUserStats("user-1", now)

	assert.Equal(t, "user-1", s.UserID)
	assert.Equal(t, 0, s.XP)
	assert.Equal(t, 0, s.Level)
	assert.Equal(t, 0, s.XPToday)
	assert.Equal(t, day(10, 0), s.XPTodayDate)
	assert.Equal(t, 0, s.Version)
}

func TestApplyXPRejectsNegativeAmount(t *testing.T) {
	s := NewUserStats("user-1", day(10, 15))

	_, err := s.ApplyXP(-10, day(10, 15))

	assert.ErrorIs(t, err, shared.ErrNegativeAward)
	assert.Equal(t, 0, s.XP)
	assert.Equal(t, 0, s.CurrentStreak)
}

func TestApplyXPFirstAward(t *testing.T) {
	s := NewUserStats("user-1", day(10, 9))

	award, err := s.ApplyXP(10, day(10, 9))

	assert.NoError(t, err)
	assert.Equal(t, 10, award.Amount)
	assert.Equal(t, 10, award.NewXP)
	assert.Equal(t, 0, award.NewLevel)
	assert.False(t, award.LeveledUp)
	assert.True(t, award.StreakChanged)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.BestStreak)
	assert.Equal(t, 10, s.XPToday)
}

func TestApplyXPLevelUpAtThreshold(t *testing.T) {
	s := NewUserStats("user-1", day(10, 9))
	s.XP = 95
	s.Level = 0

	award, err := s.ApplyXP(10, day(10, 9))

	assert.NoError(t, err)
	assert.Equal(t, 105, award.NewXP)
	assert.Equal(t, 0, award.OldLevel)
	assert.Equal(t, 1, award.NewLevel)
	assert.True(t, award.LeveledUp)
	assert.Equal(t, 1, s.Level)
}

func TestApplyXPZeroStillCountsAsActivity(t *testing.T) {
	s := NewUserStats("user-1", day(10, 9))

	award, err := s.ApplyXP(0, day(10, 9))

	assert.NoError(t, err)
	assert.Equal(t, 0, award.Amount)
	assert.True(t, award.StreakChanged)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 0, s.XP)
}

func TestApplyXPSameDayKeepsStreak(t *testing.T) {
	s := NewUserStats("user-1", day(10, 9))
	_, _ = s.ApplyXP(10, day(10, 9))

	award, err := s.ApplyXP(10, day(10, 22))

	assert.NoError(t, err)
	assert.False(t, award.StreakChanged)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 20, s.XPToday)
}

func TestApplyXPNextDayExtendsStreak(t *testing.T) {
	s := NewUserStats("user-1", day(10, 9))
	_, _ = s.ApplyXP(10, day(10, 9))
	_, _ = s.ApplyXP(10, day(11, 9))
	award, err := s.ApplyXP(10, day(12, 9))

	assert.NoError(t, err)
	assert.True(t, award.StreakChanged)
	assert.Equal(t, 3, s.CurrentStreak)
	assert.Equal(t, 3, s.BestStreak)
}

func TestApplyXPGapResetsStreak(t *testing.T) {
	s := NewUserStats("user-1", day(10, 9))
	_, _ = s.ApplyXP(10, day(10, 9))
	_, _ = s.ApplyXP(10, day(11, 9))
	assert.Equal(t, 2, s.CurrentStreak)

	_, err := s.ApplyXP(10, day(14, 9))

	assert.NoError(t, err)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 2, s.BestStreak, "best streak survives the reset")
}

func TestApplyXPRollsDailyBucket(t *testing.T) {
	s := NewUserStats("user-1", day(10, 9))
	_, _ = s.ApplyXP(30, day(10, 9))
	assert.Equal(t, 30, s.XPToday)

	_, err := s.ApplyXP(5, day(11, 1))

	assert.NoError(t, err)
	assert.Equal(t, 5, s.XPToday)
	assert.Equal(t, day(11, 0), s.XPTodayDate)
	assert.Equal(t, 35, s.XP)
}

func TestApplyXPStreakAcrossUTCMidnight(t *testing.T) {
	// 23:30 and 00:30 the next day are different UTC days, so the streak
	// extends even though under an hour passed.
	s := NewUserStats("user-1", day(10, 23))
	_, _ = s.ApplyXP(10, time.Date(2026, time.March, 10, 23, 30, 0, 0, time.UTC))

	_, err := s.ApplyXP(10, time.Date(2026, time.March, 11, 0, 30, 0, 0, time.UTC))

	assert.NoError(t, err)
	assert.Equal(t, 2, s.CurrentStreak)
}
