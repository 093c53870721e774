package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/articulearn/progress-engine/internal/domain/attempt"
	"github.com/articulearn/progress-engine/internal/domain/progress"
	"github.com/articulearn/progress-engine/internal/domain/shared"
	"github.com/articulearn/progress-engine/internal/domain/stats"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test doubles
// ─────────────────────────────────────────────────────────────────────────────

type fakeStatsReader struct {
	record *stats.UserStats
	calls  int
}

func (r *fakeStatsReader) GetByUser(_ context.Context, userID string) (*stats.UserStats, error) {
	r.calls++
	if r.record == nil {
		return nil, shared.ErrStatsNotFound
	}
	return r.record, nil
}

type fakeStatsCache struct {
	record    *stats.UserStats
	refreshes int
}

func (c *fakeStatsCache) GetUserStats(context.Context, string) (*stats.UserStats, error) {
	return c.record, nil
}

func (c *fakeStatsCache) RefreshUserStats(_ context.Context, s *stats.UserStats) error {
	c.record = s
	c.refreshes++
	return nil
}

type fakeProgressReader struct {
	course  *progress.CourseProgress
	courses []*progress.CourseProgress
	calls   int
}

func (r *fakeProgressReader) GetLessonProgress(context.Context, string, string, string, string) (*progress.LessonProgress, error) {
	return nil, nil
}

func (r *fakeProgressReader) GetModuleProgress(context.Context, string, string, string) (*progress.ModuleProgress, error) {
	return nil, nil
}

func (r *fakeProgressReader) GetCourseProgress(context.Context, string, string) (*progress.CourseProgress, error) {
	r.calls++
	return r.course, nil
}

func (r *fakeProgressReader) GetCourseProgressByUser(context.Context, string) ([]*progress.CourseProgress, error) {
	return r.courses, nil
}

type fakeProgressCache struct {
	record    *progress.CourseProgress
	refreshes int
}

func (c *fakeProgressCache) GetCourseProgress(context.Context, string, string) (*progress.CourseProgress, error) {
	return c.record, nil
}

func (c *fakeProgressCache) RefreshCourseProgress(_ context.Context, cp *progress.CourseProgress) error {
	c.record = cp
	c.refreshes++
	return nil
}

type fakeAttemptRepo struct {
	attempts []*attempt.Attempt

	lastLimit int
}

func (r *fakeAttemptRepo) GetByID(context.Context, string) (*attempt.Attempt, error) {
	return nil, shared.ErrAttemptNotFound
}

func (r *fakeAttemptRepo) GetByUser(_ context.Context, _ string, limit int) ([]*attempt.Attempt, error) {
	r.lastLimit = limit
	if limit > len(r.attempts) {
		limit = len(r.attempts)
	}
	return r.attempts[:limit], nil
}

func (r *fakeAttemptRepo) GetByActivity(_ context.Context, _ string, activityID string) ([]*attempt.Attempt, error) {
	var out []*attempt.Attempt
	for _, a := range r.attempts {
		if a.ActivityID == activityID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAttemptRepo) CountByUser(context.Context, string) (int, error) {
	return len(r.attempts), nil
}

func (r *fakeAttemptRepo) ActiveUsersSince(context.Context, time.Time) ([]string, error) {
	return nil, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// User stats
// ─────────────────────────────────────────────────────────────────────────────

func TestGetUserStatsRequiresUserID(t *testing.T) {
	h := NewGetUserStatsHandler(&fakeStatsReader{}, nil)

	_, err := h.Handle(context.Background(), GetUserStatsQuery{})

	assert.True(t, shared.IsValidation(err))
}

func TestGetUserStatsDerivesLevelFromXP(t *testing.T) {
	reader := &fakeStatsReader{record: &stats.UserStats{
		UserID:        "user-1",
		XP:            150,
		Level:         0, // stale stored level must not leak into the read model
		XPToday:       20,
		CurrentStreak: 3,
		BestStreak:    5,
	}}
	h := NewGetUserStatsHandler(reader, nil)

	dto, err := h.Handle(context.Background(), GetUserStatsQuery{UserID: "user-1"})

	assert.NoError(t, err)
	assert.Equal(t, 150, dto.XP)
	assert.Equal(t, 1, dto.Level.Level)
	assert.Equal(t, 50, dto.Level.Current)
	assert.Equal(t, 200, dto.Level.Needed)
	assert.Equal(t, 3, dto.CurrentStreak)
}

func TestGetUserStatsServesFromCache(t *testing.T) {
	reader := &fakeStatsReader{record: &stats.UserStats{UserID: "user-1", XP: 999}}
	cache := &fakeStatsCache{record: &stats.UserStats{UserID: "user-1", XP: 100}}
	h := NewGetUserStatsHandler(reader, cache)

	dto, err := h.Handle(context.Background(), GetUserStatsQuery{UserID: "user-1"})

	assert.NoError(t, err)
	assert.Equal(t, 100, dto.XP)
	assert.Equal(t, 0, reader.calls)
}

func TestGetUserStatsSkipCacheReadsStorage(t *testing.T) {
	reader := &fakeStatsReader{record: &stats.UserStats{UserID: "user-1", XP: 999}}
	cache := &fakeStatsCache{record: &stats.UserStats{UserID: "user-1", XP: 100}}
	h := NewGetUserStatsHandler(reader, cache)

	dto, err := h.Handle(context.Background(), GetUserStatsQuery{UserID: "user-1", SkipCache: true})

	assert.NoError(t, err)
	assert.Equal(t, 999, dto.XP)
	assert.Equal(t, 1, reader.calls)
	assert.Equal(t, 1, cache.refreshes, "storage read refreshes the cache")
}

func TestGetUserStatsCacheMissFallsThrough(t *testing.T) {
	reader := &fakeStatsReader{record: &stats.UserStats{UserID: "user-1", XP: 50}}
	cache := &fakeStatsCache{}
	h := NewGetUserStatsHandler(reader, cache)

	dto, err := h.Handle(context.Background(), GetUserStatsQuery{UserID: "user-1"})

	assert.NoError(t, err)
	assert.Equal(t, 50, dto.XP)
	assert.Equal(t, 1, reader.calls)
}

func TestGetUserStatsUnknownUser(t *testing.T) {
	h := NewGetUserStatsHandler(&fakeStatsReader{}, nil)

	_, err := h.Handle(context.Background(), GetUserStatsQuery{UserID: "ghost"})

	assert.True(t, shared.IsNotFound(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// Course progress
// ─────────────────────────────────────────────────────────────────────────────

func TestGetCourseProgressRequiresIDs(t *testing.T) {
	h := NewGetCourseProgressHandler(&fakeProgressReader{}, nil)

	_, err := h.Handle(context.Background(), GetCourseProgressQuery{UserID: "user-1"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), GetCourseProgressQuery{CourseID: "course-1"})
	assert.True(t, shared.IsValidation(err))
}

func TestGetCourseProgressNotEnrolled(t *testing.T) {
	h := NewGetCourseProgressHandler(&fakeProgressReader{}, nil)

	_, err := h.Handle(context.Background(), GetCourseProgressQuery{UserID: "user-1", CourseID: "course-1"})

	assert.True(t, shared.IsNotFound(err))
}

func TestGetCourseProgressReadThrough(t *testing.T) {
	stored := &progress.CourseProgress{UserID: "user-1", CourseID: "course-1", Progress: 40}
	reader := &fakeProgressReader{course: stored}
	cache := &fakeProgressCache{}
	h := NewGetCourseProgressHandler(reader, cache)

	cp, err := h.Handle(context.Background(), GetCourseProgressQuery{UserID: "user-1", CourseID: "course-1"})

	assert.NoError(t, err)
	assert.Equal(t, 40, cp.Progress)
	assert.Equal(t, 1, cache.refreshes)

	// Second read is served from the now-warm cache.
	_, err = h.Handle(context.Background(), GetCourseProgressQuery{UserID: "user-1", CourseID: "course-1"})
	assert.NoError(t, err)
	assert.Equal(t, 1, reader.calls)
}

func TestListCourseProgressEmptyIsNotAnError(t *testing.T) {
	h := NewListCourseProgressHandler(&fakeProgressReader{})

	list, err := h.Handle(context.Background(), ListCourseProgressQuery{UserID: "user-1"})

	assert.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

// ─────────────────────────────────────────────────────────────────────────────
// Attempts
// ─────────────────────────────────────────────────────────────────────────────

func ledgerOf(n int) []*attempt.Attempt {
	out := make([]*attempt.Attempt, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &attempt.Attempt{
			ID:         string(rune('a' + i)),
			UserID:     "user-1",
			ActivityID: "activity-1",
		})
	}
	return out
}

func TestGetAttemptsRequiresUserID(t *testing.T) {
	h := NewGetAttemptsHandler(&fakeAttemptRepo{})

	_, err := h.Handle(context.Background(), GetAttemptsQuery{})

	assert.True(t, shared.IsValidation(err))
}

func TestGetAttemptsDefaultsAndCapsLimit(t *testing.T) {
	repo := &fakeAttemptRepo{attempts: ledgerOf(5)}
	h := NewGetAttemptsHandler(repo)

	dto, err := h.Handle(context.Background(), GetAttemptsQuery{UserID: "user-1"})
	assert.NoError(t, err)
	assert.Equal(t, 50, repo.lastLimit)
	assert.Equal(t, 5, dto.Total)

	_, err = h.Handle(context.Background(), GetAttemptsQuery{UserID: "user-1", Limit: 9000})
	assert.NoError(t, err)
	assert.Equal(t, 200, repo.lastLimit)
}

func TestGetAttemptsByActivity(t *testing.T) {
	repo := &fakeAttemptRepo{attempts: []*attempt.Attempt{
		{ID: "a1", UserID: "user-1", ActivityID: "activity-1"},
		{ID: "a2", UserID: "user-1", ActivityID: "activity-2"},
		{ID: "a3", UserID: "user-1", ActivityID: "activity-1"},
	}}
	h := NewGetAttemptsHandler(repo)

	dto, err := h.Handle(context.Background(), GetAttemptsQuery{UserID: "user-1", ActivityID: "activity-1"})

	assert.NoError(t, err)
	assert.Len(t, dto.Attempts, 2)
	assert.Equal(t, 3, dto.Total, "total counts the whole ledger")
}

func TestGetAttemptsEmptyLedger(t *testing.T) {
	h := NewGetAttemptsHandler(&fakeAttemptRepo{})

	dto, err := h.Handle(context.Background(), GetAttemptsQuery{UserID: "user-1"})

	assert.NoError(t, err)
	assert.NotNil(t, dto.Attempts)
	assert.Empty(t, dto.Attempts)
	assert.Equal(t, 0, dto.Total)
}
