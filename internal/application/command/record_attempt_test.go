package command

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/articulearn/progress-engine/internal/domain/attempt"
	"github.com/articulearn/progress-engine/internal/domain/catalog"
	"github.com/articulearn/progress-engine/internal/domain/progress"
	"github.com/articulearn/progress-engine/internal/domain/shared"
	"github.com/articulearn/progress-engine/internal/domain/stats"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory test doubles
// ─────────────────────────────────────────────────────────────────────────────

// memState is the map-backed storage shared by the fake store and its unit of
// work. Cloned per transaction so a failed transaction rolls back.
type memState struct {
	attempts    []*attempt.Attempt
	completions map[progress.CompletionKey]bool
	lessons     map[string]*progress.LessonProgress
	modules     map[string]*progress.ModuleProgress
	courses     map[string]*progress.CourseProgress
	stats       map[string]*stats.UserStats
}

func newMemState() *memState {
	return &memState{
		completions: make(map[progress.CompletionKey]bool),
		lessons:     make(map[string]*progress.LessonProgress),
		modules:     make(map[string]*progress.ModuleProgress),
		courses:     make(map[string]*progress.CourseProgress),
		stats:       make(map[string]*stats.UserStats),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.attempts = append(c.attempts, s.attempts...)
	for k, v := range s.completions {
		c.completions[k] = v
	}
	for k, v := range s.lessons {
		cp := *v
		c.lessons[k] = &cp
	}
	for k, v := range s.modules {
		cp := *v
		c.modules[k] = &cp
	}
	for k, v := range s.courses {
		cp := *v
		c.courses[k] = &cp
	}
	for k, v := range s.stats {
		cp := *v
		c.stats[k] = &cp
	}
	return c
}

// memStore implements progress.Store and progress.UnitOfWork against memState.
type memStore struct {
	mu      sync.Mutex
	state   *memState
	tx      *memState
	txCount int

	// staleSaves makes the next N SaveUserStats calls fail with a stale
	// write error, simulating an optimistic-concurrency conflict.
	staleSaves int
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, uow progress.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txCount++
	s.tx = s.state.clone()
	if err := fn(ctx, s); err != nil {
		s.tx = nil
		return err
	}
	s.state = s.tx
	s.tx = nil
	return nil
}

func lessonKey(userID, courseID, moduleID, lessonID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", userID, courseID, moduleID, lessonID)
}

func moduleKey(userID, courseID, moduleID string) string {
	return fmt.Sprintf("%s/%s/%s", userID, courseID, moduleID)
}

func courseKey(userID, courseID string) string {
	return fmt.Sprintf("%s/%s", userID, courseID)
}

func (s *memStore) AppendAttempt(_ context.Context, a *attempt.Attempt) error {
	s.tx.attempts = append(s.tx.attempts, a)
	return nil
}

func (s *memStore) MarkIfFirstPass(_ context.Context, key progress.CompletionKey, passed bool, _ time.Time) (bool, error) {
	if !passed {
		return false, nil
	}
	if s.tx.completions[key] {
		return false, nil
	}
	s.tx.completions[key] = true
	return true, nil
}

func (s *memStore) GetLessonProgress(_ context.Context, userID, courseID, moduleID, lessonID string) (*progress.LessonProgress, error) {
	return s.tx.lessons[lessonKey(userID, courseID, moduleID, lessonID)], nil
}

func (s *memStore) SaveLessonProgress(_ context.Context, lp *progress.LessonProgress) error {
	lp.Version++
	s.tx.lessons[lessonKey(lp.UserID, lp.CourseID, lp.ModuleID, lp.LessonID)] = lp
	return nil
}

func (s *memStore) GetModuleProgress(_ context.Context, userID, courseID, moduleID string) (*progress.ModuleProgress, error) {
	return s.tx.modules[moduleKey(userID, courseID, moduleID)], nil
}

func (s *memStore) SaveModuleProgress(_ context.Context, mp *progress.ModuleProgress) error {
	mp.Version++
	s.tx.modules[moduleKey(mp.UserID, mp.CourseID, mp.ModuleID)] = mp
	return nil
}

func (s *memStore) GetCourseProgress(_ context.Context, userID, courseID string) (*progress.CourseProgress, error) {
	return s.tx.courses[courseKey(userID, courseID)], nil
}

func (s *memStore) SaveCourseProgress(_ context.Context, cp *progress.CourseProgress) error {
	cp.Version++
	s.tx.courses[courseKey(cp.UserID, cp.CourseID)] = cp
	return nil
}

func (s *memStore) GetUserStats(_ context.Context, userID string) (*stats.UserStats, error) {
	return s.tx.stats[userID], nil
}

func (s *memStore) SaveUserStats(_ context.Context, st *stats.UserStats) error {
	if s.staleSaves > 0 {
		s.staleSaves--
		return shared.ErrStaleUserStats
	}
	st.Version++
	s.tx.stats[st.UserID] = st
	return nil
}

func (s *memStore) CountCompletedInLesson(_ context.Context, userID, courseID, moduleID, lessonID string) (int, error) {
	count := 0
	for key, done := range s.tx.completions {
		if done && key.UserID == userID && key.CourseID == courseID && key.ModuleID == moduleID && key.LessonID == lessonID {
			count++
		}
	}
	return count, nil
}

// fakeCatalog serves fixed totals, or fails every read when unavailable.
type fakeCatalog struct {
	lesson      catalog.LessonTotals
	module      catalog.ModuleTotals
	course      catalog.CourseTotals
	unavailable bool
}

func (c *fakeCatalog) LessonTotals(context.Context, string, string, string) (catalog.LessonTotals, error) {
	if c.unavailable {
		return catalog.LessonTotals{}, shared.ErrCatalogQueryFailed
	}
	return c.lesson, nil
}

func (c *fakeCatalog) ModuleTotals(context.Context, string, string) (catalog.ModuleTotals, error) {
	if c.unavailable {
		return catalog.ModuleTotals{}, shared.ErrCatalogQueryFailed
	}
	return c.module, nil
}

func (c *fakeCatalog) CourseTotals(context.Context, string) (catalog.CourseTotals, error) {
	if c.unavailable {
		return catalog.CourseTotals{}, shared.ErrCatalogQueryFailed
	}
	return c.course, nil
}

// capturingPublisher records every published event.
type capturingPublisher struct {
	events []shared.Event
}

func (p *capturingPublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) types() []shared.EventType {
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// countingSnapshots records cache refresh calls.
type countingSnapshots struct {
	statsRefreshes    int
	progressRefreshes int
	leaderboardDeltas []int
}

func (s *countingSnapshots) RefreshUserStats(context.Context, *stats.UserStats) error {
	s.statsRefreshes++
	return nil
}

func (s *countingSnapshots) RefreshCourseProgress(context.Context, *progress.CourseProgress) error {
	s.progressRefreshes++
	return nil
}

func (s *countingSnapshots) AddLeaderboardXP(_ context.Context, _ string, delta, _ int) error {
	s.leaderboardDeltas = append(s.leaderboardDeltas, delta)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

func testPolicy() AwardPolicy {
	return AwardPolicy{
		attempt.TypeQuiz:        10,
		attempt.TypePracticeLip: 15,
	}
}

func singleActivityCatalog() *fakeCatalog {
	return &fakeCatalog{
		lesson: catalog.LessonTotals{TotalActivities: 1},
		module: catalog.ModuleTotals{TotalLessons: 1, TotalActivities: 1},
		course: catalog.CourseTotals{TotalModules: 1, TotalLessons: 1, TotalActivities: 1},
	}
}

func passingCommand(activityID string) RecordAttemptCommand {
	return RecordAttemptCommand{
		UserID:       "user-1",
		CourseID:     "course-1",
		ModuleID:     "module-1",
		LessonID:     "lesson-1",
		ActivityID:   activityID,
		ActivityType: attempt.TypeQuiz,
		Score:        90,
		Passed:       true,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestHandleRejectsInvalidCommandBeforeAnyWrite(t *testing.T) {
	store := newMemStore()
	h := NewRecordAttemptHandler(store, singleActivityCatalog(), nil, nil, testPolicy(), nil)

	cmd := passingCommand("activity-1")
	cmd.UserID = ""
	_, err := h.Handle(context.Background(), cmd)

	assert.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, 0, store.txCount, "no transaction for an invalid command")
	assert.Empty(t, store.state.attempts)
}

func TestHandleRejectsNegativeBaseXP(t *testing.T) {
	h := NewRecordAttemptHandler(newMemStore(), singleActivityCatalog(), nil, nil, testPolicy(), nil)

	cmd := passingCommand("activity-1")
	bad := -5
	cmd.BaseXP = &bad
	_, err := h.Handle(context.Background(), cmd)

	assert.ErrorIs(t, err, shared.ErrInvalidBaseXP)
}

func TestHandleFirstCompletionCascade(t *testing.T) {
	store := newMemStore()
	pub := &capturingPublisher{}
	snaps := &countingSnapshots{}
	h := NewRecordAttemptHandler(store, singleActivityCatalog(), pub, snaps, testPolicy(), nil)

	res, err := h.Handle(context.Background(), passingCommand("activity-1"))

	assert.NoError(t, err)
	assert.True(t, res.IsFirstCompletion)
	assert.Equal(t, 10, res.XPAwarded)
	assert.Equal(t, 10, res.NewXP)
	assert.Equal(t, 0, res.NewLevel)

	// The one activity completes the lesson, module and course.
	assert.True(t, res.LessonProgress.Completed)
	assert.True(t, res.ModuleProgress.Completed)
	assert.True(t, res.CourseProgress.Completed)
	assert.Equal(t, 100, res.CourseProgress.Progress)
	assert.Equal(t, "lesson-1", res.CourseProgress.LastLessonID)

	assert.Equal(t, []shared.EventType{
		shared.EventAttemptRecorded,
		shared.EventLessonCompleted,
		shared.EventModuleCompleted,
		shared.EventCourseCompleted,
		shared.EventXPGained,
		shared.EventStreakUpdated,
	}, pub.types())

	assert.Equal(t, 1, snaps.statsRefreshes)
	assert.Equal(t, 1, snaps.progressRefreshes)
	assert.Equal(t, []int{10}, snaps.leaderboardDeltas)
	assert.Len(t, store.state.attempts, 1)
}

func TestHandlePartialLessonDoesNotPropagate(t *testing.T) {
	cat := &fakeCatalog{
		lesson: catalog.LessonTotals{TotalActivities: 3},
		module: catalog.ModuleTotals{TotalLessons: 2, TotalActivities: 6},
		course: catalog.CourseTotals{TotalModules: 2, TotalLessons: 4, TotalActivities: 12},
	}
	pub := &capturingPublisher{}
	h := NewRecordAttemptHandler(newMemStore(), cat, pub, nil, testPolicy(), nil)

	res, err := h.Handle(context.Background(), passingCommand("activity-1"))

	assert.NoError(t, err)
	assert.True(t, res.IsFirstCompletion)
	assert.Equal(t, 33, res.LessonProgress.Progress)
	assert.False(t, res.LessonProgress.Completed)
	assert.Equal(t, 0, res.ModuleProgress.CompletedLessons)
	assert.Equal(t, 0, res.CourseProgress.CompletedModules)
	assert.NotContains(t, pub.types(), shared.EventLessonCompleted)
	assert.NotContains(t, pub.types(), shared.EventCourseCompleted)
}

func TestHandleDuplicateSubmissionAwardsNoXP(t *testing.T) {
	store := newMemStore()
	snaps := &countingSnapshots{}
	h := NewRecordAttemptHandler(store, singleActivityCatalog(), nil, snaps, testPolicy(), nil)

	first, err := h.Handle(context.Background(), passingCommand("activity-1"))
	assert.NoError(t, err)
	assert.True(t, first.IsFirstCompletion)

	second, err := h.Handle(context.Background(), passingCommand("activity-1"))
	assert.NoError(t, err)
	assert.False(t, second.IsFirstCompletion)
	assert.Equal(t, 0, second.XPAwarded)
	assert.Equal(t, 10, second.NewXP, "duplicate reports committed state")
	assert.True(t, second.CourseProgress.Completed)

	// Both submissions are appended to the ledger, the cache refreshes once.
	assert.Len(t, store.state.attempts, 2)
	assert.Equal(t, 1, snaps.statsRefreshes)
	assert.Equal(t, 10, store.state.stats["user-1"].XP)
}

func TestHandleFailedAttemptOnlyAppendsToLedger(t *testing.T) {
	store := newMemStore()
	pub := &capturingPublisher{}
	h := NewRecordAttemptHandler(store, singleActivityCatalog(), pub, nil, testPolicy(), nil)

	cmd := passingCommand("activity-1")
	cmd.Passed = false
	cmd.Score = 40
	res, err := h.Handle(context.Background(), cmd)

	assert.NoError(t, err)
	assert.False(t, res.IsFirstCompletion)
	assert.Equal(t, 0, res.XPAwarded)
	assert.Nil(t, res.LessonProgress)
	assert.Len(t, store.state.attempts, 1)
	assert.Empty(t, store.state.completions)
	assert.Equal(t, []shared.EventType{shared.EventAttemptRecorded}, pub.types())
}

func TestHandleCatalogFailureRollsBackEverything(t *testing.T) {
	store := newMemStore()
	cat := singleActivityCatalog()
	cat.unavailable = true
	h := NewRecordAttemptHandler(store, cat, nil, nil, testPolicy(), nil)

	_, err := h.Handle(context.Background(), passingCommand("activity-1"))

	assert.Error(t, err)
	assert.True(t, shared.IsCatalogUnavailable(err))

	// The ledger append and the completion mark roll back with the failed
	// recomputation.
	assert.Empty(t, store.state.attempts)
	assert.Empty(t, store.state.completions)
	assert.Empty(t, store.state.stats)
}

func TestHandleRetriesStaleWriteConflict(t *testing.T) {
	store := newMemStore()
	store.staleSaves = 1
	h := NewRecordAttemptHandler(store, singleActivityCatalog(), nil, nil, testPolicy(), nil)

	res, err := h.Handle(context.Background(), passingCommand("activity-1"))

	assert.NoError(t, err)
	assert.True(t, res.IsFirstCompletion)
	assert.Equal(t, 10, res.XPAwarded)
	assert.Equal(t, 2, store.txCount, "conflict retries the whole transaction")
	assert.Len(t, store.state.attempts, 1, "retried append commits once")
}

func TestHandleGivesUpAfterBoundedRetries(t *testing.T) {
	store := newMemStore()
	store.staleSaves = 100
	h := NewRecordAttemptHandler(store, singleActivityCatalog(), nil, nil, testPolicy(), nil)

	_, err := h.Handle(context.Background(), passingCommand("activity-1"))

	assert.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)
	assert.Equal(t, 4, store.txCount)
	assert.Empty(t, store.state.attempts)
}

func TestHandleBaseXPOverride(t *testing.T) {
	store := newMemStore()
	h := NewRecordAttemptHandler(store, singleActivityCatalog(), nil, nil, testPolicy(), nil)

	cmd := passingCommand("activity-1")
	override := 25
	cmd.BaseXP = &override
	res, err := h.Handle(context.Background(), cmd)

	assert.NoError(t, err)
	assert.Equal(t, 25, res.XPAwarded)
	assert.Equal(t, 25, store.state.stats["user-1"].XP)
}

func TestHandleZeroAwardEmitsNoXPGained(t *testing.T) {
	pub := &capturingPublisher{}
	// Policy has no entry for dictation, so the default award is zero.
	h := NewRecordAttemptHandler(newMemStore(), singleActivityCatalog(), pub, nil, testPolicy(), nil)

	cmd := passingCommand("activity-1")
	cmd.ActivityType = attempt.TypeDictation
	res, err := h.Handle(context.Background(), cmd)

	assert.NoError(t, err)
	assert.True(t, res.IsFirstCompletion)
	assert.Equal(t, 0, res.XPAwarded)
	assert.NotContains(t, pub.types(), shared.EventXPGained)
	assert.Contains(t, pub.types(), shared.EventStreakUpdated, "zero award still counts as activity")
}

func TestHandleStreakMilestoneUnlocksBadge(t *testing.T) {
	store := newMemStore()
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	store.state.stats["user-1"] = &stats.UserStats{
		UserID:         "user-1",
		CurrentStreak:  6,
		BestStreak:     6,
		LastActivityAt: yesterday,
		XPTodayDate:    yesterday.Truncate(24 * time.Hour),
		Version:        1,
	}
	pub := &capturingPublisher{}
	h := NewRecordAttemptHandler(store, singleActivityCatalog(), pub, nil, testPolicy(), nil)

	_, err := h.Handle(context.Background(), passingCommand("activity-1"))

	assert.NoError(t, err)
	assert.Equal(t, 7, store.state.stats["user-1"].CurrentStreak)
	assert.Contains(t, pub.types(), shared.EventBadgeUnlocked)
}

func TestHandleTwoActivitiesAccumulateXPAndProgress(t *testing.T) {
	cat := &fakeCatalog{
		lesson: catalog.LessonTotals{TotalActivities: 2},
		module: catalog.ModuleTotals{TotalLessons: 1, TotalActivities: 2},
		course: catalog.CourseTotals{TotalModules: 1, TotalLessons: 1, TotalActivities: 2},
	}
	store := newMemStore()
	h := NewRecordAttemptHandler(store, cat, nil, nil, testPolicy(), nil)

	first, err := h.Handle(context.Background(), passingCommand("activity-1"))
	assert.NoError(t, err)
	assert.Equal(t, 50, first.LessonProgress.Progress)
	assert.False(t, first.CourseProgress.Completed)

	second, err := h.Handle(context.Background(), passingCommand("activity-2"))
	assert.NoError(t, err)
	assert.True(t, second.LessonProgress.Completed)
	assert.True(t, second.CourseProgress.Completed)
	assert.Equal(t, 20, second.NewXP)
}
