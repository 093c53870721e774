// Package progress contains the hierarchical completion model: per-activity
// completion flags and the derived lesson/module/course aggregates. Aggregates
// are always recomputed from counters inside one storage transaction; they are
// never blindly incremented from a stale read.
package progress

import (
	"math"
	"time"

	"github.com/articulearn/progress-engine/internal/domain/catalog"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY COMPLETION
// ══════════════════════════════════════════════════════════════════════════════

// CompletionKey identifies one (user, activity) completion record inside the
// content hierarchy.
type CompletionKey struct {
	UserID     string
	CourseID   string
	ModuleID   string
	LessonID   string
	ActivityID string
}

// ActivityCompletion is the per-user, per-activity completion flag.
// Invariant: monotonic - once Completed is true it never reverts.
type ActivityCompletion struct {
	Key         CompletionKey
	Completed   bool
	CompletedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATES
// ══════════════════════════════════════════════════════════════════════════════

// Percent converts a completed/total pair into a rounded 0-100 percentage.
// A zero total yields zero - empty lessons never divide and never complete.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// LessonProgress is the per-user aggregate over one lesson's activities.
// Invariant: Progress == Percent(CompletedActivities, TotalActivities) and
// Completed == (CompletedActivities == TotalActivities) whenever
// TotalActivities > 0.
type LessonProgress struct {
	UserID   string
	CourseID string
	ModuleID string
	LessonID string

	CompletedActivities int
	TotalActivities     int
	Progress            int
	Completed           bool
	CompletedAt         *time.Time
	UpdatedAt           time.Time

	// Version is the optimistic-concurrency token for storage writes.
	Version int
}

// NewLessonProgress creates an empty lesson aggregate.
func NewLessonProgress(userID, courseID, moduleID, lessonID string, now time.Time) *LessonProgress {
	return &LessonProgress{
		UserID:    userID,
		CourseID:  courseID,
		ModuleID:  moduleID,
		LessonID:  lessonID,
		UpdatedAt: now,
	}
}

// RecordFirstCompletion applies one observed false-to-true activity flip and
// recomputes the aggregate from first principles against the canonical
// totals. It returns true when the lesson itself flipped to completed in
// this call, which is the only condition under which the module level may be
// incremented.
func (lp *LessonProgress) RecordFirstCompletion(totals catalog.LessonTotals, now time.Time) bool {
	wasCompleted := lp.Completed

	lp.CompletedActivities++
	lp.TotalActivities = totals.TotalActivities
	if lp.CompletedActivities > lp.TotalActivities && lp.TotalActivities > 0 {
		// Catalog shrank below the recorded completions; clamp rather
		// than report an impossible percentage.
		lp.CompletedActivities = lp.TotalActivities
	}

	lp.Progress = Percent(lp.CompletedActivities, lp.TotalActivities)
	lp.Completed = lp.TotalActivities > 0 && lp.CompletedActivities == lp.TotalActivities
	lp.UpdatedAt = now

	if lp.Completed && !wasCompleted {
		t := now
		lp.CompletedAt = &t
		return true
	}
	return false
}

// ModuleProgress is the per-user aggregate over one module's lessons.
type ModuleProgress struct {
	UserID   string
	CourseID string
	ModuleID string

	CompletedLessons    int
	CompletedActivities int
	TotalLessons        int
	TotalActivities     int
	Progress            int
	Completed           bool
	CompletedAt         *time.Time
	UpdatedAt           time.Time

	Version int
}

// NewModuleProgress creates an empty module aggregate.
func NewModuleProgress(userID, courseID, moduleID string, now time.Time) *ModuleProgress {
	return &ModuleProgress{
		UserID:    userID,
		CourseID:  courseID,
		ModuleID:  moduleID,
		UpdatedAt: now,
	}
}

// RecordFirstCompletion applies one activity flip at module granularity.
// lessonFlipped must be true only when the owning lesson completed in the
// same transaction - upward propagation is conditional, never unconditional.
// Returns true when the module flipped to completed.
func (mp *ModuleProgress) RecordFirstCompletion(lessonFlipped bool, totals catalog.ModuleTotals, now time.Time) bool {
	wasCompleted := mp.Completed

	mp.CompletedActivities++
	if lessonFlipped {
		mp.CompletedLessons++
	}
	mp.TotalLessons = totals.TotalLessons
	mp.TotalActivities = totals.TotalActivities
	if mp.CompletedActivities > mp.TotalActivities && mp.TotalActivities > 0 {
		mp.CompletedActivities = mp.TotalActivities
	}
	if mp.CompletedLessons > mp.TotalLessons && mp.TotalLessons > 0 {
		mp.CompletedLessons = mp.TotalLessons
	}

	mp.Progress = Percent(mp.CompletedActivities, mp.TotalActivities)
	mp.Completed = mp.TotalLessons > 0 && mp.CompletedLessons == mp.TotalLessons
	mp.UpdatedAt = now

	if mp.Completed && !wasCompleted {
		t := now
		mp.CompletedAt = &t
		return true
	}
	return false
}

// CourseProgress is the per-user aggregate at course granularity. It doubles
// as the enrollment record: LastLessonID is the resume-where-left-off pointer
// consumed by the home screen.
type CourseProgress struct {
	UserID   string
	CourseID string

	CompletedModules    int
	CompletedLessons    int
	CompletedActivities int
	TotalModules        int
	TotalLessons        int
	TotalActivities     int
	Progress            int
	Completed           bool
	CompletedAt         *time.Time

	// LastLessonID is the lesson of the most recent first completion.
	LastLessonID string

	EnrolledAt time.Time
	UpdatedAt  time.Time

	Version int
}

// NewCourseProgress creates an empty course aggregate / enrollment record.
func NewCourseProgress(userID, courseID string, now time.Time) *CourseProgress {
	return &CourseProgress{
		UserID:     userID,
		CourseID:   courseID,
		EnrolledAt: now,
		UpdatedAt:  now,
	}
}

// RecordFirstCompletion applies one activity flip at course granularity and
// moves the resume pointer. moduleFlipped and lessonFlipped must reflect
// flips observed inside the same transaction. Returns true when the course
// flipped to completed.
func (cp *CourseProgress) RecordFirstCompletion(lessonFlipped, moduleFlipped bool, totals catalog.CourseTotals, lessonID string, now time.Time) bool {
	wasCompleted := cp.Completed

	cp.CompletedActivities++
	if lessonFlipped {
		cp.CompletedLessons++
	}
	if moduleFlipped {
		cp.CompletedModules++
	}
	cp.TotalModules = totals.TotalModules
	cp.TotalLessons = totals.TotalLessons
	cp.TotalActivities = totals.TotalActivities
	if cp.CompletedActivities > cp.TotalActivities && cp.TotalActivities > 0 {
		cp.CompletedActivities = cp.TotalActivities
	}

	cp.Progress = Percent(cp.CompletedActivities, cp.TotalActivities)
	cp.Completed = cp.TotalModules > 0 && cp.CompletedModules == cp.TotalModules
	cp.LastLessonID = lessonID
	cp.UpdatedAt = now

	if cp.Completed && !wasCompleted {
		t := now
		cp.CompletedAt = &t
		return true
	}
	return false
}
