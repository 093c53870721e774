package progress

import (
	"context"
	"time"

	"github.com/articulearn/progress-engine/internal/domain/attempt"
	"github.com/articulearn/progress-engine/internal/domain/stats"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTIONAL WRITE SIDE
// ══════════════════════════════════════════════════════════════════════════════

// UnitOfWork is the set of writes available inside one storage transaction.
// Every aggregate mutation of a RecordAttempt call goes through a single unit
// of work, so the completion gate, the rollup and the XP award commit or roll
// back together.
//
// Save methods use optimistic concurrency: they write only if the row version
// is unchanged and return an error wrapping shared.ErrConcurrentModification
// otherwise, which aborts the transaction for a bounded retry.
type UnitOfWork interface {
	// AppendAttempt appends one immutable attempt to the ledger.
	AppendAttempt(ctx context.Context, a *attempt.Attempt) error

	// MarkIfFirstPass is the idempotency gate. When passed is false it
	// performs no write and returns false. When passed is true it
	// atomically flips the completion record false-to-true and returns
	// true only for the flip; an already-completed record is a no-op
	// returning false.
	MarkIfFirstPass(ctx context.Context, key CompletionKey, passed bool, at time.Time) (bool, error)

	// GetLessonProgress returns the lesson aggregate for update, or nil if
	// none exists yet for this key.
	GetLessonProgress(ctx context.Context, userID, courseID, moduleID, lessonID string) (*LessonProgress, error)

	// SaveLessonProgress inserts or version-checked-updates the aggregate.
	SaveLessonProgress(ctx context.Context, lp *LessonProgress) error

	// GetModuleProgress returns the module aggregate for update, or nil.
	GetModuleProgress(ctx context.Context, userID, courseID, moduleID string) (*ModuleProgress, error)

	// SaveModuleProgress inserts or version-checked-updates the aggregate.
	SaveModuleProgress(ctx context.Context, mp *ModuleProgress) error

	// GetCourseProgress returns the course aggregate / enrollment for
	// update, or nil.
	GetCourseProgress(ctx context.Context, userID, courseID string) (*CourseProgress, error)

	// SaveCourseProgress inserts or version-checked-updates the aggregate.
	SaveCourseProgress(ctx context.Context, cp *CourseProgress) error

	// GetUserStats returns the stats record for update, or nil.
	GetUserStats(ctx context.Context, userID string) (*stats.UserStats, error)

	// SaveUserStats inserts or version-checked-updates the stats record.
	SaveUserStats(ctx context.Context, s *stats.UserStats) error

	// CountCompletedInLesson returns the number of completed=true records
	// for one (user, lesson). Used to recount aggregates from scratch.
	CountCompletedInLesson(ctx context.Context, userID, courseID, moduleID, lessonID string) (int, error)
}

// Store provides the transactional boundary. WithinTx runs fn inside one
// atomic storage transaction: fn returning nil commits, any error rolls the
// whole transaction back. Transient conflicts surface as errors wrapping
// shared.ErrConcurrentModification and are safe to retry.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// ══════════════════════════════════════════════════════════════════════════════
// READ SIDE
// ══════════════════════════════════════════════════════════════════════════════

// Reader is the non-transactional read access used by queries and by result
// assembly for duplicate submissions.
type Reader interface {
	// GetLessonProgress returns the lesson aggregate, or nil if absent.
	GetLessonProgress(ctx context.Context, userID, courseID, moduleID, lessonID string) (*LessonProgress, error)

	// GetModuleProgress returns the module aggregate, or nil if absent.
	GetModuleProgress(ctx context.Context, userID, courseID, moduleID string) (*ModuleProgress, error)

	// GetCourseProgress returns the course aggregate, or nil if absent.
	GetCourseProgress(ctx context.Context, userID, courseID string) (*CourseProgress, error)

	// GetCourseProgressByUser returns all course aggregates of a user.
	GetCourseProgressByUser(ctx context.Context, userID string) ([]*CourseProgress, error)
}

// Reconciler repairs aggregate drift by recounting completion sets. The hot
// path maintains running counters; reconciliation is the scan-based
// cross-check run by the background job.
type Reconciler interface {
	// ReconcileUser recomputes every aggregate of a user from its
	// completion records and catalog totals. Returns the number of rows
	// that had drifted and were repaired.
	ReconcileUser(ctx context.Context, userID string) (int, error)
}
