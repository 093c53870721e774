// Package postgres implements the PostgreSQL persistence layer of the
// progress engine.
package postgres

import (
	"context"
	"time"

	"github.com/articulearn/progress-engine/internal/domain/attempt"
	"github.com/articulearn/progress-engine/internal/domain/progress"
	"github.com/articulearn/progress-engine/internal/domain/shared"
	"github.com/articulearn/progress-engine/internal/domain/stats"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// Store implements progress.Store for PostgreSQL. Every RecordAttempt call
// runs inside one database transaction, so the ledger append, the completion
// gate, the rollup and the XP award commit or roll back together.
type Store struct {
	conn *Connection
}

// NewStore creates a new Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// WithinTx runs fn inside one database transaction. fn returning nil commits,
// any error rolls the whole transaction back. Serialization conflicts are
// mapped to shared.ErrConcurrentModification for the caller's retry loop.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow progress.UnitOfWork) error) error {
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(ctx, &unitOfWork{q: tx})
	})
	if err != nil && IsSerializationFailure(err) {
		return shared.WrapError("progress", "WithinTx", shared.ErrConcurrentModification, "transaction conflict", err)
	}
	return err
}

// unitOfWork implements progress.UnitOfWork against one open transaction.
type unitOfWork struct {
	q Querier
}

// AppendAttempt appends one immutable attempt to the ledger.
func (u *unitOfWork) AppendAttempt(ctx context.Context, a *attempt.Attempt) error {
	return insertAttempt(ctx, u.q, a)
}

// MarkIfFirstPass atomically flips the per-activity completion record. The
// upsert writes only when the record does not exist or is still incomplete;
// the row count distinguishes a first flip from a duplicate.
func (u *unitOfWork) MarkIfFirstPass(ctx context.Context, key progress.CompletionKey, passed bool, at time.Time) (bool, error) {
	if !passed {
		// Failed attempts never touch completion state.
		return false, nil
	}

	query := `
		INSERT INTO activity_completions (
			user_id, course_id, module_id, lesson_id, activity_id, completed, completed_at
		) VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		ON CONFLICT (user_id, course_id, module_id, lesson_id, activity_id)
		DO UPDATE SET completed = TRUE, completed_at = EXCLUDED.completed_at
		WHERE activity_completions.completed = FALSE
	`

	tag, err := u.q.Exec(ctx, query,
		key.UserID, key.CourseID, key.ModuleID, key.LessonID, key.ActivityID, at)
	if err != nil {
		return false, wrapStorageErr("progress", "MarkIfFirstPass", err)
	}

	return tag.RowsAffected() == 1, nil
}

// CountCompletedInLesson returns the number of completed activity records of
// one (user, lesson).
func (u *unitOfWork) CountCompletedInLesson(ctx context.Context, userID, courseID, moduleID, lessonID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM activity_completions
		WHERE user_id = $1 AND course_id = $2 AND module_id = $3 AND lesson_id = $4
		  AND completed = TRUE
	`

	var count int
	if err := u.q.QueryRow(ctx, query, userID, courseID, moduleID, lessonID).Scan(&count); err != nil {
		return 0, wrapStorageErr("progress", "CountCompletedInLesson", err)
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Lesson aggregate
// ─────────────────────────────────────────────────────────────────────────────

const lessonProgressColumns = `
	user_id, course_id, module_id, lesson_id,
	completed_activities, total_activities, progress, completed, completed_at,
	updated_at, version
`

// GetLessonProgress returns the lesson aggregate, or nil if none exists.
func (u *unitOfWork) GetLessonProgress(ctx context.Context, userID, courseID, moduleID, lessonID string) (*progress.LessonProgress, error) {
	return getLessonProgress(ctx, u.q, userID, courseID, moduleID, lessonID)
}

func getLessonProgress(ctx context.Context, q Querier, userID, courseID, moduleID, lessonID string) (*progress.LessonProgress, error) {
	query := `SELECT` + lessonProgressColumns + `
		FROM lesson_progress
		WHERE user_id = $1 AND course_id = $2 AND module_id = $3 AND lesson_id = $4`

	row := q.QueryRow(ctx, query, userID, courseID, moduleID, lessonID)

	var lp progress.LessonProgress
	err := row.Scan(
		&lp.UserID, &lp.CourseID, &lp.ModuleID, &lp.LessonID,
		&lp.CompletedActivities, &lp.TotalActivities, &lp.Progress, &lp.Completed, &lp.CompletedAt,
		&lp.UpdatedAt, &lp.Version,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, wrapStorageErr("progress", "GetLessonProgress", err)
	}
	return &lp, nil
}

// SaveLessonProgress inserts a new aggregate or updates an existing one with
// a version check. A zero version means the row was never persisted.
func (u *unitOfWork) SaveLessonProgress(ctx context.Context, lp *progress.LessonProgress) error {
	if lp.Version == 0 {
		query := `
			INSERT INTO lesson_progress (` + lessonProgressColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		`
		_, err := u.q.Exec(ctx, query,
			lp.UserID, lp.CourseID, lp.ModuleID, lp.LessonID,
			lp.CompletedActivities, lp.TotalActivities, lp.Progress, lp.Completed, lp.CompletedAt,
			lp.UpdatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrStaleProgress
			}
			return wrapStorageErr("progress", "SaveLessonProgress", err)
		}
		lp.Version = 1
		return nil
	}

	query := `
		UPDATE lesson_progress SET
			completed_activities = $1,
			total_activities = $2,
			progress = $3,
			completed = $4,
			completed_at = $5,
			updated_at = $6,
			version = version + 1
		WHERE user_id = $7 AND course_id = $8 AND module_id = $9 AND lesson_id = $10
		  AND version = $11
	`

	tag, err := u.q.Exec(ctx, query,
		lp.CompletedActivities, lp.TotalActivities, lp.Progress, lp.Completed, lp.CompletedAt,
		lp.UpdatedAt,
		lp.UserID, lp.CourseID, lp.ModuleID, lp.LessonID,
		lp.Version,
	)
	if err != nil {
		return wrapStorageErr("progress", "SaveLessonProgress", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStaleProgress
	}

	lp.Version++
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Module aggregate
// ─────────────────────────────────────────────────────────────────────────────

const moduleProgressColumns = `
	user_id, course_id, module_id,
	completed_lessons, completed_activities, total_lessons, total_activities,
	progress, completed, completed_at, updated_at, version
`

// GetModuleProgress returns the module aggregate, or nil if none exists.
func (u *unitOfWork) GetModuleProgress(ctx context.Context, userID, courseID, moduleID string) (*progress.ModuleProgress, error) {
	return getModuleProgress(ctx, u.q, userID, courseID, moduleID)
}

func getModuleProgress(ctx context.Context, q Querier, userID, courseID, moduleID string) (*progress.ModuleProgress, error) {
	query := `SELECT` + moduleProgressColumns + `
		FROM module_progress
		WHERE user_id = $1 AND course_id = $2 AND module_id = $3`

	row := q.QueryRow(ctx, query, userID, courseID, moduleID)

	var mp progress.ModuleProgress
	err := row.Scan(
		&mp.UserID, &mp.CourseID, &mp.ModuleID,
		&mp.CompletedLessons, &mp.CompletedActivities, &mp.TotalLessons, &mp.TotalActivities,
		&mp.Progress, &mp.Completed, &mp.CompletedAt, &mp.UpdatedAt, &mp.Version,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, wrapStorageErr("progress", "GetModuleProgress", err)
	}
	return &mp, nil
}

// SaveModuleProgress inserts or version-checked-updates the module aggregate.
func (u *unitOfWork) SaveModuleProgress(ctx context.Context, mp *progress.ModuleProgress) error {
	if mp.Version == 0 {
		query := `
			INSERT INTO module_progress (` + moduleProgressColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
		`
		_, err := u.q.Exec(ctx, query,
			mp.UserID, mp.CourseID, mp.ModuleID,
			mp.CompletedLessons, mp.CompletedActivities, mp.TotalLessons, mp.TotalActivities,
			mp.Progress, mp.Completed, mp.CompletedAt, mp.UpdatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrStaleProgress
			}
			return wrapStorageErr("progress", "SaveModuleProgress", err)
		}
		mp.Version = 1
		return nil
	}

	query := `
		UPDATE module_progress SET
			completed_lessons = $1,
			completed_activities = $2,
			total_lessons = $3,
			total_activities = $4,
			progress = $5,
			completed = $6,
			completed_at = $7,
			updated_at = $8,
			version = version + 1
		WHERE user_id = $9 AND course_id = $10 AND module_id = $11
		  AND version = $12
	`

	tag, err := u.q.Exec(ctx, query,
		mp.CompletedLessons, mp.CompletedActivities, mp.TotalLessons, mp.TotalActivities,
		mp.Progress, mp.Completed, mp.CompletedAt, mp.UpdatedAt,
		mp.UserID, mp.CourseID, mp.ModuleID,
		mp.Version,
	)
	if err != nil {
		return wrapStorageErr("progress", "SaveModuleProgress", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStaleProgress
	}

	mp.Version++
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Course aggregate / enrollment
// ─────────────────────────────────────────────────────────────────────────────

const courseProgressColumns = `
	user_id, course_id,
	completed_modules, completed_lessons, completed_activities,
	total_modules, total_lessons, total_activities,
	progress, completed, completed_at, last_lesson_id,
	enrolled_at, updated_at, version
`

// GetCourseProgress returns the course aggregate, or nil if none exists.
func (u *unitOfWork) GetCourseProgress(ctx context.Context, userID, courseID string) (*progress.CourseProgress, error) {
	return getCourseProgress(ctx, u.q, userID, courseID)
}

func getCourseProgress(ctx context.Context, q Querier, userID, courseID string) (*progress.CourseProgress, error) {
	query := `SELECT` + courseProgressColumns + `
		FROM course_progress
		WHERE user_id = $1 AND course_id = $2`

	row := q.QueryRow(ctx, query, userID, courseID)
	cp, err := scanCourseProgress(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, wrapStorageErr("progress", "GetCourseProgress", err)
	}
	return cp, nil
}

func scanCourseProgress(row pgx.Row) (*progress.CourseProgress, error) {
	var cp progress.CourseProgress
	err := row.Scan(
		&cp.UserID, &cp.CourseID,
		&cp.CompletedModules, &cp.CompletedLessons, &cp.CompletedActivities,
		&cp.TotalModules, &cp.TotalLessons, &cp.TotalActivities,
		&cp.Progress, &cp.Completed, &cp.CompletedAt, &cp.LastLessonID,
		&cp.EnrolledAt, &cp.UpdatedAt, &cp.Version,
	)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// SaveCourseProgress inserts or version-checked-updates the course aggregate.
func (u *unitOfWork) SaveCourseProgress(ctx context.Context, cp *progress.CourseProgress) error {
	if cp.Version == 0 {
		query := `
			INSERT INTO course_progress (` + courseProgressColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1)
		`
		_, err := u.q.Exec(ctx, query,
			cp.UserID, cp.CourseID,
			cp.CompletedModules, cp.CompletedLessons, cp.CompletedActivities,
			cp.TotalModules, cp.TotalLessons, cp.TotalActivities,
			cp.Progress, cp.Completed, cp.CompletedAt, cp.LastLessonID,
			cp.EnrolledAt, cp.UpdatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrStaleProgress
			}
			return wrapStorageErr("progress", "SaveCourseProgress", err)
		}
		cp.Version = 1
		return nil
	}

	query := `
		UPDATE course_progress SET
			completed_modules = $1,
			completed_lessons = $2,
			completed_activities = $3,
			total_modules = $4,
			total_lessons = $5,
			total_activities = $6,
			progress = $7,
			completed = $8,
			completed_at = $9,
			last_lesson_id = $10,
			updated_at = $11,
			version = version + 1
		WHERE user_id = $12 AND course_id = $13
		  AND version = $14
	`

	tag, err := u.q.Exec(ctx, query,
		cp.CompletedModules, cp.CompletedLessons, cp.CompletedActivities,
		cp.TotalModules, cp.TotalLessons, cp.TotalActivities,
		cp.Progress, cp.Completed, cp.CompletedAt, cp.LastLessonID,
		cp.UpdatedAt,
		cp.UserID, cp.CourseID,
		cp.Version,
	)
	if err != nil {
		return wrapStorageErr("progress", "SaveCourseProgress", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStaleProgress
	}

	cp.Version++
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// User stats
// ─────────────────────────────────────────────────────────────────────────────

const userStatsColumns = `
	user_id, xp, level, xp_today, xp_today_date,
	current_streak, best_streak, last_activity_at,
	created_at, updated_at, version
`

// GetUserStats returns the stats record for update, or nil if none exists.
func (u *unitOfWork) GetUserStats(ctx context.Context, userID string) (*stats.UserStats, error) {
	return getUserStats(ctx, u.q, userID)
}

func getUserStats(ctx context.Context, q Querier, userID string) (*stats.UserStats, error) {
	query := `SELECT` + userStatsColumns + `FROM user_stats WHERE user_id = $1`

	row := q.QueryRow(ctx, query, userID)

	var (
		s            stats.UserStats
		lastActivity *time.Time
	)
	err := row.Scan(
		&s.UserID, &s.XP, &s.Level, &s.XPToday, &s.XPTodayDate,
		&s.CurrentStreak, &s.BestStreak, &lastActivity,
		&s.CreatedAt, &s.UpdatedAt, &s.Version,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, wrapStorageErr("stats", "GetUserStats", err)
	}
	if lastActivity != nil {
		s.LastActivityAt = *lastActivity
	}
	return &s, nil
}

// SaveUserStats inserts or version-checked-updates the stats record.
func (u *unitOfWork) SaveUserStats(ctx context.Context, s *stats.UserStats) error {
	var lastActivity *time.Time
	if !s.LastActivityAt.IsZero() {
		lastActivity = &s.LastActivityAt
	}

	if s.Version == 0 {
		query := `
			INSERT INTO user_stats (` + userStatsColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		`
		_, err := u.q.Exec(ctx, query,
			s.UserID, s.XP, s.Level, s.XPToday, s.XPTodayDate,
			s.CurrentStreak, s.BestStreak, lastActivity,
			s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrStaleUserStats
			}
			return wrapStorageErr("stats", "SaveUserStats", err)
		}
		s.Version = 1
		return nil
	}

	query := `
		UPDATE user_stats SET
			xp = $1,
			level = $2,
			xp_today = $3,
			xp_today_date = $4,
			current_streak = $5,
			best_streak = $6,
			last_activity_at = $7,
			updated_at = $8,
			version = version + 1
		WHERE user_id = $9 AND version = $10
	`

	tag, err := u.q.Exec(ctx, query,
		s.XP, s.Level, s.XPToday, s.XPTodayDate,
		s.CurrentStreak, s.BestStreak, lastActivity,
		s.UpdatedAt,
		s.UserID, s.Version,
	)
	if err != nil {
		return wrapStorageErr("stats", "SaveUserStats", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStaleUserStats
	}

	s.Version++
	return nil
}
