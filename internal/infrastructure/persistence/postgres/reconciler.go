// Package postgres implements the PostgreSQL persistence layer of the
// progress engine.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/articulearn/progress-engine/internal/domain/catalog"
	"github.com/articulearn/progress-engine/internal/domain/progress"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS RECONCILER IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// Reconciler implements progress.Reconciler. The hot path maintains running
// counters; this scan-based recount is the drift repair run by the background
// job, covering counter drift after catalog edits or partial failures.
type Reconciler struct {
	conn *Connection
	cat  catalog.Reader
}

// NewReconciler creates a new Reconciler.
func NewReconciler(conn *Connection, cat catalog.Reader) *Reconciler {
	return &Reconciler{conn: conn, cat: cat}
}

// lessonCount is one recounted lesson of a user.
type lessonCount struct {
	courseID  string
	moduleID  string
	lessonID  string
	completed int
}

// ReconcileUser recomputes every aggregate of a user from its completion
// records and catalog totals. Returns the number of rows that had drifted
// and were repaired.
func (r *Reconciler) ReconcileUser(ctx context.Context, userID string) (int, error) {
	lessons, err := r.recountLessons(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(lessons) == 0 {
		return 0, nil
	}

	repaired := 0
	now := time.Now().UTC()

	// Rebuilt module and course rollups, keyed by their identifying columns.
	type moduleKey struct{ courseID, moduleID string }
	moduleLessons := make(map[moduleKey]*progress.ModuleProgress)
	courseLessons := make(map[string]*progress.CourseProgress)

	err = r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, lc := range lessons {
			totals, err := r.cat.LessonTotals(ctx, lc.courseID, lc.moduleID, lc.lessonID)
			if err != nil {
				return err
			}

			lp := rebuildLesson(userID, lc, totals, now)
			fixed, err := upsertRecountedLesson(ctx, tx, lp)
			if err != nil {
				return err
			}
			if fixed {
				repaired++
			}

			mk := moduleKey{lc.courseID, lc.moduleID}
			mp, ok := moduleLessons[mk]
			if !ok {
				mp = progress.NewModuleProgress(userID, lc.courseID, lc.moduleID, now)
				moduleLessons[mk] = mp
			}
			mp.CompletedActivities += lp.CompletedActivities
			if lp.Completed {
				mp.CompletedLessons++
			}

			cp, ok := courseLessons[lc.courseID]
			if !ok {
				cp = progress.NewCourseProgress(userID, lc.courseID, now)
				courseLessons[lc.courseID] = cp
			}
			cp.CompletedActivities += lp.CompletedActivities
			if lp.Completed {
				cp.CompletedLessons++
			}
		}

		for mk, mp := range moduleLessons {
			totals, err := r.cat.ModuleTotals(ctx, mk.courseID, mk.moduleID)
			if err != nil {
				return err
			}
			finishModule(mp, totals)

			fixed, err := upsertRecountedModule(ctx, tx, mp)
			if err != nil {
				return err
			}
			if fixed {
				repaired++
			}

			if mp.Completed {
				courseLessons[mk.courseID].CompletedModules++
			}
		}

		for courseID, cp := range courseLessons {
			totals, err := r.cat.CourseTotals(ctx, courseID)
			if err != nil {
				return err
			}
			finishCourse(cp, totals)

			fixed, err := upsertRecountedCourse(ctx, tx, cp)
			if err != nil {
				return err
			}
			if fixed {
				repaired++
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return repaired, nil
}

// recountLessons counts completed activities per lesson from the completion
// records, the ground truth the aggregates are derived from.
func (r *Reconciler) recountLessons(ctx context.Context, userID string) ([]lessonCount, error) {
	query := `
		SELECT course_id, module_id, lesson_id, COUNT(*)
		FROM activity_completions
		WHERE user_id = $1 AND completed = TRUE
		GROUP BY course_id, module_id, lesson_id
	`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, wrapStorageErr("progress", "ReconcileUser", err)
	}
	defer rows.Close()

	var lessons []lessonCount
	for rows.Next() {
		var lc lessonCount
		if err := rows.Scan(&lc.courseID, &lc.moduleID, &lc.lessonID, &lc.completed); err != nil {
			return nil, fmt.Errorf("failed to scan lesson recount: %w", err)
		}
		lessons = append(lessons, lc)
	}

	return lessons, rows.Err()
}

func rebuildLesson(userID string, lc lessonCount, totals catalog.LessonTotals, now time.Time) *progress.LessonProgress {
	lp := progress.NewLessonProgress(userID, lc.courseID, lc.moduleID, lc.lessonID, now)
	lp.CompletedActivities = lc.completed
	lp.TotalActivities = totals.TotalActivities
	if lp.CompletedActivities > lp.TotalActivities && lp.TotalActivities > 0 {
		lp.CompletedActivities = lp.TotalActivities
	}
	lp.Progress = progress.Percent(lp.CompletedActivities, lp.TotalActivities)
	lp.Completed = lp.TotalActivities > 0 && lp.CompletedActivities == lp.TotalActivities
	return lp
}

func finishModule(mp *progress.ModuleProgress, totals catalog.ModuleTotals) {
	mp.TotalLessons = totals.TotalLessons
	mp.TotalActivities = totals.TotalActivities
	if mp.CompletedActivities > mp.TotalActivities && mp.TotalActivities > 0 {
		mp.CompletedActivities = mp.TotalActivities
	}
	mp.Progress = progress.Percent(mp.CompletedActivities, mp.TotalActivities)
	mp.Completed = mp.TotalLessons > 0 && mp.CompletedLessons == mp.TotalLessons
}

func finishCourse(cp *progress.CourseProgress, totals catalog.CourseTotals) {
	cp.TotalModules = totals.TotalModules
	cp.TotalLessons = totals.TotalLessons
	cp.TotalActivities = totals.TotalActivities
	if cp.CompletedActivities > cp.TotalActivities && cp.TotalActivities > 0 {
		cp.CompletedActivities = cp.TotalActivities
	}
	cp.Progress = progress.Percent(cp.CompletedActivities, cp.TotalActivities)
	cp.Completed = cp.TotalModules > 0 && cp.CompletedModules == cp.TotalModules
}

// ─────────────────────────────────────────────────────────────────────────────
// Repair writes
// ─────────────────────────────────────────────────────────────────────────────
// Each upsert writes only when the recount disagrees with the stored row, so
// RowsAffected doubles as the drift signal. The version bump keeps concurrent
// optimistic writers honest.

func upsertRecountedLesson(ctx context.Context, q Querier, lp *progress.LessonProgress) (bool, error) {
	query := `
		INSERT INTO lesson_progress (
			user_id, course_id, module_id, lesson_id,
			completed_activities, total_activities, progress, completed,
			completed_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			CASE WHEN $8 THEN $9::timestamptz ELSE NULL END, $9, 1)
		ON CONFLICT (user_id, course_id, module_id, lesson_id)
		DO UPDATE SET
			completed_activities = EXCLUDED.completed_activities,
			total_activities = EXCLUDED.total_activities,
			progress = EXCLUDED.progress,
			completed = EXCLUDED.completed,
			completed_at = CASE
				WHEN EXCLUDED.completed AND lesson_progress.completed_at IS NOT NULL
					THEN lesson_progress.completed_at
				WHEN EXCLUDED.completed THEN EXCLUDED.updated_at
				ELSE NULL
			END,
			updated_at = EXCLUDED.updated_at,
			version = lesson_progress.version + 1
		WHERE (lesson_progress.completed_activities, lesson_progress.total_activities,
		       lesson_progress.progress, lesson_progress.completed)
		   IS DISTINCT FROM
		      (EXCLUDED.completed_activities, EXCLUDED.total_activities,
		       EXCLUDED.progress, EXCLUDED.completed)
	`

	tag, err := q.Exec(ctx, query,
		lp.UserID, lp.CourseID, lp.ModuleID, lp.LessonID,
		lp.CompletedActivities, lp.TotalActivities, lp.Progress, lp.Completed,
		lp.UpdatedAt,
	)
	if err != nil {
		return false, wrapStorageErr("progress", "ReconcileLesson", err)
	}
	return tag.RowsAffected() == 1, nil
}

func upsertRecountedModule(ctx context.Context, q Querier, mp *progress.ModuleProgress) (bool, error) {
	query := `
		INSERT INTO module_progress (
			user_id, course_id, module_id,
			completed_lessons, completed_activities, total_lessons, total_activities,
			progress, completed, completed_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
			CASE WHEN $9 THEN $10::timestamptz ELSE NULL END, $10, 1)
		ON CONFLICT (user_id, course_id, module_id)
		DO UPDATE SET
			completed_lessons = EXCLUDED.completed_lessons,
			completed_activities = EXCLUDED.completed_activities,
			total_lessons = EXCLUDED.total_lessons,
			total_activities = EXCLUDED.total_activities,
			progress = EXCLUDED.progress,
			completed = EXCLUDED.completed,
			completed_at = CASE
				WHEN EXCLUDED.completed AND module_progress.completed_at IS NOT NULL
					THEN module_progress.completed_at
				WHEN EXCLUDED.completed THEN EXCLUDED.updated_at
				ELSE NULL
			END,
			updated_at = EXCLUDED.updated_at,
			version = module_progress.version + 1
		WHERE (module_progress.completed_lessons, module_progress.completed_activities,
		       module_progress.total_lessons, module_progress.total_activities,
		       module_progress.progress, module_progress.completed)
		   IS DISTINCT FROM
		      (EXCLUDED.completed_lessons, EXCLUDED.completed_activities,
		       EXCLUDED.total_lessons, EXCLUDED.total_activities,
		       EXCLUDED.progress, EXCLUDED.completed)
	`

	tag, err := q.Exec(ctx, query,
		mp.UserID, mp.CourseID, mp.ModuleID,
		mp.CompletedLessons, mp.CompletedActivities, mp.TotalLessons, mp.TotalActivities,
		mp.Progress, mp.Completed, mp.UpdatedAt,
	)
	if err != nil {
		return false, wrapStorageErr("progress", "ReconcileModule", err)
	}
	return tag.RowsAffected() == 1, nil
}

func upsertRecountedCourse(ctx context.Context, q Querier, cp *progress.CourseProgress) (bool, error) {
	query := `
		INSERT INTO course_progress (
			user_id, course_id,
			completed_modules, completed_lessons, completed_activities,
			total_modules, total_lessons, total_activities,
			progress, completed, completed_at, last_lesson_id,
			enrolled_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			CASE WHEN $10 THEN $11::timestamptz ELSE NULL END, '', $11, $11, 1)
		ON CONFLICT (user_id, course_id)
		DO UPDATE SET
			completed_modules = EXCLUDED.completed_modules,
			completed_lessons = EXCLUDED.completed_lessons,
			completed_activities = EXCLUDED.completed_activities,
			total_modules = EXCLUDED.total_modules,
			total_lessons = EXCLUDED.total_lessons,
			total_activities = EXCLUDED.total_activities,
			progress = EXCLUDED.progress,
			completed = EXCLUDED.completed,
			completed_at = CASE
				WHEN EXCLUDED.completed AND course_progress.completed_at IS NOT NULL
					THEN course_progress.completed_at
				WHEN EXCLUDED.completed THEN EXCLUDED.updated_at
				ELSE NULL
			END,
			updated_at = EXCLUDED.updated_at,
			version = course_progress.version + 1
		WHERE (course_progress.completed_modules, course_progress.completed_lessons,
		       course_progress.completed_activities, course_progress.total_modules,
		       course_progress.total_lessons, course_progress.total_activities,
		       course_progress.progress, course_progress.completed)
		   IS DISTINCT FROM
		      (EXCLUDED.completed_modules, EXCLUDED.completed_lessons,
		       EXCLUDED.completed_activities, EXCLUDED.total_modules,
		       EXCLUDED.total_lessons, EXCLUDED.total_activities,
		       EXCLUDED.progress, EXCLUDED.completed)
	`

	tag, err := q.Exec(ctx, query,
		cp.UserID, cp.CourseID,
		cp.CompletedModules, cp.CompletedLessons, cp.CompletedActivities,
		cp.TotalModules, cp.TotalLessons, cp.TotalActivities,
		cp.Progress, cp.Completed, cp.UpdatedAt,
	)
	if err != nil {
		return false, wrapStorageErr("progress", "ReconcileCourse", err)
	}
	return tag.RowsAffected() == 1, nil
}
