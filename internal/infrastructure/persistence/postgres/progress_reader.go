// Package postgres implements the PostgreSQL persistence layer of the
// progress engine.
package postgres

import (
	"context"
	"fmt"

	"github.com/articulearn/progress-engine/internal/domain/progress"
	"github.com/articulearn/progress-engine/internal/domain/shared"
	"github.com/articulearn/progress-engine/internal/domain/stats"
)

// ══════════════════════════════════════════════════════════════════════════════
// READ-SIDE REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// ProgressReader implements progress.Reader against the connection pool,
// outside of any transaction. Queries and duplicate-submission result
// assembly read through here.
type ProgressReader struct {
	conn *Connection
}

// NewProgressReader creates a new ProgressReader.
func NewProgressReader(conn *Connection) *ProgressReader {
	return &ProgressReader{conn: conn}
}

// GetLessonProgress returns the lesson aggregate, or nil if absent.
func (r *ProgressReader) GetLessonProgress(ctx context.Context, userID, courseID, moduleID, lessonID string) (*progress.LessonProgress, error) {
	return getLessonProgress(ctx, r.conn, userID, courseID, moduleID, lessonID)
}

// GetModuleProgress returns the module aggregate, or nil if absent.
func (r *ProgressReader) GetModuleProgress(ctx context.Context, userID, courseID, moduleID string) (*progress.ModuleProgress, error) {
	return getModuleProgress(ctx, r.conn, userID, courseID, moduleID)
}

// GetCourseProgress returns the course aggregate, or nil if absent.
func (r *ProgressReader) GetCourseProgress(ctx context.Context, userID, courseID string) (*progress.CourseProgress, error) {
	return getCourseProgress(ctx, r.conn, userID, courseID)
}

// GetCourseProgressByUser returns all course aggregates of a user, most
// recently updated first.
func (r *ProgressReader) GetCourseProgressByUser(ctx context.Context, userID string) ([]*progress.CourseProgress, error) {
	query := `SELECT` + courseProgressColumns + `
		FROM course_progress
		WHERE user_id = $1
		ORDER BY updated_at DESC`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, wrapStorageErr("progress", "GetCourseProgressByUser", err)
	}
	defer rows.Close()

	var result []*progress.CourseProgress
	for rows.Next() {
		cp, err := scanCourseProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course progress: %w", err)
		}
		result = append(result, cp)
	}

	return result, rows.Err()
}

// StatsReader implements stats.Reader against the connection pool.
type StatsReader struct {
	conn *Connection
}

// NewStatsReader creates a new StatsReader.
func NewStatsReader(conn *Connection) *StatsReader {
	return &StatsReader{conn: conn}
}

// GetByUser returns the stats of a user.
func (r *StatsReader) GetByUser(ctx context.Context, userID string) (*stats.UserStats, error) {
	s, err := getUserStats(ctx, r.conn, userID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, shared.ErrStatsNotFound
	}
	return s, nil
}

// XPTotals returns the cumulative XP of every user with a stats record.
// The leaderboard rebuild job restores the Redis sorted set from this.
func (r *StatsReader) XPTotals(ctx context.Context) (map[string]int64, error) {
	rows, err := r.conn.Query(ctx, `SELECT user_id, xp FROM user_stats`)
	if err != nil {
		return nil, wrapStorageErr("stats", "XPTotals", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var userID string
		var xp int64
		if err := rows.Scan(&userID, &xp); err != nil {
			return nil, fmt.Errorf("failed to scan xp total: %w", err)
		}
		totals[userID] = xp
	}

	return totals, rows.Err()
}
