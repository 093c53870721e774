// Package postgres implements the PostgreSQL persistence layer of the
// progress engine.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/articulearn/progress-engine/internal/domain/attempt"
	"github.com/articulearn/progress-engine/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTEMPT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const attemptColumns = `
	id, user_id, course_id, module_id, lesson_id, activity_id,
	activity_type, score, score_raw, passed, started_at, finished_at, created_at
`

// AttemptRepository implements attempt.Repository for PostgreSQL. It is
// read-only; appending goes through the progress store transaction.
type AttemptRepository struct {
	conn *Connection
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(conn *Connection) *AttemptRepository {
	return &AttemptRepository{conn: conn}
}

// GetByID returns an attempt by ID.
func (r *AttemptRepository) GetByID(ctx context.Context, id string) (*attempt.Attempt, error) {
	query := `SELECT` + attemptColumns + `FROM attempts WHERE id = $1`

	row := r.conn.QueryRow(ctx, query, id)
	a, err := scanAttempt(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAttemptNotFound
		}
		return nil, wrapStorageErr("attempt", "GetByID", err)
	}
	return a, nil
}

// GetByUser returns the most recent attempts of a user, newest first.
func (r *AttemptRepository) GetByUser(ctx context.Context, userID string, limit int) ([]*attempt.Attempt, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT` + attemptColumns + `
		FROM attempts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.conn.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, wrapStorageErr("attempt", "GetByUser", err)
	}
	defer rows.Close()

	return collectAttempts(rows)
}

// GetByActivity returns all attempts of a user for one activity, oldest first.
func (r *AttemptRepository) GetByActivity(ctx context.Context, userID, activityID string) ([]*attempt.Attempt, error) {
	query := `SELECT` + attemptColumns + `
		FROM attempts
		WHERE user_id = $1 AND activity_id = $2
		ORDER BY created_at ASC`

	rows, err := r.conn.Query(ctx, query, userID, activityID)
	if err != nil {
		return nil, wrapStorageErr("attempt", "GetByActivity", err)
	}
	defer rows.Close()

	return collectAttempts(rows)
}

// CountByUser returns the total number of attempts of a user.
func (r *AttemptRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM attempts WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, wrapStorageErr("attempt", "CountByUser", err)
	}
	return count, nil
}

// ActiveUsersSince returns the IDs of users that appended at least one
// attempt after the given time.
func (r *AttemptRepository) ActiveUsersSince(ctx context.Context, since time.Time) ([]string, error) {
	query := `SELECT DISTINCT user_id FROM attempts WHERE created_at >= $1`

	rows, err := r.conn.Query(ctx, query, since)
	if err != nil {
		return nil, wrapStorageErr("attempt", "ActiveUsersSince", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		users = append(users, userID)
	}

	return users, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func insertAttempt(ctx context.Context, q Querier, a *attempt.Attempt) error {
	query := `
		INSERT INTO attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := q.Exec(ctx, query,
		a.ID,
		a.UserID,
		a.CourseID,
		a.ModuleID,
		a.LessonID,
		a.ActivityID,
		a.Type.String(),
		int(a.Score),
		a.ScoreRaw,
		a.Passed,
		a.StartedAt,
		a.FinishedAt,
		a.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("attempt", "Append", shared.ErrAlreadyExists, "attempt id already recorded")
		}
		return wrapStorageErr("attempt", "Append", err)
	}

	return nil
}

func scanAttempt(row pgx.Row) (*attempt.Attempt, error) {
	var (
		a            attempt.Attempt
		activityType string
		score        int
	)

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.CourseID,
		&a.ModuleID,
		&a.LessonID,
		&a.ActivityID,
		&activityType,
		&score,
		&a.ScoreRaw,
		&a.Passed,
		&a.StartedAt,
		&a.FinishedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Type = attempt.ActivityType(activityType)
	a.Score = attempt.Score(score)
	return &a, nil
}

func collectAttempts(rows pgx.Rows) ([]*attempt.Attempt, error) {
	var attempts []*attempt.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// wrapStorageErr maps driver failures to the retryable storage error kind so
// callers can distinguish transient outages from permanent failures.
func wrapStorageErr(domain, op string, err error) error {
	if IsSerializationFailure(err) {
		return shared.WrapError(domain, op, shared.ErrConcurrentModification, "transaction conflict", err)
	}
	return shared.WrapError(domain, op, shared.ErrStorageUnavailable, "storage operation failed", err)
}
