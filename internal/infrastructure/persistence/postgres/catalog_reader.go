// Package postgres implements the PostgreSQL persistence layer of the
// progress engine.
package postgres

import (
	"context"
	"errors"

	"github.com/articulearn/progress-engine/internal/domain/catalog"
	"github.com/articulearn/progress-engine/internal/domain/shared"
	"github.com/articulearn/progress-engine/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG READER IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CatalogReader implements catalog.Reader against the catalog mirror tables.
// The catalog service owns the mirror; the engine never writes to it.
//
// A circuit breaker shields recomputations from a broken mirror: once reads
// keep failing, attempts fail fast with a catalog-unavailable error instead
// of waiting out timeouts on every call.
type CatalogReader struct {
	conn    *Connection
	breaker *circuitbreaker.CircuitBreaker
}

// NewCatalogReader creates a new CatalogReader.
func NewCatalogReader(conn *Connection) *CatalogReader {
	return &CatalogReader{
		conn: conn,
		breaker: circuitbreaker.New("catalog",
			circuitbreaker.WithFailureThreshold(5),
			circuitbreaker.WithSuccessThreshold(2),
		),
	}
}

// LessonTotals returns the canonical totals for a lesson. A lesson missing
// from the catalog yields zero totals, not an error.
func (r *CatalogReader) LessonTotals(ctx context.Context, courseID, moduleID, lessonID string) (catalog.LessonTotals, error) {
	var totals catalog.LessonTotals

	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		query := `
			SELECT COALESCE(SUM(activity_count), 0)
			FROM catalog_lessons
			WHERE course_id = $1 AND module_id = $2 AND lesson_id = $3
		`
		return r.conn.QueryRow(ctx, query, courseID, moduleID, lessonID).Scan(&totals.TotalActivities)
	})
	if err != nil {
		return catalog.LessonTotals{}, catalogErr("LessonTotals", err)
	}

	return totals, nil
}

// ModuleTotals returns the canonical totals for a module.
func (r *CatalogReader) ModuleTotals(ctx context.Context, courseID, moduleID string) (catalog.ModuleTotals, error) {
	var totals catalog.ModuleTotals

	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		query := `
			SELECT COUNT(*), COALESCE(SUM(activity_count), 0)
			FROM catalog_lessons
			WHERE course_id = $1 AND module_id = $2
		`
		return r.conn.QueryRow(ctx, query, courseID, moduleID).
			Scan(&totals.TotalLessons, &totals.TotalActivities)
	})
	if err != nil {
		return catalog.ModuleTotals{}, catalogErr("ModuleTotals", err)
	}

	return totals, nil
}

// CourseTotals returns the canonical totals for a course.
func (r *CatalogReader) CourseTotals(ctx context.Context, courseID string) (catalog.CourseTotals, error) {
	var totals catalog.CourseTotals

	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		query := `
			SELECT
				(SELECT COUNT(*) FROM catalog_modules WHERE course_id = $1),
				COUNT(*),
				COALESCE(SUM(activity_count), 0)
			FROM catalog_lessons
			WHERE course_id = $1
		`
		return r.conn.QueryRow(ctx, query, courseID).
			Scan(&totals.TotalModules, &totals.TotalLessons, &totals.TotalActivities)
	})
	if err != nil {
		return catalog.CourseTotals{}, catalogErr("CourseTotals", err)
	}

	return totals, nil
}

// catalogErr maps any read failure, including an open circuit, to the
// catalog-unavailable kind. Recomputation fails atomically on it; the
// retry loop does not treat it as transient storage trouble.
func catalogErr(op string, err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return shared.WrapError("catalog", op, shared.ErrCatalogUnavailable, "catalog circuit open", err)
	}
	return shared.WrapError("catalog", op, shared.ErrCatalogUnavailable, "catalog read failed", err)
}
