// Package catalog defines the read-only contract with the content catalog,
// the external collaborator that owns canonical activity/lesson/module counts.
// The engine never writes to the catalog; it only reads totals during
// aggregate recomputation.
package catalog

import "context"

// LessonTotals holds the canonical counts for one lesson.
type LessonTotals struct {
	// TotalActivities is the number of activities the lesson contains.
	TotalActivities int
}

// ModuleTotals holds the canonical counts for one module.
type ModuleTotals struct {
	// TotalLessons is the number of lessons the module contains.
	TotalLessons int

	// TotalActivities is the number of activities across all lessons.
	TotalActivities int
}

// CourseTotals holds the canonical counts for one course.
type CourseTotals struct {
	// TotalModules is the number of modules the course contains.
	TotalModules int

	// TotalLessons is the number of lessons across all modules.
	TotalLessons int

	// TotalActivities is the number of activities across the whole course.
	TotalActivities int
}

// Reader supplies canonical totals for progress recomputation.
//
// Non-existent content yields zero totals, not an error. An unreachable
// catalog yields an error wrapping shared.ErrCatalogUnavailable, which fails
// the whole recomputation atomically.
type Reader interface {
	// LessonTotals returns the canonical totals for a lesson.
	LessonTotals(ctx context.Context, courseID, moduleID, lessonID string) (LessonTotals, error)

	// ModuleTotals returns the canonical totals for a module.
	ModuleTotals(ctx context.Context, courseID, moduleID string) (ModuleTotals, error)

	// CourseTotals returns the canonical totals for a course.
	CourseTotals(ctx context.Context, courseID string) (CourseTotals, error)
}
