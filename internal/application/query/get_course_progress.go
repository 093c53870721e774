// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"

	"github.com/articulearn/progress-engine/internal/domain/progress"
	"github.com/articulearn/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COURSE PROGRESS QUERY
// Assembles the hierarchical progress view of one enrollment: course
// percentages, resume pointer, and optionally the per-module breakdown.
// ══════════════════════════════════════════════════════════════════════════════

// CourseProgressCache is the optional read-through snapshot cache.
type CourseProgressCache interface {
	// GetCourseProgress returns the cached snapshot, or nil on a miss.
	GetCourseProgress(ctx context.Context, userID, courseID string) (*progress.CourseProgress, error)

	// RefreshCourseProgress stores a fresh snapshot.
	RefreshCourseProgress(ctx context.Context, cp *progress.CourseProgress) error
}

// GetCourseProgressQuery contains the parameters of a progress read.
type GetCourseProgressQuery struct {
	// UserID is the learner.
	UserID string

	// CourseID is the enrollment to read.
	CourseID string

	// SkipCache forces a storage read.
	SkipCache bool
}

// Validate checks the query parameters.
func (q GetCourseProgressQuery) Validate() error {
	if q.UserID == "" || q.CourseID == "" {
		return shared.NewDomainError("progress", "GetCourseProgress", shared.ErrEmptyValue, "user_id and course_id are required")
	}
	return nil
}

// GetCourseProgressHandler handles the course progress query.
type GetCourseProgressHandler struct {
	reader progress.Reader
	cache  CourseProgressCache
}

// NewGetCourseProgressHandler creates the handler. cache may be nil.
func NewGetCourseProgressHandler(reader progress.Reader, cache CourseProgressCache) *GetCourseProgressHandler {
	return &GetCourseProgressHandler{reader: reader, cache: cache}
}

// Handle returns the course aggregate for a user. An enrollment without any
// recorded completion yields an empty aggregate, not an error.
func (h *GetCourseProgressHandler) Handle(ctx context.Context, q GetCourseProgressQuery) (*progress.CourseProgress, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if h.cache != nil && !q.SkipCache {
		if cp, err := h.cache.GetCourseProgress(ctx, q.UserID, q.CourseID); err == nil && cp != nil {
			return cp, nil
		}
	}

	cp, err := h.reader.GetCourseProgress(ctx, q.UserID, q.CourseID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, shared.ErrProgressNotFound
	}

	if h.cache != nil {
		_ = h.cache.RefreshCourseProgress(ctx, cp)
	}

	return cp, nil
}
