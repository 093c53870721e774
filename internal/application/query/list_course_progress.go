package query

import (
	"context"

	"github.com/articulearn/progress-engine/internal/domain/progress"
	"github.com/articulearn/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST COURSE PROGRESS QUERY
// Returns every enrollment aggregate of one user, for the home screen course
// list.
// ══════════════════════════════════════════════════════════════════════════════

// ListCourseProgressQuery contains the parameters of the list read.
type ListCourseProgressQuery struct {
	// UserID is the learner.
	UserID string
}

// ListCourseProgressHandler handles the list query.
type ListCourseProgressHandler struct {
	reader progress.Reader
}

// NewListCourseProgressHandler creates the handler.
func NewListCourseProgressHandler(reader progress.Reader) *ListCourseProgressHandler {
	return &ListCourseProgressHandler{reader: reader}
}

// Handle returns all course aggregates of a user, most recently updated
// first. A user without enrollments yields an empty list.
func (h *ListCourseProgressHandler) Handle(ctx context.Context, q ListCourseProgressQuery) ([]*progress.CourseProgress, error) {
	if q.UserID == "" {
		return nil, shared.NewDomainError("progress", "ListCourseProgress", shared.ErrEmptyValue, "user_id is required")
	}

	list, err := h.reader.GetCourseProgressByUser(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*progress.CourseProgress{}
	}

	return list, nil
}
