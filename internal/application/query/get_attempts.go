package query

import (
	"context"

	"github.com/articulearn/progress-engine/internal/domain/attempt"
	"github.com/articulearn/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ATTEMPTS QUERY
// Reads the immutable attempt ledger of one user, optionally narrowed to a
// single activity.
// ══════════════════════════════════════════════════════════════════════════════

// GetAttemptsQuery contains the parameters of a ledger read.
type GetAttemptsQuery struct {
	// UserID is the learner.
	UserID string

	// ActivityID narrows the read to one activity when non-empty.
	ActivityID string

	// Limit caps the number of attempts (default 50, max 200). Ignored
	// when ActivityID is set.
	Limit int
}

// AttemptsDTO is the assembled read model.
type AttemptsDTO struct {
	Attempts []*attempt.Attempt `json:"attempts"`
	Total    int                `json:"total"`
}

// GetAttemptsHandler handles the attempts query.
type GetAttemptsHandler struct {
	repo attempt.Repository
}

// NewGetAttemptsHandler creates the handler.
func NewGetAttemptsHandler(repo attempt.Repository) *GetAttemptsHandler {
	return &GetAttemptsHandler{repo: repo}
}

// Handle returns the user's attempts. A user with no attempts yields an empty
// list, not an error.
func (h *GetAttemptsHandler) Handle(ctx context.Context, q GetAttemptsQuery) (*AttemptsDTO, error) {
	if q.UserID == "" {
		return nil, shared.NewDomainError("attempt", "GetAttempts", shared.ErrEmptyValue, "user_id is required")
	}

	var (
		attempts []*attempt.Attempt
		err      error
	)

	if q.ActivityID != "" {
		attempts, err = h.repo.GetByActivity(ctx, q.UserID, q.ActivityID)
	} else {
		limit := q.Limit
		if limit <= 0 {
			limit = 50
		}
		if limit > 200 {
			limit = 200
		}
		attempts, err = h.repo.GetByUser(ctx, q.UserID, limit)
	}
	if err != nil {
		return nil, err
	}

	total, err := h.repo.CountByUser(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	if attempts == nil {
		attempts = []*attempt.Attempt{}
	}

	return &AttemptsDTO{Attempts: attempts, Total: total}, nil
}
