package attempt

import (
	"context"
	"time"
)

// Repository defines read access to the attempt ledger. Appending happens
// exclusively through the progress unit of work so that the append shares a
// transaction with the completion gate and the aggregate recomputation.
type Repository interface {
	// GetByID returns an attempt by ID.
	// Returns ErrAttemptNotFound if no such attempt exists.
	GetByID(ctx context.Context, id string) (*Attempt, error)

	// GetByUser returns the most recent attempts of a user, newest first.
	GetByUser(ctx context.Context, userID string, limit int) ([]*Attempt, error)

	// GetByActivity returns all attempts of a user for one activity,
	// oldest first.
	GetByActivity(ctx context.Context, userID, activityID string) ([]*Attempt, error)

	// CountByUser returns the total number of attempts of a user.
	CountByUser(ctx context.Context, userID string) (int, error)

	// ActiveUsersSince returns the IDs of users that appended at least one
	// attempt after the given time. Used by the reconciliation job.
	ActiveUsersSince(ctx context.Context, since time.Time) ([]string, error)
}
