package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/articulearn/progress-engine/internal/domain/attempt"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test doubles
// ─────────────────────────────────────────────────────────────────────────────

type fakeLedger struct {
	users []string
	err   error
}

func (f *fakeLedger) GetByID(context.Context, string) (*attempt.Attempt, error) { return nil, nil }

func (f *fakeLedger) GetByUser(context.Context, string, int) ([]*attempt.Attempt, error) {
	return nil, nil
}

func (f *fakeLedger) GetByActivity(context.Context, string, string) ([]*attempt.Attempt, error) {
	return nil, nil
}

func (f *fakeLedger) CountByUser(context.Context, string) (int, error) { return 0, nil }

func (f *fakeLedger) ActiveUsersSince(context.Context, time.Time) ([]string, error) {
	return f.users, f.err
}

type fakeReconciler struct {
	repairedByUser map[string]int
	failUser       string
	calls          []string
}

func (f *fakeReconciler) ReconcileUser(_ context.Context, userID string) (int, error) {
	f.calls = append(f.calls, userID)
	if userID == f.failUser {
		return 0, errors.New("reconcile failed")
	}
	return f.repairedByUser[userID], nil
}

type fakeXPSource struct {
	totals map[string]int64
	err    error
}

func (f *fakeXPSource) XPTotals(context.Context) (map[string]int64, error) {
	return f.totals, f.err
}

type fakeRebuilder struct {
	scores map[string]int64
	err    error
}

func (f *fakeRebuilder) Rebuild(_ context.Context, scores map[string]int64) error {
	f.scores = scores
	return f.err
}

// ─────────────────────────────────────────────────────────────────────────────
// Reconcile progress
// ─────────────────────────────────────────────────────────────────────────────

func TestReconcileProgressRunChecksAllActiveUsers(t *testing.T) {
	ledger := &fakeLedger{users: []string{"user-1", "user-2", "user-3"}}
	rec := &fakeReconciler{repairedByUser: map[string]int{"user-2": 2}}
	job := NewReconcileProgressJob(ledger, rec, nil, DefaultReconcileProgressConfig())

	err := job.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, []string{"user-1", "user-2", "user-3"}, rec.calls)

	stats := job.LastStats()
	assert.NotNil(t, stats)
	assert.Equal(t, 3, stats.UsersChecked)
	assert.Equal(t, 2, stats.RowsRepaired)
	assert.Equal(t, 0, stats.UsersFailed)
}

func TestReconcileProgressContinuesPastUserFailures(t *testing.T) {
	ledger := &fakeLedger{users: []string{"user-1", "user-2", "user-3"}}
	rec := &fakeReconciler{failUser: "user-2"}
	job := NewReconcileProgressJob(ledger, rec, nil, DefaultReconcileProgressConfig())

	err := job.Run(context.Background())

	assert.Error(t, err, "a run with failed users reports failure")
	assert.Len(t, rec.calls, 3, "remaining users are still reconciled")

	stats := job.LastStats()
	assert.Equal(t, 2, stats.UsersChecked)
	assert.Equal(t, 1, stats.UsersFailed)
}

func TestReconcileProgressCapsBatchSize(t *testing.T) {
	ledger := &fakeLedger{users: []string{"user-1", "user-2", "user-3", "user-4"}}
	rec := &fakeReconciler{}
	cfg := DefaultReconcileProgressConfig()
	cfg.MaxUsers = 2
	job := NewReconcileProgressJob(ledger, rec, nil, cfg)

	err := job.Run(context.Background())

	assert.NoError(t, err)
	assert.Len(t, rec.calls, 2)
}

func TestReconcileProgressLedgerFailure(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("connection refused")}
	job := NewReconcileProgressJob(ledger, &fakeReconciler{}, nil, DefaultReconcileProgressConfig())

	err := job.Run(context.Background())

	assert.Error(t, err)
	assert.Nil(t, job.LastStats())
}

func TestReconcileProgressJobMetadata(t *testing.T) {
	job := NewReconcileProgressJob(&fakeLedger{}, &fakeReconciler{}, nil, DefaultReconcileProgressConfig())

	assert.Equal(t, "reconcile_progress", job.Name())
	assert.NotEmpty(t, job.Description())
}

// ─────────────────────────────────────────────────────────────────────────────
// Rebuild leaderboard
// ─────────────────────────────────────────────────────────────────────────────

func TestRebuildLeaderboardRun(t *testing.T) {
	source := &fakeXPSource{totals: map[string]int64{"user-1": 150, "user-2": 90}}
	rebuilder := &fakeRebuilder{}
	job := NewRebuildLeaderboardJob(source, rebuilder, nil, time.Minute)

	err := job.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, source.totals, rebuilder.scores)
	assert.Equal(t, "rebuild_leaderboard", job.Name())
}

func TestRebuildLeaderboardSourceFailure(t *testing.T) {
	source := &fakeXPSource{err: errors.New("query failed")}
	rebuilder := &fakeRebuilder{}
	job := NewRebuildLeaderboardJob(source, rebuilder, nil, time.Minute)

	err := job.Run(context.Background())

	assert.Error(t, err)
	assert.Nil(t, rebuilder.scores, "nothing is rebuilt from a failed read")
}

func TestRebuildLeaderboardRebuildFailure(t *testing.T) {
	source := &fakeXPSource{totals: map[string]int64{"user-1": 10}}
	rebuilder := &fakeRebuilder{err: errors.New("redis down")}
	job := NewRebuildLeaderboardJob(source, rebuilder, nil, time.Minute)

	assert.Error(t, job.Run(context.Background()))
}
