// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/articulearn/progress-engine/internal/domain/attempt"
	"github.com/articulearn/progress-engine/internal/domain/catalog"
	"github.com/articulearn/progress-engine/internal/domain/progress"
	"github.com/articulearn/progress-engine/internal/domain/shared"
	"github.com/articulearn/progress-engine/internal/domain/stats"
	"github.com/articulearn/progress-engine/pkg/logger"
	"github.com/articulearn/progress-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ATTEMPT COMMAND
// Turns one activity attempt into an XP award, a derived level and consistent
// lesson/module/course completion percentages. This is the single write path
// of the engine.
// ══════════════════════════════════════════════════════════════════════════════

// AwardPolicy maps activity types to their default base XP award. The values
// are configuration, not engine logic; callers may override per attempt.
type AwardPolicy map[attempt.ActivityType]int

// BaseXP returns the default award for an activity type, zero for unknown.
func (p AwardPolicy) BaseXP(t attempt.ActivityType) int {
	return p[t]
}

// RecordAttemptCommand contains the data of one attempt submission.
type RecordAttemptCommand struct {
	// UserID is the learner submitting the attempt.
	UserID string

	// CourseID, ModuleID, LessonID, ActivityID locate the activity.
	CourseID   string
	ModuleID   string
	LessonID   string
	ActivityID string

	// ActivityType is the kind of activity.
	ActivityType attempt.ActivityType

	// Score is the normalized score (0-100).
	Score int

	// ScoreRaw is the raw upstream score before normalization.
	ScoreRaw float64

	// Passed reports whether this attempt counts as a passing completion.
	Passed bool

	// BaseXP overrides the award policy when non-nil. Must be >= 0;
	// zero is a valid no-op award.
	BaseXP *int

	// StartedAt / FinishedAt bound the attempt duration (optional).
	StartedAt  time.Time
	FinishedAt time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command before any side effect.
func (c RecordAttemptCommand) Validate() error {
	if c.UserID == "" {
		return shared.NewDomainError("attempt", "Validate", shared.ErrEmptyValue, "user_id is required")
	}
	if c.CourseID == "" || c.ModuleID == "" || c.LessonID == "" || c.ActivityID == "" {
		return shared.NewDomainError("attempt", "Validate", shared.ErrEmptyValue, "course_id, module_id, lesson_id and activity_id are required")
	}
	if !c.ActivityType.IsValid() {
		return shared.ErrInvalidActivityType
	}
	if c.Score < 0 || c.Score > 100 {
		return shared.ErrInvalidScore
	}
	if c.BaseXP != nil && *c.BaseXP < 0 {
		return shared.ErrInvalidBaseXP
	}
	return nil
}

// RecordAttemptResult contains the outcome reported to the caller.
type RecordAttemptResult struct {
	// AttemptID is the ledger ID of the appended attempt.
	AttemptID string

	// IsFirstCompletion reports whether this attempt was the first passing
	// completion of the activity. Only a first completion awards XP and
	// moves aggregates.
	IsFirstCompletion bool

	// XPAwarded is the XP added by this call (zero unless first completion).
	XPAwarded int

	// NewXP / NewLevel / LeveledUp reflect the user stats after the call.
	NewXP     int
	NewLevel  int
	LeveledUp bool

	// Aggregate snapshots after the call.
	LessonProgress *progress.LessonProgress
	ModuleProgress *progress.ModuleProgress
	CourseProgress *progress.CourseProgress

	// Events contains the domain events generated by this call.
	Events []shared.Event

	// RecordedAt is when the attempt was recorded.
	RecordedAt time.Time

	// statsRecord carries the committed stats entity to the cache refresh.
	statsRecord *stats.UserStats
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// Snapshots refreshes the read-side caches after a committed write. A cache
// failure never fails the call; implementations return errors for logging
// only.
type Snapshots interface {
	// RefreshUserStats stores the latest stats snapshot.
	RefreshUserStats(ctx context.Context, s *stats.UserStats) error

	// RefreshCourseProgress stores the latest course aggregate snapshot.
	RefreshCourseProgress(ctx context.Context, cp *progress.CourseProgress) error

	// AddLeaderboardXP applies an XP delta to the leaderboard entry.
	AddLeaderboardXP(ctx context.Context, userID string, delta, level int) error
}

// RecordAttemptHandler handles the RecordAttemptCommand.
type RecordAttemptHandler struct {
	store     progress.Store
	catalog   catalog.Reader
	publisher shared.EventPublisher
	snapshots Snapshots
	policy    AwardPolicy
	retrier   *retry.Retrier
	log       *logger.Logger
}

// NewRecordAttemptHandler creates a new RecordAttemptHandler. snapshots may
// be nil when no cache layer is configured.
func NewRecordAttemptHandler(
	store progress.Store,
	catalogReader catalog.Reader,
	publisher shared.EventPublisher,
	snapshots Snapshots,
	policy AwardPolicy,
	log *logger.Logger,
) *RecordAttemptHandler {
	if log == nil {
		log = logger.Default()
	}

	return &RecordAttemptHandler{
		store:     store,
		catalog:   catalogReader,
		publisher: publisher,
		snapshots: snapshots,
		policy:    policy,
		retrier: retry.New(
			retry.WithMaxAttempts(4),
			retry.WithInitialDelay(25*time.Millisecond),
			retry.WithMaxDelay(500*time.Millisecond),
			retry.WithJitter(0.2),
			retry.WithRetryIf(shared.IsRetryable),
		),
		log: log,
	}
}

// Handle executes the record attempt command.
//
// The whole write path - ledger append, first-pass gate, aggregate rollup,
// XP award - runs inside one storage transaction. Transient conflicts retry
// the entire transaction with bounded backoff; validation errors reject
// before any write; a duplicate passing submission commits only the ledger
// append and reports IsFirstCompletion=false.
func (h *RecordAttemptHandler) Handle(ctx context.Context, cmd RecordAttemptCommand) (*RecordAttemptResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	a, err := attempt.New(attempt.NewAttemptParams{
		ID:         uuid.NewString(),
		UserID:     cmd.UserID,
		CourseID:   cmd.CourseID,
		ModuleID:   cmd.ModuleID,
		LessonID:   cmd.LessonID,
		ActivityID: cmd.ActivityID,
		Type:       cmd.ActivityType,
		Score:      attempt.Score(cmd.Score),
		ScoreRaw:   cmd.ScoreRaw,
		Passed:     cmd.Passed,
		StartedAt:  cmd.StartedAt,
		FinishedAt: cmd.FinishedAt,
	})
	if err != nil {
		return nil, err
	}

	award := h.policy.BaseXP(cmd.ActivityType)
	if cmd.BaseXP != nil {
		award = *cmd.BaseXP
	}

	var result *RecordAttemptResult
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		var txErr error
		result, txErr = h.runTransaction(ctx, cmd, a, award)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	h.afterCommit(ctx, cmd, result)

	return result, nil
}

// runTransaction executes one atomic pass of the write path. It is re-run
// from scratch on a transient conflict, so the result is rebuilt each time.
func (h *RecordAttemptHandler) runTransaction(
	ctx context.Context,
	cmd RecordAttemptCommand,
	a *attempt.Attempt,
	award int,
) (*RecordAttemptResult, error) {
	now := time.Now().UTC()

	res := &RecordAttemptResult{
		AttemptID:  a.ID,
		RecordedAt: now,
		Events:     make([]shared.Event, 0, 4),
	}
	recorded := shared.NewAttemptRecordedEvent(
		a.ID, a.UserID, a.ActivityID, a.Type.String(), int(a.Score), a.Passed,
	)
	if cmd.CorrelationID != "" {
		recorded.BaseEvent = recorded.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	res.Events = append(res.Events, recorded)

	err := h.store.WithinTx(ctx, func(ctx context.Context, uow progress.UnitOfWork) error {
		if err := uow.AppendAttempt(ctx, a); err != nil {
			return err
		}

		key := progress.CompletionKey{
			UserID:     cmd.UserID,
			CourseID:   cmd.CourseID,
			ModuleID:   cmd.ModuleID,
			LessonID:   cmd.LessonID,
			ActivityID: cmd.ActivityID,
		}

		first, err := uow.MarkIfFirstPass(ctx, key, cmd.Passed, now)
		if err != nil {
			return err
		}
		res.IsFirstCompletion = first

		if !first {
			return h.loadCurrentState(ctx, uow, cmd, res)
		}

		if err := h.recomputeAggregates(ctx, uow, cmd, res, now); err != nil {
			return err
		}

		return h.applyXP(ctx, uow, cmd, res, award, now)
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// loadCurrentState fills the result with the committed aggregates for a
// duplicate submission. Nothing is written.
func (h *RecordAttemptHandler) loadCurrentState(
	ctx context.Context,
	uow progress.UnitOfWork,
	cmd RecordAttemptCommand,
	res *RecordAttemptResult,
) error {
	lp, err := uow.GetLessonProgress(ctx, cmd.UserID, cmd.CourseID, cmd.ModuleID, cmd.LessonID)
	if err != nil {
		return err
	}
	mp, err := uow.GetModuleProgress(ctx, cmd.UserID, cmd.CourseID, cmd.ModuleID)
	if err != nil {
		return err
	}
	cp, err := uow.GetCourseProgress(ctx, cmd.UserID, cmd.CourseID)
	if err != nil {
		return err
	}
	st, err := uow.GetUserStats(ctx, cmd.UserID)
	if err != nil {
		return err
	}

	res.LessonProgress = lp
	res.ModuleProgress = mp
	res.CourseProgress = cp
	if st != nil {
		res.NewXP = st.XP
		res.NewLevel = stats.LevelFromXP(st.XP)
	}

	return nil
}

// recomputeAggregates performs the bottom-up conditional rollup: lesson, then
// module, then course, with upward propagation only on an observed
// false-to-true flip of the level below.
func (h *RecordAttemptHandler) recomputeAggregates(
	ctx context.Context,
	uow progress.UnitOfWork,
	cmd RecordAttemptCommand,
	res *RecordAttemptResult,
	now time.Time,
) error {
	lessonTotals, err := h.catalog.LessonTotals(ctx, cmd.CourseID, cmd.ModuleID, cmd.LessonID)
	if err != nil {
		return err
	}
	moduleTotals, err := h.catalog.ModuleTotals(ctx, cmd.CourseID, cmd.ModuleID)
	if err != nil {
		return err
	}
	courseTotals, err := h.catalog.CourseTotals(ctx, cmd.CourseID)
	if err != nil {
		return err
	}

	lp, err := uow.GetLessonProgress(ctx, cmd.UserID, cmd.CourseID, cmd.ModuleID, cmd.LessonID)
	if err != nil {
		return err
	}
	if lp == nil {
		lp = progress.NewLessonProgress(cmd.UserID, cmd.CourseID, cmd.ModuleID, cmd.LessonID, now)
	}
	lessonFlipped := lp.RecordFirstCompletion(lessonTotals, now)
	if err := uow.SaveLessonProgress(ctx, lp); err != nil {
		return err
	}

	mp, err := uow.GetModuleProgress(ctx, cmd.UserID, cmd.CourseID, cmd.ModuleID)
	if err != nil {
		return err
	}
	if mp == nil {
		mp = progress.NewModuleProgress(cmd.UserID, cmd.CourseID, cmd.ModuleID, now)
	}
	moduleFlipped := mp.RecordFirstCompletion(lessonFlipped, moduleTotals, now)
	if err := uow.SaveModuleProgress(ctx, mp); err != nil {
		return err
	}

	cp, err := uow.GetCourseProgress(ctx, cmd.UserID, cmd.CourseID)
	if err != nil {
		return err
	}
	if cp == nil {
		cp = progress.NewCourseProgress(cmd.UserID, cmd.CourseID, now)
	}
	courseFlipped := cp.RecordFirstCompletion(lessonFlipped, moduleFlipped, courseTotals, cmd.LessonID, now)
	if err := uow.SaveCourseProgress(ctx, cp); err != nil {
		return err
	}

	res.LessonProgress = lp
	res.ModuleProgress = mp
	res.CourseProgress = cp

	if lessonFlipped {
		res.Events = append(res.Events, shared.NewLessonCompletedEvent(cmd.UserID, cmd.CourseID, cmd.ModuleID, cmd.LessonID))
	}
	if moduleFlipped {
		res.Events = append(res.Events, shared.NewModuleCompletedEvent(cmd.UserID, cmd.CourseID, cmd.ModuleID))
	}
	if courseFlipped {
		res.Events = append(res.Events, shared.NewCourseCompletedEvent(cmd.UserID, cmd.CourseID))
	}

	return nil
}

// applyXP awards the XP delta and derives the new level inside the same
// transaction as the aggregates it pairs with.
func (h *RecordAttemptHandler) applyXP(
	ctx context.Context,
	uow progress.UnitOfWork,
	cmd RecordAttemptCommand,
	res *RecordAttemptResult,
	amount int,
	now time.Time,
) error {
	st, err := uow.GetUserStats(ctx, cmd.UserID)
	if err != nil {
		return err
	}
	if st == nil {
		st = stats.NewUserStats(cmd.UserID, now)
	}

	award, err := st.ApplyXP(amount, now)
	if err != nil {
		return err
	}
	if err := uow.SaveUserStats(ctx, st); err != nil {
		return err
	}

	res.XPAwarded = award.Amount
	res.NewXP = award.NewXP
	res.NewLevel = award.NewLevel
	res.LeveledUp = award.LeveledUp
	res.statsRecord = st

	if award.Amount > 0 {
		res.Events = append(res.Events, shared.NewXPGainedEvent(cmd.UserID, award.Amount, award.NewXP))
	}
	if award.LeveledUp {
		res.Events = append(res.Events, shared.NewLevelUpEvent(cmd.UserID, award.OldLevel, award.NewLevel))
	}
	if award.StreakChanged {
		res.Events = append(res.Events, shared.NewStreakUpdatedEvent(cmd.UserID, st.CurrentStreak, st.BestStreak))
		if badge, ok := streakBadge(st.CurrentStreak); ok {
			res.Events = append(res.Events, shared.NewBadgeUnlockedEvent(cmd.UserID, badge))
		}
	}

	return nil
}

// streakBadge maps daily streak milestones to badge IDs. A reset streak that
// climbs back to a milestone re-emits the badge; downstream handlers tolerate
// replays.
func streakBadge(streak int) (string, bool) {
	switch streak {
	case 7:
		return "streak_week", true
	case 30:
		return "streak_month", true
	case 100:
		return "streak_hundred", true
	default:
		return "", false
	}
}

// afterCommit publishes events and refreshes read-side caches. Failures here
// are logged and swallowed - the write already committed.
func (h *RecordAttemptHandler) afterCommit(ctx context.Context, cmd RecordAttemptCommand, res *RecordAttemptResult) {
	if h.publisher != nil {
		for _, event := range res.Events {
			if err := h.publisher.Publish(event); err != nil {
				h.log.Warn("failed to publish event",
					logger.String("event_type", string(event.EventType())),
					logger.Err(err),
				)
			}
		}
	}

	if h.snapshots == nil || !res.IsFirstCompletion {
		return
	}

	if res.statsRecord != nil {
		if err := h.snapshots.RefreshUserStats(ctx, res.statsRecord); err != nil {
			h.log.Warn("failed to refresh user stats snapshot", logger.Err(err))
		}
	}
	if res.CourseProgress != nil {
		if err := h.snapshots.RefreshCourseProgress(ctx, res.CourseProgress); err != nil {
			h.log.Warn("failed to refresh course progress snapshot", logger.Err(err))
		}
	}
	if res.XPAwarded > 0 {
		if err := h.snapshots.AddLeaderboardXP(ctx, cmd.UserID, res.XPAwarded, res.NewLevel); err != nil {
			h.log.Warn("failed to update leaderboard", logger.Err(err))
		}
	}
}
