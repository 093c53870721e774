// Package eventhandler reacts to domain events published by the engine.
// Handlers translate events into notifications for the UI collaborator; they
// never mutate progress or stats state.
package eventhandler

import (
	"context"

	"github.com/articulearn/progress-engine/internal/domain/shared"
	"github.com/articulearn/progress-engine/pkg/logger"
)

// Notifier is the outbound port to the notification collaborator. Delivery
// mechanics (push, in-app, e-mail) live outside this engine.
type Notifier interface {
	// NotifyLevelUp informs the user about a level increase.
	NotifyLevelUp(ctx context.Context, userID string, newLevel int) error

	// NotifyBadgeUnlocked informs the user about an unlocked badge.
	NotifyBadgeUnlocked(ctx context.Context, userID, badgeID string) error

	// NotifyCourseCompleted congratulates the user on finishing a course.
	NotifyCourseCompleted(ctx context.Context, userID, courseID string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL UP HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// OnLevelUp forwards level-up events to the notifier.
type OnLevelUp struct {
	notifier Notifier
	log      *logger.Logger
}

// NewOnLevelUp creates the handler.
func NewOnLevelUp(notifier Notifier, log *logger.Logger) *OnLevelUp {
	if log == nil {
		log = logger.Default()
	}
	return &OnLevelUp{notifier: notifier, log: log}
}

// Name implements shared.EventHandler.
func (h *OnLevelUp) Name() string { return "on_level_up" }

// Handle implements shared.EventHandler.
func (h *OnLevelUp) Handle(ctx context.Context, event shared.Event) error {
	e, ok := event.(shared.LevelUpEvent)
	if !ok {
		return nil
	}

	h.log.Info("user leveled up",
		logger.String("user_id", e.UserID),
		logger.Int("new_level", e.NewLevel),
	)

	return h.notifier.NotifyLevelUp(ctx, e.UserID, e.NewLevel)
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE COMPLETED HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// OnCourseCompleted forwards course completion events to the notifier.
type OnCourseCompleted struct {
	notifier Notifier
}

// NewOnCourseCompleted creates the handler.
func NewOnCourseCompleted(notifier Notifier) *OnCourseCompleted {
	return &OnCourseCompleted{notifier: notifier}
}

// Name implements shared.EventHandler.
func (h *OnCourseCompleted) Name() string { return "on_course_completed" }

// Handle implements shared.EventHandler.
func (h *OnCourseCompleted) Handle(ctx context.Context, event shared.Event) error {
	e, ok := event.(shared.CompletionEvent)
	if !ok || e.EventType() != shared.EventCourseCompleted {
		return nil
	}
	return h.notifier.NotifyCourseCompleted(ctx, e.UserID, e.CourseID)
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE UNLOCKED HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// OnBadgeUnlocked forwards badge events to the notifier. This handler is only
// the delivery path; badge selection happens in the write path.
type OnBadgeUnlocked struct {
	notifier Notifier
}

// NewOnBadgeUnlocked creates the handler.
func NewOnBadgeUnlocked(notifier Notifier) *OnBadgeUnlocked {
	return &OnBadgeUnlocked{notifier: notifier}
}

// Name implements shared.EventHandler.
func (h *OnBadgeUnlocked) Name() string { return "on_badge_unlocked" }

// Handle implements shared.EventHandler.
func (h *OnBadgeUnlocked) Handle(ctx context.Context, event shared.Event) error {
	e, ok := event.(shared.BadgeUnlockedEvent)
	if !ok {
		return nil
	}
	return h.notifier.NotifyBadgeUnlocked(ctx, e.UserID, e.BadgeID)
}
