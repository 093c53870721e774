package shared

import (
	"context"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened in the engine; the notification layer and caches react to them.
const (
	// Attempt events
	EventAttemptRecorded EventType = "attempt.recorded"

	// Progress events
	EventActivityCompleted EventType = "progress.activity_completed"
	EventLessonCompleted   EventType = "progress.lesson_completed"
	EventModuleCompleted   EventType = "progress.module_completed"
	EventCourseCompleted   EventType = "progress.course_completed"

	// Stats events
	EventXPGained      EventType = "stats.xp_gained"
	EventLevelUp       EventType = "stats.level_up"
	EventStreakUpdated EventType = "stats.streak_updated"
	EventBadgeUnlocked EventType = "stats.badge_unlocked"

	// Notification events
	EventNotificationSent   EventType = "notification.sent"
	EventNotificationFailed EventType = "notification.failed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventHandler processes a single domain event.
type EventHandler interface {
	// Name returns a stable handler name for logging.
	Name() string

	// Handle processes the event.
	Handle(ctx context.Context, event Event) error
}

// EventPublisher publishes domain events to interested handlers.
type EventPublisher interface {
	Publish(event Event) error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Attempt Events
// ═══════════════════════════════════════════════════════════════════════════

// AttemptRecordedEvent is emitted after an attempt is appended to the ledger.
type AttemptRecordedEvent struct {
	BaseEvent
	AttemptID    string `json:"attempt_id"`
	UserID       string `json:"user_id"`
	ActivityID   string `json:"activity_id"`
	ActivityType string `json:"activity_type"`
	Score        int    `json:"score"`
	Passed       bool   `json:"passed"`
}

// NewAttemptRecordedEvent creates an AttemptRecordedEvent.
func NewAttemptRecordedEvent(attemptID, userID, activityID, activityType string, score int, passed bool) AttemptRecordedEvent {
	return AttemptRecordedEvent{
		BaseEvent:    NewBaseEvent(EventAttemptRecorded, userID),
		AttemptID:    attemptID,
		UserID:       userID,
		ActivityID:   activityID,
		ActivityType: activityType,
		Score:        score,
		Passed:       passed,
	}
}

// Payload implements Event interface.
func (e AttemptRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"attempt_id":    e.AttemptID,
		"user_id":       e.UserID,
		"activity_id":   e.ActivityID,
		"activity_type": e.ActivityType,
		"score":         e.Score,
		"passed":        e.Passed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// CompletionEvent is emitted when a lesson, module or course flips to
// completed. The Scope field tells which aggregate level completed.
type CompletionEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
	ModuleID string `json:"module_id,omitempty"`
	LessonID string `json:"lesson_id,omitempty"`
	Progress int    `json:"progress"`
}

// NewLessonCompletedEvent creates a lesson completion event.
func NewLessonCompletedEvent(userID, courseID, moduleID, lessonID string) CompletionEvent {
	return CompletionEvent{
		BaseEvent: NewBaseEvent(EventLessonCompleted, userID),
		UserID:    userID,
		CourseID:  courseID,
		ModuleID:  moduleID,
		LessonID:  lessonID,
		Progress:  100,
	}
}

// NewModuleCompletedEvent creates a module completion event.
func NewModuleCompletedEvent(userID, courseID, moduleID string) CompletionEvent {
	return CompletionEvent{
		BaseEvent: NewBaseEvent(EventModuleCompleted, userID),
		UserID:    userID,
		CourseID:  courseID,
		ModuleID:  moduleID,
		Progress:  100,
	}
}

// NewCourseCompletedEvent creates a course completion event.
func NewCourseCompletedEvent(userID, courseID string) CompletionEvent {
	return CompletionEvent{
		BaseEvent: NewBaseEvent(EventCourseCompleted, userID),
		UserID:    userID,
		CourseID:  courseID,
		Progress:  100,
	}
}

// Payload implements Event interface.
func (e CompletionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"course_id": e.CourseID,
		"module_id": e.ModuleID,
		"lesson_id": e.LessonID,
		"progress":  e.Progress,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Stats Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGainedEvent is emitted when a user earns XP.
type XPGainedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Amount int    `json:"amount"`
	NewXP  int    `json:"new_xp"`
}

// NewXPGainedEvent creates an XPGainedEvent.
func NewXPGainedEvent(userID string, amount, newXP int) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent: NewBaseEvent(EventXPGained, userID),
		UserID:    userID,
		Amount:    amount,
		NewXP:     newXP,
	}
}

// Payload implements Event interface.
func (e XPGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"amount":  e.Amount,
		"new_xp":  e.NewXP,
	}
}

// LevelUpEvent is emitted when a user's derived level increases.
type LevelUpEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
}

// NewLevelUpEvent creates a LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID),
		UserID:    userID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
	}
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
	}
}

// StreakUpdatedEvent is emitted when a user's daily streak changes.
type StreakUpdatedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	CurrentStreak int    `json:"current_streak"`
	BestStreak    int    `json:"best_streak"`
}

// NewStreakUpdatedEvent creates a StreakUpdatedEvent.
func NewStreakUpdatedEvent(userID string, current, best int) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventStreakUpdated, userID),
		UserID:        userID,
		CurrentStreak: current,
		BestStreak:    best,
	}
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"current_streak": e.CurrentStreak,
		"best_streak":    e.BestStreak,
	}
}

// BadgeUnlockedEvent is emitted when a badge is unlocked for a user,
// currently on daily streak milestones.
type BadgeUnlockedEvent struct {
	BaseEvent
	UserID  string `json:"user_id"`
	BadgeID string `json:"badge_id"`
}

// NewBadgeUnlockedEvent creates a BadgeUnlockedEvent.
func NewBadgeUnlockedEvent(userID, badgeID string) BadgeUnlockedEvent {
	return BadgeUnlockedEvent{
		BaseEvent: NewBaseEvent(EventBadgeUnlocked, userID),
		UserID:    userID,
		BadgeID:   badgeID,
	}
}

// Payload implements Event interface.
func (e BadgeUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":  e.UserID,
		"badge_id": e.BadgeID,
	}
}
