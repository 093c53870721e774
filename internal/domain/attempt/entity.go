// Package attempt contains the immutable attempt ledger model. An attempt is
// one record of a learner completing or failing one activity instance; it is
// appended once and never mutated, serving as audit trail and as the trigger
// for progress recomputation.
package attempt

import (
	"strings"
	"time"

	"github.com/articulearn/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ActivityType defines the kind of activity an attempt was made against.
type ActivityType string

const (
	// TypeQuiz - multiple choice / free answer quiz.
	TypeQuiz ActivityType = "quiz"

	// TypeDictation - listen-and-write dictation exercise.
	TypeDictation ActivityType = "dictation"

	// TypePracticeLip - lip articulation practice drill.
	TypePracticeLip ActivityType = "practice_lip"

	// TypeVideoDrill - watch-and-answer video drill.
	TypeVideoDrill ActivityType = "video_drill"

	// TypeVisemeMatch - match visemes to sounds exercise.
	TypeVisemeMatch ActivityType = "viseme_match"

	// TypeMirrorPractice - mirror self-recording practice.
	TypeMirrorPractice ActivityType = "mirror_practice"
)

// AllActivityTypes lists every valid activity type.
var AllActivityTypes = []ActivityType{
	TypeQuiz,
	TypeDictation,
	TypePracticeLip,
	TypeVideoDrill,
	TypeVisemeMatch,
	TypeMirrorPractice,
}

// IsValid reports whether the activity type is one of the known kinds.
func (t ActivityType) IsValid() bool {
	switch t {
	case TypeQuiz, TypeDictation, TypePracticeLip, TypeVideoDrill, TypeVisemeMatch, TypeMirrorPractice:
		return true
	default:
		return false
	}
}

// String returns the string representation of the activity type.
func (t ActivityType) String() string {
	return string(t)
}

// Score represents a normalized attempt score in the range 0-100.
type Score int

// IsValid reports whether the score is within range.
func (s Score) IsValid() bool {
	return s >= 0 && s <= 100
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTEMPT ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Attempt is one immutable record in the per-user attempt ledger.
type Attempt struct {
	// ID is the unique attempt identifier (UUID string).
	ID string

	// UserID is the learner who made the attempt.
	UserID string

	// CourseID, ModuleID, LessonID, ActivityID locate the activity in the
	// content hierarchy.
	CourseID   string
	ModuleID   string
	LessonID   string
	ActivityID string

	// Type is the kind of activity attempted.
	Type ActivityType

	// Score is the normalized score (0-100).
	Score Score

	// ScoreRaw is the raw upstream score before normalization (e.g. the
	// inference service output for lip-practice drills).
	ScoreRaw float64

	// Passed reports whether the attempt counts as a passing completion.
	Passed bool

	// StartedAt and FinishedAt bound the attempt duration.
	StartedAt  time.Time
	FinishedAt time.Time

	// CreatedAt is when the record was appended to the ledger.
	CreatedAt time.Time
}

// NewAttemptParams contains the parameters for creating an attempt.
type NewAttemptParams struct {
	ID         string
	UserID     string
	CourseID   string
	ModuleID   string
	LessonID   string
	ActivityID string
	Type       ActivityType
	Score      Score
	ScoreRaw   float64
	Passed     bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// New creates a new attempt with full validation. All validation happens
// before anything is appended; an invalid attempt produces no side effects.
func New(params NewAttemptParams) (*Attempt, error) {
	if params.ID == "" {
		return nil, shared.NewDomainError("attempt", "New", shared.ErrInvalidID, "attempt id is required")
	}
	if strings.TrimSpace(params.UserID) == "" {
		return nil, shared.NewDomainError("attempt", "New", shared.ErrEmptyValue, "user id is required")
	}
	if params.CourseID == "" || params.ModuleID == "" || params.LessonID == "" || params.ActivityID == "" {
		return nil, shared.NewDomainError("attempt", "New", shared.ErrEmptyValue, "course, module, lesson and activity ids are required")
	}
	if !params.Type.IsValid() {
		return nil, shared.ErrInvalidActivityType
	}
	if !params.Score.IsValid() {
		return nil, shared.ErrInvalidScore
	}

	now := time.Now().UTC()
	startedAt := params.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}
	finishedAt := params.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = now
	}

	return &Attempt{
		ID:         params.ID,
		UserID:     params.UserID,
		CourseID:   params.CourseID,
		ModuleID:   params.ModuleID,
		LessonID:   params.LessonID,
		ActivityID: params.ActivityID,
		Type:       params.Type,
		Score:      params.Score,
		ScoreRaw:   params.ScoreRaw,
		Passed:     params.Passed,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		CreatedAt:  now,
	}, nil
}

// Duration returns how long the attempt took.
func (a *Attempt) Duration() time.Duration {
	if a.FinishedAt.Before(a.StartedAt) {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}
