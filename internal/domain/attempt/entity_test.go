package attempt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/articulearn/progress-engine/internal/domain/shared"
)

func validParams() NewAttemptParams {
	return NewAttemptParams{
		ID:         "att-1",
		UserID:     "user-1",
		CourseID:   "course-1",
		ModuleID:   "module-1",
		LessonID:   "lesson-1",
		ActivityID: "activity-1",
		Type:       TypeQuiz,
		Score:      85,
		ScoreRaw:   0.85,
		Passed:     true,
	}
}

func TestNewAttempt(t *testing.T) {
	a, err := New(validParams())

	assert.NoError(t, err)
	assert.Equal(t, "att-1", a.ID)
	assert.Equal(t, "user-1", a.UserID)
	assert.Equal(t, TypeQuiz, a.Type)
	assert.Equal(t, Score(85), a.Score)
	assert.True(t, a.Passed)
	assert.False(t, a.CreatedAt.IsZero())
	assert.False(t, a.StartedAt.IsZero(), "started at defaults to now")
	assert.False(t, a.FinishedAt.IsZero(), "finished at defaults to now")
}

func TestNewAttemptRequiresID(t *testing.T) {
	p := validParams()
	p.ID = ""

	_, err := New(p)

	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestNewAttemptRequiresUserID(t *testing.T) {
	p := validParams()
	p.UserID = "   "

	_, err := New(p)

	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

func TestNewAttemptRequiresLocationIDs(t *testing.T) {
	for _, mutate := range []func(*NewAttemptParams){
		func(p *NewAttemptParams) { p.CourseID = "" },
		func(p *NewAttemptParams) { p.ModuleID = "" },
		func(p *NewAttemptParams) { p.LessonID = "" },
		func(p *NewAttemptParams) { p.ActivityID = "" },
	} {
		p := validParams()
		mutate(&p)

		_, err := New(p)

		assert.ErrorIs(t, err, shared.ErrEmptyValue)
	}
}

func TestNewAttemptRejectsUnknownType(t *testing.T) {
	p := validParams()
	p.Type = "karaoke"

	_, err := New(p)

	assert.ErrorIs(t, err, shared.ErrInvalidActivityType)
	assert.True(t, shared.IsValidation(err))
}

func TestNewAttemptRejectsScoreOutOfRange(t *testing.T) {
	p := validParams()
	p.Score = 101

	_, err := New(p)
	assert.ErrorIs(t, err, shared.ErrInvalidScore)

	p.Score = -1
	_, err = New(p)
	assert.ErrorIs(t, err, shared.ErrInvalidScore)
}

func TestActivityTypeIsValid(t *testing.T) {
	for _, at := range AllActivityTypes {
		assert.True(t, at.IsValid(), at.String())
	}
	assert.False(t, ActivityType("").IsValid())
	assert.False(t, ActivityType("singing").IsValid())
}

func TestAttemptDuration(t *testing.T) {
	started := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	p := validParams()
	p.StartedAt = started
	p.FinishedAt = started.Add(45 * time.Second)
	a, err := New(p)

	assert.NoError(t, err)
	assert.Equal(t, 45*time.Second, a.Duration())
}

func TestAttemptDurationNeverNegative(t *testing.T) {
	started := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	p := validParams()
	p.StartedAt = started
	p.FinishedAt = started.Add(-time.Minute)
	a, err := New(p)

	assert.NoError(t, err)
	assert.Equal(t, time.Duration(0), a.Duration())
}
