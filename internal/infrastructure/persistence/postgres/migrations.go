// Package postgres implements the PostgreSQL persistence layer of the
// progress engine.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE ATTEMPTS AND COMPLETIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create the attempt ledger and the per-activity completion gate
-- Version: 001

-- Immutable attempt ledger. Rows are appended, never updated.
CREATE TABLE IF NOT EXISTS attempts (
    id UUID PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    course_id VARCHAR(64) NOT NULL,
    module_id VARCHAR(64) NOT NULL,
    lesson_id VARCHAR(64) NOT NULL,
    activity_id VARCHAR(64) NOT NULL,
    activity_type VARCHAR(30) NOT NULL,
    score SMALLINT NOT NULL,
    score_raw DOUBLE PRECISION NOT NULL DEFAULT 0,
    passed BOOLEAN NOT NULL,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    finished_at TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_score CHECK (score >= 0 AND score <= 100),
    CONSTRAINT valid_activity_type CHECK (activity_type IN
        ('quiz', 'dictation', 'practice_lip', 'video_drill', 'viseme_match', 'mirror_practice'))
);

CREATE INDEX IF NOT EXISTS idx_attempts_user ON attempts(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_attempts_user_activity ON attempts(user_id, activity_id, created_at);
CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON attempts(created_at DESC);

-- Per-activity completion records. The primary key is the idempotency gate:
-- an activity completes at most once per user.
CREATE TABLE IF NOT EXISTS activity_completions (
    user_id VARCHAR(64) NOT NULL,
    course_id VARCHAR(64) NOT NULL,
    module_id VARCHAR(64) NOT NULL,
    lesson_id VARCHAR(64) NOT NULL,
    activity_id VARCHAR(64) NOT NULL,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,

    PRIMARY KEY (user_id, course_id, module_id, lesson_id, activity_id)
);

CREATE INDEX IF NOT EXISTS idx_completions_user_lesson
    ON activity_completions(user_id, course_id, module_id, lesson_id)
    WHERE completed = TRUE;
`

const migration001Down = `
DROP TABLE IF EXISTS activity_completions;
DROP TABLE IF EXISTS attempts;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE PROGRESS AGGREGATES
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create the rollup aggregates at lesson, module and course level
-- Version: 002
-- All three tables carry a version column for optimistic concurrency; writers
-- never blindly increment counters.

CREATE TABLE IF NOT EXISTS lesson_progress (
    user_id VARCHAR(64) NOT NULL,
    course_id VARCHAR(64) NOT NULL,
    module_id VARCHAR(64) NOT NULL,
    lesson_id VARCHAR(64) NOT NULL,
    completed_activities INTEGER NOT NULL DEFAULT 0,
    total_activities INTEGER NOT NULL DEFAULT 0,
    progress SMALLINT NOT NULL DEFAULT 0,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    version INTEGER NOT NULL DEFAULT 1,

    PRIMARY KEY (user_id, course_id, module_id, lesson_id),
    CONSTRAINT valid_lesson_progress CHECK (progress >= 0 AND progress <= 100),
    CONSTRAINT valid_lesson_counters CHECK (completed_activities >= 0 AND total_activities >= 0)
);

CREATE TABLE IF NOT EXISTS module_progress (
    user_id VARCHAR(64) NOT NULL,
    course_id VARCHAR(64) NOT NULL,
    module_id VARCHAR(64) NOT NULL,
    completed_lessons INTEGER NOT NULL DEFAULT 0,
    completed_activities INTEGER NOT NULL DEFAULT 0,
    total_lessons INTEGER NOT NULL DEFAULT 0,
    total_activities INTEGER NOT NULL DEFAULT 0,
    progress SMALLINT NOT NULL DEFAULT 0,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    version INTEGER NOT NULL DEFAULT 1,

    PRIMARY KEY (user_id, course_id, module_id),
    CONSTRAINT valid_module_progress CHECK (progress >= 0 AND progress <= 100)
);

-- Course aggregate doubles as the enrollment record; last_lesson_id is the
-- resume-where-left-off pointer.
CREATE TABLE IF NOT EXISTS course_progress (
    user_id VARCHAR(64) NOT NULL,
    course_id VARCHAR(64) NOT NULL,
    completed_modules INTEGER NOT NULL DEFAULT 0,
    completed_lessons INTEGER NOT NULL DEFAULT 0,
    completed_activities INTEGER NOT NULL DEFAULT 0,
    total_modules INTEGER NOT NULL DEFAULT 0,
    total_lessons INTEGER NOT NULL DEFAULT 0,
    total_activities INTEGER NOT NULL DEFAULT 0,
    progress SMALLINT NOT NULL DEFAULT 0,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    last_lesson_id VARCHAR(64) NOT NULL DEFAULT '',
    enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    version INTEGER NOT NULL DEFAULT 1,

    PRIMARY KEY (user_id, course_id),
    CONSTRAINT valid_course_progress CHECK (progress >= 0 AND progress <= 100)
);

CREATE INDEX IF NOT EXISTS idx_course_progress_user ON course_progress(user_id, updated_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS course_progress;
DROP TABLE IF EXISTS module_progress;
DROP TABLE IF EXISTS lesson_progress;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE USER STATS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create per-user XP and streak stats
-- Version: 003
-- XP is the source of truth; level is cached but recomputed from XP on every
-- write.

CREATE TABLE IF NOT EXISTS user_stats (
    user_id VARCHAR(64) PRIMARY KEY,
    xp BIGINT NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 0,
    xp_today INTEGER NOT NULL DEFAULT 0,
    xp_today_date DATE NOT NULL DEFAULT CURRENT_DATE,
    current_streak INTEGER NOT NULL DEFAULT 0,
    best_streak INTEGER NOT NULL DEFAULT 0,
    last_activity_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    version INTEGER NOT NULL DEFAULT 1,

    CONSTRAINT valid_xp CHECK (xp >= 0),
    CONSTRAINT valid_level CHECK (level >= 0 AND level <= 9999),
    CONSTRAINT valid_streaks CHECK (current_streak >= 0 AND best_streak >= current_streak)
);

CREATE INDEX IF NOT EXISTS idx_user_stats_xp ON user_stats(xp DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS user_stats;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: CREATE CATALOG MIRROR
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Migration: Create the read-only content catalog mirror
-- Version: 004
-- The catalog service owns these tables; the engine only reads canonical
-- totals from them during recomputation.

CREATE TABLE IF NOT EXISTS catalog_courses (
    course_id VARCHAR(64) PRIMARY KEY,
    title VARCHAR(255) NOT NULL DEFAULT '',
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS catalog_modules (
    course_id VARCHAR(64) NOT NULL,
    module_id VARCHAR(64) NOT NULL,
    title VARCHAR(255) NOT NULL DEFAULT '',
    position INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (course_id, module_id)
);

CREATE TABLE IF NOT EXISTS catalog_lessons (
    course_id VARCHAR(64) NOT NULL,
    module_id VARCHAR(64) NOT NULL,
    lesson_id VARCHAR(64) NOT NULL,
    title VARCHAR(255) NOT NULL DEFAULT '',
    position INTEGER NOT NULL DEFAULT 0,
    activity_count INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (course_id, module_id, lesson_id),
    CONSTRAINT valid_activity_count CHECK (activity_count >= 0)
);

CREATE INDEX IF NOT EXISTS idx_catalog_lessons_module ON catalog_lessons(course_id, module_id);
`

const migration004Down = `
DROP TABLE IF EXISTS catalog_lessons;
DROP TABLE IF EXISTS catalog_modules;
DROP TABLE IF EXISTS catalog_courses;
`

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_attempts_and_completions",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_progress_aggregates",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_user_stats",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
		{
			Version: 4,
			Name:    "create_catalog_mirror",
			UpSQL:   migration004Up,
			DownSQL: migration004Down,
		},
	}
}
