// Package postgres implements the PostgreSQL persistence layer of the session engine.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create course catalog tables
-- Version: 001
-- The catalog is populated by the content pipeline; the engine only reads it.

CREATE TABLE IF NOT EXISTS courses (
    id VARCHAR(100) PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    published_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS knowledge_components (
    id UUID PRIMARY KEY,
    course_id VARCHAR(100) NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    slug VARCHAR(200) NOT NULL,
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    tags TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(course_id, slug)
);

CREATE INDEX IF NOT EXISTS idx_kcs_course_id ON knowledge_components(course_id);

CREATE TABLE IF NOT EXISTS learning_objectives (
    id UUID PRIMARY KEY,
    kc_id UUID NOT NULL REFERENCES knowledge_components(id) ON DELETE CASCADE,
    verb VARCHAR(50) NOT NULL,
    difficulty SMALLINT NOT NULL,
    rubric JSONB NOT NULL DEFAULT '{}'::jsonb,

    CONSTRAINT valid_lo_difficulty CHECK (difficulty BETWEEN 1 AND 5)
);

CREATE INDEX IF NOT EXISTS idx_los_kc_id ON learning_objectives(kc_id);

CREATE TABLE IF NOT EXISTS learning_objects (
    id UUID PRIMARY KEY,
    lo_id UUID NOT NULL REFERENCES learning_objectives(id) ON DELETE CASCADE,
    type VARCHAR(20) NOT NULL,
    content JSONB NOT NULL,
    est_time_sec INTEGER NOT NULL,
    difficulty SMALLINT NOT NULL,
    tags TEXT[] NOT NULL DEFAULT '{}',

    CONSTRAINT valid_alo_type CHECK (type IN ('explain', 'example', 'exercise', 'quiz', 'project')),
    CONSTRAINT valid_alo_difficulty CHECK (difficulty BETWEEN 1 AND 5),
    CONSTRAINT valid_est_time CHECK (est_time_sec > 0)
);

CREATE INDEX IF NOT EXISTS idx_alos_lo_id ON learning_objects(lo_id);

CREATE TABLE IF NOT EXISTS prerequisites (
    kc_id UUID NOT NULL REFERENCES knowledge_components(id) ON DELETE CASCADE,
    prereq_kc_id UUID NOT NULL REFERENCES knowledge_components(id) ON DELETE CASCADE,

    PRIMARY KEY (kc_id, prereq_kc_id),
    CONSTRAINT no_self_prereq CHECK (kc_id != prereq_kc_id)
);

CREATE INDEX IF NOT EXISTS idx_prereqs_kc_id ON prerequisites(kc_id);
`

const migration001Down = `
DROP TABLE IF EXISTS prerequisites;
DROP TABLE IF EXISTS learning_objects;
DROP TABLE IF EXISTS learning_objectives;
DROP TABLE IF EXISTS knowledge_components;
DROP TABLE IF EXISTS courses;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE LEARNER STATE
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create mastery estimates and review queue
-- Version: 002
-- Keyed per (user, kc) and (user, alo); the engine is the only writer.

CREATE TABLE IF NOT EXISTS mastery_estimates (
    user_id VARCHAR(100) NOT NULL,
    kc_id UUID NOT NULL,
    theta DOUBLE PRECISION NOT NULL,
    attempts_count INTEGER NOT NULL DEFAULT 0,
    correct_count INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, kc_id),
    CONSTRAINT valid_theta CHECK (theta >= 0 AND theta <= 1),
    CONSTRAINT valid_counts CHECK (attempts_count >= correct_count AND correct_count >= 0)
);

CREATE INDEX IF NOT EXISTS idx_mastery_user_id ON mastery_estimates(user_id);

CREATE TABLE IF NOT EXISTS review_queue (
    user_id VARCHAR(100) NOT NULL,
    alo_id UUID NOT NULL,
    kc_id UUID NOT NULL,
    interval_days INTEGER NOT NULL,
    reps INTEGER NOT NULL DEFAULT 0,
    ease_factor DOUBLE PRECISION NOT NULL,
    lapses INTEGER NOT NULL DEFAULT 0,
    next_due TIMESTAMP WITH TIME ZONE NOT NULL,
    last_reviewed_at TIMESTAMP WITH TIME ZONE NOT NULL,

    PRIMARY KEY (user_id, alo_id),
    CONSTRAINT valid_interval CHECK (interval_days >= 1),
    CONSTRAINT valid_reps CHECK (reps >= 0 AND lapses >= 0)
);

CREATE INDEX IF NOT EXISTS idx_review_user_due ON review_queue(user_id, next_due);
`

const migration002Down = `
DROP TABLE IF EXISTS review_queue;
DROP TABLE IF EXISTS mastery_estimates;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE SESSION ARCHIVE
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create session summaries and attempt log
-- Version: 003
-- Ended sessions are archived; live session state lives in the engine process.

CREATE TABLE IF NOT EXISTS session_summaries (
    session_id UUID PRIMARY KEY,
    user_id VARCHAR(100) NOT NULL,
    course_id VARCHAR(100) NOT NULL,
    reason VARCHAR(30) NOT NULL,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    ended_at TIMESTAMP WITH TIME ZONE NOT NULL,
    duration_sec INTEGER NOT NULL,
    items_seen INTEGER NOT NULL DEFAULT 0,
    attempts_count INTEGER NOT NULL DEFAULT 0,
    correct_count INTEGER NOT NULL DEFAULT 0,
    accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
    unsynced BOOLEAN NOT NULL DEFAULT FALSE,

    CONSTRAINT valid_reason CHECK (reason IN ('user_requested', 'course_complete', 'idle_timeout', 'shutdown')),
    CONSTRAINT valid_accuracy CHECK (accuracy >= 0 AND accuracy <= 1)
);

CREATE INDEX IF NOT EXISTS idx_summaries_user_ended ON session_summaries(user_id, ended_at DESC);

CREATE TABLE IF NOT EXISTS attempts (
    id UUID PRIMARY KEY,
    session_id UUID NOT NULL,
    user_id VARCHAR(100) NOT NULL,
    course_id VARCHAR(100) NOT NULL,
    alo_id UUID NOT NULL,
    kc_id UUID NOT NULL,
    source VARCHAR(20) NOT NULL,
    correct BOOLEAN NOT NULL,
    weak_pass BOOLEAN NOT NULL DEFAULT FALSE,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    hints_used INTEGER NOT NULL DEFAULT 0,
    theta_before DOUBLE PRECISION NOT NULL,
    theta_after DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_source CHECK (source IN ('signal', 'evidence'))
);

CREATE INDEX IF NOT EXISTS idx_attempts_user_created ON attempts(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_attempts_session_id ON attempts(session_id);
`

const migration003Down = `
DROP TABLE IF EXISTS attempts;
DROP TABLE IF EXISTS session_summaries;
`
