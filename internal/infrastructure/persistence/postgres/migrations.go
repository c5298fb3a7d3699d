package postgres

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_profiles_and_capacity",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_study_tree_and_tasks",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_exam_modes",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
		{
			Version: 4,
			Name:    "create_activity_tracking",
			UpSQL:   migration004Up,
			DownSQL: migration004Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: PROFILES AND CAPACITY
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS profiles (
    user_id UUID PRIMARY KEY,
    answers JSONB NOT NULL DEFAULT '{}'::jsonb,
    persona VARCHAR(40) NOT NULL DEFAULT 'balanced',
    selected_plan_id VARCHAR(40),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_persona CHECK (persona IN (
        'low_focus_short_session', 'exam_sprinter', 'burnout_recovery',
        'overloaded_juggler', 'balanced'
    ))
);

CREATE TABLE IF NOT EXISTS capacity (
    user_id UUID PRIMARY KEY,
    max_tasks_per_day INTEGER NOT NULL,
    default_focus_minutes INTEGER NOT NULL,
    min_focus_minutes INTEGER NOT NULL,
    max_focus_minutes INTEGER NOT NULL,
    default_break_minutes INTEGER NOT NULL,
    max_daily_focus_minutes INTEGER NOT NULL,
    recommended_sessions_per_day INTEGER NOT NULL,
    persona VARCHAR(40),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_max_tasks CHECK (max_tasks_per_day BETWEEN 1 AND 10),
    CONSTRAINT valid_default_focus CHECK (default_focus_minutes BETWEEN 10 AND 90),
    CONSTRAINT valid_min_focus CHECK (min_focus_minutes BETWEEN 5 AND 45),
    CONSTRAINT valid_max_focus CHECK (max_focus_minutes BETWEEN 15 AND 120),
    CONSTRAINT valid_break CHECK (default_break_minutes BETWEEN 3 AND 30),
    CONSTRAINT valid_daily_focus CHECK (max_daily_focus_minutes BETWEEN 30 AND 480),
    CONSTRAINT valid_sessions CHECK (recommended_sessions_per_day BETWEEN 1 AND 12),
    CONSTRAINT valid_focus_order CHECK (
        min_focus_minutes <= default_focus_minutes AND default_focus_minutes <= max_focus_minutes
    )
);

CREATE TABLE IF NOT EXISTS capacity_overrides (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    override_type VARCHAR(20) NOT NULL,
    original_limit INTEGER NOT NULL,
    attempted_value INTEGER NOT NULL,
    reason TEXT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_override_type CHECK (override_type IN ('task_limit', 'focus_limit', 'session_limit'))
);

CREATE INDEX IF NOT EXISTS idx_capacity_overrides_user ON capacity_overrides(user_id, created_at DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS capacity_overrides;
DROP TABLE IF EXISTS capacity;
DROP TABLE IF EXISTS profiles;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: SUBJECTS, TOPICS, TASKS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS subjects (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    name VARCHAR(120) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS topics (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    subject_id UUID NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
    name VARCHAR(160) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sub_topics (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    topic_id UUID NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    name VARCHAR(160) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS tasks (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    subject_id UUID REFERENCES subjects(id) ON DELETE SET NULL,
    topic_id UUID REFERENCES topics(id) ON DELETE SET NULL,
    title VARCHAR(200) NOT NULL,
    due_date DATE,
    priority VARCHAR(10) NOT NULL DEFAULT 'medium',
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_priority CHECK (priority IN ('low', 'medium', 'high'))
);

CREATE INDEX IF NOT EXISTS idx_tasks_user_pending ON tasks(user_id, due_date) WHERE completed = FALSE;
CREATE INDEX IF NOT EXISTS idx_tasks_user_priority ON tasks(user_id, priority) WHERE completed = FALSE;
CREATE INDEX IF NOT EXISTS idx_subjects_user ON subjects(user_id);
`

const migration002Down = `
DROP TABLE IF EXISTS tasks;
DROP TABLE IF EXISTS sub_topics;
DROP TABLE IF EXISTS topics;
DROP TABLE IF EXISTS subjects;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: EXAM MODES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS exam_modes (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    name VARCHAR(160) NOT NULL,
    exam_date DATE NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS exam_mode_tasks (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    exam_mode_id UUID NOT NULL REFERENCES exam_modes(id) ON DELETE CASCADE,
    task_id UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE (exam_mode_id, task_id)
);

CREATE INDEX IF NOT EXISTS idx_exam_modes_user_active ON exam_modes(user_id) WHERE is_active = TRUE;
`

const migration003Down = `
DROP TABLE IF EXISTS exam_mode_tasks;
DROP TABLE IF EXISTS exam_modes;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: STREAKS, FOCUS SESSIONS, MISSED REASONS, HEALTH READINGS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS missed_task_reasons (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    task_id UUID NOT NULL,
    reason VARCHAR(20) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_reason CHECK (reason IN ('too_difficult', 'no_time', 'low_priority', 'rescheduled'))
);

CREATE TABLE IF NOT EXISTS user_streaks (
    user_id UUID PRIMARY KEY,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_activity_date DATE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS focus_sessions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    task_id UUID,
    duration_minutes INTEGER NOT NULL,
    session_date DATE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_duration CHECK (duration_minutes BETWEEN 1 AND 180)
);

CREATE TABLE IF NOT EXISTS health_readings (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    reading_date DATE NOT NULL,
    sleep_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    hrv DOUBLE PRECISION NOT NULL DEFAULT 0,
    steps INTEGER NOT NULL DEFAULT 0,
    stand_hours INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE (user_id, reading_date)
);

CREATE INDEX IF NOT EXISTS idx_missed_reasons_task ON missed_task_reasons(task_id);
CREATE INDEX IF NOT EXISTS idx_focus_sessions_user_date ON focus_sessions(user_id, session_date);
CREATE INDEX IF NOT EXISTS idx_health_readings_user_date ON health_readings(user_id, reading_date DESC);
`

const migration004Down = `
DROP TABLE IF EXISTS health_readings;
DROP TABLE IF EXISTS focus_sessions;
DROP TABLE IF EXISTS user_streaks;
DROP TABLE IF EXISTS missed_task_reasons;
`
