package database

import (
	"context"
	"fmt"
)

// Schema creates the tables used by the catalog, progress and event stores.
// Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS concepts (
    id            TEXT PRIMARY KEY,
    title         TEXT NOT NULL,
    course_id     TEXT,
    prerequisites TEXT[] NOT NULL DEFAULT '{}',
    position      INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS concept_progress (
    id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id          TEXT NOT NULL,
    concept_id       TEXT NOT NULL,
    course_id        TEXT,
    mastery_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
    attempts         INTEGER NOT NULL DEFAULT 0,
    mastered         BOOLEAN NOT NULL DEFAULT FALSE,
    mastered_at      TIMESTAMPTZ,
    status           TEXT NOT NULL DEFAULT 'not_started',
    description_read BOOLEAN NOT NULL DEFAULT FALSE,
    video_watched    BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, concept_id)
);

CREATE INDEX IF NOT EXISTS idx_concept_progress_user ON concept_progress (user_id);

CREATE TABLE IF NOT EXISTS progress_events (
    id         BIGSERIAL PRIMARY KEY,
    user_id    TEXT NOT NULL,
    concept_id TEXT,
    event_type TEXT NOT NULL,
    data       JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema applies Schema to the database.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
