// Package sqlitedb opens the embedded SQLite database used when the service
// runs without PostgreSQL.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS concepts (
    id            TEXT PRIMARY KEY,
    title         TEXT NOT NULL,
    course_id     TEXT,
    prerequisites TEXT NOT NULL DEFAULT '[]',
    position      INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS concept_progress (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    concept_id       TEXT NOT NULL,
    course_id        TEXT,
    mastery_score    REAL NOT NULL DEFAULT 0,
    attempts         INTEGER NOT NULL DEFAULT 0,
    mastered         INTEGER NOT NULL DEFAULT 0,
    mastered_at      TIMESTAMP,
    status           TEXT NOT NULL DEFAULT 'not_started',
    description_read INTEGER NOT NULL DEFAULT 0,
    video_watched    INTEGER NOT NULL DEFAULT 0,
    created_at       TIMESTAMP NOT NULL,
    updated_at       TIMESTAMP NOT NULL,
    UNIQUE (user_id, concept_id)
);

CREATE INDEX IF NOT EXISTS idx_concept_progress_user ON concept_progress (user_id);
`

// Open opens (creating if needed) the SQLite database at path and applies the
// schema. Write transactions take the database lock when they begin, so a
// read-modify-write inside one transaction is atomic.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// A single connection serialises writers and avoids SQLITE_BUSY between
	// connections of the same process.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}
	return db, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}
