package curriculum

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLiteCatalog reads concepts from the concepts table of an embedded SQLite
// database. Prerequisites are stored as a JSON array.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog creates a SQLite-backed catalog.
func NewSQLiteCatalog(db *sql.DB) (*SQLiteCatalog, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &SQLiteCatalog{db: db}, nil
}

// ListConcepts returns concepts ordered by position, then id.
func (c *SQLiteCatalog) ListConcepts(ctx context.Context) ([]Concept, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, title, COALESCE(course_id, ''), prerequisites, position
		 FROM concepts
		 ORDER BY position ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query concepts: %w", err)
	}
	defer rows.Close()

	var concepts []Concept
	for rows.Next() {
		var concept Concept
		var prereqs string
		if err := rows.Scan(&concept.ID, &concept.Title, &concept.CourseID, &prereqs, &concept.Position); err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		if err := json.Unmarshal([]byte(prereqs), &concept.Prerequisites); err != nil {
			return nil, fmt.Errorf("decode prerequisites of %s: %w", concept.ID, err)
		}
		concepts = append(concepts, concept)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate concepts: %w", err)
	}
	return concepts, nil
}

// UpsertConcepts inserts or replaces the given concepts in one transaction.
func (c *SQLiteCatalog) UpsertConcepts(ctx context.Context, concepts []Concept) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, concept := range concepts {
		prereqs := concept.Prerequisites
		if prereqs == nil {
			prereqs = []string{}
		}
		encoded, err := json.Marshal(prereqs)
		if err != nil {
			return fmt.Errorf("encode prerequisites of %s: %w", concept.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO concepts (id, title, course_id, prerequisites, position)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE
			 SET title = excluded.title,
			     course_id = excluded.course_id,
			     prerequisites = excluded.prerequisites,
			     position = excluded.position,
			     updated_at = CURRENT_TIMESTAMP`,
			concept.ID,
			concept.Title,
			nullIfEmpty(concept.CourseID),
			string(encoded),
			concept.Position,
		)
		if err != nil {
			return fmt.Errorf("upsert concept %s: %w", concept.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
