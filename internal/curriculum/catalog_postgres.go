package curriculum

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresCatalog reads concepts from the concepts table.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog creates a PostgreSQL-backed catalog.
func NewPostgresCatalog(pool *pgxpool.Pool) (*PostgresCatalog, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresCatalog{pool: pool}, nil
}

// ListConcepts returns concepts ordered by position, then id.
func (c *PostgresCatalog) ListConcepts(ctx context.Context) ([]Concept, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := c.pool.Query(ctx,
		`SELECT id, title, COALESCE(course_id, ''), prerequisites, position
		 FROM concepts
		 ORDER BY position ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query concepts: %w", err)
	}

	concepts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Concept, error) {
		var concept Concept
		err := row.Scan(&concept.ID, &concept.Title, &concept.CourseID, &concept.Prerequisites, &concept.Position)
		return concept, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan concepts: %w", err)
	}
	return concepts, nil
}

// UpsertConcepts inserts or replaces the given concepts in one transaction.
func (c *PostgresCatalog) UpsertConcepts(ctx context.Context, concepts []Concept) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	batch := &pgx.Batch{}
	for _, concept := range concepts {
		prereqs := concept.Prerequisites
		if prereqs == nil {
			prereqs = []string{}
		}
		batch.Queue(
			`INSERT INTO concepts (id, title, course_id, prerequisites, position)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE
			 SET title = EXCLUDED.title,
			     course_id = EXCLUDED.course_id,
			     prerequisites = EXCLUDED.prerequisites,
			     position = EXCLUDED.position,
			     updated_at = NOW()`,
			concept.ID,
			concept.Title,
			nullIfEmpty(concept.CourseID),
			prereqs,
			concept.Position,
		)
	}

	err := pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("upsert concepts: %w", err)
	}
	return nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
