package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

const recordColumns = `id::text, user_id, concept_id, course_id, mastery_score, attempts,
	mastered, mastered_at, status, description_read, video_watched, created_at, updated_at`

// PostgresStore is a PostgreSQL-backed Store. Scores are stored on the
// 0-100 scale in concept_progress.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed mastery store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, conceptID string) (Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rec, err := scanPgRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+`
		 FROM concept_progress
		 WHERE user_id = $1 AND concept_id = $2`,
		userID,
		conceptID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("get progress: %w", err)
	}
	return rec, true, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+`
		 FROM concept_progress
		 WHERE user_id = $1
		 ORDER BY concept_id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		return scanPgRecord(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan progress: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) CreateIfMissing(ctx context.Context, rec Record) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if rec.UserID == "" || rec.ConceptID == "" {
		return false, fmt.Errorf("user_id and concept_id are required")
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.Status == "" {
		rec.Status = StatusNotStarted
	}

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO concept_progress (user_id, concept_id, course_id, mastery_score, attempts,
		     mastered, mastered_at, status, description_read, video_watched, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (user_id, concept_id) DO NOTHING`,
		rec.UserID,
		rec.ConceptID,
		nullIfEmpty(rec.CourseID),
		rec.Percent(),
		rec.Attempts,
		rec.Mastered,
		rec.MasteredAt,
		string(rec.Status),
		rec.DescriptionRead,
		rec.VideoWatched,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("create progress: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

// Update locks the row with SELECT ... FOR UPDATE for the duration of fn, so
// concurrent updates of the same record are applied one after another.
func (s *PostgresStore) Update(ctx context.Context, userID, conceptID string, fn func(*Record) error) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if userID == "" || conceptID == "" {
		return Record{}, fmt.Errorf("user_id and concept_id are required")
	}

	var out Record
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		now := time.Now()
		if _, err := tx.Exec(ctx,
			`INSERT INTO concept_progress (user_id, concept_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $3)
			 ON CONFLICT (user_id, concept_id) DO NOTHING`,
			userID,
			conceptID,
			now,
		); err != nil {
			return fmt.Errorf("ensure progress row: %w", err)
		}

		rec, err := scanPgRecord(tx.QueryRow(ctx,
			`SELECT `+recordColumns+`
			 FROM concept_progress
			 WHERE user_id = $1 AND concept_id = $2
			 FOR UPDATE`,
			userID,
			conceptID,
		))
		if err != nil {
			return fmt.Errorf("lock progress: %w", err)
		}

		if err := fn(&rec); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE concept_progress
			 SET course_id = $3,
			     mastery_score = $4,
			     attempts = $5,
			     mastered = $6,
			     mastered_at = $7,
			     status = $8,
			     description_read = $9,
			     video_watched = $10,
			     updated_at = $11
			 WHERE user_id = $1 AND concept_id = $2`,
			userID,
			conceptID,
			nullIfEmpty(rec.CourseID),
			rec.Percent(),
			rec.Attempts,
			rec.Mastered,
			rec.MasteredAt,
			string(rec.Status),
			rec.DescriptionRead,
			rec.VideoWatched,
			rec.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
		out = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

func scanPgRecord(row pgx.Row) (Record, error) {
	var rec Record
	var courseID *string
	var percent float64
	var status string
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.ConceptID,
		&courseID,
		&percent,
		&rec.Attempts,
		&rec.Mastered,
		&rec.MasteredAt,
		&status,
		&rec.DescriptionRead,
		&rec.VideoWatched,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if courseID != nil {
		rec.CourseID = *courseID
	}
	rec.MasteryScore = FromPercent(percent)
	rec.Status = Status(status)
	return rec, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
