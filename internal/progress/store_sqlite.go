package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore is a Store on an embedded SQLite database opened with
// sqlitedb.Open. Write transactions take the database lock when they begin.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed mastery store.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID, conceptID string) (Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rec, err := scanSQLRecord(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+`
		 FROM concept_progress
		 WHERE user_id = ? AND concept_id = ?`,
		userID,
		conceptID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("get progress: %w", err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+`
		 FROM concept_progress
		 WHERE user_id = ?
		 ORDER BY concept_id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanSQLRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) CreateIfMissing(ctx context.Context, rec Record) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if rec.UserID == "" || rec.ConceptID == "" {
		return false, fmt.Errorf("user_id and concept_id are required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
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

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO concept_progress (id, user_id, concept_id, course_id, mastery_score, attempts,
		     mastered, mastered_at, status, description_read, video_watched, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, concept_id) DO NOTHING`,
		sqliteArgs(rec)...,
	)
	if err != nil {
		return false, fmt.Errorf("create progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create progress: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) Update(ctx context.Context, userID, conceptID string, fn func(*Record) error) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if userID == "" || conceptID == "" {
		return Record{}, fmt.Errorf("user_id and concept_id are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rec, err := scanSQLRecord(tx.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+`
		 FROM concept_progress
		 WHERE user_id = ? AND concept_id = ?`,
		userID,
		conceptID,
	))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rec = NewRecord(userID, conceptID, time.Now())
		rec.ID = uuid.NewString()
	case err != nil:
		return Record{}, fmt.Errorf("get progress: %w", err)
	}

	if err := fn(&rec); err != nil {
		return Record{}, err
	}
	rec.UserID, rec.ConceptID = userID, conceptID

	_, err = tx.ExecContext(ctx,
		`INSERT INTO concept_progress (id, user_id, concept_id, course_id, mastery_score, attempts,
		     mastered, mastered_at, status, description_read, video_watched, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, concept_id) DO UPDATE
		 SET course_id = excluded.course_id,
		     mastery_score = excluded.mastery_score,
		     attempts = excluded.attempts,
		     mastered = excluded.mastered,
		     mastered_at = excluded.mastered_at,
		     status = excluded.status,
		     description_read = excluded.description_read,
		     video_watched = excluded.video_watched,
		     updated_at = excluded.updated_at`,
		sqliteArgs(rec)...,
	)
	if err != nil {
		return Record{}, fmt.Errorf("save progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

const sqliteColumns = `id, user_id, concept_id, course_id, mastery_score, attempts,
	mastered, mastered_at, status, description_read, video_watched, created_at, updated_at`

type sqlRow interface {
	Scan(dest ...any) error
}

func scanSQLRecord(row sqlRow) (Record, error) {
	var rec Record
	var courseID sql.NullString
	var masteredAt sql.NullTime
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
		&masteredAt,
		&status,
		&rec.DescriptionRead,
		&rec.VideoWatched,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	rec.CourseID = courseID.String
	if masteredAt.Valid {
		at := masteredAt.Time
		rec.MasteredAt = &at
	}
	rec.MasteryScore = FromPercent(percent)
	rec.Status = Status(status)
	return rec, nil
}

func sqliteArgs(rec Record) []any {
	var masteredAt any
	if rec.MasteredAt != nil {
		masteredAt = rec.MasteredAt.UTC()
	}
	return []any{
		rec.ID,
		rec.UserID,
		rec.ConceptID,
		nullIfEmpty(rec.CourseID),
		rec.Percent(),
		rec.Attempts,
		rec.Mastered,
		masteredAt,
		string(rec.Status),
		rec.DescriptionRead,
		rec.VideoWatched,
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
	}
}
