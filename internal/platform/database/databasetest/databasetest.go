// Package databasetest starts a throwaway PostgreSQL server for store tests.
package databasetest

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-pathfinder/internal/platform/database"
)

const image = "postgres:16-alpine"

// NewPool starts a PostgreSQL container, applies the schema and returns a
// pool connected to it. The test is skipped in short mode or when no
// container runtime is reachable.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, image,
		postgres.WithDatabase("pai"),
		postgres.WithUsername("pai"),
		postgres.WithPassword("pai"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}

	db, err := database.Open(ctx, database.Options{
		URL:         url,
		MaxConns:    10,
		MinConns:    1,
		ApplySchema: true,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(db.Close)
	return db.Pool
}

// Truncate empties every table created by the schema.
func Truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE concepts, concept_progress, progress_events RESTART IDENTITY`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
