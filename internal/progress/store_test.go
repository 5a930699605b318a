package progress_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-pathfinder/internal/platform/database/databasetest"
	"github.com/p-n-ai/pai-pathfinder/internal/platform/sqlitedb"
	"github.com/p-n-ai/pai-pathfinder/internal/progress"
)

func exerciseStore(t *testing.T, store progress.Store) {
	t.Helper()
	ctx := t.Context()

	if _, found, err := store.Get(ctx, "u1", "C1"); err != nil || found {
		t.Fatalf("Get() on empty store = found %v, err %v", found, err)
	}

	created, err := store.CreateIfMissing(ctx, progress.NewRecord("u1", "C1", now))
	if err != nil || !created {
		t.Fatalf("CreateIfMissing() = %v, %v, want true", created, err)
	}
	created, err = store.CreateIfMissing(ctx, progress.NewRecord("u1", "C1", now))
	if err != nil || created {
		t.Fatalf("second CreateIfMissing() = %v, %v, want false", created, err)
	}

	rec, err := store.Update(ctx, "u1", "C1", func(r *progress.Record) error {
		r.ApplyAttempt(80, "course-1", now)
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !rec.Mastered || rec.Attempts != 1 || rec.MasteryScore != 0.8 {
		t.Errorf("Update() = %+v, want mastered with 1 attempt at 0.8", rec)
	}

	got, found, err := store.Get(ctx, "u1", "C1")
	if err != nil || !found {
		t.Fatalf("Get() = found %v, err %v", found, err)
	}
	if got.ID == "" {
		t.Error("stored record has no id")
	}
	if got.MasteryScore != 0.8 || got.Status != progress.StatusCompleted || got.CourseID != "course-1" {
		t.Errorf("Get() = %+v", got)
	}
	if got.MasteredAt == nil || !got.MasteredAt.Equal(now) {
		t.Errorf("MasteredAt = %v, want %v", got.MasteredAt, now)
	}

	// Update creates a missing record.
	if _, err := store.Update(ctx, "u1", "C0", func(r *progress.Record) error {
		r.ApplyAttempt(30, "", now)
		return nil
	}); err != nil {
		t.Fatalf("Update() on missing record error = %v", err)
	}

	// A failing update writes nothing.
	boom := errors.New("boom")
	if _, err := store.Update(ctx, "u1", "C1", func(r *progress.Record) error {
		r.Reset(now)
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}
	got, _, _ = store.Get(ctx, "u1", "C1")
	if !got.Mastered {
		t.Error("failed update should not be persisted")
	}
	if _, found, _ := store.Get(ctx, "u1", "C9"); found {
		t.Error("Get(C9) should not be found")
	}

	list, err := store.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(list) != 2 || list[0].ConceptID != "C0" || list[1].ConceptID != "C1" {
		t.Errorf("ListByUser() = %+v, want C0 and C1", list)
	}
	if list, _ := store.ListByUser(ctx, "nobody"); len(list) != 0 {
		t.Errorf("ListByUser(nobody) = %d records, want 0", len(list))
	}
}

func exerciseConcurrentUpdates(t *testing.T, store progress.Store) {
	t.Helper()
	ctx := t.Context()

	scores := []float64{10, 95, 20, 60, 80, 30, 5, 50}
	var wg sync.WaitGroup
	for _, s := range scores {
		wg.Add(1)
		go func(s float64) {
			defer wg.Done()
			_, err := store.Update(ctx, "u2", "C1", func(r *progress.Record) error {
				r.ApplyAttempt(s, "", time.Now())
				return nil
			})
			if err != nil {
				t.Errorf("Update(%v) error = %v", s, err)
			}
		}(s)
	}
	wg.Wait()

	got, found, err := store.Get(ctx, "u2", "C1")
	if err != nil || !found {
		t.Fatalf("Get() = found %v, err %v", found, err)
	}
	if got.Attempts != len(scores) {
		t.Errorf("Attempts = %d, want %d", got.Attempts, len(scores))
	}
	if got.MasteryScore != 0.95 {
		t.Errorf("MasteryScore = %v, want 0.95", got.MasteryScore)
	}
	if !got.Mastered {
		t.Error("record should be mastered")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, progress.NewMemoryStore())
}

func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	exerciseConcurrentUpdates(t, progress.NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := progress.NewMemoryStore()
	ctx := t.Context()

	rec, _ := store.Update(ctx, "u1", "C1", func(r *progress.Record) error {
		r.ApplyAttempt(90, "", now)
		return nil
	})
	*rec.MasteredAt = now.Add(time.Hour)
	rec.MasteryScore = 0

	got, _, _ := store.Get(ctx, "u1", "C1")
	if got.MasteryScore != 0.9 || !got.MasteredAt.Equal(now) {
		t.Errorf("stored record changed through returned copy: %+v", got)
	}
}

func TestMemoryStore_RequiresKeys(t *testing.T) {
	store := progress.NewMemoryStore()
	if _, err := store.Update(t.Context(), "", "C1", func(*progress.Record) error { return nil }); err == nil {
		t.Error("Update() without user should fail")
	}
	if _, err := store.CreateIfMissing(t.Context(), progress.Record{UserID: "u1"}); err == nil {
		t.Error("CreateIfMissing() without concept should fail")
	}
}

func TestMemoryStore_UpdateReturnsReadError(t *testing.T) {
	store := progress.NewMemoryStore()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	called := false
	_, err := store.Update(ctx, "u1", "C1", func(*progress.Record) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Update() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("fn should not run when the read fails")
	}
	if _, found, _ := store.Get(t.Context(), "u1", "C1"); found {
		t.Error("no record should be written")
	}
}

func newSQLiteStore(t *testing.T) *progress.SQLiteStore {
	t.Helper()
	db, err := sqlitedb.Open(t.Context(), t.TempDir()+"/progress.db")
	if err != nil {
		t.Fatalf("sqlitedb.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := progress.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	return store
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, newSQLiteStore(t))
}

func TestSQLiteStore_ConcurrentUpdates(t *testing.T) {
	exerciseConcurrentUpdates(t, newSQLiteStore(t))
}

func TestPostgresStore(t *testing.T) {
	pool := databasetest.NewPool(t)

	store, err := progress.NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}

	t.Run("basic", func(t *testing.T) {
		databasetest.Truncate(t, pool)
		exerciseStore(t, store)
	})
	t.Run("concurrent", func(t *testing.T) {
		databasetest.Truncate(t, pool)
		exerciseConcurrentUpdates(t, store)
	})
}

func TestNewStores_RejectNil(t *testing.T) {
	if _, err := progress.NewPostgresStore(nil); err == nil {
		t.Error("NewPostgresStore(nil) should fail")
	}
	if _, err := progress.NewSQLiteStore(nil); err == nil {
		t.Error("NewSQLiteStore(nil) should fail")
	}
}
