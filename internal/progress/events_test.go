package progress_test

import (
	"testing"

	"github.com/p-n-ai/pai-pathfinder/internal/platform/database/databasetest"
	"github.com/p-n-ai/pai-pathfinder/internal/progress"
)

func TestMemoryEventLogger_LogEvent(t *testing.T) {
	logger := progress.NewMemoryEventLogger()

	err := logger.LogEvent(t.Context(), progress.Event{
		UserID:    "user-1",
		ConceptID: "C1",
		EventType: progress.EventMasteryUpdated,
		Data: map[string]any{
			"score": 82.5,
		},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].EventType != progress.EventMasteryUpdated {
		t.Errorf("EventType = %q, want mastery_updated", events[0].EventType)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if logger.Count(progress.EventMasteryUpdated) != 1 || logger.Count(progress.EventConceptMastered) != 0 {
		t.Error("Count() mismatch")
	}
}

func TestMemoryEventLogger_RequiresType(t *testing.T) {
	logger := progress.NewMemoryEventLogger()
	if err := logger.LogEvent(t.Context(), progress.Event{UserID: "user-1"}); err == nil {
		t.Fatal("expected error for missing event type")
	}
}

func TestPostgresEventLogger_LogEvent_NilPool(t *testing.T) {
	logger := progress.NewPostgresEventLogger(nil)

	err := logger.LogEvent(t.Context(), progress.Event{
		UserID:    "user-1",
		EventType: progress.EventProgressReset,
	})
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestPostgresEventLogger_LogEvent(t *testing.T) {
	pool := databasetest.NewPool(t)
	databasetest.Truncate(t, pool)
	logger := progress.NewPostgresEventLogger(pool)

	err := logger.LogEvent(t.Context(), progress.Event{
		UserID:    "user-1",
		ConceptID: "C1",
		EventType: progress.EventConceptUnlocked,
		Data:      map[string]any{"via": "C0"},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	var eventType, via string
	err = pool.QueryRow(t.Context(),
		`SELECT event_type, data->>'via' FROM progress_events WHERE user_id = $1`, "user-1",
	).Scan(&eventType, &via)
	if err != nil {
		t.Fatalf("query event: %v", err)
	}
	if eventType != progress.EventConceptUnlocked || via != "C0" {
		t.Errorf("stored event = %q via %q", eventType, via)
	}
}
