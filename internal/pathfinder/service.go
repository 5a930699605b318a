// Package pathfinder recommends learning paths towards a goal concept and keeps
// the set of unlocked concepts in step with a user's mastery.
package pathfinder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/p-n-ai/pai-pathfinder/internal/curriculum"
	"github.com/p-n-ai/pai-pathfinder/internal/graph"
	"github.com/p-n-ai/pai-pathfinder/internal/progress"
)

var (
	// ErrInvalidArgument is returned for missing or out-of-range input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned when a requested concept is not in the catalog.
	ErrNotFound = graph.ErrNotFound
	// ErrNoPath is returned when no path leads to the goal.
	ErrNoPath = graph.ErrNoPath
)

// ServiceConfig holds dependencies for the pathfinder service.
type ServiceConfig struct {
	Catalog  curriculum.Catalog
	Store    progress.Store
	Events   progress.EventLogger
	Logger   *slog.Logger
	MaxPaths int // cap on enumerated paths per recommendation; 0 or negative = unlimited
	Now      func() time.Time
}

// Service answers recommendation requests and applies mastery changes.
type Service struct {
	catalog  curriculum.Catalog
	store    progress.Store
	events   progress.EventLogger
	logger   *slog.Logger
	maxPaths int
	now      func() time.Time
}

// NewService creates a pathfinder service. A nil store falls back to an
// in-memory one; a nil event logger discards events.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	store := cfg.Store
	if store == nil {
		store = progress.NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = progress.NopEventLogger{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// With a cap, the best path is the cheapest of the first maxPaths
	// candidates only.
	maxPaths := max(cfg.MaxPaths, 0)
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		catalog:  cfg.Catalog,
		store:    store,
		events:   events,
		logger:   logger.With("component", "pathfinder"),
		maxPaths: maxPaths,
		now:      now,
	}, nil
}

// Recommend enumerates every path from currentID (or from a root concept when
// currentID is graph.Root) to goalID, ranks them by the user's mastery and
// returns the cheapest one together with all candidates.
func (s *Service) Recommend(ctx context.Context, userID, goalID, currentID string) (Recommendation, error) {
	goalID, currentID = strings.TrimSpace(goalID), strings.TrimSpace(currentID)
	if userID == "" {
		return Recommendation{}, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	if goalID == "" {
		return Recommendation{}, fmt.Errorf("%w: goal concept id is required", ErrInvalidArgument)
	}
	if currentID == "" {
		return Recommendation{}, fmt.Errorf("%w: current concept id is required", ErrInvalidArgument)
	}

	concepts, err := s.catalog.ListConcepts(ctx)
	if err != nil {
		return Recommendation{}, fmt.Errorf("list concepts: %w", err)
	}

	g := buildGraph(concepts)
	paths, err := graph.EnumeratePaths(g, currentID, goalID, graph.Options{MaxPaths: s.maxPaths})
	if err != nil {
		return Recommendation{}, err
	}

	mastery, err := s.masteryMap(ctx, userID)
	if err != nil {
		return Recommendation{}, err
	}

	ranked := RankPaths(paths, mastery, curriculum.Index(concepts))
	s.logger.Debug("recommendation computed",
		"user_id", userID,
		"goal", goalID,
		"start", currentID,
		"paths", len(ranked),
		"best_cost", ranked[0].TotalCost,
	)
	return Recommendation{BestPath: ranked[0], AllPaths: ranked}, nil
}

// GetMastery returns the user's normalized mastery of a concept, 0 when there
// is no record.
func (s *Service) GetMastery(ctx context.Context, userID, conceptID string) (float64, error) {
	rec, found, err := s.store.Get(ctx, userID, strings.TrimSpace(conceptID))
	if err != nil {
		return 0, fmt.Errorf("get mastery: %w", err)
	}
	if !found {
		return 0, nil
	}
	return rec.MasteryScore, nil
}

// MasteryUpdate is one observed score for a concept. Content flags sent with
// it are stored in the same write as the score.
type MasteryUpdate struct {
	UserID          string
	ConceptID       string
	Score           float64 // 0-100
	CourseID        string
	DescriptionRead bool
	VideoWatched    bool
}

// MasteryResult reports the record after an update.
type MasteryResult struct {
	ConceptID       string          `json:"conceptId"`
	Mastered        bool            `json:"mastered"`
	MasteryScore    float64         `json:"masteryScore"`
	Attempts        int             `json:"attempts"`
	Status          progress.Status `json:"status"`
	DescriptionRead bool            `json:"descriptionRead"`
	VideoWatched    bool            `json:"videoWatched"`
	NewlyUnlocked   []string        `json:"newlyUnlocked"`
}

// UpdateMastery folds a score into the user's record and then unlocks every
// concept whose prerequisites are now mastered. Unlocking runs after the
// score is committed; if it fails the error is logged and the update still
// succeeds.
func (s *Service) UpdateMastery(ctx context.Context, upd MasteryUpdate) (MasteryResult, error) {
	conceptID := strings.TrimSpace(upd.ConceptID)
	if upd.UserID == "" || conceptID == "" {
		return MasteryResult{}, fmt.Errorf("%w: user id and concept id are required", ErrInvalidArgument)
	}
	if err := progress.ValidatePercent(upd.Score); err != nil {
		return MasteryResult{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	concepts, err := s.requireConcept(ctx, conceptID)
	if err != nil {
		return MasteryResult{}, err
	}

	now := s.now()
	viewed := upd.DescriptionRead || upd.VideoWatched
	var newlyMastered bool
	rec, err := s.store.Update(ctx, upd.UserID, conceptID, func(r *progress.Record) error {
		if viewed {
			r.MarkViewed(upd.DescriptionRead, upd.VideoWatched, now)
		}
		newlyMastered = r.ApplyAttempt(upd.Score, upd.CourseID, now)
		return nil
	})
	if err != nil {
		return MasteryResult{}, fmt.Errorf("update mastery: %w", err)
	}

	if viewed {
		s.logEvent(ctx, progress.Event{
			UserID:    upd.UserID,
			ConceptID: conceptID,
			EventType: progress.EventContentViewed,
			Data: map[string]any{
				"description_read": upd.DescriptionRead,
				"video_watched":    upd.VideoWatched,
			},
			CreatedAt: now,
		})
	}
	s.logEvent(ctx, progress.Event{
		UserID:    upd.UserID,
		ConceptID: conceptID,
		EventType: progress.EventMasteryUpdated,
		Data: map[string]any{
			"score":         upd.Score,
			"mastery_score": rec.Percent(),
			"attempts":      rec.Attempts,
		},
		CreatedAt: now,
	})
	if newlyMastered {
		s.logEvent(ctx, progress.Event{
			UserID:    upd.UserID,
			ConceptID: conceptID,
			EventType: progress.EventConceptMastered,
			Data:      map[string]any{"attempts": rec.Attempts},
			CreatedAt: now,
		})
	}

	result := MasteryResult{
		ConceptID:       conceptID,
		Mastered:        rec.Mastered,
		MasteryScore:    rec.Percent(),
		Attempts:        rec.Attempts,
		Status:          rec.Status,
		DescriptionRead: rec.DescriptionRead,
		VideoWatched:    rec.VideoWatched,
		NewlyUnlocked:   []string{},
	}

	_, created, err := s.unlock(ctx, upd.UserID, concepts)
	if err != nil {
		s.logger.Error("unlock propagation failed",
			"user_id", upd.UserID,
			"concept_id", conceptID,
			"error", err,
		)
		return result, nil
	}
	result.NewlyUnlocked = created
	return result, nil
}

// UnlockReachable returns, in catalog order, every concept whose
// prerequisites the user has all mastered, and creates a zero-progress record
// for each one that has none. Calling it again without a mastery change
// returns the same set and creates nothing.
func (s *Service) UnlockReachable(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	concepts, err := s.catalog.ListConcepts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	unlocked, _, err := s.unlock(ctx, userID, concepts)
	return unlocked, err
}

// ResetProgress returns the user's record for a concept to the untouched
// state. Attempts are kept; score, mastery and the viewing flags are cleared.
// Concepts already unlocked through this one stay unlocked.
func (s *Service) ResetProgress(ctx context.Context, userID, conceptID string) (progress.Record, error) {
	conceptID = strings.TrimSpace(conceptID)
	if userID == "" || conceptID == "" {
		return progress.Record{}, fmt.Errorf("%w: user id and concept id are required", ErrInvalidArgument)
	}
	if _, err := s.requireConcept(ctx, conceptID); err != nil {
		return progress.Record{}, err
	}

	now := s.now()
	rec, err := s.store.Update(ctx, userID, conceptID, func(r *progress.Record) error {
		r.Reset(now)
		return nil
	})
	if err != nil {
		return progress.Record{}, fmt.Errorf("reset progress: %w", err)
	}

	s.logEvent(ctx, progress.Event{
		UserID:    userID,
		ConceptID: conceptID,
		EventType: progress.EventProgressReset,
		Data:      map[string]any{"attempts": rec.Attempts},
		CreatedAt: now,
	})
	return rec, nil
}

// RecordContentView marks a concept's description or video as consumed
// without counting an attempt.
func (s *Service) RecordContentView(ctx context.Context, userID, conceptID string, descriptionRead, videoWatched bool) (progress.Record, error) {
	conceptID = strings.TrimSpace(conceptID)
	if userID == "" || conceptID == "" {
		return progress.Record{}, fmt.Errorf("%w: user id and concept id are required", ErrInvalidArgument)
	}
	if !descriptionRead && !videoWatched {
		return progress.Record{}, fmt.Errorf("%w: nothing to record", ErrInvalidArgument)
	}
	if _, err := s.requireConcept(ctx, conceptID); err != nil {
		return progress.Record{}, err
	}

	now := s.now()
	rec, err := s.store.Update(ctx, userID, conceptID, func(r *progress.Record) error {
		r.MarkViewed(descriptionRead, videoWatched, now)
		return nil
	})
	if err != nil {
		return progress.Record{}, fmt.Errorf("record content view: %w", err)
	}

	s.logEvent(ctx, progress.Event{
		UserID:    userID,
		ConceptID: conceptID,
		EventType: progress.EventContentViewed,
		Data: map[string]any{
			"description_read": descriptionRead,
			"video_watched":    videoWatched,
		},
		CreatedAt: now,
	})
	return rec, nil
}

// unlock computes the unlocked set over concepts and materializes missing
// records. It returns the unlocked ids and the ids whose record it created.
func (s *Service) unlock(ctx context.Context, userID string, concepts []curriculum.Concept) ([]string, []string, error) {
	records, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list progress: %w", err)
	}

	existing := make(map[string]bool, len(records))
	mastered := make(map[string]bool, len(records))
	for _, rec := range records {
		existing[rec.ConceptID] = true
		if rec.Mastered {
			mastered[rec.ConceptID] = true
		}
	}

	unlocked := []string{}
	created := []string{}
	seen := make(map[string]bool, len(concepts))
	now := s.now()
	for _, c := range concepts {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if !prerequisitesMastered(c, mastered) {
			continue
		}
		unlocked = append(unlocked, c.ID)
		if existing[c.ID] {
			continue
		}

		stub := progress.NewRecord(userID, c.ID, now)
		stub.CourseID = c.CourseID
		ok, err := s.store.CreateIfMissing(ctx, stub)
		if err != nil {
			return nil, nil, fmt.Errorf("create progress for %s: %w", c.ID, err)
		}
		if !ok {
			continue
		}
		created = append(created, c.ID)
		s.logEvent(ctx, progress.Event{
			UserID:    userID,
			ConceptID: c.ID,
			EventType: progress.EventConceptUnlocked,
			CreatedAt: now,
		})
	}

	if len(created) > 0 {
		s.logger.Info("concepts unlocked", "user_id", userID, "concepts", created)
	}
	return unlocked, created, nil
}

func prerequisitesMastered(c curriculum.Concept, mastered map[string]bool) bool {
	for _, pre := range c.Prerequisites {
		if !mastered[pre] {
			return false
		}
	}
	return true
}

func (s *Service) masteryMap(ctx context.Context, userID string) (map[string]float64, error) {
	records, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	mastery := make(map[string]float64, len(records))
	for _, rec := range records {
		mastery[rec.ConceptID] = rec.MasteryScore
	}
	return mastery, nil
}

// requireConcept loads the catalog and checks that id is in it.
func (s *Service) requireConcept(ctx context.Context, id string) ([]curriculum.Concept, error) {
	concepts, err := s.catalog.ListConcepts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	for _, c := range concepts {
		if c.ID == id {
			return concepts, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *Service) logEvent(ctx context.Context, event progress.Event) {
	if err := s.events.LogEvent(ctx, event); err != nil {
		s.logger.Warn("failed to log event", "type", event.EventType, "user_id", event.UserID, "error", err)
	}
}

func buildGraph(concepts []curriculum.Concept) *graph.Graph {
	nodes := make([]graph.Node, 0, len(concepts))
	for _, c := range concepts {
		nodes = append(nodes, graph.Node{ID: c.ID, Prerequisites: c.Prerequisites})
	}
	return graph.Build(nodes)
}
