package progress

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists mastery records. It is the single source of truth for
// whether a user has mastered a concept.
type Store interface {
	// Get returns the record for (userID, conceptID) and whether it exists.
	Get(ctx context.Context, userID, conceptID string) (Record, bool, error)
	// ListByUser returns every record of a user.
	ListByUser(ctx context.Context, userID string) ([]Record, error)
	// CreateIfMissing inserts rec unless a record for the same user and
	// concept exists. It reports whether a record was created.
	CreateIfMissing(ctx context.Context, rec Record) (bool, error)
	// Update runs fn on the current record (a zero-progress record if none
	// exists) and persists the result. Concurrent updates of the same user and
	// concept are serialised, so fn always sees the latest committed state.
	// If fn returns an error nothing is written.
	Update(ctx context.Context, userID, conceptID string, fn func(*Record) error) (Record, error)
}

// MemoryStore is an in-memory implementation of Store for a single process.
// Read-modify-write cycles hold a lock scoped to the (user, concept) key, so
// unrelated records never wait on each other.
type MemoryStore struct {
	records map[string]map[string]*Record // user -> concept -> record
	mu      sync.RWMutex
	locks   keyedMutex
}

// NewMemoryStore creates a new in-memory mastery store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]map[string]*Record),
	}
}

func (s *MemoryStore) Get(ctx context.Context, userID, conceptID string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID][conceptID]
	if !ok {
		return Record{}, false, nil
	}
	return rec.clone(), true, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records[userID]))
	for _, rec := range s.records[userID] {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConceptID < out[j].ConceptID })
	return out, nil
}

func (s *MemoryStore) CreateIfMissing(_ context.Context, rec Record) (bool, error) {
	if rec.UserID == "" || rec.ConceptID == "" {
		return false, fmt.Errorf("user_id and concept_id are required")
	}

	unlock := s.locks.Lock(recordKey(rec.UserID, rec.ConceptID))
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.UserID][rec.ConceptID]; ok {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.put(rec)
	return true, nil
}

func (s *MemoryStore) Update(ctx context.Context, userID, conceptID string, fn func(*Record) error) (Record, error) {
	if userID == "" || conceptID == "" {
		return Record{}, fmt.Errorf("user_id and concept_id are required")
	}

	unlock := s.locks.Lock(recordKey(userID, conceptID))
	defer unlock()

	rec, found, err := s.Get(ctx, userID, conceptID)
	if err != nil {
		return Record{}, err
	}
	if !found {
		rec = NewRecord(userID, conceptID, time.Now())
		rec.ID = uuid.NewString()
	}

	if err := fn(&rec); err != nil {
		return Record{}, err
	}
	rec.UserID, rec.ConceptID = userID, conceptID

	s.mu.Lock()
	s.put(rec)
	s.mu.Unlock()

	return rec.clone(), nil
}

// put stores a copy of rec. Callers hold s.mu.
func (s *MemoryStore) put(rec Record) {
	byConcept, ok := s.records[rec.UserID]
	if !ok {
		byConcept = make(map[string]*Record)
		s.records[rec.UserID] = byConcept
	}
	stored := rec.clone()
	byConcept[rec.ConceptID] = &stored
}

func (r Record) clone() Record {
	if r.MasteredAt != nil {
		at := *r.MasteredAt
		r.MasteredAt = &at
	}
	return r
}

func recordKey(userID, conceptID string) string {
	return userID + ":" + conceptID
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
