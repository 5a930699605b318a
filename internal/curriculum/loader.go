package curriculum

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

const conceptSchema = `{
  "type": "object",
  "required": ["id", "title"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "title": {"type": "string", "minLength": 1},
    "course_id": {"type": "string"},
    "position": {"type": "integer"},
    "prerequisites": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "uniqueItems": true
    }
  }
}`

var schema = mustCompileSchema(conceptSchema)

// Loader loads concepts from a directory of YAML files, one concept per file.
type Loader struct {
	rootDir  string
	concepts map[string]Concept
	order    []string
	mu       sync.RWMutex
}

// NewLoader creates a new curriculum loader and loads all content.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:  rootDir,
		concepts: make(map[string]Concept),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "concepts", len(l.concepts))
	return l, nil
}

// GetConcept returns a concept by ID.
func (l *Loader) GetConcept(id string) (Concept, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.concepts[id]
	return c, ok
}

// AllConcepts returns all loaded concepts ordered by position, then by file path.
func (l *Loader) AllConcepts() []Concept {
	l.mu.RLock()
	defer l.mu.RUnlock()
	concepts := make([]Concept, 0, len(l.order))
	for _, id := range l.order {
		concepts = append(concepts, l.concepts[id])
	}
	return concepts
}

// ListConcepts implements Catalog.
func (l *Loader) ListConcepts(_ context.Context) ([]Concept, error) {
	return l.AllConcepts(), nil
}

func (l *Loader) loadAll() error {
	if _, err := os.Stat(l.rootDir); err != nil {
		return err
	}

	err := filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		if strings.HasSuffix(path, ".assessments.yaml") || strings.HasSuffix(path, ".examples.yaml") {
			return nil // Skip non-concept YAML
		}
		return l.loadConcept(path)
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	slices.SortStableFunc(l.order, func(a, b string) int {
		return cmp.Compare(l.concepts[a].Position, l.concepts[b].Position)
	})
	l.mu.Unlock()
	return nil
}

func (l *Loader) loadConcept(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid concept YAML", "path", path, "error", err)
		return nil
	}
	if _, ok := doc["id"]; !ok {
		return nil // Not a concept file
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		slog.Warn("skipping unreadable concept", "path", path, "error", err)
		return nil
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		slog.Warn("skipping concept failing schema", "path", path, "errors", problems)
		return nil
	}

	var concept Concept
	if err := yaml.Unmarshal(data, &concept); err != nil {
		slog.Warn("skipping invalid concept YAML", "path", path, "error", err)
		return nil
	}
	concept = normalize(concept)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.concepts[concept.ID]; dup {
		slog.Warn("duplicate concept id, keeping first", "id", concept.ID, "path", path)
		return nil
	}
	l.concepts[concept.ID] = concept
	l.order = append(l.order, concept.ID)

	return nil
}

// normalize trims ids and puts titles in NFC so that equal titles compare
// equal regardless of how the authoring tool encoded them.
func normalize(c Concept) Concept {
	c.ID = strings.TrimSpace(c.ID)
	c.CourseID = strings.TrimSpace(c.CourseID)
	c.Title = norm.NFC.String(strings.TrimSpace(c.Title))
	prereqs := make([]string, 0, len(c.Prerequisites))
	for _, p := range c.Prerequisites {
		if p = strings.TrimSpace(p); p != "" {
			prereqs = append(prereqs, p)
		}
	}
	c.Prerequisites = prereqs
	return c
}

func mustCompileSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("curriculum: invalid concept schema: %v", err))
	}
	return s
}
