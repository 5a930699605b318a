// Package curriculum provides the concept catalog: the ordered list of
// concepts and their prerequisites that the path engine reads on every request.
package curriculum

import "context"

// Concept is an atomic learning unit in the catalog.
type Concept struct {
	ID            string   `yaml:"id" json:"id"`
	Title         string   `yaml:"title" json:"title"`
	CourseID      string   `yaml:"course_id" json:"course_id,omitempty"`
	Prerequisites []string `yaml:"prerequisites" json:"prerequisites"`
	Position      int      `yaml:"position" json:"position,omitempty"`
}

// IsRoot reports whether the concept has no prerequisites.
func (c Concept) IsRoot() bool {
	return len(c.Prerequisites) == 0
}

// Catalog is a read-only source of concepts.
type Catalog interface {
	// ListConcepts returns every concept in catalog order.
	ListConcepts(ctx context.Context) ([]Concept, error)
}

// Index maps concept ids to concepts. Earlier entries win on duplicate ids.
func Index(concepts []Concept) map[string]Concept {
	idx := make(map[string]Concept, len(concepts))
	for _, c := range concepts {
		if _, ok := idx[c.ID]; !ok {
			idx[c.ID] = c
		}
	}
	return idx
}
