package pathfinder

import (
	"math"
	"sort"

	"github.com/p-n-ai/pai-pathfinder/internal/curriculum"
)

// ReadinessThreshold is the mastery a prerequisite needs before a dependent
// concept is shown unlocked on a path, and the mastery at which a node stops
// costing anything. It is deliberately lower than progress.MasteryThreshold.
const ReadinessThreshold = 0.70

// PrerequisiteMastery is one prerequisite's mastery as used for lock status.
type PrerequisiteMastery struct {
	PrerequisiteID string  `json:"prerequisiteId"`
	Score          float64 `json:"score"`
}

// PathNode is one concept on a ranked path.
type PathNode struct {
	ConceptID             string                `json:"conceptId"`
	Title                 string                `json:"title"`
	Locked                bool                  `json:"locked"`
	PrerequisiteMasteries []PrerequisiteMastery `json:"prerequisiteMasteries"`
}

// RankedPath is a path with its per-node annotations and total cost.
type RankedPath struct {
	Path         []string   `json:"path"`
	DetailedPath []PathNode `json:"detailedPath"`
	TotalCost    float64    `json:"totalCost"`
}

// Recommendation is the best path plus every ranked candidate, best first.
type Recommendation struct {
	BestPath RankedPath   `json:"bestPath"`
	AllPaths []RankedPath `json:"allPaths"`
}

// NodeCost is the cost of visiting a concept with the given mastery: the gap
// to full mastery while below the readiness threshold, zero at or above it.
func NodeCost(mastery float64) float64 {
	if mastery < ReadinessThreshold {
		return 1 - mastery
	}
	return 0
}

// RankPaths scores every path and sorts them by ascending total cost. Paths
// with equal cost keep their enumeration order, so the first element is the
// first minimum-cost path encountered. Concepts missing from mastery count as
// zero; concepts missing from concepts get an empty title and no
// prerequisites.
func RankPaths(paths [][]string, mastery map[string]float64, concepts map[string]curriculum.Concept) []RankedPath {
	ranked := make([]RankedPath, 0, len(paths))
	for _, path := range paths {
		ranked = append(ranked, rankPath(path, mastery, concepts))
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalCost < ranked[j].TotalCost
	})
	return ranked
}

func rankPath(path []string, mastery map[string]float64, concepts map[string]curriculum.Concept) RankedPath {
	rp := RankedPath{
		Path:         append([]string(nil), path...),
		DetailedPath: make([]PathNode, 0, len(path)),
	}

	var total float64
	for _, id := range path {
		total += NodeCost(mastery[id])

		concept := concepts[id]
		node := PathNode{
			ConceptID:             id,
			Title:                 concept.Title,
			PrerequisiteMasteries: make([]PrerequisiteMastery, 0, len(concept.Prerequisites)),
		}
		for _, pre := range concept.Prerequisites {
			score := mastery[pre]
			node.PrerequisiteMasteries = append(node.PrerequisiteMasteries, PrerequisiteMastery{
				PrerequisiteID: pre,
				Score:          score,
			})
			if score < ReadinessThreshold {
				node.Locked = true
			}
		}
		rp.DetailedPath = append(rp.DetailedPath, node)
	}

	// Sums like 0.7+1.0 should read back as 1.7.
	rp.TotalCost = math.Round(total*1e9) / 1e9
	return rp
}
