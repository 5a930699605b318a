package graph

import (
	"errors"
	"fmt"
)

// Root selects root mode in EnumeratePaths: the walk starts from concepts
// without prerequisites instead of a fixed concept.
const Root = "root"

var (
	// ErrNotFound is returned when the goal or an explicit start is not in the graph.
	ErrNotFound = errors.New("concept not found")
	// ErrNoPath is returned when the goal cannot be reached from the start.
	ErrNoPath = errors.New("no path to goal")
)

// Options tunes path enumeration.
type Options struct {
	// MaxPaths stops enumeration once this many paths were found. Zero means
	// no limit. The kept paths are the first ones in enumeration order.
	MaxPaths int
}

// EnumeratePaths returns every simple path from start to goal, following
// edges from a concept to its dependents, i.e. in the order a learner would
// take them. Each path includes both ends and contains a node at most once.
//
// When start is Root, roots are tried in catalog order and the paths of the
// first root that reaches the goal are returned; other roots are not merged in.
//
// Paths are produced depth-first with dependents visited in catalog order, so
// the result is deterministic for a given graph.
func EnumeratePaths(g *Graph, start, goal string, opts Options) ([][]string, error) {
	if !g.Has(goal) {
		return nil, fmt.Errorf("goal %q: %w", goal, ErrNotFound)
	}

	w := &walker{
		g:        g,
		goal:     goal,
		reaches:  g.reachesGoal(goal),
		onPath:   make(map[string]bool),
		maxPaths: opts.MaxPaths,
	}

	if start == Root {
		for _, root := range g.Roots() {
			if paths := w.from(root); len(paths) > 0 {
				return paths, nil
			}
		}
		return nil, fmt.Errorf("from any root to %q: %w", goal, ErrNoPath)
	}

	if !g.Has(start) {
		return nil, fmt.Errorf("start %q: %w", start, ErrNotFound)
	}
	paths := w.from(start)
	if len(paths) == 0 {
		return nil, fmt.Errorf("from %q to %q: %w", start, goal, ErrNoPath)
	}
	return paths, nil
}

// reachesGoal returns the set of nodes from which goal can be reached, found
// by walking prerequisite edges backwards from the goal. A node is marked
// visited on entry, so cycles terminate.
func (g *Graph) reachesGoal(goal string) map[string]bool {
	visited := map[string]bool{goal: true}
	stack := []string{goal}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range g.prereqs[id] {
			if !g.Has(p) || visited[p] {
				continue
			}
			visited[p] = true
			stack = append(stack, p)
		}
	}
	return visited
}

// walker holds the state of one enumeration. reaches is the visited set of
// the backwards search; onPath is the visiting set of the current branch.
type walker struct {
	g        *Graph
	goal     string
	reaches  map[string]bool
	onPath   map[string]bool
	path     []string
	out      [][]string
	maxPaths int
}

func (w *walker) from(start string) [][]string {
	w.out = nil
	w.path = w.path[:0]
	if !w.reaches[start] {
		return nil
	}
	w.walk(start)
	return w.out
}

// walk extends the current path with id. It returns true once the path limit
// is hit.
func (w *walker) walk(id string) bool {
	w.onPath[id] = true
	w.path = append(w.path, id)
	defer func() {
		w.path = w.path[:len(w.path)-1]
		delete(w.onPath, id)
	}()

	if id == w.goal {
		w.out = append(w.out, append([]string(nil), w.path...))
		return w.maxPaths > 0 && len(w.out) >= w.maxPaths
	}

	for _, next := range w.g.dependents[id] {
		if w.onPath[next] || !w.reaches[next] {
			continue
		}
		if w.walk(next) {
			return true
		}
	}
	return false
}
