// Package graph builds the concept prerequisite graph and enumerates learning
// paths through it.
//
// Edges point from a dependent concept to each of its prerequisites. The graph
// is expected to be acyclic but nothing enforces that when concepts are authored,
// so every traversal in this package tolerates cycles.
package graph

// Node is a single catalog entry as seen by the graph builder.
type Node struct {
	ID            string
	Prerequisites []string
}

// Graph is an immutable adjacency structure over concept ids. It is built per
// request and is safe for concurrent reads.
type Graph struct {
	order      []string
	prereqs    map[string][]string
	dependents map[string][]string
}

// Build converts a flat, ordered list of nodes into a Graph. Node order is
// preserved and determines the order of Roots and Dependents, which keeps path
// enumeration reproducible for the same catalog.
//
// Duplicate ids keep their first occurrence. Prerequisite ids that do not name
// a node in the list are kept in Prerequisites but produce no edge.
func Build(nodes []Node) *Graph {
	g := &Graph{
		order:      make([]string, 0, len(nodes)),
		prereqs:    make(map[string][]string, len(nodes)),
		dependents: make(map[string][]string, len(nodes)),
	}

	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		if _, ok := g.prereqs[n.ID]; ok {
			continue
		}
		g.order = append(g.order, n.ID)
		g.prereqs[n.ID] = dedupe(n.Prerequisites)
	}

	for _, id := range g.order {
		for _, p := range g.prereqs[id] {
			if _, ok := g.prereqs[p]; !ok {
				continue
			}
			g.dependents[p] = append(g.dependents[p], id)
		}
	}

	return g
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.prereqs[id]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Nodes returns all node ids in catalog order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.order...)
}

// Prerequisites returns the direct prerequisites of id.
func (g *Graph) Prerequisites(id string) []string {
	return append([]string(nil), g.prereqs[id]...)
}

// Dependents returns the nodes that list id as a direct prerequisite, in
// catalog order.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// Roots returns the nodes without prerequisites, in catalog order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.prereqs[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
