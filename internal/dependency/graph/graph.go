// Package graph answers impact queries over the dependency edges of one
// organization. Tool ids are mapped to dense indices and dependents are kept
// as a reverse adjacency list, so repeated traversals allocate little.
package graph

import (
	"sort"

	"github.com/bwmarrin/snowflake"
)

// DefaultMaxDepth bounds traversal independently of cycle detection.
const DefaultMaxDepth = 5

// Edge states that Source depends on Target.
type Edge struct {
	Source   snowflake.ID
	Target   snowflake.ID
	Type     string
	Strength float64
}

// Impact summarizes the tools that transitively depend on ToolID.
type Impact struct {
	ToolID          snowflake.ID `json:"tool_id"`
	TotalDependents int          `json:"total_dependents"`
	MaxDepth        int          `json:"max_depth"`
	AvgStrength     float64      `json:"avg_strength"`
}

type arc struct {
	id       int
	node     int
	strength float64
}

type edgeKey struct {
	source, target int
	kind           string
}

type Graph struct {
	index      map[snowflake.ID]int
	ids        []snowflake.ID
	dependents [][]arc
	arcs       int
	maxDepth   int

	droppedSelfLoops int
	duplicateEdges   int
}

type Option func(*Graph)

// WithMaxDepth overrides DefaultMaxDepth. Non-positive values are ignored.
func WithMaxDepth(depth int) Option {
	return func(g *Graph) {
		if depth > 0 {
			g.maxDepth = depth
		}
	}
}

// New builds a graph from the given tools and edges. Tools referenced only by
// edges are added as nodes. Self-loops are dropped and repeated
// (source, target, type) edges keep the first occurrence.
func New(tools []snowflake.ID, edges []Edge, opts ...Option) *Graph {
	g := &Graph{
		index:    make(map[snowflake.ID]int, len(tools)),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, id := range tools {
		g.node(id)
	}

	seen := make(map[edgeKey]struct{}, len(edges))
	for _, e := range edges {
		if e.Source == e.Target {
			g.droppedSelfLoops++
			continue
		}
		src, dst := g.node(e.Source), g.node(e.Target)
		key := edgeKey{source: src, target: dst, kind: e.Type}
		if _, dup := seen[key]; dup {
			g.duplicateEdges++
			continue
		}
		seen[key] = struct{}{}
		g.dependents[dst] = append(g.dependents[dst], arc{id: g.arcs, node: src, strength: clampStrength(e.Strength)})
		g.arcs++
	}
	return g
}

func (g *Graph) node(id snowflake.ID) int {
	if idx, ok := g.index[id]; ok {
		return idx
	}
	idx := len(g.ids)
	g.index[id] = idx
	g.ids = append(g.ids, id)
	g.dependents = append(g.dependents, nil)
	return idx
}

// Nodes returns every tool id in insertion order.
func (g *Graph) Nodes() []snowflake.ID {
	out := make([]snowflake.ID, len(g.ids))
	copy(out, g.ids)
	return out
}

func (g *Graph) MaxTraversalDepth() int { return g.maxDepth }

func (g *Graph) DroppedSelfLoops() int { return g.droppedSelfLoops }

func (g *Graph) DuplicateEdges() int { return g.duplicateEdges }

// DirectDependents returns the distinct tools with an edge targeting toolID,
// sorted by id.
func (g *Graph) DirectDependents(toolID snowflake.ID) []snowflake.ID {
	idx, ok := g.index[toolID]
	if !ok {
		return nil
	}
	seen := make(map[int]struct{}, len(g.dependents[idx]))
	out := make([]snowflake.ID, 0, len(g.dependents[idx]))
	for _, a := range g.dependents[idx] {
		if _, dup := seen[a.node]; dup {
			continue
		}
		seen[a.node] = struct{}{}
		out = append(out, g.ids[a.node])
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// path is the chain of nodes on the current branch. Each recursive call
// receives its own value, so sibling branches never see each other's nodes.
type path struct {
	node   int
	parent *path
}

func (p path) contains(node int) bool {
	for cur := &p; cur != nil; cur = cur.parent {
		if cur.node == node {
			return true
		}
	}
	return false
}

type walk struct {
	g         *Graph
	reached   []bool
	arcSeen   []bool
	dependent int
	maxDepth  int
	strength  float64
	arcCount  int
}

func (w *walk) visit(p path, depth int) {
	if depth >= w.g.maxDepth {
		return
	}
	for _, a := range w.g.dependents[p.node] {
		if p.contains(a.node) {
			continue
		}
		if !w.arcSeen[a.id] {
			w.arcSeen[a.id] = true
			w.strength += a.strength
			w.arcCount++
		}
		if !w.reached[a.node] {
			w.reached[a.node] = true
			w.dependent++
		}
		if depth+1 > w.maxDepth {
			w.maxDepth = depth + 1
		}
		w.visit(path{node: a.node, parent: &p}, depth+1)
	}
}

// ImpactSet walks dependents of toolID up to the depth cap. A node already on
// the current branch is not revisited, but the same node reached by another
// route is still explored. AvgStrength is the mean strength of the distinct
// edges traversed.
func (g *Graph) ImpactSet(toolID snowflake.ID) Impact {
	impact := Impact{ToolID: toolID}
	idx, ok := g.index[toolID]
	if !ok {
		return impact
	}

	w := &walk{
		g:       g,
		reached: make([]bool, len(g.ids)),
		arcSeen: make([]bool, g.arcs),
	}
	w.reached[idx] = true
	w.visit(path{node: idx}, 0)

	impact.TotalDependents = w.dependent
	impact.MaxDepth = w.maxDepth
	if w.arcCount > 0 {
		impact.AvgStrength = w.strength / float64(w.arcCount)
	}
	return impact
}

// ImpactAll computes the impact set of every node.
func (g *Graph) ImpactAll() map[snowflake.ID]Impact {
	out := make(map[snowflake.ID]Impact, len(g.ids))
	for _, id := range g.ids {
		out[id] = g.ImpactSet(id)
	}
	return out
}

// MaxDependents is the largest TotalDependents in an ImpactAll result.
func MaxDependents(impacts map[snowflake.ID]Impact) int {
	most := 0
	for _, impact := range impacts {
		if impact.TotalDependents > most {
			most = impact.TotalDependents
		}
	}
	return most
}

func clampStrength(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
