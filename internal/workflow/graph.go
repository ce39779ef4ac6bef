package workflow

import (
	"fmt"
	"slices"
)

// Edge is a single (from, action) -> to rule.
type Edge[S ~string] struct {
	From   S
	Action Action
	To     S
}

type edgeKey[S ~string] struct {
	from   S
	action Action
}

// Graph is an immutable transition table for one state machine.
type Graph[S ~string] struct {
	next  map[edgeKey[S]]S
	edges []Edge[S]
}

// NewGraph builds a graph over the given status set. Unknown statuses,
// empty actions and duplicate (from, action) pairs are rejected.
func NewGraph[S ~string](known []S, edges []Edge[S]) (*Graph[S], error) {
	g := &Graph[S]{
		next:  make(map[edgeKey[S]]S, len(edges)),
		edges: make([]Edge[S], 0, len(edges)),
	}
	for i, e := range edges {
		if !slices.Contains(known, e.From) {
			return nil, fmt.Errorf("edge %d: unknown status %q", i, e.From)
		}
		if !slices.Contains(known, e.To) {
			return nil, fmt.Errorf("edge %d: unknown status %q", i, e.To)
		}
		if e.Action == "" {
			return nil, fmt.Errorf("edge %d: action is empty", i)
		}
		key := edgeKey[S]{from: e.From, action: e.Action}
		if _, dup := g.next[key]; dup {
			return nil, fmt.Errorf("edge %d: duplicate action %q from %q", i, e.Action, e.From)
		}
		g.next[key] = e.To
		g.edges = append(g.edges, e)
	}
	return g, nil
}

// Next returns the status reached by applying action in from.
func (g *Graph[S]) Next(from S, action Action) (S, bool) {
	to, ok := g.next[edgeKey[S]{from: from, action: action}]
	return to, ok
}

// ActionTo returns the first action, in declaration order, that moves from
// one status to another.
func (g *Graph[S]) ActionTo(from, to S) (Action, bool) {
	for _, e := range g.edges {
		if e.From == from && e.To == to {
			return e.Action, true
		}
	}
	return "", false
}

// Edges returns a copy of the graph's edges in declaration order.
func (g *Graph[S]) Edges() []Edge[S] {
	return slices.Clone(g.edges)
}

// Graphs bundles the two transition tables loaded at startup.
type Graphs struct {
	Assignment *Graph[AssignmentStatus]
	Review     *Graph[ReviewStatus]
}

// EdgeSpec is the untyped form of an edge as read from configuration or a
// lookup table.
type EdgeSpec struct {
	From   string `yaml:"from" json:"from"`
	Action string `yaml:"action" json:"action"`
	To     string `yaml:"to" json:"to"`
}

// BuildGraphs converts untyped edge specs into typed graphs.
func BuildGraphs(assignment, review []EdgeSpec) (*Graphs, error) {
	ag, err := NewGraph(AssignmentStatuses, convertEdges[AssignmentStatus](assignment))
	if err != nil {
		return nil, fmt.Errorf("assignment graph: %w", err)
	}
	rg, err := NewGraph(ReviewStatuses, convertEdges[ReviewStatus](review))
	if err != nil {
		return nil, fmt.Errorf("review graph: %w", err)
	}
	return &Graphs{Assignment: ag, Review: rg}, nil
}

func convertEdges[S ~string](specs []EdgeSpec) []Edge[S] {
	edges := make([]Edge[S], 0, len(specs))
	for _, s := range specs {
		edges = append(edges, Edge[S]{From: S(s.From), Action: Action(s.Action), To: S(s.To)})
	}
	return edges
}
