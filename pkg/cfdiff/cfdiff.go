// Package cfdiff propagates tree-diff change labels onto CFG edges.
//
// CFGs of the two versions are paired through their entry statements. For
// each pair, edges are matched by condition and polarity (conditional
// edges) or by source statement (unconditional edges), and labelled with
// the change they represent.
package cfdiff

import (
	"golang.org/x/exp/slices"

	"github.com/l3aro/go-commit-miner/pkg/ast"
	"github.com/l3aro/go-commit-miner/pkg/astdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfg"
)

// Pair holds the CFGs of one function in both versions. Either side is nil
// when the function exists in only one version.
type Pair struct {
	Src *cfg.CFG
	Dst *cfg.CFG
}

// Name returns the function name of the pair, preferring the destination.
func (p Pair) Name() string {
	if p.Dst != nil {
		return p.Dst.Name
	}
	if p.Src != nil {
		return p.Src.Name
	}
	return ""
}

// Difference pairs the CFGs of both versions and labels every edge of every
// CFG. Pairs are returned in destination order followed by source-only
// functions in source order.
func Difference(m *astdiff.Mapping, src, dst []*cfg.CFG) []Pair {
	byEntry := make(map[ast.NodeID]*cfg.CFG, len(src))
	for _, g := range src {
		if g.EntryStatement() != nil {
			byEntry[g.EntryStatement().ID] = g
		}
	}

	paired := make(map[*cfg.CFG]bool)
	var pairs []Pair
	for _, d := range dst {
		var s *cfg.CFG
		if d.EntryStatement() != nil {
			if id, ok := m.Partner(astdiff.Destination, d.EntryStatement().ID); ok {
				s = byEntry[id]
			}
		}
		if s != nil && !paired[s] {
			paired[s] = true
			Edges(m, s, d)
			pairs = append(pairs, Pair{Src: s, Dst: d})
			continue
		}
		labelAll(d, astdiff.Inserted)
		pairs = append(pairs, Pair{Dst: d})
	}
	for _, s := range src {
		if !paired[s] {
			labelAll(s, astdiff.Removed)
			pairs = append(pairs, Pair{Src: s})
		}
	}
	return pairs
}

func labelAll(g *cfg.CFG, c astdiff.ChangeType) {
	for _, e := range g.Edges {
		e.Change = c
		e.Diverged = false
	}
}

// MapNodes fills Node.Mapped on both CFGs from the statement mapping.
func MapNodes(m *astdiff.Mapping, src, dst *cfg.CFG) {
	for _, n := range src.Nodes {
		n.Mapped = cfg.NoNode
	}
	for _, n := range dst.Nodes {
		n.Mapped = cfg.NoNode
	}
	link := func(s, d cfg.NodeID) {
		src.Nodes[s].Mapped = d
		dst.Nodes[d].Mapped = s
	}
	link(src.Entry, dst.Entry)
	link(src.Exit, dst.Exit)

	for _, d := range dst.Nodes {
		if d.Stmt == nil {
			continue
		}
		p := m.PartnerNode(astdiff.Destination, d.Stmt)
		if p == nil {
			continue
		}
		if s, ok := src.NodeFor(p); ok && s.Type == d.Type {
			link(s.ID, d.ID)
		}
	}
}

// Edges labels the edges of a CFG pair. Conditional edges match when their
// conditions are mapped and their polarity agrees; unconditional edges
// match when their source statements are mapped. A matched pair whose
// condition was updated is Updated. Edges whose targets do not correspond
// are flagged Diverged.
func Edges(m *astdiff.Mapping, src, dst *cfg.CFG) {
	MapNodes(m, src, dst)

	matched := make(map[cfg.EdgeID]cfg.EdgeID)
	for _, e := range dst.Edges {
		se := counterpart(m, astdiff.Destination, dst, src, e)
		e.Change, e.Diverged = label(m, astdiff.Destination, dst, e, se)
		if se != nil {
			if _, taken := matched[se.ID]; !taken {
				matched[se.ID] = e.ID
			}
		}
	}

	for _, e := range src.Edges {
		if id, ok := matched[e.ID]; ok {
			d := dst.Edges[id]
			e.Change, e.Diverged = d.Change, d.Diverged
			continue
		}
		se := counterpart(m, astdiff.Source, src, dst, e)
		e.Change, e.Diverged = label(m, astdiff.Source, src, e, se)
	}
}

// counterpart finds the edge of other that plays the role of e in g.
func counterpart(m *astdiff.Mapping, v astdiff.Version, g, other *cfg.CFG, e *cfg.Edge) *cfg.Edge {
	from := g.Nodes[e.From].Mapped
	if e.Condition != nil {
		p := m.PartnerNode(v, e.Condition)
		if p == nil {
			return nil
		}
		var candidates []*cfg.Edge
		for _, oe := range other.Edges {
			if oe.Condition == p && oe.Negated == e.Negated {
				candidates = append(candidates, oe)
			}
		}
		// Prefer the edge leaving the mapped source node.
		slices.SortStableFunc(candidates, func(a, b *cfg.Edge) bool {
			return a.From == from && b.From != from
		})
		if len(candidates) == 0 {
			return nil
		}
		return candidates[0]
	}

	if from == cfg.NoNode {
		return nil
	}
	for _, id := range other.Nodes[from].Out {
		if oe := other.Edges[id]; oe.Condition == nil {
			return oe
		}
	}
	return nil
}

func label(m *astdiff.Mapping, v astdiff.Version, g *cfg.CFG, e, oe *cfg.Edge) (astdiff.ChangeType, bool) {
	if oe == nil {
		if e.Condition != nil && m.PartnerNode(v, e.Condition) != nil {
			// The condition survived but this branch no longer exists.
			return astdiff.Updated, false
		}
		if v == astdiff.Destination {
			return astdiff.Inserted, false
		}
		return astdiff.Removed, false
	}

	change := astdiff.Unchanged
	if e.Condition != nil && m.ChangeOf(v, e.Condition) == astdiff.Updated {
		change = astdiff.Updated
	}
	target := g.Nodes[e.To].Mapped
	diverged := target != cfg.NoNode && target != oe.To
	return change, diverged
}
