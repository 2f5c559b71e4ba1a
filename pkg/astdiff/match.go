package astdiff

import (
	"github.com/mitchellh/hashstructure/v2"
	"golang.org/x/exp/slices"

	"github.com/l3aro/go-commit-miner/pkg/ast"
)

// MatchOptions tunes the tree matcher.
type MatchOptions struct {
	// MinHeight is the smallest subtree height matched in the top-down
	// phase. Smaller subtrees are only matched under matched parents.
	MinHeight int
	// MinDice is the similarity threshold for matching containers in the
	// bottom-up phase.
	MinDice float64
}

// DefaultMatchOptions returns the matcher defaults.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{MinHeight: 2, MinDice: 0.5}
}

// nodeDigest is the hashed shape of a subtree.
type nodeDigest struct {
	Kind     ast.Kind
	Text     string
	Literal  ast.LiteralKind
	Computed bool
	Children []uint64
}

type treeInfo struct {
	file   *ast.File
	hash   []uint64
	height []int
	size   []int
}

func newTreeInfo(f *ast.File) *treeInfo {
	t := &treeInfo{
		file:   f,
		hash:   make([]uint64, f.Len()),
		height: make([]int, f.Len()),
		size:   make([]int, f.Len()),
	}
	nodes := f.Nodes()
	// Pre-order IDs: children always have larger IDs than their parent.
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		d := nodeDigest{Kind: n.Kind, Text: n.Text, Literal: n.Literal, Computed: n.Computed}
		h, sz := 1, 1
		for _, c := range n.Children {
			if c == nil {
				d.Children = append(d.Children, 0)
				continue
			}
			d.Children = append(d.Children, t.hash[c.ID])
			if t.height[c.ID]+1 > h {
				h = t.height[c.ID] + 1
			}
			sz += t.size[c.ID]
		}
		sum, err := hashstructure.Hash(d, hashstructure.FormatV2, nil)
		if err != nil {
			sum = uint64(n.Kind)
		}
		t.hash[n.ID] = sum
		t.height[n.ID] = h
		t.size[n.ID] = sz
	}
	return t
}

// Match computes a mapping between src and dst and labels every node.
//
// The matcher runs three phases: identical subtrees are paired top-down by
// hash, unmatched containers are paired bottom-up by the share of matched
// descendants, and remaining children of paired nodes are paired by kind
// and position. Unpaired destination nodes are Inserted, unpaired source
// nodes Removed; paired nodes whose label differs are Updated and paired
// nodes whose parents are not paired with each other are Moved.
func Match(src, dst *ast.File) *Mapping {
	return MatchWithOptions(src, dst, DefaultMatchOptions())
}

// MatchWithOptions is Match with explicit options.
func MatchWithOptions(src, dst *ast.File, opts MatchOptions) *Mapping {
	m := NewMapping(src, dst)
	if src.Root == nil || dst.Root == nil {
		return m
	}
	s, d := newTreeInfo(src), newTreeInfo(dst)

	matchIdentical(m, s, d, opts)
	m.Map(src.Root.ID, dst.Root.ID)
	matchContainers(m, s, d, opts)
	recoverChildren(m, s, d)
	classify(m)
	return m
}

func matchIdentical(m *Mapping, s, d *treeInfo, opts MatchOptions) {
	byHash := make(map[uint64][]*ast.Node)
	for _, n := range d.file.Nodes() {
		if d.height[n.ID] >= opts.MinHeight {
			byHash[d.hash[n.ID]] = append(byHash[d.hash[n.ID]], n)
		}
	}

	candidates := make([]*ast.Node, 0, s.file.Len())
	for _, n := range s.file.Nodes() {
		if s.height[n.ID] >= opts.MinHeight {
			candidates = append(candidates, n)
		}
	}
	slices.SortStableFunc(candidates, func(a, b *ast.Node) bool {
		return s.size[a.ID] > s.size[b.ID]
	})

	for _, sn := range candidates {
		if _, ok := m.Partner(Source, sn.ID); ok {
			continue
		}
		var best *ast.Node
		bestScore := -1
		for _, dn := range byHash[s.hash[sn.ID]] {
			if _, ok := m.Partner(Destination, dn.ID); ok {
				continue
			}
			score := 0
			if sn.Parent != nil && dn.Parent != nil && s.hash[sn.Parent.ID] == d.hash[dn.Parent.ID] {
				score += 2
			}
			if sn.Parent != nil && dn.Parent != nil && sn.Parent.Kind == dn.Parent.Kind {
				score++
			}
			if score > bestScore {
				best, bestScore = dn, score
			}
		}
		if best != nil {
			mapSubtree(m, sn, best)
		}
	}
}

func mapSubtree(m *Mapping, s, d *ast.Node) {
	m.Map(s.ID, d.ID)
	for i, c := range s.Children {
		if c != nil && i < len(d.Children) && d.Children[i] != nil {
			mapSubtree(m, c, d.Children[i])
		}
	}
}

func descendants(n *ast.Node) []*ast.Node {
	var out []*ast.Node
	ast.Inspect(n, func(x *ast.Node) bool {
		if x != n {
			out = append(out, x)
		}
		return true
	})
	return out
}

func matchContainers(m *Mapping, s, d *treeInfo, opts MatchOptions) {
	nodes := s.file.Nodes()
	// Reverse pre-order visits children before parents.
	for i := len(nodes) - 1; i >= 0; i-- {
		sn := nodes[i]
		if len(sn.Children) == 0 {
			continue
		}
		if _, ok := m.Partner(Source, sn.ID); ok {
			continue
		}
		desc := descendants(sn)
		if len(desc) == 0 {
			continue
		}

		seen := make(map[ast.NodeID]bool)
		var cands []*ast.Node
		for _, x := range desc {
			p, ok := m.Partner(Source, x.ID)
			if !ok {
				continue
			}
			for a := d.file.Node(p).Parent; a != nil; a = a.Parent {
				if seen[a.ID] {
					break
				}
				seen[a.ID] = true
				if a.Kind != sn.Kind {
					continue
				}
				if _, mapped := m.Partner(Destination, a.ID); !mapped {
					cands = append(cands, a)
				}
			}
		}
		slices.SortFunc(cands, func(a, b *ast.Node) bool { return a.ID < b.ID })

		var best *ast.Node
		bestDice := opts.MinDice
		for _, dn := range cands {
			if dice := diceSimilarity(m, desc, dn, d.size[dn.ID]-1); dice >= bestDice && (best == nil || dice > bestDice) {
				best, bestDice = dn, dice
			}
		}
		if best != nil {
			m.Map(sn.ID, best.ID)
		}
	}
}

func diceSimilarity(m *Mapping, srcDesc []*ast.Node, dn *ast.Node, dstDescCount int) float64 {
	common := 0
	for _, x := range srcDesc {
		p, ok := m.Partner(Source, x.ID)
		if !ok {
			continue
		}
		if ast.IsAncestor(dn, m.Dst.Node(p)) {
			common++
		}
	}
	total := len(srcDesc) + dstDescCount
	if total == 0 {
		return 0
	}
	return 2 * float64(common) / float64(total)
}

// fixedArity lists kinds whose child slots carry a role, so children pair
// by index rather than by order.
func fixedArity(k ast.Kind) bool {
	switch k {
	case ast.KindFunction, ast.KindDeclarator, ast.KindIf, ast.KindWhile, ast.KindDoWhile,
		ast.KindFor, ast.KindForIn, ast.KindTry, ast.KindAssign, ast.KindBinary,
		ast.KindMember, ast.KindProperty, ast.KindConditional, ast.KindUnary,
		ast.KindUpdate, ast.KindReturn, ast.KindThrow, ast.KindExprStmt, ast.KindLabeled:
		return true
	}
	return false
}

func recoverChildren(m *Mapping, s, d *treeInfo) {
	for _, sn := range s.file.Nodes() {
		p, ok := m.Partner(Source, sn.ID)
		if !ok {
			continue
		}
		dn := d.file.Node(p)
		if fixedArity(sn.Kind) && sn.Kind == dn.Kind {
			for i, sc := range sn.Children {
				dc := dn.Child(i)
				if sc == nil || dc == nil || sc.Kind != dc.Kind {
					continue
				}
				_, sm := m.Partner(Source, sc.ID)
				_, dm := m.Partner(Destination, dc.ID)
				if !sm && !dm {
					m.Map(sc.ID, dc.ID)
				}
			}
			continue
		}
		recoverOrdered(m, s, d, sn, dn)
	}
}

// named kinds only pair by label or content, never by position alone.
func named(k ast.Kind) bool { return k == ast.KindFunction || k == ast.KindClass }

// recoverOrdered pairs unmatched children of two paired nodes in order:
// first identical subtrees, then equal labels, then equal kinds.
func recoverOrdered(m *Mapping, s, d *treeInfo, sn, dn *ast.Node) {
	passes := []func(a, b *ast.Node) bool{
		func(a, b *ast.Node) bool { return s.hash[a.ID] == d.hash[b.ID] },
		func(a, b *ast.Node) bool { return a.Kind == b.Kind && a.Text == b.Text },
		func(a, b *ast.Node) bool { return a.Kind == b.Kind && !named(a.Kind) },
	}
	for _, same := range passes {
		next := 0
		for _, sc := range sn.Children {
			if sc == nil {
				continue
			}
			if _, ok := m.Partner(Source, sc.ID); ok {
				continue
			}
			for j := next; j < len(dn.Children); j++ {
				dc := dn.Children[j]
				if dc == nil {
					continue
				}
				if _, ok := m.Partner(Destination, dc.ID); ok {
					continue
				}
				if same(sc, dc) {
					if s.hash[sc.ID] == d.hash[dc.ID] {
						mapSubtree(m, sc, dc)
					} else {
						m.Map(sc.ID, dc.ID)
					}
					next = j + 1
					break
				}
			}
		}
	}
}

func sameLabel(a, b *ast.Node) bool {
	return a.Kind == b.Kind && a.Text == b.Text && a.Literal == b.Literal && a.Computed == b.Computed
}

func classify(m *Mapping) {
	for _, sn := range m.Src.Nodes() {
		p, ok := m.Partner(Source, sn.ID)
		if !ok {
			m.SetChange(Source, sn.ID, Removed)
			continue
		}
		dn := m.Dst.Node(p)
		change := Unchanged
		switch {
		case !sameLabel(sn, dn):
			change = Updated
		case sn.Parent != nil && dn.Parent != nil:
			if pp, ok := m.Partner(Source, sn.Parent.ID); !ok || pp != dn.Parent.ID {
				change = Moved
			}
		}
		m.SetChange(Source, sn.ID, change)
		m.SetChange(Destination, dn.ID, change)
	}
	for _, dn := range m.Dst.Nodes() {
		if _, ok := m.Partner(Destination, dn.ID); !ok {
			m.SetChange(Destination, dn.ID, Inserted)
		}
	}
}
