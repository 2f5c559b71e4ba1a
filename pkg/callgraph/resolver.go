package callgraph

import (
	"github.com/yourbasic/graph"

	"github.com/l3aro/go-commit-miner/pkg/ast"
	"github.com/l3aro/go-commit-miner/pkg/astdiff"
	"github.com/l3aro/go-commit-miner/pkg/domain"
)

// ChangeResolver answers whether calling a local function may return a
// different value in the two versions. A function is changed when its own
// subtree carries an edit, or when it calls a changed local function.
type ChangeResolver struct {
	graphs  [2]*IntraFileCallGraph
	changed [2]map[string]bool
}

// NewChangeResolver builds the call graphs of both versions of m.
func NewChangeResolver(m *astdiff.Mapping) *ChangeResolver {
	r := &ChangeResolver{}
	for _, v := range []astdiff.Version{astdiff.Source, astdiff.Destination} {
		g := Build(m.File(v))
		r.graphs[v] = g
		r.changed[v] = changedClosure(g, func(fn *ast.Node) bool {
			return m.SubtreeEdited(v, fn)
		})
	}
	return r
}

// changedClosure marks every function that is edited or reaches an edited
// function through the call graph.
func changedClosure(g *IntraFileCallGraph, edited func(*ast.Node) bool) map[string]bool {
	names := g.GetAllFunctions()
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	// Edges run from callee to caller.
	rev := graph.New(len(names))
	for _, caller := range names {
		for _, callee := range g.Callees(caller) {
			if j, ok := index[callee]; ok {
				rev.Add(j, index[caller])
			}
		}
	}

	out := make(map[string]bool)
	for i, n := range names {
		fn := g.Entries[n].Function
		if fn.Kind == ast.KindProgram || !edited(fn) || out[n] {
			continue
		}
		out[n] = true
		graph.BFS(rev, i, func(_, w int, _ int64) {
			out[names[w]] = true
		})
	}
	return out
}

// Graph returns the call graph of version v.
func (r *ChangeResolver) Graph(v astdiff.Version) *IntraFileCallGraph { return r.graphs[v] }

// Changed reports whether the named function is changed in version v.
func (r *ChangeResolver) Changed(v astdiff.Version, name string) bool { return r.changed[v][name] }

// CallChange implements the flow analysis call resolver. Calls of unknown
// functions are not resolved.
func (r *ChangeResolver) CallChange(v astdiff.Version, callee *ast.Node) (domain.Change, bool) {
	var name string
	switch {
	case callee == nil:
		return domain.Bottom, false
	case callee.Kind == ast.KindIdentifier:
		name = callee.Text
	case callee.Kind == ast.KindMember && !callee.Computed:
		name = callee.Text
	default:
		return domain.Bottom, false
	}
	if _, ok := r.graphs[v].LocalFunctions[name]; !ok {
		return domain.Bottom, false
	}
	if r.changed[v][name] {
		return domain.Changed, true
	}
	return domain.Unchanged, true
}
