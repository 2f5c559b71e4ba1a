package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-commit-miner/pkg/ast"
	"github.com/l3aro/go-commit-miner/pkg/astdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfg"
	"github.com/l3aro/go-commit-miner/pkg/domain"
	"github.com/l3aro/go-commit-miner/pkg/flow"
)

type mined struct {
	files   [2]*ast.File
	results [2]*flow.Result
	set     *Set
}

func mine(t *testing.T, src, dst, fn string) *mined {
	t.Helper()
	s, err := ast.ParseSource("src.js", []byte(src))
	require.NoError(t, err)
	d, err := ast.ParseSource("dst.js", []byte(dst))
	require.NoError(t, err)
	sg, err := cfg.BuildFile(s)
	require.NoError(t, err)
	dg, err := cfg.BuildFile(d)
	require.NoError(t, err)
	m := astdiff.Match(s, d)
	cfdiff.Difference(m, sg, dg)

	out := &mined{files: [2]*ast.File{s, d}, set: NewSet()}
	for v, graphs := range [][]*cfg.CFG{sg, dg} {
		g, err := cfg.Find(graphs, fn)
		require.NoError(t, err)
		res, err := flow.Analyze(g, m, astdiff.Version(v), flow.WithAllocator(domain.NewAllocator()))
		require.NoError(t, err)
		require.False(t, res.Truncated)
		out.results[v] = res
		out.set.Merge(Annotate(res, m))
	}
	return out
}

// texts returns the source text of every annotation with the given label
// in version v.
func (m *mined) texts(v astdiff.Version, label Label) []string {
	var out []string
	for _, a := range m.set.Filter(label) {
		if a.Version != v.String() {
			continue
		}
		f := m.files[v]
		out = append(out, string(f.Source[a.AbsolutePosition:a.AbsolutePosition+a.Length]))
	}
	return out
}

func (m *mined) onText(v astdiff.Version, text string) []Annotation {
	var out []Annotation
	for _, a := range m.set.Slice() {
		f := m.files[v]
		if a.Version == v.String() && string(f.Source[a.AbsolutePosition:a.AbsolutePosition+a.Length]) == text {
			out = append(out, a)
		}
	}
	return out
}

func TestInsertedAssignmentIsDataDefinition(t *testing.T) {
	src := "function f(x) { if (x > 0) { } else { y = 2; } }"
	dst := "function f(x) { if (x > 0) { y = 1; } else { y = 2; } }"
	m := mine(t, src, dst, "f")

	assert.Equal(t, []string{"y = 1"}, m.texts(astdiff.Destination, DataXDef))
	assert.Empty(t, m.onText(astdiff.Destination, "y = 2"))
	assert.Empty(t, m.onText(astdiff.Destination, "y = 2;"))
	assert.Empty(t, m.texts(astdiff.Destination, CondDef))
}

func TestUpdatedConditionIsControlDefinition(t *testing.T) {
	src := "function f(a, b) { if (a) { y = 1; } else { y = 2; } return y; }"
	dst := "function f(a, b) { if (b) { y = 1; } else { y = 2; } return y; }"
	m := mine(t, src, dst, "f")

	assert.Equal(t, []string{"b"}, m.texts(astdiff.Destination, CondDef))
	assert.Equal(t, []string{"a"}, m.texts(astdiff.Source, CondDef))
	for _, v := range []astdiff.Version{astdiff.Source, astdiff.Destination} {
		assert.ElementsMatch(t, []string{"y = 1;", "y = 2;"}, m.texts(v, CondUse), v.String())
	}

	uses := m.set.Filter(CondUse)
	defs := m.set.Filter(CondDef)
	for _, u := range uses {
		for _, d := range defs {
			if d.Version == u.Version {
				assert.Equal(t, d.DependencyIDs, u.DependencyIDs)
			}
		}
	}
}

func TestObjectLiteralPropagatesThroughProperty(t *testing.T) {
	src := "function f() { var o = {p: g(1)}; var r = o.p; return r; }"
	dst := "function f() { var o = {p: g(2)}; var r = o.p; return r; }"
	m := mine(t, src, dst, "f")

	res := m.results[astdiff.Destination]
	var ret *cfg.Node
	for _, n := range res.CFG.Nodes {
		if n.Stmt != nil && n.Stmt.Kind == ast.KindReturn {
			ret = n
		}
	}
	require.NotNil(t, ret)
	r, _, ok := res.After[ret.ID].Lookup("r")
	require.True(t, ok)
	assert.Equal(t, domain.Changed, r.Change())

	assert.ElementsMatch(t, []string{"o = {p: g(2)}", "r = o.p"}, m.texts(astdiff.Destination, DataXDef))
	assert.Contains(t, m.texts(astdiff.Destination, DataUse), "o")
	assert.Contains(t, m.texts(astdiff.Destination, DataUse), "r")
}

func TestSelfReferentialObjectTerminates(t *testing.T) {
	src := "function f() { var a = {x: 1, z: 3}; a.self = a; var y = a.x; var w = a.z; return y; }"
	dst := "function f() { var a = {x: 2, z: 3}; a.self = a; var y = a.x; var w = a.z; return y; }"
	m := mine(t, src, dst, "f")

	xdefs := m.texts(astdiff.Destination, DataXDef)
	assert.Contains(t, xdefs, "a = {x: 2, z: 3}")
	assert.Contains(t, xdefs, "y = a.x")
	assert.Contains(t, m.texts(astdiff.Destination, ValueDef), "a = {x: 2, z: 3}")
	assert.Contains(t, m.texts(astdiff.Destination, ValueUse), "a")
}

func TestUnchangedFunctionHasNoFacts(t *testing.T) {
	src := "function f(a) { var s = 0; for (var i = 0; i < a.length; i++) { s += a[i]; } return s; }"
	m := mine(t, src, src, "f")
	assert.Zero(t, m.set.Len())
}

func TestAnnotationsAreDeterministic(t *testing.T) {
	src := "function f(a, b) { var x = a; if (a) { x = b + 1; } while (x > 0) { x--; } return x; }"
	dst := "function f(a, b) { var x = a; if (b) { x = b + 2; } while (x > 0) { x -= 2; } return x; }"
	first := mine(t, src, dst, "f").set.Slice()
	second := mine(t, src, dst, "f").set.Slice()
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)

	src = "function f(o, k) { var x = o.p; if (k) { o.q = x; } else { x = [1, 2]; } return x; }"
	dst = "function f(o, k) { var x = o.p; if (!k) { o.q = x + 1; } else { x = [1, 3]; } return x; }"
	a, b := mine(t, src, dst, "f"), mine(t, src, dst, "f")
	assert.Equal(t, a.set.Slice(), b.set.Slice())
	assert.NotEmpty(t, a.set.Filter(CondUse))
	for v := range a.results {
		for id, s := range a.results[v].After {
			assert.True(t, s.Equal(b.results[v].After[id]), "version %d node %d", v, id)
		}
	}
}

func TestBranchBeforeLoopReachesLoopBody(t *testing.T) {
	src := "function f(c, n) { var i = 0; var x = 1; var y = 0; if (c) { i = 1; } else { x = 1; } while (i < n) { y = x; i++; } return y; }"
	dst := "function f(c, n) { var i = 0; var x = 1; var y = 0; if (c) { i = 1; } else { x = 2; } while (i < n) { y = x; i++; } return y; }"
	m := mine(t, src, dst, "f")

	assert.Contains(t, m.texts(astdiff.Destination, DataXDef), "y = x")
	uses := m.texts(astdiff.Destination, DataUse)
	assert.Contains(t, uses, "x")
	assert.Contains(t, uses, "y")
}

func TestNestedFunctionsAreNotEntered(t *testing.T) {
	src := "function f() { var h = function () { return 1; }; return 0; }"
	dst := "function f() { var h = function () { return 2; }; return 0; }"
	m := mine(t, src, dst, "f")

	// The literal lives in the nested function, so f only sees a changed
	// function value.
	assert.Equal(t, []string{"h = function () { return 2; }"}, m.texts(astdiff.Destination, DataXDef))
	assert.Empty(t, m.texts(astdiff.Destination, ValueDef))
}

func TestSetDeduplicatesByValue(t *testing.T) {
	n := &ast.Node{Line: 3, Offset: 10, Length: 4}
	s := NewSet()
	assert.True(t, s.Add(New(DataUse, n, []int{4, 2, 4}, "destination", "f")))
	assert.False(t, s.Add(New(DataUse, n, []int{2, 4}, "destination", "f")))
	assert.True(t, s.Add(New(DataUse, n, []int{2}, "destination", "f")))
	assert.True(t, s.Add(New(DataUse, n, []int{2}, "source", "f")))
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []int{2, 4}, s.Slice()[1].DependencyIDs)
	assert.Equal(t, map[Label]int{DataUse: 3}, s.Counts())
}
