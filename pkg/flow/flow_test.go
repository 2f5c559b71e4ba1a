package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-commit-miner/pkg/ast"
	"github.com/l3aro/go-commit-miner/pkg/astdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfg"
	"github.com/l3aro/go-commit-miner/pkg/domain"
)

type run struct {
	file *ast.File
	g    *cfg.CFG
	res  *Result
}

// analyze differences src against dst and runs the analysis over the
// function named fn on the destination side.
func analyze(t *testing.T, src, dst, fn string, opts ...Option) *run {
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

	g, err := cfg.Find(dg, fn)
	require.NoError(t, err)
	opts = append([]Option{WithAllocator(domain.NewAllocator())}, opts...)
	res, err := Analyze(g, m, astdiff.Destination, opts...)
	require.NoError(t, err)
	return &run{file: d, g: g, res: res}
}

func (r *run) node(t *testing.T, text string) *cfg.Node {
	t.Helper()
	for _, n := range r.g.Nodes {
		if n.Stmt != nil && r.file.Text(n.Stmt) == text {
			return n
		}
	}
	t.Fatalf("no node %q", text)
	return nil
}

func (r *run) after(t *testing.T, text, name string) domain.BValue {
	t.Helper()
	n := r.node(t, text)
	s, ok := r.res.After[n.ID]
	require.True(t, ok, "node %q not reached", text)
	v, _, ok := s.Lookup(domain.Identifier(name))
	require.True(t, ok, "%s unbound after %q", name, text)
	return v
}

func declarator(t *testing.T, f *ast.File, name string) *ast.Node {
	t.Helper()
	for _, n := range f.Nodes() {
		if n.Kind == ast.KindDeclarator && n.Child(0) != nil && n.Child(0).Text == name {
			return n
		}
	}
	t.Fatalf("no declarator %q", name)
	return nil
}

func TestUnchangedFunctionStaysUnchanged(t *testing.T) {
	src := "function f(x) { var a = x + 1; if (a > 2) { a = 0; } return a; }"
	r := analyze(t, src, src, "f")

	assert.False(t, r.res.Truncated)
	assert.Empty(t, r.res.Degraded)
	assert.Equal(t, domain.Unchanged, r.after(t, "return a;", "a").Change())
	for id, s := range r.res.Before {
		assert.Empty(t, s.Control, "node %d", id)
	}
}

func TestUpdatedLiteralFlowsThroughAssignments(t *testing.T) {
	src := "function f() { var a = 1; var b = a + 2; return b; }"
	dst := "function f() { var a = 5; var b = a + 2; return b; }"
	r := analyze(t, src, dst, "f")

	a := r.after(t, "var a = 5;", "a")
	assert.Equal(t, domain.Changed, a.Change())
	assert.NotEmpty(t, a.Deps.Value)

	b := r.after(t, "return b;", "b")
	assert.Equal(t, domain.Changed, b.Change())
	declA, declB := declarator(t, r.file, "a"), declarator(t, r.file, "b")
	assert.True(t, b.Deps.Data.Contains(int(declA.ID)))
	assert.True(t, b.Deps.Data.Contains(int(declB.ID)))
	assert.Equal(t, a.Deps.Value, b.Deps.Value)
}

func TestUnrelatedValuesStayUnchanged(t *testing.T) {
	src := "function f() { var a = 1; var c = 3; return c; }"
	dst := "function f() { var a = 5; var c = 3; return c; }"
	r := analyze(t, src, dst, "f")

	c := r.after(t, "return c;", "c")
	assert.Equal(t, domain.Unchanged, c.Change())
	assert.True(t, c.Deps.IsEmpty())
}

func TestUpdatedConditionAddsControlDependency(t *testing.T) {
	src := "function f(a, b) { var y = 0; if (a) { y = 1; } return y; }"
	dst := "function f(a, b) { var y = 0; if (b) { y = 1; } return y; }"
	r := analyze(t, src, dst, "f")

	inner := r.node(t, "y = 1;")
	before := r.res.Before[inner.ID]
	require.NotNil(t, before)
	require.Len(t, before.Control, 1)
	dep := before.Control[0]
	assert.Equal(t, ast.KindIf, dep.Branch.Kind)
	assert.Equal(t, "b", dep.Condition.Text)
	assert.True(t, dep.Change.IsChanged())

	ret := r.node(t, "return y;")
	assert.Empty(t, r.res.Before[ret.ID].Control)
}

func TestLoopBodyIsEnteredOnce(t *testing.T) {
	src := "function f(n) { var i = 0; while (i < n) { i = i + 1; } return i; }"
	for _, sensitive := range []bool{false, true} {
		r := analyze(t, src, src, "f", WithPathSensitive(sensitive))

		assert.False(t, r.res.Truncated)
		for id, n := range r.res.EdgeVisits {
			assert.LessOrEqual(t, n, 2, "edge %d sensitive=%v", id, sensitive)
		}
		assert.True(t, r.res.Reached(r.node(t, "return i;").ID))
		assert.True(t, r.res.Reached(r.g.Exit))
	}
}

func TestLoopCarriesChangeToHeader(t *testing.T) {
	src := "function f(n) { var s = 0; var i = 0; while (i < n) { s = s + 1; i = i + 1; } return s; }"
	dst := "function f(n) { var s = 0; var i = 0; while (i < n) { s = s + 2; i = i + 1; } return s; }"
	r := analyze(t, src, dst, "f")

	// The value after the loop joins the initial Unchanged value with the
	// Changed value produced by the body.
	s := r.after(t, "return s;", "s")
	assert.True(t, s.Change().IsChanged())
}

func TestEdgeVisitCeilingTruncates(t *testing.T) {
	src := "function f(n) { var i = 0; while (i < n) { i = i + 1; } return i; }"
	r := analyze(t, src, src, "f", WithEdgeVisitCeiling(2))

	assert.True(t, r.res.Truncated)
	assert.Equal(t, 2, r.res.Visits)
	assert.False(t, r.res.Reached(r.g.Exit))
}

func TestAnalysisIsDeterministic(t *testing.T) {
	src := "function f(o, k) { var x = o.p; if (k) { o.q = x; } else { x = [1, 2]; } return x; }"
	dst := "function f(o, k) { var x = o.p; if (!k) { o.q = x + 1; } else { x = [1, 3]; } return x; }"
	first := analyze(t, src, dst, "f")
	second := analyze(t, src, dst, "f")

	require.Equal(t, len(first.res.After), len(second.res.After))
	controlled := 0
	for id, s := range first.res.After {
		other, ok := second.res.After[id]
		require.True(t, ok)
		assert.True(t, s.Equal(other), "node %d differs", id)
		if len(s.Control) > 0 {
			controlled++
		}
	}
	// The runs parse separately, so equal control dependencies refer to
	// distinct nodes.
	assert.NotZero(t, controlled)
	assert.Equal(t, first.res.EdgeVisits, second.res.EdgeVisits)
}

func TestUnsupportedStatementDegrades(t *testing.T) {
	src := "function f(o) { var x = 0; with (o) { x = 1; } return x; }"
	r := analyze(t, src, src, "f")

	require.Len(t, r.res.Degraded, 1)
	assert.Equal(t, domain.Top, r.after(t, "return x;", "x").Change())
}

func TestPropertyWritesAreTracked(t *testing.T) {
	src := "function f() { var o = {p: 1, q: 2}; o.p = 3; var r = o.p; var s = o.q; return r; }"
	dst := "function f() { var o = {p: 1, q: 2}; o.p = 4; var r = o.p; var s = o.q; return r; }"
	r := analyze(t, src, dst, "f")

	assert.Equal(t, domain.Changed, r.after(t, "var r = o.p;", "r").Change())
	assert.Equal(t, domain.Unchanged, r.after(t, "var s = o.q;", "s").Change())
}

func TestConditionNarrowsNullness(t *testing.T) {
	src := "function f(x) { if (x !== null) { var y = x; } return 0; }"
	r := analyze(t, src, src, "f")

	y := r.after(t, "var y = x;", "y")
	assert.Equal(t, domain.Never, y.Null.Tri)
	assert.Equal(t, domain.Maybe, y.Undef.Tri)
}

func TestCallResolverMarksResult(t *testing.T) {
	src := "function f() { var v = g(); return v; }"
	r := analyze(t, src, src, "f", WithCallResolver(changedCalls{"g": true}))
	assert.Equal(t, domain.Changed, r.after(t, "return v;", "v").Change())

	r = analyze(t, src, src, "f", WithCallResolver(changedCalls{}))
	assert.Equal(t, domain.Unchanged, r.after(t, "return v;", "v").Change())
}

type changedCalls map[string]bool

func (c changedCalls) CallChange(_ astdiff.Version, callee *ast.Node) (domain.Change, bool) {
	if callee.Kind != ast.KindIdentifier {
		return domain.Bottom, false
	}
	if c[callee.Text] {
		return domain.Changed, true
	}
	return domain.Unchanged, true
}

func TestNotFinalizedGraphIsRejected(t *testing.T) {
	f, err := ast.ParseSource("a.js", []byte("x = 1;"))
	require.NoError(t, err)
	g := cfg.New(f.Root)
	n := g.AddNode(cfg.NodeTypeStatement, f.Root.Child(0))
	g.AddEdge(g.Entry, n.ID, nil, cfg.EdgeTypeUnconditional)

	_, err = Analyze(g, astdiff.NewMapping(f, f), astdiff.Destination)
	assert.ErrorIs(t, err, ErrNotFinalized)
}

func TestLoopWaitsForEveryPathIn(t *testing.T) {
	src := "function f(c, n) { var i = 0; var x = 1; var y = 0; if (c) { i = 1; } else { x = 1; } while (i < n) { y = x; i++; } return y; }"
	dst := "function f(c, n) { var i = 0; var x = 1; var y = 0; if (c) { i = 1; } else { x = 2; } while (i < n) { y = x; i++; } return y; }"
	for _, sensitive := range []bool{false, true} {
		r := analyze(t, src, dst, "f", WithPathSensitive(sensitive))
		require.False(t, r.res.Truncated)

		body := r.node(t, "y = x;")
		before, ok := r.res.Before[body.ID]
		require.True(t, ok, "sensitive=%v", sensitive)
		x, _, ok := before.Lookup(domain.Identifier("x"))
		require.True(t, ok)
		assert.True(t, x.Change().IsChanged(), "x into body, sensitive=%v", sensitive)
		assert.True(t, r.after(t, "return y;", "y").Change().IsChanged(), "sensitive=%v", sensitive)

		header := r.node(t, "while (i < n) { y = x; i++; }")
		assert.Len(t, header.In, 3)
		assert.Equal(t, 2, header.ForwardIncomingEdges())
		// Path-sensitive runs take the exit edge twice on each path.
		limit := 2
		if sensitive {
			limit = 4
		}
		for id, n := range r.res.EdgeVisits {
			assert.LessOrEqual(t, n, limit, "edge %d sensitive=%v", id, sensitive)
		}
	}
}

func TestShadowingLetSharesBinding(t *testing.T) {
	src := "function f(c) { let x = 1; if (c) { let x = 2; } return x; }"
	dst := "function f(c) { let x = 1; if (c) { let x = 3; } return x; }"
	r := analyze(t, src, dst, "f")

	assert.Equal(t, domain.Unchanged, r.after(t, "let x = 1;", "x").Change())
	assert.Equal(t, domain.Changed, r.after(t, "let x = 3;", "x").Change())
	assert.Equal(t, domain.Top, r.after(t, "return x;", "x").Change())
}
