package cfg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-commit-miner/pkg/ast"
)

func buildScript(t *testing.T, src string) (*ast.File, *CFG) {
	t.Helper()
	f, err := ast.ParseSource("test.js", []byte(src))
	require.NoError(t, err)
	g, err := Build(f.Root)
	require.NoError(t, err)
	return f, g
}

func stmtNode(t *testing.T, f *ast.File, g *CFG, source string) *Node {
	t.Helper()
	for _, n := range g.Nodes {
		if n.Stmt != nil && f.Text(n.Stmt) == source {
			return n
		}
	}
	t.Fatalf("no CFG node for %q", source)
	return nil
}

func edgeBetween(g *CFG, from, to NodeID) *Edge {
	for _, id := range g.Nodes[from].Out {
		if e := g.Edges[id]; e.To == to {
			return e
		}
	}
	return nil
}

func TestBuildStraightLine(t *testing.T) {
	f, g := buildScript(t, "a = 1;\nb = 2;\n")

	assert.Len(t, g.Nodes, 4)
	assert.Len(t, g.Edges, 3)
	a := stmtNode(t, f, g, "a = 1;")
	b := stmtNode(t, f, g, "b = 2;")
	assert.NotNil(t, edgeBetween(g, g.Entry, a.ID))
	assert.NotNil(t, edgeBetween(g, a.ID, b.ID))
	assert.NotNil(t, edgeBetween(g, b.ID, g.Exit))
	assert.Equal(t, "<script>", g.Name)
}

func TestBuildIfElse(t *testing.T) {
	f, g := buildScript(t, "if (x > 0) { y = 1; } else { y = 2; }\nz = 3;\n")

	assert.Len(t, g.Nodes, 6)
	assert.Len(t, g.Edges, 6)

	var branch *Node
	for _, n := range g.Nodes {
		if n.Type == NodeTypeBranch {
			branch = n
		}
	}
	require.NotNil(t, branch)
	assert.Equal(t, ast.KindIf, branch.Stmt.Kind)

	then := stmtNode(t, f, g, "y = 1;")
	els := stmtNode(t, f, g, "y = 2;")
	te := edgeBetween(g, branch.ID, then.ID)
	fe := edgeBetween(g, branch.ID, els.ID)
	require.NotNil(t, te)
	require.NotNil(t, fe)
	assert.Equal(t, EdgeTypeTrue, te.Type)
	assert.False(t, te.Negated)
	assert.Equal(t, EdgeTypeFalse, fe.Type)
	assert.True(t, fe.Negated)
	assert.Same(t, te.Condition, fe.Condition)
	assert.Equal(t, ast.KindBinary, te.Condition.Kind)

	z := stmtNode(t, f, g, "z = 3;")
	assert.Len(t, z.In, 2)
	assert.Equal(t, 2, z.IncomingEdges())
	assert.Equal(t, 2, g.Info(f.Source).CyclomaticComplexity)
}

func TestBuildIfWithoutElse(t *testing.T) {
	f, g := buildScript(t, "if (a) b();\nc();\n")

	c := stmtNode(t, f, g, "c();")
	require.Len(t, c.In, 2)
	var types []EdgeType
	for _, id := range c.In {
		types = append(types, g.Edges[id].Type)
	}
	assert.ElementsMatch(t, []EdgeType{EdgeTypeUnconditional, EdgeTypeFalse}, types)
}

func TestBuildWhileLoop(t *testing.T) {
	f, g := buildScript(t, "while (i < 10) { i++; }\ndone();\n")

	header := stmtNode(t, f, g, "while (i < 10) { i++; }")
	body := stmtNode(t, f, g, "i++;")
	done := stmtNode(t, f, g, "done();")

	assert.True(t, g.IsLoopHeader(header.ID))
	assert.False(t, g.IsLoopHeader(body.ID))
	assert.Equal(t, 2, header.IncomingEdges())
	assert.Equal(t, 1, header.ForwardIncomingEdges())

	back := edgeBetween(g, body.ID, header.ID)
	require.NotNil(t, back)
	assert.True(t, back.Back)

	enter := edgeBetween(g, header.ID, body.ID)
	require.NotNil(t, enter)
	assert.Equal(t, []EdgeID{enter.ID}, g.LoopEdges(header.ID))

	leave := edgeBetween(g, header.ID, done.ID)
	require.NotNil(t, leave)
	assert.Equal(t, EdgeTypeFalse, leave.Type)
	assert.False(t, leave.Back)

	backs := 0
	for _, e := range g.Edges {
		if e.Back {
			backs++
		}
	}
	assert.Equal(t, 1, backs)
}

func TestBuildDoWhile(t *testing.T) {
	f, g := buildScript(t, "do { i++; } while (i < 10);\n")

	body := stmtNode(t, f, g, "i++;")
	var cond *Node
	for _, n := range g.Nodes {
		if n.Stmt != nil && n.Stmt.Kind == ast.KindDoWhile {
			cond = n
		}
	}
	require.NotNil(t, cond)
	assert.Equal(t, NodeTypeBranch, cond.Type)

	back := edgeBetween(g, cond.ID, body.ID)
	require.NotNil(t, back)
	assert.True(t, back.Back)
	assert.Equal(t, EdgeTypeTrue, back.Type)
	assert.True(t, g.IsLoopHeader(body.ID))
	assert.NotNil(t, edgeBetween(g, cond.ID, g.Exit))
}

func TestBuildForWithBreakAndContinue(t *testing.T) {
	src := "for (var i = 0; i < n; i++) {\n  if (a) continue;\n  if (b) break;\n  s();\n}\n"
	f, g := buildScript(t, src)

	update := stmtNode(t, f, g, "i++")
	cont := stmtNode(t, f, g, "continue;")
	brk := stmtNode(t, f, g, "break;")
	s := stmtNode(t, f, g, "s();")

	ce := edgeBetween(g, cont.ID, update.ID)
	require.NotNil(t, ce)
	assert.Equal(t, EdgeTypeContinue, ce.Type)
	assert.NotNil(t, edgeBetween(g, s.ID, update.ID))

	be := edgeBetween(g, brk.ID, g.Exit)
	require.NotNil(t, be)
	assert.Equal(t, EdgeTypeBreak, be.Type)

	var header *Node
	for _, n := range g.Nodes {
		if n.Stmt != nil && n.Stmt.Kind == ast.KindFor {
			header = n
		}
	}
	require.NotNil(t, header)
	back := edgeBetween(g, update.ID, header.ID)
	require.NotNil(t, back)
	assert.True(t, back.Back)
}

func TestBuildSwitch(t *testing.T) {
	f, g := buildScript(t, "switch (k) { case 1: a(); break; default: b(); }\n")

	var sw *Node
	for _, n := range g.Nodes {
		if n.Type == NodeTypeBranch {
			sw = n
		}
	}
	require.NotNil(t, sw)
	require.Len(t, sw.Out, 2)
	for _, id := range sw.Out {
		assert.Equal(t, EdgeTypeCase, g.Edges[id].Type)
	}

	a := stmtNode(t, f, g, "a();")
	b := stmtNode(t, f, g, "b();")
	assert.NotNil(t, edgeBetween(g, sw.ID, a.ID))
	assert.NotNil(t, edgeBetween(g, sw.ID, b.ID))
	assert.Len(t, g.Nodes[g.Exit].In, 2)
}

func TestBuildSkipsDeadCode(t *testing.T) {
	f, err := ast.ParseSource("test.js", []byte("function f() { return 1; x = 2; }"))
	require.NoError(t, err)
	cfgs, err := BuildFile(f)
	require.NoError(t, err)

	g, err := Find(cfgs, "f")
	require.NoError(t, err)
	for _, n := range g.Statements() {
		assert.NotEqual(t, "x = 2;", f.Text(n.Stmt))
	}
	assert.NoError(t, g.Validate())
}

func TestBuildFileNestedFunctions(t *testing.T) {
	f, err := ast.ParseSource("test.js", []byte("function f() { var g = function () { return 1; }; return g(); }"))
	require.NoError(t, err)

	cfgs, err := BuildFile(f)
	require.NoError(t, err)
	require.Len(t, cfgs, 3)
	assert.Equal(t, "<script>", cfgs[0].Name)
	assert.Equal(t, "f", cfgs[1].Name)
	assert.Equal(t, "g", cfgs[2].Name)

	// The outer function sees the nested function only as part of the
	// declaration statement.
	var stmts []string
	for _, n := range cfgs[1].Statements() {
		stmts = append(stmts, f.Text(n.Stmt))
	}
	assert.Equal(t, []string{"var g = function () { return 1; };", "return g();"}, stmts)
	require.Len(t, cfgs[2].Statements(), 1)
	assert.Equal(t, "return 1;", f.Text(cfgs[2].Statements()[0].Stmt))

	_, err = Find(cfgs, "missing")
	assert.True(t, errors.Is(err, ErrFunctionNotFound))
}

func TestAddEdgeIsIdempotentByCondition(t *testing.T) {
	f, err := ast.ParseSource("test.js", []byte("if (c) a(); else b();"))
	require.NoError(t, err)
	cond := f.Root.Children[0].Cond()

	g := New(f.Root)
	x := g.AddNode(NodeTypeBranch, f.Root.Children[0])
	y := g.AddNode(NodeTypeStatement, nil)
	z := g.AddNode(NodeTypeStatement, nil)

	first := g.AddEdge(x.ID, y.ID, cond, EdgeTypeTrue)
	second := g.AddEdge(x.ID, y.ID, cond, EdgeTypeTrue)
	assert.Equal(t, first, second)
	assert.Len(t, g.Edges, 1)
	assert.Len(t, y.In, 1)

	third := g.AddEdge(x.ID, z.ID, cond, EdgeTypeTrue)
	assert.Equal(t, first, third)
	assert.Equal(t, z.ID, g.Edges[first].To)
	assert.Empty(t, y.In)
	assert.Equal(t, []EdgeID{first}, z.In)

	g.AddEdge(x.ID, y.ID, cond, EdgeTypeFalse)
	assert.Len(t, g.Edges, 2)
}

func TestValidateRejectsUnreachableEdges(t *testing.T) {
	f, err := ast.ParseSource("test.js", []byte("a;"))
	require.NoError(t, err)

	g := New(f.Root)
	orphan := g.AddNode(NodeTypeStatement, f.Root.Children[0])
	g.AddEdge(g.Entry, g.Exit, nil, EdgeTypeUnconditional)
	g.AddEdge(orphan.ID, g.Exit, nil, EdgeTypeUnconditional)

	err = g.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachableNode))
	assert.Error(t, g.Finalize())
}

func TestJoinReadinessCounter(t *testing.T) {
	f, g := buildScript(t, "if (a) b(); else c();\nd();\n")
	d := stmtNode(t, f, g, "d();")

	assert.Equal(t, 2, d.IncomingEdges())
	assert.False(t, d.IsVisited())
	assert.Equal(t, 1, d.Visited())
	assert.False(t, d.IsVisited())
	assert.Equal(t, 0, d.Visited())
	assert.True(t, d.IsVisited())

	g.ResetVisited()
	assert.False(t, d.IsVisited())
}

func TestNodeForReturnsStatementNode(t *testing.T) {
	f, g := buildScript(t, "a();\nb();\n")
	stmt := f.Root.Children[1]
	n, ok := g.NodeFor(stmt)
	require.True(t, ok)
	assert.Same(t, stmt, n.Stmt)

	_, ok = g.NodeFor(f.Root)
	assert.False(t, ok)
}
