package ast

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *File {
	t.Helper()
	f, err := ParseSource("test.js", []byte(src))
	require.NoError(t, err)
	require.NotNil(t, f.Root)
	return f
}

func TestParseDeclarationsAndFunctions(t *testing.T) {
	f := parse(t, "var x = 1;\nfunction f(a, b) { return a + b; }\n")

	root := f.Root
	assert.Equal(t, KindProgram, root.Kind)
	assert.Equal(t, NodeID(0), root.ID)
	require.Len(t, root.Children, 2)

	decl := root.Children[0]
	assert.Equal(t, KindVarDecl, decl.Kind)
	assert.Equal(t, "var", decl.Text)
	require.Len(t, decl.Children, 1)
	d := decl.Children[0]
	assert.Equal(t, KindDeclarator, d.Kind)
	assert.Equal(t, "x", d.Child(0).Text)
	assert.Equal(t, KindLiteral, d.Child(1).Kind)
	assert.Equal(t, LitNumber, d.Child(1).Literal)

	fn := root.Children[1]
	assert.Equal(t, KindFunction, fn.Kind)
	assert.Equal(t, "f", fn.Text)
	assert.Equal(t, 2, fn.Line)
	require.NotNil(t, fn.Child(1))
	assert.Len(t, fn.Child(1).Children, 2)

	body := fn.Body()
	require.NotNil(t, body)
	assert.Equal(t, KindBlock, body.Kind)
	ret := body.Children[0]
	assert.Equal(t, KindReturn, ret.Kind)
	assert.Equal(t, KindBinary, ret.Child(0).Kind)
	assert.Equal(t, "+", ret.Child(0).Text)

	funcs := f.Functions()
	require.Len(t, funcs, 2)
	assert.Equal(t, "<script>", FunctionName(funcs[0]))
	assert.Equal(t, "f", FunctionName(funcs[1]))
}

func TestParseArrowFunctionGetsDeclaratorName(t *testing.T) {
	f := parse(t, "const g = x => x * 2;")

	decl := f.Root.Children[0]
	assert.Equal(t, "const", decl.Text)
	fn := decl.Children[0].Child(1)
	require.Equal(t, KindFunction, fn.Kind)
	assert.Equal(t, "g", fn.Text)

	body := fn.Body()
	require.Equal(t, KindBlock, body.Kind)
	require.Len(t, body.Children, 1)
	assert.Equal(t, KindReturn, body.Children[0].Kind)
	assert.Equal(t, KindBinary, body.Children[0].Child(0).Kind)
}

func TestParseControlFlow(t *testing.T) {
	f := parse(t, "if (a) { b(); } else c();\nwhile (i < 3) i++;\n")

	ifs := f.Root.Children[0]
	require.Equal(t, KindIf, ifs.Kind)
	assert.Equal(t, KindIdentifier, ifs.Cond().Kind)
	assert.Equal(t, "a", ifs.Cond().Text)
	assert.Equal(t, KindBlock, ifs.Child(1).Kind)
	assert.Equal(t, KindExprStmt, ifs.Child(2).Kind)

	loop := f.Root.Children[1]
	require.Equal(t, KindWhile, loop.Kind)
	assert.Equal(t, "<", loop.Cond().Text)
	assert.Equal(t, KindExprStmt, loop.Body().Kind)
	assert.Equal(t, KindUpdate, loop.Body().Child(0).Kind)
}

func TestParseMembersAndObjects(t *testing.T) {
	f := parse(t, "o.p = 1;\no[\"k\"] = 2;\nvar q = 3;\nv = {p: 1, q};\n")

	assign := f.Root.Children[0].Child(0)
	require.Equal(t, KindAssign, assign.Kind)
	member := assign.Left()
	assert.Equal(t, KindMember, member.Kind)
	assert.Equal(t, "p", member.Text)
	assert.False(t, member.Computed)

	sub := f.Root.Children[1].Child(0).Left()
	assert.Equal(t, KindMember, sub.Kind)
	assert.True(t, sub.Computed)
	assert.Equal(t, "k", sub.Text)

	obj := f.Root.Children[3].Child(0).Right()
	require.Equal(t, KindObject, obj.Kind)
	require.Len(t, obj.Children, 2)
	assert.Equal(t, KindProperty, obj.Children[0].Kind)
	assert.Equal(t, "p", obj.Children[0].Text)
	assert.Equal(t, "q", obj.Children[1].Text)
}

func TestParsePositions(t *testing.T) {
	src := "x = 1;\ny = 2;\n"
	f := parse(t, src)

	second := f.Root.Children[1]
	assert.Equal(t, 2, second.Line)
	assert.Equal(t, 7, second.Offset)
	assert.Equal(t, "y = 2;", f.Text(second))

	for _, n := range f.Nodes() {
		if n.Parent != nil {
			assert.Less(t, n.Parent.ID, n.ID, "parents precede children in pre-order")
			assert.True(t, IsAncestor(n.Parent, n))
		}
		assert.Same(t, n, f.Node(n.ID))
	}
}

func TestParseErrors(t *testing.T) {
	p := NewParser(WithMaxFileSize(4))
	_, err := p.Parse(context.Background(), "big.js", []byte("var x = 1;"))
	assert.True(t, errors.Is(err, ErrFileTooLarge))

	_, err = NewParser().Parse(context.Background(), "bad.js", []byte{0xff, 0xfe})
	assert.True(t, errors.Is(err, ErrInvalidContent))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewParser().Parse(ctx, "c.js", []byte("x;"))
	assert.Error(t, err)
}

func TestParseSyntaxErrorIsFlagged(t *testing.T) {
	f, err := ParseSource("broken.js", []byte("function ( {"))
	require.NoError(t, err)
	assert.True(t, f.HasErrors)
}

func TestEnclosingFunction(t *testing.T) {
	f := parse(t, "function outer() { function inner() { z = 1; } }")
	var z *Node
	Inspect(f.Root, func(n *Node) bool {
		if n.Kind == KindIdentifier && n.Text == "z" {
			z = n
		}
		return true
	})
	require.NotNil(t, z)
	fn := EnclosingFunction(z)
	require.NotNil(t, fn)
	assert.Equal(t, "inner", fn.Text)
	assert.Equal(t, KindProgram, EnclosingFunction(EnclosingFunction(fn)).Kind)
}
