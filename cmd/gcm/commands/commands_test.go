package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-commit-miner/internal/log"
	"github.com/l3aro/go-commit-miner/pkg/annotate"
	"github.com/l3aro/go-commit-miner/pkg/ast"
	"github.com/l3aro/go-commit-miner/pkg/astdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfg"
	"github.com/l3aro/go-commit-miner/pkg/miner"
)

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range RootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"analyze", "batch", "cfg", "diff", "init", "doctor"})
}

func TestPositiveInt(t *testing.T) {
	assert.NoError(t, positiveInt("4"))
	assert.Error(t, positiveInt("0"))
	assert.Error(t, positiveInt("-1"))
	assert.Error(t, positiveInt("four"))
}

func TestFindSimilarFunctions(t *testing.T) {
	f, err := ast.ParseSource("a.js", []byte("function parseHeader() {}\nfunction render() {}\n"))
	require.NoError(t, err)
	graphs, err := cfg.BuildFile(f)
	require.NoError(t, err)

	assert.Equal(t, []string{"parseHeader"}, findSimilarFunctions(graphs, "parse"))
	assert.Empty(t, findSimilarFunctions(graphs, "compile"))
}

func TestEdgeSuffix(t *testing.T) {
	assert.Equal(t, "", edgeSuffix(cfg.EdgeInfo{}))
	assert.Equal(t, " [!(x > 0)]", edgeSuffix(cfg.EdgeInfo{Condition: "x > 0", Negated: true}))
	assert.Equal(t, " [i < n, back]", edgeSuffix(cfg.EdgeInfo{Condition: "i < n", Back: true}))
}

func TestNewFunctionDiff(t *testing.T) {
	src, err := ast.ParseSource("a.js", []byte("function f(x) { if (x) { return 1; } return 2; }\nfunction g() { return 0; }\n"))
	require.NoError(t, err)
	dst, err := ast.ParseSource("a.js", []byte("function f(x) { if (!x) { return 1; } return 2; }\nfunction g() { return 0; }\n"))
	require.NoError(t, err)
	sg, err := cfg.BuildFile(src)
	require.NoError(t, err)
	dg, err := cfg.BuildFile(dst)
	require.NoError(t, err)

	m := astdiff.Match(src, dst)
	byName := map[string]functionDiff{}
	for _, p := range cfdiff.Difference(m, sg, dg) {
		byName[p.Name()] = newFunctionDiff(m, p, false)
	}

	f := byName["f"]
	assert.Equal(t, "matched", f.Status)
	assert.True(t, f.Edited())
	assert.NotEmpty(t, f.Edges)

	assert.False(t, byName["g"].Edited())
}

func TestFactText(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m := miner.New(miner.Options{}, miner.WithLogger(log.Discard()))
	res, err := m.AnalyzeFile(ctx, miner.FileInput{
		Path:     "a.js",
		Repaired: []byte("function f() { var x = 1; return x; }"),
	}, nil)
	require.NoError(t, err)

	var texts []string
	for _, a := range filterFunction(res.Facts, "f").Filter(annotate.DataXDef) {
		texts = append(texts, factText(res, a))
	}
	assert.Contains(t, texts, "x = 1")
	assert.Zero(t, filterFunction(res.Facts, "missing").Len())
}

func TestClip(t *testing.T) {
	assert.Equal(t, "abcdef", clip("abcdef", 0))
	assert.Equal(t, "abcdef", clip("abcdef", 6))
	assert.Equal(t, "ab...", clip("abcdef", 5))
}
