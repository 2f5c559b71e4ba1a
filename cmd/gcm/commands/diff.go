package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-commit-miner/pkg/ast"
	"github.com/l3aro/go-commit-miner/pkg/astdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfg"
)

// diffCmd represents the diff command
var diffCmd = &cobra.Command{
	Use:   "diff <buggy.js> <repaired.js>",
	Short: "Show the control flow changes between two versions",
	Long: `Matches the syntax trees of two versions of a JavaScript file, pairs
their functions and labels every control flow edge as unchanged,
inserted, removed, updated or moved. Only edited statements and edges
are listed unless --all is given.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var files [2]*ast.File
		for i, path := range args {
			content, err := readFile(path)
			if err != nil {
				return err
			}
			if files[i], err = ast.ParseSource(path, content); err != nil {
				return fmt.Errorf("parsing %s: %w", path, err)
			}
		}

		m := astdiff.Match(files[astdiff.Source], files[astdiff.Destination])
		src, err := cfg.BuildFile(files[astdiff.Source])
		if err != nil {
			return fmt.Errorf("building CFG: %w", err)
		}
		dst, err := cfg.BuildFile(files[astdiff.Destination])
		if err != nil {
			return fmt.Errorf("building CFG: %w", err)
		}

		all, _ := cmd.Flags().GetBool("all")
		diffs := make([]functionDiff, 0)
		for _, p := range cfdiff.Difference(m, src, dst) {
			d := newFunctionDiff(m, p, all)
			if all || d.Edited() {
				diffs = append(diffs, d)
			}
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return printJSON(diffs)
		}
		if len(diffs) == 0 {
			fmt.Println("No control flow changes")
			return nil
		}
		for _, d := range diffs {
			printFunctionDiff(d)
		}
		return nil
	},
}

// statementChange is a statement of one version and its edit label.
type statementChange struct {
	Version   string `json:"version"`
	Line      int    `json:"line"`
	Statement string `json:"statement"`
	Change    string `json:"change"`
}

// edgeChange is an edge of one version and its differencing label.
type edgeChange struct {
	Version string       `json:"version"`
	Edge    cfg.EdgeInfo `json:"edge"`
	From    string       `json:"from"`
	To      string       `json:"to"`
}

// functionDiff collects the changes of one function pair.
type functionDiff struct {
	Function   string            `json:"function"`
	Status     string            `json:"status"`
	Statements []statementChange `json:"statements,omitempty"`
	Edges      []edgeChange      `json:"edges,omitempty"`
}

// Edited reports whether anything in the function changed.
func (d functionDiff) Edited() bool {
	return d.Status != "matched" || len(d.Statements) > 0 || len(d.Edges) > 0
}

func newFunctionDiff(m *astdiff.Mapping, p cfdiff.Pair, all bool) functionDiff {
	d := functionDiff{Function: p.Name(), Status: "matched"}
	switch {
	case p.Src == nil:
		d.Status = "added"
	case p.Dst == nil:
		d.Status = "removed"
	}

	graphs := [2]*cfg.CFG{astdiff.Source: p.Src, astdiff.Destination: p.Dst}
	for _, v := range []astdiff.Version{astdiff.Source, astdiff.Destination} {
		g := graphs[v]
		if g == nil {
			continue
		}
		info := g.Info(m.File(v).Source)
		for _, n := range g.Nodes {
			if n.Stmt == nil {
				continue
			}
			c := m.ChangeOf(v, n.Stmt)
			if !all && c == astdiff.Unchanged {
				continue
			}
			d.Statements = append(d.Statements, statementChange{
				Version:   v.String(),
				Line:      n.Stmt.Line,
				Statement: info.Nodes[n.ID].Statement,
				Change:    c.String(),
			})
		}
		for i, e := range g.Edges {
			if !all && e.Change == astdiff.Unchanged && !e.Diverged {
				continue
			}
			d.Edges = append(d.Edges, edgeChange{
				Version: v.String(),
				Edge:    info.Edges[i],
				From:    nodeLabel(info, e.From),
				To:      nodeLabel(info, e.To),
			})
		}
	}
	return d
}

func nodeLabel(info *cfg.Info, id cfg.NodeID) string {
	n := info.Nodes[id]
	if n.Statement == "" {
		return string(n.Type)
	}
	return n.Statement
}

func printFunctionDiff(d functionDiff) {
	fmt.Printf("=== %s (%s) ===\n", d.Function, d.Status)
	if len(d.Statements) > 0 {
		fmt.Println("Statements:")
		for _, s := range d.Statements {
			fmt.Printf("  %-11s %-9s line %-4d %s\n", s.Version, s.Change, s.Line, s.Statement)
		}
	}
	if len(d.Edges) > 0 {
		fmt.Println("Edges:")
		for _, e := range d.Edges {
			fmt.Printf("  %-11s %-9s %s --%s--> %s%s\n", e.Version, e.Edge.Change, e.From, e.Edge.EdgeType, e.To, edgeSuffix(e.Edge))
		}
	}
	fmt.Println()
}

func init() {
	diffCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	diffCmd.Flags().Bool("all", false, "Also list unchanged statements and edges")
	RootCmd.AddCommand(diffCmd)
}
