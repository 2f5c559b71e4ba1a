package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-commit-miner/internal/scanner"
	"github.com/l3aro/go-commit-miner/pkg/ast"
	"github.com/l3aro/go-commit-miner/pkg/cfg"
)

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <file> [function]",
	Short: "Display the control flow graph of a function",
	Long: `Builds the statement-level Control Flow Graph (CFG) of a function in a
JavaScript file. Without a function name every function of the file is
listed with its cyclomatic complexity. Top-level code is named <script>.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath := args[0]
		if !scanner.IsJavaScript(filePath) {
			return fmt.Errorf("unsupported file type: %s (only JavaScript files supported)", filePath)
		}
		content, err := readFile(filePath)
		if err != nil {
			return err
		}

		f, err := ast.ParseSource(filePath, content)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", filePath, err)
		}
		graphs, err := cfg.BuildFile(f)
		if err != nil {
			return fmt.Errorf("building CFG: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")

		if len(args) == 1 {
			infos := make([]*cfg.Info, len(graphs))
			for i, g := range graphs {
				infos[i] = g.Info(f.Source)
			}
			if jsonOutput {
				return printJSON(infos)
			}
			for _, info := range infos {
				fmt.Printf("%-30s complexity %d, %d nodes\n", info.FunctionName, info.CyclomaticComplexity, len(info.Nodes))
			}
			return nil
		}

		functionName := args[1]
		g, err := cfg.Find(graphs, functionName)
		if err != nil {
			if errors.Is(err, cfg.ErrFunctionNotFound) {
				if suggestions := findSimilarFunctions(graphs, functionName); len(suggestions) > 0 {
					return fmt.Errorf("function %q not found in %s\nDid you mean: %s?", functionName, filePath, suggestions[0])
				}
				return fmt.Errorf("function %q not found in %s", functionName, filePath)
			}
			return err
		}

		info := g.Info(f.Source)
		if jsonOutput {
			return printJSON(info)
		}
		printCFGInfo(info)
		return nil
	},
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// findSimilarFunctions finds functions with similar names (case-insensitive prefix/contains match).
func findSimilarFunctions(graphs []*cfg.CFG, funcName string) []string {
	want := strings.ToLower(funcName)
	var out []string
	for _, g := range graphs {
		name := strings.ToLower(g.Name)
		if strings.HasPrefix(name, want) || strings.Contains(name, want) || strings.Contains(want, name) {
			out = append(out, g.Name)
		}
	}
	return out
}

// printCFGInfo prints CFG information in human-readable format.
func printCFGInfo(info *cfg.Info) {
	fmt.Printf("=== CFG for function: %s ===\n", info.FunctionName)
	fmt.Printf("Cyclomatic Complexity: %d\n", info.CyclomaticComplexity)
	fmt.Printf("Entry Node: %d\n", info.EntryID)
	fmt.Printf("Exit Node: %d\n", info.ExitID)
	fmt.Printf("\nNodes (%d):\n", len(info.Nodes))
	for _, n := range info.Nodes {
		if n.Statement == "" {
			fmt.Printf("  %d (%s)\n", n.ID, n.Type)
			continue
		}
		fmt.Printf("  %d (%s, line %d) %s\n", n.ID, n.Type, n.Line, n.Statement)
	}

	fmt.Printf("\nEdges (%d):\n", len(info.Edges))
	for _, e := range info.Edges {
		fmt.Printf("  %d --%s--> %d%s\n", e.SourceID, e.EdgeType, e.TargetID, edgeSuffix(e))
	}
}

func edgeSuffix(e cfg.EdgeInfo) string {
	var parts []string
	if e.Condition != "" {
		cond := e.Condition
		if e.Negated {
			cond = "!(" + cond + ")"
		}
		parts = append(parts, cond)
	}
	if e.Back {
		parts = append(parts, "back")
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, ", ") + "]"
}

func init() {
	cfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(cfgCmd)
}
