package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-commit-miner/internal/log"
	"github.com/l3aro/go-commit-miner/pkg/annotate"
	"github.com/l3aro/go-commit-miner/pkg/astdiff"
	"github.com/l3aro/go-commit-miner/pkg/facts"
	"github.com/l3aro/go-commit-miner/pkg/miner"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <buggy.js> <repaired.js>",
	Short: "Mine facts from one buggy/repaired file pair",
	Long: `Analyzes every function of a JavaScript file in its buggy and repaired
versions and prints the change-sensitive facts of both versions.

Pass an empty string for a version that does not exist, e.g. for a file
added by the fix.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if args[0] == "" && args[1] == "" {
			return fmt.Errorf("at least one version is required")
		}

		buggy, err := readFile(args[0])
		if err != nil {
			return err
		}
		repaired, err := readFile(args[1])
		if err != nil {
			return err
		}

		s, err := newSession(cfg)
		if err != nil {
			return err
		}

		path := args[1]
		if path == "" {
			path = args[0]
		}
		commit, _ := cmd.Flags().GetString("commit")

		ctx, cancel := signalContext()
		defer cancel()
		res, err := s.miner.AnalyzeFile(ctx, miner.FileInput{
			Path:     path,
			Commit:   commit,
			Buggy:    buggy,
			Repaired: repaired,
		}, nil)
		if err != nil {
			return fmt.Errorf("analyzing %s: %w", path, err)
		}
		if err := s.close(); err != nil {
			return err
		}

		set := res.Facts
		if fn, _ := cmd.Flags().GetString("function"); fn != "" {
			set = filterFunction(set, fn)
		}

		if output, _ := cmd.Flags().GetString("output"); output != "" {
			format, _ := cmd.Flags().GetString("format")
			if err := writeFacts(output, format, path, commit, set); err != nil {
				return err
			}
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, err := json.MarshalIndent(factViews(res, set), "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		printFacts(res, set)
		return nil
	},
}

func filterFunction(set *annotate.Set, fn string) *annotate.Set {
	out := annotate.NewSet()
	for _, a := range set.Slice() {
		if a.Function == fn {
			out.Add(a)
		}
	}
	return out
}

func writeFacts(path, format, file, commit string, set *annotate.Set) error {
	f, err := facts.ParseFormat(format)
	if err != nil {
		return err
	}
	w, err := facts.Create(path, f)
	if err != nil {
		return err
	}
	if err := facts.Emit(w.For(file, commit), set); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// factView is an annotation together with the source text it covers.
type factView struct {
	annotate.Annotation
	Text string `json:"text"`
}

func factViews(res *miner.FileResult, set *annotate.Set) []factView {
	views := make([]factView, 0, set.Len())
	for _, a := range set.Slice() {
		views = append(views, factView{Annotation: a, Text: factText(res, a)})
	}
	return views
}

func factText(res *miner.FileResult, a annotate.Annotation) string {
	v := astdiff.Source
	if a.Version == astdiff.Destination.String() {
		v = astdiff.Destination
	}
	f := res.Files[v]
	if f == nil || a.AbsolutePosition < 0 || a.AbsolutePosition+a.Length > len(f.Source) {
		return ""
	}
	text := string(f.Source[a.AbsolutePosition : a.AbsolutePosition+a.Length])
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i] + " ..."
	}
	return text
}

func printFacts(res *miner.FileResult, set *annotate.Set) {
	type group struct{ version, function string }
	groups := make(map[group][]annotate.Annotation)
	var order []group
	for _, a := range set.Slice() {
		g := group{a.Version, a.Function}
		if _, ok := groups[g]; !ok {
			order = append(order, g)
		}
		groups[g] = append(groups[g], a)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].version != order[j].version {
			return order[i].version < order[j].version
		}
		return order[i].function < order[j].function
	})

	width := log.TerminalWidth()
	for _, g := range order {
		fmt.Printf("=== %s: %s ===\n", g.version, g.function)
		for _, a := range groups[g] {
			line := fmt.Sprintf("  %-12s line %-4d [%d+%d]", a.Label, a.Line, a.AbsolutePosition, a.Length)
			if len(a.DependencyIDs) > 0 {
				line += fmt.Sprintf(" deps %v", a.DependencyIDs)
			}
			line += "  " + factText(res, a)
			fmt.Println(clip(line, width))
		}
		fmt.Println()
	}

	fmt.Printf("Functions: %d", len(res.Functions))
	if len(res.Skipped) > 0 {
		fmt.Printf(" (%d skipped)", len(res.Skipped))
	}
	fmt.Printf(", facts: %d\n", set.Len())
	for _, sk := range res.Skipped {
		fmt.Printf("  skipped %s: %v\n", sk.Function, sk.Err)
	}
	for _, r := range res.Functions {
		if r.Truncated {
			fmt.Printf("  %s: edge-visit ceiling reached, facts are partial\n", r.Function)
		}
	}
}

// clip shortens line to width runes. Widths too small to clip, including
// zero for a non-terminal, leave it alone.
func clip(line string, width int) string {
	r := []rune(line)
	if width <= 3 || len(r) <= width {
		return line
	}
	return string(r[:width-3]) + "..."
}

func init() {
	analyzeCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	analyzeCmd.Flags().StringP("output", "o", "", "Also write the facts to this file (- for stdout)")
	analyzeCmd.Flags().String("format", string(facts.FormatJSONL), "Fact file format (jsonl or msgpack)")
	analyzeCmd.Flags().StringP("function", "f", "", "Only report facts of this function")
	analyzeCmd.Flags().String("commit", "", "Commit the fix belongs to")
	RootCmd.AddCommand(analyzeCmd)
}
