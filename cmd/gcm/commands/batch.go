package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-commit-miner/internal/log"
	"github.com/l3aro/go-commit-miner/internal/scanner"
	"github.com/l3aro/go-commit-miner/pkg/facts"
	"github.com/l3aro/go-commit-miner/pkg/miner"
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <buggy-dir> <repaired-dir>",
	Short: "Mine facts from a buggy and a repaired source tree",
	Long: `Pairs the JavaScript files of two checkouts by relative path and mines
the facts of every pair on a pool of workers. Facts are written as one
record per line (jsonl) or as a msgpack stream.

Files that cannot be analyzed are reported and skipped.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("workers") {
			cfg.Workers, _ = flags.GetInt("workers")
		}
		if flags.Changed("output") {
			cfg.OutputPath, _ = flags.GetString("output")
		}
		if flags.Changed("format") {
			format, _ := flags.GetString("format")
			if cfg.OutputFormat, err = facts.ParseFormat(format); err != nil {
				return err
			}
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		commit, _ := flags.GetString("commit")

		opts := scanner.DefaultOptions()
		opts.IgnoreFileName = filepath.Base(cfg.IgnoreFile)
		pairs, err := scanner.New(opts).PairTrees(args[0], args[1])
		if err != nil {
			return fmt.Errorf("scanning: %w", err)
		}
		jobs := make([]miner.Job, len(pairs))
		for i, p := range pairs {
			jobs[i] = miner.Job{
				FileInput:    miner.FileInput{Path: p.Path, Commit: commit},
				BuggyPath:    p.Buggy,
				RepairedPath: p.Repaired,
			}
		}

		s, err := newSession(cfg)
		if err != nil {
			return err
		}
		w, err := facts.Create(cfg.OutputPath, cfg.OutputFormat)
		if err != nil {
			return err
		}

		spinner := log.NewProgressSpinner(fmt.Sprintf("Analyzing %d files...", len(jobs)))
		var done atomic.Int64
		runner := &miner.Runner{
			Miner:   s.miner,
			Workers: cfg.Workers,
			Logger:  s.logger,
			Sinks: func(file, commit string) facts.Sink {
				return w.For(file, commit)
			},
			OnFile: func(*miner.FileResult, error) {
				spinner.Message(fmt.Sprintf("Analyzing files... %d/%d", done.Add(1), len(jobs)))
			},
		}

		ctx, cancel := signalContext()
		defer cancel()
		start := time.Now()
		spinner.Start()
		sum, runErr := runner.Run(ctx, jobs)
		spinner.Stop()

		if err := w.Close(); err != nil {
			return err
		}
		if err := s.close(); err != nil {
			return err
		}

		// Keep stdout clean for the facts when they go there.
		out := io.Writer(os.Stdout)
		if cfg.OutputPath == "-" || cfg.OutputPath == "" {
			out = os.Stderr
		}
		if jsonOutput, _ := flags.GetBool("json"); jsonOutput {
			data, err := json.MarshalIndent(sum, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
		} else {
			printSummary(out, sum, time.Since(start))
		}

		if runErr != nil {
			return fmt.Errorf("batch interrupted: %w", runErr)
		}
		return nil
	},
}

func printSummary(w io.Writer, sum miner.Summary, elapsed time.Duration) {
	fmt.Fprintf(w, "Files:     %d (%d failed)\n", sum.Files, sum.Failed)
	fmt.Fprintf(w, "Functions: %d (%d skipped, %d truncated, %d cached)\n",
		sum.Functions, sum.Skipped, sum.Truncated, sum.Cached)
	fmt.Fprintf(w, "Facts:     %d\n", sum.Facts)
	fmt.Fprintf(w, "Elapsed:   %s\n", elapsed.Round(time.Millisecond))
}

func init() {
	batchCmd.Flags().BoolP("json", "j", false, "Print the summary as JSON")
	batchCmd.Flags().IntP("workers", "w", 0, "Number of files analyzed concurrently (default: config value)")
	batchCmd.Flags().StringP("output", "o", "", "Fact file (- for stdout, default: config value)")
	batchCmd.Flags().String("format", "", "Fact file format, jsonl or msgpack (default: config value)")
	batchCmd.Flags().String("commit", "", "Commit the fix belongs to")
	RootCmd.AddCommand(batchCmd)
}
