package miner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-commit-miner/internal/log"
	"github.com/l3aro/go-commit-miner/pkg/facts"
)

// Job is one file of a batch. Content is read from BuggyPath and
// RepairedPath when they are set; an empty path stands for a missing side.
type Job struct {
	FileInput
	BuggyPath    string
	RepairedPath string
}

func (j *Job) load() error {
	read := func(path string, dst *[]byte) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		*dst = data
		return nil
	}
	if err := read(j.BuggyPath, &j.Buggy); err != nil {
		return err
	}
	return read(j.RepairedPath, &j.Repaired)
}

// SinkFactory returns the sink receiving the facts of one file.
type SinkFactory func(file, commit string) facts.Sink

// Summary counts the outcome of a batch.
type Summary struct {
	Files     int
	Failed    int
	Functions int
	Skipped   int
	Truncated int
	Cached    int
	Facts     int
}

// Runner analyzes files on a fixed number of workers.
type Runner struct {
	Miner   *Miner
	Workers int
	// Sinks is optional; without it facts are only counted.
	Sinks SinkFactory
	// OnFile is called after every analyzed file, from the worker that
	// analyzed it.
	OnFile func(*FileResult, error)
	Logger log.Logger
}

// Run analyzes jobs until all are done or ctx is canceled. A failing file
// is logged and counted, never fatal to the batch; Run only returns an
// error when ctx ends early.
func (r *Runner) Run(ctx context.Context, jobs []Job) (Summary, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.Default()
	}
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		mu  sync.Mutex
		sum Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range jobs {
		if gctx.Err() != nil {
			break
		}
		job := jobs[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var sink facts.Sink
			if r.Sinks != nil {
				sink = r.Sinks(job.Path, job.Commit)
			}

			res, err := r.analyze(gctx, &job, sink)
			if r.OnFile != nil {
				r.OnFile(res, err)
			}

			mu.Lock()
			defer mu.Unlock()
			sum.Files++
			if res != nil {
				sum.Facts += res.Facts.Len()
				sum.Skipped += len(res.Skipped)
				for _, f := range res.Functions {
					sum.Functions++
					if f.Truncated {
						sum.Truncated++
					}
					if f.Cached {
						sum.Cached++
					}
				}
			}
			if err == nil {
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			sum.Failed++
			logger.Warn("skipping file", "file", job.Path, "commit", job.Commit, "error", err)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return sum, err
}

func (r *Runner) analyze(ctx context.Context, job *Job, sink facts.Sink) (*FileResult, error) {
	if err := job.load(); err != nil {
		return nil, err
	}
	return r.Miner.AnalyzeFile(ctx, job.FileInput, sink)
}
