package miner

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/l3aro/go-commit-miner/internal/log"
	"github.com/l3aro/go-commit-miner/pkg/annotate"
	"github.com/l3aro/go-commit-miner/pkg/ast"
	"github.com/l3aro/go-commit-miner/pkg/astdiff"
	"github.com/l3aro/go-commit-miner/pkg/cache"
	"github.com/l3aro/go-commit-miner/pkg/callgraph"
	"github.com/l3aro/go-commit-miner/pkg/cfdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfg"
	"github.com/l3aro/go-commit-miner/pkg/domain"
	"github.com/l3aro/go-commit-miner/pkg/facts"
)

// Miner analyzes buggy/repaired file pairs.
type Miner struct {
	opts   Options
	parser *ast.Parser
	cache  *cache.ResultCache
	logger log.Logger
}

// Option configures a Miner.
type Option func(*Miner)

// WithCache memoizes function results in c.
func WithCache(c *cache.ResultCache) Option {
	return func(m *Miner) { m.cache = c }
}

// WithLogger sets the logger used for skips and truncations.
func WithLogger(l log.Logger) Option {
	return func(m *Miner) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithParser sets the parser for both versions.
func WithParser(p *ast.Parser) Option {
	return func(m *Miner) {
		if p != nil {
			m.parser = p
		}
	}
}

// New returns a miner analyzing functions with opts.
func New(opts Options, options ...Option) *Miner {
	m := &Miner{
		opts:   opts,
		parser: ast.NewParser(),
		logger: log.Default(),
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// FileInput is the content of one file before and after a fix. An empty
// side stands for a file that was added or deleted.
type FileInput struct {
	Path     string
	Commit   string
	Buggy    []byte
	Repaired []byte
}

// Skip records a function that could not be analyzed.
type Skip struct {
	Function string
	Err      error
}

// FileResult holds the facts of both versions of a file.
type FileResult struct {
	Path      string
	Commit    string
	Facts     *annotate.Set
	Functions []Report
	Skipped   []Skip
	// Files stores the parsed versions, indexed by astdiff.Version.
	Files    [2]*ast.File
	Duration time.Duration
}

// Truncated reports whether any function stopped at the edge-visit
// ceiling.
func (r *FileResult) Truncated() bool {
	for _, f := range r.Functions {
		if f.Truncated {
			return true
		}
	}
	return false
}

// AnalyzeFile parses both versions of a file, matches them and analyzes
// every function pair. Functions that cannot be analyzed are logged and
// skipped. When sink is not nil the file's facts are registered with it in
// set order once the file is done.
//
// Panics raised while analyzing are returned as ErrAnalysisPanic, except
// for address allocator defects, which are not recoverable.
func (m *Miner) AnalyzeFile(ctx context.Context, in FileInput, sink facts.Sink) (res *FileResult, err error) {
	start := time.Now()
	logger := m.logger.With("file", in.Path, "commit", in.Commit)

	defer func() {
		if r := recover(); r != nil {
			if d, ok := r.(domain.Defect); ok {
				panic(d)
			}
			logger.Debug("analysis panic", "panic", r, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("%w: %s: %v", ErrAnalysisPanic, in.Path, r)
		}
	}()

	src, err := m.parser.Parse(ctx, in.Path, in.Buggy)
	if err != nil {
		return nil, fmt.Errorf("buggy version: %w", err)
	}
	dst, err := m.parser.Parse(ctx, in.Path, in.Repaired)
	if err != nil {
		return nil, fmt.Errorf("repaired version: %w", err)
	}
	if src.HasErrors || dst.HasErrors {
		logger.Debug("syntax errors recovered", "buggy", src.HasErrors, "repaired", dst.HasErrors)
	}

	res = &FileResult{
		Path:   in.Path,
		Commit: in.Commit,
		Facts:  annotate.NewSet(),
		Files:  [2]*ast.File{astdiff.Source: src, astdiff.Destination: dst},
	}

	mapping := astdiff.Match(src, dst)
	srcGraphs, dstGraphs := m.buildGraphs(mapping, res, logger)
	pairs := cfdiff.Difference(mapping, srcGraphs, dstGraphs)

	opts := m.opts
	if opts.Calls == nil {
		opts.Calls = callgraph.NewChangeResolver(mapping)
	}

	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rep, err := m.analyzePair(ctx, in, FunctionPair{CFGs: p, Mapping: mapping}, opts, res.Facts)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logger.Warn("skipping function", "function", p.Name(), "error", err)
			res.Skipped = append(res.Skipped, Skip{Function: p.Name(), Err: err})
			continue
		}
		if rep.Truncated {
			logger.Info("edge-visit ceiling reached, facts are partial", "function", rep.Function)
		}
		if rep.Degraded > 0 {
			logger.Debug("statements degraded to unknown", "function", rep.Function, "count", rep.Degraded)
		}
		res.Functions = append(res.Functions, rep)
	}

	if sink != nil {
		if err := facts.Emit(sink, res.Facts); err != nil {
			return res, fmt.Errorf("register facts of %s: %w", in.Path, err)
		}
	}
	res.Duration = time.Since(start)
	return res, nil
}

// analyzePair analyzes one function pair through the cache and merges its
// facts into out.
func (m *Miner) analyzePair(ctx context.Context, in FileInput, p FunctionPair, opts Options, out *annotate.Set) (Report, error) {
	var key string
	if m.cache != nil {
		key = cache.Key(in.Buggy, in.Repaired, pairID(p.CFGs), opts.cacheTags()...)
		if e, ok := m.cache.Get(key); ok {
			set := annotate.NewSet()
			for _, a := range e.Facts {
				set.Add(a)
			}
			out.Merge(set)
			return Report{
				Function:  p.CFGs.Name(),
				Truncated: e.Truncated,
				Degraded:  e.Degraded,
				Cached:    true,
				Facts:     set.Counts(),
			}, nil
		}
	}

	set, rep, err := AnalyzeFunction(ctx, p, opts)
	if err != nil {
		return rep, err
	}
	out.Merge(set)
	if m.cache != nil {
		m.cache.Set(key, cache.Entry{Facts: set.Slice(), Truncated: rep.Truncated, Degraded: rep.Degraded})
	}
	return rep, nil
}

// pairID distinguishes functions sharing a name by their entry offsets.
func pairID(p cfdiff.Pair) string {
	offset := func(g *cfg.CFG) int {
		if g == nil || g.Function == nil {
			return -1
		}
		return g.Function.Offset
	}
	return fmt.Sprintf("%s@%d:%d", p.Name(), offset(p.Src), offset(p.Dst))
}

// buildGraphs builds the CFG of every function of both versions. A function
// whose graph cannot be built is skipped together with its partner, so that
// the other version is not analyzed as if the function had been added or
// removed.
func (m *Miner) buildGraphs(mapping *astdiff.Mapping, res *FileResult, logger log.Logger) (src, dst []*cfg.CFG) {
	var built [2][]*cfg.CFG
	failed := [2]map[ast.NodeID]bool{{}, {}}

	for _, v := range []astdiff.Version{astdiff.Source, astdiff.Destination} {
		for _, fn := range mapping.File(v).Functions() {
			g, err := cfg.Build(fn)
			if err != nil {
				name := ast.FunctionName(fn)
				logger.Warn("skipping function", "function", name, "version", v.String(), "error", err)
				res.Skipped = append(res.Skipped, Skip{Function: name, Err: fmt.Errorf("%w: %s: %w", ErrInvalidCFG, v, err)})
				failed[v][fn.ID] = true
				if partner, ok := mapping.Partner(v, fn.ID); ok {
					failed[v.Other()][partner] = true
				}
				continue
			}
			built[v] = append(built[v], g)
		}
	}

	keep := func(v astdiff.Version) []*cfg.CFG {
		var out []*cfg.CFG
		for _, g := range built[v] {
			if !failed[v][g.Function.ID] {
				out = append(out, g)
			}
		}
		return out
	}
	return keep(astdiff.Source), keep(astdiff.Destination)
}
