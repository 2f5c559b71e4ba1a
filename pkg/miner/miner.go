// Package miner drives the analysis over function pairs, files and whole
// batches of buggy/repaired files.
package miner

import (
	"context"
	"errors"
	"fmt"

	"github.com/l3aro/go-commit-miner/pkg/annotate"
	"github.com/l3aro/go-commit-miner/pkg/astdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfg"
	"github.com/l3aro/go-commit-miner/pkg/domain"
	"github.com/l3aro/go-commit-miner/pkg/flow"
)

var (
	// ErrMissingMapping is returned when a function pair has no tree
	// mapping to analyze against.
	ErrMissingMapping = errors.New("missing node mapping")
	// ErrInvalidCFG is returned for graphs the analysis cannot walk.
	ErrInvalidCFG = errors.New("invalid cfg")
	// ErrAnalysisPanic is returned when analyzing a file panicked.
	ErrAnalysisPanic = errors.New("analysis panicked")
)

// Options configures the analysis of one function pair.
type Options struct {
	PathSensitive    bool
	EdgeVisitCeiling int
	// Allocator defaults to domain.DefaultAllocator.
	Allocator *domain.Allocator
	// Calls resolves call expressions. AnalyzeFile installs a call graph
	// resolver when it is nil.
	Calls flow.CallResolver
}

func (o Options) flow() []flow.Option {
	return []flow.Option{
		flow.WithPathSensitive(o.PathSensitive),
		flow.WithEdgeVisitCeiling(o.EdgeVisitCeiling),
		flow.WithAllocator(o.Allocator),
		flow.WithCallResolver(o.Calls),
	}
}

// cacheTags lists the options that change analysis results.
func (o Options) cacheTags() []string {
	ceiling := o.EdgeVisitCeiling
	if ceiling <= 0 {
		ceiling = flow.DefaultEdgeVisitCeiling
	}
	return []string{
		fmt.Sprintf("path_sensitive=%t", o.PathSensitive),
		fmt.Sprintf("edge_visit_ceiling=%d", ceiling),
	}
}

// FunctionPair is one function in both versions together with the tree
// mapping its graphs were differenced against.
type FunctionPair struct {
	CFGs    cfdiff.Pair
	Mapping *astdiff.Mapping
}

// Report summarizes the analysis of one function pair.
type Report struct {
	Function   string
	Truncated  bool
	Degraded   int
	EdgeVisits int
	Cached     bool
	Facts      map[annotate.Label]int
}

// AnalyzeFunction runs the analysis over each side of p and returns the
// facts of both versions. A side that stopped at the edge-visit ceiling
// contributes its partial facts and marks the report truncated.
func AnalyzeFunction(ctx context.Context, p FunctionPair, opts Options) (*annotate.Set, Report, error) {
	r := Report{Function: p.CFGs.Name()}
	if err := ctx.Err(); err != nil {
		return nil, r, err
	}
	if p.Mapping == nil {
		return nil, r, ErrMissingMapping
	}

	set := annotate.NewSet()
	sides := [2]*cfg.CFG{astdiff.Source: p.CFGs.Src, astdiff.Destination: p.CFGs.Dst}
	for v, g := range sides {
		if g == nil {
			continue
		}
		version := astdiff.Version(v)
		if err := g.Validate(); err != nil {
			return nil, r, fmt.Errorf("%w: %s %s: %w", ErrInvalidCFG, version, r.Function, err)
		}
		res, err := flow.Analyze(g, p.Mapping, version, opts.flow()...)
		if err != nil {
			return nil, r, fmt.Errorf("%w: %s %s: %w", ErrInvalidCFG, version, r.Function, err)
		}
		r.Truncated = r.Truncated || res.Truncated
		r.Degraded += len(res.Degraded)
		r.EdgeVisits += res.Visits
		set.Merge(annotate.Annotate(res, p.Mapping))
	}
	r.Facts = set.Counts()
	return set, r, nil
}
