// Package flow runs the change-sensitive dataflow analysis over one CFG.
//
// The engine walks the graph with an explicit work stack. In the default
// path-insensitive mode a node fires once every predecessor has delivered a
// state. A loop header fires early, once, when every path into the loop has
// arrived but its back edges have not, so that the body is entered once.
// In path-sensitive mode every path is explored on its own and an edge is
// taken at most once per path. Either way the total number of edge
// traversals is bounded by a ceiling, past which the result is marked
// truncated.
package flow

import (
	"errors"

	"github.com/l3aro/go-commit-miner/pkg/astdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfg"
	"github.com/l3aro/go-commit-miner/pkg/domain"
)

// DefaultEdgeVisitCeiling bounds the edge traversals of one analysis run.
const DefaultEdgeVisitCeiling = 100000

// ErrNotFinalized is returned for graphs whose loop structure has not been
// computed.
var ErrNotFinalized = errors.New("cfg not finalized")

// Option configures an analysis run.
type Option func(*options)

type options struct {
	pathSensitive bool
	ceiling       int
	alloc         *domain.Allocator
	calls         CallResolver
}

// WithPathSensitive selects the path-sensitive walk.
func WithPathSensitive(on bool) Option {
	return func(o *options) { o.pathSensitive = on }
}

// WithEdgeVisitCeiling sets the maximum number of edge traversals.
// Non-positive values select DefaultEdgeVisitCeiling.
func WithEdgeVisitCeiling(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.ceiling = n
		}
	}
}

// WithAllocator sets the address allocator. Runs sharing an allocator
// never hand out the same address.
func WithAllocator(a *domain.Allocator) Option {
	return func(o *options) {
		if a != nil {
			o.alloc = a
		}
	}
}

// WithCallResolver sets the resolver consulted for call expressions.
func WithCallResolver(r CallResolver) Option {
	return func(o *options) { o.calls = r }
}

// Result holds the per-node states of one analysis run. Before is the
// state a statement executed in and After the state it produced; in
// path-sensitive mode both are joins over every path that reached the node.
type Result struct {
	CFG     *cfg.CFG
	Version astdiff.Version

	Before map[cfg.NodeID]*domain.State
	After  map[cfg.NodeID]*domain.State

	// EdgeVisits counts the traversals of every edge.
	EdgeVisits map[cfg.EdgeID]int
	// Visits is the total number of edge traversals.
	Visits int
	// Truncated is set when the run stopped at the edge-visit ceiling.
	Truncated bool
	// Degraded lists nodes whose statement could not be interpreted. Their
	// writes were set to an unknown change.
	Degraded []cfg.NodeID
}

func newResult(g *cfg.CFG, v astdiff.Version) *Result {
	return &Result{
		CFG:        g,
		Version:    v,
		Before:     make(map[cfg.NodeID]*domain.State),
		After:      make(map[cfg.NodeID]*domain.State),
		EdgeVisits: make(map[cfg.EdgeID]int),
	}
}

// Reached reports whether any state reached the node.
func (r *Result) Reached(id cfg.NodeID) bool {
	_, ok := r.Before[id]
	return ok
}

type work struct {
	edge  cfg.EdgeID
	state *domain.State
}

// Analyze runs the analysis over the version v side of a differenced CFG.
// The graph must have been finalized and labelled by control-flow
// differencing; m supplies the tree-level edit labels.
//
// Analyze is not safe for concurrent use on the same graph, because the
// join counters live on the graph nodes. Distinct graphs may be analysed in
// parallel.
func Analyze(g *cfg.CFG, m *astdiff.Mapping, v astdiff.Version, opts ...Option) (*Result, error) {
	o := options{ceiling: DefaultEdgeVisitCeiling, alloc: domain.DefaultAllocator}
	for _, opt := range opts {
		opt(&o)
	}
	for _, n := range g.Nodes {
		if n.IncomingEdges() != len(n.In) {
			return nil, ErrNotFinalized
		}
	}

	e := &engine{
		g:   g,
		it:  &interp{g: g, m: m, v: v, alloc: o.alloc, calls: o.calls},
		res: newResult(g, v),
		max: o.ceiling,
	}
	entry := e.it.entryState()
	if o.pathSensitive {
		e.runSensitive(entry)
	} else {
		e.runInsensitive(entry)
	}
	return e.res, nil
}

type engine struct {
	g     *cfg.CFG
	it    *interp
	res   *Result
	max   int
	stack []work
}

// next pops one work item and accounts for its traversal. It returns false
// when the stack is empty or the ceiling is hit.
func (e *engine) next() (work, bool) {
	if len(e.stack) == 0 {
		return work{}, false
	}
	if e.res.Visits >= e.max {
		e.res.Truncated = true
		e.stack = nil
		return work{}, false
	}
	w := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	e.res.Visits++
	e.res.EdgeVisits[w.edge]++
	return w, true
}

// push schedules edges so that the first one is processed first.
func (e *engine) push(edges []cfg.EdgeID, s *domain.State, skip func(cfg.EdgeID) bool) {
	for i := len(edges) - 1; i >= 0; i-- {
		id := edges[i]
		if skip != nil && skip(id) {
			continue
		}
		e.stack = append(e.stack, work{edge: id, state: s.Copy()})
	}
}

// fire scopes in to node id and runs its statement on a copy.
func (e *engine) fire(id cfg.NodeID, in *domain.State) *domain.State {
	n := e.g.Nodes[id]
	e.it.scope(in, n)
	out := in.Copy()
	if err := e.it.transferNode(out, n); err != nil {
		out = in.Copy()
		e.it.degrade(out, n.Stmt)
		e.res.Degraded = append(e.res.Degraded, id)
	}
	return out
}

func (e *engine) runInsensitive(entry *domain.State) {
	g := e.g
	g.ResetVisited()

	pending := make(map[cfg.NodeID]*domain.State)
	fired := make(map[cfg.NodeID]bool)
	entered := make(map[cfg.NodeID]bool)
	pushed := make(map[cfg.EdgeID]bool)
	once := func(id cfg.EdgeID) bool {
		if pushed[id] {
			return true
		}
		pushed[id] = true
		return false
	}

	e.res.Before[g.Entry] = entry
	e.res.After[g.Entry] = entry
	fired[g.Entry] = true
	e.push(g.Nodes[g.Entry].Out, entry, once)

	for {
		w, ok := e.next()
		if !ok {
			if e.res.Truncated {
				return
			}
			// Every remaining node waits for a predecessor that will never
			// deliver. Fire the lowest one with what it has.
			id, ok := lowestPending(pending, fired)
			if !ok {
				return
			}
			e.settle(id, pending[id], fired, once)
			continue
		}

		edge := g.Edges[w.edge]
		s := w.state
		e.it.transferEdge(s, edge)

		to := edge.To
		if prev, ok := pending[to]; ok {
			pending[to] = prev.Join(s)
		} else {
			pending[to] = s
		}
		node := g.Nodes[to]
		remaining := node.Visited()
		if !edge.Back {
			node.VisitedForward()
		}

		switch {
		case fired[to]:
			// A late arrival after a forced firing. Widen the recorded
			// input; successors already have their states.
			e.it.scope(s, node)
			e.res.Before[to] = e.res.Before[to].Join(s)
		case remaining == 0:
			e.settle(to, pending[to], fired, once)
		case g.IsLoopHeader(to) && !entered[to] && node.IsForwardVisited():
			// Every path into the loop has arrived; only back edges are
			// outstanding.
			entered[to] = true
			in := pending[to].Copy()
			e.res.Before[to] = in
			out := e.fire(to, in)
			e.res.After[to] = out
			e.push(g.LoopEdges(to), out, once)
		}
	}
}

func (e *engine) settle(id cfg.NodeID, in *domain.State, fired map[cfg.NodeID]bool, once func(cfg.EdgeID) bool) {
	fired[id] = true
	e.res.Before[id] = in
	out := e.fire(id, in)
	e.res.After[id] = out
	e.push(e.g.Nodes[id].Out, out, once)
}

func lowestPending(pending map[cfg.NodeID]*domain.State, fired map[cfg.NodeID]bool) (cfg.NodeID, bool) {
	best, found := cfg.NoNode, false
	for id := range pending {
		if fired[id] {
			continue
		}
		if !found || id < best {
			best, found = id, true
		}
	}
	return best, found
}

func (e *engine) runSensitive(entry *domain.State) {
	g := e.g
	e.res.Before[g.Entry] = entry
	e.res.After[g.Entry] = entry

	taken := func(s *domain.State) func(cfg.EdgeID) bool {
		return func(id cfg.EdgeID) bool { return s.Visits(int(id)) > 0 }
	}
	e.push(g.Nodes[g.Entry].Out, entry, taken(entry))

	for {
		w, ok := e.next()
		if !ok {
			return
		}
		edge := g.Edges[w.edge]
		s := w.state
		s.Visit(int(w.edge))
		e.it.transferEdge(s, edge)

		to := edge.To
		out := e.fire(to, s)
		e.record(to, s, out)
		if to == g.Exit {
			continue
		}
		e.push(g.Nodes[to].Out, out, taken(out))
	}
}

func (e *engine) record(id cfg.NodeID, in, out *domain.State) {
	if prev, ok := e.res.Before[id]; ok {
		in = prev.Join(in)
	}
	if prev, ok := e.res.After[id]; ok {
		out = prev.Join(out)
	}
	e.res.Before[id] = in
	e.res.After[id] = out
}
