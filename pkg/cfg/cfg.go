package cfg

import (
	"errors"
	"fmt"

	"github.com/yourbasic/graph"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/flow"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/l3aro/go-commit-miner/pkg/ast"
)

var (
	// ErrUnreachableNode is returned by Validate when an edge leaves a node
	// that cannot be reached from the entry.
	ErrUnreachableNode = errors.New("edge from unreachable node")
	// ErrFunctionNotFound is returned when a named function has no CFG.
	ErrFunctionNotFound = errors.New("function not found")
)

// CFG is the control flow graph of one function or of the top-level script.
type CFG struct {
	Function *ast.Node
	Name     string
	Entry    NodeID
	Exit     NodeID
	Nodes    []*Node
	Edges    []*Edge

	byStmt    map[ast.NodeID]NodeID
	loopEdges map[NodeID][]EdgeID
}

// New creates a CFG for fn holding only an entry and an exit node.
func New(fn *ast.Node) *CFG {
	g := &CFG{
		Function:  fn,
		Name:      ast.FunctionName(fn),
		byStmt:    make(map[ast.NodeID]NodeID),
		loopEdges: make(map[NodeID][]EdgeID),
	}
	g.Entry = g.AddNode(NodeTypeEntry, nil).ID
	g.Exit = g.AddNode(NodeTypeExit, nil).ID
	return g
}

// EntryStatement returns the AST node that identifies the CFG across
// versions: the function node, or the program for the script.
func (g *CFG) EntryStatement() *ast.Node { return g.Function }

// AddNode appends a node. Statement and branch nodes are indexed by their
// AST node.
func (g *CFG) AddNode(typ NodeType, stmt *ast.Node) *Node {
	n := &Node{ID: NodeID(len(g.Nodes)), Type: typ, Stmt: stmt, Mapped: NoNode}
	g.Nodes = append(g.Nodes, n)
	if stmt != nil {
		if _, ok := g.byStmt[stmt.ID]; !ok {
			g.byStmt[stmt.ID] = n.ID
		}
	}
	return n
}

// Node returns the node with the given ID or nil.
func (g *CFG) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.Nodes) {
		return nil
	}
	return g.Nodes[id]
}

// Edge returns the edge with the given ID or nil.
func (g *CFG) Edge(id EdgeID) *Edge {
	if id < 0 || int(id) >= len(g.Edges) {
		return nil
	}
	return g.Edges[id]
}

// NodeFor returns the node whose statement is stmt.
func (g *CFG) NodeFor(stmt *ast.Node) (*Node, bool) {
	if stmt == nil {
		return nil, false
	}
	id, ok := g.byStmt[stmt.ID]
	if !ok {
		return nil, false
	}
	return g.Nodes[id], true
}

// AddEdge adds an edge from one node to another and returns its ID.
//
// Edges are identified by source node, condition and polarity: adding an
// edge whose key already exists retargets the existing edge instead of
// creating a parallel one. A nil condition denotes the single unconditional
// successor of the source.
func (g *CFG) AddEdge(from, to NodeID, cond *ast.Node, typ EdgeType) EdgeID {
	negated := typ == EdgeTypeFalse
	src := g.Nodes[from]
	for _, id := range src.Out {
		e := g.Edges[id]
		if e.Condition != cond || e.Negated != negated {
			continue
		}
		if e.To != to {
			g.Nodes[e.To].In = removeEdge(g.Nodes[e.To].In, id)
			e.To = to
			g.Nodes[to].In = append(g.Nodes[to].In, id)
		}
		e.Type = typ
		return id
	}

	e := &Edge{
		ID:        EdgeID(len(g.Edges)),
		From:      from,
		To:        to,
		Type:      typ,
		Condition: cond,
		Negated:   negated,
	}
	g.Edges = append(g.Edges, e)
	src.Out = append(src.Out, e.ID)
	g.Nodes[to].In = append(g.Nodes[to].In, e.ID)
	return e.ID
}

func removeEdge(ids []EdgeID, id EdgeID) []EdgeID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// Successors returns the targets of n's out-edges.
func (g *CFG) Successors(id NodeID) []NodeID {
	var out []NodeID
	for _, e := range g.Nodes[id].Out {
		out = append(out, g.Edges[e].To)
	}
	return out
}

func (g *CFG) adjacency() *graph.Mutable {
	adj := graph.New(len(g.Nodes))
	for _, e := range g.Edges {
		adj.Add(int(e.From), int(e.To))
	}
	return adj
}

// Reachable returns the set of nodes reachable from the entry.
func (g *CFG) Reachable() []bool {
	seen := make([]bool, len(g.Nodes))
	seen[g.Entry] = true
	graph.BFS(g.adjacency(), int(g.Entry), func(_, w int, _ int64) {
		seen[w] = true
	})
	return seen
}

// Validate rejects graphs with edges leaving unreachable nodes, which the
// analysis could never deliver state over.
func (g *CFG) Validate() error {
	seen := g.Reachable()
	for _, e := range g.Edges {
		if !seen[e.From] {
			return fmt.Errorf("%s: edge %d from node %d: %w", g.Name, e.ID, e.From, ErrUnreachableNode)
		}
	}
	return nil
}

// Finalize marks back edges, computes natural loops and arms the
// join-readiness counters. It must be called once construction is done.
func (g *CFG) Finalize() error {
	if err := g.Validate(); err != nil {
		return err
	}

	dg := simple.NewDirectedGraph()
	for _, n := range g.Nodes {
		dg.AddNode(simple.Node(n.ID))
	}
	for _, e := range g.Edges {
		// simple graphs reject self loops; those are back edges anyway.
		if e.From != e.To && !dg.HasEdgeFromTo(int64(e.From), int64(e.To)) {
			dg.SetEdge(dg.NewEdge(simple.Node(e.From), simple.Node(e.To)))
		}
	}
	dom := flow.Dominators(simple.Node(g.Entry), dg)
	dominates := func(a, b NodeID) bool {
		for x := int64(b); ; {
			if x == int64(a) {
				return true
			}
			idom := dom.DominatorOf(x)
			if idom == nil || idom.ID() == x {
				return false
			}
			x = idom.ID()
		}
	}

	reachable := g.Reachable()
	g.loopEdges = make(map[NodeID][]EdgeID)
	for _, e := range g.Edges {
		e.Back = e.From == e.To || (reachable[e.From] && dominates(e.To, e.From))
	}
	for _, e := range g.Edges {
		if e.Back {
			g.addLoop(e)
		}
	}
	for h := range g.loopEdges {
		slices.Sort(g.loopEdges[h])
	}

	for _, n := range g.Nodes {
		n.incoming, n.forward = 0, 0
		for _, id := range n.In {
			n.IncrementIncomingEdges()
			if !g.Edges[id].Back {
				n.forward++
			}
		}
		n.ResetVisited()
	}
	return nil
}

// addLoop collects the natural loop of back edge e and records the header's
// out-edges that lead into the loop body.
func (g *CFG) addLoop(back *Edge) {
	header := back.To
	body := map[NodeID]bool{header: true}
	stack := []NodeID{back.From}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if body[n] {
			continue
		}
		body[n] = true
		for _, in := range g.Nodes[n].In {
			stack = append(stack, g.Edges[in].From)
		}
	}

	have := make(map[EdgeID]bool)
	for _, id := range g.loopEdges[header] {
		have[id] = true
	}
	for _, id := range g.Nodes[header].Out {
		e := g.Edges[id]
		if (body[e.To] || e.To == header) && !have[id] {
			g.loopEdges[header] = append(g.loopEdges[header], id)
			have[id] = true
		}
	}
}

// IsLoopHeader reports whether id is the target of a back edge.
func (g *CFG) IsLoopHeader(id NodeID) bool {
	_, ok := g.loopEdges[id]
	return ok
}

// LoopEdges returns the out-edges of a loop header that enter the loop.
func (g *CFG) LoopEdges(id NodeID) []EdgeID { return g.loopEdges[id] }

// ResetVisited rearms the join-readiness counter of every node.
func (g *CFG) ResetVisited() {
	for _, n := range g.Nodes {
		n.ResetVisited()
	}
}

// Statements returns the statement and branch nodes in ID order.
func (g *CFG) Statements() []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Stmt != nil {
			out = append(out, n)
		}
	}
	return out
}
