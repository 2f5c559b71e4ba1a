// Package cfg defines statement-level control flow graphs for JavaScript
// functions. Graphs are arenas: nodes and edges live in slices owned by the
// CFG and refer to each other by index.
package cfg

import (
	"github.com/l3aro/go-commit-miner/pkg/ast"
	"github.com/l3aro/go-commit-miner/pkg/astdiff"
)

// NodeID indexes CFG.Nodes.
type NodeID int

// EdgeID indexes CFG.Edges.
type EdgeID int

// NoNode marks an absent node reference.
const NoNode NodeID = -1

// NodeType represents the role of a CFG node.
type NodeType string

const (
	NodeTypeEntry     NodeType = "entry"     // Function entry point
	NodeTypeStatement NodeType = "statement" // Plain statement
	NodeTypeBranch    NodeType = "branch"    // If, loop or switch header
	NodeTypeExit      NodeType = "exit"      // Function exit point
)

// EdgeType represents the structural role of an edge.
type EdgeType string

const (
	EdgeTypeUnconditional EdgeType = "unconditional" // Fall through to the next statement
	EdgeTypeTrue          EdgeType = "true"          // Condition holds
	EdgeTypeFalse         EdgeType = "false"         // Condition does not hold
	EdgeTypeCase          EdgeType = "case"          // Switch clause selected
	EdgeTypeBreak         EdgeType = "break"         // Break from loop/switch
	EdgeTypeContinue      EdgeType = "continue"      // Continue to next iteration
)

// Node is one statement or condition in a CFG.
//
// Stmt is a back-reference into the AST; the CFG never owns it. For branch
// nodes Stmt is the if, loop or switch statement itself.
type Node struct {
	ID   NodeID
	Type NodeType
	Stmt *ast.Node
	In   []EdgeID
	Out  []EdgeID

	// Mapped is the node in the paired version's CFG whose statement maps
	// onto Stmt, or NoNode.
	Mapped NodeID

	incoming  int
	semaphore int

	// forward and pending count the predecessors reached through edges
	// that are not back edges.
	forward int
	pending int
}

// IncrementIncomingEdges records one more predecessor that must deliver
// state before the node is ready.
func (n *Node) IncrementIncomingEdges() { n.incoming++ }

// IncomingEdges returns the join-readiness threshold.
func (n *Node) IncomingEdges() int { return n.incoming }

// ForwardIncomingEdges returns the number of incoming edges that are not
// back edges. It is set by Finalize.
func (n *Node) ForwardIncomingEdges() int { return n.forward }

// ResetVisited rearms the join-readiness counters.
func (n *Node) ResetVisited() {
	n.semaphore = n.incoming
	n.pending = n.forward
}

// Visited records one delivered predecessor and returns the number still
// pending.
func (n *Node) Visited() int {
	if n.semaphore > 0 {
		n.semaphore--
	}
	return n.semaphore
}

// IsVisited reports whether every predecessor has delivered.
func (n *Node) IsVisited() bool { return n.semaphore <= 0 }

// VisitedForward records one delivered predecessor reached through a
// forward edge and returns the number of forward predecessors still
// pending.
func (n *Node) VisitedForward() int {
	if n.pending > 0 {
		n.pending--
	}
	return n.pending
}

// IsForwardVisited reports whether every predecessor outside the loops
// headed by n has delivered.
func (n *Node) IsForwardVisited() bool { return n.pending <= 0 }

// Edge is a directed edge between two nodes of the same CFG.
type Edge struct {
	ID   EdgeID
	From NodeID
	To   NodeID
	Type EdgeType

	// Condition is the AST node tested on this edge, nil when the edge is
	// unconditional. Negated is set on the false side of a test.
	Condition *ast.Node
	Negated   bool

	// Back is set by Finalize for edges whose target dominates their source.
	Back bool

	// Change is filled by control-flow differencing. Diverged marks edges
	// whose target statement does not map onto the target of the paired
	// edge.
	Change   astdiff.ChangeType
	Diverged bool
}

// IsConditional reports whether the edge tests a condition.
func (e *Edge) IsConditional() bool { return e.Condition != nil }
