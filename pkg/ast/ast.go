// Package ast defines the closed JavaScript syntax tree consumed by the CFG
// builder, the tree matcher and the flow analysis.
//
// Every node kind has a fixed child layout documented next to its constant.
// Optional slots hold nil, so callers should use the accessor methods rather
// than indexing Children directly.
package ast

import "fmt"

// NodeID identifies a node inside one File. IDs are assigned in pre-order
// starting at zero and are stable for a given source text.
type NodeID int

// NoNode is the ID used when a node has no counterpart.
const NoNode NodeID = -1

// Kind is the closed set of node kinds.
type Kind int

const (
	KindUnknown     Kind = iota // unsupported construct; Text holds the grammar type
	KindProgram                 // [stmt...]
	KindFunction                // [name?, params, body]; Text is the function name
	KindParams                  // [param...]
	KindClass                   // [method...]; Text is the class name
	KindBlock                   // [stmt...]
	KindVarDecl                 // [declarator...]; Text is var, let or const
	KindDeclarator              // [target, init?]
	KindExprStmt                // [expr]
	KindIf                      // [cond, then, else?]
	KindWhile                   // [cond, body]
	KindDoWhile                 // [body, cond]
	KindFor                     // [init?, cond?, update?, body]
	KindForIn                   // [left, right, body]; Text is in or of
	KindSwitch                  // [discriminant, case...]
	KindCase                    // [test?, stmt...]; nil test is the default clause
	KindReturn                  // [arg?]
	KindBreak                   // []; Text is the label
	KindContinue                // []; Text is the label
	KindThrow                   // [arg]
	KindTry                     // [block, param?, handler?, finalizer?]
	KindLabeled                 // [body]; Text is the label
	KindEmpty                   // []
	KindIdentifier              // []; Text is the name
	KindLiteral                 // []; Text is the raw source, Literal the literal kind
	KindTemplate                // [expr...]
	KindThis                    // []
	KindAssign                  // [left, right]; Text is the operator
	KindBinary                  // [left, right]; Text is the operator
	KindUnary                   // [arg?]; Text is the operator
	KindUpdate                  // [arg]; Text is the operator
	KindCall                    // [callee, arg...]
	KindNew                     // [callee, arg...]
	KindMember                  // [object, property]; Computed for o[k]
	KindObject                  // [property...]
	KindProperty                // [key, value]; Text is the key name
	KindArray                   // [elem...]
	KindConditional             // [test, consequent, alternate]
	KindSequence                // [expr...]
	KindSpread                  // [arg]
	KindPattern                 // [part...]; destructuring target; Text is = for [target, default]
)

var kindNames = [...]string{
	KindUnknown:     "Unknown",
	KindProgram:     "Program",
	KindFunction:    "Function",
	KindParams:      "Params",
	KindClass:       "Class",
	KindBlock:       "Block",
	KindVarDecl:     "VarDecl",
	KindDeclarator:  "Declarator",
	KindExprStmt:    "ExprStmt",
	KindIf:          "If",
	KindWhile:       "While",
	KindDoWhile:     "DoWhile",
	KindFor:         "For",
	KindForIn:       "ForIn",
	KindSwitch:      "Switch",
	KindCase:        "Case",
	KindReturn:      "Return",
	KindBreak:       "Break",
	KindContinue:    "Continue",
	KindThrow:       "Throw",
	KindTry:         "Try",
	KindLabeled:     "Labeled",
	KindEmpty:       "Empty",
	KindIdentifier:  "Identifier",
	KindLiteral:     "Literal",
	KindTemplate:    "Template",
	KindThis:        "This",
	KindAssign:      "Assign",
	KindBinary:      "Binary",
	KindUnary:       "Unary",
	KindUpdate:      "Update",
	KindCall:        "Call",
	KindNew:         "New",
	KindMember:      "Member",
	KindObject:      "Object",
	KindProperty:    "Property",
	KindArray:       "Array",
	KindConditional: "Conditional",
	KindSequence:    "Sequence",
	KindSpread:      "Spread",
	KindPattern:     "Pattern",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsStatement reports whether nodes of this kind appear in statement
// position and therefore become CFG nodes.
func (k Kind) IsStatement() bool {
	switch k {
	case KindFunction, KindClass, KindBlock, KindVarDecl, KindExprStmt, KindIf,
		KindWhile, KindDoWhile, KindFor, KindForIn, KindSwitch, KindReturn,
		KindBreak, KindContinue, KindThrow, KindTry, KindLabeled, KindEmpty:
		return true
	}
	return false
}

// LiteralKind distinguishes literal values.
type LiteralKind int

const (
	LitNone LiteralKind = iota
	LitNumber
	LitString
	LitBool
	LitNull
	LitUndefined
	LitRegex
)

// Node is one syntax tree node.
type Node struct {
	ID       NodeID
	Kind     Kind
	Text     string
	Literal  LiteralKind
	Computed bool
	Children []*Node
	Parent   *Node

	Line   int // 1-based line of the first byte
	Offset int // absolute byte offset
	Length int // length in bytes
}

// Child returns the i-th child or nil when the slot is empty or absent.
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// Cond returns the condition of an if, loop or conditional expression.
func (n *Node) Cond() *Node {
	switch n.Kind {
	case KindIf, KindWhile, KindConditional:
		return n.Child(0)
	case KindDoWhile:
		return n.Child(1)
	case KindFor:
		return n.Child(1)
	}
	return nil
}

// Body returns the body of a loop, function or labelled statement.
func (n *Node) Body() *Node {
	switch n.Kind {
	case KindWhile:
		return n.Child(1)
	case KindDoWhile, KindLabeled:
		return n.Child(0)
	case KindFor:
		return n.Child(3)
	case KindForIn, KindFunction:
		return n.Child(2)
	}
	return nil
}

// Left returns the left operand of binary-shaped nodes.
func (n *Node) Left() *Node { return n.Child(0) }

// Right returns the right operand of binary-shaped nodes.
func (n *Node) Right() *Node { return n.Child(1) }

// Args returns the argument list of a call or new expression.
func (n *Node) Args() []*Node {
	if (n.Kind != KindCall && n.Kind != KindNew) || len(n.Children) < 2 {
		return nil
	}
	return n.Children[1:]
}

// End returns the offset one past the last byte of n.
func (n *Node) End() int { return n.Offset + n.Length }

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	if n.Text != "" {
		return fmt.Sprintf("%s(%s)#%d", n.Kind, n.Text, n.ID)
	}
	return fmt.Sprintf("%s#%d", n.Kind, n.ID)
}

// IsAncestor reports whether a is a proper ancestor of b.
func IsAncestor(a, b *Node) bool {
	if a == nil || b == nil {
		return false
	}
	for p := b.Parent; p != nil; p = p.Parent {
		if p == a {
			return true
		}
	}
	return false
}

// EnclosingFunction returns the nearest function (or the program) that
// contains n, excluding n itself.
func EnclosingFunction(n *Node) *Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Kind == KindFunction || p.Kind == KindProgram {
			return p
		}
	}
	return nil
}

// Inspect traverses the tree in pre-order. If f returns false the children
// of that node are skipped. Empty child slots are not visited.
func Inspect(n *Node, f func(*Node) bool) {
	if n == nil || !f(n) {
		return
	}
	for _, c := range n.Children {
		if c != nil {
			Inspect(c, f)
		}
	}
}

// File is a parsed source file.
type File struct {
	Path      string
	Source    []byte
	Root      *Node
	HasErrors bool

	nodes []*Node
}

// NewFile numbers the tree rooted at root in pre-order, links parents and
// returns the file that owns it.
func NewFile(path string, source []byte, root *Node) *File {
	f := &File{Path: path, Source: source, Root: root}
	var number func(n, parent *Node)
	number = func(n, parent *Node) {
		n.ID = NodeID(len(f.nodes))
		n.Parent = parent
		f.nodes = append(f.nodes, n)
		for _, c := range n.Children {
			if c != nil {
				number(c, n)
			}
		}
	}
	if root != nil {
		number(root, nil)
	}
	return f
}

// Node returns the node with the given ID or nil.
func (f *File) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(f.nodes) {
		return nil
	}
	return f.nodes[id]
}

// Len returns the number of nodes in the file.
func (f *File) Len() int { return len(f.nodes) }

// Nodes returns all nodes in pre-order.
func (f *File) Nodes() []*Node { return f.nodes }

// Functions returns the program node followed by every function node in
// pre-order. Each of them gets its own CFG.
func (f *File) Functions() []*Node {
	var out []*Node
	for _, n := range f.nodes {
		if n.Kind == KindProgram || n.Kind == KindFunction {
			out = append(out, n)
		}
	}
	return out
}

// Text returns the source text covered by n.
func (f *File) Text(n *Node) string {
	if n == nil || n.Offset < 0 || n.End() > len(f.Source) {
		return ""
	}
	return string(f.Source[n.Offset:n.End()])
}

// FunctionName returns a printable name for a function or program node.
func FunctionName(n *Node) string {
	switch {
	case n == nil:
		return ""
	case n.Kind == KindProgram:
		return "<script>"
	case n.Text != "":
		return n.Text
	default:
		return fmt.Sprintf("<anonymous:%d>", n.Line)
	}
}
