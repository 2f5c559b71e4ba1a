package cfg

import (
	"fmt"

	"github.com/l3aro/go-commit-miner/pkg/ast"
)

// pending is an edge whose source is known but whose target is the next
// node to be created.
type pending struct {
	from NodeID
	cond *ast.Node
	typ  EdgeType
}

// jumpTarget collects break and continue edges of an enclosing loop, switch
// or labelled statement.
type jumpTarget struct {
	label     string
	loop      bool
	breakable bool
	breaks    []pending
	continues []pending
}

type builder struct {
	g       *CFG
	targets []*jumpTarget
	label   string
}

// Build constructs the CFG of a function or program node. Nested function
// bodies are not entered; they get their own CFG.
func Build(fn *ast.Node) (*CFG, error) {
	if fn == nil || (fn.Kind != ast.KindFunction && fn.Kind != ast.KindProgram) {
		return nil, fmt.Errorf("build cfg: %v is not a function", fn)
	}

	b := &builder{g: New(fn)}
	front := []pending{{from: b.g.Entry, typ: EdgeTypeUnconditional}}

	if fn.Kind == ast.KindProgram {
		front = b.processList(fn.Children, front)
	} else {
		front = b.processStatement(fn.Body(), front)
	}
	b.connect(front, b.g.Exit)

	if err := b.g.Finalize(); err != nil {
		return nil, err
	}
	return b.g, nil
}

// BuildFile builds one CFG per function in f, the script first.
func BuildFile(f *ast.File) ([]*CFG, error) {
	var out []*CFG
	for _, fn := range f.Functions() {
		g, err := Build(fn)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Find returns the CFG whose function has the given printable name.
func Find(cfgs []*CFG, name string) (*CFG, error) {
	for _, g := range cfgs {
		if g.Name == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, ErrFunctionNotFound)
}

func (b *builder) connect(front []pending, to NodeID) {
	for _, p := range front {
		b.g.AddEdge(p.from, to, p.cond, p.typ)
	}
}

// node creates a node for stmt and connects the frontier to it.
func (b *builder) node(typ NodeType, stmt *ast.Node, front []pending) NodeID {
	n := b.g.AddNode(typ, stmt)
	b.connect(front, n.ID)
	return n.ID
}

func (b *builder) processList(stmts []*ast.Node, front []pending) []pending {
	for _, s := range stmts {
		front = b.processStatement(s, front)
	}
	return front
}

// processStatement adds the nodes of s and returns the edges that leave it.
// Statements reached by no edge are dead code and are skipped.
func (b *builder) processStatement(s *ast.Node, front []pending) []pending {
	label := b.label
	b.label = ""

	if s == nil {
		return front
	}
	if len(front) == 0 {
		return nil
	}

	switch s.Kind {
	case ast.KindBlock:
		return b.processList(s.Children, front)

	case ast.KindIf:
		return b.processIf(s, front)

	case ast.KindWhile:
		return b.processWhile(s, front, label)

	case ast.KindDoWhile:
		return b.processDoWhile(s, front, label)

	case ast.KindFor:
		return b.processFor(s, front, label)

	case ast.KindForIn:
		return b.processForIn(s, front, label)

	case ast.KindSwitch:
		return b.processSwitch(s, front, label)

	case ast.KindTry:
		return b.processTry(s, front)

	case ast.KindLabeled:
		return b.processLabeled(s, front)

	case ast.KindReturn, ast.KindThrow:
		id := b.node(NodeTypeStatement, s, front)
		b.g.AddEdge(id, b.g.Exit, nil, EdgeTypeUnconditional)
		return nil

	case ast.KindBreak:
		id := b.node(NodeTypeStatement, s, front)
		if t := b.breakTarget(s.Text); t != nil {
			t.breaks = append(t.breaks, pending{from: id, typ: EdgeTypeBreak})
			return nil
		}
		return []pending{{from: id, typ: EdgeTypeUnconditional}}

	case ast.KindContinue:
		id := b.node(NodeTypeStatement, s, front)
		if t := b.continueTarget(s.Text); t != nil {
			t.continues = append(t.continues, pending{from: id, typ: EdgeTypeContinue})
			return nil
		}
		return []pending{{from: id, typ: EdgeTypeUnconditional}}
	}

	id := b.node(NodeTypeStatement, s, front)
	return []pending{{from: id, typ: EdgeTypeUnconditional}}
}

func (b *builder) processIf(s *ast.Node, front []pending) []pending {
	branch := b.node(NodeTypeBranch, s, front)
	cond := s.Cond()

	out := b.processStatement(s.Child(1), []pending{{from: branch, cond: cond, typ: EdgeTypeTrue}})
	elseFront := []pending{{from: branch, cond: cond, typ: EdgeTypeFalse}}
	if alt := s.Child(2); alt != nil {
		elseFront = b.processStatement(alt, elseFront)
	}
	return append(out, elseFront...)
}

func (b *builder) push(label string, loop bool) *jumpTarget {
	t := &jumpTarget{label: label, loop: loop, breakable: true}
	b.targets = append(b.targets, t)
	return t
}

func (b *builder) pop() { b.targets = b.targets[:len(b.targets)-1] }

func (b *builder) breakTarget(label string) *jumpTarget {
	for i := len(b.targets) - 1; i >= 0; i-- {
		t := b.targets[i]
		if (label == "" && t.breakable) || (label != "" && t.label == label) {
			return t
		}
	}
	return nil
}

func (b *builder) continueTarget(label string) *jumpTarget {
	for i := len(b.targets) - 1; i >= 0; i-- {
		t := b.targets[i]
		if !t.loop {
			continue
		}
		if label == "" || t.label == label {
			return t
		}
	}
	return nil
}

func (b *builder) processWhile(s *ast.Node, front []pending, label string) []pending {
	header := b.node(NodeTypeBranch, s, front)
	cond := s.Cond()

	t := b.push(label, true)
	body := b.processStatement(s.Body(), []pending{{from: header, cond: cond, typ: EdgeTypeTrue}})
	b.pop()

	b.connect(body, header)
	b.connect(t.continues, header)
	return append([]pending{{from: header, cond: cond, typ: EdgeTypeFalse}}, t.breaks...)
}

func (b *builder) processDoWhile(s *ast.Node, front []pending, label string) []pending {
	first := NodeID(len(b.g.Nodes))

	t := b.push(label, true)
	body := b.processStatement(s.Body(), front)
	b.pop()

	if len(body) == 0 && len(t.continues) == 0 {
		return t.breaks
	}
	condNode := b.node(NodeTypeBranch, s, body)
	b.connect(t.continues, condNode)
	if int(first) >= len(b.g.Nodes)-1 {
		// Empty body: the incoming edges already reached the condition.
		first = condNode
	}
	cond := s.Cond()
	b.g.AddEdge(condNode, first, cond, EdgeTypeTrue)
	return append([]pending{{from: condNode, cond: cond, typ: EdgeTypeFalse}}, t.breaks...)
}

func (b *builder) processFor(s *ast.Node, front []pending, label string) []pending {
	if init := s.Child(0); init != nil {
		front = []pending{{from: b.node(NodeTypeStatement, init, front), typ: EdgeTypeUnconditional}}
	}
	header := b.node(NodeTypeBranch, s, front)
	cond := s.Cond()

	t := b.push(label, true)
	body := b.processStatement(s.Body(), []pending{{from: header, cond: cond, typ: EdgeTypeTrue}})
	b.pop()

	body = append(body, t.continues...)
	if update := s.Child(2); update != nil && len(body) > 0 {
		body = []pending{{from: b.node(NodeTypeStatement, update, body), typ: EdgeTypeUnconditional}}
	}
	b.connect(body, header)

	var out []pending
	if cond != nil {
		out = append(out, pending{from: header, cond: cond, typ: EdgeTypeFalse})
	}
	return append(out, t.breaks...)
}

// processForIn models for-in and for-of loops. The iterated collection acts
// as the loop condition.
func (b *builder) processForIn(s *ast.Node, front []pending, label string) []pending {
	header := b.node(NodeTypeBranch, s, front)
	cond := s.Child(1)

	t := b.push(label, true)
	body := b.processStatement(s.Body(), []pending{{from: header, cond: cond, typ: EdgeTypeTrue}})
	b.pop()

	b.connect(body, header)
	b.connect(t.continues, header)
	return append([]pending{{from: header, cond: cond, typ: EdgeTypeFalse}}, t.breaks...)
}

func (b *builder) processSwitch(s *ast.Node, front []pending, label string) []pending {
	branch := b.node(NodeTypeBranch, s, front)

	t := b.push(label, false)
	var fall []pending
	hasDefault := false
	for _, clause := range s.Children[1:] {
		if clause == nil || clause.Kind != ast.KindCase {
			continue
		}
		key := clause.Child(0)
		if key == nil {
			key = clause
			hasDefault = true
		}
		entry := append(fall, pending{from: branch, cond: key, typ: EdgeTypeCase})
		fall = b.processList(clause.Children[1:], entry)
	}
	b.pop()

	if !hasDefault {
		fall = append(fall, pending{from: branch, cond: s.Child(0), typ: EdgeTypeFalse})
	}
	return append(fall, t.breaks...)
}

// processTry lays the protected block, the handler and the finalizer out in
// sequence. Exceptional edges are not modelled.
func (b *builder) processTry(s *ast.Node, front []pending) []pending {
	front = b.processStatement(s.Child(0), front)
	if param := s.Child(1); param != nil && len(front) > 0 {
		front = []pending{{from: b.node(NodeTypeStatement, param, front), typ: EdgeTypeUnconditional}}
	}
	front = b.processStatement(s.Child(2), front)
	return b.processStatement(s.Child(3), front)
}

func (b *builder) processLabeled(s *ast.Node, front []pending) []pending {
	body := s.Body()
	if body != nil {
		switch body.Kind {
		case ast.KindWhile, ast.KindDoWhile, ast.KindFor, ast.KindForIn, ast.KindSwitch:
			b.label = s.Text
			return b.processStatement(body, front)
		}
	}
	t := &jumpTarget{label: s.Text}
	b.targets = append(b.targets, t)
	out := b.processStatement(body, front)
	b.pop()
	return append(out, t.breaks...)
}
