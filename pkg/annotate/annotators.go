package annotate

import (
	"github.com/l3aro/go-commit-miner/pkg/ast"
	"github.com/l3aro/go-commit-miner/pkg/astdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfg"
	"github.com/l3aro/go-commit-miner/pkg/domain"
	"github.com/l3aro/go-commit-miner/pkg/flow"
)

// Context is what an annotator reads: the states of one analysis run and
// the tree mapping it ran against.
type Context struct {
	Result  *flow.Result
	Mapping *astdiff.Mapping

	version  string
	function string
}

// NewContext returns the annotation context of res.
func NewContext(res *flow.Result, m *astdiff.Mapping) *Context {
	return &Context{
		Result:   res,
		Mapping:  m,
		version:  res.Version.String(),
		function: res.CFG.Name,
	}
}

func (c *Context) annotation(label Label, n *ast.Node, ids []int) Annotation {
	return New(label, n, ids, c.version, c.function)
}

// Annotator emits the facts of one CFG node.
type Annotator func(c *Context, n *cfg.Node) []Annotation

// Annotators are run by Annotate in this order.
var Annotators = []Annotator{DataDependencies, ControlDependencies, ValueDependencies}

// Annotate runs every annotator over the nodes reached by the analysis.
func Annotate(res *flow.Result, m *astdiff.Mapping) *Set {
	c := NewContext(res, m)
	out := NewSet()
	for _, n := range res.CFG.Nodes {
		if n.Stmt == nil || !res.Reached(n.ID) {
			continue
		}
		for _, annotate := range Annotators {
			for _, a := range annotate(c, n) {
				out.Add(a)
			}
		}
	}
	return out
}

// definition is one store write performed by a statement.
type definition struct {
	def    *ast.Node // anchor and dependency id
	target *ast.Node // identifier, member or pattern; nil for declarations
	name   string    // bound name of function and class declarations
}

// ownExpressions returns the parts of a statement evaluated by its own CFG
// node. Bodies of nested statements are separate nodes and nested function
// bodies separate graphs.
func ownExpressions(stmt *ast.Node) []*ast.Node {
	switch stmt.Kind {
	case ast.KindExprStmt, ast.KindReturn, ast.KindThrow:
		return []*ast.Node{stmt.Child(0)}
	case ast.KindVarDecl:
		return stmt.Children
	case ast.KindIf, ast.KindWhile, ast.KindDoWhile, ast.KindFor:
		return []*ast.Node{stmt.Cond()}
	case ast.KindForIn:
		return []*ast.Node{stmt.Child(1)}
	case ast.KindSwitch:
		out := []*ast.Node{stmt.Child(0)}
		for _, cs := range stmt.Children[1:] {
			if cs != nil {
				out = append(out, cs.Child(0))
			}
		}
		return out
	case ast.KindFunction, ast.KindClass, ast.KindBlock, ast.KindBreak, ast.KindContinue,
		ast.KindTry, ast.KindLabeled, ast.KindEmpty, ast.KindUnknown:
		return nil
	}
	if isCatchParam(stmt) {
		return nil
	}
	// Expressions standing as nodes, such as for-loop updates.
	return []*ast.Node{stmt}
}

func isCatchParam(n *ast.Node) bool {
	return n.Parent != nil && n.Parent.Kind == ast.KindTry && n.Parent.Child(1) == n
}

// definitions returns the writes of a statement in source order.
func definitions(stmt *ast.Node) []definition {
	var out []definition
	switch {
	case stmt.Kind == ast.KindFunction || stmt.Kind == ast.KindClass:
		if stmt.Text != "" {
			anchor := stmt
			if stmt.Kind == ast.KindFunction && stmt.Child(0) != nil {
				anchor = stmt.Child(0)
			}
			out = append(out, definition{def: stmt, target: anchor, name: stmt.Text})
		}
		return out
	case stmt.Kind == ast.KindForIn:
		out = append(out, definition{def: stmt, target: stmt.Child(0)})
	case isCatchParam(stmt):
		return nil
	}
	for _, e := range ownExpressions(stmt) {
		ast.Inspect(e, func(n *ast.Node) bool {
			switch n.Kind {
			case ast.KindFunction, ast.KindClass:
				return false
			case ast.KindAssign, ast.KindUpdate, ast.KindDeclarator:
				out = append(out, definition{def: n, target: n.Child(0)})
			}
			return true
		})
	}
	return out
}

// reads calls f for every identifier and member expression evaluated as
// an rvalue under e.
func reads(e *ast.Node, f func(*ast.Node)) {
	if e == nil {
		return
	}
	switch e.Kind {
	case ast.KindFunction, ast.KindClass:
		return
	case ast.KindIdentifier:
		f(e)
		return
	case ast.KindMember:
		f(e)
		reads(e.Child(0), f)
		if e.Computed {
			reads(e.Child(1), f)
		}
		return
	case ast.KindAssign:
		target := e.Child(0)
		switch {
		case e.Text != "=" && e.Text != "":
			reads(target, f)
		case target != nil && target.Kind == ast.KindMember:
			reads(target.Child(0), f)
			if target.Computed {
				reads(target.Child(1), f)
			}
		}
		reads(e.Child(1), f)
		return
	case ast.KindDeclarator:
		reads(e.Child(1), f)
		return
	case ast.KindProperty:
		reads(e.Child(1), f)
		return
	case ast.KindPattern:
		if e.Text == "=" {
			reads(e.Child(1), f)
		}
		return
	}
	for _, c := range e.Children {
		reads(c, f)
	}
}

// value evaluates an identifier or a member chain rooted at an identifier
// in s.
func value(s *domain.State, n *ast.Node) (domain.BValue, bool) {
	if s == nil || n == nil {
		return domain.BValue{}, false
	}
	switch n.Kind {
	case ast.KindIdentifier:
		v, _, ok := s.Lookup(domain.Identifier(n.Text))
		return v, ok
	case ast.KindMember:
		if n.Computed && n.Text == "" {
			return domain.BValue{}, false
		}
		obj, ok := value(s, n.Child(0))
		if !ok {
			return domain.BValue{}, false
		}
		return s.ReadProperty(obj, domain.Identifier(n.Text)), true
	}
	return domain.BValue{}, false
}

// defined returns the values a definition left behind.
func defined(s *domain.State, d definition) []domain.BValue {
	if d.name != "" {
		v, _, ok := s.Lookup(domain.Identifier(d.name))
		if !ok {
			return nil
		}
		return []domain.BValue{v}
	}
	if d.target != nil && d.target.Kind == ast.KindMember {
		if v, ok := value(s, d.target); ok {
			return []domain.BValue{v}
		}
		return nil
	}
	var out []domain.BValue
	for _, id := range flow.Targets(d.target) {
		if v, ok := value(s, id); ok {
			out = append(out, v)
		}
	}
	return out
}

func anchor(d definition) *ast.Node {
	if d.name != "" {
		return d.target
	}
	return d.def
}

// DataDependencies emits DATDEP-XDEF for definitions that store a changed
// value and DATDEP-USE for reads of changed values.
func DataDependencies(c *Context, n *cfg.Node) []Annotation {
	var out []Annotation
	before, after := c.Result.Before[n.ID], c.Result.After[n.ID]

	for _, d := range definitions(n.Stmt) {
		id := int(d.def.ID)
		for _, v := range defined(after, d) {
			if v.Change().IsChanged() && v.Deps.Data.Contains(id) {
				out = append(out, c.annotation(DataXDef, anchor(d), []int{id}))
				break
			}
		}
	}

	for _, e := range ownExpressions(n.Stmt) {
		reads(e, func(r *ast.Node) {
			v, ok := value(before, r)
			if !ok || !v.Change().IsChanged() || len(v.Deps.Data) == 0 {
				return
			}
			if r.Kind == ast.KindMember {
				// Report the property only when the object itself is not
				// already a changed use.
				if obj, ok := value(before, r.Child(0)); ok && obj.Change().IsChanged() && len(obj.Deps.Data) > 0 {
					return
				}
			}
			out = append(out, c.annotation(DataUse, r, v.Deps.Data))
		})
	}
	return out
}

// ValueDependencies emits VAL-DEF for definitions whose right-hand side
// holds an updated literal and VAL-USE for reads of the values they
// produced.
func ValueDependencies(c *Context, n *cfg.Node) []Annotation {
	var out []Annotation
	before, after := c.Result.Before[n.ID], c.Result.After[n.ID]

	for _, d := range definitions(n.Stmt) {
		id := int(d.def.ID)
		for _, v := range defined(after, d) {
			if v.Deps.Value.Contains(id) {
				out = append(out, c.annotation(ValueDef, anchor(d), []int{id}))
				break
			}
		}
	}

	for _, e := range ownExpressions(n.Stmt) {
		reads(e, func(r *ast.Node) {
			v, ok := value(before, r)
			if !ok || len(v.Deps.Value) == 0 {
				return
			}
			if r.Kind == ast.KindMember {
				if obj, ok := value(before, r.Child(0)); ok && len(obj.Deps.Value) > 0 {
					return
				}
			}
			out = append(out, c.annotation(ValueUse, r, v.Deps.Value))
		})
	}
	return out
}

// ControlDependencies emits CONDEP-DEF on conditions whose outgoing edges
// changed and CONDEP-USE on statements that are direct children of such a
// branch.
func ControlDependencies(c *Context, n *cfg.Node) []Annotation {
	var out []Annotation
	g := c.Result.CFG

	if n.Type == cfg.NodeTypeBranch {
		for _, id := range n.Out {
			e := g.Edges[id]
			if e.Condition == nil {
				continue
			}
			if flow.ControlChange(c.Mapping, c.Result.Version, e).IsChanged() {
				d := domain.ControlDep{Branch: n.Stmt, Condition: e.Condition}
				out = append(out, c.annotation(CondDef, e.Condition, []int{d.ID()}))
			}
		}
	}

	before := c.Result.Before[n.ID]
	if before == nil || len(before.Control) == 0 {
		return out
	}
	parent := enclosingBranch(n.Stmt)
	var ids []int
	for _, d := range before.Control {
		if d.Branch == parent {
			ids = append(ids, d.ID())
		}
	}
	if len(ids) > 0 {
		out = append(out, c.annotation(CondUse, span(n.Stmt), ids))
	}
	return out
}

// enclosingBranch returns the nearest if, loop or switch statement that
// contains stmt within the same function.
func enclosingBranch(stmt *ast.Node) *ast.Node {
	for p := stmt.Parent; p != nil; p = p.Parent {
		switch p.Kind {
		case ast.KindIf, ast.KindWhile, ast.KindDoWhile, ast.KindFor, ast.KindForIn, ast.KindSwitch:
			return p
		case ast.KindFunction, ast.KindProgram:
			return nil
		}
	}
	return nil
}

// span returns the node an annotation on a statement is anchored to:
// compound statements are anchored to their header.
func span(stmt *ast.Node) *ast.Node {
	var head *ast.Node
	switch stmt.Kind {
	case ast.KindIf, ast.KindWhile, ast.KindDoWhile, ast.KindFor:
		head = stmt.Cond()
	case ast.KindForIn:
		head = stmt.Child(1)
	case ast.KindSwitch:
		head = stmt.Child(0)
	case ast.KindFunction:
		head = stmt.Child(0)
	}
	if head != nil {
		return head
	}
	return stmt
}
