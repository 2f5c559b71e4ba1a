package flow

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/l3aro/go-commit-miner/pkg/ast"
	"github.com/l3aro/go-commit-miner/pkg/astdiff"
	"github.com/l3aro/go-commit-miner/pkg/cfg"
	"github.com/l3aro/go-commit-miner/pkg/domain"
)

// ErrUnsupported is returned by transfer functions for constructs the
// interpreter has no rule for.
var ErrUnsupported = errors.New("unsupported construct")

// CallResolver reports whether calling a function yields a changed value.
// It is the only inter-procedural input of the analysis.
type CallResolver interface {
	// CallChange returns the change of the value produced by calling
	// callee in version v. ok is false when the callee is unknown.
	CallChange(v astdiff.Version, callee *ast.Node) (c domain.Change, ok bool)
}

// interp holds the transfer functions of one analysis run.
type interp struct {
	g     *cfg.CFG
	m     *astdiff.Mapping
	v     astdiff.Version
	alloc *domain.Allocator
	calls CallResolver
}

func (it *interp) edited(n *ast.Node) bool {
	return n != nil && it.m.ChangeOf(it.v, n).IsEdit()
}

func (it *interp) subtreeEdited(n *ast.Node) bool {
	return n != nil && it.m.SubtreeEdited(it.v, n)
}

func (it *interp) changeOf(n *ast.Node) domain.Change {
	if it.edited(n) {
		return domain.Changed
	}
	return domain.Unchanged
}

// EntryState builds the state at function entry: parameters, hoisted
// declarations and assigned free variables are bound to fresh addresses.
func (it *interp) entryState() *domain.State {
	s := domain.NewState()
	fn := it.g.Function
	if fn == nil {
		return s
	}

	if fn.Kind == ast.KindFunction {
		if params := fn.Child(1); params != nil {
			for _, p := range params.Children {
				for _, id := range Targets(p) {
					s.Declare(it.alloc, domain.Identifier(id.Text), domain.TopValue(it.changeOf(id)))
				}
			}
		}
	}

	var body []*ast.Node
	if fn.Kind == ast.KindProgram {
		body = fn.Children
	} else if b := fn.Body(); b != nil {
		body = []*ast.Node{b}
	}

	declared := make(map[string]bool)
	for _, name := range s.Env.Names() {
		declared[string(name)] = true
	}
	var assigned []*ast.Node
	for _, root := range body {
		ast.Inspect(root, func(n *ast.Node) bool {
			switch n.Kind {
			case ast.KindFunction, ast.KindClass:
				if n.Text != "" && n.Parent != nil && isStatementList(n.Parent) && !declared[n.Text] {
					declared[n.Text] = true
					s.Declare(it.alloc, domain.Identifier(n.Text), it.functionValue(s, n))
				}
				return false
			case ast.KindDeclarator:
				// let and const are hoisted like var: one binding per name
				// for the whole function, shared by shadowing blocks.
				for _, id := range Targets(n.Child(0)) {
					if !declared[id.Text] {
						declared[id.Text] = true
						s.Declare(it.alloc, domain.Identifier(id.Text), domain.Undefined(domain.Unchanged))
					}
				}
			case ast.KindAssign, ast.KindUpdate:
				assigned = append(assigned, Targets(n.Child(0))...)
			case ast.KindForIn:
				assigned = append(assigned, Targets(n.Child(0))...)
			}
			return true
		})
	}
	for _, id := range assigned {
		if !declared[id.Text] {
			declared[id.Text] = true
			s.Declare(it.alloc, domain.Identifier(id.Text), domain.TopValue(domain.Unchanged))
		}
	}
	return s
}

func isStatementList(n *ast.Node) bool {
	switch n.Kind {
	case ast.KindProgram, ast.KindBlock, ast.KindCase, ast.KindLabeled:
		return true
	}
	return false
}

// Targets returns the identifiers bound by an assignment or declaration
// target. Member targets bind no identifier.
func Targets(n *ast.Node) []*ast.Node {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case ast.KindIdentifier:
		return []*ast.Node{n}
	case ast.KindVarDecl:
		var out []*ast.Node
		for _, d := range n.Children {
			out = append(out, Targets(d.Child(0))...)
		}
		return out
	case ast.KindPattern, ast.KindArray, ast.KindObject:
		if n.Kind == ast.KindPattern && n.Text == "=" {
			return Targets(n.Child(0))
		}
		var out []*ast.Node
		for _, c := range n.Children {
			out = append(out, Targets(c)...)
		}
		return out
	case ast.KindProperty:
		return Targets(n.Child(1))
	case ast.KindSpread:
		return Targets(n.Child(0))
	}
	return nil
}

// writes returns the identifiers a statement may assign, without entering
// nested functions.
func writes(stmt *ast.Node) []*ast.Node {
	var out []*ast.Node
	ast.Inspect(stmt, func(n *ast.Node) bool {
		switch n.Kind {
		case ast.KindFunction, ast.KindClass:
			if n != stmt {
				return false
			}
			if n.Text != "" {
				out = append(out, n)
			}
		case ast.KindAssign, ast.KindUpdate:
			out = append(out, Targets(n.Child(0))...)
		case ast.KindDeclarator:
			out = append(out, Targets(n.Child(0))...)
		case ast.KindForIn:
			out = append(out, Targets(n.Child(0))...)
		}
		return true
	})
	return out
}

// transferEdge applies the effect of traversing e to s in place.
func (it *interp) transferEdge(s *domain.State, e *cfg.Edge) {
	from := it.g.Nodes[e.From]
	if e.Condition == nil || from.Type != cfg.NodeTypeBranch || from.Stmt == nil {
		return
	}

	change := ControlChange(it.m, it.v, e)
	if change.IsChanged() {
		s.PushControl(domain.ControlDep{Branch: from.Stmt, Condition: e.Condition, Change: change})
	}

	if e.Type == cfg.EdgeTypeTrue || e.Type == cfg.EdgeTypeFalse {
		it.narrow(s, e.Condition, !e.Negated)
	}
}

// ControlChange returns the change of traversing a conditional edge: its
// differencing label, raised to Updated when the tested condition holds an
// edit and to Top when the edge diverges from its counterpart.
func ControlChange(m *astdiff.Mapping, v astdiff.Version, e *cfg.Edge) domain.EdgeChange {
	change := domain.EdgeChangeOf(e.Change)
	if change == domain.EdgeUnchanged && e.Condition != nil && m.SubtreeEdited(v, e.Condition) {
		change = domain.EdgeUpdated
	}
	if e.Diverged {
		change = change.Join(domain.EdgeTop)
	}
	return change
}

// narrow refines the nullness of a variable tested directly by a
// condition.
func (it *interp) narrow(s *domain.State, cond *ast.Node, truth bool) {
	switch cond.Kind {
	case ast.KindUnary:
		if cond.Text == "!" && cond.Child(0) != nil {
			it.narrow(s, cond.Child(0), !truth)
		}
	case ast.KindIdentifier:
		if !truth {
			return
		}
		v, a, ok := s.Lookup(domain.Identifier(cond.Text))
		if !ok {
			return
		}
		v.Null.Tri = domain.Never
		v.Undef.Tri = domain.Never
		s.Store.Set(a, v)
	case ast.KindBinary:
		l, r := cond.Left(), cond.Right()
		if l == nil || r == nil || l.Kind != ast.KindIdentifier || r.Kind != ast.KindLiteral {
			return
		}
		equal := cond.Text == "===" || cond.Text == "=="
		if !equal && cond.Text != "!==" && cond.Text != "!=" {
			return
		}
		if r.Literal != ast.LitNull && r.Literal != ast.LitUndefined {
			return
		}
		v, a, ok := s.Lookup(domain.Identifier(l.Text))
		if !ok {
			return
		}
		loose := cond.Text == "==" || cond.Text == "!="
		switch {
		case equal == truth && loose:
			return
		case equal == truth && r.Literal == ast.LitNull:
			v.Null.Tri = domain.Always
		case equal == truth:
			v.Undef.Tri = domain.Always
		case loose:
			v.Null.Tri = domain.Never
			v.Undef.Tri = domain.Never
		case r.Literal == ast.LitNull:
			v.Null.Tri = domain.Never
		default:
			v.Undef.Tri = domain.Never
		}
		s.Store.Set(a, v)
	}
}

// scope drops the control dependencies of branches that do not enclose the
// statement of n.
func (it *interp) scope(s *domain.State, n *cfg.Node) {
	if n.Stmt == nil {
		return
	}
	s.FilterControl(func(d domain.ControlDep) bool {
		return ast.IsAncestor(d.Branch, n.Stmt)
	})
}

// transferNode applies the statement of n to s in place.
func (it *interp) transferNode(s *domain.State, n *cfg.Node) error {
	stmt := n.Stmt
	if stmt == nil {
		return nil
	}

	if stmt.Parent != nil && stmt.Parent.Kind == ast.KindTry && stmt.Parent.Child(1) == stmt {
		for _, id := range Targets(stmt) {
			s.Assign(it.alloc, domain.Identifier(id.Text), domain.TopValue(it.changeOf(id)))
		}
		return nil
	}

	switch stmt.Kind {
	case ast.KindExprStmt:
		_, err := it.eval(s, stmt.Child(0))
		return err

	case ast.KindVarDecl:
		for _, d := range stmt.Children {
			if err := it.declare(s, stmt, d); err != nil {
				return err
			}
		}
		return nil

	case ast.KindFunction, ast.KindClass:
		if stmt.Text == "" {
			return nil
		}
		var v domain.BValue
		if stmt.Kind == ast.KindClass {
			var err error
			if v, err = it.evalObject(s, stmt, domain.Unchanged); err != nil {
				return err
			}
		} else {
			v = it.functionValue(s, stmt)
		}
		var name *ast.Node
		if stmt.Kind == ast.KindFunction {
			name = stmt.Child(0)
		}
		s.Assign(it.alloc, domain.Identifier(stmt.Text), it.tag(stmt, name, stmt, v))
		return nil

	case ast.KindReturn, ast.KindThrow:
		_, err := it.eval(s, stmt.Child(0))
		return err

	case ast.KindIf, ast.KindWhile, ast.KindDoWhile, ast.KindFor:
		_, err := it.eval(s, stmt.Cond())
		return err

	case ast.KindForIn:
		coll, err := it.eval(s, stmt.Child(1))
		if err != nil {
			return err
		}
		elem := domain.TopValue(domain.Unchanged).Propagate(coll.Change()).WithDeps(coll.Deps)
		return it.assign(s, stmt, stmt.Child(0), stmt.Child(1), elem)

	case ast.KindSwitch:
		_, err := it.eval(s, stmt.Child(0))
		return err

	case ast.KindBreak, ast.KindContinue, ast.KindEmpty, ast.KindLabeled, ast.KindBlock:
		return nil

	case ast.KindUnknown:
		return fmt.Errorf("%w: %s at line %d", ErrUnsupported, stmt.Text, stmt.Line)
	}

	if !stmt.Kind.IsStatement() {
		// Expressions standing as nodes, such as for-loop updates.
		_, err := it.eval(s, stmt)
		return err
	}
	return fmt.Errorf("%w: %s at line %d", ErrUnsupported, stmt.Kind, stmt.Line)
}

// degrade marks every identifier the statement writes as unknown.
func (it *interp) degrade(s *domain.State, stmt *ast.Node) {
	for _, id := range writes(stmt) {
		name := id.Text
		if name == "" {
			continue
		}
		s.Assign(it.alloc, domain.Identifier(name), domain.TopValue(domain.Top))
	}
}

func (it *interp) declare(s *domain.State, decl, d *ast.Node) error {
	target, init := d.Child(0), d.Child(1)
	if init == nil {
		if decl.Text == "var" {
			return nil
		}
		v := domain.Undefined(domain.Unchanged)
		return it.assign(s, d, target, nil, v)
	}
	v, err := it.eval(s, init)
	if err != nil {
		return err
	}
	return it.assign(s, d, target, init, v)
}

// define stores v into the identifier target on behalf of definition def
// and applies the change rule of assignments.
func (it *interp) define(s *domain.State, def, target, rhs *ast.Node, v domain.BValue) domain.BValue {
	v = it.tag(def, target, rhs, v)
	if target != nil && target.Kind == ast.KindIdentifier {
		s.Assign(it.alloc, domain.Identifier(target.Text), v)
	}
	return v
}

// tag applies the assignment change rule: the stored value is Changed when
// the right-hand side or the definition itself is edited, and otherwise
// keeps the change propagated from its operands. Changed values record the
// definition as a data dependency, and right-hand sides holding an updated
// literal record it as a value dependency.
func (it *interp) tag(def, target, rhs *ast.Node, v domain.BValue) domain.BValue {
	if it.subtreeEdited(rhs) || it.edited(def) || it.edited(target) {
		v = v.WithChange(domain.Changed)
	}
	if v.Change().IsChanged() {
		v = v.WithDeps(domain.Deps{Data: domain.NewIDSet(int(def.ID))})
	}
	if HasUpdatedLiteral(it.m, it.v, rhs) {
		v = v.WithDeps(domain.Deps{Value: domain.NewIDSet(int(def.ID))})
	}
	return v
}

// HasUpdatedLiteral reports whether an expression holds a literal labelled
// Updated, outside nested functions.
func HasUpdatedLiteral(m *astdiff.Mapping, v astdiff.Version, e *ast.Node) bool {
	found := false
	ast.Inspect(e, func(n *ast.Node) bool {
		if found || n.Kind == ast.KindFunction || n.Kind == ast.KindClass {
			return false
		}
		if n.Kind == ast.KindLiteral && m.ChangeOf(v, n) == astdiff.Updated {
			found = true
		}
		return !found
	})
	return found
}

// assign stores v into target, which may be an identifier, a member
// expression or a destructuring pattern.
func (it *interp) assign(s *domain.State, def, target, rhs *ast.Node, v domain.BValue) error {
	if target == nil {
		return nil
	}
	switch target.Kind {
	case ast.KindIdentifier:
		it.define(s, def, target, rhs, v)
		return nil

	case ast.KindMember:
		obj, err := it.eval(s, target.Child(0))
		if err != nil {
			return err
		}
		v = it.tag(def, target, rhs, v)
		prop, ok := propertyName(target)
		if !ok {
			return nil
		}
		s.WriteProperty(it.alloc, obj, prop, v)
		return nil

	case ast.KindPattern, ast.KindArray, ast.KindObject:
		part := domain.TopValue(domain.Unchanged).Propagate(v.Change()).WithDeps(v.Deps)
		for _, id := range Targets(target) {
			it.define(s, def, id, rhs, part)
		}
		return nil
	}
	return fmt.Errorf("%w: assignment to %s at line %d", ErrUnsupported, target.Kind, target.Line)
}

// propertyName returns the static name of member m. Computed members have
// one only when the key is a literal.
func propertyName(m *ast.Node) (domain.Identifier, bool) {
	if !m.Computed {
		return domain.Identifier(m.Text), m.Text != ""
	}
	if m.Text != "" {
		return domain.Identifier(m.Text), true
	}
	return "", false
}

func (it *interp) functionValue(s *domain.State, fn *ast.Node) domain.BValue {
	c := domain.Unchanged
	if it.subtreeEdited(fn) {
		c = domain.Changed
	}
	addr := it.alloc.Allocate()
	s.Store.SetObject(addr, domain.NewObj())
	t := domain.TypeFunction
	v := domain.Pointer(addr, t, c)
	s.Store.Set(addr, v)
	return v
}

func literalType(k ast.LiteralKind) domain.TypeSet {
	switch k {
	case ast.LitNumber:
		return domain.TypeNumber
	case ast.LitString:
		return domain.TypeString
	case ast.LitBool:
		return domain.TypeBool
	case ast.LitNull:
		return domain.TypeNull
	case ast.LitUndefined:
		return domain.TypeUndefined
	default:
		return domain.TypeObject
	}
}

// eval evaluates an expression for its value and side effects.
func (it *interp) eval(s *domain.State, e *ast.Node) (domain.BValue, error) {
	if e == nil {
		return domain.Undefined(domain.Unchanged), nil
	}
	own := it.changeOf(e)

	switch e.Kind {
	case ast.KindLiteral:
		return domain.Primitive(literalType(e.Literal), own), nil

	case ast.KindIdentifier:
		if e.Text == "undefined" {
			return domain.Undefined(own), nil
		}
		v, _, ok := s.Lookup(domain.Identifier(e.Text))
		if !ok {
			v = domain.TopValue(domain.Unchanged)
		}
		return v.Propagate(own), nil

	case ast.KindThis:
		return domain.TopValue(own), nil

	case ast.KindTemplate:
		out := domain.Primitive(domain.TypeString, own)
		for _, c := range e.Children {
			v, err := it.eval(s, c)
			if err != nil {
				return v, err
			}
			out = out.Propagate(v.Change()).WithDeps(v.Deps)
		}
		return out, nil

	case ast.KindAssign:
		return it.evalAssign(s, e)

	case ast.KindBinary:
		l, err := it.eval(s, e.Left())
		if err != nil {
			return l, err
		}
		r, err := it.eval(s, e.Right())
		if err != nil {
			return r, err
		}
		var out domain.BValue
		switch e.Text {
		case "&&", "||", "??":
			out = l.Join(r)
		default:
			out = domain.Primitive(binaryType(e.Text, l, r), domain.Unchanged)
		}
		return out.Propagate(l.Change()).Propagate(r.Change()).Propagate(own).WithDeps(l.Deps.Join(r.Deps)), nil

	case ast.KindUnary:
		a, err := it.eval(s, e.Child(0))
		if err != nil {
			return a, err
		}
		var t domain.TypeSet
		switch e.Text {
		case "typeof":
			t = domain.TypeString
		case "!", "delete":
			t = domain.TypeBool
		case "void":
			t = domain.TypeUndefined
		case "await", "yield":
			return domain.TopValue(domain.Unchanged).Propagate(a.Change()).Propagate(own).WithDeps(a.Deps), nil
		default:
			t = domain.TypeNumber
		}
		return domain.Primitive(t, domain.Unchanged).Propagate(a.Change()).Propagate(own).WithDeps(a.Deps), nil

	case ast.KindUpdate:
		arg := e.Child(0)
		old, err := it.eval(s, arg)
		if err != nil {
			return old, err
		}
		v := domain.Primitive(domain.TypeNumber, domain.Unchanged).Propagate(old.Change()).Propagate(own).WithDeps(old.Deps)
		if err := it.assign(s, e, arg, e, v); err != nil {
			return v, err
		}
		return v, nil

	case ast.KindCall, ast.KindNew:
		return it.evalCall(s, e)

	case ast.KindMember:
		obj, err := it.eval(s, e.Child(0))
		if err != nil {
			return obj, err
		}
		if e.Computed && e.Text == "" {
			idx, err := it.eval(s, e.Child(1))
			if err != nil {
				return idx, err
			}
			return domain.TopValue(domain.Unchanged).Propagate(s.DeepChange(obj)).Propagate(idx.Change()).Propagate(own).
				WithDeps(s.DeepDeps(obj)).WithDeps(idx.Deps), nil
		}
		prop, _ := propertyName(e)
		return s.ReadProperty(obj, prop).Propagate(own), nil

	case ast.KindObject, ast.KindArray, ast.KindClass:
		return it.evalObject(s, e, own)

	case ast.KindFunction:
		return it.functionValue(s, e), nil

	case ast.KindConditional:
		test, err := it.eval(s, e.Child(0))
		if err != nil {
			return test, err
		}
		a, err := it.eval(s, e.Child(1))
		if err != nil {
			return a, err
		}
		b, err := it.eval(s, e.Child(2))
		if err != nil {
			return b, err
		}
		return a.Join(b).Propagate(test.Change()).Propagate(own).WithDeps(test.Deps), nil

	case ast.KindSequence:
		out := domain.Undefined(domain.Unchanged)
		for _, c := range e.Children {
			v, err := it.eval(s, c)
			if err != nil {
				return v, err
			}
			out = v
		}
		return out, nil

	case ast.KindSpread:
		return it.eval(s, e.Child(0))

	case ast.KindPattern:
		return domain.TopValue(own), nil
	}
	return domain.TopValue(domain.Top), fmt.Errorf("%w: %s at line %d", ErrUnsupported, describe(e), e.Line)
}

func describe(e *ast.Node) string {
	if e.Kind == ast.KindUnknown && e.Text != "" {
		return e.Text
	}
	return e.Kind.String()
}

func binaryType(op string, l, r domain.BValue) domain.TypeSet {
	switch op {
	case "+":
		if l.Type.Set&domain.TypeNumber == l.Type.Set && r.Type.Set&domain.TypeNumber == r.Type.Set &&
			l.Type.Set != 0 && r.Type.Set != 0 {
			return domain.TypeNumber
		}
		if l.Type.Set == domain.TypeString || r.Type.Set == domain.TypeString {
			return domain.TypeString
		}
		return domain.TypeNumber | domain.TypeString
	case "==", "===", "!=", "!==", "<", "<=", ">", ">=", "instanceof", "in":
		return domain.TypeBool
	}
	return domain.TypeNumber
}

func (it *interp) evalAssign(s *domain.State, e *ast.Node) (domain.BValue, error) {
	target, rhs := e.Left(), e.Right()
	v, err := it.eval(s, rhs)
	if err != nil {
		return v, err
	}
	if e.Text != "=" && e.Text != "" {
		old, err := it.eval(s, target)
		if err != nil {
			return old, err
		}
		v = domain.Primitive(binaryType(e.Text[:len(e.Text)-1], old, v), domain.Unchanged).
			Propagate(old.Change()).Propagate(v.Change()).WithDeps(old.Deps.Join(v.Deps))
	}
	if err := it.assign(s, e, target, rhs, v); err != nil {
		return v, err
	}
	return it.tag(e, target, rhs, v), nil
}

func (it *interp) evalCall(s *domain.State, e *ast.Node) (domain.BValue, error) {
	callee, err := it.eval(s, e.Child(0))
	if err != nil {
		return callee, err
	}
	change := it.changeOf(e).Propagate(callee.Change())
	deps := callee.Deps
	for _, a := range e.Args() {
		v, err := it.eval(s, a)
		if err != nil {
			return v, err
		}
		change = change.Propagate(s.DeepChange(v))
		deps = deps.Join(s.DeepDeps(v))
	}
	if it.calls != nil {
		if c, ok := it.calls.CallChange(it.v, e.Child(0)); ok {
			change = change.Propagate(c)
		}
	}

	if e.Kind == ast.KindNew {
		v := s.NewObject(it.alloc, domain.TypeObject, domain.Unchanged, nil)
		return v.Propagate(change).WithDeps(deps), nil
	}
	return domain.TopValue(domain.Unchanged).Propagate(change).WithDeps(deps), nil
}

func (it *interp) evalObject(s *domain.State, e *ast.Node, own domain.Change) (domain.BValue, error) {
	props := make(map[domain.Identifier]domain.BValue)
	t := domain.TypeObject
	for i, c := range e.Children {
		if c == nil {
			continue
		}
		switch {
		case e.Kind == ast.KindArray:
			v, err := it.eval(s, c)
			if err != nil {
				return v, err
			}
			props[domain.Identifier(strconv.Itoa(i))] = v
		case c.Kind == ast.KindProperty:
			v, err := it.eval(s, c.Child(1))
			if err != nil {
				return v, err
			}
			props[domain.Identifier(c.Text)] = v.Propagate(it.changeOf(c))
		case c.Kind == ast.KindFunction:
			props[domain.Identifier(c.Text)] = it.functionValue(s, c)
		case e.Kind == ast.KindClass:
			// Field definitions and static blocks carry no flow.
		default:
			if _, err := it.eval(s, c); err != nil {
				return domain.TopValue(domain.Top), err
			}
		}
	}
	if e.Kind == ast.KindClass {
		t = domain.TypeFunction
		if it.subtreeEdited(e) {
			own = domain.Changed
		}
	}
	return s.NewObject(it.alloc, t, own, props), nil
}
