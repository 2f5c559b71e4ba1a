package domain

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/l3aro/go-commit-miner/pkg/ast"
)

// ControlDep records that execution passed a branch whose outcome may
// differ between versions.
type ControlDep struct {
	Branch    *ast.Node // if, loop or switch statement
	Condition *ast.Node // tested condition, nil for unconditional edges
	Change    EdgeChange
}

// ID returns the dependency identifier of the control dependency.
func (d ControlDep) ID() int {
	if d.Condition != nil {
		return int(d.Condition.ID)
	}
	return int(d.Branch.ID)
}

// Equal reports whether d and o name the same branch and condition with the
// same change. Nodes are compared by ID.
func (d ControlDep) Equal(o ControlDep) bool {
	return d.sameSite(o) && d.Change == o.Change
}

func (d ControlDep) sameSite(o ControlDep) bool {
	if d.Branch.ID != o.Branch.ID {
		return false
	}
	if d.Condition == nil || o.Condition == nil {
		return d.Condition == nil && o.Condition == nil
	}
	return d.Condition.ID == o.Condition.ID
}

// State is one abstract program state: environment, store, the control
// dependencies in effect, and the edges visited on the current path.
type State struct {
	Env     *Environment
	Store   *Store
	Control []ControlDep

	visited map[int]int
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Env:     NewEnvironment(),
		Store:   NewStore(),
		visited: make(map[int]int),
	}
}

// Copy returns an independent copy.
func (s *State) Copy() *State {
	return &State{
		Env:     s.Env.Copy(),
		Store:   s.Store.Copy(),
		Control: slices.Clone(s.Control),
		visited: maps.Clone(s.visited),
	}
}

// Visit records one traversal of an edge and returns the traversal count.
func (s *State) Visit(edge int) int {
	s.visited[edge]++
	return s.visited[edge]
}

// Visits returns how often an edge was traversed on this path.
func (s *State) Visits(edge int) int { return s.visited[edge] }

// PushControl adds a control dependency, joining with an existing one on the
// same branch and condition.
func (s *State) PushControl(d ControlDep) {
	for i, c := range s.Control {
		if c.sameSite(d) {
			s.Control[i].Change = c.Change.Join(d.Change)
			return
		}
	}
	s.Control = append(s.Control, d)
	sortControl(s.Control)
}

// FilterControl keeps the control dependencies for which keep is true.
func (s *State) FilterControl(keep func(ControlDep) bool) {
	out := s.Control[:0]
	for _, c := range s.Control {
		if keep(c) {
			out = append(out, c)
		}
	}
	s.Control = out
}

func sortControl(cs []ControlDep) {
	slices.SortStableFunc(cs, func(a, b ControlDep) bool {
		if a.Branch.ID != b.Branch.ID {
			return a.Branch.ID < b.Branch.ID
		}
		return a.ID() < b.ID()
	})
}

// Join returns the least upper bound of s and o. Values at the same address
// are joined. When the environments bind a name to different addresses the
// lower address is kept and the other value is joined into it.
func (s *State) Join(o *State) *State {
	if o == nil {
		return s.Copy()
	}
	out := s.Copy()

	for _, a := range o.Store.Addresses() {
		v, _ := o.Store.Get(a)
		out.Store.Weak(a, v)
	}
	for a, obj := range o.Store.objects {
		mine, ok := out.Store.objects[a]
		if !ok {
			out.Store.objects[a] = obj.Copy()
			continue
		}
		for _, p := range obj.Props() {
			theirs := obj.props[p]
			if have, ok := mine.props[p]; ok && have != theirs {
				keep, drop := orderAddrs(have, theirs)
				mine.props[p] = keep
				out.mergeInto(keep, drop)
				continue
			}
			mine.props[p] = theirs
		}
	}

	for _, id := range o.Env.Names() {
		theirs := o.Env.vars[id]
		have, ok := out.Env.vars[id]
		if !ok {
			out.Env.vars[id] = theirs
			continue
		}
		if have != theirs {
			keep, drop := orderAddrs(have, theirs)
			out.Env.vars[id] = keep
			out.mergeInto(keep, drop)
		}
	}

	for _, c := range o.Control {
		out.PushControl(c)
	}
	for e, n := range o.visited {
		if n > out.visited[e] {
			out.visited[e] = n
		}
	}
	return out
}

func orderAddrs(a, b Address) (Address, Address) {
	if a < b {
		return a, b
	}
	return b, a
}

func (s *State) mergeInto(keep, drop Address) {
	if v, ok := s.Store.Get(drop); ok {
		s.Store.Weak(keep, v)
	}
}

// Equal reports whether two states bind the same names to equal values.
// Addresses are compared by identity.
func (s *State) Equal(o *State) bool {
	if s.Env.Len() != o.Env.Len() || s.Store.Len() != o.Store.Len() || len(s.Control) != len(o.Control) {
		return false
	}
	for id, a := range s.Env.vars {
		if b, ok := o.Env.vars[id]; !ok || a != b {
			return false
		}
	}
	for a, v := range s.Store.values {
		if w, ok := o.Store.values[a]; !ok || !v.Equal(w) {
			return false
		}
	}
	for i := range s.Control {
		if !s.Control[i].Equal(o.Control[i]) {
			return false
		}
	}
	return true
}

// Lookup returns the value bound to id.
func (s *State) Lookup(id Identifier) (BValue, Address, bool) {
	a, ok := s.Env.Lookup(id)
	if !ok {
		return BValue{}, NoAddress, false
	}
	v, _ := s.Store.Get(a)
	return v, a, true
}

// Declare binds id to a fresh address holding v.
func (s *State) Declare(alloc *Allocator, id Identifier, v BValue) Address {
	a := alloc.Allocate()
	s.Env.Bind(id, a)
	s.Store.Set(a, v)
	return a
}

// Assign stores v at the address of id, declaring id if it is unbound.
func (s *State) Assign(alloc *Allocator, id Identifier, v BValue) Address {
	a, ok := s.Env.Lookup(id)
	if !ok {
		return s.Declare(alloc, id, v)
	}
	s.Store.Set(a, v)
	return a
}

// NewObject allocates an object with the given properties and returns a
// value pointing to it. Property values are stored at fresh addresses.
func (s *State) NewObject(alloc *Allocator, t TypeSet, c Change, props map[Identifier]BValue) BValue {
	addr := alloc.Allocate()
	obj := NewObj()
	names := maps.Keys(props)
	slices.Sort(names)
	for _, p := range names {
		pa := alloc.Allocate()
		obj.Set(p, pa)
		s.Store.Set(pa, props[p])
	}
	s.Store.SetObject(addr, obj)
	v := Pointer(addr, t, c)
	s.Store.Set(addr, v)
	return v
}

// ReadProperty returns the value of property p of every object v may point
// to. Missing properties read as undefined; unknown targets read as Top.
// The result carries at least the change of the object reference.
func (s *State) ReadProperty(v BValue, p Identifier) BValue {
	ref := v.Addrs.Change
	if v.Addrs.Set.IsTop() || v.Addrs.Set.Len() == 0 {
		return TopValue(Unchanged).Propagate(ref).WithDeps(v.Deps)
	}
	out := BValue{}
	for _, a := range v.Addrs.Set.Slice() {
		obj, ok := s.Store.Object(a)
		if !ok {
			out = out.Join(TopValue(Unchanged))
			continue
		}
		pa, ok := obj.Get(p)
		if !ok {
			out = out.Join(Undefined(Unchanged))
			continue
		}
		pv, ok := s.Store.Get(pa)
		if !ok {
			pv = Undefined(Unchanged)
		}
		out = out.Join(pv)
	}
	return out.Propagate(ref).WithDeps(v.Deps)
}

// WriteProperty stores val into property p of every object v may point to.
// A single target is updated strongly, several targets weakly. Writes
// through unknown references are dropped.
func (s *State) WriteProperty(alloc *Allocator, v BValue, p Identifier, val BValue) {
	if v.Addrs.Set.IsTop() {
		return
	}
	targets := v.Addrs.Set.Slice()
	strong := len(targets) == 1
	for _, a := range targets {
		obj, ok := s.Store.Object(a)
		if !ok {
			continue
		}
		pa, ok := obj.Get(p)
		if !ok {
			pa = alloc.Allocate()
			obj.Set(p, pa)
			s.Store.Set(pa, val)
			continue
		}
		if strong {
			s.Store.Set(pa, val)
		} else {
			s.Store.Weak(pa, val)
		}
	}
}

// Reach calls f for every value reachable from v through object
// properties, v included. Each address is visited once, so cyclic object
// graphs terminate.
func (s *State) Reach(v BValue, f func(BValue)) {
	seen := make(map[Address]bool)
	var walk func(BValue)
	walk = func(v BValue) {
		f(v)
		if v.Addrs.Set.IsTop() {
			return
		}
		for _, a := range v.Addrs.Set.Slice() {
			if seen[a] {
				continue
			}
			seen[a] = true
			obj, ok := s.Store.Object(a)
			if !ok {
				continue
			}
			for _, p := range obj.Props() {
				pa, _ := obj.Get(p)
				if seen[pa] {
					continue
				}
				seen[pa] = true
				if pv, ok := s.Store.Get(pa); ok {
					walk(pv)
				}
			}
		}
	}
	walk(v)
}

// DeepChange combines the changes of every value reachable from v.
func (s *State) DeepChange(v BValue) Change {
	out := Bottom
	s.Reach(v, func(x BValue) { out = out.Propagate(x.Change()) })
	return out
}

// DeepDeps returns the union of the dependencies of every value reachable
// from v.
func (s *State) DeepDeps(v BValue) Deps {
	var out Deps
	s.Reach(v, func(x BValue) { out = out.Join(x.Deps) })
	return out
}
