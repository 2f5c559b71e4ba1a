package domain

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Identifier names a variable or a property.
type Identifier string

// Environment maps identifiers to addresses. Each abstract state owns its
// environment; Copy before mutating a shared one.
type Environment struct {
	vars map[Identifier]Address
}

// NewEnvironment returns an empty environment.
func NewEnvironment() *Environment {
	return &Environment{vars: make(map[Identifier]Address)}
}

// Lookup returns the address bound to id.
func (e *Environment) Lookup(id Identifier) (Address, bool) {
	a, ok := e.vars[id]
	return a, ok
}

// Bind binds id to a, replacing any earlier binding.
func (e *Environment) Bind(id Identifier, a Address) { e.vars[id] = a }

// Len returns the number of bindings.
func (e *Environment) Len() int { return len(e.vars) }

// Names returns the bound identifiers in sorted order.
func (e *Environment) Names() []Identifier {
	names := maps.Keys(e.vars)
	slices.Sort(names)
	return names
}

// Copy returns an independent copy.
func (e *Environment) Copy() *Environment {
	return &Environment{vars: maps.Clone(e.vars)}
}

// Obj is one abstract heap object: a map from property names to the
// addresses holding their values.
type Obj struct {
	props map[Identifier]Address
}

// NewObj returns an object without properties.
func NewObj() *Obj { return &Obj{props: make(map[Identifier]Address)} }

// Get returns the address of property p.
func (o *Obj) Get(p Identifier) (Address, bool) {
	a, ok := o.props[p]
	return a, ok
}

// Set binds property p to address a.
func (o *Obj) Set(p Identifier, a Address) { o.props[p] = a }

// Props returns the property names in sorted order.
func (o *Obj) Props() []Identifier {
	names := maps.Keys(o.props)
	slices.Sort(names)
	return names
}

// Len returns the number of properties.
func (o *Obj) Len() int { return len(o.props) }

// Copy returns an independent copy.
func (o *Obj) Copy() *Obj { return &Obj{props: maps.Clone(o.props)} }

// Store maps addresses to values and to the objects allocated at them.
type Store struct {
	values  map[Address]BValue
	objects map[Address]*Obj
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		values:  make(map[Address]BValue),
		objects: make(map[Address]*Obj),
	}
}

// Get returns the value at a.
func (s *Store) Get(a Address) (BValue, bool) {
	v, ok := s.values[a]
	return v, ok
}

// Set strongly updates the value at a.
func (s *Store) Set(a Address, v BValue) { s.values[a] = v }

// Weak joins v into the value at a.
func (s *Store) Weak(a Address, v BValue) {
	if old, ok := s.values[a]; ok {
		v = old.Join(v)
	}
	s.values[a] = v
}

// Object returns the object allocated at a.
func (s *Store) Object(a Address) (*Obj, bool) {
	o, ok := s.objects[a]
	return o, ok
}

// SetObject records that an object lives at a.
func (s *Store) SetObject(a Address, o *Obj) { s.objects[a] = o }

// Addresses returns the addresses holding values in allocation order.
func (s *Store) Addresses() []Address {
	addrs := maps.Keys(s.values)
	slices.Sort(addrs)
	return addrs
}

// Len returns the number of stored values.
func (s *Store) Len() int { return len(s.values) }

// Copy returns an independent copy. Objects are copied too.
func (s *Store) Copy() *Store {
	out := &Store{
		values:  maps.Clone(s.values),
		objects: make(map[Address]*Obj, len(s.objects)),
	}
	for a, o := range s.objects {
		out.objects[a] = o.Copy()
	}
	return out
}
