package domain

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// AddressSet is a sorted set of addresses, or Top for "any address".
// Values are immutable.
type AddressSet struct {
	top   bool
	addrs []Address
}

// NewAddressSet returns the set of the given addresses.
func NewAddressSet(addrs ...Address) AddressSet {
	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		if a != NoAddress {
			out = append(out, a)
		}
	}
	slices.Sort(out)
	return AddressSet{addrs: slices.Compact(out)}
}

// TopAddresses returns the set of all addresses.
func TopAddresses() AddressSet { return AddressSet{top: true} }

// IsTop reports whether the set is unknown.
func (s AddressSet) IsTop() bool { return s.top }

// Len returns the number of known addresses.
func (s AddressSet) Len() int { return len(s.addrs) }

// Slice returns the addresses in allocation order.
func (s AddressSet) Slice() []Address { return slices.Clone(s.addrs) }

// Contains reports whether a is in the set. Top contains everything.
func (s AddressSet) Contains(a Address) bool {
	if s.top {
		return true
	}
	_, ok := slices.BinarySearch(s.addrs, a)
	return ok
}

// Join returns the union of s and o; Top absorbs.
func (s AddressSet) Join(o AddressSet) AddressSet {
	if s.top || o.top {
		return TopAddresses()
	}
	merged := make([]Address, 0, len(s.addrs)+len(o.addrs))
	merged = append(merged, s.addrs...)
	merged = append(merged, o.addrs...)
	return NewAddressSet(merged...)
}

// Equal reports set equality.
func (s AddressSet) Equal(o AddressSet) bool {
	return s.top == o.top && slices.Equal(s.addrs, o.addrs)
}

func (s AddressSet) String() string {
	if s.top {
		return "TOP"
	}
	parts := make([]string, len(s.addrs))
	for i, a := range s.addrs {
		parts[i] = a.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// IDSet is a sorted set of dependency identifiers.
type IDSet []int

// NewIDSet returns the set of ids.
func NewIDSet(ids ...int) IDSet {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// Union returns s ∪ o.
func (s IDSet) Union(o IDSet) IDSet {
	if len(o) == 0 {
		return s
	}
	if len(s) == 0 {
		return o
	}
	merged := make([]int, 0, len(s)+len(o))
	merged = append(merged, s...)
	merged = append(merged, o...)
	return NewIDSet(merged...)
}

// Contains reports membership.
func (s IDSet) Contains(id int) bool {
	_, ok := slices.BinarySearch(s, id)
	return ok
}

// Deps are the dependency identifiers a value carries. Data holds the
// definitions through which a changed value flowed; Value holds the
// definitions of updated literals the value was computed from.
type Deps struct {
	Data  IDSet
	Value IDSet
}

// Join returns the pointwise union.
func (d Deps) Join(o Deps) Deps {
	return Deps{Data: d.Data.Union(o.Data), Value: d.Value.Union(o.Value)}
}

// IsEmpty reports whether no dependency is recorded.
func (d Deps) IsEmpty() bool { return len(d.Data) == 0 && len(d.Value) == 0 }

// Nullness is the may-be-null component of a value.
type Nullness struct {
	Tri    Tri
	Change Change
}

// Join returns the pointwise join.
func (n Nullness) Join(o Nullness) Nullness {
	return Nullness{Tri: n.Tri.Join(o.Tri), Change: n.Change.Join(o.Change)}
}

// Undefinedness is the may-be-undefined component of a value.
type Undefinedness struct {
	Tri    Tri
	Change Change
}

// Join returns the pointwise join.
func (u Undefinedness) Join(o Undefinedness) Undefinedness {
	return Undefinedness{Tri: u.Tri.Join(o.Tri), Change: u.Change.Join(o.Change)}
}

// Types is the primitive-type component of a value.
type Types struct {
	Set    TypeSet
	Change Change
}

// Join returns the pointwise join.
func (t Types) Join(o Types) Types {
	return Types{Set: t.Set.Join(o.Set), Change: t.Change.Join(o.Change)}
}

// Pointers is the address component of a value.
type Pointers struct {
	Set    AddressSet
	Change Change
}

// Join returns the pointwise join.
func (p Pointers) Join(o Pointers) Pointers {
	return Pointers{Set: p.Set.Join(o.Set), Change: p.Change.Join(o.Change)}
}

// BValue is an abstract value: a product of independent sub-lattices, each
// carrying its own change tag, plus dependency identifiers. The zero value
// is Bottom.
type BValue struct {
	Null  Nullness
	Undef Undefinedness
	Type  Types
	Addrs Pointers
	Deps  Deps
}

// Change returns the join of the component change tags.
func (v BValue) Change() Change {
	return JoinChanges(v.Null.Change, v.Undef.Change, v.Type.Change, v.Addrs.Change)
}

// IsBottom reports whether v carries no information.
func (v BValue) IsBottom() bool {
	return v.Null.Tri == TriBottom && v.Undef.Tri == TriBottom && v.Type.Set == 0 &&
		!v.Addrs.Set.IsTop() && v.Addrs.Set.Len() == 0 && v.Change() == Bottom
}

// Join returns the pointwise join of v and o.
func (v BValue) Join(o BValue) BValue {
	return BValue{
		Null:  v.Null.Join(o.Null),
		Undef: v.Undef.Join(o.Undef),
		Type:  v.Type.Join(o.Type),
		Addrs: v.Addrs.Join(o.Addrs),
		Deps:  v.Deps.Join(o.Deps),
	}
}

// WithChange returns v with every component tagged c.
func (v BValue) WithChange(c Change) BValue {
	v.Null.Change = c
	v.Undef.Change = c
	v.Type.Change = c
	v.Addrs.Change = c
	return v
}

// Propagate combines every component tag with the change of an operand v
// was computed from.
func (v BValue) Propagate(c Change) BValue {
	v.Null.Change = v.Null.Change.Propagate(c)
	v.Undef.Change = v.Undef.Change.Propagate(c)
	v.Type.Change = v.Type.Change.Propagate(c)
	v.Addrs.Change = v.Addrs.Change.Propagate(c)
	return v
}

// WithDeps returns v with d added to its dependencies.
func (v BValue) WithDeps(d Deps) BValue {
	v.Deps = v.Deps.Join(d)
	return v
}

// Equal reports structural equality.
func (v BValue) Equal(o BValue) bool {
	return v.Null == o.Null && v.Undef == o.Undef && v.Type == o.Type &&
		v.Addrs.Change == o.Addrs.Change && v.Addrs.Set.Equal(o.Addrs.Set) &&
		slices.Equal(v.Deps.Data, o.Deps.Data) && slices.Equal(v.Deps.Value, o.Deps.Value)
}

func (v BValue) String() string {
	return fmt.Sprintf("{type=%s null=%s undef=%s addrs=%s change=%s}",
		v.Type.Set, v.Null.Tri, v.Undef.Tri, v.Addrs.Set, v.Change())
}

// Primitive returns a non-pointer value of the given types.
func Primitive(t TypeSet, c Change) BValue {
	null, undef := Never, Never
	if t&TypeNull != 0 {
		null = Always
		if t != TypeNull {
			null = Maybe
		}
	}
	if t&TypeUndefined != 0 {
		undef = Always
		if t != TypeUndefined {
			undef = Maybe
		}
	}
	return BValue{
		Null:  Nullness{Tri: null},
		Undef: Undefinedness{Tri: undef},
		Type:  Types{Set: t},
		Addrs: Pointers{Set: NewAddressSet()},
	}.WithChange(c)
}

// Undefined returns the undefined value.
func Undefined(c Change) BValue { return Primitive(TypeUndefined, c) }

// Pointer returns an object value that points to a.
func Pointer(a Address, t TypeSet, c Change) BValue {
	return BValue{
		Null:  Nullness{Tri: Never},
		Undef: Undefinedness{Tri: Never},
		Type:  Types{Set: t},
		Addrs: Pointers{Set: NewAddressSet(a)},
	}.WithChange(c)
}

// TopValue returns a value about which nothing is known.
func TopValue(c Change) BValue {
	return BValue{
		Null:  Nullness{Tri: Maybe},
		Undef: Undefinedness{Tri: Maybe},
		Type:  Types{Set: TypeAny},
		Addrs: Pointers{Set: TopAddresses()},
	}.WithChange(c)
}
