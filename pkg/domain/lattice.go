package domain

import (
	"strings"

	"github.com/l3aro/go-commit-miner/pkg/astdiff"
)

// Change records whether a value differs between the two versions.
//
//	Bottom ⊔ x = x, x ⊔ x = x, otherwise Top.
type Change uint8

const (
	Bottom Change = iota
	Unchanged
	Changed
	Top
)

func (c Change) String() string {
	switch c {
	case Bottom:
		return "BOTTOM"
	case Unchanged:
		return "UNCHANGED"
	case Changed:
		return "CHANGED"
	default:
		return "TOP"
	}
}

// Join returns the least upper bound of c and o.
func (c Change) Join(o Change) Change {
	switch {
	case c == Bottom:
		return o
	case o == Bottom, c == o:
		return c
	default:
		return Top
	}
}

// Leq reports whether c ⊑ o.
func (c Change) Leq(o Change) bool { return c.Join(o) == o }

// IsChanged reports whether the value may differ between versions.
func (c Change) IsChanged() bool { return c == Changed || c == Top }

// Propagate combines the changes of two operands of one computation: a
// result is Changed as soon as one operand is.
func (c Change) Propagate(o Change) Change {
	switch {
	case c == Changed || o == Changed:
		return Changed
	case c == Top || o == Top:
		return Top
	case c == Unchanged || o == Unchanged:
		return Unchanged
	default:
		return Bottom
	}
}

// JoinChanges folds Join over cs starting at Bottom.
func JoinChanges(cs ...Change) Change {
	out := Bottom
	for _, c := range cs {
		out = out.Join(c)
	}
	return out
}

// EdgeChange is the change lattice used for control flow. Inserted and
// Removed edges joined with unchanged ones give IRU; any other mix of
// distinct labels gives Top.
type EdgeChange uint8

const (
	EdgeBottom EdgeChange = iota
	EdgeUnchanged
	EdgeInserted
	EdgeRemoved
	EdgeUpdated
	EdgeIRU
	EdgeTop
)

func (c EdgeChange) String() string {
	switch c {
	case EdgeBottom:
		return "BOTTOM"
	case EdgeUnchanged:
		return "UNCHANGED"
	case EdgeInserted:
		return "INSERTED"
	case EdgeRemoved:
		return "REMOVED"
	case EdgeUpdated:
		return "UPDATED"
	case EdgeIRU:
		return "IR_U"
	default:
		return "TOP"
	}
}

func (c EdgeChange) iru() bool {
	return c == EdgeInserted || c == EdgeRemoved || c == EdgeUnchanged || c == EdgeIRU
}

// Join returns the least upper bound of c and o.
func (c EdgeChange) Join(o EdgeChange) EdgeChange {
	switch {
	case c == EdgeBottom:
		return o
	case o == EdgeBottom, c == o:
		return c
	case c.iru() && o.iru():
		return EdgeIRU
	default:
		return EdgeTop
	}
}

// IsChanged reports whether traversing the edge may represent different
// control flow in the two versions.
func (c EdgeChange) IsChanged() bool {
	return c != EdgeBottom && c != EdgeUnchanged
}

// EdgeChangeOf converts a tree-diff label.
func EdgeChangeOf(c astdiff.ChangeType) EdgeChange {
	switch c {
	case astdiff.Inserted:
		return EdgeInserted
	case astdiff.Removed:
		return EdgeRemoved
	case astdiff.Updated:
		return EdgeUpdated
	default:
		return EdgeUnchanged
	}
}

// Tri is a three-valued fact with a bottom element.
type Tri uint8

const (
	TriBottom Tri = iota
	Never
	Always
	Maybe
)

func (t Tri) String() string {
	switch t {
	case TriBottom:
		return "BOTTOM"
	case Never:
		return "NEVER"
	case Always:
		return "ALWAYS"
	default:
		return "MAYBE"
	}
}

// Join returns the least upper bound of t and o.
func (t Tri) Join(o Tri) Tri {
	switch {
	case t == TriBottom:
		return o
	case o == TriBottom, t == o:
		return t
	default:
		return Maybe
	}
}

// TypeSet is the set of primitive types a value may have.
type TypeSet uint8

const (
	TypeNumber TypeSet = 1 << iota
	TypeString
	TypeBool
	TypeNull
	TypeUndefined
	TypeObject
	TypeFunction

	TypeAny = TypeNumber | TypeString | TypeBool | TypeNull | TypeUndefined | TypeObject | TypeFunction
)

var typeNames = []struct {
	t    TypeSet
	name string
}{
	{TypeNumber, "number"},
	{TypeString, "string"},
	{TypeBool, "boolean"},
	{TypeNull, "null"},
	{TypeUndefined, "undefined"},
	{TypeObject, "object"},
	{TypeFunction, "function"},
}

func (t TypeSet) String() string {
	if t == 0 {
		return "{}"
	}
	var parts []string
	for _, tn := range typeNames {
		if t&tn.t != 0 {
			parts = append(parts, tn.name)
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Join returns the union of t and o.
func (t TypeSet) Join(o TypeSet) TypeSet { return t | o }
