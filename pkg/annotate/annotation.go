// Package annotate derives dependency facts from the states computed by the
// flow analysis.
package annotate

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/l3aro/go-commit-miner/pkg/ast"
)

// Label is the kind of a dependency fact.
type Label string

const (
	DataXDef Label = "DATDEP-XDEF"
	DataUse  Label = "DATDEP-USE"
	CondDef  Label = "CONDEP-DEF"
	CondUse  Label = "CONDEP-USE"
	ValueDef Label = "VAL-DEF"
	ValueUse Label = "VAL-USE"
)

// Labels lists every label in report order.
var Labels = []Label{DataXDef, DataUse, CondDef, CondUse, ValueDef, ValueUse}

// Annotation is one dependency fact anchored to a source span.
type Annotation struct {
	Label            Label  `json:"label" msgpack:"label"`
	Line             int    `json:"line" msgpack:"line"`
	AbsolutePosition int    `json:"absolutePosition" msgpack:"absolutePosition"`
	Length           int    `json:"length" msgpack:"length"`
	DependencyIDs    []int  `json:"dependencyIds" msgpack:"dependencyIds"`
	Version          string `json:"version" msgpack:"version"`
	Function         string `json:"function" msgpack:"function"`
}

// New anchors an annotation to the span of n.
func New(label Label, n *ast.Node, ids []int, version, function string) Annotation {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	return Annotation{
		Label:            label,
		Line:             n.Line,
		AbsolutePosition: n.Offset,
		Length:           n.Length,
		DependencyIDs:    slices.Compact(ids),
		Version:          version,
		Function:         function,
	}
}

func (a Annotation) key() string {
	ids := make([]string, len(a.DependencyIDs))
	for i, id := range a.DependencyIDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("%s|%s|%s|%d|%d|%s", a.Version, a.Function, a.Label, a.AbsolutePosition, a.Length, strings.Join(ids, ","))
}

func (a Annotation) String() string {
	return fmt.Sprintf("%s %d:%d+%d %v", a.Label, a.Line, a.AbsolutePosition, a.Length, a.DependencyIDs)
}

// Set is a set of annotations compared by value.
type Set struct {
	items map[string]Annotation
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{items: make(map[string]Annotation)}
}

// Add inserts a and reports whether it was new.
func (s *Set) Add(a Annotation) bool {
	k := a.key()
	if _, ok := s.items[k]; ok {
		return false
	}
	s.items[k] = a
	return true
}

// Merge adds every annotation of o.
func (s *Set) Merge(o *Set) {
	if o == nil {
		return
	}
	for k, a := range o.items {
		s.items[k] = a
	}
}

// Len returns the number of annotations.
func (s *Set) Len() int { return len(s.items) }

// Contains reports whether a is in the set.
func (s *Set) Contains(a Annotation) bool {
	_, ok := s.items[a.key()]
	return ok
}

// Slice returns the annotations ordered by version, function, position,
// length and label.
func (s *Set) Slice() []Annotation {
	out := make([]Annotation, 0, len(s.items))
	for _, a := range s.items {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Annotation) bool {
		switch {
		case a.Version != b.Version:
			return a.Version < b.Version
		case a.Function != b.Function:
			return a.Function < b.Function
		case a.AbsolutePosition != b.AbsolutePosition:
			return a.AbsolutePosition < b.AbsolutePosition
		case a.Length != b.Length:
			return a.Length < b.Length
		case a.Label != b.Label:
			return a.Label < b.Label
		}
		return a.key() < b.key()
	})
	return out
}

// Filter returns the annotations with the given label in set order.
func (s *Set) Filter(label Label) []Annotation {
	var out []Annotation
	for _, a := range s.Slice() {
		if a.Label == label {
			out = append(out, a)
		}
	}
	return out
}

// Counts returns the number of annotations per label.
func (s *Set) Counts() map[Label]int {
	out := make(map[Label]int, len(Labels))
	for _, a := range s.items {
		out[a.Label]++
	}
	return out
}
