// Package astdiff holds the cross-version node mapping and change labels the
// analysis consumes, and a tree matcher that produces them.
package astdiff

import (
	"github.com/l3aro/go-commit-miner/pkg/ast"
)

// ChangeType classifies a node relative to the paired version.
type ChangeType int

const (
	Unchanged ChangeType = iota
	Inserted
	Removed
	Updated
	Moved
)

func (c ChangeType) String() string {
	switch c {
	case Unchanged:
		return "UNCHANGED"
	case Inserted:
		return "INSERTED"
	case Removed:
		return "REMOVED"
	case Updated:
		return "UPDATED"
	case Moved:
		return "MOVED"
	default:
		return "UNKNOWN"
	}
}

// IsEdit reports whether the label represents a source edit for the
// purposes of change propagation. Moves are not edits.
func (c ChangeType) IsEdit() bool {
	return c == Inserted || c == Removed || c == Updated
}

// Version selects one side of a file pair.
type Version int

const (
	Source      Version = iota // buggy version
	Destination                // repaired version
)

func (v Version) String() string {
	if v == Source {
		return "source"
	}
	return "destination"
}

// Other returns the opposite version.
func (v Version) Other() Version {
	if v == Source {
		return Destination
	}
	return Source
}

// Mapping is a bidirectional node index between the source and destination
// trees plus per-node change labels for both sides. It is built once and
// then only read.
type Mapping struct {
	Src *ast.File
	Dst *ast.File

	srcToDst map[ast.NodeID]ast.NodeID
	dstToSrc map[ast.NodeID]ast.NodeID
	changes  [2]map[ast.NodeID]ChangeType
}

// NewMapping returns an empty mapping between src and dst.
func NewMapping(src, dst *ast.File) *Mapping {
	return &Mapping{
		Src:      src,
		Dst:      dst,
		srcToDst: make(map[ast.NodeID]ast.NodeID),
		dstToSrc: make(map[ast.NodeID]ast.NodeID),
		changes:  [2]map[ast.NodeID]ChangeType{{}, {}},
	}
}

// Map records that src and dst are the same node. Earlier pairings of
// either side are replaced.
func (m *Mapping) Map(src, dst ast.NodeID) {
	if old, ok := m.srcToDst[src]; ok {
		delete(m.dstToSrc, old)
	}
	if old, ok := m.dstToSrc[dst]; ok {
		delete(m.srcToDst, old)
	}
	m.srcToDst[src] = dst
	m.dstToSrc[dst] = src
}

// Partner returns the node paired with id in the other version.
func (m *Mapping) Partner(v Version, id ast.NodeID) (ast.NodeID, bool) {
	var p ast.NodeID
	var ok bool
	if v == Source {
		p, ok = m.srcToDst[id]
	} else {
		p, ok = m.dstToSrc[id]
	}
	if !ok {
		return ast.NoNode, false
	}
	return p, true
}

// PartnerNode returns the node paired with n in the other version's tree.
func (m *Mapping) PartnerNode(v Version, n *ast.Node) *ast.Node {
	if n == nil {
		return nil
	}
	id, ok := m.Partner(v, n.ID)
	if !ok {
		return nil
	}
	return m.File(v.Other()).Node(id)
}

// File returns the tree of version v.
func (m *Mapping) File(v Version) *ast.File {
	if v == Source {
		return m.Src
	}
	return m.Dst
}

// SetChange labels a node of version v.
func (m *Mapping) SetChange(v Version, id ast.NodeID, c ChangeType) {
	m.changes[v][id] = c
}

// Change returns the label of a node. Unlabelled nodes that have a partner
// are Unchanged; unlabelled nodes without one are Inserted on the
// destination side and Removed on the source side.
func (m *Mapping) Change(v Version, id ast.NodeID) ChangeType {
	if c, ok := m.changes[v][id]; ok {
		return c
	}
	if _, ok := m.Partner(v, id); ok {
		return Unchanged
	}
	if v == Destination {
		return Inserted
	}
	return Removed
}

// ChangeOf is Change for a node pointer; nil is Unchanged.
func (m *Mapping) ChangeOf(v Version, n *ast.Node) ChangeType {
	if n == nil {
		return Unchanged
	}
	return m.Change(v, n.ID)
}

// SubtreeEdited reports whether n or any descendant carries an edit label.
// Nested function bodies are included because a function value changes
// when its body changes.
func (m *Mapping) SubtreeEdited(v Version, n *ast.Node) bool {
	edited := false
	ast.Inspect(n, func(x *ast.Node) bool {
		if edited {
			return false
		}
		if m.Change(v, x.ID).IsEdit() {
			edited = true
			return false
		}
		return true
	})
	return edited
}

// Len returns the number of mapped pairs.
func (m *Mapping) Len() int { return len(m.srcToDst) }
