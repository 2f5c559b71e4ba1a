package cfg

import "strings"

// NodeInfo is the serializable form of a node.
type NodeInfo struct {
	ID        NodeID   `json:"id"`                  // Node index
	Type      NodeType `json:"type"`                // entry, statement, branch or exit
	Line      int      `json:"line,omitempty"`      // Line of the statement
	Statement string   `json:"statement,omitempty"` // First line of the statement source
	Mapped    NodeID   `json:"mapped"`              // Paired node in the other version, -1 if none
}

// EdgeInfo is the serializable form of an edge.
type EdgeInfo struct {
	SourceID  NodeID   `json:"source_id"`           // ID of the source node
	TargetID  NodeID   `json:"target_id"`           // ID of the target node
	EdgeType  EdgeType `json:"edge_type"`           // Structural role
	Condition string   `json:"condition,omitempty"` // Condition source text
	Negated   bool     `json:"negated,omitempty"`   // False side of the condition
	Back      bool     `json:"back,omitempty"`      // Loop back edge
	Change    string   `json:"change"`              // Differencing label
	Diverged  bool     `json:"diverged,omitempty"`  // Target statements do not correspond
}

// Info represents a complete CFG for display.
type Info struct {
	FunctionName         string     `json:"function_name"`
	Nodes                []NodeInfo `json:"nodes"`
	Edges                []EdgeInfo `json:"edges"`
	EntryID              NodeID     `json:"entry_id"`
	ExitID               NodeID     `json:"exit_id"`
	CyclomaticComplexity int        `json:"cyclomatic_complexity"`
}

// Info returns the display form of g. source is the text the AST was
// parsed from.
func (g *CFG) Info(source []byte) *Info {
	text := func(start, length int) string {
		if start < 0 || start+length > len(source) {
			return ""
		}
		s := string(source[start : start+length])
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[:i]
		}
		return strings.TrimSpace(s)
	}

	info := &Info{
		FunctionName: g.Name,
		EntryID:      g.Entry,
		ExitID:       g.Exit,
	}
	for _, n := range g.Nodes {
		ni := NodeInfo{ID: n.ID, Type: n.Type, Mapped: n.Mapped}
		if n.Stmt != nil {
			ni.Line = n.Stmt.Line
			ni.Statement = text(n.Stmt.Offset, n.Stmt.Length)
		}
		info.Nodes = append(info.Nodes, ni)
	}
	for _, e := range g.Edges {
		ei := EdgeInfo{
			SourceID: e.From,
			TargetID: e.To,
			EdgeType: e.Type,
			Negated:  e.Negated,
			Back:     e.Back,
			Change:   e.Change.String(),
			Diverged: e.Diverged,
		}
		if e.Condition != nil {
			ei.Condition = text(e.Condition.Offset, e.Condition.Length)
		}
		info.Edges = append(info.Edges, ei)
	}
	info.CyclomaticComplexity = len(g.Edges) - len(g.Nodes) + 2
	if info.CyclomaticComplexity < 1 {
		info.CyclomaticComplexity = 1
	}
	return info
}
