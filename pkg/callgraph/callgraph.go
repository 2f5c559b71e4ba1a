// Package callgraph provides intra-file call graph building functionality.
// It walks function bodies to identify calls and builds a mapping from caller
// functions to callee functions within a single file.
package callgraph

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/l3aro/go-commit-miner/pkg/ast"
)

// CallType represents the type of function call
type CallType string

const (
	// LocalCall is a call to a function defined within the same file
	LocalCall CallType = "local"
	// ExternalCall is a call to a global, builtin or otherwise undefined function
	ExternalCall CallType = "external"
	// MethodCall is a method call on an object (this.method())
	MethodCall CallType = "method"
	// UnknownCall is a call of unknown origin
	UnknownCall CallType = "unknown"
)

// CalledFunction represents a single called function within a caller
type CalledFunction struct {
	// Name is the full name of the called function (e.g., "helper" or "this.run")
	Name string `json:"name"`
	// Base is the object/identifier being called (e.g., "this" or "helper")
	Base string `json:"base"`
	// Method is the property name if this is a method call
	Method string `json:"method,omitempty"`
	// Type indicates whether this is a local, external, or method call
	Type CallType `json:"type"`
	// LineNumber is the line number where the call occurs
	LineNumber int `json:"line_number"`
	// IsAttribute indicates a member expression callee
	IsAttribute bool `json:"is_attribute"`

	// Node is the call expression
	Node *ast.Node `json:"-"`
}

// CallGraphEntry represents all calls from a single caller function
type CallGraphEntry struct {
	// Caller is the name of the calling function
	Caller string `json:"caller"`
	// Calls is the list of functions called by this caller
	Calls []CalledFunction `json:"calls"`
	// LineNumber is the line where the caller function is defined
	LineNumber int `json:"line_number"`

	Function *ast.Node `json:"-"`
}

// IntraFileCallGraph represents the call graph for a single file
type IntraFileCallGraph struct {
	// FilePath is the path to the source file
	FilePath string `json:"file_path"`
	// Entries maps function names to their call graph entries
	Entries map[string]*CallGraphEntry `json:"entries"`
	// LocalFunctions maps the names of functions defined in the file to
	// their first definition
	LocalFunctions map[string]*ast.Node `json:"-"`
}

// NewIntraFileCallGraph creates a new empty call graph
func NewIntraFileCallGraph(filePath string) *IntraFileCallGraph {
	return &IntraFileCallGraph{
		FilePath:       filePath,
		Entries:        make(map[string]*CallGraphEntry),
		LocalFunctions: make(map[string]*ast.Node),
	}
}

// Build builds the call graph of a parsed file. The top-level script is an
// entry named <script>.
func Build(f *ast.File) *IntraFileCallGraph {
	graph := NewIntraFileCallGraph(f.Path)

	fns := f.Functions()
	for _, fn := range fns {
		if fn.Kind != ast.KindFunction || fn.Text == "" {
			continue
		}
		if _, ok := graph.LocalFunctions[fn.Text]; !ok {
			graph.LocalFunctions[fn.Text] = fn
		}
	}

	for _, fn := range fns {
		name := ast.FunctionName(fn)
		if _, ok := graph.Entries[name]; ok {
			continue
		}
		entry := &CallGraphEntry{Caller: name, Calls: []CalledFunction{}, LineNumber: fn.Line, Function: fn}
		graph.Entries[name] = entry

		var roots []*ast.Node
		if fn.Kind == ast.KindProgram {
			roots = fn.Children
		} else {
			roots = []*ast.Node{fn.Body()}
		}
		for _, r := range roots {
			walkForCallGraph(r, graph, entry)
		}
	}
	return graph
}

// walkForCallGraph collects the calls under node without entering nested
// functions, which have entries of their own.
func walkForCallGraph(node *ast.Node, graph *IntraFileCallGraph, current *CallGraphEntry) {
	ast.Inspect(node, func(n *ast.Node) bool {
		switch n.Kind {
		case ast.KindFunction:
			return false
		case ast.KindCall, ast.KindNew:
			if called := extractCall(n, graph); called != nil {
				current.Calls = append(current.Calls, *called)
			}
		}
		return true
	})
}

// extractCall extracts call information from a call node
func extractCall(node *ast.Node, graph *IntraFileCallGraph) *CalledFunction {
	callee := node.Child(0)
	if callee == nil {
		return nil
	}

	switch callee.Kind {
	case ast.KindIdentifier:
		// Simple function call: helper()
		return &CalledFunction{
			Name:       callee.Text,
			Base:       callee.Text,
			Type:       determineCallType(callee.Text, graph),
			LineNumber: node.Line,
			Node:       node,
		}

	case ast.KindMember:
		// Method call: obj.method() or this.method()
		base := memberBase(callee.Child(0))
		method := callee.Text
		return &CalledFunction{
			Name:        base + "." + method,
			Base:        base,
			Method:      method,
			Type:        determineAttributeCallType(base, method, graph),
			LineNumber:  node.Line,
			IsAttribute: true,
			Node:        node,
		}

	case ast.KindCall:
		// Chained call: f()() is attributed to the inner call
		return extractCall(callee, graph)
	}

	return &CalledFunction{
		Name:       callee.Kind.String(),
		Type:       UnknownCall,
		LineNumber: node.Line,
		Node:       node,
	}
}

func memberBase(n *ast.Node) string {
	switch {
	case n == nil:
		return ""
	case n.Kind == ast.KindThis:
		return "this"
	case n.Kind == ast.KindIdentifier:
		return n.Text
	case n.Kind == ast.KindMember:
		return memberBase(n.Child(0)) + "." + n.Text
	}
	return n.Kind.String()
}

// determineCallType determines the type of a simple call
func determineCallType(name string, graph *IntraFileCallGraph) CallType {
	if _, ok := graph.LocalFunctions[name]; ok {
		return LocalCall
	}
	if jsGlobals[name] {
		return ExternalCall
	}
	return UnknownCall
}

// determineAttributeCallType determines the type of a member call
func determineAttributeCallType(base, method string, graph *IntraFileCallGraph) CallType {
	if jsGlobals[base] {
		return ExternalCall
	}
	if _, ok := graph.LocalFunctions[method]; ok {
		return MethodCall
	}
	return UnknownCall
}

// jsGlobals is a set of common JavaScript globals for O(1) lookup
var jsGlobals = map[string]bool{
	"Array":              true,
	"Boolean":            true,
	"Date":               true,
	"Error":              true,
	"JSON":               true,
	"Map":                true,
	"Math":               true,
	"Number":             true,
	"Object":             true,
	"Promise":            true,
	"Reflect":            true,
	"RegExp":             true,
	"Set":                true,
	"String":             true,
	"Symbol":             true,
	"console":            true,
	"decodeURIComponent": true,
	"encodeURIComponent": true,
	"isNaN":              true,
	"parseFloat":         true,
	"parseInt":           true,
	"require":            true,
	"setTimeout":         true,
	"clearTimeout":       true,
	"process":            true,
	"Buffer":             true,
}

// GetCalls returns all calls made by a specific function
func (g *IntraFileCallGraph) GetCalls(functionName string) []CalledFunction {
	entry, ok := g.Entries[functionName]
	if !ok {
		return nil
	}
	return entry.Calls
}

func (g *IntraFileCallGraph) callsOfType(functionName string, t CallType) []CalledFunction {
	var out []CalledFunction
	for _, call := range g.GetCalls(functionName) {
		if call.Type == t {
			out = append(out, call)
		}
	}
	return out
}

// GetLocalCalls returns only local calls made by a specific function
func (g *IntraFileCallGraph) GetLocalCalls(functionName string) []CalledFunction {
	return g.callsOfType(functionName, LocalCall)
}

// GetExternalCalls returns only external calls made by a specific function
func (g *IntraFileCallGraph) GetExternalCalls(functionName string) []CalledFunction {
	return g.callsOfType(functionName, ExternalCall)
}

// GetMethodCalls returns only method calls made by a specific function
func (g *IntraFileCallGraph) GetMethodCalls(functionName string) []CalledFunction {
	return g.callsOfType(functionName, MethodCall)
}

// Callees returns the local functions a caller invokes, directly or as
// methods.
func (g *IntraFileCallGraph) Callees(functionName string) []string {
	var out []string
	for _, call := range g.GetCalls(functionName) {
		switch call.Type {
		case LocalCall:
			out = append(out, call.Name)
		case MethodCall:
			out = append(out, call.Method)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// GetAllFunctions returns the sorted names of all callers in the graph
func (g *IntraFileCallGraph) GetAllFunctions() []string {
	functions := maps.Keys(g.Entries)
	slices.Sort(functions)
	return functions
}

// HasCalls returns true if the given function makes any calls
func (g *IntraFileCallGraph) HasCalls(functionName string) bool {
	return len(g.GetCalls(functionName)) > 0
}

// GetCallCount returns the total number of calls in the graph
func (g *IntraFileCallGraph) GetCallCount() int {
	count := 0
	for _, entry := range g.Entries {
		count += len(entry.Calls)
	}
	return count
}
