package ast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

var (
	// ErrFileTooLarge is returned for sources above the configured limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrInvalidContent is returned for sources that are not valid UTF-8.
	ErrInvalidContent = errors.New("content is not valid UTF-8")
)

// Parser converts JavaScript source into a File using tree-sitter.
// It is safe for concurrent use; each Parse call creates its own
// tree-sitter parser.
type Parser struct {
	maxFileSize int
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithMaxFileSize sets the maximum accepted source size in bytes.
func WithMaxFileSize(size int) ParserOption {
	return func(p *Parser) {
		p.maxFileSize = size
	}
}

// NewParser creates a parser. The default size limit is 10MB.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{maxFileSize: 10 * 1024 * 1024}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses content and returns the converted tree. Syntax errors do not
// fail the parse; affected regions become KindUnknown nodes and the file is
// flagged with HasErrors.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse %s canceled: %w", path, err)
	}
	if len(content) > p.maxFileSize {
		return nil, fmt.Errorf("parse %s: %w", path, ErrFileTooLarge)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("parse %s: %w", path, ErrInvalidContent)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	c := &converter{content: content}
	f := NewFile(path, content, c.convert(root))
	f.HasErrors = root.HasError()
	return f, nil
}

// ParseSource is a convenience wrapper around a default Parser.
func ParseSource(path string, content []byte) (*File, error) {
	return NewParser().Parse(context.Background(), path, content)
}

type converter struct {
	content []byte
}

func (c *converter) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if end > uint32(len(c.content)) || start > end {
		return ""
	}
	return string(c.content[start:end])
}

func (c *converter) mk(n *sitter.Node, kind Kind, children ...*Node) *Node {
	return &Node{
		Kind:     kind,
		Children: children,
		Line:     int(n.StartPoint().Row) + 1,
		Offset:   int(n.StartByte()),
		Length:   int(n.EndByte() - n.StartByte()),
	}
}

func (c *converter) field(n *sitter.Node, name string) *Node {
	return c.convert(n.ChildByFieldName(name))
}

// namedChildren converts all named children except comments.
func (c *converter) namedChildren(n *sitter.Node) []*Node {
	var out []*Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil || child.Type() == "comment" || child.Type() == "hash_bang_line" {
			continue
		}
		out = append(out, c.convert(child))
	}
	return out
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() &&
		a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func (c *converter) convert(n *sitter.Node) *Node {
	if n == nil {
		return nil
	}

	switch n.Type() {
	case "program":
		return c.mk(n, KindProgram, c.namedChildren(n)...)

	case "statement_block":
		return c.mk(n, KindBlock, c.namedChildren(n)...)

	case "expression_statement":
		return c.mk(n, KindExprStmt, c.convert(n.NamedChild(0)))

	case "variable_declaration", "lexical_declaration":
		decl := c.mk(n, KindVarDecl, c.namedChildren(n)...)
		decl.Text = n.Child(0).Type()
		return decl

	case "variable_declarator":
		d := c.mk(n, KindDeclarator, c.field(n, "name"), c.field(n, "value"))
		if fn := d.Child(1); fn != nil && fn.Kind == KindFunction && fn.Text == "" && d.Child(0) != nil {
			fn.Text = d.Child(0).Text
		}
		return d

	case "function_declaration", "generator_function_declaration", "function",
		"function_expression", "generator_function", "arrow_function", "method_definition":
		return c.function(n)

	case "class_declaration", "class":
		cls := c.mk(n, KindClass)
		cls.Text = c.text(n.ChildByFieldName("name"))
		if body := n.ChildByFieldName("body"); body != nil {
			cls.Children = c.namedChildren(body)
		}
		return cls

	case "if_statement":
		alt := n.ChildByFieldName("alternative")
		if alt != nil && alt.Type() == "else_clause" {
			alt = alt.NamedChild(0)
		}
		return c.mk(n, KindIf, c.field(n, "condition"), c.field(n, "consequence"), c.convert(alt))

	case "while_statement":
		return c.mk(n, KindWhile, c.field(n, "condition"), c.field(n, "body"))

	case "do_statement":
		return c.mk(n, KindDoWhile, c.field(n, "body"), c.field(n, "condition"))

	case "for_statement":
		return c.mk(n, KindFor,
			c.forClause(n.ChildByFieldName("initializer"), true),
			c.forClause(n.ChildByFieldName("condition"), false),
			c.field(n, "increment"),
			c.field(n, "body"))

	case "for_in_statement":
		loop := c.mk(n, KindForIn, c.field(n, "left"), c.field(n, "right"), c.field(n, "body"))
		loop.Text = "in"
		if op := n.ChildByFieldName("operator"); op != nil {
			loop.Text = c.text(op)
		}
		return loop

	case "switch_statement":
		sw := c.mk(n, KindSwitch, c.field(n, "value"))
		if body := n.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				if clause := body.NamedChild(i); clause.Type() != "comment" {
					sw.Children = append(sw.Children, c.switchClause(clause))
				}
			}
		}
		return sw

	case "return_statement":
		return c.mk(n, KindReturn, c.firstNamed(n))

	case "throw_statement":
		return c.mk(n, KindThrow, c.firstNamed(n))

	case "break_statement", "continue_statement":
		kind := KindBreak
		if n.Type() == "continue_statement" {
			kind = KindContinue
		}
		jump := c.mk(n, kind)
		jump.Text = c.text(n.ChildByFieldName("label"))
		return jump

	case "try_statement":
		try := c.mk(n, KindTry, c.field(n, "body"), nil, nil, nil)
		if handler := n.ChildByFieldName("handler"); handler != nil {
			try.Children[1] = c.field(handler, "parameter")
			try.Children[2] = c.field(handler, "body")
		}
		if finalizer := n.ChildByFieldName("finalizer"); finalizer != nil {
			try.Children[3] = c.field(finalizer, "body")
		}
		return try

	case "labeled_statement":
		l := c.mk(n, KindLabeled, c.field(n, "body"))
		l.Text = c.text(n.ChildByFieldName("label"))
		return l

	case "empty_statement", "debugger_statement":
		return c.mk(n, KindEmpty)

	case "parenthesized_expression":
		if n.NamedChildCount() == 0 {
			return c.mk(n, KindUnknown)
		}
		return c.convert(n.NamedChild(0))

	case "identifier", "property_identifier", "shorthand_property_identifier",
		"statement_identifier", "private_property_identifier", "shorthand_property_identifier_pattern", "super":
		id := c.mk(n, KindIdentifier)
		id.Text = c.text(n)
		return id

	case "undefined":
		return c.literal(n, LitUndefined)
	case "number":
		return c.literal(n, LitNumber)
	case "string":
		return c.literal(n, LitString)
	case "true", "false":
		return c.literal(n, LitBool)
	case "null":
		return c.literal(n, LitNull)
	case "regex":
		return c.literal(n, LitRegex)

	case "template_string":
		var parts []*Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if sub := n.NamedChild(i); sub.Type() == "template_substitution" {
				parts = append(parts, c.convert(sub.NamedChild(0)))
			}
		}
		if len(parts) == 0 {
			return c.literal(n, LitString)
		}
		return c.mk(n, KindTemplate, parts...)

	case "this":
		return c.mk(n, KindThis)

	case "assignment_expression":
		a := c.mk(n, KindAssign, c.field(n, "left"), c.field(n, "right"))
		a.Text = "="
		return a

	case "augmented_assignment_expression", "binary_expression", "unary_expression", "update_expression":
		return c.operator(n)

	case "await_expression", "yield_expression":
		u := c.mk(n, KindUnary, c.firstNamed(n))
		u.Text = strings.TrimSuffix(n.Type(), "_expression")
		return u

	case "call_expression":
		call := c.mk(n, KindCall, c.field(n, "function"))
		call.Children = append(call.Children, c.arguments(n.ChildByFieldName("arguments"))...)
		return call

	case "new_expression":
		call := c.mk(n, KindNew, c.field(n, "constructor"))
		call.Children = append(call.Children, c.arguments(n.ChildByFieldName("arguments"))...)
		return call

	case "member_expression":
		m := c.mk(n, KindMember, c.field(n, "object"), c.field(n, "property"))
		m.Text = c.text(n.ChildByFieldName("property"))
		return m

	case "subscript_expression":
		m := c.mk(n, KindMember, c.field(n, "object"), c.field(n, "index"))
		m.Computed = true
		if idx := m.Child(1); idx != nil && idx.Kind == KindLiteral {
			m.Text = unquote(idx.Text)
		}
		return m

	case "object", "object_pattern":
		kind := KindObject
		if n.Type() == "object_pattern" {
			kind = KindPattern
		}
		obj := c.mk(n, kind)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if p := n.NamedChild(i); p.Type() != "comment" {
				obj.Children = append(obj.Children, c.property(p))
			}
		}
		return obj

	case "array", "array_pattern":
		kind := KindArray
		if n.Type() == "array_pattern" {
			kind = KindPattern
		}
		return c.mk(n, kind, c.namedChildren(n)...)

	case "ternary_expression":
		return c.mk(n, KindConditional, c.field(n, "condition"), c.field(n, "consequence"), c.field(n, "alternative"))

	case "sequence_expression":
		return c.mk(n, KindSequence, c.namedChildren(n)...)

	case "spread_element", "rest_pattern":
		return c.mk(n, KindSpread, c.firstNamed(n))

	case "assignment_pattern":
		p := c.mk(n, KindPattern, c.field(n, "left"), c.field(n, "right"))
		p.Text = "="
		return p

	case "pair_pattern":
		return c.mk(n, KindPattern, c.namedChildren(n)...)
	}

	u := c.mk(n, KindUnknown, c.namedChildren(n)...)
	u.Text = n.Type()
	return u
}

func (c *converter) firstNamed(n *sitter.Node) *Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() != "comment" {
			return c.convert(child)
		}
	}
	return nil
}

func (c *converter) literal(n *sitter.Node, kind LiteralKind) *Node {
	lit := c.mk(n, KindLiteral)
	lit.Literal = kind
	lit.Text = c.text(n)
	return lit
}

func (c *converter) operator(n *sitter.Node) *Node {
	var kind Kind
	switch n.Type() {
	case "augmented_assignment_expression":
		kind = KindAssign
	case "binary_expression":
		kind = KindBinary
	case "unary_expression":
		kind = KindUnary
	default:
		kind = KindUpdate
	}

	var out *Node
	switch kind {
	case KindAssign, KindBinary:
		out = c.mk(n, kind, c.field(n, "left"), c.field(n, "right"))
	default:
		out = c.mk(n, kind, c.field(n, "argument"))
	}
	if op := n.ChildByFieldName("operator"); op != nil {
		out.Text = c.text(op)
	}
	return out
}

// forClause converts the initializer or condition slot of a for statement,
// which the grammar wraps in expression or empty statements.
func (c *converter) forClause(n *sitter.Node, initializer bool) *Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "empty_statement", ";":
		return nil
	case "expression_statement":
		if initializer {
			return c.convert(n)
		}
		return c.convert(n.NamedChild(0))
	}
	if initializer && n.Type() != "variable_declaration" && n.Type() != "lexical_declaration" {
		return c.mk(n, KindExprStmt, c.convert(n))
	}
	return c.convert(n)
}

func (c *converter) function(n *sitter.Node) *Node {
	fn := c.mk(n, KindFunction, nil, nil, nil)
	if name := n.ChildByFieldName("name"); name != nil {
		fn.Children[0] = c.convert(name)
		fn.Text = c.text(name)
	}

	params := n.ChildByFieldName("parameters")
	switch {
	case params != nil:
		fn.Children[1] = c.mk(params, KindParams, c.namedChildren(params)...)
	case n.ChildByFieldName("parameter") != nil:
		param := n.ChildByFieldName("parameter")
		fn.Children[1] = c.mk(param, KindParams, c.convert(param))
	default:
		fn.Children[1] = c.mk(n, KindParams)
		fn.Children[1].Length = 0
	}

	body := n.ChildByFieldName("body")
	if body != nil && body.Type() != "statement_block" {
		// Concise arrow bodies are lowered to a block holding a return.
		expr := c.convert(body)
		ret := c.mk(body, KindReturn, expr)
		fn.Children[2] = c.mk(body, KindBlock, ret)
	} else {
		fn.Children[2] = c.convert(body)
	}
	return fn
}

func (c *converter) arguments(n *sitter.Node) []*Node {
	if n == nil {
		return nil
	}
	if n.Type() != "arguments" {
		return []*Node{c.convert(n)}
	}
	return c.namedChildren(n)
}

func (c *converter) switchClause(n *sitter.Node) *Node {
	clause := c.mk(n, KindCase, nil)
	value := n.ChildByFieldName("value")
	if value != nil {
		clause.Children[0] = c.convert(value)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "comment" || sameNode(child, value) {
			continue
		}
		clause.Children = append(clause.Children, c.convert(child))
	}
	return clause
}

func (c *converter) property(n *sitter.Node) *Node {
	switch n.Type() {
	case "pair", "pair_pattern":
		key := c.field(n, "key")
		p := c.mk(n, KindProperty, key, c.field(n, "value"))
		if key != nil {
			p.Text = unquote(key.Text)
		}
		return p
	case "shorthand_property_identifier", "shorthand_property_identifier_pattern":
		p := c.mk(n, KindProperty, c.convert(n), c.convert(n))
		p.Text = c.text(n)
		return p
	case "method_definition":
		fn := c.function(n)
		key := c.field(n, "name")
		p := c.mk(n, KindProperty, key, fn)
		p.Text = fn.Text
		return p
	}
	return c.convert(n)
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' || s[0] == '\'' || s[0] == '`') && s[len(s)-1] == s[0] {
			return s[1 : len(s)-1]
		}
	}
	return s
}
