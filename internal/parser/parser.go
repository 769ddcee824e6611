// Package parser is the packer's single in-process Parser: one
// tree-sitter grammar, one implementation, no adapter layers.
package parser

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"

	pkgerrors "github.com/tourze/php-packer/internal/errors"
)

// symbolQuery captures the node kinds the analyzer needs to walk:
// declarations, use statements, and the property/const forms that
// need scope-aware handling.
const symbolQuery = `
	(namespace_definition name: (namespace_name) @namespace.name) @namespace
	(namespace_use_declaration) @use
	(class_declaration name: (name) @class.name) @class
	(interface_declaration name: (name) @interface.name) @interface
	(trait_declaration name: (name) @trait.name) @trait
	(function_definition name: (name) @function.name) @function
	(method_declaration name: (name) @method.name) @method
	(property_declaration) @property
	(const_declaration) @constant
`

// Parser wraps a tree-sitter PHP grammar. One Parser is safe to reuse
// across files within a single-threaded run; it is never shared
// across goroutines.
type Parser struct {
	ts    *tree_sitter.Parser
	query *tree_sitter.Query
}

// New builds a Parser bound to the PHP grammar.
func New() (*Parser, error) {
	ts := tree_sitter.NewParser()
	language := tree_sitter.NewLanguage(tree_sitter_php.LanguagePHP())
	if err := ts.SetLanguage(language); err != nil {
		return nil, pkgerrors.NewConfigError("parser", err)
	}

	query, err := tree_sitter.NewQuery(language, symbolQuery)
	if err != nil {
		return nil, pkgerrors.NewConfigError("parser query", err)
	}

	return &Parser{ts: ts, query: query}, nil
}

// Close releases the tree-sitter parser and query.
func (p *Parser) Close() {
	p.ts.Close()
	p.query.Close()
}

// Tree is the result of parsing one file: the raw tree-sitter tree
// plus the source bytes it was parsed from, kept together because
// every subsequent walk needs both to slice out node text.
type Tree struct {
	Source []byte
	Root   *tree_sitter.Node
	tree   *tree_sitter.Tree
}

// Parse converts PHP source text into a tree-sitter Tree. It fails
// with ParseError if the source is not syntactically valid — detected
// via tree-sitter's own HasError() on the resulting root node, since
// tree-sitter always produces a tree (with ERROR nodes) rather than
// failing outright.
func (p *Parser) Parse(path string, source []byte) (*Tree, error) {
	tree := p.ts.Parse(source, nil)
	root := tree.RootNode()
	if root.HasError() {
		line := firstErrorLine(root)
		return nil, pkgerrors.NewParseError(path, line, errSyntax)
	}
	return &Tree{Source: source, Root: root, tree: tree}, nil
}

// Close releases the underlying tree-sitter tree.
func (t *Tree) Close() {
	t.tree.Close()
}

// NodeText slices the verbatim source text spanned by n.
func (t *Tree) NodeText(n *tree_sitter.Node) string {
	return string(t.Source[n.StartByte():n.EndByte()])
}

func firstErrorLine(root *tree_sitter.Node) int {
	line := 0
	var visit func(n *tree_sitter.Node) bool
	visit = func(n *tree_sitter.Node) bool {
		if n.IsError() || n.IsMissing() {
			line = int(n.StartPosition().Row) + 1
			return true
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			if visit(n.Child(i)) {
				return true
			}
		}
		return false
	}
	visit(root)
	return line
}

var errSyntax = &syntaxError{}

type syntaxError struct{}

func (*syntaxError) Error() string { return "syntax error" }

// AliasTable maps a `use`-imported short/alias name to the FQN it
// stands for within one file.
type AliasTable map[string]string

// ResolveName is the name-resolution pass: given a raw Name token as
// it appears in source, the file's alias table, and its current
// namespace, return the fully-qualified name
// the reference denotes. This is PHP's own resolution algorithm —
// leading backslash means already-qualified; an alias-table hit wins
// over namespace-relative resolution; otherwise the name is prefixed
// with the current namespace.
func ResolveName(name string, aliases AliasTable, currentNamespace string) string {
	if name == "" {
		return name
	}
	if name[0] == '\\' {
		return name[1:]
	}

	first := name
	rest := ""
	for i := 0; i < len(name); i++ {
		if name[i] == '\\' {
			first = name[:i]
			rest = name[i:]
			break
		}
	}

	if fqn, ok := aliases[first]; ok {
		return fqn + rest
	}
	if currentNamespace == "" {
		return name
	}
	return currentNamespace + "\\" + name
}
