// Package analyzer implements the FileAnalyzer: it turns one PHP
// file into catalog entries (File metadata, Symbols, Dependencies,
// AST nodes) in a single tree-sitter walk.
package analyzer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"go.uber.org/zap"

	phpast "github.com/tourze/php-packer/internal/ast"
	pkgerrors "github.com/tourze/php-packer/internal/errors"
	"github.com/tourze/php-packer/internal/logging"
	"github.com/tourze/php-packer/internal/parser"
	"github.com/tourze/php-packer/internal/store"
)

// vendorSkipSuffixes are the Composer-generated paths that are
// always skipped regardless of config.
var vendorSkipSuffixes = []string{
	"vendor/autoload.php",
	"vendor/composer",
}

// FileAnalyzer walks one file's AST and records its catalog entries.
// Store and Parser are injected explicitly — no package-level state.
type FileAnalyzer struct {
	store        *store.Store
	parser       *parser.Parser
	log          logging.Logger
	root         string // project root, for canonicalizing paths
	vendorDirs   []string
	excludeGlobs []string // config exclude/exclude_patterns, matched against the canonical relative path
}

// New builds a FileAnalyzer rooted at root.
func New(st *store.Store, p *parser.Parser, log logging.Logger, root string, vendorDirs []string) *FileAnalyzer {
	if log == nil {
		log = logging.NewNoop()
	}
	return &FileAnalyzer{store: st, parser: p, log: log, root: root, vendorDirs: vendorDirs}
}

// SetExcludeGlobs installs the config's exclude/exclude_patterns
// glob list; any file whose canonical relative path matches one of
// them is treated as skip_ast.
func (a *FileAnalyzer) SetExcludeGlobs(globs []string) {
	a.excludeGlobs = globs
}

// walkState threads the per-file walk context: current namespace,
// the local alias table, and the scope stack.
type walkState struct {
	fileID        store.FileID
	namespace     string
	primaryNS     string
	primaryNSSet  bool
	aliases       parser.AliasTable
	scopes        *ScopeManager
	nodes         []*store.AstNode
	sourcePath    string
	sourceDir     string
	nextPos       int
}

// notePrimaryNamespace records the first non-empty namespace a file
// declares, matching real-world PHP convention of one namespace per
// file even though the grammar technically allows several.
func (st *walkState) notePrimaryNamespace(ns string) {
	if !st.primaryNSSet && ns != "" {
		st.primaryNS = ns
		st.primaryNSSet = true
	}
}

// Analyze records one file in the catalog: canonicalize, read,
// skip-check, parse, walk, store.
func (a *FileAnalyzer) Analyze(path string) error {
	relPath := a.canonicalize(path)

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return pkgerrors.NewNotFoundError(path)
		}
		return pkgerrors.NewNotFoundError(path)
	}

	existing, err := a.store.GetFileByPath(relPath)
	if err != nil {
		return err
	}
	if existing != nil && !a.store.ContentChanged(existing.ID, string(content)) && existing.Status == store.StatusCompleted {
		return nil // unchanged, already analyzed
	}

	if a.isSkipPath(relPath) {
		id, err := a.store.UpsertFile(relPath, string(content), store.FileKindMixed, "", false, true)
		if err != nil {
			return err
		}
		return a.store.MarkAnalyzed(id)
	}

	fileID, err := a.store.UpsertFile(relPath, string(content), store.FileKindScript, "", false, false)
	if err != nil {
		return err
	}

	if existing != nil {
		// Reanalysis: purge the file's prior Symbols and Dependencies
		// before the walk re-emits them; AST nodes are replaced by
		// StoreAST itself.
		if err := a.store.DeleteFileArtifacts(fileID); err != nil {
			return err
		}
	}

	tree, err := a.parser.Parse(relPath, content)
	if err != nil {
		a.log.Warn("parse failed, marking file as failed", zap.String("path", relPath), zap.Error(err))
		a.store.MarkAnalysisFailed(fileID)
		return err
	}
	defer tree.Close()

	st := &walkState{
		fileID:     fileID,
		aliases:    parser.AliasTable{},
		scopes:     NewScopeManager(),
		sourcePath: relPath,
		sourceDir:  filepath.Dir(path),
	}

	a.walk(tree, tree.Root, st, false)

	if err := a.store.StoreAST(fileID, st.nodes); err != nil {
		a.store.MarkAnalysisFailed(fileID)
		return err
	}
	if err := a.store.SetFileNamespace(fileID, st.primaryNS); err != nil {
		return err
	}

	return a.store.MarkAnalyzed(fileID)
}

func (a *FileAnalyzer) canonicalize(path string) string {
	rel, err := filepath.Rel(a.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path // outside root: used verbatim
	}
	return filepath.ToSlash(rel)
}

func (a *FileAnalyzer) isSkipPath(relPath string) bool {
	for _, suffix := range vendorSkipSuffixes {
		if strings.Contains(relPath, suffix) {
			return true
		}
	}
	for _, dir := range a.vendorDirs {
		if strings.HasPrefix(relPath, dir) {
			return true
		}
	}
	for _, pattern := range a.excludeGlobs {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

// walk recurses over the tree-sitter tree, dispatching on node kind.
// conditional is true when an ancestor is a branch/try/loop node.
func (a *FileAnalyzer) walk(tree *parser.Tree, n *tree_sitter.Node, st *walkState, conditional bool) {
	if n == nil {
		return
	}
	kind := n.Kind()
	if IsConditionalKind(kind) {
		conditional = true
	}

	switch kind {
	case "namespace_definition":
		a.handleNamespace(tree, n, st)
		return // children walked inside handleNamespace with the new namespace in scope

	case "namespace_use_declaration":
		a.handleUseDeclaration(tree, n, st)

	case "class_declaration":
		a.handleClass(tree, n, st, conditional)
		return

	case "interface_declaration":
		a.handleInterface(tree, n, st, conditional)
		return

	case "trait_declaration":
		a.handleTrait(tree, n, st, conditional)
		return

	case "function_definition":
		a.handleFunction(tree, n, st)
		return

	case "require_expression", "require_once_expression", "include_expression", "include_once_expression":
		a.handleInclude(tree, n, st, kind, conditional)

	case "object_creation_expression":
		a.handleNew(tree, n, st, conditional)

	case "scoped_call_expression":
		a.handleStaticCall(tree, n, st, conditional)

	case "class_constant_access_expression":
		a.handleClassConst(tree, n, st, conditional)

	case "instanceof_expression":
		a.handleInstanceof(tree, n, st, conditional)
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		a.walk(tree, n.Child(i), st, conditional)
	}
}

func (a *FileAnalyzer) handleNamespace(tree *parser.Tree, n *tree_sitter.Node, st *walkState) {
	prevNamespace := st.namespace
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		st.namespace = tree.NodeText(nameNode)
	} else {
		st.namespace = ""
	}
	st.notePrimaryNamespace(st.namespace)

	for i := uint(0); i < n.ChildCount(); i++ {
		a.walk(tree, n.Child(i), st, false)
	}
	st.namespace = prevNamespace
}

// handleUseDeclaration covers both the single-import and the grouped
// `use Foo\{Bar, Baz as Qux};` forms, each aliased name additionally
// emitting a use_class Dependency.
func (a *FileAnalyzer) handleUseDeclaration(tree *parser.Tree, n *tree_sitter.Node, st *walkState) {
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		switch child.Kind() {
		case "namespace_use_clause":
			a.emitUseClause(tree, child, st)
		case "namespace_use_group":
			a.emitUseGroup(tree, n, child, st)
		}
	}
}

func (a *FileAnalyzer) emitUseClause(tree *parser.Tree, n *tree_sitter.Node, st *walkState) {
	nameNode := n.ChildByFieldName("name")
	aliasNode := n.ChildByFieldName("alias")
	if nameNode == nil {
		return
	}
	fqn := strings.TrimPrefix(tree.NodeText(nameNode), "\\")
	alias := ""
	resolveAlias := shortName(fqn)
	if aliasNode != nil {
		alias = tree.NodeText(aliasNode)
		resolveAlias = alias
	}
	st.aliases[resolveAlias] = fqn

	a.store.InsertDependency(store.Dependency{
		SourceFileID: st.fileID,
		Kind:         store.DepUseClass,
		TargetSymbol: fqn,
		SourceLine:   int(n.StartPosition().Row) + 1,
	})

	a.appendNode(st, phpast.Use{
		Pos:       phpast.NewSpan(int(n.StartByte()), int(n.EndByte())),
		Namespace: st.namespace,
		Import:    phpast.UseImport{FQN: fqn, Alias: alias},
	}, "", int(n.StartByte()), int(n.EndByte()))
}

func (a *FileAnalyzer) emitUseGroup(tree *parser.Tree, declNode, groupNode *tree_sitter.Node, st *walkState) {
	prefixNode := declNode.ChildByFieldName("prefix")
	prefix := ""
	if prefixNode != nil {
		prefix = strings.TrimPrefix(tree.NodeText(prefixNode), "\\")
	}
	var imports []phpast.UseImport
	for i := uint(0); i < groupNode.ChildCount(); i++ {
		member := groupNode.Child(i)
		if member.Kind() != "namespace_use_clause" {
			continue
		}
		nameNode := member.ChildByFieldName("name")
		aliasNode := member.ChildByFieldName("alias")
		if nameNode == nil {
			continue
		}
		fqn := prefix + "\\" + tree.NodeText(nameNode)
		alias := ""
		resolveAlias := shortName(fqn)
		if aliasNode != nil {
			alias = tree.NodeText(aliasNode)
			resolveAlias = alias
		}
		st.aliases[resolveAlias] = fqn

		a.store.InsertDependency(store.Dependency{
			SourceFileID: st.fileID,
			Kind:         store.DepUseClass,
			TargetSymbol: fqn,
			SourceLine:   int(member.StartPosition().Row) + 1,
		})
		imports = append(imports, phpast.UseImport{FQN: fqn, Alias: alias})
	}
	if len(imports) == 0 {
		return
	}
	a.appendNode(st, phpast.UseGroup{
		Pos:       phpast.NewSpan(int(declNode.StartByte()), int(declNode.EndByte())),
		Namespace: st.namespace,
		Prefix:    prefix,
		Imports:   imports,
	}, "", int(declNode.StartByte()), int(declNode.EndByte()))
}

func (a *FileAnalyzer) handleClass(tree *parser.Tree, n *tree_sitter.Node, st *walkState, conditional bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		// anonymous class: no Symbol, but its extends/implements still
		// emit Dependencies.
		a.emitClassHeritage(tree, n, st, conditional)
		a.walkChildren(tree, n, st, conditional)
		return
	}
	short := tree.NodeText(nameNode)
	fqn := fqnFor(st.namespace, short)

	a.store.InsertSymbol(st.fileID, store.SymbolClass, short, fqn, st.namespace, "")
	a.emitClassHeritage(tree, n, st, conditional)

	extends, implements := resolvedHeritage(tree, n, st)
	a.appendNode(st, phpast.Class{
		Pos:        phpast.NewSpan(int(n.StartByte()), int(n.EndByte())),
		Name:       short,
		FQN:        fqn,
		Namespace:  st.namespace,
		Extends:    extends,
		Implements: implements,
		IsAbstract: hasModifier(tree, n, "abstract"),
		IsFinal:    hasModifier(tree, n, "final"),
		Source:     tree.NodeText(n),
	}, fqn, int(n.StartByte()), int(n.EndByte()))

	st.scopes.Push(Scope{Kind: ScopeClass, ClassName: fqn})
	a.walkChildren(tree, n, st, conditional)
	st.scopes.Pop()
}

func (a *FileAnalyzer) handleInterface(tree *parser.Tree, n *tree_sitter.Node, st *walkState, conditional bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	short := tree.NodeText(nameNode)
	fqn := fqnFor(st.namespace, short)
	a.store.InsertSymbol(st.fileID, store.SymbolInterface, short, fqn, st.namespace, "")

	var extends []string
	if base := n.ChildByFieldName("base_clause"); base != nil {
		for _, name := range extractNameList(tree, base) {
			resolved := parser.ResolveName(name, st.aliases, st.namespace)
			extends = append(extends, resolved)
			a.store.InsertDependency(store.Dependency{
				SourceFileID: st.fileID, Kind: store.DepExtends,
				TargetSymbol: resolved, SourceLine: int(n.StartPosition().Row) + 1,
				IsConditional: conditional,
			})
		}
	}
	a.appendNode(st, phpast.Interface{
		Pos:       phpast.NewSpan(int(n.StartByte()), int(n.EndByte())),
		Name:      short,
		FQN:       fqn,
		Namespace: st.namespace,
		Extends:   extends,
		Source:    tree.NodeText(n),
	}, fqn, int(n.StartByte()), int(n.EndByte()))

	st.scopes.Push(Scope{Kind: ScopeClass, ClassName: fqn})
	a.walkChildren(tree, n, st, conditional)
	st.scopes.Pop()
}

func (a *FileAnalyzer) handleTrait(tree *parser.Tree, n *tree_sitter.Node, st *walkState, conditional bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	short := tree.NodeText(nameNode)
	fqn := fqnFor(st.namespace, short)
	a.store.InsertSymbol(st.fileID, store.SymbolTrait, short, fqn, st.namespace, "")
	a.appendNode(st, phpast.Trait{
		Pos:       phpast.NewSpan(int(n.StartByte()), int(n.EndByte())),
		Name:      short,
		FQN:       fqn,
		Namespace: st.namespace,
		Source:    tree.NodeText(n),
	}, fqn, int(n.StartByte()), int(n.EndByte()))

	st.scopes.Push(Scope{Kind: ScopeClass, ClassName: fqn})
	a.walkChildren(tree, n, st, conditional)
	st.scopes.Pop()
}

func (a *FileAnalyzer) emitClassHeritage(tree *parser.Tree, n *tree_sitter.Node, st *walkState, conditional bool) {
	line := int(n.StartPosition().Row) + 1
	if base := n.ChildByFieldName("base_clause"); base != nil {
		for _, name := range extractNameList(tree, base) {
			resolved := parser.ResolveName(name, st.aliases, st.namespace)
			a.store.InsertDependency(store.Dependency{
				SourceFileID: st.fileID, Kind: store.DepExtends,
				TargetSymbol: resolved, SourceLine: line, IsConditional: conditional,
			})
		}
	}
	if iface := n.ChildByFieldName("interfaces"); iface != nil {
		for _, name := range extractNameList(tree, iface) {
			resolved := parser.ResolveName(name, st.aliases, st.namespace)
			a.store.InsertDependency(store.Dependency{
				SourceFileID: st.fileID, Kind: store.DepImplements,
				TargetSymbol: resolved, SourceLine: line, IsConditional: conditional,
			})
		}
	}
	members := n
	if body := n.ChildByFieldName("body"); body != nil {
		members = body
	}
	for i := uint(0); i < members.ChildCount(); i++ {
		child := members.Child(i)
		if child.Kind() == "use_declaration" { // trait use inside class body
			for _, name := range extractNameList(tree, child) {
				resolved := parser.ResolveName(name, st.aliases, st.namespace)
				a.store.InsertDependency(store.Dependency{
					SourceFileID: st.fileID, Kind: store.DepUseTrait,
					TargetSymbol: resolved, SourceLine: line, IsConditional: conditional,
				})
			}
		}
	}
}

func (a *FileAnalyzer) handleFunction(tree *parser.Tree, n *tree_sitter.Node, st *walkState) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	short := tree.NodeText(nameNode)
	fqn := fqnFor(st.namespace, short)
	a.store.InsertSymbol(st.fileID, store.SymbolFunction, short, fqn, st.namespace, "")
	a.appendNode(st, phpast.Function{
		Pos:        phpast.NewSpan(int(n.StartByte()), int(n.EndByte())),
		Name:       short,
		FQN:        fqn,
		Namespace:  st.namespace,
		BodySource: tree.NodeText(n),
	}, fqn, int(n.StartByte()), int(n.EndByte()))
	a.walkChildren(tree, n, st, false)
}

func (a *FileAnalyzer) handleInclude(tree *parser.Tree, n *tree_sitter.Node, st *walkState, kind string, conditional bool) {
	var depKind store.DependencyKind
	switch kind {
	case "require_expression":
		depKind = store.DepRequire
	case "require_once_expression":
		depKind = store.DepRequireOnce
	case "include_expression":
		depKind = store.DepInclude
	case "include_once_expression":
		depKind = store.DepIncludeOnce
	}

	context := extractIncludeExpr(tree, n)
	if context == "" {
		context = "dynamic"
	}

	a.store.InsertDependency(store.Dependency{
		SourceFileID: st.fileID, Kind: depKind, Context: context,
		SourceLine: int(n.StartPosition().Row) + 1, IsConditional: conditional,
	})
}

// extractIncludeExpr extracts the literal path (string) or a
// __DIR__-relative concatenation form; an empty return means
// "dynamic".
func extractIncludeExpr(tree *parser.Tree, n *tree_sitter.Node) string {
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		switch child.Kind() {
		case "string", "encapsed_string":
			text := tree.NodeText(child)
			if child.Kind() == "encapsed_string" && strings.ContainsAny(text, "${") {
				return "" // interpolated: not a literal path
			}
			if len(text) >= 2 {
				return text[1 : len(text)-1]
			}
		case "binary_expression": // __DIR__ . '/foo.php'
			return tree.NodeText(child)
		}
	}
	return ""
}

func (a *FileAnalyzer) handleNew(tree *parser.Tree, n *tree_sitter.Node, st *walkState, conditional bool) {
	classNode := n.ChildByFieldName("class")
	if classNode == nil || (classNode.Kind() != "name" && classNode.Kind() != "qualified_name") {
		return // `new $var(...)`, not a Name
	}
	resolved := parser.ResolveName(tree.NodeText(classNode), st.aliases, st.namespace)
	a.store.InsertDependency(store.Dependency{
		SourceFileID: st.fileID, Kind: store.DepUseClass, TargetSymbol: resolved,
		SourceLine: int(n.StartPosition().Row) + 1, IsConditional: conditional,
	})
}

func (a *FileAnalyzer) handleStaticCall(tree *parser.Tree, n *tree_sitter.Node, st *walkState, conditional bool) {
	scopeNode := n.ChildByFieldName("scope")
	if scopeNode == nil || (scopeNode.Kind() != "name" && scopeNode.Kind() != "qualified_name") {
		return // `$var::m()`, not a Name
	}
	resolved := parser.ResolveName(tree.NodeText(scopeNode), st.aliases, st.namespace)
	a.store.InsertDependency(store.Dependency{
		SourceFileID: st.fileID, Kind: store.DepUseClass, TargetSymbol: resolved,
		SourceLine: int(n.StartPosition().Row) + 1, IsConditional: conditional,
	})
}

func (a *FileAnalyzer) handleClassConst(tree *parser.Tree, n *tree_sitter.Node, st *walkState, conditional bool) {
	scopeNode := n.ChildByFieldName("scope")
	if scopeNode == nil || (scopeNode.Kind() != "name" && scopeNode.Kind() != "qualified_name") {
		return
	}
	resolved := parser.ResolveName(tree.NodeText(scopeNode), st.aliases, st.namespace)
	a.store.InsertDependency(store.Dependency{
		SourceFileID: st.fileID, Kind: store.DepUseClass, TargetSymbol: resolved,
		SourceLine: int(n.StartPosition().Row) + 1, IsConditional: conditional,
	})
}

func (a *FileAnalyzer) handleInstanceof(tree *parser.Tree, n *tree_sitter.Node, st *walkState, conditional bool) {
	classNode := n.ChildByFieldName("right")
	if classNode == nil || (classNode.Kind() != "name" && classNode.Kind() != "qualified_name") {
		return
	}
	resolved := parser.ResolveName(tree.NodeText(classNode), st.aliases, st.namespace)
	a.store.InsertDependency(store.Dependency{
		SourceFileID: st.fileID, Kind: store.DepUseClass, TargetSymbol: resolved,
		SourceLine: int(n.StartPosition().Row) + 1, IsConditional: conditional,
	})
}

func (a *FileAnalyzer) walkChildren(tree *parser.Tree, n *tree_sitter.Node, st *walkState, conditional bool) {
	for i := uint(0); i < n.ChildCount(); i++ {
		a.walk(tree, n.Child(i), st, conditional)
	}
}

// appendNode gob-encodes node and appends it to the file's flat
// AstNode list, in source order, for the merger to later regroup by
// namespace. fqn is empty for non-definition-bearing nodes (Use,
// UseGroup).
func (a *FileAnalyzer) appendNode(st *walkState, node phpast.Node, fqn string, start, end int) {
	payload, err := phpast.Encode(node)
	if err != nil {
		a.log.Warn("failed to encode AST node, skipping", zap.String("kind", string(node.Kind())), zap.Error(err))
		return
	}
	st.nodes = append(st.nodes, &store.AstNode{
		Kind:      string(node.Kind()),
		Payload:   payload,
		SpanStart: start,
		SpanEnd:   end,
		FQN:       fqn,
		Position:  st.nextPos,
	})
	st.nextPos++
}

// resolvedHeritage resolves a class_declaration's base_clause and
// interfaces fields to FQNs via the file's alias table, for the
// Class AST node's own Extends/Implements fields (separate from the
// Dependency rows emitClassHeritage already recorded).
func resolvedHeritage(tree *parser.Tree, n *tree_sitter.Node, st *walkState) (extends string, implements []string) {
	if base := n.ChildByFieldName("base_clause"); base != nil {
		names := extractNameList(tree, base)
		if len(names) > 0 {
			extends = parser.ResolveName(names[0], st.aliases, st.namespace)
		}
	}
	if iface := n.ChildByFieldName("interfaces"); iface != nil {
		for _, name := range extractNameList(tree, iface) {
			implements = append(implements, parser.ResolveName(name, st.aliases, st.namespace))
		}
	}
	return extends, implements
}

// hasModifier reports whether the given keyword appears in n's verbatim
// text before the first occurrence of "class", covering
// `abstract class Foo` / `final class Foo` without depending on the
// exact modifier-node shape the grammar exposes.
func hasModifier(tree *parser.Tree, n *tree_sitter.Node, keyword string) bool {
	text := tree.NodeText(n)
	idx := strings.Index(text, "class")
	if idx < 0 {
		return false
	}
	return strings.Contains(text[:idx], keyword)
}

func fqnFor(namespace, short string) string {
	if namespace == "" {
		return short
	}
	return namespace + "\\" + short
}

func shortName(fqn string) string {
	if idx := strings.LastIndex(fqn, "\\"); idx >= 0 {
		return fqn[idx+1:]
	}
	return fqn
}

// extractNameList pulls every name/qualified_name child out of a
// base_clause / class_interface_clause / use_declaration node,
// covering both single-interface and comma-separated multi-interface
// forms.
func extractNameList(tree *parser.Tree, n *tree_sitter.Node) []string {
	var names []string
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child.Kind() == "name" || child.Kind() == "qualified_name" {
			names = append(names, tree.NodeText(child))
		}
	}
	return names
}

