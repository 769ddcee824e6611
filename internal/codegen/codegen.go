// Package codegen implements the CodeGenerator: it turns a
// merge.Program plus the entry file's own executable statements into
// one self-contained PHP source file and writes it with the
// executable bit set.
package codegen

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	pkgerrors "github.com/tourze/php-packer/internal/errors"
	"github.com/tourze/php-packer/internal/logging"
	"github.com/tourze/php-packer/internal/merge"
	"github.com/tourze/php-packer/internal/parser"
	"github.com/tourze/php-packer/internal/pathutil"
)

// declarationKinds are the top-level entry-file node kinds already
// captured as Class/Interface/Trait/Function/Use/UseGroup AstNodes by
// the analyzer; the entry-code extraction pass drops them so they are
// never emitted twice.
var declarationKinds = map[string]bool{
	"namespace_definition":       true,
	"namespace_use_declaration":  true,
	"class_declaration":          true,
	"interface_declaration":      true,
	"trait_declaration":          true,
	"function_definition":        true,
	"declare_statement":          true,
	"php_tag":                    true,
}

var includeExprKinds = map[string]bool{
	"require_expression": true, "require_once_expression": true,
	"include_expression": true, "include_once_expression": true,
}

// Options controls optional output shaping, mirroring config's
// Optimization block and the error_handler bootstrap flag.
type Options struct {
	RemoveComments     bool
	MinimizeWhitespace bool
	InjectErrorHandler bool
}

// Generator produces the final bundle text.
type Generator struct {
	parser *parser.Parser
	log    logging.Logger
	root   string
}

// New builds a Generator. p is used only to re-parse the entry file
// for executable-statement extraction.
func New(p *parser.Parser, log logging.Logger, root string) *Generator {
	if log == nil {
		log = logging.NewNoop()
	}
	return &Generator{parser: p, log: log, root: root}
}

// Generate assembles prog into final PHP source. entryAbsPath is the
// entry file's path on disk; bundledRelPaths lists every bundled
// file's project-relative path, used to recognize and drop
// require/include statements in the entry file's own executable code
// that merely pull in a file already bundled as a declaration.
func (g *Generator) Generate(prog *merge.Program, entryAbsPath string, bundledRelPaths []string, opts Options) (string, error) {
	entryCode, entryNS, err := g.extractEntryCode(entryAbsPath, bundledRelPaths)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("<?php\n\n")
	b.WriteString("declare(strict_types=1);\n\n")

	for _, block := range prog.RawBlocks {
		b.WriteString(fmt.Sprintf("// --- inlined verbatim: %s ---\n", block.Path))
		b.WriteString(stripPHPTags(block.Content))
		b.WriteString("\n")
	}

	named, global := splitNamespaces(prog.Namespaces)

	// A namespaced entry's executable code belongs to that namespace;
	// make sure a block exists for it even if no declarations landed
	// there.
	if entryNS != "" && entryCode != "" {
		found := false
		for _, ns := range named {
			if ns.Name == entryNS {
				found = true
				break
			}
		}
		if !found {
			named = append(named, &merge.NamespaceBlock{Name: entryNS})
		}
	}

	// Un-namespaced entry code is global code: its presence — like the
	// bootstrap's — forces the braced form so it never lands inside a
	// named namespace.
	globalEntry := entryCode
	if entryNS != "" {
		globalEntry = ""
	}
	useBraces := len(named) > 0 && (len(named) > 1 || global != nil || globalEntry != "" || opts.InjectErrorHandler)

	for _, ns := range named {
		extra := ""
		if ns.Name == entryNS && entryNS != "" {
			extra = entryCode
		}
		writeNamespaceBlock(&b, ns, useBraces, extra)
	}

	globalBody := ""
	if global != nil {
		globalBody = renderBody(global.Uses, global.Declarations)
	}
	// Bootstrap code goes inside the global-namespace block when one
	// exists, otherwise at top level — after merged global statements,
	// before entry executable code.
	if globalBody != "" || globalEntry != "" || opts.InjectErrorHandler {
		if useBraces {
			b.WriteString("namespace {\n")
		}
		if globalBody != "" {
			b.WriteString(globalBody)
		}
		if opts.InjectErrorHandler {
			b.WriteString(bootstrapErrorHandler)
			b.WriteString("\n")
		}
		if globalEntry != "" {
			b.WriteString(globalEntry)
			b.WriteString("\n")
		}
		if useBraces {
			b.WriteString("}\n")
		}
	}

	out := b.String()
	if opts.RemoveComments {
		out = stripComments(out)
	}
	if opts.MinimizeWhitespace {
		out = collapseBlankLines(out)
	}
	return out, nil
}

// Write assembles and writes the bundle to outPath with the
// executable bit set (0755).
func (g *Generator) Write(prog *merge.Program, entryAbsPath, outPath string, bundledRelPaths []string, opts Options) error {
	content, err := g.Generate(prog, entryAbsPath, bundledRelPaths, opts)
	if err != nil {
		return err
	}
	dir := filepath.Dir(outPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return pkgerrors.NewWriteError(outPath, err)
		}
	}

	// Write-then-rename so a crash mid-write never leaves a truncated
	// bundle at the output path.
	tmp, err := os.CreateTemp(dir, ".packed-*")
	if err != nil {
		return pkgerrors.NewWriteError(outPath, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return pkgerrors.NewWriteError(outPath, err)
	}
	if err := tmp.Chmod(0o755); err != nil {
		tmp.Close()
		return pkgerrors.NewWriteError(outPath, err)
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.NewWriteError(outPath, err)
	}
	if err := os.Rename(tmp.Name(), outPath); err != nil {
		return pkgerrors.NewWriteError(outPath, err)
	}
	return nil
}

func splitNamespaces(blocks []*merge.NamespaceBlock) (named []*merge.NamespaceBlock, global *merge.NamespaceBlock) {
	for _, b := range blocks {
		if b.Name == "" {
			global = b
		} else {
			named = append(named, b)
		}
	}
	return named, global
}

func writeNamespaceBlock(b *strings.Builder, ns *merge.NamespaceBlock, braced bool, entryCode string) {
	body := renderBody(ns.Uses, ns.Declarations)
	if braced {
		b.WriteString(fmt.Sprintf("namespace %s {\n", ns.Name))
		b.WriteString(body)
		if entryCode != "" {
			b.WriteString(entryCode)
			b.WriteString("\n")
		}
		b.WriteString("}\n\n")
	} else {
		b.WriteString(fmt.Sprintf("namespace %s;\n\n", ns.Name))
		b.WriteString(body)
		if entryCode != "" {
			b.WriteString(entryCode)
			b.WriteString("\n")
		}
	}
}

func renderBody(uses, decls []string) string {
	var b strings.Builder
	for _, u := range uses {
		b.WriteString(fmt.Sprintf("use %s;\n", u))
	}
	if len(uses) > 0 {
		b.WriteString("\n")
	}
	for _, d := range decls {
		b.WriteString(d)
		b.WriteString("\n\n")
	}
	return b.String()
}

// bootstrapErrorHandler is injected when config.error_handler is
// true; it rethrows unmasked PHP errors as ErrorException.
const bootstrapErrorHandler = `set_error_handler(static function (int $errno, string $errstr, string $errfile, int $errline): bool {
    if (!(error_reporting() & $errno)) {
        return false;
    }
    throw new \ErrorException($errstr, 0, $errno, $errfile, $errline);
});
`

// extractEntryCode re-parses the entry file and returns the verbatim
// text of every top-level statement that is not itself a declaration
// already captured as an AstNode and not a require/include of a file
// already present in the bundle, plus the namespace the entry file
// declares (empty for a global-namespace script).
func (g *Generator) extractEntryCode(entryAbsPath string, bundledRelPaths []string) (string, string, error) {
	content, err := os.ReadFile(entryAbsPath)
	if err != nil {
		return "", "", pkgerrors.NewNotFoundError(entryAbsPath)
	}
	tree, err := g.parser.Parse(entryAbsPath, content)
	if err != nil {
		return "", "", err
	}
	defer tree.Close()

	entryNS := ""
	var out strings.Builder

	emit := func(child *tree_sitter.Node) {
		kind := child.Kind()
		if declarationKinds[kind] {
			return
		}
		if kind == "expression_statement" && g.isBundledInclude(tree, child, bundledRelPaths) {
			return
		}
		text := strings.TrimSpace(g.renderStatement(tree, child, bundledRelPaths))
		if text == "" {
			return
		}
		out.WriteString(text)
		out.WriteString("\n")
	}

	root := tree.Root
	for i := uint(0); i < root.ChildCount(); i++ {
		child := root.Child(i)
		if child.Kind() == "namespace_definition" {
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				entryNS = tree.NodeText(nameNode)
			}
			// Braced form: the executable statements live inside the
			// namespace body rather than as top-level siblings.
			if body := child.ChildByFieldName("body"); body != nil {
				for j := uint(0); j < body.ChildCount(); j++ {
					emit(body.Child(j))
				}
			}
			continue
		}
		emit(child)
	}
	return out.String(), entryNS, nil
}

// renderStatement emits one kept entry statement, excising any nested
// require/include of an already-bundled file (a conditional include
// whose both branches are merged leaves an empty branch body behind,
// which is legal PHP).
func (g *Generator) renderStatement(tree *parser.Tree, n *tree_sitter.Node, bundledRelPaths []string) string {
	var spans [][2]int
	g.collectBundledIncludeSpans(tree, n, bundledRelPaths, &spans)
	text := tree.NodeText(n)
	if len(spans) == 0 {
		return text
	}
	base := int(n.StartByte())
	var b strings.Builder
	last := 0
	for _, sp := range spans {
		start, end := sp[0]-base, sp[1]-base
		if start < last || end > len(text) {
			continue
		}
		b.WriteString(text[last:start])
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

func (g *Generator) collectBundledIncludeSpans(tree *parser.Tree, n *tree_sitter.Node, bundledRelPaths []string, spans *[][2]int) {
	if n.Kind() == "expression_statement" && g.isBundledInclude(tree, n, bundledRelPaths) {
		*spans = append(*spans, [2]int{int(n.StartByte()), int(n.EndByte())})
		return
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		g.collectBundledIncludeSpans(tree, n.Child(i), bundledRelPaths, spans)
	}
}

func (g *Generator) isBundledInclude(tree *parser.Tree, stmt *tree_sitter.Node, bundledRelPaths []string) bool {
	for i := uint(0); i < stmt.ChildCount(); i++ {
		expr := stmt.Child(i)
		if !includeExprKinds[expr.Kind()] {
			continue
		}
		target := extractLiteralInclude(tree, expr)
		if target == "" {
			return false // dynamic: keep it, can't prove it's redundant
		}
		if strings.HasSuffix(target, "vendor/autoload.php") {
			return true // the bundle replaces Composer's autoloader outright
		}
		target = pathutil.Canonical(target, g.root)
		return pathutil.MatchesAny(target, bundledRelPaths)
	}
	return false
}

// extractLiteralInclude pulls the literal path out of an include-family
// expression: a bare string argument, or the string right-hand side of
// a simple `__DIR__ . '/foo.php'` concatenation (the leading separator
// is trimmed so suffix matching still lines up).
func extractLiteralInclude(tree *parser.Tree, n *tree_sitter.Node) string {
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		switch child.Kind() {
		case "string", "encapsed_string":
			if lit := quotedLiteral(tree, child); lit != "" {
				return lit
			}
		case "binary_expression":
			expr := tree.NodeText(child)
			if pathutil.HasDirToken(expr) {
				if lit := stringLiteralIn(tree, child); lit != "" {
					return strings.TrimLeft(lit, "/")
				}
			}
		}
	}
	return ""
}

func stringLiteralIn(tree *parser.Tree, n *tree_sitter.Node) string {
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child.Kind() == "string" || child.Kind() == "encapsed_string" {
			if lit := quotedLiteral(tree, child); lit != "" {
				return lit
			}
		}
	}
	return ""
}

// quotedLiteral returns the text between the quotes of a single- or
// double-quoted string node; a double-quoted string that interpolates
// (contains `$` or `{`) is not a literal and yields "".
func quotedLiteral(tree *parser.Tree, n *tree_sitter.Node) string {
	text := tree.NodeText(n)
	if len(text) < 2 {
		return ""
	}
	if n.Kind() == "encapsed_string" && strings.ContainsAny(text, "${") {
		return ""
	}
	return text[1 : len(text)-1]
}

func stripPHPTags(content string) string {
	content = strings.ReplaceAll(content, "<?php", "")
	content = strings.ReplaceAll(content, "?>", "")
	return strings.TrimSpace(content) + "\n"
}

// docTagKeep lists the doc-comment tags always preserved by comment
// removal, regardless of what follows the comment.
var docTagKeep = regexp.MustCompile(`@(throws|deprecated|see|since|todo|fixme|internal|api)\b`)

// paramOrReturnTag matches a single @param or @return doc-comment line.
var paramOrReturnTag = regexp.MustCompile(`(?m)^([ \t]*\*?[ \t]*)@(param|return)\b.*$`)

// paramTagVar pulls the `$name` a @param line documents, to match it
// against the following signature's own parameter list.
var paramTagVar = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

var lineComment = regexp.MustCompile(`(?m)^[ \t]*//[^\n]*\n?`)
var blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)

// functionSignature captures the parameter list and optional return
// type of the function/method declaration immediately following a doc
// comment, so @param/@return preservation can check whether the
// signature already carries a type declaration.
var functionSignature = regexp.MustCompile(`(?s)function\s+\w+\s*\(([^)]*)\)\s*(:\s*[?A-Za-z0-9_\\|]+)?`)

// stripComments removes // and /* */ comments. Block comments carrying
// @throws/@deprecated/@see/@since/@todo/@fixme/@internal/@api are kept;
// in any block comment, @param/@return lines are kept only when the
// documented parameter lacks a type declaration or the method lacks a
// return type — everything else in an otherwise-untagged docblock is
// dropped.
func stripComments(src string) string {
	var b strings.Builder
	last := 0
	for _, loc := range blockComment.FindAllStringIndex(src, -1) {
		b.WriteString(src[last:loc[0]])
		b.WriteString(filterDocComment(src[loc[0]:loc[1]], src[loc[1]:]))
		last = loc[1]
	}
	b.WriteString(src[last:])
	return lineComment.ReplaceAllString(b.String(), "")
}

func filterDocComment(comment, following string) string {
	alwaysKeep := docTagKeep.MatchString(comment)

	if !paramOrReturnTag.MatchString(comment) {
		if alwaysKeep {
			return comment
		}
		return ""
	}

	sig := functionSignature.FindStringSubmatch(following)
	var params, returnType string
	if sig != nil {
		params = sig[1]
		returnType = strings.TrimSpace(sig[2])
	}
	untypedParams := untypedParamNames(params)
	returnUntyped := returnType == ""

	kept := paramOrReturnTag.ReplaceAllStringFunc(comment, func(line string) string {
		if strings.Contains(line, "@return") {
			if returnUntyped {
				return line
			}
			return ""
		}
		// @param: keep only if this specific parameter lacks a type.
		m := paramTagVar.FindStringSubmatch(line)
		if m == nil {
			return line // malformed tag, keep conservatively
		}
		if untypedParams[m[1]] {
			return line
		}
		return ""
	})

	if !alwaysKeep && strings.TrimSpace(stripBlankDocLines(kept)) == "/**\n*/" {
		return ""
	}
	return stripBlankDocLines(kept)
}

var blankDocLine = regexp.MustCompile(`(?m)^[ \t]*\*[ \t]*\n`)

func stripBlankDocLines(s string) string {
	return blankDocLine.ReplaceAllString(s, "")
}

// untypedParamNames returns the set of parameter names in a signature's
// parameter list that carry no type declaration.
func untypedParamNames(params string) map[string]bool {
	out := make(map[string]bool)
	if strings.TrimSpace(params) == "" {
		return out
	}
	for _, p := range splitParams(params) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		m := paramTagVar.FindStringSubmatch(p)
		if m == nil {
			continue
		}
		dollarIdx := strings.Index(p, "$")
		before := p[:dollarIdx]
		before = strings.TrimPrefix(before, "public")
		before = strings.TrimPrefix(before, "private")
		before = strings.TrimPrefix(before, "protected")
		before = strings.TrimPrefix(before, "readonly")
		if strings.TrimSpace(before) == "" {
			out[m[1]] = true
		}
	}
	return out
}

// splitParams splits a parameter list on top-level commas (none of the
// PHP types this tool bundles use nested parens/braces in a default
// value complex enough to defeat a naive comma split).
func splitParams(params string) []string {
	return strings.Split(params, ",")
}

var (
	blankRun      = regexp.MustCompile(`\n{3,}`)
	trailingSpace = regexp.MustCompile(`(?m)[ \t]+$`)
)

// collapseBlankLines reduces runs of blank lines to a single blank
// line and trims trailing whitespace from every line.
func collapseBlankLines(src string) string {
	src = trailingSpace.ReplaceAllString(src, "")
	return blankRun.ReplaceAllString(src, "\n\n")
}
