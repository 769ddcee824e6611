package codegen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourze/php-packer/internal/logging"
	"github.com/tourze/php-packer/internal/merge"
	"github.com/tourze/php-packer/internal/parser"
)

func TestGenerateSingleNamespace(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "entry.php")
	require.NoError(t, os.WriteFile(entry, []byte("<?php\nnamespace App;\necho greet();\n"), 0o644))

	p, err := parser.New()
	require.NoError(t, err)
	defer p.Close()

	prog := &merge.Program{
		Namespaces: []*merge.NamespaceBlock{
			{Name: "App", Declarations: []string{"function greet() { return 'hi'; }"}},
		},
	}

	g := New(p, logging.NewNoop(), dir)
	out, err := g.Generate(prog, entry, nil, Options{})
	require.NoError(t, err)

	assert.Contains(t, out, "<?php")
	assert.Contains(t, out, "declare(strict_types=1);")
	assert.Contains(t, out, "namespace App;")
	assert.Contains(t, out, "function greet()")
	assert.Contains(t, out, "echo greet();")
}

func TestGenerateInjectsErrorHandler(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "entry.php")
	require.NoError(t, os.WriteFile(entry, []byte("<?php\necho 1;\n"), 0o644))

	p, err := parser.New()
	require.NoError(t, err)
	defer p.Close()

	g := New(p, logging.NewNoop(), dir)
	out, err := g.Generate(&merge.Program{}, entry, nil, Options{InjectErrorHandler: true})
	require.NoError(t, err)
	assert.Contains(t, out, "set_error_handler")
}

func TestGenerateErrorHandlerGoesInsideGlobalBlockWithNamespaces(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "entry.php")
	require.NoError(t, os.WriteFile(entry, []byte("<?php\nuse App\\Calc;\necho (new Calc)->add(2, 3);\n"), 0o644))

	p, err := parser.New()
	require.NoError(t, err)
	defer p.Close()

	prog := &merge.Program{
		Namespaces: []*merge.NamespaceBlock{
			{Name: "App", Declarations: []string{"class Calc { public function add($a, $b) { return $a + $b; } }"}},
		},
	}

	g := New(p, logging.NewNoop(), dir)
	out, err := g.Generate(prog, entry, nil, Options{InjectErrorHandler: true})
	require.NoError(t, err)

	// With a namespace present, every statement must live inside a
	// braced namespace block; the bootstrap belongs to the global one,
	// before the entry code.
	assert.Contains(t, out, "namespace App {")
	assert.Contains(t, out, "namespace {")
	handlerAt := strings.Index(out, "set_error_handler")
	globalAt := strings.Index(out, "namespace {")
	entryAt := strings.Index(out, "echo (new Calc)->add(2, 3);")
	require.NotEqual(t, -1, handlerAt)
	require.NotEqual(t, -1, globalAt)
	require.NotEqual(t, -1, entryAt)
	assert.Greater(t, handlerAt, globalAt)
	assert.Greater(t, entryAt, handlerAt)
}

func TestGenerateMinimizeWhitespaceCollapsesBlankRuns(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "entry.php")
	require.NoError(t, os.WriteFile(entry, []byte("<?php\n\n\n\n\necho 1;\n"), 0o644))

	p, err := parser.New()
	require.NoError(t, err)
	defer p.Close()

	g := New(p, logging.NewNoop(), dir)
	out, err := g.Generate(&merge.Program{}, entry, nil, Options{MinimizeWhitespace: true})
	require.NoError(t, err)
	assert.NotContains(t, out, "\n\n\n\n")
}

func TestGenerateRemoveCommentsKeepsDocTagsAndUntypedParamReturn(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "entry.php")
	require.NoError(t, os.WriteFile(entry, []byte("<?php\necho 1;\n"), 0o644))

	p, err := parser.New()
	require.NoError(t, err)
	defer p.Close()

	prog := &merge.Program{
		Namespaces: []*merge.NamespaceBlock{{
			Name: "",
			Declarations: []string{
				"/**\n * Adds two numbers.\n * @param $a first\n * @param int $b second\n * @return mixed\n */\nfunction add($a, int $b) { return $a + $b; }",
				"// a throwaway line comment\nfunction noop() {}",
				"/**\n * @deprecated use add2() instead\n */\nfunction add1() {}",
			},
		}},
	}

	g := New(p, logging.NewNoop(), dir)
	out, err := g.Generate(prog, entry, nil, Options{RemoveComments: true})
	require.NoError(t, err)

	assert.NotContains(t, out, "a throwaway line comment")
	assert.Contains(t, out, "@deprecated")
	assert.Contains(t, out, "@param $a")
	assert.NotContains(t, out, "@param int $b")
	assert.Contains(t, out, "@return mixed")
}

func TestGenerateStripsConditionalBundledIncludes(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "entry.php")
	require.NoError(t, os.WriteFile(entry, []byte(
		"<?php\nif (PHP_SAPI === \"cli\") {\n    require \"cli.php\";\n} else {\n    require \"web.php\";\n}\necho \"done\";\n",
	), 0o644))

	p, err := parser.New()
	require.NoError(t, err)
	defer p.Close()

	g := New(p, logging.NewNoop(), dir)
	out, err := g.Generate(&merge.Program{}, entry, []string{"cli.php", "web.php"}, Options{})
	require.NoError(t, err)

	assert.NotContains(t, out, `require "cli.php"`)
	assert.NotContains(t, out, `require "web.php"`)
	assert.Contains(t, out, `echo "done";`)
}

func TestGenerateStripsVendorAutoloadRequire(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "entry.php")
	require.NoError(t, os.WriteFile(entry, []byte(
		"<?php\nrequire __DIR__ . '/vendor/autoload.php';\necho 1;\n",
	), 0o644))

	p, err := parser.New()
	require.NoError(t, err)
	defer p.Close()

	g := New(p, logging.NewNoop(), dir)
	out, err := g.Generate(&merge.Program{}, entry, nil, Options{})
	require.NoError(t, err)

	assert.NotContains(t, out, "vendor/autoload.php")
	assert.Contains(t, out, "echo 1;")
}

func TestWriteSetsExecutableBit(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "entry.php")
	require.NoError(t, os.WriteFile(entry, []byte("<?php\necho 1;\n"), 0o644))

	p, err := parser.New()
	require.NoError(t, err)
	defer p.Close()

	g := New(p, logging.NewNoop(), dir)
	out := filepath.Join(dir, "bundle.php")
	require.NoError(t, g.Write(&merge.Program{}, entry, out, nil, Options{}))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}
