package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourze/php-packer/internal/analyzer"
	"github.com/tourze/php-packer/internal/autoload"
	"github.com/tourze/php-packer/internal/logging"
	"github.com/tourze/php-packer/internal/parser"
	"github.com/tourze/php-packer/internal/store"
)

func newTestSetup(t *testing.T) (*Resolver, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "catalog.db"), logging.NewNoop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p, err := parser.New()
	require.NoError(t, err)
	t.Cleanup(p.Close)

	a := analyzer.New(st, p, logging.NewNoop(), dir, nil)
	al := autoload.New(st, logging.NewNoop(), dir)
	return New(st, a, al, logging.NewNoop(), dir), st, dir
}

func writePHP(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolveAllRequireChain(t *testing.T) {
	r, st, dir := newTestSetup(t)

	writePHP(t, filepath.Join(dir, "lib.php"), "<?php\nfunction helper() { return 1; }\n")
	writePHP(t, filepath.Join(dir, "entry.php"), "<?php\nrequire_once __DIR__ . '/lib.php';\nhelper();\n")

	err := r.ResolveAll(filepath.Join(dir, "entry.php"))
	require.NoError(t, err)

	libFile, err := st.GetFileByPath("lib.php")
	require.NoError(t, err)
	require.NotNil(t, libFile)
	assert.Equal(t, store.StatusCompleted, libFile.Status)

	deps, err := st.GetUnresolvedDependencies()
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestResolveAllClassExtends(t *testing.T) {
	r, st, dir := newTestSetup(t)

	writePHP(t, filepath.Join(dir, "Base.php"), "<?php\nnamespace App;\nclass Base {}\n")
	writePHP(t, filepath.Join(dir, "entry.php"), "<?php\nnamespace App;\nrequire_once __DIR__ . '/Base.php';\nclass Child extends Base {}\n")

	err := r.ResolveAll(filepath.Join(dir, "entry.php"))
	require.NoError(t, err)

	baseFile, err := st.GetFileByPath("Base.php")
	require.NoError(t, err)
	require.NotNil(t, baseFile)
	assert.Equal(t, store.StatusCompleted, baseFile.Status)
}

func TestResolveAllDynamicIncludeWarnsButDoesNotFail(t *testing.T) {
	r, _, dir := newTestSetup(t)
	writePHP(t, filepath.Join(dir, "entry.php"), "<?php\n$name = 'x';\nrequire $name . '.php';\n")

	err := r.ResolveAll(filepath.Join(dir, "entry.php"))
	// A dynamic include is terminal-but-non-fatal; any returned error
	// is a MultiError of warnings, not a hard failure.
	if err != nil {
		_, ok := err.(interface{ Len() int })
		assert.True(t, ok)
	}
}

func TestResolveAllMarksEntry(t *testing.T) {
	r, st, dir := newTestSetup(t)
	writePHP(t, filepath.Join(dir, "entry.php"), "<?php\necho 1;\n")

	require.NoError(t, r.ResolveAll(filepath.Join(dir, "entry.php")))

	entry, err := st.GetFileByPath("entry.php")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.IsEntry)
}

func TestResolveAllDrainsPendingFiles(t *testing.T) {
	r, st, dir := newTestSetup(t)
	writePHP(t, filepath.Join(dir, "entry.php"), "<?php\necho 1;\n")
	writePHP(t, filepath.Join(dir, "extra.php"), "<?php\nfunction extra() {}\n")

	// Seed a pending catalog record the dependency graph never reaches,
	// the way an include-glob pre-pass would.
	_, err := st.UpsertFile("extra.php", "<?php\nfunction extra() {}\n", store.FileKindScript, "", false, false)
	require.NoError(t, err)

	require.NoError(t, r.ResolveAll(filepath.Join(dir, "entry.php")))

	extra, err := st.GetFileByPath("extra.php")
	require.NoError(t, err)
	require.NotNil(t, extra)
	assert.Equal(t, store.StatusCompleted, extra.Status)
}

func TestResolveAllUnresolvableKnownExternalIsSilent(t *testing.T) {
	r, _, dir := newTestSetup(t)
	writePHP(t, filepath.Join(dir, "entry.php"), "<?php\nclass Thing extends \\Exception {}\n")

	err := r.ResolveAll(filepath.Join(dir, "entry.php"))
	require.NoError(t, err)
}
