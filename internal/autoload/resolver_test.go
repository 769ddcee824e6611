package autoload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourze/php-packer/internal/logging"
	"github.com/tourze/php-packer/internal/store"
)

func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "catalog.db"), logging.NewNoop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, logging.NewNoop(), dir), dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolveClassPSR4(t *testing.T) {
	r, dir := newTestResolver(t)
	writeFile(t, filepath.Join(dir, "src", "Foo", "Bar.php"), "<?php\nnamespace App\\Foo;\nclass Bar {}\n")
	require.NoError(t, r.AddRule(store.RulePSR4, `App\`, filepath.Join(dir, "src"), 100))

	path, err := r.ResolveClass(`App\Foo\Bar`)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "src", "Foo", "Bar.php"), path)
}

func TestResolveClassPSR4NoMatch(t *testing.T) {
	r, dir := newTestResolver(t)
	writeFile(t, filepath.Join(dir, "src", "Foo", "Bar.php"), "<?php\nnamespace App\\Foo;\nclass Bar {}\n")
	require.NoError(t, r.AddRule(store.RulePSR4, `App\`, filepath.Join(dir, "src"), 100))

	path, err := r.ResolveClass(`App\Other\Baz`)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestResolveClassPSR0(t *testing.T) {
	r, dir := newTestResolver(t)
	writeFile(t, filepath.Join(dir, "lib", "Legacy", "Old", "Thing.php"), "<?php\nnamespace Legacy;\nclass Old_Thing {}\n")
	require.NoError(t, r.AddRule(store.RulePSR0, `Legacy\`, filepath.Join(dir, "lib"), 100))

	path, err := r.ResolveClass(`Legacy\Old_Thing`)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lib", "Legacy", "Old", "Thing.php"), path)
}

func TestLoadComposerManifestPSR4(t *testing.T) {
	r, dir := newTestResolver(t)
	writeFile(t, filepath.Join(dir, "src", "Widget.php"), "<?php\nnamespace Acme;\nclass Widget {}\n")
	manifestPath := filepath.Join(dir, "composer.json")
	writeFile(t, manifestPath, `{
		"autoload": { "psr-4": { "Acme\\": "src/" } }
	}`)

	require.NoError(t, r.LoadComposerManifest(manifestPath))
	path, err := r.ResolveClass(`Acme\Widget`)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "src", "Widget.php"), path)
}

func TestLoadComposerManifestFiles(t *testing.T) {
	r, dir := newTestResolver(t)
	writeFile(t, filepath.Join(dir, "helpers.php"), "<?php\nfunction helper() {}\n")
	manifestPath := filepath.Join(dir, "composer.json")
	writeFile(t, manifestPath, `{
		"autoload": { "files": ["helpers.php"] }
	}`)

	require.NoError(t, r.LoadComposerManifest(manifestPath))
	assert.Equal(t, []string{filepath.Join(dir, "helpers.php")}, r.RequiredFiles())
}

func TestResolveClassClassmap(t *testing.T) {
	r, dir := newTestResolver(t)
	writeFile(t, filepath.Join(dir, "legacy", "Thing.php"), "<?php\nnamespace Old;\nclass Thing {}\n")
	require.NoError(t, r.AddRule(store.RuleClassmap, "", filepath.Join(dir, "legacy"), 100))

	path, err := r.ResolveClass(`Old\Thing`)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "legacy", "Thing.php"), path)
}

func TestResolveUnknownHeuristic(t *testing.T) {
	r, dir := newTestResolver(t)
	writeFile(t, filepath.Join(dir, "src", "Helper.php"), "<?php\nclass Helper {}\n")

	path, err := r.ResolveUnknown("Helper")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "src", "Helper.php"), path)
}

func TestIsKnownExternal(t *testing.T) {
	assert.True(t, IsKnownExternal("Exception"))
	assert.True(t, IsKnownExternal(`Psr\Log\LoggerInterface`))
	assert.False(t, IsKnownExternal(`App\Foo\Bar`))
}
