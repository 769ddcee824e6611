package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadWithRootAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "packer.json", `{"entry": "index.php"}`)

	cfg, err := LoadWithRoot(path, dir)
	require.NoError(t, err)

	assert.Equal(t, "packed.php", cfg.Output)
	assert.Equal(t, "build/packer.db", cfg.Database)
	assert.Equal(t, DefaultExcludePatterns, cfg.ExcludePatterns)
}

func TestLoadWithRootMissingEntryFails(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "packer.json", `{"output": "out.php"}`)

	_, err := LoadWithRoot(path, dir)
	require.Error(t, err)
}

func TestLoadWithRootInvalidJSONFails(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "packer.json", `{not json`)

	_, err := LoadWithRoot(path, dir)
	require.Error(t, err)
}

func TestApplyDefaultsUnionsExcludeAndExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "packer.json",
		`{"entry": "index.php", "exclude": ["**/fixtures/**"], "exclude_patterns": ["**/tests/**", "**/fixtures/**"]}`)

	cfg, err := LoadWithRoot(path, dir)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"**/fixtures/**", "**/tests/**"}, cfg.ExcludePatterns)
}

func TestPathHelpersResolveRelativeToRoot(t *testing.T) {
	cfg := &Config{Entry: "index.php", Output: "out.php", Database: "db.sqlite", Root: "/proj"}
	assert.Equal(t, filepath.Join("/proj", "index.php"), cfg.EntryPath())
	assert.Equal(t, filepath.Join("/proj", "out.php"), cfg.OutputPath())
	assert.Equal(t, filepath.Join("/proj", "db.sqlite"), cfg.DatabasePath())
}

func TestPathHelpersPreserveAbsolutePaths(t *testing.T) {
	cfg := &Config{Entry: "/abs/index.php", Root: "/proj"}
	assert.Equal(t, "/abs/index.php", cfg.EntryPath())
}

func TestApplyOverridesOnlyWinsWhenNonEmpty(t *testing.T) {
	cfg := &Config{Entry: "index.php", Output: "out.php", Database: "db.sqlite"}
	cfg.ApplyOverrides("", "cli-out.php", "")
	assert.Equal(t, "index.php", cfg.Entry)
	assert.Equal(t, "cli-out.php", cfg.Output)
	assert.Equal(t, "db.sqlite", cfg.Database)
}
