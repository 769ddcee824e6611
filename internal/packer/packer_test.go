package packer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourze/php-packer/internal/config"
	"github.com/tourze/php-packer/internal/logging"
)

func writeProject(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Greeter.php"), []byte(
		"<?php\nnamespace App;\nclass Greeter {\n    public function hello(): string { return 'hi'; }\n}\n",
	), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "entry.php"), []byte(
		"<?php\nnamespace App;\nrequire_once __DIR__ . '/Greeter.php';\n$g = new Greeter();\necho $g->hello();\n",
	), 0o644))
}

func TestPackProducesExecutableBundle(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir)

	cfg := &config.Config{
		Entry:    "entry.php",
		Output:   "bundle.php",
		Database: "packer.db",
		Root:     dir,
	}

	_ = Pack(cfg, logging.NewNoop()) // non-fatal warnings are acceptable

	info, statErr := os.Stat(cfg.OutputPath())
	require.NoError(t, statErr)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	content, readErr := os.ReadFile(cfg.OutputPath())
	require.NoError(t, readErr)
	assert.Contains(t, string(content), "class Greeter")
	assert.Contains(t, string(content), "new Greeter()")
}

func TestVerifyReportsCatalogStats(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir)

	cfg := &config.Config{
		Entry:    "entry.php",
		Output:   "bundle.php",
		Database: "packer.db",
		Root:     dir,
	}

	_ = Pack(cfg, logging.NewNoop()) // non-fatal warnings are fine here

	report, err := Verify(cfg, logging.NewNoop())
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalFiles)
	assert.Equal(t, 2, report.AnalyzedFiles)
	assert.Zero(t, report.FailedFiles)
}
