// Package packer is the Glue: it wires config, store, parser,
// analyzer, autoload, resolve, loadorder, merge, and codegen into the
// two operations the driver exposes — Pack (run the full pipeline and
// write a bundle) and Verify (open an existing catalog read-only and
// report its state). It owns every subsystem's lifecycle and exposes
// a small number of operations to cmd/packer.
package packer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/tourze/php-packer/internal/analyzer"
	"github.com/tourze/php-packer/internal/autoload"
	"github.com/tourze/php-packer/internal/codegen"
	"github.com/tourze/php-packer/internal/config"
	pkgerrors "github.com/tourze/php-packer/internal/errors"
	"github.com/tourze/php-packer/internal/loadorder"
	"github.com/tourze/php-packer/internal/logging"
	"github.com/tourze/php-packer/internal/merge"
	"github.com/tourze/php-packer/internal/parser"
	"github.com/tourze/php-packer/internal/resolve"
	"github.com/tourze/php-packer/internal/store"
)

// vendorDirs are skipped by the analyzer regardless of autoload
// rules, on top of the hard-coded vendor/autoload.php and
// vendor/composer suffixes.
var vendorDirs = []string{"vendor/"}

// Report summarizes a catalog for the verify subcommand.
type Report struct {
	TotalFiles      int
	AnalyzedFiles   int
	FailedFiles     int
	UnresolvedDeps  int
	EntryPath       string
}

// Pack runs the full pipeline: open the catalog, load autoload
// rules, resolve dependencies to a fixed point, compute load order,
// merge ASTs, generate and write the
// bundle. It returns a *errors.MultiError-wrapping warning set on
// partial success, or a fatal typed error that aborts the run.
func Pack(cfg *config.Config, log logging.Logger) error {
	if log == nil {
		log = logging.NewNoop()
	}

	if dir := filepath.Dir(cfg.DatabasePath()); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return pkgerrors.NewWriteError(cfg.DatabasePath(), err)
		}
	}
	st, err := store.Open(cfg.DatabasePath(), log)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := parser.New()
	if err != nil {
		return err
	}
	defer p.Close()

	al := autoload.New(st, log, cfg.Root)
	if err := loadAutoloadConfig(al, cfg); err != nil {
		return err
	}

	az := analyzer.New(st, p, log, cfg.Root, vendorDirs)
	az.SetExcludeGlobs(cfg.ExcludePatterns)
	rs := resolve.New(st, az, al, log, cfg.Root)

	if err := preAnalyzeIncludes(az, cfg); err != nil {
		return err
	}

	var warnings error
	if err := rs.ResolveAll(cfg.EntryPath()); err != nil {
		warnings = err
		log.Warn("dependency resolution completed with warnings", zap.Error(err))
	}

	if err := bundleRequiredFiles(az, al); err != nil {
		return err
	}

	entry, err := st.GetFileByPath(relEntry(cfg))
	if err != nil {
		return err
	}
	if entry == nil {
		return pkgerrors.NewEntryNotBundledError(cfg.Entry)
	}

	lo := loadorder.New(st, log)
	order, err := lo.LoadOrder(entry.ID)
	if err != nil {
		return err
	}
	order, err = prependRequiredFiles(st, order, al, cfg.Root)
	if err != nil {
		return err
	}
	order, err = appendIncludeFiles(st, order, cfg)
	if err != nil {
		return err
	}

	mg := merge.New(st)
	mg.SetPruneUnused(cfg.Optimization.Enabled)
	prog, err := mg.Merge(order, entry.ID)
	if err != nil {
		return err
	}

	bundledRel := make([]string, 0, len(order))
	for _, id := range order {
		f, err := st.GetFileByID(id)
		if err != nil {
			return err
		}
		if f != nil {
			bundledRel = append(bundledRel, f.Path)
		}
	}

	opts := codegen.Options{
		RemoveComments:     cfg.Optimization.RemoveComments,
		MinimizeWhitespace: cfg.Optimization.MinimizeWhitespace,
		InjectErrorHandler: cfg.ErrorHandler,
	}
	gen := codegen.New(p, log, cfg.Root)
	if err := gen.Write(prog, cfg.EntryPath(), cfg.OutputPath(), bundledRel, opts); err != nil {
		return err
	}

	log.Info("bundle written",
		zap.String("output", cfg.OutputPath()),
		zap.Int("files_bundled", len(order)))

	return warnings
}

// Verify opens an existing catalog read-only and reports its state,
// without re-running analysis or regenerating a bundle.
func Verify(cfg *config.Config, log logging.Logger) (*Report, error) {
	if log == nil {
		log = logging.NewNoop()
	}

	st, err := store.Open(cfg.DatabasePath(), log)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	total, completed, failed, err := st.FileStats()
	if err != nil {
		return nil, err
	}

	unresolved, err := st.GetUnresolvedDependencies()
	if err != nil {
		return nil, err
	}

	return &Report{
		EntryPath:      cfg.Entry,
		TotalFiles:     total,
		AnalyzedFiles:  completed,
		FailedFiles:    failed,
		UnresolvedDeps: len(unresolved),
	}, nil
}

// loadAutoloadConfig registers composer.json (if present) and any
// autoload.psr-4 entries given directly in the input config; config
// rules layer on top of Composer's at a higher priority.
func loadAutoloadConfig(al *autoload.Resolver, cfg *config.Config) error {
	composerPath := filepath.Join(cfg.Root, "composer.json")
	if err := al.LoadComposerManifest(composerPath); err != nil {
		return err
	}
	for prefix, raw := range cfg.Autoload.PSR4 {
		for _, p := range decodeConfigPath(raw) {
			if err := al.AddRule(store.RulePSR4, prefix, filepath.Join(cfg.Root, p), 200); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeConfigPath handles the same string-or-array ambiguity the
// Composer manifest itself allows, since config.Autoload.PSR4 mirrors
// composer.json's shape verbatim.
func decodeConfigPath(raw json.RawMessage) []string {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

// preAnalyzeIncludes eagerly analyzes every file matching the
// config's include/include_paths glob patterns, so files that are
// never reached by a require/symbol edge (e.g. autoloaded bootstrap
// scripts discovered only by directory convention) still end up in
// the catalog and therefore in the bundle.
func preAnalyzeIncludes(az *analyzer.FileAnalyzer, cfg *config.Config) error {
	patterns := append(append([]string(nil), cfg.Include...), cfg.IncludePaths...)
	for _, pattern := range patterns {
		full := pattern
		if !filepath.IsAbs(full) {
			full = filepath.Join(cfg.Root, pattern)
		}
		matches, err := doublestar.FilepathGlob(full)
		if err != nil {
			return pkgerrors.NewConfigError("include", err)
		}
		for _, m := range matches {
			if err := az.Analyze(m); err != nil {
				return fmt.Errorf("analyzing include pattern %s match %s: %w", pattern, m, err)
			}
		}
	}
	return nil
}

// bundleRequiredFiles ensures every Composer "files" autoload target
// is analyzed and present in the catalog even when nothing in the
// entry's dependency graph references it by symbol.
func bundleRequiredFiles(az *analyzer.FileAnalyzer, al *autoload.Resolver) error {
	for _, f := range al.RequiredFiles() {
		if err := az.Analyze(f); err != nil {
			return fmt.Errorf("analyzing autoload files entry %s: %w", f, err)
		}
	}
	return nil
}

// prependRequiredFiles ensures every Composer "files" autoload target
// appears in the final bundle order even when the load-order graph
// never reached it (nothing in the entry's dependency graph names a
// files-autoload bootstrap script by symbol), placing
// them first since they are conventionally loaded before anything
// that might depend on their side effects.
func prependRequiredFiles(st *store.Store, order []store.FileID, al *autoload.Resolver, root string) ([]store.FileID, error) {
	present := make(map[store.FileID]bool, len(order))
	for _, id := range order {
		present[id] = true
	}

	var lead []store.FileID
	for _, path := range al.RequiredFiles() {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		f, err := st.GetFileByPath(filepath.ToSlash(rel))
		if err != nil {
			return nil, err
		}
		if f == nil || present[f.ID] {
			continue
		}
		present[f.ID] = true
		lead = append(lead, f.ID)
	}
	return append(lead, order...), nil
}

// appendIncludeFiles appends every file preAnalyzeIncludes pulled into
// the catalog that isn't already part of order, after everything the
// dependency graph placed — include/include_paths patterns name
// project files pre-queued for analysis, not load-bearing bootstrap
// scripts the way Composer's "files" autoload is, so they are trailed
// rather than led.
func appendIncludeFiles(st *store.Store, order []store.FileID, cfg *config.Config) ([]store.FileID, error) {
	patterns := append(append([]string(nil), cfg.Include...), cfg.IncludePaths...)
	if len(patterns) == 0 {
		return order, nil
	}
	present := make(map[store.FileID]bool, len(order))
	for _, id := range order {
		present[id] = true
	}

	var trail []store.FileID
	for _, pattern := range patterns {
		full := pattern
		if !filepath.IsAbs(full) {
			full = filepath.Join(cfg.Root, pattern)
		}
		matches, err := doublestar.FilepathGlob(full)
		if err != nil {
			continue
		}
		for _, m := range matches {
			rel, err := filepath.Rel(cfg.Root, m)
			if err != nil {
				continue
			}
			f, err := st.GetFileByPath(filepath.ToSlash(rel))
			if err != nil {
				return nil, err
			}
			if f == nil || present[f.ID] {
				continue
			}
			present[f.ID] = true
			trail = append(trail, f.ID)
		}
	}
	return append(order, trail...), nil
}

func relEntry(cfg *config.Config) string {
	rel, err := filepath.Rel(cfg.Root, cfg.EntryPath())
	if err != nil {
		return cfg.Entry
	}
	return filepath.ToSlash(rel)
}
