// Package resolve implements the DependencyResolver: it drives file
// analysis to a fixed point, binding every Dependency edge the
// catalog holds to a concrete target file — either by filesystem path
// (require/include family) or by symbol FQN (extends/implements/
// use_trait/use_class) — analyzing newly-discovered files as it goes.
package resolve

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tourze/php-packer/internal/analyzer"
	"github.com/tourze/php-packer/internal/autoload"
	pkgerrors "github.com/tourze/php-packer/internal/errors"
	"github.com/tourze/php-packer/internal/logging"
	"github.com/tourze/php-packer/internal/pathutil"
	"github.com/tourze/php-packer/internal/store"
)

// maxPasses bounds the fixed-point loop: each pass can discover new
// files whose own dependencies need a further pass, but pathological
// inputs must not spin forever.
const maxPasses = 5

// Resolver is the DependencyResolver.
type Resolver struct {
	st       *store.Store
	analyzer *analyzer.FileAnalyzer
	autoload *autoload.Resolver
	log      logging.Logger
	root     string

	processing map[string]bool // circular-analysis guard
	warned     map[string]bool // warn-once-give-up for dynamic/unresolvable targets
}

// New builds a Resolver.
func New(st *store.Store, a *analyzer.FileAnalyzer, al *autoload.Resolver, log logging.Logger, root string) *Resolver {
	if log == nil {
		log = logging.NewNoop()
	}
	return &Resolver{
		st: st, analyzer: a, autoload: al, log: log, root: root,
		processing: make(map[string]bool),
		warned:     make(map[string]bool),
	}
}

// ResolveAll analyzes entryPath and drives dependency resolution to a
// fixed point, returning a MultiError of non-fatal warnings collected
// along the way (unresolved targets, circular re-entries, duplicate
// symbols never abort the run by themselves).
func (r *Resolver) ResolveAll(entryPath string) error {
	warnings := pkgerrors.NewMultiError(nil)

	if err := r.analyzeOnce(entryPath); err != nil {
		return err
	}
	if entry, err := r.st.GetFileByPath(r.canonical(entryPath)); err != nil {
		return err
	} else if entry != nil {
		if err := r.st.MarkEntry(entry.ID); err != nil {
			return err
		}
	}

	if err := r.drainPending(warnings); err != nil {
		return err
	}

	for pass := 0; pass < maxPasses; pass++ {
		deps, err := r.st.GetUnresolvedDependencies()
		if err != nil {
			return err
		}
		if len(deps) == 0 {
			break
		}

		progressed := false
		for _, dep := range deps {
			resolved, err := r.resolveOne(dep)
			if err != nil {
				warnings.Add(err)
				continue
			}
			if resolved {
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	// Whatever remains unresolved after the pass cap is logged, not
	// fatal — exhausted resolution stays a warning unless the target
	// is later proven structurally required.
	remaining, err := r.st.GetUnresolvedDependencies()
	if err != nil {
		return err
	}
	for _, dep := range remaining {
		if dep.Kind.IsPathKind() {
			continue // already warned during resolveOne
		}
		if autoload.IsKnownExternal(dep.TargetSymbol) {
			continue
		}
		src, _ := r.st.GetFileByID(dep.SourceFileID)
		srcPath := ""
		if src != nil {
			srcPath = src.Path
		}
		key := srcPath + "->" + dep.TargetSymbol
		if r.warned[key] {
			continue
		}
		r.warned[key] = true
		warnings.Add(pkgerrors.NewUnresolvableError(srcPath, dep.TargetSymbol))
		r.log.Warn("unresolved symbol dependency", zap.String("source", srcPath), zap.String("target", dep.TargetSymbol))
	}

	if warnings.Len() == 0 {
		return nil
	}
	return warnings
}

// drainPending analyzes catalog files still marked pending (seeded by
// include-glob pre-analysis or discovered mid-resolution) until none
// remain. Per-file failures are collected as warnings and the file is
// marked failed so the queue always shrinks.
func (r *Resolver) drainPending(warnings *pkgerrors.MultiError) error {
	for {
		f, err := r.st.GetNextPendingFile()
		if err != nil {
			return err
		}
		if f == nil {
			return nil
		}
		abs := f.Path
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(r.root, f.Path)
		}
		if err := r.analyzeOnce(abs); err != nil {
			warnings.Add(err)
			if markErr := r.st.MarkAnalysisFailed(f.ID); markErr != nil {
				return markErr
			}
		}
	}
}

// resolveOne attempts to bind dep's target; returns true if it made
// progress (bound or determined unresolvable-and-final).
func (r *Resolver) resolveOne(dep *store.Dependency) (bool, error) {
	if dep.Kind.IsPathKind() {
		return r.resolvePathDependency(dep)
	}
	return r.resolveSymbolDependency(dep)
}

// resolvePathDependency handles require/include family edges, whose
// Context already carries the literal expression, "dynamic", or a
// __DIR__-relative form per the analyzer's emission contract.
func (r *Resolver) resolvePathDependency(dep *store.Dependency) (bool, error) {
	if dep.Context == "dynamic" || dep.Context == "" {
		key := "path-dynamic:" + dep.Context
		if !r.warned[key] {
			r.warned[key] = true
			r.log.Warn("dynamic or empty include target, giving up", zap.Int("dependency_line", dep.SourceLine))
		}
		return true, nil // terminal: never resolvable, but not a failure
	}

	src, err := r.st.GetFileByID(dep.SourceFileID)
	if err != nil || src == nil {
		return false, err
	}
	sourceDir := filepath.Dir(filepath.Join(r.root, src.Path))

	candidates := r.pathCandidates(dep.Context, sourceDir)
	for _, candidate := range candidates {
		if _, statErr := os.Stat(candidate); statErr != nil {
			continue
		}
		return r.bindPathTarget(dep, candidate, "")
	}

	key := "path-miss:" + dep.Context
	if !r.warned[key] {
		r.warned[key] = true
		r.log.Warn("include target not found on disk", zap.String("expr", dep.Context))
	}
	return true, nil
}

// pathCandidates builds the source-relative / root-relative /
// cwd-relative fallback chain, substituting __DIR__ first when
// present.
func (r *Resolver) pathCandidates(expr, sourceDir string) []string {
	if pathutil.HasDirToken(expr) {
		return []string{pathutil.SubstituteDirToken(expr, sourceDir)}
	}
	expr = strings.Trim(expr, `'"`)
	var out []string
	if filepath.IsAbs(expr) {
		out = append(out, filepath.Clean(expr))
	}
	out = append(out,
		filepath.Join(sourceDir, expr),
		filepath.Join(r.root, expr),
	)
	if cwd, err := os.Getwd(); err == nil {
		out = append(out, filepath.Join(cwd, expr))
	}
	return out
}

// bindPathTarget analyzes absPath if needed and resolves dep to it.
// When synthesizeFQN is non-empty the caller is binding a symbol-kind
// dependency resolved via the autoload fallback rather than a direct
// Store hit; the target file is marked vendor and a Symbol record is
// synthesized so future lookups short-circuit straight to
// FindFileBySymbol instead of re-running the fallback.
func (r *Resolver) bindPathTarget(dep *store.Dependency, absPath, synthesizeFQN string) (bool, error) {
	if err := r.analyzeIfNeeded(absPath); err != nil {
		return false, err
	}
	rel := r.canonical(absPath)
	target, err := r.st.GetFileByPath(rel)
	if err != nil {
		return false, err
	}
	if target == nil {
		return true, nil
	}
	if err := r.st.ResolveDependency(dep.ID, target.ID); err != nil {
		return false, err
	}
	if synthesizeFQN != "" {
		if err := r.st.MarkVendor(target.ID); err != nil {
			return false, err
		}
		if existing, err := r.st.FindFileBySymbol(synthesizeFQN); err == nil && existing == nil {
			if _, err := r.st.InsertSymbol(target.ID, store.SymbolClass, shortNameOf(synthesizeFQN), synthesizeFQN, namespaceOf(synthesizeFQN), ""); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

func shortNameOf(fqn string) string {
	if idx := strings.LastIndex(fqn, `\`); idx >= 0 {
		return fqn[idx+1:]
	}
	return fqn
}

func namespaceOf(fqn string) string {
	if idx := strings.LastIndex(fqn, `\`); idx >= 0 {
		return fqn[:idx]
	}
	return ""
}

// resolveSymbolDependency handles extends/implements/use_trait/
// use_class edges: catalog symbol lookup first, then stored AST
// nodes, then autoload rules, then the filesystem heuristics.
func (r *Resolver) resolveSymbolDependency(dep *store.Dependency) (bool, error) {
	fqn := strings.TrimPrefix(dep.TargetSymbol, `\`)
	if fqn == "" {
		return true, nil
	}

	if f, err := r.st.FindFileBySymbol(fqn); err == nil && f != nil {
		return true, r.st.ResolveDependency(dep.ID, f.ID)
	} else if err != nil {
		return false, err
	}

	if nodes, err := r.st.FindAstNodesByFQN(fqn); err == nil && len(nodes) > 0 {
		if f, err := r.st.GetFileByID(nodes[0].FileID); err == nil && f != nil {
			return true, r.st.ResolveDependency(dep.ID, f.ID)
		}
	}

	if r.autoload != nil {
		if path, err := r.autoload.ResolveClass(fqn); err == nil && path != "" {
			return r.bindPathTarget(dep, path, fqn)
		}
		if path, err := r.autoload.ResolveUnknown(fqn); err == nil && path != "" {
			return r.bindPathTarget(dep, path, fqn)
		}
	}

	if autoload.IsKnownExternal(fqn) {
		return true, nil // terminal: known external, nothing to bind
	}

	return false, nil // no progress this pass; may resolve once a later file is analyzed
}

// analyzeIfNeeded analyzes absPath unless it is already on the
// catalog with completed status, guarding re-entrant analysis with
// the processing set.
func (r *Resolver) analyzeIfNeeded(absPath string) error {
	rel := r.canonical(absPath)
	existing, err := r.st.GetFileByPath(rel)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status == store.StatusCompleted {
		return nil
	}
	return r.analyzeOnce(absPath)
}

func (r *Resolver) analyzeOnce(absPath string) error {
	rel := r.canonical(absPath)
	if r.processing[rel] {
		r.log.Warn("circular analysis re-entry, skipping", zap.String("path", rel))
		return nil // logged, not fatal: the file stays pending, resolved on a later pass if possible
	}
	r.processing[rel] = true
	defer delete(r.processing, rel)

	return r.analyzer.Analyze(absPath)
}

func (r *Resolver) canonical(absPath string) string {
	rel := pathutil.ToRelative(absPath, r.root)
	return filepath.ToSlash(rel)
}
