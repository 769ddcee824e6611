// Package autoload implements the AutoloadResolver: mapping a fully
// qualified PHP name to a candidate file path via PSR-4/PSR-0/
// classmap/files rules, Composer manifest ingestion, and a heuristic
// file-system fallback for classes no rule covers.
package autoload

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tourze/php-packer/internal/logging"
	"github.com/tourze/php-packer/internal/store"
	"go.uber.org/zap"
)

var namespacePattern = regexp.MustCompile(`namespace\s+([A-Za-z0-9_\\]+)\s*;`)

// Resolver is the AutoloadResolver. root anchors relative autoload
// paths; st supplies the AutoloadRule persistence the Store already
// owns. Rules are loaded once per run.
type Resolver struct {
	st   *store.Store
	log  logging.Logger
	root string

	classmap      map[string]string // FQN -> absolute path, built once on rule insertion
	requiredFiles []string          // accumulated from "files" rules
}

// New builds a Resolver rooted at root.
func New(st *store.Store, log logging.Logger, root string) *Resolver {
	if log == nil {
		log = logging.NewNoop()
	}
	return &Resolver{st: st, log: log, root: root, classmap: make(map[string]string)}
}

// composerManifest mirrors the recognized composer.json sections.
type composerManifest struct {
	Autoload    composerAutoload `json:"autoload"`
	AutoloadDev composerAutoload `json:"autoload-dev"`
}

type composerAutoload struct {
	PSR4     map[string]json.RawMessage `json:"psr-4"`
	PSR0     map[string]json.RawMessage `json:"psr-0"`
	Classmap []string                   `json:"classmap"`
	Files    []string                   `json:"files"`
}

type installedManifest struct {
	Packages []installedPackage `json:"packages"`
}

type installedPackage struct {
	Name     string           `json:"name"`
	Autoload composerAutoload `json:"autoload"`
}

// LoadComposerManifest reads a Composer-style JSON manifest at path
// and registers its autoload rules. Dev section gets priority 50,
// non-dev priority 100. It also walks
// vendor/composer/installed.json when present, applying each
// package's autoload rooted at the vendor package directory.
func (r *Resolver) LoadComposerManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var manifest composerManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return err
	}
	base := filepath.Dir(path)
	if err := r.applyAutoload(manifest.Autoload, base, 100); err != nil {
		return err
	}
	if err := r.applyAutoload(manifest.AutoloadDev, base, 50); err != nil {
		return err
	}

	installedPath := filepath.Join(base, "vendor", "composer", "installed.json")
	installedData, err := os.ReadFile(installedPath)
	if err != nil {
		return nil // no installed.json is not an error
	}
	var installed installedManifest
	if err := json.Unmarshal(installedData, &installed); err != nil {
		r.log.Warn("malformed installed.json, skipping", zap.String("path", installedPath))
		return nil
	}
	for _, pkg := range installed.Packages {
		pkgRoot := filepath.Join(base, "vendor", pkg.Name)
		if err := r.applyAutoload(pkg.Autoload, pkgRoot, 100); err != nil {
			r.log.Warn("failed to apply package autoload", zap.String("package", pkg.Name))
		}
	}
	return nil
}

func (r *Resolver) applyAutoload(a composerAutoload, base string, priority int) error {
	for prefix, raw := range a.PSR4 {
		for _, p := range decodeStringOrSlice(raw) {
			if err := r.AddRule(store.RulePSR4, prefix, filepath.Join(base, p), priority); err != nil {
				return err
			}
		}
	}
	for prefix, raw := range a.PSR0 {
		for _, p := range decodeStringOrSlice(raw) {
			if err := r.AddRule(store.RulePSR0, prefix, filepath.Join(base, p), priority); err != nil {
				return err
			}
		}
	}
	for _, p := range a.Classmap {
		if err := r.AddRule(store.RuleClassmap, "", filepath.Join(base, p), priority); err != nil {
			return err
		}
	}
	for _, p := range a.Files {
		full := filepath.Join(base, p)
		r.requiredFiles = append(r.requiredFiles, full)
		if err := r.AddRule(store.RuleFiles, "", full, priority); err != nil {
			return err
		}
	}
	return nil
}

// decodeStringOrSlice handles Composer's `prefix: path` vs
// `prefix: [path, ...]` ambiguity.
func decodeStringOrSlice(raw json.RawMessage) []string {
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

// AddRule registers a rule and, for classmap rules, scans the path
// once immediately so later lookups are a map hit.
func (r *Resolver) AddRule(kind store.AutoloadRuleKind, prefix, path string, priority int) error {
	if _, err := r.st.InsertAutoloadRule(kind, prefix, path, priority); err != nil {
		return err
	}
	if kind == store.RuleClassmap {
		r.scanClassmap(path)
	}
	return nil
}

func (r *Resolver) scanClassmap(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() || !strings.HasSuffix(path, ".php") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		content := string(data)
		ns := ""
		if m := namespacePattern.FindStringSubmatch(content); m != nil {
			ns = strings.TrimPrefix(m[1], "\\")
		}
		for _, short := range declaredClassNames(content) {
			fqn := short
			if ns != "" {
				fqn = ns + "\\" + short
			}
			r.classmap[fqn] = path
		}
		return nil
	})
}

var anyClassDecl = regexp.MustCompile(`(?:abstract\s+|final\s+)?(?:class|interface|trait)\s+([A-Za-z_][A-Za-z0-9_]*)`)

func declaredClassNames(content string) []string {
	matches := anyClassDecl.FindAllStringSubmatch(content, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// RequiredFiles returns the "files" rule targets accumulated so far;
// these are always bundled regardless of whether any symbol
// reference names them.
func (r *Resolver) RequiredFiles() []string {
	return append([]string(nil), r.requiredFiles...)
}

// ResolveClass scans rules in priority-desc order and returns the
// first verified candidate path for fqn, or "" if none matches.
func (r *Resolver) ResolveClass(fqn string) (string, error) {
	fqn = strings.TrimPrefix(fqn, "\\")
	rules, err := r.st.AutoloadRules()
	if err != nil {
		return "", err
	}
	short := shortName(fqn)
	namespace := namespaceOf(fqn)

	for _, rule := range rules {
		switch rule.Kind {
		case store.RulePSR4:
			if path := r.tryPSR4(rule, fqn, short, namespace); path != "" {
				return path, nil
			}
		case store.RulePSR0:
			if path := r.tryPSR0(rule, fqn, short, namespace); path != "" {
				return path, nil
			}
		case store.RuleClassmap:
			if path, ok := r.classmap[fqn]; ok {
				return path, nil
			}
		}
	}
	return "", nil
}

func (r *Resolver) tryPSR4(rule *store.AutoloadRule, fqn, short, namespace string) string {
	prefix := strings.TrimPrefix(strings.TrimSuffix(rule.Prefix, `\`), `\`)
	if prefix != "" && !strings.HasPrefix(fqn, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(fqn, prefix)
	rest = strings.TrimPrefix(rest, `\`)
	rel := strings.ReplaceAll(rest, `\`, "/") + ".php"
	candidate := filepath.Join(rule.Path, rel)
	if r.verify(candidate, short, namespace) {
		return candidate
	}
	return ""
}

func (r *Resolver) tryPSR0(rule *store.AutoloadRule, fqn, short, namespace string) string {
	prefix := strings.TrimPrefix(strings.TrimSuffix(rule.Prefix, `\`), `\`)
	if prefix != "" && !strings.HasPrefix(fqn, prefix) {
		return ""
	}
	nsPart := namespace
	rel := strings.ReplaceAll(nsPart, `\`, "/")
	shortRel := strings.ReplaceAll(short, "_", "/")
	if rel != "" {
		rel = rel + "/" + shortRel + ".php"
	} else {
		rel = shortRel + ".php"
	}
	candidate := filepath.Join(rule.Path, rel)
	if r.verify(candidate, short, namespace) {
		return candidate
	}
	return ""
}

// builtinNames and thirdPartyPrefixes are allow-lists: symbols from
// these never trigger an "unresolved" warning even after every
// resolution strategy fails.
var builtinNames = map[string]bool{
	"Exception": true, "RuntimeException": true, "InvalidArgumentException": true,
	"LogicException": true, "TypeError": true, "ValueError": true, "Error": true,
	"DateTime": true, "DateTimeImmutable": true, "DateInterval": true,
	"stdClass": true, "Iterator": true, "IteratorAggregate": true, "ArrayAccess": true,
	"Countable": true, "Closure": true, "Generator": true, "Throwable": true,
	"JsonSerializable": true, "Stringable": true, "Serializable": true,
}

var thirdPartyPrefixes = []string{
	`Psr\`, `Symfony\`, `Doctrine\`, `Composer\`, `PhpParser\`,
}

// IsKnownExternal reports whether fqn names a built-in or well-known
// third-party symbol that should never produce an Unresolvable
// warning.
func IsKnownExternal(fqn string) bool {
	fqn = strings.TrimPrefix(fqn, "\\")
	if builtinNames[fqn] {
		return true
	}
	for _, prefix := range thirdPartyPrefixes {
		if strings.HasPrefix(fqn, prefix) {
			return true
		}
	}
	return false
}

// ResolveUnknown implements the fallback heuristic: glob the on-disk
// vendor/<vendor>/<package>/ tree for files whose basename equals the
// short class name, then probe conventional on-disk locations. Catalog
// File records and their is_vendor flag are not consulted.
func (r *Resolver) ResolveUnknown(fqn string) (string, error) {
	fqn = strings.TrimPrefix(fqn, "\\")
	short := shortName(fqn)
	namespace := namespaceOf(fqn)

	files, err := r.vendorFilesNamed(short)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		p := f.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(r.root, p)
		}
		if r.verify(p, short, namespace) {
			return p, nil
		}
	}

	candidates := []string{
		filepath.Join(r.root, short+".php"),
		filepath.Join(r.root, strings.ReplaceAll(namespace, `\`, "/"), short+".php"),
		filepath.Join(r.root, "src", strings.ReplaceAll(namespace, `\`, "/"), short+".php"),
		filepath.Join(r.root, "src", short+".php"),
		filepath.Join(r.root, "lib", short+".php"),
	}
	for _, c := range candidates {
		if r.verify(c, short, namespace) {
			return c, nil
		}
	}
	// Case-variant probe, common on case-insensitive filesystems the
	// original author developed against even though this resolver
	// itself never folds case when comparing.
	lower := filepath.Join(filepath.Dir(candidates[0]), strings.ToLower(short)+".php")
	if r.verify(lower, short, namespace) {
		return lower, nil
	}
	return "", nil
}

func (r *Resolver) vendorFilesNamed(short string) ([]*store.File, error) {
	// FindFileBySymbol already covers the indexed case, so this
	// probes the conventional vendor layout directly instead of
	// scanning the whole catalog.
	var out []*store.File
	pattern := filepath.ToSlash(filepath.Join(r.root, "vendor", "*", "*", "**", short+".php"))
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, nil
	}
	for _, m := range matches {
		out = append(out, &store.File{Path: m, IsVendor: true})
	}
	return out, nil
}

// verify checks that path exists and textually declares the class in
// the expected namespace before the resolver commits to it.
func (r *Resolver) verify(path, short, namespace string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	content := string(data)
	pattern := regexp.MustCompile(`(?:abstract\s+|final\s+)?(?:class|interface|trait)\s+` + regexp.QuoteMeta(short) + `\b`)
	if !pattern.MatchString(content) {
		return false
	}
	if namespace == "" {
		return true
	}
	if m := namespacePattern.FindStringSubmatch(content); m != nil {
		return strings.TrimPrefix(m[1], `\`) == namespace
	}
	return false
}

func shortName(fqn string) string {
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

