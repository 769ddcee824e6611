// Package pathutil provides the canonical-path helpers shared by the
// autoload resolver and the require-strip pass: both need to decide
// whether two syntactically different require/include expressions
// name the same on-disk file.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToRelative converts an absolute path to one relative to rootDir.
// Falls back to the original path if conversion fails, the path
// already is relative, or it lies outside rootDir.
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}
	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)
	rel, err := filepath.Rel(rootDir, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return absPath
	}
	return rel
}

// Canonical resolves path against baseDir (the directory of the
// source file containing the require/include expression) and returns
// a lexically-normalized, symlink-resolved absolute path. It never
// lowercases: PHP deployments are frequently case-sensitive, so case
// folding would conflate distinct files.
func Canonical(path, baseDir string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	clean := filepath.Clean(path)
	if real, err := filepath.EvalSymlinks(clean); err == nil {
		return real
	}
	return clean
}

// Same reports whether two require/include targets name the same
// file once canonicalized, comparing by canonical path, then by
// basename, then by suffix — a bundled file may be referenced by a
// full path in one place and a bare filename elsewhere.
func Same(a, b string) bool {
	if a == b {
		return true
	}
	if filepath.Base(a) == filepath.Base(b) {
		return true
	}
	return strings.HasSuffix(a, b) || strings.HasSuffix(b, a)
}

// MatchesAny reports whether target (already canonicalized) matches
// any of the canonical bundled paths.
func MatchesAny(target string, bundled []string) bool {
	for _, b := range bundled {
		if Same(target, b) {
			return true
		}
	}
	return false
}

// HasDirToken reports whether a require/include expression's literal
// text contains the __DIR__ magic constant, the common form being
// `__DIR__ . '/relative/path.php'`.
func HasDirToken(expr string) bool {
	return strings.Contains(expr, "__DIR__")
}

// SubstituteDirToken replaces a leading `__DIR__ . '...'` or
// `__DIR__.'...'` concatenation with baseDir, returning the
// substituted path. Non-__DIR__ expressions are returned unchanged.
func SubstituteDirToken(expr, baseDir string) string {
	if !HasDirToken(expr) {
		return expr
	}
	rest := strings.TrimPrefix(expr, "__DIR__")
	rest = strings.TrimPrefix(strings.TrimSpace(rest), ".")
	rest = strings.Trim(strings.TrimSpace(rest), `'"`)
	return filepath.Join(baseDir, rest)
}
