// Package merge implements the AstMerger: it takes the file load order
// loadorder computes and the catalog's per-file AstNode rows, and
// produces a single Program — declarations bucketed by namespace,
// each namespace's use-imports deduplicated into a prologue — ready
// for internal/codegen to pretty-print into one PHP file. Declaration
// text itself is never re-derived: Class/Interface/Trait/Function
// AstNodes already carry their verbatim source, so the merger renders
// the bytes the analyzer captured.
package merge

import (
	"fmt"

	phpast "github.com/tourze/php-packer/internal/ast"
	pkgerrors "github.com/tourze/php-packer/internal/errors"
	"github.com/tourze/php-packer/internal/pathutil"
	"github.com/tourze/php-packer/internal/store"
)

// RawBlock is a skip_ast file's untouched content, kept as a unit so
// it can be reproduced byte-for-byte rather than parsed.
type RawBlock struct {
	Path    string
	Content string
}

// NamespaceBlock groups every declaration recorded under one
// namespace name (empty string is the global namespace) across every
// merged file, in file-load-order then in-file-position order.
type NamespaceBlock struct {
	Name         string
	Uses         []string // rendered "Foo\Bar" or "Foo\Bar as Baz" text (no trailing ';'), deduplicated
	Declarations []string // verbatim Class/Interface/Trait/Function source text
}

// Program is the AstMerger's output.
type Program struct {
	Namespaces []*NamespaceBlock // insertion-ordered; global bucket (Name == "") may or may not be present
	RawBlocks  []RawBlock        // skip_ast files, in load order
	EntryID    store.FileID
}

// Merger builds a Program from a Store and a file load order.
type Merger struct {
	st          *store.Store
	pruneUnused bool
}

// New builds a Merger.
func New(st *store.Store) *Merger {
	return &Merger{st: st}
}

// SetPruneUnused enables dead-code pruning of symbols with zero
// incoming symbol-kind dependency edges. Entry-file declarations and
// files-autoload targets are never pruned (the latter are loaded for
// their side effects, referenced or not).
func (m *Merger) SetPruneUnused(enabled bool) {
	m.pruneUnused = enabled
}

// Merge rejects an empty file order or one missing the entry file,
// then assembles the Program.
func (m *Merger) Merge(fileOrder []store.FileID, entryID store.FileID) (*Program, error) {
	if len(fileOrder) == 0 {
		return nil, pkgerrors.NewEmptyBundleError()
	}
	found := false
	for _, id := range fileOrder {
		if id == entryID {
			found = true
			break
		}
	}
	if !found {
		return nil, pkgerrors.NewEntryNotBundledError(fmt.Sprintf("file id %d", entryID))
	}

	prog := &Program{EntryID: entryID}
	index := make(map[string]*NamespaceBlock)
	seenUse := make(map[string]map[string]bool) // namespace -> rendered use text -> seen

	bucket := func(ns string) *NamespaceBlock {
		if b, ok := index[ns]; ok {
			return b
		}
		b := &NamespaceBlock{Name: ns}
		index[ns] = b
		prog.Namespaces = append(prog.Namespaces, b)
		seenUse[ns] = make(map[string]bool)
		return b
	}

	for _, fileID := range fileOrder {
		file, err := m.st.GetFileByID(fileID)
		if err != nil {
			return nil, err
		}
		if file == nil {
			continue
		}
		if file.SkipAST {
			prog.RawBlocks = append(prog.RawBlocks, RawBlock{Path: file.Path, Content: file.Content})
			continue
		}

		nodes, err := m.st.LoadAST(fileID)
		if err != nil {
			return nil, err
		}
		prunable := m.pruneUnused && !file.IsEntry && !m.isFilesRuleTarget(file)
		for _, raw := range nodes {
			node, err := phpast.Decode(raw.Payload)
			if err != nil {
				continue // unrecoverable payload: skip rather than fail the whole bundle
			}
			switch v := node.(type) {
			case phpast.Use:
				b := bucket(v.Namespace)
				rendered := renderUse(v.Import)
				if !seenUse[v.Namespace][rendered] {
					seenUse[v.Namespace][rendered] = true
					b.Uses = append(b.Uses, rendered)
				}
			case phpast.UseGroup:
				b := bucket(v.Namespace)
				for _, imp := range v.Imports {
					// imp.FQN is already the fully-qualified target (the
					// analyzer prepends Prefix once when it emits the
					// UseGroup node); re-prepending here would double it.
					rendered := renderUse(imp)
					if !seenUse[v.Namespace][rendered] {
						seenUse[v.Namespace][rendered] = true
						b.Uses = append(b.Uses, rendered)
					}
				}
			case phpast.Class:
				if prunable && m.isUnreferenced(v.FQN) {
					continue
				}
				bucket(v.Namespace).Declarations = append(bucket(v.Namespace).Declarations, v.Source)
			case phpast.Interface:
				if prunable && m.isUnreferenced(v.FQN) {
					continue
				}
				bucket(v.Namespace).Declarations = append(bucket(v.Namespace).Declarations, v.Source)
			case phpast.Trait:
				if prunable && m.isUnreferenced(v.FQN) {
					continue
				}
				bucket(v.Namespace).Declarations = append(bucket(v.Namespace).Declarations, v.Source)
			case phpast.Function:
				// Free functions are called by name, not tracked as
				// dependency edges, so they are never pruned.
				bucket(v.Namespace).Declarations = append(bucket(v.Namespace).Declarations, v.BodySource)
			}
		}
	}

	return prog, nil
}

func (m *Merger) isUnreferenced(fqn string) bool {
	if fqn == "" {
		return false
	}
	n, err := m.st.CountSymbolReferences(fqn)
	if err != nil {
		return false // on query failure, keep the declaration
	}
	return n == 0
}

// isFilesRuleTarget reports whether file is the target of a
// files-kind autoload rule.
func (m *Merger) isFilesRuleTarget(file *store.File) bool {
	rules, err := m.st.AutoloadRules()
	if err != nil {
		return false
	}
	for _, rule := range rules {
		if rule.Kind == store.RuleFiles && pathutil.Same(rule.Path, file.Path) {
			return true
		}
	}
	return false
}

func renderUse(imp phpast.UseImport) string {
	if imp.Alias != "" {
		return imp.FQN + " as " + imp.Alias
	}
	return imp.FQN
}
