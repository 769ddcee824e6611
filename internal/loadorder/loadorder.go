// Package loadorder computes the single linear file sequence the
// code generator emits declarations in: every file must come after
// every file it extends, implements, or statically requires, so PHP
// never sees a forward reference to an undeclared class. Topological
// DFS over an inverted edge set; cycle detection logs and continues
// rather than aborting, since a cyclic require chain is a real-world
// PHP pattern PHP itself tolerates at runtime via require_once.
package loadorder

import (
	"sort"

	"go.uber.org/zap"

	"github.com/tourze/php-packer/internal/logging"
	"github.com/tourze/php-packer/internal/store"
)

// Orderer computes load order from the catalog's resolved
// Dependencies.
type Orderer struct {
	st  *store.Store
	log logging.Logger
}

// New builds an Orderer.
func New(st *store.Store, log logging.Logger) *Orderer {
	if log == nil {
		log = logging.NewNoop()
	}
	return &Orderer{st: st, log: log}
}

// LoadOrder returns every file reachable from entryID via resolved
// Dependencies, ordered so that any file B a file A depends on
// (extends/implements/use_trait/use_class/require family) appears
// before A. Cycles are logged and broken at the repeated edge rather
// than failing the run.
func (o *Orderer) LoadOrder(entryID store.FileID) ([]store.FileID, error) {
	edges, err := o.buildGraph(entryID)
	if err != nil {
		return nil, err
	}

	visited := make(map[store.FileID]bool)
	onStack := make(map[store.FileID]bool)
	var postOrder []store.FileID

	var allIDs []store.FileID
	for id := range edges {
		allIDs = append(allIDs, id)
	}
	sort.Slice(allIDs, func(i, j int) bool { return allIDs[i] < allIDs[j] })

	var visit func(id store.FileID)
	visit = func(id store.FileID) {
		if visited[id] {
			return
		}
		if onStack[id] {
			o.log.Warn("circular dependency in load order, breaking cycle", zap.Uint64("file_id", uint64(id)))
			return
		}
		onStack[id] = true
		deps := append([]store.FileID(nil), edges[id]...)
		sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
		for _, dep := range deps {
			visit(dep)
		}
		onStack[id] = false
		visited[id] = true
		postOrder = append(postOrder, id)
	}

	visit(entryID)
	for _, id := range allIDs {
		visit(id)
	}

	return postOrder, nil
}

// buildGraph returns, for each file reachable from entryID, the set
// of files it must be declared after (its dependency targets) — an
// inverted edge: A -> B means "A must come after B".
func (o *Orderer) buildGraph(entryID store.FileID) (map[store.FileID][]store.FileID, error) {
	edges := make(map[store.FileID][]store.FileID)
	visited := make(map[store.FileID]bool)

	var walk func(id store.FileID) error
	walk = func(id store.FileID) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		if _, ok := edges[id]; !ok {
			edges[id] = nil
		}

		deps, err := o.fileDependencies(id)
		if err != nil {
			return err
		}
		for _, target := range deps {
			edges[id] = append(edges[id], target)
			if err := walk(target); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(entryID); err != nil {
		return nil, err
	}
	return edges, nil
}

// fileDependencies returns the direct resolved dependency targets for
// id.
func (o *Orderer) fileDependencies(id store.FileID) ([]store.FileID, error) {
	return o.st.DirectDependencyTargets(id)
}
