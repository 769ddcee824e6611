package merge

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	phpast "github.com/tourze/php-packer/internal/ast"
	"github.com/tourze/php-packer/internal/logging"
	"github.com/tourze/php-packer/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "catalog.db"), logging.NewNoop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func storeNode(t *testing.T, st *store.Store, fileID store.FileID, pos int, node phpast.Node, fqn string) *store.AstNode {
	t.Helper()
	payload, err := phpast.Encode(node)
	require.NoError(t, err)
	return &store.AstNode{Kind: string(node.Kind()), Payload: payload, FQN: fqn, Position: pos}
}

func TestMergeBucketsByNamespaceAndDedupesUses(t *testing.T) {
	st := newTestStore(t)
	fileID, err := st.UpsertFile("Base.php", "<?php", store.FileKindScript, "", false, false)
	require.NoError(t, err)

	nodes := []*store.AstNode{
		storeNode(t, st, fileID, 0, phpast.Use{Namespace: "App", Import: phpast.UseImport{FQN: "Other\\Thing"}}, ""),
		storeNode(t, st, fileID, 1, phpast.Use{Namespace: "App", Import: phpast.UseImport{FQN: "Other\\Thing"}}, ""),
		storeNode(t, st, fileID, 2, phpast.Class{Namespace: "App", Name: "Base", FQN: "App\\Base", Source: "class Base {}"}, "App\\Base"),
	}
	require.NoError(t, st.StoreAST(fileID, nodes))

	prog, err := New(st).Merge([]store.FileID{fileID}, fileID)
	require.NoError(t, err)
	require.Len(t, prog.Namespaces, 1)
	assert.Equal(t, "App", prog.Namespaces[0].Name)
	assert.Equal(t, []string{"Other\\Thing"}, prog.Namespaces[0].Uses)
	assert.Equal(t, []string{"class Base {}"}, prog.Namespaces[0].Declarations)
}

func TestMergeSplitsDistinctNamespacesIntoSeparateBlocks(t *testing.T) {
	st := newTestStore(t)
	v1ID, err := st.UpsertFile("src/V1/Calc.php", "<?php", store.FileKindClass, "Calc", false, false)
	require.NoError(t, err)
	v2ID, err := st.UpsertFile("src/V2/Calc.php", "<?php", store.FileKindClass, "Calc", false, false)
	require.NoError(t, err)

	require.NoError(t, st.StoreAST(v1ID, []*store.AstNode{
		storeNode(t, st, v1ID, 0, phpast.Class{Namespace: "A\\V1", Name: "Calc", FQN: "A\\V1\\Calc", Source: "class Calc { public function add($a, $b) { return $a + $b; } }"}, "A\\V1\\Calc"),
	}))
	require.NoError(t, st.StoreAST(v2ID, []*store.AstNode{
		storeNode(t, st, v2ID, 0, phpast.Class{Namespace: "A\\V2", Name: "Calc", FQN: "A\\V2\\Calc", Source: "class Calc { public function add($a, $b) { return $a * $b; } }"}, "A\\V2\\Calc"),
	}))

	prog, err := New(st).Merge([]store.FileID{v1ID, v2ID}, v1ID)
	require.NoError(t, err)

	require.Len(t, prog.Namespaces, 2)
	assert.Equal(t, "A\\V1", prog.Namespaces[0].Name)
	assert.Equal(t, "A\\V2", prog.Namespaces[1].Name)
	assert.Len(t, prog.Namespaces[0].Declarations, 1)
	assert.Len(t, prog.Namespaces[1].Declarations, 1)
	assert.Contains(t, prog.Namespaces[0].Declarations[0], "$a + $b")
	assert.Contains(t, prog.Namespaces[1].Declarations[0], "$a * $b")
}

func TestMergeEmptyBundle(t *testing.T) {
	st := newTestStore(t)
	_, err := New(st).Merge(nil, store.FileID(1))
	assert.Error(t, err)
}

func TestMergeEntryNotBundled(t *testing.T) {
	st := newTestStore(t)
	fileID, err := st.UpsertFile("a.php", "<?php", store.FileKindScript, "", false, false)
	require.NoError(t, err)

	_, err = New(st).Merge([]store.FileID{fileID}, store.FileID(9999))
	assert.Error(t, err)
}

func TestMergePrunesUnreferencedSymbolsWhenEnabled(t *testing.T) {
	st := newTestStore(t)
	entryID, err := st.UpsertFile("entry.php", "<?php", store.FileKindScript, "", true, false)
	require.NoError(t, err)
	libID, err := st.UpsertFile("lib.php", "<?php", store.FileKindScript, "", false, false)
	require.NoError(t, err)

	nodes := []*store.AstNode{
		storeNode(t, st, libID, 0, phpast.Class{Namespace: "App", Name: "Used", FQN: "App\\Used", Source: "class Used {}"}, "App\\Used"),
		storeNode(t, st, libID, 1, phpast.Class{Namespace: "App", Name: "Dead", FQN: "App\\Dead", Source: "class Dead {}"}, "App\\Dead"),
	}
	require.NoError(t, st.StoreAST(libID, nodes))

	_, err = st.InsertDependency(store.Dependency{
		SourceFileID: entryID,
		Kind:         store.DepUseClass,
		TargetSymbol: "App\\Used",
	})
	require.NoError(t, err)

	m := New(st)
	m.SetPruneUnused(true)
	prog, err := m.Merge([]store.FileID{libID, entryID}, entryID)
	require.NoError(t, err)

	require.Len(t, prog.Namespaces, 1)
	assert.Equal(t, []string{"class Used {}"}, prog.Namespaces[0].Declarations)
}

func TestMergeInlinesSkipASTRaw(t *testing.T) {
	st := newTestStore(t)
	fileID, err := st.UpsertFile("vendor/autoload.php", "<?php\n// generated\n", store.FileKindMixed, "", false, true)
	require.NoError(t, err)

	prog, err := New(st).Merge([]store.FileID{fileID}, fileID)
	require.NoError(t, err)
	require.Len(t, prog.RawBlocks, 1)
	assert.Equal(t, "vendor/autoload.php", prog.RawBlocks[0].Path)
}
