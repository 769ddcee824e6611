// Package store is the packer's persistent catalog: the single
// source of truth every other component reads from and writes
// through, backed by a transactional embedded SQLite database so the
// catalog survives process restart and can be reopened read-only by
// the verify subcommand.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	pkgerrors "github.com/tourze/php-packer/internal/errors"
	"github.com/tourze/php-packer/internal/logging"
)

// Store wraps a *sql.DB pinned to a single connection — the pipeline
// is single-threaded, so there is never lock contention to reason
// about, and a single connection keeps SQLite's own locking out of
// the picture entirely.
type Store struct {
	db     *sql.DB
	log    logging.Logger
	hashes map[FileID]uint64 // xxhash fast-path cache, keyed by FileID
}

// Open opens (creating if absent) the SQLite database at path and
// ensures the schema exists.
func Open(path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.NewNoop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.NewWriteError(path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, pkgerrors.NewWriteError(path, fmt.Errorf("schema init: %w", err))
	}

	return &Store{db: db, log: log, hashes: make(map[FileID]uint64)}, nil
}

// Close releases the underlying connection. Guaranteed-release on
// every exit path is the caller's responsibility via defer.
func (s *Store) Close() error {
	return s.db.Close()
}

func sha256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// UpsertFile inserts or updates a File record. is_entry is sticky:
// once set true it is never cleared implicitly.
func (s *Store) UpsertFile(path, content string, kind FileKind, className string, isEntry, skipAST bool) (FileID, error) {
	hash := sha256Hex(content)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var existingID int64
	var existingEntry int
	err = tx.QueryRow(`SELECT id, is_entry FROM files WHERE path = ?`, path).Scan(&existingID, &existingEntry)

	switch {
	case err == sql.ErrNoRows:
		res, err := tx.Exec(
			`INSERT INTO files (path, content, sha256, kind, class_name, is_entry, skip_ast, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 'pending')`,
			path, content, hash, string(kind), className, boolToInt(isEntry), boolToInt(skipAST),
		)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		if err := tx.Commit(); err != nil {
			return 0, err
		}
		s.hashes[FileID(id)] = xxhash.Sum64String(content)
		return FileID(id), nil

	case err != nil:
		return 0, err

	default:
		sticky := existingEntry != 0 || isEntry
		_, err = tx.Exec(
			`UPDATE files SET content = ?, sha256 = ?, kind = ?, class_name = ?, is_entry = ?, skip_ast = ?, status = 'pending'
			 WHERE id = ?`,
			content, hash, string(kind), className, boolToInt(sticky), boolToInt(skipAST), existingID,
		)
		if err != nil {
			return 0, err
		}
		if err := tx.Commit(); err != nil {
			return 0, err
		}
		s.hashes[FileID(existingID)] = xxhash.Sum64String(content)
		return FileID(existingID), nil
	}
}

// MarkEntry flags a File as the bundle's entry script. is_entry is
// sticky per UpsertFile; this is the explicit setter for a file first
// sighted through a non-entry path.
func (s *Store) MarkEntry(fileID FileID) error {
	_, err := s.db.Exec(`UPDATE files SET is_entry = 1 WHERE id = ?`, fileID)
	return err
}

// MarkVendor flags a File as vendor-sourced, used when a symbol
// dependency resolves outside the project root (vendor library code)
// so future lookups can short-circuit the file-system probe.
func (s *Store) MarkVendor(fileID FileID) error {
	_, err := s.db.Exec(`UPDATE files SET is_vendor = 1 WHERE id = ?`, fileID)
	return err
}

// SetFileNamespace records a file's primary declared namespace (empty
// string means global), used by the merger to bucket that file's
// declarations without re-deriving it from the AST on every run.
func (s *Store) SetFileNamespace(fileID FileID, namespace string) error {
	_, err := s.db.Exec(`UPDATE files SET namespace = ? WHERE id = ?`, namespace, fileID)
	return err
}

// ContentChanged reports whether content differs from what the catalog
// last recorded for id. The in-memory xxhash set by UpsertFile is the
// fast path; when this Store has no such entry (for example after the
// catalog was reopened), the stored SHA-256 column decides.
func (s *Store) ContentChanged(id FileID, content string) bool {
	if prev, ok := s.hashes[id]; ok {
		return prev != xxhash.Sum64String(content)
	}
	var stored string
	if err := s.db.QueryRow(`SELECT sha256 FROM files WHERE id = ?`, id).Scan(&stored); err != nil {
		return true
	}
	return stored != sha256Hex(content)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanFile(row interface {
	Scan(dest ...any) error
}) (*File, error) {
	var f File
	var kind, status string
	var isEntry, isVendor, skipAST int
	err := row.Scan(&f.ID, &f.Path, &f.Content, &f.SHA256, &kind, &f.ClassName, &f.Namespace,
		&isEntry, &isVendor, &skipAST, &status, &f.ASTRoot)
	if err != nil {
		return nil, err
	}
	f.Kind = FileKind(kind)
	f.Status = AnalysisStatus(status)
	f.IsEntry = isEntry != 0
	f.IsVendor = isVendor != 0
	f.SkipAST = skipAST != 0
	return &f, nil
}

const fileColumns = `id, path, content, sha256, kind, class_name, namespace, is_entry, is_vendor, skip_ast, status, ast_root`

// GetFileByPath returns the File with the given path, or nil if none
// exists.
func (s *Store) GetFileByPath(path string) (*File, error) {
	row := s.db.QueryRow(`SELECT `+fileColumns+` FROM files WHERE path = ?`, path)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// GetFileByID returns the File with the given id, or nil if none
// exists.
func (s *Store) GetFileByID(id FileID) (*File, error) {
	row := s.db.QueryRow(`SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// InsertSymbol records a Symbol. If the FQN already belongs to a
// different file of a different kind, it fails with
// DuplicateSymbolError (first definition wins); an identical
// (fqn, kind) key is replaced silently.
func (s *Store) InsertSymbol(fileID FileID, kind SymbolKind, shortName, fqn, namespace, modifiers string) (SymbolID, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var existingID int64
	var existingKind string
	err = tx.QueryRow(`SELECT id, kind FROM symbols WHERE fqn = ?`, fqn).Scan(&existingID, &existingKind)

	switch {
	case err == sql.ErrNoRows:
		res, err := tx.Exec(
			`INSERT INTO symbols (file_id, kind, short_name, fqn, namespace, modifiers) VALUES (?, ?, ?, ?, ?, ?)`,
			fileID, string(kind), shortName, fqn, namespace, modifiers,
		)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		return SymbolID(id), tx.Commit()

	case err != nil:
		return 0, err

	case existingKind != string(kind):
		s.log.Warn("duplicate symbol with incompatible kind",
			zap.String("fqn", fqn), zap.String("existing_kind", existingKind), zap.String("new_kind", string(kind)))
		return SymbolID(existingID), pkgerrors.NewDuplicateSymbolError(fqn, existingKind, string(kind))

	default:
		_, err = tx.Exec(
			`UPDATE symbols SET file_id = ?, short_name = ?, namespace = ?, modifiers = ? WHERE id = ?`,
			fileID, shortName, namespace, modifiers, existingID,
		)
		if err != nil {
			return 0, err
		}
		return SymbolID(existingID), tx.Commit()
	}
}

// InsertDependency records a Dependency edge.
func (s *Store) InsertDependency(d Dependency) (DependencyID, error) {
	res, err := s.db.Exec(
		`INSERT INTO dependencies (source_file_id, target_file_id, kind, target_symbol, source_line, is_conditional, is_resolved, context)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SourceFileID, d.TargetFileID, string(d.Kind), d.TargetSymbol, d.SourceLine,
		boolToInt(d.IsConditional), boolToInt(d.IsResolved), d.Context,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return DependencyID(id), err
}

func scanDependency(row interface{ Scan(dest ...any) error }) (*Dependency, error) {
	var d Dependency
	var kind string
	var isConditional, isResolved int
	err := row.Scan(&d.ID, &d.SourceFileID, &d.TargetFileID, &kind, &d.TargetSymbol,
		&d.SourceLine, &isConditional, &isResolved, &d.Context)
	if err != nil {
		return nil, err
	}
	d.Kind = DependencyKind(kind)
	d.IsConditional = isConditional != 0
	d.IsResolved = isResolved != 0
	return &d, nil
}

const dependencyColumns = `id, source_file_id, target_file_id, kind, target_symbol, source_line, is_conditional, is_resolved, context`

// GetUnresolvedDependencies returns every Dependency with
// is_resolved = false.
func (s *Store) GetUnresolvedDependencies() ([]*Dependency, error) {
	rows, err := s.db.Query(`SELECT ` + dependencyColumns + ` FROM dependencies WHERE is_resolved = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deps []*Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// ResolveDependency binds a Dependency to a target file.
func (s *Store) ResolveDependency(depID DependencyID, targetFileID FileID) error {
	_, err := s.db.Exec(`UPDATE dependencies SET target_file_id = ?, is_resolved = 1 WHERE id = ?`, targetFileID, depID)
	return err
}

// FindFileBySymbol returns the File defining the given FQN, or nil.
func (s *Store) FindFileBySymbol(fqn string) (*File, error) {
	row := s.db.QueryRow(
		`SELECT `+fileColumnsPrefixed("f")+` FROM files f JOIN symbols sym ON sym.file_id = f.id WHERE sym.fqn = ?`,
		fqn,
	)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func fileColumnsPrefixed(alias string) string {
	cols := []string{"id", "path", "content", "sha256", "kind", "class_name", "namespace",
		"is_entry", "is_vendor", "skip_ast", "status", "ast_root"}
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + c
	}
	return out
}

// FindAstNodesByFQN returns the AstNodes whose fqn column equals fqn
// (definition-bearing nodes only carry a non-empty fqn).
func (s *Store) FindAstNodesByFQN(fqn string) ([]*AstNode, error) {
	rows, err := s.db.Query(`SELECT id, file_id, parent_id, kind, payload, span_start, span_end, fqn, attributes, position
		FROM ast_nodes WHERE fqn = ?`, fqn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*AstNode
	for rows.Next() {
		var n AstNode
		if err := rows.Scan(&n.ID, &n.FileID, &n.ParentID, &n.Kind, &n.Payload,
			&n.SpanStart, &n.SpanEnd, &n.FQN, &n.Attributes, &n.Position); err != nil {
			return nil, err
		}
		nodes = append(nodes, &n)
	}
	return nodes, rows.Err()
}

// StoreAST replaces the AST nodes stored for fileID with nodes,
// atomically (old nodes deleted first, in the same transaction).
func (s *Store) StoreAST(fileID FileID, nodes []*AstNode) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM ast_nodes WHERE file_id = ?`, fileID); err != nil {
		return err
	}

	var rootID int64
	for i, n := range nodes {
		res, err := tx.Exec(
			`INSERT INTO ast_nodes (file_id, parent_id, kind, payload, span_start, span_end, fqn, attributes, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, n.ParentID, n.Kind, n.Payload, n.SpanStart, n.SpanEnd, n.FQN, n.Attributes, n.Position,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if i == 0 {
			rootID = id
		}
	}

	if _, err := tx.Exec(`UPDATE files SET ast_root = ? WHERE id = ?`, rootID, fileID); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadAST returns the AstNodes stored for fileID, or nil if none.
func (s *Store) LoadAST(fileID FileID) ([]*AstNode, error) {
	rows, err := s.db.Query(`SELECT id, file_id, parent_id, kind, payload, span_start, span_end, fqn, attributes, position
		FROM ast_nodes WHERE file_id = ? ORDER BY position ASC`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*AstNode
	for rows.Next() {
		var n AstNode
		if err := rows.Scan(&n.ID, &n.FileID, &n.ParentID, &n.Kind, &n.Payload,
			&n.SpanStart, &n.SpanEnd, &n.FQN, &n.Attributes, &n.Position); err != nil {
			return nil, err
		}
		nodes = append(nodes, &n)
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes, rows.Err()
}

// GetNextPendingFile returns one File with status = pending, or nil
// if none remain.
func (s *Store) GetNextPendingFile() (*File, error) {
	row := s.db.QueryRow(`SELECT ` + fileColumns + ` FROM files WHERE status = 'pending' ORDER BY id ASC LIMIT 1`)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// MarkAnalyzed sets a File's status to completed.
func (s *Store) MarkAnalyzed(fileID FileID) error {
	_, err := s.db.Exec(`UPDATE files SET status = 'completed' WHERE id = ?`, fileID)
	return err
}

// MarkAnalysisFailed sets a File's status to failed.
func (s *Store) MarkAnalysisFailed(fileID FileID) error {
	_, err := s.db.Exec(`UPDATE files SET status = 'failed' WHERE id = ?`, fileID)
	return err
}

// DeleteFileArtifacts removes every Symbol and outgoing Dependency a
// file produced, ahead of reanalysis. AST nodes are not touched here:
// StoreAST already replaces them atomically.
func (s *Store) DeleteFileArtifacts(fileID FileID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM symbols WHERE file_id = ?`, fileID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM dependencies WHERE source_file_id = ?`, fileID); err != nil {
		return err
	}
	return tx.Commit()
}

// CountSymbolReferences returns how many symbol-kind Dependency edges
// (extends/implements/use_trait/use_class) target the given FQN. Used
// by the merger's dead-code pruning pass.
func (s *Store) CountSymbolReferences(fqn string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM dependencies WHERE target_symbol = ? AND kind IN ('extends', 'implements', 'use_trait', 'use_class')`,
		fqn,
	).Scan(&n)
	return n, err
}

// FileStats reports how many Files the catalog holds per analysis
// status. Used by the verify subcommand's read-only report.
func (s *Store) FileStats() (total, completed, failed int, err error) {
	row := s.db.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM files`)
	if err := row.Scan(&total, &completed, &failed); err != nil {
		return 0, 0, 0, err
	}
	return total, completed, failed, nil
}

// AutoloadRules returns every AutoloadRule, ordered priority
// descending.
func (s *Store) AutoloadRules() ([]*AutoloadRule, error) {
	rows, err := s.db.Query(`SELECT id, kind, prefix, path, priority FROM autoload_rules ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*AutoloadRule
	for rows.Next() {
		var r AutoloadRule
		var kind string
		if err := rows.Scan(&r.ID, &kind, &r.Prefix, &r.Path, &r.Priority); err != nil {
			return nil, err
		}
		r.Kind = AutoloadRuleKind(kind)
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

// InsertAutoloadRule records an AutoloadRule.
func (s *Store) InsertAutoloadRule(kind AutoloadRuleKind, prefix, path string, priority int) (AutoloadRuleID, error) {
	res, err := s.db.Exec(
		`INSERT INTO autoload_rules (kind, prefix, path, priority) VALUES (?, ?, ?, ?)`,
		string(kind), prefix, path, priority,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return AutoloadRuleID(id), err
}

// DirectDependencyTargets returns the resolved dependency targets
// declared directly by fileID, without following the transitive
// closure — the edge set the loadorder package needs to build its own
// graph rather than reusing AllRequiredFiles' already-flattened walk.
func (s *Store) DirectDependencyTargets(fileID FileID) ([]FileID, error) {
	rows, err := s.db.Query(
		`SELECT target_file_id FROM dependencies WHERE source_file_id = ? AND is_resolved = 1 AND target_file_id != 0`,
		fileID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []FileID
	for rows.Next() {
		var t FileID
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// maxClosureDepth bounds AllRequiredFiles to defeat pathological
// cycles.
const maxClosureDepth = 100

// AllRequiredFiles returns the transitive closure over resolved
// Dependencies reachable from entryID, deepest-first.
func (s *Store) AllRequiredFiles(entryID FileID) ([]*File, error) {
	visited := map[FileID]bool{entryID: true}
	order := []FileID{}

	var walk func(id FileID, depth int) error
	walk = func(id FileID, depth int) error {
		if depth > maxClosureDepth {
			return nil
		}
		rows, err := s.db.Query(
			`SELECT target_file_id FROM dependencies WHERE source_file_id = ? AND is_resolved = 1 AND target_file_id != 0`,
			id,
		)
		if err != nil {
			return err
		}
		var targets []FileID
		for rows.Next() {
			var t FileID
			if err := rows.Scan(&t); err != nil {
				rows.Close()
				return err
			}
			targets = append(targets, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, t := range targets {
			if visited[t] {
				continue
			}
			visited[t] = true
			if err := walk(t, depth+1); err != nil {
				return err
			}
			order = append(order, t)
		}
		return nil
	}

	if err := walk(entryID, 0); err != nil {
		return nil, err
	}
	order = append(order, entryID)

	files := make([]*File, 0, len(order))
	for _, id := range order {
		f, err := s.GetFileByID(id)
		if err != nil {
			return nil, err
		}
		if f != nil {
			files = append(files, f)
		}
	}
	return files, nil
}
