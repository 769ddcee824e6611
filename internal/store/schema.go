package store

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	content TEXT NOT NULL DEFAULT '',
	sha256 TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL DEFAULT 'script',
	class_name TEXT NOT NULL DEFAULT '',
	namespace TEXT NOT NULL DEFAULT '',
	is_entry INTEGER NOT NULL DEFAULT 0,
	is_vendor INTEGER NOT NULL DEFAULT 0,
	skip_ast INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	ast_root INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS symbols (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id INTEGER NOT NULL REFERENCES files(id),
	kind TEXT NOT NULL,
	short_name TEXT NOT NULL,
	fqn TEXT NOT NULL UNIQUE,
	namespace TEXT NOT NULL DEFAULT '',
	modifiers TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS dependencies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_file_id INTEGER NOT NULL REFERENCES files(id),
	target_file_id INTEGER NOT NULL DEFAULT 0,
	kind TEXT NOT NULL,
	target_symbol TEXT NOT NULL DEFAULT '',
	source_line INTEGER NOT NULL DEFAULT 0,
	is_conditional INTEGER NOT NULL DEFAULT 0,
	is_resolved INTEGER NOT NULL DEFAULT 0,
	context TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS ast_nodes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id INTEGER NOT NULL REFERENCES files(id),
	parent_id INTEGER NOT NULL DEFAULT 0,
	kind TEXT NOT NULL,
	payload BLOB,
	span_start INTEGER NOT NULL DEFAULT 0,
	span_end INTEGER NOT NULL DEFAULT 0,
	fqn TEXT NOT NULL DEFAULT '',
	attributes BLOB,
	position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS autoload_rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	prefix TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_source ON dependencies(source_file_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_target ON dependencies(target_file_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_resolved ON dependencies(is_resolved);
CREATE INDEX IF NOT EXISTS idx_ast_nodes_file ON ast_nodes(file_id);
CREATE INDEX IF NOT EXISTS idx_ast_nodes_parent ON ast_nodes(parent_id);
`
