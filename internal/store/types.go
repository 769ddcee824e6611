package store

// FileID, SymbolID, DependencyID, AstNodeID, and AutoloadRuleID are
// distinct identifier types, uint64 to line up with SQLite's INTEGER
// PRIMARY KEY rowids.
type FileID uint64
type SymbolID uint64
type DependencyID uint64
type AstNodeID uint64
type AutoloadRuleID uint64

// FileKind classifies a File record.
type FileKind string

const (
	FileKindScript    FileKind = "script"
	FileKindClass     FileKind = "class"
	FileKindInterface FileKind = "interface"
	FileKindTrait     FileKind = "trait"
	FileKindMixed     FileKind = "mixed"
)

// AnalysisStatus is a File's analysis lifecycle state.
type AnalysisStatus string

const (
	StatusPending   AnalysisStatus = "pending"
	StatusCompleted AnalysisStatus = "completed"
	StatusFailed    AnalysisStatus = "failed"
)

// File is one entry in the catalog's File table.
type File struct {
	ID         FileID
	Path       string // canonical relative path from project root
	Content    string
	SHA256     string
	Kind       FileKind
	ClassName  string // defining class name, if any
	Namespace  string // nullable
	IsEntry    bool
	IsVendor   bool
	SkipAST    bool
	Status     AnalysisStatus
	ASTRoot    AstNodeID // 0 means none stored yet
}

// SymbolKind classifies a Symbol record.
type SymbolKind string

const (
	SymbolClass     SymbolKind = "class"
	SymbolInterface SymbolKind = "interface"
	SymbolTrait     SymbolKind = "trait"
	SymbolFunction  SymbolKind = "function"
)

// Symbol is one entry in the catalog's Symbol table, keyed by FQN.
type Symbol struct {
	ID        SymbolID
	FileID    FileID
	Kind      SymbolKind
	ShortName string
	FQN       string // leading backslash stripped
	Namespace string
	Modifiers string // visibility/modifier flags, free-form
}

// DependencyKind classifies a Dependency edge.
type DependencyKind string

const (
	DepRequire      DependencyKind = "require"
	DepRequireOnce  DependencyKind = "require_once"
	DepInclude      DependencyKind = "include"
	DepIncludeOnce  DependencyKind = "include_once"
	DepExtends      DependencyKind = "extends"
	DepImplements   DependencyKind = "implements"
	DepUseTrait     DependencyKind = "use_trait"
	DepUseClass     DependencyKind = "use_class"
)

// IsPathKind reports whether a dependency kind is resolved by
// filesystem path (require/include family) rather than by symbol FQN.
func (k DependencyKind) IsPathKind() bool {
	switch k {
	case DepRequire, DepRequireOnce, DepInclude, DepIncludeOnce:
		return true
	default:
		return false
	}
}

// Dependency is one entry in the catalog's Dependency table.
type Dependency struct {
	ID            DependencyID
	SourceFileID  FileID
	TargetFileID  FileID // 0 until resolved
	Kind          DependencyKind
	TargetSymbol  string // nullable, for path-based kinds empty
	SourceLine    int
	IsConditional bool
	IsResolved    bool
	Context       string // literal expression, "dynamic", or __DIR__-relative form
}

// AstNode is one entry in the catalog's AstNode table. Payload is the
// gob-encoded internal/ast.Node for this node.
type AstNode struct {
	ID         AstNodeID
	FileID     FileID
	ParentID   AstNodeID // 0 for the root
	Kind       string
	Payload    []byte
	SpanStart  int
	SpanEnd    int
	FQN        string // optional, for definition-bearing nodes
	Attributes []byte // optional serialized-attributes blob
	Position   int    // position among siblings
}

// AutoloadRuleKind classifies an AutoloadRule record.
type AutoloadRuleKind string

const (
	RulePSR4     AutoloadRuleKind = "psr4"
	RulePSR0     AutoloadRuleKind = "psr0"
	RuleClassmap AutoloadRuleKind = "classmap"
	RuleFiles    AutoloadRuleKind = "files"
)

// AutoloadRule is one entry in the catalog's AutoloadRule table.
type AutoloadRule struct {
	ID       AutoloadRuleID
	Kind     AutoloadRuleKind
	Prefix   string // required for psr4/psr0
	Path     string // absolute
	Priority int    // higher wins
}
