package analyzer

// ScopeKind classifies a lexical scope frame.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeNamespace
	ScopeClass
	ScopeFunction
	ScopeBlock
)

// Scope is one frame of the analyzer's scope stack: enough to know,
// while walking a class body, that a const_declaration belongs to the
// class rather than to the global namespace.
type Scope struct {
	Kind      ScopeKind
	ClassName string // set when Kind == ScopeClass
}

// ScopeManager is a push/pop scope stack tracking construct
// boundaries; the analyzer pushes a ScopeClass frame for each
// class-like declaration. Conditional-context detection does not use
// it (see IsConditionalKind).
type ScopeManager struct {
	stack []Scope
}

// NewScopeManager returns a manager seeded with the global scope.
func NewScopeManager() *ScopeManager {
	return &ScopeManager{stack: []Scope{{Kind: ScopeGlobal}}}
}

func (m *ScopeManager) Push(s Scope) { m.stack = append(m.stack, s) }

func (m *ScopeManager) Pop() {
	if len(m.stack) > 1 {
		m.stack = m.stack[:len(m.stack)-1]
	}
}

// Current returns the innermost scope frame.
func (m *ScopeManager) Current() Scope {
	return m.stack[len(m.stack)-1]
}

// InClass reports whether the innermost scope is a class body.
func (m *ScopeManager) InClass() bool {
	return m.Current().Kind == ScopeClass
}

// conditionalKinds are the tree-sitter node kinds that mark every
// descendant statement as conditionally executed.
var conditionalKinds = map[string]bool{
	"if_statement":        true,
	"else_clause":         true,
	"else_if_clause":      true,
	"try_statement":       true,
	"catch_clause":        true,
	"while_statement":     true,
	"do_statement":        true,
	"for_statement":       true,
	"foreach_statement":   true,
	"switch_statement":    true,
	"conditional_expression": true,
}

// IsConditionalKind reports whether nodeKind marks its descendants as
// running inside a branch/try/loop.
func IsConditionalKind(nodeKind string) bool {
	return conditionalKinds[nodeKind]
}
