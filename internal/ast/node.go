// Package ast represents parsed PHP source as a tagged sum type: one
// Go struct per construct the analyzer and merger care about, plus an
// opaque Other variant carrying the verbatim subtree for
// pretty-printing. This replaces the recursive, variable-shaped node
// visitor a dynamically-typed parser would use — every variant here
// is a concrete, gob-encodable Go type.
package ast

// Kind discriminates which variant a Node value holds.
type Kind string

const (
	KindNamespace  Kind = "namespace"
	KindUse        Kind = "use"
	KindUseGroup   Kind = "use_group"
	KindClass      Kind = "class"
	KindInterface  Kind = "interface"
	KindTrait      Kind = "trait"
	KindFunction   Kind = "function"
	KindMethod     Kind = "method"
	KindProperty   Kind = "property"
	KindNew        Kind = "new"
	KindStaticCall Kind = "static_call"
	KindClassConst Kind = "class_const"
	KindInstanceof Kind = "instanceof"
	KindInclude    Kind = "include"
	KindOther      Kind = "other"
)

// Node is implemented by every AST variant. Kind lets a merge/codegen
// visitor pattern-match without a type switch over every concrete
// type's fields beyond that first dispatch.
type Node interface {
	Kind() Kind
}

// Span is the byte range a node occupies in its owning file's source,
// embedded (by value, named field) in every variant.
type Span struct{ Start, End int }

// NewSpan builds the embeddable Span value every variant carries.
func NewSpan(start, end int) Span {
	return Span{Start: start, End: end}
}

// Namespace is a `namespace Foo\Bar;` (or braced `namespace Foo { }`)
// declaration.
type Namespace struct {
	Pos    Span
	Name   string // empty means global namespace
	Braced bool
}

func (Namespace) Kind() Kind { return KindNamespace }

// UseImport is one imported name inside a `use` statement.
type UseImport struct {
	FQN   string
	Alias string // empty if unaliased
}

// Use is a single, non-grouped `use Foo\Bar [as Baz];` statement.
// Namespace is the namespace block it was declared in (bucketing key
// the merger re-groups use statements by, independent of the target
// FQN's own namespace).
type Use struct {
	Pos       Span
	Namespace string
	Import    UseImport
}

func (Use) Kind() Kind { return KindUse }

// UseGroup is a `use Foo\{Bar, Baz as Qux};` grouped statement.
type UseGroup struct {
	Pos       Span
	Namespace string
	Prefix    string
	Imports   []UseImport
}

func (UseGroup) Kind() Kind { return KindUseGroup }

// Class is a class declaration. Source carries the verbatim
// declaration text (signature through closing brace) so the merger
// can reproduce it without re-deriving a pretty-printed body — the
// same "opaque subtree" approach Other uses, scoped to one symbol.
type Class struct {
	Pos        Span
	Name       string // short name
	FQN        string
	Namespace  string
	Extends    string // FQN, empty if none
	Implements []string
	IsAbstract bool
	IsFinal    bool
	DocComment string
	Source     string
}

func (Class) Kind() Kind { return KindClass }

// Interface is an interface declaration.
type Interface struct {
	Pos        Span
	Name       string
	FQN        string
	Namespace  string
	Extends    []string
	DocComment string
	Source     string
}

func (Interface) Kind() Kind { return KindInterface }

// Trait is a trait declaration.
type Trait struct {
	Pos        Span
	Name       string
	FQN        string
	Namespace  string
	DocComment string
	Source     string
}

func (Trait) Kind() Kind { return KindTrait }

// Function is a free function declaration. BodySource carries the
// verbatim declaration text, signature through closing brace.
type Function struct {
	Pos        Span
	Name       string
	FQN        string
	Namespace  string
	Params     []Param
	ReturnType string
	DocComment string
	BodySource string
}

func (Function) Kind() Kind { return KindFunction }

// Method is a class/interface/trait method declaration.
type Method struct {
	Pos        Span
	Name       string
	Visibility string // public/protected/private
	IsStatic   bool
	IsAbstract bool
	Params     []Param
	ReturnType string
	DocComment string
	BodySource string
}

func (Method) Kind() Kind { return KindMethod }

// Param is one function/method parameter, including PHP 8
// constructor property promotion.
type Param struct {
	Name        string
	Type        string
	Promoted    bool
	Visibility  string // only set when Promoted
	DefaultExpr string
}

// Property is a class property declaration.
type Property struct {
	Pos         Span
	Name        string
	Visibility  string
	IsStatic    bool
	Type        string
	DefaultExpr string
	DocComment  string
}

func (Property) Kind() Kind { return KindProperty }

// New is a `new X(...)` expression referencing a class by name.
type New struct {
	Pos      Span
	ClassFQN string
}

func (New) Kind() Kind { return KindNew }

// StaticCall is an `X::method(...)` expression.
type StaticCall struct {
	Pos      Span
	ClassFQN string
	Method   string
}

func (StaticCall) Kind() Kind { return KindStaticCall }

// ClassConst is an `X::CONST` expression.
type ClassConst struct {
	Pos      Span
	ClassFQN string
	Const    string
}

func (ClassConst) Kind() Kind { return KindClassConst }

// Instanceof is an `$x instanceof X` expression.
type Instanceof struct {
	Pos      Span
	ClassFQN string
}

func (Instanceof) Kind() Kind { return KindInstanceof }

// IncludeKind distinguishes the four require/include forms.
type IncludeKind string

const (
	IncludeRequire     IncludeKind = "require"
	IncludeRequireOnce IncludeKind = "require_once"
	IncludeInclude     IncludeKind = "include"
	IncludeIncludeOnce IncludeKind = "include_once"
)

// Include is a require/include statement (any of the four forms).
type Include struct {
	Pos           Span
	Form          IncludeKind
	Expr          string // literal string, "dynamic", or __DIR__-relative form
	IsConditional bool
}

func (Include) Kind() Kind { return KindInclude }

// Other is an opaque subtree the analyzer does not model explicitly;
// it carries the verbatim source text so the pretty-printer can
// reproduce it unchanged.
type Other struct {
	Pos    Span
	Source string
}

func (Other) Kind() Kind { return KindOther }
