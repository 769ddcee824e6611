// Package errors defines the typed error kinds the packer pipeline
// reports, each carrying enough context to map onto a driver exit
// code without the caller needing to pattern-match on message text.
package errors

import (
	"fmt"
)

// Kind identifies which of the packer's error categories an error
// belongs to.
type Kind string

const (
	KindConfig           Kind = "config"
	KindNotFound         Kind = "not_found"
	KindParse            Kind = "parse"
	KindDuplicateSymbol  Kind = "duplicate_symbol"
	KindUnresolvable     Kind = "unresolvable"
	KindCircularAnalysis Kind = "circular_analysis"
	KindEmptyBundle      Kind = "empty_bundle"
	KindEntryNotBundled  Kind = "entry_not_bundled"
	KindWrite            Kind = "write"
)

// ConfigError reports a missing/invalid entry, invalid JSON, or an
// unknown required key in the input configuration.
type ConfigError struct {
	Field      string
	Underlying error
}

func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{Field: field, Underlying: err}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %v", e.Underlying)
	}
	return fmt.Sprintf("config error for %q: %v", e.Field, e.Underlying)
}

func (e *ConfigError) Unwrap() error { return e.Underlying }
func (e *ConfigError) Kind() Kind    { return KindConfig }

// NotFoundError reports a path that does not exist on disk when
// expected.
type NotFoundError struct {
	Path string
}

func NewNotFoundError(path string) *NotFoundError {
	return &NotFoundError{Path: path}
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %s", e.Path) }
func (e *NotFoundError) Kind() Kind    { return KindNotFound }

// ParseError reports source that is not syntactically valid PHP.
// Fatal for the file it names; non-fatal for the run as a whole.
type ParseError struct {
	Path       string
	Line       int
	Underlying error
}

func NewParseError(path string, line int, err error) *ParseError {
	return &ParseError{Path: path, Line: line, Underlying: err}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %s:%d: %v", e.Path, e.Line, e.Underlying)
}

func (e *ParseError) Unwrap() error { return e.Underlying }
func (e *ParseError) Kind() Kind    { return KindParse }

// DuplicateSymbolError reports the same FQN re-declared with an
// incompatible kind. The first definition wins; this is logged, not
// fatal.
type DuplicateSymbolError struct {
	FQN          string
	ExistingKind string
	NewKind      string
}

func NewDuplicateSymbolError(fqn, existingKind, newKind string) *DuplicateSymbolError {
	return &DuplicateSymbolError{FQN: fqn, ExistingKind: existingKind, NewKind: newKind}
}

func (e *DuplicateSymbolError) Error() string {
	return fmt.Sprintf("duplicate symbol %q: already a %s, redeclared as %s", e.FQN, e.ExistingKind, e.NewKind)
}

func (e *DuplicateSymbolError) Kind() Kind { return KindDuplicateSymbol }

// UnresolvableError reports a dependency that could not be bound
// after the fixed-point loop completed.
type UnresolvableError struct {
	Source string
	Target string
}

func NewUnresolvableError(source, target string) *UnresolvableError {
	return &UnresolvableError{Source: source, Target: target}
}

func (e *UnresolvableError) Error() string {
	return fmt.Sprintf("unresolvable dependency: %s -> %s", e.Source, e.Target)
}

func (e *UnresolvableError) Kind() Kind { return KindUnresolvable }

// CircularAnalysisError reports re-entrant analysis of a file already
// on the processing stack.
type CircularAnalysisError struct {
	Path string
}

func NewCircularAnalysisError(path string) *CircularAnalysisError {
	return &CircularAnalysisError{Path: path}
}

func (e *CircularAnalysisError) Error() string {
	return fmt.Sprintf("circular analysis detected re-entering %s", e.Path)
}

func (e *CircularAnalysisError) Kind() Kind { return KindCircularAnalysis }

// EmptyBundleError reports an empty file list passed to code
// generation.
type EmptyBundleError struct{}

func NewEmptyBundleError() *EmptyBundleError { return &EmptyBundleError{} }

func (e *EmptyBundleError) Error() string { return "bundle file list is empty" }
func (e *EmptyBundleError) Kind() Kind    { return KindEmptyBundle }

// EntryNotBundledError reports that the entry file does not appear
// among the files selected for generation.
type EntryNotBundledError struct {
	Entry string
}

func NewEntryNotBundledError(entry string) *EntryNotBundledError {
	return &EntryNotBundledError{Entry: entry}
}

func (e *EntryNotBundledError) Error() string {
	return fmt.Sprintf("entry file %q not present in bundle set", e.Entry)
}

func (e *EntryNotBundledError) Kind() Kind { return KindEntryNotBundled }

// WriteError reports that the output file could not be written.
type WriteError struct {
	Path       string
	Underlying error
}

func NewWriteError(path string, err error) *WriteError {
	return &WriteError{Path: path, Underlying: err}
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("could not write bundle to %s: %v", e.Path, e.Underlying)
}

func (e *WriteError) Unwrap() error { return e.Underlying }
func (e *WriteError) Kind() Kind    { return KindWrite }

// MultiError aggregates non-fatal warnings collected during a run
// (unresolved dependencies, circular-analysis re-entries, duplicate
// symbols) so the driver can report a count without aborting.
type MultiError struct {
	Errors []error
}

func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *MultiError) Len() int { return len(e.Errors) }

func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors, first: %v", len(e.Errors), e.Errors[0])
	}
}

func (e *MultiError) Unwrap() []error { return e.Errors }

// ExitCode maps an error produced by the pipeline to the driver exit
// code contract: 0 success, 1 configuration error, 2 analysis error,
// 3 generation error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch err.(type) {
	case *ConfigError:
		return 1
	case *ParseError, *UnresolvableError, *CircularAnalysisError, *NotFoundError:
		return 2
	case *EmptyBundleError, *EntryNotBundledError, *WriteError:
		return 3
	default:
		return 2
	}
}
