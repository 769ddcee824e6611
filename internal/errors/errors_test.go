package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeMapsEachKind(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(NewConfigError("entry", errors.New("required"))))
	assert.Equal(t, 2, ExitCode(NewParseError("a.php", 3, errors.New("boom"))))
	assert.Equal(t, 2, ExitCode(NewUnresolvableError("a.php", `App\B`)))
	assert.Equal(t, 2, ExitCode(NewCircularAnalysisError("a.php")))
	assert.Equal(t, 2, ExitCode(NewNotFoundError("a.php")))
	assert.Equal(t, 3, ExitCode(NewEmptyBundleError()))
	assert.Equal(t, 3, ExitCode(NewEntryNotBundledError("a.php")))
	assert.Equal(t, 3, ExitCode(NewWriteError("out.php", errors.New("disk full"))))
}

func TestMultiErrorAggregatesAndFiltersNil(t *testing.T) {
	m := NewMultiError([]error{nil, NewUnresolvableError("a.php", `App\B`), nil})
	assert.Equal(t, 1, m.Len())

	m.Add(NewCircularAnalysisError("b.php"))
	assert.Equal(t, 2, m.Len())
	assert.Contains(t, m.Error(), "2 errors")

	m.Add(nil)
	assert.Equal(t, 2, m.Len(), "Add must ignore nil errors")
}

func TestMultiErrorUnwrapExposesUnderlyingErrors(t *testing.T) {
	inner := NewUnresolvableError("a.php", `App\B`)
	m := NewMultiError([]error{inner})

	var target *UnresolvableError
	assert.True(t, errors.As(error(m), &target))
	assert.Equal(t, inner, target)
}

func TestConfigErrorUnwrap(t *testing.T) {
	underlying := errors.New("boom")
	err := NewConfigError("entry", underlying)
	assert.ErrorIs(t, err, underlying)
}
