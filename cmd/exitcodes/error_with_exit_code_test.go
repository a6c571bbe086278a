package exitcodes

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestGetInnerErrorAndExitCode(t *testing.T) {
	err, code := GetInnerErrorAndExitCode(nil)
	assert.NoError(t, err)
	assert.Equal(t, ExitCodeSuccess, code)

	plain := errors.New("plain")
	err, code = GetInnerErrorAndExitCode(plain)
	assert.Equal(t, plain, err)
	assert.Equal(t, ExitCodeGeneralError, code)

	inner := errors.New("session failed")
	wrapped := errors.Wrap(NewErrorWithExitCode(inner, ExitCodeGenerationError), "generate")
	err, code = GetInnerErrorAndExitCode(wrapped)
	assert.Equal(t, inner, err)
	assert.Equal(t, ExitCodeGenerationError, code)
}
