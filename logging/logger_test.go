package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/crytic/evosynth/logging/colors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAddAndRemoveWriter will test the Logger.AddWriter and Logger.RemoveWriter functions to ensure that they work
// as expected.
func TestAddAndRemoveWriter(t *testing.T) {
	logger := NewLogger(zerolog.InfoLevel, false)

	var structured, unstructured bytes.Buffer
	logger.AddWriter(&structured, STRUCTURED)
	logger.AddWriter(&unstructured, UNSTRUCTURED)
	assert.Len(t, logger.writers, 2)

	// Duplicate writers are ignored
	logger.AddWriter(&structured, STRUCTURED)
	assert.Len(t, logger.writers, 2)

	logger.RemoveWriter(&structured)
	assert.Len(t, logger.writers, 1)

	// Removing an unknown writer is a no-op
	logger.RemoveWriter(&bytes.Buffer{})
	assert.Len(t, logger.writers, 1)
}

// TestStructuredOutputCarriesSubLoggerContext ensures that writers added after a sub-logger was derived still receive
// the sub-logger's key-value context along with structured info and errors.
func TestStructuredOutputCarriesSubLoggerContext(t *testing.T) {
	logger := NewLogger(zerolog.InfoLevel, false).NewSubLogger("module", FACTORY_SERVICE)

	var buf bytes.Buffer
	logger.AddWriter(&buf, STRUCTURED)
	logger.Warn("insertion failed", StructuredLogInfo{"position": 3}, errors.New("no generator"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, FACTORY_SERVICE, entry["module"])
	assert.Equal(t, "insertion failed", entry["message"])
	assert.Equal(t, "no generator", entry["error"])
	assert.Equal(t, float64(3), entry["info"].(map[string]any)["position"])
}

// TestLevelFiltering verifies that messages below the configured level are discarded.
func TestLevelFiltering(t *testing.T) {
	logger := NewLogger(zerolog.WarnLevel, false)
	var buf bytes.Buffer
	logger.AddWriter(&buf, UNSTRUCTURED)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

// TestLogBufferStripsColors verifies that the plain representation of a LogBuffer contains no escape codes.
func TestLogBufferStripsColors(t *testing.T) {
	buffer := NewLogBuffer()
	buffer.Append(colors.Bold, "var0", colors.Reset, " = ", 5)
	assert.Equal(t, "var0 = 5", buffer.String())
	assert.False(t, strings.Contains(buffer.String(), "\x1b["))
}
