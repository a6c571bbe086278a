package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfigIsValid ensures the default project configuration passes validation.
func TestDefaultConfigIsValid(t *testing.T) {
	projectConfig := GetDefaultProjectConfig()
	assert.NoError(t, projectConfig.Validate())
	assert.Equal(t, 0.0, projectConfig.Generation.Factory.FunctionalMockingProbability)
	assert.Equal(t, 0, projectConfig.Generation.Factory.MaxMockReuses)
}

// TestConfigFileRoundTrip writes a modified configuration to disk and ensures it is read back identically.
func TestConfigFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evosynth.json")

	projectConfig := GetDefaultProjectConfig()
	projectConfig.Generation.Targets = []string{"classifier", "bank"}
	projectConfig.Generation.Factory.TypeSubstitutions["T"] = "Integer"
	projectConfig.Generation.Execution.Capabilities = []string{CapabilitySpawnGoroutine}
	require.NoError(t, projectConfig.WriteToFile(path))

	readConfig, err := ReadProjectConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, projectConfig, readConfig)
}

// TestMissingFieldsKeepDefaults ensures partially specified configuration files fall back on default values.
func TestMissingFieldsKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"generation": {"workers": 1, "dse": {"maxSolutionAttempts": 9}}}`), 0644))

	readConfig, err := ReadProjectConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, readConfig.Generation.Workers)
	assert.Equal(t, 9, readConfig.Generation.DSE.MaxSolutionAttempts)
	assert.Equal(t, GetDefaultProjectConfig().Generation.DSE.BudgetType, readConfig.Generation.DSE.BudgetType)
	assert.NoError(t, readConfig.Validate())
}

// TestValidateRejectsInvalidValues exercises each validation rule with a single broken field.
func TestValidateRejectsInvalidValues(t *testing.T) {
	cases := map[string]func(c *ProjectConfig){
		"workers":      func(c *ProjectConfig) { c.Generation.Workers = 0 },
		"recursion":    func(c *ProjectConfig) { c.Generation.Factory.MaxRecursion = 0 },
		"probability":  func(c *ProjectConfig) { c.Generation.Factory.NullProbability = 1.5 },
		"mock percent": func(c *ProjectConfig) { c.Generation.Factory.FunctionalMockingPercent = -0.1 },
		"timeout":      func(c *ProjectConfig) { c.Generation.Execution.TimeoutMillis = 0 },
		"capability":   func(c *ProjectConfig) { c.Generation.Execution.Capabilities = []string{"root"} },
		"budget type":  func(c *ProjectConfig) { c.Generation.DSE.BudgetType = "forever" },
		"budget":       func(c *ProjectConfig) { c.Generation.DSE.Budget = 0 },
		"solver":       func(c *ProjectConfig) { c.Generation.Solver.MaxIterations = 0 },
		"mock reuses":  func(c *ProjectConfig) { c.Generation.Factory.MaxMockReuses = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			projectConfig := GetDefaultProjectConfig()
			mutate(projectConfig)
			assert.Error(t, projectConfig.Validate())
		})
	}
}

// TestReadMissingFile ensures a missing configuration file surfaces an error.
func TestReadMissingFile(t *testing.T) {
	_, err := ReadProjectConfigFromFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
