package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/targets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGenerateFlagsUpdateConfig ensures flags override the values read from the configuration.
func TestGenerateFlagsUpdateConfig(t *testing.T) {
	require.NoError(t, generateCmd.ParseFlags([]string{
		"--target", "classifier", "--target", "stack",
		"--workers", "2", "--test-limit", "50", "--seed", "9", "--no-dse", "--capability", config.CapabilityFilesystem,
	}))

	projectConfig := config.GetDefaultProjectConfig()
	require.NoError(t, updateProjectConfigWithGenerateFlags(generateCmd, projectConfig))
	g := projectConfig.Generation
	assert.Equal(t, []string{"classifier", "stack"}, g.Targets)
	assert.Equal(t, 2, g.Workers)
	assert.EqualValues(t, 50, g.TestLimit)
	assert.EqualValues(t, 9, g.Seed)
	assert.False(t, g.DSE.Enabled)
	assert.Equal(t, []string{config.CapabilityFilesystem}, g.Execution.Capabilities)
	assert.Equal(t, config.GetDefaultProjectConfig().Generation.Timeout, g.Timeout)
}

// TestRunSessionsReportsEveryTarget ensures each target gets a session and a coverage result.
func TestRunSessionsReportsEveryTarget(t *testing.T) {
	projectConfig := *config.GetDefaultProjectConfig()
	projectConfig.Generation.Targets = []string{"classifier", "counter"}
	projectConfig.Generation.Workers = 1
	projectConfig.Generation.TestLimit = 40
	projectConfig.Generation.Seed = 3
	projectConfig.Generation.DSE.Enabled = false
	projectConfig.Generation.OutputDirectory = t.TempDir()

	results, err := runSessions(context.Background(), projectConfig, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, name := range projectConfig.Generation.Targets {
		assert.Positive(t, results[name].Total, name)
	}
}

// TestRunSessionsFailsOnUnknownTarget ensures a failing session is reported.
func TestRunSessionsFailsOnUnknownTarget(t *testing.T) {
	projectConfig := *config.GetDefaultProjectConfig()
	projectConfig.Generation.Targets = []string{"missing"}
	_, err := runSessions(context.Background(), projectConfig, nil)
	assert.ErrorContains(t, err, "missing")
	assert.Error(t, validateTargetNames([]string{"classifier", "missing"}))
	assert.NoError(t, validateTargetNames(targets.Names()))
}

// TestInitWritesConfiguration ensures init writes a configuration listing its targets.
func TestInitWritesConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultProjectConfigFilename)
	rootCmd.SetArgs([]string{"init", "classifier", "bank", "--out", path, "--force"})
	rootCmd.SetOut(new(bytes.Buffer))
	require.NoError(t, rootCmd.Execute())

	projectConfig, err := config.ReadProjectConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"classifier", "bank"}, projectConfig.Generation.Targets)
}

// TestTargetsListsEveryTarget ensures the targets command prints one line per target.
func TestTargetsListsEveryTarget(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetArgs([]string{"targets"})
	rootCmd.SetOut(&out)
	require.NoError(t, rootCmd.Execute())
	for _, name := range targets.Names() {
		assert.Contains(t, out.String(), name)
	}
}
