package generation

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/corpus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testProjectConfig(t *testing.T) config.ProjectConfig {
	cfg := *config.GetDefaultProjectConfig()
	cfg.Generation.Seed = 7
	cfg.Generation.Timeout = 30
	cfg.Generation.TestLimit = 150
	cfg.Generation.MaxTestLength = 10
	cfg.Generation.OutputDirectory = t.TempDir()
	cfg.Generation.Execution.TimeoutMillis = 500
	cfg.Generation.Execution.ShutdownGracePeriodMillis = 100
	cfg.Generation.DSE.Probability = 0.2
	cfg.Generation.DSE.BudgetType = config.BudgetIterations
	cfg.Generation.DSE.Budget = 10
	return cfg
}

// TestSessionGeneratesCoveringSuite ensures a session keeps only tests adding coverage, reports them, and writes
// the suite to the output directory.
func TestSessionGeneratesCoveringSuite(t *testing.T) {
	cfg := testProjectConfig(t)
	s, err := NewSession(cfg, "classifier")
	require.NoError(t, err)

	var lock sync.Mutex
	added := 0
	s.Events.TestAdded.Subscribe(func(event TestAddedEvent) error {
		lock.Lock()
		defer lock.Unlock()
		added++
		assert.Equal(t, s, event.Session)
		return nil
	})
	var finished []SessionFinishedEvent
	s.Events.SessionFinished.Subscribe(func(event SessionFinishedEvent) error {
		finished = append(finished, event)
		return nil
	})

	require.NoError(t, s.Run(context.Background()))

	suite := s.Suite()
	require.Positive(t, suite.Size())
	assert.Equal(t, suite.Size(), added)
	assert.EqualValues(t, suite.Size(), s.Metrics().TestsKept())
	assert.LessOrEqual(t, s.Metrics().TestsExecuted(), cfg.Generation.TestLimit)

	require.Len(t, finished, 1)
	assert.NoError(t, finished[0].Err)
	assert.GreaterOrEqual(t, len(finished[0].Coverage.Covered), suite.Size())
	assert.Equal(t, 8, finished[0].Coverage.Total)

	directory := filepath.Join(cfg.Generation.OutputDirectory, "classifier")
	assert.Equal(t, directory, s.OutputDirectory())
	matches, err := filepath.Glob(filepath.Join(directory, "*.cbor"))
	require.NoError(t, err)
	assert.Len(t, matches, suite.Size())
	for _, tc := range suite.Tests {
		assert.Contains(t, matches, filepath.Join(directory, corpus.TestFileName(tc)))
	}
}

// TestSessionRestoresWrittenSuite ensures a later session starts from the suite written by an earlier one.
func TestSessionRestoresWrittenSuite(t *testing.T) {
	cfg := testProjectConfig(t)
	first, err := NewSession(cfg, "classifier")
	require.NoError(t, err)
	require.NoError(t, first.Run(context.Background()))
	written := first.Suite()

	cfg.Generation.TestLimit = uint64(written.Size())
	cfg.Generation.DSE.Enabled = false
	second, err := NewSession(cfg, "classifier")
	require.NoError(t, err)
	var restored int
	second.Events.TestAdded.Subscribe(func(event TestAddedEvent) error {
		if event.Source == SourceCorpus {
			restored++
		}
		return nil
	})
	require.NoError(t, second.Run(context.Background()))
	assert.Positive(t, restored)
	assert.LessOrEqual(t, restored, written.Size())
}

// TestSessionRejectsUnknownTargets ensures targets are resolved when the session is created.
func TestSessionRejectsUnknownTargets(t *testing.T) {
	_, err := NewSession(testProjectConfig(t), "missing")
	assert.ErrorContains(t, err, "unknown target")

	cfg := testProjectConfig(t)
	cfg.Generation.Workers = 0
	_, err = NewSession(cfg, "classifier")
	assert.Error(t, err)
}

// TestCancelledSessionStillWritesItsSuite ensures a cancelled session ends without error and writes its suite.
func TestCancelledSessionStillWritesItsSuite(t *testing.T) {
	cfg := testProjectConfig(t)
	cfg.Generation.TestLimit = 0
	s, err := NewSession(cfg, "classifier")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Events.TestAdded.Subscribe(func(TestAddedEvent) error {
		cancel()
		return nil
	})
	defer cancel()

	require.NoError(t, s.Run(ctx))
	matches, err := filepath.Glob(filepath.Join(s.OutputDirectory(), "*.cbor"))
	require.NoError(t, err)
	assert.Len(t, matches, s.Suite().Size())
	assert.Positive(t, s.Suite().Size())
}
