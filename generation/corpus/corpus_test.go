package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/targets"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/generation/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classifierCluster(t *testing.T) *cluster.TestCluster {
	target, ok := targets.Lookup("classifier")
	require.True(t, ok)
	c, err := target.Cluster(nil)
	require.NoError(t, err)
	return c
}

func classifyTest(t *testing.T, c *cluster.TestCluster, value int64) *testcase.TestCase {
	var newClassifier, classify *cluster.Member
	for _, m := range c.Members() {
		switch m.Name {
		case "NewClassifier":
			newClassifier = m
		case "Classify":
			classify = m
		}
	}
	require.NotNil(t, classify)

	tc := testcase.New()
	x := tc.AppendStatement(testcase.NewPrimitiveStatement(types.Int, value))
	callee := tc.AppendStatement(testcase.NewConstructorStatement(newClassifier, nil))
	tc.AppendStatement(testcase.NewMethodStatement(classify, callee, []*testcase.VariableReference{x}))
	return tc
}

func storedFiles(t *testing.T, directory string) []string {
	matches, err := filepath.Glob(filepath.Join(directory, "*"+testFileExtension))
	require.NoError(t, err)
	return matches
}

// TestSuiteReadWrite ensures a written suite is read back test by test and stale files are removed.
func TestSuiteReadWrite(t *testing.T) {
	c := classifierCluster(t)
	directory := filepath.Join(t.TempDir(), "classifier")
	positive, negative := classifyTest(t, c, 5), classifyTest(t, c, -5)

	require.NoError(t, WriteSuite(directory, testcase.NewTestSuite(positive, negative)))
	files := storedFiles(t, directory)
	assert.ElementsMatch(t, []string{
		filepath.Join(directory, TestFileName(positive)),
		filepath.Join(directory, TestFileName(negative)),
	}, files)

	suite, err := ReadSuite(directory, c)
	require.NoError(t, err)
	require.Equal(t, 2, suite.Size())
	hashes := []string{suite.Tests[0].Hash(), suite.Tests[1].Hash()}
	assert.ElementsMatch(t, []string{positive.Hash(), negative.Hash()}, hashes)

	require.NoError(t, WriteSuite(directory, testcase.NewTestSuite(negative)))
	assert.Equal(t, []string{filepath.Join(directory, TestFileName(negative))}, storedFiles(t, directory))
}

// TestCorpusTracksChanges ensures additions and removals reach the disk on flush only.
func TestCorpusTracksChanges(t *testing.T) {
	c := classifierCluster(t)
	directory := t.TempDir()
	corpus, err := NewCorpus(directory, c)
	require.NoError(t, err)

	tc := classifyTest(t, c, 1)
	require.NoError(t, corpus.Add(tc))
	// Structurally equal tests share a file
	require.NoError(t, corpus.Add(classifyTest(t, c, 1)))
	assert.Equal(t, 1, corpus.Count())
	assert.Empty(t, storedFiles(t, directory))

	require.NoError(t, corpus.Flush())
	assert.Len(t, storedFiles(t, directory), 1)

	assert.True(t, corpus.Remove(tc))
	assert.False(t, corpus.Remove(tc))
	assert.Len(t, storedFiles(t, directory), 1)
	require.NoError(t, corpus.Flush())
	assert.Empty(t, storedFiles(t, directory))
}

// TestUnreadableEntriesAreSkipped ensures corrupt files do not prevent the rest of the corpus from loading.
func TestUnreadableEntriesAreSkipped(t *testing.T) {
	c := classifierCluster(t)
	directory := t.TempDir()
	require.NoError(t, WriteSuite(directory, testcase.NewTestSuite(classifyTest(t, c, 2))))
	require.NoError(t, os.WriteFile(filepath.Join(directory, "corrupt"+testFileExtension), []byte{0xa1}, 0644))

	suite, err := ReadSuite(directory, c)
	require.NoError(t, err)
	assert.Equal(t, 1, suite.Size())

	_, err = ReadSuite(filepath.Join(directory, "missing"), c)
	assert.Error(t, err)
}

// TestMemoryCorpus ensures a corpus without a directory never touches the disk.
func TestMemoryCorpus(t *testing.T) {
	c := classifierCluster(t)
	corpus, err := NewCorpus("", c)
	require.NoError(t, err)
	require.NoError(t, corpus.Add(classifyTest(t, c, 3)))
	require.NoError(t, corpus.Flush())

	suite, err := corpus.Suite()
	require.NoError(t, err)
	assert.Equal(t, 1, suite.Size())
	assert.Error(t, WriteSuite("", suite))
}
