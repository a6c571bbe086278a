// Package corpus persists generated test suites on disk, one CBOR file per test case named by the test's hash.
package corpus

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/logging"
	"github.com/crytic/evosynth/utils"
	"github.com/pkg/errors"
)

// testFileExtension is the extension of the file of one test case.
const testFileExtension = ".cbor"

// Corpus stores the test cases generated for one program under test.
type Corpus struct {
	tests   *corpusDirectory
	cluster *cluster.TestCluster

	logger *logging.Logger
}

// NewCorpus returns a Corpus stored in directory, loading the test cases already there. The cluster resolves the
// members referenced by stored tests. An empty directory keeps the corpus in memory.
func NewCorpus(directory string, c *cluster.TestCluster) (*Corpus, error) {
	corpus := &Corpus{
		tests:   newCorpusDirectory(directory),
		cluster: c,
		logger:  logging.GlobalLogger.NewSubLogger("module", logging.GENERATION_SERVICE),
	}
	if err := corpus.tests.readFiles("*" + testFileExtension); err != nil {
		return nil, err
	}
	return corpus, nil
}

// Directory returns the directory the corpus is stored in.
func (c *Corpus) Directory() string {
	return c.tests.path
}

// TestFileName returns the name of the file holding tc.
func TestFileName(tc *testcase.TestCase) string {
	return tc.Hash() + testFileExtension
}

// Add adds a test case to the corpus. A test structurally equal to a stored test replaces it.
func (c *Corpus) Add(tc *testcase.TestCase) error {
	data, err := testcase.Encode(tc)
	if err != nil {
		return err
	}
	c.tests.addFile(TestFileName(tc), data)
	return nil
}

// Remove removes a test case from the corpus. Reports whether it was stored.
func (c *Corpus) Remove(tc *testcase.TestCase) bool {
	return c.tests.removeFile(TestFileName(tc))
}

// Count returns the number of stored test cases.
func (c *Corpus) Count() int {
	c.tests.filesLock.Lock()
	defer c.tests.filesLock.Unlock()
	return len(c.tests.files)
}

// Flush writes pending changes to disk.
func (c *Corpus) Flush() error {
	return c.tests.writeFiles()
}

// Suite decodes the stored test cases, ordered by file name. Tests referencing members the cluster no longer
// declares are skipped.
func (c *Corpus) Suite() (*testcase.TestSuite, error) {
	c.tests.filesLock.Lock()
	files := append([]*corpusFile(nil), c.tests.files...)
	c.tests.filesLock.Unlock()
	sort.Slice(files, func(i, j int) bool { return files[i].fileName < files[j].fileName })

	suite := testcase.NewTestSuite()
	for _, file := range files {
		tc, err := testcase.Decode(file.data, c.cluster)
		if err != nil {
			c.logger.Warn("Skipping corpus entry ", file.fileName, " which cannot be restored", err)
			continue
		}
		suite.Add(tc)
	}
	return suite, nil
}

// WriteSuite replaces the test cases stored in directory with those of the suite.
func WriteSuite(directory string, suite *testcase.TestSuite) error {
	if directory == "" {
		return errors.New("no corpus directory was provided")
	}
	c, err := NewCorpus(directory, nil)
	if err != nil {
		return err
	}
	keep := make(map[string]bool, suite.Size())
	for _, tc := range suite.Tests {
		if err = c.Add(tc); err != nil {
			return err
		}
		keep[strings.ToLower(TestFileName(tc))] = true
	}
	for _, name := range c.fileNames() {
		if !keep[strings.ToLower(name)] {
			c.tests.removeFile(name)
		}
	}
	return c.Flush()
}

// ReadSuite reads the test cases stored in directory.
func ReadSuite(directory string, c *cluster.TestCluster) (*testcase.TestSuite, error) {
	if exists, err := utils.DirectoryExists(directory); err != nil {
		return nil, err
	} else if !exists {
		return nil, errors.Errorf("corpus directory %s does not exist", filepath.Clean(directory))
	}
	corpus, err := NewCorpus(directory, c)
	if err != nil {
		return nil, err
	}
	return corpus.Suite()
}

func (c *Corpus) fileNames() []string {
	c.tests.filesLock.Lock()
	defer c.tests.filesLock.Unlock()
	names := make([]string, len(c.tests.files))
	for i, file := range c.tests.files {
		names[i] = file.fileName
	}
	return names
}
