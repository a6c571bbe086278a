// Package generation drives test suite generation for one program under test: it builds the components of a
// session, runs the random search with periodic concolic negation, and writes the resulting suite.
package generation

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/corpus"
	"github.com/crytic/evosynth/generation/dse"
	"github.com/crytic/evosynth/generation/execution"
	"github.com/crytic/evosynth/generation/factory"
	"github.com/crytic/evosynth/generation/fitness"
	"github.com/crytic/evosynth/generation/solver"
	"github.com/crytic/evosynth/generation/targets"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/logging"
	"github.com/crytic/evosynth/logging/colors"
	"github.com/crytic/evosynth/utils"
	"github.com/crytic/evosynth/utils/randomutils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// metricsPrintInterval is the time between two progress reports of a running session.
const metricsPrintInterval = 3 * time.Second

// mutation derives a candidate test case from the suite. It returns nil if no candidate could be derived.
type mutation func(s *Session) *testcase.TestCase

// Session generates a test suite for one target. It owns every component of the generation: none of them is shared
// with other sessions.
type Session struct {
	// ID identifies the session in logs and events.
	ID uuid.UUID

	// ctx describes the context of the search loop, used to cancel running operations.
	ctx context.Context
	// ctxCancelFunc cancels ctx.
	ctxCancelFunc context.CancelFunc

	// config describes the project configuration of the session.
	config config.ProjectConfig
	// target describes the program under test.
	target *targets.Target
	// cluster describes the members of the program under test.
	cluster *cluster.TestCluster
	// random is the root source of random decisions. Components receive forks of it.
	random *rand.Rand

	factory  *factory.TestFactory
	executor *execution.Executor
	coverage *fitness.BranchCoverage
	solver   *solver.CachedSolver
	dse      *dse.TestSuiteDSE

	// mutations chooses how the next candidate is derived from a non-empty suite.
	mutations *randomutils.WeightedRandomChooser[mutation]

	// suite holds the tests kept so far.
	suite     *testcase.TestSuite
	suiteLock sync.Mutex

	// workerCommand describes the command line of worker processes when process isolation is enabled.
	workerCommand []string

	metrics   *SessionMetrics
	startTime time.Time

	// Events describes the event system for the Session.
	Events SessionEvents

	logger *logging.Logger
}

// NewSession returns a Session generating tests for the named target, or an error if the configuration is invalid
// or the target unknown.
func NewSession(cfg config.ProjectConfig, targetName string) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	target, ok := targets.Lookup(targetName)
	if !ok {
		return nil, errors.Errorf("unknown target %q", targetName)
	}
	c, err := target.Cluster(cfg.Generation.Factory.TypeSubstitutions)
	if err != nil {
		return nil, err
	}
	if c.NumTestCalls() == 0 {
		return nil, errors.Errorf("target %s declares nothing to test", targetName)
	}

	seed := cfg.Generation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	id := uuid.New()
	s := &Session{
		ID:      id,
		config:  cfg,
		target:  target,
		cluster: c,
		random:  rand.New(rand.NewSource(seed)),
		suite:   testcase.NewTestSuite(),
		metrics: &SessionMetrics{},
		logger:  logging.GlobalLogger.NewSubLogger("module", logging.GENERATION_SERVICE).NewSubLogger("target", targetName),
	}
	s.logger.Debug("Created session ", id.String(), " with seed ", seed)
	return s, nil
}

// SetWorkerCommand sets the command line starting a worker process, used when process isolation is enabled.
func (s *Session) SetWorkerCommand(command []string) {
	s.workerCommand = command
}

// Target returns the program under test.
func (s *Session) Target() *targets.Target {
	return s.target
}

// Metrics returns the counters of the session.
func (s *Session) Metrics() *SessionMetrics {
	return s.metrics
}

// Suite returns a copy of the suite generated so far.
func (s *Session) Suite() *testcase.TestSuite {
	s.suiteLock.Lock()
	defer s.suiteLock.Unlock()
	return s.suite.Clone()
}

// OutputDirectory returns the directory the suite of the session is written to, or an empty string if suites are
// not written.
func (s *Session) OutputDirectory() string {
	return SuiteDirectory(s.config.Generation, s.target.Name)
}

// SuiteDirectory returns the directory the suite of the named target is written to, or an empty string if suites
// are not written.
func SuiteDirectory(cfg config.GenerationConfig, targetName string) string {
	if cfg.OutputDirectory == "" {
		return ""
	}
	return filepath.Join(cfg.OutputDirectory, targetName)
}

// Run generates the suite. It returns once the time or test limit is reached, every coverage goal is covered, or
// ctx is cancelled. The suite is written even if the search stopped with an error.
func (s *Session) Run(ctx context.Context) error {
	s.ctx, s.ctxCancelFunc = context.WithCancel(ctx)
	defer s.ctxCancelFunc()
	if s.config.Generation.Timeout > 0 {
		s.logger.Info("Running with timeout of ", s.config.Generation.Timeout, " seconds")
		s.ctx, s.ctxCancelFunc = context.WithTimeout(s.ctx, time.Duration(s.config.Generation.Timeout)*time.Second)
		defer s.ctxCancelFunc()
	}
	s.startTime = time.Now()

	if err := s.setup(); err != nil {
		s.teardown()
		return err
	}

	var err error
	if err = s.restoreSuite(); err == nil {
		err = s.Events.SessionStarting.Publish(SessionStartingEvent{Session: s})
	}

	printerDone := make(chan struct{})
	go s.runMetricsPrintLoop(printerDone)

	if err == nil {
		err = s.search()
	}
	s.ctxCancelFunc()
	<-printerDone

	// After this point errors are captured but the session still writes what it has
	if directory := s.OutputDirectory(); directory != "" {
		writeErr := corpus.WriteSuite(directory, s.Suite())
		if err == nil {
			err = writeErr
		}
	}

	coverage, coverageErr := s.coverage.Coverage(context.Background(), s.Suite())
	if err == nil {
		err = coverageErr
	}
	s.logSummary(coverage)
	s.teardown()

	finishedErr := s.Events.SessionFinished.Publish(SessionFinishedEvent{Session: s, Coverage: coverage, Err: err})
	if err == nil {
		err = finishedErr
	}
	return err
}

// Stop cancels a running search. It may return before the session has written its suite.
func (s *Session) Stop() {
	if s.ctxCancelFunc != nil {
		s.ctxCancelFunc()
	}
}

// setup builds the components of the session.
func (s *Session) setup() error {
	g := s.config.Generation
	var err error

	s.factory = factory.NewTestFactory(s.cluster, g.Factory, randomutils.ForkRandomProvider(s.random))
	s.factory.SetProgressFunc(s.progress)

	s.executor, err = execution.NewExecutor(s.cluster, g.Execution)
	if err != nil {
		return err
	}
	if g.Execution.ProcessIsolation {
		runner, err := execution.NewProcessRunner(s.workerCommand, g.Execution)
		if err != nil {
			return err
		}
		s.executor.SetProcessRunner(runner)
	}
	s.coverage = fitness.NewBranchCoverage(s.cluster, s.executor)

	// Sessions of different targets keep separate cache databases
	solverConfig := g.Solver
	if solverConfig.CacheDirectory != "" {
		solverConfig.CacheDirectory = filepath.Join(solverConfig.CacheDirectory, s.target.Name)
	}
	s.solver, err = solver.NewFromConfig(s.ctx, solverConfig, randomutils.ForkRandomProvider(s.random))
	if err != nil {
		return err
	}

	s.dse = dse.NewTestSuiteDSE(g.DSE, s.solver, dse.NewExecutorPathExtractor(s.executor), s.coverage, randomutils.ForkRandomProvider(s.random))
	s.dse.Events.TestGenerated.Subscribe(func(event dse.TestGeneratedEvent) error {
		s.metrics.testsKept.Add(1)
		return s.Events.TestAdded.Publish(TestAddedEvent{Session: s, Test: event.Test, Source: SourceDSE})
	})

	s.mutations = randomutils.NewWeightedRandomChooserWithRand[mutation](s.random, nil)
	s.mutations.AddChoices(
		randomutils.NewWeightedRandomChoice[mutation]((*Session).generateTest, 4),
		randomutils.NewWeightedRandomChoice[mutation]((*Session).insertStatements, 3),
		randomutils.NewWeightedRandomChoice[mutation]((*Session).deleteStatement, 2),
		randomutils.NewWeightedRandomChoice[mutation]((*Session).changeCall, 2),
	)
	return nil
}

// teardown releases the executor and the solver.
func (s *Session) teardown() {
	if s.executor != nil {
		if err := s.executor.Close(); err != nil {
			s.logger.Error("Failed to close the executor", err)
		}
	}
	if s.solver != nil {
		if err := s.solver.Close(); err != nil {
			s.logger.Error("Failed to close the solver cache", err)
		}
	}
}

// restoreSuite seeds the suite with the previously written tests which still add coverage.
func (s *Session) restoreSuite() error {
	directory := s.OutputDirectory()
	if directory == "" {
		return nil
	}
	exists, err := utils.DirectoryExists(directory)
	if err != nil || !exists {
		return err
	}
	previous, err := corpus.ReadSuite(directory, s.cluster)
	if err != nil {
		return err
	}
	restored := 0
	for _, tc := range previous.Tests {
		if s.validate(tc) != nil {
			continue
		}
		added, err := s.consider(tc, SourceCorpus)
		if err != nil {
			return err
		}
		if added {
			restored++
		}
	}
	if previous.Size() > 0 {
		s.logger.Info("Restored ", restored, " of ", previous.Size(), " test(s) from ", directory)
	}
	return nil
}

// search runs the main loop until a limit is reached or every goal is covered.
func (s *Session) search() error {
	g := s.config.Generation
	for !utils.CheckContextDone(s.ctx) {
		if g.TestLimit > 0 && s.metrics.TestsExecuted() >= g.TestLimit {
			s.logger.Info("Test limit reached, halting now")
			break
		}

		if tc := s.nextCandidate(); tc != nil {
			if _, err := s.consider(tc, SourceSearch); err != nil {
				return err
			}
		}
		if s.fullyCovered() {
			s.logger.Info(colors.Green, "Every coverage goal is covered", colors.Reset)
			break
		}

		if g.DSE.Enabled && randomutils.Chance(s.random, g.DSE.Probability) {
			s.metrics.dseInvocations.Add(1)
			s.suiteLock.Lock()
			_, err := s.dse.ApplyDSE(s.ctx, s.suite)
			s.suiteLock.Unlock()
			if err != nil && !utils.CheckContextDone(s.ctx) {
				return err
			}
		}
	}
	return nil
}

// nextCandidate derives the next candidate test and checks it is well-formed.
func (s *Session) nextCandidate() *testcase.TestCase {
	derive := mutation((*Session).generateTest)
	if s.suiteSize() > 0 {
		chosen, err := s.mutations.Choose()
		if err == nil {
			derive = *chosen
		}
	}
	tc := derive(s)
	if tc == nil || tc.IsEmpty() {
		s.metrics.testsDiscarded.Add(1)
		return nil
	}
	if err := s.validate(tc); err != nil {
		s.metrics.testsDiscarded.Add(1)
		s.logger.Debug("Discarding malformed test", err)
		return nil
	}
	return tc
}

func (s *Session) validate(tc *testcase.TestCase) error {
	if tc.Size() > s.config.Generation.MaxTestLength {
		return errors.Errorf("test has %d statements, more than the maximum of %d", tc.Size(), s.config.Generation.MaxTestLength)
	}
	return tc.Validate(s.cluster.Universe(), s.factory.MaxMockConsumers())
}

// consider executes tc and adds it to the suite if it covers goals the suite does not. Reports whether it was
// added. Execution errors of an interrupted search are not reported.
func (s *Session) consider(tc *testcase.TestCase, source TestSource) (bool, error) {
	s.suiteLock.Lock()
	gained, err := s.coverage.NewGoals(s.ctx, s.suite, tc)
	if err != nil {
		s.suiteLock.Unlock()
		if utils.CheckContextDone(s.ctx) {
			return false, nil
		}
		return false, err
	}
	s.metrics.testsExecuted.Add(1)
	if gained == 0 {
		s.suiteLock.Unlock()
		return false, nil
	}
	s.suite.Add(tc)
	s.suiteLock.Unlock()

	s.metrics.testsKept.Add(1)
	s.logger.Debug("Kept test covering ", gained, " new goal(s)", logging.StructuredLogInfo{logging.TEST_CASE: tc.Code()})
	return true, s.Events.TestAdded.Publish(TestAddedEvent{Session: s, Test: tc, Source: source})
}

func (s *Session) suiteSize() int {
	s.suiteLock.Lock()
	defer s.suiteLock.Unlock()
	return s.suite.Size()
}

// randomSuiteTest returns a copy of a random test of the suite.
func (s *Session) randomSuiteTest() *testcase.TestCase {
	s.suiteLock.Lock()
	defer s.suiteLock.Unlock()
	tc, ok := randomutils.Choice(s.random, s.suite.Tests)
	if !ok {
		return nil
	}
	return tc.Clone()
}

// fullyCovered reports whether the suite covers every goal.
func (s *Session) fullyCovered() bool {
	s.suiteLock.Lock()
	defer s.suiteLock.Unlock()
	fit, err := s.coverage.Fitness(s.ctx, s.suite)
	return err == nil && fit == 0
}

// progress returns the consumed fraction of the time or test budget, whichever is larger.
func (s *Session) progress() float64 {
	g := s.config.Generation
	progress := 0.0
	if g.Timeout > 0 {
		progress = time.Since(s.startTime).Seconds() / float64(g.Timeout)
	}
	if g.TestLimit > 0 {
		if p := float64(s.metrics.TestsExecuted()) / float64(g.TestLimit); p > progress {
			progress = p
		}
	}
	if progress > 1 {
		return 1
	}
	return progress
}

// generateTest builds a new test of random length from calls on the unit under test.
func (s *Session) generateTest() *testcase.TestCase {
	maxLength := s.config.Generation.MaxTestLength
	length := 1 + s.random.Intn(maxLength)
	tc := testcase.New()
	for attempts := 0; tc.Size() < length && attempts < 2*length; attempts++ {
		s.factory.InsertRandomStatement(tc, tc.Size()-1)
	}
	s.truncate(tc)
	return tc
}

// insertStatements inserts random statements into a copy of a suite test.
func (s *Session) insertStatements() *testcase.TestCase {
	tc := s.randomSuiteTest()
	if tc == nil {
		return nil
	}
	for count := 1 + s.random.Intn(3); count > 0; count-- {
		s.factory.InsertRandomStatement(tc, s.random.Intn(tc.Size()+1)-1)
	}
	s.truncate(tc)
	return tc
}

// deleteStatement removes a random statement from a copy of a suite test.
func (s *Session) deleteStatement() *testcase.TestCase {
	tc := s.randomSuiteTest()
	if tc == nil || tc.IsEmpty() {
		return nil
	}
	if err := s.factory.DeleteStatementGracefully(tc, s.random.Intn(tc.Size())); err != nil {
		return nil
	}
	return tc
}

// changeCall replaces a random statement of a copy of a suite test with a compatible call.
func (s *Session) changeCall() *testcase.TestCase {
	tc := s.randomSuiteTest()
	if tc == nil || tc.IsEmpty() {
		return nil
	}
	if !s.factory.ChangeRandomCall(tc, tc.Statement(s.random.Intn(tc.Size()))) {
		return nil
	}
	return tc
}

// truncate removes trailing statements beyond the maximum test length. Trailing statements are never referenced.
func (s *Session) truncate(tc *testcase.TestCase) {
	for tc.Size() > s.config.Generation.MaxTestLength {
		tc.Remove(tc.Size() - 1)
	}
}

// runMetricsPrintLoop reports the progress of the session until ctx is done, then closes done.
func (s *Session) runMetricsPrintLoop(done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(metricsPrintInterval)
	defer ticker.Stop()

	var lastExecuted uint64
	lastPrintedTime := time.Now()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
		executed := s.metrics.TestsExecuted()
		secondsSinceLastUpdate := time.Since(lastPrintedTime).Seconds()
		s.logger.Info(
			"elapsed: ", time.Since(s.startTime).Round(time.Second).String(),
			", tests: ", executed, " (", uint64(float64(executed-lastExecuted)/secondsSinceLastUpdate), "/sec)",
			", kept: ", s.metrics.TestsKept(),
			", dse: ", s.metrics.DSEInvocations(),
		)
		lastExecuted = executed
		lastPrintedTime = time.Now()
	}
}

// logSummary reports the final coverage along with the generated tests.
func (s *Session) logSummary(coverage fitness.Coverage) {
	suite := s.Suite()
	buffer := logging.NewLogBuffer()
	buffer.Append(colors.Bold, "Generated ", suite.Size(), " test(s) for ", s.target.Name, colors.Reset,
		" covering ", len(coverage.Covered), "/", coverage.Total, " goals (", coverage.Percentage().String(), "%)")
	for i, tc := range suite.Tests {
		buffer.Append("\n", colors.Bold, "Test ", i, colors.Reset, "\n", tc.Code())
	}

	solverStats := s.solver.Stats()
	dseStats := s.dse.Stats()
	executorStats := s.executor.Stats()
	s.logger.Info(buffer)
	s.logger.Info("Solver queries: ", solverStats.Queries, ", cache hits: ", solverStats.Hits,
		", sat/unsat/unknown: ", solverStats.SAT, "/", solverStats.UNSAT, "/", solverStats.NoResult,
		logging.StructuredLogInfo{logging.SUMMARY: map[string]any{
			"dse":       dseStats,
			"execution": executorStats,
			"tests":     suite.Size(),
			"covered":   utils.SliceSelect(coverage.Covered, execution.Goal.String),
		}})
}
