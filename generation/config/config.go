package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ProjectConfig describes the full configuration of a test generation project.
type ProjectConfig struct {
	// Generation describes the configuration used in test generation campaigns.
	Generation GenerationConfig `json:"generation"`

	// Logging describes the configuration used for logging.
	Logging LoggingConfig `json:"logging"`
}

// GenerationConfig describes the configuration options used by a generation.Session.
type GenerationConfig struct {
	// Workers describes how many targets are processed concurrently. Each target gets its own session.
	Workers int `json:"workers"`

	// Targets describes the names of the programs under test to generate test suites for.
	Targets []string `json:"targets"`

	// Timeout describes a time in seconds for which a generation session should run. Providing negative or zero value
	// will result in no timeout.
	Timeout int `json:"timeout"`

	// TestLimit describes a threshold for the number of test cases to execute, after which the session exits. A zero
	// value indicates the test limit should not be enforced.
	TestLimit uint64 `json:"testLimit"`

	// MaxTestLength describes the maximum number of statements a generated test case may hold.
	MaxTestLength int `json:"maxTestLength"`

	// OutputDirectory describes the directory where generated suites are written. If empty, suites are only logged.
	OutputDirectory string `json:"outputDirectory"`

	// Seed describes the root seed for all random decisions. Zero selects a time-based seed.
	Seed int64 `json:"seed"`

	// Factory describes the construction and mutation policy of the test factory.
	Factory FactoryConfig `json:"factory"`

	// Execution describes how test cases are executed.
	Execution ExecutionConfig `json:"execution"`

	// DSE describes the concolic negation loop.
	DSE DSEConfig `json:"dse"`

	// Solver describes the constraint solver and its cache.
	Solver SolverConfig `json:"solver"`
}

// FactoryConfig describes the probabilistic knobs and bounds used by factory.TestFactory.
type FactoryConfig struct {
	// MaxRecursion describes the maximum generation depth when satisfying parameters recursively.
	MaxRecursion int `json:"maxRecursion"`

	// NullProbability describes the probability of satisfying a nullable reference type with null.
	NullProbability float64 `json:"nullProbability"`

	// PrimitiveReuseProbability describes the probability of reusing an in-scope primitive-like value.
	PrimitiveReuseProbability float64 `json:"primitiveReuseProbability"`

	// ObjectReuseProbability describes the probability of reusing an in-scope object.
	ObjectReuseProbability float64 `json:"objectReuseProbability"`

	// FunctionalMockingProbability describes the probability of substituting a functional mock for a real object.
	FunctionalMockingProbability float64 `json:"functionalMockingProbability"`

	// FunctionalMockingPercent describes the fraction of the search budget that must elapse before functional
	// mocks are used in place of available generators.
	FunctionalMockingPercent float64 `json:"functionalMockingPercent"`

	// MaxMockReuses describes how many additional statements may consume a functional mock. Zero keeps mocks single
	// use.
	MaxMockReuses int `json:"maxMockReuses"`

	// ReflectionProbability describes the probability of inserting a reflective call on a private member.
	ReflectionProbability float64 `json:"reflectionProbability"`

	// ReflectionStartPercent describes the fraction of the search budget that must elapse before reflective calls
	// are considered.
	ReflectionStartPercent float64 `json:"reflectionStartPercent"`

	// InsertionUUTProbability describes the probability of inserting a call on the unit under test rather than a
	// call on an existing object.
	InsertionUUTProbability float64 `json:"insertionUUTProbability"`

	// MaxArrayLength describes the maximum length of generated arrays.
	MaxArrayLength int `json:"maxArrayLength"`

	// MaxStringLength describes the maximum length of generated string literals.
	MaxStringLength int `json:"maxStringLength"`

	// MaxIntegerMagnitude describes the maximum absolute value of randomly generated integer literals.
	MaxIntegerMagnitude int64 `json:"maxIntegerMagnitude"`

	// TypeSubstitutions maps unbound type variable names to the concrete type names used to instantiate them.
	TypeSubstitutions map[string]string `json:"typeSubstitutions"`
}

// ExecutionConfig describes the behaviour of the execution sandbox.
type ExecutionConfig struct {
	// TimeoutMillis describes the wall-clock budget of a single test case execution.
	TimeoutMillis int `json:"timeoutMillis"`

	// ShutdownGracePeriodMillis describes how long the executor waits for cooperative cancellation to take effect.
	ShutdownGracePeriodMillis int `json:"shutdownGracePeriodMillis"`

	// StaticInitGracePeriodMillis describes the additional wait granted to a worker stalled in static initialization.
	StaticInitGracePeriodMillis int `json:"staticInitGracePeriodMillis"`

	// ResetStaticState describes whether static state of touched types is reset after every execution.
	ResetStaticState bool `json:"resetStaticState"`

	// ProcessIsolation describes whether test cases are executed in a separate worker process.
	ProcessIsolation bool `json:"processIsolation"`

	// Capabilities describes the capability tokens granted to code under test.
	Capabilities []string `json:"capabilities"`

	// MaxStalledWorkers describes how many abandoned in-process workers are tolerated before a warning is raised on
	// every further stall.
	MaxStalledWorkers int `json:"maxStalledWorkers"`

	// CPULimitSeconds describes the CPU time limit applied to isolated worker processes. Zero disables the limit.
	CPULimitSeconds int `json:"cpuLimitSeconds"`
}

// DSEConfig describes the configuration of the concolic negation loop.
type DSEConfig struct {
	// Enabled describes whether the concolic negation loop runs during generation.
	Enabled bool `json:"enabled"`

	// Probability describes the chance of applying the loop after a generation iteration.
	Probability float64 `json:"probability"`

	// RankBranchConditions describes whether candidates are ordered by estimated cost instead of shuffled.
	RankBranchConditions bool `json:"rankBranchConditions"`

	// MaxSolutionAttempts describes how many solver submissions a single branch may receive per invocation.
	MaxSolutionAttempts int `json:"maxSolutionAttempts"`

	// KeepAllTests describes whether tests obtained from satisfiable models are kept regardless of fitness.
	KeepAllTests bool `json:"keepAllTests"`

	// NegateAllConditions describes whether every reached condition is a candidate, not only one-way branches.
	NegateAllConditions bool `json:"negateAllConditions"`

	// BudgetType describes the unit of Budget: "time" (milliseconds), "iterations" (solver calls) or "tests"
	// (tests added).
	BudgetType string `json:"budgetType"`

	// Budget describes the size of the local search budget of one invocation.
	Budget int64 `json:"budget"`
}

// SolverConfig describes the configuration of the constraint solver.
type SolverConfig struct {
	// TimeoutMillis describes the wall-clock budget of a single solver invocation.
	TimeoutMillis int `json:"timeoutMillis"`

	// MaxIterations describes the maximum number of objective evaluations of the search solver.
	MaxIterations int `json:"maxIterations"`

	// CacheEnabled describes whether solver results are memoized.
	CacheEnabled bool `json:"cacheEnabled"`

	// CacheDirectory describes where solver results are persisted. If empty, the cache is memory-only.
	CacheDirectory string `json:"cacheDirectory"`

	// CacheFlushThreshold describes how many pending writes are buffered before they are flushed to disk.
	CacheFlushThreshold int `json:"cacheFlushThreshold"`
}

// LoggingConfig describes the configuration options used for logging
type LoggingConfig struct {
	// Level describes whether logs of certain severity levels (eg info, warning, etc.) will be emitted or discarded.
	Level zerolog.Level `json:"level"`

	// LogDirectory describes the directory where structured log files are written. If empty, no log files are kept.
	LogDirectory string `json:"logDirectory"`

	// NoColor describes whether console output should omit ANSI colors.
	NoColor bool `json:"noColor"`
}

// Budget types understood by DSEConfig.BudgetType
const (
	BudgetTime       = "time"
	BudgetIterations = "iterations"
	BudgetTests      = "tests"
)

// Capability tokens that may be granted to code under test through ExecutionConfig.Capabilities
const (
	CapabilitySpawnGoroutine = "spawn-goroutine"
	CapabilityFilesystem     = "filesystem"
	CapabilityNetwork        = "network"
	CapabilityEnvironment    = "environment"
	CapabilityExit           = "exit"
)

// KnownCapabilities lists every capability token accepted in configuration.
var KnownCapabilities = []string{
	CapabilitySpawnGoroutine,
	CapabilityFilesystem,
	CapabilityNetwork,
	CapabilityEnvironment,
	CapabilityExit,
}

// ReadProjectConfigFromFile reads a JSON-serialized ProjectConfig from a provided file path. Fields missing from the
// file keep their default values.
// Returns the ProjectConfig if it succeeds, or an error if one occurs.
func ReadProjectConfigFromFile(path string) (*ProjectConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	projectConfig := GetDefaultProjectConfig()
	err = json.Unmarshal(b, projectConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return projectConfig, nil
}

// WriteToFile writes the ProjectConfig to a provided file path in a JSON-serialized format.
// Returns an error if one occurs.
func (p *ProjectConfig) WriteToFile(path string) error {
	b, err := json.MarshalIndent(p, "", "\t")
	if err != nil {
		return errors.WithStack(err)
	}

	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// Validate validates that the ProjectConfig meets certain requirements.
// Returns an error if one occurs.
func (p *ProjectConfig) Validate() error {
	g := p.Generation
	if g.Workers <= 0 {
		return errors.Errorf("worker count must be a positive number")
	}
	if g.MaxTestLength <= 0 {
		return errors.Errorf("maximum test length must be a positive number")
	}

	f := g.Factory
	if f.MaxRecursion <= 0 {
		return errors.Errorf("maximum recursion depth must be a positive number")
	}
	if f.MaxArrayLength < 0 || f.MaxStringLength < 0 || f.MaxIntegerMagnitude < 0 || f.MaxMockReuses < 0 {
		return errors.Errorf("factory length and magnitude bounds cannot be negative")
	}
	probabilities := map[string]float64{
		"nullProbability":              f.NullProbability,
		"primitiveReuseProbability":    f.PrimitiveReuseProbability,
		"objectReuseProbability":       f.ObjectReuseProbability,
		"functionalMockingProbability": f.FunctionalMockingProbability,
		"functionalMockingPercent":     f.FunctionalMockingPercent,
		"reflectionProbability":        f.ReflectionProbability,
		"reflectionStartPercent":       f.ReflectionStartPercent,
		"insertionUUTProbability":      f.InsertionUUTProbability,
		"dse.probability":              g.DSE.Probability,
	}
	for name, value := range probabilities {
		if value < 0 || value > 1 {
			return errors.Errorf("%s must be within [0, 1], got %v", name, value)
		}
	}

	e := g.Execution
	if e.TimeoutMillis <= 0 {
		return errors.Errorf("execution timeout must be a positive number")
	}
	if e.ShutdownGracePeriodMillis < 0 || e.StaticInitGracePeriodMillis < 0 || e.CPULimitSeconds < 0 {
		return errors.Errorf("grace periods and cpu limits cannot be negative")
	}
	for _, capability := range e.Capabilities {
		known := false
		for _, k := range KnownCapabilities {
			if capability == k {
				known = true
				break
			}
		}
		if !known {
			return errors.Errorf("unknown capability %q", capability)
		}
	}

	d := g.DSE
	if d.MaxSolutionAttempts <= 0 {
		return errors.Errorf("maximum solution attempts must be a positive number")
	}
	switch d.BudgetType {
	case BudgetTime, BudgetIterations, BudgetTests:
	default:
		return errors.Errorf("unknown dse budget type %q", d.BudgetType)
	}
	if d.Budget <= 0 {
		return errors.Errorf("dse budget must be a positive number")
	}

	if g.Solver.TimeoutMillis <= 0 || g.Solver.MaxIterations <= 0 {
		return errors.Errorf("solver timeout and iteration limit must be positive numbers")
	}
	if g.Solver.CacheFlushThreshold <= 0 {
		return errors.Errorf("solver cache flush threshold must be a positive number")
	}
	return nil
}

// ExecutionTimeout returns the per-test execution timeout as a duration.
func (e ExecutionConfig) ExecutionTimeout() time.Duration {
	return time.Duration(e.TimeoutMillis) * time.Millisecond
}

// ShutdownGracePeriod returns the cooperative cancellation grace period as a duration.
func (e ExecutionConfig) ShutdownGracePeriod() time.Duration {
	return time.Duration(e.ShutdownGracePeriodMillis) * time.Millisecond
}

// StaticInitGracePeriod returns the additional wait granted to workers stalled in static initialization.
func (e ExecutionConfig) StaticInitGracePeriod() time.Duration {
	return time.Duration(e.StaticInitGracePeriodMillis) * time.Millisecond
}

// SolverTimeout returns the per-invocation solver timeout as a duration.
func (s SolverConfig) SolverTimeout() time.Duration {
	return time.Duration(s.TimeoutMillis) * time.Millisecond
}
