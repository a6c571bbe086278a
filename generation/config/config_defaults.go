package config

import "github.com/rs/zerolog"

// GetDefaultProjectConfig obtains a default configuration for a project.
func GetDefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Generation: GenerationConfig{
			Workers:         4,
			Targets:         []string{},
			Timeout:         60,
			TestLimit:       0,
			MaxTestLength:   40,
			OutputDirectory: "generated",
			Seed:            0,
			Factory: FactoryConfig{
				MaxRecursion:                 10,
				NullProbability:              0.1,
				PrimitiveReuseProbability:    0.5,
				ObjectReuseProbability:       0.9,
				FunctionalMockingProbability: 0.0,
				FunctionalMockingPercent:     0.5,
				MaxMockReuses:                0,
				ReflectionProbability:        0.0,
				ReflectionStartPercent:       0.8,
				InsertionUUTProbability:      0.5,
				MaxArrayLength:               10,
				MaxStringLength:              16,
				MaxIntegerMagnitude:          2048,
				TypeSubstitutions:            map[string]string{},
			},
			Execution: ExecutionConfig{
				TimeoutMillis:               4000,
				ShutdownGracePeriodMillis:   1000,
				StaticInitGracePeriodMillis: 2000,
				ResetStaticState:            true,
				ProcessIsolation:            false,
				Capabilities:                []string{},
				MaxStalledWorkers:           10,
				CPULimitSeconds:             0,
			},
			DSE: DSEConfig{
				Enabled:              true,
				Probability:          0.1,
				RankBranchConditions: true,
				MaxSolutionAttempts:  5,
				KeepAllTests:         false,
				NegateAllConditions:  false,
				BudgetType:           BudgetTime,
				Budget:               5000,
			},
			Solver: SolverConfig{
				TimeoutMillis:       1000,
				MaxIterations:       20000,
				CacheEnabled:        true,
				CacheDirectory:      "",
				CacheFlushThreshold: 25,
			},
		},
		Logging: LoggingConfig{
			Level:        zerolog.InfoLevel,
			LogDirectory: "",
			NoColor:      false,
		},
	}
}
