package logging

// These constants are used to identify the various services that may do some logging
const (
	// CLI_SERVICE is the constant used to identify the cmd package
	CLI_SERVICE = "cli"
	// GENERATION_SERVICE is the constant used to identify the generation session
	GENERATION_SERVICE = "generation"
	// FACTORY_SERVICE is the constant used to identify the test factory
	FACTORY_SERVICE = "factory"
	// EXECUTION_SERVICE is the constant used to identify the execution sandbox
	EXECUTION_SERVICE = "execution"
	// DSE_SERVICE is the constant used to identify the concolic negation loop
	DSE_SERVICE = "dse"
	// SOLVER_SERVICE is the constant used to identify the solver and its cache
	SOLVER_SERVICE = "solver"
)

// These constants identify specialized console formatting for various logs
const (
	// TEST_CASE is the key under which generated test case code is attached to structured logs
	TEST_CASE = "testCase"

	// SUMMARY is the key under which session summaries are attached to structured logs
	SUMMARY = "summary"
)
