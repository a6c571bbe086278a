package generation

import "sync/atomic"

// SessionMetrics holds the counters of a Session. It is safe for concurrent use.
type SessionMetrics struct {
	// testsExecuted counts candidate test cases executed for coverage.
	testsExecuted atomic.Uint64

	// testsDiscarded counts candidate test cases rejected before execution.
	testsDiscarded atomic.Uint64

	// testsKept counts test cases added to the suite, including those produced by DSE.
	testsKept atomic.Uint64

	// dseInvocations counts invocations of the concolic negation loop.
	dseInvocations atomic.Uint64
}

// TestsExecuted returns the number of candidate test cases executed.
func (m *SessionMetrics) TestsExecuted() uint64 {
	return m.testsExecuted.Load()
}

// TestsDiscarded returns the number of candidate test cases rejected before execution.
func (m *SessionMetrics) TestsDiscarded() uint64 {
	return m.testsDiscarded.Load()
}

// TestsKept returns the number of test cases added to the suite.
func (m *SessionMetrics) TestsKept() uint64 {
	return m.testsKept.Load()
}

// DSEInvocations returns the number of invocations of the concolic negation loop.
func (m *SessionMetrics) DSEInvocations() uint64 {
	return m.dseInvocations.Load()
}
