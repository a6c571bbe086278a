package generation

import (
	"github.com/crytic/evosynth/events"
	"github.com/crytic/evosynth/generation/fitness"
	"github.com/crytic/evosynth/generation/testcase"
)

// SessionEvents defines event emitters for a Session.
type SessionEvents struct {
	// SessionStarting emits events once the Session has built its components and is about to enter the search loop.
	SessionStarting events.EventEmitter[SessionStartingEvent]

	// TestAdded emits events when a test case is added to the suite of the Session.
	TestAdded events.EventEmitter[TestAddedEvent]

	// SessionFinished emits events when the Session has left the search loop and written its suite.
	SessionFinished events.EventEmitter[SessionFinishedEvent]
}

// TestSource describes how a test case added to a suite was obtained.
type TestSource string

const (
	// SourceCorpus marks tests restored from a previously written suite.
	SourceCorpus TestSource = "corpus"
	// SourceSearch marks tests produced by the random search.
	SourceSearch TestSource = "search"
	// SourceDSE marks tests produced by negating a branch condition.
	SourceDSE TestSource = "dse"
)

// SessionStartingEvent describes a Session about to start its search loop.
type SessionStartingEvent struct {
	// Session represents the instance of the Session for which the event occurred.
	Session *Session
}

// TestAddedEvent describes a test case added to the suite of a Session.
type TestAddedEvent struct {
	// Session represents the instance of the Session for which the event occurred.
	Session *Session

	// Test is the added test case.
	Test *testcase.TestCase

	// Source describes how the test case was obtained.
	Source TestSource
}

// SessionFinishedEvent describes a Session which left its search loop.
type SessionFinishedEvent struct {
	// Session represents the instance of the Session for which the event occurred.
	Session *Session

	// Coverage describes the coverage of the final suite.
	Coverage fitness.Coverage

	// Err describes the error the session stopped with, if any.
	Err error
}
