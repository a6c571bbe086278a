package execution

import (
	"fmt"
	"sort"

	"github.com/crytic/evosynth/generation/symbolic"
)

// ExceptionKind describes the origin of an Exception.
type ExceptionKind int

const (
	// ExceptionCodeUnderTest is an error returned by the code under test.
	ExceptionCodeUnderTest ExceptionKind = iota
	// ExceptionPanic is a panic raised by the code under test.
	ExceptionPanic
	// ExceptionTimeout is raised by the executor when a test exceeds its time budget.
	ExceptionTimeout
	// ExceptionSecurityViolation is raised when code under test uses a capability it was not granted.
	ExceptionSecurityViolation
)

// String returns a readable name of the exception kind.
func (k ExceptionKind) String() string {
	switch k {
	case ExceptionCodeUnderTest:
		return "error"
	case ExceptionPanic:
		return "panic"
	case ExceptionTimeout:
		return "timeout"
	case ExceptionSecurityViolation:
		return "security violation"
	default:
		return fmt.Sprintf("ExceptionKind(%d)", int(k))
	}
}

// Exception describes a failure observed at one statement of a test case.
type Exception struct {
	// Kind describes the origin of the failure.
	Kind ExceptionKind

	// Position describes the statement which failed. Timeouts are attached one past the last statement.
	Position int

	// Message describes the failure.
	Message string
}

// Error implements the error interface.
func (e *Exception) Error() string {
	return fmt.Sprintf("%s at statement %d: %s", e.Kind, e.Position, e.Message)
}

// Goal is one outcome of a decision point of the program under test.
type Goal struct {
	// Branch identifies the decision point.
	Branch symbolic.BranchID

	// Outcome describes which way the decision went.
	Outcome bool
}

// String returns a readable representation of the goal.
func (g Goal) String() string {
	return fmt.Sprintf("%s:%t", g.Branch, g.Outcome)
}

// Result describes the outcome of executing a test case.
type Result struct {
	// Exceptions maps statement positions to the failure observed there.
	Exceptions map[int]*Exception

	// Executed describes how many statements were run, including a statement which failed.
	Executed int

	// TimedOut indicates the execution exceeded its time budget.
	TimedOut bool

	// Coverage holds every decision outcome observed during the execution.
	Coverage map[Goal]bool

	// Path holds the branch conditions of a concolic execution, in execution order. It is empty otherwise.
	Path []*symbolic.BranchCondition

	// Touched lists the names of the types whose members or static state were used, sorted.
	Touched []string

	// Violations counts the capability requests denied to the code under test, including those it recovered from.
	Violations int
}

// newResult returns an empty Result.
func newResult() *Result {
	return &Result{
		Exceptions: make(map[int]*Exception),
		Coverage:   make(map[Goal]bool),
		Path:       make([]*symbolic.BranchCondition, 0),
		Touched:    make([]string, 0),
	}
}

// HasException indicates whether any statement failed.
func (r *Result) HasException() bool {
	return len(r.Exceptions) > 0
}

// ExceptionAt returns the failure observed at position, if any.
func (r *Result) ExceptionAt(position int) (*Exception, bool) {
	e, ok := r.Exceptions[position]
	return e, ok
}

// FirstException returns the failure with the lowest position.
func (r *Result) FirstException() (*Exception, bool) {
	var first *Exception
	for _, e := range r.Exceptions {
		if first == nil || e.Position < first.Position {
			first = e
		}
	}
	return first, first != nil
}

// CountKind returns the number of failures of the given kind.
func (r *Result) CountKind(kind ExceptionKind) int {
	count := 0
	for _, e := range r.Exceptions {
		if e.Kind == kind {
			count++
		}
	}
	return count
}

// Goals returns the covered goals, sorted by branch and outcome.
func (r *Result) Goals() []Goal {
	goals := make([]Goal, 0, len(r.Coverage))
	for g := range r.Coverage {
		goals = append(goals, g)
	}
	sort.Slice(goals, func(i, j int) bool {
		a, b := goals[i], goals[j]
		if a.Branch.Method != b.Branch.Method {
			return a.Branch.Method < b.Branch.Method
		}
		if a.Branch.Index != b.Branch.Index {
			return a.Branch.Index < b.Branch.Index
		}
		return !a.Outcome && b.Outcome
	})
	return goals
}

// addException records a failure unless an earlier one was recorded at the same position.
func (r *Result) addException(kind ExceptionKind, position int, message string) {
	if _, exists := r.Exceptions[position]; exists {
		return
	}
	r.Exceptions[position] = &Exception{Kind: kind, Position: position, Message: message}
}
