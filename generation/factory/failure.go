package factory

import (
	"fmt"

	"github.com/pkg/errors"
)

// Reason describes why a construction step could not produce a valid value.
type Reason int

const (
	// ReasonNoGenerator indicates no member can produce the requested type and no value of it is in scope.
	ReasonNoGenerator Reason = iota
	// ReasonMaxRecursion indicates the generation depth exceeded the configured maximum.
	ReasonMaxRecursion
	// ReasonSelfAssignment indicates a value would be assigned to itself.
	ReasonSelfAssignment
	// ReasonTypeMismatch indicates a produced value is not assignable to its consumer after generic instantiation.
	ReasonTypeMismatch
	// ReasonInaccessible indicates the member cannot be used here: it is read-only, restricted to a single
	// invocation, or would reassign a bounded variable.
	ReasonInaccessible
	// ReasonNoCandidates indicates no in-scope value or call qualifies.
	ReasonNoCandidates
	// ReasonMockAsCallee indicates a functional mock would be used as a receiver.
	ReasonMockAsCallee
	// ReasonInvalidPosition indicates the insertion position is out of range or precedes a required operand.
	ReasonInvalidPosition
)

var reasonNames = map[Reason]string{
	ReasonNoGenerator:     "no generator",
	ReasonMaxRecursion:    "max recursion",
	ReasonSelfAssignment:  "self assignment",
	ReasonTypeMismatch:    "type mismatch",
	ReasonInaccessible:    "inaccessible",
	ReasonNoCandidates:    "no candidates",
	ReasonMockAsCallee:    "mock as callee",
	ReasonInvalidPosition: "invalid position",
}

// String returns a readable name of the reason.
func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// ConstructionFailure is returned when a test factory operation cannot produce a valid statement. It is an expected
// outcome of random construction: the operation that returns it has already restored the test case.
type ConstructionFailure struct {
	// Reason describes the category of the failure.
	Reason Reason

	// Detail describes the failing step.
	Detail string
}

// Error returns the message of the failure.
func (f *ConstructionFailure) Error() string {
	return fmt.Sprintf("construction failed (%s): %s", f.Reason, f.Detail)
}

// failf returns a ConstructionFailure with a formatted detail.
func failf(reason Reason, format string, args ...any) error {
	return &ConstructionFailure{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// IsConstructionFailure indicates whether err is or wraps a ConstructionFailure.
func IsConstructionFailure(err error) bool {
	var failure *ConstructionFailure
	return errors.As(err, &failure)
}

// FailureReason returns the reason of a ConstructionFailure wrapped by err.
func FailureReason(err error) (Reason, bool) {
	var failure *ConstructionFailure
	if !errors.As(err, &failure) {
		return 0, false
	}
	return failure.Reason, true
}
