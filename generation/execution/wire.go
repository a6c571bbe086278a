package execution

import (
	"github.com/fxamacker/cbor"
	"github.com/pkg/errors"
)

// workerRequest is the message sent to a worker process on its standard input.
type workerRequest struct {
	// TimeoutMillis is the budget of the execution inside the worker.
	TimeoutMillis int64 `cbor:"t"`

	// Test is the test case, encoded with testcase.Encode.
	Test []byte `cbor:"c"`
}

// resultDescriptor is the wire form of a Result. Path conditions are not transmitted since concolic executions
// always run in-process.
type resultDescriptor struct {
	Exceptions []Exception `cbor:"x"`
	Executed   int         `cbor:"e"`
	TimedOut   bool        `cbor:"o"`
	Coverage   []Goal      `cbor:"g"`
	Touched    []string    `cbor:"u"`
	Violations int         `cbor:"v"`
}

// EncodeResult serializes a Result for transmission from a worker process.
func EncodeResult(result *Result) ([]byte, error) {
	d := resultDescriptor{
		Exceptions: make([]Exception, 0, len(result.Exceptions)),
		Executed:   result.Executed,
		TimedOut:   result.TimedOut,
		Coverage:   result.Goals(),
		Touched:    result.Touched,
		Violations: result.Violations,
	}
	for _, e := range result.Exceptions {
		d.Exceptions = append(d.Exceptions, *e)
	}
	b, err := cbor.Marshal(d, cbor.EncOptions{})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

// DecodeResult deserializes a Result produced by EncodeResult.
func DecodeResult(data []byte) (*Result, error) {
	var d resultDescriptor
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrap(err, "could not decode execution result")
	}
	result := newResult()
	for i := range d.Exceptions {
		e := d.Exceptions[i]
		result.Exceptions[e.Position] = &e
	}
	for _, goal := range d.Coverage {
		result.Coverage[goal] = true
	}
	if d.Touched != nil {
		result.Touched = d.Touched
	}
	result.Executed = d.Executed
	result.TimedOut = d.TimedOut
	result.Violations = d.Violations
	return result, nil
}
