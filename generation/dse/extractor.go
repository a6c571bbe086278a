package dse

import (
	"context"

	"github.com/crytic/evosynth/generation/execution"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/testcase"
)

// ExecutorPathExtractor extracts symbolic paths by executing tests concolically.
type ExecutorPathExtractor struct {
	executor *execution.Executor
}

// NewExecutorPathExtractor returns a SymbolicPathExtractor backed by executor.
func NewExecutorPathExtractor(executor *execution.Executor) *ExecutorPathExtractor {
	return &ExecutorPathExtractor{executor: executor}
}

// SymbolicPath executes tc with the configured budget and returns the branch conditions it reached.
func (e *ExecutorPathExtractor) SymbolicPath(ctx context.Context, tc *testcase.TestCase) ([]*symbolic.BranchCondition, error) {
	result, err := e.executor.ExecuteConcolic(ctx, tc, 0)
	if err != nil {
		return nil, err
	}
	return result.Path, nil
}
