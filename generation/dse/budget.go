package dse

import (
	"time"

	"github.com/crytic/evosynth/generation/config"
)

// budget bounds one invocation of the negation loop by time, solver calls or added tests.
type budget struct {
	kind  string
	limit int64
	start time.Time

	solverCalls int64
	testsAdded  int64
}

func newBudget(cfg config.DSEConfig) *budget {
	return &budget{kind: cfg.BudgetType, limit: cfg.Budget, start: time.Now()}
}

// exhausted reports whether the invocation must stop. A non-positive limit never runs out.
func (b *budget) exhausted() bool {
	if b.limit <= 0 {
		return false
	}
	switch b.kind {
	case config.BudgetIterations:
		return b.solverCalls >= b.limit
	case config.BudgetTests:
		return b.testsAdded >= b.limit
	default:
		return time.Since(b.start).Milliseconds() >= b.limit
	}
}
