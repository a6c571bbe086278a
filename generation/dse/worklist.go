package dse

import (
	"math/rand"
	"sort"

	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/utils/randomutils"
	"github.com/shopspring/decimal"
)

// candidate pairs a test with one branch condition it reached.
type candidate struct {
	test      *testcase.TestCase
	condition *symbolic.BranchCondition

	// key identifies the condition across tests: its branch and its constraint system.
	key string
	// cost estimates the effort of solving the negated condition.
	cost decimal.Decimal
}

func newCandidate(test *testcase.TestCase, condition *symbolic.BranchCondition) *candidate {
	return &candidate{
		test:      test,
		condition: condition,
		key:       conditionKey(condition),
		cost:      rank(condition),
	}
}

// pairKey identifies the candidate within one invocation.
func (c *candidate) pairKey() string {
	return c.test.ID.String() + "/" + c.key
}

// conditionKey identifies a branch condition by its branch and the full constraint system leading to it.
func conditionKey(condition *symbolic.BranchCondition) string {
	constraints := make([]symbolic.Constraint, 0, len(condition.Reaching)+1)
	constraints = append(constraints, condition.Reaching...)
	constraints = append(constraints, condition.Local)
	return condition.Branch.String() + "|" + symbolic.Key(constraints)
}

// rank returns (1 + number of reaching constraints) times their average size. A condition reached without prior
// constraints is ranked by the size of its local constraint.
func rank(condition *symbolic.BranchCondition) decimal.Decimal {
	length := decimal.NewFromInt(int64(1 + len(condition.Reaching)))
	if len(condition.Reaching) == 0 {
		return length.Mul(decimal.NewFromInt(int64(condition.Local.Size())))
	}
	total := int64(0)
	for _, c := range condition.Reaching {
		total += int64(c.Size())
	}
	average := decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(len(condition.Reaching))))
	return length.Mul(average)
}

// worklist holds the candidates of an invocation in the order they are attempted.
type worklist struct {
	candidates []*candidate
}

// buildWorklist selects the candidates among the paths of the given tests. Unless negateAll is set, only conditions
// whose branch was resolved a single way across every path are selected. Conditions for which exclude reports true
// take no part in the selection; selected candidates for which skip reports true are dropped afterwards. Candidates
// are ordered by cost when ranked, and shuffled otherwise.
func buildWorklist(tests []*testcase.TestCase, paths map[*testcase.TestCase][]*symbolic.BranchCondition, negateAll, ranked bool, random *rand.Rand, exclude, skip func(*candidate) bool) *worklist {
	var selected []*candidate
	if negateAll {
		for _, tc := range tests {
			for _, condition := range paths[tc] {
				if c := newCandidate(tc, condition); !exclude(c) {
					selected = append(selected, c)
				}
			}
		}
	} else {
		// Group by branch, then by the direction the branch took
		type group struct {
			outcomes   map[symbolic.Comparator]bool
			candidates []*candidate
		}
		groups := make(map[symbolic.BranchID]*group)
		order := make([]symbolic.BranchID, 0)
		for _, tc := range tests {
			for _, condition := range paths[tc] {
				c := newCandidate(tc, condition)
				if exclude(c) {
					continue
				}
				g, ok := groups[condition.Branch]
				if !ok {
					g = &group{outcomes: make(map[symbolic.Comparator]bool)}
					groups[condition.Branch] = g
					order = append(order, condition.Branch)
				}
				g.outcomes[condition.Outcome()] = true
				g.candidates = append(g.candidates, c)
			}
		}
		for _, branch := range order {
			if g := groups[branch]; len(g.outcomes) == 1 {
				selected = append(selected, g.candidates...)
			}
		}
	}

	kept := selected[:0]
	for _, c := range selected {
		if !skip(c) {
			kept = append(kept, c)
		}
	}
	selected = kept

	if ranked {
		sort.SliceStable(selected, func(i, j int) bool { return selected[i].cost.LessThan(selected[j].cost) })
	} else {
		randomutils.Shuffle(random, selected)
	}
	return &worklist{candidates: selected}
}

func (w *worklist) empty() bool {
	return len(w.candidates) == 0
}

func (w *worklist) size() int {
	return len(w.candidates)
}

// pop removes and returns the next candidate.
func (w *worklist) pop() *candidate {
	c := w.candidates[0]
	w.candidates = w.candidates[1:]
	return c
}
