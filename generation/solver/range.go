package solver

import (
	"context"
	"math"

	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/utils"
	"github.com/pkg/errors"
)

// interval is the set of values an integer variable may take: an inclusive range minus some excluded values.
type interval struct {
	min, max int64
	excluded map[int64]bool
}

func newInterval(v *symbolic.Variable) *interval {
	return &interval{min: v.Min, max: v.Max, excluded: make(map[int64]bool)}
}

// restrict narrows the interval to the values x satisfying x cmp bound.
func (i *interval) restrict(cmp symbolic.Comparator, bound int64) {
	switch cmp {
	case symbolic.EQ:
		i.min = max(i.min, bound)
		i.max = min(i.max, bound)
	case symbolic.NE:
		i.excluded[bound] = true
	case symbolic.LT:
		if bound == math.MinInt64 {
			i.makeEmpty()
			return
		}
		i.max = min(i.max, bound-1)
	case symbolic.LE:
		i.max = min(i.max, bound)
	case symbolic.GT:
		if bound == math.MaxInt64 {
			i.makeEmpty()
			return
		}
		i.min = max(i.min, bound+1)
	case symbolic.GE:
		i.min = max(i.min, bound)
	}
}

func (i *interval) makeEmpty() {
	i.min, i.max = 1, 0
}

// pick returns the admissible value closest to preferred. Reports false if the interval is empty.
func (i *interval) pick(preferred int64) (int64, bool) {
	if i.min > i.max {
		return 0, false
	}
	start := utils.ClampInteger(preferred, i.min, i.max)
	// Every excluded value can push the search one step further in each direction
	for step := int64(0); step <= int64(len(i.excluded)); step++ {
		if start <= math.MaxInt64-step && start+step <= i.max && !i.excluded[start+step] {
			return start + step, true
		}
		if start >= math.MinInt64+step && start-step >= i.min && !i.excluded[start-step] {
			return start - step, true
		}
	}
	return 0, false
}

// flipped returns the comparator describing the same relation with its operands swapped.
func flipped(cmp symbolic.Comparator) symbolic.Comparator {
	switch cmp {
	case symbolic.LT:
		return symbolic.GT
	case symbolic.LE:
		return symbolic.GE
	case symbolic.GT:
		return symbolic.LT
	case symbolic.GE:
		return symbolic.LE
	default:
		return cmp
	}
}

// bound describes a constraint of the form variable cmp constant.
type bound struct {
	variable *symbolic.Variable
	cmp      symbolic.Comparator
	value    int64
}

// asBound recognizes integer constraints between a variable and a constant.
func asBound(c symbolic.Constraint) (bound, bool) {
	ic, ok := c.(*symbolic.IntConstraint)
	if !ok {
		return bound{}, false
	}
	if v, ok := ic.Left.(*symbolic.Variable); ok && v.Sort() == symbolic.SortInt {
		if k, ok := ic.Right.(*symbolic.Constant); ok && k.Sort() == symbolic.SortInt {
			return bound{variable: v, cmp: ic.Cmp, value: asInt64(k.Concrete())}, true
		}
	}
	if v, ok := ic.Right.(*symbolic.Variable); ok && v.Sort() == symbolic.SortInt {
		if k, ok := ic.Left.(*symbolic.Constant); ok && k.Sort() == symbolic.SortInt {
			return bound{variable: v, cmp: flipped(ic.Cmp), value: asInt64(k.Concrete())}, true
		}
	}
	return bound{}, false
}

// RangeSolver decides queries made of bounds on single integer variables by interval arithmetic. It proves a query
// unsatisfiable as soon as the bounds on one variable conflict, even when other constraints are not bounds.
type RangeSolver struct{}

// Decide attempts to decide the query without search. Reports false if it could not.
func (RangeSolver) Decide(constraints []symbolic.Constraint) (*Result, bool) {
	intervals := make(map[string]*interval)
	variables := make(map[string]*symbolic.Variable)
	simple := true
	for _, c := range constraints {
		b, ok := asBound(c)
		if !ok {
			simple = false
			continue
		}
		in, seen := intervals[b.variable.Name]
		if !seen {
			in = newInterval(b.variable)
			intervals[b.variable.Name] = in
			variables[b.variable.Name] = b.variable
		}
		in.restrict(b.cmp, b.value)
	}

	model := make(symbolic.Assignment, len(intervals))
	for name, in := range intervals {
		value, ok := in.pick(asInt64(variables[name].Concrete()))
		if !ok {
			return NewUNSAT(), true
		}
		model[name] = value
	}
	if !simple {
		return nil, false
	}
	return NewSAT(model), true
}

// Solve decides queries made only of variable bounds, returning ErrUnsupported for any other query.
func (r RangeSolver) Solve(_ context.Context, constraints []symbolic.Constraint) (*Result, error) {
	if err := checkQuery(constraints); err != nil {
		return nil, err
	}
	if result, ok := r.Decide(constraints); ok {
		return result, nil
	}
	return nil, errors.Wrap(ErrUnsupported, "query is not made of variable bounds")
}

func asInt64(value any) int64 {
	switch n := value.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}
