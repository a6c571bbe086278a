// Package solver finds assignments of symbolic inputs which satisfy a set of constraints.
package solver

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

var (
	// ErrTimeout is returned when a solver exhausts its time or iteration budget without deciding a query.
	ErrTimeout = errors.New("solver budget exhausted")

	// ErrEmptyQuery is returned when a solver is given no constraints.
	ErrEmptyQuery = errors.New("empty constraint set")

	// ErrUnsupported is returned when a query contains constraints the solver cannot evaluate.
	ErrUnsupported = errors.New("unsupported constraint")

	// ErrNotSatisfiable is returned when a model is requested from an unsatisfiable result.
	ErrNotSatisfiable = errors.New("constraints are not satisfiable")
)

// Solver decides constraint sets. A nil error means the query was decided: the Result is either satisfiable with a
// model, or unsatisfiable. Any error means nothing was learned about the query.
type Solver interface {
	Solve(ctx context.Context, constraints []symbolic.Constraint) (*Result, error)
}

// Result is the outcome of a decided query.
type Result struct {
	satisfiable bool
	model       symbolic.Assignment
}

// NewSAT returns a satisfiable result with the given model.
func NewSAT(model symbolic.Assignment) *Result {
	return &Result{satisfiable: true, model: model}
}

// NewUNSAT returns an unsatisfiable result.
func NewUNSAT() *Result {
	return &Result{}
}

// IsSAT reports whether the constraints were satisfiable.
func (r *Result) IsSAT() bool {
	return r.satisfiable
}

// IsUNSAT reports whether the constraints were proven unsatisfiable.
func (r *Result) IsUNSAT() bool {
	return !r.satisfiable
}

// Model returns the satisfying assignment. Returns ErrNotSatisfiable for unsatisfiable results.
func (r *Result) Model() (symbolic.Assignment, error) {
	if !r.satisfiable {
		return nil, ErrNotSatisfiable
	}
	return maps.Clone(r.model), nil
}

// String returns a readable representation of the result.
func (r *Result) String() string {
	if !r.satisfiable {
		return "UNSAT"
	}
	names := make([]string, 0, len(r.model))
	for name := range r.model {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+formatValue(r.model[name]))
	}
	return "SAT{" + strings.Join(parts, ", ") + "}"
}

// IsNoResult reports whether err means a query was left undecided, as opposed to a failure of the caller.
func IsNoResult(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrEmptyQuery) || errors.Is(err, ErrUnsupported) ||
		errors.Is(err, context.DeadlineExceeded)
}

// variablesOf returns the free variables of constraints by name. Variables are assumed to agree on their domain.
func variablesOf(constraints []symbolic.Constraint) map[string]*symbolic.Variable {
	variables := make(map[string]*symbolic.Variable)
	for _, c := range constraints {
		for _, v := range c.Variables() {
			variables[v.Name] = v
		}
	}
	return variables
}

// checkQuery rejects queries no solver can work on.
func checkQuery(constraints []symbolic.Constraint) error {
	if len(constraints) == 0 {
		return ErrEmptyQuery
	}
	for _, c := range constraints {
		if c == nil {
			return errors.Wrap(ErrUnsupported, "nil constraint")
		}
	}
	return nil
}

// satisfies reports whether every constraint holds under the assignment.
func satisfies(constraints []symbolic.Constraint, assignment symbolic.Assignment) bool {
	for _, c := range constraints {
		if c.Distance(assignment) != 0 {
			return false
		}
	}
	return true
}

func formatValue(value any) string {
	if s, ok := value.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(value)
}
