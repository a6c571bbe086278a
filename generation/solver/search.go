package solver

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/logging"
	"github.com/crytic/evosynth/utils"
	"github.com/pkg/errors"
)

// restartMagnitude bounds the integers drawn when the search restarts from a random point.
const restartMagnitude = 1000

// printable bounds the characters the search puts in strings.
const (
	minPrintable = ' '
	maxPrintable = '~'
)

// errBudget is raised internally once the search may not evaluate the objective anymore.
var errBudget = errors.New("search budget exhausted")

// SearchSolver decides queries by minimizing the summed branch distance of the constraints with the alternating
// variable method. It cannot prove a query unsatisfiable unless its RangeSolver pre-check does: a query it fails to
// satisfy within its budget is left undecided.
type SearchSolver struct {
	timeout       time.Duration
	maxIterations int

	random     *rand.Rand
	randomLock sync.Mutex

	logger *logging.Logger
}

// NewSearchSolver returns a SearchSolver bounded by the configured budgets.
func NewSearchSolver(cfg config.SolverConfig, random *rand.Rand) *SearchSolver {
	return &SearchSolver{
		timeout:       time.Duration(cfg.TimeoutMillis) * time.Millisecond,
		maxIterations: cfg.MaxIterations,
		random:        random,
		logger:        logging.GlobalLogger.NewSubLogger("module", logging.SOLVER_SERVICE),
	}
}

// Solve decides the query or reports ErrTimeout once its budget is exhausted.
func (s *SearchSolver) Solve(ctx context.Context, constraints []symbolic.Constraint) (*Result, error) {
	if err := checkQuery(constraints); err != nil {
		return nil, err
	}
	if result, ok := (RangeSolver{}).Decide(constraints); ok {
		return result, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.randomLock.Lock()
	random := rand.New(rand.NewSource(s.random.Int63()))
	s.randomLock.Unlock()

	search := newSearch(ctx, constraints, s.maxIterations, random)
	model, err := search.run()
	if err != nil {
		if errors.Is(err, errBudget) {
			s.logger.Debug("Search gave up after ", search.evaluations, " evaluations")
			return nil, errors.Wrapf(ErrTimeout, "no solution after %d evaluations", search.evaluations)
		}
		return nil, err
	}
	return NewSAT(model), nil
}

// search holds the state of one alternating variable method run.
type search struct {
	ctx         context.Context
	constraints []symbolic.Constraint
	variables   []*symbolic.Variable

	maxIterations int
	evaluations   int
	random        *rand.Rand

	// alphabet holds the characters tried when growing strings, seeded with those appearing in the constraints.
	alphabet []byte

	current symbolic.Assignment
	fitness float64
}

func newSearch(ctx context.Context, constraints []symbolic.Constraint, maxIterations int, random *rand.Rand) *search {
	byName := variablesOf(constraints)
	variables := make([]*symbolic.Variable, 0, len(byName))
	for _, v := range byName {
		variables = append(variables, v)
	}
	sort.Slice(variables, func(i, j int) bool { return variables[i].Name < variables[j].Name })

	current := make(symbolic.Assignment, len(variables))
	for _, v := range variables {
		current[v.Name] = initialValue(v)
	}
	return &search{
		ctx:           ctx,
		constraints:   constraints,
		variables:     variables,
		maxIterations: maxIterations,
		random:        random,
		alphabet:      alphabetOf(constraints),
		current:       current,
	}
}

// alphabetOf returns the printable characters of the rendered constraints, followed by a few defaults.
func alphabetOf(constraints []symbolic.Constraint) []byte {
	seen := make(map[byte]bool)
	alphabet := make([]byte, 0)
	add := func(c byte) {
		if c >= minPrintable && c <= maxPrintable && !seen[c] {
			seen[c] = true
			alphabet = append(alphabet, c)
		}
	}
	for _, c := range constraints {
		if _, ok := c.(*symbolic.StringConstraint); !ok {
			continue
		}
		rendered := c.String()
		for i := 0; i < len(rendered); i++ {
			add(rendered[i])
		}
	}
	for _, c := range []byte{'a', '0', minPrintable} {
		add(c)
	}
	return alphabet
}

// initialValue returns the concrete value of v in its assignment representation.
func initialValue(v *symbolic.Variable) any {
	switch v.Sort() {
	case symbolic.SortInt:
		return utils.ClampInteger(asInt64(v.Concrete()), v.Min, v.Max)
	case symbolic.SortReal:
		f, _ := v.Concrete().(float64)
		return f
	default:
		s, _ := v.Concrete().(string)
		return s
	}
}

// objective sums the normalized distances of every constraint. Zero means every constraint holds.
func (s *search) objective(assignment symbolic.Assignment) (float64, error) {
	if s.maxIterations > 0 && s.evaluations >= s.maxIterations {
		return 0, errBudget
	}
	if s.ctx.Err() != nil {
		return 0, errBudget
	}
	s.evaluations++

	total := 0.0
	for _, c := range s.constraints {
		d := c.Distance(assignment)
		if math.IsInf(d, 1) || math.IsNaN(d) {
			total += 1
		} else {
			total += d / (d + 1)
		}
	}
	return total, nil
}

// try moves the search to candidate if it improves the objective.
func (s *search) try(name string, value any) (bool, error) {
	previous := s.current[name]
	s.current[name] = value
	fitness, err := s.objective(s.current)
	if err != nil {
		s.current[name] = previous
		return false, err
	}
	if fitness < s.fitness {
		s.fitness = fitness
		return true, nil
	}
	s.current[name] = previous
	return false, nil
}

func (s *search) run() (symbolic.Assignment, error) {
	var err error
	if s.fitness, err = s.objective(s.current); err != nil {
		return nil, err
	}
	if len(s.variables) == 0 && s.fitness != 0 {
		return nil, errors.Wrap(ErrUnsupported, "no free variables to search")
	}
	for {
		if s.fitness == 0 {
			return s.current, nil
		}
		improved := false
		for _, v := range s.variables {
			var moved bool
			switch v.Sort() {
			case symbolic.SortInt:
				moved, err = s.searchInt(v)
			case symbolic.SortReal:
				moved, err = s.searchReal(v)
			default:
				moved, err = s.searchString(v)
			}
			if err != nil {
				return nil, err
			}
			improved = improved || moved
			if s.fitness == 0 {
				return s.current, nil
			}
		}
		if !improved {
			if err = s.restart(); err != nil {
				return nil, err
			}
		}
	}
}

// restart moves every variable to a random point.
func (s *search) restart() error {
	for _, v := range s.variables {
		switch v.Sort() {
		case symbolic.SortInt:
			low := max(v.Min, -restartMagnitude)
			high := min(v.Max, restartMagnitude)
			if low > high {
				low, high = v.Min, v.Max
			}
			span := uint64(high) - uint64(low)
			value := low
			if span < math.MaxInt64 {
				value = low + s.random.Int63n(int64(span)+1)
			}
			s.current[v.Name] = value
		case symbolic.SortReal:
			s.current[v.Name] = (s.random.Float64()*2 - 1) * restartMagnitude
		default:
			s.current[v.Name] = s.randomString(s.random.Intn(8))
		}
	}
	var err error
	s.fitness, err = s.objective(s.current)
	return err
}

func (s *search) randomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = byte(minPrintable + s.random.Intn(maxPrintable-minPrintable+1))
	}
	return string(b)
}

// searchInt performs exploratory moves of one on the variable and accelerates in any improving direction.
func (s *search) searchInt(v *symbolic.Variable) (bool, error) {
	improvedAny := false
	for {
		improved := false
		for _, direction := range []int64{1, -1} {
			ok, err := s.accelerateInt(v, direction)
			if err != nil {
				return improvedAny, err
			}
			if ok {
				improved = true
				break
			}
		}
		if !improved {
			return improvedAny, nil
		}
		improvedAny = true
		if s.fitness == 0 {
			return true, nil
		}
	}
}

// accelerateInt moves the variable in direction with doubling steps while the objective improves.
func (s *search) accelerateInt(v *symbolic.Variable, direction int64) (bool, error) {
	moved := false
	for step := int64(1); step > 0; step *= 2 {
		value := s.current[v.Name].(int64)
		next, ok := offset(value, direction*step, v.Min, v.Max)
		if !ok {
			return moved, nil
		}
		improved, err := s.try(v.Name, next)
		if err != nil || !improved {
			return moved, err
		}
		moved = true
		if s.fitness == 0 {
			return true, nil
		}
	}
	return moved, nil
}

// offset adds delta to value, reporting false if the result overflows or leaves [low, high].
func offset(value, delta, low, high int64) (int64, bool) {
	if delta > 0 && value > math.MaxInt64-delta {
		return 0, false
	}
	if delta < 0 && value < math.MinInt64-delta {
		return 0, false
	}
	next := value + delta
	return next, next >= low && next <= high
}

// searchReal moves the variable with doubling steps, refining the base step until it becomes negligible.
func (s *search) searchReal(v *symbolic.Variable) (bool, error) {
	improvedAny := false
	for base := 1.0; base >= 1e-6; base /= 10 {
		for _, direction := range []float64{1, -1} {
			for step := base; !math.IsInf(step, 1); step *= 2 {
				next := s.current[v.Name].(float64) + direction*step
				improved, err := s.try(v.Name, next)
				if err != nil {
					return improvedAny, err
				}
				if !improved {
					break
				}
				improvedAny = true
				if s.fitness == 0 {
					return true, nil
				}
			}
		}
	}
	return improvedAny, nil
}

// searchString deletes, changes and appends characters while the objective improves.
func (s *search) searchString(v *symbolic.Variable) (bool, error) {
	improvedAny := false
	for {
		improved, err := s.mutateString(v)
		if err != nil {
			return improvedAny, err
		}
		if !improved {
			return improvedAny, nil
		}
		improvedAny = true
		if s.fitness == 0 {
			return true, nil
		}
	}
}

func (s *search) mutateString(v *symbolic.Variable) (bool, error) {
	value := s.current[v.Name].(string)
	for i := len(value) - 1; i >= 0; i-- {
		ok, err := s.try(v.Name, value[:i]+value[i+1:])
		if ok || err != nil {
			return ok, err
		}
	}
	for i := 0; i < len(value); i++ {
		for _, direction := range []int{1, -1} {
			ok, err := s.accelerateChar(v, i, direction)
			if ok || err != nil {
				return ok, err
			}
		}
	}
	for _, c := range s.alphabet {
		ok, err := s.try(v.Name, value+string(c))
		if ok || err != nil {
			return ok, err
		}
	}
	return false, nil
}

// accelerateChar moves the character at index in direction with doubling steps while the objective improves.
func (s *search) accelerateChar(v *symbolic.Variable, index int, direction int) (bool, error) {
	moved := false
	for step := 1; step <= maxPrintable-minPrintable; step *= 2 {
		value := []byte(s.current[v.Name].(string))
		next := int(value[index]) + direction*step
		if next < minPrintable || next > maxPrintable {
			return moved, nil
		}
		value[index] = byte(next)
		improved, err := s.try(v.Name, string(value))
		if err != nil || !improved {
			return moved, err
		}
		moved = true
	}
	return moved, nil
}
