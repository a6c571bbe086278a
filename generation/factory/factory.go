package factory

import (
	"math/rand"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/generation/types"
	"github.com/crytic/evosynth/logging"
	"github.com/crytic/evosynth/utils/randomutils"
)

// TestFactory grows, shrinks and repairs test cases against a test cluster. Every exported operation either
// succeeds or leaves the test case exactly as it found it.
type TestFactory struct {
	// cluster describes the members available to generated statements.
	cluster *cluster.TestCluster

	// config describes the probabilities and limits of construction.
	config config.FactoryConfig

	// randomProvider offers a source of random data.
	randomProvider *rand.Rand

	// valueGenerator provides literal values.
	valueGenerator ValueGenerator

	// progress reports the fraction of the search budget consumed, in [0, 1]. Functional mocks and reflective
	// calls are only introduced once the search has progressed far enough.
	progress func() float64

	// currentRecursion holds the identifiers of generators in use by the current top-level operation.
	currentRecursion map[string]bool

	// logger describes the factory's logger.
	logger *logging.Logger
}

// NewTestFactory creates a TestFactory for the provided cluster.
func NewTestFactory(c *cluster.TestCluster, config config.FactoryConfig, randomProvider *rand.Rand) *TestFactory {
	return &TestFactory{
		cluster:          c,
		config:           config,
		randomProvider:   randomProvider,
		valueGenerator:   NewRandomValueGenerator(config, randomProvider),
		progress:         func() float64 { return 0 },
		currentRecursion: make(map[string]bool),
		logger:           logging.GlobalLogger.NewSubLogger("module", logging.FACTORY_SERVICE),
	}
}

// SetProgressFunc sets the function reporting search progress.
func (f *TestFactory) SetProgressFunc(progress func() float64) {
	f.progress = progress
}

// SetValueGenerator replaces the provider of literal values.
func (f *TestFactory) SetValueGenerator(generator ValueGenerator) {
	f.valueGenerator = generator
}

// Cluster returns the test cluster of the factory.
func (f *TestFactory) Cluster() *cluster.TestCluster {
	return f.cluster
}

// MaxMockConsumers returns how many statements may consume one functional mock.
func (f *TestFactory) MaxMockConsumers() int {
	return 1 + f.config.MaxMockReuses
}

func (f *TestFactory) universe() *types.Universe {
	return f.cluster.Universe()
}

func (f *TestFactory) resetRecursion() {
	f.currentRecursion = make(map[string]bool)
}

func (f *TestFactory) instantiate(t *types.Type) *types.Type {
	if t.HasTypeVariables() {
		return f.cluster.Substitution().Instantiate(t)
	}
	return t
}

// atomically runs op, which may only insert statements at or after position. If op fails, every statement it added
// is removed again, in reverse order.
func (f *TestFactory) atomically(tc *testcase.TestCase, position int, op func() error) error {
	length := tc.Size()
	err := op()
	if err != nil {
		rollback(tc, position, length)
	}
	return err
}

func rollback(tc *testcase.TestCase, position int, previousLength int) {
	for i := tc.Size() - previousLength - 1; i >= 0; i-- {
		tc.Remove(position + i)
	}
}

// AttemptGeneration produces a value of type t at position: a literal for primitive-like and environment types, an
// array for array types, and otherwise a null or a constructed object.
func (f *TestFactory) AttemptGeneration(tc *testcase.TestCase, t *types.Type, position int, depth int, allowNull bool) (*testcase.VariableReference, error) {
	var v *testcase.VariableReference
	err := f.atomically(tc, position, func() error {
		var err error
		v, err = f.attemptGeneration(tc, t, position, depth, allowNull, true)
		return err
	})
	return v, err
}

// AttemptObjectGeneration produces a null or a constructed object of type t at position.
func (f *TestFactory) AttemptObjectGeneration(tc *testcase.TestCase, t *types.Type, position int, depth int, allowNull bool) (*testcase.VariableReference, error) {
	var v *testcase.VariableReference
	err := f.atomically(tc, position, func() error {
		var err error
		v, err = f.attemptObjectGeneration(tc, f.instantiate(t), position, depth, allowNull, true)
		return err
	})
	return v, err
}

// CreateObject constructs an object of type t at position with a generator from the cluster, or with a functional
// mock where allowed.
func (f *TestFactory) CreateObject(tc *testcase.TestCase, t *types.Type, position int, depth int, canUseMocks bool) (*testcase.VariableReference, error) {
	var v *testcase.VariableReference
	err := f.atomically(tc, position, func() error {
		var err error
		v, err = f.createObject(tc, f.instantiate(t), position, depth, canUseMocks)
		return err
	})
	return v, err
}

// SatisfyParameters provides a value for each parameter type, inserting statements from position onwards. Values
// are reused from scope or generated. callee and anything depending on it are never used as values.
func (f *TestFactory) SatisfyParameters(tc *testcase.TestCase, callee *testcase.VariableReference, params []*types.Type, position int, depth int) ([]*testcase.VariableReference, error) {
	var values []*testcase.VariableReference
	err := f.atomically(tc, position, func() error {
		var err error
		values, err = f.satisfyParameters(tc, callee, params, nil, position, depth, true, true)
		return err
	})
	return values, err
}

func (f *TestFactory) attemptGeneration(tc *testcase.TestCase, t *types.Type, position int, depth int, allowNull bool, canUseMocks bool) (*testcase.VariableReference, error) {
	if depth > f.config.MaxRecursion {
		return nil, failf(ReasonMaxRecursion, "depth %d generating %s", depth, t)
	}
	t = f.instantiate(t)

	switch {
	case t.IsPrimitive() || t.Kind == types.KindEnum || f.cluster.IsEnvironmentType(t):
		return f.addLiteral(tc, t, position)
	case t.Kind == types.KindString:
		if allowNull && randomutils.Chance(f.randomProvider, f.config.NullProbability) {
			return f.addNull(tc, t, position), nil
		}
		return f.addLiteral(tc, t, position)
	case t.IsArray():
		return f.createArray(tc, t, f.valueGenerator.GenerateArrayLength(), position, depth)
	}
	return f.attemptObjectGeneration(tc, t, position, depth, allowNull, canUseMocks)
}

func (f *TestFactory) attemptObjectGeneration(tc *testcase.TestCase, t *types.Type, position int, depth int, allowNull bool, canUseMocks bool) (*testcase.VariableReference, error) {
	if allowNull && t.IsNullable() && randomutils.Chance(f.randomProvider, f.config.NullProbability) {
		return f.addNull(tc, t, position), nil
	}
	return f.createObject(tc, t, position, depth, canUseMocks)
}

func (f *TestFactory) addLiteral(tc *testcase.TestCase, t *types.Type, position int) (*testcase.VariableReference, error) {
	var value any
	var err error
	if f.cluster.IsEnvironmentType(t) {
		value, err = f.cluster.EnvironmentValue(f.randomProvider, t)
	} else {
		value, err = GenerateLiteral(f.valueGenerator, f.randomProvider, t)
	}
	if err != nil {
		if IsConstructionFailure(err) {
			return nil, err
		}
		return nil, failf(ReasonNoGenerator, "%v", err)
	}
	return tc.AddStatement(testcase.NewPrimitiveStatement(t, value), position), nil
}

func (f *TestFactory) addNull(tc *testcase.TestCase, t *types.Type, position int) *testcase.VariableReference {
	return tc.AddStatement(testcase.NewNullStatement(t), position)
}

// mockable indicates whether a functional mock of t may stand in for a real object.
func (f *TestFactory) mockable(t *types.Type, canUseMocks bool) bool {
	return canUseMocks && f.cluster.CanBeMocked(t)
}

// accepts filters generators and calls that may not be invoked again in tc.
func (f *TestFactory) accepts(tc *testcase.TestCase) func(m *cluster.Member) bool {
	return func(m *cluster.Member) bool {
		return !m.AtMostOnce || tc.CountMemberCalls(m.ID()) == 0
	}
}

func (f *TestFactory) createObject(tc *testcase.TestCase, t *types.Type, position int, depth int, canUseMocks bool) (*testcase.VariableReference, error) {
	if f.mockable(t, canUseMocks) && f.progress() >= f.config.FunctionalMockingPercent &&
		randomutils.Chance(f.randomProvider, f.config.FunctionalMockingProbability) {
		return f.addFunctionalMock(tc, t, position, depth)
	}

	generator, ok := f.cluster.GetRandomGenerator(f.randomProvider, t, f.currentRecursion, f.accepts(tc))
	if !ok {
		// Without a generator an existing value is the next best thing, then a mock
		candidates := make([]*testcase.VariableReference, 0)
		for _, v := range tc.Objects(f.universe(), t, position) {
			if !tc.IsFunctionalMock(v) && !tc.IsNull(v) {
				candidates = append(candidates, v)
			}
		}
		if v, ok := randomutils.Choice(f.randomProvider, candidates); ok {
			return v, nil
		}
		if f.mockable(t, canUseMocks) {
			return f.addFunctionalMock(tc, t, position, depth)
		}
		return nil, failf(ReasonNoGenerator, "no generator for %s", t)
	}

	f.currentRecursion[generator.ID()] = true
	var v *testcase.VariableReference
	var err error
	switch {
	case generator.IsConstructor():
		v, err = f.addConstructor(tc, generator, position, depth)
	case generator.IsField():
		v, err = f.addField(tc, generator, position, depth)
	default:
		v, err = f.addMethod(tc, generator, position, depth)
	}
	if err != nil {
		return nil, err
	}
	if !f.universe().IsAssignable(v.Type, t) {
		return nil, failf(ReasonTypeMismatch, "%s produces %s, not %s", generator.ID(), v.Type, t)
	}
	v.Distance = depth + 1
	return v, nil
}

// request describes the constraints on a value satisfying one parameter.
type request struct {
	// exclude is a value that may not be reused, along with everything it depends on.
	exclude *testcase.VariableReference
	// allowNull permits null values.
	allowNull bool
	// canUseMocks permits functional mocks.
	canUseMocks bool
	// unbound requires a value not yet bound to another object.
	unbound bool
}

// candidatesForReuse returns the values in scope at position that may satisfy a value of type t.
func (f *TestFactory) candidatesForReuse(tc *testcase.TestCase, t *types.Type, position int, req request) []*testcase.VariableReference {
	candidates := make([]*testcase.VariableReference, 0)
	for _, v := range tc.Objects(f.universe(), t, position) {
		if req.exclude != nil {
			if v == req.exclude || v == req.exclude.AdditionalReference() || v.AdditionalReference() == req.exclude {
				continue
			}
		}
		if tc.IsFunctionalMock(v) && (!req.canUseMocks || tc.MockUsageCount(v) >= f.MaxMockConsumers()) {
			continue
		}
		if !req.allowNull && tc.IsNull(v) {
			continue
		}
		if req.unbound && (tc.IsBounded(v) || isAssigned(tc, v)) {
			continue
		}
		// Characters are valid numbers but rarely meaningful ones
		if v.Type.Kind == types.KindChar {
			switch t.Kind {
			case types.KindInt, types.KindLong, types.KindFloat, types.KindDouble:
				continue
			}
		}
		candidates = append(candidates, v)
	}
	return candidates
}

func (f *TestFactory) canGenerate(t *types.Type, canUseMocks bool) bool {
	return t.IsPrimitiveOrSimilar() || t.IsArray() || f.cluster.IsEnvironmentType(t) ||
		f.cluster.HasGenerator(t) || f.mockable(t, canUseMocks)
}

// createOrReuseVariable satisfies a value of type t, reusing a value in scope with the configured probability.
func (f *TestFactory) createOrReuseVariable(tc *testcase.TestCase, t *types.Type, position int, depth int, req request) (*testcase.VariableReference, error) {
	t = f.instantiate(t)
	reuseProbability := f.config.ObjectReuseProbability
	if t.IsPrimitiveOrSimilar() {
		reuseProbability = f.config.PrimitiveReuseProbability
	}

	candidates := f.candidatesForReuse(tc, t, position, req)
	if len(candidates) > 0 && randomutils.Chance(f.randomProvider, reuseProbability) {
		v, _ := randomutils.Choice(f.randomProvider, candidates)
		return v, nil
	}

	if f.canGenerate(t, req.canUseMocks) {
		return f.attemptGeneration(tc, t, position, depth, req.allowNull, req.canUseMocks)
	}
	if v, ok := randomutils.Choice(f.randomProvider, candidates); ok {
		return v, nil
	}
	if req.allowNull && t.IsNullable() {
		return f.addNull(tc, t, position), nil
	}
	return nil, failf(ReasonNoGenerator, "no generator or value in scope for %s", t)
}

func (f *TestFactory) satisfyParameters(tc *testcase.TestCase, callee *testcase.VariableReference, params []*types.Type, bounded []int, position int, depth int, allowNull bool, canUseMocks bool) ([]*testcase.VariableReference, error) {
	values := make([]*testcase.VariableReference, 0, len(params))
	bound := make(map[*testcase.VariableReference]bool)
	isBounded := func(i int) bool {
		for _, b := range bounded {
			if b == i {
				return true
			}
		}
		return false
	}

	for i, p := range params {
		p = f.instantiate(p)
		length := tc.Size()
		v, err := f.createOrReuseVariable(tc, p, position, depth, request{
			exclude:     callee,
			allowNull:   allowNull,
			canUseMocks: canUseMocks,
			unbound:     isBounded(i),
		})
		if err != nil {
			return nil, err
		}
		if !f.universe().IsAssignable(v.Type, p) && !(tc.IsNull(v) && p.IsNullable()) {
			return nil, failf(ReasonTypeMismatch, "%s of type %s for parameter %d of type %s", v.Name(), v.Type, i, p)
		}
		if isBounded(i) {
			if bound[v] || tc.IsBounded(v) || isAssigned(tc, v) {
				return nil, failf(ReasonNoCandidates, "%s is already bound", v.Name())
			}
			bound[v] = true
		}
		position += tc.Size() - length
		values = append(values, v)
	}
	return values, nil
}

// calleeFor provides a non-null, non-mock receiver for an instance member at position.
func (f *TestFactory) calleeFor(tc *testcase.TestCase, m *cluster.Member, position int, depth int) (*testcase.VariableReference, error) {
	callee, err := f.createOrReuseVariable(tc, m.Owner, position, depth, request{allowNull: false, canUseMocks: false})
	if err != nil {
		return nil, err
	}
	if tc.IsNull(callee) {
		return nil, failf(ReasonNoCandidates, "null receiver for %s", m.ID())
	}
	if tc.IsFunctionalMock(callee) {
		return nil, failf(ReasonMockAsCallee, "%s as receiver of %s", callee.Name(), m.ID())
	}
	return callee, nil
}

func (f *TestFactory) checkInvocable(tc *testcase.TestCase, m *cluster.Member) error {
	if !f.accepts(tc)(m) {
		return failf(ReasonInaccessible, "%s may only be invoked once", m.ID())
	}
	return nil
}

// isAssigned indicates whether any statement of tc writes to v. Such values may not become bound.
func isAssigned(tc *testcase.TestCase, v *testcase.VariableReference) bool {
	for _, st := range tc.Statements() {
		if testcase.IsAssignment(st) && testcase.Callee(st) == v {
			return true
		}
	}
	return false
}
