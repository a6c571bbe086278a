package factory

import (
	"sort"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/logging"
	"github.com/crytic/evosynth/utils/randomutils"
)

// InsertRandomCall inserts a call to a member of a type under test at position. With the configured probability, and
// once the search has progressed far enough, the call reflectively targets a private member instead. Returns false,
// with the test case unchanged, if no call could be inserted.
func (f *TestFactory) InsertRandomCall(tc *testcase.TestCase, position int) bool {
	f.resetRecursion()
	length := tc.Size()

	var err error
	if len(f.reflectionCandidates()) > 0 && f.progress() >= f.config.ReflectionStartPercent &&
		randomutils.Chance(f.randomProvider, f.config.ReflectionProbability) {
		err = f.insertRandomReflectionCall(tc, position, 0)
	} else {
		err = f.insertRandomTestCall(tc, position)
	}

	if err != nil {
		rollback(tc, position, length)
		f.logger.Trace("Inserting a random call failed: ", err)
		return false
	}
	return true
}

func (f *TestFactory) insertRandomTestCall(tc *testcase.TestCase, position int) error {
	call, ok := f.cluster.GetRandomTestCall(f.randomProvider)
	if !ok {
		return failf(ReasonNoCandidates, "the cluster has no calls under test")
	}

	switch {
	case call.IsConstructor():
		_, err := f.addConstructor(tc, call, position, 0)
		return err
	case call.IsMethod() && call.Static:
		_, err := f.addMethod(tc, call, position, 0)
		return err
	case call.IsMethod():
		callee, ok := tc.RandomNonNullObject(f.randomProvider, f.universe(), call.Owner, position)
		if !ok {
			length := tc.Size()
			var err error
			callee, err = f.createObject(tc, call.Owner, position, 0, false)
			if err != nil {
				return err
			}
			position += tc.Size() - length
		}
		_, err := f.addMethodFor(tc, callee, call, position)
		return err
	default:
		if call.IsAssignable() && f.randomProvider.Intn(2) == 0 {
			_, err := f.addFieldAssignment(tc, nil, call, position, 0)
			return err
		}
		_, err := f.addField(tc, call, position, 0)
		return err
	}
}

// reflectionCandidates returns the private methods and writable private fields of the types under test.
func (f *TestFactory) reflectionCandidates() []*cluster.Member {
	candidates := make([]*cluster.Member, 0)
	for _, m := range f.cluster.PrivateMembers() {
		if m.IsMethod() || m.IsField() {
			candidates = append(candidates, m)
		}
	}
	return candidates
}

// InsertRandomReflectionCall inserts a reflective call to a private member of a type under test at position.
func (f *TestFactory) InsertRandomReflectionCall(tc *testcase.TestCase, position int, depth int) error {
	return f.atomically(tc, position, func() error {
		return f.insertRandomReflectionCall(tc, position, depth)
	})
}

func (f *TestFactory) insertRandomReflectionCall(tc *testcase.TestCase, position int, depth int) error {
	if depth > f.config.MaxRecursion {
		return failf(ReasonMaxRecursion, "depth %d inserting a reflective call", depth)
	}
	member, ok := randomutils.Choice(f.randomProvider, f.reflectionCandidates())
	if !ok {
		return failf(ReasonNoCandidates, "no private members to call")
	}

	length := tc.Size()
	callee, err := f.calleeFor(tc, member, position, depth+1)
	if err != nil {
		return err
	}
	position += tc.Size() - length
	member = member.WithOwner(callee.Type, f.cluster.Substitution())

	if member.IsField() {
		if tc.IsBounded(callee) {
			return failf(ReasonInaccessible, "%s is bound and may not be reassigned", callee.Name())
		}
		length = tc.Size()
		value, err := f.createOrReuseVariable(tc, member.Returns, position, depth+1, request{
			exclude:     callee,
			allowNull:   true,
			canUseMocks: true,
		})
		if err != nil {
			return err
		}
		position += tc.Size() - length
		if value == callee {
			return failf(ReasonSelfAssignment, "%s.%s = %s", callee.Name(), member.Name, value.Name())
		}
		tc.AddStatement(testcase.NewPrivateFieldStatement(member, callee, value), position)
		return nil
	}

	length = tc.Size()
	params, err := f.satisfyParameters(tc, callee, member.Params, nil, position, depth+1, true, true)
	if err != nil {
		return err
	}
	position += tc.Size() - length
	tc.AddStatement(testcase.NewPrivateMethodStatement(member, callee, params), position)
	return nil
}

// InsertRandomCallOnObject inserts a call on an object defined before position, favouring objects close to the
// calls under test. Falls back to InsertRandomCall if there is no suitable object or the call cannot be built.
func (f *TestFactory) InsertRandomCallOnObject(tc *testcase.TestCase, position int) bool {
	if v := f.selectVariableForCall(tc, position); v != nil {
		if f.InsertRandomCallOnObjectAt(tc, v, position) {
			return true
		}
	}
	if f.cluster.NumTestCalls() > 0 {
		return f.InsertRandomCall(tc, position)
	}
	return false
}

// selectVariableForCall selects an object defined before position that calls can be made on, weighted by inverse
// distance. Returns nil if there is none.
func (f *TestFactory) selectVariableForCall(tc *testcase.TestCase, position int) *testcase.VariableReference {
	chooser := randomutils.NewWeightedRandomChooserWithRand[*testcase.VariableReference](f.randomProvider, nil)
	for i := 0; i < position && i < tc.Size(); i++ {
		v := tc.ReturnValue(i)
		if v.IsVoid() || v.Type.IsPrimitiveOrSimilar() || tc.IsNull(v) || tc.IsFunctionalMock(v) {
			continue
		}
		if _, ok := tc.Statement(i).(*testcase.PrimitiveStatement); ok {
			continue
		}
		chooser.AddChoices(randomutils.NewWeightedRandomChoice(v, 1/float64(v.Distance+1)))
	}
	v, err := chooser.Choose()
	if err != nil {
		return nil
	}
	return *v
}

// InsertRandomCallOnObjectAt inserts a call on v at position. Arrays have every slot reassigned instead.
func (f *TestFactory) InsertRandomCallOnObjectAt(tc *testcase.TestCase, v *testcase.VariableReference, position int) bool {
	f.resetRecursion()
	err := f.atomically(tc, position, func() error {
		if v.Type.IsArray() {
			length := v.ArrayLength()
			if length < 0 {
				return failf(ReasonNoCandidates, "%s has no known length", v.Name())
			}
			for i := 0; i < length; i++ {
				before := tc.Size()
				if err := f.assignArray(tc, v, i, position, 0); err != nil {
					return err
				}
				position += tc.Size() - before
			}
			return nil
		}

		call, ok := f.cluster.GetRandomCallFor(f.randomProvider, v.Type, func(m *cluster.Member) bool {
			return f.accepts(tc)(m) && !(m.IsField() && tc.IsBounded(v))
		})
		if !ok {
			return failf(ReasonNoCandidates, "no calls on %s", v.Type)
		}
		return f.addCallFor(tc, v, call, position)
	})
	if err != nil {
		f.logger.Trace("Inserting a call on ", v.Name(), " failed: ", err)
		return false
	}
	return true
}

// InsertRandomStatement inserts a call under test or a call on an existing object at a random position no later than
// lastPosition+1. Returns the position of the inserted call, or -1 if nothing was inserted.
func (f *TestFactory) InsertRandomStatement(tc *testcase.TestCase, lastPosition int) int {
	length := tc.Size()
	upper := lastPosition + 1
	if upper > length {
		upper = length
	}
	if upper < 0 {
		upper = 0
	}

	var success bool
	var position int
	if tc.IsEmpty() || randomutils.Chance(f.randomProvider, f.config.InsertionUUTProbability) {
		position = f.randomProvider.Intn(upper + 1)
		success = f.InsertRandomCall(tc, position)
	} else {
		position = upper
		success = f.InsertRandomCallOnObject(tc, position)
	}
	if !success {
		return -1
	}
	return position + tc.Size() - length - 1
}

// AppendStatement appends a statement invoking the same member as st at the end of tc, generating fresh operands.
func (f *TestFactory) AppendStatement(tc *testcase.TestCase, st testcase.Statement) error {
	f.resetRecursion()
	position := tc.Size()
	return f.atomically(tc, position, func() error {
		var err error
		switch s := st.(type) {
		case *testcase.ConstructorStatement:
			_, err = f.addConstructor(tc, s.Constructor, position, 0)
		case *testcase.MethodStatement:
			_, err = f.addMethod(tc, s.Method, position, 0)
		case *testcase.FieldStatement:
			_, err = f.addField(tc, s.Field, position, 0)
		case *testcase.FieldAssignmentStatement:
			_, err = f.addFieldAssignment(tc, nil, s.Field, position, 0)
		default:
			err = failf(ReasonInaccessible, "cannot append %T", st)
		}
		return err
	})
}

// DeleteStatement removes the statement at position together with every statement depending on its value.
func (f *TestFactory) DeleteStatement(tc *testcase.TestCase, position int) error {
	if position < 0 || position >= tc.Size() {
		return failf(ReasonInvalidPosition, "no statement at position %d", position)
	}
	positions := append([]int{position}, tc.References(position)...)
	sort.Sort(sort.Reverse(sort.IntSlice(positions)))
	for _, p := range positions {
		tc.Remove(p)
	}
	return nil
}

// DeleteStatementGracefully removes the statement at position, first rewiring statements using its value to an
// equivalent value in scope where one exists. Statements that cannot be rewired are removed as well.
func (f *TestFactory) DeleteStatementGracefully(tc *testcase.TestCase, position int) error {
	if position < 0 || position >= tc.Size() {
		return failf(ReasonInvalidPosition, "no statement at position %d", position)
	}
	v := tc.ReturnValue(position)
	if v.IsArrayIndex() || v.IsVoid() || !tc.HasReferences(v) {
		return f.DeleteStatement(tc, position)
	}

	if replacement, ok := randomutils.Choice(f.randomProvider, f.alternativesFor(tc, v, position)); ok {
		for i := position + 1; i < tc.Size(); i++ {
			st := tc.Statement(i)
			if !st.References(v) || binds(st, v) || selfAssigns(st, v, replacement) {
				continue
			}
			st.Replace(v, replacement)
		}
		f.logger.Trace("Rewired uses of ", v.Name(), " to ", replacement.Name(), logging.StructuredLogInfo{"test": tc.ID.String()})
	}
	return f.DeleteStatement(tc, position)
}

// alternativesFor returns the values defined before position that may take the place of v.
func (f *TestFactory) alternativesFor(tc *testcase.TestCase, v *testcase.VariableReference, position int) []*testcase.VariableReference {
	_, replacingLiteral := v.Statement().(*testcase.PrimitiveStatement)
	alternatives := make([]*testcase.VariableReference, 0)
	for _, alt := range tc.Objects(f.universe(), v.Type, position) {
		if alt == v || tc.IsFunctionalMock(alt) || alt.AdditionalReference() == v || tc.IsBounded(alt) {
			continue
		}
		if _, ok := alt.Statement().(*testcase.PrimitiveStatement); ok && !replacingLiteral {
			continue
		}
		if v.Type.IsArray() && alt.ArrayLength() < v.ArrayLength() {
			continue
		}
		alternatives = append(alternatives, alt)
	}
	return alternatives
}

// binds indicates whether st binds v to the object it produces.
func binds(st testcase.Statement, v *testcase.VariableReference) bool {
	for _, b := range testcase.BoundedInputs(st) {
		if b == v {
			return true
		}
	}
	return false
}

// selfAssigns indicates whether replacing v with replacement in st would assign a value to itself.
func selfAssigns(st testcase.Statement, v, replacement *testcase.VariableReference) bool {
	switch s := st.(type) {
	case *testcase.FieldAssignmentStatement:
		return (s.Source == v && s.Value == replacement) || (s.Value == v && s.Source == replacement)
	case *testcase.PrivateFieldStatement:
		return (s.Callee == v && s.Value == replacement) || (s.Value == v && s.Callee == replacement)
	case *testcase.ArrayIndexAssignmentStatement:
		return (s.Array() == v && s.Value == replacement) || (s.Value == v && s.Array() == replacement)
	}
	return false
}
