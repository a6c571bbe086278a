package cluster

import (
	"math/rand"

	"github.com/crytic/evosynth/generation/types"
	"github.com/pkg/errors"
)

// Builder assembles a TestCluster from explicit registrations of the types and members of a program under test.
type Builder struct {
	universe      *types.Universe
	members       []*Member
	mocks         map[string]*MockSpec
	staticResets  map[string][]func()
	environment   map[string]func(r *rand.Rand) any
	targets       []string
	substitutions map[string]string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		universe:      types.NewUniverse(),
		members:       make([]*Member, 0),
		mocks:         make(map[string]*MockSpec),
		staticResets:  make(map[string][]func()),
		environment:   make(map[string]func(r *rand.Rand) any),
		targets:       make([]string, 0),
		substitutions: make(map[string]string),
	}
}

// Universe returns the universe types are declared in.
func (b *Builder) Universe() *types.Universe {
	return b.universe
}

// AddType declares a type and its direct supertypes.
func (b *Builder) AddType(t *types.Type, supertypes ...string) *types.Type {
	b.universe.Declare(t, supertypes...)
	return t
}

// AddEnvironmentType declares a type whose values are synthesized directly by generate.
func (b *Builder) AddEnvironmentType(t *types.Type, generate func(r *rand.Rand) any) *types.Type {
	b.universe.Declare(t)
	b.environment[t.Name] = generate
	return t
}

// AddMember registers a member. The returned member may be adjusted until Build is called.
func (b *Builder) AddMember(m *Member) *Member {
	b.members = append(b.members, m)
	return m
}

// AddConstructor registers a constructor of owner.
func (b *Builder) AddConstructor(owner *types.Type, name string, params []*types.Type, invoke Invoker) *Member {
	return b.AddMember(&Member{
		Name:    name,
		Kind:    Constructor,
		Owner:   owner,
		Static:  true,
		Params:  params,
		Returns: owner,
		Invoke:  invoke,
	})
}

// AddMethod registers an instance method of owner. Methods without a result return types.Void.
func (b *Builder) AddMethod(owner *types.Type, name string, params []*types.Type, returns *types.Type, invoke Invoker) *Member {
	if returns == nil {
		returns = types.Void
	}
	return b.AddMember(&Member{
		Name:    name,
		Kind:    Method,
		Owner:   owner,
		Params:  params,
		Returns: returns,
		Invoke:  invoke,
	})
}

// AddStaticMethod registers a method that needs no receiver.
func (b *Builder) AddStaticMethod(owner *types.Type, name string, params []*types.Type, returns *types.Type, invoke Invoker) *Member {
	m := b.AddMethod(owner, name, params, returns, invoke)
	m.Static = true
	return m
}

// AddField registers a field of owner. A nil setter makes the field read-only.
func (b *Builder) AddField(owner *types.Type, name string, fieldType *types.Type, get func(env Env, receiver any) (any, error), set func(env Env, receiver any, value any) error) *Member {
	return b.AddMember(&Member{
		Name:    name,
		Kind:    Field,
		Owner:   owner,
		Returns: fieldType,
		Get:     get,
		Set:     set,
	})
}

// AddMock registers a functional mock for an interface type.
func (b *Builder) AddMock(spec *MockSpec) {
	b.mocks[spec.Type.Name] = spec
}

// AddStaticReset registers a function restoring the static state of the named type.
func (b *Builder) AddStaticReset(typeName string, reset func()) {
	b.staticResets[typeName] = append(b.staticResets[typeName], reset)
}

// MarkTarget declares the named type as a type under test.
func (b *Builder) MarkTarget(typeName string) {
	b.targets = append(b.targets, typeName)
}

// WithTypeSubstitutions sets the instantiation of type variables by declared type name.
func (b *Builder) WithTypeSubstitutions(substitutions map[string]string) {
	for k, v := range substitutions {
		b.substitutions[k] = v
	}
}

// Build validates the registrations and returns the TestCluster.
func (b *Builder) Build() (*TestCluster, error) {
	substitution, err := types.NewSubstitution(b.universe, b.substitutions)
	if err != nil {
		return nil, err
	}

	c := &TestCluster{
		universe:       b.universe,
		substitution:   substitution,
		members:        make(map[string]*Member, len(b.members)),
		generators:     make([]*Member, 0),
		modifiers:      make(map[string][]*Member),
		testCalls:      make([]*Member, 0),
		targets:        make([]*types.Type, 0, len(b.targets)),
		mocks:          b.mocks,
		staticResets:   b.staticResets,
		environment:    b.environment,
		generatorCache: make(map[string][]*Member),
	}

	for _, name := range b.targets {
		t, err := b.universe.Resolve(name)
		if err != nil {
			return nil, errors.Wrap(err, "cannot mark target")
		}
		c.targets = append(c.targets, t)
	}

	for _, m := range b.members {
		if _, ok := b.universe.Lookup(m.Owner.Name); !ok {
			return nil, errors.Errorf("member %s is declared on undeclared type %s", m.Name, m.Owner)
		}
		if _, exists := c.members[m.ID()]; exists {
			return nil, errors.Errorf("member %s is registered twice", m.ID())
		}
		switch m.Kind {
		case Constructor, Method:
			if m.Invoke == nil {
				return nil, errors.Errorf("member %s has no invoker", m.ID())
			}
		case Field:
			if m.Get == nil {
				return nil, errors.Errorf("field %s has no getter", m.ID())
			}
		}
		c.members[m.ID()] = m

		if m.Private {
			continue
		}
		if !m.Returns.IsVoid() {
			c.generators = append(c.generators, m)
		}
		if !m.Static && (m.IsMethod() || m.IsAssignable()) {
			c.modifiers[m.Owner.Name] = append(c.modifiers[m.Owner.Name], m)
		}
		if c.isTarget(m.Owner) {
			c.testCalls = append(c.testCalls, m)
		}
	}

	for name, spec := range c.mocks {
		if _, ok := b.universe.Lookup(name); !ok {
			return nil, errors.Errorf("mock declared for undeclared type %s", name)
		}
		if spec.Build == nil {
			return nil, errors.Errorf("mock of %s has no builder", name)
		}
	}
	return c, nil
}
