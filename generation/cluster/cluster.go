package cluster

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/crytic/evosynth/generation/types"
	"github.com/crytic/evosynth/utils/randomutils"
	"github.com/pkg/errors"
)

// TestCluster is the precomputed registry of every accessible member of a program under test. It is built once per
// session by a Builder and consulted by the test factory. Apart from lazily cached lookups it is immutable.
type TestCluster struct {
	// universe holds the declared types and their subtype relation.
	universe *types.Universe

	// substitution instantiates unbound type variables.
	substitution types.Substitution

	// members maps member identifiers to members.
	members map[string]*Member

	// generators lists every public member producing a value, in registration order.
	generators []*Member

	// modifiers maps owner type names to their public instance methods and writable fields.
	modifiers map[string][]*Member

	// testCalls lists the public members of the target types.
	testCalls []*Member

	// targets lists the types under test.
	targets []*types.Type

	// private lists private members of the target types. It is computed once, on first use.
	private     []*Member
	privateOnce sync.Once

	// mocks maps type names to functional mock descriptions.
	mocks map[string]*MockSpec

	// staticResets maps type names to functions restoring their static state.
	staticResets map[string][]func()

	// environment maps type names to literal generators for types synthesized directly.
	environment map[string]func(r *rand.Rand) any

	// generatorCache memoizes GetGenerators by type.
	generatorCache     map[string][]*Member
	generatorCacheLock sync.RWMutex
}

// Universe returns the type universe of the cluster.
func (c *TestCluster) Universe() *types.Universe {
	return c.universe
}

// Substitution returns the configured instantiation of type variables.
func (c *TestCluster) Substitution() types.Substitution {
	return c.substitution
}

// Targets returns the types under test.
func (c *TestCluster) Targets() []*types.Type {
	return c.targets
}

// Member returns the member registered under the given identifier.
func (c *TestCluster) Member(id string) (*Member, bool) {
	m, ok := c.members[id]
	return m, ok
}

// Members returns every registered member, sorted by identifier.
func (c *TestCluster) Members() []*Member {
	ids := make([]string, 0, len(c.members))
	for id := range c.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	members := make([]*Member, 0, len(ids))
	for _, id := range ids {
		members = append(members, c.members[id])
	}
	return members
}

// GetGenerators returns every public member able to produce a value assignable to t, instantiated for t.
func (c *TestCluster) GetGenerators(t *types.Type) []*Member {
	key := t.String()
	c.generatorCacheLock.RLock()
	cached, ok := c.generatorCache[key]
	c.generatorCacheLock.RUnlock()
	if ok {
		return cached
	}

	result := make([]*Member, 0)
	for _, m := range c.generators {
		candidate := m
		if m.HasTypeVariables() {
			bindings := c.substitution.Clone()
			for _, a := range m.Returns.Arguments {
				delete(bindings, a.Name)
			}
			if !bindings.Unify(m.Returns, t) {
				bindings = c.substitution
			}
			candidate = m.Instantiate(bindings)
		}
		if c.universe.IsAssignable(candidate.Returns, t) {
			result = append(result, candidate)
		}
	}

	c.generatorCacheLock.Lock()
	c.generatorCache[key] = result
	c.generatorCacheLock.Unlock()
	return result
}

// HasGenerator indicates whether any public member can produce a value of type t.
func (c *TestCluster) HasGenerator(t *types.Type) bool {
	return len(c.GetGenerators(t)) > 0
}

// GetRandomGenerator selects a generator for t that is neither excluded by identifier nor rejected by accept. The
// exclusion set is the recursion guard of the caller. Returns false if no generator qualifies.
func (c *TestCluster) GetRandomGenerator(r *rand.Rand, t *types.Type, exclude map[string]bool, accept func(*Member) bool) (*Member, bool) {
	candidates := make([]*Member, 0)
	for _, m := range c.GetGenerators(t) {
		if exclude[m.ID()] {
			continue
		}
		if accept != nil && !accept(m) {
			continue
		}
		candidates = append(candidates, m)
	}
	return randomutils.Choice(r, candidates)
}

// GetCallsFor returns the public instance methods and writable fields callable on a value of type t, instantiated
// for t.
func (c *TestCluster) GetCallsFor(t *types.Type) []*Member {
	result := make([]*Member, 0)
	owners := make([]string, 0, len(c.modifiers))
	for owner := range c.modifiers {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	for _, owner := range owners {
		if !c.universe.IsSubtype(t.Name, owner) {
			continue
		}
		for _, m := range c.modifiers[owner] {
			result = append(result, m.WithOwner(t, c.substitution))
		}
	}
	return result
}

// GetRandomCallFor selects a call on a value of type t that accept allows. Returns false if there is none.
func (c *TestCluster) GetRandomCallFor(r *rand.Rand, t *types.Type, accept func(*Member) bool) (*Member, bool) {
	candidates := make([]*Member, 0)
	for _, m := range c.GetCallsFor(t) {
		if accept == nil || accept(m) {
			candidates = append(candidates, m)
		}
	}
	return randomutils.Choice(r, candidates)
}

// GetRandomTestCall selects a public member of a type under test.
func (c *TestCluster) GetRandomTestCall(r *rand.Rand) (*Member, bool) {
	m, ok := randomutils.Choice(r, c.testCalls)
	if !ok {
		return nil, false
	}
	return m.Instantiate(c.substitution), true
}

// NumTestCalls returns the number of public members of the types under test.
func (c *TestCluster) NumTestCalls() int {
	return len(c.testCalls)
}

// PrivateMembers returns the private members of the types under test, reachable through reflective statements.
func (c *TestCluster) PrivateMembers() []*Member {
	c.privateOnce.Do(func() {
		c.private = make([]*Member, 0)
		ids := make([]string, 0, len(c.members))
		for id := range c.members {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			m := c.members[id]
			if !m.Private || !c.isTarget(m.Owner) {
				continue
			}
			// Reflective field access only writes, so read-only private fields are of no use
			if m.IsField() && m.Set == nil {
				continue
			}
			c.private = append(c.private, m.Instantiate(c.substitution))
		}
	})
	return c.private
}

// CanBeMocked indicates whether a functional mock of t can be created.
func (c *TestCluster) CanBeMocked(t *types.Type) bool {
	_, ok := c.mocks[t.Name]
	return ok
}

// Mock returns the functional mock description of the named type.
func (c *TestCluster) Mock(typeName string) (*MockSpec, bool) {
	spec, ok := c.mocks[typeName]
	return spec, ok
}

// StaticResets returns the functions restoring the static state of the named type.
func (c *TestCluster) StaticResets(typeName string) []func() {
	return c.staticResets[typeName]
}

// StaticTypes returns the names of every type with resettable static state, sorted.
func (c *TestCluster) StaticTypes() []string {
	names := make([]string, 0, len(c.staticResets))
	for name := range c.staticResets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEnvironmentType indicates whether values of t are synthesized directly as literals.
func (c *TestCluster) IsEnvironmentType(t *types.Type) bool {
	_, ok := c.environment[t.Name]
	return ok
}

// EnvironmentValue synthesizes a literal of an environment type.
func (c *TestCluster) EnvironmentValue(r *rand.Rand, t *types.Type) (any, error) {
	generate, ok := c.environment[t.Name]
	if !ok {
		return nil, errors.Errorf("%s is not an environment type", t)
	}
	return generate(r), nil
}

func (c *TestCluster) isTarget(t *types.Type) bool {
	for _, target := range c.targets {
		if target.Name == t.Name {
			return true
		}
	}
	return false
}
