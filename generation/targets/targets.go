// Package targets provides the built-in programs that test suites can be generated for. Each target registers the
// types and members of a small program into a test cluster.
package targets

import (
	"sort"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/pkg/errors"
)

// Target describes a built-in program under test.
type Target struct {
	// Name describes the name the target is looked up by.
	Name string

	// Description summarizes what the program does.
	Description string

	// Substitutions describes the default instantiation of the type variables of the program.
	Substitutions map[string]string

	// register declares the program into a builder. Each call creates fresh program state.
	register func(b *cluster.Builder)
}

// Cluster builds a test cluster of the target. Substitutions override the default instantiation of type variables.
func (t *Target) Cluster(substitutions map[string]string) (*cluster.TestCluster, error) {
	b := cluster.NewBuilder()
	t.register(b)
	b.WithTypeSubstitutions(t.Substitutions)
	b.WithTypeSubstitutions(substitutions)
	c, err := b.Build()
	if err != nil {
		return nil, errors.Wrapf(err, "could not build the cluster of target %s", t.Name)
	}
	return c, nil
}

var registry = map[string]*Target{}

func register(t *Target) {
	registry[t.Name] = t
}

func init() {
	register(classifierTarget)
	register(bankTarget)
	register(stackTarget)
	register(greeterTarget)
	register(spinnerTarget)
	register(sandboxedTarget)
	register(counterTarget)
}

// Lookup returns the target registered under name.
func Lookup(name string) (*Target, bool) {
	t, ok := registry[name]
	return t, ok
}

// Names returns the names of all targets, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
