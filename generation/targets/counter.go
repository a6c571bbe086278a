package targets

import (
	"sync/atomic"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/types"
)

var counterTarget = &Target{
	Name:        "counter",
	Description: "counts instances in static state that is initialized once and must be reset between tests",
	register:    registerCounter,
}

// counterInitial is the value the static initializer of Counter assigns.
const counterInitial = 10

type counter struct {
	id int64
}

func registerCounter(b *cluster.Builder) {
	// instances is the static state of the Counter type
	var instances atomic.Int64

	c := b.AddType(types.NewObject("Counter"))

	b.AddConstructor(c, "NewCounter", nil, func(env cluster.Env, _ any, _ []any) (any, error) {
		env.StaticInit("Counter", func() { instances.Store(counterInitial) })
		return &counter{id: instances.Add(1)}, nil
	})

	b.AddStaticMethod(c, "Instances", nil, types.Long, func(env cluster.Env, _ any, _ []any) (any, error) {
		env.StaticInit("Counter", func() { instances.Store(counterInitial) })
		return instances.Load(), nil
	})

	b.AddMethod(c, "IsLatest", nil, types.Bool, func(env cluster.Env, receiver any, _ []any) (any, error) {
		latest := env.Branch(0, symbolic.NewIntConstraint(symbolic.IntConst(receiver.(*counter).id), symbolic.EQ, symbolic.IntConst(instances.Load())))
		return latest, nil
	}).Branches = 1

	// Crowded holds only once more than threshold instances exist beyond the initial count
	b.AddMethod(c, "Crowded", []*types.Type{types.Int}, types.Bool, func(env cluster.Env, _ any, _ []any) (any, error) {
		created := symbolic.IntConst(instances.Load() - counterInitial)
		return env.Branch(0, symbolic.NewIntConstraint(created, symbolic.GT, env.Arg(0))), nil
	}).Branches = 1

	b.AddStaticReset("Counter", func() { instances.Store(0) })
	b.MarkTarget("Counter")
}
