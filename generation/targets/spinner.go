package targets

import (
	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/types"
)

var spinnerTarget = &Target{
	Name:        "spinner",
	Description: "contains loops that never terminate for some inputs",
	register:    registerSpinner,
}

type spinner struct {
	turns int64
}

func registerSpinner(b *cluster.Builder) {
	s := b.AddType(types.NewObject("Spinner"))

	b.AddConstructor(s, "NewSpinner", nil, func(cluster.Env, any, []any) (any, error) {
		return &spinner{}, nil
	})

	// Spin loops forever on negative input; the loop only stops when the execution is killed
	b.AddMethod(s, "Spin", []*types.Type{types.Int}, types.Int, func(env cluster.Env, receiver any, args []any) (any, error) {
		sp := receiver.(*spinner)
		n := args[0].(int64)
		if env.Branch(0, symbolic.NewIntConstraint(env.Arg(0), symbolic.LT, symbolic.IntConst(0))) {
			for {
				sp.turns++
				env.Covered(1, true)
			}
		}
		for i := int64(0); i < n && i < 1000; i++ {
			sp.turns++
		}
		env.Covered(1, false)
		return sp.turns, nil
	}).Branches = 2

	// Await blocks until the execution is cancelled
	b.AddMethod(s, "Await", nil, nil, func(env cluster.Env, _ any, _ []any) (any, error) {
		<-env.Context().Done()
		return nil, env.Context().Err()
	})

	b.MarkTarget("Spinner")
}
