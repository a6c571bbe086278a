package targets

import (
	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/types"
)

var classifierTarget = &Target{
	Name:        "classifier",
	Description: "classifies integers by sign and compares pairs of integers",
	register:    registerClassifier,
}

type classifier struct{}

func registerClassifier(b *cluster.Builder) {
	c := b.AddType(types.NewObject("Classifier"))
	b.AddConstructor(c, "NewClassifier", nil, func(cluster.Env, any, []any) (any, error) {
		return &classifier{}, nil
	})

	classify := b.AddMethod(c, "Classify", []*types.Type{types.Int}, types.Int, func(env cluster.Env, _ any, args []any) (any, error) {
		if env.Branch(0, symbolic.NewIntConstraint(env.Arg(0), symbolic.GT, symbolic.IntConst(0))) {
			return int64(1), nil
		}
		return int64(-1), nil
	})
	classify.Branches = 1

	// Compare reaches its inner decision only for distinct arguments, and its product check only for a < b
	compare := b.AddMethod(c, "Compare", []*types.Type{types.Int, types.Int}, types.Int, func(env cluster.Env, _ any, args []any) (any, error) {
		if env.Branch(0, symbolic.NewIntConstraint(env.Arg(0), symbolic.EQ, env.Arg(1))) {
			return int64(0), nil
		}
		if !env.Branch(1, symbolic.NewIntConstraint(env.Arg(0), symbolic.LT, env.Arg(1))) {
			return int64(1), nil
		}
		product := symbolic.NewIntBinary(symbolic.Mul, env.Arg(0), env.Arg(1))
		if env.Branch(2, symbolic.NewIntConstraint(product, symbolic.EQ, symbolic.IntConst(42))) {
			return int64(42), nil
		}
		return int64(-1), nil
	})
	compare.Branches = 3

	b.MarkTarget("Classifier")
}
