package targets

import (
	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/types"
	"github.com/pkg/errors"
)

var stackTarget = &Target{
	Name:          "stack",
	Description:   "a generic bounded stack",
	Substitutions: map[string]string{"T": "int"},
	register:      registerStack,
}

type stack struct {
	elements []any
	capacity int64
}

func registerStack(b *cluster.Builder) {
	T := types.NewTypeVariable("T")
	s := b.AddType(types.NewObject("Stack", T))

	b.AddConstructor(s, "NewStack", []*types.Type{types.Int}, func(env cluster.Env, _ any, args []any) (any, error) {
		capacity := args[0].(int64)
		if env.Branch(0, symbolic.NewIntConstraint(env.Arg(0), symbolic.LT, symbolic.IntConst(1))) {
			return nil, errors.Errorf("invalid capacity %d", capacity)
		}
		return &stack{capacity: capacity}, nil
	}).Branches = 1

	b.AddMethod(s, "Push", []*types.Type{T}, types.Bool, func(env cluster.Env, receiver any, args []any) (any, error) {
		st := receiver.(*stack)
		size := int64(len(st.elements))
		if env.Branch(0, symbolic.NewIntConstraint(symbolic.IntConst(size), symbolic.GE, symbolic.IntConst(st.capacity))) {
			return false, nil
		}
		st.elements = append(st.elements, args[0])
		return true, nil
	}).Branches = 1

	b.AddMethod(s, "Pop", nil, T, func(env cluster.Env, receiver any, _ []any) (any, error) {
		st := receiver.(*stack)
		env.Covered(0, len(st.elements) == 0)
		if len(st.elements) == 0 {
			return nil, errors.New("pop from empty stack")
		}
		top := st.elements[len(st.elements)-1]
		st.elements = st.elements[:len(st.elements)-1]
		return top, nil
	}).Branches = 1

	b.AddMethod(s, "Peek", nil, T, func(env cluster.Env, receiver any, _ []any) (any, error) {
		st := receiver.(*stack)
		if len(st.elements) == 0 {
			return nil, errors.New("peek at empty stack")
		}
		return st.elements[len(st.elements)-1], nil
	})

	b.AddMethod(s, "Size", nil, types.Int, func(_ cluster.Env, receiver any, _ []any) (any, error) {
		return int64(len(receiver.(*stack).elements)), nil
	})

	b.MarkTarget("Stack")
}
