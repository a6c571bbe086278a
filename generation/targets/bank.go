package targets

import (
	"sync"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/types"
	"github.com/pkg/errors"
)

var bankTarget = &Target{
	Name:        "bank",
	Description: "accounts supporting deposits, withdrawals and transfers with overdraft checks",
	register:    registerBank,
}

var errInvalidAmount = errors.New("amount must be positive")

type account struct {
	lock    sync.Mutex
	owner   string
	balance int64
	frozen  bool
}

func registerBank(b *cluster.Builder) {
	a := b.AddType(types.NewObject("Account"))

	b.AddConstructor(a, "NewAccount", []*types.Type{types.String}, func(env cluster.Env, _ any, args []any) (any, error) {
		owner, _ := args[0].(string)
		if env.Branch(0, ownerMissing(env.Arg(0))) {
			return nil, errors.New("an account needs an owner")
		}
		return &account{owner: owner}, nil
	}).Branches = 1

	b.AddMethod(a, "Deposit", []*types.Type{types.Long}, nil, func(env cluster.Env, receiver any, args []any) (any, error) {
		acc := receiver.(*account)
		amount := args[0].(int64)
		if env.Branch(0, symbolic.NewIntConstraint(env.Arg(0), symbolic.LE, symbolic.IntConst(0))) {
			return nil, errInvalidAmount
		}
		acc.lock.Lock()
		defer acc.lock.Unlock()
		env.Covered(1, acc.frozen)
		if acc.frozen {
			return nil, errors.New("account is frozen")
		}
		acc.balance += amount
		return nil, nil
	}).Branches = 2

	b.AddMethod(a, "Withdraw", []*types.Type{types.Long}, types.Bool, func(env cluster.Env, receiver any, args []any) (any, error) {
		acc := receiver.(*account)
		amount := args[0].(int64)
		if env.Branch(0, symbolic.NewIntConstraint(env.Arg(0), symbolic.LE, symbolic.IntConst(0))) {
			return nil, errInvalidAmount
		}
		acc.lock.Lock()
		defer acc.lock.Unlock()
		if env.Branch(1, symbolic.NewIntConstraint(env.Arg(0), symbolic.GT, symbolic.IntConst(acc.balance))) {
			return false, nil
		}
		acc.balance -= amount
		return true, nil
	}).Branches = 2

	b.AddMethod(a, "Transfer", []*types.Type{a, types.Long}, types.Bool, func(env cluster.Env, receiver any, args []any) (any, error) {
		from := receiver.(*account)
		to, ok := args[0].(*account)
		env.Covered(0, !ok || to == nil)
		if !ok || to == nil {
			return nil, errors.New("no destination account")
		}
		amount := args[1].(int64)
		env.Covered(1, from == to)
		if from == to {
			return false, nil
		}
		from.lock.Lock()
		balance := from.balance
		from.lock.Unlock()
		if env.Branch(2, symbolic.NewIntConstraint(env.Arg(1), symbolic.GT, symbolic.IntConst(balance))) || amount <= 0 {
			return false, nil
		}
		from.lock.Lock()
		from.balance -= amount
		from.lock.Unlock()
		to.lock.Lock()
		to.balance += amount
		to.lock.Unlock()
		return true, nil
	}).Branches = 3

	b.AddMethod(a, "Balance", nil, types.Long, func(_ cluster.Env, receiver any, _ []any) (any, error) {
		acc := receiver.(*account)
		acc.lock.Lock()
		defer acc.lock.Unlock()
		return acc.balance, nil
	})

	b.AddField(a, "Frozen", types.Bool, func(_ cluster.Env, receiver any) (any, error) {
		return receiver.(*account).frozen, nil
	}, func(_ cluster.Env, receiver any, value any) error {
		frozen, _ := value.(bool)
		receiver.(*account).frozen = frozen
		return nil
	})
	b.AddField(a, "Owner", types.String, func(_ cluster.Env, receiver any) (any, error) {
		return receiver.(*account).owner, nil
	}, nil)

	b.MarkTarget("Account")
}

// ownerMissing describes an owner that is null or empty.
func ownerMissing(owner symbolic.Expression) symbolic.Constraint {
	if owner == nil {
		return symbolic.NewIntConstraint(symbolic.IntConst(1), symbolic.EQ, symbolic.IntConst(1))
	}
	return symbolic.NewStringConstraint(owner, symbolic.StringEquals, symbolic.EQ, symbolic.StringConst(""))
}
