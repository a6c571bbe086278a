package targets

import (
	"strings"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/types"
	"github.com/pkg/errors"
)

var greeterTarget = &Target{
	Name:        "greeter",
	Description: "greets people whose names come from a mockable name source",
	register:    registerGreeter,
}

// nameSource is the interface the greeter depends on. The program offers no implementation of it.
type nameSource interface {
	Name() string
	Title() string
}

type mockNameSource struct {
	name, title string
}

func (m *mockNameSource) Name() string  { return m.name }
func (m *mockNameSource) Title() string { return m.title }

type greeter struct {
	source nameSource
}

func registerGreeter(b *cluster.Builder) {
	source := b.AddType(types.NewObject("NameSource"))
	g := b.AddType(types.NewObject("Greeter"))

	b.AddMock(&cluster.MockSpec{
		Type: source,
		Methods: []cluster.MockMethod{
			{Name: "Name", Returns: types.String},
			{Name: "Title", Returns: types.String},
		},
		Build: func(answers []any) any {
			m := &mockNameSource{}
			m.name, _ = answers[0].(string)
			m.title, _ = answers[1].(string)
			return m
		},
	})

	b.AddConstructor(g, "NewGreeter", []*types.Type{source}, func(_ cluster.Env, _ any, args []any) (any, error) {
		s, ok := args[0].(nameSource)
		if !ok {
			return nil, errors.New("a name source is required")
		}
		return &greeter{source: s}, nil
	})

	b.AddMethod(g, "Greet", nil, types.String, func(env cluster.Env, receiver any, _ []any) (any, error) {
		s := receiver.(*greeter).source
		name := s.Name()
		env.Covered(0, name == "")
		if name == "" {
			return "Hello, stranger", nil
		}
		env.Covered(1, strings.HasPrefix(s.Title(), "Dr"))
		if strings.HasPrefix(s.Title(), "Dr") {
			return "Good day, Doctor " + name, nil
		}
		return "Hello, " + name, nil
	}).Branches = 2

	b.AddMethod(g, "GreetAs", []*types.Type{types.String}, types.String, func(env cluster.Env, receiver any, args []any) (any, error) {
		title, ok := args[0].(string)
		if !ok {
			return nil, errors.New("no title")
		}
		name := receiver.(*greeter).source.Name()
		if env.Branch(0, symbolic.NewStringConstraint(env.Arg(0), symbolic.StringEquals, symbolic.EQ, symbolic.StringConst("Dr"))) {
			return "Good day, Doctor " + name, nil
		}
		if env.Branch(1, symbolic.NewStringConstraint(env.Arg(0), symbolic.StringContains, symbolic.EQ, symbolic.StringConst("Sir"))) {
			return "Good day, Sir " + name, nil
		}
		return title + " " + name, nil
	}).Branches = 2

	b.MarkTarget("Greeter")
}
