package targets

import (
	"math/rand"
	"os"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/types"
	"github.com/pkg/errors"
)

var sandboxedTarget = &Target{
	Name:        "sandboxed",
	Description: "performs operations that require capabilities granted to the code under test",
	register:    registerSandboxed,
}

// candidatePaths are the values synthesized for Path literals.
var candidatePaths = []string{os.TempDir(), "/", "/nonexistent", "."}

type resource struct {
	path string
}

func registerSandboxed(b *cluster.Builder) {
	r := b.AddType(types.NewObject("Resource"))
	path := b.AddEnvironmentType(types.NewObject("Path"), func(random *rand.Rand) any {
		return candidatePaths[random.Intn(len(candidatePaths))]
	})

	b.AddConstructor(r, "NewResource", []*types.Type{path}, func(_ cluster.Env, _ any, args []any) (any, error) {
		path, _ := args[0].(string)
		return &resource{path: path}, nil
	})

	b.AddMethod(r, "Exists", nil, types.Bool, func(env cluster.Env, receiver any, _ []any) (any, error) {
		if err := env.Require(config.CapabilityFilesystem); err != nil {
			return nil, err
		}
		_, err := os.Stat(receiver.(*resource).path)
		env.Covered(0, err == nil)
		return err == nil, nil
	}).Branches = 1

	b.AddMethod(r, "Setting", []*types.Type{types.String}, types.String, func(env cluster.Env, _ any, args []any) (any, error) {
		key, ok := args[0].(string)
		if !ok {
			return nil, errors.New("no key")
		}
		if env.Branch(0, symbolic.NewStringConstraint(env.Arg(0), symbolic.StringStartsWith, symbolic.EQ, symbolic.StringConst("EVOSYNTH_"))) {
			if err := env.Require(config.CapabilityEnvironment); err != nil {
				return nil, err
			}
			return os.Getenv(key), nil
		}
		return "", nil
	}).Branches = 1

	b.AddMethod(r, "Background", nil, types.Bool, func(env cluster.Env, _ any, _ []any) (any, error) {
		done := make(chan struct{})
		if err := env.Go(func() { close(done) }); err != nil {
			return nil, err
		}
		select {
		case <-done:
			return true, nil
		case <-env.Context().Done():
			return false, nil
		}
	})

	b.MarkTarget("Resource")
}
