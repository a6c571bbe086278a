package factory

import (
	"math"
	"math/rand"

	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/types"
	"github.com/crytic/evosynth/utils"
	"github.com/crytic/evosynth/utils/randomutils"
	"github.com/pkg/errors"
)

// ValueGenerator provides the values of literal statements.
type ValueGenerator interface {
	// GenerateBool generates a boolean literal.
	GenerateBool() bool

	// GenerateInteger generates a literal of an integral type, within the bounds of the type.
	GenerateInteger(t *types.Type) int64

	// GenerateFloat generates a literal of a floating point type.
	GenerateFloat(t *types.Type) float64

	// GenerateString generates a string literal.
	GenerateString() string

	// GenerateArrayLength generates the length of a new array.
	GenerateArrayLength() int
}

// GenerateLiteral produces a value of a primitive, string or enum type with the provided generator, in the
// representation held by literal statements.
func GenerateLiteral(generator ValueGenerator, r *rand.Rand, t *types.Type) (any, error) {
	switch {
	case t.Kind == types.KindBool:
		return generator.GenerateBool(), nil
	case t.IsIntegral():
		return generator.GenerateInteger(t), nil
	case t.IsFloating():
		return generator.GenerateFloat(t), nil
	case t.Kind == types.KindString:
		return generator.GenerateString(), nil
	case t.Kind == types.KindEnum:
		value, ok := randomutils.Choice(r, t.EnumValues)
		if !ok {
			return nil, failf(ReasonNoGenerator, "enum %s declares no constants", t)
		}
		return value, nil
	}
	return nil, errors.Errorf("cannot generate a literal of type %s", t)
}

// RandomValueGenerator generates literals uniformly within configured magnitudes, with a bias towards the boundary
// values of each type.
type RandomValueGenerator struct {
	// config describes the limits of generated values.
	config config.FactoryConfig

	// randomProvider offers a source of random data.
	randomProvider *rand.Rand
}

// NewRandomValueGenerator creates a RandomValueGenerator drawing from the provided random provider.
func NewRandomValueGenerator(config config.FactoryConfig, randomProvider *rand.Rand) *RandomValueGenerator {
	return &RandomValueGenerator{
		config:         config,
		randomProvider: randomProvider,
	}
}

// stringAlphabet holds the characters used for generated strings and chars.
const stringAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 _-"

// GenerateBool generates a boolean literal.
func (g *RandomValueGenerator) GenerateBool() bool {
	return g.randomProvider.Intn(2) == 0
}

// GenerateInteger generates a literal of an integral type.
func (g *RandomValueGenerator) GenerateInteger(t *types.Type) int64 {
	min, max := t.Bounds()
	if t.Kind == types.KindChar {
		return int64(stringAlphabet[g.randomProvider.Intn(len(stringAlphabet))])
	}

	// One in eight values is a boundary of the type
	if g.randomProvider.Intn(8) == 0 {
		boundaries := []int64{0, 1, -1, min, max}
		return utils.ClampInteger(boundaries[g.randomProvider.Intn(len(boundaries))], min, max)
	}

	magnitude := g.config.MaxIntegerMagnitude
	if magnitude <= 0 || magnitude > math.MaxInt64/2 {
		magnitude = math.MaxInt64 / 2
	}
	value := g.randomProvider.Int63n(2*magnitude+1) - magnitude
	return utils.ClampInteger(value, min, max)
}

// GenerateFloat generates a literal of a floating point type.
func (g *RandomValueGenerator) GenerateFloat(t *types.Type) float64 {
	magnitude := float64(g.config.MaxIntegerMagnitude)
	if magnitude <= 0 {
		magnitude = 1
	}
	value := (g.randomProvider.Float64()*2 - 1) * magnitude
	if t.Kind == types.KindFloat {
		return float64(float32(value))
	}
	return value
}

// GenerateString generates a string literal.
func (g *RandomValueGenerator) GenerateString() string {
	length := 0
	if g.config.MaxStringLength > 0 {
		length = g.randomProvider.Intn(g.config.MaxStringLength + 1)
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = stringAlphabet[g.randomProvider.Intn(len(stringAlphabet))]
	}
	return string(b)
}

// GenerateArrayLength generates the length of a new array.
func (g *RandomValueGenerator) GenerateArrayLength() int {
	if g.config.MaxArrayLength <= 0 {
		return 0
	}
	return g.randomProvider.Intn(g.config.MaxArrayLength + 1)
}
