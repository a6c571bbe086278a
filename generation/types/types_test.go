package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUniverse() *Universe {
	u := NewUniverse()
	u.Declare(NewObject("Animal"))
	u.Declare(NewObject("Dog"), "Animal")
	u.Declare(NewObject("Puppy"), "Dog")
	u.Declare(NewObject("Stack", NewTypeVariable("T")))
	return u
}

// TestPrimitiveWidening verifies numeric widening rules between primitive kinds.
func TestPrimitiveWidening(t *testing.T) {
	u := testUniverse()
	assert.True(t, u.IsAssignable(Byte, Int))
	assert.True(t, u.IsAssignable(Int, Long))
	assert.True(t, u.IsAssignable(Char, Int))
	assert.True(t, u.IsAssignable(Long, Double))
	assert.False(t, u.IsAssignable(Long, Int))
	assert.False(t, u.IsAssignable(Bool, Int))
	assert.False(t, u.IsAssignable(Byte, Char))
	assert.False(t, u.IsAssignable(Int, String))
}

// TestSubtypeAssignability verifies that the transitive subtype closure is honoured and that Object is the root.
func TestSubtypeAssignability(t *testing.T) {
	u := testUniverse()
	puppy, _ := u.Lookup("Puppy")
	animal, _ := u.Lookup("Animal")

	assert.True(t, u.IsAssignable(puppy, animal))
	assert.False(t, u.IsAssignable(animal, puppy))
	assert.True(t, u.IsAssignable(puppy, Object))
	assert.True(t, u.IsAssignable(String, Object))
	assert.False(t, u.IsAssignable(Int, Object))
	assert.True(t, u.IsAssignable(ArrayOf(puppy), ArrayOf(animal)))
	assert.False(t, u.IsAssignable(ArrayOf(Int), ArrayOf(Long)))
}

// TestGenericAssignability verifies that type arguments must match unless the target argument is a type variable.
func TestGenericAssignability(t *testing.T) {
	u := testUniverse()
	intStack := NewObject("Stack", Int)
	stringStack := NewObject("Stack", String)
	anyStack := NewObject("Stack", NewTypeVariable("T"))

	assert.True(t, u.IsAssignable(intStack, anyStack))
	assert.False(t, u.IsAssignable(intStack, stringStack))
	assert.Equal(t, "Stack<int>", intStack.String())
}

// TestSubstitution verifies application, unification and instantiation of type variables.
func TestSubstitution(t *testing.T) {
	u := testUniverse()
	s, err := NewSubstitution(u, map[string]string{"T": "string"})
	require.NoError(t, err)

	generic := NewObject("Stack", NewTypeVariable("T"))
	assert.True(t, s.Apply(generic).Equal(NewObject("Stack", String)))
	assert.True(t, s.Apply(ArrayOf(NewTypeVariable("T"))).Equal(ArrayOf(String)))

	unbound := NewObject("Stack", NewTypeVariable("E"))
	assert.True(t, s.Instantiate(unbound).Equal(NewObject("Stack", Object)))

	bindings := make(Substitution)
	require.True(t, bindings.Unify(generic, NewObject("Stack", Int)))
	assert.True(t, bindings["T"].Equal(Int))
	assert.False(t, bindings.Unify(generic, NewObject("Stack", String)))

	_, err = NewSubstitution(u, map[string]string{"T": "Missing"})
	assert.Error(t, err)
}

// TestIntegralBounds verifies the narrowing ranges of integral kinds.
func TestIntegralBounds(t *testing.T) {
	lo, hi := Byte.Bounds()
	assert.Equal(t, int64(-128), lo)
	assert.Equal(t, int64(127), hi)
	lo, hi = Char.Bounds()
	assert.Equal(t, int64(0), lo)
	assert.Equal(t, int64(65535), hi)
	assert.Equal(t, 1, Bool.BitLength())
}
