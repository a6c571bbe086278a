package types

import (
	"sync"

	"github.com/pkg/errors"
)

// Universe holds the declared types of a program under test together with their subtype relation. It is populated
// once while a test cluster is built and only read afterward.
type Universe struct {
	// declared maps type names to their declaration.
	declared map[string]*Type

	// supertypes maps type names to their direct supertypes.
	supertypes map[string][]string

	// closure caches the transitive supertypes of each type name.
	closure map[string]map[string]bool

	// closureLock guards closure.
	closureLock sync.Mutex
}

// NewUniverse returns a Universe that knows only the predeclared types.
func NewUniverse() *Universe {
	u := &Universe{
		declared:   make(map[string]*Type),
		supertypes: make(map[string][]string),
		closure:    make(map[string]map[string]bool),
	}
	for _, t := range []*Type{Bool, Byte, Short, Char, Int, Long, Float, Double, String, Object} {
		u.declared[t.Name] = t
	}
	return u
}

// Declare adds a type and its direct supertypes to the universe. Declaring a type twice merges its supertypes.
func (u *Universe) Declare(t *Type, supertypes ...string) {
	u.declared[t.Name] = t
	u.supertypes[t.Name] = append(u.supertypes[t.Name], supertypes...)

	u.closureLock.Lock()
	u.closure = make(map[string]map[string]bool)
	u.closureLock.Unlock()
}

// Lookup returns the declared type with the given name.
func (u *Universe) Lookup(name string) (*Type, bool) {
	t, ok := u.declared[name]
	return t, ok
}

// Resolve returns the declared type with the given name or an error if it is unknown.
func (u *Universe) Resolve(name string) (*Type, error) {
	t, ok := u.declared[name]
	if !ok {
		return nil, errors.Errorf("unknown type %q", name)
	}
	return t, nil
}

// Types returns every declared type.
func (u *Universe) Types() []*Type {
	result := make([]*Type, 0, len(u.declared))
	for _, t := range u.declared {
		result = append(result, t)
	}
	return result
}

// IsSubtype reports whether the type named sub equals or transitively extends the type named super.
func (u *Universe) IsSubtype(sub, super string) bool {
	if sub == super {
		return true
	}
	u.closureLock.Lock()
	defer u.closureLock.Unlock()

	ancestors, ok := u.closure[sub]
	if !ok {
		ancestors = make(map[string]bool)
		pending := append([]string(nil), u.supertypes[sub]...)
		for len(pending) > 0 {
			next := pending[len(pending)-1]
			pending = pending[:len(pending)-1]
			if ancestors[next] {
				continue
			}
			ancestors[next] = true
			pending = append(pending, u.supertypes[next]...)
		}
		u.closure[sub] = ancestors
	}
	return ancestors[super]
}

// wideningRank orders numeric primitive kinds for widening conversions.
var wideningRank = map[Kind]int{
	KindByte:   1,
	KindShort:  2,
	KindInt:    3,
	KindLong:   4,
	KindFloat:  5,
	KindDouble: 6,
}

// IsAssignable reports whether a value of type from may be used where type to is expected.
func (u *Universe) IsAssignable(from, to *Type) bool {
	if from.IsVoid() || to.IsVoid() {
		return false
	}
	if to.Kind == KindTypeVariable {
		return !from.IsPrimitive()
	}
	if from.Equal(to) {
		return true
	}

	if from.IsPrimitive() || to.IsPrimitive() {
		if !from.IsPrimitive() || !to.IsPrimitive() {
			return false
		}
		if from.Kind == KindBool || to.Kind == KindBool {
			return false
		}
		if from.Kind == KindChar {
			return to.Kind != KindByte && to.Kind != KindShort && to.Kind != KindChar
		}
		if to.Kind == KindChar {
			return false
		}
		return wideningRank[from.Kind] <= wideningRank[to.Kind]
	}

	if to.Kind == KindObject && to.Name == Object.Name {
		return true
	}

	switch to.Kind {
	case KindString, KindEnum:
		return from.Kind == to.Kind && from.Name == to.Name
	case KindArray:
		if !from.IsArray() {
			return false
		}
		if from.Component.IsPrimitive() || to.Component.IsPrimitive() {
			return from.Component.Equal(to.Component)
		}
		return u.IsAssignable(from.Component, to.Component)
	case KindObject:
		if from.Kind != KindObject || !u.IsSubtype(from.Name, to.Name) {
			return false
		}
		if len(to.Arguments) == 0 {
			return true
		}
		if len(from.Arguments) != len(to.Arguments) {
			return false
		}
		for i, argument := range to.Arguments {
			if argument.Kind == KindTypeVariable {
				continue
			}
			if !from.Arguments[i].Equal(argument) {
				return false
			}
		}
		return true
	}
	return false
}
