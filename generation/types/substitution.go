package types

import (
	"sort"

	"github.com/pkg/errors"
)

// Substitution maps type variable names to the concrete types they are instantiated with.
type Substitution map[string]*Type

// NewSubstitution builds a Substitution from a mapping of type variable names to declared type names, such as the
// configured type substitutions of a project.
func NewSubstitution(u *Universe, names map[string]string) (Substitution, error) {
	s := make(Substitution, len(names))

	// Resolve in sorted order so that the first unknown type reported is deterministic
	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, variable := range keys {
		t, err := u.Resolve(names[variable])
		if err != nil {
			return nil, errors.Wrapf(err, "cannot substitute type variable %s", variable)
		}
		s[variable] = t
	}
	return s, nil
}

// Apply returns t with every bound type variable replaced. Unbound variables are left in place.
func (s Substitution) Apply(t *Type) *Type {
	if t == nil || !t.HasTypeVariables() {
		return t
	}
	switch t.Kind {
	case KindTypeVariable:
		if bound, ok := s[t.Name]; ok {
			return bound
		}
		return t
	case KindArray:
		return ArrayOf(s.Apply(t.Component))
	default:
		arguments := make([]*Type, len(t.Arguments))
		for i, argument := range t.Arguments {
			arguments[i] = s.Apply(argument)
		}
		return &Type{Name: t.Name, Kind: t.Kind, Arguments: arguments, EnumValues: t.EnumValues}
	}
}

// Instantiate applies the substitution and then replaces every remaining unbound type variable with Object.
func (s Substitution) Instantiate(t *Type) *Type {
	t = s.Apply(t)
	if !t.HasTypeVariables() {
		return t
	}
	fallback := make(Substitution)
	collectVariables(t, func(name string) { fallback[name] = Object })
	return fallback.Apply(t)
}

// Unify binds the type variables of pattern so that it matches concrete, extending the substitution in place.
// Returns false if the two types cannot be unified, in which case the substitution may hold partial bindings.
func (s Substitution) Unify(pattern, concrete *Type) bool {
	if pattern == nil || concrete == nil {
		return pattern == concrete
	}
	if pattern.Kind == KindTypeVariable {
		if bound, ok := s[pattern.Name]; ok {
			return bound.Equal(concrete)
		}
		s[pattern.Name] = concrete
		return true
	}
	if pattern.Kind != concrete.Kind || pattern.Name != concrete.Name && pattern.Kind != KindArray {
		return false
	}
	if pattern.Kind == KindArray {
		return s.Unify(pattern.Component, concrete.Component)
	}
	if len(pattern.Arguments) != len(concrete.Arguments) {
		return len(pattern.Arguments) == 0
	}
	for i := range pattern.Arguments {
		if !s.Unify(pattern.Arguments[i], concrete.Arguments[i]) {
			return false
		}
	}
	return true
}

// Clone returns a copy of the substitution.
func (s Substitution) Clone() Substitution {
	c := make(Substitution, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

func collectVariables(t *Type, visit func(name string)) {
	if t == nil {
		return
	}
	if t.Kind == KindTypeVariable {
		visit(t.Name)
		return
	}
	collectVariables(t.Component, visit)
	for _, argument := range t.Arguments {
		collectVariables(argument, visit)
	}
}
