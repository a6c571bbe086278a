package execution

import (
	"fmt"

	"github.com/crytic/evosynth/generation/config"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// SecurityViolation is returned to code under test which requests a capability it was not granted. When it escapes
// a member, the statement is recorded with ExceptionSecurityViolation.
type SecurityViolation struct {
	// Capability describes the capability which was requested.
	Capability string

	// Member describes the member which requested it.
	Member string
}

// Error implements the error interface.
func (v *SecurityViolation) Error() string {
	return fmt.Sprintf("%s requested capability %q which was not granted", v.Member, v.Capability)
}

// IsSecurityViolation indicates whether err is or wraps a SecurityViolation.
func IsSecurityViolation(err error) bool {
	var violation *SecurityViolation
	return errors.As(err, &violation)
}

// Capabilities is the set of capability tokens granted to code under test.
type Capabilities struct {
	granted map[string]bool
}

// NewCapabilities returns the set of the provided tokens. Unknown tokens are rejected.
func NewCapabilities(tokens []string) (*Capabilities, error) {
	c := &Capabilities{granted: make(map[string]bool, len(tokens))}
	for _, token := range tokens {
		if !slices.Contains(config.KnownCapabilities, token) {
			return nil, errors.Errorf("unknown capability %q", token)
		}
		c.granted[token] = true
	}
	return c, nil
}

// Granted indicates whether the capability was granted.
func (c *Capabilities) Granted(capability string) bool {
	return c.granted[capability]
}

// Tokens returns the granted tokens, sorted.
func (c *Capabilities) Tokens() []string {
	tokens := make([]string, 0, len(c.granted))
	for token := range c.granted {
		tokens = append(tokens, token)
	}
	slices.Sort(tokens)
	return tokens
}
