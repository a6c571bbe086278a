package symbolic

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/sha3"
)

// BranchID identifies a decision point in the program under test.
type BranchID struct {
	// Method identifies the member containing the decision.
	Method string

	// Index distinguishes decisions within the member.
	Index int
}

// String returns a readable representation of the branch identity.
func (b BranchID) String() string {
	return fmt.Sprintf("%s#%d", b.Method, b.Index)
}

// BranchCondition records one decision of a concrete execution: the constraint that held locally and the
// constraints of every earlier decision on the same path.
type BranchCondition struct {
	// Branch identifies the decision point.
	Branch BranchID

	// Local is the constraint that was satisfied when the decision was taken.
	Local Constraint

	// Reaching holds the local constraints of all prior decisions on the path, in execution order.
	Reaching []Constraint
}

// Outcome returns the direction the decision took, described by the comparator of its local constraint.
func (b *BranchCondition) Outcome() Comparator {
	return b.Local.Comparator()
}

// PathRecorder collects branch conditions while a test executes. It is safe for concurrent use, and stops
// recording once disabled.
type PathRecorder struct {
	lock       sync.Mutex
	path       []Constraint
	conditions []*BranchCondition
	disabled   bool
}

// NewPathRecorder returns an empty PathRecorder.
func NewPathRecorder() *PathRecorder {
	return &PathRecorder{
		path:       make([]Constraint, 0),
		conditions: make([]*BranchCondition, 0),
	}
}

// Record appends a decision. Decisions without free variables are not recorded since they cannot be negated.
func (r *PathRecorder) Record(branch BranchID, local Constraint) {
	if len(local.Variables()) == 0 {
		return
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.disabled {
		return
	}

	// The path only grows, so the prefix can be shared as long as its capacity is capped
	reaching := r.path[:len(r.path):len(r.path)]
	r.conditions = append(r.conditions, &BranchCondition{Branch: branch, Local: local, Reaching: reaching})
	r.path = append(r.path, local)
}

// Disable stops recording.
func (r *PathRecorder) Disable() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.disabled = true
}

// Conditions returns the recorded branch conditions in execution order.
func (r *PathRecorder) Conditions() []*BranchCondition {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]*BranchCondition(nil), r.conditions...)
}

// ConeOfInfluence reduces a path to the constraints relevant to target: starting from the variables of target, prior
// constraints sharing a variable with the accumulated set are included transitively, scanning from the most recent
// backwards until nothing changes. The result keeps path order and ends with target.
func ConeOfInfluence(target Constraint, reaching []Constraint) []Constraint {
	dependencies := make(map[string]bool)
	for _, v := range target.Variables() {
		dependencies[v.Name] = true
	}

	included := make([]bool, len(reaching))
	for changed := true; changed; {
		changed = false
		for i := len(reaching) - 1; i >= 0; i-- {
			if included[i] {
				continue
			}
			variables := reaching[i].Variables()
			shares := false
			for _, v := range variables {
				if dependencies[v.Name] {
					shares = true
					break
				}
			}
			if !shares {
				continue
			}
			included[i] = true
			changed = true
			for _, v := range variables {
				dependencies[v.Name] = true
			}
		}
	}

	result := make([]Constraint, 0, len(reaching)+1)
	for i, c := range reaching {
		if included[i] {
			result = append(result, c)
		}
	}
	return append(result, target)
}

// Key returns a stable hash of a constraint set, used to memoize solver results. The set is order-insensitive and
// includes the domain of every variable.
func Key(constraints []Constraint) string {
	lines := make([]string, 0, len(constraints))
	declarations := make(map[string]bool)
	for _, c := range constraints {
		lines = append(lines, c.String())
		for _, v := range c.Variables() {
			declarations[v.Declaration()] = true
		}
	}
	sort.Strings(lines)
	decls := make([]string, 0, len(declarations))
	for d := range declarations {
		decls = append(decls, d)
	}
	sort.Strings(decls)

	hash := sha3.Sum256([]byte(strings.Join(decls, ";") + "|" + strings.Join(lines, ";")))
	return hex.EncodeToString(hash[:])
}

// AverageSize returns the mean number of expression nodes per constraint.
func AverageSize(constraints []Constraint) float64 {
	if len(constraints) == 0 {
		return 0
	}
	total := 0
	for _, c := range constraints {
		total += c.Size()
	}
	return float64(total) / float64(len(constraints))
}
