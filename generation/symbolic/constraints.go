package symbolic

import (
	"math"
	"strings"

	"github.com/holiman/uint256"
)

// Comparator describes the relation a constraint asserts between its operands.
type Comparator int

const (
	EQ Comparator = iota
	NE
	LT
	LE
	GT
	GE
)

var comparatorSymbols = [...]string{"==", "!=", "<", "<=", ">", ">="}

// String returns the comparator symbol.
func (c Comparator) String() string {
	return comparatorSymbols[c]
}

// Negate returns the comparator that holds exactly when c does not.
func (c Comparator) Negate() Comparator {
	switch c {
	case EQ:
		return NE
	case NE:
		return EQ
	case LT:
		return GE
	case GE:
		return LT
	case LE:
		return GT
	default:
		return LE
	}
}

// holds reports whether the comparator is satisfied by the sign of left - right.
func (c Comparator) holds(sign int) bool {
	switch c {
	case EQ:
		return sign == 0
	case NE:
		return sign != 0
	case LT:
		return sign < 0
	case LE:
		return sign <= 0
	case GT:
		return sign > 0
	default:
		return sign >= 0
	}
}

// Constraint describes a relation between symbolic expressions. Constraints are never mutated; negation produces a
// new constraint.
type Constraint interface {
	// Comparator returns the asserted relation.
	Comparator() Comparator

	// Negate returns the complementary constraint.
	Negate() Constraint

	// IsSolvable reports whether the constraint is worth submitting to a solver, judged purely syntactically.
	IsSolvable() bool

	// Variables returns the free variables of the constraint, sorted by name.
	Variables() []*Variable

	// Size returns the number of expression nodes in the constraint.
	Size() int

	// Distance returns how far the assignment is from satisfying the constraint. Zero means satisfied.
	Distance(assignment Assignment) float64

	// String returns a canonical textual representation.
	String() string
}

// binaryConstraint holds the operands shared by every constraint shape.
type binaryConstraint struct {
	Left, Right Expression
	Cmp         Comparator
}

func (c binaryConstraint) Comparator() Comparator { return c.Cmp }
func (c binaryConstraint) Size() int              { return c.Left.Size() + c.Right.Size() }
func (c binaryConstraint) Variables() []*Variable { return VariablesOf(c.Left, c.Right) }

func (c binaryConstraint) render(operator string) string {
	return c.Left.String() + " " + operator + " " + c.Right.String()
}

// isSolvable rejects constraints without free variables and self comparisons that can never hold.
func (c binaryConstraint) isSolvable() bool {
	if len(c.Variables()) == 0 {
		return false
	}
	if c.Left.String() == c.Right.String() {
		return c.Cmp == EQ || c.Cmp == LE || c.Cmp == GE
	}
	return true
}

// IntConstraint compares two integer expressions.
type IntConstraint struct {
	binaryConstraint
}

// NewIntConstraint returns the integer constraint left cmp right.
func NewIntConstraint(left Expression, cmp Comparator, right Expression) *IntConstraint {
	return &IntConstraint{binaryConstraint{Left: left, Right: right, Cmp: cmp}}
}

func (c *IntConstraint) Negate() Constraint {
	return NewIntConstraint(c.Left, c.Cmp.Negate(), c.Right)
}

func (c *IntConstraint) IsSolvable() bool { return c.isSolvable() }
func (c *IntConstraint) String() string   { return c.render(c.Cmp.String()) }

// Distance computes the branch distance over the exact difference of the operands, so that values near the ends of
// the 64-bit range do not overflow.
func (c *IntConstraint) Distance(assignment Assignment) float64 {
	l, err := evaluateInt(c.Left, assignment)
	if err != nil {
		return math.Inf(1)
	}
	r, err := evaluateInt(c.Right, assignment)
	if err != nil {
		return math.Inf(1)
	}

	sign := 0
	if l < r {
		sign = -1
	} else if l > r {
		sign = 1
	}
	if c.Cmp.holds(sign) {
		return 0
	}

	gap := absDifference(l, r)
	switch c.Cmp {
	case NE:
		return 1
	case LT, GT:
		gap.AddUint64(gap, 1)
	}
	return toFloat(gap)
}

// RealConstraint compares two real expressions.
type RealConstraint struct {
	binaryConstraint
}

// NewRealConstraint returns the real constraint left cmp right.
func NewRealConstraint(left Expression, cmp Comparator, right Expression) *RealConstraint {
	return &RealConstraint{binaryConstraint{Left: left, Right: right, Cmp: cmp}}
}

func (c *RealConstraint) Negate() Constraint {
	return NewRealConstraint(c.Left, c.Cmp.Negate(), c.Right)
}

func (c *RealConstraint) IsSolvable() bool { return c.isSolvable() }
func (c *RealConstraint) String() string   { return c.render(c.Cmp.String()) }

func (c *RealConstraint) Distance(assignment Assignment) float64 {
	l, err := evaluateReal(c.Left, assignment)
	if err != nil || math.IsNaN(l) {
		return math.Inf(1)
	}
	r, err := evaluateReal(c.Right, assignment)
	if err != nil || math.IsNaN(r) {
		return math.Inf(1)
	}

	sign := 0
	if l < r {
		sign = -1
	} else if l > r {
		sign = 1
	}
	if c.Cmp.holds(sign) {
		return 0
	}

	switch c.Cmp {
	case NE:
		return 1
	case LT, GT:
		return math.Abs(l-r) + math.SmallestNonzeroFloat64
	default:
		return math.Abs(l - r)
	}
}

// StringOperator describes a string predicate.
type StringOperator int

const (
	StringEquals StringOperator = iota
	StringStartsWith
	StringContains
)

var stringOperatorNames = [...]string{"equals", "startsWith", "contains"}

// StringConstraint asserts a string predicate (Cmp EQ) or its negation (Cmp NE).
type StringConstraint struct {
	binaryConstraint
	Op StringOperator
}

// NewStringConstraint returns a string predicate constraint. Only EQ and NE are meaningful comparators.
func NewStringConstraint(left Expression, op StringOperator, cmp Comparator, right Expression) *StringConstraint {
	if cmp != EQ {
		cmp = NE
	}
	return &StringConstraint{binaryConstraint: binaryConstraint{Left: left, Right: right, Cmp: cmp}, Op: op}
}

func (c *StringConstraint) Negate() Constraint {
	return NewStringConstraint(c.Left, c.Op, c.Cmp.Negate(), c.Right)
}

func (c *StringConstraint) IsSolvable() bool {
	if len(c.Variables()) == 0 {
		return false
	}
	if c.Left.String() == c.Right.String() {
		return c.Cmp == EQ
	}
	return true
}

func (c *StringConstraint) String() string {
	prefix := ""
	if c.Cmp == NE {
		prefix = "!"
	}
	return prefix + stringOperatorNames[c.Op] + "(" + c.Left.String() + ", " + c.Right.String() + ")"
}

func (c *StringConstraint) Distance(assignment Assignment) float64 {
	l, err := evaluateString(c.Left, assignment)
	if err != nil {
		return math.Inf(1)
	}
	r, err := evaluateString(c.Right, assignment)
	if err != nil {
		return math.Inf(1)
	}

	var d int
	switch c.Op {
	case StringEquals:
		d = editDistance(l, r)
	case StringStartsWith:
		if len(l) >= len(r) {
			d = editDistance(l[:len(r)], r)
		} else {
			d = editDistance(l, r[:len(l)]) + len(r) - len(l)
		}
	default:
		d = containsDistance(l, r)
	}

	if c.Cmp == EQ {
		return float64(d)
	}
	if d == 0 {
		return 1
	}
	return 0
}

func absDifference(a, b int64) *uint256.Int {
	if a < b {
		a, b = b, a
	}
	// Both operands are offset into the unsigned range so the subtraction is exact
	x := uint256.NewInt(uint64(a) ^ (1 << 63))
	y := uint256.NewInt(uint64(b) ^ (1 << 63))
	return x.Sub(x, y)
}

func toFloat(z *uint256.Int) float64 {
	return float64(z[3])*0x1p192 + float64(z[2])*0x1p128 + float64(z[1])*0x1p64 + float64(z[0])
}

func editDistance(a, b string) int {
	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for j := range previous {
		previous[j] = j
	}
	for i := 1; i <= len(a); i++ {
		current[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current[j] = min(previous[j]+1, current[j-1]+1, previous[j-1]+cost)
		}
		previous, current = current, previous
	}
	return previous[len(b)]
}

func containsDistance(haystack, needle string) int {
	if strings.Contains(haystack, needle) {
		return 0
	}
	if len(haystack) < len(needle) {
		return editDistance(haystack, needle[:len(haystack)]) + len(needle) - len(haystack)
	}
	best := len(needle)
	for i := 0; i+len(needle) <= len(haystack); i++ {
		mismatches := 0
		for j := 0; j < len(needle); j++ {
			if haystack[i+j] != needle[j] {
				mismatches++
			}
		}
		best = min(best, mismatches)
	}
	return best
}
