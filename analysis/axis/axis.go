// Package axis computes per-axis integer invariants (contiguity,
// divisibility, constancy and exact constants) for every tensor value in a
// function, by forward abstract interpretation over the instruction graph.
// Code generation uses the converged results to pick vector widths and
// alignments for memory instructions and masked accesses.
package axis

import (
	"fmt"
	"strings"
)

// MaxDivisibility is the capped sentinel for "divisible by any power of
// two". It is what highestPowerOfTwo reports for 0, which would otherwise
// claim infinite divisibility. 1<<62 keeps gcd and min arithmetic on
// divisibilities free of overflow while exceeding any realistic alignment.
const MaxDivisibility = int64(1) << 62

// AxisInfo is the lattice element: one entry per axis for each of the three
// tracked properties, plus an optional exact scalar value. Every vector
// entry is at least 1; 1 means "no information". The zero value is the
// unknown element, carrying no information at all, not even a rank.
//
// AxisInfo values are treated as immutable. Transfer functions build fresh
// ones; nothing may write to the slices of an existing one.
type AxisInfo struct {
	// Contiguity[d] is the length of the longest run of consecutive
	// integers guaranteed along axis d.
	Contiguity []int64
	// Divisibility[d] is the largest divisor guaranteed to divide every
	// element along axis d.
	Divisibility []int64
	// Constancy[d] is the length of the longest run of identical values
	// guaranteed along axis d.
	Constancy []int64
	// Constant is non-nil if the whole tensor is known to hold this one
	// scalar value.
	Constant *int64
}

// New returns an AxisInfo with the given property vectors. It panics if the
// vectors disagree in length or contain entries below 1; transfer functions
// are expected to produce well-formed lattice values.
func New(contiguity, divisibility, constancy []int64, constant *int64) AxisInfo {
	if len(contiguity) != len(divisibility) || len(contiguity) != len(constancy) {
		panic(fmt.Sprintf("axis: mismatched property ranks %d/%d/%d",
			len(contiguity), len(divisibility), len(constancy)))
	}
	for d := range contiguity {
		if contiguity[d] < 1 || divisibility[d] < 1 || constancy[d] < 1 {
			panic(fmt.Sprintf("axis: property below 1 at axis %d", d))
		}
	}
	return AxisInfo{
		Contiguity:   contiguity,
		Divisibility: divisibility,
		Constancy:    constancy,
		Constant:     constant,
	}
}

// Pessimistic returns the minimal-information element for the given rank:
// all properties 1, no constant.
func Pessimistic(rank int) AxisInfo {
	return New(ones(rank), ones(rank), ones(rank), nil)
}

// Known reports whether a carries any information. The unknown element is
// the ⊥ of the analysis; values hold it only until their defining operation
// has been visited.
func (a AxisInfo) Known() bool { return len(a.Contiguity) > 0 }

// Rank returns the number of axes, 0 for the unknown element.
func (a AxisInfo) Rank() int { return len(a.Contiguity) }

func (a AxisInfo) Equal(b AxisInfo) bool {
	if a.Rank() != b.Rank() {
		return false
	}
	for d := range a.Contiguity {
		if a.Contiguity[d] != b.Contiguity[d] ||
			a.Divisibility[d] != b.Divisibility[d] ||
			a.Constancy[d] != b.Constancy[d] {
			return false
		}
	}
	return sameConstant(a.Constant, b.Constant)
}

func (a AxisInfo) String() string {
	if !a.Known() {
		return "unknown"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "contiguity=%v divisibility=%v constancy=%v", a.Contiguity, a.Divisibility, a.Constancy)
	if a.Constant != nil {
		fmt.Fprintf(&sb, " constant=%d", *a.Constant)
	}
	return sb.String()
}

// Join merges two lattice elements. If exactly one side is unknown the
// result is the other side unchanged. If both are known, each property is
// merged per axis with gcd, and the constant survives only if both sides
// agree on it. Joining two unknown elements indicates a bug in the driver
// and panics.
func Join(lhs, rhs AxisInfo) AxisInfo {
	switch {
	case !lhs.Known() && rhs.Known():
		return rhs
	case lhs.Known() && !rhs.Known():
		return lhs
	case lhs.Known() && rhs.Known():
		if lhs.Rank() != rhs.Rank() {
			panic(fmt.Sprintf("axis: join of rank %d with rank %d", lhs.Rank(), rhs.Rank()))
		}
		rank := lhs.Rank()
		contiguity := make([]int64, rank)
		divisibility := make([]int64, rank)
		constancy := make([]int64, rank)
		for d := 0; d < rank; d++ {
			contiguity[d] = gcd(lhs.Contiguity[d], rhs.Contiguity[d])
			divisibility[d] = gcd(lhs.Divisibility[d], rhs.Divisibility[d])
			constancy[d] = gcd(lhs.Constancy[d], rhs.Constancy[d])
		}
		var constant *int64
		if lhs.Constant != nil && rhs.Constant != nil && *lhs.Constant == *rhs.Constant {
			constant = lhs.Constant
		}
		return New(contiguity, divisibility, constancy, constant)
	}
	panic("axis: join of two unknown elements")
}

// gcd computes the greatest common divisor of the magnitudes of a and b,
// with gcd(a, 0) = a and gcd(0, 0) = 0.
func gcd(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// highestPowerOfTwo returns the largest power of two dividing n. For n == 0
// every power of two divides it, so the capped sentinel [MaxDivisibility] is
// returned instead.
func highestPowerOfTwo(n int64) int64 {
	if n == 0 {
		return MaxDivisibility
	}
	if n < 0 {
		n = -n
	}
	return n & -n
}

// mulDivisibility multiplies two divisibilities, saturating at
// [MaxDivisibility] so that products of sentinels cannot overflow.
func mulDivisibility(a, b int64) int64 {
	if a > MaxDivisibility/b {
		return MaxDivisibility
	}
	return a * b
}

func ones(rank int) []int64 {
	v := make([]int64, rank)
	for d := range v {
		v[d] = 1
	}
	return v
}

func uniform(rank int, n int64) []int64 {
	v := make([]int64, rank)
	for d := range v {
		v[d] = n
	}
	return v
}

func constOf(v int64) *int64 { return &v }

func sameConstant(a, b *int64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}
