package ir

// This file implements the Slate type system, or rather the fragment of it
// that the middle end needs: fixed-width integers, element pointers, and
// ranked tensors with static shapes.

import (
	"fmt"
	"strings"
)

type Type interface {
	String() string
}

// Int is a fixed-width integer type. Bits == 1 describes booleans.
type Int struct {
	Bits int
}

func (t Int) String() string { return fmt.Sprintf("i%d", t.Bits) }

// Ptr is a pointer to a scalar element in global memory.
type Ptr struct {
	Elem Type
}

func (t Ptr) String() string { return fmt.Sprintf("!ptr<%s>", t.Elem) }

// Float is a floating-point type. The axis analysis has nothing to say about
// float values, but pointers to floats flow through it all the time.
type Float struct {
	Bits int
}

func (t Float) String() string { return fmt.Sprintf("f%d", t.Bits) }

// Tensor is a ranked tensor with a static shape.
//
// Order is the memory layout's axis permutation, fastest-varying axis first.
// Order[0] is the axis with stride one, which dictates the widths available
// to vectorized memory instructions. A nil Order means the default row-major
// layout, in which the last axis is fastest.
type Tensor struct {
	Elem  Type
	Shape []int64
	Order []int
}

func (t Tensor) Rank() int { return len(t.Shape) }

// FastestAxis returns the stride-one axis of t's layout.
func (t Tensor) FastestAxis() int {
	if len(t.Order) == 0 {
		return t.Rank() - 1
	}
	return t.Order[0]
}

func (t Tensor) String() string {
	var sb strings.Builder
	sb.WriteString("tensor<")
	for _, n := range t.Shape {
		fmt.Fprintf(&sb, "%dx", n)
	}
	sb.WriteString(t.Elem.String())
	if len(t.Order) != 0 {
		sb.WriteString(", [")
		for i, d := range t.Order {
			if i > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "%d", d)
		}
		sb.WriteString("]")
	}
	sb.WriteString(">")
	return sb.String()
}

// Rank returns the number of axes the analysis tracks for a value of type t.
// Scalars are treated as rank-1 tensors of extent one.
func Rank(t Type) int {
	if tt, ok := t.(Tensor); ok {
		return tt.Rank()
	}
	return 1
}

// Shape returns the static shape of t, or {1} for scalars.
func Shape(t Type) []int64 {
	if tt, ok := t.(Tensor); ok {
		return tt.Shape
	}
	return []int64{1}
}

// Elem returns the element type of a tensor, or t itself for scalars.
func Elem(t Type) Type {
	if tt, ok := t.(Tensor); ok {
		return tt.Elem
	}
	return t
}

func sameShape(a, b Type) bool {
	sa, sb := Shape(a), Shape(b)
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
