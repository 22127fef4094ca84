package axis

// The transfer function library. Each entry in the transfers table is a pure
// function from the operands' AxisInfo to the result's AxisInfo. Every rule
// must over-approximate soundly: claiming too long a run or too large a
// divisor mis-vectorizes memory accesses downstream.

import (
	"github.com/slate-lang/slate/ir"
)

type transferFunc func(op *ir.Op, operands []AxisInfo) AxisInfo

// transfers maps every supported operation kind to its transfer function.
// Kinds not in this table get the pessimistic default and are pinned there
// by the analysis entry point.
var transfers = map[ir.Kind]transferFunc{
	ir.KindRange:    transferRange,
	ir.KindConstant: transferConstant,

	ir.KindAdd:    addRule.apply,
	ir.KindAddPtr: addRule.apply,
	ir.KindSub:    subRule.apply,
	ir.KindMul:    mulRule.apply,
	ir.KindDivS:   divRule(false).apply,
	ir.KindDivU:   divRule(true).apply,
	ir.KindRemS:   remRule(false).apply,
	ir.KindRemU:   remRule(true).apply,
	ir.KindAnd:    bitwiseRule(func(l, r int64) int64 { return l & r }).apply,
	ir.KindOr:     bitwiseRule(func(l, r int64) int64 { return l | r }).apply,
	ir.KindXor:    bitwiseRule(func(l, r int64) int64 { return l ^ r }).apply,

	ir.KindCmp:    transferCmp,
	ir.KindSelect: transferSelect,

	ir.KindBroadcast:  transferBroadcast,
	ir.KindSplat:      transferSplat,
	ir.KindExpandDims: transferExpandDims,

	ir.KindExtS:       transferCast,
	ir.KindExtU:       transferCast,
	ir.KindTrunc:      transferCast,
	ir.KindBitcast:    transferCast,
	ir.KindPtrToInt:   transferCast,
	ir.KindIntToPtr:   transferCast,
	ir.KindLayoutCast: transferCast,
}

// lookupTransfer returns the transfer function for kind, if one exists.
func lookupTransfer(kind ir.Kind) (transferFunc, bool) {
	tf, ok := transfers[kind]
	return tf, ok
}

func resultShape(op *ir.Op) []int64 {
	return ir.Shape(op.Results[0].Type())
}

// isContiguousDim reports whether info covers the whole of axis d with one
// run of consecutive integers.
func isContiguousDim(info AxisInfo, shape []int64, d int) bool {
	return info.Contiguity[d] == shape[d]
}

// isConstantDim reports whether info covers the whole of axis d with one
// constant run.
func isConstantDim(info AxisInfo, shape []int64, d int) bool {
	return info.Constancy[d] == shape[d]
}

// binary describes the per-axis rules of an elementwise binary operation.
// Nil rules default to 1, i.e. no information.
type binary struct {
	contiguity   func(lhs, rhs AxisInfo, shape []int64, d int) int64
	divisibility func(lhs, rhs AxisInfo, d int) int64
	constancy    func(lhs, rhs AxisInfo, shape []int64, d int) int64
	// constant evaluates the operation on two known scalars. ok=false
	// withholds the constant, e.g. for division by a known zero.
	constant func(l, r int64) (int64, bool)
}

func (b binary) apply(op *ir.Op, operands []AxisInfo) AxisInfo {
	lhs, rhs := operands[0], operands[1]
	shape := resultShape(op)
	rank := len(shape)
	contiguity := ones(rank)
	divisibility := ones(rank)
	constancy := ones(rank)
	for d := 0; d < rank; d++ {
		if b.contiguity != nil {
			contiguity[d] = b.contiguity(lhs, rhs, shape, d)
		}
		if b.divisibility != nil {
			divisibility[d] = b.divisibility(lhs, rhs, d)
		}
		if b.constancy != nil {
			constancy[d] = b.constancy(lhs, rhs, shape, d)
		}
	}
	var constant *int64
	if b.constant != nil && lhs.Constant != nil && rhs.Constant != nil {
		if v, ok := b.constant(*lhs.Constant, *rhs.Constant); ok {
			constant = constOf(v)
		}
	}
	return New(contiguity, divisibility, constancy, constant)
}

// Adding a constant run to a contiguous run shifts the whole run: the
// result is contiguous for the length of the shorter of the two, measured
// by gcd so that partial runs still line up.
func addContiguity(lhs, rhs AxisInfo, shape []int64, d int) int64 {
	return max(gcd(lhs.Constancy[d], rhs.Contiguity[d]),
		gcd(lhs.Contiguity[d], rhs.Constancy[d]))
}

// lhs = k*dl, rhs = p*dr; lhs ± rhs is divisible by gcd(dl, dr).
func addDivisibility(lhs, rhs AxisInfo, d int) int64 {
	return gcd(lhs.Divisibility[d], rhs.Divisibility[d])
}

func gcdConstancy(lhs, rhs AxisInfo, shape []int64, d int) int64 {
	return gcd(lhs.Constancy[d], rhs.Constancy[d])
}

var addRule = binary{
	contiguity:   addContiguity,
	divisibility: addDivisibility,
	constancy:    gcdConstancy,
	constant:     func(l, r int64) (int64, bool) { return l + r, true },
}

var subRule = binary{
	contiguity:   addContiguity,
	divisibility: addDivisibility,
	constancy:    gcdConstancy,
	constant:     func(l, r int64) (int64, bool) { return l - r, true },
}

var mulRule = binary{
	contiguity: func(lhs, rhs AxisInfo, shape []int64, d int) int64 {
		// Multiplication by the constant 1 preserves the other side's runs;
		// any other factor stretches consecutive integers apart.
		lc := int64(1)
		if rhs.Constant != nil && *rhs.Constant == 1 {
			lc = lhs.Contiguity[d]
		}
		rc := int64(1)
		if lhs.Constant != nil && *lhs.Constant == 1 {
			rc = rhs.Contiguity[d]
		}
		return max(lc, rc)
	},
	divisibility: func(lhs, rhs AxisInfo, d int) int64 {
		// (k*dl) * (p*dr) is divisible by dl*dr.
		return mulDivisibility(lhs.Divisibility[d], rhs.Divisibility[d])
	},
	constancy: gcdConstancy,
	constant:  func(l, r int64) (int64, bool) { return l * r, true },
}

func divRule(unsigned bool) binary {
	return binary{
		contiguity: func(lhs, rhs AxisInfo, shape []int64, d int) int64 {
			// Division by the constant 1 is the identity.
			if rhs.Constant != nil && *rhs.Constant == 1 {
				return lhs.Contiguity[d]
			}
			return 1
		},
		divisibility: func(lhs, rhs AxisInfo, d int) int64 {
			// lhs = k*k'*g, rhs = p*p'*g with g = gcd(dl, dr); the quotient
			// keeps the factor gcd(dl/g, dr/g).
			dl, dr := lhs.Divisibility[d], rhs.Divisibility[d]
			g := gcd(dl, dr)
			return max(gcd(dl/g, dr/g), 1)
		},
		constancy: func(lhs, rhs AxisInfo, shape []int64, d int) int64 {
			constancy := gcd(lhs.Constancy[d], rhs.Constancy[d])
			// A run of consecutive integers divided by a constant collapses
			// into stair steps of identical quotients. The step length is
			// bounded by gcd(dl, dr) but cannot exceed the run itself.
			if isContiguousDim(lhs, shape, d) && isConstantDim(rhs, shape, d) {
				constancy = max(constancy,
					gcd(lhs.Contiguity[d], gcd(lhs.Divisibility[d], rhs.Divisibility[d])))
			}
			return constancy
		},
		constant: func(l, r int64) (int64, bool) {
			if r == 0 {
				return 0, false
			}
			if unsigned {
				return int64(uint64(l) / uint64(r)), true
			}
			return l / r, true
		},
	}
}

func remRule(unsigned bool) binary {
	return binary{
		contiguity: func(lhs, rhs AxisInfo, shape []int64, d int) int64 {
			// Consecutive integers modulo a constant cycle with period equal
			// to that constant, so runs of length gcd(dl, dr) survive,
			// clamped to the incoming run length.
			if isContiguousDim(lhs, shape, d) && isConstantDim(rhs, shape, d) {
				return max(1,
					gcd(lhs.Contiguity[d], gcd(lhs.Divisibility[d], rhs.Divisibility[d])))
			}
			return 1
		},
		divisibility: func(lhs, rhs AxisInfo, d int) int64 {
			// lhs = g*k'', rhs = g*p'' with g = gcd(dl, dr); the remainder
			// of dividing one multiple of g by another is itself a multiple
			// of g.
			return gcd(lhs.Divisibility[d], rhs.Divisibility[d])
		},
		constancy: gcdConstancy,
		constant: func(l, r int64) (int64, bool) {
			if r == 0 {
				return 0, false
			}
			if unsigned {
				return int64(uint64(l) % uint64(r)), true
			}
			return l % r, true
		},
	}
}

func bitwiseRule(eval func(l, r int64) int64) binary {
	return binary{
		constancy: gcdConstancy,
		constant:  func(l, r int64) (int64, bool) { return eval(l, r), true },
	}
}

func transferCast(op *ir.Op, operands []AxisInfo) AxisInfo {
	return operands[0]
}

func transferRange(op *ir.Op, operands []AxisInfo) AxisInfo {
	start, end := op.Attrs.Start, op.Attrs.End
	return New(
		[]int64{max(end-start, 1)},
		[]int64{highestPowerOfTwo(start)},
		[]int64{1},
		nil,
	)
}

func transferConstant(op *ir.Op, operands []AxisInfo) AxisInfo {
	typ := op.Results[0].Type()
	if _, ok := ir.Elem(typ).(ir.Float); ok {
		// Float values are not tracked.
		return AxisInfo{}
	}
	v := op.Attrs.Value
	if tt, ok := typ.(ir.Tensor); ok {
		rank := tt.Rank()
		constancy := make([]int64, rank)
		copy(constancy, tt.Shape)
		return New(ones(rank), uniform(rank, highestPowerOfTwo(v)), constancy, constOf(v))
	}
	return New([]int64{1}, []int64{highestPowerOfTwo(v)}, []int64{1}, constOf(v))
}

func transferCmp(op *ir.Op, operands []AxisInfo) AxisInfo {
	tt, ok := op.Results[0].Type().(ir.Tensor)
	if !ok {
		return AxisInfo{}
	}
	shape := tt.Shape
	rank := tt.Rank()
	lhs, rhs := operands[0], operands[1]
	pred := op.Attrs.Pred

	contiguity := ones(rank)
	divisibility := ones(rank)
	constancy := ones(rank)
	var constant *int64
	for d := 0; d < rank; d++ {
		if lhs.Constant != nil && rhs.Constant != nil {
			constancy[d] = lhs.Constancy[d]
			if pred.Eval(*lhs.Constant, *rhs.Constant) {
				constant = constOf(1)
			} else {
				constant = constOf(0)
			}
			continue
		}
		c := gcd(lhs.Constancy[d], rhs.Constancy[d])
		// Comparing a run of consecutive integers against a constant stays
		// constant for as long as the run sits on one side of the
		// threshold, which holds for runs of length gcd(contiguity,
		// gcd(dl, dr)). Only for predicates monotone in the direction the
		// run moves: for lhs contiguous the run is increasing, so a
		// "≥"-family predicate may flip mid-run; symmetrically "≤" for rhs
		// contiguous.
		var run int64
		if notGe(pred) && isContiguousDim(lhs, shape, d) && isConstantDim(rhs, shape, d) {
			run = lhs.Contiguity[d]
		} else if notLe(pred) && isConstantDim(lhs, shape, d) && isContiguousDim(rhs, shape, d) {
			run = rhs.Contiguity[d]
		}
		if run > 0 {
			c = max(c, gcd(run, gcd(lhs.Divisibility[d], rhs.Divisibility[d])))
		}
		constancy[d] = c
	}
	return New(contiguity, divisibility, constancy, constant)
}

func notGe(p ir.Predicate) bool { return p != ir.PredSge && p != ir.PredUge }
func notLe(p ir.Predicate) bool { return p != ir.PredSle && p != ir.PredUle }

func transferSelect(op *ir.Op, operands []AxisInfo) AxisInfo {
	tt, ok := op.Results[0].Type().(ir.Tensor)
	if !ok {
		return AxisInfo{}
	}
	cond, then, els := operands[0], operands[1], operands[2]
	if cond.Constant != nil {
		if *cond.Constant != 0 {
			return then
		}
		return els
	}
	if _, ok := op.Operands[0].Type().(ir.Tensor); !ok {
		// An unknown scalar condition picks one branch for the whole
		// tensor, so only guarantees common to both branches survive.
		return Join(then, els)
	}
	rank := tt.Rank()
	contiguity := make([]int64, rank)
	divisibility := make([]int64, rank)
	constancy := make([]int64, rank)
	for d := 0; d < rank; d++ {
		// Within one constant run of the condition a single branch is
		// taken, so both branches' runs survive only clamped to the
		// condition's.
		contiguity[d] = min(gcd(then.Contiguity[d], cond.Constancy[d]),
			gcd(els.Contiguity[d], cond.Constancy[d]))
		constancy[d] = min(gcd(then.Constancy[d], cond.Constancy[d]),
			gcd(els.Constancy[d], cond.Constancy[d]))
		divisibility[d] = min(then.Divisibility[d], els.Divisibility[d])
	}
	var constant *int64
	if then.Constant != nil && els.Constant != nil && *then.Constant == *els.Constant {
		constant = then.Constant
	}
	return New(contiguity, divisibility, constancy, constant)
}

func transferBroadcast(op *ir.Op, operands []AxisInfo) AxisInfo {
	src := operands[0]
	srcShape := ir.Shape(op.Operands[0].Type())
	dstShape := resultShape(op)
	rank := len(dstShape)
	contiguity := make([]int64, rank)
	divisibility := make([]int64, rank)
	constancy := make([]int64, rank)
	for d := 0; d < rank; d++ {
		divisibility[d] = src.Divisibility[d]
		if srcShape[d] == 1 {
			contiguity[d] = 1
			constancy[d] = dstShape[d]
		} else {
			contiguity[d] = src.Contiguity[d]
			constancy[d] = src.Constancy[d]
		}
	}
	return New(contiguity, divisibility, constancy, src.Constant)
}

func transferSplat(op *ir.Op, operands []AxisInfo) AxisInfo {
	src := operands[0]
	shape := resultShape(op)
	rank := len(shape)
	constancy := make([]int64, rank)
	copy(constancy, shape)
	return New(ones(rank), uniform(rank, src.Divisibility[0]), constancy, src.Constant)
}

func transferExpandDims(op *ir.Op, operands []AxisInfo) AxisInfo {
	src := operands[0]
	axis := op.Attrs.Axis
	return New(
		insertAt(src.Contiguity, axis, 1),
		insertAt(src.Divisibility, axis, 1),
		insertAt(src.Constancy, axis, 1),
		src.Constant,
	)
}

func insertAt(v []int64, i int, n int64) []int64 {
	out := make([]int64, 0, len(v)+1)
	out = append(out, v[:i]...)
	out = append(out, n)
	out = append(out, v[i:]...)
	return out
}
