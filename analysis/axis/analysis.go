package axis

import (
	"github.com/slate-lang/slate/analysis/dfa"
	"github.com/slate-lang/slate/config"
	"github.com/slate-lang/slate/ir"
)

// Analysis holds the converged per-value lattice store for one function.
// After Run returns it is read-only; the queries below are safe to call from
// any later compilation pass.
type Analysis struct {
	fn     *ir.Function
	target config.Target
	ins    *dfa.Instance[AxisInfo]
}

// Run analyzes fn to a fixpoint and returns the frozen results.
//
// Entry parameters are seeded with the pessimistic default, refined by the
// declared ABI divisibility hint if the parameter carries one, or by the
// target's default pointer divisibility for pointer-typed parameters that
// don't. All other values start unknown and receive their state from their
// defining operation; parameters of non-entry blocks accumulate the join of
// the values flowing in from every predecessor.
func Run(fn *ir.Function, target config.Target) *Analysis {
	fw := &dfa.Framework[AxisInfo]{
		Join:     Join,
		Transfer: transfer,
		Bottom:   AxisInfo{},
	}
	ins := fw.Start()
	for _, p := range fn.Params() {
		ins.Set(p, seed(p, target))
	}
	ins.Forward(fn)
	return &Analysis{fn: fn, target: target, ins: ins}
}

func seed(p *ir.Param, target config.Target) AxisInfo {
	info := Pessimistic(ir.Rank(p.Type()))
	div := p.Divisibility
	if div == 0 && isPointer(p.Type()) {
		div = target.PointerDivisibility
	}
	if div > 1 {
		info.Divisibility = uniform(info.Rank(), div)
	}
	return info
}

func isPointer(t ir.Type) bool {
	_, ok := ir.Elem(t).(ir.Ptr)
	return ok
}

// transfer is the analysis entry point invoked by the fixpoint driver. It
// never mutates operand state; results flow back into the lattice store
// through the driver's join.
func transfer(ins *dfa.Instance[AxisInfo], op *ir.Op) []dfa.Mapping[AxisInfo] {
	if len(op.Results) == 0 {
		return nil
	}
	tf, ok := lookupTransfer(op.Kind)
	if !ok {
		// No transfer function means no information is ever derivable for
		// this operation; pin the results so later visits cause no churn.
		return fixedPessimistic(op)
	}
	operands := make([]AxisInfo, len(op.Operands))
	for i, v := range op.Operands {
		if !ins.Known(v) {
			// Revisited once the operand's defining op has been seen.
			return nil
		}
		operands[i] = ins.Value(v)
	}
	info := tf(op, operands)
	if !info.Known() {
		return fixedPessimistic(op)
	}
	ms := make([]dfa.Mapping[AxisInfo], len(op.Results))
	for i, r := range op.Results {
		ms[i] = dfa.M(r, info)
	}
	return ms
}

func fixedPessimistic(op *ir.Op) []dfa.Mapping[AxisInfo] {
	ms := make([]dfa.Mapping[AxisInfo], len(op.Results))
	for i, r := range op.Results {
		ms[i] = dfa.Mapping[AxisInfo]{
			Value: r,
			State: Pessimistic(ir.Rank(r.Type())),
			Fixed: true,
		}
	}
	return ms
}

// Value returns the converged AxisInfo for v. Values the analysis never
// reached report the pessimistic default.
func (a *Analysis) Value(v ir.Value) AxisInfo {
	if info := a.ins.Value(v); info.Known() {
		return info
	}
	return Pessimistic(ir.Rank(v.Type()))
}

// PointerAlignment returns the alignment, in elements, that every
// per-thread access through ptr is guaranteed to have along the
// fastest-varying axis. It returns 1 for values that are not ranked
// tensors.
func (a *Analysis) PointerAlignment(ptr ir.Value) int64 {
	tt, ok := ptr.Type().(ir.Tensor)
	if !ok {
		return 1
	}
	info := a.Value(ptr)
	d := tt.FastestAxis()
	return min(info.Divisibility[d], info.Contiguity[d])
}

// VectorSize returns the widest safe vector width, in elements, for memory
// instructions through ptr: the pointer alignment clamped by the target's
// alignment cap and by the extent of the fastest-varying axis.
func (a *Analysis) VectorSize(ptr ir.Value) int64 {
	tt, ok := ptr.Type().(ir.Tensor)
	if !ok {
		return 1
	}
	d := tt.FastestAxis()
	return min(a.target.AlignmentCap, min(a.PointerAlignment(ptr), tt.Shape[d]))
}

// MaskAlignment returns the length of the constant runs of mask along the
// fastest-varying axis, which bounds how masked accesses may be grouped.
func (a *Analysis) MaskAlignment(mask ir.Value) int64 {
	tt, ok := mask.Type().(ir.Tensor)
	if !ok {
		return 1
	}
	info := a.Value(mask)
	return max(info.Constancy[tt.FastestAxis()], 1)
}
