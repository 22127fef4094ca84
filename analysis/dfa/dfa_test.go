package dfa

import (
	"testing"

	"github.com/slate-lang/slate/ir"
)

// divisor is a toy lattice for exercising the driver: the state of a value
// is a divisor guaranteed to divide it, 0 only as the ⊥ placeholder.
type divisor int64

func (d divisor) Equal(o divisor) bool { return d == o }

func gcd(a, b divisor) divisor {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// divisorFramework understands constants and adds; everything else is pinned
// at the trivial divisor.
func divisorFramework() *Framework[divisor] {
	return &Framework[divisor]{
		Join: gcd,
		Transfer: func(ins *Instance[divisor], op *ir.Op) []Mapping[divisor] {
			if len(op.Results) == 0 {
				return nil
			}
			r := op.Results[0]
			switch op.Kind {
			case ir.KindConstant:
				return []Mapping[divisor]{M(r, divisor(op.Attrs.Value))}
			case ir.KindAdd:
				state := divisor(0)
				for _, v := range op.Operands {
					if !ins.Known(v) {
						return nil
					}
					state = gcd(state, ins.Value(v))
				}
				return []Mapping[divisor]{M(r, state)}
			default:
				return []Mapping[divisor]{{Value: r, State: 1, Fixed: true}}
			}
		},
	}
}

func i32() ir.Type { return ir.Int{Bits: 32} }

func TestForwardStraightLine(t *testing.T) {
	fn := ir.NewFunction("f")
	entry := fn.Entry()
	c8 := entry.Emit(ir.KindConstant, i32(), ir.Attrs{Value: 8})
	c12 := entry.Emit(ir.KindConstant, i32(), ir.Attrs{Value: 12})
	sum := entry.Emit(ir.KindAdd, i32(), ir.Attrs{}, c8, c12)
	entry.EmitRet()

	ins := divisorFramework().Forward(fn)
	if got := ins.Value(sum); got != 4 {
		t.Errorf("sum: got %d, want 4", got)
	}
	if got := ins.Value(c8); got != 8 {
		t.Errorf("c8: got %d, want 8", got)
	}
}

func TestForwardJoinsBlockParams(t *testing.T) {
	fn := ir.NewFunction("f")
	entry := fn.Entry()
	join := fn.NewBlock("join")
	x := join.NewParam(i32())
	join.EmitRet()

	cond := entry.Emit(ir.KindConstant, i32(), ir.Attrs{Value: 1})
	c8 := entry.Emit(ir.KindConstant, i32(), ir.Attrs{Value: 8})
	c12 := entry.Emit(ir.KindConstant, i32(), ir.Attrs{Value: 12})
	entry.EmitCondBr(cond, join, []ir.Value{c8}, join, []ir.Value{c12})

	ins := divisorFramework().Forward(fn)
	if got := ins.Value(x); got != 4 {
		t.Errorf("x: got %d, want gcd(8, 12) = 4", got)
	}
}

func TestForwardLoopConverges(t *testing.T) {
	// x starts at divisor 8 from the entry edge and meets gcd(x, 12) = 4
	// coming around the backedge; a second round trip changes nothing.
	fn := ir.NewFunction("f")
	entry := fn.Entry()
	head := fn.NewBlock("head")
	exit := fn.NewBlock("exit")
	x := head.NewParam(i32())

	c8 := entry.Emit(ir.KindConstant, i32(), ir.Attrs{Value: 8})
	entry.EmitBr(head, c8)

	cond := head.Emit(ir.KindConstant, i32(), ir.Attrs{Value: 1})
	c12 := head.Emit(ir.KindConstant, i32(), ir.Attrs{Value: 12})
	y := head.Emit(ir.KindAdd, i32(), ir.Attrs{}, x, c12)
	head.EmitCondBr(cond, head, []ir.Value{y}, exit, nil)

	exit.EmitRet()

	ins := divisorFramework().Forward(fn)
	if got := ins.Value(x); got != 4 {
		t.Errorf("x: got %d, want 4", got)
	}
	if got := ins.Value(y); got != 4 {
		t.Errorf("y: got %d, want 4", got)
	}
}

func TestFixedMappingsPin(t *testing.T) {
	fn := ir.NewFunction("f")
	entry := fn.Entry()
	c8 := entry.Emit(ir.KindConstant, i32(), ir.Attrs{Value: 8})
	v := entry.Emit(ir.KindMul, i32(), ir.Attrs{}, c8, c8)
	w := entry.Emit(ir.KindAdd, i32(), ir.Attrs{}, v, c8)
	entry.EmitRet()

	ins := divisorFramework().Forward(fn)
	if got := ins.Value(v); got != 1 {
		t.Errorf("v: got %d, want pinned 1", got)
	}
	if m := ins.Mapping[v]; !m.Fixed {
		t.Error("v: mapping is not fixed")
	}
	// The pinned state still feeds downstream uses.
	if got := ins.Value(w); got != 1 {
		t.Errorf("w: got %d, want 1", got)
	}
}

func TestFixedSlotSurvivesOperandRefinement(t *testing.T) {
	// The sum's slot is pinned before the run, while both operands are
	// still ⊥. The operands then refine, which re-enqueues the add and
	// makes its transfer offer gcd(8, 12) = 4 for the pinned slot; the pin
	// must win regardless of visit order.
	fn := ir.NewFunction("f")
	entry := fn.Entry()
	c8 := entry.Emit(ir.KindConstant, i32(), ir.Attrs{Value: 8})
	c12 := entry.Emit(ir.KindConstant, i32(), ir.Attrs{Value: 12})
	sum := entry.Emit(ir.KindAdd, i32(), ir.Attrs{}, c8, c12)
	entry.EmitRet()

	ins := divisorFramework().Start()
	ins.Mapping[sum] = Mapping[divisor]{Value: sum, State: 3, Fixed: true}
	ins.Forward(fn)

	if got := ins.Value(c8); got != 8 {
		t.Errorf("c8: got %d, want 8", got)
	}
	if got := ins.Value(sum); got != 3 {
		t.Errorf("sum: got %d, want the pinned 3", got)
	}
	if !ins.Mapping[sum].Fixed {
		t.Error("sum: slot lost its pin")
	}
}

func TestValueAndKnown(t *testing.T) {
	fn := ir.NewFunction("f")
	p := fn.Entry().NewParam(i32())
	fn.Entry().EmitRet()

	ins := divisorFramework().Start()
	if ins.Known(p) {
		t.Error("parameter known before seeding")
	}
	if got := ins.Value(p); got != 0 {
		t.Errorf("unseeded value: got %d, want ⊥", got)
	}
	ins.Set(p, 16)
	if !ins.Known(p) || ins.Value(p) != 16 {
		t.Errorf("after Set: known=%v value=%d", ins.Known(p), ins.Value(p))
	}
	ins.Forward(fn)
	if got := ins.Value(p); got != 16 {
		t.Errorf("after Forward: got %d, want 16", got)
	}
}
