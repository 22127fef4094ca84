package axis

import (
	"testing"

	"github.com/slate-lang/slate/config"
	"github.com/slate-lang/slate/ir"
)

func TestSeeding(t *testing.T) {
	fn, err := ir.Parse(`
		func @f(%a: i32 {divisibility = 8}, %b: !ptr<f32>, %c: tensor<4xi32>, %d: i32, %e: !ptr<f32> {divisibility = 32}) {
		entry:
			ret
		}`)
	if err != nil {
		t.Fatal(err)
	}
	a := Run(fn, config.Target{AlignmentCap: 16, PointerDivisibility: 4})
	want := map[string]int64{
		"%a": 8,  // declared hint
		"%b": 4,  // unhinted pointer, target default
		"%c": 1,  // tensor parameter, no information
		"%d": 1,  // unhinted integer
		"%e": 32, // hint wins over the target default
	}
	for _, p := range fn.Params() {
		info := a.Value(p)
		if got := info.Divisibility[0]; got != want[p.Name()] {
			t.Errorf("%s: divisibility = %d, want %d", p.Name(), got, want[p.Name()])
		}
		if info.Contiguity[0] != 1 || info.Constancy[0] != 1 || info.Constant != nil {
			t.Errorf("%s: seed carries more than divisibility: %v", p.Name(), info)
		}
	}
}

func TestUnsupportedOpsPinned(t *testing.T) {
	a, vals := analyze(t, `
		func @f(%p: tensor<16x!ptr<f32>>) {
		entry:
			%0 = range 0 16 : tensor<16xi32>
			%v = load %p : tensor<16xf32>
			%d = dot %0, %0 : tensor<16x16xi32>
			store %p, %v
			ret
		}`)
	checkValue(t, a, vals["%v"], Pessimistic(1))
	checkValue(t, a, vals["%d"], Pessimistic(2))
	// Informative operands must not leak into a pinned result.
	if got := a.Value(vals["%d"]).Contiguity[0]; got != 1 {
		t.Errorf("dot contiguity = %d", got)
	}
}

func TestLoopConvergence(t *testing.T) {
	// %x joins the entry range with the strided value coming around the
	// backedge: contiguity survives, divisibility settles at gcd with the
	// stride, constancy stays trivial.
	a, vals := analyze(t, `
		func @loop(%n: i32) {
		entry:
			%0 = range 0 16 : tensor<16xi32>
			br ^head(%0)
		head(%x: tensor<16xi32>):
			%c = const 16 : tensor<16xi32>
			%1 = add %x, %c : tensor<16xi32>
			condbr %n, ^head(%1), ^exit
		exit:
			ret
		}`)
	want := New([]int64{16}, []int64{16}, []int64{1}, nil)
	checkValue(t, a, vals["%x"], want)
	checkValue(t, a, vals["%1"], want)
}

func TestPinnedResultUnchangedByLoopRefinement(t *testing.T) {
	// %v is pinned pessimistic on its first visit; %x keeps refining
	// around the backedge afterwards, re-enqueueing the load each time.
	// None of those revisits may disturb the pinned slot.
	a, vals := analyze(t, `
		func @loop(%n: i32) {
		entry:
			%0 = range 0 16 : tensor<16xi32>
			br ^head(%0)
		head(%x: tensor<16xi32>):
			%v = load %x : tensor<16xf32>
			%c = const 16 : tensor<16xi32>
			%1 = add %x, %c : tensor<16xi32>
			condbr %n, ^head(%1), ^exit
		exit:
			ret
		}`)
	checkValue(t, a, vals["%v"], Pessimistic(1))
	// The operand really did refine across the backedge.
	checkValue(t, a, vals["%x"], New([]int64{16}, []int64{16}, []int64{1}, nil))
}

func TestQueries(t *testing.T) {
	src := `
		func @kernel(%base: !ptr<f32> {divisibility = 16}, %n: i32 {divisibility = 8}) {
		entry:
			%idx = range 0 32 : tensor<32xi32>
			%p0 = splat %base : tensor<32x!ptr<f32>>
			%p = addptr %p0, %idx : tensor<32x!ptr<f32>>
			%ns = splat %n : tensor<32xi32>
			%m = cmp slt %idx, %ns : tensor<32xi1>
			%v = load %p, %m : tensor<32xf32>
			ret
		}`
	a, vals := analyze(t, src)
	if got := a.PointerAlignment(vals["%p"]); got != 16 {
		t.Errorf("PointerAlignment = %d, want 16", got)
	}
	if got := a.VectorSize(vals["%p"]); got != 16 {
		t.Errorf("VectorSize = %d, want 16", got)
	}
	if got := a.MaskAlignment(vals["%m"]); got != 8 {
		t.Errorf("MaskAlignment = %d, want 8", got)
	}

	// A tighter target cap clamps the vector width but not the alignment.
	fn, err := ir.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	capped := Run(fn, config.Target{AlignmentCap: 4, PointerDivisibility: 1})
	var p ir.Value
	for _, v := range fn.Values() {
		if v.Name() == "%p" {
			p = v
		}
	}
	if got := capped.PointerAlignment(p); got != 16 {
		t.Errorf("capped PointerAlignment = %d, want 16", got)
	}
	if got := capped.VectorSize(p); got != 4 {
		t.Errorf("capped VectorSize = %d, want 4", got)
	}
}

func TestQueriesOnScalars(t *testing.T) {
	a, vals := analyze(t, `
		func @f(%p: !ptr<f32>, %m: i1) {
		entry:
			ret
		}`)
	if got := a.PointerAlignment(vals["%p"]); got != 1 {
		t.Errorf("PointerAlignment = %d, want 1", got)
	}
	if got := a.VectorSize(vals["%p"]); got != 1 {
		t.Errorf("VectorSize = %d, want 1", got)
	}
	if got := a.MaskAlignment(vals["%m"]); got != 1 {
		t.Errorf("MaskAlignment = %d, want 1", got)
	}
}

func TestVectorSizeClampedByExtent(t *testing.T) {
	// A 4-wide row cannot be vectorized 16 wide no matter the alignment.
	a, vals := analyze(t, `
		func @f(%base: !ptr<f32> {divisibility = 64}) {
		entry:
			%idx = range 0 4 : tensor<4xi32>
			%p0 = splat %base : tensor<4x!ptr<f32>>
			%p = addptr %p0, %idx : tensor<4x!ptr<f32>>
			ret
		}`)
	if got := a.VectorSize(vals["%p"]); got != 4 {
		t.Errorf("VectorSize = %d, want 4", got)
	}
}
