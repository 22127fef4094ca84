package ir

import (
	"strings"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	// Parsing the printed form must reproduce the printed form exactly.
	src := `
		// offsets into a row-major tile
		func @kernel(%ptr: tensor<32x!ptr<f32>> {divisibility = 16}, %n: i32) {
		entry:
			%0 = range 0 32 : tensor<32xi32>
			%1 = splat %n : tensor<32xi32>
			%2 = add %0, %1 : tensor<32xi32>
			%3 = expand_dims 0 %2 : tensor<1x32xi32>
			%4 = broadcast %3 : tensor<4x32xi32>
			%5 = layoutcast %4 : tensor<4x32xi32, [0 1]>
			%6 = cmp slt %0, %1 : tensor<32xi1>
			%7 = addptr %ptr, %2 : tensor<32x!ptr<f32>>
			%8 = load %7, %6 : tensor<32xf32>
			store %7, %8, %6
			condbr %n, ^loop(%2), ^done
		loop(%x: tensor<32xi32>):
			%9 = const 4 : tensor<32xi32>
			%10 = divs %x, %9 : tensor<32xi32>
			br ^done
		done:
			ret
		}`
	fn, err := Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	printed := fn.String()
	fn2, err := Parse(printed)
	if err != nil {
		t.Fatalf("reparsing printed form: %v\n%s", err, printed)
	}
	if again := fn2.String(); again != printed {
		t.Errorf("print/parse/print is not stable:\n%s\nvs\n%s", printed, again)
	}
}

func TestParseStructure(t *testing.T) {
	fn, err := Parse(`
		func @f(%n: i32 {divisibility = 8}) {
		entry:
			%0 = range 0 16 : tensor<16xi32>
			br ^head(%0)
		head(%x: tensor<16xi32>):
			%1 = const 1 : tensor<16xi32>
			%2 = add %x, %1 : tensor<16xi32>
			condbr %n, ^head(%2), ^exit
		exit:
			ret
		}`)
	if err != nil {
		t.Fatal(err)
	}
	if fn.Name != "f" {
		t.Errorf("name = %q", fn.Name)
	}
	if len(fn.Blocks) != 3 {
		t.Fatalf("got %d blocks", len(fn.Blocks))
	}
	if fn.Params()[0].Divisibility != 8 {
		t.Errorf("divisibility hint = %d", fn.Params()[0].Divisibility)
	}

	entry, head, exit := fn.Blocks[0], fn.Blocks[1], fn.Blocks[2]
	if head.Name != "head" || len(head.Params) != 1 {
		t.Fatalf("head: %q with %d params", head.Name, len(head.Params))
	}
	// The forward reference to ^head resolved to the block itself.
	br := entry.Control()
	if br == nil || br.Kind != KindBr || br.Dests[0].Block != head {
		t.Fatalf("entry terminator: %v", br)
	}
	condbr := head.Control()
	if condbr.Kind != KindCondBr || condbr.Dests[0].Block != head || condbr.Dests[1].Block != exit {
		t.Fatalf("head terminator: %v", condbr)
	}
	if len(head.Preds) != 2 || len(head.Succs) != 2 {
		t.Errorf("head edges: %d preds, %d succs", len(head.Preds), len(head.Succs))
	}

	// %x is used by the add and, via the branch argument %2, fed by condbr.
	x := head.Params[0]
	if refs := *x.Referrers(); len(refs) != 1 || refs[0].Kind != KindAdd {
		t.Errorf("referrers of %%x: %v", refs)
	}
	var add *Op
	for _, op := range head.Ops {
		if op.Kind == KindAdd {
			add = op
		}
	}
	sum := add.Results[0]
	if refs := *sum.Referrers(); len(refs) != 1 || refs[0] != condbr {
		t.Errorf("referrers of %%2: %v", refs)
	}
	if got := len(fn.Values()); got != 5 {
		t.Errorf("got %d values, want 5", got)
	}
}

func TestParseAttrs(t *testing.T) {
	fn, err := Parse(`
		func @f() {
		entry:
			%0 = range 4 20 : tensor<16xi32>
			%1 = const -12 : i32
			%2 = expand_dims 1 %0 : tensor<16x1xi32>
			ret
		}`)
	if err != nil {
		t.Fatal(err)
	}
	ops := fn.Entry().Ops
	if a := ops[0].Attrs; a.Start != 4 || a.End != 20 {
		t.Errorf("range attrs: %+v", a)
	}
	if a := ops[1].Attrs; a.Value != -12 {
		t.Errorf("const attrs: %+v", a)
	}
	if a := ops[2].Attrs; a.Axis != 1 {
		t.Errorf("expand_dims attrs: %+v", a)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown op",
			"func @f() {\nentry:\n%0 = frobnicate : i32\nret\n}",
			"unknown operation"},
		{"undefined value",
			"func @f() {\nentry:\n%0 = add %a, %b : i32\nret\n}",
			"undefined value"},
		{"redefined value",
			"func @f() {\nentry:\n%0 = const 1 : i32\n%0 = const 2 : i32\nret\n}",
			"redefinition"},
		{"redefined parameter",
			"func @f(%a: i32, %a: i32) {\nentry:\nret\n}",
			"redefinition"},
		{"undefined block",
			"func @f() {\nentry:\nbr ^nope\n}",
			"undefined block"},
		{"branch arg count",
			"func @f() {\nentry:\nbr ^head\nhead(%x: i32):\nret\n}",
			"takes 1 arguments"},
		{"branch arg shape",
			"func @f(%n: i32) {\nentry:\nbr ^head(%n)\nhead(%x: tensor<4xi32>):\nret\n}",
			"has shape"},
		{"range extent",
			"func @f() {\nentry:\n%0 = range 0 8 : tensor<4xi32>\nret\n}",
			"does not match extent"},
		{"empty range",
			"func @f() {\nentry:\n%0 = range 4 2 : tensor<4xi32>\nret\n}",
			"empty range"},
		{"elementwise shape",
			"func @f(%a: tensor<4xi32>, %b: tensor<8xi32>) {\nentry:\n%0 = add %a, %b : tensor<4xi32>\nret\n}",
			"has shape"},
		{"splat of tensor",
			"func @f(%a: tensor<4xi32>) {\nentry:\n%0 = splat %a : tensor<4x4xi32>\nret\n}",
			"must be a scalar"},
		{"select condition shape",
			"func @f(%c: tensor<2xi1>, %a: tensor<4xi32>) {\nentry:\n%0 = select %c, %a, %a : tensor<4xi32>\nret\n}",
			"select condition"},
		{"broadcast rank",
			"func @f(%a: tensor<4xi32>) {\nentry:\n%0 = broadcast %a : tensor<4x4xi32>\nret\n}",
			"changes rank"},
		{"broadcast extent",
			"func @f(%a: tensor<2xi32>) {\nentry:\n%0 = broadcast %a : tensor<4xi32>\nret\n}",
			"broadcast axis"},
		{"expand_dims axis",
			"func @f(%a: tensor<4xi32>) {\nentry:\n%0 = expand_dims 1 %a : tensor<4x2xi32>\nret\n}",
			"expand_dims"},
		{"cast shape",
			"func @f(%a: tensor<4xi32>) {\nentry:\n%0 = trunc %a : tensor<8xi8>\nret\n}",
			"preserve shape"},
		{"attrs on block param",
			"func @f() {\nentry:\nbr ^head\nhead(%x: i32 {divisibility = 4}):\nret\n}",
			"only allowed on function parameters"},
		{"unknown predicate",
			"func @f(%a: i32) {\nentry:\n%0 = cmp foo %a, %a : i1\nret\n}",
			"unknown predicate"},
		{"dangling sigil",
			"func @f() {\nentry:\n% = const 1 : i32\nret\n}",
			"dangling"},
		{"zero extent",
			"func @f(%a: tensor<0xi32>) {\nentry:\nret\n}",
			"invalid extent"},
		{"tensor without shape",
			"func @f(%a: tensor<i32>) {\nentry:\nret\n}",
			"without a shape"},
		{"order not a permutation",
			"func @f(%a: tensor<4x4xi32, [0]>) {\nentry:\nret\n}",
			"permutation"},
		{"order duplicate axis",
			"func @f(%a: tensor<4x4xi32, [0 0]>) {\nentry:\nret\n}",
			"duplicate axis"},
		{"order axis out of range",
			"func @f(%a: tensor<4x4xi32, [2 0]>) {\nentry:\nret\n}",
			"out of range"},
		{"trailing input",
			"func @f() {\nentry:\nret\n}\nfunc",
			"trailing input"},
		{"duplicate block",
			"func @f() {\nentry:\nbr ^head\nhead:\nbr ^head\nhead:\nret\n}",
			"duplicate block"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatal("parse succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
