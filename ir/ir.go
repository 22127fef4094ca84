// Package ir defines the Slate intermediate representation: a graph of
// tensor-valued operations grouped into basic blocks, in the SSA-with-block-
// parameters style. There are no φ instructions; values flow into a block
// through its parameters, carried by the branch arguments of predecessor
// terminators.
package ir

import "fmt"

// A Value is an SSA value: either the result of an operation or a block
// parameter.
type Value interface {
	// Name returns the value's name, e.g. "%3".
	Name() string
	Type() Type
	// Referrers returns the operations that use this value as an operand,
	// including branch arguments of terminators.
	Referrers() *[]*Op
	fmt.Stringer
}

// Kind identifies an operation. The set of kinds is closed; the axis
// analysis dispatches on it exhaustively and treats unlisted kinds
// pessimistically.
type Kind uint8

const (
	KindInvalid Kind = iota

	// Value-producing operations.
	KindRange      // 1-D iota over [start, end)
	KindConstant   // scalar constant or splat tensor constant
	KindAdd        // elementwise integer add
	KindSub        // elementwise integer sub
	KindAddPtr     // pointer + integer offset, elementwise
	KindMul        // elementwise integer mul
	KindDivS       // signed division
	KindDivU       // unsigned division
	KindRemS       // signed remainder
	KindRemU       // unsigned remainder
	KindAnd        // bitwise and
	KindOr         // bitwise or
	KindXor        // bitwise xor
	KindCmp        // integer comparison; predicate in Attrs.Pred
	KindSelect     // cond ? x : y, cond may be a tensor
	KindBroadcast  // stretch unit axes to the result shape
	KindSplat      // scalar → tensor
	KindExpandDims // insert a unit axis at Attrs.Axis

	// Casts. All of these preserve per-axis structure.
	KindExtS
	KindExtU
	KindTrunc
	KindBitcast
	KindPtrToInt
	KindIntToPtr
	KindLayoutCast // reinterpret under a different memory layout

	// Memory and compute operations the axis analysis has no transfer
	// function for.
	KindLoad
	KindStore
	KindDot

	// Terminators.
	KindBr
	KindCondBr
	KindRet
)

var kindNames = [...]string{
	KindInvalid:    "invalid",
	KindRange:      "range",
	KindConstant:   "const",
	KindAdd:        "add",
	KindSub:        "sub",
	KindAddPtr:     "addptr",
	KindMul:        "mul",
	KindDivS:       "divs",
	KindDivU:       "divu",
	KindRemS:       "rems",
	KindRemU:       "remu",
	KindAnd:        "and",
	KindOr:         "or",
	KindXor:        "xor",
	KindCmp:        "cmp",
	KindSelect:     "select",
	KindBroadcast:  "broadcast",
	KindSplat:      "splat",
	KindExpandDims: "expand_dims",
	KindExtS:       "exts",
	KindExtU:       "extu",
	KindTrunc:      "trunc",
	KindBitcast:    "bitcast",
	KindPtrToInt:   "ptrtoint",
	KindIntToPtr:   "inttoptr",
	KindLayoutCast: "layoutcast",
	KindLoad:       "load",
	KindStore:      "store",
	KindDot:        "dot",
	KindBr:         "br",
	KindCondBr:     "condbr",
	KindRet:        "ret",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// KindByName maps mnemonics back to kinds. It is what the textual parser
// dispatches on.
var KindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		if k != int(KindInvalid) {
			m[name] = Kind(k)
		}
	}
	return m
}()

func (k Kind) IsTerminator() bool {
	return k == KindBr || k == KindCondBr || k == KindRet
}

// Predicate is an integer comparison predicate.
type Predicate uint8

const (
	PredEq Predicate = iota
	PredNe
	PredSlt
	PredSle
	PredSgt
	PredSge
	PredUlt
	PredUle
	PredUgt
	PredUge
)

var predNames = [...]string{
	PredEq:  "eq",
	PredNe:  "ne",
	PredSlt: "slt",
	PredSle: "sle",
	PredSgt: "sgt",
	PredSge: "sge",
	PredUlt: "ult",
	PredUle: "ule",
	PredUgt: "ugt",
	PredUge: "uge",
}

func (p Predicate) String() string { return predNames[p] }

// PredicateByName maps mnemonics back to predicates.
var PredicateByName = func() map[string]Predicate {
	m := make(map[string]Predicate, len(predNames))
	for p, name := range predNames {
		m[name] = Predicate(p)
	}
	return m
}()

// Eval evaluates the predicate on two concrete scalars.
func (p Predicate) Eval(lhs, rhs int64) bool {
	switch p {
	case PredEq:
		return lhs == rhs
	case PredNe:
		return lhs != rhs
	case PredSlt:
		return lhs < rhs
	case PredSle:
		return lhs <= rhs
	case PredSgt:
		return lhs > rhs
	case PredSge:
		return lhs >= rhs
	case PredUlt:
		return uint64(lhs) < uint64(rhs)
	case PredUle:
		return uint64(lhs) <= uint64(rhs)
	case PredUgt:
		return uint64(lhs) > uint64(rhs)
	case PredUge:
		return uint64(lhs) >= uint64(rhs)
	default:
		panic(fmt.Sprintf("unknown predicate %d", p))
	}
}

// Attrs holds an operation's literal parameters. Which fields are meaningful
// depends on the kind: Start/End for range, Value for const, Axis for
// expand_dims, Pred for cmp.
type Attrs struct {
	Start, End int64
	Value      int64
	Axis       int
	Pred       Predicate
}

// Dest is one control-flow edge of a terminator: a target block plus the
// values bound to its parameters.
type Dest struct {
	Block *Block
	Args  []Value
}

// An Op is a single operation. Operands and Results are ordered; multi-result
// operations are permitted though none of the current kinds produce more than
// one value.
type Op struct {
	Kind     Kind
	Operands []Value
	Results  []*Result
	Attrs    Attrs
	// Dests is non-nil only for br and condbr.
	Dests []*Dest

	block *Block
}

// Block returns the block containing the operation.
func (op *Op) Block() *Block { return op.block }

func (op *Op) IsTerminator() bool { return op.Kind.IsTerminator() }

// Result is the value produced by an operation.
type Result struct {
	op    *Op
	index int
	name  string
	typ   Type

	referrers []*Op
}

func (v *Result) Name() string      { return v.name }
func (v *Result) Type() Type        { return v.typ }
func (v *Result) Referrers() *[]*Op { return &v.referrers }
func (v *Result) Op() *Op           { return v.op }
func (v *Result) Index() int        { return v.index }

// Param is a block parameter. Parameters of the entry block double as the
// function's arguments and may carry an ABI divisibility hint.
type Param struct {
	block *Block
	index int
	name  string
	typ   Type

	// Divisibility is the declared ABI guarantee that every element of the
	// incoming argument is divisible by this value. Zero means no hint.
	Divisibility int64

	referrers []*Op
}

func (v *Param) Name() string      { return v.name }
func (v *Param) Type() Type        { return v.typ }
func (v *Param) Referrers() *[]*Op { return &v.referrers }
func (v *Param) Block() *Block     { return v.block }
func (v *Param) Index() int        { return v.index }

// A Block is a basic block. Its first len(Params) values are defined by
// control flow; the rest by Ops. The last operation of a complete block is a
// terminator.
type Block struct {
	Name   string
	Params []*Param
	Ops    []*Op
	Preds  []*Block
	Succs  []*Block

	parent *Function
}

func (b *Block) Parent() *Function { return b.parent }

// Control returns the block's terminator, or nil if the block is incomplete.
func (b *Block) Control() *Op {
	if len(b.Ops) == 0 {
		return nil
	}
	if op := b.Ops[len(b.Ops)-1]; op.IsTerminator() {
		return op
	}
	return nil
}

// A Function is a single kernel: an entry block plus any number of further
// blocks. Values are function-local.
type Function struct {
	Name   string
	Blocks []*Block

	nvalues int
}

// Entry returns the function's entry block.
func (f *Function) Entry() *Block { return f.Blocks[0] }

// Params returns the function's arguments, i.e. the entry block's
// parameters.
func (f *Function) Params() []*Param { return f.Entry().Params }

// Values returns every value defined in the function, in definition order.
func (f *Function) Values() []Value {
	var out []Value
	for _, b := range f.Blocks {
		for _, p := range b.Params {
			out = append(out, p)
		}
		for _, op := range b.Ops {
			for _, r := range op.Results {
				out = append(out, r)
			}
		}
	}
	return out
}

func (f *Function) nextName() string {
	name := fmt.Sprintf("%%%d", f.nvalues)
	f.nvalues++
	return name
}

// NewFunction returns a function with a single, empty entry block.
func NewFunction(name string) *Function {
	f := &Function{Name: name}
	f.NewBlock("entry")
	return f
}

// NewBlock appends an empty block to the function.
func (f *Function) NewBlock(name string) *Block {
	b := &Block{Name: name, parent: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewParam appends a parameter of type typ to the block.
func (b *Block) NewParam(typ Type) *Param {
	p := &Param{
		block: b,
		index: len(b.Params),
		name:  b.parent.nextName(),
		typ:   typ,
	}
	b.Params = append(b.Params, p)
	return p
}

// Emit appends an operation with a single result of type typ to the block
// and returns the result.
func (b *Block) Emit(kind Kind, typ Type, attrs Attrs, operands ...Value) *Result {
	op := b.emit(kind, attrs, operands, nil)
	r := &Result{op: op, index: 0, name: b.parent.nextName(), typ: typ}
	op.Results = []*Result{r}
	return r
}

// EmitVoid appends an operation that produces no value, e.g. a store.
func (b *Block) EmitVoid(kind Kind, attrs Attrs, operands ...Value) *Op {
	return b.emit(kind, attrs, operands, nil)
}

// EmitBr appends an unconditional branch to target, binding args to the
// target's parameters.
func (b *Block) EmitBr(target *Block, args ...Value) *Op {
	return b.emit(KindBr, Attrs{}, args, []*Dest{{Block: target, Args: args}})
}

// EmitCondBr appends a conditional branch.
func (b *Block) EmitCondBr(cond Value, then *Block, thenArgs []Value, els *Block, elsArgs []Value) *Op {
	operands := append([]Value{cond}, append(append([]Value{}, thenArgs...), elsArgs...)...)
	return b.emit(KindCondBr, Attrs{}, operands, []*Dest{
		{Block: then, Args: thenArgs},
		{Block: els, Args: elsArgs},
	})
}

// EmitRet appends a return.
func (b *Block) EmitRet() *Op {
	return b.emit(KindRet, Attrs{}, nil, nil)
}

func (b *Block) emit(kind Kind, attrs Attrs, operands []Value, dests []*Dest) *Op {
	op := &Op{
		Kind:     kind,
		Operands: operands,
		Attrs:    attrs,
		Dests:    dests,
		block:    b,
	}
	for _, v := range operands {
		refs := v.Referrers()
		*refs = append(*refs, op)
	}
	for _, d := range dests {
		addEdge(b, d.Block)
	}
	b.Ops = append(b.Ops, op)
	return op
}

// addEdge adds a control-flow graph edge from from to to.
func addEdge(from, to *Block) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}
