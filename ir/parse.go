package ir

// Textual form of the IR, mostly for tests and the axisdump tool. The
// grammar is line-oriented:
//
//	func @kernel(%ptr: tensor<1024x!ptr<f32>> {divisibility = 16}, %n: i32) {
//	entry:
//	  %0 = range 0 1024 : tensor<1024xi32>
//	  %1 = splat %n : tensor<1024xi32>
//	  %2 = add %0, %1 : tensor<1024xi32>
//	  condbr %c, ^loop(%2), ^done
//	  ret
//	}
//
// Value names are taken verbatim from the source. Branch targets may refer
// to blocks that appear later in the function; they are resolved after all
// blocks have been read.

import (
	"fmt"
	"strconv"
	"strings"
)

type itemType int

const (
	itemEOF itemType = iota
	itemWord
	itemNumber
	itemLParen
	itemRParen
	itemLBrace
	itemRBrace
	itemLBrack
	itemRBrack
	itemLAngle
	itemRAngle
	itemColon
	itemComma
	itemEq
)

type item struct {
	typ  itemType
	val  string
	line int
}

func (it item) String() string {
	switch it.typ {
	case itemEOF:
		return "end of input"
	default:
		return strconv.Quote(it.val)
	}
}

type lexer struct {
	input string
	pos   int
	line  int
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '.'
}

func (l *lexer) lex() ([]item, error) {
	var items []item
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '/' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '/':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
		case c == '%' || c == '@' || c == '^' || c == '!':
			start := l.pos
			l.pos++
			for l.pos < len(l.input) && isWordByte(l.input[l.pos]) {
				l.pos++
			}
			if l.pos == start+1 {
				return nil, fmt.Errorf("line %d: dangling %q", l.line, c)
			}
			items = append(items, item{itemWord, l.input[start:l.pos], l.line})
		case c >= '0' && c <= '9' || c == '-':
			start := l.pos
			l.pos++
			for l.pos < len(l.input) && isWordByte(l.input[l.pos]) {
				l.pos++
			}
			word := l.input[start:l.pos]
			if _, err := strconv.ParseInt(word, 10, 64); err == nil {
				items = append(items, item{itemNumber, word, l.line})
			} else {
				// Shape words such as "4x8xi32" reach the parser whole.
				items = append(items, item{itemWord, word, l.line})
			}
		case isWordByte(c):
			start := l.pos
			for l.pos < len(l.input) && isWordByte(l.input[l.pos]) {
				l.pos++
			}
			items = append(items, item{itemWord, l.input[start:l.pos], l.line})
		default:
			typ, ok := map[byte]itemType{
				'(': itemLParen, ')': itemRParen,
				'{': itemLBrace, '}': itemRBrace,
				'[': itemLBrack, ']': itemRBrack,
				'<': itemLAngle, '>': itemRAngle,
				':': itemColon, ',': itemComma, '=': itemEq,
			}[c]
			if !ok {
				return nil, fmt.Errorf("line %d: unexpected character %q", l.line, c)
			}
			items = append(items, item{typ, string(c), l.line})
			l.pos++
		}
	}
	items = append(items, item{itemEOF, "", l.line})
	return items, nil
}

type parser struct {
	items []item
	pos   int

	fn     *Function
	values map[string]Value
	blocks map[string]*Block
	// branch targets are resolved after all blocks have been parsed
	pending []pendingDest
}

type pendingDest struct {
	from *Block
	dest *Dest
	name string
	line int
}

func (p *parser) next() item {
	it := p.items[p.pos]
	if it.typ != itemEOF {
		p.pos++
	}
	return it
}

func (p *parser) peek() item { return p.items[p.pos] }

func (p *parser) accept(typ itemType) (item, bool) {
	if p.items[p.pos].typ == typ {
		return p.next(), true
	}
	return item{}, false
}

func (p *parser) expect(typ itemType, what string) (item, error) {
	it, ok := p.accept(typ)
	if !ok {
		got := p.peek()
		return item{}, fmt.Errorf("line %d: expected %s, got %s", got.line, what, got)
	}
	return it, nil
}

func (p *parser) expectWord(word string) error {
	it := p.peek()
	if it.typ != itemWord || it.val != word {
		return fmt.Errorf("line %d: expected %q, got %s", it.line, word, it)
	}
	p.next()
	return nil
}

func (p *parser) number() (int64, error) {
	it, err := p.expect(itemNumber, "integer")
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(it.val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %v", it.line, err)
	}
	return n, nil
}

// Parse reads a single function in textual IR form.
func Parse(src string) (*Function, error) {
	l := &lexer{input: src, line: 1}
	items, err := l.lex()
	if err != nil {
		return nil, err
	}
	p := &parser{
		items:  items,
		values: map[string]Value{},
		blocks: map[string]*Block{},
	}
	if err := p.function(); err != nil {
		return nil, err
	}
	if _, ok := p.accept(itemEOF); !ok {
		it := p.peek()
		return nil, fmt.Errorf("line %d: trailing input starting at %s", it.line, it)
	}
	return p.fn, nil
}

func (p *parser) function() error {
	if err := p.expectWord("func"); err != nil {
		return err
	}
	name, err := p.expect(itemWord, "function name")
	if err != nil {
		return err
	}
	if !strings.HasPrefix(name.val, "@") {
		return fmt.Errorf("line %d: function name must start with @", name.line)
	}
	p.fn = &Function{Name: name.val[1:]}
	entry := p.fn.NewBlock("entry")

	if _, err := p.expect(itemLParen, "("); err != nil {
		return err
	}
	if _, ok := p.accept(itemRParen); !ok {
		for {
			if err := p.param(entry, true); err != nil {
				return err
			}
			if _, ok := p.accept(itemComma); !ok {
				break
			}
		}
		if _, err := p.expect(itemRParen, ")"); err != nil {
			return err
		}
	}
	if _, err := p.expect(itemLBrace, "{"); err != nil {
		return err
	}
	for {
		if _, ok := p.accept(itemRBrace); ok {
			break
		}
		if err := p.block(); err != nil {
			return err
		}
	}
	return p.resolveDests()
}

// param parses "%name: type" with an optional {divisibility = n} suffix for
// entry parameters.
func (p *parser) param(b *Block, entry bool) error {
	name, err := p.expect(itemWord, "parameter name")
	if err != nil {
		return err
	}
	if !strings.HasPrefix(name.val, "%") {
		return fmt.Errorf("line %d: parameter name must start with %%", name.line)
	}
	if _, err := p.expect(itemColon, ":"); err != nil {
		return err
	}
	typ, err := p.typ()
	if err != nil {
		return err
	}
	param := b.NewParam(typ)
	param.name = name.val
	if _, ok := p.values[name.val]; ok {
		return fmt.Errorf("line %d: redefinition of %s", name.line, name.val)
	}
	p.values[name.val] = param

	if _, ok := p.accept(itemLBrace); ok {
		if !entry {
			return fmt.Errorf("line %d: attributes are only allowed on function parameters", name.line)
		}
		if err := p.expectWord("divisibility"); err != nil {
			return err
		}
		if _, err := p.expect(itemEq, "="); err != nil {
			return err
		}
		n, err := p.number()
		if err != nil {
			return err
		}
		if n < 1 {
			return fmt.Errorf("line %d: divisibility must be positive", name.line)
		}
		param.Divisibility = n
		if _, err := p.expect(itemRBrace, "}"); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) block() error {
	label, err := p.expect(itemWord, "block label")
	if err != nil {
		return err
	}
	var b *Block
	if label.val == "entry" {
		b = p.fn.Entry()
	} else {
		b = p.fn.NewBlock(label.val)
		if _, ok := p.accept(itemLParen); ok {
			for {
				if err := p.param(b, false); err != nil {
					return err
				}
				if _, ok := p.accept(itemComma); !ok {
					break
				}
			}
			if _, err := p.expect(itemRParen, ")"); err != nil {
				return err
			}
		}
	}
	if _, ok := p.blocks[b.Name]; ok {
		return fmt.Errorf("line %d: duplicate block %q", label.line, b.Name)
	}
	p.blocks[b.Name] = b
	if _, err := p.expect(itemColon, ":"); err != nil {
		return err
	}
	for {
		it := p.peek()
		if it.typ == itemRBrace || it.typ == itemEOF {
			return nil
		}
		if it.typ == itemWord {
			// A bare word that is neither a mnemonic nor a value name
			// starts the next block's label.
			if _, ok := KindByName[it.val]; !ok && !strings.HasPrefix(it.val, "%") {
				return nil
			}
		}
		if err := p.op(b); err != nil {
			return err
		}
		if op := b.Control(); op != nil {
			return nil
		}
	}
}

func (p *parser) op(b *Block) error {
	var resultNames []string
	it := p.peek()
	for it.typ == itemWord && strings.HasPrefix(it.val, "%") {
		p.next()
		resultNames = append(resultNames, it.val)
		if _, ok := p.accept(itemComma); !ok {
			break
		}
		it = p.peek()
	}
	if len(resultNames) > 0 {
		if _, err := p.expect(itemEq, "="); err != nil {
			return err
		}
	}
	mn, err := p.expect(itemWord, "operation mnemonic")
	if err != nil {
		return err
	}
	kind, ok := KindByName[mn.val]
	if !ok {
		return fmt.Errorf("line %d: unknown operation %q", mn.line, mn.val)
	}

	var attrs Attrs
	switch kind {
	case KindRange:
		if attrs.Start, err = p.number(); err != nil {
			return err
		}
		if attrs.End, err = p.number(); err != nil {
			return err
		}
		if attrs.End < attrs.Start {
			return fmt.Errorf("line %d: empty range [%d, %d)", mn.line, attrs.Start, attrs.End)
		}
	case KindConstant:
		if attrs.Value, err = p.number(); err != nil {
			return err
		}
	case KindExpandDims:
		axis, err := p.number()
		if err != nil {
			return err
		}
		attrs.Axis = int(axis)
	case KindCmp:
		pw, err := p.expect(itemWord, "comparison predicate")
		if err != nil {
			return err
		}
		pred, ok := PredicateByName[pw.val]
		if !ok {
			return fmt.Errorf("line %d: unknown predicate %q", pw.line, pw.val)
		}
		attrs.Pred = pred
	case KindBr, KindCondBr:
		return p.branch(b, kind, mn.line)
	case KindRet:
		b.EmitRet()
		return nil
	}

	var operands []Value
	for {
		it := p.peek()
		if it.typ != itemWord || !strings.HasPrefix(it.val, "%") {
			break
		}
		p.next()
		v, ok := p.values[it.val]
		if !ok {
			return fmt.Errorf("line %d: undefined value %s", it.line, it.val)
		}
		operands = append(operands, v)
		if _, ok := p.accept(itemComma); !ok {
			break
		}
	}

	var typ Type
	if len(resultNames) > 0 {
		if _, err := p.expect(itemColon, ":"); err != nil {
			return err
		}
		if typ, err = p.typ(); err != nil {
			return err
		}
	}

	if err := checkOp(kind, attrs, operands, typ, mn.line); err != nil {
		return err
	}

	if len(resultNames) == 0 {
		b.EmitVoid(kind, attrs, operands...)
		return nil
	}
	if len(resultNames) != 1 {
		return fmt.Errorf("line %d: %s produces one result", mn.line, kind)
	}
	r := b.Emit(kind, typ, attrs, operands...)
	r.name = resultNames[0]
	if _, ok := p.values[r.name]; ok {
		return fmt.Errorf("line %d: redefinition of %s", mn.line, r.name)
	}
	p.values[r.name] = r
	return nil
}

func (p *parser) branch(b *Block, kind Kind, line int) error {
	op := &Op{Kind: kind, block: b}
	if kind == KindCondBr {
		cw, err := p.expect(itemWord, "condition value")
		if err != nil {
			return err
		}
		cond, ok := p.values[cw.val]
		if !ok {
			return fmt.Errorf("line %d: undefined value %s", cw.line, cw.val)
		}
		op.Operands = append(op.Operands, cond)
		if _, err := p.expect(itemComma, ","); err != nil {
			return err
		}
	}
	for {
		lw, err := p.expect(itemWord, "branch target")
		if err != nil {
			return err
		}
		if !strings.HasPrefix(lw.val, "^") {
			return fmt.Errorf("line %d: branch target must start with ^", lw.line)
		}
		d := &Dest{}
		if _, ok := p.accept(itemLParen); ok {
			for {
				aw, err := p.expect(itemWord, "branch argument")
				if err != nil {
					return err
				}
				v, ok := p.values[aw.val]
				if !ok {
					return fmt.Errorf("line %d: undefined value %s", aw.line, aw.val)
				}
				d.Args = append(d.Args, v)
				op.Operands = append(op.Operands, v)
				if _, ok := p.accept(itemComma); !ok {
					break
				}
			}
			if _, err := p.expect(itemRParen, ")"); err != nil {
				return err
			}
		}
		op.Dests = append(op.Dests, d)
		p.pending = append(p.pending, pendingDest{from: b, dest: d, name: lw.val[1:], line: lw.line})
		if _, ok := p.accept(itemComma); !ok {
			break
		}
	}
	for _, v := range op.Operands {
		refs := v.Referrers()
		*refs = append(*refs, op)
	}
	b.Ops = append(b.Ops, op)
	return nil
}

func (p *parser) resolveDests() error {
	for _, pd := range p.pending {
		target, ok := p.blocks[pd.name]
		if !ok {
			return fmt.Errorf("line %d: branch to undefined block %q", pd.line, pd.name)
		}
		if len(pd.dest.Args) != len(target.Params) {
			return fmt.Errorf("line %d: block %q takes %d arguments, got %d",
				pd.line, pd.name, len(target.Params), len(pd.dest.Args))
		}
		for i, a := range pd.dest.Args {
			if !sameShape(a.Type(), target.Params[i].Type()) {
				return fmt.Errorf("line %d: argument %d of branch to %q has shape %v, parameter has %v",
					pd.line, i, pd.name, Shape(a.Type()), Shape(target.Params[i].Type()))
			}
		}
		pd.dest.Block = target
		addEdge(pd.from, target)
	}
	return nil
}

// typ parses a type: i32, f16, !ptr<i32>, tensor<4x8xi32>,
// tensor<16x!ptr<f32>, [0]>.
func (p *parser) typ() (Type, error) {
	it, err := p.expect(itemWord, "type")
	if err != nil {
		return nil, err
	}
	switch {
	case it.val == "tensor":
		return p.tensor(it.line)
	case it.val == "!ptr":
		if _, err := p.expect(itemLAngle, "<"); err != nil {
			return nil, err
		}
		elem, err := p.typ()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(itemRAngle, ">"); err != nil {
			return nil, err
		}
		return Ptr{Elem: elem}, nil
	default:
		return scalarType(it.val, it.line)
	}
}

func scalarType(word string, line int) (Type, error) {
	if len(word) >= 2 && (word[0] == 'i' || word[0] == 'f') {
		if bits, err := strconv.Atoi(word[1:]); err == nil && bits > 0 {
			if word[0] == 'i' {
				return Int{Bits: bits}, nil
			}
			return Float{Bits: bits}, nil
		}
	}
	return nil, fmt.Errorf("line %d: unknown type %q", line, word)
}

// tensor parses the body of a tensor type. The shape and a scalar element
// type arrive fused in one word, e.g. "4x8xi32"; a pointer element type
// follows the shape word, e.g. "16x" "!ptr" "<" "f32" ">".
func (p *parser) tensor(line int) (Type, error) {
	if _, err := p.expect(itemLAngle, "<"); err != nil {
		return nil, err
	}
	var t Tensor
	it, err := p.expect(itemWord, "tensor shape")
	if err != nil {
		return nil, err
	}
	parts := strings.Split(it.val, "x")
	for i, part := range parts {
		if part == "" && i == len(parts)-1 {
			// The word ended in "x"; the element type is a separate token.
			break
		}
		if n, err := strconv.ParseInt(part, 10, 64); err == nil {
			if n < 1 {
				return nil, fmt.Errorf("line %d: invalid extent %d", it.line, n)
			}
			t.Shape = append(t.Shape, n)
			continue
		}
		if i != len(parts)-1 || part == "" {
			return nil, fmt.Errorf("line %d: malformed tensor shape %q", it.line, it.val)
		}
		elem, err := scalarType(part, it.line)
		if err != nil {
			return nil, err
		}
		t.Elem = elem
	}
	if t.Elem == nil {
		// The shape word ended in "x"; a non-scalar element type follows.
		elem, err := p.typ()
		if err != nil {
			return nil, err
		}
		t.Elem = elem
	}
	if len(t.Shape) == 0 {
		return nil, fmt.Errorf("line %d: tensor type without a shape", line)
	}
	if _, ok := p.accept(itemComma); ok {
		if _, err := p.expect(itemLBrack, "["); err != nil {
			return nil, err
		}
		for {
			d, err := p.number()
			if err != nil {
				return nil, err
			}
			if d < 0 || int(d) >= len(t.Shape) {
				return nil, fmt.Errorf("line %d: axis %d out of range for rank %d", line, d, len(t.Shape))
			}
			t.Order = append(t.Order, int(d))
			if _, ok := p.accept(itemComma); !ok && p.peek().typ != itemNumber {
				break
			}
		}
		if _, err := p.expect(itemRBrack, "]"); err != nil {
			return nil, err
		}
		if len(t.Order) != len(t.Shape) {
			return nil, fmt.Errorf("line %d: order must be a permutation of %d axes", line, len(t.Shape))
		}
		seen := make([]bool, len(t.Shape))
		for _, d := range t.Order {
			if seen[d] {
				return nil, fmt.Errorf("line %d: duplicate axis %d in order", line, d)
			}
			seen[d] = true
		}
	}
	if _, err := p.expect(itemRAngle, ">"); err != nil {
		return nil, err
	}
	return t, nil
}

// checkOp enforces the shape discipline the analysis relies on: the graph it
// sees is assumed to be type checked, so violations are rejected here, at
// the boundary.
func checkOp(kind Kind, attrs Attrs, operands []Value, typ Type, line int) error {
	wantOperands := func(n int) error {
		if len(operands) != n {
			return fmt.Errorf("line %d: %s takes %d operands, got %d", line, kind, n, len(operands))
		}
		return nil
	}
	switch kind {
	case KindRange:
		if err := wantOperands(0); err != nil {
			return err
		}
		tt, ok := typ.(Tensor)
		if !ok || tt.Rank() != 1 {
			return fmt.Errorf("line %d: range result must be a 1-D tensor", line)
		}
		if tt.Shape[0] != attrs.End-attrs.Start {
			return fmt.Errorf("line %d: range [%d, %d) does not match extent %d",
				line, attrs.Start, attrs.End, tt.Shape[0])
		}
	case KindConstant:
		return wantOperands(0)
	case KindAdd, KindSub, KindAddPtr, KindMul, KindDivS, KindDivU, KindRemS, KindRemU,
		KindAnd, KindOr, KindXor, KindCmp:
		if err := wantOperands(2); err != nil {
			return err
		}
		for _, v := range operands {
			if !sameShape(v.Type(), typ) {
				return fmt.Errorf("line %d: %s operand %s has shape %v, result has %v",
					line, kind, v.Name(), Shape(v.Type()), Shape(typ))
			}
		}
	case KindSelect:
		if err := wantOperands(3); err != nil {
			return err
		}
		// The condition is either a scalar or a mask of the result's shape.
		if _, ok := operands[0].Type().(Tensor); ok && !sameShape(operands[0].Type(), typ) {
			return fmt.Errorf("line %d: select condition %s has shape %v, result has %v",
				line, operands[0].Name(), Shape(operands[0].Type()), Shape(typ))
		}
		for _, v := range operands[1:] {
			if !sameShape(v.Type(), typ) {
				return fmt.Errorf("line %d: select operand %s has shape %v, result has %v",
					line, v.Name(), Shape(v.Type()), Shape(typ))
			}
		}
	case KindSplat:
		if err := wantOperands(1); err != nil {
			return err
		}
		if _, ok := operands[0].Type().(Tensor); ok {
			return fmt.Errorf("line %d: splat operand must be a scalar", line)
		}
	case KindBroadcast:
		if err := wantOperands(1); err != nil {
			return err
		}
		src, dst := Shape(operands[0].Type()), Shape(typ)
		if len(src) != len(dst) {
			return fmt.Errorf("line %d: broadcast changes rank %d to %d", line, len(src), len(dst))
		}
		for d := range src {
			if src[d] != dst[d] && src[d] != 1 {
				return fmt.Errorf("line %d: broadcast axis %d: extent %d to %d", line, d, src[d], dst[d])
			}
		}
	case KindExpandDims:
		if err := wantOperands(1); err != nil {
			return err
		}
		src, dst := Shape(operands[0].Type()), Shape(typ)
		if len(dst) != len(src)+1 || attrs.Axis < 0 || attrs.Axis >= len(dst) || dst[attrs.Axis] != 1 {
			return fmt.Errorf("line %d: expand_dims %d: shape %v to %v", line, attrs.Axis, src, dst)
		}
	case KindExtS, KindExtU, KindTrunc, KindBitcast, KindPtrToInt, KindIntToPtr, KindLayoutCast:
		if err := wantOperands(1); err != nil {
			return err
		}
		if !sameShape(operands[0].Type(), typ) {
			return fmt.Errorf("line %d: %s must preserve shape", line, kind)
		}
	case KindLoad:
		if len(operands) != 1 && len(operands) != 2 {
			return fmt.Errorf("line %d: load takes a pointer and an optional mask", line)
		}
	case KindStore:
		if len(operands) != 2 && len(operands) != 3 {
			return fmt.Errorf("line %d: store takes a pointer, a value, and an optional mask", line)
		}
	case KindDot:
		return wantOperands(2)
	}
	return nil
}
