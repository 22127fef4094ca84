// Package dfa provides a generic worklist driver for forward data-flow
// analyses over the Slate IR.
package dfa

import (
	"fmt"
	"log"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/slate-lang/slate/ir"
)

const debugging = false

func debugf(f string, args ...any) {
	if debugging {
		log.Printf(f, args...)
	}
}

// Elem is the constraint on lattice elements. Elements here are structural
// (slice-backed) rather than comparable, so equality is a method.
type Elem[S any] interface {
	Equal(S) bool
}

// Join defines the merge operation of the lattice. It must be commutative
// and associative. The driver handles the ⊥ element itself: all values start
// at ⊥ (the framework's Bottom), Join(⊥, x) = x, and Join is never invoked
// with two ⊥ arguments.
type Join[S Elem[S]] func(S, S) S

// Mapping maps a single IR value to an abstract state.
//
// A Fixed mapping pins the value: once applied, no later join may change the
// slot. Transfer functions return fixed mappings for operations they cannot
// say anything about, so that repeated visits cause no churn.
type Mapping[S Elem[S]] struct {
	Value ir.Value
	State S
	Fixed bool
}

func (m Mapping[S]) String() string {
	return fmt.Sprintf("%s = %v", m.Value.Name(), m.State)
}

// M is a helper for constructing instances of [Mapping].
func M[S Elem[S]](v ir.Value, s S) Mapping[S] {
	return Mapping[S]{Value: v, State: s}
}

// Framework describes a monotone data-flow framework ⟨S, ∨, Transfer⟩.
//
// Transfer implements the transfer function. Given a non-terminator
// operation, it returns zero or more mappings from IR values to abstract
// states. It must be a pure function of its operands' states and must be
// monotone: repeated application may only refine a value along a descending
// chain of the lattice, never oscillate. Terminators are handled by the
// driver itself, which joins branch arguments into the target block's
// parameters; Transfer is not called for them.
type Framework[S Elem[S]] struct {
	Join     Join[S]
	Transfer func(*Instance[S], *ir.Op) []Mapping[S]
	Bottom   S
}

// Start returns a new instance of the framework.
func (fw *Framework[S]) Start() *Instance[S] {
	return &Instance[S]{
		Framework: fw,
		Mapping:   map[ir.Value]Mapping[S]{},
	}
}

// Forward combines [Framework.Start] and [Instance.Forward].
func (fw *Framework[S]) Forward(fn *ir.Function) *Instance[S] {
	ins := fw.Start()
	ins.Forward(fn)
	return ins
}

// Instance is one run of a data-flow analysis. The mapping is written only
// by the driver, and only through join; transfer functions observe immutable
// snapshots.
type Instance[S Elem[S]] struct {
	Framework *Framework[S]
	// Mapping is the result of the analysis. Use [Instance.Value] instead of
	// accessing it directly; Value correctly returns ⊥ for missing entries.
	Mapping map[ir.Value]Mapping[S]
}

// Set maps v to the abstract state s, bypassing join. It should only be used
// before calling [Instance.Forward], to seed initial states.
func (ins *Instance[S]) Set(v ir.Value, s S) {
	ins.Mapping[v] = Mapping[S]{Value: v, State: s}
}

// Value returns the abstract state of v. If none was set, it returns ⊥.
func (ins *Instance[S]) Value(v ir.Value) S {
	if m, ok := ins.Mapping[v]; ok {
		return m.State
	}
	return ins.Framework.Bottom
}

// Known reports whether v has left the ⊥ state.
func (ins *Instance[S]) Known(v ir.Value) bool {
	_, ok := ins.Mapping[v]
	return ok
}

// Forward runs the analysis on fn to a fixpoint.
func (ins *Instance[S]) Forward(fn *ir.Function) {
	debugf("analyzing %s", fn.Name)

	worklist := map[*ir.Op]struct{}{}
	for _, b := range fn.Blocks {
		for _, op := range b.Ops {
			worklist[op] = struct{}{}
		}
	}
	for len(worklist) > 0 {
		var op *ir.Op
		for op = range worklist {
			break
		}
		delete(worklist, op)

		var ms []Mapping[S]
		if op.IsTerminator() {
			// Branch arguments flow into the target block's parameters.
			// Joining here, once per predecessor edge, is the block-argument
			// analogue of a φ node.
			for _, d := range op.Dests {
				for i, arg := range d.Args {
					if ins.Known(arg) {
						ms = append(ms, M(d.Block.Params[i], ins.Value(arg)))
					}
				}
			}
		} else {
			ms = ins.Framework.Transfer(ins, op)
		}

		for _, m := range ms {
			old, known := ins.Mapping[m.Value]
			if known && old.Fixed {
				continue
			}
			nw := m.State
			if known && !m.Fixed {
				nw = ins.Framework.Join(old.State, m.State)
				if nw.Equal(old.State) {
					continue
				}
				debugf("join(%v, %v) = %v", old.State, m.State, nw)
			}
			ins.Mapping[m.Value] = Mapping[S]{Value: m.Value, State: nw, Fixed: m.Fixed}
			if known && nw.Equal(old.State) {
				continue
			}
			for _, ref := range *m.Value.Referrers() {
				worklist[ref] = struct{}{}
			}
		}
		printMapping(fn, ins.Mapping)
	}
}

func printMapping[S Elem[S]](fn *ir.Function, m map[ir.Value]Mapping[S]) {
	if !debugging {
		return
	}

	debugf("mapping for %s:", fn.Name)
	keys := make([]ir.Value, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b ir.Value) int {
		return strings.Compare(a.Name(), b.Name())
	})
	for _, k := range keys {
		debugf("\t%v", m[k])
	}
}

// Propagate is a helper for creating a [Mapping] that copies the abstract
// state of src to dst.
func (ins *Instance[S]) Propagate(dst, src ir.Value) Mapping[S] {
	return M(dst, ins.Value(src))
}
