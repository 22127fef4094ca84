package ir

import (
	"fmt"
	"io"
	"strings"
)

func (v *Result) String() string { return v.name }
func (v *Param) String() string  { return v.name }

func (op *Op) String() string {
	var sb strings.Builder
	if len(op.Results) > 0 {
		names := make([]string, len(op.Results))
		for i, r := range op.Results {
			names[i] = r.Name()
		}
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString(" = ")
	}
	sb.WriteString(op.Kind.String())
	switch op.Kind {
	case KindRange:
		fmt.Fprintf(&sb, " %d %d", op.Attrs.Start, op.Attrs.End)
	case KindConstant:
		fmt.Fprintf(&sb, " %d", op.Attrs.Value)
	case KindExpandDims:
		fmt.Fprintf(&sb, " %d", op.Attrs.Axis)
	case KindCmp:
		fmt.Fprintf(&sb, " %s", op.Attrs.Pred)
	}
	if op.Kind == KindBr || op.Kind == KindCondBr {
		if op.Kind == KindCondBr {
			fmt.Fprintf(&sb, " %s,", op.Operands[0].Name())
		}
		for i, d := range op.Dests {
			if i > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, " ^%s", d.Block.Name)
			if len(d.Args) > 0 {
				names := make([]string, len(d.Args))
				for j, a := range d.Args {
					names[j] = a.Name()
				}
				fmt.Fprintf(&sb, "(%s)", strings.Join(names, ", "))
			}
		}
	} else {
		for i, v := range op.Operands {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(" " + v.Name())
		}
	}
	if len(op.Results) > 0 {
		fmt.Fprintf(&sb, " : %s", op.Results[0].Type())
	}
	return sb.String()
}

// WriteFunction writes f in the textual form understood by Parse.
func WriteFunction(w io.Writer, f *Function) {
	fmt.Fprintf(w, "func @%s(", f.Name)
	for i, p := range f.Params() {
		if i > 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprintf(w, "%s: %s", p.Name(), p.Type())
		if p.Divisibility != 0 {
			fmt.Fprintf(w, " {divisibility = %d}", p.Divisibility)
		}
	}
	fmt.Fprint(w, ") {\n")
	for _, b := range f.Blocks {
		fmt.Fprintf(w, "%s", b.Name)
		if b != f.Entry() && len(b.Params) > 0 {
			names := make([]string, len(b.Params))
			for i, p := range b.Params {
				names[i] = fmt.Sprintf("%s: %s", p.Name(), p.Type())
			}
			fmt.Fprintf(w, "(%s)", strings.Join(names, ", "))
		}
		fmt.Fprint(w, ":\n")
		for _, op := range b.Ops {
			fmt.Fprintf(w, "  %s\n", op)
		}
	}
	fmt.Fprint(w, "}\n")
}

func (f *Function) String() string {
	var sb strings.Builder
	WriteFunction(&sb, f)
	return sb.String()
}
