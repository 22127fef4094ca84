// axisdump: a tool for displaying the axis analysis results of Slate
// kernels in textual IR form.
package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/slate-lang/slate/analysis/axis"
	"github.com/slate-lang/slate/config"
	"github.com/slate-lang/slate/ir"
)

func main() {
	var targetPath string

	cmd := &cobra.Command{
		Use:          "axisdump [flags] file.slir",
		Short:        "run the axis analysis on a kernel and print the per-value invariants",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tgt := config.Default()
			if targetPath != "" {
				var err error
				if tgt, err = config.Load(targetPath); err != nil {
					return err
				}
			}
			return dump(cmd.OutOrStdout(), args[0], tgt)
		},
	}
	cmd.Flags().StringVar(&targetPath, "target", "", "TOML target description (default: built-in conservative target)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func dump(out io.Writer, path string, tgt config.Target) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fn, err := ir.Parse(string(data))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	a := axis.Run(fn, tgt)

	w := tabwriter.NewWriter(out, 2, 8, 2, ' ', 0)
	fmt.Fprintf(w, "func @%s\n", fn.Name)
	fmt.Fprintln(w, "value\ttype\tcontiguity\tdivisibility\tconstancy\tconstant\tvec\talign\tmask")
	for _, v := range fn.Values() {
		info := a.Value(v)
		constant := "-"
		if info.Constant != nil {
			constant = fmt.Sprintf("%d", *info.Constant)
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%v\t%s\t%d\t%d\t%d\n",
			v.Name(), v.Type(), info.Contiguity, info.Divisibility, info.Constancy,
			constant, a.VectorSize(v), a.PointerAlignment(v), a.MaskAlignment(v))
	}
	return w.Flush()
}
