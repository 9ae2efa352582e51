package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumen-compute/lumen/internal/autodiff"
	"github.com/lumen-compute/lumen/internal/interp"
	"github.com/lumen-compute/lumen/internal/ir"
	"github.com/lumen-compute/lumen/internal/value"
)

// NewDemoCommand creates the demo command: build a small kernel, derive its
// gradient kernel, run one dispatch and print the report.
func NewDemoCommand(opts *RootOptions) *cobra.Command {
	var items int

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a built-in gradient kernel and print the dispatch report",
		RunE: func(cmd *cobra.Command, args []string) error {
			f32 := ir.ScalarType(ir.Float32)

			b := ir.NewBuilder("square")
			b.SetTraced(opts.Cfg.Trace)
			in := b.SetCapture("in", ir.BufferType(f32))
			out := b.SetCapture("out", ir.BufferType(f32))
			tid := b.DispatchID(0)
			x := b.Load(in, tid)
			y := b.Mul(x, x)
			b.Store(out, tid, y)
			b.Return(y)
			g, err := b.Finish()
			if err != nil {
				return err
			}

			grad, gradOuts, err := autodiff.Transform(g, y, []ir.NodeID{x})
			if err != nil {
				return err
			}

			xs := make([]value.Value, items)
			for i := range xs {
				xs[i] = value.Float(ir.Float32, float64(i))
			}
			inBuf := interp.NewBufferFrom(f32, xs)
			outBuf := interp.NewBuffer(f32, items)
			gradBuf := interp.NewBuffer(f32, items)

			rep, err := interp.Execute(cmd.Context(), grad, [3]int{items, 0, 0},
				nil, []interp.Resource{inBuf, outBuf, gradBuf},
				executeOptions(opts.Cfg))
			if err != nil {
				return err
			}
			renderReport(cmd, rep)

			fmt.Fprintf(cmd.OutOrStdout(), "\nd(x*x)/dx written to capture %q:\n",
				gradOuts[0].Name)
			show := min(items, 8)
			for i := 0; i < show; i++ {
				fmt.Fprintf(cmd.OutOrStdout(), "  x=%g  grad=%g\n",
					xs[i].AsFloat(), gradBuf.At(i).AsFloat())
			}
			if show < items {
				fmt.Fprintf(cmd.OutOrStdout(), "  ... %d more\n", items-show)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&items, "items", 8, "number of work items to dispatch")
	return cmd
}
