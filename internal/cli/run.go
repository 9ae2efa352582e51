package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lumen-compute/lumen/internal/config"
	"github.com/lumen-compute/lumen/internal/interp"
	"github.com/lumen-compute/lumen/internal/ir"
	"github.com/lumen-compute/lumen/internal/value"
)

// NewRunCommand creates the run command: decode a serialized graph and
// execute it over an extent with zero-filled bindings.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	var extentFlag string

	cmd := &cobra.Command{
		Use:   "run <graph.lmnk>",
		Short: "Execute a serialized kernel graph over an extent",
		Long: "Execute a serialized kernel graph once per work item. Arguments are\n" +
			"bound to zero values and every buffer capture to a zero-filled buffer\n" +
			"with one element per work item.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extent, err := parseExtent(extentFlag)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			g, err := ir.Decode(f)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			items := extent[0] * extent[1] * extent[2]
			kargs := make([]value.Value, len(g.Args()))
			for i, p := range g.Args() {
				kargs[i] = value.Zero(p.Type)
			}
			captures := make([]interp.Resource, len(g.Captures()))
			for i, p := range g.Captures() {
				switch p.Type.Resource {
				case ir.ResBuffer:
					captures[i] = interp.NewBuffer(p.Type.ElemType(), items)
				case ir.ResBindless:
					captures[i] = interp.NewBindlessTable()
				default:
					return errors.Errorf("capture %q: cannot synthesize a %s binding", p.Name, p.Type)
				}
			}

			rep, err := interp.Execute(cmd.Context(), g, extent, kargs, captures,
				executeOptions(opts.Cfg))
			if err != nil {
				return err
			}
			renderReport(cmd, rep)
			return nil
		},
	}

	cmd.Flags().StringVar(&extentFlag, "extent", "64", "dispatch extent X[,Y[,Z]]")
	return cmd
}

func parseExtent(s string) ([3]int, error) {
	extent := [3]int{1, 1, 1}
	parts := strings.Split(s, ",")
	if len(parts) > 3 {
		return extent, errors.Errorf("extent %q has more than three axes", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 {
			return extent, errors.Errorf("extent axis %q must be a positive integer", p)
		}
		extent[i] = n
	}
	return extent, nil
}

func executeOptions(cfg *config.Config) interp.Options {
	return interp.Options{
		ErrorCutoff:       cfg.ErrorCutoff,
		Workers:           cfg.Pool(),
		HazardSampleLimit: cfg.HazardSampleLimit,
	}
}

func renderReport(cmd *cobra.Command, rep *interp.Report) {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.AppendHeader(table.Row{"Field", "Value"})
	tw.AppendRows([]table.Row{
		{"Dispatch", rep.ID},
		{"Kernel", rep.Kernel},
		{"Extent", fmt.Sprintf("%dx%dx%d", rep.Extent[0], rep.Extent[1], rep.Extent[2])},
		{"Items", humanize.Comma(int64(rep.Items()))},
		{"Succeeded", humanize.Comma(int64(rep.Succeeded))},
		{"Traps", len(rep.Traps)},
		{"Hazard warnings", len(rep.Warnings)},
		{"Cutoff hit", rep.CutoffHit},
		{"Duration", rep.Duration},
	})
	tw.Render()

	for i, trap := range rep.Traps {
		if i == 8 {
			fmt.Fprintf(cmd.OutOrStdout(), "... %d more traps\n", len(rep.Traps)-i)
			break
		}
		fmt.Fprintf(cmd.OutOrStdout(), "trap: %v\n", trap)
	}
}
