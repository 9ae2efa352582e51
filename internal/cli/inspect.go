package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lumen-compute/lumen/internal/ir"
)

// NewInspectCommand creates the inspect command: decode a serialized graph
// and summarize it.
func NewInspectCommand(opts *RootOptions) *cobra.Command {
	var showNodes bool

	cmd := &cobra.Command{
		Use:   "inspect <graph.lmnk>",
		Short: "Summarize a serialized kernel graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			st, err := f.Stat()
			if err != nil {
				return err
			}
			g, err := ir.Decode(f)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Field", "Value"})
			tw.AppendRows([]table.Row{
				{"Kernel", g.Name()},
				{"File size", humanize.Bytes(uint64(st.Size()))},
				{"Blocks", g.NumBlocks()},
				{"Nodes", g.NumNodes()},
				{"Return", g.ReturnType()},
				{"Arguments", formatParams(g.Args())},
				{"Captures", formatParams(g.Captures())},
			})
			tw.Render()

			if showNodes {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprint(cmd.OutOrStdout(), g.String())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showNodes, "nodes", false, "print the full node listing")
	return cmd
}

func formatParams(ps []ir.Param) string {
	if len(ps) == 0 {
		return "(none)"
	}
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = fmt.Sprintf("%s: %s", p.Name, p.Type)
	}
	return strings.Join(parts, ", ")
}
