// Package cli implements the lumen command line interface.
package cli

import (
	goflag "flag"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/lumen-compute/lumen/internal/config"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool

	Cfg *config.Config
}

// NewRootCommand creates the root command for the lumen CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "lumen",
		Short:         "Lumen - safety-checked kernel IR toolkit",
		Long:          "Build, differentiate, inspect and execute data-parallel kernel graphs.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath, ".")
			if err != nil {
				return err
			}
			opts.Cfg = cfg
			if opts.Verbose {
				var fs goflag.FlagSet
				klog.InitFlags(&fs)
				_ = fs.Set("v", "2")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "",
		"config file (default "+config.ConfigFileName+" in the working directory)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
