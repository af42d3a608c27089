package main

import (
	"io"

	"github.com/example/tensordump/internal/collector"
	"github.com/example/tensordump/internal/config"
	"github.com/example/tensordump/internal/container"
	"github.com/example/tensordump/internal/render"
	"github.com/spf13/cobra"
)

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump [paths...]",
		Short: "Collect every tensor from the given containers and print the merged mapping",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			return runDump(cmd.OutOrStdout(), cfg, args)
		},
	}

	return cmd
}

// runDump collects all tensors from the given paths, in order, and prints
// the resulting mapping. Nothing is printed when collection fails.
func runDump(w io.Writer, cfg config.Config, paths []string) error {
	format, err := render.NormalizeFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	opener := container.FileOpener{HeaderLimit: cfg.Limits.HeaderBytes}

	tensors, err := collector.Collect(paths, opener)
	if err != nil {
		return err
	}

	return render.Write(w, tensors, format)
}
