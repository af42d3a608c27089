package main

import (
	"fmt"
	"io"

	"github.com/example/tensordump/internal/config"
	"github.com/example/tensordump/internal/container"
	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys [paths...]",
		Short: "List tensor names, dtypes and shapes per file without reading tensor data",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			return runKeys(cmd.OutOrStdout(), cfg, args)
		},
	}

	return cmd
}

func runKeys(w io.Writer, cfg config.Config, paths []string) error {
	opener := container.FileOpener{HeaderLimit: cfg.Limits.HeaderBytes}

	for _, path := range paths {
		if err := listKeys(w, opener, path); err != nil {
			return err
		}
	}

	return nil
}

func listKeys(w io.Writer, opener container.Opener, path string) error {
	h, err := opener.Open(path)
	if err != nil {
		return err
	}
	defer h.Close()

	if _, err := fmt.Fprintf(w, "%s:\n", path); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	for _, name := range h.Names() {
		info, err := h.Info(name)
		if err != nil {
			return err
		}

		if _, err := fmt.Fprintf(w, "  %s %s%v\n", name, info.DType, info.Shape); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}

	return nil
}
