package main

import (
	"fmt"
	"io"
	"os"

	"github.com/example/tensordump/internal/config"
	"github.com/example/tensordump/internal/container"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	var deep bool

	cmd := &cobra.Command{
		Use:   "verify [paths...]",
		Short: "Validate container headers and, optionally, tensor data",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			return runVerify(cmd.OutOrStdout(), cfg, args, deep)
		},
	}

	cmd.Flags().BoolVar(&deep, "read", false, "Also read every tensor's data")

	return cmd
}

func runVerify(w io.Writer, cfg config.Config, paths []string, deep bool) error {
	opener := container.FileOpener{HeaderLimit: cfg.Limits.HeaderBytes}

	for _, path := range paths {
		if err := verifyContainer(w, opener, path, deep); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintln(w, "container verification passed"); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	return nil
}

func verifyContainer(w io.Writer, opener container.Opener, path string, deep bool) error {
	if _, err := fmt.Fprintf(w, "verifying container: %s\n", path); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("container file not found: %w", err)
	}

	if _, err := fmt.Fprintf(w, "  ✓ file exists\n"); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	h, err := opener.Open(path)
	if err != nil {
		return err
	}
	defer h.Close()

	names := h.Names()
	if _, err := fmt.Fprintf(w, "  ✓ header parsed (%d tensors)\n", len(names)); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	if !deep {
		return nil
	}

	total := 0
	for _, name := range names {
		t, err := h.Tensor(name)
		if err != nil {
			return err
		}

		total += len(t.Data)
	}

	if _, err := fmt.Fprintf(w, "  ✓ tensor data readable (%d bytes)\n", total); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	return nil
}
