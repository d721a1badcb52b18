package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/ntunames/internal/registrar"
)

func createResolveCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "resolve <name>",
		Short: "Look up the owner of a domain",
		Long: `Look up the address a .ntu domain resolves to.

Unregistered and expired domains are reported, not treated as failures.

EXAMPLES:
  ntunames resolve alice.ntu
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stderr := cmd.ErrOrStderr()
			r, _, closeFn, err := openReader(ctx, loadSettings(), newPrompter(os.Stdin, stderr), stderr)
			if err != nil {
				return err
			}
			defer closeFn()
			return runResolve(ctx, r, cmd.OutOrStdout(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createReverseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reverse <address>",
		Short: "Look up the primary domain of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stderr := cmd.ErrOrStderr()
			r, _, closeFn, err := openReader(ctx, loadSettings(), newPrompter(os.Stdin, stderr), stderr)
			if err != nil {
				return err
			}
			defer closeFn()
			return runReverse(ctx, r, cmd.OutOrStdout(), args[0])
		},
	}

	return cmd
}

func runResolve(ctx context.Context, r reader, w io.Writer, name string, jsonOutput bool) error {
	lookup, err := r.ResolveOwner(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %s", name, registrar.Message(err))
	}
	if jsonOutput {
		return printJSON(w, lookup)
	}

	if lookup.Owner != nil {
		fmt.Fprintf(w, "%s -> %s\n", lookup.Name, lookup.Owner.Hex())
		return nil
	}
	fmt.Fprintf(w, "%s: %s\n", lookup.Name, lookup.Message)
	return nil
}

func runReverse(ctx context.Context, r reader, w io.Writer, address string) error {
	name, err := r.Reverse(ctx, address)
	if err != nil {
		return fmt.Errorf("failed to reverse resolve %s: %s", address, registrar.Message(err))
	}
	if name == "" {
		fmt.Fprintf(w, "%s has no primary domain\n", address)
		return nil
	}
	fmt.Fprintln(w, name)
	return nil
}
