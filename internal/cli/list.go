package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/ntunames/internal/auction/domain"
	"github.com/pendergraft/ntunames/internal/registrar"
)

func createListCmd() *cobra.Command {
	var limit int
	var jsonOutput bool
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered domains",
		Long: `List every domain the registrar has recorded, with its owner and expiry.

EXAMPLES:
  # List all registrations
  ntunames list

  # Hide expired registrations
  ntunames list --active

  # Output as JSON
  ntunames list --json
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stderr := cmd.ErrOrStderr()
			r, _, closeFn, err := openReader(ctx, loadSettings(), newPrompter(os.Stdin, stderr), stderr)
			if err != nil {
				return err
			}
			defer closeFn()
			return runList(ctx, r, cmd.OutOrStdout(), activeOnly, limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "number of domains to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "hide expired registrations")

	return cmd
}

func runList(ctx context.Context, r reader, w io.Writer, activeOnly bool, limit int, jsonOutput bool) error {
	all, err := r.RegisteredDomains(ctx)
	if err != nil {
		return fmt.Errorf("failed to list domains: %s", registrar.Message(err))
	}

	var domains []domain.RegisteredDomain
	for _, d := range all {
		if activeOnly && d.Expired {
			continue
		}
		domains = append(domains, d)
	}
	// Latest expiry first: the most recent registrations.
	sort.SliceStable(domains, func(i, j int) bool {
		return domains[i].Expiry > domains[j].Expiry
	})

	total := len(domains)
	if limit > 0 && len(domains) > limit {
		domains = domains[:limit]
	}

	if jsonOutput {
		if domains == nil {
			domains = []domain.RegisteredDomain{}
		}
		return printJSON(w, map[string]any{
			"domains": domains,
			"count":   len(domains),
			"total":   total,
		})
	}

	if len(domains) == 0 {
		fmt.Fprintln(w, "No domains found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tOWNER\tEXPIRES\tSTATUS")
	for _, d := range domains {
		status := "active"
		if d.Expired {
			status = "expired"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Owner.Hex(), formatTime(d.Expiry), status)
	}
	tw.Flush()

	if len(domains) < total {
		fmt.Fprintf(w, "\n(showing %d of %d domains)\n", len(domains), total)
	}

	return nil
}
