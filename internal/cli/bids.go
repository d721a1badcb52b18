package cli

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/ntunames/internal/storage"
	"github.com/pendergraft/ntunames/internal/units"
	"github.com/pendergraft/ntunames/internal/validation"
	"github.com/pendergraft/ntunames/pkg/client"
)

func createBidsCmd() *cobra.Command {
	var domainName string
	var status string
	var account string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "bids",
		Short: "List journaled bids",
		Long: `List the bids saved in the local bid journal for the configured chain.
With --server the server's journal is listed instead; set NTUNAMES_API_KEY
if the server requires a key.

Secrets are never printed.

EXAMPLES:
  ntunames bids
  ntunames bids --domain alice.ntu
  ntunames bids --status committed
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := loadSettings()
			filter := storage.BidFilter{
				ChainID: s.ChainID,
				Domain:  validation.NormalizeDomainName(domainName),
				Status:  storage.BidStatus(status),
			}
			if filter.Status != "" && !filter.Status.Valid() {
				return fmt.Errorf("--status: unknown bid status %q", status)
			}
			if account != "" {
				if err := validation.ValidateAddress(account); err != nil {
					return fmt.Errorf("--account: %w", err)
				}
				filter.Account = common.HexToAddress(account).Hex()
			}

			if s.Server != "" {
				c := client.New(s.Server, client.WithAPIKey(s.APIKey))
				return runBids(cmd.Context(), apiBids{c}, cmd.OutOrStdout(), filter, limit, jsonOutput)
			}

			store, err := storage.NewSQLiteStore(s.Journal, newLogger())
			if err != nil {
				return fmt.Errorf("opening bid journal: %w", err)
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("opening bid journal: %w", err)
			}

			return runBids(cmd.Context(), store, cmd.OutOrStdout(), filter, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&domainName, "domain", "", "only bids on this domain")
	cmd.Flags().StringVar(&status, "status", "", "only bids in this state (pending, committed, revealed)")
	cmd.Flags().StringVar(&account, "account", "", "only bids from this address")
	cmd.Flags().IntVar(&limit, "limit", 50, "number of bids to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

// bidView is a journaled bid without its secret.
type bidView struct {
	Domain     string `json:"domain"`
	Account    string `json:"account"`
	Epoch      int64  `json:"epoch"`
	Amount     string `json:"amount"`
	Deposit    string `json:"deposit"`
	Status     string `json:"status"`
	Commitment string `json:"commitment"`
	CommitTx   string `json:"commitTx,omitempty"`
	RevealTx   string `json:"revealTx,omitempty"`
	UpdatedAt  string `json:"updatedAt"`
}

func newBidView(b storage.Bid) bidView {
	return bidView{
		Domain:     b.Domain,
		Account:    b.Account,
		Epoch:      b.Epoch,
		Amount:     weiToEther(b.AmountWei),
		Deposit:    weiToEther(b.DepositWei),
		Status:     string(b.Status),
		Commitment: b.Commitment,
		CommitTx:   b.CommitTx,
		RevealTx:   b.RevealTx,
		UpdatedAt:  b.UpdatedAt,
	}
}

func weiToEther(wei string) string {
	v, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return wei
	}
	return units.FormatEther(v)
}

// bidLister is the part of a journal bids reads.
type bidLister interface {
	ListBids(ctx context.Context, filter storage.BidFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Bid], error)
}

// apiBids lists a server's journal.
type apiBids struct {
	c *client.Client
}

func (a apiBids) ListBids(ctx context.Context, filter storage.BidFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Bid], error) {
	resp, err := a.c.Bids(ctx, client.BidQuery{
		Domain:  filter.Domain,
		Account: filter.Account,
		Status:  string(filter.Status),
		Limit:   pagination.Limit,
		Cursor:  pagination.Cursor,
	})
	if err != nil {
		return nil, err
	}
	out := &storage.PaginatedResult[storage.Bid]{
		Data:       make([]storage.Bid, len(resp.Data)),
		HasMore:    resp.Pagination.HasMore,
		NextCursor: resp.Pagination.NextCursor,
	}
	for i, b := range resp.Data {
		out.Data[i] = storage.Bid{
			ID:         b.ID,
			ChainID:    b.ChainID,
			Domain:     b.Domain,
			Account:    b.Account,
			Epoch:      b.Epoch,
			AmountWei:  b.AmountWei,
			DepositWei: b.DepositWei,
			Commitment: b.Commitment,
			Status:     storage.BidStatus(b.Status),
			CommitTx:   b.CommitTx,
			RevealTx:   b.RevealTx,
			CreatedAt:  b.CreatedAt,
			UpdatedAt:  b.UpdatedAt,
		}
	}
	return out, nil
}

func runBids(ctx context.Context, bids bidLister, w io.Writer, filter storage.BidFilter, limit int, jsonOutput bool) error {
	result, err := bids.ListBids(ctx, filter, storage.PaginationParams{Limit: limit})
	if err != nil {
		return fmt.Errorf("failed to list bids: %w", err)
	}

	views := make([]bidView, len(result.Data))
	for i, b := range result.Data {
		views[i] = newBidView(b)
	}

	if jsonOutput {
		return printJSON(w, map[string]any{
			"bids":    views,
			"count":   len(views),
			"hasMore": result.HasMore,
		})
	}

	if len(views) == 0 {
		fmt.Fprintln(w, "No bids found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tACCOUNT\tAUCTION\tAMOUNT\tDEPOSIT\tSTATUS")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s ETH\t%s ETH\t%s\n", v.Domain, v.Account, formatTime(v.Epoch), v.Amount, v.Deposit, v.Status)
	}
	tw.Flush()

	if result.HasMore {
		fmt.Fprintf(w, "\n(showing %d bids, more available)\n", len(views))
	}

	return nil
}
