package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/ntunames/internal/auction/domain"
	"github.com/pendergraft/ntunames/internal/units"
)

// withApp opens a signing app for one write command.
func withApp(cmd *cobra.Command, opts appOptions, fn func(ctx context.Context, a *app, p *prompter, w io.Writer) error) error {
	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()
	p := newPrompter(os.Stdin, stderr)

	a, err := openApp(ctx, loadSettings(), opts, p, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Account: %s\n", a.Account().Hex())
	return finish(w, fn(ctx, a, p, w))
}

func createCommitCmd() *cobra.Command {
	var amount string
	var deposit string
	var yes bool

	cmd := &cobra.Command{
		Use:   "commit <name>",
		Short: "Commit a sealed bid",
		Long: `Commit a sealed bid on a domain. If no auction is running, one is started first.

You are asked for a secret twice. The bid amount, the secret and the
commitment are saved to the local bid journal so 'ntunames reveal' can
reuse them; without the secret the bid cannot be revealed.

The deposit is sent with the commitment and must cover the bid. It defaults
to the bid amount; a larger deposit hides the real bid.

EXAMPLES:
  ntunames commit alice.ntu --amount 0.1
  ntunames commit alice.ntu --amount 0.1 --deposit 0.5
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bid, err := units.ParseEther(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			var dep *big.Int
			if deposit != "" {
				if dep, err = units.ParseEther(deposit); err != nil {
					return fmt.Errorf("--deposit: %w", err)
				}
			}
			return withApp(cmd, appOptions{signer: true, journal: true}, func(ctx context.Context, a *app, p *prompter, w io.Writer) error {
				return runCommit(ctx, a.svc, a.Account(), p, w, domain.CommitRequest{Name: args[0], Amount: bid, Deposit: dep}, yes)
			})
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "bid in ETH (required)")
	cmd.Flags().StringVar(&deposit, "deposit", "", "deposit in ETH (default: the bid amount)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runCommit(ctx context.Context, svc domain.Service, account common.Address, p *prompter, w io.Writer, req domain.CommitRequest, yes bool) error {
	st, err := svc.Status(ctx, req.Name, account)
	if err != nil {
		return actionError("commit", err)
	}
	gate := st.Actions.Commit
	if !gate.Available {
		return fmt.Errorf("cannot commit to %s: %s", st.Name, gate.Reason)
	}

	deposit := req.Deposit
	if deposit == nil {
		deposit = req.Amount
	}
	if st.Phase != domain.PhaseCommit {
		fmt.Fprintf(w, "No auction is running for %s; one will be started first.\n", st.Name)
	}
	if !yes {
		ok, err := p.confirm(fmt.Sprintf("Commit a sealed bid of %s ETH (deposit %s ETH) on %s?",
			units.FormatEther(req.Amount), units.FormatEther(deposit), st.Name))
		if err != nil {
			return err
		}
		if !ok {
			return errCancelled
		}
	}

	if req.Secret == "" {
		if req.Secret, err = p.secret("Secret: "); err != nil {
			return fmt.Errorf("reading secret: %w", err)
		}
		if req.Confirmation, err = p.secret("Confirm secret: "); err != nil {
			return fmt.Errorf("reading secret: %w", err)
		}
	}

	res, err := svc.Commit(ctx, req)
	if err != nil {
		return actionError("commit", err)
	}

	if res.StartTx != nil {
		fmt.Fprintf(w, "Auction started:  %s\n", res.StartTx.Hash.Hex())
	}
	fmt.Fprintf(w, "Bid committed:    %s\n", res.CommitTx.Hash.Hex())
	fmt.Fprintf(w, "Commitment:       %s\n", res.Commitment.Hex())
	fmt.Fprintf(w, "Deposit:          %s ETH\n", units.FormatEther(res.Deposit))
	if res.Epoch != 0 {
		fmt.Fprintf(w, "Commit phase ends %s\n", formatTime(res.Epoch))
	}
	if res.JournalID != "" {
		fmt.Fprintln(w, "Your amount and secret are saved in the bid journal.")
	} else {
		fmt.Fprintln(w, "Warning: the bid was not journaled. Keep your secret: it is needed to reveal.")
	}
	return nil
}

func createRevealCmd() *cobra.Command {
	var amount string

	cmd := &cobra.Command{
		Use:   "reveal <name>",
		Short: "Reveal a committed bid",
		Long: `Reveal your bid during the reveal phase.

The amount and secret are taken from the bid journal. Pass --amount to
reveal a bid that is not journaled; you are then asked for the secret.

EXAMPLES:
  ntunames reveal alice.ntu
  ntunames reveal alice.ntu --amount 0.1
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.RevealRequest{Name: args[0]}
			if amount != "" {
				v, err := units.ParseEther(amount)
				if err != nil {
					return fmt.Errorf("--amount: %w", err)
				}
				req.Amount = v
			}
			return withApp(cmd, appOptions{signer: true, journal: true}, func(ctx context.Context, a *app, p *prompter, w io.Writer) error {
				return runReveal(ctx, a.svc, p, w, req)
			})
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "bid in ETH (default: from the bid journal)")

	return cmd
}

func runReveal(ctx context.Context, svc domain.Service, p *prompter, w io.Writer, req domain.RevealRequest) error {
	if req.Amount != nil && req.Secret == "" {
		secret, err := p.secret("Secret: ")
		if err != nil {
			return fmt.Errorf("reading secret: %w", err)
		}
		req.Secret = secret
	}

	res, err := svc.Reveal(ctx, req)
	if errors.Is(err, domain.ErrNoSavedBid) {
		return fmt.Errorf("no journaled bid for %s: pass --amount and enter the secret", req.Name)
	}
	if err != nil {
		return actionError("reveal", err)
	}

	fmt.Fprintf(w, "Bid of %s ETH revealed: %s\n", units.FormatEther(res.Amount), res.RevealTx.Hash.Hex())
	return nil
}

func createFinalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <name>",
		Short: "Finalize an auction after the reveal phase",
		Long: `Finalize an auction whose reveal phase has ended. Only the highest bidder
may send the transaction; it makes them the owner.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, appOptions{signer: true}, func(ctx context.Context, a *app, p *prompter, w io.Writer) error {
				return runFinalize(ctx, a.svc, w, args[0])
			})
		},
	}
}

func runFinalize(ctx context.Context, svc domain.Service, w io.Writer, name string) error {
	tx, err := svc.Finalize(ctx, name)
	if err != nil {
		return actionError("finalize", err)
	}
	fmt.Fprintf(w, "Auction finalized: %s\n", tx.Hash.Hex())
	return nil
}

func createSendCmd() *cobra.Command {
	var amount string
	var yes bool

	cmd := &cobra.Command{
		Use:   "send <name>",
		Short: "Send ETH to the owner of a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := units.ParseEther(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			return withApp(cmd, appOptions{signer: true}, func(ctx context.Context, a *app, p *prompter, w io.Writer) error {
				return runSend(ctx, a.svc, p, w, args[0], value, yes)
			})
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "amount in ETH (required)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runSend(ctx context.Context, svc domain.Service, p *prompter, w io.Writer, name string, value *big.Int, yes bool) error {
	lookup, err := svc.ResolveOwner(ctx, name)
	if err != nil {
		return actionError("send", err)
	}
	if lookup.Owner == nil {
		return fmt.Errorf("cannot send to %s: %s", lookup.Name, lookup.Message)
	}

	if !yes {
		ok, err := p.confirm(fmt.Sprintf("Send %s ETH to %s (%s)?", units.FormatEther(value), lookup.Name, lookup.Owner.Hex()))
		if err != nil {
			return err
		}
		if !ok {
			return errCancelled
		}
	}

	res, err := svc.Send(ctx, name, value)
	if err != nil {
		return actionError("send", err)
	}
	fmt.Fprintf(w, "Sent %s ETH to %s: %s\n", units.FormatEther(res.Amount), res.Owner.Hex(), res.Tx.Hash.Hex())
	return nil
}
