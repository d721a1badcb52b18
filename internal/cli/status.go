package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/ntunames/internal/auction/domain"
	"github.com/pendergraft/ntunames/internal/registrar"
	"github.com/pendergraft/ntunames/internal/validation"
	"github.com/pendergraft/ntunames/internal/watch"
)

func createStatusCmd() *cobra.Command {
	var account string
	var jsonOutput bool
	var watchFlag bool

	cmd := &cobra.Command{
		Use:   "status <name>",
		Short: "Show the auction state of a domain",
		Long: `Show the phase of a domain's auction, its owner and expiry, and which actions
the configured account can take.

With --watch the status stays on screen: a countdown is printed every second
and the domain is re-resolved when the commit or reveal window closes.

EXAMPLES:
  ntunames status alice.ntu
  ntunames status alice.ntu --account 0x1234...
  ntunames status alice.ntu --watch
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if account != "" {
				if err := validation.ValidateAddress(account); err != nil {
					return err
				}
			}
			if watchFlag {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return runWatch(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], account)
			}
			return runStatus(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], account, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "show membership and actions for this address")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "keep watching and count down to the next phase")

	return cmd
}

func runStatus(ctx context.Context, w, stderr io.Writer, name, account string, jsonOutput bool) error {
	r, acct, closeFn, err := openReader(ctx, loadSettings(), newPrompter(os.Stdin, stderr), stderr)
	if err != nil {
		return err
	}
	defer closeFn()
	if account != "" {
		acct = common.HexToAddress(account)
	}
	return showStatus(ctx, r, w, name, acct, jsonOutput)
}

func showStatus(ctx context.Context, r reader, w io.Writer, name string, account common.Address, jsonOutput bool) error {
	st, err := r.Status(ctx, name, account)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %s", name, registrar.Message(err))
	}
	if jsonOutput {
		return printJSON(w, st)
	}
	printStatus(w, st)
	return nil
}

func runWatch(ctx context.Context, w, stderr io.Writer, name, account string) error {
	s := loadSettings()
	a, err := openApp(ctx, s, appOptions{}, newPrompter(os.Stdin, stderr), stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	acct := a.Account()
	if account != "" {
		acct = common.HexToAddress(account)
	}

	d := newWatchDisplay(w)
	view := watch.New(a.svc, d.publish, watch.WithInterval(s.Tick), watch.WithLogger(a.logger))
	defer view.Close()

	// The session tears this down on disconnect.
	a.session.OnChainChange(func(id int64) {
		fmt.Fprintf(stderr, "Warning: node switched to chain %d\n", id)
		view.Refresh()
	})

	view.Show(ctx, name, acct)
	<-ctx.Done()
	fmt.Fprintln(w)
	return nil
}

// watchDisplay prints the full status when a resolution lands and a
// countdown line on every tick.
type watchDisplay struct {
	mu       sync.Mutex
	w        io.Writer
	last     *domain.Status
	lastErr  error
	checking bool
}

func newWatchDisplay(w io.Writer) *watchDisplay {
	return &watchDisplay{w: w}
}

func (d *watchDisplay) publish(s watch.State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case s.Err != nil:
		if s.Err != d.lastErr {
			fmt.Fprintf(d.w, "Error: %s\n", registrar.Message(s.Err))
		}
	case s.Checking:
		if !d.checking {
			fmt.Fprintf(d.w, "Checking %s...\n", s.Subject.Domain)
		}
	case s.Status != nil && s.Status != d.last:
		fmt.Fprintln(d.w)
		printStatus(d.w, s.Status)
	case s.Status != nil && s.Status.Phase.Timed():
		fmt.Fprintf(d.w, "\r%s ends in %s   ", phaseWindow(s.Status.Phase), formatRemaining(s.Remaining))
	}
	d.checking = s.Checking
	d.lastErr = s.Err
	if s.Status != nil {
		d.last = s.Status
	}
}

func phaseWindow(p domain.Phase) string {
	if p == domain.PhaseReveal {
		return "Reveal phase"
	}
	return "Commit phase"
}
