package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pendergraft/ntunames/internal/auction/domain"
	"github.com/pendergraft/ntunames/internal/registrar"
	"github.com/pendergraft/ntunames/internal/units"
)

// errCancelled marks a transaction the user declined. Commands report it
// and exit cleanly.
var errCancelled = errors.New("cancelled")

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatRemaining renders a countdown as "1h 02m 03s", dropping leading
// zero units.
func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func formatTime(unix int64) string {
	if unix == 0 {
		return "-"
	}
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

func printStatus(w io.Writer, st *domain.Status) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Domain:\t%s\n", st.Name)
	fmt.Fprintf(tw, "Status:\t%s\n", st.Status)

	if st.Domain.Owner != nil {
		fmt.Fprintf(tw, "Owner:\t%s\n", st.Domain.Owner.Hex())
	}
	if st.Domain.ExpiryTime != nil {
		fmt.Fprintf(tw, "Expires:\t%s\n", formatTime(*st.Domain.ExpiryTime))
	}
	if a := st.Auction; a != nil && a.Exists() {
		fmt.Fprintf(tw, "Commit ends:\t%s\n", formatTime(a.CommitEndTime))
		fmt.Fprintf(tw, "Reveal ends:\t%s\n", formatTime(a.RevealEndTime))
		if a.HasBid() {
			fmt.Fprintf(tw, "Highest bid:\t%s ETH by %s\n", units.FormatEther(a.HighestBid), a.HighestBidder.Hex())
		}
	}
	if st.Account != nil {
		fmt.Fprintf(tw, "Account:\t%s\n", st.Account.Hex())
		if st.Balance != nil {
			fmt.Fprintf(tw, "Balance:\t%s ETH\n", units.FormatEther(st.Balance))
		}
		if st.Epoch != 0 {
			fmt.Fprintf(tw, "Your bid:\t%s\n", membershipLabel(st.Membership))
		}
		for _, s := range []domain.ActionState{st.Actions.Commit, st.Actions.Reveal, st.Actions.Finalize} {
			if s.Available {
				fmt.Fprintf(tw, "Can %s:\tyes\n", s.Action)
			} else if s.Reason != "" {
				fmt.Fprintf(tw, "Can %s:\tno (%s)\n", s.Action, s.Reason)
			}
		}
	}
	if len(st.Failures) > 0 {
		fmt.Fprintf(tw, "Unavailable:\t%s\n", strings.Join(st.Failures, ", "))
	}
	tw.Flush()
}

func membershipLabel(m domain.Membership) string {
	switch {
	case m.HasRevealed && m.RevealedAmount != nil:
		return fmt.Sprintf("revealed %s ETH", units.FormatEther(m.RevealedAmount))
	case m.HasRevealed:
		return "revealed"
	case m.HasCommitted:
		return "committed, not revealed"
	default:
		return "none"
	}
}

// actionError turns a failed write into the message shown to the user. A
// rejected transaction becomes errCancelled. When the contract refused
// because the phase moved on, the phase read afterwards is shown with it.
func actionError(action string, err error) error {
	if registrar.IsKind(err, registrar.KindUserRejected) {
		return errCancelled
	}
	var rerr *registrar.Error
	if errors.As(err, &rerr) {
		var stale *domain.StaleError
		if errors.As(err, &stale) {
			return fmt.Errorf("%s failed: %s (%s is now: %s)", action, rerr.Message(), stale.Current.Name, stale.Current.Status)
		}
		return fmt.Errorf("%s failed: %s", action, rerr.Message())
	}
	return fmt.Errorf("%s failed: %w", action, err)
}

// finish reports a cancelled action without failing the command.
func finish(w io.Writer, err error) error {
	if errors.Is(err, errCancelled) {
		fmt.Fprintln(w, "Cancelled.")
		return nil
	}
	return err
}
