package domain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/ntunames/internal/observability/metrics"
	"github.com/pendergraft/ntunames/internal/registrar"
	"github.com/pendergraft/ntunames/internal/timestamp"
)

// FailedAuctionPolicy decides when a zero-bid auction that has passed its
// reveal deadline stops counting as an auction.
type FailedAuctionPolicy string

const (
	// PolicyIgnoreFinalized treats every failed auction as no auction,
	// whatever its finalized flag says.
	PolicyIgnoreFinalized FailedAuctionPolicy = "ignore-finalized"
	// PolicyRequireUnfinalized only discards failed auctions that were
	// never finalized. A finalized zero-bid auction resolves as Registered
	// and is flagged for recheck.
	PolicyRequireUnfinalized FailedAuctionPolicy = "require-unfinalized"
)

// ParseFailedAuctionPolicy parses a policy name. The empty string selects
// PolicyIgnoreFinalized.
func ParseFailedAuctionPolicy(s string) (FailedAuctionPolicy, error) {
	switch FailedAuctionPolicy(s) {
	case "", PolicyIgnoreFinalized:
		return PolicyIgnoreFinalized, nil
	case PolicyRequireUnfinalized:
		return PolicyRequireUnfinalized, nil
	}
	return "", fmt.Errorf("unknown failed auction policy %q", s)
}

// Active reports whether a counts as a running auction at now.
func (p FailedAuctionPolicy) Active(a *AuctionRecord, now int64) bool {
	if !a.Exists() {
		return false
	}
	if !a.Failed(now) {
		return true
	}
	return p == PolicyRequireUnfinalized && a.Finalized
}

// Snapshot holds the raw reads one resolution is derived from. Nil fields
// are reads that were absent or failed.
type Snapshot struct {
	Name        string
	Owner       *common.Address
	Expiry      *int64
	ExpiredHint bool
	Auction     *AuctionRecord
	Failures    []string
}

// Derive computes the phase of a domain from a snapshot. It is pure: the
// same snapshot, now and policy always give the same Resolution.
func Derive(snap Snapshot, now int64, policy FailedAuctionPolicy) Resolution {
	res := Resolution{
		Name:       snap.Name,
		Domain:     DomainRecord{Name: snap.Name, ExpiryTime: snap.Expiry},
		ResolvedAt: now,
	}
	if len(snap.Failures) > 0 {
		res.Failures = append([]string(nil), snap.Failures...)
	}
	if snap.Auction.Exists() {
		a := *snap.Auction
		res.Auction = &a
	}

	// Registration wins over any auction state.
	if snap.Owner != nil && *snap.Owner != (common.Address{}) {
		owner := *snap.Owner
		res.Domain.Status = StatusRegistered
		res.Domain.Owner = &owner
		return res.with(PhaseRegistered)
	}

	expired := snap.ExpiredHint || (snap.Expiry != nil && *snap.Expiry != 0 && now > *snap.Expiry)
	if expired {
		res.Domain.Status = StatusExpired
	}

	if a := res.Auction; policy.Active(a, now) {
		res.Epoch = a.CommitEndTime
		switch {
		case now < a.CommitEndTime:
			res.Deadline = a.CommitEndTime
			return res.with(PhaseCommit)
		case now < a.RevealEndTime:
			res.Deadline = a.RevealEndTime
			return res.with(PhaseReveal)
		case !a.Finalized:
			return res.with(PhasePendingFinalize)
		default:
			res.RecheckRequired = true
			res.Domain.Status = StatusRegistered
			if a.HighestBidder != (common.Address{}) {
				winner := a.HighestBidder
				res.Domain.Owner = &winner
			}
			return res.with(PhaseRegistered)
		}
	}

	if expired {
		return res.with(PhaseExpired)
	}
	return res.with(PhaseAvailable)
}

func (r Resolution) with(p Phase) Resolution {
	r.Phase = p
	r.Status = p.Label()
	return r
}

// Resolver gathers contract reads and derives the phase of a domain.
type Resolver struct {
	reader Reader
	policy FailedAuctionPolicy
	logger *slog.Logger
}

// NewResolver creates a resolver over reader.
func NewResolver(reader Reader, policy FailedAuctionPolicy, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = PolicyIgnoreFinalized
	}
	return &Resolver{reader: reader, policy: policy, logger: logger}
}

// Policy returns the failed-auction policy in use.
func (r *Resolver) Policy() FailedAuctionPolicy {
	return r.policy
}

// Resolve reads the contract and derives the phase of name at now. The
// name must already be validated. Resolve never fails: a read that errors
// is recorded in Failures and treated as absent.
func (r *Resolver) Resolve(ctx context.Context, name string, now int64) Resolution {
	res := Derive(r.Snapshot(ctx, name), now, r.policy)
	metrics.PhaseResolved(res.Phase.String())
	return res
}

// Snapshot performs the reads for name in priority order.
func (r *Resolver) Snapshot(ctx context.Context, name string) Snapshot {
	snap := Snapshot{Name: name}

	owner, err := r.reader.ResolveDomain(ctx, name)
	switch {
	case err == nil:
		if owner != (common.Address{}) {
			snap.Owner = &owner
			// Expiry is for display only once the owner is known.
			if expiry, ok := r.expiry(ctx, &snap); ok {
				snap.Expiry = expiry
			}
			return snap
		}
	case registrar.IsKind(err, registrar.KindExpired):
		snap.ExpiredHint = true
	case registrar.IsKind(err, registrar.KindNotRegistered):
	default:
		r.fail(&snap, "owner", err)
	}

	if expiry, ok := r.expiry(ctx, &snap); ok {
		snap.Expiry = expiry
	}

	info, err := r.reader.AuctionInfo(ctx, name)
	switch {
	case err == nil:
		a, err := auctionRecord(info)
		if err != nil {
			r.fail(&snap, "auction", err)
			break
		}
		snap.Auction = a
	case registrar.IsKind(err, registrar.KindAuctionNotFound):
	default:
		r.fail(&snap, "auction", err)
	}
	return snap
}

func (r *Resolver) expiry(ctx context.Context, snap *Snapshot) (*int64, bool) {
	raw, err := r.reader.DomainExpiry(ctx, snap.Name)
	if err != nil {
		if registrar.IsKind(err, registrar.KindExpired) {
			snap.ExpiredHint = true
			return nil, false
		}
		if !registrar.IsKind(err, registrar.KindNotRegistered) {
			r.fail(snap, "expiry", err)
		}
		return nil, false
	}
	expiry, err := timestamp.Normalize(raw)
	if err != nil {
		r.fail(snap, "expiry", err)
		return nil, false
	}
	return &expiry, true
}

func (r *Resolver) fail(snap *Snapshot, fetch string, err error) {
	snap.Failures = append(snap.Failures, fetch)
	metrics.ResolveSubfetchFailed(fetch)
	r.logger.Debug("resolve sub-fetch failed", "domain", snap.Name, "fetch", fetch, "error", err)
}

func auctionRecord(info *registrar.AuctionInfo) (*AuctionRecord, error) {
	if info == nil {
		return nil, nil
	}
	commitEnd, err := timestamp.Normalize(info.CommitEndTime)
	if err != nil {
		return nil, fmt.Errorf("commit end time: %w", err)
	}
	revealEnd, err := timestamp.Normalize(info.RevealEndTime)
	if err != nil {
		return nil, fmt.Errorf("reveal end time: %w", err)
	}
	highest := new(big.Int)
	if info.HighestBid != nil {
		highest.Set(info.HighestBid)
	}
	return &AuctionRecord{
		CommitEndTime: commitEnd,
		RevealEndTime: revealEnd,
		HighestBid:    highest,
		HighestBidder: info.HighestBidder,
		Finalized:     info.Finalized,
	}, nil
}
