package domain

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MembershipOf derives an account's participation from its bid record.
// A nil record means no participation.
func MembershipOf(bid *BidRecord, epoch int64) Membership {
	m := Membership{Epoch: epoch}
	if bid == nil {
		return m
	}
	m.Commitment = bid.Commitment
	m.HasCommitted = bid.Commitment != (common.Hash{})
	m.HasRevealed = bid.Revealed
	if bid.Revealed && bid.RevealedValue != nil {
		m.RevealedAmount = new(big.Int).Set(bid.RevealedValue)
	}
	return m
}

// For returns m if it was computed for epoch, and an empty membership
// otherwise. A new auction invalidates what was known about the last one.
func (m Membership) For(epoch int64) Membership {
	if m.Epoch != epoch {
		return Membership{Epoch: epoch}
	}
	return m
}

// Checker reads bid records and turns them into memberships.
type Checker struct {
	bids   BidReader
	logger *slog.Logger
}

// NewChecker creates a membership checker.
func NewChecker(bids BidReader, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{bids: bids, logger: logger}
}

// Check returns the membership of account in the auction for name.
// It never fails: a read error or a missing record is reported as no
// participation.
func (c *Checker) Check(ctx context.Context, name string, account common.Address, epoch int64) Membership {
	if account == (common.Address{}) || epoch == 0 {
		return Membership{Epoch: epoch}
	}
	info, err := c.bids.MyBid(ctx, name, account)
	if err != nil {
		c.logger.Debug("bid lookup failed", "domain", name, "account", account.Hex(), "error", err)
		return Membership{Epoch: epoch}
	}
	if info == nil {
		return Membership{Epoch: epoch}
	}
	return MembershipOf(&BidRecord{
		Commitment:    info.Commitment,
		Deposit:       info.Deposit,
		Revealed:      info.Revealed,
		RevealedValue: info.RevealedValue,
	}, epoch)
}
