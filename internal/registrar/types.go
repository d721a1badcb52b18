package registrar

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AuctionInfo is the raw getAuctionInfo result. Timestamps are left in their
// on-chain encoding; callers normalize them before comparing with "now".
type AuctionInfo struct {
	CommitEndTime *big.Int
	RevealEndTime *big.Int
	HighestBid    *big.Int
	HighestBidder common.Address
	Finalized     bool
}

// BidInfo is the raw getMyBid result for one account.
type BidInfo struct {
	Commitment    common.Hash
	Deposit       *big.Int
	Revealed      bool
	RevealedValue *big.Int
}

// RegisteredDomain is one row of getAllRegisteredDomains.
type RegisteredDomain struct {
	Name   string
	Owner  common.Address
	Expiry *big.Int
}

// TxResult describes a mined transaction.
type TxResult struct {
	Hash        common.Hash
	BlockNumber uint64
	GasUsed     uint64
}
