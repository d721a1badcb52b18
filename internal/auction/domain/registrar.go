package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/ntunames/internal/registrar"
)

// Reader is the read side of the registrar the resolver depends on.
type Reader interface {
	ResolveDomain(ctx context.Context, name string) (common.Address, error)
	DomainExpiry(ctx context.Context, name string) (*big.Int, error)
	AuctionInfo(ctx context.Context, name string) (*registrar.AuctionInfo, error)
}

// BidReader reads one account's bid in the current auction.
type BidReader interface {
	MyBid(ctx context.Context, name string, account common.Address) (*registrar.BidInfo, error)
}

// Registrar is the full contract surface used by Service.
// *registrar.Client satisfies it.
type Registrar interface {
	Reader
	BidReader

	ReverseResolve(ctx context.Context, addr common.Address) (string, error)
	RegisteredDomains(ctx context.Context) ([]registrar.RegisteredDomain, error)
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	MakeCommitment(ctx context.Context, name string, value *big.Int, secret [32]byte) (common.Hash, error)

	StartAuction(ctx context.Context, opts *bind.TransactOpts, name string) (*registrar.TxResult, error)
	CommitBid(ctx context.Context, opts *bind.TransactOpts, name string, commitment common.Hash, deposit *big.Int) (*registrar.TxResult, error)
	RevealBid(ctx context.Context, opts *bind.TransactOpts, name string, value *big.Int, secret [32]byte) (*registrar.TxResult, error)
	FinalizeAuction(ctx context.Context, opts *bind.TransactOpts, name string) (*registrar.TxResult, error)
	SendToDomain(ctx context.Context, opts *bind.TransactOpts, name string, value *big.Int) (*registrar.TxResult, error)
}

// Signer supplies the connected account and signing options for writes.
// *wallet.Session satisfies it.
type Signer interface {
	Account() (common.Address, bool)
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

func txInfo(r *registrar.TxResult) TxInfo {
	if r == nil {
		return TxInfo{}
	}
	return TxInfo{Hash: r.Hash, BlockNumber: r.BlockNumber, GasUsed: r.GasUsed}
}
