// Package registrar is the typed client for the .ntu registrar contract.
//
// Reads go through eth_call, writes are signed with the caller's
// TransactOpts and block until the transaction is mined. Every failure is
// returned as an *Error carrying a classified Kind.
package registrar

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pendergraft/ntunames/internal/observability/metrics"
)

//go:embed abi.json
var registrarABI string

// Backend is everything the client needs from a JSON-RPC node.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Client talks to one deployed registrar.
type Client struct {
	address  common.Address
	abi      abi.ABI
	backend  Backend
	contract *bind.BoundContract
	logger   *slog.Logger
}

// ParseABI returns the registrar ABI.
func ParseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(registrarABI))
}

// New creates a client for the registrar deployed at address.
func New(address common.Address, backend Backend, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	parsed, err := ParseABI()
	if err != nil {
		return nil, fmt.Errorf("parsing registrar ABI: %w", err)
	}
	return &Client{
		address:  address,
		abi:      parsed,
		backend:  backend,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		logger:   logger,
	}, nil
}

// Address returns the registrar contract address.
func (c *Client) Address() common.Address {
	return c.address
}

func (c *Client) call(ctx context.Context, from common.Address, method string, args ...interface{}) ([]interface{}, error) {
	start := time.Now()
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: from}
	err := c.contract.Call(opts, &out, method, args...)
	metrics.RecordContractCall(method, time.Since(start), err)
	if err != nil {
		c.logger.Debug("contract call failed", "method", method, "error", err)
		return nil, Classify(method, err)
	}
	return out, nil
}

// ResolveDomain returns the owner of name, or the zero address when the
// name is not registered.
func (c *Client) ResolveDomain(ctx context.Context, name string) (common.Address, error) {
	out, err := c.call(ctx, common.Address{}, "resolveDomain", name)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// ReverseResolve returns the primary domain for addr, or "" when none is set.
func (c *Client) ReverseResolve(ctx context.Context, addr common.Address) (string, error) {
	out, err := c.call(ctx, common.Address{}, "reverseResolve", addr)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// DomainExpiry returns the raw expiry timestamp for name.
func (c *Client) DomainExpiry(ctx context.Context, name string) (*big.Int, error) {
	out, err := c.call(ctx, common.Address{}, "getDomainExpiry", name)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// AuctionInfo returns the auction record for name. A name that never had an
// auction comes back with zero timestamps.
func (c *Client) AuctionInfo(ctx context.Context, name string) (*AuctionInfo, error) {
	out, err := c.call(ctx, common.Address{}, "getAuctionInfo", name)
	if err != nil {
		return nil, err
	}
	return &AuctionInfo{
		CommitEndTime: *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		RevealEndTime: *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		HighestBid:    *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		HighestBidder: *abi.ConvertType(out[3], new(common.Address)).(*common.Address),
		Finalized:     *abi.ConvertType(out[4], new(bool)).(*bool),
	}, nil
}

// MyBid returns account's bid on name. getMyBid keys on msg.sender so the
// call is made from account.
func (c *Client) MyBid(ctx context.Context, name string, account common.Address) (*BidInfo, error) {
	out, err := c.call(ctx, account, "getMyBid", name)
	if err != nil {
		return nil, err
	}
	return &BidInfo{
		Commitment:    *abi.ConvertType(out[0], new([32]byte)).(*[32]byte),
		Deposit:       *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		Revealed:      *abi.ConvertType(out[2], new(bool)).(*bool),
		RevealedValue: *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
	}, nil
}

// RegisteredDomains lists every registered domain with owner and expiry.
func (c *Client) RegisteredDomains(ctx context.Context) ([]RegisteredDomain, error) {
	out, err := c.call(ctx, common.Address{}, "getAllRegisteredDomains")
	if err != nil {
		return nil, err
	}
	names := *abi.ConvertType(out[0], new([]string)).(*[]string)
	owners := *abi.ConvertType(out[1], new([]common.Address)).(*[]common.Address)
	expiries := *abi.ConvertType(out[2], new([]*big.Int)).(*[]*big.Int)
	if len(owners) != len(names) || len(expiries) != len(names) {
		return nil, &Error{Op: "getAllRegisteredDomains", Kind: KindUnknown, Reason: "registrar returned mismatched domain lists"}
	}

	domains := make([]RegisteredDomain, len(names))
	for i := range names {
		domains[i] = RegisteredDomain{Name: names[i], Owner: owners[i], Expiry: expiries[i]}
	}
	return domains, nil
}

// Balance returns the latest balance of account in wei.
func (c *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, Classify("balance", err)
	}
	return bal, nil
}

// ChainID returns the chain the backend is connected to.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, Classify("chainId", err)
	}
	return id, nil
}

// GasPrice returns the node's suggested gas price.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, Classify("gasPrice", err)
	}
	return price, nil
}

// StartAuction opens a fresh auction for name.
func (c *Client) StartAuction(ctx context.Context, opts *bind.TransactOpts, name string) (*TxResult, error) {
	return c.transact(ctx, opts, nil, "startAuction", name)
}

// CommitBid submits a sealed commitment with deposit attached.
func (c *Client) CommitBid(ctx context.Context, opts *bind.TransactOpts, name string, commitment common.Hash, deposit *big.Int) (*TxResult, error) {
	return c.transact(ctx, opts, deposit, "commitBid", name, [32]byte(commitment))
}

// RevealBid opens a previously committed bid.
func (c *Client) RevealBid(ctx context.Context, opts *bind.TransactOpts, name string, value *big.Int, secret [32]byte) (*TxResult, error) {
	return c.transact(ctx, opts, nil, "revealBid", name, value, secret)
}

// FinalizeAuction settles the auction and registers name to the winner.
func (c *Client) FinalizeAuction(ctx context.Context, opts *bind.TransactOpts, name string) (*TxResult, error) {
	return c.transact(ctx, opts, nil, "finalizeAuction", name)
}

// SendToDomain forwards value to the owner of name.
func (c *Client) SendToDomain(ctx context.Context, opts *bind.TransactOpts, name string, value *big.Int) (*TxResult, error) {
	return c.transact(ctx, opts, value, "sendToDomain", name)
}

func (c *Client) transact(ctx context.Context, opts *bind.TransactOpts, value *big.Int, method string, args ...interface{}) (*TxResult, error) {
	if opts == nil {
		return nil, &Error{Op: method, Kind: KindUnknown, Reason: "no signer available"}
	}
	txOpts := *opts
	txOpts.Context = ctx
	txOpts.Value = value

	start := time.Now()
	tx, err := c.contract.Transact(&txOpts, method, args...)
	if err != nil {
		metrics.RecordTransaction(method, time.Since(start), err)
		return nil, Classify(method, err)
	}
	c.logger.Info("transaction submitted", "method", method, "hash", tx.Hash().Hex(), "from", txOpts.From.Hex())

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		metrics.RecordTransaction(method, time.Since(start), err)
		return nil, Classify(method, err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		err := &Error{Op: method, Kind: KindUnknown, Reason: "transaction reverted"}
		metrics.RecordTransaction(method, time.Since(start), err)
		return nil, err
	}
	metrics.RecordTransaction(method, time.Since(start), nil)

	result := &TxResult{Hash: tx.Hash(), GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return result, nil
}
