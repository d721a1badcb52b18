package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/ntunames/internal/config"
)

// BidStore is the local bid journal. It remembers the amount and secret
// behind each commitment so a bid can be revealed later without re-entering
// them.
type BidStore interface {
	SaveBid(ctx context.Context, bid *Bid) error
	GetBid(ctx context.Context, chainID int64, domain, account string, epoch int64) (*Bid, error)
	UpdateBidStatus(ctx context.Context, id string, status BidStatus, txHash string) error
	ListBids(ctx context.Context, filter BidFilter, pagination PaginationParams) (*PaginatedResult[Bid], error)
	DeleteBid(ctx context.Context, id string) error
}

// Store combines all storage interfaces with lifecycle methods.
type Store interface {
	BidStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// BidStatus tracks how far a journaled bid got on chain.
type BidStatus string

const (
	// BidPending is saved before commitBid is sent; the commit may have failed.
	BidPending   BidStatus = "pending"
	BidCommitted BidStatus = "committed"
	BidRevealed  BidStatus = "revealed"
)

// Valid reports whether s is a known status.
func (s BidStatus) Valid() bool {
	switch s {
	case BidPending, BidCommitted, BidRevealed:
		return true
	}
	return false
}

// Bid is one journaled bid, unique per (chain, domain, account, epoch).
// Amounts are decimal wei strings; Account is lower-case hex.
type Bid struct {
	ID         string
	ChainID    int64
	Domain     string
	Account    string
	Epoch      int64 // auction commitEndTime
	AmountWei  string
	Secret     string
	Commitment string
	DepositWei string
	Status     BidStatus
	CommitTx   string
	RevealTx   string
	CreatedAt  string
	UpdatedAt  string
}

// BidFilter contains filter options for listing bids
type BidFilter struct {
	ChainID int64
	Account string
	Domain  string
	Status  BidStatus
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
