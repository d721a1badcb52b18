//go:build e2e

package e2e

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pendergraft/ntunames/internal/auction/domain"
	"github.com/pendergraft/ntunames/internal/config"
	"github.com/pendergraft/ntunames/internal/registrar"
	"github.com/pendergraft/ntunames/internal/server"
	"github.com/pendergraft/ntunames/internal/storage"
	"github.com/pendergraft/ntunames/pkg/client"
)

// chainNow is the block time the fake chain and the service agree on.
const chainNow int64 = 1_700_000_000

var (
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	TestServer        *httptest.Server
	Store             storage.Store
	Chain             *fakeChain
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("ntunames"),
		postgres.WithUsername("ntunames"),
		postgres.WithPassword("ntunames"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// startServerE wires the real service and server over a Postgres journal.
func startServerE(connString string, chain *fakeChain) (*httptest.Server, storage.Store, error) {
	cfg := &config.Config{
		Server:  config.ServerConfig{RequestTimeout: 10},
		Chain:   config.ChainConfig{ChainID: config.DefaultChainID},
		Storage: config.StorageConfig{Type: "postgres", Postgres: config.PostgresConfig{URL: connString}},
		Auction: config.AuctionConfig{FailedPolicy: config.FailedPolicyIgnoreFinalized},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	policy, err := domain.ParseFailedAuctionPolicy(cfg.Auction.FailedPolicy)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	svc := domain.LoggingMiddleware(logger)(domain.NewService(chain, store, nil, domain.Config{
		ChainID: cfg.Chain.ChainID,
		Policy:  policy,
		Now:     func() time.Time { return time.Unix(chainNow, 0) },
	}, logger))

	srv := server.New(cfg, server.Deps{Auction: svc, Node: chain}, logger)
	return httptest.NewServer(srv.Handler()), store, nil
}

// newClient creates a client for the test server
func newClient(ts *httptest.Server) *client.Client {
	return client.New(ts.URL)
}

// saveBid journals a committed bid directly in Postgres.
func saveBid(t *testing.T, name string, account common.Address, epoch int64) *storage.Bid {
	t.Helper()
	bid := &storage.Bid{
		ChainID:    config.DefaultChainID,
		Domain:     name,
		Account:    account.Hex(),
		Epoch:      epoch,
		AmountWei:  "100000000000000000",
		DepositWei: "500000000000000000",
		Secret:     "e2e-secret-" + uuid.NewString()[:8],
		Commitment: common.BigToHash(big.NewInt(epoch)).Hex(),
		Status:     storage.BidCommitted,
		CommitTx:   common.BigToHash(big.NewInt(epoch + 1)).Hex(),
	}
	require.NoError(t, testCtx.Store.SaveBid(context.Background(), bid))
	return bid
}

// assertHTTPError checks that err is an API error with the given code.
func assertHTTPError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "expected *client.APIError, got %T", err)
	require.Equal(t, code, apiErr.Code)
}

// fakeChain is an in-memory registrar. It serves reads only: the server
// never signs, so the write methods are left to the embedded interface.
type fakeChain struct {
	domain.Registrar

	mu       sync.Mutex
	owners   map[string]common.Address
	expiries map[string]int64
	auctions map[string]*registrar.AuctionInfo
	reverse  map[common.Address]string
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		owners:   make(map[string]common.Address),
		expiries: make(map[string]int64),
		auctions: make(map[string]*registrar.AuctionInfo),
		reverse:  make(map[common.Address]string),
	}
}

func (c *fakeChain) register(name string, owner common.Address, expiry int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners[name] = owner
	c.expiries[name] = expiry
	if _, ok := c.reverse[owner]; !ok {
		c.reverse[owner] = name
	}
}

func (c *fakeChain) startAuction(name string, commitEnd, revealEnd int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auctions[name] = &registrar.AuctionInfo{
		CommitEndTime: big.NewInt(commitEnd),
		RevealEndTime: big.NewInt(revealEnd),
		HighestBid:    new(big.Int),
	}
}

func (c *fakeChain) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(config.DefaultChainID), nil
}

func (c *fakeChain) ResolveDomain(ctx context.Context, name string) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[name]
	if !ok {
		return common.Address{}, &registrar.Error{Op: "resolveDomain", Kind: registrar.KindNotRegistered, Reason: "Domain not registered"}
	}
	return owner, nil
}

func (c *fakeChain) DomainExpiry(ctx context.Context, name string) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return big.NewInt(c.expiries[name]), nil
}

func (c *fakeChain) AuctionInfo(ctx context.Context, name string) (*registrar.AuctionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.auctions[name]; ok {
		cp := *a
		return &cp, nil
	}
	return &registrar.AuctionInfo{CommitEndTime: new(big.Int), RevealEndTime: new(big.Int), HighestBid: new(big.Int)}, nil
}

func (c *fakeChain) MyBid(ctx context.Context, name string, account common.Address) (*registrar.BidInfo, error) {
	return &registrar.BidInfo{Deposit: new(big.Int), RevealedValue: new(big.Int)}, nil
}

func (c *fakeChain) ReverseResolve(ctx context.Context, addr common.Address) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reverse[addr], nil
}

func (c *fakeChain) RegisteredDomains(ctx context.Context) ([]registrar.RegisteredDomain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []registrar.RegisteredDomain
	for name, owner := range c.owners {
		out = append(out, registrar.RegisteredDomain{Name: name, Owner: owner, Expiry: big.NewInt(c.expiries[name])})
	}
	return out, nil
}

func (c *fakeChain) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	return new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18)), nil
}

func (c *fakeChain) GasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}
