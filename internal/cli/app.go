package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/ntunames/internal/auction/domain"
	"github.com/pendergraft/ntunames/internal/registrar"
	"github.com/pendergraft/ntunames/internal/storage"
	"github.com/pendergraft/ntunames/internal/validation"
	"github.com/pendergraft/ntunames/internal/wallet"
	"github.com/pendergraft/ntunames/pkg/client"
)

// errNoAccount is returned by write commands without a configured key.
var errNoAccount = errors.New("no signing account: set --keystore, KEYSTORE_PATH or PRIVATE_KEY")

// reader is the read side shared by the node-backed service and the API
// client.
type reader interface {
	Status(ctx context.Context, name string, account common.Address) (*domain.Status, error)
	ResolveOwner(ctx context.Context, name string) (*domain.OwnerLookup, error)
	Reverse(ctx context.Context, address string) (string, error)
	RegisteredDomains(ctx context.Context) ([]domain.RegisteredDomain, error)
}

// apiReader reads through an ntunames server.
type apiReader struct {
	c *client.Client
}

func (r apiReader) Status(ctx context.Context, name string, account common.Address) (*domain.Status, error) {
	acct := ""
	if account != (common.Address{}) {
		acct = account.Hex()
	}
	return r.c.Status(ctx, name, acct)
}

func (r apiReader) ResolveOwner(ctx context.Context, name string) (*domain.OwnerLookup, error) {
	return r.c.Resolve(ctx, name)
}

func (r apiReader) Reverse(ctx context.Context, address string) (string, error) {
	resp, err := r.c.Reverse(ctx, address)
	if err != nil {
		return "", err
	}
	return resp.Name, nil
}

func (r apiReader) RegisteredDomains(ctx context.Context) ([]domain.RegisteredDomain, error) {
	resp, err := r.c.ListDomains(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// appOptions selects what a command needs from the environment.
type appOptions struct {
	// signer requires a signing account and prompts for its password.
	signer bool
	// journal opens the local bid journal.
	journal bool
}

// app is a node-backed auction service for one invocation.
type app struct {
	settings Settings
	session  *wallet.Session
	store    storage.Store
	svc      domain.Service
	conn     *wallet.Connection
	logger   *slog.Logger
}

func openApp(ctx context.Context, s Settings, opts appOptions, p *prompter, stderr io.Writer) (*app, error) {
	logger := newLogger()

	if err := validation.ValidateAddress(s.Contract); err != nil {
		return nil, fmt.Errorf("contract address: %w", err)
	}
	policy, err := domain.ParseFailedAuctionPolicy(s.FailedPolicy)
	if err != nil {
		return nil, err
	}

	key, err := keySource(s, opts.signer, p)
	if err != nil {
		return nil, err
	}

	session := wallet.NewSession(wallet.Config{
		RPCURL:  s.RPCURL,
		ChainID: s.ChainID,
		Key:     key,
	}, wallet.WithLogger(logger))

	conn, err := session.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", s.RPCURL, err)
	}
	if conn.WrongNetwork() {
		fmt.Fprintf(stderr, "Warning: node is on chain %d, expected %d\n", conn.ChainID, conn.ExpectedChainID)
	}

	a := &app{settings: s, session: session, conn: conn, logger: logger}

	reg, err := registrar.New(common.HexToAddress(s.Contract), conn.Backend, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var bids storage.BidStore
	if opts.journal {
		store, err := storage.NewSQLiteStore(s.Journal, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening bid journal: %w", err)
		}
		a.store = store
		if err := store.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("opening bid journal: %w", err)
		}
		bids = store
	}

	svc := domain.NewService(reg, bids, session, domain.Config{
		ChainID: s.ChainID,
		Policy:  policy,
	}, logger)
	a.svc = domain.LoggingMiddleware(logger)(svc)

	return a, nil
}

// keySource picks the signing key. Write commands prompt for a missing
// keystore password; read commands only use a key that needs no prompt.
func keySource(s Settings, signer bool, p *prompter) (wallet.KeySource, error) {
	password := os.Getenv("KEYSTORE_PASSWORD")
	if s.Keystore != "" && password == "" {
		if !signer {
			return wallet.KeyFromConfig("", "", os.Getenv("PRIVATE_KEY")), nil
		}
		pw, err := p.secret(fmt.Sprintf("Password for %s: ", s.Keystore))
		if err != nil {
			return nil, fmt.Errorf("reading keystore password: %w", err)
		}
		password = pw
	}

	key := wallet.KeyFromConfig(s.Keystore, password, os.Getenv("PRIVATE_KEY"))
	if key == nil && signer {
		return nil, errNoAccount
	}
	return key, nil
}

// Account returns the connected account, or the zero address when read-only.
func (a *app) Account() common.Address {
	acct, _ := a.session.Account()
	return acct
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing bid journal", "error", err)
		}
	}
	a.session.Disconnect()
}

// openReader reads through the configured server, or the node when there
// is none. The account is the configured key's, if any.
func openReader(ctx context.Context, s Settings, p *prompter, stderr io.Writer) (reader, common.Address, func(), error) {
	if s.Server != "" {
		return apiReader{c: client.New(s.Server)}, common.Address{}, func() {}, nil
	}
	a, err := openApp(ctx, s, appOptions{}, p, stderr)
	if err != nil {
		return nil, common.Address{}, nil, err
	}
	return a.svc, a.Account(), a.Close, nil
}
