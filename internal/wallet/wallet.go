// Package wallet owns the process-wide node connection and signing account.
//
// A Session moves through Disconnected -> Connecting -> Connected and back.
// Concurrent Connect calls share one attempt. Disconnect always tears down
// the chain watcher and every registered listener, so a new connection
// starts with none.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/singleflight"

	"github.com/pendergraft/ntunames/internal/registrar"
)

var (
	ErrNotConnected = errors.New("wallet not connected")
	ErrReadOnly     = errors.New("no account connected")
)

// State is the connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Backend is a node connection. *ethclient.Client satisfies it.
type Backend interface {
	registrar.Backend
	Close()
}

// Dialer opens a Backend.
type Dialer func(ctx context.Context, rawurl string) (Backend, error)

// DialEthclient dials a JSON-RPC node with go-ethereum's ethclient.
func DialEthclient(ctx context.Context, rawurl string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Config holds session settings.
type Config struct {
	RPCURL string
	// ChainID is the expected network. A different node chain is reported,
	// not rejected.
	ChainID int64
	// Key is nil for a read-only session.
	Key          KeySource
	PollInterval time.Duration
}

// Connection is a snapshot of a live connection.
type Connection struct {
	Backend         Backend
	Account         common.Address
	ChainID         int64
	ExpectedChainID int64
}

// HasAccount reports whether the connection can sign.
func (c *Connection) HasAccount() bool {
	return c.Account != (common.Address{})
}

// WrongNetwork reports whether the node is on another chain than expected.
func (c *Connection) WrongNetwork() bool {
	return c.ExpectedChainID != 0 && c.ChainID != c.ExpectedChainID
}

// Option configures a Session.
type Option func(*Session)

// WithDialer replaces the ethclient dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dial = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session is the explicit connection state machine.
type Session struct {
	cfg    Config
	dial   Dialer
	logger *slog.Logger
	group  singleflight.Group

	mu        sync.Mutex
	state     State
	epoch     uint64
	backend   Backend
	key       *ecdsa.PrivateKey
	account   common.Address
	chainID   int64
	nextID    int
	accountFn map[int]func(common.Address)
	chainFn   map[int]func(int64)
	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// NewSession creates a disconnected session.
func NewSession(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:       cfg,
		dial:      DialEthclient,
		logger:    slog.Default(),
		accountFn: make(map[int]func(common.Address)),
		chainFn:   make(map[int]func(int64)),
	}
	if s.cfg.PollInterval <= 0 {
		s.cfg.PollInterval = 15 * time.Second
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the connection, or returns the live one. Callers that
// arrive while an attempt is in flight wait for that attempt.
func (s *Session) Connect(ctx context.Context) (*Connection, error) {
	if conn := s.Connection(); conn != nil {
		return conn, nil
	}
	// Keyed by epoch so a Connect after Disconnect never joins the attempt
	// the disconnect abandoned.
	s.mu.Lock()
	key := fmt.Sprint("connect-", s.epoch)
	s.mu.Unlock()
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.connect(ctx)
	})
	if shared {
		s.logger.Debug("joined in-flight connection attempt")
	}
	if err != nil {
		return nil, err
	}
	return v.(*Connection), nil
}

func (s *Session) connect(ctx context.Context) (*Connection, error) {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return s.Connection(), nil
	}
	s.state = StateConnecting
	epoch := s.epoch
	s.mu.Unlock()

	conn, key, err := s.open(ctx)
	if err != nil {
		s.mu.Lock()
		if s.epoch == epoch {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		return nil, err
	}

	watchCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	if s.epoch != epoch {
		// Disconnected while dialing.
		s.mu.Unlock()
		stop()
		conn.Backend.Close()
		return nil, ErrNotConnected
	}
	s.state = StateConnected
	s.backend = conn.Backend
	s.key = key
	s.account = conn.Account
	s.chainID = conn.ChainID
	s.stopWatch = stop
	s.watchDone = done
	s.mu.Unlock()

	go s.watchChain(watchCtx, conn.Backend, done)

	s.logger.Info("wallet connected",
		"account", conn.Account.Hex(),
		"chain_id", conn.ChainID,
		"expected_chain_id", conn.ExpectedChainID,
	)
	if conn.WrongNetwork() {
		s.logger.Warn("connected to unexpected network", "chain_id", conn.ChainID, "expected", conn.ExpectedChainID)
	}
	return conn, nil
}

func (s *Session) open(ctx context.Context) (*Connection, *ecdsa.PrivateKey, error) {
	var key *ecdsa.PrivateKey
	var account common.Address
	if s.cfg.Key != nil {
		k, err := s.cfg.Key.Load()
		if err != nil {
			return nil, nil, err
		}
		key = k
		account = crypto.PubkeyToAddress(k.PublicKey)
	}

	backend, err := s.dial(ctx, s.cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", s.cfg.RPCURL, err)
	}
	id, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return nil, nil, fmt.Errorf("reading chain id: %w", err)
	}

	return &Connection{
		Backend:         backend,
		Account:         account,
		ChainID:         id.Int64(),
		ExpectedChainID: s.cfg.ChainID,
	}, key, nil
}

// Connection returns the live connection, or nil.
func (s *Session) Connection() *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return nil
	}
	return &Connection{
		Backend:         s.backend,
		Account:         s.account,
		ChainID:         s.chainID,
		ExpectedChainID: s.cfg.ChainID,
	}
}

// Disconnect closes the connection and drops every listener. It is safe to
// call in any state and more than once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	stop, done := s.stopWatch, s.watchDone
	backend := s.backend
	s.stopWatch, s.watchDone = nil, nil
	s.epoch++
	s.backend = nil
	s.key = nil
	s.account = common.Address{}
	s.chainID = 0
	s.state = StateDisconnected
	s.accountFn = make(map[int]func(common.Address))
	s.chainFn = make(map[int]func(int64))
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	if backend != nil {
		backend.Close()
		s.logger.Info("wallet disconnected")
	}
}

// Reconnect tears down the current connection and opens a new one.
func (s *Session) Reconnect(ctx context.Context) (*Connection, error) {
	s.Disconnect()
	return s.Connect(ctx)
}

// SwitchAccount replaces the signing key on a live connection and notifies
// account listeners. A nil source makes the session read-only.
// The CLI binds one key per process; this is for embedders that hold a
// session open across key changes.
func (s *Session) SwitchAccount(src KeySource) error {
	var key *ecdsa.PrivateKey
	var account common.Address
	if src != nil {
		k, err := src.Load()
		if err != nil {
			return err
		}
		key = k
		account = crypto.PubkeyToAddress(k.PublicKey)
	}

	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	changed := s.account != account
	s.key = key
	s.account = account
	s.cfg.Key = src
	fns := accountListeners(s.accountFn)
	s.mu.Unlock()

	if changed {
		s.logger.Info("account changed", "account", account.Hex())
		for _, fn := range fns {
			fn(account)
		}
	}
	return nil
}

// Account returns the connected signing account.
func (s *Session) Account() (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.key == nil {
		return common.Address{}, false
	}
	return s.account, true
}

// TransactOpts returns signing options bound to ctx for the connected
// account on the node's chain.
func (s *Session) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	s.mu.Lock()
	state, key, chainID := s.state, s.key, s.chainID
	s.mu.Unlock()

	if state != StateConnected {
		return nil, ErrNotConnected
	}
	if key == nil {
		return nil, ErrReadOnly
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
	if err != nil {
		return nil, fmt.Errorf("creating transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// OnAccountChange registers fn for account switches. The returned function
// unregisters it and is safe to call more than once.
func (s *Session) OnAccountChange(fn func(common.Address)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.accountFn[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.accountFn, id)
	}
}

// OnChainChange registers fn for chain switches detected by the watcher.
func (s *Session) OnChainChange(fn func(int64)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.chainFn[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.chainFn, id)
	}
}

func (s *Session) watchChain(ctx context.Context, backend Backend, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollChain(ctx, backend)
		}
	}
}

func (s *Session) pollChain(ctx context.Context, backend Backend) {
	id, err := backend.ChainID(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("chain id poll failed", "error", err)
		}
		return
	}

	s.mu.Lock()
	if s.backend != backend || s.chainID == id.Int64() {
		s.mu.Unlock()
		return
	}
	s.chainID = id.Int64()
	fns := make([]func(int64), 0, len(s.chainFn))
	for _, fn := range s.chainFn {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	s.logger.Info("chain changed", "chain_id", id.Int64(), "expected", s.cfg.ChainID)
	for _, fn := range fns {
		fn(id.Int64())
	}
}

func accountListeners(m map[int]func(common.Address)) []func(common.Address) {
	fns := make([]func(common.Address), 0, len(m))
	for _, fn := range m {
		fns = append(fns, fn)
	}
	return fns
}
