package domain

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pendergraft/ntunames/internal/registrar"
	"github.com/pendergraft/ntunames/internal/storage"
)

const (
	testNow      int64 = 1_700_000_000
	commitWindow int64 = 600
	revealWindow int64 = 600
	testChainID  int64 = 11155111
	testGasPrice int64 = 1_000_000_000 // 1 gwei
)

var (
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// mockRegistrar implements Registrar for testing. Writes mutate its state the
// way the contract would.
type mockRegistrar struct {
	mu sync.Mutex

	now      func() int64
	owners   map[string]common.Address
	expiries map[string]*big.Int
	auctions map[string]*registrar.AuctionInfo
	bids     map[string]*registrar.BidInfo
	balances map[common.Address]*big.Int
	reverse  map[common.Address]string
	listing  []registrar.RegisteredDomain

	// errs fails the named method with the given error.
	errs map[string]error
	// hooks run when the named method is called, before it answers.
	hooks map[string]func()
	calls []string
	txs   int
}

func newMockRegistrar() *mockRegistrar {
	return &mockRegistrar{
		now:      func() int64 { return testNow },
		owners:   make(map[string]common.Address),
		expiries: make(map[string]*big.Int),
		auctions: make(map[string]*registrar.AuctionInfo),
		bids:     make(map[string]*registrar.BidInfo),
		balances: make(map[common.Address]*big.Int),
		reverse:  make(map[common.Address]string),
		errs:     make(map[string]error),
		hooks:    make(map[string]func()),
	}
}

// sealed is the mock contract's commitment: the domain is part of the hash.
func sealed(name string, value *big.Int, secret string) common.Hash {
	var sb [32]byte
	copy(sb[:], secret)
	return crypto.Keccak256Hash([]byte(name), common.LeftPadBytes(value.Bytes(), 32), sb[:])
}

func bidKey(name string, account common.Address) string {
	return name + "|" + strings.ToLower(account.Hex())
}

func (m *mockRegistrar) record(method string) error {
	m.mu.Lock()
	m.calls = append(m.calls, method)
	err, hook := m.errs[method], m.hooks[method]
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (m *mockRegistrar) called(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (m *mockRegistrar) startAuctionAt(name string, commitEnd int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auctions[name] = &registrar.AuctionInfo{
		CommitEndTime: big.NewInt(commitEnd),
		RevealEndTime: big.NewInt(commitEnd + revealWindow),
		HighestBid:    new(big.Int),
	}
}

func (m *mockRegistrar) tx() *registrar.TxResult {
	m.txs++
	return &registrar.TxResult{Hash: common.BigToHash(big.NewInt(int64(m.txs))), BlockNumber: uint64(100 + m.txs), GasUsed: 21000}
}

func (m *mockRegistrar) ResolveDomain(ctx context.Context, name string) (common.Address, error) {
	if err := m.record("resolveDomain"); err != nil {
		return common.Address{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.owners[name]
	if !ok {
		return common.Address{}, &registrar.Error{Op: "resolveDomain", Kind: registrar.KindNotRegistered, Reason: "Domain not registered"}
	}
	return owner, nil
}

func (m *mockRegistrar) DomainExpiry(ctx context.Context, name string) (*big.Int, error) {
	if err := m.record("getDomainExpiry"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.expiries[name]; ok {
		return e, nil
	}
	return new(big.Int), nil
}

func (m *mockRegistrar) AuctionInfo(ctx context.Context, name string) (*registrar.AuctionInfo, error) {
	if err := m.record("getAuctionInfo"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.auctions[name]; ok {
		cp := *a
		return &cp, nil
	}
	return &registrar.AuctionInfo{CommitEndTime: new(big.Int), RevealEndTime: new(big.Int), HighestBid: new(big.Int)}, nil
}

func (m *mockRegistrar) MyBid(ctx context.Context, name string, account common.Address) (*registrar.BidInfo, error) {
	if err := m.record("getMyBid"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bids[bidKey(name, account)]; ok {
		cp := *b
		return &cp, nil
	}
	return &registrar.BidInfo{Deposit: new(big.Int), RevealedValue: new(big.Int)}, nil
}

func (m *mockRegistrar) ReverseResolve(ctx context.Context, addr common.Address) (string, error) {
	if err := m.record("reverseResolve"); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reverse[addr], nil
}

func (m *mockRegistrar) RegisteredDomains(ctx context.Context) ([]registrar.RegisteredDomain, error) {
	if err := m.record("getAllRegisteredDomains"); err != nil {
		return nil, err
	}
	return m.listing, nil
}

func (m *mockRegistrar) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	if err := m.record("balance"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (m *mockRegistrar) GasPrice(ctx context.Context) (*big.Int, error) {
	if err := m.record("gasPrice"); err != nil {
		return nil, err
	}
	return big.NewInt(testGasPrice), nil
}

func (m *mockRegistrar) MakeCommitment(ctx context.Context, name string, value *big.Int, secret [32]byte) (common.Hash, error) {
	if err := m.record("makeCommitment"); err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash([]byte(name), common.LeftPadBytes(value.Bytes(), 32), secret[:]), nil
}

func (m *mockRegistrar) StartAuction(ctx context.Context, opts *bind.TransactOpts, name string) (*registrar.TxResult, error) {
	if err := m.record("startAuction"); err != nil {
		return nil, err
	}
	m.startAuctionAt(name, m.now()+commitWindow)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx(), nil
}

func (m *mockRegistrar) CommitBid(ctx context.Context, opts *bind.TransactOpts, name string, commitment common.Hash, deposit *big.Int) (*registrar.TxResult, error) {
	if err := m.record("commitBid"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := bidKey(name, opts.From)
	if b, ok := m.bids[key]; ok && b.Commitment != (common.Hash{}) {
		return nil, &registrar.Error{Op: "commitBid", Kind: registrar.KindAlreadyCommitted, Reason: "Already committed"}
	}
	m.bids[key] = &registrar.BidInfo{Commitment: commitment, Deposit: deposit, RevealedValue: new(big.Int)}
	return m.tx(), nil
}

func (m *mockRegistrar) RevealBid(ctx context.Context, opts *bind.TransactOpts, name string, value *big.Int, secret [32]byte) (*registrar.TxResult, error) {
	if err := m.record("revealBid"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bids[bidKey(name, opts.From)]
	if b == nil || b.Commitment == (common.Hash{}) {
		return nil, &registrar.Error{Op: "revealBid", Kind: registrar.KindNoCommitment, Reason: "No commitment found"}
	}
	if crypto.Keccak256Hash([]byte(name), common.LeftPadBytes(value.Bytes(), 32), secret[:]) != b.Commitment {
		return nil, &registrar.Error{Op: "revealBid", Kind: registrar.KindInvalidReveal, Reason: "Invalid reveal"}
	}
	b.Revealed = true
	b.RevealedValue = value
	if a := m.auctions[name]; a != nil && value.Cmp(a.HighestBid) > 0 {
		a.HighestBid = value
		a.HighestBidder = opts.From
	}
	return m.tx(), nil
}

func (m *mockRegistrar) FinalizeAuction(ctx context.Context, opts *bind.TransactOpts, name string) (*registrar.TxResult, error) {
	if err := m.record("finalizeAuction"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.auctions[name]
	a.Finalized = true
	m.owners[name] = a.HighestBidder
	return m.tx(), nil
}

func (m *mockRegistrar) SendToDomain(ctx context.Context, opts *bind.TransactOpts, name string, value *big.Int) (*registrar.TxResult, error) {
	if err := m.record("sendToDomain"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx(), nil
}

// mockSigner implements Signer for testing.
type mockSigner struct {
	account common.Address
}

func (s *mockSigner) Account() (common.Address, bool) {
	return s.account, s.account != (common.Address{})
}

func (s *mockSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: s.account, Context: ctx}, nil
}

// memBidStore implements storage.BidStore in memory.
type memBidStore struct {
	mu   sync.Mutex
	bids map[string]*storage.Bid
	seq  int
}

func newMemBidStore() *memBidStore {
	return &memBidStore{bids: make(map[string]*storage.Bid)}
}

func (s *memBidStore) key(chainID int64, domain, account string, epoch int64) string {
	return strings.Join([]string{big.NewInt(chainID).String(), domain, strings.ToLower(account), big.NewInt(epoch).String()}, "|")
}

func (s *memBidStore) SaveBid(ctx context.Context, bid *storage.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bid.Status == "" {
		bid.Status = storage.BidPending
	}
	bid.Account = strings.ToLower(bid.Account)
	k := s.key(bid.ChainID, bid.Domain, bid.Account, bid.Epoch)
	for _, b := range s.bids {
		if s.key(b.ChainID, b.Domain, b.Account, b.Epoch) == k {
			bid.ID = b.ID
		}
	}
	if bid.ID == "" {
		s.seq++
		bid.ID = big.NewInt(int64(s.seq)).String()
	}
	cp := *bid
	s.bids[bid.ID] = &cp
	return nil
}

func (s *memBidStore) GetBid(ctx context.Context, chainID int64, domain, account string, epoch int64) (*storage.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(chainID, domain, account, epoch)
	for _, b := range s.bids {
		if s.key(b.ChainID, b.Domain, b.Account, b.Epoch) == k {
			cp := *b
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *memBidStore) UpdateBidStatus(ctx context.Context, id string, status storage.BidStatus, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bids[id]
	if !ok {
		return storage.ErrNotFound
	}
	b.Status = status
	switch status {
	case storage.BidCommitted:
		if txHash != "" {
			b.CommitTx = txHash
		}
	case storage.BidRevealed:
		if txHash != "" {
			b.RevealTx = txHash
		}
	}
	return nil
}

func (s *memBidStore) ListBids(ctx context.Context, filter storage.BidFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Bid], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Bid
	for _, b := range s.bids {
		if filter.Domain != "" && b.Domain != filter.Domain {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		out = append(out, *b)
	}
	return &storage.PaginatedResult[storage.Bid]{Data: out}, nil
}

func (s *memBidStore) DeleteBid(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bids[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.bids, id)
	return nil
}

func (s *memBidStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bids)
}
