// Package domain contains the auction state model: phase resolution, bid
// membership, action gating and the commit/reveal/finalize flows built on
// top of them.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/ntunames/internal/observability/metrics"
	"github.com/pendergraft/ntunames/internal/registrar"
	"github.com/pendergraft/ntunames/internal/storage"
	"github.com/pendergraft/ntunames/internal/timestamp"
	"github.com/pendergraft/ntunames/internal/units"
	"github.com/pendergraft/ntunames/internal/validation"
)

// Common errors returned by the auction service. Contract failures are
// returned as *registrar.Error instead.
var (
	ErrInvalidDomain     = errors.New("invalid domain name")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidSecret     = errors.New("invalid secret")
	ErrNoSigner          = errors.New("no wallet connected")
	ErrActionUnavailable = errors.New("action not available")
	ErrNoSavedBid        = errors.New("no saved bid for this auction; amount and secret are required")
	ErrNoJournal         = errors.New("bid journal not configured")
)

// DefaultCommitGasLimit is the per-transaction gas reserved by the balance
// preflight when none is configured.
const DefaultCommitGasLimit = 300_000

// Service is the auction API used by the CLI and the HTTP transport.
type Service interface {
	Resolve(ctx context.Context, name string) (*Resolution, error)
	Status(ctx context.Context, name string, account common.Address) (*Status, error)
	Commit(ctx context.Context, req CommitRequest) (*CommitResult, error)
	Reveal(ctx context.Context, req RevealRequest) (*RevealResult, error)
	Finalize(ctx context.Context, name string) (*TxInfo, error)
	Send(ctx context.Context, name string, amount *big.Int) (*SendResult, error)
	ResolveOwner(ctx context.Context, name string) (*OwnerLookup, error)
	Reverse(ctx context.Context, address string) (string, error)
	RegisteredDomains(ctx context.Context) ([]RegisteredDomain, error)
	Bids(ctx context.Context, filter storage.BidFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Bid], error)
}

// Config holds service settings.
type Config struct {
	ChainID        int64
	Policy         FailedAuctionPolicy
	CommitGasLimit uint64
	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

type service struct {
	reg      Registrar
	bids     storage.BidStore
	signer   Signer
	resolver *Resolver
	checker  *Checker
	cfg      Config
	logger   *slog.Logger
}

// NewService creates an auction service. bids and signer may be nil: without
// a journal, reveals need the amount and secret; without a signer, only
// reads work.
func NewService(reg Registrar, bids storage.BidStore, signer Signer, cfg Config, logger *slog.Logger) *service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CommitGasLimit == 0 {
		cfg.CommitGasLimit = DefaultCommitGasLimit
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyIgnoreFinalized
	}
	return &service{
		reg:      reg,
		bids:     bids,
		signer:   signer,
		resolver: NewResolver(reg, cfg.Policy, logger),
		checker:  NewChecker(reg, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// Resolver returns the phase resolver the service uses.
func (s *service) Resolver() *Resolver {
	return s.resolver
}

// Checker returns the membership checker the service uses.
func (s *service) Checker() *Checker {
	return s.checker
}

func (s *service) now() int64 {
	return s.cfg.Now().Unix()
}

func domainName(name string) (string, error) {
	name = validation.NormalizeDomainName(name)
	if err := validation.ValidateDomainName(name); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	return name, nil
}

// Resolve derives the current phase of a domain.
func (s *service) Resolve(ctx context.Context, name string) (*Resolution, error) {
	name, err := domainName(name)
	if err != nil {
		return nil, err
	}
	res := s.resolver.Resolve(ctx, name, s.now())
	return &res, nil
}

// Status resolves a domain and gates actions for account. A zero account
// gets the anonymous view: no membership and no balance.
func (s *service) Status(ctx context.Context, name string, account common.Address) (*Status, error) {
	name, err := domainName(name)
	if err != nil {
		return nil, err
	}

	res := s.resolver.Resolve(ctx, name, s.now())
	st := &Status{Resolution: res, Membership: Membership{Epoch: res.Epoch}}
	if account != (common.Address{}) {
		acct := account
		st.Account = &acct
		st.Membership = s.checker.Check(ctx, name, account, res.Epoch)
		if bal, err := s.reg.Balance(ctx, account); err == nil {
			st.Balance = bal
		} else {
			s.logger.Debug("balance lookup failed", "account", account.Hex(), "error", err)
		}
	}
	st.Actions = Availability(res, st.Membership, account)
	return st, nil
}

func (s *service) signerFor(ctx context.Context) (common.Address, *bind.TransactOpts, error) {
	if s.signer == nil {
		return common.Address{}, nil, ErrNoSigner
	}
	account, ok := s.signer.Account()
	if !ok {
		return common.Address{}, nil, ErrNoSigner
	}
	opts, err := s.signer.TransactOpts(ctx)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("%w: %v", ErrNoSigner, err)
	}
	return account, opts, nil
}

func unavailable(gate ActionState) error {
	metrics.AuctionAction(string(gate.Action), "unavailable")
	return fmt.Errorf("%w: %s: %s", ErrActionUnavailable, gate.Action, gate.Reason)
}

// StaleError is a write the contract refused because the phase had already
// moved on. Current is the resolution read right after the refusal.
type StaleError struct {
	Err     error
	Current Resolution
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("%v (now %s)", e.Err, e.Current.Status)
}

func (e *StaleError) Unwrap() error {
	return e.Err
}

// actionFailed records a failed write. When the contract says the phase
// judgment was stale, name is resolved again so the caller sees where the
// auction actually is.
func (s *service) actionFailed(ctx context.Context, action Action, name string, err error) error {
	kind := registrar.KindOf(err)
	metrics.AuctionAction(string(action), kind.String())
	if !kind.RequiresRefresh() {
		return err
	}
	current := s.resolver.Resolve(ctx, name, s.now())
	s.logger.Info("phase changed under action", "action", action, "domain", name, "phase", current.Phase.String())
	return &StaleError{Err: err, Current: current}
}

// preflight fails locally when account cannot cover value plus gas for txs
// transactions. If the node cannot report balance or gas price the check is
// skipped and the contract decides.
func (s *service) preflight(ctx context.Context, op string, account common.Address, value *big.Int, txs int64) error {
	balance, err := s.reg.Balance(ctx, account)
	if err != nil {
		s.logger.Warn("balance preflight skipped", "account", account.Hex(), "error", err)
		return nil
	}
	gasPrice, err := s.reg.GasPrice(ctx)
	if err != nil {
		s.logger.Warn("balance preflight skipped", "account", account.Hex(), "error", err)
		return nil
	}

	fees := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(s.cfg.CommitGasLimit))
	fees.Mul(fees, big.NewInt(txs))
	required := new(big.Int).Add(value, fees)
	if balance.Cmp(required) < 0 {
		return &registrar.Error{
			Op:   op,
			Kind: registrar.KindInsufficientFunds,
			Reason: fmt.Sprintf("balance %s ETH is below the %s ETH required",
				units.FormatEther(balance), units.FormatEther(required)),
		}
	}
	return nil
}

// Commit seals a bid. If no auction is running it starts one first. The bid
// is journaled as pending before the commitment is sent so a failed or
// interrupted commit never loses the secret.
func (s *service) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	name, err := domainName(req.Name)
	if err != nil {
		return nil, err
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: bid must be greater than zero", ErrInvalidAmount)
	}
	if err := validation.ValidateSecretConfirmation(req.Secret, req.Confirmation); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	deposit := req.Deposit
	if deposit == nil {
		deposit = req.Amount
	}
	if deposit.Cmp(req.Amount) < 0 {
		return nil, fmt.Errorf("%w: deposit must cover the bid", ErrInvalidAmount)
	}

	account, opts, err := s.signerFor(ctx)
	if err != nil {
		return nil, err
	}

	res := s.resolver.Resolve(ctx, name, s.now())
	m := s.checker.Check(ctx, name, account, res.Epoch)
	if gate := Availability(res, m, account).Commit; !gate.Available {
		return nil, unavailable(gate)
	}

	needsStart := res.Phase != PhaseCommit
	txs := int64(1)
	if needsStart {
		txs = 2
	}
	if err := s.preflight(ctx, "commitBid", account, deposit, txs); err != nil {
		return nil, s.actionFailed(ctx, ActionCommit, name, err)
	}

	result := &CommitResult{Name: name, Deposit: new(big.Int).Set(deposit)}
	if needsStart {
		tx, err := s.reg.StartAuction(ctx, opts, name)
		if err != nil {
			return nil, s.actionFailed(ctx, ActionCommit, name, err)
		}
		info := txInfo(tx)
		result.StartTx = &info

		res = s.resolver.Resolve(ctx, name, s.now())
		if res.Phase != PhaseCommit {
			metrics.AuctionAction(string(ActionCommit), registrar.KindPhaseMismatch.String())
			return nil, &StaleError{
				Err: &registrar.Error{
					Op:     "commitBid",
					Kind:   registrar.KindPhaseMismatch,
					Reason: fmt.Sprintf("auction is %s after start", res.Status),
				},
				Current: res,
			}
		}
	}
	result.Epoch = res.Epoch

	secretBytes, err := registrar.SecretBytes(req.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	commitment, err := s.reg.MakeCommitment(ctx, name, req.Amount, secretBytes)
	if err != nil {
		return nil, s.actionFailed(ctx, ActionCommit, name, err)
	}
	result.Commitment = commitment

	entry, prev, err := s.journalCommit(ctx, name, account, res.Epoch, req.Amount, deposit, req.Secret, commitment)
	if err != nil {
		return nil, err
	}

	tx, err := s.reg.CommitBid(ctx, opts, name, commitment, deposit)
	if err != nil {
		if registrar.IsKind(err, registrar.KindAlreadyCommitted) {
			s.settleDuplicateCommit(ctx, entry, prev)
		}
		return nil, s.actionFailed(ctx, ActionCommit, name, err)
	}
	result.CommitTx = txInfo(tx)

	if entry != nil {
		result.JournalID = entry.ID
		s.markBid(ctx, entry.ID, storage.BidCommitted, tx.Hash.Hex())
	}
	metrics.AuctionAction(string(ActionCommit), "ok")
	return result, nil
}

// journalCommit records the bid as pending. A bid that is already committed
// for this epoch is never overwritten. prev is the pending entry that was
// replaced, if any.
func (s *service) journalCommit(ctx context.Context, name string, account common.Address, epoch int64, amount, deposit *big.Int, secret string, commitment common.Hash) (*storage.Bid, *storage.Bid, error) {
	if s.bids == nil {
		return nil, nil, nil
	}

	prev, err := s.bids.GetBid(ctx, s.cfg.ChainID, name, account.Hex(), epoch)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		prev = nil
	case err != nil:
		return nil, nil, fmt.Errorf("reading bid journal: %w", err)
	case prev.Status != storage.BidPending:
		return nil, nil, s.actionFailed(ctx, ActionCommit, name, &registrar.Error{
			Op:     "commitBid",
			Kind:   registrar.KindAlreadyCommitted,
			Reason: "bid already committed for this auction",
		})
	}

	entry := &storage.Bid{
		ChainID:    s.cfg.ChainID,
		Domain:     name,
		Account:    account.Hex(),
		Epoch:      epoch,
		AmountWei:  amount.String(),
		Secret:     secret,
		Commitment: commitment.Hex(),
		DepositWei: deposit.String(),
		Status:     storage.BidPending,
	}
	if err := s.bids.SaveBid(ctx, entry); err != nil {
		return nil, nil, fmt.Errorf("saving bid journal: %w", err)
	}
	return entry, prev, nil
}

// settleDuplicateCommit reconciles the journal after the contract reports an
// existing commitment. The earlier pending entry is the one that landed, so
// it is restored and marked committed; a fresh entry was never used.
func (s *service) settleDuplicateCommit(ctx context.Context, entry, prev *storage.Bid) {
	if entry == nil {
		return
	}
	if prev == nil {
		if err := s.bids.DeleteBid(ctx, entry.ID); err != nil {
			s.logger.Warn("dropping unused journal entry", "id", entry.ID, "error", err)
		}
		return
	}
	restored := *prev
	if err := s.bids.SaveBid(ctx, &restored); err != nil {
		s.logger.Warn("restoring journal entry", "id", prev.ID, "error", err)
		return
	}
	s.markBid(ctx, restored.ID, storage.BidCommitted, "")
}

func (s *service) markBid(ctx context.Context, id string, status storage.BidStatus, txHash string) {
	if s.bids == nil || id == "" {
		return
	}
	if err := s.bids.UpdateBidStatus(ctx, id, status, txHash); err != nil {
		s.logger.Warn("updating bid journal", "id", id, "status", status, "error", err)
	}
}

// Reveal discloses a committed bid. Missing amount or secret are taken from
// the journal. Whether the pair opens the commitment is for the contract to
// decide.
func (s *service) Reveal(ctx context.Context, req RevealRequest) (*RevealResult, error) {
	name, err := domainName(req.Name)
	if err != nil {
		return nil, err
	}
	if req.Amount != nil && req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: bid must be greater than zero", ErrInvalidAmount)
	}

	account, opts, err := s.signerFor(ctx)
	if err != nil {
		return nil, err
	}

	res := s.resolver.Resolve(ctx, name, s.now())
	m := s.checker.Check(ctx, name, account, res.Epoch)
	if gate := Availability(res, m, account).Reveal; !gate.Available {
		return nil, unavailable(gate)
	}

	amount, secret := req.Amount, req.Secret
	entry := s.savedBid(ctx, name, account, res.Epoch)
	if entry != nil {
		if amount == nil {
			if v, ok := new(big.Int).SetString(entry.AmountWei, 10); ok {
				amount = v
			}
		}
		if secret == "" {
			secret = entry.Secret
		}
	}
	if amount == nil || secret == "" {
		return nil, ErrNoSavedBid
	}
	if err := validation.ValidateSecret(secret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}

	secretBytes, err := registrar.SecretBytes(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}

	tx, err := s.reg.RevealBid(ctx, opts, name, amount, secretBytes)
	if err != nil {
		if registrar.IsKind(err, registrar.KindAlreadyRevealed) && entry != nil {
			s.markBid(ctx, entry.ID, storage.BidRevealed, "")
		}
		return nil, s.actionFailed(ctx, ActionReveal, name, err)
	}
	if entry != nil {
		s.markBid(ctx, entry.ID, storage.BidRevealed, tx.Hash.Hex())
	}
	metrics.AuctionAction(string(ActionReveal), "ok")
	return &RevealResult{Name: name, Epoch: res.Epoch, Amount: amount, RevealTx: txInfo(tx)}, nil
}

func (s *service) savedBid(ctx context.Context, name string, account common.Address, epoch int64) *storage.Bid {
	if s.bids == nil {
		return nil
	}
	entry, err := s.bids.GetBid(ctx, s.cfg.ChainID, name, account.Hex(), epoch)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("reading bid journal", "domain", name, "error", err)
		}
		return nil
	}
	return entry
}

// Finalize completes registration for the highest bidder.
func (s *service) Finalize(ctx context.Context, name string) (*TxInfo, error) {
	name, err := domainName(name)
	if err != nil {
		return nil, err
	}
	account, opts, err := s.signerFor(ctx)
	if err != nil {
		return nil, err
	}

	res := s.resolver.Resolve(ctx, name, s.now())
	if gate := Availability(res, Membership{}, account).Finalize; !gate.Available {
		return nil, unavailable(gate)
	}

	tx, err := s.reg.FinalizeAuction(ctx, opts, name)
	if err != nil {
		return nil, s.actionFailed(ctx, ActionFinalize, name, err)
	}
	metrics.AuctionAction(string(ActionFinalize), "ok")
	info := txInfo(tx)
	return &info, nil
}

// Send transfers amount to the owner of name. The owner is resolved first so
// an unregistered or expired name fails before anything is signed.
func (s *service) Send(ctx context.Context, name string, amount *big.Int) (*SendResult, error) {
	name, err := domainName(name)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	account, opts, err := s.signerFor(ctx)
	if err != nil {
		return nil, err
	}

	owner, err := s.reg.ResolveDomain(ctx, name)
	if err != nil {
		return nil, s.actionFailed(ctx, "send", name, err)
	}
	if owner == (common.Address{}) {
		return nil, s.actionFailed(ctx, "send", name, &registrar.Error{
			Op:     "sendToDomain",
			Kind:   registrar.KindNotRegistered,
			Reason: "domain not registered",
		})
	}
	if err := s.preflight(ctx, "sendToDomain", account, amount, 1); err != nil {
		return nil, s.actionFailed(ctx, "send", name, err)
	}

	tx, err := s.reg.SendToDomain(ctx, opts, name, amount)
	if err != nil {
		return nil, s.actionFailed(ctx, "send", name, err)
	}
	metrics.AuctionAction("send", "ok")
	return &SendResult{Name: name, Owner: owner, Amount: amount, Tx: txInfo(tx)}, nil
}

// ResolveOwner looks up the owner of name. Unregistered and expired names
// are results, not errors.
func (s *service) ResolveOwner(ctx context.Context, name string) (*OwnerLookup, error) {
	name, err := domainName(name)
	if err != nil {
		return nil, err
	}

	out := &OwnerLookup{Name: name}
	owner, err := s.reg.ResolveDomain(ctx, name)
	switch {
	case err == nil && owner != (common.Address{}):
		out.Owner = &owner
		out.Status = StatusRegistered
	case err == nil, registrar.IsKind(err, registrar.KindNotRegistered):
		out.Status = StatusUnregistered
		out.Message = registrar.Message(&registrar.Error{Kind: registrar.KindNotRegistered})
	case registrar.IsKind(err, registrar.KindExpired):
		out.Status = StatusExpired
		out.Message = registrar.Message(err)
	default:
		return nil, err
	}
	return out, nil
}

// Reverse returns the primary name of address, or "" when it has none.
func (s *service) Reverse(ctx context.Context, address string) (string, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return s.reg.ReverseResolve(ctx, common.HexToAddress(address))
}

// RegisteredDomains lists every registration the contract knows of.
func (s *service) RegisteredDomains(ctx context.Context) ([]RegisteredDomain, error) {
	list, err := s.reg.RegisteredDomains(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]RegisteredDomain, 0, len(list))
	for _, d := range list {
		expiry, err := timestamp.Normalize(d.Expiry)
		if err != nil {
			s.logger.Debug("skipping malformed expiry", "domain", d.Name, "error", err)
		}
		out = append(out, RegisteredDomain{
			Name:    d.Name,
			Owner:   d.Owner,
			Expiry:  expiry,
			Expired: expiry != 0 && now > expiry,
		})
	}
	return out, nil
}

// Bids lists the local bid journal.
func (s *service) Bids(ctx context.Context, filter storage.BidFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Bid], error) {
	if s.bids == nil {
		return nil, ErrNoJournal
	}
	if filter.ChainID == 0 {
		filter.ChainID = s.cfg.ChainID
	}
	return s.bids.ListBids(ctx, filter, pagination)
}
