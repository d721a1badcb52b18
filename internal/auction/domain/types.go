package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Phase is the derived auction phase of a domain. It is recomputed on every
// resolution and never stored.
type Phase int

const (
	// PhaseUnregistered is the zero value: nothing has been resolved yet.
	PhaseUnregistered Phase = iota
	PhaseAvailable
	PhaseCommit
	PhaseReveal
	PhasePendingFinalize
	PhaseRegistered
	PhaseExpired
)

var phaseNames = [...]string{
	PhaseUnregistered:    "unregistered",
	PhaseAvailable:       "available",
	PhaseCommit:          "commit",
	PhaseReveal:          "reveal",
	PhasePendingFinalize: "pending_finalize",
	PhaseRegistered:      "registered",
	PhaseExpired:         "expired",
}

var phaseLabels = [...]string{
	PhaseUnregistered:    "Unknown",
	PhaseAvailable:       "Available",
	PhaseCommit:          "In Commit Phase",
	PhaseReveal:          "In Reveal Phase",
	PhasePendingFinalize: "Awaiting Finalization",
	PhaseRegistered:      "Registered",
	PhaseExpired:         "Expired",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Label is the human-readable status shown to users.
func (p Phase) Label() string {
	if p < 0 || int(p) >= len(phaseLabels) {
		return phaseLabels[PhaseUnregistered]
	}
	return phaseLabels[p]
}

// Timed reports whether the phase has a deadline the scheduler watches.
func (p Phase) Timed() bool {
	return p == PhaseCommit || p == PhaseReveal
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// RegistrationStatus is the registration part of a DomainRecord.
type RegistrationStatus int

const (
	StatusUnregistered RegistrationStatus = iota
	StatusRegistered
	StatusExpired
)

func (s RegistrationStatus) String() string {
	switch s {
	case StatusRegistered:
		return "registered"
	case StatusExpired:
		return "expired"
	default:
		return "unregistered"
	}
}

// MarshalText encodes the status by name.
func (s RegistrationStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *RegistrationStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unregistered":
		*s = StatusUnregistered
	case "registered":
		*s = StatusRegistered
	case "expired":
		*s = StatusExpired
	default:
		return fmt.Errorf("unknown registration status %q", text)
	}
	return nil
}

// DomainRecord is the registration state of one name.
type DomainRecord struct {
	Name       string             `json:"name"`
	Status     RegistrationStatus `json:"status"`
	Owner      *common.Address    `json:"owner,omitempty"`
	ExpiryTime *int64             `json:"expiryTime,omitempty"`
}

// AuctionRecord is an auction with normalized timestamps.
// CommitEndTime == 0 means there is no auction.
type AuctionRecord struct {
	CommitEndTime int64          `json:"commitEndTime"`
	RevealEndTime int64          `json:"revealEndTime"`
	HighestBid    *big.Int       `json:"highestBid"`
	HighestBidder common.Address `json:"highestBidder"`
	Finalized     bool           `json:"finalized"`
}

// Exists reports whether the record describes an auction at all.
func (a *AuctionRecord) Exists() bool {
	return a != nil && a.CommitEndTime != 0
}

// HasBid reports whether anyone revealed a non-zero bid.
func (a *AuctionRecord) HasBid() bool {
	return a != nil && a.HighestBid != nil && a.HighestBid.Sign() > 0
}

// Failed reports whether the reveal phase is over with no revealed bid.
func (a *AuctionRecord) Failed(now int64) bool {
	return a.Exists() && now >= a.RevealEndTime && !a.HasBid()
}

// BidRecord is one account's participation in the current auction.
type BidRecord struct {
	Commitment    common.Hash
	Deposit       *big.Int
	Revealed      bool
	RevealedValue *big.Int
}

// Resolution is the output of one phase resolution.
type Resolution struct {
	Name   string `json:"name"`
	Phase  Phase  `json:"phase"`
	Status string `json:"status"`

	Domain  DomainRecord   `json:"domain"`
	Auction *AuctionRecord `json:"auction,omitempty"`

	// Deadline is the end of the current Commit or Reveal window, else 0.
	Deadline int64 `json:"deadline,omitempty"`
	// Epoch identifies the auction (its commitEndTime); 0 without one.
	Epoch int64 `json:"epoch,omitempty"`
	// RecheckRequired is set when a finalized auction is reported as
	// Registered before the registration read confirms it.
	RecheckRequired bool `json:"recheckRequired,omitempty"`
	// Failures lists sub-fetches that were downgraded to unknown.
	Failures []string `json:"failures,omitempty"`

	ResolvedAt int64 `json:"resolvedAt"`
}

// Membership is the caller's participation in one auction epoch.
type Membership struct {
	Epoch          int64       `json:"epoch"`
	HasCommitted   bool        `json:"hasCommitted"`
	HasRevealed    bool        `json:"hasRevealed"`
	RevealedAmount *big.Int    `json:"revealedAmount,omitempty"`
	Commitment     common.Hash `json:"-"`
}

// Action is a user action on an auction.
type Action string

const (
	ActionCommit   Action = "commit"
	ActionReveal   Action = "reveal"
	ActionFinalize Action = "finalize"
)

// ActionState says whether one action is available and, if not, why.
type ActionState struct {
	Action    Action `json:"action"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Actions is the output of the availability gate.
type Actions struct {
	Commit   ActionState `json:"commit"`
	Reveal   ActionState `json:"reveal"`
	Finalize ActionState `json:"finalize"`
}

// Available lists the actions that may be taken, in commit, reveal,
// finalize order.
func (a Actions) Available() []Action {
	var out []Action
	for _, s := range []ActionState{a.Commit, a.Reveal, a.Finalize} {
		if s.Available {
			out = append(out, s.Action)
		}
	}
	return out
}

// State returns the gate result for one action.
func (a Actions) State(action Action) ActionState {
	switch action {
	case ActionCommit:
		return a.Commit
	case ActionReveal:
		return a.Reveal
	case ActionFinalize:
		return a.Finalize
	}
	return ActionState{Action: action, Reason: "unknown action"}
}

// Status is everything a domain view shows for one account.
type Status struct {
	Resolution
	Account    *common.Address `json:"account,omitempty"`
	Membership Membership      `json:"membership"`
	Actions    Actions         `json:"actions"`
	Balance    *big.Int        `json:"balance,omitempty"`
}

// RegisteredDomain is one entry of the registration history.
type RegisteredDomain struct {
	Name    string         `json:"name"`
	Owner   common.Address `json:"owner"`
	Expiry  int64          `json:"expiry"`
	Expired bool           `json:"expired"`
}

// OwnerLookup is the result of resolving a name to its owner.
type OwnerLookup struct {
	Name    string             `json:"name"`
	Owner   *common.Address    `json:"owner,omitempty"`
	Status  RegistrationStatus `json:"status"`
	Message string             `json:"message,omitempty"`
}

// CommitRequest is the input of Commit.
type CommitRequest struct {
	Name         string
	Amount       *big.Int // the sealed bid, in wei
	Deposit      *big.Int // escrow sent with the commitment; defaults to Amount
	Secret       string
	Confirmation string
}

// CommitResult describes a successful commitment.
type CommitResult struct {
	Name       string      `json:"name"`
	Epoch      int64       `json:"epoch"`
	Commitment common.Hash `json:"commitment"`
	Deposit    *big.Int    `json:"deposit"`
	StartTx    *TxInfo     `json:"startTx,omitempty"`
	CommitTx   TxInfo      `json:"commitTx"`
	JournalID  string      `json:"journalId,omitempty"`
}

// RevealRequest is the input of Reveal. Amount and Secret may be left empty
// to use the journaled bid.
type RevealRequest struct {
	Name   string
	Amount *big.Int
	Secret string
}

// RevealResult describes a successful reveal.
type RevealResult struct {
	Name     string   `json:"name"`
	Epoch    int64    `json:"epoch"`
	Amount   *big.Int `json:"amount"`
	RevealTx TxInfo   `json:"revealTx"`
}

// SendResult describes a value transfer to a domain owner.
type SendResult struct {
	Name   string         `json:"name"`
	Owner  common.Address `json:"owner"`
	Amount *big.Int       `json:"amount"`
	Tx     TxInfo         `json:"tx"`
}

// TxInfo identifies a mined transaction.
type TxInfo struct {
	Hash        common.Hash `json:"hash"`
	BlockNumber uint64      `json:"blockNumber"`
	GasUsed     uint64      `json:"gasUsed"`
}
