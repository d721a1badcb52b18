package registrar

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/tidwall/gjson"
)

// Kind classifies a registrar or wallet failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotRegistered
	KindExpired
	KindAuctionNotFound
	KindAlreadyCommitted
	KindAlreadyRevealed
	KindPhaseMismatch
	KindInvalidReveal
	KindNoCommitment
	KindInvalidDeposit
	KindInsufficientFunds
	KindUserRejected
	KindTransient
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindNotRegistered:     "not_registered",
	KindExpired:           "expired",
	KindAuctionNotFound:   "auction_not_found",
	KindAlreadyCommitted:  "already_committed",
	KindAlreadyRevealed:   "already_revealed",
	KindPhaseMismatch:     "phase_mismatch",
	KindInvalidReveal:     "invalid_reveal",
	KindNoCommitment:      "no_commitment",
	KindInvalidDeposit:    "invalid_deposit",
	KindInsufficientFunds: "insufficient_funds",
	KindUserRejected:      "user_rejected",
	KindTransient:         "transient",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// RequiresRefresh reports whether the caller should re-resolve the phase
// before offering the action again.
func (k Kind) RequiresRefresh() bool {
	return k == KindPhaseMismatch
}

var kindMessages = map[Kind]string{
	KindNotRegistered:     "Domain is not registered",
	KindExpired:           "Domain registration has expired",
	KindAuctionNotFound:   "No auction exists for this domain",
	KindAlreadyCommitted:  "This address has already committed a bid",
	KindAlreadyRevealed:   "This bid has already been revealed",
	KindInvalidReveal:     "Reveal does not match the commitment: check the amount and secret",
	KindNoCommitment:      "No commitment found for this address",
	KindInvalidDeposit:    "Deposit amount is invalid",
	KindInsufficientFunds: "Insufficient funds for bid plus network fees",
	KindUserRejected:      "Transaction was rejected",
	KindTransient:         "Network error, please try again",
}

// Error is a classified registrar failure.
type Error struct {
	Op     string
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the text shown to the user. Phase mismatches and unknown
// failures surface the contract's own reason.
func (e *Error) Message() string {
	if msg, ok := kindMessages[e.Kind]; ok {
		return msg
	}
	if e.Reason == "" {
		return "Unknown error"
	}
	return e.Reason
}

// KindOf returns the Kind of err, or KindUnknown if err was never classified.
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as any of kinds.
func IsKind(err error, kinds ...Kind) bool {
	if err == nil {
		return false
	}
	k := KindOf(err)
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// Message returns the user-facing message for any error.
func Message(err error) string {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Message()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

const (
	codeUserRejected  = 4001
	codeLimitExceeded = -32005
)

// Classify maps a raw provider or contract error to an *Error. Errors that
// are already classified are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		return err
	}

	reason := extractReason(err)
	out := &Error{Op: op, Reason: reason, Err: err}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeUserRejected:
			out.Kind = KindUserRejected
			return out
		case codeLimitExceeded:
			out.Kind = KindTransient
			return out
		}
	}
	if errors.Is(err, core.ErrInsufficientFunds) || errors.Is(err, core.ErrInsufficientFundsForTransfer) {
		out.Kind = KindInsufficientFunds
		return out
	}
	if errors.Is(err, context.DeadlineExceeded) {
		out.Kind = KindTransient
		return out
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		out.Kind = KindTransient
		return out
	}

	out.Kind = classifyText(op, reason)
	if out.Kind == KindUnknown && reason != err.Error() {
		out.Kind = classifyText(op, err.Error())
	}
	return out
}

type textRule struct {
	kind    Kind
	needles []string
}

// walletRules come first for every operation.
var walletRules = []textRule{
	{KindUserRejected, []string{"user rejected", "user denied", "rejected by user"}},
	{KindInsufficientFunds, []string{"insufficient funds"}},
}

// opRules order the revert needles of a write the way that write's reverts
// read. A reveal, for instance, mentions "commitment" in reverts that have
// nothing to do with a duplicate commit.
var opRules = map[string][]textRule{
	"commitBid": {
		{KindAuctionNotFound, []string{"does not exist", "no auction", "auction not found"}},
		{KindPhaseMismatch, []string{"phase", "ended"}},
		{KindInvalidDeposit, []string{"deposit"}},
		{KindAlreadyCommitted, []string{"committed"}},
	},
	"revealBid": {
		{KindPhaseMismatch, []string{"commit phase", "reveal phase"}},
		{KindNoCommitment, []string{"commitment", "not committed"}},
		{KindAlreadyRevealed, []string{"revealed"}},
		{KindInvalidReveal, []string{"invalid", "mismatch", "does not match"}},
		{KindInvalidDeposit, []string{"deposit"}},
		{KindPhaseMismatch, []string{"phase"}},
	},
}

// defaultRules apply to every operation after its own table.
var defaultRules = []textRule{
	{KindAlreadyCommitted, []string{"committed"}},
	{KindAlreadyRevealed, []string{"revealed"}},
	{KindExpired, []string{"expired"}},
	{KindNotRegistered, []string{"not registered"}},
	{KindAuctionNotFound, []string{"does not exist", "no auction", "auction not found"}},
	{KindPhaseMismatch, []string{"phase"}},
	{KindInvalidDeposit, []string{"deposit"}},
	{KindInvalidReveal, []string{"invalid", "mismatch", "does not match"}},
	{KindNoCommitment, []string{"commitment"}},
	{KindTransient, []string{"timeout", "timed out", "connection refused", "connection reset", "network", "eof", "too many requests", "rate limit"}},
}

func classifyText(op, msg string) Kind {
	lower := strings.ToLower(msg)
	for _, rules := range [][]textRule{walletRules, opRules[op], defaultRules} {
		for _, rule := range rules {
			for _, needle := range rule.needles {
				if strings.Contains(lower, needle) {
					return rule.kind
				}
			}
		}
	}
	return KindUnknown
}

// extractReason digs the most specific human-readable reason out of err:
// ABI-encoded revert data first, then JSON embedded in the message, then
// the message itself.
func extractReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := revertReason(dataErr.ErrorData()); ok {
			return reason
		}
	}

	msg := err.Error()
	if reason, ok := jsonReason(msg); ok {
		return stripRevertPrefix(reason)
	}
	return stripRevertPrefix(msg)
}

func revertReason(data interface{}) (string, bool) {
	s, ok := data.(string)
	if !ok || !strings.HasPrefix(s, "0x") {
		return "", false
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil || reason == "" {
		return "", false
	}
	return reason, true
}

var jsonReasonPaths = []string{
	"error.data.message",
	"data.message",
	"error.message",
	"message",
	"reason",
}

func jsonReason(msg string) (string, bool) {
	i := strings.IndexByte(msg, '{')
	if i < 0 {
		return "", false
	}
	body := msg[i:]
	if !gjson.Valid(body) {
		return "", false
	}
	for _, path := range jsonReasonPaths {
		if r := gjson.Get(body, path); r.Exists() && r.String() != "" {
			return r.String(), true
		}
	}
	return "", false
}

func stripRevertPrefix(msg string) string {
	for _, prefix := range []string{"execution reverted: ", "VM Exception while processing transaction: revert "} {
		if i := strings.Index(msg, prefix); i >= 0 {
			return strings.TrimSpace(msg[i+len(prefix):])
		}
	}
	return msg
}
