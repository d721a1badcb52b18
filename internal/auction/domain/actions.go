package domain

import "github.com/ethereum/go-ethereum/common"

// Reasons an action is unavailable.
const (
	ReasonNotResolved      = "domain has not been resolved"
	ReasonRegistered       = "domain is registered"
	ReasonCommitEnded      = "commit phase has ended"
	ReasonAwaitingFinalize = "auction is awaiting finalization"
	ReasonAlreadyCommitted = "already committed in this auction"
	ReasonNotRevealPhase   = "not in reveal phase"
	ReasonNotParticipated  = "did not participate in commit phase"
	ReasonAlreadyRevealed  = "bid already revealed"
	ReasonNotFinalizePhase = "auction is not awaiting finalization"
	ReasonFailedAuction    = "no bids were revealed; the domain becomes available again"
	ReasonAlreadyFinalized = "auction already finalized"
	ReasonNotHighestBidder = "only the highest bidder can finalize"
	ReasonNoAccount        = "no account connected"
)

// Availability decides which actions account may take given a resolution
// and its membership in the current auction. It guards the UI only; the
// contract has the final say.
func Availability(res Resolution, m Membership, account common.Address) Actions {
	m = m.For(res.Epoch)
	return Actions{
		Commit:   commitState(res, m),
		Reveal:   revealState(res, m),
		Finalize: finalizeState(res, account),
	}
}

func commitState(res Resolution, m Membership) ActionState {
	s := ActionState{Action: ActionCommit}
	switch res.Phase {
	case PhaseAvailable, PhaseExpired, PhaseCommit:
		if m.HasCommitted {
			s.Reason = ReasonAlreadyCommitted
			return s
		}
		s.Available = true
	case PhaseReveal:
		s.Reason = ReasonCommitEnded
	case PhasePendingFinalize:
		s.Reason = ReasonAwaitingFinalize
	case PhaseRegistered:
		s.Reason = ReasonRegistered
	default:
		s.Reason = ReasonNotResolved
	}
	return s
}

func revealState(res Resolution, m Membership) ActionState {
	s := ActionState{Action: ActionReveal}
	switch {
	case res.Phase != PhaseReveal:
		s.Reason = ReasonNotRevealPhase
	case !m.HasCommitted:
		s.Reason = ReasonNotParticipated
	case m.HasRevealed:
		s.Reason = ReasonAlreadyRevealed
	default:
		s.Available = true
	}
	return s
}

func finalizeState(res Resolution, account common.Address) ActionState {
	s := ActionState{Action: ActionFinalize}
	a := res.Auction
	switch {
	case res.Phase != PhasePendingFinalize || a == nil:
		s.Reason = ReasonNotFinalizePhase
	case !a.HasBid():
		s.Reason = ReasonFailedAuction
	case a.Finalized:
		s.Reason = ReasonAlreadyFinalized
	case account == (common.Address{}):
		s.Reason = ReasonNoAccount
	case account != a.HighestBidder:
		s.Reason = ReasonNotHighestBidder
	default:
		s.Available = true
	}
	return s
}
