package domain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/ntunames/internal/registrar"
)

func int64p(v int64) *int64 { return &v }

func addrp(a common.Address) *common.Address { return &a }

func auction(commitEnd, revealEnd int64, highest *big.Int, bidder common.Address, finalized bool) *AuctionRecord {
	return &AuctionRecord{
		CommitEndTime: commitEnd,
		RevealEndTime: revealEnd,
		HighestBid:    highest,
		HighestBidder: bidder,
		Finalized:     finalized,
	}
}

func TestDerive(t *testing.T) {
	now := testNow
	tests := []struct {
		name     string
		snap     Snapshot
		policy   FailedAuctionPolicy
		phase    Phase
		status   RegistrationStatus
		deadline int64
		recheck  bool
	}{
		{
			name:  "nothing known is available",
			snap:  Snapshot{Name: "alice.ntu"},
			phase: PhaseAvailable,
		},
		{
			name:   "owner wins",
			snap:   Snapshot{Name: "x.ntu", Owner: addrp(alice), Expiry: int64p(now + 1000)},
			phase:  PhaseRegistered,
			status: StatusRegistered,
		},
		{
			name:   "owner wins over running auction",
			snap:   Snapshot{Name: "x.ntu", Owner: addrp(alice), Auction: auction(now+600, now+1200, new(big.Int), common.Address{}, false)},
			phase:  PhaseRegistered,
			status: StatusRegistered,
		},
		{
			name:  "zero owner is not registered",
			snap:  Snapshot{Name: "x.ntu", Owner: addrp(common.Address{})},
			phase: PhaseAvailable,
		},
		{
			name:     "commit phase",
			snap:     Snapshot{Name: "bob.ntu", Auction: auction(now+600, now+1200, new(big.Int), common.Address{}, false)},
			phase:    PhaseCommit,
			deadline: now + 600,
		},
		{
			name:     "reveal phase starts at commit end",
			snap:     Snapshot{Name: "bob.ntu", Auction: auction(now, now+600, new(big.Int), common.Address{}, false)},
			phase:    PhaseReveal,
			deadline: now + 600,
		},
		{
			name:  "pending finalize",
			snap:  Snapshot{Name: "bob.ntu", Auction: auction(now-1200, now-600, eth(2), alice, false)},
			phase: PhasePendingFinalize,
		},
		{
			name:    "finalized auction is registered pending recheck",
			snap:    Snapshot{Name: "bob.ntu", Auction: auction(now-1200, now-600, eth(2), alice, true)},
			phase:   PhaseRegistered,
			status:  StatusRegistered,
			recheck: true,
		},
		{
			name:  "failed auction is available",
			snap:  Snapshot{Name: "bob.ntu", Auction: auction(now-1200, now-600, new(big.Int), common.Address{}, false)},
			phase: PhaseAvailable,
		},
		{
			name:  "failed finalized auction is available by default",
			snap:  Snapshot{Name: "bob.ntu", Auction: auction(now-1200, now-600, new(big.Int), common.Address{}, true)},
			phase: PhaseAvailable,
		},
		{
			name:    "failed finalized auction under require-unfinalized",
			snap:    Snapshot{Name: "bob.ntu", Auction: auction(now-1200, now-600, new(big.Int), common.Address{}, true)},
			policy:  PolicyRequireUnfinalized,
			phase:   PhaseRegistered,
			status:  StatusRegistered,
			recheck: true,
		},
		{
			name:   "failed unfinalized auction under require-unfinalized",
			snap:   Snapshot{Name: "bob.ntu", Auction: auction(now-1200, now-600, new(big.Int), common.Address{}, false)},
			policy: PolicyRequireUnfinalized,
			phase:  PhaseAvailable,
		},
		{
			name:   "failed auction on expired domain",
			snap:   Snapshot{Name: "bob.ntu", Expiry: int64p(now - 10), Auction: auction(now-1200, now-600, new(big.Int), common.Address{}, false)},
			phase:  PhaseExpired,
			status: StatusExpired,
		},
		{
			name:   "expired hint without expiry value",
			snap:   Snapshot{Name: "old.ntu", ExpiredHint: true},
			phase:  PhaseExpired,
			status: StatusExpired,
		},
		{
			name:  "zero expiry means never registered",
			snap:  Snapshot{Name: "new.ntu", Expiry: int64p(0)},
			phase: PhaseAvailable,
		},
		{
			name:     "auction on expired domain",
			snap:     Snapshot{Name: "old.ntu", ExpiredHint: true, Auction: auction(now+10, now+20, new(big.Int), common.Address{}, false)},
			phase:    PhaseCommit,
			status:   StatusExpired,
			deadline: now + 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := tt.policy
			if policy == "" {
				policy = PolicyIgnoreFinalized
			}
			res := Derive(tt.snap, now, policy)
			assert.Equal(t, tt.phase, res.Phase)
			assert.Equal(t, tt.phase.Label(), res.Status)
			assert.Equal(t, tt.status, res.Domain.Status)
			assert.Equal(t, tt.deadline, res.Deadline)
			assert.Equal(t, tt.recheck, res.RecheckRequired)
			assert.NotEqual(t, PhaseUnregistered, res.Phase)
		})
	}
}

func TestDerive_RegisteredPrecedence(t *testing.T) {
	records := []*AuctionRecord{
		nil,
		auction(testNow+600, testNow+1200, new(big.Int), common.Address{}, false),
		auction(testNow-100, testNow+500, eth(1), bob, false),
		auction(testNow-1200, testNow-600, eth(1), bob, false),
		auction(testNow-1200, testNow-600, new(big.Int), common.Address{}, true),
	}
	for i, a := range records {
		res := Derive(Snapshot{Name: "x.ntu", Owner: addrp(alice), Auction: a}, testNow, PolicyIgnoreFinalized)
		assert.Equal(t, PhaseRegistered, res.Phase, "record %d", i)
		assert.Equal(t, alice, *res.Domain.Owner)
	}
}

func TestDerive_NoAuctionNeverActive(t *testing.T) {
	for _, now := range []int64{0, 1, testNow, testNow * 2} {
		for _, a := range []*AuctionRecord{
			nil,
			auction(0, 0, new(big.Int), common.Address{}, false),
			auction(0, testNow+100, eth(3), alice, false),
			auction(0, 0, eth(3), alice, true),
		} {
			res := Derive(Snapshot{Name: "x.ntu", Auction: a}, now, PolicyIgnoreFinalized)
			assert.NotContains(t, []Phase{PhaseCommit, PhaseReveal, PhasePendingFinalize}, res.Phase)
			assert.Zero(t, res.Epoch)
			assert.Zero(t, res.Deadline)
		}
	}
}

func TestDerive_FailedAuctionNeverPendingFinalize(t *testing.T) {
	a := auction(testNow-1200, testNow-600, new(big.Int), common.Address{}, false)
	for _, now := range []int64{testNow - 600, testNow, testNow + 10_000} {
		for _, expired := range []bool{false, true} {
			res := Derive(Snapshot{Name: "bob.ntu", ExpiredHint: expired, Auction: a}, now, PolicyIgnoreFinalized)
			assert.Contains(t, []Phase{PhaseAvailable, PhaseExpired}, res.Phase)
		}
	}
}

func TestDerive_Idempotent(t *testing.T) {
	snap := Snapshot{
		Name:     "bob.ntu",
		Expiry:   int64p(testNow - 5),
		Auction:  auction(testNow+600, testNow+1200, new(big.Int), common.Address{}, false),
		Failures: []string{"owner"},
	}
	first := Derive(snap, testNow, PolicyIgnoreFinalized)
	second := Derive(snap, testNow, PolicyIgnoreFinalized)
	assert.Equal(t, first, second)
}

func TestDerive_MonotonicProgression(t *testing.T) {
	a := auction(testNow+600, testNow+1200, eth(2), alice, false)
	order := map[Phase]int{PhaseCommit: 0, PhaseReveal: 1, PhasePendingFinalize: 2}

	last := -1
	for now := testNow; now <= testNow+1800; now += 7 {
		res := Derive(Snapshot{Name: "bob.ntu", Auction: a}, now, PolicyIgnoreFinalized)
		idx, ok := order[res.Phase]
		require.True(t, ok, "unexpected phase %s at %d", res.Phase, now)
		require.GreaterOrEqual(t, idx, last, "phase went backwards at %d", now)
		require.LessOrEqual(t, idx-last, 1, "phase skipped at %d", now)
		last = idx
	}
	assert.Equal(t, 2, last)
}

func TestDerive_CopiesInputs(t *testing.T) {
	a := auction(testNow+600, testNow+1200, new(big.Int), common.Address{}, false)
	snap := Snapshot{Name: "bob.ntu", Auction: a, Failures: []string{"expiry"}}
	res := Derive(snap, testNow, PolicyIgnoreFinalized)

	a.CommitEndTime = 1
	snap.Failures[0] = "changed"
	assert.Equal(t, testNow+600, res.Auction.CommitEndTime)
	assert.Equal(t, []string{"expiry"}, res.Failures)
	assert.Equal(t, testNow+600, res.Epoch)
}

func TestBobScenario(t *testing.T) {
	reg := newMockRegistrar()
	reg.startAuctionAt("bob.ntu", testNow+600)
	r := NewResolver(reg, PolicyIgnoreFinalized, nil)
	ctx := context.Background()

	res := r.Resolve(ctx, "bob.ntu", testNow)
	assert.Equal(t, PhaseCommit, res.Phase)
	assert.Equal(t, testNow+600, res.Deadline)

	reg.auctions["bob.ntu"].HighestBid = big.NewInt(2_500_000_000_000_000_000)
	res = r.Resolve(ctx, "bob.ntu", testNow+700)
	assert.Equal(t, PhaseReveal, res.Phase)

	abc := common.HexToAddress("0x0000000000000000000000000000000000000ABC")
	reg.auctions["bob.ntu"].HighestBidder = abc
	res = r.Resolve(ctx, "bob.ntu", testNow+1300)
	assert.Equal(t, PhasePendingFinalize, res.Phase)
	assert.True(t, Availability(res, Membership{}, abc).Finalize.Available)
	assert.False(t, Availability(res, Membership{}, alice).Finalize.Available)
	assert.Equal(t, []Action{ActionFinalize}, Availability(res, Membership{}, abc).Available())

	reg.auctions["bob.ntu"].HighestBid = new(big.Int)
	res = r.Resolve(ctx, "bob.ntu", testNow+1300)
	assert.Equal(t, PhaseAvailable, res.Phase)

	reg.expiries["bob.ntu"] = big.NewInt(testNow)
	res = r.Resolve(ctx, "bob.ntu", testNow+1300)
	assert.Equal(t, PhaseExpired, res.Phase)
}

func TestAliceScenario(t *testing.T) {
	reg := newMockRegistrar()
	r := NewResolver(reg, PolicyIgnoreFinalized, nil)

	res := r.Resolve(context.Background(), "alice.ntu", testNow)
	assert.Equal(t, PhaseAvailable, res.Phase)
	assert.Equal(t, "Available", res.Status)
	assert.Empty(t, res.Failures)
	assert.Nil(t, res.Auction)
}

func TestResolver_RegisteredSkipsAuctionRead(t *testing.T) {
	reg := newMockRegistrar()
	reg.owners["taken.ntu"] = alice
	reg.expiries["taken.ntu"] = big.NewInt(testNow + 86400)
	r := NewResolver(reg, PolicyIgnoreFinalized, nil)

	res := r.Resolve(context.Background(), "taken.ntu", testNow)
	assert.Equal(t, PhaseRegistered, res.Phase)
	require.NotNil(t, res.Domain.ExpiryTime)
	assert.Equal(t, testNow+86400, *res.Domain.ExpiryTime)
	assert.Equal(t, 0, reg.called("getAuctionInfo"))
}

func TestResolver_RegisteredSurvivesExpiryFailure(t *testing.T) {
	reg := newMockRegistrar()
	reg.owners["taken.ntu"] = alice
	reg.errs["getDomainExpiry"] = errors.New("connection refused")
	r := NewResolver(reg, PolicyIgnoreFinalized, nil)

	res := r.Resolve(context.Background(), "taken.ntu", testNow)
	assert.Equal(t, PhaseRegistered, res.Phase)
	assert.Nil(t, res.Domain.ExpiryTime)
	assert.Equal(t, []string{"expiry"}, res.Failures)
}

func TestResolver_ExpiredOwnerRead(t *testing.T) {
	reg := newMockRegistrar()
	reg.errs["resolveDomain"] = &registrar.Error{Kind: registrar.KindExpired, Reason: "Domain expired"}
	r := NewResolver(reg, PolicyIgnoreFinalized, nil)

	res := r.Resolve(context.Background(), "old.ntu", testNow)
	assert.Equal(t, PhaseExpired, res.Phase)
	assert.Equal(t, StatusExpired, res.Domain.Status)
	assert.Empty(t, res.Failures)
}

func TestResolver_AllReadsFailIsAvailable(t *testing.T) {
	reg := newMockRegistrar()
	boom := &registrar.Error{Kind: registrar.KindTransient, Reason: "timeout"}
	reg.errs["resolveDomain"] = boom
	reg.errs["getDomainExpiry"] = boom
	reg.errs["getAuctionInfo"] = boom
	r := NewResolver(reg, PolicyIgnoreFinalized, nil)

	res := r.Resolve(context.Background(), "x.ntu", testNow)
	assert.Equal(t, PhaseAvailable, res.Phase)
	assert.Equal(t, []string{"owner", "expiry", "auction"}, res.Failures)
}

func TestResolver_AuctionNotFoundIsData(t *testing.T) {
	reg := newMockRegistrar()
	reg.errs["getAuctionInfo"] = &registrar.Error{Kind: registrar.KindAuctionNotFound, Reason: "Auction does not exist"}
	r := NewResolver(reg, PolicyIgnoreFinalized, nil)

	res := r.Resolve(context.Background(), "x.ntu", testNow)
	assert.Equal(t, PhaseAvailable, res.Phase)
	assert.Empty(t, res.Failures)
}

func TestResolver_MalformedAuctionTimestamp(t *testing.T) {
	reg := newMockRegistrar()
	huge := new(big.Int).Lsh(big.NewInt(1), 80)
	reg.auctions["x.ntu"] = &registrar.AuctionInfo{CommitEndTime: huge, RevealEndTime: huge, HighestBid: new(big.Int)}
	r := NewResolver(reg, PolicyIgnoreFinalized, nil)

	res := r.Resolve(context.Background(), "x.ntu", testNow)
	assert.Equal(t, PhaseAvailable, res.Phase)
	assert.Equal(t, []string{"auction"}, res.Failures)
}

func TestParseFailedAuctionPolicy(t *testing.T) {
	p, err := ParseFailedAuctionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyIgnoreFinalized, p)

	p, err = ParseFailedAuctionPolicy("require-unfinalized")
	require.NoError(t, err)
	assert.Equal(t, PolicyRequireUnfinalized, p)

	_, err = ParseFailedAuctionPolicy("sometimes")
	assert.Error(t, err)
}

func TestPhase_Text(t *testing.T) {
	for p := PhaseUnregistered; p <= PhaseExpired; p++ {
		text, err := p.MarshalText()
		require.NoError(t, err)
		var back Phase
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, p, back)
	}
	assert.Equal(t, "Unknown", PhaseUnregistered.Label())
	assert.Equal(t, "Awaiting Finalization", PhasePendingFinalize.Label())
	assert.True(t, PhaseCommit.Timed())
	assert.False(t, PhasePendingFinalize.Timed())
}
