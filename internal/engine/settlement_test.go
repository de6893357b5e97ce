package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/escrow"
)

var (
	tEnd = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tNow = tEnd.Add(time.Minute)
)

func binaryMarket(fees domain.FeeSnapshot) *domain.Market {
	return &domain.Market{
		ID:      "mkt-binary",
		Creator: "alice",
		Asset:   domain.DefaultAsset,
		Fees:    fees,
		Resolution: domain.Resolution{
			Mode:       domain.ResolutionDeterministic,
			FeedID:     "eth-usd",
			Comparator: domain.ComparatorGT,
			BoundLo:    100_000000,
		},
		Outcomes: []domain.Outcome{{Name: "Yes"}, {Name: "No"}},
		EndTime:  tEnd,
		Status:   domain.MarketStatusOpen,
	}
}

func multiMarket(names ...string) *domain.Market {
	outcomes := make([]domain.Outcome, len(names))
	for i, n := range names {
		outcomes[i] = domain.Outcome{Name: n}
	}
	return &domain.Market{
		ID:         "mkt-multi",
		Creator:    "alice",
		Asset:      domain.DefaultAsset,
		Resolution: domain.Resolution{Mode: domain.ResolutionAttested, OracleKey: "00"},
		Outcomes:   outcomes,
		EndTime:    tEnd,
		Status:     domain.MarketStatusOpen,
	}
}

func stake(t *testing.T, m *domain.Market, l *escrow.Ledger, user string, outcome int, amount uint64) *domain.Position {
	t.Helper()
	pos := &domain.Position{ID: user + "@" + m.ID, MarketID: m.ID, User: user}
	require.NoError(t, Deposit(m, l, pos, outcome, amount, m.Asset, tEnd.Add(-time.Hour)))
	return pos
}

func TestValidateFeesBound(t *testing.T) {
	err := ValidateFees(domain.FeeSnapshot{ProtocolBps: 5000, ResolverBps: 3000, CreatorBps: 3000})
	assert.ErrorIs(t, err, domain.ErrBadConfiguration)

	assert.NoError(t, ValidateFees(domain.FeeSnapshot{ProtocolBps: 5000, ResolverBps: 3000, CreatorBps: 2000}))
}

func TestDepositGuards(t *testing.T) {
	m := binaryMarket(domain.FeeSnapshot{})
	l := escrow.NewLedger(m.ID, 2)
	pos := &domain.Position{ID: "p", MarketID: m.ID, User: "bob"}

	assert.ErrorIs(t, Deposit(m, l, pos, 0, 0, m.Asset, tEnd.Add(-time.Hour)), domain.ErrInvalidAmount)
	assert.ErrorIs(t, Deposit(m, l, pos, 7, 10, m.Asset, tEnd.Add(-time.Hour)), domain.ErrInvalidOutcome)
	assert.ErrorIs(t, Deposit(m, l, pos, 0, 10, m.Asset, tEnd), domain.ErrTooLateToBet)
	assert.ErrorIs(t, Deposit(m, l, pos, 0, 10, "eurc", tEnd.Add(-time.Hour)), domain.ErrWrongAsset)

	require.NoError(t, Deposit(m, l, pos, 0, 10, m.Asset, tEnd.Add(-time.Hour)))
	assert.Equal(t, uint64(10), pos.StakeOn(0))
	assert.Equal(t, uint64(10), m.Outcomes[0].Stake)
	assert.Equal(t, uint64(10), l.Balance(0))
}

func TestSettleSingleWinnerWithFees(t *testing.T) {
	m := binaryMarket(domain.FeeSnapshot{ProtocolBps: 100, ResolverBps: 50, CreatorBps: 50, Treasury: "treasury"})
	l := escrow.NewLedger(m.ID, 2)
	stake(t, m, l, "bob", 0, 600_000)
	stake(t, m, l, "carol", 1, 400_000)

	require.NoError(t, MarkTentative(m, domain.Winners{Kind: domain.WinnersSingle, Single: 0}, tNow))

	fees, err := Settle(m, l, tNow)
	require.NoError(t, err)

	// 1_000_000 pot: 1% protocol, 0.5% resolver, 0.5% creator.
	assert.Equal(t, uint64(1_000_000), fees.Pot)
	assert.Equal(t, uint64(10_000), fees.Protocol)
	assert.Equal(t, uint64(5_000), fees.Resolver)
	assert.Equal(t, uint64(5_000), fees.Creator)
	assert.Equal(t, uint64(980_000), fees.Payout)

	assert.True(t, m.Settled())
	assert.Equal(t, uint64(980_000), m.PayoutPools[0])
	assert.Equal(t, uint64(0), m.PayoutPools[1])
	assert.Equal(t, []uint64{600_000, 400_000}, m.StakeSnapshot)

	// Settlement is write-once.
	_, err = Settle(m, l, tNow)
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)
}

func TestSettleRequiresResolution(t *testing.T) {
	m := binaryMarket(domain.FeeSnapshot{})
	l := escrow.NewLedger(m.ID, 2)
	stake(t, m, l, "bob", 0, 100)
	stake(t, m, l, "carol", 1, 100)

	_, err := Settle(m, l, tNow)
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)
}

func TestSettleBeforeEndTooEarly(t *testing.T) {
	m := binaryMarket(domain.FeeSnapshot{})
	l := escrow.NewLedger(m.ID, 2)
	stake(t, m, l, "bob", 0, 100)
	stake(t, m, l, "carol", 1, 100)
	require.NoError(t, MarkTentative(m, domain.Winners{Kind: domain.WinnersSingle, Single: 0}, tEnd.Add(-time.Hour)))

	_, err := Settle(m, l, tEnd.Add(-time.Minute))
	assert.ErrorIs(t, err, domain.ErrTooEarly)
}

func TestVoidOnEmptySide(t *testing.T) {
	m := binaryMarket(domain.FeeSnapshot{ProtocolBps: 500})
	l := escrow.NewLedger(m.ID, 2)
	bob := stake(t, m, l, "bob", 0, 500_000000)

	require.NoError(t, MarkTentative(m, domain.Winners{Kind: domain.WinnersSingle, Single: 0}, tNow))

	fees, err := Settle(m, l, tNow)
	require.NoError(t, err)

	// No opposing stake: settles void, no fees taken.
	assert.Equal(t, domain.WinnersVoid, m.Winners.Kind)
	assert.Zero(t, fees.Fees())
	assert.Equal(t, uint64(500_000000), fees.Payout)

	// Every bettor's claim returns exactly their own stake.
	paid, err := Claim(m, l, bob, tNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000000), paid)
}

func TestVoidOnZeroStakeSingleWinner(t *testing.T) {
	m := multiMarket("A", "B")
	l := escrow.NewLedger(m.ID, 2)
	ua := stake(t, m, l, "ua", 0, 1_000_000)

	// The oracle names the outcome nobody staked on.
	require.NoError(t, MarkTentative(m, domain.Winners{Kind: domain.WinnersSingle, Single: 1}, tNow))

	fees, err := Settle(m, l, tNow)
	require.NoError(t, err)

	// Settles void instead of sweeping the pot behind unpayable claims.
	assert.Equal(t, domain.WinnersVoid, m.Winners.Kind)
	assert.Zero(t, fees.Fees())

	paid, err := Claim(m, l, ua, tNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), paid)

	total, err := l.Total()
	require.NoError(t, err)
	assert.Zero(t, total, "no residual stranded in pools")
}

func TestSettleMultiWinnerProportionalSplit(t *testing.T) {
	m := multiMarket("A", "B", "C", "D", "E")
	l := escrow.NewLedger(m.ID, 5)
	stake(t, m, l, "ua", 0, 100)
	stake(t, m, l, "ub", 1, 300)
	stake(t, m, l, "uc", 2, 600)
	ud := stake(t, m, l, "ud", 3, 200)
	ue := stake(t, m, l, "ue", 4, 800)

	require.NoError(t, MarkTentative(m, domain.Winners{Kind: domain.WinnersMulti, Multi: []int{3, 4}}, tNow))

	fees, err := Settle(m, l, tNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), fees.Pot)

	// Losers hold 1000 total; D (20% of winning stake) receives exactly 200
	// of it and E exactly 800, with no remainder lost.
	assert.Equal(t, uint64(400), m.PayoutPools[3])
	assert.Equal(t, uint64(1600), m.PayoutPools[4])

	paidD, err := Claim(m, l, ud, tNow)
	require.NoError(t, err)
	paidE, err := Claim(m, l, ue, tNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), paidD)
	assert.Equal(t, uint64(1600), paidE)

	total, err := l.Total()
	require.NoError(t, err)
	assert.Zero(t, total, "all funds distributed")
}

func TestSettleMultiWinnerFeesProportional(t *testing.T) {
	m := multiMarket("A", "B", "C")
	m.Fees = domain.FeeSnapshot{ProtocolBps: 1000} // 10%
	l := escrow.NewLedger(m.ID, 3)
	stake(t, m, l, "ua", 0, 1000)
	stake(t, m, l, "ub", 1, 600)
	stake(t, m, l, "uc", 2, 400)

	require.NoError(t, MarkTentative(m, domain.Winners{Kind: domain.WinnersMulti, Multi: []int{1, 2}}, tNow))

	fees, err := Settle(m, l, tNow)
	require.NoError(t, err)

	// Pot 2000, 10% fee = 200, remaining payout 1800 split 60/40 by
	// post-redistribution balances (1200/800 before fees).
	assert.Equal(t, uint64(200), fees.Protocol)
	assert.Equal(t, uint64(1800), fees.Payout)
	assert.Equal(t, uint64(1200-120), m.PayoutPools[1])
	assert.Equal(t, uint64(800-80), m.PayoutPools[2])
}

func TestSettleMultiNoWinningStake(t *testing.T) {
	m := multiMarket("A", "B", "C")
	l := escrow.NewLedger(m.ID, 3)
	stake(t, m, l, "ua", 0, 1000)

	require.NoError(t, MarkTentative(m, domain.Winners{Kind: domain.WinnersMulti, Multi: []int{1, 2}}, tNow))

	_, err := Settle(m, l, tNow)
	assert.ErrorIs(t, err, domain.ErrNoWinningBet)
}

func TestConservation(t *testing.T) {
	m := multiMarket("A", "B", "C", "D")
	m.Fees = domain.FeeSnapshot{ProtocolBps: 123, ResolverBps: 45, CreatorBps: 67}
	l := escrow.NewLedger(m.ID, 4)

	users := []struct {
		name    string
		outcome int
		amount  uint64
	}{
		{"u1", 0, 17}, {"u2", 0, 9931}, {"u3", 1, 777},
		{"u4", 2, 123457}, {"u5", 3, 31}, {"u6", 2, 5},
	}
	var deposited uint64
	positions := make([]*domain.Position, len(users))
	for i, u := range users {
		positions[i] = stake(t, m, l, u.name, u.outcome, u.amount)
		deposited += u.amount
	}

	require.NoError(t, MarkTentative(m, domain.Winners{Kind: domain.WinnersMulti, Multi: []int{0, 2}}, tNow))
	fees, err := Settle(m, l, tNow)
	require.NoError(t, err)

	var claimed uint64
	for _, pos := range positions {
		paid, err := Claim(m, l, pos, tNow)
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrNoWinningBet)
			continue
		}
		claimed += paid
	}

	residual, err := l.Total()
	require.NoError(t, err)
	assert.Equal(t, deposited, claimed+fees.Fees()+residual)
	assert.LessOrEqual(t, residual, uint64(len(positions)), "dust bounded by claimant count")
}
