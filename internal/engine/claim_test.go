package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/escrow"
)

func TestClaimBeforeSettlement(t *testing.T) {
	m := binaryMarket(domain.FeeSnapshot{})
	l := escrow.NewLedger(m.ID, 2)
	bob := stake(t, m, l, "bob", 0, 100)

	_, err := Claim(m, l, bob, tNow)
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)
}

func TestClaimIdempotent(t *testing.T) {
	m := binaryMarket(domain.FeeSnapshot{})
	l := escrow.NewLedger(m.ID, 2)
	bob := stake(t, m, l, "bob", 0, 600)
	stake(t, m, l, "carol", 1, 400)

	require.NoError(t, MarkTentative(m, domain.Winners{Kind: domain.WinnersSingle, Single: 0}, tNow))
	_, err := Settle(m, l, tNow)
	require.NoError(t, err)

	paid, err := Claim(m, l, bob, tNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), paid)

	_, err = Claim(m, l, bob, tNow)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	total, err := l.Total()
	require.NoError(t, err)
	assert.Zero(t, total, "exactly one claim's worth was paid")
}

func TestClaimLoserRejected(t *testing.T) {
	m := binaryMarket(domain.FeeSnapshot{})
	l := escrow.NewLedger(m.ID, 2)
	stake(t, m, l, "bob", 0, 600)
	carol := stake(t, m, l, "carol", 1, 400)

	require.NoError(t, MarkTentative(m, domain.Winners{Kind: domain.WinnersSingle, Single: 0}, tNow))
	_, err := Settle(m, l, tNow)
	require.NoError(t, err)

	_, err = Claim(m, l, carol, tNow)
	assert.ErrorIs(t, err, domain.ErrNoWinningBet)
}

// Claim amounts must not depend on the order in which winners claim, up to
// the bounded rounding dust absorbed by whoever claims last.
func TestClaimOrderIndependence(t *testing.T) {
	stakes := []uint64{17, 9931, 777, 123457, 31}

	run := func(order []int) map[string]uint64 {
		m := binaryMarket(domain.FeeSnapshot{ProtocolBps: 250})
		l := escrow.NewLedger(m.ID, 2)
		winners := make([]*domain.Position, len(stakes))
		for i, s := range stakes {
			winners[i] = stake(t, m, l, string(rune('a'+i)), 0, s)
		}
		stake(t, m, l, "loser", 1, 50_000)

		require.NoError(t, MarkTentative(m, domain.Winners{Kind: domain.WinnersSingle, Single: 0}, tNow))
		_, err := Settle(m, l, tNow)
		require.NoError(t, err)

		paid := make(map[string]uint64, len(order))
		for _, i := range order {
			amt, err := Claim(m, l, winners[i], tNow)
			require.NoError(t, err)
			paid[winners[i].User] = amt
		}
		return paid
	}

	base := run([]int{0, 1, 2, 3, 4})
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		order := rng.Perm(len(stakes))
		got := run(order)
		for user, amt := range base {
			// The formula share is identical in every order; only the final
			// claimant's live-balance cap can shave bounded dust.
			assert.InDelta(t, float64(amt), float64(got[user]), float64(len(stakes)),
				"user %s order %v", user, order)
		}
	}
}

func TestClaimVoidRefundsAllOutcomes(t *testing.T) {
	m := multiMarket("A", "B", "C")
	l := escrow.NewLedger(m.ID, 3)

	pos := stake(t, m, l, "bob", 0, 100)
	require.NoError(t, Deposit(m, l, pos, 2, 250, m.Asset, tEnd.Add(-time.Hour)))
	other := stake(t, m, l, "carol", 1, 40)

	require.NoError(t, MarkVoid(m, tNow))
	fees, err := Settle(m, l, tNow)
	require.NoError(t, err)
	assert.Zero(t, fees.Fees())

	paid, err := Claim(m, l, pos, tNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(350), paid, "void refunds own stake across outcomes")

	paid, err = Claim(m, l, other, tNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), paid)
}
