package escrow

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

func TestDeriveHandle(t *testing.T) {
	a := DeriveHandle("market-1", 0)
	b := DeriveHandle("market-1", 1)
	c := DeriveHandle("market-2", 0)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b, "outcomes must derive distinct handles")
	assert.NotEqual(t, a, c, "markets must derive distinct handles")
	assert.Equal(t, a, DeriveHandle("market-1", 0), "derivation must be deterministic")
}

func TestDeposit(t *testing.T) {
	l := NewLedger("m", 2)

	require.NoError(t, l.Deposit(0, 100))
	require.NoError(t, l.Deposit(0, 50))
	assert.Equal(t, uint64(150), l.Balance(0))
	assert.Equal(t, uint64(0), l.Balance(1))

	assert.ErrorIs(t, l.Deposit(0, 0), domain.ErrInvalidAmount)
	assert.ErrorIs(t, l.Deposit(5, 10), domain.ErrInvalidOutcome)

	require.NoError(t, l.Deposit(1, math.MaxUint64))
	assert.ErrorIs(t, l.Deposit(1, 1), domain.ErrOverflow)
}

func TestSweep(t *testing.T) {
	l := NewLedger("m", 3)
	require.NoError(t, l.Deposit(0, 300))
	require.NoError(t, l.Deposit(1, 700))

	require.NoError(t, l.Sweep(0, 1, 300))
	assert.Equal(t, uint64(0), l.Balance(0))
	assert.Equal(t, uint64(1000), l.Balance(1))

	assert.ErrorIs(t, l.Sweep(0, 1, 1), domain.ErrInsufficientPool)
	assert.NoError(t, l.Sweep(2, 1, 0), "zero sweep is a no-op")

	total, err := l.Total()
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), total, "sweeps conserve funds")
}

func TestPayoutCapsAtBalance(t *testing.T) {
	l := NewLedger("m", 1)
	require.NoError(t, l.Deposit(0, 100))

	paid, err := l.Payout(0, 60)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), paid)

	// Requesting more than remains pays out only the remainder.
	paid, err = l.Payout(0, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), paid)
	assert.Equal(t, uint64(0), l.Balance(0))
}

func TestLoadLedgerRoundTrip(t *testing.T) {
	l := NewLedger("m", 3)
	require.NoError(t, l.Deposit(0, 10))
	require.NoError(t, l.Deposit(2, 30))

	rows := l.Pools()
	require.Len(t, rows, 3)
	for i, p := range rows {
		assert.Equal(t, DeriveHandle("m", i), p.Handle)
	}

	restored := LoadLedger("m", 3, rows)
	assert.Equal(t, l.Balance(0), restored.Balance(0))
	assert.Equal(t, l.Balance(1), restored.Balance(1))
	assert.Equal(t, l.Balance(2), restored.Balance(2))
}
