package fixmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

func TestAdd(t *testing.T) {
	got, err := Add(1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got)

	_, err = Add(math.MaxUint64, 1)
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestSub(t *testing.T) {
	got, err := Sub(10, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), got)

	_, err = Sub(4, 10)
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d uint64
		want    uint64
		wantErr bool
	}{
		{name: "simple", a: 6, b: 7, d: 2, want: 21},
		{name: "floors", a: 7, b: 3, d: 2, want: 10},
		{name: "large intermediate", a: math.MaxUint64 / 2, b: 4, d: 8, want: math.MaxUint64 / 4},
		{name: "zero denominator", a: 1, b: 1, d: 0, wantErr: true},
		{name: "quotient overflows", a: math.MaxUint64, b: 3, d: 2, wantErr: true},
		{name: "proportional share", a: 1000, b: 200, d: 1000, want: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulDiv(tt.a, tt.b, tt.d)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrOverflow)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBpsShare(t *testing.T) {
	got, err := BpsShare(1_000_000, 250) // 2.5%
	require.NoError(t, err)
	assert.Equal(t, uint64(25_000), got)

	got, err = BpsShare(999, 1) // floors to zero
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got)
}

func TestSum(t *testing.T) {
	got, err := Sum(1, 2, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got)

	_, err = Sum(math.MaxUint64, 1)
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name  string
		price int64
		expo  int32
		want  uint64
	}{
		{name: "already at scale", price: 100_500000, expo: -6, want: 100_500000},
		{name: "coarser source", price: 100, expo: 0, want: 100_000000},
		{name: "finer source truncates", price: 100_500000123, expo: -9, want: 100_500000},
		{name: "expo -8 pyth style", price: 10_050_000_000, expo: -8, want: 100_500000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePrice(tt.price, tt.expo)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NormalizePrice(-1, -6)
	assert.ErrorIs(t, err, domain.ErrInvalidPriceFeed)

	_, err = NormalizePrice(math.MaxInt64, 6)
	assert.ErrorIs(t, err, domain.ErrOverflow)
}
