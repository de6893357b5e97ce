package oracle

import (
	"crypto/ecdsa"
	"encoding/hex"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

const testEngineID = "settled-test"

var attEnd = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func oracleKeyPair(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	t.Helper()
	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return pk, ethcrypto.CompressPubkey(&pk.PublicKey)
}

func attestedMarket(id string, pub []byte, stakes ...uint64) *domain.Market {
	outcomes := make([]domain.Outcome, len(stakes))
	for i, s := range stakes {
		outcomes[i] = domain.Outcome{Name: string(rune('A' + i)), Stake: s}
	}
	return &domain.Market{
		ID: id,
		Resolution: domain.Resolution{
			Mode:      domain.ResolutionAttested,
			OracleKey: hex.EncodeToString(pub),
		},
		Outcomes: outcomes,
		EndTime:  attEnd,
		Status:   domain.MarketStatusOpen,
	}
}

func sign(t *testing.T, pk *ecdsa.PrivateKey, msg []byte) []byte {
	t.Helper()
	sig, err := ethcrypto.Sign(ethcrypto.Keccak256(msg), pk)
	require.NoError(t, err)
	return sig
}

func TestVerifySingleWinner(t *testing.T) {
	pk, pub := oracleKeyPair(t)
	m := attestedMarket("mkt-1", pub, 100, 200)
	v := NewAttestationVerifier(testEngineID)
	now := attEnd.Add(10 * time.Minute)

	msg, err := EncodeAttestation(testEngineID, Attestation{
		MarketID:   m.ID,
		EndTime:    attEnd,
		AttestedAt: now.Add(-time.Minute),
		Nonce:      7,
		Winners:    domain.Winners{Kind: domain.WinnersSingle, Single: 1},
	})
	require.NoError(t, err)

	att, err := v.Verify(m, msg, sign(t, pk, msg), pub, now)
	require.NoError(t, err)
	assert.Equal(t, domain.WinnersSingle, att.Winners.Kind)
	assert.Equal(t, 1, att.Winners.Single)
	assert.Equal(t, uint64(7), att.Nonce)
}

func TestVerifyMultiWinner(t *testing.T) {
	pk, pub := oracleKeyPair(t)
	m := attestedMarket("mkt-1", pub, 100, 200, 300)
	v := NewAttestationVerifier(testEngineID)
	now := attEnd.Add(time.Minute)

	msg, err := EncodeAttestation(testEngineID, Attestation{
		MarketID:   m.ID,
		EndTime:    attEnd,
		AttestedAt: now,
		Nonce:      1,
		Winners:    domain.Winners{Kind: domain.WinnersMulti, Multi: []int{2, 0, 2}},
	})
	require.NoError(t, err)

	att, err := v.Verify(m, msg, sign(t, pk, msg), pub, now)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, att.Winners.Multi, "encoder sorts and de-duplicates")
}

// A valid message replayed against a different market must fail: the market
// identity is bound into the reconstruction.
func TestVerifyReplayAcrossMarkets(t *testing.T) {
	pk, pub := oracleKeyPair(t)
	original := attestedMarket("mkt-1", pub, 100, 200)
	other := attestedMarket("mkt-2", pub, 100, 200)
	v := NewAttestationVerifier(testEngineID)
	now := attEnd.Add(time.Minute)

	msg, err := EncodeAttestation(testEngineID, Attestation{
		MarketID:   original.ID,
		EndTime:    attEnd,
		AttestedAt: now,
		Nonce:      1,
		Winners:    domain.Winners{Kind: domain.WinnersSingle, Single: 0},
	})
	require.NoError(t, err)
	sig := sign(t, pk, msg)

	_, err = v.Verify(original, msg, sig, pub, now)
	require.NoError(t, err)

	_, err = v.Verify(other, msg, sig, pub, now)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerifyRejectsForeignSigner(t *testing.T) {
	_, pub := oracleKeyPair(t)
	intruderPk, intruderPub := oracleKeyPair(t)
	m := attestedMarket("mkt-1", pub, 100, 200)
	v := NewAttestationVerifier(testEngineID)
	now := attEnd.Add(time.Minute)

	msg, err := EncodeAttestation(testEngineID, Attestation{
		MarketID:   m.ID,
		EndTime:    attEnd,
		AttestedAt: now,
		Nonce:      1,
		Winners:    domain.Winners{Kind: domain.WinnersSingle, Single: 0},
	})
	require.NoError(t, err)

	_, err = v.Verify(m, msg, sign(t, intruderPk, msg), intruderPub, now)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	pk, pub := oracleKeyPair(t)
	m := attestedMarket("mkt-1", pub, 100, 200)
	v := NewAttestationVerifier(testEngineID)
	now := attEnd.Add(time.Minute)

	msg, err := EncodeAttestation(testEngineID, Attestation{
		MarketID:   m.ID,
		EndTime:    attEnd,
		AttestedAt: now,
		Nonce:      1,
		Winners:    domain.Winners{Kind: domain.WinnersSingle, Single: 0},
	})
	require.NoError(t, err)
	sig := sign(t, pk, msg)

	tampered := append([]byte(nil), msg...)
	tampered[len(tampered)-1] = 1 // flip the winner byte

	_, err = v.Verify(m, tampered, sig, pub, now)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerifyTimeBounds(t *testing.T) {
	pk, pub := oracleKeyPair(t)
	m := attestedMarket("mkt-1", pub, 100, 200)
	v := NewAttestationVerifier(testEngineID)
	now := attEnd.Add(2 * time.Hour)

	encode := func(at time.Time) ([]byte, []byte) {
		msg, err := EncodeAttestation(testEngineID, Attestation{
			MarketID:   m.ID,
			EndTime:    attEnd,
			AttestedAt: at,
			Nonce:      1,
			Winners:    domain.Winners{Kind: domain.WinnersSingle, Single: 0},
		})
		require.NoError(t, err)
		return msg, sign(t, pk, msg)
	}

	// Too far in the future.
	msg, sig := encode(now.Add(5 * time.Minute))
	_, err := v.Verify(m, msg, sig, pub, now)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// Expired.
	msg, sig = encode(now.Add(-2 * time.Hour))
	_, err = v.Verify(m, msg, sig, pub, now)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// Within bounds.
	msg, sig = encode(now.Add(-time.Minute))
	_, err = v.Verify(m, msg, sig, pub, now)
	assert.NoError(t, err)
}

func TestVerifyEndTimeMustMatch(t *testing.T) {
	pk, pub := oracleKeyPair(t)
	m := attestedMarket("mkt-1", pub, 100, 200)
	v := NewAttestationVerifier(testEngineID)
	now := attEnd.Add(time.Minute)

	msg, err := EncodeAttestation(testEngineID, Attestation{
		MarketID:   m.ID,
		EndTime:    attEnd.Add(time.Hour),
		AttestedAt: now,
		Nonce:      1,
		Winners:    domain.Winners{Kind: domain.WinnersSingle, Single: 0},
	})
	require.NoError(t, err)

	_, err = v.Verify(m, msg, sign(t, pk, msg), pub, now)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerifyMultiZeroStakeWinners(t *testing.T) {
	pk, pub := oracleKeyPair(t)
	m := attestedMarket("mkt-1", pub, 100, 0, 0)
	v := NewAttestationVerifier(testEngineID)
	now := attEnd.Add(time.Minute)

	msg, err := EncodeAttestation(testEngineID, Attestation{
		MarketID:   m.ID,
		EndTime:    attEnd,
		AttestedAt: now,
		Nonce:      1,
		Winners:    domain.Winners{Kind: domain.WinnersMulti, Multi: []int{1, 2}},
	})
	require.NoError(t, err)

	_, err = v.Verify(m, msg, sign(t, pk, msg), pub, now)
	assert.ErrorIs(t, err, domain.ErrNoWinningBet)
}

func TestVerifySingleZeroStakeWinner(t *testing.T) {
	pk, pub := oracleKeyPair(t)
	m := attestedMarket("mkt-1", pub, 100, 0)
	v := NewAttestationVerifier(testEngineID)
	now := attEnd.Add(time.Minute)

	msg, err := EncodeAttestation(testEngineID, Attestation{
		MarketID:   m.ID,
		EndTime:    attEnd,
		AttestedAt: now,
		Nonce:      1,
		Winners:    domain.Winners{Kind: domain.WinnersSingle, Single: 1},
	})
	require.NoError(t, err)

	_, err = v.Verify(m, msg, sign(t, pk, msg), pub, now)
	assert.ErrorIs(t, err, domain.ErrNoWinningBet)
}

func TestVerifyOutcomeIndexBounds(t *testing.T) {
	pk, pub := oracleKeyPair(t)
	m := attestedMarket("mkt-1", pub, 100, 200)
	v := NewAttestationVerifier(testEngineID)
	now := attEnd.Add(time.Minute)

	msg, err := EncodeAttestation(testEngineID, Attestation{
		MarketID:   m.ID,
		EndTime:    attEnd,
		AttestedAt: now,
		Nonce:      1,
		Winners:    domain.Winners{Kind: domain.WinnersSingle, Single: 4},
	})
	require.NoError(t, err)

	_, err = v.Verify(m, msg, sign(t, pk, msg), pub, now)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
}
