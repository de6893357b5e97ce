package oracle

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// SignatureVerifier checks a signature over a 32-byte digest. It is injected
// so the attestation path is testable without a real cryptographic backend.
type SignatureVerifier interface {
	Verify(pubKey, digest, sig []byte) bool
}

// Secp256k1Verifier verifies secp256k1 signatures over keccak256 digests
// using go-ethereum's crypto primitives. Signatures may be 64 bytes (r||s)
// or 65 bytes (r||s||v); the recovery byte is ignored.
type Secp256k1Verifier struct{}

// Verify implements SignatureVerifier.
func (Secp256k1Verifier) Verify(pubKey, digest, sig []byte) bool {
	if len(sig) == 65 {
		sig = sig[:64]
	}
	if len(sig) != 64 || len(digest) != 32 {
		return false
	}
	return ethcrypto.VerifySignature(pubKey, digest, sig)
}

// AttestationVerifier validates oracle attestations against a market before
// the engine trusts them.
type AttestationVerifier struct {
	// EngineID is the executing engine's identity bound into every message,
	// so attestations cannot be replayed against another deployment.
	EngineID string
	Sig      SignatureVerifier
}

// NewAttestationVerifier returns a verifier with the real secp256k1 backend.
func NewAttestationVerifier(engineID string) *AttestationVerifier {
	return &AttestationVerifier{EngineID: engineID, Sig: Secp256k1Verifier{}}
}

// Verify checks a raw attestation message against the market's configured
// oracle authority and returns the parsed attestation on success.
//
// The checks, in order: the signer key must be the market's oracle key; the
// signature must cover exactly the supplied bytes; the message must byte-for-
// byte equal its deterministic reconstruction from the market identity and
// parsed fields; the attestation timestamp must be within the allowed skew
// and age; the end timestamp must match the market; winner indices must be
// valid for the market's outcome set and at least one winner must hold stake.
func (v *AttestationVerifier) Verify(m *domain.Market, msg, sig []byte, signerKey []byte, now time.Time) (Attestation, error) {
	if m.Resolution.Mode != domain.ResolutionAttested {
		return Attestation{}, fmt.Errorf("oracle: market %s is not attested: %w", m.ID, domain.ErrUnauthorized)
	}

	oracleKey, err := hex.DecodeString(m.Resolution.OracleKey)
	if err != nil {
		return Attestation{}, fmt.Errorf("oracle: market %s oracle key: %w", m.ID, domain.ErrBadConfiguration)
	}
	if !bytes.Equal(signerKey, oracleKey) {
		return Attestation{}, fmt.Errorf("oracle: signer is not the market oracle: %w", domain.ErrUnauthorized)
	}

	digest := ethcrypto.Keccak256(msg)
	if !v.Sig.Verify(signerKey, digest, sig) {
		return Attestation{}, fmt.Errorf("oracle: signature verification failed: %w", domain.ErrUnauthorized)
	}

	att, err := parseAttestation(msg)
	if err != nil {
		return Attestation{}, err
	}

	// Reconstruct the expected message from the market's own identity and
	// the parsed fields. Byte inequality means the signature was produced
	// for some other market, engine, or field values.
	att.MarketID = m.ID
	expected, err := EncodeAttestation(v.EngineID, att)
	if err != nil {
		return Attestation{}, err
	}
	if !bytes.Equal(msg, expected) {
		return Attestation{}, fmt.Errorf("oracle: message does not match reconstruction: %w", domain.ErrUnauthorized)
	}

	if att.AttestedAt.After(now.Add(MaxFutureSkew)) {
		return Attestation{}, fmt.Errorf("oracle: attestation from the future (%s): %w", att.AttestedAt, domain.ErrUnauthorized)
	}
	if att.AttestedAt.Before(now.Add(-MaxAttestationAge)) {
		return Attestation{}, fmt.Errorf("oracle: attestation expired (%s): %w", att.AttestedAt, domain.ErrUnauthorized)
	}
	if !att.EndTime.Equal(m.EndTime.Truncate(time.Second)) {
		return Attestation{}, fmt.Errorf("oracle: attested end %s != market end %s: %w",
			att.EndTime, m.EndTime, domain.ErrUnauthorized)
	}

	if err := v.checkWinners(m, att.Winners); err != nil {
		return Attestation{}, err
	}
	return att, nil
}

func (v *AttestationVerifier) checkWinners(m *domain.Market, w domain.Winners) error {
	switch w.Kind {
	case domain.WinnersSingle:
		if !m.ValidOutcome(w.Single) {
			return fmt.Errorf("oracle: winner %d out of range: %w", w.Single, domain.ErrInvalidOutcome)
		}
		if m.Outcomes[w.Single].Stake == 0 {
			return fmt.Errorf("oracle: no stake on winning outcome %d: %w", w.Single, domain.ErrNoWinningBet)
		}
	case domain.WinnersMulti:
		if len(w.Multi) == 0 {
			return fmt.Errorf("oracle: no winners named: %w", domain.ErrNoWinningBet)
		}
		staked := false
		for _, idx := range w.Multi {
			if !m.ValidOutcome(idx) {
				return fmt.Errorf("oracle: winner %d out of range: %w", idx, domain.ErrInvalidOutcome)
			}
			if m.Outcomes[idx].Stake > 0 {
				staked = true
			}
		}
		// A winner set whose outcomes hold no stake has nothing to
		// redistribute to.
		if !staked {
			return fmt.Errorf("oracle: no stake on any winning outcome: %w", domain.ErrNoWinningBet)
		}
	default:
		return fmt.Errorf("oracle: attestation names no winners: %w", domain.ErrNoWinningBet)
	}
	return nil
}
