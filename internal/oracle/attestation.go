package oracle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// attestTag is the domain-separation string for attestation messages. Its
// keccak256 prefixes every message so signatures cannot be replayed against
// other protocols sharing the same key.
const attestTag = "parimutuel/attest/v1"

// Attestation time bounds relative to execution time.
const (
	// MaxFutureSkew is how far in the future an attestation timestamp may be.
	MaxFutureSkew = 60 * time.Second
	// MaxAttestationAge is how old an attestation may be.
	MaxAttestationAge = time.Hour
)

// Message layout: a fixed 120-byte header followed by the winner encoding.
//
//	keccak256(tag)      32 bytes
//	keccak256(marketID) 32 bytes
//	keccak256(engineID) 32 bytes
//	end unix ts         8 bytes big-endian
//	attest unix ts      8 bytes big-endian
//	nonce               8 bytes big-endian
//
// Single-winner messages append one outcome byte (total 121). Multi-winner
// messages append a count byte and then count outcome bytes (total 121+count,
// count in 1..MaxOutcomes), so the two shapes are distinguishable by length.
const (
	headerLen = 120
	singleLen = headerLen + 1
)

// Attestation is a parsed, not-yet-trusted oracle message naming a market's
// winning outcome(s).
type Attestation struct {
	MarketID   string
	EndTime    time.Time
	AttestedAt time.Time
	Nonce      uint64
	Winners    domain.Winners
}

// EncodeAttestation produces the canonical message bytes for an attestation.
// Multi-winner sets are sorted and de-duplicated before encoding.
func EncodeAttestation(engineID string, a Attestation) ([]byte, error) {
	buf := make([]byte, 0, singleLen+domain.MaxOutcomes)
	buf = append(buf, ethcrypto.Keccak256([]byte(attestTag))...)
	buf = append(buf, ethcrypto.Keccak256([]byte(a.MarketID))...)
	buf = append(buf, ethcrypto.Keccak256([]byte(engineID))...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(a.EndTime.Unix()))
	buf = binary.BigEndian.AppendUint64(buf, uint64(a.AttestedAt.Unix()))
	buf = binary.BigEndian.AppendUint64(buf, a.Nonce)

	switch a.Winners.Kind {
	case domain.WinnersSingle:
		if a.Winners.Single < 0 || a.Winners.Single >= domain.MaxOutcomes {
			return nil, fmt.Errorf("oracle: winner index %d out of range: %w", a.Winners.Single, domain.ErrInvalidOutcome)
		}
		buf = append(buf, byte(a.Winners.Single))
	case domain.WinnersMulti:
		set := dedupSorted(a.Winners.Multi)
		if len(set) == 0 {
			return nil, fmt.Errorf("oracle: empty multi-winner set: %w", domain.ErrNoWinningBet)
		}
		if len(set) > domain.MaxOutcomes {
			return nil, fmt.Errorf("oracle: %d winners exceeds limit: %w", len(set), domain.ErrInvalidOutcome)
		}
		buf = append(buf, byte(len(set)))
		for _, idx := range set {
			if idx < 0 || idx >= domain.MaxOutcomes {
				return nil, fmt.Errorf("oracle: winner index %d out of range: %w", idx, domain.ErrInvalidOutcome)
			}
			buf = append(buf, byte(idx))
		}
	default:
		return nil, fmt.Errorf("oracle: attestation must name winners: %w", domain.ErrNoWinningBet)
	}
	return buf, nil
}

// parseAttestation splits raw message bytes into their fields. The market
// and engine identity hashes embedded in the header are not parsed out; the
// verifier's reconstruction check binds them instead.
func parseAttestation(msg []byte) (a Attestation, err error) {
	if len(msg) < singleLen {
		return a, fmt.Errorf("oracle: message too short (%d bytes): %w", len(msg), domain.ErrUnauthorized)
	}
	tagHash := ethcrypto.Keccak256([]byte(attestTag))
	if !bytes.Equal(msg[:32], tagHash) {
		return a, fmt.Errorf("oracle: wrong domain tag: %w", domain.ErrUnauthorized)
	}
	a.EndTime = time.Unix(int64(binary.BigEndian.Uint64(msg[96:104])), 0).UTC()
	a.AttestedAt = time.Unix(int64(binary.BigEndian.Uint64(msg[104:112])), 0).UTC()
	a.Nonce = binary.BigEndian.Uint64(msg[112:120])

	switch {
	case len(msg) == singleLen:
		a.Winners = domain.Winners{Kind: domain.WinnersSingle, Single: int(msg[headerLen])}
	default:
		count := int(msg[headerLen])
		if count < 1 || count > domain.MaxOutcomes || len(msg) != singleLen+count {
			return a, fmt.Errorf("oracle: malformed multi-winner message (len %d, count %d): %w",
				len(msg), count, domain.ErrUnauthorized)
		}
		winners := make([]int, count)
		for i := 0; i < count; i++ {
			winners[i] = int(msg[singleLen+i])
		}
		if !sort.IntsAreSorted(winners) || hasDuplicates(winners) {
			return a, fmt.Errorf("oracle: multi-winner set not sorted/unique: %w", domain.ErrUnauthorized)
		}
		a.Winners = domain.Winners{Kind: domain.WinnersMulti, Multi: winners}
	}
	return a, nil
}

func dedupSorted(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	out := append([]int(nil), in...)
	sort.Ints(out)
	dst := out[:1]
	for _, v := range out[1:] {
		if v != dst[len(dst)-1] {
			dst = append(dst, v)
		}
	}
	return dst
}

func hasDuplicates(sorted []int) bool {
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return true
		}
	}
	return false
}
