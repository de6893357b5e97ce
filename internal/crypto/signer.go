package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/parimutuel/internal/oracle"
)

// AttestationSigner signs resolution attestations with a secp256k1 oracle
// key. It is used by resolver operators; the engine itself only verifies.
type AttestationSigner struct {
	privateKey *ecdsa.PrivateKey
	publicKey  []byte // compressed, 33 bytes
}

// NewAttestationSigner creates a signer from a hex-encoded secp256k1 private
// key (with or without 0x prefix).
func NewAttestationSigner(privateKeyHex string) (*AttestationSigner, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &AttestationSigner{
		privateKey: pk,
		publicKey:  ethcrypto.CompressPubkey(&pk.PublicKey),
	}, nil
}

// PublicKey returns the compressed public key bytes the engine compares
// against a market's configured oracle authority.
func (s *AttestationSigner) PublicKey() []byte {
	return append([]byte(nil), s.publicKey...)
}

// PublicKeyHex returns the hex encoding used in market configuration.
func (s *AttestationSigner) PublicKeyHex() string {
	return hex.EncodeToString(s.publicKey)
}

// Sign produces the canonical message bytes for the attestation and a
// 65-byte r||s||v signature over their keccak256 digest.
func (s *AttestationSigner) Sign(engineID string, att oracle.Attestation) (msg, sig []byte, err error) {
	msg, err = oracle.EncodeAttestation(engineID, att)
	if err != nil {
		return nil, nil, err
	}
	sig, err = ethcrypto.Sign(ethcrypto.Keccak256(msg), s.privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}
	return msg, sig, nil
}
