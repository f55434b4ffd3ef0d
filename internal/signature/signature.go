// Package signature recovers and verifies Ethereum personal-sign signatures
// over request messages.
package signature

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

const personalPrefix = "\x19Ethereum Signed Message:\n32"

var ErrMalformedSignature = errors.New("malformed signature")

// Keccak256 hashes data with the legacy Keccak-256 used by Ethereum.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// Digest returns the hash that is actually signed for message:
// keccak(prefix || keccak(message)).
func Digest(message string) []byte {
	return Keccak256([]byte(personalPrefix), Keccak256([]byte(message)))
}

// Recover returns the checksummed address that signed message.
// The signature is 65 bytes r||s||v in hex, with v in {0,1} or {27,28}.
func Recover(signature, message string) (string, error) {
	sig, err := decodeHex(signature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("%w: want 65 bytes, got %d", ErrMalformedSignature, len(sig))
	}

	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return "", fmt.Errorf("%w: invalid recovery id %d", ErrMalformedSignature, sig[64])
	}

	// decred's compact format is [27+recid] || r || s for uncompressed keys.
	compact := make([]byte, 65)
	compact[0] = 27 + v
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, Digest(message))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return PubkeyToAddress(pub), nil
}

// Sign produces an r||s||v signature (v in {27,28}) over message with a hex
// encoded private key.
func Sign(privateKeyHex, message string) (string, error) {
	key, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	compact := ecdsa.SignCompact(key, Digest(message), false)
	out := make([]byte, 65)
	copy(out, compact[1:])
	out[64] = compact[0]
	return "0x" + hex.EncodeToString(out), nil
}

// ParsePrivateKey decodes a 32-byte hex private key.
func ParsePrivateKey(privateKeyHex string) (*secp256k1.PrivateKey, error) {
	b, err := decodeHex(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return secp256k1.PrivKeyFromBytes(b), nil
}

// PubkeyToAddress derives the EIP-55 checksummed address of a public key.
func PubkeyToAddress(pub *secp256k1.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()
	return ChecksumAddress(hex.EncodeToString(Keccak256(uncompressed[1:])[12:]))
}

// ChecksumAddress formats a hex address with EIP-55 mixed-case checksum.
func ChecksumAddress(addr string) string {
	lower := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X"))
	hash := hex.EncodeToString(Keccak256([]byte(lower)))

	var sb strings.Builder
	sb.Grow(len(lower) + 2)
	sb.WriteString("0x")
	for i, c := range lower {
		if c >= 'a' && c <= 'f' && hash[i] >= '8' {
			sb.WriteRune(c - 32)
			continue
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}
