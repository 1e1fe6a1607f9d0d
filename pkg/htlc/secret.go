package htlc

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	// SecretSize is the byte length of the preimage linking the two legs.
	SecretSize = 32

	// HashAlgoSHA256 identifies the single hash function every adapter must
	// verify against. The EVM contract checks sha256(preimage) and the
	// bitcoin script uses OP_SHA256, so a leg reporting anything else is a
	// fatal configuration error.
	HashAlgoSHA256 = "sha256"
)

// Secret is the 32-byte preimage generated once per swap by the initiator.
type Secret [SecretSize]byte

// SecretHash is the SHA-256 commitment embedded in both legs.
type SecretHash [sha256.Size]byte

// GenerateSecret produces a preimage from a cryptographically secure source.
func GenerateSecret() (Secret, error) {
	var s Secret
	if _, err := rand.Read(s[:]); err != nil {
		return Secret{}, fmt.Errorf("failed to generate secret: %w", err)
	}
	return s, nil
}

// HashSecret computes the SHA-256 commitment for a preimage.
func HashSecret(secret Secret) SecretHash {
	return sha256.Sum256(secret[:])
}

// VerifySecret reports whether secret is the preimage of hash, in constant time.
func VerifySecret(secret Secret, hash SecretHash) bool {
	sum := sha256.Sum256(secret[:])
	return subtle.ConstantTimeCompare(sum[:], hash[:]) == 1
}

func (s Secret) String() string {
	return hex.EncodeToString(s[:])
}

func (h SecretHash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseSecret decodes a hex-encoded 32-byte preimage.
func ParseSecret(s string) (Secret, error) {
	buf, err := hex.DecodeString(s)
	if err != nil {
		return Secret{}, fmt.Errorf("invalid secret hex: %w", err)
	}
	if len(buf) != SecretSize {
		return Secret{}, fmt.Errorf("secret must be %d bytes, got %d", SecretSize, len(buf))
	}
	var out Secret
	copy(out[:], buf)
	return out, nil
}

// ParseSecretHash decodes a hex-encoded SHA-256 commitment.
func ParseSecretHash(s string) (SecretHash, error) {
	buf, err := hex.DecodeString(s)
	if err != nil {
		return SecretHash{}, fmt.Errorf("invalid secret hash hex: %w", err)
	}
	if len(buf) != sha256.Size {
		return SecretHash{}, fmt.Errorf("secret hash must be %d bytes, got %d", sha256.Size, len(buf))
	}
	var out SecretHash
	copy(out[:], buf)
	return out, nil
}
