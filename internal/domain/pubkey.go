package domain

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKeyLength is the size of an ed25519 public key / Solana address.
const PublicKeyLength = 32

// ErrInvalidKeyLength is returned when raw key material is not exactly 32 bytes.
var ErrInvalidKeyLength = errors.New("invalid public key length")

// PublicKey is a 32-byte account address. Program-derived addresses share the type.
type PublicKey [PublicKeyLength]byte

// ZeroKey is the all-zero key (also the System Program id).
var ZeroKey PublicKey

// PublicKeyFromBytes copies b into a PublicKey. It never truncates or pads.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("%w: got %d bytes", ErrInvalidKeyLength, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("decode base58 key %q: %w", s, err)
	}
	return PublicKeyFromBytes(raw)
}

// MustParsePublicKey is ParsePublicKey for compile-time constants.
func MustParsePublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 form.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// Bytes returns a copy of the raw key.
func (pk PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeyLength)
	copy(out, pk[:])
	return out
}

// IsZero reports whether pk is the zero key.
func (pk PublicKey) IsZero() bool {
	return pk == ZeroKey
}

// Less orders keys bytewise.
func (pk PublicKey) Less(other PublicKey) bool {
	return bytes.Compare(pk[:], other[:]) < 0
}

// MarshalText implements encoding.TextMarshaler so keys render as base58 in JSON.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
