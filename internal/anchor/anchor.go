// Package anchor implements the Anchor framework's account and instruction
// framing: an 8-byte sha256 discriminator followed by a borsh payload.
package anchor

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/srtaalej/capstone-proj/internal/domain"
)

// Codec errors.
var (
	ErrShortData             = errors.New("data shorter than discriminator")
	ErrDiscriminatorMismatch = errors.New("discriminator mismatch")
)

// AccountDiscriminator returns sha256("account:<name>")[:8].
func AccountDiscriminator(name string) domain.Discriminator {
	return hashPrefix("account:" + name)
}

// InstructionDiscriminator returns sha256("global:<name>")[:8]; name is the snake_case handler name.
func InstructionDiscriminator(name string) domain.Discriminator {
	return hashPrefix("global:" + name)
}

func hashPrefix(preimage string) domain.Discriminator {
	sum := sha256.Sum256([]byte(preimage))
	var d domain.Discriminator
	copy(d[:], sum[:domain.DiscriminatorLength])
	return d
}

// Marshal borsh-encodes v behind disc.
func Marshal(disc domain.Discriminator, v interface{}) ([]byte, error) {
	payload, err := bin.MarshalBorsh(v)
	if err != nil {
		return nil, fmt.Errorf("borsh encode: %w", err)
	}
	out := make([]byte, 0, domain.DiscriminatorLength+len(payload))
	out = append(out, disc[:]...)
	return append(out, payload...), nil
}

// Unmarshal checks disc and borsh-decodes the rest of data into v.
func Unmarshal(disc domain.Discriminator, data []byte, v interface{}) error {
	payload, err := Payload(disc, data)
	if err != nil {
		return err
	}
	if err := bin.UnmarshalBorsh(v, payload); err != nil {
		return fmt.Errorf("borsh decode: %w", err)
	}
	return nil
}

// Payload strips and verifies the discriminator.
func Payload(disc domain.Discriminator, data []byte) ([]byte, error) {
	if len(data) < domain.DiscriminatorLength {
		return nil, ErrShortData
	}
	if !bytes.Equal(data[:domain.DiscriminatorLength], disc[:]) {
		return nil, fmt.Errorf("%w: want %x, got %x", ErrDiscriminatorMismatch, disc[:], data[:domain.DiscriminatorLength])
	}
	return data[domain.DiscriminatorLength:], nil
}

// Peek returns the discriminator of data.
func Peek(data []byte) (domain.Discriminator, error) {
	var d domain.Discriminator
	if len(data) < domain.DiscriminatorLength {
		return d, ErrShortData
	}
	copy(d[:], data)
	return d, nil
}
