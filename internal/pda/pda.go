// Package pda derives Solana program-derived addresses for every ledger record.
package pda

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/srtaalej/capstone-proj/internal/domain"
)

// Solana runtime limits for address seeds.
const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

const pdaMarker = "ProgramDerivedAddress"

// Derivation errors.
var (
	ErrMaxSeedLength = errors.New("seed exceeds maximum length")
	ErrTooManySeeds  = errors.New("too many seeds")
	ErrOnCurve       = errors.New("derived address is on the ed25519 curve")
	ErrNoViableBump  = errors.New("unable to find a viable program address bump")
)

// CreateProgramAddress hashes seeds with the program id.
// Fails with ErrOnCurve if the result is a valid ed25519 point.
func CreateProgramAddress(seeds [][]byte, programID domain.PublicKey) (domain.PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return domain.PublicKey{}, fmt.Errorf("%w: %d > %d", ErrTooManySeeds, len(seeds), MaxSeeds)
	}

	h := sha256.New()
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return domain.PublicKey{}, fmt.Errorf("%w: seed %d is %d bytes", ErrMaxSeedLength, i, len(seed))
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var out domain.PublicKey
	copy(out[:], h.Sum(nil))

	if isOnCurve(out[:]) {
		return domain.PublicKey{}, ErrOnCurve
	}
	return out, nil
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID domain.PublicKey) (domain.PublicKey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		// one slot is reserved for the bump
		return domain.PublicKey{}, 0, fmt.Errorf("%w: %d seeds leave no room for bump", ErrTooManySeeds, len(seeds))
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return domain.PublicKey{}, 0, err
		}
	}

	return domain.PublicKey{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether key decodes to an ed25519 point. Program-derived
// addresses are never on the curve, so no private key exists for them.
func IsOnCurve(key domain.PublicKey) bool {
	return isOnCurve(key[:])
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// U64Seed encodes v as 8 little-endian bytes, the seed form of every numeric id.
func U64Seed(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
