// Package wallet holds ed25519 keypairs in the Solana keygen file format.
package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/srtaalej/capstone-proj/internal/domain"
)

// Keypair is a signing key.
type Keypair struct {
	key solanago.PrivateKey
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	key, err := solanago.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Keypair{key: key}, nil
}

// FromPrivateKey wraps an existing key.
func FromPrivateKey(key solanago.PrivateKey) (*Keypair, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return &Keypair{key: key}, nil
}

// Load reads a keygen file: a JSON array of the 64 secret key bytes.
func Load(path string) (*Keypair, error) {
	key, err := solanago.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return &Keypair{key: key}, nil
}

// Save writes k as a keygen file readable only by the owner.
func (k *Keypair) Save(path string) error {
	ints := make([]int, len(k.key))
	for i, b := range k.key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create key dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write keypair %s: %w", path, err)
	}
	return nil
}

// PublicKey returns the wallet address.
func (k *Keypair) PublicKey() domain.PublicKey {
	return domain.PublicKey(k.key.PublicKey())
}

// Sign signs payload.
func (k *Keypair) Sign(payload []byte) (solanago.Signature, error) {
	return k.key.Sign(payload)
}
