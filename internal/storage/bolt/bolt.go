// Package bolt implements storage interfaces on an embedded bbolt database.
package bolt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"go.etcd.io/bbolt"

	"github.com/srtaalej/capstone-proj/internal/domain"
)

var (
	bucketAccounts     = []byte("accounts")
	bucketIndex        = []byte("accounts_by_type")
	bucketMeta         = []byte("meta")
	bucketTransactions = []byte("transactions")

	keySlot = []byte("slot")
)

// DB wraps a bbolt database holding both the account and journal buckets.
type DB struct {
	bolt *bbolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAccounts, bucketIndex, bucketMeta, bucketTransactions} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{bolt: db}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.bolt.Close()
}

// storedAccount is the on-disk form of an account; the address is the key.
type storedAccount struct {
	Owner     domain.PublicKey
	Data      []byte
	Version   uint64
	Slot      uint64
	UpdatedAt int64
}

func encodeAccount(a *domain.Account) ([]byte, error) {
	return bin.MarshalBorsh(&storedAccount{
		Owner:     a.Owner,
		Data:      a.Data,
		Version:   a.Version,
		Slot:      a.Slot,
		UpdatedAt: a.UpdatedAt,
	})
}

func decodeAccount(addr []byte, raw []byte) (*domain.Account, error) {
	var s storedAccount
	if err := bin.UnmarshalBorsh(&s, raw); err != nil {
		return nil, fmt.Errorf("decode stored account %x: %w", addr, err)
	}
	acc := &domain.Account{
		Owner:     s.Owner,
		Data:      s.Data,
		Version:   s.Version,
		Slot:      s.Slot,
		UpdatedAt: s.UpdatedAt,
	}
	copy(acc.Address[:], addr)
	return acc, nil
}

// indexKey is owner || discriminator || address.
func indexKey(owner domain.PublicKey, data []byte, addr domain.PublicKey) []byte {
	if len(data) < domain.DiscriminatorLength {
		return nil
	}
	key := make([]byte, 0, 2*domain.PublicKeyLength+domain.DiscriminatorLength)
	key = append(key, owner[:]...)
	key = append(key, data[:domain.DiscriminatorLength]...)
	return append(key, addr[:]...)
}

func indexPrefix(owner domain.PublicKey, disc domain.Discriminator) []byte {
	return append(append([]byte(nil), owner[:]...), disc[:]...)
}

// scan iterates over keys matching prefix.
func scan(b *bbolt.Bucket, prefix []byte, fn func(k, v []byte) error) error {
	cursor := b.Cursor()
	for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func nextSlot(meta *bbolt.Bucket) (uint64, error) {
	var slot uint64
	if raw := meta.Get(keySlot); len(raw) == 8 {
		slot = binary.BigEndian.Uint64(raw)
	}
	slot++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, slot)
	if err := meta.Put(keySlot, buf); err != nil {
		return 0, fmt.Errorf("store slot: %w", err)
	}
	return slot, nil
}
