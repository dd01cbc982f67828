package bolt

import (
	"context"
	"errors"

	"go.etcd.io/bbolt"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

// AccountStore implements storage.AccountStore on bbolt.
// bbolt serializes writers, so Commit's check-then-write runs in one update transaction.
type AccountStore struct {
	db *DB
}

// NewAccountStore creates an account store over db.
func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

// Get retrieves an account by address. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(_ context.Context, address domain.PublicKey) (*domain.Account, error) {
	var acc *domain.Account
	err := s.db.bolt.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketAccounts).Get(address[:])
		if raw == nil {
			return storage.ErrNotFound
		}
		var err error
		acc, err = decodeAccount(address[:], raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// ListByDiscriminator scans the type index, ordered by address.
func (s *AccountStore) ListByDiscriminator(_ context.Context, owner domain.PublicKey, disc domain.Discriminator) ([]*domain.Account, error) {
	var result []*domain.Account
	err := s.db.bolt.View(func(tx *bbolt.Tx) error {
		accounts := tx.Bucket(bucketAccounts)
		prefix := indexPrefix(owner, disc)
		return scan(tx.Bucket(bucketIndex), prefix, func(k, _ []byte) error {
			addr := k[len(prefix):]
			raw := accounts.Get(addr)
			if raw == nil {
				return nil
			}
			acc, err := decodeAccount(addr, raw)
			if err != nil {
				return err
			}
			result = append(result, acc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Commit applies writes atomically with version checks.
func (s *AccountStore) Commit(_ context.Context, writes []domain.AccountWrite) (uint64, error) {
	if err := storage.ValidateWrites(writes); err != nil {
		return 0, err
	}

	var slot uint64
	err := s.db.bolt.Update(func(tx *bbolt.Tx) error {
		accounts := tx.Bucket(bucketAccounts)
		index := tx.Bucket(bucketIndex)

		current := make(map[domain.PublicKey]*domain.Account, len(writes))
		for _, w := range writes {
			var version uint64
			if raw := accounts.Get(w.Address[:]); raw != nil {
				acc, err := decodeAccount(w.Address[:], raw)
				if err != nil {
					return err
				}
				version = acc.Version
				current[w.Address] = acc
			}
			if version != w.ExpectedVersion {
				return storage.ErrConflict
			}
		}
		if !storage.HasWrites(writes) {
			return nil
		}

		var err error
		slot, err = nextSlot(tx.Bucket(bucketMeta))
		if err != nil {
			return err
		}

		for _, w := range writes {
			if w.Account == nil {
				continue
			}
			if old, ok := current[w.Address]; ok {
				if key := indexKey(old.Owner, old.Data, old.Address); key != nil {
					if err := index.Delete(key); err != nil {
						return err
					}
				}
			}

			acc := w.Account.Clone()
			acc.Version = w.ExpectedVersion + 1
			acc.Slot = slot
			raw, err := encodeAccount(acc)
			if err != nil {
				return err
			}
			if err := accounts.Put(w.Address[:], raw); err != nil {
				return err
			}
			if key := indexKey(acc.Owner, acc.Data, acc.Address); key != nil {
				if err := index.Put(key, []byte{}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if errors.Is(err, storage.ErrConflict) {
		return 0, storage.ErrConflict
	}
	if err != nil {
		return 0, err
	}
	return slot, nil
}

// Verify interface compliance at compile time.
var _ storage.AccountStore = (*AccountStore)(nil)
