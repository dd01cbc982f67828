package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
type AccountStore struct {
	mu   sync.RWMutex
	data map[domain.PublicKey]*domain.Account // keyed by address
	slot uint64
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data: make(map[domain.PublicKey]*domain.Account),
	}
}

// Get retrieves an account by address. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(_ context.Context, address domain.PublicKey) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return acc.Clone(), nil
}

// ListByDiscriminator returns owner's accounts whose data starts with disc, ordered by address.
func (s *AccountStore) ListByDiscriminator(_ context.Context, owner domain.PublicKey, disc domain.Discriminator) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Account
	for _, acc := range s.data {
		if acc.Owner == owner && bytes.HasPrefix(acc.Data, disc[:]) {
			result = append(result, acc.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Address.Less(result[j].Address)
	})

	return result, nil
}

// Commit applies writes atomically with version checks.
func (s *AccountStore) Commit(_ context.Context, writes []domain.AccountWrite) (uint64, error) {
	if err := storage.ValidateWrites(writes); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range writes {
		var current uint64
		if acc, ok := s.data[w.Address]; ok {
			current = acc.Version
		}
		if current != w.ExpectedVersion {
			return 0, storage.ErrConflict
		}
	}
	if !storage.HasWrites(writes) {
		return 0, nil
	}

	s.slot++
	for _, w := range writes {
		if w.Account == nil {
			continue
		}
		acc := w.Account.Clone()
		acc.Version = w.ExpectedVersion + 1
		acc.Slot = s.slot
		s.data[w.Address] = acc
	}
	return s.slot, nil
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Verify interface compliance at compile time.
var _ storage.AccountStore = (*AccountStore)(nil)
