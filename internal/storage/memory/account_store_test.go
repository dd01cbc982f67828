package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/storage"
	"github.com/srtaalej/capstone-proj/internal/storage/storagetest"
)

func TestAccountStore_Contract(t *testing.T) {
	storagetest.RunAccountStoreTests(t, func(t *testing.T) storage.AccountStore {
		return NewAccountStore()
	})
}

func TestTransactionLogStore_Contract(t *testing.T) {
	storagetest.RunTransactionLogStoreTests(t, func(t *testing.T) storage.TransactionLogStore {
		return NewTransactionLogStore()
	})
}

func TestTransactionLogStore_Stats(t *testing.T) {
	storagetest.RunStatsStoreTests(t, func(t *testing.T) storagetest.JournalWithStats {
		return NewTransactionLogStore()
	})
}

func TestAccountStore_SlotIsSequential(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		acc := &domain.Account{Address: domain.PublicKey{byte(i)}, Data: []byte{1}}
		slot, err := store.Commit(ctx, []domain.AccountWrite{{Address: acc.Address, Account: acc}})
		if err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		if slot != uint64(i) {
			t.Errorf("slot mismatch: got %d, want %d", slot, i)
		}
	}

	if store.Len() != 3 {
		t.Errorf("Len mismatch: got %d, want 3", store.Len())
	}
}

func TestAccountStore_ConflictLeavesSlot(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	acc := &domain.Account{Address: domain.PublicKey{1}, Data: []byte{1}}
	if _, err := store.Commit(ctx, []domain.AccountWrite{{Address: acc.Address, Account: acc}}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	_, err := store.Commit(ctx, []domain.AccountWrite{{Address: acc.Address, Account: acc}})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	next := &domain.Account{Address: domain.PublicKey{2}, Data: []byte{1}}
	slot, err := store.Commit(ctx, []domain.AccountWrite{{Address: next.Address, Account: next}})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if slot != 2 {
		t.Errorf("slot mismatch after conflict: got %d, want 2", slot)
	}
}
