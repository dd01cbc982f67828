// Package storagetest holds behaviour tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

var (
	ownerA = domain.PublicKey{0xA}
	ownerB = domain.PublicKey{0xB}
	discX  = domain.Discriminator{1, 1, 1, 1, 1, 1, 1, 1}
	discY  = domain.Discriminator{2, 2, 2, 2, 2, 2, 2, 2}
)

func account(addr byte, owner domain.PublicKey, disc domain.Discriminator, payload ...byte) *domain.Account {
	return &domain.Account{
		Address:   domain.PublicKey{addr},
		Owner:     owner,
		Data:      append(disc.Bytes(), payload...),
		UpdatedAt: 1704067200000,
	}
}

func create(acc *domain.Account) domain.AccountWrite {
	return domain.AccountWrite{Address: acc.Address, ExpectedVersion: 0, Account: acc}
}

// RunAccountStoreTests exercises the storage.AccountStore contract.
func RunAccountStoreTests(t *testing.T, newStore func(t *testing.T) storage.AccountStore) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), domain.PublicKey{99})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		acc := account(1, ownerA, discX, 7, 8, 9)
		slot, err := s.Commit(ctx, []domain.AccountWrite{create(acc)})
		require.NoError(t, err)
		assert.NotZero(t, slot)

		got, err := s.Get(ctx, acc.Address)
		require.NoError(t, err)
		assert.Equal(t, acc.Address, got.Address)
		assert.Equal(t, acc.Owner, got.Owner)
		assert.Equal(t, acc.Data, got.Data)
		assert.Equal(t, uint64(1), got.Version)
		assert.Equal(t, slot, got.Slot)
		assert.Equal(t, acc.UpdatedAt, got.UpdatedAt)
	})

	t.Run("SlotsIncrease", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		s1, err := s.Commit(ctx, []domain.AccountWrite{create(account(1, ownerA, discX))})
		require.NoError(t, err)
		s2, err := s.Commit(ctx, []domain.AccountWrite{create(account(2, ownerA, discX))})
		require.NoError(t, err)
		assert.Greater(t, s2, s1)
	})

	t.Run("UpdateBumpsVersion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		acc := account(1, ownerA, discX, 1)
		_, err := s.Commit(ctx, []domain.AccountWrite{create(acc)})
		require.NoError(t, err)

		updated := account(1, ownerA, discX, 2)
		_, err = s.Commit(ctx, []domain.AccountWrite{{Address: acc.Address, ExpectedVersion: 1, Account: updated}})
		require.NoError(t, err)

		got, err := s.Get(ctx, acc.Address)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), got.Version)
		assert.Equal(t, updated.Data, got.Data)
	})

	t.Run("StaleVersionConflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		acc := account(1, ownerA, discX, 1)
		_, err := s.Commit(ctx, []domain.AccountWrite{create(acc)})
		require.NoError(t, err)

		_, err = s.Commit(ctx, []domain.AccountWrite{create(account(1, ownerA, discX, 2))})
		assert.ErrorIs(t, err, storage.ErrConflict)

		_, err = s.Commit(ctx, []domain.AccountWrite{{Address: acc.Address, ExpectedVersion: 5, Account: acc}})
		assert.ErrorIs(t, err, storage.ErrConflict)

		got, err := s.Get(ctx, acc.Address)
		require.NoError(t, err)
		assert.Equal(t, []byte{1}, got.Data[domain.DiscriminatorLength:])
	})

	t.Run("BatchIsAtomic", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		existing := account(1, ownerA, discX)
		_, err := s.Commit(ctx, []domain.AccountWrite{create(existing)})
		require.NoError(t, err)

		// second entry conflicts, first must not be written
		_, err = s.Commit(ctx, []domain.AccountWrite{
			create(account(2, ownerA, discX)),
			create(account(1, ownerA, discX)),
		})
		assert.ErrorIs(t, err, storage.ErrConflict)

		_, err = s.Get(ctx, domain.PublicKey{2})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("AssertOnlyEntries", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		guard := account(1, ownerA, discX)
		_, err := s.Commit(ctx, []domain.AccountWrite{create(guard)})
		require.NoError(t, err)

		// guard at version 1 holds; write goes through
		_, err = s.Commit(ctx, []domain.AccountWrite{
			{Address: guard.Address, ExpectedVersion: 1},
			create(account(2, ownerA, discX)),
		})
		require.NoError(t, err)

		// guard absent assertion fails
		_, err = s.Commit(ctx, []domain.AccountWrite{
			{Address: guard.Address, ExpectedVersion: 0},
			create(account(3, ownerA, discX)),
		})
		assert.ErrorIs(t, err, storage.ErrConflict)

		got, err := s.Get(ctx, guard.Address)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), got.Version, "assert-only entry must not bump version")
	})

	t.Run("AssertOnlyBatchAllocatesNoSlot", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		acc := account(1, ownerA, discX)
		first, err := s.Commit(ctx, []domain.AccountWrite{create(acc)})
		require.NoError(t, err)

		slot, err := s.Commit(ctx, []domain.AccountWrite{
			{Address: acc.Address, ExpectedVersion: 1},
			{Address: domain.PublicKey{2}, ExpectedVersion: 0},
		})
		require.NoError(t, err)
		assert.Zero(t, slot)

		_, err = s.Commit(ctx, []domain.AccountWrite{{Address: acc.Address, ExpectedVersion: 0}})
		assert.ErrorIs(t, err, storage.ErrConflict)

		next, err := s.Commit(ctx, []domain.AccountWrite{create(account(3, ownerA, discX))})
		require.NoError(t, err)
		assert.Equal(t, first+1, next)
	})

	t.Run("InvalidBatch", func(t *testing.T) {
		s := newStore(t)
		acc := account(1, ownerA, discX)
		_, err := s.Commit(context.Background(), []domain.AccountWrite{create(acc), create(acc)})
		assert.ErrorIs(t, err, storage.ErrInvalidInput)
	})

	t.Run("ListByDiscriminator", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Commit(ctx, []domain.AccountWrite{
			create(account(3, ownerA, discX)),
			create(account(1, ownerA, discX)),
			create(account(2, ownerA, discY)),
			create(account(4, ownerB, discX)),
		})
		require.NoError(t, err)

		got, err := s.ListByDiscriminator(ctx, ownerA, discX)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, domain.PublicKey{1}, got[0].Address)
		assert.Equal(t, domain.PublicKey{3}, got[1].Address)

		none, err := s.ListByDiscriminator(ctx, ownerB, discY)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ReturnedCopiesAreIsolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		acc := account(1, ownerA, discX, 5)
		_, err := s.Commit(ctx, []domain.AccountWrite{create(acc)})
		require.NoError(t, err)
		acc.Data[0] = 0xFF

		got, err := s.Get(ctx, domain.PublicKey{1})
		require.NoError(t, err)
		got.Data[0] = 0xEE

		again, err := s.Get(ctx, domain.PublicKey{1})
		require.NoError(t, err)
		assert.Equal(t, discX[0], again.Data[0])
	})

	t.Run("ConcurrentIncrementsAreSerialized", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		addr := domain.PublicKey{1}
		_, err := s.Commit(ctx, []domain.AccountWrite{create(account(1, ownerA, discX, 0))})
		require.NoError(t, err)

		const workers = 8
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					cur, err := s.Get(ctx, addr)
					if err != nil {
						t.Error(err)
						return
					}
					next := cur.Clone()
					next.Data[domain.DiscriminatorLength]++
					_, err = s.Commit(ctx, []domain.AccountWrite{{Address: addr, ExpectedVersion: cur.Version, Account: next}})
					if err == nil {
						return
					}
					if !errors.Is(err, storage.ErrConflict) {
						t.Error(err)
						return
					}
				}
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, byte(workers), got.Data[domain.DiscriminatorLength])
		assert.Equal(t, uint64(workers+1), got.Version)
	})
}

// RunTransactionLogStoreTests exercises the storage.TransactionLogStore contract.
func RunTransactionLogStoreTests(t *testing.T, newStore func(t *testing.T) storage.TransactionLogStore) {
	record := func(sig, signer string, at int64) *domain.TransactionRecord {
		return &domain.TransactionRecord{
			Signature:   sig,
			Signer:      signer,
			Instruction: "vote",
			Status:      domain.TransactionApplied,
			Slot:        uint64(at),
			ProcessedAt: at,
		}
	}

	t.Run("InsertAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := record("sig1", "alice", 1000)
		r.Status = domain.TransactionRejected
		r.ErrorCode = 6007
		r.Error = "DuplicateVote: voter already voted in this poll"
		r.Slot = 0
		require.NoError(t, s.Insert(ctx, r))

		got, err := s.GetBySignature(ctx, "sig1")
		require.NoError(t, err)
		assert.Equal(t, r, got)
	})

	t.Run("DuplicateSignature", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Insert(ctx, record("sig1", "alice", 1000)))
		assert.ErrorIs(t, s.Insert(ctx, record("sig1", "bob", 2000)), storage.ErrDuplicateKey)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetBySignature(context.Background(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		s := newStore(t)
		assert.ErrorIs(t, s.Insert(context.Background(), &domain.TransactionRecord{}), storage.ErrInvalidInput)
	})

	t.Run("QueriesOrderedByTime", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Insert(ctx, record("c", "alice", 3000)))
		require.NoError(t, s.Insert(ctx, record("a", "alice", 1000)))
		require.NoError(t, s.Insert(ctx, record("b", "bob", 2000)))

		bySigner, err := s.GetBySigner(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, bySigner, 2)
		assert.Equal(t, "a", bySigner[0].Signature)
		assert.Equal(t, "c", bySigner[1].Signature)

		byTime, err := s.GetByTimeRange(ctx, 1000, 2000)
		require.NoError(t, err)
		require.Len(t, byTime, 2)
		assert.Equal(t, "a", byTime[0].Signature)
		assert.Equal(t, "b", byTime[1].Signature)
	})
}

// JournalWithStats is a transaction journal that can summarize itself.
type JournalWithStats interface {
	storage.TransactionLogStore
	storage.StatsStore
}

// RunStatsStoreTests exercises the storage.StatsStore contract.
func RunStatsStoreTests(t *testing.T, newStore func(t *testing.T) JournalWithStats) {
	t.Run("GroupsOutcomes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		records := []*domain.TransactionRecord{
			{Signature: "old", Signer: "a", Instruction: "vote", Status: domain.TransactionApplied, Slot: 1, ProcessedAt: 500},
			{Signature: "v1", Signer: "a", Instruction: "vote", Status: domain.TransactionApplied, Slot: 2, ProcessedAt: 1000},
			{Signature: "v2", Signer: "b", Instruction: "vote", Status: domain.TransactionApplied, Slot: 3, ProcessedAt: 1100},
			{Signature: "v3", Signer: "a", Instruction: "vote", Status: domain.TransactionRejected, ErrorCode: 6007, Error: "DuplicateVote", ProcessedAt: 1200},
			{Signature: "p1", Signer: "a", Instruction: "create_poll", Status: domain.TransactionApplied, Slot: 4, ProcessedAt: 1300},
		}
		for _, r := range records {
			require.NoError(t, s.Insert(ctx, r))
		}

		stats, err := s.InstructionStats(ctx, 1000)
		require.NoError(t, err)
		assert.Equal(t, []storage.InstructionStat{
			{Instruction: "create_poll", Status: "applied", Total: 1},
			{Instruction: "vote", Status: "applied", Total: 2},
			{Instruction: "vote", Status: "rejected", ErrorCode: 6007, Total: 1},
		}, stats)
	})

	t.Run("Empty", func(t *testing.T) {
		s := newStore(t)
		stats, err := s.InstructionStats(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, stats)
	})
}
