package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/storage"
	"github.com/srtaalej/capstone-proj/internal/storage/migrations"
	"github.com/srtaalej/capstone-proj/internal/storage/postgres"
	"github.com/srtaalej/capstone-proj/internal/storage/storagetest"
)

func TestAccountStore_Contract(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	storagetest.RunAccountStoreTests(t, func(t *testing.T) storage.AccountStore {
		resetTables(t, pool)
		return postgres.NewAccountStore(pool)
	})
}

func TestTransactionLogStore_Contract(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	storagetest.RunTransactionLogStoreTests(t, func(t *testing.T) storage.TransactionLogStore {
		resetTables(t, pool)
		return postgres.NewTransactionLogStore(pool)
	})
}

func TestTransactionLogStore_Stats(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	storagetest.RunStatsStoreTests(t, func(t *testing.T) storagetest.JournalWithStats {
		resetTables(t, pool)
		return postgres.NewTransactionLogStore(pool)
	})
}

func TestMigrations_Idempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, migrations.RunPostgresMigrations(context.Background(), pool))
}

func TestAccountStore_ShortDataNotIndexed(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewAccountStore(pool)
	ctx := context.Background()

	acc := &domain.Account{Address: domain.PublicKey{1}, Owner: domain.PublicKey{2}, Data: []byte{1, 2}}
	_, err := store.Commit(ctx, []domain.AccountWrite{{Address: acc.Address, Account: acc}})
	require.NoError(t, err)

	got, err := store.Get(ctx, acc.Address)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, got.Data)

	list, err := store.ListByDiscriminator(ctx, acc.Owner, domain.Discriminator{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
