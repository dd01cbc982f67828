package clickhouse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/storage"
	"github.com/srtaalej/capstone-proj/internal/storage/clickhouse"
	"github.com/srtaalej/capstone-proj/internal/storage/storagetest"
)

func TestTransactionLogStore_Contract(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	storagetest.RunTransactionLogStoreTests(t, func(t *testing.T) storage.TransactionLogStore {
		require.NoError(t, conn.Exec(context.Background(), "TRUNCATE TABLE transactions"))
		return clickhouse.NewTransactionLogStore(conn)
	})
}

func TestTransactionLogStore_InstructionStats(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewTransactionLogStore(conn)
	ctx := context.Background()
	base := int64(1704067200000)

	records := []*domain.TransactionRecord{
		{Signature: "a", Signer: "w", Instruction: "vote", Status: domain.TransactionApplied, Slot: 1, ProcessedAt: base},
		{Signature: "b", Signer: "w", Instruction: "vote", Status: domain.TransactionRejected, ErrorCode: 6007, Error: "DuplicateVote", ProcessedAt: base + 1},
		{Signature: "c", Signer: "x", Instruction: "vote", Status: domain.TransactionApplied, Slot: 2, ProcessedAt: base + 2},
	}
	for _, r := range records {
		require.NoError(t, store.Insert(ctx, r))
	}

	stats, err := store.InstructionStats(ctx, base)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, storage.InstructionStat{Instruction: "vote", Status: "applied", Total: 2}, stats[0])
	assert.Equal(t, storage.InstructionStat{Instruction: "vote", Status: "rejected", ErrorCode: 6007, Total: 1}, stats[1])
}
