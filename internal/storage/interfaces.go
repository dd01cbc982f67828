package storage

import (
	"context"

	"github.com/srtaalej/capstone-proj/internal/domain"
)

// AccountStore provides versioned access to program accounts.
type AccountStore interface {
	// Get retrieves an account by address. Returns ErrNotFound if absent.
	Get(ctx context.Context, address domain.PublicKey) (*domain.Account, error)

	// ListByDiscriminator returns all accounts owned by owner whose data starts
	// with disc, ordered by address.
	ListByDiscriminator(ctx context.Context, owner domain.PublicKey, disc domain.Discriminator) ([]*domain.Account, error)

	// Commit applies writes atomically. Every entry's ExpectedVersion must match
	// the stored version (0 = absent) or the whole batch fails with ErrConflict.
	// Entries with a nil Account are checked but not written. Written accounts get
	// Version = ExpectedVersion+1 and the returned slot. A batch of only
	// assert-only entries allocates no slot and returns 0.
	Commit(ctx context.Context, writes []domain.AccountWrite) (uint64, error)
}

// TransactionLogStore provides access to the transactions journal.
type TransactionLogStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if the signature exists.
	Insert(ctx context.Context, r *domain.TransactionRecord) error

	// GetBySignature retrieves a record. Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.TransactionRecord, error)

	// GetBySigner retrieves all records of a signer, ordered by processed_at ASC.
	GetBySigner(ctx context.Context, signer string) ([]*domain.TransactionRecord, error)

	// GetByTimeRange retrieves records processed within [start, end] (inclusive, unix ms).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.TransactionRecord, error)
}

// InstructionStat is one row of the per-instruction outcome summary.
type InstructionStat struct {
	Instruction string `json:"instruction"`
	Status      string `json:"status"`
	ErrorCode   uint32 `json:"error_code"`
	Total       uint64 `json:"total"`
}

// StatsStore summarizes the transactions journal.
type StatsStore interface {
	// InstructionStats counts outcomes processed at or after since (unix ms),
	// ordered by instruction, status and error code.
	InstructionStats(ctx context.Context, since int64) ([]InstructionStat, error)
}

// ValidateWrites checks a commit batch for malformed entries.
func ValidateWrites(writes []domain.AccountWrite) error {
	seen := make(map[domain.PublicKey]struct{}, len(writes))
	for _, w := range writes {
		if _, ok := seen[w.Address]; ok {
			return ErrInvalidInput
		}
		seen[w.Address] = struct{}{}
		if w.Account != nil && w.Account.Address != w.Address {
			return ErrInvalidInput
		}
	}
	return nil
}

// HasWrites reports whether the batch writes at least one account.
func HasWrites(writes []domain.AccountWrite) bool {
	for _, w := range writes {
		if w.Account != nil {
			return true
		}
	}
	return false
}
