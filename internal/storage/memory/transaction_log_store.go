package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

// TransactionLogStore is an in-memory implementation of storage.TransactionLogStore.
type TransactionLogStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TransactionRecord // keyed by signature
}

// NewTransactionLogStore creates a new in-memory transaction journal.
func NewTransactionLogStore() *TransactionLogStore {
	return &TransactionLogStore{
		data: make(map[string]*domain.TransactionRecord),
	}
}

// Insert adds a new record. Returns ErrDuplicateKey if signature exists.
func (s *TransactionLogStore) Insert(_ context.Context, r *domain.TransactionRecord) error {
	if r == nil || r.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.Signature]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	recordCopy := *r
	s.data[r.Signature] = &recordCopy
	return nil
}

// GetBySignature retrieves a record. Returns ErrNotFound if not exists.
func (s *TransactionLogStore) GetBySignature(_ context.Context, signature string) (*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[signature]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recordCopy := *r
	return &recordCopy, nil
}

// GetBySigner retrieves all records of a signer.
func (s *TransactionLogStore) GetBySigner(_ context.Context, signer string) ([]*domain.TransactionRecord, error) {
	return s.filter(func(r *domain.TransactionRecord) bool { return r.Signer == signer }), nil
}

// GetByTimeRange retrieves records processed within [start, end] (inclusive).
func (s *TransactionLogStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.TransactionRecord, error) {
	return s.filter(func(r *domain.TransactionRecord) bool {
		return r.ProcessedAt >= start && r.ProcessedAt <= end
	}), nil
}

func (s *TransactionLogStore) filter(match func(*domain.TransactionRecord) bool) []*domain.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransactionRecord
	for _, r := range s.data {
		if match(r) {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	// Sort by processed_at ASC, signature for ties
	sort.Slice(result, func(i, j int) bool {
		if result[i].ProcessedAt != result[j].ProcessedAt {
			return result[i].ProcessedAt < result[j].ProcessedAt
		}
		return result[i].Signature < result[j].Signature
	})

	return result
}

// InstructionStats counts outcomes of records processed at or after since.
func (s *TransactionLogStore) InstructionStats(_ context.Context, since int64) ([]storage.InstructionStat, error) {
	return storage.SummarizeRecords(s.filter(func(r *domain.TransactionRecord) bool { return r.ProcessedAt >= since })), nil
}

// Verify interface compliance at compile time.
var (
	_ storage.TransactionLogStore = (*TransactionLogStore)(nil)
	_ storage.StatsStore          = (*TransactionLogStore)(nil)
)
