package bolt

import (
	"context"
	"fmt"
	"sort"

	bin "github.com/gagliardetto/binary"
	"go.etcd.io/bbolt"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

// TransactionLogStore implements storage.TransactionLogStore on bbolt.
type TransactionLogStore struct {
	db *DB
}

// NewTransactionLogStore creates a journal over db.
func NewTransactionLogStore(db *DB) *TransactionLogStore {
	return &TransactionLogStore{db: db}
}

type storedRecord struct {
	Signer      string
	Instruction string
	Status      string
	ErrorCode   uint32
	Error       string
	Slot        uint64
	ProcessedAt int64
}

func decodeRecord(sig []byte, raw []byte) (*domain.TransactionRecord, error) {
	var s storedRecord
	if err := bin.UnmarshalBorsh(&s, raw); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", sig, err)
	}
	return &domain.TransactionRecord{
		Signature:   string(sig),
		Signer:      s.Signer,
		Instruction: s.Instruction,
		Status:      domain.TransactionStatus(s.Status),
		ErrorCode:   s.ErrorCode,
		Error:       s.Error,
		Slot:        s.Slot,
		ProcessedAt: s.ProcessedAt,
	}, nil
}

// Insert adds a new record. Returns ErrDuplicateKey if signature exists.
func (s *TransactionLogStore) Insert(_ context.Context, r *domain.TransactionRecord) error {
	if r == nil || r.Signature == "" {
		return storage.ErrInvalidInput
	}
	raw, err := bin.MarshalBorsh(&storedRecord{
		Signer:      r.Signer,
		Instruction: r.Instruction,
		Status:      string(r.Status),
		ErrorCode:   r.ErrorCode,
		Error:       r.Error,
		Slot:        r.Slot,
		ProcessedAt: r.ProcessedAt,
	})
	if err != nil {
		return fmt.Errorf("encode transaction %s: %w", r.Signature, err)
	}

	return s.db.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTransactions)
		if b.Get([]byte(r.Signature)) != nil {
			return storage.ErrDuplicateKey
		}
		return b.Put([]byte(r.Signature), raw)
	})
}

// GetBySignature retrieves a record. Returns ErrNotFound if not exists.
func (s *TransactionLogStore) GetBySignature(_ context.Context, signature string) (*domain.TransactionRecord, error) {
	var rec *domain.TransactionRecord
	err := s.db.bolt.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketTransactions).Get([]byte(signature))
		if raw == nil {
			return storage.ErrNotFound
		}
		var err error
		rec, err = decodeRecord([]byte(signature), raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetBySigner retrieves all records of a signer, ordered by processed_at ASC.
func (s *TransactionLogStore) GetBySigner(_ context.Context, signer string) ([]*domain.TransactionRecord, error) {
	return s.filter(func(r *domain.TransactionRecord) bool { return r.Signer == signer })
}

// GetByTimeRange retrieves records processed within [start, end] (inclusive).
func (s *TransactionLogStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.TransactionRecord, error) {
	return s.filter(func(r *domain.TransactionRecord) bool {
		return r.ProcessedAt >= start && r.ProcessedAt <= end
	})
}

// filter does a full bucket scan; the journal is keyed by signature only.
func (s *TransactionLogStore) filter(match func(*domain.TransactionRecord) bool) ([]*domain.TransactionRecord, error) {
	var result []*domain.TransactionRecord
	err := s.db.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTransactions).ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(k, v)
			if err != nil {
				return err
			}
			if match(rec) {
				result = append(result, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ProcessedAt != result[j].ProcessedAt {
			return result[i].ProcessedAt < result[j].ProcessedAt
		}
		return result[i].Signature < result[j].Signature
	})
	return result, nil
}

// InstructionStats counts outcomes of records processed at or after since.
func (s *TransactionLogStore) InstructionStats(_ context.Context, since int64) ([]storage.InstructionStat, error) {
	records, err := s.filter(func(r *domain.TransactionRecord) bool { return r.ProcessedAt >= since })
	if err != nil {
		return nil, err
	}
	return storage.SummarizeRecords(records), nil
}

// Verify interface compliance at compile time.
var (
	_ storage.TransactionLogStore = (*TransactionLogStore)(nil)
	_ storage.StatsStore          = (*TransactionLogStore)(nil)
)
