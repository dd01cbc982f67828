package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/observability"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

// TransactionLogStore implements storage.TransactionLogStore using ClickHouse.
// It serves as the analytics copy of the journal.
type TransactionLogStore struct {
	conn *Conn
}

// NewTransactionLogStore creates a new TransactionLogStore.
func NewTransactionLogStore(conn *Conn) *TransactionLogStore {
	return &TransactionLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransactionLogStore = (*TransactionLogStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if signature exists.
func (s *TransactionLogStore) Insert(ctx context.Context, r *domain.TransactionRecord) error {
	if r == nil || r.Signature == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()

	// Check if exists (ReplacingMergeTree will replace, but we want append-only semantics)
	exists, err := s.exists(ctx, r.Signature)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO transactions (
			signature, signer, instruction, status, error_code, error, slot, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	err = s.conn.Exec(ctx, query,
		r.Signature, r.Signer, r.Instruction, string(r.Status),
		r.ErrorCode, r.Error, r.Slot, r.ProcessedAt,
	)
	observability.RecordDBQuery("clickhouse", "insert_transaction", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetBySignature retrieves a record. Returns ErrNotFound if not exists.
func (s *TransactionLogStore) GetBySignature(ctx context.Context, signature string) (*domain.TransactionRecord, error) {
	query := `
		SELECT signature, signer, instruction, status, error_code, error, slot, processed_at
		FROM transactions FINAL
		WHERE signature = ?
	`
	records, err := s.query(ctx, query, signature)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, storage.ErrNotFound
	}
	return records[0], nil
}

// GetBySigner retrieves all records of a signer, ordered by processed_at ASC.
func (s *TransactionLogStore) GetBySigner(ctx context.Context, signer string) ([]*domain.TransactionRecord, error) {
	query := `
		SELECT signature, signer, instruction, status, error_code, error, slot, processed_at
		FROM transactions FINAL
		WHERE signer = ?
		ORDER BY processed_at ASC, signature ASC
	`
	return s.query(ctx, query, signer)
}

// GetByTimeRange retrieves records processed within [start, end] (inclusive).
func (s *TransactionLogStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.TransactionRecord, error) {
	query := `
		SELECT signature, signer, instruction, status, error_code, error, slot, processed_at
		FROM transactions FINAL
		WHERE processed_at >= ? AND processed_at <= ?
		ORDER BY processed_at ASC, signature ASC
	`
	return s.query(ctx, query, start, end)
}

// InstructionStats summarizes outcomes of transactions processed at or after since (unix ms).
func (s *TransactionLogStore) InstructionStats(ctx context.Context, since int64) ([]storage.InstructionStat, error) {
	query := `
		SELECT instruction, status, error_code, sum(total) AS total
		FROM instruction_stats
		WHERE minute >= toStartOfMinute(toDateTime(intDiv(?, 1000)))
		GROUP BY instruction, status, error_code
		ORDER BY instruction, status, error_code
	`
	rows, err := s.conn.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query instruction stats: %w", err)
	}
	defer rows.Close()

	var result []storage.InstructionStat
	for rows.Next() {
		var st storage.InstructionStat
		if err := rows.Scan(&st.Instruction, &st.Status, &st.ErrorCode, &st.Total); err != nil {
			return nil, fmt.Errorf("scan instruction stat: %w", err)
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

func (s *TransactionLogStore) query(ctx context.Context, query string, args ...interface{}) ([]*domain.TransactionRecord, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var result []*domain.TransactionRecord
	for rows.Next() {
		var (
			r      domain.TransactionRecord
			status string
		)
		if err := rows.Scan(&r.Signature, &r.Signer, &r.Instruction, &status, &r.ErrorCode, &r.Error, &r.Slot, &r.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		r.Status = domain.TransactionStatus(status)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return result, nil
}

func (s *TransactionLogStore) exists(ctx context.Context, signature string) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `SELECT count() FROM transactions FINAL WHERE signature = ?`, signature)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
