package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

// TransactionLogStore implements storage.TransactionLogStore using PostgreSQL.
type TransactionLogStore struct {
	pool *Pool
}

// NewTransactionLogStore creates a new TransactionLogStore.
func NewTransactionLogStore(pool *Pool) *TransactionLogStore {
	return &TransactionLogStore{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.TransactionLogStore = (*TransactionLogStore)(nil)
	_ storage.StatsStore          = (*TransactionLogStore)(nil)
)

// Insert adds a new record. Returns ErrDuplicateKey if signature exists.
func (s *TransactionLogStore) Insert(ctx context.Context, r *domain.TransactionRecord) error {
	if r == nil || r.Signature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO transactions (
			signature, signer, instruction, status, error_code, error, slot, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var errText *string
	if r.Error != "" {
		errText = &r.Error
	}

	_, err := s.pool.Exec(ctx, query,
		r.Signature,
		r.Signer,
		r.Instruction,
		string(r.Status),
		int32(r.ErrorCode),
		errText,
		int64(r.Slot),
		r.ProcessedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetBySignature retrieves a record. Returns ErrNotFound if not exists.
func (s *TransactionLogStore) GetBySignature(ctx context.Context, signature string) (*domain.TransactionRecord, error) {
	query := `
		SELECT signature, signer, instruction, status, error_code, error, slot, processed_at
		FROM transactions
		WHERE signature = $1
	`

	r, err := scanRecord(s.pool.QueryRow(ctx, query, signature))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return r, nil
}

// GetBySigner retrieves all records of a signer, ordered by processed_at ASC.
func (s *TransactionLogStore) GetBySigner(ctx context.Context, signer string) ([]*domain.TransactionRecord, error) {
	query := `
		SELECT signature, signer, instruction, status, error_code, error, slot, processed_at
		FROM transactions
		WHERE signer = $1
		ORDER BY processed_at ASC, signature ASC
	`
	return s.queryRecords(ctx, query, signer)
}

// GetByTimeRange retrieves records processed within [start, end] (inclusive).
func (s *TransactionLogStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.TransactionRecord, error) {
	query := `
		SELECT signature, signer, instruction, status, error_code, error, slot, processed_at
		FROM transactions
		WHERE processed_at >= $1 AND processed_at <= $2
		ORDER BY processed_at ASC, signature ASC
	`
	return s.queryRecords(ctx, query, start, end)
}

// InstructionStats counts outcomes of records processed at or after since.
func (s *TransactionLogStore) InstructionStats(ctx context.Context, since int64) ([]storage.InstructionStat, error) {
	query := `
		SELECT instruction, status, error_code, count(*)
		FROM transactions
		WHERE processed_at >= $1
		GROUP BY instruction, status, error_code
		ORDER BY instruction, status, error_code
	`
	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query instruction stats: %w", err)
	}
	defer rows.Close()

	var result []storage.InstructionStat
	for rows.Next() {
		var (
			st    storage.InstructionStat
			code  int32
			total int64
		)
		if err := rows.Scan(&st.Instruction, &st.Status, &code, &total); err != nil {
			return nil, fmt.Errorf("scan instruction stat: %w", err)
		}
		st.ErrorCode = uint32(code)
		st.Total = uint64(total)
		result = append(result, st)
	}
	return result, rows.Err()
}

func (s *TransactionLogStore) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*domain.TransactionRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var result []*domain.TransactionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return result, nil
}

// scanRecord scans a row into a domain.TransactionRecord.
func scanRecord(row pgx.Row) (*domain.TransactionRecord, error) {
	var (
		r         domain.TransactionRecord
		status    string
		errorCode int32
		errText   *string
		slot      int64
	)
	err := row.Scan(&r.Signature, &r.Signer, &r.Instruction, &status, &errorCode, &errText, &slot, &r.ProcessedAt)
	if err != nil {
		return nil, err
	}
	r.Status = domain.TransactionStatus(status)
	r.ErrorCode = uint32(errorCode)
	r.Slot = uint64(slot)
	if errText != nil {
		r.Error = *errText
	}
	return &r, nil
}
