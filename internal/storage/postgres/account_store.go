package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/observability"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

// AccountStore implements storage.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

const accountColumns = `address, owner, data, version, slot, updated_at`

// Get retrieves an account by address. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(ctx context.Context, address domain.PublicKey) (*domain.Account, error) {
	start := time.Now()
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE address = $1`

	acc, err := scanAccount(s.pool.QueryRow(ctx, query, address[:]))
	observability.RecordDBQuery("postgres", "get_account", time.Since(start).Seconds(), ignoreNotFound(err))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

// ListByDiscriminator returns owner's accounts of one type, ordered by address.
func (s *AccountStore) ListByDiscriminator(ctx context.Context, owner domain.PublicKey, disc domain.Discriminator) ([]*domain.Account, error) {
	start := time.Now()
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE owner = $1 AND discriminator = $2
		ORDER BY address ASC
	`

	rows, err := s.pool.Query(ctx, query, owner[:], disc[:])
	if err != nil {
		observability.RecordDBQuery("postgres", "list_accounts", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var result []*domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		result = append(result, acc)
	}
	err = rows.Err()
	observability.RecordDBQuery("postgres", "list_accounts", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return result, nil
}

// Commit applies writes atomically with version checks in one transaction.
// Existing rows are locked in address order; concurrent creates of the same
// address surface as a unique violation and are reported as ErrConflict.
func (s *AccountStore) Commit(ctx context.Context, writes []domain.AccountWrite) (uint64, error) {
	if err := storage.ValidateWrites(writes); err != nil {
		return 0, err
	}
	start := time.Now()

	sorted := append([]domain.AccountWrite(nil), writes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address.Less(sorted[j].Address) })

	slot, err := s.commit(ctx, sorted)
	observability.RecordDBQuery("postgres", "commit", time.Since(start).Seconds(), err)
	if err != nil {
		if isConflictError(err) {
			return 0, storage.ErrConflict
		}
		return 0, err
	}
	return slot, nil
}

func (s *AccountStore) commit(ctx context.Context, writes []domain.AccountWrite) (uint64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, w := range writes {
		var version int64
		err := tx.QueryRow(ctx, `SELECT version FROM accounts WHERE address = $1 FOR UPDATE`, w.Address[:]).Scan(&version)
		if err != nil && !isNotFoundError(err) {
			return 0, fmt.Errorf("lock account: %w", err)
		}
		if uint64(version) != w.ExpectedVersion {
			return 0, storage.ErrConflict
		}
	}
	if !storage.HasWrites(writes) {
		return 0, nil
	}

	var slot int64
	if err := tx.QueryRow(ctx, `SELECT nextval('ledger_slot_seq')`).Scan(&slot); err != nil {
		return 0, fmt.Errorf("next slot: %w", err)
	}

	for _, w := range writes {
		if w.Account == nil {
			continue
		}
		if err := writeAccount(ctx, tx, w, slot); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return uint64(slot), nil
}

func writeAccount(ctx context.Context, tx pgx.Tx, w domain.AccountWrite, slot int64) error {
	acc := w.Account
	disc := acc.Discriminator()
	data := acc.Data
	if data == nil {
		data = []byte{}
	}
	discCol := disc[:]
	if len(acc.Data) < domain.DiscriminatorLength {
		discCol = []byte{}
	}

	if w.ExpectedVersion == 0 {
		_, err := tx.Exec(ctx, `
			INSERT INTO accounts (address, owner, discriminator, data, version, slot, updated_at)
			VALUES ($1, $2, $3, $4, 1, $5, $6)
		`, w.Address[:], acc.Owner[:], discCol, data, slot, acc.UpdatedAt)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("insert account: %w", err)
		}
		return nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE accounts
		SET owner = $2, discriminator = $3, data = $4, version = version + 1, slot = $5, updated_at = $6
		WHERE address = $1 AND version = $7
	`, w.Address[:], acc.Owner[:], discCol, data, slot, acc.UpdatedAt, int64(w.ExpectedVersion))
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return storage.ErrConflict
	}
	return nil
}

// scanAccount scans a row into a domain.Account.
func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		address, owner, data []byte
		version, slot        int64
		updatedAt            int64
	)
	if err := row.Scan(&address, &owner, &data, &version, &slot, &updatedAt); err != nil {
		return nil, err
	}

	acc := &domain.Account{
		Data:      data,
		Version:   uint64(version),
		Slot:      uint64(slot),
		UpdatedAt: updatedAt,
	}
	copy(acc.Address[:], address)
	copy(acc.Owner[:], owner)
	return acc, nil
}

func ignoreNotFound(err error) error {
	if isNotFoundError(err) {
		return nil
	}
	return err
}
