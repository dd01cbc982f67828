// Package rpc mirrors program accounts from a Solana cluster as a read-only
// storage.AccountStore.
package rpc

import (
	"context"
	"fmt"
	"sort"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/solana"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

// chainVersion is reported for every existing account. The cluster keeps no
// write counter, so versions only distinguish present from absent.
const chainVersion = 1

var _ storage.AccountStore = (*AccountStore)(nil)

// AccountStore reads accounts through JSON-RPC.
type AccountStore struct {
	client solana.RPCClient
}

// NewAccountStore creates a read-only store over client.
func NewAccountStore(client solana.RPCClient) *AccountStore {
	return &AccountStore{client: client}
}

// Get retrieves an account by address. Returns ErrNotFound if absent.
func (s *AccountStore) Get(ctx context.Context, address domain.PublicKey) (*domain.Account, error) {
	info, err := s.client.GetAccountInfo(ctx, address.String())
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	if info == nil {
		return nil, storage.ErrNotFound
	}
	return toAccount(address, info)
}

// ListByDiscriminator uses getProgramAccounts with a memcmp filter on the
// first eight bytes.
func (s *AccountStore) ListByDiscriminator(ctx context.Context, owner domain.PublicKey, disc domain.Discriminator) ([]*domain.Account, error) {
	keyed, err := s.client.GetProgramAccounts(ctx, owner.String(), solana.MemcmpFilter{Offset: 0, Bytes: disc.Bytes()})
	if err != nil {
		return nil, fmt.Errorf("get program accounts %s: %w", owner, err)
	}

	result := make([]*domain.Account, 0, len(keyed))
	for _, k := range keyed {
		addr, err := domain.ParsePublicKey(k.Pubkey)
		if err != nil {
			return nil, err
		}
		acc, err := toAccount(addr, &k.Account)
		if err != nil {
			return nil, err
		}
		result = append(result, acc)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Address.Less(result[j].Address)
	})
	return result, nil
}

// Commit always fails; writes go through signed transactions.
func (s *AccountStore) Commit(context.Context, []domain.AccountWrite) (uint64, error) {
	return 0, storage.ErrReadOnly
}

func toAccount(address domain.PublicKey, info *solana.AccountInfo) (*domain.Account, error) {
	owner, err := domain.ParsePublicKey(info.Owner)
	if err != nil {
		return nil, fmt.Errorf("account %s owner: %w", address, err)
	}
	data, err := info.DecodeData()
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", address, err)
	}
	return &domain.Account{
		Address: address,
		Owner:   owner,
		Data:    data,
		Version: chainVersion,
	}, nil
}
