package rpc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/solana/stub"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

func key(b byte) domain.PublicKey {
	var k domain.PublicKey
	k[0] = b
	k[31] = 1
	return k
}

func TestAccountStore_Get(t *testing.T) {
	client := stub.NewRPCClient()
	store := NewAccountStore(client)
	ctx := context.Background()

	_, err := store.Get(ctx, key(1))
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	client.SetAccount(key(1).String(), key(9).String(), []byte{1, 2, 3, 4, 5, 6, 7, 8, 42})

	acc, err := store.Get(ctx, key(1))
	require.NoError(t, err)
	assert.Equal(t, key(1), acc.Address)
	assert.Equal(t, key(9), acc.Owner)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 42}, acc.Data)
	assert.Equal(t, uint64(1), acc.Version)
}

func TestAccountStore_ListByDiscriminator(t *testing.T) {
	client := stub.NewRPCClient()
	store := NewAccountStore(client)
	owner := key(9)
	disc := domain.Discriminator{1, 1, 1, 1, 1, 1, 1, 1}
	other := domain.Discriminator{2, 2, 2, 2, 2, 2, 2, 2}

	client.SetAccount(key(3).String(), owner.String(), append(disc.Bytes(), 3))
	client.SetAccount(key(1).String(), owner.String(), append(disc.Bytes(), 1))
	client.SetAccount(key(2).String(), owner.String(), append(other.Bytes(), 2))
	client.SetAccount(key(4).String(), key(8).String(), append(disc.Bytes(), 4))

	accounts, err := store.ListByDiscriminator(context.Background(), owner, disc)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, key(1), accounts[0].Address)
	assert.Equal(t, key(3), accounts[1].Address)
}

func TestAccountStore_CommitIsReadOnly(t *testing.T) {
	store := NewAccountStore(stub.NewRPCClient())
	_, err := store.Commit(context.Background(), []domain.AccountWrite{{Address: key(1)}})
	assert.True(t, errors.Is(err, storage.ErrReadOnly))
}
