// Package stub provides an in-memory Solana RPC for tests.
package stub

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"sync"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"

	"github.com/srtaalej/capstone-proj/internal/solana"
)

// ErrNotFound is returned when a requested item was never added.
var ErrNotFound = errors.New("not found")

var _ solana.RPCClient = (*RPCClient)(nil)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu           sync.Mutex
	Accounts     map[string]*solana.AccountInfo
	Transactions map[string]*solana.Transaction
	Statuses     map[string]*solana.SignatureStatus
	Blockhash    solana.Blockhash
	Slot         int64

	// Sent holds every raw transaction passed to SendTransaction.
	Sent [][]byte

	// OnSend overrides SendTransaction. By default the first signature is
	// returned and recorded as confirmed at the current slot.
	OnSend func(raw []byte) (string, error)
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts:     make(map[string]*solana.AccountInfo),
		Transactions: make(map[string]*solana.Transaction),
		Statuses:     make(map[string]*solana.SignatureStatus),
		Blockhash: solana.Blockhash{
			Blockhash:            solanago.HashFromBytes(bytes.Repeat([]byte{7}, 32)).String(),
			LastValidBlockHeight: 1000,
		},
		Slot: 1,
	}
}

// SetAccount stores raw account data owned by owner.
func (c *RPCClient) SetAccount(address, owner string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[address] = &solana.AccountInfo{
		Lamports: 1,
		Owner:    owner,
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

// SetStatus records the status of a signature.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = status
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// GetAccountInfo returns the stored account, or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	cp := *info
	return &cp, nil
}

// GetProgramAccounts filters stored accounts by owner and memcmp filters.
func (c *RPCClient) GetProgramAccounts(_ context.Context, program string, filters ...solana.MemcmpFilter) ([]solana.KeyedAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []solana.KeyedAccount
	for addr, info := range c.Accounts {
		if info.Owner != program {
			continue
		}
		data, err := info.DecodeData()
		if err != nil {
			return nil, err
		}
		if !matches(data, filters) {
			continue
		}
		out = append(out, solana.KeyedAccount{Pubkey: addr, Account: *info})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pubkey < out[j].Pubkey })
	return out, nil
}

func matches(data []byte, filters []solana.MemcmpFilter) bool {
	for _, f := range filters {
		end := f.Offset + uint64(len(f.Bytes))
		if end > uint64(len(data)) || !bytes.Equal(data[f.Offset:end], f.Bytes) {
			return false
		}
	}
	return true
}

// GetLatestBlockhash returns the configured blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bh := c.Blockhash
	return &bh, nil
}

// SendTransaction records raw and returns its signature.
func (c *RPCClient) SendTransaction(_ context.Context, raw []byte, _ *solana.SendOpts) (string, error) {
	c.mu.Lock()
	c.Sent = append(c.Sent, append([]byte(nil), raw...))
	onSend := c.OnSend
	c.mu.Unlock()

	if onSend != nil {
		return onSend(raw)
	}

	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}
	if len(tx.Signatures) == 0 {
		return "", fmt.Errorf("transaction has no signatures")
	}
	sig := tx.Signatures[0].String()

	c.mu.Lock()
	c.Statuses[sig] = &solana.SignatureStatus{Slot: c.Slot, ConfirmationStatus: solana.CommitmentConfirmed}
	c.mu.Unlock()
	return sig, nil
}

// GetSignatureStatuses returns stored statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures ...string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := c.Statuses[sig]; ok {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Slot, nil
}
