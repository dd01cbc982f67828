package program

import (
	"context"
	"errors"
	"fmt"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

// view is a single execution attempt: reads record the observed version,
// writes are buffered until commit.
type view struct {
	store storage.AccountStore
	now   int64 // unix ms stamped on writes

	versions map[domain.PublicKey]uint64
	writes   map[domain.PublicKey]*domain.Account
	order    []domain.PublicKey
}

func newView(store storage.AccountStore, nowMs int64) *view {
	return &view{
		store:    store,
		now:      nowMs,
		versions: make(map[domain.PublicKey]uint64),
		writes:   make(map[domain.PublicKey]*domain.Account),
	}
}

// get returns the account at addr, or nil if absent.
func (v *view) get(ctx context.Context, addr domain.PublicKey) (*domain.Account, error) {
	if acc, ok := v.writes[addr]; ok {
		return acc.Clone(), nil
	}

	acc, err := v.store.Get(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		v.observe(addr, 0)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", addr, err)
	}
	v.observe(addr, acc.Version)
	return acc, nil
}

func (v *view) observe(addr domain.PublicKey, version uint64) {
	if _, ok := v.versions[addr]; !ok {
		v.versions[addr] = version
		v.order = append(v.order, addr)
	}
}

// put buffers a write. addr must have been read first.
func (v *view) put(addr, owner domain.PublicKey, data []byte) {
	v.observe(addr, 0)
	v.writes[addr] = &domain.Account{
		Address:   addr,
		Owner:     owner,
		Data:      data,
		UpdatedAt: v.now,
	}
}

// writeSet returns the commit batch: every touched address with the version
// it was read at, and the new account when written.
func (v *view) writeSet() []domain.AccountWrite {
	out := make([]domain.AccountWrite, 0, len(v.order))
	for _, addr := range v.order {
		out = append(out, domain.AccountWrite{
			Address:         addr,
			ExpectedVersion: v.versions[addr],
			Account:         v.writes[addr],
		})
	}
	return out
}

// readSet returns assert-only entries for every touched address, pinned to
// the version it was read at.
func (v *view) readSet() []domain.AccountWrite {
	out := make([]domain.AccountWrite, 0, len(v.order))
	for _, addr := range v.order {
		out = append(out, domain.AccountWrite{Address: addr, ExpectedVersion: v.versions[addr]})
	}
	return out
}

// written lists the addresses with buffered writes, in first-touch order.
func (v *view) written() []domain.PublicKey {
	var out []domain.PublicKey
	for _, addr := range v.order {
		if _, ok := v.writes[addr]; ok {
			out = append(out, addr)
		}
	}
	return out
}
