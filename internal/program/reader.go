package program

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/pda"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

// Reader decodes program state from an account store.
type Reader struct {
	store   storage.AccountStore
	deriver *pda.Deriver
}

// NewReader creates a Reader.
func NewReader(store storage.AccountStore, deriver *pda.Deriver) *Reader {
	return &Reader{store: store, deriver: deriver}
}

// Deriver returns the address deriver.
func (r *Reader) Deriver() *pda.Deriver { return r.deriver }

func (r *Reader) load(ctx context.Context, derive func() (pda.Address, error)) (*domain.Account, error) {
	addr, err := derive()
	if err != nil {
		return nil, err
	}
	return r.store.Get(ctx, addr.Key)
}

// Counter returns the poll-id counter. ErrNotInitialized if absent.
func (r *Reader) Counter(ctx context.Context) (*domain.Counter, error) {
	acc, err := r.load(ctx, r.deriver.Counter)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	return DecodeCounter(acc.Data)
}

// Registrations returns the candidate-id counter. ErrNotInitialized if absent.
func (r *Reader) Registrations(ctx context.Context) (*domain.Registrations, error) {
	acc, err := r.load(ctx, r.deriver.Registrations)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	return DecodeRegistrations(acc.Data)
}

// Poll returns a poll by id. ErrPollNotFound if absent.
func (r *Reader) Poll(ctx context.Context, pollID uint64) (*domain.Poll, error) {
	addr, err := r.deriver.Poll(pollID)
	if err != nil {
		return nil, err
	}
	return r.PollAt(ctx, addr.Key)
}

// PollAt returns the poll stored at address.
func (r *Reader) PollAt(ctx context.Context, address domain.PublicKey) (*domain.Poll, error) {
	acc, err := r.store.Get(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, reject(ErrPollNotFound, "address %s", address)
	}
	if err != nil {
		return nil, err
	}
	return DecodePoll(acc.Data)
}

// Polls returns every poll ordered by id.
func (r *Reader) Polls(ctx context.Context) ([]*domain.Poll, error) {
	accs, err := r.store.ListByDiscriminator(ctx, r.deriver.VoteProgram, PollDiscriminator)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	polls := make([]*domain.Poll, 0, len(accs))
	for _, acc := range accs {
		p, err := DecodePoll(acc.Data)
		if err != nil {
			return nil, err
		}
		polls = append(polls, p)
	}
	sort.Slice(polls, func(i, j int) bool { return polls[i].ID < polls[j].ID })
	return polls, nil
}

// Candidate returns (pollID, cid). ErrCandidateNotFound if absent.
func (r *Reader) Candidate(ctx context.Context, pollID, cid uint64) (*domain.Candidate, error) {
	addr, err := r.deriver.Candidate(pollID, cid)
	if err != nil {
		return nil, err
	}
	acc, err := r.store.Get(ctx, addr.Key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, reject(ErrCandidateNotFound, "candidate %d in poll %d", cid, pollID)
	}
	if err != nil {
		return nil, err
	}
	return DecodeCandidate(acc.Data)
}

// Candidates returns the candidates of a poll ordered by id.
func (r *Reader) Candidates(ctx context.Context, pollID uint64) ([]*domain.Candidate, error) {
	all, err := r.AllCandidates(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.PollID == pollID {
			out = append(out, c)
		}
	}
	return out, nil
}

// AllCandidates returns every candidate ordered by (poll id, candidate id).
func (r *Reader) AllCandidates(ctx context.Context) ([]*domain.Candidate, error) {
	accs, err := r.store.ListByDiscriminator(ctx, r.deriver.VoteProgram, CandidateDiscriminator)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	out := make([]*domain.Candidate, 0, len(accs))
	for _, acc := range accs {
		c, err := DecodeCandidate(acc.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PollID != out[j].PollID {
			return out[i].PollID < out[j].PollID
		}
		return out[i].CID < out[j].CID
	})
	return out, nil
}

// Voter returns the vote receipt of wallet in a poll. storage.ErrNotFound if absent.
func (r *Reader) Voter(ctx context.Context, pollID uint64, wallet domain.PublicKey) (*domain.Voter, error) {
	acc, err := r.load(ctx, func() (pda.Address, error) {
		return r.deriver.Voter(pollID, wallet)
	})
	if err != nil {
		return nil, err
	}
	return DecodeVoter(acc.Data)
}

// HasVoted reports whether wallet already voted in a poll.
func (r *Reader) HasVoted(ctx context.Context, pollID uint64, wallet domain.PublicKey) (bool, error) {
	v, err := r.Voter(ctx, pollID, wallet)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v.HasVoted, nil
}

// TokenData returns the identity attestation of wallet. storage.ErrNotFound if absent.
func (r *Reader) TokenData(ctx context.Context, wallet domain.PublicKey) (*domain.TokenData, error) {
	_, td, err := r.deriver.WalletTokenData(wallet)
	if err != nil {
		return nil, err
	}
	acc, err := r.store.Get(ctx, td.Key)
	if err != nil {
		return nil, err
	}
	return DecodeTokenData(acc.Data)
}

// IdentityStatus summarizes wallet's identity token.
func (r *Reader) IdentityStatus(ctx context.Context, wallet domain.PublicKey) (domain.IdentityStatus, error) {
	td, err := r.TokenData(ctx, wallet)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.IdentityUnverified, nil
	}
	if err != nil {
		return "", err
	}
	if !td.IsActive {
		return domain.IdentityInactive, nil
	}
	return domain.IdentityVerified, nil
}

// Account returns the raw account at address and its decoded record.
func (r *Reader) Account(ctx context.Context, address domain.PublicKey) (*domain.Account, *Decoded, error) {
	acc, err := r.store.Get(ctx, address)
	if err != nil {
		return nil, nil, err
	}
	dec, err := DecodeAccount(acc.Data)
	if err != nil {
		return acc, nil, err
	}
	return acc, dec, nil
}
