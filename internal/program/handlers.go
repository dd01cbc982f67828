package program

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/idhash"
	"github.com/srtaalej/capstone-proj/internal/pda"
)

// checkAddress resolves a zero address to its derivation and rejects any other mismatch.
func checkAddress(given domain.PublicKey, derived pda.Address, what string) (domain.PublicKey, error) {
	if given.IsZero() || given == derived.Key {
		return derived.Key, nil
	}
	return domain.PublicKey{}, reject(ErrInvalidAddressDerivation, "%s: got %s, want %s", what, given, derived.Key)
}

func increment(v uint64, what string) (uint64, error) {
	if v == math.MaxUint64 {
		return 0, reject(ErrArithmeticOverflow, "%s", what)
	}
	return v + 1, nil
}

func (p *Program) initialize(ctx context.Context, v *view, ix *Initialize) (*Result, error) {
	counterPDA, err := p.deriver.Counter()
	if err != nil {
		return nil, err
	}
	regsPDA, err := p.deriver.Registrations()
	if err != nil {
		return nil, err
	}
	counterAddr, err := checkAddress(ix.Counter, counterPDA, "counter")
	if err != nil {
		return nil, err
	}
	regsAddr, err := checkAddress(ix.Registrations, regsPDA, "registrations")
	if err != nil {
		return nil, err
	}

	for _, addr := range []domain.PublicKey{counterAddr, regsAddr} {
		acc, err := v.get(ctx, addr)
		if err != nil {
			return nil, err
		}
		if acc != nil {
			return nil, reject(ErrAlreadyInitialized, "account %s exists", addr)
		}
	}

	counterData, err := EncodeCounter(&domain.Counter{})
	if err != nil {
		return nil, err
	}
	regsData, err := EncodeRegistrations(&domain.Registrations{})
	if err != nil {
		return nil, err
	}
	v.put(counterAddr, p.deriver.VoteProgram, counterData)
	v.put(regsAddr, p.deriver.VoteProgram, regsData)
	return &Result{}, nil
}

func (p *Program) createPoll(ctx context.Context, v *view, signer domain.PublicKey, ix *CreatePoll) (*Result, error) {
	counterPDA, err := p.deriver.Counter()
	if err != nil {
		return nil, err
	}
	counterAddr, err := checkAddress(ix.Counter, counterPDA, "counter")
	if err != nil {
		return nil, err
	}
	counter, err := p.loadCounter(ctx, v, counterAddr)
	if err != nil {
		return nil, err
	}

	if err := validateDescription(ix.Description); err != nil {
		return nil, err
	}
	if ix.Start > ix.End {
		return nil, reject(ErrFieldInvalid, "start %d after end %d", ix.Start, ix.End)
	}
	if err := p.requireIdentity(ctx, v, signer); err != nil {
		return nil, err
	}

	pollID := counter.Count
	next, err := increment(counter.Count, "poll counter")
	if err != nil {
		return nil, err
	}

	pollPDA, err := p.deriver.Poll(pollID)
	if err != nil {
		return nil, err
	}
	pollAddr, err := checkAddress(ix.Poll, pollPDA, "poll")
	if err != nil {
		return nil, err
	}
	existing, err := v.get(ctx, pollAddr)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: poll %d exists at %s", ErrStateCorrupted, pollID, pollAddr)
	}

	pollData, err := EncodePoll(&domain.Poll{
		ID:          pollID,
		Description: ix.Description,
		Start:       ix.Start,
		End:         ix.End,
		Owner:       signer,
	})
	if err != nil {
		return nil, err
	}
	counterData, err := EncodeCounter(&domain.Counter{Count: next})
	if err != nil {
		return nil, err
	}
	v.put(pollAddr, p.deriver.VoteProgram, pollData)
	v.put(counterAddr, p.deriver.VoteProgram, counterData)
	return &Result{PollID: pollID}, nil
}

func (p *Program) registerCandidate(ctx context.Context, v *view, ix *RegisterCandidate, now int64) (*Result, error) {
	pollAddr, poll, err := p.loadPoll(ctx, v, ix.Poll, ix.PollID)
	if err != nil {
		return nil, err
	}
	if poll.HasEnded(now) {
		return nil, reject(ErrPollWindowViolation, "poll %d ended at %d, now %d", poll.ID, poll.End, now)
	}
	if err := validateCandidateName(ix.Name); err != nil {
		return nil, err
	}

	regsPDA, err := p.deriver.Registrations()
	if err != nil {
		return nil, err
	}
	regsAddr, err := checkAddress(ix.Registrations, regsPDA, "registrations")
	if err != nil {
		return nil, err
	}
	regsAcc, err := v.get(ctx, regsAddr)
	if err != nil {
		return nil, err
	}
	if regsAcc == nil {
		return nil, reject(ErrNotInitialized, "registrations account missing")
	}
	regs, err := DecodeRegistrations(regsAcc.Data)
	if err != nil {
		return nil, err
	}

	cid := regs.Count
	nextCID, err := increment(regs.Count, "registrations")
	if err != nil {
		return nil, err
	}
	nextCandidates, err := increment(poll.Candidates, "poll candidates")
	if err != nil {
		return nil, err
	}

	candPDA, err := p.deriver.Candidate(poll.ID, cid)
	if err != nil {
		return nil, err
	}
	candAddr, err := checkAddress(ix.Candidate, candPDA, "candidate")
	if err != nil {
		return nil, err
	}
	existing, err := v.get(ctx, candAddr)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: candidate (%d, %d) exists at %s", ErrStateCorrupted, poll.ID, cid, candAddr)
	}

	candData, err := EncodeCandidate(&domain.Candidate{CID: cid, PollID: poll.ID, Name: ix.Name})
	if err != nil {
		return nil, err
	}
	poll.Candidates = nextCandidates
	pollData, err := EncodePoll(poll)
	if err != nil {
		return nil, err
	}
	regsData, err := EncodeRegistrations(&domain.Registrations{Count: nextCID})
	if err != nil {
		return nil, err
	}
	v.put(candAddr, p.deriver.VoteProgram, candData)
	v.put(pollAddr, p.deriver.VoteProgram, pollData)
	v.put(regsAddr, p.deriver.VoteProgram, regsData)
	return &Result{PollID: poll.ID, CandidateID: cid}, nil
}

func (p *Program) vote(ctx context.Context, v *view, signer domain.PublicKey, ix *Vote, now int64) (*Result, error) {
	_, poll, err := p.loadPoll(ctx, v, ix.Poll, ix.PollID)
	if err != nil {
		return nil, err
	}
	if !poll.IsOpen(now) {
		return nil, reject(ErrPollWindowViolation, "poll %d open [%d, %d], now %d", poll.ID, poll.Start, poll.End, now)
	}

	candPDA, err := p.deriver.Candidate(ix.PollID, ix.CandidateID)
	if err != nil {
		return nil, err
	}
	candAddr, err := checkAddress(ix.Candidate, candPDA, "candidate")
	if err != nil {
		return nil, err
	}
	candAcc, err := v.get(ctx, candAddr)
	if err != nil {
		return nil, err
	}
	if candAcc == nil {
		return nil, reject(ErrCandidateNotFound, "candidate %d in poll %d", ix.CandidateID, ix.PollID)
	}
	cand, err := DecodeCandidate(candAcc.Data)
	if err != nil {
		return nil, err
	}
	if cand.PollID != poll.ID || cand.CID != ix.CandidateID {
		return nil, reject(ErrCandidatePollMismatch, "candidate %d belongs to poll %d", cand.CID, cand.PollID)
	}

	receiptPDA, err := p.deriver.Voter(ix.PollID, signer)
	if err != nil {
		return nil, err
	}
	receiptAddr, err := checkAddress(ix.Receipt, receiptPDA, "voter receipt")
	if err != nil {
		return nil, err
	}
	receiptAcc, err := v.get(ctx, receiptAddr)
	if err != nil {
		return nil, err
	}
	if receiptAcc != nil {
		receipt, err := DecodeVoter(receiptAcc.Data)
		if err != nil {
			return nil, err
		}
		if receipt.HasVoted {
			return nil, reject(ErrDuplicateVote, "%s in poll %d", signer, ix.PollID)
		}
	}

	if err := p.requireIdentity(ctx, v, signer); err != nil {
		return nil, err
	}

	votes, err := increment(cand.Votes, "candidate votes")
	if err != nil {
		return nil, err
	}
	cand.Votes = votes

	candData, err := EncodeCandidate(cand)
	if err != nil {
		return nil, err
	}
	receiptData, err := EncodeVoter(&domain.Voter{PollID: ix.PollID, Voter: signer, HasVoted: true})
	if err != nil {
		return nil, err
	}
	v.put(receiptAddr, p.deriver.VoteProgram, receiptData)
	v.put(candAddr, p.deriver.VoteProgram, candData)
	return &Result{PollID: poll.ID, CandidateID: cand.CID}, nil
}

func (p *Program) initiateToken(ctx context.Context, v *view, signer domain.PublicKey, ix *InitiateToken) (*Result, error) {
	if err := validateIdentity(ix.Name, ix.DOB, ix.Gender); err != nil {
		return nil, err
	}

	mintPDA, tokenDataPDA, err := p.deriver.WalletTokenData(signer)
	if err != nil {
		return nil, err
	}
	mintAddr, err := checkAddress(ix.Mint, mintPDA, "mint")
	if err != nil {
		return nil, err
	}
	tokenDataAddr, err := checkAddress(ix.TokenData, tokenDataPDA, "token data")
	if err != nil {
		return nil, err
	}
	if !ix.Metadata.IsZero() {
		metaPDA, err := p.deriver.Metadata(mintAddr)
		if err != nil {
			return nil, err
		}
		if _, err := checkAddress(ix.Metadata, metaPDA, "metadata"); err != nil {
			return nil, err
		}
	}
	if !ix.Destination.IsZero() {
		ataPDA, err := p.deriver.AssociatedTokenAccount(signer, mintAddr)
		if err != nil {
			return nil, err
		}
		if _, err := checkAddress(ix.Destination, ataPDA, "destination"); err != nil {
			return nil, err
		}
	}

	for _, addr := range []domain.PublicKey{mintAddr, tokenDataAddr} {
		acc, err := v.get(ctx, addr)
		if err != nil {
			return nil, err
		}
		if acc != nil {
			return nil, reject(ErrDuplicateIdentity, "wallet %s", signer)
		}
	}

	tdData, err := EncodeTokenData(&domain.TokenData{
		HashedName:   idhash.Attribute(ix.Name),
		HashedDOB:    idhash.Attribute(ix.DOB),
		HashedGender: idhash.Attribute(ix.Gender),
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}
	mintData, err := EncodeIdentityMint(&domain.IdentityMint{Wallet: signer, TokenData: tokenDataAddr, Supply: 1})
	if err != nil {
		return nil, err
	}
	v.put(mintAddr, p.deriver.IdentityProgram, mintData)
	v.put(tokenDataAddr, p.deriver.IdentityProgram, tdData)
	return &Result{}, nil
}

func (p *Program) loadCounter(ctx context.Context, v *view, addr domain.PublicKey) (*domain.Counter, error) {
	acc, err := v.get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, reject(ErrNotInitialized, "counter account missing")
	}
	return DecodeCounter(acc.Data)
}

func (p *Program) loadPoll(ctx context.Context, v *view, given domain.PublicKey, pollID uint64) (domain.PublicKey, *domain.Poll, error) {
	pollPDA, err := p.deriver.Poll(pollID)
	if err != nil {
		return domain.PublicKey{}, nil, err
	}
	addr, err := checkAddress(given, pollPDA, "poll")
	if err != nil {
		return domain.PublicKey{}, nil, err
	}
	acc, err := v.get(ctx, addr)
	if err != nil {
		return domain.PublicKey{}, nil, err
	}
	if acc == nil {
		return domain.PublicKey{}, nil, reject(ErrPollNotFound, "poll %d", pollID)
	}
	poll, err := DecodePoll(acc.Data)
	if err != nil {
		return domain.PublicKey{}, nil, err
	}
	if poll.ID != pollID {
		return domain.PublicKey{}, nil, reject(ErrPollNotFound, "account holds poll %d, want %d", poll.ID, pollID)
	}
	return addr, poll, nil
}

// requireIdentity enforces Config.RequireIdentity for signer.
func (p *Program) requireIdentity(ctx context.Context, v *view, signer domain.PublicKey) error {
	if !p.cfg.RequireIdentity {
		return nil
	}
	_, tdPDA, err := p.deriver.WalletTokenData(signer)
	if err != nil {
		return err
	}
	acc, err := v.get(ctx, tdPDA.Key)
	if err != nil {
		return err
	}
	if acc == nil {
		return reject(ErrIdentityRequired, "wallet %s has no identity token", signer)
	}
	td, err := DecodeTokenData(acc.Data)
	if err != nil {
		return err
	}
	if !td.IsActive {
		return reject(ErrIdentityRequired, "identity token of %s is inactive", signer)
	}
	return nil
}

func validateDescription(s string) error {
	if s == "" {
		return reject(ErrFieldInvalid, "description is empty")
	}
	if len(s) > domain.MaxDescriptionLength {
		return reject(ErrFieldTooLong, "description is %d bytes, max %d", len(s), domain.MaxDescriptionLength)
	}
	return nil
}

func validateCandidateName(s string) error {
	if s == "" {
		return reject(ErrFieldInvalid, "candidate name is empty")
	}
	if len(s) > domain.MaxCandidateNameLength {
		return reject(ErrFieldTooLong, "candidate name is %d bytes, max %d", len(s), domain.MaxCandidateNameLength)
	}
	return nil
}

func validateIdentity(name, dob, gender string) error {
	if name == "" {
		return reject(ErrFieldInvalid, "name is empty")
	}
	if len(name) > domain.MaxIdentityNameLength {
		return reject(ErrFieldTooLong, "name is %d bytes, max %d", len(name), domain.MaxIdentityNameLength)
	}
	if len(dob) > len(domain.IdentityDOBLayout) {
		return reject(ErrFieldTooLong, "dob is %d bytes", len(dob))
	}
	if _, err := time.Parse(domain.IdentityDOBLayout, dob); err != nil {
		return reject(ErrFieldInvalid, "dob %q is not YYYY-MM-DD", dob)
	}
	if len(gender) > 1 {
		return reject(ErrFieldTooLong, "gender is %d bytes, max 1", len(gender))
	}
	if len(gender) != 1 || gender[0] < 'A' || gender[0] > 'Z' {
		return reject(ErrFieldInvalid, "gender %q is not a single uppercase letter", gender)
	}
	return nil
}
