package program

import (
	"context"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/pda"
)

// Resolve returns a copy of ix with every zero account filled in from the
// current state seen by r, ready for submission to a cluster that does not
// derive addresses itself. Ids taken from counters may be stale by the time
// the transaction lands; the program then rejects the derivation.
func Resolve(ctx context.Context, r *Reader, signer domain.PublicKey, ix Instruction) (Instruction, error) {
	d := r.Deriver()
	fill := func(dst *domain.PublicKey, addr domain.PublicKey) {
		if dst.IsZero() {
			*dst = addr
		}
	}

	switch v := ix.(type) {
	case *Initialize:
		out := *v
		fill(&out.Payer, signer)
		c, err := d.Counter()
		if err != nil {
			return nil, err
		}
		reg, err := d.Registrations()
		if err != nil {
			return nil, err
		}
		fill(&out.Counter, c.Key)
		fill(&out.Registrations, reg.Key)
		return &out, nil

	case *CreatePoll:
		out := *v
		fill(&out.Owner, signer)
		counter, err := r.Counter(ctx)
		if err != nil {
			return nil, err
		}
		c, err := d.Counter()
		if err != nil {
			return nil, err
		}
		poll, err := d.Poll(counter.Count)
		if err != nil {
			return nil, err
		}
		fill(&out.Counter, c.Key)
		fill(&out.Poll, poll.Key)
		return &out, nil

	case *RegisterCandidate:
		out := *v
		fill(&out.User, signer)
		regs, err := r.Registrations(ctx)
		if err != nil {
			return nil, err
		}
		reg, err := d.Registrations()
		if err != nil {
			return nil, err
		}
		poll, err := d.Poll(v.PollID)
		if err != nil {
			return nil, err
		}
		cand, err := d.Candidate(v.PollID, regs.Count)
		if err != nil {
			return nil, err
		}
		fill(&out.Poll, poll.Key)
		fill(&out.Registrations, reg.Key)
		fill(&out.Candidate, cand.Key)
		return &out, nil

	case *Vote:
		out := *v
		fill(&out.User, signer)
		poll, err := d.Poll(v.PollID)
		if err != nil {
			return nil, err
		}
		cand, err := d.Candidate(v.PollID, v.CandidateID)
		if err != nil {
			return nil, err
		}
		receipt, err := d.Voter(v.PollID, signer)
		if err != nil {
			return nil, err
		}
		fill(&out.Poll, poll.Key)
		fill(&out.Candidate, cand.Key)
		fill(&out.Receipt, receipt.Key)
		return &out, nil

	case *InitiateToken:
		out := *v
		fill(&out.Payer, signer)
		mint, td, err := d.WalletTokenData(signer)
		if err != nil {
			return nil, err
		}
		meta, err := d.Metadata(mint.Key)
		if err != nil {
			return nil, err
		}
		ata, err := d.AssociatedTokenAccount(signer, mint.Key)
		if err != nil {
			return nil, err
		}
		fill(&out.Mint, mint.Key)
		fill(&out.TokenData, td.Key)
		fill(&out.Metadata, meta.Key)
		fill(&out.Destination, ata.Key)
		return &out, nil
	}
	return nil, reject(ErrUnknownInstruction, "%T", ix)
}

// ProgramID returns the program that executes ix.
func ProgramID(r *Reader, ix Instruction) domain.PublicKey {
	return ProgramIDFor(r.Deriver(), ix)
}

// ProgramIDFor is ProgramID for callers that hold no state.
func ProgramIDFor(d *pda.Deriver, ix Instruction) domain.PublicKey {
	if ix.Kind() == KindInitiateToken {
		return d.IdentityProgram
	}
	return d.VoteProgram
}
