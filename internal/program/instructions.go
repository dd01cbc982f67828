package program

import (
	"fmt"

	"github.com/srtaalej/capstone-proj/internal/anchor"
	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/pda"
)

// Kind names an instruction handler.
type Kind string

// Instruction kinds, named as the program's snake_case handlers.
const (
	KindInitialize        Kind = "initialize"
	KindCreatePoll        Kind = "create_poll"
	KindRegisterCandidate Kind = "register_candidate"
	KindVote              Kind = "vote"
	KindInitiateToken     Kind = "initiate_token"
)

// Kinds lists every instruction kind.
var Kinds = []Kind{KindInitialize, KindCreatePoll, KindRegisterCandidate, KindVote, KindInitiateToken}

// Discriminator returns the instruction discriminator of k.
func (k Kind) Discriminator() domain.Discriminator {
	return anchor.InstructionDiscriminator(string(k))
}

// Instruction is a typed program call. Zero account addresses are resolved
// by the program at execution time; non-zero ones must match their derivation.
type Instruction interface {
	Kind() Kind
	// Signer returns the acting key named in the instruction (may be zero).
	Signer() domain.PublicKey
}

// Initialize creates the Counter and Registrations accounts.
type Initialize struct {
	Payer         domain.PublicKey
	Counter       domain.PublicKey
	Registrations domain.PublicKey
}

// CreatePoll creates a poll with the next id from Counter.
type CreatePoll struct {
	Owner       domain.PublicKey
	Counter     domain.PublicKey
	Poll        domain.PublicKey
	Description string
	Start       int64
	End         int64
}

// RegisterCandidate adds a candidate to a poll with the next id from Registrations.
type RegisterCandidate struct {
	User          domain.PublicKey
	Poll          domain.PublicKey
	Registrations domain.PublicKey
	Candidate     domain.PublicKey
	PollID        uint64
	Name          string
}

// Vote casts the signer's single vote in a poll.
type Vote struct {
	User        domain.PublicKey
	Poll        domain.PublicKey
	Candidate   domain.PublicKey
	Receipt     domain.PublicKey
	PollID      uint64
	CandidateID uint64
}

// InitiateToken mints the signer's identity token with hashed attributes.
type InitiateToken struct {
	Payer       domain.PublicKey
	Metadata    domain.PublicKey
	Mint        domain.PublicKey
	TokenData   domain.PublicKey
	Destination domain.PublicKey
	Name        string
	DOB         string
	Gender      string
}

func (*Initialize) Kind() Kind        { return KindInitialize }
func (*CreatePoll) Kind() Kind        { return KindCreatePoll }
func (*RegisterCandidate) Kind() Kind { return KindRegisterCandidate }
func (*Vote) Kind() Kind              { return KindVote }
func (*InitiateToken) Kind() Kind     { return KindInitiateToken }

func (ix *Initialize) Signer() domain.PublicKey        { return ix.Payer }
func (ix *CreatePoll) Signer() domain.PublicKey        { return ix.Owner }
func (ix *RegisterCandidate) Signer() domain.PublicKey { return ix.User }
func (ix *Vote) Signer() domain.PublicKey              { return ix.User }
func (ix *InitiateToken) Signer() domain.PublicKey     { return ix.Payer }

// argument layouts

type createPollArgs struct {
	Description string
	Start       int64
	End         int64
}

type registerCandidateArgs struct {
	PollID uint64
	Name   string
}

type voteArgs struct {
	PollID      uint64
	CandidateID uint64
}

type initiateTokenArgs struct {
	Name   string
	DOB    string
	Gender string
}

// AccountMeta is one entry of an instruction's account list.
type AccountMeta struct {
	PublicKey  domain.PublicKey
	IsSigner   bool
	IsWritable bool
}

// EncodeData returns the Anchor instruction data: discriminator + borsh args.
func EncodeData(ix Instruction) ([]byte, error) {
	var args interface{}
	switch v := ix.(type) {
	case *Initialize:
		args = &struct{}{}
	case *CreatePoll:
		args = &createPollArgs{Description: v.Description, Start: v.Start, End: v.End}
	case *RegisterCandidate:
		args = &registerCandidateArgs{PollID: v.PollID, Name: v.Name}
	case *Vote:
		args = &voteArgs{PollID: v.PollID, CandidateID: v.CandidateID}
	case *InitiateToken:
		args = &initiateTokenArgs{Name: v.Name, DOB: v.DOB, Gender: v.Gender}
	default:
		return nil, reject(ErrUnknownInstruction, "%T", ix)
	}
	data, err := anchor.Marshal(ix.Kind().Discriminator(), args)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ix.Kind(), err)
	}
	return data, nil
}

// Accounts returns the account list in the order the program expects.
func Accounts(ix Instruction) []AccountMeta {
	w := func(k domain.PublicKey) AccountMeta { return AccountMeta{PublicKey: k, IsWritable: true} }
	s := func(k domain.PublicKey) AccountMeta {
		return AccountMeta{PublicKey: k, IsSigner: true, IsWritable: true}
	}
	r := func(k domain.PublicKey) AccountMeta { return AccountMeta{PublicKey: k} }
	system := r(pda.SystemProgramID)

	switch v := ix.(type) {
	case *Initialize:
		return []AccountMeta{s(v.Payer), w(v.Counter), w(v.Registrations), system}
	case *CreatePoll:
		return []AccountMeta{s(v.Owner), w(v.Counter), w(v.Poll), system}
	case *RegisterCandidate:
		return []AccountMeta{s(v.User), w(v.Poll), w(v.Registrations), w(v.Candidate), system}
	case *Vote:
		return []AccountMeta{s(v.User), w(v.Poll), w(v.Candidate), w(v.Receipt), system}
	case *InitiateToken:
		return []AccountMeta{
			w(v.Metadata), w(v.Mint), w(v.TokenData), w(v.Destination), s(v.Payer),
			r(pda.RentSysvarID), system, r(pda.TokenProgramID), r(pda.AssociatedTokenProgramID), r(pda.MetaplexProgramID),
		}
	}
	return nil
}

// AccountKeys is Accounts reduced to keys.
func AccountKeys(ix Instruction) []domain.PublicKey {
	metas := Accounts(ix)
	keys := make([]domain.PublicKey, len(metas))
	for i, m := range metas {
		keys[i] = m.PublicKey
	}
	return keys
}

// Decode parses Anchor instruction data and its positional accounts.
// Missing trailing accounts decode as zero addresses.
func Decode(data []byte, accounts []domain.PublicKey) (Instruction, error) {
	disc, err := anchor.Peek(data)
	if err != nil {
		return nil, reject(ErrUnknownInstruction, "%v", err)
	}
	at := func(i int) domain.PublicKey {
		if i < len(accounts) {
			return accounts[i]
		}
		return domain.ZeroKey
	}

	switch disc {
	case KindInitialize.Discriminator():
		return &Initialize{Payer: at(0), Counter: at(1), Registrations: at(2)}, nil

	case KindCreatePoll.Discriminator():
		var a createPollArgs
		if err := anchor.Unmarshal(disc, data, &a); err != nil {
			return nil, reject(ErrFieldInvalid, "create_poll args: %v", err)
		}
		return &CreatePoll{Owner: at(0), Counter: at(1), Poll: at(2), Description: a.Description, Start: a.Start, End: a.End}, nil

	case KindRegisterCandidate.Discriminator():
		var a registerCandidateArgs
		if err := anchor.Unmarshal(disc, data, &a); err != nil {
			return nil, reject(ErrFieldInvalid, "register_candidate args: %v", err)
		}
		return &RegisterCandidate{User: at(0), Poll: at(1), Registrations: at(2), Candidate: at(3), PollID: a.PollID, Name: a.Name}, nil

	case KindVote.Discriminator():
		var a voteArgs
		if err := anchor.Unmarshal(disc, data, &a); err != nil {
			return nil, reject(ErrFieldInvalid, "vote args: %v", err)
		}
		return &Vote{User: at(0), Poll: at(1), Candidate: at(2), Receipt: at(3), PollID: a.PollID, CandidateID: a.CandidateID}, nil

	case KindInitiateToken.Discriminator():
		var a initiateTokenArgs
		if err := anchor.Unmarshal(disc, data, &a); err != nil {
			return nil, reject(ErrFieldInvalid, "initiate_token args: %v", err)
		}
		return &InitiateToken{
			Metadata: at(0), Mint: at(1), TokenData: at(2), Destination: at(3), Payer: at(4),
			Name: a.Name, DOB: a.DOB, Gender: a.Gender,
		}, nil
	}

	return nil, reject(ErrUnknownInstruction, "discriminator %x", disc[:])
}
