package program

import (
	"encoding/binary"
	"fmt"

	"github.com/srtaalej/capstone-proj/internal/anchor"
	"github.com/srtaalej/capstone-proj/internal/domain"
)

// Account type names as they appear in the program IDL.
const (
	AccountCounter       = "Counter"
	AccountRegistrations = "Registerations"
	AccountPoll          = "Poll"
	AccountCandidate     = "Candidate"
	AccountVoter         = "Voter"
	AccountTokenData     = "TokenData"
	AccountIdentityMint  = "IdentityMint"
)

// Account discriminators.
var (
	CounterDiscriminator       = anchor.AccountDiscriminator(AccountCounter)
	RegistrationsDiscriminator = anchor.AccountDiscriminator(AccountRegistrations)
	PollDiscriminator          = anchor.AccountDiscriminator(AccountPoll)
	CandidateDiscriminator     = anchor.AccountDiscriminator(AccountCandidate)
	VoterDiscriminator         = anchor.AccountDiscriminator(AccountVoter)
	TokenDataDiscriminator     = anchor.AccountDiscriminator(AccountTokenData)
	IdentityMintDiscriminator  = anchor.AccountDiscriminator(AccountIdentityMint)
)

// borsh layouts; field order is the on-chain order.

type counterLayout struct {
	Count uint64
}

type pollLayout struct {
	ID          uint64
	Description string
	Start       int64
	End         int64
	Candidates  uint64
	Owner       domain.PublicKey
}

type candidateLayout struct {
	CID    uint64
	PollID uint64
	Name   string
	Votes  uint64
}

type voterLayout struct {
	PollID   uint64
	Voter    domain.PublicKey
	HasVoted bool
}

type tokenDataLayout struct {
	HashedName   [32]byte
	HashedDOB    [32]byte
	HashedGender [32]byte
	IsActive     bool
}

type identityMintLayout struct {
	Wallet    domain.PublicKey
	TokenData domain.PublicKey
	Supply    uint64
}

// EncodeCounter encodes the poll-id counter account.
func EncodeCounter(c *domain.Counter) ([]byte, error) {
	return anchor.Marshal(CounterDiscriminator, &counterLayout{Count: c.Count})
}

// DecodeCounter decodes the poll-id counter account.
func DecodeCounter(data []byte) (*domain.Counter, error) {
	var l counterLayout
	if err := anchor.Unmarshal(CounterDiscriminator, data, &l); err != nil {
		return nil, fmt.Errorf("decode counter: %w", err)
	}
	return &domain.Counter{Count: l.Count}, nil
}

// EncodeRegistrations encodes the candidate-id counter account.
func EncodeRegistrations(r *domain.Registrations) ([]byte, error) {
	return anchor.Marshal(RegistrationsDiscriminator, &counterLayout{Count: r.Count})
}

// DecodeRegistrations decodes the candidate-id counter account.
func DecodeRegistrations(data []byte) (*domain.Registrations, error) {
	var l counterLayout
	if err := anchor.Unmarshal(RegistrationsDiscriminator, data, &l); err != nil {
		return nil, fmt.Errorf("decode registrations: %w", err)
	}
	return &domain.Registrations{Count: l.Count}, nil
}

// EncodePoll encodes a poll account.
func EncodePoll(p *domain.Poll) ([]byte, error) {
	return anchor.Marshal(PollDiscriminator, &pollLayout{
		ID:          p.ID,
		Description: p.Description,
		Start:       p.Start,
		End:         p.End,
		Candidates:  p.Candidates,
		Owner:       p.Owner,
	})
}

// DecodePoll decodes a poll account. Accounts written by the deployed program
// have no owner field; those decode with a zero owner.
func DecodePoll(data []byte) (*domain.Poll, error) {
	payload, err := anchor.Payload(PollDiscriminator, data)
	if err != nil {
		return nil, fmt.Errorf("decode poll: %w", err)
	}

	full := pollPayloadLen(payload)
	if full >= 0 && len(payload) == full-domain.PublicKeyLength {
		padded := make([]byte, 0, len(data)+domain.PublicKeyLength)
		padded = append(padded, data...)
		data = append(padded, make([]byte, domain.PublicKeyLength)...)
	}

	var l pollLayout
	if err := anchor.Unmarshal(PollDiscriminator, data, &l); err != nil {
		return nil, fmt.Errorf("decode poll: %w", err)
	}
	return &domain.Poll{
		ID:          l.ID,
		Description: l.Description,
		Start:       l.Start,
		End:         l.End,
		Candidates:  l.Candidates,
		Owner:       l.Owner,
	}, nil
}

// pollPayloadLen returns the length of a complete poll payload, or -1 when
// the description prefix cannot be read.
func pollPayloadLen(payload []byte) int {
	const idLen, strLenLen = 8, 4
	if len(payload) < idLen+strLenLen {
		return -1
	}
	n := int(binary.LittleEndian.Uint32(payload[idLen:]))
	return idLen + strLenLen + n + 8 + 8 + 8 + domain.PublicKeyLength
}

// EncodeCandidate encodes a candidate account.
func EncodeCandidate(c *domain.Candidate) ([]byte, error) {
	return anchor.Marshal(CandidateDiscriminator, &candidateLayout{
		CID:    c.CID,
		PollID: c.PollID,
		Name:   c.Name,
		Votes:  c.Votes,
	})
}

// DecodeCandidate decodes a candidate account.
func DecodeCandidate(data []byte) (*domain.Candidate, error) {
	var l candidateLayout
	if err := anchor.Unmarshal(CandidateDiscriminator, data, &l); err != nil {
		return nil, fmt.Errorf("decode candidate: %w", err)
	}
	return &domain.Candidate{CID: l.CID, PollID: l.PollID, Name: l.Name, Votes: l.Votes}, nil
}

// EncodeVoter encodes a vote receipt.
func EncodeVoter(v *domain.Voter) ([]byte, error) {
	return anchor.Marshal(VoterDiscriminator, &voterLayout{PollID: v.PollID, Voter: v.Voter, HasVoted: v.HasVoted})
}

// DecodeVoter decodes a vote receipt.
func DecodeVoter(data []byte) (*domain.Voter, error) {
	var l voterLayout
	if err := anchor.Unmarshal(VoterDiscriminator, data, &l); err != nil {
		return nil, fmt.Errorf("decode voter: %w", err)
	}
	return &domain.Voter{PollID: l.PollID, Voter: l.Voter, HasVoted: l.HasVoted}, nil
}

// EncodeTokenData encodes an identity attestation.
func EncodeTokenData(t *domain.TokenData) ([]byte, error) {
	return anchor.Marshal(TokenDataDiscriminator, &tokenDataLayout{
		HashedName:   t.HashedName,
		HashedDOB:    t.HashedDOB,
		HashedGender: t.HashedGender,
		IsActive:     t.IsActive,
	})
}

// DecodeTokenData decodes an identity attestation.
func DecodeTokenData(data []byte) (*domain.TokenData, error) {
	var l tokenDataLayout
	if err := anchor.Unmarshal(TokenDataDiscriminator, data, &l); err != nil {
		return nil, fmt.Errorf("decode token data: %w", err)
	}
	return &domain.TokenData{
		HashedName:   l.HashedName,
		HashedDOB:    l.HashedDOB,
		HashedGender: l.HashedGender,
		IsActive:     l.IsActive,
	}, nil
}

// EncodeIdentityMint encodes the local identity mint record.
func EncodeIdentityMint(m *domain.IdentityMint) ([]byte, error) {
	return anchor.Marshal(IdentityMintDiscriminator, &identityMintLayout{
		Wallet:    m.Wallet,
		TokenData: m.TokenData,
		Supply:    m.Supply,
	})
}

// DecodeIdentityMint decodes the local identity mint record.
func DecodeIdentityMint(data []byte) (*domain.IdentityMint, error) {
	var l identityMintLayout
	if err := anchor.Unmarshal(IdentityMintDiscriminator, data, &l); err != nil {
		return nil, fmt.Errorf("decode identity mint: %w", err)
	}
	return &domain.IdentityMint{Wallet: l.Wallet, TokenData: l.TokenData, Supply: l.Supply}, nil
}

// Decoded is an account decoded by its discriminator.
type Decoded struct {
	Type   string      `json:"type"`
	Record interface{} `json:"record"`
}

// DecodeAccount decodes any program account by peeking its discriminator.
func DecodeAccount(data []byte) (*Decoded, error) {
	disc, err := anchor.Peek(data)
	if err != nil {
		return nil, err
	}

	var (
		name   string
		record interface{}
	)
	switch disc {
	case CounterDiscriminator:
		name = AccountCounter
		record, err = DecodeCounter(data)
	case RegistrationsDiscriminator:
		name = AccountRegistrations
		record, err = DecodeRegistrations(data)
	case PollDiscriminator:
		name = AccountPoll
		record, err = DecodePoll(data)
	case CandidateDiscriminator:
		name = AccountCandidate
		record, err = DecodeCandidate(data)
	case VoterDiscriminator:
		name = AccountVoter
		record, err = DecodeVoter(data)
	case TokenDataDiscriminator:
		name = AccountTokenData
		record, err = DecodeTokenData(data)
	case IdentityMintDiscriminator:
		name = AccountIdentityMint
		record, err = DecodeIdentityMint(data)
	default:
		return nil, fmt.Errorf("%w: unknown account discriminator %x", anchor.ErrDiscriminatorMismatch, disc[:])
	}
	if err != nil {
		return nil, err
	}
	return &Decoded{Type: name, Record: record}, nil
}
