package pda

import (
	"fmt"

	"github.com/srtaalej/capstone-proj/internal/domain"
)

// Seed tags. "registerations" is spelled as in the deployed vote program so
// that addresses stay compatible with it.
const (
	SeedCounter       = "counter"
	SeedRegistrations = "registerations"
	SeedVoter         = "voter"
	SeedMint          = "mint"
	SeedTokenData     = "token_data"
	SeedMetadata      = "metadata"
)

// Well-known program ids.
var (
	// MetaplexProgramID is the Metaplex Token Metadata program.
	MetaplexProgramID = domain.MustParsePublicKey("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

	// DefaultVoteProgramID is the program id of a locally hosted ledger when
	// none is configured. It is not a deployed vote program; cluster clients
	// must name the program they talk to.
	DefaultVoteProgramID = domain.MustParsePublicKey("CqQWuZSz2waA7QK9DoF6bUFcdmLhuw2oveDqrLP9gzRv")

	// DefaultIdentityProgramID is the NFT ID program used by the front end.
	DefaultIdentityProgramID = domain.MustParsePublicKey("GgLTHPo25XiFsQJAkotD3KPiyMFeypJhUSx4UVcxfjcj")

	SystemProgramID          = domain.ZeroKey
	TokenProgramID           = domain.MustParsePublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = domain.MustParsePublicKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	RentSysvarID             = domain.MustParsePublicKey("SysvarRent111111111111111111111111111111111")
)

// Address is a derived address with its canonical bump.
type Address struct {
	Key  domain.PublicKey
	Bump uint8
}

// Deriver computes record addresses for a vote program and an identity program.
type Deriver struct {
	VoteProgram     domain.PublicKey
	IdentityProgram domain.PublicKey
}

// NewDeriver returns a Deriver for the given programs.
func NewDeriver(voteProgram, identityProgram domain.PublicKey) *Deriver {
	return &Deriver{VoteProgram: voteProgram, IdentityProgram: identityProgram}
}

// DefaultDeriver uses the default program ids.
func DefaultDeriver() *Deriver {
	return NewDeriver(DefaultVoteProgramID, DefaultIdentityProgramID)
}

func (d *Deriver) find(program domain.PublicKey, what string, seeds ...[]byte) (Address, error) {
	key, bump, err := FindProgramAddress(seeds, program)
	if err != nil {
		return Address{}, fmt.Errorf("derive %s address: %w", what, err)
	}
	return Address{Key: key, Bump: bump}, nil
}

// Counter derives the poll-id counter address.
func (d *Deriver) Counter() (Address, error) {
	return d.find(d.VoteProgram, "counter", []byte(SeedCounter))
}

// Registrations derives the candidate-id counter address.
func (d *Deriver) Registrations() (Address, error) {
	return d.find(d.VoteProgram, "registrations", []byte(SeedRegistrations))
}

// Poll derives a poll address from its id.
func (d *Deriver) Poll(pollID uint64) (Address, error) {
	return d.find(d.VoteProgram, "poll", U64Seed(pollID))
}

// Candidate derives a candidate address from (poll id, candidate id).
func (d *Deriver) Candidate(pollID, cid uint64) (Address, error) {
	return d.find(d.VoteProgram, "candidate", U64Seed(pollID), U64Seed(cid))
}

// Voter derives the vote receipt address for (poll id, voter).
func (d *Deriver) Voter(pollID uint64, voter domain.PublicKey) (Address, error) {
	return d.find(d.VoteProgram, "voter", []byte(SeedVoter), U64Seed(pollID), voter[:])
}

// VoterFromBytes is Voter for raw key material; wrong-length keys fail instead of truncating.
func (d *Deriver) VoterFromBytes(pollID uint64, voter []byte) (Address, error) {
	pk, err := domain.PublicKeyFromBytes(voter)
	if err != nil {
		return Address{}, fmt.Errorf("derive voter address: %w", err)
	}
	return d.Voter(pollID, pk)
}

// Mint derives the identity mint of a wallet.
func (d *Deriver) Mint(wallet domain.PublicKey) (Address, error) {
	return d.find(d.IdentityProgram, "mint", []byte(SeedMint), wallet[:])
}

// MintFromBytes is Mint for raw key material.
func (d *Deriver) MintFromBytes(wallet []byte) (Address, error) {
	pk, err := domain.PublicKeyFromBytes(wallet)
	if err != nil {
		return Address{}, fmt.Errorf("derive mint address: %w", err)
	}
	return d.Mint(pk)
}

// TokenData derives the identity token-data address from a mint.
func (d *Deriver) TokenData(mint domain.PublicKey) (Address, error) {
	return d.find(d.IdentityProgram, "token data", []byte(SeedTokenData), mint[:])
}

// WalletTokenData derives mint then token data for a wallet.
func (d *Deriver) WalletTokenData(wallet domain.PublicKey) (mint, tokenData Address, err error) {
	mint, err = d.Mint(wallet)
	if err != nil {
		return Address{}, Address{}, err
	}
	tokenData, err = d.TokenData(mint.Key)
	if err != nil {
		return Address{}, Address{}, err
	}
	return mint, tokenData, nil
}

// Metadata derives the Metaplex metadata PDA for a mint.
// Seeds: ["metadata", metaplex_program_id, mint]
func (d *Deriver) Metadata(mint domain.PublicKey) (Address, error) {
	return d.find(MetaplexProgramID, "metadata", []byte(SeedMetadata), MetaplexProgramID[:], mint[:])
}

// AssociatedTokenAccount derives the SPL associated token account of wallet for mint.
func (d *Deriver) AssociatedTokenAccount(wallet, mint domain.PublicKey) (Address, error) {
	return d.find(AssociatedTokenProgramID, "associated token account", wallet[:], TokenProgramID[:], mint[:])
}
