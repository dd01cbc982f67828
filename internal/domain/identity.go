package domain

// TokenData is the identity attestation attached to a wallet's identity mint.
// PII is stored hashed; only IsActive may change after creation.
type TokenData struct {
	HashedName   [32]byte
	HashedDOB    [32]byte
	HashedGender [32]byte
	IsActive     bool
}

// IdentityMint marks that a wallet's identity token has been minted.
// Its address is derived from the wallet, so at most one exists per wallet.
type IdentityMint struct {
	Wallet    PublicKey
	TokenData PublicKey
	Supply    uint64 // always 1
}

// IdentityStatus summarizes KYC state for a wallet.
type IdentityStatus string

// Identity status values.
const (
	IdentityVerified   IdentityStatus = "verified"
	IdentityInactive   IdentityStatus = "inactive"
	IdentityUnverified IdentityStatus = "unverified"
)
