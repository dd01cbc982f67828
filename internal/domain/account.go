package domain

// DiscriminatorLength is the Anchor account/instruction discriminator size.
const DiscriminatorLength = 8

// Discriminator identifies an account type (first 8 bytes of account data).
type Discriminator [DiscriminatorLength]byte

// Account is a program-owned record as persisted by a ledger substrate.
// Corresponds to accounts table in PostgreSQL.
type Account struct {
	Address   PublicKey // PRIMARY KEY, derived address
	Owner     PublicKey // owning program id
	Data      []byte    // discriminator + borsh payload
	Version   uint64    // bumped on every write, 0 = never written
	Slot      uint64    // ledger commit sequence of the last write
	UpdatedAt int64     // unix ms of the last write
}

// Discriminator returns the account type tag, or zero if data is too short.
func (a *Account) Discriminator() Discriminator {
	var d Discriminator
	if len(a.Data) >= DiscriminatorLength {
		copy(d[:], a.Data[:DiscriminatorLength])
	}
	return d
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

// AccountWrite is one entry of an atomic commit.
// ExpectedVersion must match the stored version (0 = account must not exist).
// A nil Account only asserts the version (read-set validation).
type AccountWrite struct {
	Address         PublicKey
	ExpectedVersion uint64
	Account         *Account
}

// Bytes returns the discriminator as a slice.
func (d Discriminator) Bytes() []byte {
	return append([]byte(nil), d[:]...)
}
