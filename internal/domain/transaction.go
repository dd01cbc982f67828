package domain

// TransactionStatus is the recorded outcome of a processed transaction.
type TransactionStatus string

// Transaction status values. There is no pending state: a transaction is
// either applied or rejected once processed.
const (
	TransactionApplied  TransactionStatus = "applied"
	TransactionRejected TransactionStatus = "rejected"
)

// TransactionRecord is the journal entry for a processed transaction.
// Corresponds to transactions table in PostgreSQL / ClickHouse.
type TransactionRecord struct {
	Signature   string            // PRIMARY KEY, base58 ed25519 signature
	Signer      string            // base58 signer key
	Instruction string            // instruction name, e.g. "vote"
	Status      TransactionStatus // applied | rejected
	ErrorCode   uint32            // program error code, 0 when applied
	Error       string            // rejection message (nullable)
	Slot        uint64            // commit slot, 0 when rejected
	ProcessedAt int64             // unix ms
}
