package domain

// Counter is the singleton poll-id sequence.
// Corresponds to the "counter" program account.
type Counter struct {
	Count uint64 // next poll id
}

// Registrations is the singleton candidate-id sequence shared by all polls.
type Registrations struct {
	Count uint64 // next candidate id
}

// Poll is one poll record, addressed by its id.
type Poll struct {
	ID          uint64    // Counter value at creation, immutable
	Description string    // at most MaxDescriptionLength bytes
	Start       int64     // unix seconds, voting opens
	End         int64     // unix seconds, voting closes (inclusive)
	Candidates  uint64    // registered candidate count, never decremented
	Owner       PublicKey // creator
}

// Candidate is one (poll, candidate) record.
type Candidate struct {
	CID    uint64 // global candidate id from Registrations
	PollID uint64 // owning poll
	Name   string
	Votes  uint64 // tally
}

// Voter is the receipt that guards against double voting.
type Voter struct {
	PollID   uint64
	Voter    PublicKey
	HasVoted bool
}

// Field bounds enforced by the program.
const (
	MaxDescriptionLength   = 280
	MaxCandidateNameLength = 32
	MaxIdentityNameLength  = 9
	IdentityDOBLayout      = "2006-01-02"
)

// IsOpen reports whether votes are accepted at now (unix seconds). Both bounds are inclusive.
func (p *Poll) IsOpen(now int64) bool {
	return p.Start <= now && now <= p.End
}

// HasEnded reports whether now is past the poll end.
func (p *Poll) HasEnded(now int64) bool {
	return now > p.End
}
