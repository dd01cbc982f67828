package program

import (
	"errors"
	"fmt"
)

// ErrorCodeOffset is the first custom program error code, as in Anchor.
const ErrorCodeOffset uint32 = 6000

// Error is a program rejection. Code is stable across releases and is what
// the cluster reports as InstructionError{Custom: Code}.
type Error struct {
	Code uint32
	Name string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Msg)
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(offset uint32, name, msg string) *Error {
	e := &Error{Code: ErrorCodeOffset + offset, Name: name, Msg: msg}
	registry[e.Code] = e
	return e
}

var registry = map[uint32]*Error{}

// Program errors. Code order is part of the wire contract; append only.
var (
	ErrAlreadyInitialized       = newError(0, "AlreadyInitialized", "account already initialized")
	ErrNotInitialized           = newError(1, "NotInitialized", "program state not initialized")
	ErrInvalidAddressDerivation = newError(2, "InvalidAddressDerivation", "account address does not match its seed derivation")
	ErrPollNotFound             = newError(3, "PollNotFound", "poll not found")
	ErrCandidateNotFound        = newError(4, "CandidateNotFound", "candidate not found")
	ErrPollWindowViolation      = newError(5, "PollWindowViolation", "outside poll voting window")
	ErrCandidatePollMismatch    = newError(6, "CandidatePollMismatch", "candidate does not belong to poll")
	ErrDuplicateVote            = newError(7, "DuplicateVote", "voter already voted in this poll")
	ErrDuplicateIdentity        = newError(8, "DuplicateIdentity", "identity token already minted for wallet")
	ErrFieldTooLong             = newError(9, "FieldTooLong", "field exceeds maximum length")
	ErrFieldInvalid             = newError(10, "FieldInvalid", "field value is invalid")
	ErrIdentityRequired         = newError(11, "IdentityRequired", "active identity token required")
	ErrSignerMismatch           = newError(12, "SignerMismatch", "instruction signer does not match transaction signer")
	ErrArithmeticOverflow       = newError(13, "ArithmeticOverflow", "counter overflow")
	ErrUnknownInstruction       = newError(14, "UnknownInstruction", "unknown instruction")
)

// ErrorFromCode returns the program error for a custom code.
func ErrorFromCode(code uint32) (*Error, bool) {
	e, ok := registry[code]
	return e, ok
}

// AsError extracts the program error from err's chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Errors returns every program error in code order.
func Errors() []*Error {
	out := make([]*Error, 0, len(registry))
	for code := ErrorCodeOffset; ; code++ {
		e, ok := registry[code]
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func reject(base *Error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{base}, args...)...)
}
