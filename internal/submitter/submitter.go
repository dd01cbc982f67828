// Package submitter signs program instructions and delivers them to a ledger:
// in-process, over the ledger HTTP API or to a Solana cluster.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/observability"
	"github.com/srtaalej/capstone-proj/internal/program"
)

// Signer holds the wallet key that authorizes instructions.
type Signer interface {
	PublicKey() domain.PublicKey
	Sign(payload []byte) (solanago.Signature, error)
}

// Submitter delivers instructions and reports their outcome.
type Submitter interface {
	// Submit signs ix with signer and sends it. Rejections known at
	// submission time are returned as *Failure.
	Submit(ctx context.Context, ix program.Instruction, signer Signer) (string, error)

	// Confirm waits until the transaction is final or ctx is done.
	Confirm(ctx context.Context, signature string) (*Status, error)
}

// Status is a confirmed transaction.
type Status struct {
	Signature   string
	Slot        uint64
	PollID      uint64 // create_poll, when known
	CandidateID uint64 // register_candidate, when known
}

// FailureKind classifies submission failures.
type FailureKind string

// Failure kinds.
const (
	// FailureRejected means the program refused the instruction. Not retryable.
	FailureRejected FailureKind = "rejected"
	// FailureTransport means the ledger could not be reached or answered badly.
	FailureTransport FailureKind = "transport"
	// FailureTimeout means confirmation did not arrive before the deadline.
	FailureTimeout FailureKind = "timeout"
)

// Failure describes why a submission did not succeed. For rejections Err
// wraps the *program.Error, so errors.Is(err, program.ErrDuplicateVote) works.
type Failure struct {
	Kind FailureKind
	Code uint32
	Err  error
}

func (f *Failure) Error() string {
	if f.Kind == FailureRejected {
		return fmt.Sprintf("rejected (%d): %v", f.Code, f.Err)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// rejected builds a rejection failure from a program error code.
func rejected(code uint32, detail string) *Failure {
	if pe, ok := program.ErrorFromCode(code); ok {
		if detail == "" {
			return &Failure{Kind: FailureRejected, Code: code, Err: pe}
		}
		return &Failure{Kind: FailureRejected, Code: code, Err: fmt.Errorf("%w: %s", pe, detail)}
	}
	return &Failure{Kind: FailureRejected, Code: code, Err: fmt.Errorf("custom program error %d: %s", code, detail)}
}

// classify wraps err as a Failure, keeping an existing one.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	if pe, ok := program.AsError(err); ok {
		return &Failure{Kind: FailureRejected, Code: pe.Code, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailureTimeout, Err: err}
	}
	return &Failure{Kind: FailureTransport, Err: err}
}

// IsRetryable reports whether resubmitting could succeed.
func IsRetryable(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == FailureTransport
}

// SubmitAndConfirm submits ix and waits for its confirmation.
func SubmitAndConfirm(ctx context.Context, s Submitter, ix program.Instruction, signer Signer) (*Status, error) {
	sig, err := s.Submit(ctx, ix, signer)
	if err != nil {
		return nil, err
	}
	return s.Confirm(ctx, sig)
}

// Backoff configures transport retries.
type Backoff struct {
	MaxRetries int
	Delay      time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultBackoff mirrors the RPC client's retry schedule.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxRetries: 3,
		Delay:      200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2,
	}
}

// do runs fn until it succeeds, fails with a non-retryable error or the
// retries are spent.
func (b Backoff) do(ctx context.Context, name string, fn func() error) error {
	delay := b.Delay
	var err error
	for attempt := 0; attempt <= b.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return classify(ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * b.Multiplier)
			if delay > b.MaxDelay {
				delay = b.MaxDelay
			}
		}
		err = classify(fn())
		if err == nil {
			observability.RecordSubmission(name, "accepted")
			return nil
		}
		if !IsRetryable(err) {
			break
		}
	}
	var f *Failure
	if errors.As(err, &f) {
		observability.RecordSubmission(name, string(f.Kind))
	}
	return err
}

// waitPoll calls check every interval until it reports done.
func waitPoll(ctx context.Context, interval time.Duration, check func() (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		done, err := check()
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return &Failure{Kind: FailureTimeout, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}
