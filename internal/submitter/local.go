package submitter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/ledger"
	"github.com/srtaalej/capstone-proj/internal/program"
)

var _ Submitter = (*Local)(nil)

// Local submits to an in-process ledger.
type Local struct {
	ledger  *ledger.Ledger
	backoff Backoff
	nonce   atomic.Uint64

	mu      sync.Mutex
	results map[string]*program.Result
}

// NewLocal creates a submitter for l.
func NewLocal(l *ledger.Ledger, backoff Backoff) *Local {
	s := &Local{
		ledger:  l,
		backoff: backoff,
		results: make(map[string]*program.Result),
	}
	s.nonce.Store(uint64(time.Now().UnixNano()))
	return s
}

// Submit signs and processes ix. Accounts left unset are derived by the
// program against the state it commits on, so counter-assigned ids are
// never pinned from an earlier read.
func (s *Local) Submit(ctx context.Context, ix program.Instruction, signer Signer) (string, error) {
	deriver := s.ledger.Program().Deriver()
	var sig string

	err := s.backoff.do(ctx, "local", func() error {
		msg, err := ledger.NewMessage(signer.PublicKey(), s.nonce.Add(1), program.ProgramIDFor(deriver, ix), ix)
		if err != nil {
			return err
		}
		tx, err := ledger.Sign(msg, signer)
		if err != nil {
			return err
		}
		sig = tx.ID()

		rcpt, err := s.ledger.Process(ctx, tx)
		if err != nil {
			if errors.Is(err, ledger.ErrBadSignature) || errors.Is(err, ledger.ErrAlreadyProcessed) {
				return &Failure{Kind: FailureRejected, Err: err}
			}
			return err
		}
		s.mu.Lock()
		s.results[sig] = rcpt.Result
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		return sig, err
	}
	return sig, nil
}

// Confirm reads the journaled outcome. Local processing is synchronous.
func (s *Local) Confirm(ctx context.Context, signature string) (*Status, error) {
	rec, err := s.ledger.Status(ctx, signature)
	if err != nil {
		return nil, classify(err)
	}
	return statusFromRecord(rec, s.take(signature))
}

func (s *Local) take(signature string) *program.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.results[signature]
	delete(s.results, signature)
	return res
}

func statusFromRecord(rec *domain.TransactionRecord, res *program.Result) (*Status, error) {
	if rec.Status == domain.TransactionRejected {
		return nil, rejected(rec.ErrorCode, "")
	}
	st := &Status{Signature: rec.Signature, Slot: rec.Slot}
	if res != nil {
		st.PollID = res.PollID
		st.CandidateID = res.CandidateID
	}
	return st, nil
}
