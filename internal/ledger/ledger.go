// Package ledger processes signed transactions against the vote program and
// keeps a journal of their outcomes.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/observability"
	"github.com/srtaalej/capstone-proj/internal/program"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

// Processing errors.
var (
	ErrBadSignature     = errors.New("invalid transaction signature")
	ErrAlreadyProcessed = errors.New("transaction already processed")
)

// Receipt is the outcome of a processed transaction.
type Receipt struct {
	Record *domain.TransactionRecord
	Result *program.Result // nil when rejected
}

// Ledger verifies transactions, executes them and journals the outcome.
type Ledger struct {
	program *program.Program
	journal storage.TransactionLogStore
	mirror  storage.TransactionLogStore
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMirror copies every journal entry to an analytics store. Mirror
// failures are logged and never fail the transaction.
func WithMirror(s storage.TransactionLogStore) Option {
	return func(l *Ledger) { l.mirror = s }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithNow sets the journal clock.
func WithNow(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger.
func New(p *program.Program, journal storage.TransactionLogStore, opts ...Option) *Ledger {
	l := &Ledger{
		program:  p,
		journal:  journal,
		logger:   zap.NewNop(),
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Program returns the executing program.
func (l *Ledger) Program() *program.Program { return l.program }

// Process verifies and executes tx. A rejected instruction is journaled and
// returned as both a receipt and an error wrapping the *program.Error.
// Storage and context failures are not journaled so the transaction can be
// resubmitted.
func (l *Ledger) Process(ctx context.Context, tx *Transaction) (*Receipt, error) {
	if !tx.Verify() {
		observability.RecordTransaction("bad_signature", 0)
		return nil, ErrBadSignature
	}
	sig := tx.ID()

	release, err := l.claim(ctx, sig)
	if err != nil {
		return nil, err
	}
	defer release()

	msg := &tx.Message
	ix, err := msg.Instruction()
	if err == nil {
		if want := program.ProgramID(l.program.Reader(), ix); want != msg.Program {
			err = fmt.Errorf("%s is served by %s, not %s: %w", ix.Kind(), want, msg.Program, program.ErrUnknownInstruction)
		}
	}

	var res *program.Result
	if err == nil {
		res, err = l.program.Execute(ctx, msg.Signer, ix)
	}

	name := "unknown"
	if ix != nil {
		name = string(ix.Kind())
	}
	rec := &domain.TransactionRecord{
		Signature:   sig,
		Signer:      msg.Signer.String(),
		Instruction: name,
		ProcessedAt: l.now().UnixMilli(),
	}

	pe, rejected := program.AsError(err)
	switch {
	case err == nil:
		rec.Status = domain.TransactionApplied
		rec.Slot = res.Slot
	case rejected:
		rec.Status = domain.TransactionRejected
		rec.ErrorCode = pe.Code
		rec.Error = err.Error()
	default:
		observability.RecordTransaction("failed", 0)
		return nil, err
	}

	if jerr := l.journal.Insert(ctx, rec); jerr != nil {
		if errors.Is(jerr, storage.ErrDuplicateKey) {
			return nil, ErrAlreadyProcessed
		}
		// The instruction is committed; losing its journal entry is reported
		// but does not undo it.
		l.logger.Error("journal insert failed", zap.String("signature", sig), zap.Error(jerr))
	}
	l.mirrorRecord(ctx, rec)

	observability.RecordTransaction(string(rec.Status), rec.Slot)
	l.logger.Debug("transaction processed",
		zap.String("signature", sig),
		zap.String("instruction", name),
		zap.String("status", string(rec.Status)),
	)

	receipt := &Receipt{Record: rec, Result: res}
	if rejected {
		return receipt, err
	}
	return receipt, nil
}

// claim reserves sig for this process and rejects signatures already in the
// journal.
func (l *Ledger) claim(ctx context.Context, sig string) (func(), error) {
	l.mu.Lock()
	if _, busy := l.inflight[sig]; busy {
		l.mu.Unlock()
		return nil, ErrAlreadyProcessed
	}
	l.inflight[sig] = struct{}{}
	l.mu.Unlock()

	release := func() {
		l.mu.Lock()
		delete(l.inflight, sig)
		l.mu.Unlock()
	}

	_, err := l.journal.GetBySignature(ctx, sig)
	switch {
	case err == nil:
		release()
		return nil, ErrAlreadyProcessed
	case !errors.Is(err, storage.ErrNotFound):
		release()
		return nil, fmt.Errorf("journal lookup: %w", err)
	}
	return release, nil
}

func (l *Ledger) mirrorRecord(ctx context.Context, rec *domain.TransactionRecord) {
	if l.mirror == nil {
		return
	}
	if err := l.mirror.Insert(ctx, rec); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		l.logger.Warn("journal mirror insert failed", zap.String("signature", rec.Signature), zap.Error(err))
	}
}

// Status returns the journaled outcome of a transaction.
func (l *Ledger) Status(ctx context.Context, signature string) (*domain.TransactionRecord, error) {
	return l.journal.GetBySignature(ctx, signature)
}

// History returns a signer's journaled transactions, oldest first.
func (l *Ledger) History(ctx context.Context, signer domain.PublicKey) ([]*domain.TransactionRecord, error) {
	return l.journal.GetBySigner(ctx, signer.String())
}
