// Package program implements the vote and identity program state machine:
// Initialize, CreatePoll, RegisterCandidate, Vote and InitiateToken.
//
// Each instruction executes against a view of the account store and commits
// its whole read/write set with one compare-and-swap. A concurrent writer
// makes the commit fail with storage.ErrConflict and the instruction is
// re-executed from scratch, so every check sees the state it commits on.
// Rejections are held to the same rule: the read set is re-checked with an
// assert-only commit before a rejection is returned, and a changed read set
// re-executes the instruction.
package program

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/observability"
	"github.com/srtaalej/capstone-proj/internal/pda"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

// DefaultMaxAttempts bounds re-execution after commit conflicts.
const DefaultMaxAttempts = 32

var (
	// ErrTooManyConflicts is returned when an instruction keeps losing commit races.
	ErrTooManyConflicts = errors.New("instruction aborted after repeated commit conflicts")

	// ErrStateCorrupted is returned when an account already exists at an
	// address the counters have not handed out yet.
	ErrStateCorrupted = errors.New("account state inconsistent with counters")
)

// Config holds program settings.
type Config struct {
	// MaxAttempts bounds executions per instruction. Zero means DefaultMaxAttempts.
	MaxAttempts int
	// RequireIdentity makes Vote and CreatePoll require an active identity token.
	RequireIdentity bool
}

// Program executes instructions against an account store.
type Program struct {
	store   storage.AccountStore
	deriver *pda.Deriver
	clock   Clock
	cfg     Config
	logger  *zap.Logger
}

// Option configures a Program.
type Option func(*Program)

// WithDeriver sets the program ids used for address derivation.
func WithDeriver(d *pda.Deriver) Option {
	return func(p *Program) { p.deriver = d }
}

// WithClock sets the ledger clock.
func WithClock(c Clock) Option {
	return func(p *Program) { p.clock = c }
}

// WithConfig sets program settings.
func WithConfig(cfg Config) Option {
	return func(p *Program) { p.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Program) { p.logger = l }
}

// New creates a Program over store.
func New(store storage.AccountStore, opts ...Option) *Program {
	p := &Program{
		store:   store,
		deriver: pda.DefaultDeriver(),
		clock:   SystemClock{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg.MaxAttempts <= 0 {
		p.cfg.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// Deriver returns the address deriver.
func (p *Program) Deriver() *pda.Deriver { return p.deriver }

// Reader returns a read interface over the same store.
func (p *Program) Reader() *Reader { return NewReader(p.store, p.deriver) }

// Result describes a committed instruction.
type Result struct {
	Kind        Kind
	Slot        uint64
	PollID      uint64 // create_poll
	CandidateID uint64 // register_candidate
	Written     []domain.PublicKey
	Attempts    int
}

// Execute runs ix on behalf of signer, the key that authorized the call.
// On rejection nothing is written and the returned error wraps a *Error.
func (p *Program) Execute(ctx context.Context, signer domain.PublicKey, ix Instruction) (*Result, error) {
	if ix == nil {
		return nil, reject(ErrUnknownInstruction, "nil instruction")
	}
	kind := string(ix.Kind())
	start := time.Now()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		now := p.clock.Now()
		v := newView(p.store, now.UnixMilli())

		res, err := p.apply(ctx, v, signer, ix, now.Unix())
		if err != nil {
			if p.readsChanged(ctx, v) {
				if attempt >= p.cfg.MaxAttempts {
					p.recordFailure(kind, signer, err, start)
					return nil, fmt.Errorf("%s: %w (%d attempts)", kind, ErrTooManyConflicts, attempt)
				}
				observability.RecordConflict(kind)
				p.logger.Debug("reads changed under rejection, retrying",
					zap.String("instruction", kind),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				continue
			}
			p.recordFailure(kind, signer, err, start)
			return nil, err
		}

		slot, err := p.store.Commit(ctx, v.writeSet())
		if errors.Is(err, storage.ErrConflict) {
			observability.RecordConflict(kind)
			if attempt >= p.cfg.MaxAttempts {
				p.recordFailure(kind, signer, err, start)
				return nil, fmt.Errorf("%s: %w (%d attempts)", kind, ErrTooManyConflicts, attempt)
			}
			p.logger.Debug("commit conflict, retrying",
				zap.String("instruction", kind),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			p.recordFailure(kind, signer, err, start)
			return nil, fmt.Errorf("commit %s: %w", kind, err)
		}

		res.Kind = ix.Kind()
		res.Slot = slot
		res.Written = v.written()
		res.Attempts = attempt

		observability.RecordInstruction(kind, "applied", time.Since(start).Seconds())
		p.logger.Info("instruction applied",
			zap.String("instruction", kind),
			zap.Stringer("signer", signer),
			zap.Uint64("slot", slot),
			zap.Int("attempts", attempt),
		)
		return res, nil
	}
}

// readsChanged reports whether any account v read has been written since.
// Stores that cannot validate, such as read-only mirrors, report false.
func (p *Program) readsChanged(ctx context.Context, v *view) bool {
	reads := v.readSet()
	if len(reads) == 0 {
		return false
	}
	_, err := p.store.Commit(ctx, reads)
	if err != nil && !errors.Is(err, storage.ErrConflict) && !errors.Is(err, storage.ErrReadOnly) {
		p.logger.Debug("read set validation failed", zap.Error(err))
	}
	return errors.Is(err, storage.ErrConflict)
}

func (p *Program) recordFailure(kind string, signer domain.PublicKey, err error, start time.Time) {
	if pe, ok := AsError(err); ok {
		observability.RecordInstruction(kind, "rejected", time.Since(start).Seconds())
		observability.RecordRejection(kind, pe.Name)
		p.logger.Info("instruction rejected",
			zap.String("instruction", kind),
			zap.Stringer("signer", signer),
			zap.String("error", pe.Name),
			zap.Error(err),
		)
		return
	}
	observability.RecordInstruction(kind, "failed", time.Since(start).Seconds())
	p.logger.Warn("instruction failed",
		zap.String("instruction", kind),
		zap.Stringer("signer", signer),
		zap.Error(err),
	)
}

func (p *Program) apply(ctx context.Context, v *view, signer domain.PublicKey, ix Instruction, now int64) (*Result, error) {
	if s := ix.Signer(); !s.IsZero() && s != signer {
		return nil, reject(ErrSignerMismatch, "instruction names %s, signed by %s", s, signer)
	}

	switch ix := ix.(type) {
	case *Initialize:
		return p.initialize(ctx, v, ix)
	case *CreatePoll:
		return p.createPoll(ctx, v, signer, ix)
	case *RegisterCandidate:
		return p.registerCandidate(ctx, v, ix, now)
	case *Vote:
		return p.vote(ctx, v, signer, ix, now)
	case *InitiateToken:
		return p.initiateToken(ctx, v, signer, ix)
	}
	return nil, reject(ErrUnknownInstruction, "%T", ix)
}

// Initialize creates the Counter and Registrations accounts.
func (p *Program) Initialize(ctx context.Context, signer domain.PublicKey) error {
	_, err := p.Execute(ctx, signer, &Initialize{})
	return err
}

// CreatePoll creates a poll and returns its id.
func (p *Program) CreatePoll(ctx context.Context, signer domain.PublicKey, description string, start, end int64) (uint64, error) {
	res, err := p.Execute(ctx, signer, &CreatePoll{Description: description, Start: start, End: end})
	if err != nil {
		return 0, err
	}
	return res.PollID, nil
}

// RegisterCandidate adds a candidate and returns its id.
func (p *Program) RegisterCandidate(ctx context.Context, signer domain.PublicKey, pollID uint64, name string) (uint64, error) {
	res, err := p.Execute(ctx, signer, &RegisterCandidate{PollID: pollID, Name: name})
	if err != nil {
		return 0, err
	}
	return res.CandidateID, nil
}

// Vote casts signer's vote for (pollID, candidateID).
func (p *Program) Vote(ctx context.Context, signer domain.PublicKey, pollID, candidateID uint64) error {
	_, err := p.Execute(ctx, signer, &Vote{PollID: pollID, CandidateID: candidateID})
	return err
}

// InitiateToken mints signer's identity token.
func (p *Program) InitiateToken(ctx context.Context, signer domain.PublicKey, name, dob, gender string) error {
	_, err := p.Execute(ctx, signer, &InitiateToken{Name: name, DOB: dob, Gender: gender})
	return err
}
