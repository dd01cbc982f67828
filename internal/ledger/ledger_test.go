package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/pda"
	"github.com/srtaalej/capstone-proj/internal/program"
	"github.com/srtaalej/capstone-proj/internal/storage"
	"github.com/srtaalej/capstone-proj/internal/storage/memory"
	"github.com/srtaalej/capstone-proj/internal/wallet"
)

const t0 = int64(1_700_000_000)

type fixture struct {
	ledger  *Ledger
	journal *memory.TransactionLogStore
	mirror  *memory.TransactionLogStore
	key     *wallet.Keypair
	signer  domain.PublicKey
	nonce   atomic.Uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := wallet.NewKeypair()
	require.NoError(t, err)

	journal := memory.NewTransactionLogStore()
	mirror := memory.NewTransactionLogStore()
	prog := program.New(memory.NewAccountStore(), program.WithClock(program.NewManualClock(t0)))
	return &fixture{
		ledger:  New(prog, journal, WithMirror(mirror)),
		journal: journal,
		mirror:  mirror,
		key:     key,
		signer:  key.PublicKey(),
	}
}

func (f *fixture) sign(t *testing.T, ix program.Instruction) *Transaction {
	t.Helper()
	resolved, err := program.Resolve(context.Background(), f.ledger.Program().Reader(), f.signer, ix)
	require.NoError(t, err)
	programID := program.ProgramID(f.ledger.Program().Reader(), ix)
	msg, err := NewMessage(f.signer, f.nonce.Add(1), programID, resolved)
	require.NoError(t, err)
	tx, err := Sign(msg, f.key)
	require.NoError(t, err)
	return tx
}

func (f *fixture) process(t *testing.T, ix program.Instruction) (*Receipt, error) {
	t.Helper()
	return f.ledger.Process(context.Background(), f.sign(t, ix))
}

func TestLedger_ProcessApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rcpt, err := f.process(t, &program.Initialize{})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionApplied, rcpt.Record.Status)
	assert.Equal(t, "initialize", rcpt.Record.Instruction)
	assert.NotZero(t, rcpt.Record.Slot)

	rcpt, err = f.process(t, &program.CreatePoll{Description: "Favorite color", Start: t0, End: t0 + 3600})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rcpt.Result.PollID)

	rec, err := f.ledger.Status(ctx, rcpt.Record.Signature)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionApplied, rec.Status)
	assert.Equal(t, f.signer.String(), rec.Signer)

	mirrored, err := f.mirror.GetBySignature(ctx, rcpt.Record.Signature)
	require.NoError(t, err)
	assert.Equal(t, rec, mirrored)

	history, err := f.ledger.History(ctx, f.signer)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestLedger_RejectionIsJournaled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.process(t, &program.Initialize{})
	require.NoError(t, err)
	_, err = f.process(t, &program.CreatePoll{Description: "p", Start: t0, End: t0 + 10})
	require.NoError(t, err)
	_, err = f.process(t, &program.RegisterCandidate{PollID: 0, Name: "Red"})
	require.NoError(t, err)
	_, err = f.process(t, &program.Vote{PollID: 0, CandidateID: 0})
	require.NoError(t, err)

	rcpt, err := f.process(t, &program.Vote{PollID: 0, CandidateID: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, program.ErrDuplicateVote))
	require.NotNil(t, rcpt)
	assert.Nil(t, rcpt.Result)
	assert.Equal(t, domain.TransactionRejected, rcpt.Record.Status)
	assert.Equal(t, program.ErrDuplicateVote.Code, rcpt.Record.ErrorCode)
	assert.Zero(t, rcpt.Record.Slot)

	rec, err := f.ledger.Status(ctx, rcpt.Record.Signature)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionRejected, rec.Status)

	cand, err := f.ledger.Program().Reader().Candidate(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cand.Votes)
}

func TestLedger_BadSignature(t *testing.T) {
	f := newFixture(t)
	tx := f.sign(t, &program.Initialize{})
	tx.Message.Nonce++

	_, err := f.ledger.Process(context.Background(), tx)
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = f.ledger.Status(context.Background(), tx.ID())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLedger_Replay(t *testing.T) {
	f := newFixture(t)
	tx := f.sign(t, &program.Initialize{})

	_, err := f.ledger.Process(context.Background(), tx)
	require.NoError(t, err)

	_, err = f.ledger.Process(context.Background(), tx)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestLedger_ConcurrentReplayAppliesOnce(t *testing.T) {
	f := newFixture(t)
	_, err := f.process(t, &program.Initialize{})
	require.NoError(t, err)
	tx := f.sign(t, &program.CreatePoll{Description: "p", Start: t0, End: t0 + 10})

	var wg sync.WaitGroup
	var applied, replays atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Process(context.Background(), tx)
			switch {
			case err == nil:
				applied.Add(1)
			case errors.Is(err, ErrAlreadyProcessed):
				replays.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
	assert.Equal(t, int32(7), replays.Load())

	counter, err := f.ledger.Program().Reader().Counter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), counter.Count)
}

func TestLedger_WrongProgramIsRejected(t *testing.T) {
	f := newFixture(t)
	resolved, err := program.Resolve(context.Background(), f.ledger.Program().Reader(), f.signer, &program.Initialize{})
	require.NoError(t, err)
	msg, err := NewMessage(f.signer, 1, pda.DefaultIdentityProgramID, resolved)
	require.NoError(t, err)
	tx, err := Sign(msg, f.key)
	require.NoError(t, err)

	rcpt, err := f.ledger.Process(context.Background(), tx)
	assert.ErrorIs(t, err, program.ErrUnknownInstruction)
	require.NotNil(t, rcpt)
	assert.Equal(t, domain.TransactionRejected, rcpt.Record.Status)
}

func TestLedger_UndecodableInstructionIsRejected(t *testing.T) {
	f := newFixture(t)
	msg := &Message{Signer: f.signer, Nonce: 1, Program: pda.DefaultVoteProgramID, Data: []byte{1, 2}}
	tx, err := Sign(msg, f.key)
	require.NoError(t, err)

	rcpt, err := f.ledger.Process(context.Background(), tx)
	assert.ErrorIs(t, err, program.ErrUnknownInstruction)
	require.NotNil(t, rcpt)
	assert.Equal(t, "unknown", rcpt.Record.Instruction)
}

func TestTransaction_EnvelopeRoundTrip(t *testing.T) {
	f := newFixture(t)
	tx := f.sign(t, &program.InitiateToken{Name: "Ada", DOB: "1815-12-10", Gender: "F"})

	s, err := tx.EncodeBase64()
	require.NoError(t, err)
	decoded, err := DecodeTransactionBase64(s)
	require.NoError(t, err)
	assert.Equal(t, tx, decoded)
	assert.True(t, decoded.Verify())
	assert.Equal(t, tx.ID(), decoded.ID())

	ix, err := decoded.Message.Instruction()
	require.NoError(t, err)
	assert.Equal(t, "Ada", ix.(*program.InitiateToken).Name)

	_, err = DecodeTransactionBase64("not base64!")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSign_RejectsForeignKey(t *testing.T) {
	f := newFixture(t)
	other, err := wallet.NewKeypair()
	require.NoError(t, err)

	msg := &Message{Signer: f.signer, Program: pda.DefaultVoteProgramID}
	_, err = Sign(msg, other)
	assert.Error(t, err)
}
