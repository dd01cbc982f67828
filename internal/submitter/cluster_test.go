package submitter

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/pda"
	"github.com/srtaalej/capstone-proj/internal/program"
	"github.com/srtaalej/capstone-proj/internal/solana"
	"github.com/srtaalej/capstone-proj/internal/solana/stub"
)

func newClusterFixture(t *testing.T, opts ...ClusterOption) (*stub.RPCClient, *pda.Deriver, *Cluster) {
	t.Helper()
	rpc := stub.NewRPCClient()
	d := pda.DefaultDeriver()
	opts = append([]ClusterOption{WithStatusInterval(5 * time.Millisecond)}, opts...)
	return rpc, d, NewCluster(rpc, d, fastBackoff(), opts...)
}

func setAccount(t *testing.T, rpc *stub.RPCClient, d *pda.Deriver, addr pda.Address, data []byte, err error) {
	t.Helper()
	require.NoError(t, err)
	rpc.SetAccount(addr.Key.String(), d.VoteProgram.String(), data)
}

func instructionError(code uint32) map[string]interface{} {
	return map[string]interface{}{
		"InstructionError": []interface{}{float64(0), map[string]interface{}{"Custom": float64(code)}},
	}
}

func TestCluster_SubmitBuildsSignedTransaction(t *testing.T) {
	rpc, d, s := newClusterFixture(t)
	ctx := context.Background()
	key := newKey(t)

	counter, err := d.Counter()
	require.NoError(t, err)
	data, err := program.EncodeCounter(&domain.Counter{Count: 3})
	setAccount(t, rpc, d, counter, data, err)

	sig, err := s.Submit(ctx, &program.CreatePoll{Description: "Lunch", Start: t0, End: t0 + 60}, key)
	require.NoError(t, err)
	require.Len(t, rpc.Sent, 1)

	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(rpc.Sent[0]))
	require.NoError(t, err)
	require.NoError(t, tx.VerifySignatures())
	assert.Equal(t, sig, tx.Signatures[0].String())
	assert.Equal(t, solanago.PublicKey(key.PublicKey()), tx.Message.AccountKeys[0])
	assert.Equal(t, rpc.Blockhash.Blockhash, tx.Message.RecentBlockhash.String())

	require.Len(t, tx.Message.Instructions, 1)
	inst := tx.Message.Instructions[0]
	programID, err := tx.Message.ResolveProgramIDIndex(inst.ProgramIDIndex)
	require.NoError(t, err)
	assert.Equal(t, solanago.PublicKey(d.VoteProgram), programID)

	poll, err := d.Poll(3)
	require.NoError(t, err)
	want := &program.CreatePoll{
		Owner: key.PublicKey(), Counter: counter.Key, Poll: poll.Key,
		Description: "Lunch", Start: t0, End: t0 + 60,
	}
	wantData, err := program.EncodeData(want)
	require.NoError(t, err)
	assert.Equal(t, wantData, []byte(inst.Data))

	keys := make([]domain.PublicKey, 0, len(inst.Accounts))
	for _, idx := range inst.Accounts {
		keys = append(keys, domain.PublicKey(tx.Message.AccountKeys[idx]))
	}
	assert.Equal(t, program.AccountKeys(want), keys)

	// The created poll is read back for its id.
	pollData, err := program.EncodePoll(&domain.Poll{ID: 3, Description: "Lunch", Start: t0, End: t0 + 60, Owner: key.PublicKey()})
	setAccount(t, rpc, d, poll, pollData, err)

	st, err := s.Confirm(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.PollID)
	assert.Equal(t, uint64(rpc.Slot), st.Slot)
}

func TestCluster_ResolveRejectsUninitialized(t *testing.T) {
	rpc, _, s := newClusterFixture(t)
	_, err := s.Submit(context.Background(), &program.CreatePoll{Description: "x", Start: t0, End: t0 + 1}, newKey(t))
	assert.True(t, errors.Is(err, program.ErrNotInitialized))
	assert.Empty(t, rpc.Sent)
}

func TestCluster_PreflightRejection(t *testing.T) {
	rpc, _, s := newClusterFixture(t)
	var sends atomic.Int32
	rpc.OnSend = func([]byte) (string, error) {
		sends.Add(1)
		data, _ := json.Marshal(map[string]interface{}{"err": instructionError(program.ErrDuplicateVote.Code)})
		return "", &solana.RPCError{
			Code:    solana.ErrCodeSendTransactionPreflightFailure,
			Message: "Transaction simulation failed",
			Data:    data,
		}
	}

	_, err := s.Submit(context.Background(), &program.Initialize{}, newKey(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, program.ErrDuplicateVote))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, int32(1), sends.Load())
}

func TestCluster_RetriesTransport(t *testing.T) {
	rpc, _, s := newClusterFixture(t)
	var sends atomic.Int32
	rpc.OnSend = func(raw []byte) (string, error) {
		if sends.Add(1) < 3 {
			return "", errors.New("connection reset")
		}
		tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(raw))
		if err != nil {
			return "", err
		}
		return tx.Signatures[0].String(), nil
	}

	sig, err := s.Submit(context.Background(), &program.Initialize{}, newKey(t))
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
	assert.Equal(t, int32(3), sends.Load())
	assert.Equal(t, rpc.Sent[0], rpc.Sent[2])
}

func TestCluster_ConfirmFailedTransaction(t *testing.T) {
	rpc, _, s := newClusterFixture(t)
	rpc.SetStatus("sig", &solana.SignatureStatus{
		Slot:               9,
		Err:                instructionError(program.ErrPollWindowViolation.Code),
		ConfirmationStatus: solana.CommitmentConfirmed,
	})

	rpc.AddTransaction(&solana.Transaction{
		Slot:      9,
		Signature: "sig",
		Meta: &solana.TransactionMeta{LogMessages: []string{
			"Program " + pda.DefaultVoteProgramID.String() + " invoke [1]",
			"Program log: poll 2 has ended",
			"Program " + pda.DefaultVoteProgramID.String() + " failed: custom program error: 0x1775",
		}},
	})

	_, err := s.Confirm(context.Background(), "sig")
	assert.True(t, errors.Is(err, program.ErrPollWindowViolation))
	assert.Contains(t, err.Error(), "poll 2 has ended")
}

func TestCluster_ConfirmWaitsForCommitment(t *testing.T) {
	rpc, _, s := newClusterFixture(t, WithCommitment(solana.CommitmentFinalized))
	rpc.SetStatus("sig", &solana.SignatureStatus{Slot: 4, ConfirmationStatus: solana.CommitmentConfirmed})

	go func() {
		time.Sleep(20 * time.Millisecond)
		rpc.SetStatus("sig", &solana.SignatureStatus{Slot: 4, ConfirmationStatus: solana.CommitmentFinalized})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := s.Confirm(ctx, "sig")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), st.Slot)
}

func TestCluster_ConfirmTimeout(t *testing.T) {
	_, _, s := newClusterFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Confirm(ctx, "unknown")
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, FailureTimeout, f.Kind)
}

type fakeWS struct {
	ch  chan solana.SignatureNotification
	err error
}

func (f *fakeWS) SubscribeSignature(context.Context, string, string) (<-chan solana.SignatureNotification, error) {
	return f.ch, f.err
}

func (f *fakeWS) Close() error { return nil }

func TestCluster_ConfirmViaWebsocket(t *testing.T) {
	ws := &fakeWS{ch: make(chan solana.SignatureNotification, 1)}
	_, _, s := newClusterFixture(t, WithWebsocket(ws), WithStatusInterval(time.Hour))
	ws.ch <- solana.SignatureNotification{Signature: "sig", Slot: 12}

	st, err := s.Confirm(context.Background(), "sig")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), st.Slot)
}

func TestCluster_WebsocketFailureFallsBackToPolling(t *testing.T) {
	ws := &fakeWS{err: errors.New("dial failed")}
	rpc, _, s := newClusterFixture(t, WithWebsocket(ws))
	rpc.SetStatus("sig", &solana.SignatureStatus{Slot: 3, ConfirmationStatus: solana.CommitmentConfirmed})

	st, err := s.Confirm(context.Background(), "sig")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.Slot)
}
