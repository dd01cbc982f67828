package submitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/observability"
	"github.com/srtaalej/capstone-proj/internal/pda"
	"github.com/srtaalej/capstone-proj/internal/program"
	"github.com/srtaalej/capstone-proj/internal/solana"
	rpcstore "github.com/srtaalej/capstone-proj/internal/storage/rpc"
)

var _ Submitter = (*Cluster)(nil)

// Cluster submits real Solana transactions to a deployed vote program.
type Cluster struct {
	rpc        solana.RPCClient
	ws         solana.WSClient
	reader     *program.Reader
	backoff    Backoff
	commitment string
	interval   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	pending map[string]program.Instruction
}

// ClusterOption configures a Cluster.
type ClusterOption func(*Cluster)

// WithWebsocket confirms through signatureSubscribe before falling back to
// status polling.
func WithWebsocket(ws solana.WSClient) ClusterOption {
	return func(c *Cluster) { c.ws = ws }
}

// WithCommitment sets the commitment Confirm waits for.
func WithCommitment(commitment string) ClusterOption {
	return func(c *Cluster) { c.commitment = commitment }
}

// WithStatusInterval sets the getSignatureStatuses polling interval.
func WithStatusInterval(d time.Duration) ClusterOption {
	return func(c *Cluster) { c.interval = d }
}

// WithClusterLogger sets the logger.
func WithClusterLogger(l *zap.Logger) ClusterOption {
	return func(c *Cluster) { c.logger = l }
}

// NewCluster creates a submitter over client. Account addresses are resolved
// against on-chain state read through the same client.
func NewCluster(client solana.RPCClient, deriver *pda.Deriver, backoff Backoff, opts ...ClusterOption) *Cluster {
	c := &Cluster{
		rpc:        client,
		reader:     program.NewReader(rpcstore.NewAccountStore(client), deriver),
		backoff:    backoff,
		commitment: solana.CommitmentConfirmed,
		interval:   500 * time.Millisecond,
		logger:     zap.NewNop(),
		pending:    make(map[string]program.Instruction),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reader returns the on-chain state reader.
func (c *Cluster) Reader() *program.Reader { return c.reader }

// Submit resolves ix against chain state, builds and signs a transaction and
// sends it. The same signed bytes are resent on transport failures.
func (c *Cluster) Submit(ctx context.Context, ix program.Instruction, signer Signer) (string, error) {
	resolved, err := program.Resolve(ctx, c.reader, signer.PublicKey(), ix)
	if err != nil {
		return "", classify(err)
	}

	var raw []byte
	if err := c.backoff.do(ctx, "cluster", func() error {
		var err error
		raw, err = c.build(ctx, resolved, signer)
		return err
	}); err != nil {
		return "", err
	}

	var sig string
	err = c.backoff.do(ctx, "cluster", func() error {
		var err error
		sig, err = c.rpc.SendTransaction(ctx, raw, nil)
		return sendFailure(err)
	})
	if err != nil {
		return sig, err
	}

	c.mu.Lock()
	c.pending[sig] = resolved
	c.mu.Unlock()
	c.logger.Debug("transaction sent", zap.String("signature", sig), zap.String("instruction", string(ix.Kind())))
	return sig, nil
}

func (c *Cluster) build(ctx context.Context, ix program.Instruction, signer Signer) ([]byte, error) {
	data, err := program.EncodeData(ix)
	if err != nil {
		return nil, &Failure{Kind: FailureRejected, Err: err}
	}
	metas := program.Accounts(ix)
	accounts := make(solanago.AccountMetaSlice, 0, len(metas))
	for _, m := range metas {
		accounts = append(accounts, &solanago.AccountMeta{
			PublicKey:  solanago.PublicKey(m.PublicKey),
			IsSigner:   m.IsSigner,
			IsWritable: m.IsWritable,
		})
	}
	inst := solanago.NewInstruction(solanago.PublicKey(program.ProgramID(c.reader, ix)), accounts, data)

	bh, err := c.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest blockhash: %w", err)
	}
	hash, err := solanago.HashFromBase58(bh.Blockhash)
	if err != nil {
		return nil, fmt.Errorf("parse blockhash: %w", err)
	}

	payer := solanago.PublicKey(signer.PublicKey())
	tx, err := solanago.NewTransaction([]solanago.Instruction{inst}, hash, solanago.TransactionPayer(payer))
	if err != nil {
		return nil, &Failure{Kind: FailureRejected, Err: fmt.Errorf("build transaction: %w", err)}
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, &Failure{Kind: FailureRejected, Err: fmt.Errorf("encode message: %w", err)}
	}
	sig, err := signer.Sign(msg)
	if err != nil {
		return nil, &Failure{Kind: FailureRejected, Err: fmt.Errorf("sign: %w", err)}
	}
	tx.Signatures = append(tx.Signatures, sig)
	return tx.MarshalBinary()
}

// sendFailure turns a failed preflight simulation into a rejection.
func sendFailure(err error) error {
	if err == nil {
		return nil
	}
	var rerr *solana.RPCError
	if !errors.As(err, &rerr) {
		return err
	}
	if _, code, ok := solana.InstructionErrorCode(rerr.TransactionErr()); ok {
		return rejected(code, rerr.Message)
	}
	if rerr.Code == solana.ErrCodeBlockhashNotFound {
		return &Failure{Kind: FailureTransport, Err: err}
	}
	return &Failure{Kind: FailureRejected, Err: err}
}

// Confirm waits for the transaction to reach the configured commitment.
func (c *Cluster) Confirm(ctx context.Context, signature string) (*Status, error) {
	start := time.Now()
	slot, txErr, err := c.await(ctx, signature)
	if err != nil {
		return nil, classify(err)
	}
	resolved := c.take(signature)
	if txErr != nil {
		if _, code, ok := solana.InstructionErrorCode(txErr); ok {
			return nil, rejected(code, c.failureDetail(ctx, signature))
		}
		return nil, &Failure{Kind: FailureRejected, Err: fmt.Errorf("transaction failed: %v", txErr)}
	}
	observability.RecordConfirmation("cluster", time.Since(start).Seconds())

	st := &Status{Signature: signature, Slot: uint64(slot)}
	c.describe(ctx, st, resolved)
	return st, nil
}

// await returns the slot and transaction error of signature once it reaches
// the commitment. Notifications and status polling race; whichever reports
// first wins, so a signature that landed before the subscription is still
// seen.
func (c *Cluster) await(ctx context.Context, signature string) (int64, interface{}, error) {
	var notes <-chan solana.SignatureNotification
	if c.ws != nil {
		ch, err := c.ws.SubscribeSignature(ctx, signature, c.commitment)
		if err != nil {
			c.logger.Warn("signature subscription failed, polling", zap.String("signature", signature), zap.Error(err))
		} else {
			notes = ch
		}
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		if s := c.status(ctx, signature); s != nil {
			return s.Slot, s.Err, nil
		}
		select {
		case n, ok := <-notes:
			if ok {
				return n.Slot, n.Err, nil
			}
			notes = nil
		case <-ctx.Done():
			return 0, nil, &Failure{Kind: FailureTimeout, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

// status returns the signature status once it is final for our purposes.
func (c *Cluster) status(ctx context.Context, signature string) *solana.SignatureStatus {
	statuses, err := c.rpc.GetSignatureStatuses(ctx, signature)
	if err != nil {
		c.logger.Debug("signature status failed", zap.String("signature", signature), zap.Error(err))
		return nil
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return nil
	}
	if s := statuses[0]; s.Err != nil || s.Reached(c.commitment) {
		return s
	}
	return nil
}

// failureDetail returns the last program log line of a failed transaction.
func (c *Cluster) failureDetail(ctx context.Context, signature string) string {
	tx, err := c.rpc.GetTransaction(ctx, signature)
	if err != nil || tx == nil || tx.Meta == nil {
		return ""
	}
	c.logger.Debug("failed transaction logs", zap.String("signature", signature), zap.Strings("logs", tx.Meta.LogMessages))
	for i := len(tx.Meta.LogMessages) - 1; i >= 0; i-- {
		if line, ok := strings.CutPrefix(tx.Meta.LogMessages[i], "Program log: "); ok {
			return line
		}
	}
	return ""
}

func (c *Cluster) take(signature string) program.Instruction {
	c.mu.Lock()
	defer c.mu.Unlock()
	ix := c.pending[signature]
	delete(c.pending, signature)
	return ix
}

// describe fills the ids of the records the instruction created. Lookup
// failures leave them zero.
func (c *Cluster) describe(ctx context.Context, st *Status, ix program.Instruction) {
	var addr domain.PublicKey
	switch v := ix.(type) {
	case *program.CreatePoll:
		addr = v.Poll
	case *program.RegisterCandidate:
		addr = v.Candidate
	case *program.Vote:
		st.PollID, st.CandidateID = v.PollID, v.CandidateID
		return
	default:
		return
	}

	_, dec, err := c.reader.Account(ctx, addr)
	if err != nil {
		c.logger.Debug("created account not readable", zap.Stringer("address", addr), zap.Error(err))
		return
	}
	switch rec := dec.Record.(type) {
	case *domain.Poll:
		st.PollID = rec.ID
	case *domain.Candidate:
		st.PollID, st.CandidateID = rec.PollID, rec.CID
	}
}
