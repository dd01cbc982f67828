package submitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srtaalej/capstone-proj/internal/api"
	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/ledger"
	"github.com/srtaalej/capstone-proj/internal/observability"
	"github.com/srtaalej/capstone-proj/internal/pda"
	"github.com/srtaalej/capstone-proj/internal/program"
)

var _ Submitter = (*Remote)(nil)

// Remote submits signed envelopes to a ledger server. Instructions are sent
// with unresolved accounts; the server derives them against its own state.
type Remote struct {
	baseURL  string
	client   *http.Client
	deriver  *pda.Deriver
	backoff  Backoff
	interval time.Duration
	nonce    atomic.Uint64

	mu      sync.Mutex
	results map[string]api.SubmitResponse
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// WithPollInterval sets how often Confirm polls the transaction status.
func WithPollInterval(d time.Duration) RemoteOption {
	return func(r *Remote) { r.interval = d }
}

// NewRemote creates a submitter for the server at baseURL. deriver carries
// the program ids the server runs.
func NewRemote(baseURL string, deriver *pda.Deriver, backoff Backoff, opts ...RemoteOption) *Remote {
	r := &Remote{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 30 * time.Second},
		deriver:  deriver,
		backoff:  backoff,
		interval: 250 * time.Millisecond,
		results:  make(map[string]api.SubmitResponse),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.nonce.Store(uint64(time.Now().UnixNano()))
	return r
}

// Submit signs ix once and posts it, retrying transport failures with the
// same signature.
func (r *Remote) Submit(ctx context.Context, ix program.Instruction, signer Signer) (string, error) {
	msg, err := ledger.NewMessage(signer.PublicKey(), r.nonce.Add(1), program.ProgramIDFor(r.deriver, ix), ix)
	if err != nil {
		return "", err
	}
	tx, err := ledger.Sign(msg, signer)
	if err != nil {
		return "", err
	}
	enc, err := tx.EncodeBase64()
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(api.SubmitRequest{Transaction: enc})
	if err != nil {
		return "", err
	}
	sig := tx.ID()

	err = r.backoff.do(ctx, "remote", func() error {
		return r.post(ctx, sig, body)
	})
	return sig, err
}

func (r *Remote) post(ctx context.Context, sig string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post transaction: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out api.SubmitResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode submit response: %w", err)
		}
		r.mu.Lock()
		r.results[sig] = out
		r.mu.Unlock()
		return nil
	case http.StatusConflict:
		// An earlier attempt landed; Confirm reports its outcome.
		return nil
	}

	e := readError(resp)
	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity && e.Code != 0:
		return rejected(e.Code, "")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &Failure{Kind: FailureTransport, Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)}
	default:
		return &Failure{Kind: FailureRejected, Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)}
	}
}

// Confirm polls the transaction status until the server has journaled it.
func (r *Remote) Confirm(ctx context.Context, signature string) (*Status, error) {
	start := time.Now()
	var view api.TransactionView
	err := waitPoll(ctx, r.interval, func() (bool, error) {
		err := r.Fetch(ctx, "/v1/transactions/"+signature, &view)
		var he *HTTPError
		if errors.As(err, &he) && (he.Status == http.StatusNotFound || he.Status >= 500) {
			return false, nil
		}
		return err == nil, err
	})
	if err != nil {
		return nil, classify(err)
	}
	observability.RecordConfirmation("remote", time.Since(start).Seconds())

	if view.Status == string(domain.TransactionRejected) {
		return nil, rejected(view.ErrorCode, "")
	}
	st := &Status{Signature: view.Signature, Slot: view.Slot}
	r.mu.Lock()
	if out, ok := r.results[signature]; ok {
		if out.PollID != nil {
			st.PollID = *out.PollID
		}
		if out.CandidateID != nil {
			st.CandidateID = *out.CandidateID
		}
		delete(r.results, signature)
	}
	r.mu.Unlock()
	return st, nil
}

// HTTPError is a non-2xx answer from the ledger server.
type HTTPError struct {
	Status int
	Body   api.ErrorResponse
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body.Error)
}

// Unwrap exposes the program error for answers that carry a code.
func (e *HTTPError) Unwrap() error {
	if pe, ok := program.ErrorFromCode(e.Body.Code); ok {
		return pe
	}
	return nil
}

// Fetch GETs path from the server and decodes the JSON answer into out.
func (r *Remote) Fetch(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &HTTPError{Status: resp.StatusCode, Body: readError(resp)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func readError(resp *http.Response) api.ErrorResponse {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e api.ErrorResponse
	if json.Unmarshal(raw, &e) != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(raw))
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
	}
	return e
}
