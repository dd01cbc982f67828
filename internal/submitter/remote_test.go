package submitter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srtaalej/capstone-proj/internal/api"
	"github.com/srtaalej/capstone-proj/internal/pda"
	"github.com/srtaalej/capstone-proj/internal/program"
)

func newRemote(t *testing.T, h http.Handler) *Remote {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewRemote(srv.URL, pda.DefaultDeriver(), fastBackoff(), WithPollInterval(5*time.Millisecond))
}

func TestRemote_Scenario(t *testing.T) {
	s := newRemote(t, api.NewServer(newLedger(t)).Handler())
	runScenario(t, s)
}

func TestRemote_FetchReads(t *testing.T) {
	s := newRemote(t, api.NewServer(newLedger(t)).Handler())
	ctx := context.Background()

	var c api.CounterView
	err := s.Fetch(ctx, "/v1/counter", &c)
	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusNotFound, he.Status)
	assert.True(t, errors.Is(err, program.ErrNotInitialized))

	_, err = SubmitAndConfirm(ctx, s, &program.Initialize{}, newKey(t))
	require.NoError(t, err)
	require.NoError(t, s.Fetch(ctx, "/v1/counter", &c))
	assert.Equal(t, uint64(0), c.Count)
}

func TestRemote_RetriesUnavailable(t *testing.T) {
	inner := api.NewServer(newLedger(t)).Handler()
	var posts atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && posts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		inner.ServeHTTP(w, r)
	})
	s := newRemote(t, h)

	_, err := SubmitAndConfirm(context.Background(), s, &program.Initialize{}, newKey(t))
	require.NoError(t, err)
	assert.Equal(t, int32(3), posts.Load())
}

func TestRemote_LostResponseIsNotAFailure(t *testing.T) {
	inner := api.NewServer(newLedger(t)).Handler()
	var posts atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && posts.Add(1) == 1 {
			// Process the transaction, then fail the answer.
			inner.ServeHTTP(httptest.NewRecorder(), r)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		inner.ServeHTTP(w, r)
	})
	s := newRemote(t, h)

	st, err := SubmitAndConfirm(context.Background(), s, &program.Initialize{}, newKey(t))
	require.NoError(t, err)
	assert.NotZero(t, st.Slot)
	assert.Equal(t, int32(2), posts.Load())
}

func TestRemote_BadRequestIsNotRetried(t *testing.T) {
	var posts atomic.Int32
	s := newRemote(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid transaction signature"}`))
	}))

	_, err := s.Submit(context.Background(), &program.Initialize{}, newKey(t))
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, FailureRejected, f.Kind)
	assert.Contains(t, err.Error(), "invalid transaction signature")
	assert.Equal(t, int32(1), posts.Load())
}

func TestRemote_ConfirmTimeout(t *testing.T) {
	s := newRemote(t, api.NewServer(newLedger(t)).Handler())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := s.Confirm(ctx, "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW")
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, FailureTimeout, f.Kind)
}
