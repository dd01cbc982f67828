package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srtaalej/capstone-proj/internal/api"
	"github.com/srtaalej/capstone-proj/internal/ledger"
	"github.com/srtaalej/capstone-proj/internal/program"
	"github.com/srtaalej/capstone-proj/internal/storage/memory"
)

const t0 = int64(1_700_000_000)

type fixture struct {
	server  string
	keypair string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	prog := program.New(memory.NewAccountStore(), program.WithClock(program.NewManualClock(t0)))
	srv := httptest.NewServer(api.NewServer(ledger.New(prog, memory.NewTransactionLogStore())).Handler())
	t.Cleanup(srv.Close)
	return &fixture{server: srv.URL, keypair: filepath.Join(t.TempDir(), "id.json")}
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{"votectl", "--server", f.server, "--keypair", f.keypair}, args...)
	err := newApp(&out).RunContext(context.Background(), full)
	return out.String(), err
}

func (f *fixture) mustRun(t *testing.T, out interface{}, args ...string) {
	t.Helper()
	s, err := f.run(t, args...)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal([]byte(s), out), s)
	}
}

func TestVotectl_Lifecycle(t *testing.T) {
	f := newFixture(t)

	var key map[string]string
	f.mustRun(t, &key, "keygen")
	assert.NotEmpty(t, key["pubkey"])

	addr, err := f.run(t, "address")
	require.NoError(t, err)
	assert.Equal(t, key["pubkey"]+"\n", addr)

	var ping map[string]interface{}
	f.mustRun(t, &ping, "ping")
	assert.Equal(t, "server", ping["backend"])
	assert.Equal(t, "ok", ping["status"])

	f.mustRun(t, nil, "init")

	var poll txOutput
	f.mustRun(t, &poll, "create-poll", "-d", "Lunch",
		"--start", strconv.FormatInt(t0-10, 10), "--duration", "1m")
	require.NotNil(t, poll.PollID)
	assert.Equal(t, uint64(0), *poll.PollID)
	assert.NotEmpty(t, poll.Signature)

	var cand txOutput
	f.mustRun(t, &cand, "register", "--poll", "0", "--name", "Tacos")
	require.NotNil(t, cand.CandidateID)
	assert.Equal(t, uint64(0), *cand.CandidateID)

	f.mustRun(t, nil, "vote", "--poll", "0", "--candidate", "0")

	_, err = f.run(t, "vote", "--poll", "0", "--candidate", "0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, program.ErrDuplicateVote))
	assert.Contains(t, err.Error(), "DuplicateVote")

	var polls []api.PollView
	f.mustRun(t, &polls, "polls")
	require.Len(t, polls, 1)
	assert.Equal(t, "Lunch", polls[0].Description)
	assert.Equal(t, t0+50, polls[0].End)
	assert.Equal(t, uint64(1), polls[0].Candidates)

	var cands []api.CandidateView
	f.mustRun(t, &cands, "candidates", "--poll", "0")
	require.Len(t, cands, 1)
	assert.Equal(t, uint64(1), cands[0].Votes)

	var id api.IdentityView
	f.mustRun(t, &id, "identity")
	assert.Equal(t, key["pubkey"], id.Wallet.String())
	assert.Equal(t, "unverified", id.Status)

	var st txOutput
	f.mustRun(t, &st, "status", poll.Signature)
	assert.Equal(t, poll.Slot, st.Slot)
}

func TestVotectl_KeygenRefusesOverwrite(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, nil, "keygen")

	_, err := f.run(t, "keygen")
	assert.ErrorContains(t, err, "--force")

	f.mustRun(t, nil, "keygen", "--force")
}

func TestVotectl_CreatePollNeedsEnd(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, nil, "keygen")

	_, err := f.run(t, "create-poll", "-d", "x")
	assert.ErrorContains(t, err, "--end or --duration")

	_, err = f.run(t, "create-poll", "-d", "x", "--end", "5", "--duration", "1s")
	assert.ErrorContains(t, err, "mutually exclusive")
}

func TestVotectl_BackendSelection(t *testing.T) {
	var out bytes.Buffer
	err := newApp(&out).RunContext(context.Background(), []string{"votectl", "polls"})
	assert.ErrorContains(t, err, "--server or --rpc")

	err = newApp(&out).RunContext(context.Background(),
		[]string{"votectl", "--server", "http://x", "--rpc", "http://y", "polls"})
	assert.ErrorContains(t, err, "mutually exclusive")

	err = newApp(&out).RunContext(context.Background(),
		[]string{"votectl", "--server", "http://x", "--program-id", "bad", "polls"})
	assert.ErrorContains(t, err, "program-id")

	err = newApp(&out).RunContext(context.Background(),
		[]string{"votectl", "--rpc", "http://y", "polls"})
	assert.ErrorContains(t, err, "--program-id is required")
}
